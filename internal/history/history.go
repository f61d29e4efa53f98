// Package history keeps every evaluation a resume has received in a local
// JSON file, keyed by the candidate email.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/ecodeclub/ekit/slice"

	"github.com/spigell/resume-matcher/internal/fields"
	"github.com/spigell/resume-matcher/internal/pipeline"
)

var now = time.Now

type Record struct {
	Key         string                `json:"key"`
	Name        string                `json:"name"`
	Email       string                `json:"email,omitempty"`
	File        string                `json:"file"`
	Resume      *fields.Map           `json:"resume"`
	Evaluations []pipeline.Evaluation `json:"evaluations"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

type Store struct {
	Items []*Record `json:"items"`
}

// Load reads the store at path. A missing or empty file is an empty store.
func Load(path string) (*Store, error) {
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Store{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, err
	}

	if stat.Size() == 0 {
		return &Store{}, nil
	}

	var store Store
	if err := json.NewDecoder(file).Decode(&store); err != nil {
		return nil, fmt.Errorf("decoding history file %q: %w", path, err)
	}
	return &store, nil
}

// Key identifies the candidate of an outcome: the email when known, the
// file name otherwise.
func Key(o pipeline.Outcome) string {
	if email := strings.ToLower(strings.TrimSpace(o.Email)); email != "" {
		return email
	}
	return "file:" + o.File
}

func (s *Store) Find(key string) (*Record, bool) {
	return slice.Find(s.Items, func(r *Record) bool { return r.Key == key })
}

// Append records the successful outcomes. A new candidate gets a record with
// the parsed resume; known candidates only get the new evaluation appended.
// It returns the number of evaluations added.
func (s *Store) Append(outcomes []pipeline.Outcome) int {
	added := 0
	for _, o := range outcomes {
		if !o.Succeeded() {
			continue
		}

		ts := now().UTC()
		key := Key(o)

		record, ok := s.Find(key)
		if !ok {
			name, _ := o.Resume.Get("name")
			record = &Record{
				Key:         key,
				Name:        fields.String(name),
				Email:       o.Email,
				File:        o.File,
				Resume:      o.Resume,
				Evaluations: []pipeline.Evaluation{},
				CreatedAt:   ts,
			}
			s.Items = append(s.Items, record)
		}

		record.UpdatedAt = ts
		if o.Evaluation != nil {
			record.Evaluations = append(record.Evaluations, *o.Evaluation)
			added++
		}
	}

	return added
}

func (s *Store) Len() int {
	return len(s.Items)
}

// Keys lists the record keys in insertion order.
func (s *Store) Keys() []string {
	return slice.Map(s.Items, func(_ int, r *Record) string { return r.Key })
}

// Resumes returns the stored resumes in insertion order, ready to be scored
// against another job description.
func (s *Store) Resumes() []pipeline.ParsedResume {
	return slice.Map(s.Items, func(_ int, r *Record) pipeline.ParsedResume {
		return pipeline.ParsedResume{File: r.File, Resume: r.Resume}
	})
}

func (s *Store) ToFile(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}
