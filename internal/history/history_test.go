package history

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spigell/resume-matcher/internal/fields"
	"github.com/spigell/resume-matcher/internal/pipeline"
)

func outcome(file, name, email, evalID string) pipeline.Outcome {
	resume := fields.NewMap()
	resume.Set("name", name)
	resume.Set("email", email)

	o := pipeline.Outcome{
		Status: pipeline.StatusSuccess,
		File:   file,
		Resume: resume,
		Email:  email,
	}
	if evalID != "" {
		o.Evaluation = &pipeline.Evaluation{ID: evalID, JobTitle: "Backend Engineer", Score: 70}
	}
	return o
}

func TestLoadMissingAndEmpty(t *testing.T) {
	dir := t.TempDir()

	store, err := Load(filepath.Join(dir, "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, 0, store.Len())

	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))

	store, err = Load(empty)
	require.NoError(t, err)
	assert.Equal(t, 0, store.Len())
}

func TestLoadRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "jane@example.com", Key(outcome("a.pdf", "Jane", " Jane@Example.com ", "")))
	assert.Equal(t, "file:a.pdf", Key(outcome("a.pdf", "Jane", "", "")))
}

func TestAppendGroupsByCandidate(t *testing.T) {
	store := &Store{}

	added := store.Append([]pipeline.Outcome{
		outcome("jane.pdf", "Jane Doe", "jane@example.com", "e1"),
		outcome("john.pdf", "John Roe", "", "e2"),
		{Status: pipeline.StatusFailed, File: "broken.pdf", Error: "boom"},
	})
	assert.Equal(t, 2, added)
	assert.Equal(t, []string{"jane@example.com", "file:john.pdf"}, store.Keys())

	// Resume fields of a known candidate are kept as first written.
	added = store.Append([]pipeline.Outcome{
		outcome("jane-v2.pdf", "Jane Changed", "JANE@example.com", "e3"),
	})
	assert.Equal(t, 1, added)
	assert.Equal(t, 2, store.Len())

	jane, ok := store.Find("jane@example.com")
	require.True(t, ok)
	assert.Equal(t, "Jane Doe", jane.Name)
	assert.Equal(t, "jane.pdf", jane.File)
	require.Len(t, jane.Evaluations, 2)
	assert.Equal(t, "e1", jane.Evaluations[0].ID)
	assert.Equal(t, "e3", jane.Evaluations[1].ID)
}

func TestAppendWithoutEvaluation(t *testing.T) {
	store := &Store{}

	added := store.Append([]pipeline.Outcome{outcome("jane.pdf", "Jane Doe", "jane@example.com", "")})
	assert.Equal(t, 0, added)

	jane, ok := store.Find("jane@example.com")
	require.True(t, ok)
	assert.Empty(t, jane.Evaluations)
}

func TestRoundTripThroughFile(t *testing.T) {
	original := now
	now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	t.Cleanup(func() { now = original })

	path := filepath.Join(t.TempDir(), "history.json")

	store := &Store{}
	store.Append([]pipeline.Outcome{outcome("jane.pdf", "Jane Doe", "jane@example.com", "e1")})
	require.NoError(t, store.ToFile(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 1, loaded.Len())

	jane, ok := loaded.Find("jane@example.com")
	require.True(t, ok)
	assert.Equal(t, []string{"name", "email"}, jane.Resume.Keys())
	assert.Equal(t, "e1", jane.Evaluations[0].ID)
	assert.True(t, jane.UpdatedAt.Equal(now()))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "\n  \"items\"")
}

func TestResumes(t *testing.T) {
	store := &Store{}
	store.Append([]pipeline.Outcome{
		outcome("jane.pdf", "Jane Doe", "jane@example.com", "e1"),
		outcome("john.pdf", "John Roe", "", ""),
	})

	resumes := store.Resumes()
	require.Len(t, resumes, 2)
	assert.Equal(t, "jane.pdf", resumes[0].File)
	assert.Equal(t, "john.pdf", resumes[1].File)

	name, _ := resumes[1].Resume.Get("name")
	assert.Equal(t, "John Roe", name)

	assert.Empty(t, (&Store{}).Resumes())
}
