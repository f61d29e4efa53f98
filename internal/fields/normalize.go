package fields

import (
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"
)

// TitleKey names the job title in a parsed job description. It labels the
// evaluation and is never scored.
const TitleKey = "title"

// Canonical normalizes a field name so that "Key Skills", "key-skills" and
// "key_skills" compare equal.
func Canonical(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.Join(strings.FieldsFunc(name, func(r rune) bool {
		return r == ' ' || r == '-' || r == '_' || r == '\t'
	}), "_")
	return name
}

// CanonicalKeys returns the canonical form of every key, de-duplicated,
// keeping the first occurrence order.
func CanonicalKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		c := Canonical(key)
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// JobFields lists the scoring fields of a job description: every key with a
// non-empty value except the title, canonicalized and in document order.
func JobFields(jd *Map) []string {
	keys := make([]string, 0, jd.Len())
	for _, key := range jd.Keys() {
		if Canonical(key) == TitleKey {
			continue
		}
		v, _ := jd.Get(key)
		if IsEmpty(v) {
			continue
		}
		keys = append(keys, key)
	}
	return CanonicalKeys(keys)
}

// JobTitle returns the job description title, matching the key loosely.
func JobTitle(jd *Map) string {
	for _, key := range jd.Keys() {
		if Canonical(key) == TitleKey || Canonical(key) == "job_title" {
			v, _ := jd.Get(key)
			return String(v)
		}
	}
	return ""
}

// IsEmpty reports whether v carries no usable content.
func IsEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	case []any:
		return len(val) == 0
	case []string:
		return len(val) == 0
	case map[string]any:
		return len(val) == 0
	case *Map:
		return val.Len() == 0
	default:
		return false
	}
}

// Float coerces loosely typed model output into a number. NaN signals that
// no number could be read.
func Float(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case float32:
		return float64(val)
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return math.NaN()
		}
		return f
	case string:
		trimmed := strings.TrimSuffix(strings.TrimSpace(val), "%")
		if trimmed == "" {
			return math.NaN()
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(trimmed), 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

// String coerces v into trimmed text. Lists are joined with newlines.
func String(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case []any:
		return strings.Join(Strings(val), "\n")
	case []string:
		return strings.Join(Strings(val), "\n")
	case fmt.Stringer:
		return strings.TrimSpace(val.String())
	default:
		bytes, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(bytes)
	}
}

// Strings coerces v into a list of non-empty strings. A single string
// becomes a one-element list.
func Strings(v any) []string {
	var items []any
	switch val := v.(type) {
	case nil:
		return []string{}
	case []string:
		items = make([]any, len(val))
		for i, s := range val {
			items[i] = s
		}
	case []any:
		items = val
	default:
		items = []any{val}
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		if s := String(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ParseScores reads a model-produced field_scores object. Keys are
// canonicalized, restricted to allowed when it is non-empty, non-numeric
// values are dropped and the rest are clamped to [0, 100].
func ParseScores(raw any, allowed []string) map[string]float64 {
	var src map[string]any
	switch val := raw.(type) {
	case *Map:
		src = val.Plain()
	case map[string]any:
		src = val
	default:
		return map[string]float64{}
	}

	var filter map[string]struct{}
	if len(allowed) > 0 {
		filter = make(map[string]struct{}, len(allowed))
		for _, f := range allowed {
			filter[Canonical(f)] = struct{}{}
		}
	}

	scores := make(map[string]float64, len(src))
	for _, key := range sortedKeys(src) {
		name := Canonical(key)
		if name == "" {
			continue
		}
		if filter != nil {
			if _, ok := filter[name]; !ok {
				continue
			}
		}

		score := Float(src[key])
		if math.IsNaN(score) || math.IsInf(score, 0) {
			continue
		}
		scores[name] = min(max(score, 0), 100)
	}

	return scores
}

func sortedKeys(m map[string]any) []string {
	return slices.Sorted(maps.Keys(m))
}
