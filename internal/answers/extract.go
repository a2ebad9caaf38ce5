// Package answers turns a stored submission payload into typed per-question
// entries. The payload is a flat JSON object keyed ANS_<id>, SCORE_<id> and
// CMT_<id>; it is scanned exactly once per extraction.
package answers

import (
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Payload key prefixes.
const (
	AnswerPrefix  = "ANS_"
	ScorePrefix   = "SCORE_"
	CommentPrefix = "CMT_"
)

// NoAnswer is shown for questions without a recorded answer.
const NoAnswer = "-"

// Entry holds the three optional fields recorded for a question.
type Entry struct {
	Answer  *string
	Score   *string
	Comment *string
}

// AnswerText returns the selected answer, or "-" when none was recorded.
func (e Entry) AnswerText() string {
	if e.Answer == nil || strings.TrimSpace(*e.Answer) == "" {
		return NoAnswer
	}
	return *e.Answer
}

// Points returns the awarded score as a non-negative integer. Missing,
// non-numeric and negative values count as 0.
func (e Entry) Points() int {
	if e.Score == nil {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(*e.Score))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// Scored reports whether a score field was recorded at all.
func (e Entry) Scored() bool { return e.Score != nil }

// CommentText returns the free-text comment, or "" when none was recorded.
func (e Entry) CommentText() string {
	if e.Comment == nil {
		return ""
	}
	return *e.Comment
}

// Table is the typed view of one payload, keyed by question id.
type Table struct {
	entries map[string]Entry
}

// Get returns the entry for a question id.
func (t Table) Get(id string) (Entry, bool) {
	e, ok := t.entries[id]
	return e, ok
}

// Lookup returns the entry for a question id, or the zero Entry (unscored).
func (t Table) Lookup(id string) Entry {
	return t.entries[id]
}

// IDs returns the question ids present in the payload, sorted.
func (t Table) IDs() []string {
	ids := make([]string, 0, len(t.entries))
	for id := range t.entries {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Len returns the number of questions present in the payload.
func (t Table) Len() int { return len(t.entries) }

// ExtractString is Extract for payloads stored as text.
func ExtractString(payload string) Table {
	return Extract([]byte(payload))
}

// Extract parses the payload once. Empty, malformed or non-object payloads
// yield an empty table; parse problems never reach the caller.
func Extract(payload []byte) Table {
	t := Table{entries: make(map[string]Entry)}
	if len(strings.TrimSpace(string(payload))) == 0 {
		return t
	}
	if !gjson.ValidBytes(payload) {
		slog.Debug("malformed answer payload, treating as empty", "bytes", len(payload))
		return t
	}
	root := gjson.ParseBytes(payload)
	if !root.IsObject() {
		slog.Debug("answer payload is not an object, treating as empty", "type", root.Type.String())
		return t
	}

	root.ForEach(func(key, value gjson.Result) bool {
		id, field := splitKey(key.String())
		if field == "" {
			return true
		}
		text, ok := scalarText(value)
		if !ok {
			return true
		}
		e := t.entries[id]
		switch field {
		case AnswerPrefix:
			e.Answer = &text
		case ScorePrefix:
			e.Score = &text
		case CommentPrefix:
			e.Comment = &text
		}
		t.entries[id] = e
		return true
	})
	return t
}

func splitKey(key string) (id, prefix string) {
	for _, p := range []string{AnswerPrefix, ScorePrefix, CommentPrefix} {
		if rest, ok := strings.CutPrefix(key, p); ok {
			rest = strings.TrimSpace(rest)
			if rest == "" {
				return "", ""
			}
			return rest, p
		}
	}
	return "", ""
}

// scalarText reads strings, numbers and booleans as text. Nulls, objects
// and arrays are treated as absent.
func scalarText(v gjson.Result) (string, bool) {
	switch v.Type {
	case gjson.String, gjson.Number, gjson.True, gjson.False:
		return v.String(), true
	default:
		return "", false
	}
}
