package recommend

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"
)

// ErrInvalidAdvice is returned when an advice table definition is unusable.
var ErrInvalidAdvice = errors.New("invalid advice table")

//go:embed advice.yaml
var defaultAdvice []byte

var (
	defaultOnce  sync.Once
	defaultTable *AdviceTable
	defaultErr   error
)

// AdviceFile is the on-disk form of an advice table.
type AdviceFile struct {
	Fallback   []string            `json:"fallback" yaml:"fallback"`
	Categories map[string][]string `json:"categories" yaml:"categories"`
}

// AdviceTable maps category names to ordered advice. Lookups ignore case.
// A table never changes after construction.
type AdviceTable struct {
	entries  map[string][]string
	fallback []string
}

// NewAdviceTable copies entries and fallback into an immutable table.
func NewAdviceTable(entries map[string][]string, fallback []string) (*AdviceTable, error) {
	if len(fallback) == 0 {
		return nil, fmt.Errorf("%w: fallback advice is required", ErrInvalidAdvice)
	}
	t := &AdviceTable{
		entries:  make(map[string][]string, len(entries)),
		fallback: slices.Clone(fallback),
	}
	originals := make(map[string]string, len(entries))
	for name, advice := range entries {
		key := foldKey(strings.TrimSpace(name))
		if key == "" {
			return nil, fmt.Errorf("%w: empty category name", ErrInvalidAdvice)
		}
		if prev, ok := originals[key]; ok {
			return nil, fmt.Errorf("%w: categories %q and %q differ only in case", ErrInvalidAdvice, prev, name)
		}
		if len(advice) == 0 {
			return nil, fmt.Errorf("%w: category %q has no advice", ErrInvalidAdvice, name)
		}
		originals[key] = name
		t.entries[key] = slices.Clone(advice)
	}
	return t, nil
}

// DefaultAdvice returns the advice table embedded in the binary, parsed once.
func DefaultAdvice() (*AdviceTable, error) {
	defaultOnce.Do(func() {
		defaultTable, defaultErr = ParseAdvice(defaultAdvice, "advice.yaml")
	})
	return defaultTable, defaultErr
}

// LoadAdvice reads an advice table from a YAML or JSON file.
func LoadAdvice(path string) (*AdviceTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read advice table: %w", err)
	}
	return ParseAdvice(data, path)
}

// ParseAdvice decodes advice bytes; name is only used to pick the format.
func ParseAdvice(data []byte, name string) (*AdviceTable, error) {
	var f AdviceFile
	if strings.ToLower(filepath.Ext(name)) == ".json" {
		decoder := json.NewDecoder(bytes.NewReader(data))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&f); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
	} else {
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(&f); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	}
	return NewAdviceTable(f.Categories, f.Fallback)
}

// Lookup returns a copy of the advice for a category and whether the
// category was matched. Unmatched categories get the fallback list.
func (t *AdviceTable) Lookup(category string) ([]string, bool) {
	if advice, ok := t.entries[foldKey(category)]; ok {
		return slices.Clone(advice), true
	}
	return slices.Clone(t.fallback), false
}

// Fallback returns a copy of the generic advice list.
func (t *AdviceTable) Fallback() []string {
	return slices.Clone(t.fallback)
}

// Len returns the number of mapped categories.
func (t *AdviceTable) Len() int { return len(t.entries) }

// foldKey folds case only; surrounding whitespace is significant at lookup.
// A Caser keeps state, so each call gets its own.
func foldKey(s string) string {
	return cases.Fold().String(s)
}
