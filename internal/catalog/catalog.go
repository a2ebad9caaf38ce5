// Package catalog defines the sections and questions that can be scored.
// A Catalog is immutable once constructed and safe for concurrent reads.
package catalog

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrInvalidCatalog is returned when a catalog definition fails validation.
var ErrInvalidCatalog = errors.New("invalid catalog")

// Question is a single scorable item.
type Question struct {
	ID      string   `json:"id" yaml:"id"`
	Text    string   `json:"text" yaml:"text"`
	Options []string `json:"options,omitempty" yaml:"options,omitempty"`
	Correct string   `json:"correct,omitempty" yaml:"correct,omitempty"`
	Weight  int      `json:"weight" yaml:"weight"`
}

// Section groups questions under a category. MaxScore is the explicit cap
// when positive, otherwise the sum of question weights.
type Section struct {
	Category  string     `json:"category" yaml:"category"`
	MaxScore  int        `json:"max_score,omitempty" yaml:"max_score,omitempty"`
	Questions []Question `json:"questions" yaml:"questions"`
}

// Ref locates a question inside the catalog.
type Ref struct {
	Question Question
	Section  string
	// Position is the global catalog order: section order, then question order.
	Position int
}

// Catalog is a versioned, validated, read-only list of sections.
type Catalog struct {
	version   string
	sections  []Section
	maxScores map[string]int
	bySection map[string]int
	refs      map[string]Ref
}

// New validates the sections and builds a catalog. The input slices are
// copied, so later changes by the caller do not affect the catalog.
func New(version string, sections []Section) (*Catalog, error) {
	version = strings.TrimSpace(version)
	if version == "" {
		return nil, fmt.Errorf("%w: version is required", ErrInvalidCatalog)
	}
	if len(sections) == 0 {
		return nil, fmt.Errorf("%w: no sections defined", ErrInvalidCatalog)
	}

	c := &Catalog{
		version:   version,
		sections:  make([]Section, 0, len(sections)),
		maxScores: make(map[string]int, len(sections)),
		bySection: make(map[string]int, len(sections)),
		refs:      make(map[string]Ref),
	}
	folded := make(map[string]string, len(sections))
	pos := 0
	for i, s := range sections {
		name := strings.TrimSpace(s.Category)
		if name == "" {
			return nil, fmt.Errorf("%w: section %d has no category", ErrInvalidCatalog, i+1)
		}
		key := strings.ToLower(name)
		if prev, ok := folded[key]; ok {
			return nil, fmt.Errorf("%w: duplicate section %q (already defined as %q)", ErrInvalidCatalog, name, prev)
		}
		folded[key] = name
		if s.MaxScore < 0 {
			return nil, fmt.Errorf("%w: section %q has negative max_score", ErrInvalidCatalog, name)
		}

		sec := Section{Category: name, MaxScore: s.MaxScore, Questions: make([]Question, 0, len(s.Questions))}
		sum := 0
		for _, q := range s.Questions {
			q, err := normalizeQuestion(name, q)
			if err != nil {
				return nil, err
			}
			if prev, ok := c.refs[q.ID]; ok {
				return nil, fmt.Errorf("%w: question id %q used in %q and %q", ErrInvalidCatalog, q.ID, prev.Section, name)
			}
			c.refs[q.ID] = Ref{Question: q, Section: name, Position: pos}
			pos++
			sum += q.Weight
			sec.Questions = append(sec.Questions, q)
		}
		if sec.MaxScore == 0 {
			sec.MaxScore = sum
		}
		c.bySection[name] = len(c.sections)
		c.maxScores[name] = sec.MaxScore
		c.sections = append(c.sections, sec)
	}
	return c, nil
}

func normalizeQuestion(section string, q Question) (Question, error) {
	q.ID = strings.TrimSpace(q.ID)
	if q.ID == "" {
		return q, fmt.Errorf("%w: question without id in section %q", ErrInvalidCatalog, section)
	}
	if q.Weight < 0 {
		return q, fmt.Errorf("%w: question %q has negative weight", ErrInvalidCatalog, q.ID)
	}
	q.Options = slices.Clone(q.Options)
	if q.Correct != "" && len(q.Options) > 0 && !slices.Contains(q.Options, q.Correct) {
		return q, fmt.Errorf("%w: question %q correct option %q is not among its options", ErrInvalidCatalog, q.ID, q.Correct)
	}
	return q, nil
}

// Version identifies the catalog revision used to compute a score.
func (c *Catalog) Version() string { return c.version }

// Len returns the number of sections.
func (c *Catalog) Len() int { return len(c.sections) }

// Sections returns a deep copy of the sections in catalog order.
func (c *Catalog) Sections() []Section {
	out := make([]Section, len(c.sections))
	for i, s := range c.sections {
		out[i] = copySection(s)
	}
	return out
}

// Section returns a copy of the named section.
func (c *Catalog) Section(name string) (Section, bool) {
	i, ok := c.bySection[name]
	if !ok {
		return Section{}, false
	}
	return copySection(c.sections[i]), true
}

// SectionNames returns the section names in catalog order.
func (c *Catalog) SectionNames() []string {
	out := make([]string, len(c.sections))
	for i, s := range c.sections {
		out[i] = s.Category
	}
	return out
}

// Question looks up a question by id.
func (c *Catalog) Question(id string) (Ref, bool) {
	r, ok := c.refs[id]
	if !ok {
		return Ref{}, false
	}
	r.Question.Options = slices.Clone(r.Question.Options)
	return r, true
}

// Has reports whether the question id is part of the catalog.
func (c *Catalog) Has(id string) bool {
	_, ok := c.refs[id]
	return ok
}

// MaxScore returns the maximum attainable score of a section.
func (c *Catalog) MaxScore(section string) (int, bool) {
	m, ok := c.maxScores[section]
	return m, ok
}

// MaxScores returns section name to maximum score.
func (c *Catalog) MaxScores() map[string]int {
	out := make(map[string]int, len(c.maxScores))
	for k, v := range c.maxScores {
		out[k] = v
	}
	return out
}

// TotalMax is the sum of all section maximums.
func (c *Catalog) TotalMax() int {
	total := 0
	for _, s := range c.sections {
		total += s.MaxScore
	}
	return total
}

func copySection(s Section) Section {
	qs := make([]Question, len(s.Questions))
	for i, q := range s.Questions {
		q.Options = slices.Clone(q.Options)
		qs[i] = q
	}
	s.Questions = qs
	return s
}
