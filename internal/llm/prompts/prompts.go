package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/cataid/assessor/internal/model"
)

//go:embed templates/*.txt
var Templates embed.FS

var reportDataRegex = regexp.MustCompile(`(?i)</?\s*report-data\b[^>]*>`)

// maxCommentRunes bounds assessor notes copied into a prompt.
const maxCommentRunes = 4000

// PromptVariant selects the tone of a drafted summary.
type PromptVariant string

const (
	// PromptStandard drafts a professional summary for the report.
	PromptStandard PromptVariant = "standard"
	// PromptPlain drafts a plain-language summary for families.
	PromptPlain PromptVariant = "plain"
)

var validVariants = map[PromptVariant]bool{
	PromptStandard: true,
	PromptPlain:    true,
}

var languageNames = map[string]string{
	"en": "English",
	"hi": "Hindi",
}

var (
	loadOnce         sync.Once
	loadErr          error
	summaryTemplates map[PromptVariant]*template.Template
)

// IsValidVariant checks if a prompt variant name is valid.
func IsValidVariant(v string) bool {
	return validVariants[PromptVariant(v)]
}

// SectionLine is one section row in a summary prompt.
type SectionLine struct {
	Name       string
	Achieved   int
	Maximum    int
	Percentage float64
}

// SummaryData holds template data for summary prompts.
type SummaryData struct {
	Language      string
	CandidateName string
	TotalScore    int
	MaxScore      int
	Percentage    float64
	Sections      []SectionLine
	NeedsSupport  []string
	Comments      string
}

// Load parses the summary templates once. fsys must contain
// templates/summary_<variant>.txt for every variant.
func Load(fsys fs.FS) error {
	loadOnce.Do(func() {
		summaryTemplates = make(map[PromptVariant]*template.Template)
		funcs := template.FuncMap{"join": strings.Join}
		for v := range validVariants {
			file := "templates/summary_" + string(v) + ".txt"
			content, err := fs.ReadFile(fsys, file)
			if err != nil {
				loadErr = fmt.Errorf("read prompt file %s: %w", file, err)
				return
			}
			tmpl, err := template.New("summary").Funcs(funcs).Parse(string(content))
			if err != nil {
				loadErr = fmt.Errorf("parse prompt template %s: %w", file, err)
				return
			}
			summaryTemplates[v] = tmpl
		}
	})
	return loadErr
}

// NewSummaryData extracts the prompt data from a report model.
func NewSummaryData(rep model.ReportModel, lang string) SummaryData {
	name, ok := languageNames[strings.ToLower(lang)]
	if !ok {
		name = languageNames["en"]
	}
	data := SummaryData{
		Language:      name,
		CandidateName: sanitize(rep.Candidate.FullName),
		TotalScore:    rep.Summary.TotalScore,
		MaxScore:      rep.Summary.MaxScore,
		Percentage:    rep.Summary.Percentage,
		NeedsSupport:  rep.Recommendations.Sections(),
		Comments:      sanitize(rep.Assessment.AssessorComments),
	}
	for _, s := range rep.Summary.Sections {
		data.Sections = append(data.Sections, SectionLine{
			Name:       s.Section,
			Achieved:   s.Achieved,
			Maximum:    s.Maximum,
			Percentage: s.Percentage,
		})
	}
	return data
}

// BuildSummaryPrompt renders the summary prompt of the given variant.
func BuildSummaryPrompt(variant PromptVariant, data SummaryData) (string, error) {
	if summaryTemplates == nil {
		return "", errors.New("templates not initialized: call Load first")
	}
	tmpl, ok := summaryTemplates[variant]
	if !ok {
		if loadErr != nil {
			return "", fmt.Errorf("templates load failed: %w", loadErr)
		}
		return "", errors.New("invalid prompt variant: " + string(variant))
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// sanitize strips delimiter tags from free text and bounds its length.
func sanitize(s string) string {
	s = strings.TrimSpace(reportDataRegex.ReplaceAllString(s, ""))
	if utf8.RuneCountInString(s) > maxCommentRunes {
		s = string([]rune(s)[:maxCommentRunes]) + " [truncated]"
	}
	return s
}
