package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cataid/assessor/internal/compare"
	"github.com/cataid/assessor/internal/engine"
	appI18n "github.com/cataid/assessor/internal/i18n"
	"github.com/cataid/assessor/internal/model"
	"github.com/cataid/assessor/internal/store"
)

func scoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Print the score summary of one assessment",
		RunE:  runScore,
	}
	f := cmd.Flags()
	commonFlags(f)
	f.Int64("assessment", 0, "Assessment ID (required)")
	f.Bool("cache", false, "Store the computed summary in the score cache")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	_ = cmd.MarkFlagRequired("assessment")
	return cmd
}

func rescoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rescore",
		Short: "Recompute cached scores of all submitted and approved assessments",
		RunE:  runRescore,
	}
	commonFlags(cmd.Flags())
	return cmd
}

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the report model of one assessment as JSON",
		RunE:  runReport,
	}
	f := cmd.Flags()
	commonFlags(f)
	f.Int64("assessment", 0, "Assessment ID (required)")
	f.Bool("history", false, "Include the comparison against the candidate's earlier assessments")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	_ = cmd.MarkFlagRequired("assessment")
	return cmd
}

func compareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Compare assessments of one candidate",
		RunE:  runCompare,
	}
	f := cmd.Flags()
	commonFlags(f)
	f.Int64("candidate", 0, "Candidate ID (required)")
	f.Int64Slice("ids", nil, "Assessment IDs to compare (default: all comparable)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	_ = cmd.MarkFlagRequired("candidate")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export reports and progress histories as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	commonFlags(f)
	f.Int("workers", 4, "Parallel report builders")
	f.Bool("histories", false, "Export raw candidate histories in the import format instead of reports")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	return cmd
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import candidate histories from JSON files",
		RunE:  runImport,
	}
	f := cmd.Flags()
	commonFlags(f)
	f.StringSliceP("file", "f", nil, "Paths to history JSON files (repeatable)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func catalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Validate and print the effective question catalog",
		RunE:  runCatalog,
	}
	f := cmd.Flags()
	commonFlags(f)
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	return cmd
}

// openAll loads the engine and opens the store for a one-shot command.
func openAll(cmd *cobra.Command) (*viper.Viper, *engine.Engine, *store.Store, error) {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	eng, err := loadEngine(v)
	if err != nil {
		return nil, nil, nil, err
	}
	db, err := openStore(v, eng)
	if err != nil {
		return nil, nil, nil, err
	}
	return v, eng, db, nil
}

// loadRecord fetches an assessment and its candidate.
func loadRecord(db *store.Store, id int64) (*model.Candidate, *model.Assessment, error) {
	a, err := db.GetAssessment(id)
	if err != nil {
		return nil, nil, fmt.Errorf("get assessment: %w", err)
	}
	if a == nil {
		return nil, nil, fmt.Errorf("assessment %d not found", id)
	}
	c, err := db.GetCandidate(a.CandidateID)
	if err != nil {
		return nil, nil, fmt.Errorf("get candidate: %w", err)
	}
	if c == nil {
		return nil, nil, fmt.Errorf("candidate %d not found", a.CandidateID)
	}
	return c, a, nil
}

func runScore(cmd *cobra.Command, _ []string) error {
	v, eng, db, err := openAll(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	_, a, err := loadRecord(db, v.GetInt64("assessment"))
	if err != nil {
		return err
	}
	summary := eng.Score(*a)
	if v.GetBool("cache") {
		if err := db.SaveScore(a.ID, summary); err != nil {
			return fmt.Errorf("save score: %w", err)
		}
	}
	return writeOutput(v.GetString("output"), summary)
}

func runRescore(cmd *cobra.Command, _ []string) error {
	_, eng, db, err := openAll(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	records, err := db.ListAllAssessments()
	if err != nil {
		return fmt.Errorf("list assessments: %w", err)
	}
	n := 0
	for _, a := range records {
		if !a.Status.Comparable() {
			continue
		}
		if err := db.SaveScore(a.ID, eng.Score(a)); err != nil {
			return fmt.Errorf("save score for assessment %d: %w", a.ID, err)
		}
		n++
	}
	version := eng.Catalog().Version()
	if err := db.SetCatalogVersion(version); err != nil {
		return fmt.Errorf("record catalog version: %w", err)
	}
	slog.Info("rescored assessments", "count", n, "catalog_version", version)
	return nil
}

func runReport(cmd *cobra.Command, _ []string) error {
	v, eng, db, err := openAll(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	c, a, err := loadRecord(db, v.GetInt64("assessment"))
	if err != nil {
		return err
	}

	var rep model.ReportModel
	if v.GetBool("history") {
		records, err := db.ListAssessments(c.ID)
		if err != nil {
			return fmt.Errorf("list assessments: %w", err)
		}
		rep, err = eng.ReportWithHistory(*c, *a, records)
		if err != nil {
			return fmt.Errorf("build report: %w", err)
		}
	} else {
		rep, err = eng.Report(*c, *a, nil)
		if err != nil {
			return fmt.Errorf("build report: %w", err)
		}
	}
	return writeOutput(v.GetString("output"), rep)
}

func runCompare(cmd *cobra.Command, _ []string) error {
	v, eng, db, err := openAll(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	candidateID := v.GetInt64("candidate")
	c, err := db.GetCandidate(candidateID)
	if err != nil {
		return fmt.Errorf("get candidate: %w", err)
	}
	if c == nil {
		return fmt.Errorf("candidate %d not found", candidateID)
	}

	var records []model.Assessment
	if ids, _ := cmd.Flags().GetInt64Slice("ids"); len(ids) > 0 {
		records, err = db.ListAssessmentsByIDs(c.ID, ids)
	} else {
		records, err = db.ListAssessments(c.ID)
	}
	if err != nil {
		return fmt.Errorf("list assessments: %w", err)
	}

	cmp, err := eng.Compare(*c, records)
	if errors.Is(err, compare.ErrInsufficientData) {
		// Not a failure: tell the user in their language and exit cleanly.
		if err := appI18n.Init(v.GetString("lang")); err != nil {
			return fmt.Errorf("init i18n: %w", err)
		}
		ctx := appI18n.WithLocalizer(context.Background(), appI18n.NewLocalizer(v.GetString("lang")))
		fmt.Fprintln(cmd.ErrOrStderr(), appI18n.Td(ctx, "NotEnoughComparable", map[string]any{
			"Found": eligible(records),
			"Need":  compare.MinRecords,
		}))
		return nil
	}
	if err != nil {
		return fmt.Errorf("compare: %w", err)
	}
	return writeOutput(v.GetString("output"), cmp)
}

func eligible(records []model.Assessment) int {
	n := 0
	for _, a := range records {
		if a.Status.Comparable() {
			n++
		}
	}
	return n
}

func runExport(cmd *cobra.Command, _ []string) error {
	v, eng, db, err := openAll(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	histories, err := db.ExportHistories()
	if err != nil {
		return fmt.Errorf("export histories: %w", err)
	}
	if v.GetBool("histories") {
		return writeOutput(v.GetString("output"), histories)
	}

	var jobs []engine.ReportJob
	progress := make([]model.ProgressReport, 0, len(histories))
	for _, h := range histories {
		for _, a := range h.Assessments {
			if a.Status.Comparable() {
				jobs = append(jobs, engine.ReportJob{Candidate: h.Candidate, Assessment: a})
			}
		}
		progress = append(progress, eng.Progress(h.Candidate, h.Assessments))
	}

	reports, err := eng.Reports(cmd.Context(), jobs, v.GetInt("workers"))
	if err != nil {
		return err
	}

	export := model.HistoryExport{
		CatalogVersion: eng.Catalog().Version(),
		GeneratedAt:    time.Now().UTC().Format(time.RFC3339),
		Reports:        reports,
		Progress:       progress,
	}
	slog.Info("exported reports", "reports", len(reports), "candidates", len(progress))
	return writeOutput(v.GetString("output"), export)
}

func runImport(cmd *cobra.Command, _ []string) error {
	v, _, db, err := openAll(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	for _, path := range v.GetStringSlice("file") {
		if err := importFile(db, path); err != nil {
			return err
		}
	}
	return nil
}

func importFile(db *store.Store, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	hash := sha256sum(data)
	storedHash, err := db.GetImportedFileHash(path)
	if err != nil {
		return fmt.Errorf("check import status for %s: %w", path, err)
	}
	if storedHash == hash {
		slog.Info("history file unchanged, skipping", "path", path)
		return nil
	}
	if storedHash != "" {
		slog.Warn("history file changed since last import, skipping to avoid duplicate candidates",
			"path", path)
		return nil
	}

	var histories []model.CandidateHistory
	if err := json.Unmarshal(data, &histories); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	for _, h := range histories {
		if _, err := db.ImportHistory(h); err != nil {
			return fmt.Errorf("import candidate %q from %s: %w", h.Candidate.FullName, path, err)
		}
	}

	if err := db.SetImportedFileHash(path, hash); err != nil {
		return fmt.Errorf("record import for %s: %w", path, err)
	}
	slog.Info("imported histories", "path", path, "candidates", len(histories))
	return nil
}

func runCatalog(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	eng, err := loadEngine(v)
	if err != nil {
		return err
	}
	data, err := eng.Catalog().Marshal()
	if err != nil {
		return fmt.Errorf("marshal catalog: %w", err)
	}
	return writeRaw(v.GetString("output"), data)
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// writeOutput renders v as indented JSON to outPath, or stdout for "-".
func writeOutput(outPath string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	return writeRaw(outPath, append(data, '\n'))
}

func writeRaw(outPath string, data []byte) error {
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
