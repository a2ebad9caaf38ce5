// Package notify tells assessors and leads about assessment workflow changes.
package notify

import (
	"context"
	"log/slog"

	"github.com/cataid/assessor/internal/model"
)

// Event describes one workflow transition. Status is the state the record
// moved into.
type Event struct {
	Status        model.AssessmentStatus
	AssessmentID  int64
	CandidateID   int64
	CandidateName string
	AssessorID    string
	LeadComments  string
}

// Notifier delivers workflow events. Delivery failures never undo the
// transition that caused them.
type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

// Log writes events to a slog logger. It is the default until a mail or SMS
// gateway is configured.
type Log struct {
	logger *slog.Logger
}

// NewLog returns a Log notifier. A nil logger means slog.Default().
func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger}
}

var messages = map[model.AssessmentStatus]string{
	model.StatusAssigned:  "notify: assessor assigned to candidate",
	model.StatusSubmitted: "notify: assessment submitted for review",
	model.StatusApproved:  "notify: assessment approved",
	model.StatusRejected:  "notify: assessment returned to assessor",
}

// Notify logs the event at Info level.
func (l *Log) Notify(ctx context.Context, e Event) error {
	logger := l.logger
	if logger == nil {
		logger = slog.Default()
	}
	msg, ok := messages[e.Status]
	if !ok {
		msg = "notify: assessment status changed"
	}
	attrs := []any{
		"status", string(e.Status),
		"assessment", e.AssessmentID,
		"candidate", e.CandidateID,
		"candidate_name", e.CandidateName,
		"assessor", e.AssessorID,
	}
	if e.LeadComments != "" {
		attrs = append(attrs, "lead_comments", e.LeadComments)
	}
	logger.InfoContext(ctx, msg, attrs...)
	return nil
}
