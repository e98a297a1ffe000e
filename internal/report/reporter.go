// Package report is the partner reporting hook. A report records who
// reported whom in which room; nothing is enforced. Reports are logged by
// default, persisted to PostgreSQL when a database is configured and fanned
// out to any other sink (such as the NATS publisher).
package report

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"
)

var (
	ErrMissingRoom    = errors.New("report: room id is required")
	ErrMissingParties = errors.New("report: reporter and reported ids are required")
)

// Reasons accepted by the reports table. Anything else is filed as "other".
const (
	ReasonHarassment = "harassment"
	ReasonSpam       = "spam"
	ReasonExplicit   = "explicit"
	ReasonOther      = "other"
)

var validReasons = map[string]bool{
	ReasonHarassment: true,
	ReasonSpam:       true,
	ReasonExplicit:   true,
	ReasonOther:      true,
}

// Report is one filed report. No transcript is attached: messages are never
// retained by the server.
type Report struct {
	ID         int64     `db:"id"`
	RoomID     string    `db:"room_id"`
	ReporterID string    `db:"reporter_id"`
	ReportedID string    `db:"reported_id"`
	Reason     string    `db:"reason"`
	CreatedAt  time.Time `db:"created_at"`
}

// NormalizeReason lowercases reason and maps unknown values to ReasonOther.
func NormalizeReason(reason string) string {
	r := strings.ToLower(strings.TrimSpace(reason))
	if validReasons[r] {
		return r
	}
	return ReasonOther
}

// Validate checks the required fields and normalizes the reason in place.
func (r *Report) Validate() error {
	if r.RoomID == "" {
		return ErrMissingRoom
	}
	if r.ReporterID == "" || r.ReportedID == "" {
		return ErrMissingParties
	}
	r.Reason = NormalizeReason(r.Reason)
	return nil
}

// Reporter accepts filed reports.
type Reporter interface {
	File(ctx context.Context, r Report) error
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ctx context.Context, r Report) error

// File calls f.
func (f ReporterFunc) File(ctx context.Context, r Report) error { return f(ctx, r) }

// LogReporter writes reports to the standard logger.
type LogReporter struct{}

// File logs r.
func (LogReporter) File(_ context.Context, r Report) error {
	log.Printf("[report] room=%s reporter=%s reported=%s reason=%s", r.RoomID, r.ReporterID, r.ReportedID, r.Reason)
	return nil
}

// Fanout files every report with all of its reporters. A failing sink does
// not stop the others; all errors are joined.
type Fanout []Reporter

// File validates r once, then hands it to each sink.
func (f Fanout) File(ctx context.Context, r Report) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	var errs []error
	for _, sink := range f {
		if err := sink.File(ctx, r); err != nil {
			log.Printf("[report] sink failed: %v", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
