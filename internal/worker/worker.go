// Package worker handles background jobs taken off the AMQP queue.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"ikpa/internal/amqp"
	"ikpa/internal/apperr"
	"ikpa/internal/debrief"
	"ikpa/internal/sheets"
	"ikpa/internal/shark"
)

type (
	DebriefGenerator interface {
		Generate(ctx context.Context, userID, contractID int64) (debrief.Debrief, error)
	}

	AuditRefresher interface {
		Refresh(ctx context.Context, userID int64) (shark.Report, error)
	}

	MonthExporter interface {
		ExportMonth(ctx context.Context, userID int64, year, month int) (sheets.Result, error)
	}
)

// Worker dispatches jobs to the service that handles them.
type Worker struct {
	debriefs DebriefGenerator
	audits   AuditRefresher
	exporter MonthExporter
}

// New builds a worker. exporter may be nil when the ledger export is not
// configured; export jobs are then dropped.
func New(debriefs DebriefGenerator, audits AuditRefresher, exporter MonthExporter) *Worker {
	return &Worker{debriefs: debriefs, audits: audits, exporter: exporter}
}

// Handle runs one job. Errors a retry cannot fix (bad payloads, missing
// records) are logged and swallowed so the message is not requeued forever.
func (w *Worker) Handle(ctx context.Context, job amqp.Job) error {
	start := time.Now()
	err := w.handle(ctx, job)
	if err != nil && permanent(err) {
		slog.WarnContext(ctx, "Dropping job with permanent error",
			"component", "worker",
			"job_type", job.Type,
			"user_id", job.UserID,
			"error", err)
		return nil
	}
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "Job handled",
		"component", "worker",
		"job_type", job.Type,
		"user_id", job.UserID,
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

func (w *Worker) handle(ctx context.Context, job amqp.Job) error {
	switch job.Type {
	case amqp.JobDebriefRequested:
		var p amqp.DebriefPayload
		if err := job.Decode(&p); err != nil {
			return apperr.Validation(err.Error())
		}
		if _, err := w.debriefs.Generate(ctx, job.UserID, p.ContractID); err != nil {
			return fmt.Errorf("debrief contract %d: %w", p.ContractID, err)
		}
		return nil

	case amqp.JobSharkAudit:
		if _, err := w.audits.Refresh(ctx, job.UserID); err != nil {
			return fmt.Errorf("shark audit: %w", err)
		}
		return nil

	case amqp.JobSheetsExport:
		if w.exporter == nil {
			return apperr.Validation("ledger export is not configured")
		}
		var p amqp.ExportPayload
		if err := job.Decode(&p); err != nil {
			return apperr.Validation(err.Error())
		}
		if _, err := w.exporter.ExportMonth(ctx, job.UserID, p.Year, p.Month); err != nil {
			return fmt.Errorf("export %d-%02d: %w", p.Year, p.Month, err)
		}
		return nil
	}
	return apperr.Validation("unknown job type " + job.Type)
}

// permanent reports whether err is a client-side application error.
func permanent(err error) bool {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		return false
	}
	return ae.Status >= http.StatusBadRequest && ae.Status < http.StatusInternalServerError
}
