package services

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/roshni/backend/internal/lease"
	"github.com/roshni/backend/internal/llm"
	"github.com/roshni/backend/internal/logger"
	"github.com/roshni/backend/internal/models"
	"github.com/roshni/backend/internal/render"
)

var (
	// ErrNoLogs is returned when the incident has no logs to report on.
	ErrNoLogs = errors.New("no logs found for this incident")

	// ErrGenerationInProgress is returned when another generation for the
	// same incident holds the lease.
	ErrGenerationInProgress = errors.New("report generation already in progress for this incident")
)

// PersistenceError means the report row could not be stored. No document
// was published.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string { return "failed to store report: " + e.Err.Error() }
func (e *PersistenceError) Unwrap() error { return e.Err }

// RenderError means the PDF could not be produced or published. No report
// row was stored.
type RenderError struct {
	Err error
}

func (e *RenderError) Error() string { return "failed to render report: " + e.Err.Error() }
func (e *RenderError) Unwrap() error { return e.Err }

// LogStore reads an incident's logs in chronological order.
type LogStore interface {
	ListByIncident(ctx context.Context, incidentID uuid.UUID) ([]models.DisasterLog, error)
}

// ReportStore inserts a report and runs publish in the same transaction.
type ReportStore interface {
	CreatePublished(ctx context.Context, report *models.IncidentReport, publish func() error) error
}

// Renderer produces an unpublished document for an incident.
type Renderer interface {
	Render(text string, incidentID uuid.UUID) (*render.Document, error)
}

// ReportGeneratorConfig holds the generation settings taken from configuration.
type ReportGeneratorConfig struct {
	Model          string
	Temperature    float32
	PreviewChars   int
	MaxPromptBytes int // 0 sends all logs in one prompt
}

// GenerationResult is what a successful generation returns to callers.
type GenerationResult struct {
	ReportID uuid.UUID
	PDFPath  string
	Preview  string
	Chunks   int // completion calls used to summarize log chunks, 0 if none
}

// Generator runs the report pipeline for one incident.
type Generator interface {
	Generate(ctx context.Context, incidentID uuid.UUID) (*GenerationResult, error)
}

// ReportGenerator fetches logs, asks the completion service for a report,
// renders it and stores it.
type ReportGenerator struct {
	logs     LogStore
	reports  ReportStore
	provider llm.Provider
	renderer Renderer
	leases   *lease.Manager
	cfg      ReportGeneratorConfig
}

// NewReportGenerator creates a new report generator
func NewReportGenerator(logs LogStore, reports ReportStore, provider llm.Provider, renderer Renderer, leases *lease.Manager, cfg ReportGeneratorConfig) *ReportGenerator {
	if leases == nil {
		leases = lease.NewManager()
	}
	if cfg.PreviewChars <= 0 {
		cfg.PreviewChars = 300
	}
	return &ReportGenerator{
		logs:     logs,
		reports:  reports,
		provider: provider,
		renderer: renderer,
		leases:   leases,
		cfg:      cfg,
	}
}

// Generate runs the full pipeline. Errors are ErrNoLogs,
// ErrGenerationInProgress, *llm.UpstreamError, *RenderError,
// *PersistenceError or a wrapped store error.
func (g *ReportGenerator) Generate(ctx context.Context, incidentID uuid.UUID) (*GenerationResult, error) {
	release, err := g.leases.TryAcquire(incidentID.String())
	if err != nil {
		return nil, ErrGenerationInProgress
	}
	defer release()

	start := time.Now()
	log := logger.WithIncident(incidentID.String(), "report_generator")

	logs, err := g.logs.ListByIncident(ctx, incidentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load logs: %w", err)
	}
	if len(logs) == 0 {
		return nil, ErrNoLogs
	}
	log.WithField("log_count", len(logs)).Info("Generating incident report")

	text, chunks, err := g.synthesize(ctx, incidentID, logs)
	if err != nil {
		log.WithField("error", err.Error()).Error("Report synthesis failed")
		return nil, err
	}

	doc, err := g.renderer.Render(text, incidentID)
	if err != nil {
		log.WithField("error", err.Error()).Error("Report rendering failed")
		return nil, &RenderError{Err: err}
	}
	defer doc.Discard()

	report := &models.IncidentReport{IncidentID: incidentID, DraftText: text}
	var publishErr error
	err = g.reports.CreatePublished(ctx, report, func() error {
		publishErr = doc.Publish()
		return publishErr
	})
	if err != nil {
		if rbErr := doc.Rollback(); rbErr != nil {
			log.WithField("error", rbErr.Error()).Error("Failed to roll back published report")
		}
		if publishErr != nil {
			return nil, &RenderError{Err: publishErr}
		}
		log.WithField("error", err.Error()).Error("Failed to store report")
		return nil, &PersistenceError{Err: err}
	}
	doc.Finalize()

	log.WithFields(map[string]interface{}{
		"report_id":   report.ReportID.String(),
		"pdf_path":    doc.Path(),
		"chunks":      chunks,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Incident report generated")

	return &GenerationResult{
		ReportID: report.ReportID,
		PDFPath:  doc.Path(),
		Preview:  Preview(text, g.cfg.PreviewChars),
		Chunks:   chunks,
	}, nil
}

// synthesize returns the report text and the number of chunk summaries used.
func (g *ReportGenerator) synthesize(ctx context.Context, incidentID uuid.UUID, logs []models.DisasterLog) (string, int, error) {
	prompt, err := BuildReportPrompt(logs)
	if err != nil {
		return "", 0, err
	}
	if g.cfg.MaxPromptBytes <= 0 || len(prompt) <= g.cfg.MaxPromptBytes {
		text, err := g.complete(ctx, incidentID, "incident_report", prompt)
		return text, 0, err
	}

	// Prompt too large: summarize ordered chunks, then report on the notes
	budget := g.cfg.MaxPromptBytes - chunkPromptOverhead(len(logs))
	if budget < 1 {
		budget = 1
	}
	chunks, err := ChunkProjections(ProjectLogs(logs), budget)
	if err != nil {
		return "", 0, err
	}
	log := logger.WithIncident(incidentID.String(), "report_generator")
	log.WithFields(map[string]interface{}{
		"prompt_bytes": len(prompt),
		"max_bytes":    g.cfg.MaxPromptBytes,
		"chunks":       len(chunks),
	}).Info("Prompt exceeds size limit, summarizing logs in chunks")

	summaries := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		chunkPrompt, err := BuildChunkSummaryPrompt(chunk, i+1, len(chunks))
		if err != nil {
			return "", i, err
		}
		summary, err := g.complete(ctx, incidentID, "chunk_summary", chunkPrompt)
		if err != nil {
			return "", i, fmt.Errorf("chunk %d of %d: %w", i+1, len(chunks), err)
		}
		summaries = append(summaries, summary)
	}

	summaries, err = g.mergeNotes(ctx, incidentID, summaries)
	if err != nil {
		return "", len(chunks), err
	}

	final := BuildChunkedReportPrompt(summaries)
	if len(final) > g.cfg.MaxPromptBytes {
		// a single log or a single merged note larger than the limit
		log.WithFields(map[string]interface{}{
			"prompt_bytes": len(final),
			"max_bytes":    g.cfg.MaxPromptBytes,
		}).Warn("Report prompt still exceeds size limit")
	}
	text, err := g.complete(ctx, incidentID, "chunked_report", final)
	return text, len(chunks), err
}

// mergeNotes merges consecutive notes until the final report prompt fits
// the size limit or one note is left.
func (g *ReportGenerator) mergeNotes(ctx context.Context, incidentID uuid.UUID, notes []string) ([]string, error) {
	for len(notes) > 1 && len(BuildChunkedReportPrompt(notes)) > g.cfg.MaxPromptBytes {
		groups := GroupNotes(notes, g.cfg.MaxPromptBytes)
		merged := make([]string, 0, len(groups))
		for i, group := range groups {
			if len(group) == 1 {
				merged = append(merged, group[0])
				continue
			}
			note, err := g.complete(ctx, incidentID, "notes_merge", BuildMergeNotesPrompt(group))
			if err != nil {
				return nil, fmt.Errorf("merge notes %d of %d: %w", i+1, len(groups), err)
			}
			merged = append(merged, note)
		}
		notes = merged
	}
	return notes, nil
}

func (g *ReportGenerator) complete(ctx context.Context, incidentID uuid.UUID, callType, prompt string) (string, error) {
	resp, err := g.provider.Complete(ctx, llm.CompletionRequest{
		Model:       g.cfg.Model,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		Temperature: g.cfg.Temperature,
		CallType:    callType,
		IncidentID:  incidentID.String(),
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// Preview returns the first n characters of text followed by "..." when
// text has at least n characters, and text unchanged otherwise.
func Preview(text string, n int) string {
	if n <= 0 || utf8.RuneCountInString(text) < n {
		return text
	}
	runes := []rune(text)
	return string(runes[:n]) + "..."
}
