package controllers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/roshni/backend/internal/llm"
	"github.com/roshni/backend/internal/models"
	"github.com/roshni/backend/internal/services"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestGenerationErrorStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"no logs", services.ErrNoLogs, http.StatusNotFound},
		{"lease held", services.ErrGenerationInProgress, http.StatusConflict},
		{"transient upstream", &llm.UpstreamError{Kind: llm.KindTransient, Err: errors.New("timeout")}, http.StatusServiceUnavailable},
		{"permanent upstream", &llm.UpstreamError{Kind: llm.KindPermanent, StatusCode: 401, Err: errors.New("bad key")}, http.StatusBadGateway},
		{"wrapped upstream", fmt.Errorf("chunk 1 of 2: %w", &llm.UpstreamError{Kind: llm.KindPermanent}), http.StatusBadGateway},
		{"render", &services.RenderError{Err: errors.New("disk full")}, http.StatusInternalServerError},
		{"persistence", &services.PersistenceError{Err: errors.New("db down")}, http.StatusInternalServerError},
		{"unknown", errors.New("something else"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got, _ := generationErrorStatus(tt.err); got != tt.want {
				t.Errorf("generationErrorStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

type generatorFunc func(ctx context.Context, incidentID uuid.UUID) (*services.GenerationResult, error)

func (f generatorFunc) Generate(ctx context.Context, incidentID uuid.UUID) (*services.GenerationResult, error) {
	return f(ctx, incidentID)
}

type queueStub struct {
	err error
}

func (q queueStub) CreateGenerationJob(ctx context.Context, incidentID uuid.UUID, requestedBy *uuid.UUID) (*models.GenerationJob, error) {
	if q.err != nil {
		return nil, q.err
	}
	return &models.GenerationJob{JobID: uuid.New(), IncidentID: incidentID, Status: models.JobStatusPending}, nil
}

func (q queueStub) GetJobStatus(ctx context.Context, jobID uuid.UUID) (*models.GenerationJob, error) {
	return nil, gorm.ErrRecordNotFound
}

func serve(ac *AIReportController, method, path string) *httptest.ResponseRecorder {
	r := gin.New()
	r.POST("/ai-reports/generate/:incident_id", ac.GenerateReport)
	r.GET("/ai-reports/jobs/:job_id", ac.GetJob)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestGenerateReportResponse(t *testing.T) {
	reportID := uuid.New()
	incidentID := uuid.New()
	ac := NewAIReportController(generatorFunc(func(ctx context.Context, id uuid.UUID) (*services.GenerationResult, error) {
		if id != incidentID {
			t.Errorf("generator got incident %s", id)
		}
		return &services.GenerationResult{ReportID: reportID, PDFPath: "data/reports/x.pdf", Preview: "Summary"}, nil
	}), queueStub{})

	w := serve(ac, http.MethodPost, "/ai-reports/generate/"+incidentID.String())
	want := `{"message":"AI Report generated successfully","report_id":"` + reportID.String() + `","pdf_path":"data/reports/x.pdf","preview":"Summary"}`
	if w.Code != http.StatusOK || w.Body.String() != want {
		t.Errorf("got %d %s", w.Code, w.Body.String())
	}
}

func TestGenerateReportQueueUnavailable(t *testing.T) {
	ac := NewAIReportController(nil, queueStub{err: services.ErrQueueFull})
	w := serve(ac, http.MethodPost, "/ai-reports/generate/"+uuid.NewString()+"?async=1")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d", w.Code)
	}

	w = serve(ac, http.MethodGet, "/ai-reports/jobs/"+uuid.NewString())
	if w.Code != http.StatusNotFound {
		t.Errorf("job status = %d", w.Code)
	}
	w = serve(ac, http.MethodGet, "/ai-reports/jobs/42")
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("malformed job id status = %d", w.Code)
	}
}
