package services

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf16"

	"github.com/google/uuid"
	"github.com/roshni/backend/internal/db"
	"github.com/roshni/backend/internal/db/dbtest"
	"github.com/roshni/backend/internal/lease"
	"github.com/roshni/backend/internal/llm"
	"github.com/roshni/backend/internal/models"
	"github.com/roshni/backend/internal/render"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// fakeProvider records prompts and answers with reply.
type fakeProvider struct {
	mu      sync.Mutex
	prompts []string
	types   []string
	reply   func(prompt string, call int) (string, error)
}

func (f *fakeProvider) Name() string { return "fake" }
func (f *fakeProvider) Heartbeat(context.Context) error { return nil }

func (f *fakeProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.Completion, error) {
	f.mu.Lock()
	call := len(f.prompts)
	f.prompts = append(f.prompts, req.Messages[0].Content)
	f.types = append(f.types, req.CallType)
	f.mu.Unlock()

	text, err := f.reply(req.Messages[0].Content, call)
	if err != nil {
		return nil, err
	}
	return &llm.Completion{Content: text, Model: req.Model}, nil
}

func (f *fakeProvider) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

func replyWith(text string) func(string, int) (string, error) {
	return func(string, int) (string, error) { return text, nil }
}

type generatorFixture struct {
	conn     *gorm.DB
	logs     *db.LogRepository
	reports  *db.ReportRepository
	renderer *render.PDFRenderer
	provider *fakeProvider
	gen      *ReportGenerator
}

func newGeneratorFixture(t *testing.T, cfg ReportGeneratorConfig) *generatorFixture {
	t.Helper()
	conn := dbtest.Open(t)
	renderer := render.NewPDFRenderer(filepath.Join(t.TempDir(), "reports"))
	renderer.Compress = false

	f := &generatorFixture{
		conn:     conn,
		logs:     db.NewLogRepository(conn),
		reports:  db.NewReportRepository(conn),
		renderer: renderer,
		provider: &fakeProvider{reply: replyWith("Summary\nNothing happened.")},
	}
	f.gen = NewReportGenerator(f.logs, f.reports, f.provider, renderer, lease.NewManager(), cfg)
	return f
}

func (f *generatorFixture) addLog(t *testing.T, incident uuid.UUID, at time.Time, eventType, source, data string) models.DisasterLog {
	t.Helper()
	ts := at.UTC()
	log := models.DisasterLog{IncidentID: incident, Timestamp: &ts, EventType: eventType, SourceType: source}
	if data != "" {
		log.Data = datatypes.JSON(data)
	}
	if err := f.logs.Create(context.Background(), &log); err != nil {
		t.Fatalf("create log: %v", err)
	}
	return log
}

func (f *generatorFixture) reportCount(t *testing.T, incident uuid.UUID) int64 {
	t.Helper()
	var n int64
	if err := f.conn.Model(&models.IncidentReport{}).Where("incident_id = ?", incident).Count(&n).Error; err != nil {
		t.Fatal(err)
	}
	return n
}

// pdfString is s as a UTF-16BE PDF string literal, the way report bodies are
// written. s must not contain parentheses or backslashes.
func pdfString(s string) []byte {
	b := []byte{'('}
	for _, u := range utf16.Encode([]rune(s)) {
		b = append(b, byte(u>>8), byte(u))
	}
	return append(b, ')')
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestGenerateNoLogs(t *testing.T) {
	f := newGeneratorFixture(t, ReportGeneratorConfig{})
	incident := uuid.New()

	_, err := f.gen.Generate(context.Background(), incident)
	if !errors.Is(err, ErrNoLogs) {
		t.Fatalf("expected ErrNoLogs, got %v", err)
	}
	if f.provider.calls() != 0 {
		t.Error("completion service must not be called without logs")
	}
	if n := f.reportCount(t, incident); n != 0 {
		t.Errorf("expected no report rows, got %d", n)
	}
	if fileExists(f.renderer.PathFor(incident)) {
		t.Error("no document should be written")
	}
}

func TestGenerateFloodScenario(t *testing.T) {
	f := newGeneratorFixture(t, ReportGeneratorConfig{Model: "gpt-4o", Temperature: 0.2, PreviewChars: 300})
	incident := uuid.New()
	other := uuid.New()
	base := time.Date(2025, 8, 2, 6, 0, 0, 0, time.UTC)

	// inserted out of order on purpose
	rescue := f.addLog(t, incident, base.Add(45*time.Minute), "rescue_dispatch", models.SourceResponder, `{"team":"boat-2"}`)
	foreign := f.addLog(t, other, base.Add(10*time.Minute), "wildfire_alert", models.SourceSensor, "")
	flood := f.addLog(t, incident, base, "flood_alert", models.SourceSensor, `{"water_level_cm":180}`)

	body := "Summary\nThe river breached at 06:00.\n" + strings.Repeat("Boat team 2 evacuated residents. ", 20)
	f.provider.reply = replyWith(body)

	result, err := f.gen.Generate(context.Background(), incident)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if f.provider.calls() != 1 {
		t.Fatalf("expected one completion call, got %d", f.provider.calls())
	}
	prompt := f.provider.prompts[0]
	floodAt := strings.Index(prompt, flood.LogID.String())
	rescueAt := strings.Index(prompt, rescue.LogID.String())
	if floodAt < 0 || rescueAt < 0 {
		t.Fatal("prompt must contain every log of the incident")
	}
	if floodAt > rescueAt {
		t.Error("flood_alert must precede rescue_dispatch in the prompt")
	}
	if strings.Contains(prompt, foreign.LogID.String()) || strings.Contains(prompt, "wildfire_alert") {
		t.Error("prompt must not contain logs of other incidents")
	}

	stored, err := f.reports.Get(context.Background(), result.ReportID)
	if err != nil {
		t.Fatalf("report not stored: %v", err)
	}
	if stored.DraftText != body {
		t.Error("stored body must equal the completion text")
	}
	if stored.IncidentID != incident {
		t.Errorf("report attached to %s", stored.IncidentID)
	}

	if result.PDFPath != f.renderer.PathFor(incident) {
		t.Errorf("pdf path = %q, want %q", result.PDFPath, f.renderer.PathFor(incident))
	}
	if !fileExists(result.PDFPath) {
		t.Error("pdf not written")
	}
	if result.Preview != string([]rune(body)[:300])+"..." {
		t.Errorf("unexpected preview %q", result.Preview)
	}
}

func TestGenerateRepeatedOverwritesDocument(t *testing.T) {
	f := newGeneratorFixture(t, ReportGeneratorConfig{})
	incident := uuid.New()
	f.addLog(t, incident, time.Now(), "flood_alert", models.SourceSensor, "")

	f.provider.reply = func(_ string, call int) (string, error) {
		if call == 0 {
			return "first draft text", nil
		}
		return "second draft text", nil
	}

	first, err := f.gen.Generate(context.Background(), incident)
	if err != nil {
		t.Fatal(err)
	}
	second, err := f.gen.Generate(context.Background(), incident)
	if err != nil {
		t.Fatal(err)
	}

	if first.ReportID == second.ReportID {
		t.Error("each generation must create a new report")
	}
	if n := f.reportCount(t, incident); n != 2 {
		t.Errorf("expected 2 report rows, got %d", n)
	}
	if first.PDFPath != second.PDFPath {
		t.Error("both generations must share the document path")
	}

	data, err := os.ReadFile(second.PDFPath)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(data, pdfString("second draft text")) || bytes.Contains(data, pdfString("first draft text")) {
		t.Error("document must contain the second report only")
	}

	entries, _ := os.ReadDir(f.renderer.Dir())
	if len(entries) != 1 {
		t.Errorf("expected exactly one file in the report dir, got %d", len(entries))
	}
}

func TestGenerateShortBodyPreview(t *testing.T) {
	f := newGeneratorFixture(t, ReportGeneratorConfig{PreviewChars: 300})
	incident := uuid.New()
	f.addLog(t, incident, time.Now(), "flood_alert", models.SourceSensor, "")
	f.provider.reply = replyWith("Short report.")

	result, err := f.gen.Generate(context.Background(), incident)
	if err != nil {
		t.Fatal(err)
	}
	if result.Preview != "Short report." {
		t.Errorf("short bodies are not truncated, got %q", result.Preview)
	}
}

func TestGenerateUpstreamFailure(t *testing.T) {
	f := newGeneratorFixture(t, ReportGeneratorConfig{})
	incident := uuid.New()
	f.addLog(t, incident, time.Now(), "flood_alert", models.SourceSensor, "")
	f.provider.reply = func(string, int) (string, error) {
		return "", &llm.UpstreamError{Provider: "fake", Kind: llm.KindPermanent, StatusCode: 401, Err: errors.New("bad key")}
	}

	_, err := f.gen.Generate(context.Background(), incident)
	var ue *llm.UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("expected *llm.UpstreamError, got %v", err)
	}
	if n := f.reportCount(t, incident); n != 0 {
		t.Errorf("expected no rows, got %d", n)
	}
	if fileExists(f.renderer.PathFor(incident)) {
		t.Error("no document should be written")
	}
}

type failingRenderer struct{}

func (failingRenderer) Render(string, uuid.UUID) (*render.Document, error) {
	return nil, errors.New("disk full")
}

func TestGenerateRenderFailureStoresNothing(t *testing.T) {
	f := newGeneratorFixture(t, ReportGeneratorConfig{})
	incident := uuid.New()
	f.addLog(t, incident, time.Now(), "flood_alert", models.SourceSensor, "")
	gen := NewReportGenerator(f.logs, f.reports, f.provider, failingRenderer{}, nil, ReportGeneratorConfig{})

	_, err := gen.Generate(context.Background(), incident)
	var re *RenderError
	if !errors.As(err, &re) {
		t.Fatalf("expected *RenderError, got %v", err)
	}
	if n := f.reportCount(t, incident); n != 0 {
		t.Errorf("render failure must not leave a row, got %d", n)
	}
}

type failingStore struct{}

func (failingStore) CreatePublished(context.Context, *models.IncidentReport, func() error) error {
	return errors.New("connection reset")
}

func TestGeneratePersistenceFailurePublishesNothing(t *testing.T) {
	f := newGeneratorFixture(t, ReportGeneratorConfig{})
	incident := uuid.New()
	f.addLog(t, incident, time.Now(), "flood_alert", models.SourceSensor, "")
	gen := NewReportGenerator(f.logs, failingStore{}, f.provider, f.renderer, nil, ReportGeneratorConfig{})

	_, err := gen.Generate(context.Background(), incident)
	var pe *PersistenceError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *PersistenceError, got %v", err)
	}
	entries, _ := os.ReadDir(f.renderer.Dir())
	if len(entries) != 0 {
		t.Errorf("expected no files after a failed insert, got %d", len(entries))
	}
}

// publishThenFailStore runs publish and then reports a failed commit.
type publishThenFailStore struct{}

func (publishThenFailStore) CreatePublished(_ context.Context, _ *models.IncidentReport, publish func() error) error {
	if err := publish(); err != nil {
		return err
	}
	return errors.New("commit failed")
}

func TestGenerateCommitFailureRemovesDocument(t *testing.T) {
	f := newGeneratorFixture(t, ReportGeneratorConfig{})
	incident := uuid.New()
	f.addLog(t, incident, time.Now(), "flood_alert", models.SourceSensor, "")
	gen := NewReportGenerator(f.logs, publishThenFailStore{}, f.provider, f.renderer, nil, ReportGeneratorConfig{})

	_, err := gen.Generate(context.Background(), incident)
	var pe *PersistenceError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *PersistenceError, got %v", err)
	}
	if fileExists(f.renderer.PathFor(incident)) {
		t.Error("document published before a failed commit must be removed")
	}
}

func TestGenerateRejectsConcurrentGeneration(t *testing.T) {
	f := newGeneratorFixture(t, ReportGeneratorConfig{})
	incident := uuid.New()
	f.addLog(t, incident, time.Now(), "flood_alert", models.SourceSensor, "")

	entered := make(chan struct{})
	unblock := make(chan struct{})
	f.provider.reply = func(string, int) (string, error) {
		close(entered)
		<-unblock
		return "report", nil
	}

	errc := make(chan error, 1)
	go func() {
		_, err := f.gen.Generate(context.Background(), incident)
		errc <- err
	}()
	<-entered

	if _, err := f.gen.Generate(context.Background(), incident); !errors.Is(err, ErrGenerationInProgress) {
		t.Errorf("expected ErrGenerationInProgress, got %v", err)
	}

	close(unblock)
	if err := <-errc; err != nil {
		t.Fatalf("first generation failed: %v", err)
	}
	if n := f.reportCount(t, incident); n != 1 {
		t.Errorf("expected one report, got %d", n)
	}
}

func TestGenerateChunksLargeLogSets(t *testing.T) {
	f := newGeneratorFixture(t, ReportGeneratorConfig{MaxPromptBytes: len(CHUNK_SUMMARY_PROMPT) + 400})
	incident := uuid.New()
	base := time.Date(2025, 8, 2, 6, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 6; i++ {
		l := f.addLog(t, incident, base.Add(time.Duration(i)*time.Minute), "sensor_reading", models.SourceSensor, `{"water_level_cm":150}`)
		ids = append(ids, l.LogID.String())
	}

	f.provider.reply = func(prompt string, call int) (string, error) {
		if strings.HasPrefix(prompt, "You are an emergency incident reporting AI preparing notes") {
			return "notes", nil
		}
		return "final report", nil
	}

	result, err := f.gen.Generate(context.Background(), incident)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if result.Chunks < 2 {
		t.Fatalf("expected several chunks, got %d", result.Chunks)
	}
	if f.provider.calls() != result.Chunks+1 {
		t.Errorf("expected %d calls, got %d", result.Chunks+1, f.provider.calls())
	}
	if last := f.provider.types[len(f.provider.types)-1]; last != "chunked_report" {
		t.Errorf("last call type = %s", last)
	}

	// every log is summarized exactly once, in order
	joined := strings.Join(f.provider.prompts[:result.Chunks], "\n")
	prev := -1
	for _, id := range ids {
		at := strings.Index(joined, id)
		if at < 0 || at < prev {
			t.Fatalf("log %s missing or out of order in chunk prompts", id)
		}
		prev = at
	}
	stored, err := f.reports.Get(context.Background(), result.ReportID)
	if err != nil || stored.DraftText != "final report" {
		t.Errorf("unexpected stored report %+v, %v", stored, err)
	}
}

func TestGenerateMergesNotesOverLimit(t *testing.T) {
	const maxBytes = 1200
	f := newGeneratorFixture(t, ReportGeneratorConfig{MaxPromptBytes: maxBytes})
	incident := uuid.New()
	base := time.Date(2025, 8, 2, 6, 0, 0, 0, time.UTC)
	for i := 0; i < 12; i++ {
		f.addLog(t, incident, base.Add(time.Duration(i)*time.Minute), "sensor_reading", models.SourceSensor, `{"water_level_cm":150}`)
	}

	f.provider.reply = func(prompt string, call int) (string, error) {
		switch {
		case strings.Contains(prompt, "Merge the notes below"):
			return "merged notes", nil
		case strings.HasPrefix(prompt, "You are an emergency incident reporting AI preparing notes"):
			return strings.Repeat("n", 300), nil
		}
		return "final report", nil
	}

	result, err := f.gen.Generate(context.Background(), incident)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if result.Chunks < 3 {
		t.Fatalf("expected at least 3 chunks, got %d", result.Chunks)
	}

	merges := 0
	for i, prompt := range f.provider.prompts {
		if len(prompt) > maxBytes {
			t.Errorf("%s prompt is %d bytes, limit %d", f.provider.types[i], len(prompt), maxBytes)
		}
		if f.provider.types[i] == "notes_merge" {
			merges++
		}
	}
	if merges == 0 {
		t.Error("oversized notes should be merged before the final report")
	}
	if last := f.provider.types[len(f.provider.types)-1]; last != "chunked_report" {
		t.Errorf("last call type = %s", last)
	}
	final := f.provider.prompts[len(f.provider.prompts)-1]
	if !strings.Contains(final, "merged notes") {
		t.Error("final prompt should embed the merged notes")
	}
}

func TestGenerateChunkPromptsWithinLimit(t *testing.T) {
	const maxBytes = 900
	f := newGeneratorFixture(t, ReportGeneratorConfig{MaxPromptBytes: maxBytes})
	incident := uuid.New()
	base := time.Date(2025, 8, 2, 6, 0, 0, 0, time.UTC)
	for i := 0; i < 25; i++ {
		f.addLog(t, incident, base.Add(time.Duration(i)*time.Minute), "civilian_report", models.SourceCivilian, `{"message":"water entering ground floor"}`)
	}
	f.provider.reply = replyWith("notes")

	result, err := f.gen.Generate(context.Background(), incident)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if result.Chunks < 10 {
		t.Fatalf("expected two-digit chunk numbering, got %d chunks", result.Chunks)
	}
	for i, prompt := range f.provider.prompts {
		if len(prompt) > maxBytes {
			t.Errorf("%s prompt is %d bytes, limit %d", f.provider.types[i], len(prompt), maxBytes)
		}
	}
}

func TestPreview(t *testing.T) {
	tests := []struct {
		name string
		text string
		n    int
		want string
	}{
		{"shorter than limit", "abc", 5, "abc"},
		{"exactly the limit", "abcde", 5, "abcde..."},
		{"longer than limit", "abcdefgh", 5, "abcde..."},
		{"counts characters not bytes", "héllo wörld", 5, "héllo..."},
		{"empty", "", 5, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Preview(tt.text, tt.n); got != tt.want {
				t.Errorf("Preview(%q, %d) = %q, want %q", tt.text, tt.n, got, tt.want)
			}
		})
	}
}
