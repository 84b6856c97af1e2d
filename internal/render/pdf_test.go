package render

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf16"

	"github.com/google/uuid"
	"golang.org/x/image/font/gofont/goregular"
)

// shown returns a line as fpdf writes it with a UTF-8 font: UTF-16BE inside
// a PDF string literal.
func shown(line string) []byte {
	var b bytes.Buffer
	b.WriteByte('(')
	for _, u := range utf16.Encode([]rune(line)) {
		for _, c := range []byte{byte(u >> 8), byte(u)} {
			switch c {
			case '(', ')', '\\':
				b.WriteByte('\\')
			case '\r':
				b.WriteString(`\r`)
				continue
			}
			b.WriteByte(c)
		}
	}
	b.WriteString(")Tj")
	return b.Bytes()
}

func newTestRenderer(t *testing.T) *PDFRenderer {
	t.Helper()
	r := NewPDFRenderer(filepath.Join(t.TempDir(), "reports"))
	r.Compress = false
	return r
}

func TestPathFor(t *testing.T) {
	r := NewPDFRenderer("/srv/reports")
	id := uuid.MustParse("5b3e1a52-8f0c-4c3b-9a37-0d5c7f6e2a10")

	want := "/srv/reports/incident_report_5b3e1a52-8f0c-4c3b-9a37-0d5c7f6e2a10.pdf"
	if got := r.PathFor(id); got != want {
		t.Errorf("PathFor() = %q, want %q", got, want)
	}
	if r.PathFor(id) != r.PathFor(id) {
		t.Error("PathFor must be deterministic")
	}
}

func TestRenderAndPublish(t *testing.T) {
	r := newTestRenderer(t)
	id := uuid.New()

	doc, err := r.Render("Summary\nRiver levels rose overnight.\nConclusion", id)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if _, err := os.Stat(doc.Path()); !os.IsNotExist(err) {
		t.Fatal("nothing should exist at the final path before Publish")
	}

	if err := doc.Publish(); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	doc.Finalize()

	data, err := os.ReadFile(doc.Path())
	if err != nil {
		t.Fatalf("read published pdf: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		t.Error("published file is not a PDF")
	}
	for _, line := range []string{"Summary", "River levels rose overnight.", "Conclusion"} {
		if !bytes.Contains(data, shown(line)) {
			t.Errorf("line %q not rendered on its own line", line)
		}
	}

	entries, _ := os.ReadDir(r.Dir())
	if len(entries) != 1 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("expected only the published file, found %s", strings.Join(names, ", "))
	}
}

func TestRenderLongTextPaginates(t *testing.T) {
	r := newTestRenderer(t)
	text := strings.Repeat("Responders evacuated the riverside blocks.\n", 200)

	doc, err := r.Render(text, uuid.New())
	if err != nil {
		t.Fatal(err)
	}
	defer doc.Discard()

	data, err := os.ReadFile(doc.tempPath)
	if err != nil {
		t.Fatal(err)
	}
	if pages := bytes.Count(data, []byte("/Type /Page\n")); pages < 2 {
		t.Errorf("expected several pages, got %d", pages)
	}
}

func TestPublishReplacesAndRollbackRestores(t *testing.T) {
	r := newTestRenderer(t)
	id := uuid.New()

	first, err := r.Render("first version", id)
	if err != nil {
		t.Fatal(err)
	}
	if err := first.Publish(); err != nil {
		t.Fatal(err)
	}
	first.Finalize()

	second, err := r.Render("second version", id)
	if err != nil {
		t.Fatal(err)
	}
	if err := second.Publish(); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(r.PathFor(id))
	if !bytes.Contains(data, shown("second version")) {
		t.Fatal("second publish should replace the file")
	}

	if err := second.Rollback(); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}
	data, _ = os.ReadFile(r.PathFor(id))
	if !bytes.Contains(data, shown("first version")) {
		t.Error("rollback should restore the previous file")
	}
}

func TestRollbackWithoutPreviousRemovesFile(t *testing.T) {
	r := newTestRenderer(t)
	doc, err := r.Render("only version", uuid.New())
	if err != nil {
		t.Fatal(err)
	}
	if err := doc.Publish(); err != nil {
		t.Fatal(err)
	}
	if err := doc.Rollback(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(doc.Path()); !os.IsNotExist(err) {
		t.Error("rolled back file should be gone")
	}
}

func TestDiscardRemovesTemp(t *testing.T) {
	r := newTestRenderer(t)
	doc, err := r.Render("draft", uuid.New())
	if err != nil {
		t.Fatal(err)
	}
	doc.Discard()

	entries, _ := os.ReadDir(r.Dir())
	if len(entries) != 0 {
		t.Errorf("expected empty dir after Discard, got %d entries", len(entries))
	}
}

func TestRenderKeepsUnicodeText(t *testing.T) {
	r := newTestRenderer(t)
	lines := []string{
		"Water level ≥ 4.2 m → evacuate ward 7",
		"Relief camp at पटना (Patna) opened",
		"Ωmega sector – 3 °C",
	}

	doc, err := r.Render(strings.Join(lines, "\n"), uuid.New())
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	defer doc.Discard()

	data, err := os.ReadFile(doc.tempPath)
	if err != nil {
		t.Fatal(err)
	}
	for _, line := range lines {
		if !bytes.Contains(data, shown(line)) {
			t.Errorf("line %q not rendered verbatim", line)
		}
	}
}

func TestBodyText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain\nlines", "plain\nlines"},
		{"crlf\r\nline", "crlf\nline"},
		{"tab\there", "tab here"},
		{"≥ → पटना", "≥ → पटना"},
		{"flood 🌊 alert", "flood \uFFFD alert"},
		{"bell\a", "bell\uFFFD"},
	}
	for _, tt := range tests {
		if got := bodyText(tt.in); got != tt.want {
			t.Errorf("bodyText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRenderOutsideBMP(t *testing.T) {
	r := newTestRenderer(t)
	doc, err := r.Render("Rescue boat 🚤 dispatched", uuid.New())
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	doc.Discard()
}

func TestUseFontFile(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "body.ttf")
	if err := os.WriteFile(good, goregular.TTF, 0o644); err != nil {
		t.Fatal(err)
	}
	notFont := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(notFont, []byte("not a font at all"), 0o644); err != nil {
		t.Fatal(err)
	}
	truncated := filepath.Join(dir, "truncated.ttf")
	if err := os.WriteFile(truncated, goregular.TTF[:64], 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"truetype file", good, false},
		{"missing file", filepath.Join(dir, "missing.ttf"), true},
		{"not a font", notFont, true},
		{"truncated font", truncated, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRenderer(t)
			err := r.UseFontFile(tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("UseFontFile() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			doc, err := r.Render("Summary", uuid.New())
			if err != nil {
				t.Fatalf("Render() error = %v", err)
			}
			doc.Discard()
		})
	}
}
