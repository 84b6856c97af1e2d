// Package render turns report text into PDF documents on disk.
package render

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/go-pdf/fpdf"
	"github.com/google/uuid"
	"golang.org/x/image/font/gofont/goregular"
)

const bodyFont = "report"

// PDFRenderer writes A4 documents with one flowing paragraph style.
type PDFRenderer struct {
	dir  string
	font []byte // TrueType body font

	// Compress toggles stream compression; tests turn it off to inspect text.
	Compress bool
}

// NewPDFRenderer returns a renderer writing into dir. The body font is Go
// Regular, which covers Latin, Greek, Cyrillic and common symbols.
func NewPDFRenderer(dir string) *PDFRenderer {
	return &PDFRenderer{dir: dir, font: goregular.TTF, Compress: true}
}

// UseFontFile replaces the body font with a TrueType file, for reports in
// scripts Go Regular has no glyphs for.
func (r *PDFRenderer) UseFontFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read font: %w", err)
	}
	if err := checkFont(data); err != nil {
		return fmt.Errorf("font %s: %w", path, err)
	}
	r.font = data
	return nil
}

// checkFont lays out a one line document with the font so a broken file is
// reported at startup instead of on every render.
func checkFont(data []byte) (err error) {
	if len(data) < 4 || !(bytes.Equal(data[:4], []byte{0, 1, 0, 0}) || string(data[:4]) == "true") {
		return errors.New("not a TrueType font")
	}
	// fpdf indexes the table directory without bounds checks
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("malformed TrueType font: %v", p)
		}
	}()

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.AddUTF8FontFromBytes(bodyFont, "", data)
	pdf.AddPage()
	pdf.SetFont(bodyFont, "", 11)
	pdf.Cell(0, 5, "ROSHNI")
	return pdf.Output(io.Discard)
}

// Dir returns the output directory.
func (r *PDFRenderer) Dir() string { return r.dir }

// PathFor returns the published location for an incident's report. Repeated
// generations for the same incident share the path.
func (r *PDFRenderer) PathFor(incidentID uuid.UUID) string {
	return filepath.Join(r.dir, fmt.Sprintf("incident_report_%s.pdf", incidentID))
}

// Render writes text to a temporary file next to the final path. Nothing is
// visible at PathFor until the returned Document is published.
func (r *PDFRenderer) Render(text string, incidentID uuid.UUID) (*Document, error) {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}

	tmp, err := os.CreateTemp(r.dir, fmt.Sprintf(".incident_report_%s-*.pdf.tmp", incidentID))
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}

	pdf := r.build(text, incidentID)
	if err := pdf.Output(tmp); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("close pdf: %w", err)
	}

	return &Document{tempPath: tmp.Name(), finalPath: r.PathFor(incidentID)}, nil
}

func (r *PDFRenderer) build(text string, incidentID uuid.UUID) *fpdf.Fpdf {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(r.Compress)
	pdf.SetTitle(fmt.Sprintf("Incident report %s", incidentID), true)
	pdf.SetCreator("ROSHNI", true)
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 20)
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(0, 10, fmt.Sprintf("Page %d/{nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AliasNbPages("")
	pdf.AddUTF8FontFromBytes(bodyFont, "", r.font)
	pdf.AddPage()
	pdf.SetFont(bodyFont, "", 11)

	// MultiCell breaks on "\n"
	pdf.MultiCell(0, 5.5, bodyText(text), "", "L", false)
	return pdf
}

// bodyText replaces runes fpdf cannot encode. Its UTF-8 fonts address
// glyphs through 16-bit codes, so anything outside the Basic Multilingual
// Plane becomes U+FFFD, as do control characters other than line breaks
// and tabs.
func bodyText(text string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n':
			return r
		case r == '\r':
			return -1
		case r == '\t':
			return ' '
		case r > 0xFFFF, unicode.IsControl(r):
			return unicode.ReplacementChar
		}
		return r
	}, text)
}

// Document is a rendered, not yet published PDF.
type Document struct {
	tempPath   string
	finalPath  string
	backupPath string
	published  bool
}

// Path is where the document is (or will be) published.
func (d *Document) Path() string { return d.finalPath }

// Publish moves the document onto its final path. An existing file at that
// path is kept aside until Finalize or Rollback.
func (d *Document) Publish() error {
	if d.published {
		return nil
	}
	if _, err := os.Stat(d.finalPath); err == nil {
		d.backupPath = d.tempPath + ".prev"
		if err := os.Rename(d.finalPath, d.backupPath); err != nil {
			d.backupPath = ""
			return fmt.Errorf("set aside previous pdf: %w", err)
		}
	}
	if err := os.Rename(d.tempPath, d.finalPath); err != nil {
		if d.backupPath != "" {
			os.Rename(d.backupPath, d.finalPath)
			d.backupPath = ""
		}
		return fmt.Errorf("publish pdf: %w", err)
	}
	d.published = true
	return nil
}

// Finalize drops the previous version once the publish is durable.
func (d *Document) Finalize() {
	if d.backupPath != "" {
		os.Remove(d.backupPath)
		d.backupPath = ""
	}
}

// Rollback undoes Publish, restoring the previous file if there was one.
func (d *Document) Rollback() error {
	if !d.published {
		return nil
	}
	d.published = false
	if d.backupPath != "" {
		err := os.Rename(d.backupPath, d.finalPath)
		d.backupPath = ""
		return err
	}
	if err := os.Remove(d.finalPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Discard removes the unpublished temporary file.
func (d *Document) Discard() {
	if !d.published {
		os.Remove(d.tempPath)
	}
}
