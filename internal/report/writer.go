package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"basegraph.app/scribe/common"
)

var ErrEmptyReport = errors.New("report content cannot be empty")

// Renderer converts report markdown into a PDF document.
type Renderer interface {
	RenderPDF(ctx context.Context, markdown, title string) ([]byte, error)
}

// Files are the paths written for one report. PDFPath is empty when no PDF
// was requested or rendering failed.
type Files struct {
	MarkdownPath string
	PDFPath      string
	Content      string
}

// Writer stores finished reports under a directory.
type Writer struct {
	dir      string
	renderer Renderer
	now      func() time.Time
}

type WriterOption func(*Writer)

// WithRenderer enables PDF output alongside the markdown file.
func WithRenderer(r Renderer) WriterOption {
	return func(w *Writer) { w.renderer = r }
}

// WithClock overrides the time used for file names and the header.
func WithClock(now func() time.Time) WriterOption {
	return func(w *Writer) { w.now = now }
}

func NewWriter(dir string, opts ...WriterOption) (*Writer, error) {
	if dir == "" {
		return nil, fmt.Errorf("report output directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating report directory: %w", err)
	}

	w := &Writer{dir: dir, now: time.Now}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Compose builds the document body: title, generation time, report and the
// references section when there is one.
func Compose(company, report, references string, at time.Time) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s Financial Report Summary\n\n", strings.TrimSpace(company))
	fmt.Fprintf(&sb, "*Generated on %s at %s*\n\n", at.Format("January 2, 2006"), at.Format("3:04 PM"))
	sb.WriteString(report)
	if references != "" {
		sb.WriteString("\n\n")
		sb.WriteString(references)
	}
	return sb.String()
}

// FileName is "<Company>_FinancialReport_<yyyyMMdd_HHmmss>" plus ext.
func FileName(company string, at time.Time, ext string) (string, error) {
	stem, err := common.FileStem(company, "Company")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s_FinancialReport_%s%s", stem, at.Format("20060102_150405"), ext), nil
}

// Write stores the composed report as markdown and, with a renderer, as PDF.
// A PDF failure is logged and leaves PDFPath empty; the markdown stays.
func (w *Writer) Write(ctx context.Context, company, report, references string) (Files, error) {
	if strings.TrimSpace(report) == "" {
		return Files{}, ErrEmptyReport
	}

	at := w.now()
	content := Compose(company, report, references, at)

	name, err := FileName(company, at, ".md")
	if err != nil {
		return Files{}, err
	}
	mdPath := filepath.Join(w.dir, name)
	if err := writeFileAtomic(mdPath, []byte(content)); err != nil {
		return Files{}, err
	}

	files := Files{MarkdownPath: mdPath, Content: content}
	if w.renderer == nil {
		return files, nil
	}

	pdf, err := w.renderer.RenderPDF(ctx, content, fmt.Sprintf("%s Financial Report", company))
	if err != nil {
		slog.WarnContext(ctx, "pdf rendering failed, keeping markdown only",
			"error", err,
			"markdown_path", mdPath)
		return files, nil
	}

	pdfPath := strings.TrimSuffix(mdPath, ".md") + ".pdf"
	if err := writeFileAtomic(pdfPath, pdf); err != nil {
		slog.WarnContext(ctx, "failed to write pdf", "error", err, "pdf_path", pdfPath)
		return files, nil
	}
	files.PDFPath = pdfPath
	return files, nil
}

// writeFileAtomic writes to a temp file and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("writing temp report: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming report: %w", err)
	}
	return nil
}
