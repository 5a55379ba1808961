package report

import (
	"bytes"
	"context"
	"fmt"
	stdhtml "html"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

const pdfStyle = `
body { font-family: "Segoe UI", Arial, sans-serif; margin: 0; color: #222; line-height: 1.5; font-size: 11pt; }
h1 { color: #1f3864; border-bottom: 2px solid #1f3864; padding-bottom: 4px; }
h2 { color: #2f5496; margin-top: 24px; }
h3 { color: #2f5496; }
table { border-collapse: collapse; width: 100%; margin: 12px 0; }
th, td { border: 1px solid #bbb; padding: 6px 8px; text-align: left; }
th { background: #e7ecf5; }
tr:nth-child(even) td { background: #f7f9fc; }
code { background: #f3f3f3; padding: 1px 4px; }
a { color: #2f5496; }
`

// A4 in inches.
const (
	a4Width  = 8.27
	a4Height = 11.69
)

// ChromeRenderer prints markdown to PDF through a headless Chrome.
type ChromeRenderer struct {
	md      goldmark.Markdown
	timeout time.Duration
	opts    []chromedp.ExecAllocatorOption
}

func NewChromeRenderer(timeout time.Duration) *ChromeRenderer {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &ChromeRenderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithUnsafe()),
		),
		timeout: timeout,
		opts: append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
		),
	}
}

// HTML renders markdown into a standalone styled page.
func (r *ChromeRenderer) HTML(markdown, title string) (string, error) {
	var body bytes.Buffer
	if err := r.md.Convert([]byte(markdown), &body); err != nil {
		return "", fmt.Errorf("converting markdown: %w", err)
	}
	return fmt.Sprintf("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>%s</title><style>%s</style></head><body>%s</body></html>",
		stdhtml.EscapeString(title), pdfStyle, body.String()), nil
}

func (r *ChromeRenderer) RenderPDF(ctx context.Context, markdown, title string) ([]byte, error) {
	doc, err := r.HTML(markdown, title)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, r.opts...)
	defer allocCancel()
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	var pdf []byte
	err = chromedp.Run(browserCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, doc).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			buf, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(a4Width).
				WithPaperHeight(a4Height).
				WithMarginTop(0.4).
				WithMarginBottom(0.4).
				WithMarginLeft(0.4).
				WithMarginRight(0.4).
				Do(ctx)
			if err != nil {
				return err
			}
			pdf = buf
			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("printing pdf: %w", err)
	}
	return pdf, nil
}
