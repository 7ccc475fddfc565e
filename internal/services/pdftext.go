package services

import (
	"fmt"
	"log/slog"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PageTextReader returns the text of every page of a local PDF, in page order.
type PageTextReader interface {
	ReadPages(path string) ([]string, error)
}

// PDFTextReader validates a PDF with pdfcpu and reads its text layer with ledongthuc/pdf.
type PDFTextReader struct{}

func (PDFTextReader) ReadPages(path string) (pages []string, err error) {
	// The text layer parser panics on some malformed content streams.
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("read pdf text %s: panic: %v", path, r)
		}
	}()

	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	if err := api.ValidateFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to validate PDF: %w", err)
	}

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	n := r.NumPage()
	pages = make([]string, 0, n)
	for i := 1; i <= n; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to read text of page %d: %w", i, err)
		}
		pages = append(pages, text)
	}
	slog.Debug("Read PDF text layer.", "path", path, "pageCount", n)
	return pages, nil
}
