package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"tejas.dev/portfolio-api/internal/domain"
)

// PageBreak separates the text of consecutive PDF pages.
const PageBreak = "\n\n--- page break ---\n\n"

var errNoPDFText = errors.New("no extractable text in pdf")

func loadPDF(doc domain.SourceDocument) ([]domain.Record, domain.SourceKind, error) {
	kind := domain.KindPDF
	if stem(doc.Filename) == "resume" {
		kind = domain.KindResume
	}

	text, err := ExtractPDFText(doc.Raw)
	if err != nil {
		return nil, kind, err
	}
	return []domain.Record{newRecord(doc, kind, text)}, kind, nil
}

// ExtractPDFText returns the plain text of every page joined by PageBreak.
// Pages without text are skipped. The parser panics on some malformed files,
// so panics are turned into errors.
func ExtractPDFText(raw []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf parser panic: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	numPages := reader.NumPage()
	pages := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("read pdf page %d: %w", i, err)
		}
		pageText = strings.TrimSpace(pageText)
		if pageText == "" {
			continue
		}
		pages = append(pages, pageText)
	}

	if len(pages) == 0 {
		return "", errNoPDFText
	}
	return strings.Join(pages, PageBreak), nil
}
