// Package ingest turns the files of the data directory into labelled text
// records ready for chunking.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"tejas.dev/portfolio-api/internal/domain"
	"tejas.dev/portfolio-api/internal/logger"
)

// FileSummary describes one file seen during a load.
type FileSummary struct {
	Path     string            `json:"path"`
	Filename string            `json:"filename"`
	Label    string            `json:"label"`
	Kind     domain.SourceKind `json:"kind"`
	Format   domain.Format     `json:"format"`
	Records  int               `json:"records"`
}

// Result is the output of a load. Errors lists files that were skipped.
type Result struct {
	Records []domain.Record
	Files   []FileSummary
	Errors  []*domain.LoadError
}

// Loader reads source documents from a directory.
type Loader struct{}

func NewLoader() *Loader {
	return &Loader{}
}

// Load walks dir in lexical order and converts every supported file into
// records. A file that cannot be read or parsed is logged and skipped; it
// never aborts the load. A missing directory yields an empty result.
func (l *Loader) Load(ctx context.Context, dir string) (*Result, error) {
	res := &Result{}

	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warn("Data directory does not exist, nothing to load", "dir", dir)
			return res, nil
		}
		return nil, fmt.Errorf("stat data dir %s: %w", dir, err)
	}

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			res.skip(path, walkErr)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") && path != dir {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		format, ok := formatFor(path)
		if !ok {
			return nil
		}

		raw, err := os.ReadFile(path)
		if err != nil {
			res.skip(path, err)
			return nil
		}

		doc := domain.SourceDocument{
			Path:     path,
			Filename: filepath.Base(path),
			Format:   format,
			Raw:      raw,
		}
		records, kind, err := l.LoadDocument(doc)
		if err != nil {
			res.skip(path, err)
			return nil
		}

		res.Records = append(res.Records, records...)
		res.Files = append(res.Files, FileSummary{
			Path:     path,
			Filename: doc.Filename,
			Label:    domain.Label(doc.Filename, kind),
			Kind:     kind,
			Format:   format,
			Records:  len(records),
		})
		logger.Debug("Loaded source file", "path", path, "kind", kind, "records", len(records))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk data dir %s: %w", dir, err)
	}

	return res, nil
}

// LoadDocument converts a single source document into records and reports the
// kind they were classified as.
func (l *Loader) LoadDocument(doc domain.SourceDocument) ([]domain.Record, domain.SourceKind, error) {
	switch doc.Format {
	case domain.FormatPDF:
		return loadPDF(doc)
	case domain.FormatYAML, domain.FormatJSON:
		return loadStructured(doc)
	case domain.FormatMarkdown:
		return loadMarkdown(doc)
	case domain.FormatText:
		return loadText(doc)
	default:
		return nil, "", fmt.Errorf("unsupported format %q", doc.Format)
	}
}

func (r *Result) skip(path string, err error) {
	loadErr := &domain.LoadError{Path: path, Err: err}
	r.Errors = append(r.Errors, loadErr)
	logger.Warn("Skipping source file", "path", path, "error", err)
}

func formatFor(path string) (domain.Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return domain.FormatPDF, true
	case ".yaml", ".yml":
		return domain.FormatYAML, true
	case ".json":
		return domain.FormatJSON, true
	case ".md", ".markdown":
		return domain.FormatMarkdown, true
	case ".txt":
		return domain.FormatText, true
	default:
		return "", false
	}
}

func newRecord(doc domain.SourceDocument, kind domain.SourceKind, text string) domain.Record {
	return domain.Record{
		Text:     text,
		Label:    domain.Label(doc.Filename, kind),
		Kind:     kind,
		Filename: doc.Filename,
		Path:     doc.Path,
	}
}

func stem(filename string) string {
	return strings.ToLower(strings.TrimSuffix(filename, filepath.Ext(filename)))
}

func loadText(doc domain.SourceDocument) ([]domain.Record, domain.SourceKind, error) {
	text := strings.TrimSpace(string(doc.Raw))
	if text == "" {
		return nil, domain.KindNotes, nil
	}
	return []domain.Record{newRecord(doc, domain.KindNotes, text)}, domain.KindNotes, nil
}
