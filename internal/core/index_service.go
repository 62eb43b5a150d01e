package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tejas.dev/portfolio-api/internal/chunker"
	"tejas.dev/portfolio-api/internal/domain"
	"tejas.dev/portfolio-api/internal/embedding"
	"tejas.dev/portfolio-api/internal/index"
	"tejas.dev/portfolio-api/internal/ingest"
	"tejas.dev/portfolio-api/internal/logger"
	"tejas.dev/portfolio-api/internal/store"
)

// SnapshotStore persists the last built index so a restart can serve it
// without re-embedding.
type SnapshotStore interface {
	ReplaceIndexSnapshot(ctx context.Context, snap *store.Snapshot) error
	LoadIndexSnapshot(ctx context.Context) (*store.Snapshot, error)
}

// ReindexResult summarises a successful rebuild.
type ReindexResult struct {
	Chunks  int           `json:"chunks"`
	Files   int           `json:"files"`
	Skipped []string      `json:"skipped"`
	Elapsed time.Duration `json:"-"`
	BuiltAt time.Time     `json:"built_at"`
}

// SourcesReport is a live view of the data directory next to the served index.
type SourcesReport struct {
	Files         []domain.SourceSummary `json:"files"`
	Skipped       []string               `json:"skipped"`
	IndexedChunks int                    `json:"indexed_chunks"`
	IndexModel    string                 `json:"index_model,omitempty"`
	Dimensions    int                    `json:"dimensions,omitempty"`
	ChunkSize     int                    `json:"chunk_size"`
	ChunkOverlap  int                    `json:"chunk_overlap"`
	BuiltAt       *time.Time             `json:"built_at"`
}

// IndexService owns reindexing: load, chunk, embed, build, persist, swap.
type IndexService struct {
	dataDir   string
	loader    *ingest.Loader
	chunker   *chunker.Chunker
	embedder  embedding.Embedder
	live      *index.Live
	snapshots SnapshotStore
}

// NewIndexService wires the ingestion pipeline. snapshots may be nil.
func NewIndexService(dataDir string, loader *ingest.Loader, ch *chunker.Chunker, embedder embedding.Embedder, live *index.Live, snapshots SnapshotStore) *IndexService {
	return &IndexService{
		dataDir:   dataDir,
		loader:    loader,
		chunker:   ch,
		embedder:  embedder,
		live:      live,
		snapshots: snapshots,
	}
}

func (s *IndexService) Live() *index.Live { return s.live }

// IndexedChunks is the size of the index currently served.
func (s *IndexService) IndexedChunks() int { return s.live.Current().Len() }

// Reindex rebuilds the index from scratch. On failure the previously served
// index stays live and the error wraps domain.ErrIndexBuild.
func (s *IndexService) Reindex(ctx context.Context) (*ReindexResult, error) {
	started := time.Now()
	var skipped []string

	ix, err := s.live.Rebuild(ctx, func(ctx context.Context) (*index.Index, error) {
		res, err := s.loader.Load(ctx, s.dataDir)
		if err != nil {
			return nil, fmt.Errorf("%w: load sources: %w", domain.ErrIndexBuild, err)
		}
		skipped = skippedPaths(res)

		chunks := s.chunker.ChunkRecords(res.Records)
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}

		var vectors [][]float32
		if len(texts) > 0 {
			vectors, err = s.embedder.EmbedBatch(ctx, texts)
			if err != nil {
				return nil, fmt.Errorf("%w: embed chunks: %w", domain.ErrIndexBuild, err)
			}
			if len(vectors) != len(chunks) {
				return nil, fmt.Errorf("%w: got %d embeddings for %d chunks", domain.ErrIndexBuild, len(vectors), len(chunks))
			}
		}

		entries := make([]index.Entry, len(chunks))
		for i, c := range chunks {
			entries[i] = index.Entry{Chunk: c, Vector: vectors[i]}
		}

		ix, err := index.New(s.embedder.Model(), entries, s.summarize(res))
		if err != nil {
			return nil, err
		}
		s.persist(ctx, ix)
		return ix, nil
	})
	if err != nil {
		logger.Error("Reindex failed, keeping previous index", "error", err, "served_chunks", s.live.Current().Len())
		return nil, err
	}

	result := &ReindexResult{
		Chunks:  ix.Len(),
		Files:   len(ix.Files()),
		Skipped: skipped,
		Elapsed: time.Since(started),
		BuiltAt: ix.BuiltAt(),
	}
	logger.Info("Reindex complete", "chunks", result.Chunks, "dimensions", ix.Dimensions(), "files", result.Files, "skipped", len(skipped), "elapsed_ms", result.Elapsed.Milliseconds())
	return result, nil
}

// Restore serves the persisted snapshot when it was built with the current
// embedding model. It reports whether an index was restored.
func (s *IndexService) Restore(ctx context.Context) (bool, error) {
	if s.snapshots == nil {
		return false, nil
	}

	snap, err := s.snapshots.LoadIndexSnapshot(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load index snapshot: %w", err)
	}
	if snap.Model != s.embedder.Model() {
		logger.Info("Ignoring index snapshot built with a different embedding model", "snapshot_model", snap.Model, "model", s.embedder.Model())
		return false, nil
	}

	entries := make([]index.Entry, len(snap.Chunks))
	for i, c := range snap.Chunks {
		if !domain.SourceKind(c.Kind).IsValid() {
			logger.Warn("Ignoring index snapshot with unknown source kind", "kind", c.Kind, "position", c.Position)
			return false, nil
		}
		entries[i] = index.Entry{
			Chunk:  domain.Chunk{Text: c.Text, Label: c.Label, Kind: domain.SourceKind(c.Kind), Position: c.Position},
			Vector: c.Embedding,
		}
	}

	var files []domain.SourceSummary
	if snap.FilesJSON != "" {
		if err := json.Unmarshal([]byte(snap.FilesJSON), &files); err != nil {
			logger.Warn("Failed to decode index snapshot file list", "error", err)
		}
	}

	ix, err := index.New(snap.Model, entries, files)
	if err != nil {
		return false, fmt.Errorf("failed to rebuild index from snapshot: %w", err)
	}
	s.live.Swap(ix.WithBuiltAt(snap.BuiltAt))
	logger.Info("Restored index snapshot", "chunks", ix.Len(), "built_at", snap.BuiltAt)
	return true, nil
}

// Sources scans the data directory without embedding anything.
func (s *IndexService) Sources(ctx context.Context) (*SourcesReport, error) {
	res, err := s.loader.Load(ctx, s.dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load sources: %w", err)
	}

	current := s.live.Current()
	report := &SourcesReport{
		Files:         s.summarize(res),
		Skipped:       skippedPaths(res),
		IndexedChunks: current.Len(),
		IndexModel:    current.Model(),
		Dimensions:    current.Dimensions(),
		ChunkSize:     s.chunker.Size(),
		ChunkOverlap:  s.chunker.Overlap(),
	}
	if builtAt := current.BuiltAt(); !builtAt.IsZero() {
		report.BuiltAt = &builtAt
	}
	return report, nil
}

func (s *IndexService) summarize(res *ingest.Result) []domain.SourceSummary {
	chunksByPath := make(map[string]int)
	for _, r := range res.Records {
		chunksByPath[r.Path] += len(s.chunker.Split(r.Text))
	}

	summaries := make([]domain.SourceSummary, 0, len(res.Files))
	for _, f := range res.Files {
		summaries = append(summaries, domain.SourceSummary{
			Label:    f.Label,
			Filename: f.Filename,
			Kind:     f.Kind,
			Format:   f.Format,
			Records:  f.Records,
			Chunks:   chunksByPath[f.Path],
		})
	}
	return summaries
}

func (s *IndexService) persist(ctx context.Context, ix *index.Index) {
	if s.snapshots == nil {
		return
	}

	filesJSON, err := json.Marshal(ix.Files())
	if err != nil {
		logger.Warn("Failed to encode index file list", "error", err)
		return
	}

	entries := ix.Entries()
	snap := &store.Snapshot{
		Model:     ix.Model(),
		BuiltAt:   ix.BuiltAt(),
		FilesJSON: string(filesJSON),
		Chunks:    make([]store.SnapshotChunk, len(entries)),
	}
	for i, e := range entries {
		snap.Chunks[i] = store.SnapshotChunk{
			Position:  e.Chunk.Position,
			Text:      e.Chunk.Text,
			Label:     e.Chunk.Label,
			Kind:      string(e.Chunk.Kind),
			Embedding: e.Vector,
		}
	}

	if err := s.snapshots.ReplaceIndexSnapshot(ctx, snap); err != nil {
		logger.Warn("Failed to persist index snapshot", "error", err)
	}
}

func skippedPaths(res *ingest.Result) []string {
	paths := make([]string, 0, len(res.Errors))
	for _, e := range res.Errors {
		paths = append(paths, e.Path)
	}
	return paths
}
