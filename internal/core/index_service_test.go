package core

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tejas.dev/portfolio-api/internal/chunker"
	"tejas.dev/portfolio-api/internal/domain"
	"tejas.dev/portfolio-api/internal/embedding"
	"tejas.dev/portfolio-api/internal/index"
	"tejas.dev/portfolio-api/internal/ingest"
	"tejas.dev/portfolio-api/internal/store"
)

func writeData(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func newTestSQLite(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestReindex_IsIdempotentInCount(t *testing.T) {
	dir := writeData(t, portfolioFiles)
	svc := NewIndexService(dir, ingest.NewLoader(), chunker.New(), embedding.NewHashing(64), index.NewLive(), nil)

	first, err := svc.Reindex(context.Background())
	require.NoError(t, err)
	second, err := svc.Reindex(context.Background())
	require.NoError(t, err)

	assert.Positive(t, first.Chunks)
	assert.Equal(t, first.Chunks, second.Chunks)
	assert.Equal(t, 3, first.Files)
	assert.Equal(t, first.Chunks, svc.Live().Current().Len())
}

func TestReindex_SkipsBadFiles(t *testing.T) {
	files := map[string]string{"broken.json": `{"a":`}
	for k, v := range portfolioFiles {
		files[k] = v
	}
	dir := writeData(t, files)
	svc := NewIndexService(dir, ingest.NewLoader(), chunker.New(), embedding.NewHashing(64), index.NewLive(), nil)

	res, err := svc.Reindex(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Files)
	assert.Equal(t, []string{filepath.Join(dir, "broken.json")}, res.Skipped)
}

func TestReindex_FailureKeepsPreviousIndex(t *testing.T) {
	dir := writeData(t, portfolioFiles)
	emb := &countingEmbedder{inner: embedding.NewHashing(64)}
	svc := NewIndexService(dir, ingest.NewLoader(), chunker.New(), emb, index.NewLive(), nil)

	_, err := svc.Reindex(context.Background())
	require.NoError(t, err)
	before := svc.Live().Current()

	emb.setFail(errors.New("quota exceeded"))
	_, err = svc.Reindex(context.Background())
	require.ErrorIs(t, err, domain.ErrIndexBuild)
	assert.Same(t, before, svc.Live().Current())
}

func TestReindex_EmptyDataDir(t *testing.T) {
	emb := &countingEmbedder{inner: embedding.NewHashing(64)}
	svc := NewIndexService(t.TempDir(), ingest.NewLoader(), chunker.New(), emb, index.NewLive(), nil)

	res, err := svc.Reindex(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Chunks)
	assert.Zero(t, emb.callCount())
}

func TestRestore_RoundTripsThroughSQLite(t *testing.T) {
	dir := writeData(t, portfolioFiles)
	db := newTestSQLite(t)
	emb := embedding.NewHashing(64)

	builder := NewIndexService(dir, ingest.NewLoader(), chunker.New(), emb, index.NewLive(), db)
	built, err := builder.Reindex(context.Background())
	require.NoError(t, err)

	restorer := NewIndexService(dir, ingest.NewLoader(), chunker.New(), emb, index.NewLive(), db)
	ok, err := restorer.Restore(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	got := restorer.Live().Current()
	want := builder.Live().Current()
	assert.Equal(t, built.Chunks, got.Len())
	assert.Equal(t, want.Entries(), got.Entries())
	assert.Equal(t, want.Files(), got.Files())
	assert.True(t, want.BuiltAt().Equal(got.BuiltAt()))
}

func TestRestore_IgnoresOtherModel(t *testing.T) {
	dir := writeData(t, portfolioFiles)
	db := newTestSQLite(t)

	_, err := NewIndexService(dir, ingest.NewLoader(), chunker.New(), embedding.NewHashing(64), index.NewLive(), db).Reindex(context.Background())
	require.NoError(t, err)

	other := NewIndexService(dir, ingest.NewLoader(), chunker.New(), embedding.NewHashing(32), index.NewLive(), db)
	ok, err := other.Restore(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, other.Live().Current().Len())
}

func TestRestore_NoSnapshot(t *testing.T) {
	svc := NewIndexService(t.TempDir(), ingest.NewLoader(), chunker.New(), embedding.NewHashing(8), index.NewLive(), newTestSQLite(t))
	ok, err := svc.Restore(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSources(t *testing.T) {
	dir := writeData(t, portfolioFiles)
	emb := &countingEmbedder{inner: embedding.NewHashing(64)}
	svc := NewIndexService(dir, ingest.NewLoader(), chunker.New(), emb, index.NewLive(), nil)

	report, err := svc.Sources(context.Background())
	require.NoError(t, err)
	assert.Zero(t, emb.callCount(), "sources never embeds")
	assert.Zero(t, report.IndexedChunks)
	assert.Nil(t, report.BuiltAt)

	byLabel := make(map[string]domain.SourceSummary)
	for _, f := range report.Files {
		byLabel[f.Label] = f
	}
	require.Contains(t, byLabel, "qna.yaml (Q&A)")
	assert.Equal(t, domain.KindQnA, byLabel["qna.yaml (Q&A)"].Kind)
	assert.Equal(t, 1, byLabel["qna.yaml (Q&A)"].Records)
	assert.Equal(t, 1, byLabel["qna.yaml (Q&A)"].Chunks)
	assert.Equal(t, 2, byLabel["profile.yaml (profile)"].Records)

	_, err = svc.Reindex(context.Background())
	require.NoError(t, err)
	report, err = svc.Sources(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, report.IndexedChunks)
	assert.NotNil(t, report.BuiltAt)
	assert.Equal(t, 64, report.Dimensions)
	assert.Equal(t, chunker.DefaultSize, report.ChunkSize)
	assert.Equal(t, chunker.DefaultOverlap, report.ChunkOverlap)
}

func TestRestore_RejectsUnknownKind(t *testing.T) {
	db := newTestSQLite(t)
	emb := embedding.NewHashing(8)
	require.NoError(t, db.ReplaceIndexSnapshot(context.Background(), &store.Snapshot{
		Model:   emb.Model(),
		BuiltAt: time.Now(),
		Chunks: []store.SnapshotChunk{
			{Position: 0, Text: "Source: a.yaml (profile)\nname: x", Label: "a.yaml (profile)", Kind: "profile", Embedding: make([]float32, 8)},
			{Position: 1, Text: "Source: b.bin (blob)\n??", Label: "b.bin (blob)", Kind: "blob", Embedding: make([]float32, 8)},
		},
	}))

	svc := NewIndexService(t.TempDir(), ingest.NewLoader(), chunker.New(), emb, index.NewLive(), db)
	ok, err := svc.Restore(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, svc.IndexedChunks())
}
