package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dshills/codegraph-mcp/internal/merkle"
	"github.com/dshills/codegraph-mcp/internal/storage"
	"github.com/dshills/codegraph-mcp/pkg/types"
)

// Save writes every file record to the snapshot store, replacing the
// previous snapshot. It is a no-op without a store.
func (x *Index) Save(ctx context.Context) error {
	if err := x.ready(); err != nil {
		return err
	}
	if x.store == nil {
		return nil
	}

	records := x.files.Records()
	snap := &storage.Snapshot{
		Version: storage.SnapshotVersion,
		Root:    x.root,
		SavedAt: time.Now().UTC(),
		Files:   make([]storage.FileEntry, 0, len(records)),
	}
	if root := x.files.MerkleRoot(); root != nil {
		snap.MerkleRoot = root.String()
	}
	for _, rec := range records {
		snap.Files = append(snap.Files, storage.FileEntry{
			Path:         rec.Path,
			Hash:         rec.ContentHash.String(),
			LastModified: rec.LastModified,
			Content:      rec.Content,
		})
	}

	if err := x.store.Save(ctx, snap); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	x.logger.Debug("snapshot saved",
		slog.String("location", x.store.Location()),
		slog.Int("files", len(snap.Files)))
	return nil
}

// restore loads snapshot records and re-extracts their symbols. A stored
// hash that does not parse or does not match the content is recomputed.
func (x *Index) restore(ctx context.Context, snap *storage.Snapshot) error {
	for _, entry := range snap.Files {
		if err := ctx.Err(); err != nil {
			return err
		}

		content := []byte(entry.Content)
		hash := merkle.Hash(content)
		if stored, err := types.ParseDigest(entry.Hash); err != nil || stored != hash {
			x.logger.Debug("snapshot hash mismatch, rehashed", slog.String("path", entry.Path))
		}

		rec := types.FileRecord{
			Path:         entry.Path,
			ContentHash:  hash,
			LastModified: entry.LastModified,
			Content:      entry.Content,
		}
		symbols, err := x.extract(ctx, rec)
		if err != nil {
			return err
		}
		x.files.Put(rec)
		x.graph.UpdateFile(rec.Path, rec.Content, symbols)
	}

	x.logger.Info("snapshot loaded",
		slog.String("location", x.store.Location()),
		slog.Int("files", len(snap.Files)))
	return nil
}
