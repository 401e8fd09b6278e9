package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jrivoire69/CS-blockchain/internal/domain"
)

// PositionArchiveStore provides read access to settled positions for archival.
// The Postgres position store satisfies this through ListSettledBefore.
type PositionArchiveStore interface {
	ListSettledBefore(ctx context.Context, before time.Time) ([]domain.Position, error)
}

// CustodyArchiveStore provides read access to custody ledger movements for
// archival.
type CustodyArchiveStore interface {
	ListEntries(ctx context.Context, opts domain.ListOpts) ([]domain.CustodyEntry, error)
}

// Archiver serializes settlement history to JSONL and uploads it to object
// storage. Deletion of archived rows from the primary store is intentionally
// not performed here; that is a separate, explicit step after the archive has
// been verified.
type Archiver struct {
	writer    domain.BlobWriter
	positions PositionArchiveStore
	custody   CustodyArchiveStore
	audit     domain.AuditStore
}

// NewArchiver creates an Archiver.
func NewArchiver(
	writer domain.BlobWriter,
	positions PositionArchiveStore,
	custody CustodyArchiveStore,
	audit domain.AuditStore,
) *Archiver {
	return &Archiver{
		writer:    writer,
		positions: positions,
		custody:   custody,
		audit:     audit,
	}
}

// ArchiveSettledPositions uploads all positions settled before the cutoff to
// archive/positions/YYYY-MM.jsonl and records the archival in the audit log.
// It returns the number of archived records.
func (a *Archiver) ArchiveSettledPositions(ctx context.Context, before time.Time) (int64, error) {
	positions, err := a.positions.ListSettledBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive positions query: %w", err)
	}
	if len(positions) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(positions)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive positions marshal: %w", err)
	}

	path := archivePath("positions", before)
	if err := a.writer.Put(ctx, path, buf, "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive positions upload: %w", err)
	}

	count := int64(len(positions))
	if err := a.audit.Log(ctx, "archive.positions", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive positions audit log: %w", err)
	}

	return count, nil
}

// ArchiveCustodyLedger uploads a snapshot of the custody movement ledger to
// archive/custody/YYYY-MM.jsonl.
func (a *Archiver) ArchiveCustodyLedger(ctx context.Context, before time.Time) (int64, error) {
	entries, err := a.custody.ListEntries(ctx, domain.ListOpts{Until: &before})
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive custody query: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(entries)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive custody marshal: %w", err)
	}

	path := archivePath("custody", before)
	if err := a.writer.Put(ctx, path, buf, "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive custody upload: %w", err)
	}

	count := int64(len(entries))
	if err := a.audit.Log(ctx, "archive.custody", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive custody audit log: %w", err)
	}

	return count, nil
}

// archivePath builds the object key for an archive file, partitioned by the
// year-month of the cutoff time.
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serializes a slice of records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
