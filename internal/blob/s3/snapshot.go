package s3blob

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/marketsync/marketsync/internal/domain"
)

// multipartCutoff is the encoded-snapshot size above which uploads switch to
// the multipart manager.
const multipartCutoff = 8 * 1024 * 1024

// Snapshotter serializes market rows to CSV and uploads the file to object
// storage. The archiver snapshots rows before transitioning them to
// ARCHIVED, so the export is the last full view of those markets.
type Snapshotter struct {
	writer domain.BlobWriter
	cutoff int
}

// NewSnapshotter creates a Snapshotter uploading through the given writer.
func NewSnapshotter(w domain.BlobWriter) *Snapshotter {
	return &Snapshotter{writer: w, cutoff: multipartCutoff}
}

// SnapshotMarkets encodes the given records as CSV and uploads them under a
// timestamped key, returning the blob path. No records means no upload and
// an empty path.
func (s *Snapshotter) SnapshotMarkets(ctx context.Context, records []domain.MarketRecord, asOf time.Time) (string, error) {
	if len(records) == 0 {
		return "", nil
	}

	buf, err := encodeMarketsCSV(records)
	if err != nil {
		return "", fmt.Errorf("s3blob: snapshot encode: %w", err)
	}

	path := snapshotPath("markets", asOf)
	if len(buf) >= s.cutoff {
		err = s.writer.PutMultipart(ctx, path, bytes.NewReader(buf), int64(s.cutoff))
	} else {
		err = s.writer.Put(ctx, path, bytes.NewReader(buf), "text/csv")
	}
	if err != nil {
		return "", fmt.Errorf("s3blob: snapshot upload %s: %w", path, err)
	}
	return path, nil
}

// snapshotPath builds the blob key for one snapshot run.
//
//	snapshots/markets/20250601T030000Z.csv
func snapshotPath(kind string, asOf time.Time) string {
	return fmt.Sprintf("snapshots/%s/%s.csv", kind, asOf.UTC().Format("20060102T150405Z"))
}

var marketCSVHeader = []string{
	"market_id", "title", "status", "accepting_orders",
	"volume", "liquidity", "outcome_prices", "clob_token_ids",
	"last_mid_price", "updated_at", "created_at",
}

// encodeMarketsCSV renders one row per market. Price and token arrays are
// joined with ';' inside their cells; a missing mid price is an empty cell.
func encodeMarketsCSV(records []domain.MarketRecord) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(marketCSVHeader); err != nil {
		return nil, err
	}
	for _, m := range records {
		row := []string{
			m.MarketID,
			m.Title,
			string(m.Status),
			strconv.FormatBool(m.AcceptingOrders),
			strconv.FormatFloat(m.Volume, 'f', -1, 64),
			strconv.FormatFloat(m.Liquidity, 'f', -1, 64),
			joinFloats(m.OutcomePrices),
			strings.Join(m.ClobTokenIDs, ";"),
			formatMid(m.LastMidPrice),
			m.UpdatedAt.UTC().Format(time.RFC3339),
			m.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func joinFloats(vals []float64) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strings.Join(parts, ";")
}

func formatMid(mid *float64) string {
	if mid == nil {
		return ""
	}
	return strconv.FormatFloat(*mid, 'f', -1, 64)
}
