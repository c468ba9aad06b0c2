package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marketsync/marketsync/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

var _ domain.MarketStore = (*MarketStore)(nil)

// upsertMarketSQL inserts a market or updates every mutable field in place.
// created_at is only written on first insert; updated_at is the pipeline's
// write time, set on every upsert.
const upsertMarketSQL = `
	INSERT INTO markets (
		market_id, title, status, accepting_orders,
		volume, liquidity, outcome_prices, clob_token_ids,
		created_at, updated_at
	) VALUES (
		$1, $2, $3, $4,
		$5, $6, $7, $8,
		$9, NOW()
	)
	ON CONFLICT (market_id) DO UPDATE SET
		title            = EXCLUDED.title,
		status           = EXCLUDED.status,
		accepting_orders = EXCLUDED.accepting_orders,
		volume           = EXCLUDED.volume,
		liquidity        = EXCLUDED.liquidity,
		outcome_prices   = EXCLUDED.outcome_prices,
		clob_token_ids   = EXCLUDED.clob_token_ids,
		updated_at       = NOW()`

// upsertArgs builds the argument list for upsertMarketSQL, defaulting a zero
// CreatedAt to now so rows from sources without creation timestamps still get
// a sane value on first insert.
func upsertArgs(m domain.MarketRecord) []any {
	createdAt := m.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	prices := m.OutcomePrices
	if prices == nil {
		prices = []float64{}
	}
	tokens := m.ClobTokenIDs
	if tokens == nil {
		tokens = []string{}
	}
	return []any{
		m.MarketID, m.Title, string(m.Status), m.AcceptingOrders,
		m.Volume, m.Liquidity, prices, tokens,
		createdAt,
	}
}

// Upsert inserts or updates a single market.
func (s *MarketStore) Upsert(ctx context.Context, m domain.MarketRecord) error {
	if _, err := s.pool.Exec(ctx, upsertMarketSQL, upsertArgs(m)...); err != nil {
		return fmt.Errorf("postgres: upsert market %s: %w", m.MarketID, err)
	}
	return nil
}

// UpsertBatch inserts or updates multiple markets in a single batch round
// trip and returns the number of rows written.
func (s *MarketStore) UpsertBatch(ctx context.Context, ms []domain.MarketRecord) (int64, error) {
	if len(ms) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, m := range ms {
		batch.Queue(upsertMarketSQL, upsertArgs(m)...)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	var written int64
	for i := range ms {
		tag, err := br.Exec()
		if err != nil {
			return written, fmt.Errorf("postgres: upsert market batch item %d (%s): %w", i, ms[i].MarketID, err)
		}
		written += tag.RowsAffected()
	}
	return written, nil
}

const marketCols = `market_id, title, status, accepting_orders,
	volume, liquidity, outcome_prices, clob_token_ids,
	last_mid_price, updated_at, created_at`

// scanMarket scans a single market row into a domain.MarketRecord.
func scanMarket(row pgx.Row) (domain.MarketRecord, error) {
	var m domain.MarketRecord
	var status string
	err := row.Scan(
		&m.MarketID, &m.Title, &status, &m.AcceptingOrders,
		&m.Volume, &m.Liquidity, &m.OutcomePrices, &m.ClobTokenIDs,
		&m.LastMidPrice, &m.UpdatedAt, &m.CreatedAt,
	)
	if err != nil {
		return domain.MarketRecord{}, err
	}
	m.Status = domain.MarketStatus(status)
	return m, nil
}

// GetByID retrieves a market by its primary key.
func (s *MarketStore) GetByID(ctx context.Context, id string) (domain.MarketRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE market_id = $1`, id)
	m, err := scanMarket(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.MarketRecord{}, domain.ErrNotFound
		}
		return domain.MarketRecord{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	return m, nil
}

// List returns markets ordered by volume, optionally filtered by status.
func (s *MarketStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.MarketRecord, error) {
	query := `SELECT ` + marketCols + ` FROM markets`
	args := []any{}
	argIdx := 1

	if opts.Status != "" {
		query += fmt.Sprintf(" WHERE status = $%d", argIdx)
		args = append(args, string(opts.Status))
		argIdx++
	}

	query += " ORDER BY volume DESC, market_id"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	return scanMarketRows(rows)
}

func scanMarketRows(rows pgx.Rows) ([]domain.MarketRecord, error) {
	var markets []domain.MarketRecord
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: market rows: %w", err)
	}
	return markets, nil
}

// Count returns the total number of markets in the database.
func (s *MarketStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM markets").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return count, nil
}

// UpdateMidPriceByToken sets last_mid_price on the market owning the given
// CLOB token. Archived markets are left untouched.
func (s *MarketStore) UpdateMidPriceByToken(ctx context.Context, tokenID string, mid float64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE markets
		SET last_mid_price = $2, updated_at = NOW()
		WHERE $1 = ANY(clob_token_ids) AND status <> 'ARCHIVED'`, tokenID, mid)
	if err != nil {
		return fmt.Errorf("postgres: update mid price for token %s: %w", tokenID, err)
	}
	return nil
}

// ListActiveTokenIDs returns the CLOB token IDs of the highest-volume active
// markets that are accepting orders, at most limit tokens.
func (s *MarketStore) ListActiveTokenIDs(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT unnest(clob_token_ids)
		FROM markets
		WHERE status = 'ACTIVE' AND accepting_orders
		ORDER BY volume DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active token ids: %w", err)
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("postgres: scan token id: %w", err)
		}
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: token id rows: %w", err)
	}
	return tokens, nil
}

// ListStale returns non-archived markets whose last update is older than
// cutoff, oldest first. Used to snapshot rows before archival.
func (s *MarketStore) ListStale(ctx context.Context, cutoff time.Time) ([]domain.MarketRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+marketCols+`
		FROM markets
		WHERE status <> 'ARCHIVED' AND updated_at < $1
		ORDER BY updated_at ASC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("postgres: list stale markets: %w", err)
	}
	defer rows.Close()

	return scanMarketRows(rows)
}

// ArchiveStale transitions every non-archived market with updated_at older
// than cutoff to ARCHIVED and returns the number of rows transitioned. Rows
// are never deleted.
func (s *MarketStore) ArchiveStale(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE markets
		SET status = 'ARCHIVED'
		WHERE status <> 'ARCHIVED' AND updated_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: archive stale markets: %w", err)
	}
	return tag.RowsAffected(), nil
}
