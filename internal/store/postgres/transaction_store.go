package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marketsync/marketsync/internal/domain"
)

// TransactionStore implements domain.TransactionStore using PostgreSQL.
type TransactionStore struct {
	pool *pgxpool.Pool
}

// NewTransactionStore creates a new TransactionStore backed by the given
// connection pool.
func NewTransactionStore(pool *pgxpool.Pool) *TransactionStore {
	return &TransactionStore{pool: pool}
}

var _ domain.TransactionStore = (*TransactionStore)(nil)

// InsertBatch inserts multiple transactions using pgx Batch. Duplicate tx_ids
// are silently skipped via ON CONFLICT DO NOTHING; the returned count is the
// number of rows actually inserted.
func (s *TransactionStore) InsertBatch(ctx context.Context, txs []domain.UserTransaction) (int64, error) {
	if len(txs) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO user_transactions (
			tx_id, user_address, position_id, market_id, outcome,
			amount, tx_timestamp
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7
		) ON CONFLICT (tx_id) DO NOTHING`

	for _, t := range txs {
		batch.Queue(query,
			t.TxID, t.UserAddress, t.PositionID, t.MarketID, t.Outcome,
			t.Amount, nullableTime(t.TxTimestamp),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	var inserted int64
	for i := range txs {
		tag, err := br.Exec()
		if err != nil {
			return inserted, fmt.Errorf("postgres: insert transaction batch item %d: %w", i, err)
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

// BackfillBatch derives market_id and outcome from position_id for one batch
// of pending rows, selected oldest-first by created_at, as a single atomic
// UPDATE. It returns the number of rows updated; once the candidate set is
// exhausted it returns 0 and further runs are no-ops.
func (s *TransactionStore) BackfillBatch(ctx context.Context, batchSize int) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE user_transactions
		SET market_id = (position_id / 2)::TEXT,
		    outcome   = (position_id % 2)::SMALLINT
		WHERE tx_id IN (
			SELECT tx_id
			FROM user_transactions
			WHERE position_id IS NOT NULL AND market_id IS NULL
			ORDER BY created_at ASC
			LIMIT $1
		)`, batchSize)
	if err != nil {
		return 0, fmt.Errorf("postgres: backfill batch: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountPending returns the number of rows still awaiting backfill.
func (s *TransactionStore) CountPending(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM user_transactions
		WHERE position_id IS NOT NULL AND market_id IS NULL`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count pending transactions: %w", err)
	}
	return count, nil
}

// nullableTime maps the zero time to NULL.
func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

