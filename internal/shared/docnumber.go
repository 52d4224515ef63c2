package shared

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Querier is satisfied by pgxpool.Pool and pgx.Tx.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// FormatDocNumber renders PREFIX-YYYYMM-NNNN.
func FormatDocNumber(prefix string, at time.Time, seq int) string {
	return fmt.Sprintf("%s-%s-%04d", prefix, at.Format("200601"), seq)
}

// NextDocNumber allocates the next number of a monthly sequence. Run it inside the
// transaction that inserts the document so gaps only appear on rollback.
func NextDocNumber(ctx context.Context, q Querier, orgID int64, prefix string, at time.Time) (string, error) {
	var seq int
	err := q.QueryRow(ctx, `INSERT INTO document_sequences (organization_id, prefix, period, last_value)
VALUES ($1, $2, $3, 1)
ON CONFLICT (organization_id, prefix, period)
DO UPDATE SET last_value = document_sequences.last_value + 1
RETURNING last_value`, orgID, prefix, at.Format("200601")).Scan(&seq)
	if err != nil {
		return "", fmt.Errorf("allocate %s number: %w", prefix, err)
	}
	return FormatDocNumber(prefix, at, seq), nil
}
