package audit

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/motorcrm/motorcrm/internal/platform/db"
)

type repository struct {
	db db.DBTX
}

// NewRepository constructs the PostgreSQL timeline reader.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

// The upper bound is inclusive of the whole "to" day.
const timelineQuery = `SELECT a.occurred_at, COALESCE(u.email, 'system'), a.action, a.entity, a.entity_id, a.meta::text
FROM audit_logs a
LEFT JOIN users u ON u.id = a.actor_id
WHERE a.organization_id = $1
  AND ($2::timestamptz IS NULL OR a.occurred_at >= $2)
  AND ($3::timestamptz IS NULL OR a.occurred_at < $3 + INTERVAL '1 day')
  AND ($4::text IS NULL OR u.email ILIKE '%' || $4 || '%')
  AND ($5::text IS NULL OR a.entity = $5)
  AND ($6::text IS NULL OR a.action ILIKE $6 || '%')
ORDER BY a.occurred_at DESC, a.id DESC`

func (r *repository) TimelineWindow(ctx context.Context, arg TimelineParams) ([]TimelineRow, error) {
	return r.query(ctx, timelineQuery+` OFFSET $7 LIMIT $8`,
		arg.OrganizationID, arg.FromAt, arg.ToAt, arg.Actor, arg.Entity, arg.Action, arg.OffsetRows, arg.LimitRows)
}

func (r *repository) TimelineAll(ctx context.Context, arg TimelineParams) ([]TimelineRow, error) {
	return r.query(ctx, timelineQuery+` LIMIT 10000`,
		arg.OrganizationID, arg.FromAt, arg.ToAt, arg.Actor, arg.Entity, arg.Action)
}

func (r *repository) query(ctx context.Context, sql string, args ...any) ([]TimelineRow, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TimelineRow
	for rows.Next() {
		var row TimelineRow
		if err := rows.Scan(&row.At, &row.Actor, &row.Action, &row.Entity, &row.EntityID, &row.Meta); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
