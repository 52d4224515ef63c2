package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// TimelineParams are the query arguments of a timeline read.
type TimelineParams struct {
	OrganizationID int64
	FromAt         pgtype.Timestamptz
	ToAt           pgtype.Timestamptz
	Actor          pgtype.Text
	Entity         pgtype.Text
	Action         pgtype.Text
	OffsetRows     int32
	LimitRows      int32
}

// Repository reads audit_logs.
type Repository interface {
	TimelineWindow(ctx context.Context, arg TimelineParams) ([]TimelineRow, error)
	TimelineAll(ctx context.Context, arg TimelineParams) ([]TimelineRow, error)
}

// Result wraps a timeline page with its paging info.
type Result struct {
	Rows   []TimelineRow
	Paging PagingInfo
}

// Service reads the audit timeline.
type Service struct {
	repo Repository
}

// NewService builds a timeline service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline returns one page of entries, newest first. One extra row is read to
// detect a next page.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 50 {
		pageSize = 50
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	params := toParams(filters)
	params.OffsetRows = int32((page - 1) * pageSize)
	params.LimitRows = int32(pageSize + 1)
	rows, err := s.repo.TimelineWindow(ctx, params)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// Export returns every matching entry without paging.
func (s *Service) Export(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("audit: repository not configured")
	}
	return s.repo.TimelineAll(ctx, toParams(filters))
}

func toParams(filters TimelineFilters) TimelineParams {
	return TimelineParams{
		OrganizationID: filters.OrganizationID,
		FromAt:         toPgTime(filters.From),
		ToAt:           toPgTime(filters.To),
		Actor:          optionalText(filters.Actor),
		Entity:         optionalText(filters.Entity),
		Action:         optionalText(filters.Action),
	}
}

func toPgTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func optionalText(value string) pgtype.Text {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: trimmed, Valid: true}
}
