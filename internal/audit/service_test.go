package audit

import (
	"context"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTimelineRepo struct {
	rows     []TimelineRow
	lastCall TimelineParams
	allCalls int
}

func (s *stubTimelineRepo) TimelineWindow(ctx context.Context, arg TimelineParams) ([]TimelineRow, error) {
	s.lastCall = arg
	return s.rows, nil
}

func (s *stubTimelineRepo) TimelineAll(ctx context.Context, arg TimelineParams) ([]TimelineRow, error) {
	s.lastCall = arg
	s.allCalls++
	return s.rows, nil
}

func row(at, actor, action, entity, id string) TimelineRow {
	ts, _ := time.Parse(time.RFC3339, at)
	return TimelineRow{At: ts, Actor: actor, Action: action, Entity: entity, EntityID: id}
}

func TestServiceTimelinePaging(t *testing.T) {
	repo := &stubTimelineRepo{rows: []TimelineRow{
		row("2026-03-10T10:00:00Z", "agent@example.com", "booking.confirm", "booking", "1"),
		row("2026-03-09T09:00:00Z", "agent@example.com", "deal.sign", "deal", "2"),
		row("2026-03-08T08:00:00Z", "provider", "booking.respond", "booking_service", "3"),
	}}
	svc := NewService(repo)
	result, err := svc.Timeline(context.Background(), TimelineFilters{
		OrganizationID: 4,
		From:           time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		To:             time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
		Page:           1,
		PageSize:       2,
	})
	require.NoError(t, err)
	assert.Len(t, result.Rows, 2)
	assert.True(t, result.Paging.HasNext)
	assert.Equal(t, 2, result.Paging.NextPage)
	assert.Zero(t, result.Paging.PrevPage)
	assert.Equal(t, int32(3), repo.lastCall.LimitRows)
	assert.Equal(t, int32(0), repo.lastCall.OffsetRows)
	assert.Equal(t, int64(4), repo.lastCall.OrganizationID)
	assert.True(t, repo.lastCall.FromAt.Valid)
	assert.False(t, repo.lastCall.Actor.Valid)
}

func TestServiceTimelineClampsPageSize(t *testing.T) {
	repo := &stubTimelineRepo{}
	svc := NewService(repo)
	result, err := svc.Timeline(context.Background(), TimelineFilters{Page: 3, PageSize: 500, Action: "  deal.sign "})
	require.NoError(t, err)
	assert.Equal(t, 50, result.Paging.PageSize)
	assert.Equal(t, 2, result.Paging.PrevPage)
	assert.False(t, result.Paging.HasNext)
	assert.Equal(t, int32(100), repo.lastCall.OffsetRows)
	assert.Equal(t, int32(51), repo.lastCall.LimitRows)
	assert.Equal(t, "deal.sign", repo.lastCall.Action.String)
}

func TestServiceExport(t *testing.T) {
	repo := &stubTimelineRepo{rows: []TimelineRow{row("2026-03-10T10:00:00Z", "provider", "booking.respond", "booking_service", "9")}}
	svc := NewService(repo)
	rows, err := svc.Export(context.Background(), TimelineFilters{OrganizationID: 1, Entity: "booking_service"})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, 1, repo.allCalls)
	assert.Equal(t, "booking_service", repo.lastCall.Entity.String)
}

func TestServiceWithoutRepository(t *testing.T) {
	_, err := NewService(nil).Timeline(context.Background(), TimelineFilters{})
	assert.Error(t, err)
}

func TestExporterWriteCSV(t *testing.T) {
	rows := []TimelineRow{
		{At: time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC), Actor: "agent@example.com", Action: "deal.sign", Entity: "deal", EntityID: "7", Meta: `{"total":"12,500.00"}`},
	}
	out, err := NewExporter().WriteCSV(rows)
	require.NoError(t, err)

	records, err := csv.NewReader(strings.NewReader(string(out))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, []string{"at", "actor", "action", "entity", "entity_id", "meta"}, records[0])
	assert.Equal(t, "2026-03-10T10:00:00Z", records[1][0])
	assert.Equal(t, `{"total":"12,500.00"}`, records[1][5])
}
