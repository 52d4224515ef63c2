package zones

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motorcrm/motorcrm/internal/shared"
)

type mockRepository struct {
	zones  map[int64]*Zone
	refs   map[int64]int
	nextID int64
}

func newMockRepository() *mockRepository {
	return &mockRepository{zones: map[int64]*Zone{}, refs: map[int64]int{}, nextID: 1}
}

func (m *mockRepository) Get(ctx context.Context, orgID, id int64) (*Zone, error) {
	z, ok := m.zones[id]
	if !ok || z.OrganizationID != orgID {
		return nil, ErrNotFound
	}
	cp := *z
	return &cp, nil
}

func (m *mockRepository) GetByCode(ctx context.Context, orgID int64, code string) (*Zone, error) {
	for _, z := range m.zones {
		if z.OrganizationID == orgID && z.Code == code {
			cp := *z
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockRepository) List(ctx context.Context, req ListZonesRequest) ([]Zone, int, error) {
	var out []Zone
	for _, z := range m.zones {
		if z.OrganizationID != req.OrganizationID {
			continue
		}
		if req.Search != "" && !strings.Contains(strings.ToLower(z.Name), strings.ToLower(req.Search)) {
			continue
		}
		out = append(out, *z)
	}
	return out, len(out), nil
}

func (m *mockRepository) ListActive(ctx context.Context, orgID int64) ([]Zone, error) {
	out, _, err := m.List(ctx, ListZonesRequest{OrganizationID: orgID})
	return out, err
}

func (m *mockRepository) Create(ctx context.Context, zone Zone) (int64, error) {
	zone.ID = m.nextID
	m.nextID++
	m.zones[zone.ID] = &zone
	return zone.ID, nil
}

func (m *mockRepository) Update(ctx context.Context, zone Zone) error {
	if _, ok := m.zones[zone.ID]; !ok {
		return ErrNotFound
	}
	m.zones[zone.ID] = &zone
	return nil
}

func (m *mockRepository) Delete(ctx context.Context, orgID, id int64) error {
	delete(m.zones, id)
	return nil
}

func (m *mockRepository) CountReferences(ctx context.Context, orgID, id int64) (int, error) {
	return m.refs[id], nil
}

type recordingAudit struct {
	actions []string
}

func (a *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.actions = append(a.actions, fmt.Sprintf("%s:%s", log.Action, log.EntityID))
	return nil
}

func TestCreateZoneNormalizesAndAudits(t *testing.T) {
	repo := newMockRepository()
	audit := &recordingAudit{}
	svc := NewService(repo, audit)

	zone, err := svc.Create(context.Background(), 1, 9, ZoneInput{Code: " north ", Name: "North", IsActive: true})
	require.NoError(t, err)
	assert.Equal(t, "NORTH", zone.Code)
	assert.Equal(t, []string{"zone.created:1"}, audit.actions)

	_, err = svc.Create(context.Background(), 1, 9, ZoneInput{Code: "NORTH", Name: "Again"})
	assert.ErrorIs(t, err, ErrAlreadyExists)

	_, err = svc.Create(context.Background(), 2, 9, ZoneInput{Code: "NORTH", Name: "Other org"})
	assert.NoError(t, err, "codes are unique per organization only")
}

func TestCreateZoneValidation(t *testing.T) {
	svc := NewService(newMockRepository(), nil)
	_, err := svc.Create(context.Background(), 1, 1, ZoneInput{Code: "", Name: ""})
	require.Error(t, err)
	errs := shared.FieldErrors(err)
	assert.Contains(t, errs, "Code")
	assert.Contains(t, errs, "Name")
}

func TestUpdateZone(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil)
	ctx := context.Background()
	a, _ := svc.Create(ctx, 1, 1, ZoneInput{Code: "A", Name: "A"})
	_, _ = svc.Create(ctx, 1, 1, ZoneInput{Code: "B", Name: "B"})

	_, err := svc.Update(ctx, 1, 1, a.ID, ZoneInput{Code: "B", Name: "A"})
	assert.ErrorIs(t, err, ErrAlreadyExists)

	updated, err := svc.Update(ctx, 1, 1, a.ID, ZoneInput{Code: "A", Name: "Alpha", IsActive: true})
	require.NoError(t, err)
	assert.Equal(t, "Alpha", updated.Name)

	_, err = svc.Update(ctx, 2, 1, a.ID, ZoneInput{Code: "A", Name: "Hijack"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteZoneInUse(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil)
	ctx := context.Background()
	z, _ := svc.Create(ctx, 1, 1, ZoneInput{Code: "A", Name: "A"})

	repo.refs[z.ID] = 2
	err := svc.Delete(ctx, 1, 1, z.ID)
	assert.ErrorIs(t, err, ErrInUse)
	assert.Equal(t, "2 records still use this zone", shared.UserSafeMessage(err))

	repo.refs[z.ID] = 0
	require.NoError(t, svc.Delete(ctx, 1, 1, z.ID))
	_, err = svc.Get(ctx, 1, z.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
