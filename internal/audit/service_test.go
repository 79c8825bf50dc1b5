package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freightdeck/freightdeck/internal/catalog"
)

type stubRepo struct {
	entries    []Entry
	lastLimit  int
	lastOffset int
	lastFilter Filters
	nextID     int64
}

func (s *stubRepo) Insert(ctx context.Context, entry Entry) (Entry, error) {
	s.nextID++
	entry.ID = s.nextID
	s.entries = append(s.entries, entry)
	return entry, nil
}

func (s *stubRepo) List(ctx context.Context, filters Filters, limit, offset int) ([]Entry, error) {
	s.lastFilter = filters
	s.lastLimit = limit
	s.lastOffset = offset
	if offset >= len(s.entries) {
		return nil, nil
	}
	end := offset + limit
	if end > len(s.entries) {
		end = len(s.entries)
	}
	return s.entries[offset:end], nil
}

func mkEntry(action Action, userID string) Entry {
	return Entry{
		Action:         action,
		PermissionType: catalog.CategoryMenu,
		PermissionKey:  "dashboard",
		UserID:         userID,
		OldValue:       Snapshot(nil),
		NewValue:       Snapshot([]string{"dashboard"}),
		CreatedBy:      "admin-1",
	}
}

func TestAppendValidates(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo)
	ctx := context.Background()

	_, err := svc.Append(ctx, Entry{Action: "drop", PermissionType: catalog.CategoryMenu, UserID: "u1", CreatedBy: "a1"})
	require.Error(t, err)

	_, err = svc.Append(ctx, Entry{Action: ActionGrant, PermissionType: "buttons", UserID: "u1", CreatedBy: "a1"})
	require.Error(t, err)

	_, err = svc.Append(ctx, mkEntry(ActionGrant, ""))
	require.Error(t, err)

	stored, err := svc.Append(ctx, mkEntry(ActionGrant, "u1"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.ID)
	assert.False(t, stored.CreatedAt.IsZero())
}

func TestAppendSetsCreatedAtOnce(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo)
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	stored, err := svc.Append(context.Background(), mkEntry(ActionRevoke, "u2"))
	require.NoError(t, err)
	assert.Equal(t, fixed, stored.CreatedAt)

	explicit := mkEntry(ActionRevoke, "u2")
	explicit.CreatedAt = fixed.Add(-time.Hour)
	stored, err = svc.Append(context.Background(), explicit)
	require.NoError(t, err)
	assert.Equal(t, fixed.Add(-time.Hour), stored.CreatedAt)
}

func TestQueryPagingProbe(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := svc.Append(ctx, mkEntry(ActionGrant, "u1"))
		require.NoError(t, err)
	}

	result, err := svc.Query(ctx, Filters{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, result.Entries, 2)
	assert.True(t, result.Paging.HasNext)
	assert.Equal(t, 2, result.Paging.NextPage)
	assert.Equal(t, 0, result.Paging.PrevPage)
	assert.Equal(t, 3, repo.lastLimit, "service probes one row past the page")
	assert.Equal(t, 0, repo.lastOffset)

	result, err = svc.Query(ctx, Filters{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, result.Entries, 1)
	assert.False(t, result.Paging.HasNext)
	assert.Equal(t, 1, result.Paging.PrevPage)
}

func TestQueryClampsPageSize(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo)

	_, err := svc.Query(context.Background(), Filters{PageSize: 500})
	require.NoError(t, err)
	assert.Equal(t, maxPageSize+1, repo.lastLimit)

	_, err = svc.Query(context.Background(), Filters{})
	require.NoError(t, err)
	assert.Equal(t, defaultPageSize+1, repo.lastLimit)
}

func TestWriteCSV(t *testing.T) {
	target := "u2"
	entries := []Entry{{
		ID:             7,
		Action:         ActionModify,
		PermissionType: catalog.CategoryFunction,
		PermissionKey:  "data.export",
		UserID:         "u1",
		TargetUserID:   &target,
		OldValue:       Snapshot([]string{"data.export"}),
		NewValue:       Snapshot(nil),
		Reason:         "offboarding",
		CreatedBy:      "admin-1",
		CreatedAt:      time.Date(2025, 5, 1, 8, 30, 0, 0, time.UTC),
	}}
	raw, err := WriteCSV(entries)
	require.NoError(t, err)
	out := string(raw)
	assert.Contains(t, out, "id,created_at,action")
	assert.Contains(t, out, "2025-05-01T08:30:00Z")
	assert.Contains(t, out, "data.export")
	assert.Contains(t, out, "offboarding")
}
