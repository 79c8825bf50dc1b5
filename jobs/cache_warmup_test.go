package jobs

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freightdeck/freightdeck/internal/permissions"
)

type warmupStore struct {
	overrides map[string]permissions.UserOverride
}

func (s *warmupStore) RoleTemplate(context.Context, string) (*permissions.RoleTemplate, error) {
	return nil, nil
}

func (s *warmupStore) ListRoleTemplates(context.Context) ([]permissions.RoleTemplate, error) {
	return nil, nil
}

func (s *warmupStore) Override(_ context.Context, userID string, projectID *string) (*permissions.UserOverride, error) {
	override, ok := s.overrides[permissions.ScopeKey(userID, projectID)]
	if !ok {
		return nil, nil
	}
	return &override, nil
}

func (s *warmupStore) ListOverrides(context.Context, string) ([]permissions.UserOverride, error) {
	return nil, nil
}

func (s *warmupStore) InTx(context.Context, func(permissions.MutationStore) error) error {
	return nil
}

func TestCacheWarmupPopulatesRoleScopedKeys(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := permissions.NewCache(client, time.Minute)

	store := &warmupStore{overrides: map[string]permissions.UserOverride{
		permissions.ScopeKey("u1", nil): {
			UserID:      "u1",
			Role:        "finance",
			InheritRole: false,
			Permissions: permissions.PermissionSet{Function: []string{"finance.export"}},
		},
	}}
	svc := permissions.NewService(store, nil, cache, nil, slog.Default())
	job := NewCacheWarmupJob(nil, svc, slog.Default())

	warmed, skipped := job.warm(context.Background(), []overrideScope{
		{userID: "u1", role: "finance"},
		{userID: "u2"},
	})
	assert.Equal(t, 1, warmed)
	assert.Equal(t, 1, skipped, "a scope without a recorded role cannot be warmed")

	resolved, ok, err := cache.GetResolved(context.Background(), "finance", "u1", nil)
	require.NoError(t, err)
	require.True(t, ok, "the warmed entry must live under the user's real role key")
	assert.Equal(t, permissions.SourceOverride, resolved.Source)
	assert.Equal(t, []string{"finance.export"}, resolved.Permissions.Function)
}
