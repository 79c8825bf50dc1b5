package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsDuplicateKeys(t *testing.T) {
	_, err := New(Document{
		Menu: []Group{
			{Name: "dashboard", Keys: []Key{{Key: "dashboard"}, {Key: "dashboard"}}},
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate key")
}

func TestNewRejectsEmptyKey(t *testing.T) {
	_, err := New(Document{
		Data: []Group{{Name: "scope", Keys: []Key{{Key: "  "}}}},
	})
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	c := Default()

	require.NoError(t, c.Validate(CategoryMenu, "dashboard.financial"))
	require.NoError(t, c.Validate(CategoryFunction, "data.export", "finance.reconcile"))

	err := c.Validate(CategoryMenu, "dashboard.nonexistent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dashboard.nonexistent")

	err = c.Validate(Category("buttons"), "anything")
	require.Error(t, err)
}

func TestGroupKeys(t *testing.T) {
	c := Default()

	keys := c.GroupKeys(CategoryMenu, "business")
	assert.Equal(t, []string{"business", "business.entry", "business.import", "business.maintenance", "business.scale"}, keys)

	assert.Nil(t, c.GroupKeys(CategoryMenu, "missing-group"))
}

func TestKeysSorted(t *testing.T) {
	c := Default()
	keys := c.Keys(CategoryData)
	require.NotEmpty(t, keys)
	for i := 1; i < len(keys); i++ {
		assert.Less(t, keys[i-1], keys[i])
	}
}

func TestParseCategory(t *testing.T) {
	got, err := ParseCategory(" Menu ")
	require.NoError(t, err)
	assert.Equal(t, CategoryMenu, got)

	_, err = ParseCategory("menus")
	require.Error(t, err)
}
