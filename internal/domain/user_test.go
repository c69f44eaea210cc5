package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offspring2k5/neveralone/internal/domain"
)

func TestUser_InventoryRoundTrip(t *testing.T) {
	user := &domain.User{ID: 1, Username: "alice"}

	// 空库存的各种形态都应解析为空列表
	items, err := user.InventoryItems()
	require.NoError(t, err)
	assert.Empty(t, items)

	user.Inventory = "null"
	items, err = user.InventoryItems()
	require.NoError(t, err)
	assert.Empty(t, items)

	require.NoError(t, user.SetInventoryItems([]string{"theme_cozy", "pack_hearts"}))
	items, err = user.InventoryItems()
	require.NoError(t, err)
	assert.Equal(t, []string{"theme_cozy", "pack_hearts"}, items)
}

func TestUser_InventoryCorrupt(t *testing.T) {
	user := &domain.User{Inventory: "{broken"}
	_, err := user.InventoryItems()
	assert.Error(t, err)
}

func TestUser_Profile(t *testing.T) {
	user := &domain.User{ID: 7, Username: "dora", AvatarURL: "https://cdn/a.png", Points: 42}
	profile := user.Profile()
	assert.Equal(t, domain.Profile{UserID: 7, Username: "dora", AvatarURL: "https://cdn/a.png", Points: 42}, profile)
}
