package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offspring2k5/neveralone/internal/domain"
)

func TestNewSettings_Valid(t *testing.T) {
	s, err := domain.NewSettings(true, 8, "theme_cozy", true)
	require.NoError(t, err)
	assert.True(t, s.IsPrivate())
	assert.Equal(t, 8, s.MaxUsers())
	assert.Equal(t, "theme_cozy", s.Theme())
	assert.True(t, s.AutoStartTimer())
}

func TestNewSettings_InvalidMaxUsers(t *testing.T) {
	for _, maxUsers := range []int{0, -1} {
		_, err := domain.NewSettings(false, maxUsers, "default", false)
		require.Error(t, err)

		var validationErr *domain.ValidationError
		require.ErrorAs(t, err, &validationErr)
		assert.Equal(t, "maxUsers", validationErr.Field)
	}
}

func TestNewSettings_EmptyTheme(t *testing.T) {
	_, err := domain.NewSettings(false, 10, "", false)
	require.Error(t, err)

	var validationErr *domain.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "theme", validationErr.Field)
}

func TestSettings_Snapshot(t *testing.T) {
	s, err := domain.NewSettings(true, 4, "theme_space", false)
	require.NoError(t, err)

	snap := s.Snapshot()
	assert.Equal(t, domain.SettingsSnapshot{
		IsPrivate:      true,
		MaxUsers:       4,
		Theme:          "theme_space",
		AutoStartTimer: false,
	}, snap)
}
