package zones

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MineSafetyAPI/internal/models"
)

func TestDefaultRegistry(t *testing.T) {
	r, err := NewRegistry(DefaultZones())
	require.NoError(t, err)

	assert.Len(t, r.List(), 7)
	assert.True(t, r.Exists("jharia-a"))

	z, err := r.Get("kolar-l3")
	require.NoError(t, err)
	assert.Equal(t, "Karnataka", z.State)
	assert.False(t, z.CreatedAt.IsZero())
	assert.Equal(t, "Kolar Gold Fields - Level 3", r.Name("kolar-l3"))
	assert.Equal(t, "nowhere", r.Name("nowhere"))
}

func TestRegistryUnknownZone(t *testing.T) {
	r, err := NewRegistry(nil)
	require.NoError(t, err)

	_, err = r.Get("z1")
	assert.True(t, errors.Is(err, models.ErrUnknownZone))
	assert.Empty(t, r.IDs())
}

func TestRegistryRejectsBadZones(t *testing.T) {
	_, err := NewRegistry([]models.Zone{{ID: "a"}, {ID: "a"}})
	assert.Error(t, err)

	_, err = NewRegistry([]models.Zone{{ID: "a", WorkerCount: -1}})
	assert.Error(t, err)

	_, err = NewRegistry([]models.Zone{{Name: "no id"}})
	assert.Error(t, err)
}

func TestRegistryListSorted(t *testing.T) {
	r, err := NewRegistry([]models.Zone{{ID: "c"}, {ID: "a"}, {ID: "b"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, r.IDs())
}
