package instrument

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Metadata{ID: "XYZ", TickSize: 100, LotSize: 1}))

	m, err := r.Get("XYZ")
	require.NoError(t, err)
	assert.Equal(t, int64(100), m.TickSize)
}

func TestRegisterRejectsDuplicate(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Metadata{ID: "XYZ", TickSize: 100, LotSize: 1}))
	err := r.Register(Metadata{ID: "XYZ", TickSize: 50, LotSize: 1})
	assert.ErrorIs(t, err, ErrAlreadyRegistered)
}

func TestGetUnknownReturnsErrNotFound(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("NOPE")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateRequiresExistingEntry(t *testing.T) {
	r := NewRegistry()
	err := r.Update(Metadata{ID: "XYZ", TickSize: 100, LotSize: 1})
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, r.Register(Metadata{ID: "XYZ", TickSize: 100, LotSize: 1}))
	require.NoError(t, r.Update(Metadata{ID: "XYZ", TickSize: 50, LotSize: 1}))

	m, err := r.Get("XYZ")
	require.NoError(t, err)
	assert.Equal(t, int64(50), m.TickSize)
}

func TestSnapToTickRoundsDown(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Metadata{ID: "XYZ", TickSize: 50, LotSize: 1}))

	snapped, err := r.SnapToTick("XYZ", 123)
	require.NoError(t, err)
	assert.Equal(t, int64(100), snapped)
}

func TestValidLot(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Metadata{ID: "XYZ", TickSize: 1, LotSize: 10}))

	ok, err := r.ValidLot("XYZ", 30)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.ValidLot("XYZ", 31)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListReturnsAscendingIDOrder(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Metadata{ID: "ZZZ", TickSize: 1, LotSize: 1}))
	require.NoError(t, r.Register(Metadata{ID: "AAA", TickSize: 1, LotSize: 1}))
	require.NoError(t, r.Register(Metadata{ID: "MMM", TickSize: 1, LotSize: 1}))

	list := r.List()
	require.Len(t, list, 3)
	assert.Equal(t, []string{"AAA", "MMM", "ZZZ"}, []string{list[0].ID, list[1].ID, list[2].ID})
	assert.Equal(t, 3, r.Len())
}
