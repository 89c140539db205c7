package priceladder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchcore/internal/domain"
)

func mkOrder(id string, qty int64) *domain.Order {
	return &domain.Order{ID: id, RemainingQty: qty}
}

func TestPriceLevelFIFOAndTotalQty(t *testing.T) {
	pl := newPriceLevel(1000)
	pl.Enqueue(mkOrder("a", 5))
	pl.Enqueue(mkOrder("b", 3))
	pl.Enqueue(mkOrder("c", 7))

	assert.Equal(t, int64(15), pl.TotalQty())
	assert.Equal(t, "a", pl.Front().ID)

	front, drained := pl.Fill(5)
	assert.Equal(t, "a", front.ID)
	assert.True(t, drained)
	assert.Equal(t, int64(10), pl.TotalQty())
	assert.Equal(t, "b", pl.Front().ID)
}

func TestPriceLevelPartialFillKeepsFront(t *testing.T) {
	pl := newPriceLevel(1000)
	pl.Enqueue(mkOrder("a", 5))

	front, drained := pl.Fill(2)
	assert.False(t, drained)
	assert.Equal(t, int64(3), front.RemainingQty)
	assert.Equal(t, "a", pl.Front().ID)
	assert.Equal(t, int64(3), pl.TotalQty())
}

func TestPriceLevelRemoveByIDArbitrary(t *testing.T) {
	pl := newPriceLevel(1000)
	pl.Enqueue(mkOrder("a", 5))
	pl.Enqueue(mkOrder("b", 3))
	pl.Enqueue(mkOrder("c", 7))

	removed := pl.Remove("b")
	require.NotNil(t, removed)
	assert.Equal(t, int64(12), pl.TotalQty())

	ids := []string{}
	for _, o := range pl.Orders() {
		ids = append(ids, o.ID)
	}
	assert.Equal(t, []string{"a", "c"}, ids)

	assert.Nil(t, pl.Remove("b"))
}

func TestBidLadderOrdersHighestFirst(t *testing.T) {
	l := NewBidLadder()
	l.GetOrCreate(100)
	l.GetOrCreate(103)
	l.GetOrCreate(101)

	levels := l.Levels(0)
	require.Len(t, levels, 3)
	assert.Equal(t, []int64{103, 101, 100}, []int64{levels[0].Price, levels[1].Price, levels[2].Price})

	best, ok := l.Best()
	require.True(t, ok)
	assert.Equal(t, int64(103), best.Price)
}

func TestAskLadderOrdersLowestFirst(t *testing.T) {
	l := NewAskLadder()
	l.GetOrCreate(100)
	l.GetOrCreate(97)
	l.GetOrCreate(99)

	best, ok := l.Best()
	require.True(t, ok)
	assert.Equal(t, int64(97), best.Price)
}

func TestLadderRemoveEmptiesLevel(t *testing.T) {
	l := NewAskLadder()
	lvl := l.GetOrCreate(100)
	lvl.Enqueue(mkOrder("a", 1))
	lvl.Remove("a")
	assert.True(t, lvl.Empty())

	l.Remove(100)
	_, ok := l.Get(100)
	assert.False(t, ok)
	assert.Equal(t, 0, l.Len())
}
