// Package instrument holds a small ordered registry of instrument
// metadata: tick size and lot size, keyed by instrument id. The
// matching core (orderbook.Book) itself stays single-instrument and
// never consults this registry directly; bookservice.Service does,
// snapping every submitted order's price to tick and validating its
// quantity against lot size before the order ever reaches the book.
// That keeps tick/lot canonicalization at the gateway layer while
// leaving room for a multi-instrument deployment to register more
// than one id here, each fronting its own orderbook.Book/bookservice
// pair.
package instrument

import (
	"fmt"

	"github.com/emirpasic/gods/trees/redblacktree"
	"github.com/emirpasic/gods/utils"
)

// Metadata describes one tradable instrument.
type Metadata struct {
	ID       string
	TickSize int64 // smallest allowed price increment, scaled like domain.Order.Price
	LotSize  int64 // smallest allowed quantity increment
}

// Registry is an ordered, string-keyed store of instrument metadata,
// backed by a red-black tree rather than a plain map so a caller can
// iterate instruments in id order (for a listing endpoint, or
// deterministic startup logging) without a separate sort step.
type Registry struct {
	tree *redblacktree.Tree // string -> Metadata
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tree: redblacktree.NewWith(utils.StringComparator),
	}
}

// ErrNotFound is returned by Get when no instrument is registered
// under the given id.
var ErrNotFound = fmt.Errorf("instrument: not found")

// ErrAlreadyRegistered is returned by Register when the id is already
// present; re-registration must go through Update.
var ErrAlreadyRegistered = fmt.Errorf("instrument: already registered")

// Register adds metadata for a new instrument. Returns
// ErrAlreadyRegistered if the id is already present.
func (r *Registry) Register(m Metadata) error {
	if m.ID == "" {
		return fmt.Errorf("instrument: id must not be empty")
	}
	if m.TickSize <= 0 || m.LotSize <= 0 {
		return fmt.Errorf("instrument: tick size and lot size must be positive")
	}
	if _, found := r.tree.Get(m.ID); found {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, m.ID)
	}
	r.tree.Put(m.ID, m)
	return nil
}

// Update overwrites metadata for an already-registered instrument.
func (r *Registry) Update(m Metadata) error {
	if _, found := r.tree.Get(m.ID); !found {
		return fmt.Errorf("%w: %s", ErrNotFound, m.ID)
	}
	r.tree.Put(m.ID, m)
	return nil
}

// Get returns the metadata registered for id.
func (r *Registry) Get(id string) (Metadata, error) {
	v, found := r.tree.Get(id)
	if !found {
		return Metadata{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return v.(Metadata), nil
}

// SnapToTick rounds price down to the nearest valid tick for id.
func (r *Registry) SnapToTick(id string, price int64) (int64, error) {
	m, err := r.Get(id)
	if err != nil {
		return 0, err
	}
	return price - (price % m.TickSize), nil
}

// ValidLot reports whether qty is a whole multiple of id's lot size.
func (r *Registry) ValidLot(id string, qty int64) (bool, error) {
	m, err := r.Get(id)
	if err != nil {
		return false, err
	}
	return qty%m.LotSize == 0, nil
}

// List returns every registered instrument's metadata in ascending id
// order.
func (r *Registry) List() []Metadata {
	it := r.tree.Iterator()
	it.Begin()
	out := make([]Metadata, 0, r.tree.Size())
	for it.Next() {
		out = append(out, it.Value().(Metadata))
	}
	return out
}

// Len returns the number of registered instruments.
func (r *Registry) Len() int {
	return r.tree.Size()
}
