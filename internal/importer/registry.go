package importer

import (
	"context"

	"github.com/koffiyao/cartes/internal/cards"
)

// cardRegistry adapts the PostgreSQL card store to the Registry seam the
// batch processor works against.
type cardRegistry struct {
	store *cards.Store
}

// NewCardRegistry wraps a card store as the import engine's Registry.
func NewCardRegistry(store *cards.Store) Registry {
	return cardRegistry{store: store}
}

func (r cardRegistry) InTx(ctx context.Context, fn func(tx RegistryTx) error) error {
	return r.store.InTx(ctx, func(q *cards.Queries) error {
		return fn(q)
	})
}
