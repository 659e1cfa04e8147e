package generic

import "context"

// Collection is a typed view of one collection: the query engine plus the
// single-record operations record-type repositories build on.
type Collection[R Record] struct {
	*Engine[R]
}

// NewCollection wires a typed collection over a document store.
func NewCollection[R Record](store DocumentStore, m Mapping, codec Codec[R], observer FallbackObserver) *Collection[R] {
	e := NewEngine(store, m, codec)
	e.Observer = observer
	return &Collection[R]{Engine: e}
}

// Put encodes and stores a record.
func (c *Collection[R]) Put(ctx context.Context, r R) error {
	return c.Store.Put(ctx, c.Mapping, c.Codec.Encode(r))
}

// Get loads one record of the owner.
func (c *Collection[R]) Get(ctx context.Context, owner OwnerID, id string) (R, error) {
	var zero R
	doc, err := c.Store.Get(ctx, c.Mapping, owner, id)
	if err != nil {
		return zero, err
	}
	return c.Codec.Decode(doc)
}

// Delete removes one record of the owner.
func (c *Collection[R]) Delete(ctx context.Context, owner OwnerID, id string) error {
	return c.Store.Delete(ctx, c.Mapping, owner, id)
}
