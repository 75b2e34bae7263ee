package repository

import (
	"context"
	"fmt"

	"peertrust/internal/domain"
)

// MatrixWriteError reports a trust matrix write that stopped partway. The
// first Written peers (in sorted id order) were persisted.
type MatrixWriteError struct {
	Written int
	Total   int
	Peer    domain.PeerID
	Err     error
}

func (e *MatrixWriteError) Error() string {
	return fmt.Sprintf("trust matrix write stopped at peer %s after %d of %d records: %v",
		e.Peer, e.Written, e.Total, e.Err)
}

func (e *MatrixWriteError) Unwrap() error {
	return e.Err
}

// WriteMatrix stores each record of m with store, in sorted id order,
// stopping at the first failure
func WriteMatrix(ctx context.Context, m domain.TrustMatrix, store func(context.Context, domain.PeerTrustData) error) error {
	ids := m.IDs()
	for i, id := range ids {
		d := m[id]
		if d.ID == "" {
			d.ID = id
		}
		if d.ID != id {
			return &MatrixWriteError{
				Written: i,
				Total:   len(ids),
				Peer:    id,
				Err:     fmt.Errorf("%w: matrix key %s holds record of peer %s", domain.ErrInvalidArgument, id, d.ID),
			}
		}
		if err := store(ctx, d); err != nil {
			return &MatrixWriteError{Written: i, Total: len(ids), Peer: id, Err: err}
		}
	}
	return nil
}
