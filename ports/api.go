package ports

import (
	"context"
)

// Driver - pumps a single transaction over one network association.
type Driver interface {
	// Run opens the association, drains the transaction's queue onto the
	// wire, feeds inbound datagrams back into it, and blocks until the
	// association closes. It returns the transaction's Result, if any.
	Run(ctx context.Context) (*Result, error)
}
