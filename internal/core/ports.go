package core

import "context"

// InstallmentState is the mutable part of a stored installment.
type InstallmentState struct {
	Status   Value
	DueLimit Value
}

// Ports for the storage adapter.
type (
	// Tx writes the records of one import batch. Every call runs inside
	// the same storage transaction.
	Tx interface {
		InsertRecord(ctx context.Context, rec Record) (id int64, err error)
		// PriorInstallment returns the most recently stored state for key
		// under the given reference day. found is false when none exists.
		PriorInstallment(ctx context.Context, key NaturalKey, referenceDay string) (state InstallmentState, found bool, err error)
	}

	// Transactor runs fn in one transaction: committed when fn returns
	// nil, rolled back otherwise.
	Transactor interface {
		WithTx(ctx context.Context, fn func(Tx) error) error
	}
)
