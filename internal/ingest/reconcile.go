package ingest

import (
	"context"
	"fmt"

	"secureflow/internal/core"
)

// PriorLookup finds the stored state of an installment for a reference day.
type PriorLookup interface {
	PriorInstallment(ctx context.Context, key core.NaturalKey, referenceDay string) (core.InstallmentState, bool, error)
}

// Resolver carries hand-edited installment state forward across imports.
type Resolver struct {
	lookup PriorLookup
}

func NewResolver(lookup PriorLookup) *Resolver {
	return &Resolver{lookup: lookup}
}

// Resolve decides the status and due-limit date stored for a freshly
// imported installment. A stored value for the prior day wins over the
// fresh one; a missing status defaults to pendente. Only these two fields
// are carried forward.
func (r *Resolver) Resolve(ctx context.Context, key core.NaturalKey, freshStatus, freshDueLimit core.Value, priorLabel string) (core.Value, core.Value, error) {
	prior, found, err := r.lookup.PriorInstallment(ctx, key, priorLabel)
	if err != nil {
		return core.Null, core.Null, fmt.Errorf("lookup prior installment %s: %w", key, err)
	}

	status := firstPresent(freshStatus, core.Text(string(core.StatusPending)))
	due := freshDueLimit
	if found {
		status = firstPresent(prior.Status, status)
		due = firstPresent(prior.DueLimit, due)
	}
	return status, due, nil
}

func firstPresent(v, fallback core.Value) core.Value {
	if v.IsNull() {
		return fallback
	}
	return v
}
