// Package ftstest provides an in-memory ftsindex.Index double for engine
// tests.
package ftstest

import (
	"context"
	"fmt"

	"triplestore.dev/updateengine/pkg/ftsindex"
)

// Update is one staged or committed text update, recorded for assertions.
type Update struct {
	ResourceID string
	PropertyID string
	Text       string
}

// Index records every committed update in Committed, in commit order.
// Staged-but-rolled-back updates never appear there.
type Index struct {
	Committed []Update

	staged map[string][]Update
}

var _ ftsindex.Index = (*Index)(nil)

func New() *Index {
	return &Index{staged: make(map[string][]Update)}
}

func (i *Index) Init(ctx context.Context, txnID string) error {
	i.staged[txnID] = nil
	return nil
}

func (i *Index) UpdateText(ctx context.Context, txnID, resourceID, propertyID, text string) error {
	if _, ok := i.staged[txnID]; !ok {
		return fmt.Errorf("ftstest: UpdateText without Init for txn %q", txnID)
	}
	i.staged[txnID] = append(i.staged[txnID], Update{ResourceID: resourceID, PropertyID: propertyID, Text: text})
	return nil
}

func (i *Index) Commit(ctx context.Context, txnID string) error {
	updates, ok := i.staged[txnID]
	if !ok {
		return fmt.Errorf("ftstest: Commit without Init for txn %q", txnID)
	}
	i.Committed = append(i.Committed, updates...)
	delete(i.staged, txnID)
	return nil
}

func (i *Index) Rollback(ctx context.Context, txnID string) error {
	delete(i.staged, txnID)
	return nil
}
