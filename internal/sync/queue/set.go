package queue

import (
	"context"
	"fmt"

	"github.com/farmlink/agrosync/internal/db"
	"github.com/farmlink/agrosync/internal/errors"
	"github.com/farmlink/agrosync/internal/models"
)

// Set holds one queue per mutation kind.
type Set struct {
	NewListings    *Queue
	ListingEdits   *Queue
	ListingDeletes *Queue
	OrderUpdates   *Queue
}

// NewSet creates the four queues over store.
func NewSet(store *db.Store) *Set {
	return &Set{
		NewListings:    New(store, db.PartitionNewListings, models.KindNewListing),
		ListingEdits:   New(store, db.PartitionListingEdits, models.KindListingEdit),
		ListingDeletes: New(store, db.PartitionListingDeletes, models.KindListingDelete),
		OrderUpdates:   New(store, db.PartitionOrderUpdates, models.KindOrderUpdate),
	}
}

// All returns the queues in models.AllKinds order.
func (s *Set) All() []*Queue {
	return []*Queue{s.NewListings, s.ListingEdits, s.ListingDeletes, s.OrderUpdates}
}

// For returns the queue holding kind, or nil for an unknown kind.
func (s *Set) For(kind models.MutationKind) *Queue {
	for _, q := range s.All() {
		if q.kind == kind {
			return q
		}
	}
	return nil
}

// Enqueue routes payload to the queue for its kind.
func (s *Set) Enqueue(ctx context.Context, payload models.Payload) (*models.PendingMutation, error) {
	if payload == nil {
		return nil, errors.New(errors.ErrValidation, "payload is required")
	}
	q := s.For(payload.Kind())
	if q == nil {
		return nil, errors.New(errors.ErrInvalid, fmt.Sprintf("no queue for %s", payload.Kind()))
	}
	return q.Enqueue(ctx, payload)
}

// PendingCount sums the pending and syncing entries of every queue.
func (s *Set) PendingCount(ctx context.Context) (int, error) {
	total := 0
	for _, q := range s.All() {
		n, err := q.CountPendingAndSyncing(ctx)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// Find looks localID up in every queue.
func (s *Set) Find(ctx context.Context, localID string) (*models.PendingMutation, *Queue, error) {
	for _, q := range s.All() {
		m, found, err := q.Get(ctx, localID)
		if err != nil {
			return nil, nil, err
		}
		if found {
			return m, q, nil
		}
	}
	return nil, nil, errors.New(errors.ErrNotFound, fmt.Sprintf("mutation %s not found", localID))
}
