// Package queue provides the durable pending mutation queues. Each mutation
// kind has its own queue backed by a partition of the local store.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/farmlink/agrosync/internal/db"
	"github.com/farmlink/agrosync/internal/errors"
	"github.com/farmlink/agrosync/internal/logging"
	"github.com/farmlink/agrosync/internal/models"
	"github.com/farmlink/agrosync/internal/uuid"
)

// Queue holds pending mutations of one kind in createdAt order.
type Queue struct {
	store     *db.Store
	partition db.Partition
	kind      models.MutationKind

	mu      sync.Mutex
	lastTS  int64
	nowFunc func() time.Time
}

// New creates a Queue for kind stored in partition p.
func New(store *db.Store, p db.Partition, kind models.MutationKind) *Queue {
	return &Queue{
		store:     store,
		partition: p,
		kind:      kind,
		nowFunc:   time.Now,
	}
}

// Kind returns the mutation kind this queue holds.
func (q *Queue) Kind() models.MutationKind {
	return q.kind
}

// nextTimestamp returns the current time in unix millis, bumped past the
// previous value so two enqueues in the same millisecond keep their order.
func (q *Queue) nextTimestamp() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()

	ts := q.nowFunc().UnixMilli()
	if ts <= q.lastTS {
		ts = q.lastTS + 1
	}
	q.lastTS = ts
	return ts
}

// Enqueue validates payload and persists it as a new pending mutation. It
// never contacts the remote backend. A store failure is returned so the
// caller does not report the action as saved.
func (q *Queue) Enqueue(ctx context.Context, payload models.Payload) (*models.PendingMutation, error) {
	if payload != nil && payload.Kind() != q.kind {
		return nil, errors.New(errors.ErrInvalid,
			fmt.Sprintf("%s payload cannot be queued on the %s queue", payload.Kind(), q.kind))
	}
	if err := models.ValidatePayload(payload); err != nil {
		return nil, err
	}

	m := &models.PendingMutation{
		LocalID:   uuid.NewLocalID(),
		Kind:      q.kind,
		CreatedAt: q.nextTimestamp(),
		SyncState: models.SyncStatePending,
		Payload:   payload,
	}
	if err := q.put(ctx, m); err != nil {
		return nil, err
	}

	logging.Debug("Mutation enqueued", map[string]interface{}{
		"local_id": m.LocalID,
		"kind":     string(q.kind),
	})
	return m, nil
}

func (q *Queue) put(ctx context.Context, m *models.PendingMutation) error {
	return q.store.Put(ctx, q.partition, m.LocalID, m.CreatedAt, m)
}

// List returns every mutation in the queue, oldest first.
func (q *Queue) List(ctx context.Context) ([]*models.PendingMutation, error) {
	return db.GetAll[*models.PendingMutation](ctx, q.store, q.partition)
}

// Get returns the mutation with localID. A missing entry yields found == false.
func (q *Queue) Get(ctx context.Context, localID string) (*models.PendingMutation, bool, error) {
	return db.GetByKey[*models.PendingMutation](ctx, q.store, q.partition, localID)
}

// UpdateState sets the sync state and last error of localID. If the entry
// has been removed in the meantime this is a no-op.
func (q *Queue) UpdateState(ctx context.Context, localID string, state models.SyncState, errMsg string) error {
	_, err := db.Update(ctx, q.store, q.partition, localID, func(m *models.PendingMutation) (bool, error) {
		m.SyncState = state
		m.LastError = errMsg
		return true, nil
	})
	return err
}

// Claim marks localID syncing and returns the entry as stored at that moment.
// ok is false if the entry is gone or failed, in which case nothing changes.
func (q *Queue) Claim(ctx context.Context, localID string) (*models.PendingMutation, bool, error) {
	var claimed models.PendingMutation
	ok, err := db.Update(ctx, q.store, q.partition, localID, func(m *models.PendingMutation) (bool, error) {
		if m.SyncState == models.SyncStateFailed {
			return false, nil
		}
		m.SyncState = models.SyncStateSyncing
		m.LastError = ""
		claimed = *m
		return true, nil
	})
	if err != nil || !ok {
		return nil, false, err
	}
	return &claimed, true, nil
}

// Modify applies fn to the stored entry and writes the result back in one
// step, keeping its createdAt position. An error from fn leaves the entry
// unchanged; so does a result whose payload is no longer valid.
func (q *Queue) Modify(ctx context.Context, localID string, fn func(m *models.PendingMutation) error) (*models.PendingMutation, error) {
	var modified models.PendingMutation
	ok, err := db.Update(ctx, q.store, q.partition, localID, func(m *models.PendingMutation) (bool, error) {
		if err := fn(m); err != nil {
			return false, err
		}
		if m.LocalID != localID || m.Payload == nil || m.Payload.Kind() != q.kind {
			return false, errors.New(errors.ErrInvalid, fmt.Sprintf("entry %s does not belong on the %s queue", localID, q.kind))
		}
		if err := models.ValidatePayload(m.Payload); err != nil {
			return false, err
		}
		modified = *m
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.New(errors.ErrNotFound, fmt.Sprintf("entry %s not found", localID))
	}
	return &modified, nil
}

// Replace rewrites an existing entry, keeping its createdAt position. The
// payload must still be of the queue's kind and valid.
func (q *Queue) Replace(ctx context.Context, m *models.PendingMutation) error {
	if m.Payload == nil || m.Payload.Kind() != q.kind {
		return errors.New(errors.ErrInvalid, fmt.Sprintf("entry %s does not belong on the %s queue", m.LocalID, q.kind))
	}
	_, err := q.Modify(ctx, m.LocalID, func(cur *models.PendingMutation) error {
		*cur = *m
		return nil
	})
	return err
}

// RemoveIf deletes localID if check accepts the stored entry. A missing entry
// is ErrNotFound; an error from check keeps the entry and is returned.
func (q *Queue) RemoveIf(ctx context.Context, localID string, check func(m *models.PendingMutation) error) error {
	found, err := db.DeleteIf(ctx, q.store, q.partition, localID, check)
	if err != nil {
		return err
	}
	if !found {
		return errors.New(errors.ErrNotFound, fmt.Sprintf("entry %s not found", localID))
	}
	return nil
}

// Remove deletes localID. Removing a missing entry succeeds.
func (q *Queue) Remove(ctx context.Context, localID string) error {
	return q.store.Delete(ctx, q.partition, localID)
}

// CountPendingAndSyncing counts entries that are not failed.
func (q *Queue) CountPendingAndSyncing(ctx context.Context) (int, error) {
	items, err := q.List(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, m := range items {
		if m.SyncState != models.SyncStateFailed {
			n++
		}
	}
	return n, nil
}

// Failed returns the failed entries, oldest first.
func (q *Queue) Failed(ctx context.Context) ([]*models.PendingMutation, error) {
	items, err := q.List(ctx)
	if err != nil {
		return nil, err
	}
	var failed []*models.PendingMutation
	for _, m := range items {
		if m.SyncState == models.SyncStateFailed {
			failed = append(failed, m)
		}
	}
	return failed, nil
}

// Requeue moves a failed entry back to pending so the next drain retries it.
// It reports whether an entry was requeued.
func (q *Queue) Requeue(ctx context.Context, localID string) (bool, error) {
	ok, err := db.Update(ctx, q.store, q.partition, localID, func(m *models.PendingMutation) (bool, error) {
		if m.SyncState != models.SyncStateFailed {
			return false, nil
		}
		m.SyncState = models.SyncStatePending
		m.LastError = ""
		return true, nil
	})
	if err != nil || !ok {
		return false, err
	}
	logging.Info("Mutation requeued", map[string]interface{}{
		"local_id": localID,
		"kind":     string(q.kind),
	})
	return true, nil
}

// RequeueFailed requeues every failed entry and returns how many moved.
func (q *Queue) RequeueFailed(ctx context.Context) (int, error) {
	failed, err := q.Failed(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, m := range failed {
		ok, err := q.Requeue(ctx, m.LocalID)
		if err != nil {
			return n, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}
