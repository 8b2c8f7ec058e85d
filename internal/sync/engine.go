// Package sync drains the pending mutation queues against the remote backend.
package sync

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/farmlink/agrosync/internal/errors"
	"github.com/farmlink/agrosync/internal/logging"
	"github.com/farmlink/agrosync/internal/models"
	"github.com/farmlink/agrosync/internal/sync/cache"
	"github.com/farmlink/agrosync/internal/sync/queue"
	"github.com/farmlink/agrosync/internal/uuid"
)

// SyncEventType identifies a sync notification.
type SyncEventType string

const (
	SyncEventStarted    SyncEventType = "started"
	SyncEventCompleted  SyncEventType = "completed"
	SyncEventFailed     SyncEventType = "failed"
	SyncEventItemSynced SyncEventType = "item_synced"
	SyncEventItemFailed SyncEventType = "item_failed"
)

// SyncEvent is delivered to the SyncEventHandler during SyncAll and drains.
type SyncEvent struct {
	Type      SyncEventType
	Kind      models.MutationKind
	LocalID   string
	Message   string
	Result    *models.FullSyncResult
	Timestamp time.Time
}

// SyncEventHandler receives sync notifications. Handlers are called
// synchronously from drain goroutines and must not block.
type SyncEventHandler interface {
	OnSyncEvent(event SyncEvent)
}

// commitFunc applies the cache follow-up of a mutation the remote accepted.
type commitFunc func(ctx context.Context) error

// sendFunc performs the remote call for one mutation.
type sendFunc func(ctx context.Context, m *models.PendingMutation) (commitFunc, error)

// Engine drains the four queues. At most one drain per queue runs at a time;
// drains of different queues are independent.
type Engine struct {
	queues *queue.Set
	cache  *cache.Cache
	remote Remote

	inFlight [4]atomic.Bool

	mu      sync.RWMutex
	handler SyncEventHandler
}

var _ Syncer = (*Engine)(nil)

// NewEngine creates an Engine.
func NewEngine(queues *queue.Set, c *cache.Cache, remote Remote) *Engine {
	return &Engine{
		queues: queues,
		cache:  c,
		remote: remote,
	}
}

// SetEventHandler sets the event handler for sync notifications.
func (e *Engine) SetEventHandler(handler SyncEventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handler = handler
}

func (e *Engine) emitEvent(event SyncEvent) {
	e.mu.RLock()
	handler := e.handler
	e.mu.RUnlock()

	if handler == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	handler.OnSyncEvent(event)
}

// Draining reports whether a drain of kind is in flight.
func (e *Engine) Draining(kind models.MutationKind) bool {
	slot := slotFor(kind)
	if slot < 0 {
		return false
	}
	return e.inFlight[slot].Load()
}

func slotFor(kind models.MutationKind) int {
	for i, k := range models.AllKinds {
		if k == kind {
			return i
		}
	}
	return -1
}

// DrainNewListings publishes every pending new listing.
func (e *Engine) DrainNewListings(ctx context.Context) (models.SyncResult, error) {
	return e.drain(ctx, e.queues.NewListings, e.sendNewListing)
}

// DrainListingEdits sends every pending listing edit.
func (e *Engine) DrainListingEdits(ctx context.Context) (models.SyncResult, error) {
	return e.drain(ctx, e.queues.ListingEdits, e.sendListingEdit)
}

// DrainListingDeletes sends every pending listing deletion.
func (e *Engine) DrainListingDeletes(ctx context.Context) (models.SyncResult, error) {
	return e.drain(ctx, e.queues.ListingDeletes, e.sendListingDelete)
}

// DrainOrderUpdates sends every pending order status change.
func (e *Engine) DrainOrderUpdates(ctx context.Context) (models.SyncResult, error) {
	return e.drain(ctx, e.queues.OrderUpdates, e.sendOrderUpdate)
}

// Drain runs the drain for kind.
func (e *Engine) Drain(ctx context.Context, kind models.MutationKind) (models.SyncResult, error) {
	switch kind {
	case models.KindNewListing:
		return e.DrainNewListings(ctx)
	case models.KindListingEdit:
		return e.DrainListingEdits(ctx)
	case models.KindListingDelete:
		return e.DrainListingDeletes(ctx)
	case models.KindOrderUpdate:
		return e.DrainOrderUpdates(ctx)
	default:
		return models.NewSyncResult(), errors.New(errors.ErrInvalid, fmt.Sprintf("unknown mutation kind %q", kind))
	}
}

// drain processes a snapshot of q in createdAt order. If a drain of the same
// queue is already running it returns an empty result immediately. Failed
// entries are skipped; an entry left syncing by an interrupted run is sent
// again under the same idempotency key. A remote failure marks only that
// entry failed; a storage failure aborts the drain and is returned with the
// partial result.
func (e *Engine) drain(ctx context.Context, q *queue.Queue, send sendFunc) (models.SyncResult, error) {
	result := models.NewSyncResult()
	kind := q.Kind()

	flag := &e.inFlight[slotFor(kind)]
	if !flag.CompareAndSwap(false, true) {
		logging.Debug("Drain already in progress, skipping", map[string]interface{}{"kind": string(kind)})
		return result, nil
	}
	defer flag.Store(false)

	items, err := q.List(ctx)
	if err != nil {
		return result, err
	}

	for _, snap := range items {
		if snap.SyncState == models.SyncStateFailed {
			continue
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}

		// Claim rereads the entry, so a local edit or discard made after the
		// snapshot wins.
		m, ok, err := q.Claim(ctx, snap.LocalID)
		if err != nil {
			return result, err
		}
		if !ok {
			continue
		}

		commit, err := send(uuid.WithIdempotencyKey(ctx, m.LocalID), m)

		// The outcome is recorded even if ctx ended during the remote call.
		recordCtx := context.WithoutCancel(ctx)
		if err != nil {
			msg := errors.Message(err)
			if err := q.UpdateState(recordCtx, m.LocalID, models.SyncStateFailed, msg); err != nil {
				return result, err
			}
			result.FailedCount++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", m.Label(), msg))

			logging.ErrorWithCode("Mutation sync failed", string(errors.ErrRemoteOperation), err,
				map[string]interface{}{"kind": string(kind), "local_id": m.LocalID})
			e.emitEvent(SyncEvent{Type: SyncEventItemFailed, Kind: kind, LocalID: m.LocalID, Message: msg})
			continue
		}

		if err := q.Remove(recordCtx, m.LocalID); err != nil {
			return result, err
		}
		result.SuccessCount++

		if commit != nil {
			if err := commit(recordCtx); err != nil {
				return result, err
			}
		}
		e.emitEvent(SyncEvent{Type: SyncEventItemSynced, Kind: kind, LocalID: m.LocalID})
	}

	if result.Attempted() > 0 {
		logging.Info("Drain completed", map[string]interface{}{
			"kind":    string(kind),
			"success": result.SuccessCount,
			"failed":  result.FailedCount,
		})
	}
	return result, nil
}

func (e *Engine) sendNewListing(ctx context.Context, m *models.PendingMutation) (commitFunc, error) {
	p, ok := m.Payload.(models.NewListing)
	if !ok {
		return nil, payloadMismatch(m)
	}
	created, err := e.remote.CreateListing(ctx, p)
	if err != nil {
		return nil, errors.Remote("create listing", err)
	}
	return func(ctx context.Context) error {
		if created.ID == "" {
			return nil
		}
		return e.cache.PutListing(ctx, created)
	}, nil
}

func (e *Engine) sendListingEdit(ctx context.Context, m *models.PendingMutation) (commitFunc, error) {
	p, ok := m.Payload.(models.ListingEdit)
	if !ok {
		return nil, payloadMismatch(m)
	}
	updated, err := e.remote.UpdateListing(ctx, p.ListingID, p.Patch)
	if err != nil {
		return nil, errors.Remote("update listing", err)
	}
	return func(ctx context.Context) error {
		if updated.ID == p.ListingID {
			return e.cache.PutListing(ctx, updated)
		}
		_, err := e.cache.PatchListing(ctx, p.ListingID, p.Patch)
		return err
	}, nil
}

func (e *Engine) sendListingDelete(ctx context.Context, m *models.PendingMutation) (commitFunc, error) {
	p, ok := m.Payload.(models.ListingDelete)
	if !ok {
		return nil, payloadMismatch(m)
	}
	if err := e.remote.DeleteListing(ctx, p.ListingID); err != nil {
		return nil, errors.Remote("delete listing", err)
	}
	return func(ctx context.Context) error {
		return e.cache.DeleteListing(ctx, p.ListingID)
	}, nil
}

func (e *Engine) sendOrderUpdate(ctx context.Context, m *models.PendingMutation) (commitFunc, error) {
	p, ok := m.Payload.(models.OrderUpdate)
	if !ok {
		return nil, payloadMismatch(m)
	}
	if err := e.remote.InvokeOrderAction(ctx, p.Action, p.OrderID, p.Data); err != nil {
		return nil, errors.Remote("order action", err)
	}
	return func(ctx context.Context) error {
		status, ok := p.Action.ResultingStatus()
		if !ok {
			return nil
		}
		_, err := e.cache.SetOrderStatus(ctx, p.OrderID, status)
		return err
	}, nil
}

func payloadMismatch(m *models.PendingMutation) error {
	return errors.New(errors.ErrInvalid, fmt.Sprintf("unexpected %T payload for %s", m.Payload, m.Kind))
}

// SyncAll drains every queue concurrently. Each queue's result is recorded
// even when another queue fails; the first storage error is returned with
// the partial results.
func (e *Engine) SyncAll(ctx context.Context) (*models.FullSyncResult, error) {
	e.emitEvent(SyncEvent{Type: SyncEventStarted})

	results := make([]models.SyncResult, len(models.AllKinds))
	var g errgroup.Group
	for i, kind := range models.AllKinds {
		g.Go(func() error {
			r, err := e.Drain(ctx, kind)
			results[i] = r
			return err
		})
	}
	err := g.Wait()

	full := &models.FullSyncResult{}
	for i, kind := range models.AllKinds {
		full.Set(kind, results[i])
	}

	if err != nil {
		logging.ErrorWithCode("Sync aborted", string(errors.ErrSyncFailed), err,
			map[string]interface{}{"success": full.SuccessCount, "failed": full.FailedCount})
		e.emitEvent(SyncEvent{Type: SyncEventFailed, Message: err.Error(), Result: full})
		return full, err
	}

	e.emitEvent(SyncEvent{Type: SyncEventCompleted, Message: full.Summary(), Result: full})
	return full, nil
}
