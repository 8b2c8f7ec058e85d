// Package offline records user actions locally and hands them to the sync
// scheduler. Every action succeeds without a network; the remote call
// happens later in a queue drain.
package offline

import (
	"context"
	"fmt"
	"io"

	"github.com/farmlink/agrosync/internal/errors"
	"github.com/farmlink/agrosync/internal/logging"
	"github.com/farmlink/agrosync/internal/media"
	"github.com/farmlink/agrosync/internal/models"
	"github.com/farmlink/agrosync/internal/sync/cache"
	"github.com/farmlink/agrosync/internal/sync/queue"
	"github.com/farmlink/agrosync/internal/sync/view"
	"github.com/farmlink/agrosync/internal/uuid"
)

const (
	// NoticeQueued is shown when the action was saved while offline.
	NoticeQueued = "Saved, will sync when online"
	// NoticeSyncing is shown when a sync started right after saving.
	NoticeSyncing = "Saved, syncing now"
)

// Receipt confirms a locally saved action.
type Receipt struct {
	LocalID string `json:"local_id"`
	// Queued is true when no sync could start, i.e. the device is offline.
	Queued bool   `json:"queued"`
	Notice string `json:"notice"`
}

// SyncTrigger starts a background sync and reports whether it could.
type SyncTrigger interface {
	TriggerSync(ctx context.Context) bool
}

// Service records listing and order actions.
type Service struct {
	queues  *queue.Set
	cache   *cache.Cache
	views   *view.Merger
	photos  *media.Compressor
	trigger SyncTrigger
}

// NewService creates a Service. trigger may be nil, in which case every
// action stays queued until the next scheduled sync.
func NewService(queues *queue.Set, c *cache.Cache, views *view.Merger, photos *media.Compressor, trigger SyncTrigger) *Service {
	if photos == nil {
		photos = media.NewCompressor(0, 0)
	}
	return &Service{
		queues:  queues,
		cache:   c,
		views:   views,
		photos:  photos,
		trigger: trigger,
	}
}

func (s *Service) receipt(ctx context.Context, localID string) *Receipt {
	if s.trigger != nil && s.trigger.TriggerSync(ctx) {
		return &Receipt{LocalID: localID, Notice: NoticeSyncing}
	}
	return &Receipt{LocalID: localID, Queued: true, Notice: NoticeQueued}
}

// CreateListing queues a new listing. photo may be nil; otherwise it is
// compressed before it is stored.
func (s *Service) CreateListing(ctx context.Context, l models.Listing, photo io.Reader) (*Receipt, error) {
	nl := models.NewListing{Listing: l}
	if nl.Listing.Currency == "" {
		nl.Listing.Currency = models.DefaultCurrency
	}
	if photo != nil {
		data, info, err := s.photos.Compress(photo)
		if err != nil {
			return nil, err
		}
		nl.Photo = data
		logging.Debug("Listing photo compressed", map[string]interface{}{
			"format": info.SourceFormat,
			"width":  info.Width,
			"height": info.Height,
			"bytes":  info.Bytes,
		})
	}

	m, err := s.queues.NewListings.Enqueue(ctx, nl)
	if err != nil {
		return nil, err
	}
	return s.receipt(ctx, m.LocalID), nil
}

// EditListing queues a change to listing id and applies it to the cached
// copy right away. A listing that has not been published yet is edited in
// its pending entry instead.
func (s *Service) EditListing(ctx context.Context, id string, patch models.ListingPatch) (*Receipt, error) {
	if uuid.IsLocal(id) {
		return s.editPendingListing(ctx, id, patch)
	}

	m, err := s.queues.ListingEdits.Enqueue(ctx, models.ListingEdit{ListingID: id, Patch: patch})
	if err != nil {
		return nil, err
	}
	if _, err := s.cache.PatchListing(ctx, id, patch); err != nil {
		return nil, err
	}
	return s.receipt(ctx, m.LocalID), nil
}

func (s *Service) editPendingListing(ctx context.Context, localID string, patch models.ListingPatch) (*Receipt, error) {
	if patch.IsEmpty() {
		return nil, errors.New(errors.ErrValidation, "patch changes nothing")
	}
	_, err := s.queues.NewListings.Modify(ctx, localID, func(m *models.PendingMutation) error {
		if err := changeable(m); err != nil {
			return err
		}
		nl, ok := m.Payload.(models.NewListing)
		if !ok {
			return errors.New(errors.ErrInvalid, fmt.Sprintf("listing %s is not a pending listing", localID))
		}
		patch.Apply(&nl.Listing)
		m.Payload = nl
		return nil
	})
	if err != nil {
		return nil, notFoundAsListing(err, localID)
	}
	return s.receipt(ctx, localID), nil
}

// DeleteListing queues the deletion of listing id and drops it from the
// cache. Deleting an unpublished listing just discards its pending entry.
func (s *Service) DeleteListing(ctx context.Context, id string) (*Receipt, error) {
	if uuid.IsLocal(id) {
		if err := s.queues.NewListings.RemoveIf(ctx, id, changeable); err != nil {
			return nil, notFoundAsListing(err, id)
		}
		return &Receipt{LocalID: id, Notice: "Discarded unpublished listing"}, nil
	}

	m, err := s.queues.ListingDeletes.Enqueue(ctx, models.ListingDelete{ListingID: id})
	if err != nil {
		return nil, err
	}
	if err := s.cache.DeleteListing(ctx, id); err != nil {
		return nil, err
	}
	return s.receipt(ctx, m.LocalID), nil
}

// changeable refuses a pending listing the drain has already claimed.
func changeable(m *models.PendingMutation) error {
	if m.SyncState == models.SyncStateSyncing {
		return errors.New(errors.ErrInvalid, "listing is being published, try again shortly")
	}
	return nil
}

func notFoundAsListing(err error, localID string) error {
	if errors.Is(err, errors.ErrNotFound) {
		return errors.New(errors.ErrNotFound, fmt.Sprintf("listing %s not found", localID))
	}
	return err
}

// UpdateOrderStatus queues action on order id. When the order is cached the
// action must be allowed from its current status, pending changes included.
// The new status shows through the order view until the sync completes.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID string, action models.OrderAction, data map[string]interface{}) (*Receipt, error) {
	if !action.Valid() {
		return nil, errors.New(errors.ErrValidation, fmt.Sprintf("unknown order action %q", action))
	}

	if s.views != nil {
		current, found, err := s.views.Order(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if found && !action.AllowedFrom(current.Status) {
			return nil, errors.New(errors.ErrInvalid,
				fmt.Sprintf("cannot %s an order that is %s", action, current.Status))
		}
	}

	m, err := s.queues.OrderUpdates.Enqueue(ctx, models.OrderUpdate{OrderID: orderID, Action: action, Data: data})
	if err != nil {
		return nil, err
	}
	return s.receipt(ctx, m.LocalID), nil
}
