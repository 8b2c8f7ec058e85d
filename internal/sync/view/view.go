// Package view merges cached remote records with pending local mutations into
// the lists the user sees.
package view

import (
	"context"

	"github.com/farmlink/agrosync/internal/logging"
	"github.com/farmlink/agrosync/internal/models"
	"github.com/farmlink/agrosync/internal/sync/cache"
	"github.com/farmlink/agrosync/internal/sync/queue"
)

// ListingStatus tells the UI whether a listing is known to the backend.
type ListingStatus string

const (
	ListingPendingSync ListingStatus = "pending_sync"
	ListingSynced      ListingStatus = "synced"
)

// ListingItem is one row of the listings view.
type ListingItem struct {
	models.Listing
	SyncStatus ListingStatus `json:"sync_status"`
	// LastError is set for pending listings whose last sync attempt failed.
	LastError string `json:"last_error,omitempty"`
}

// ListingsQuery selects the listings view.
type ListingsQuery struct {
	Filter models.ListingFilter
	// Live fetches from the backend and refreshes the cache first.
	Live bool
}

// OrderView is a cached order with any pending status change overlaid.
type OrderView struct {
	models.Order
	HasPendingSync bool `json:"has_pending_sync"`
}

// ListingFetcher fetches listings from the backend.
type ListingFetcher interface {
	FetchListings(ctx context.Context, filter models.ListingFilter) ([]models.Listing, error)
}

// Merger builds the views.
type Merger struct {
	queues  *queue.Set
	cache   *cache.Cache
	fetcher ListingFetcher
}

// NewMerger creates a Merger. fetcher may be nil, in which case live queries
// fall back to the cache.
func NewMerger(queues *queue.Set, c *cache.Cache, fetcher ListingFetcher) *Merger {
	return &Merger{queues: queues, cache: c, fetcher: fetcher}
}

// Listings returns pending new listings first, then cached listings. Pending
// items are always filtered locally. Cached items are filtered locally only
// when they come from the cache; a live fetch is already filtered remotely.
func (v *Merger) Listings(ctx context.Context, q ListingsQuery) ([]ListingItem, error) {
	pending, err := v.pendingListings(ctx, q.Filter)
	if err != nil {
		return nil, err
	}

	synced, live := v.liveListings(ctx, q)
	if !live {
		cached, err := v.cache.Listings(ctx)
		if err != nil {
			return nil, err
		}
		synced = cached[:0]
		for _, l := range cached {
			if q.Filter.Matches(&l) {
				synced = append(synced, l)
			}
		}
	}

	items := make([]ListingItem, 0, len(pending)+len(synced))
	items = append(items, pending...)
	for _, l := range synced {
		items = append(items, ListingItem{Listing: l, SyncStatus: ListingSynced})
	}
	return items, nil
}

// liveListings fetches from the backend and refreshes the cache. It reports
// false when the caller should read the cache instead.
func (v *Merger) liveListings(ctx context.Context, q ListingsQuery) ([]models.Listing, bool) {
	if !q.Live || v.fetcher == nil {
		return nil, false
	}

	listings, err := v.fetcher.FetchListings(ctx, q.Filter)
	if err != nil {
		logging.Warn("Live listings fetch failed, using cache", map[string]interface{}{
			"error": err.Error(),
		})
		return nil, false
	}

	// An unfiltered fetch is the whole remote set; a filtered one is a subset.
	if q.Filter.IsZero() {
		err = v.cache.ReplaceListings(ctx, listings)
	} else {
		err = v.cache.UpsertListings(ctx, listings)
	}
	if err != nil {
		logging.Error("Failed to refresh listing cache", err, nil)
	}
	return listings, true
}

func (v *Merger) pendingListings(ctx context.Context, filter models.ListingFilter) ([]ListingItem, error) {
	queued, err := v.queues.NewListings.List(ctx)
	if err != nil {
		return nil, err
	}
	var items []ListingItem
	for _, m := range queued {
		p, ok := m.Payload.(models.NewListing)
		if !ok {
			continue
		}
		l := p.Listing
		l.ID = m.LocalID
		if l.CreatedAt == 0 {
			l.CreatedAt = m.CreatedAt
		}
		if !filter.Matches(&l) {
			continue
		}
		items = append(items, ListingItem{Listing: l, SyncStatus: ListingPendingSync, LastError: m.LastError})
	}
	return items, nil
}

// Order returns the cached order with id, its status replaced by the result
// of the latest pending order update that has not failed.
func (v *Merger) Order(ctx context.Context, id string) (OrderView, bool, error) {
	o, found, err := v.cache.Order(ctx, id)
	if err != nil || !found {
		return OrderView{}, false, err
	}
	overlay, err := v.pendingStatuses(ctx)
	if err != nil {
		return OrderView{}, false, err
	}
	return applyOverlay(o, overlay), true, nil
}

// Orders returns every cached order with pending status changes overlaid.
func (v *Merger) Orders(ctx context.Context) ([]OrderView, error) {
	orders, err := v.cache.Orders(ctx)
	if err != nil {
		return nil, err
	}
	overlay, err := v.pendingStatuses(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]OrderView, len(orders))
	for i, o := range orders {
		views[i] = applyOverlay(o, overlay)
	}
	return views, nil
}

// PendingCount is the number of changes waiting to sync, for badges.
func (v *Merger) PendingCount(ctx context.Context) (int, error) {
	return v.queues.PendingCount(ctx)
}

func applyOverlay(o models.Order, overlay map[string]models.OrderStatus) OrderView {
	view := OrderView{Order: o}
	if status, ok := overlay[o.ID]; ok {
		view.Status = status
		view.HasPendingSync = true
	}
	return view
}

// pendingStatuses maps order id to the status its latest non-failed pending
// update will produce. The queue lists oldest first, so later entries win.
func (v *Merger) pendingStatuses(ctx context.Context) (map[string]models.OrderStatus, error) {
	queued, err := v.queues.OrderUpdates.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]models.OrderStatus)
	for _, m := range queued {
		if m.SyncState == models.SyncStateFailed {
			continue
		}
		p, ok := m.Payload.(models.OrderUpdate)
		if !ok {
			continue
		}
		if status, ok := p.Action.ResultingStatus(); ok {
			out[p.OrderID] = status
		}
	}
	return out, nil
}
