// Package cache reads and writes the cached read-models: listings and orders
// mirrored from the remote backend for offline display.
package cache

import (
	"context"
	"time"

	"github.com/farmlink/agrosync/internal/db"
	"github.com/farmlink/agrosync/internal/models"
)

// Cache wraps the cached_listings and cached_orders partitions. Records are
// keyed by remote id and overwritten wholesale.
type Cache struct {
	store *db.Store
	now   func() time.Time
}

// New returns a Cache over store.
func New(store *db.Store) *Cache {
	return &Cache{store: store, now: time.Now}
}

func listingTS(l *models.Listing) int64 {
	if l.CreatedAt != 0 {
		return l.CreatedAt
	}
	return l.UpdatedAt
}

func orderTS(o *models.Order) int64 {
	if o.CreatedAt != 0 {
		return o.CreatedAt
	}
	return o.UpdatedAt
}

// Listings returns every cached listing.
func (c *Cache) Listings(ctx context.Context) ([]models.Listing, error) {
	return db.GetAll[models.Listing](ctx, c.store, db.PartitionListings)
}

// Listing returns the cached listing with id.
func (c *Cache) Listing(ctx context.Context, id string) (models.Listing, bool, error) {
	return db.GetByKey[models.Listing](ctx, c.store, db.PartitionListings, id)
}

// PutListing stores l under its id.
func (c *Cache) PutListing(ctx context.Context, l models.Listing) error {
	return c.store.Put(ctx, db.PartitionListings, l.ID, listingTS(&l), l)
}

// UpsertListings stores each listing, leaving other cached listings alone.
func (c *Cache) UpsertListings(ctx context.Context, listings []models.Listing) error {
	for _, l := range listings {
		if err := c.PutListing(ctx, l); err != nil {
			return err
		}
	}
	return nil
}

// ReplaceListings makes listings the whole cached set.
func (c *Cache) ReplaceListings(ctx context.Context, listings []models.Listing) error {
	entries := make([]db.Entry, len(listings))
	for i := range listings {
		entries[i] = db.Entry{Key: listings[i].ID, SortTS: listingTS(&listings[i]), Record: listings[i]}
	}
	return c.store.ReplaceAll(ctx, db.PartitionListings, entries)
}

// PatchListing applies patch to the cached listing with id. It reports
// whether a cached listing existed.
func (c *Cache) PatchListing(ctx context.Context, id string, patch models.ListingPatch) (bool, error) {
	l, found, err := c.Listing(ctx, id)
	if err != nil || !found {
		return false, err
	}
	patch.Apply(&l)
	l.UpdatedAt = c.now().UnixMilli()
	return true, c.PutListing(ctx, l)
}

// DeleteListing removes the cached listing with id, if any.
func (c *Cache) DeleteListing(ctx context.Context, id string) error {
	return c.store.Delete(ctx, db.PartitionListings, id)
}

// Orders returns every cached order.
func (c *Cache) Orders(ctx context.Context) ([]models.Order, error) {
	return db.GetAll[models.Order](ctx, c.store, db.PartitionOrders)
}

// Order returns the cached order with id.
func (c *Cache) Order(ctx context.Context, id string) (models.Order, bool, error) {
	return db.GetByKey[models.Order](ctx, c.store, db.PartitionOrders, id)
}

// PutOrder stores o under its id.
func (c *Cache) PutOrder(ctx context.Context, o models.Order) error {
	return c.store.Put(ctx, db.PartitionOrders, o.ID, orderTS(&o), o)
}

// ReplaceOrders makes orders the whole cached set.
func (c *Cache) ReplaceOrders(ctx context.Context, orders []models.Order) error {
	entries := make([]db.Entry, len(orders))
	for i := range orders {
		entries[i] = db.Entry{Key: orders[i].ID, SortTS: orderTS(&orders[i]), Record: orders[i]}
	}
	return c.store.ReplaceAll(ctx, db.PartitionOrders, entries)
}

// SetOrderStatus updates the status of the cached order with id. It reports
// whether a cached order existed.
func (c *Cache) SetOrderStatus(ctx context.Context, id string, status models.OrderStatus) (bool, error) {
	o, found, err := c.Order(ctx, id)
	if err != nil || !found {
		return false, err
	}
	o.Status = status
	o.UpdatedAt = c.now().UnixMilli()
	return true, c.PutOrder(ctx, o)
}

// Clear drops every cached listing and order.
func (c *Cache) Clear(ctx context.Context) error {
	if err := c.store.Clear(ctx, db.PartitionListings); err != nil {
		return err
	}
	return c.store.Clear(ctx, db.PartitionOrders)
}
