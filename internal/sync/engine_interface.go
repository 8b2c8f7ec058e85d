package sync

import (
	"context"

	"github.com/farmlink/agrosync/internal/models"
)

// Remote is the marketplace backend. Every call may fail; a failure is
// reported on the mutation that caused it and never retried automatically.
type Remote interface {
	// CreateListing publishes a new listing and returns it with its remote id.
	CreateListing(ctx context.Context, nl models.NewListing) (models.Listing, error)

	// UpdateListing applies patch to listing id. The returned listing may be
	// the zero value when the backend does not echo the record.
	UpdateListing(ctx context.Context, id string, patch models.ListingPatch) (models.Listing, error)

	// DeleteListing removes listing id.
	DeleteListing(ctx context.Context, id string) error

	// FetchListings returns the listings matching filter, filtered remotely.
	FetchListings(ctx context.Context, filter models.ListingFilter) ([]models.Listing, error)

	// FetchOrders returns the orders visible to the signed-in user.
	FetchOrders(ctx context.Context) ([]models.Order, error)

	// InvokeOrderAction requests action on order id.
	InvokeOrderAction(ctx context.Context, action models.OrderAction, orderID string, data map[string]interface{}) error
}

// Syncer drains the pending mutation queues.
// This interface allows for mocking in tests and alternative implementations.
type Syncer interface {
	// SyncAll drains every queue concurrently.
	SyncAll(ctx context.Context) (*models.FullSyncResult, error)

	// SetEventHandler sets the event handler for sync notifications.
	SetEventHandler(handler SyncEventHandler)
}
