package view

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farmlink/agrosync/internal/db"
	"github.com/farmlink/agrosync/internal/models"
	"github.com/farmlink/agrosync/internal/sync/cache"
	"github.com/farmlink/agrosync/internal/sync/queue"
)

type stubFetcher struct {
	listings []models.Listing
	err      error
	filters  []models.ListingFilter
}

func (s *stubFetcher) FetchListings(ctx context.Context, filter models.ListingFilter) ([]models.Listing, error) {
	s.filters = append(s.filters, filter)
	return s.listings, s.err
}

type fixture struct {
	queues *queue.Set
	cache  *cache.Cache
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := db.OpenStore(context.Background(), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return &fixture{queues: queue.NewSet(store), cache: cache.New(store)}
}

func newListing(crop, location string) models.NewListing {
	return models.NewListing{Listing: models.Listing{
		FarmerID:     "farmer-1",
		CropName:     crop,
		Location:     location,
		Quantity:     decimal.NewFromInt(3),
		Unit:         "bag",
		PricePerUnit: decimal.NewFromInt(40000),
	}}
}

func TestListings_pendingFirst(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	m, err := f.queues.NewListings.Enqueue(ctx, newListing("Maize", "Kaduna"))
	require.NoError(t, err)
	require.NoError(t, f.cache.PutListing(ctx, models.Listing{ID: "srv-1", CropName: "Rice", Location: "Kebbi"}))

	items, err := NewMerger(f.queues, f.cache, nil).Listings(ctx, ListingsQuery{})
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "Maize", items[0].CropName)
	assert.Equal(t, ListingPendingSync, items[0].SyncStatus)
	assert.Equal(t, m.LocalID, items[0].ID)

	assert.Equal(t, "Rice", items[1].CropName)
	assert.Equal(t, ListingSynced, items[1].SyncStatus)
}

func TestListings_cacheModeFiltersBoth(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.queues.NewListings.Enqueue(ctx, newListing("Maize", "Kaduna"))
	require.NoError(t, err)
	_, err = f.queues.NewListings.Enqueue(ctx, newListing("Yam", "Benue"))
	require.NoError(t, err)
	require.NoError(t, f.cache.UpsertListings(ctx, []models.Listing{
		{ID: "1", CropName: "White Maize", Location: "Kano", CreatedAt: 1},
		{ID: "2", CropName: "Rice", Location: "Kebbi", CreatedAt: 2},
	}))

	items, err := NewMerger(f.queues, f.cache, nil).Listings(ctx, ListingsQuery{
		Filter: models.ListingFilter{CropName: "  MAIZE "},
	})
	require.NoError(t, err)

	var crops []string
	for _, it := range items {
		crops = append(crops, it.CropName)
	}
	assert.Equal(t, []string{"Maize", "White Maize"}, crops)
}

func TestListings_liveDoesNotRefilter(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.queues.NewListings.Enqueue(ctx, newListing("Cassava", "Oyo"))
	require.NoError(t, err)
	require.NoError(t, f.cache.PutListing(ctx, models.Listing{ID: "old", CropName: "Millet"}))

	// The backend matched on a field the local filter does not know about.
	fetcher := &stubFetcher{listings: []models.Listing{{ID: "9", CropName: "Sorghum", Location: "Sokoto"}}}
	filter := models.ListingFilter{CropName: "grain"}

	items, err := NewMerger(f.queues, f.cache, fetcher).Listings(ctx, ListingsQuery{Filter: filter, Live: true})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Sorghum", items[0].CropName)
	assert.Equal(t, []models.ListingFilter{filter}, fetcher.filters)

	// A filtered fetch upserts and leaves the rest of the cache alone.
	cached, err := f.cache.Listings(ctx)
	require.NoError(t, err)
	assert.Len(t, cached, 2)
}

func TestListings_unfilteredLiveReplacesCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.cache.PutListing(ctx, models.Listing{ID: "gone", CropName: "Millet"}))

	fetcher := &stubFetcher{listings: []models.Listing{{ID: "1", CropName: "Beans"}}}
	_, err := NewMerger(f.queues, f.cache, fetcher).Listings(ctx, ListingsQuery{Live: true})
	require.NoError(t, err)

	cached, err := f.cache.Listings(ctx)
	require.NoError(t, err)
	require.Len(t, cached, 1)
	assert.Equal(t, "1", cached[0].ID)
}

func TestListings_liveFailureFallsBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.cache.UpsertListings(ctx, []models.Listing{
		{ID: "1", CropName: "Rice", Location: "Kebbi"},
		{ID: "2", CropName: "Yam", Location: "Benue"},
	}))

	fetcher := &stubFetcher{err: stderrors.New("network unreachable")}
	items, err := NewMerger(f.queues, f.cache, fetcher).Listings(ctx, ListingsQuery{
		Filter: models.ListingFilter{Location: "benue"},
		Live:   true,
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Yam", items[0].CropName)
}

func TestOrder_statusOverlay(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	v := NewMerger(f.queues, f.cache, nil)

	require.NoError(t, f.cache.PutOrder(ctx, models.Order{ID: "o1", Status: models.OrderStatusPaymentVerified}))
	m, err := f.queues.OrderUpdates.Enqueue(ctx, models.OrderUpdate{OrderID: "o1", Action: models.OrderActionMarkReady})
	require.NoError(t, err)

	got, found, err := v.Order(ctx, "o1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, models.OrderStatusReadyForPickup, got.Status)
	assert.True(t, got.HasPendingSync)

	// Simulate a successful sync.
	require.NoError(t, f.queues.OrderUpdates.Remove(ctx, m.LocalID))
	_, err = f.cache.SetOrderStatus(ctx, "o1", models.OrderStatusReadyForPickup)
	require.NoError(t, err)

	got, found, err = v.Order(ctx, "o1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, models.OrderStatusReadyForPickup, got.Status)
	assert.False(t, got.HasPendingSync)
}

func TestOrder_failedUpdateNotOverlaid(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	v := NewMerger(f.queues, f.cache, nil)

	require.NoError(t, f.cache.PutOrder(ctx, models.Order{ID: "o1", Status: models.OrderStatusReadyForPickup}))
	ready, err := f.queues.OrderUpdates.Enqueue(ctx, models.OrderUpdate{OrderID: "o1", Action: models.OrderActionComplete})
	require.NoError(t, err)
	require.NoError(t, f.queues.OrderUpdates.UpdateState(ctx, ready.LocalID, models.SyncStateFailed, "HTTP 409"))

	got, _, err := v.Order(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusReadyForPickup, got.Status)
	assert.False(t, got.HasPendingSync)
}

func TestOrder_latestUpdateWins(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	v := NewMerger(f.queues, f.cache, nil)

	require.NoError(t, f.cache.PutOrder(ctx, models.Order{ID: "o1", Status: models.OrderStatusPaymentVerified}))
	require.NoError(t, f.cache.PutOrder(ctx, models.Order{ID: "o2", Status: models.OrderStatusPendingPayment}))
	_, err := f.queues.OrderUpdates.Enqueue(ctx, models.OrderUpdate{OrderID: "o1", Action: models.OrderActionMarkReady})
	require.NoError(t, err)
	_, err = f.queues.OrderUpdates.Enqueue(ctx, models.OrderUpdate{OrderID: "o1", Action: models.OrderActionCancel})
	require.NoError(t, err)

	views, err := v.Orders(ctx)
	require.NoError(t, err)
	require.Len(t, views, 2)
	byID := map[string]OrderView{}
	for _, ov := range views {
		byID[ov.ID] = ov
	}
	assert.Equal(t, models.OrderStatusCancelled, byID["o1"].Status)
	assert.True(t, byID["o1"].HasPendingSync)
	assert.Equal(t, models.OrderStatusPendingPayment, byID["o2"].Status)
	assert.False(t, byID["o2"].HasPendingSync)

	n, err := v.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestOrder_notCached(t *testing.T) {
	f := newFixture(t)
	_, found, err := NewMerger(f.queues, f.cache, nil).Order(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, found)
}
