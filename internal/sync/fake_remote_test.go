package sync

import (
	"context"
	stderrors "errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/farmlink/agrosync/internal/models"
	"github.com/farmlink/agrosync/internal/uuid"
)

// fakeRemote records calls and fails the ids listed in failIDs.
type fakeRemote struct {
	mu sync.Mutex

	creates []models.NewListing
	updates map[string]int
	deletes map[string]int
	actions map[string][]models.OrderAction

	failIDs map[string]string

	// block, when set, holds every remote call until it is closed or the
	// call's context ends.
	block   chan struct{}
	entered chan struct{}

	// keys are the idempotency keys seen, in call order.
	keys []string

	nextID int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		updates: map[string]int{},
		deletes: map[string]int{},
		actions: map[string][]models.OrderAction{},
		failIDs: map[string]string{},
	}
}

func (f *fakeRemote) failWith(id, msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failIDs[id] = msg
}

func (f *fakeRemote) wait(ctx context.Context) error {
	f.mu.Lock()
	key, _ := uuid.IdempotencyKey(ctx)
	f.keys = append(f.keys, key)
	f.mu.Unlock()

	if f.entered != nil {
		select {
		case f.entered <- struct{}{}:
		default:
		}
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (f *fakeRemote) seenKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.keys...)
}

func (f *fakeRemote) failure(id string) error {
	if msg, ok := f.failIDs[id]; ok {
		return stderrors.New(msg)
	}
	return nil
}

func (f *fakeRemote) CreateListing(ctx context.Context, nl models.NewListing) (models.Listing, error) {
	if err := f.wait(ctx); err != nil {
		return models.Listing{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure(nl.Listing.CropName); err != nil {
		return models.Listing{}, err
	}
	f.creates = append(f.creates, nl)
	f.nextID++
	created := nl.Listing
	created.ID = "srv-" + strconv.Itoa(f.nextID)
	created.CreatedAt = int64(f.nextID)
	return created, nil
}

func (f *fakeRemote) UpdateListing(ctx context.Context, id string, patch models.ListingPatch) (models.Listing, error) {
	if err := f.wait(ctx); err != nil {
		return models.Listing{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure(id); err != nil {
		return models.Listing{}, err
	}
	f.updates[id]++
	return models.Listing{}, nil
}

func (f *fakeRemote) DeleteListing(ctx context.Context, id string) error {
	if err := f.wait(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure(id); err != nil {
		return err
	}
	f.deletes[id]++
	return nil
}

func (f *fakeRemote) FetchListings(ctx context.Context, filter models.ListingFilter) ([]models.Listing, error) {
	return nil, fmt.Errorf("not implemented")
}

func (f *fakeRemote) FetchOrders(ctx context.Context) ([]models.Order, error) {
	return nil, fmt.Errorf("not implemented")
}

func (f *fakeRemote) InvokeOrderAction(ctx context.Context, action models.OrderAction, orderID string, data map[string]interface{}) error {
	if err := f.wait(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure(orderID); err != nil {
		return err
	}
	f.actions[orderID] = append(f.actions[orderID], action)
	return nil
}

func (f *fakeRemote) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.creates)
	for _, c := range f.updates {
		n += c
	}
	for _, c := range f.deletes {
		n += c
	}
	for _, a := range f.actions {
		n += len(a)
	}
	return n
}
