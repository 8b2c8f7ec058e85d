package models

import "fmt"

// SyncResult reports one drain pass over a single queue.
type SyncResult struct {
	SuccessCount int      `json:"success_count"`
	FailedCount  int      `json:"failed_count"`
	Errors       []string `json:"errors"`
}

// NewSyncResult returns an empty result with a non-nil error list.
func NewSyncResult() SyncResult {
	return SyncResult{Errors: []string{}}
}

// Attempted is the number of mutations the pass tried to sync.
func (r SyncResult) Attempted() int {
	return r.SuccessCount + r.FailedCount
}

// FullSyncResult aggregates one drain of every queue.
type FullSyncResult struct {
	NewListings    SyncResult `json:"new_listings"`
	ListingEdits   SyncResult `json:"listing_edits"`
	ListingDeletes SyncResult `json:"listing_deletes"`
	OrderUpdates   SyncResult `json:"order_updates"`

	SuccessCount int      `json:"success_count"`
	FailedCount  int      `json:"failed_count"`
	Errors       []string `json:"errors"`
}

// Set stores r as the result for kind and recomputes the totals.
func (f *FullSyncResult) Set(kind MutationKind, r SyncResult) {
	switch kind {
	case KindNewListing:
		f.NewListings = r
	case KindListingEdit:
		f.ListingEdits = r
	case KindListingDelete:
		f.ListingDeletes = r
	case KindOrderUpdate:
		f.OrderUpdates = r
	}
	f.recompute()
}

// For returns the result recorded for kind.
func (f *FullSyncResult) For(kind MutationKind) SyncResult {
	switch kind {
	case KindNewListing:
		return f.NewListings
	case KindListingEdit:
		return f.ListingEdits
	case KindListingDelete:
		return f.ListingDeletes
	case KindOrderUpdate:
		return f.OrderUpdates
	default:
		return NewSyncResult()
	}
}

func (f *FullSyncResult) recompute() {
	f.SuccessCount, f.FailedCount = 0, 0
	f.Errors = []string{}
	for _, kind := range AllKinds {
		r := f.For(kind)
		f.SuccessCount += r.SuccessCount
		f.FailedCount += r.FailedCount
		f.Errors = append(f.Errors, r.Errors...)
	}
}

// Summary renders a one-line report for the user.
func (f *FullSyncResult) Summary() string {
	total := f.SuccessCount + f.FailedCount
	switch {
	case total == 0:
		return "Nothing to sync"
	case f.FailedCount == 0:
		return fmt.Sprintf("Synced %d of %d changes", f.SuccessCount, total)
	default:
		return fmt.Sprintf("Failed to sync %d of %d changes", f.FailedCount, total)
	}
}
