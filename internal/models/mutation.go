package models

import (
	"encoding/json"
	"fmt"
)

// MutationKind discriminates the PendingMutation variants. Each kind has its
// own queue partition.
type MutationKind string

const (
	KindNewListing    MutationKind = "new_listing"
	KindListingEdit   MutationKind = "listing_edit"
	KindListingDelete MutationKind = "listing_delete"
	KindOrderUpdate   MutationKind = "order_update"
)

// AllKinds lists every mutation kind in drain-report order.
var AllKinds = []MutationKind{KindNewListing, KindListingEdit, KindListingDelete, KindOrderUpdate}

// SyncState is the lifecycle stage of a pending mutation.
type SyncState string

const (
	SyncStatePending SyncState = "pending"
	SyncStateSyncing SyncState = "syncing"
	SyncStateFailed  SyncState = "failed"
)

// Payload is the variant-specific part of a PendingMutation. The set of
// implementations is closed: NewListing, ListingEdit, ListingDelete and
// OrderUpdate.
type Payload interface {
	Kind() MutationKind
	// EntityKind names the entity in user-facing error lines.
	EntityKind() string
	// TargetID is the remote id the mutation applies to, empty for creations.
	TargetID() string
	isPayload()
}

// NewListing creates a listing on the remote backend.
type NewListing struct {
	Listing Listing `json:"listing"`
	// Photo is an already compressed JPEG, uploaded together with the listing.
	Photo []byte `json:"photo,omitempty"`
}

func (NewListing) Kind() MutationKind { return KindNewListing }
func (NewListing) EntityKind() string { return "New listing" }
func (NewListing) TargetID() string   { return "" }
func (NewListing) isPayload()         {}

// ListingEdit applies a partial update to an existing remote listing.
type ListingEdit struct {
	ListingID string       `json:"listing_id" validate:"required"`
	Patch     ListingPatch `json:"patch"`
}

func (ListingEdit) Kind() MutationKind { return KindListingEdit }
func (ListingEdit) EntityKind() string { return "Edit listing" }
func (e ListingEdit) TargetID() string { return e.ListingID }
func (ListingEdit) isPayload()         {}

// ListingDelete removes a remote listing.
type ListingDelete struct {
	ListingID string `json:"listing_id" validate:"required"`
}

func (ListingDelete) Kind() MutationKind { return KindListingDelete }
func (ListingDelete) EntityKind() string { return "Delete listing" }
func (d ListingDelete) TargetID() string { return d.ListingID }
func (ListingDelete) isPayload()         {}

// OrderUpdate requests an order status change.
type OrderUpdate struct {
	OrderID string                 `json:"order_id" validate:"required"`
	Action  OrderAction            `json:"action" validate:"required,oneof=mark_ready complete cancel"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

func (OrderUpdate) Kind() MutationKind { return KindOrderUpdate }
func (OrderUpdate) EntityKind() string { return "Order" }
func (u OrderUpdate) TargetID() string { return u.OrderID }
func (OrderUpdate) isPayload()         {}

// PendingMutation is a locally queued change not yet confirmed by the remote
// backend.
type PendingMutation struct {
	LocalID   string       `json:"local_id"`
	Kind      MutationKind `json:"kind"`
	CreatedAt int64        `json:"created_at"` // unix millis, FIFO key
	SyncState SyncState    `json:"sync_state"`
	LastError string       `json:"last_error,omitempty"`
	Payload   Payload      `json:"-"`
}

// Label identifies the mutation in sync error lines, e.g. "Edit listing 42".
func (m *PendingMutation) Label() string {
	id := m.Payload.TargetID()
	if id == "" {
		id = m.LocalID
	}
	return fmt.Sprintf("%s %s", m.Payload.EntityKind(), id)
}

type mutationEnvelope struct {
	LocalID   string          `json:"local_id"`
	Kind      MutationKind    `json:"kind"`
	CreatedAt int64           `json:"created_at"`
	SyncState SyncState       `json:"sync_state"`
	LastError string          `json:"last_error,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// MarshalJSON encodes the mutation with its payload under "payload".
func (m PendingMutation) MarshalJSON() ([]byte, error) {
	if m.Payload == nil {
		return nil, fmt.Errorf("mutation %s has no payload", m.LocalID)
	}
	if m.Payload.Kind() != m.Kind {
		return nil, fmt.Errorf("mutation %s: kind %q does not match payload %q", m.LocalID, m.Kind, m.Payload.Kind())
	}
	payload, err := json.Marshal(m.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return json.Marshal(mutationEnvelope{
		LocalID:   m.LocalID,
		Kind:      m.Kind,
		CreatedAt: m.CreatedAt,
		SyncState: m.SyncState,
		LastError: m.LastError,
		Payload:   payload,
	})
}

// UnmarshalJSON decodes the payload variant selected by "kind".
func (m *PendingMutation) UnmarshalJSON(data []byte) error {
	var env mutationEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}

	var payload Payload
	switch env.Kind {
	case KindNewListing:
		var p NewListing
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("failed to unmarshal payload: %w", err)
		}
		payload = p
	case KindListingEdit:
		var p ListingEdit
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("failed to unmarshal payload: %w", err)
		}
		payload = p
	case KindListingDelete:
		var p ListingDelete
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("failed to unmarshal payload: %w", err)
		}
		payload = p
	case KindOrderUpdate:
		var p OrderUpdate
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("failed to unmarshal payload: %w", err)
		}
		payload = p
	default:
		return fmt.Errorf("unknown mutation kind %q", env.Kind)
	}

	*m = PendingMutation{
		LocalID:   env.LocalID,
		Kind:      env.Kind,
		CreatedAt: env.CreatedAt,
		SyncState: env.SyncState,
		LastError: env.LastError,
		Payload:   payload,
	}
	return nil
}
