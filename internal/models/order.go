package models

import (
	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle stage of an order on the remote backend.
type OrderStatus string

const (
	OrderStatusPendingPayment  OrderStatus = "pending_payment"
	OrderStatusPaymentVerified OrderStatus = "payment_verified"
	OrderStatusReadyForPickup  OrderStatus = "ready_for_pickup"
	OrderStatusCompleted       OrderStatus = "completed"
	OrderStatusCancelled       OrderStatus = "cancelled"
)

// IsFinal reports whether no further action can change the status.
func (s OrderStatus) IsFinal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// OrderAction is a status change a farmer or buyer can request.
type OrderAction string

const (
	OrderActionMarkReady OrderAction = "mark_ready"
	OrderActionComplete  OrderAction = "complete"
	OrderActionCancel    OrderAction = "cancel"
)

// Valid reports whether a is a known action.
func (a OrderAction) Valid() bool {
	_, ok := a.ResultingStatus()
	return ok
}

// ResultingStatus returns the status an order has once a succeeds.
func (a OrderAction) ResultingStatus() (OrderStatus, bool) {
	switch a {
	case OrderActionMarkReady:
		return OrderStatusReadyForPickup, true
	case OrderActionComplete:
		return OrderStatusCompleted, true
	case OrderActionCancel:
		return OrderStatusCancelled, true
	default:
		return "", false
	}
}

// AllowedFrom reports whether a may be requested for an order currently in s.
func (a OrderAction) AllowedFrom(s OrderStatus) bool {
	switch a {
	case OrderActionMarkReady:
		return s == OrderStatusPaymentVerified
	case OrderActionComplete:
		return s == OrderStatusReadyForPickup
	case OrderActionCancel:
		return !s.IsFinal()
	default:
		return false
	}
}

// Order is an order as stored by the remote backend and mirrored in the local cache.
type Order struct {
	ID          string          `json:"id"`
	ListingID   string          `json:"listing_id"`
	BuyerID     string          `json:"buyer_id"`
	FarmerID    string          `json:"farmer_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Currency    string          `json:"currency,omitempty"`
	Status      OrderStatus     `json:"status"`
	CreatedAt   int64           `json:"created_at"`
	UpdatedAt   int64           `json:"updated_at"`
}
