// Package models tests for listing, order and mutation models.
package models

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/farmlink/agrosync/internal/errors"
)

func strPtr(s string) *string { return &s }

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func validListing() Listing {
	return Listing{
		FarmerID:     "farmer-1",
		CropName:     "Maize",
		Location:     "Kaduna",
		Quantity:     decimal.NewFromInt(20),
		Unit:         "bag",
		PricePerUnit: decimal.RequireFromString("18500.50"),
		Currency:     "NGN",
	}
}

// TestListingFilterMatches verifies case-insensitive substring matching.
func TestListingFilterMatches(t *testing.T) {
	l := validListing()

	tests := []struct {
		name   string
		filter ListingFilter
		want   bool
	}{
		{"empty filter", ListingFilter{}, true},
		{"crop exact", ListingFilter{CropName: "Maize"}, true},
		{"crop lower substring", ListingFilter{CropName: "aiz"}, true},
		{"crop mismatch", ListingFilter{CropName: "rice"}, false},
		{"location upper", ListingFilter{Location: "KADUNA"}, true},
		{"both match", ListingFilter{CropName: "maize", Location: "kad"}, true},
		{"location mismatch", ListingFilter{CropName: "maize", Location: "Kano"}, false},
		{"whitespace only", ListingFilter{CropName: "  "}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(&l); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestListingPatchApply verifies only set fields change.
func TestListingPatchApply(t *testing.T) {
	l := validListing()
	p := ListingPatch{
		PricePerUnit: decPtr("20000"),
		Description:  strPtr("Dry, clean"),
	}

	if p.IsEmpty() {
		t.Fatal("IsEmpty() = true for a patch with fields")
	}

	p.Apply(&l)

	if !l.PricePerUnit.Equal(decimal.NewFromInt(20000)) {
		t.Errorf("PricePerUnit = %s, want 20000", l.PricePerUnit)
	}
	if l.Description != "Dry, clean" {
		t.Errorf("Description = %q", l.Description)
	}
	if l.CropName != "Maize" || l.Location != "Kaduna" {
		t.Error("unset fields were modified")
	}

	if !(ListingPatch{}).IsEmpty() {
		t.Error("zero patch should be empty")
	}
}

// TestOrderActionTransitions verifies resulting statuses and allowed sources.
func TestOrderActionTransitions(t *testing.T) {
	tests := []struct {
		action OrderAction
		from   OrderStatus
		result OrderStatus
		allow  bool
	}{
		{OrderActionMarkReady, OrderStatusPaymentVerified, OrderStatusReadyForPickup, true},
		{OrderActionMarkReady, OrderStatusPendingPayment, OrderStatusReadyForPickup, false},
		{OrderActionComplete, OrderStatusReadyForPickup, OrderStatusCompleted, true},
		{OrderActionComplete, OrderStatusPaymentVerified, OrderStatusCompleted, false},
		{OrderActionCancel, OrderStatusPendingPayment, OrderStatusCancelled, true},
		{OrderActionCancel, OrderStatusCompleted, OrderStatusCancelled, false},
	}

	for _, tt := range tests {
		got, ok := tt.action.ResultingStatus()
		if !ok || got != tt.result {
			t.Errorf("%s.ResultingStatus() = %q, %v", tt.action, got, ok)
		}
		if allowed := tt.action.AllowedFrom(tt.from); allowed != tt.allow {
			t.Errorf("%s.AllowedFrom(%s) = %v, want %v", tt.action, tt.from, allowed, tt.allow)
		}
	}

	if OrderAction("ship").Valid() {
		t.Error("unknown action should be invalid")
	}
}

// TestPendingMutationJSON verifies the payload variant survives encoding.
func TestPendingMutationJSON(t *testing.T) {
	m := PendingMutation{
		LocalID:   "local_x",
		Kind:      KindOrderUpdate,
		CreatedAt: 1700000000000,
		SyncState: SyncStateFailed,
		LastError: "payment not verified",
		Payload: OrderUpdate{
			OrderID: "ord-9",
			Action:  OrderActionMarkReady,
			Data:    map[string]interface{}{"note": "at the gate"},
		},
	}

	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var got PendingMutation
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	u, ok := got.Payload.(OrderUpdate)
	if !ok {
		t.Fatalf("Payload type = %T, want OrderUpdate", got.Payload)
	}
	if u.OrderID != "ord-9" || u.Action != OrderActionMarkReady || u.Data["note"] != "at the gate" {
		t.Errorf("payload = %+v", u)
	}
	if got.SyncState != SyncStateFailed || got.LastError != "payment not verified" {
		t.Errorf("state = %s, lastError = %q", got.SyncState, got.LastError)
	}
}

// TestPendingMutationJSON_mismatch verifies kind and payload must agree.
func TestPendingMutationJSON_mismatch(t *testing.T) {
	m := PendingMutation{LocalID: "local_x", Kind: KindListingEdit, Payload: ListingDelete{ListingID: "1"}}
	if _, err := json.Marshal(m); err == nil {
		t.Error("Marshal should reject a kind/payload mismatch")
	}

	var got PendingMutation
	if err := json.Unmarshal([]byte(`{"kind":"bogus","payload":{}}`), &got); err == nil {
		t.Error("Unmarshal should reject an unknown kind")
	}
}

// TestPendingMutationLabel verifies error line prefixes.
func TestPendingMutationLabel(t *testing.T) {
	tests := []struct {
		m    PendingMutation
		want string
	}{
		{PendingMutation{LocalID: "local_1", Payload: NewListing{}}, "New listing local_1"},
		{PendingMutation{LocalID: "local_2", Payload: ListingEdit{ListingID: "42"}}, "Edit listing 42"},
		{PendingMutation{LocalID: "local_3", Payload: ListingDelete{ListingID: "43"}}, "Delete listing 43"},
		{PendingMutation{LocalID: "local_4", Payload: OrderUpdate{OrderID: "ord-1"}}, "Order ord-1"},
	}

	for _, tt := range tests {
		if got := tt.m.Label(); got != tt.want {
			t.Errorf("Label() = %q, want %q", got, tt.want)
		}
	}
}

// TestValidatePayload verifies tag and semantic validation.
func TestValidatePayload(t *testing.T) {
	if err := ValidatePayload(NewListing{Listing: validListing()}); err != nil {
		t.Errorf("valid listing rejected: %v", err)
	}

	bad := validListing()
	bad.CropName = ""
	bad.PricePerUnit = decimal.Zero
	err := ValidatePayload(NewListing{Listing: bad})
	if !errors.Is(err, errors.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
	if !strings.Contains(err.Error(), "crop_name") || !strings.Contains(err.Error(), "price_per_unit") {
		t.Errorf("error should name both fields: %v", err)
	}

	if err := ValidatePayload(ListingEdit{ListingID: "1"}); !errors.Is(err, errors.ErrValidation) {
		t.Errorf("empty patch err = %v, want ErrValidation", err)
	}
	if err := ValidatePayload(ListingEdit{ListingID: "1", Patch: ListingPatch{Quantity: decPtr("-1")}}); !errors.Is(err, errors.ErrValidation) {
		t.Errorf("negative quantity err = %v, want ErrValidation", err)
	}
	if err := ValidatePayload(OrderUpdate{OrderID: "o", Action: "ship"}); !errors.Is(err, errors.ErrValidation) {
		t.Errorf("unknown action err = %v, want ErrValidation", err)
	}
	if err := ValidatePayload(ListingDelete{}); !errors.Is(err, errors.ErrValidation) {
		t.Errorf("missing id err = %v, want ErrValidation", err)
	}
	if err := ValidatePayload(nil); !errors.Is(err, errors.ErrValidation) {
		t.Errorf("nil payload err = %v, want ErrValidation", err)
	}
}

// TestFullSyncResult verifies totals and the summary line.
func TestFullSyncResult(t *testing.T) {
	var f FullSyncResult
	if got := f.Summary(); got != "Nothing to sync" {
		t.Errorf("Summary() = %q", got)
	}

	f.Set(KindListingEdit, SyncResult{SuccessCount: 2, FailedCount: 1, Errors: []string{"Edit listing 2: boom"}})
	f.Set(KindOrderUpdate, SyncResult{SuccessCount: 1, FailedCount: 1, Errors: []string{"Order 7: declined"}})

	if f.SuccessCount != 3 || f.FailedCount != 2 {
		t.Errorf("totals = %d/%d, want 3/2", f.SuccessCount, f.FailedCount)
	}
	if len(f.Errors) != 2 || f.Errors[0] != "Edit listing 2: boom" {
		t.Errorf("Errors = %v", f.Errors)
	}
	if got := f.Summary(); got != "Failed to sync 2 of 5 changes" {
		t.Errorf("Summary() = %q", got)
	}
	if f.For(KindListingEdit).Attempted() != 3 {
		t.Error("For(KindListingEdit) lost the result")
	}
}

// TestFormatPrice verifies currency formatting.
func TestFormatPrice(t *testing.T) {
	tests := []struct {
		amount   string
		currency string
		want     string
	}{
		{"12500", "NGN", "₦12,500.00"},
		{"999.5", "", "₦999.50"},
		{"1234567.891", "kes", "KSh1,234,567.89"},
		{"-50", "GHS", "-GH₵50.00"},
		{"10", "USD", "USD 10.00"},
	}

	for _, tt := range tests {
		got := FormatPrice(decimal.RequireFromString(tt.amount), tt.currency)
		if got != tt.want {
			t.Errorf("FormatPrice(%s, %q) = %q, want %q", tt.amount, tt.currency, got, tt.want)
		}
	}
}
