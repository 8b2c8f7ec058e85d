// Package models provides data model definitions for the marketplace sync engine.
package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Listing is a produce listing as stored by the remote backend and mirrored
// in the local cache.
type Listing struct {
	ID           string          `json:"id"`
	FarmerID     string          `json:"farmer_id" validate:"required"`
	CropName     string          `json:"crop_name" validate:"required,max=120"`
	Location     string          `json:"location" validate:"required,max=120"`
	Quantity     decimal.Decimal `json:"quantity" validate:"gt=0"`
	Unit         string          `json:"unit" validate:"required"`
	PricePerUnit decimal.Decimal `json:"price_per_unit" validate:"gt=0"`
	Currency     string          `json:"currency" validate:"omitempty,len=3"`
	Description  string          `json:"description,omitempty" validate:"max=2000"`
	PhotoURL     string          `json:"photo_url,omitempty"`
	Status       string          `json:"status,omitempty"`
	CreatedAt    int64           `json:"created_at"`
	UpdatedAt    int64           `json:"updated_at"`
}

// Total returns quantity times unit price.
func (l *Listing) Total() decimal.Decimal {
	return l.Quantity.Mul(l.PricePerUnit)
}

// ListingFilter narrows a listing query. Empty fields match everything.
type ListingFilter struct {
	CropName string `json:"crop_name,omitempty"`
	Location string `json:"location,omitempty"`
}

// IsZero reports whether the filter matches every listing.
func (f ListingFilter) IsZero() bool {
	return strings.TrimSpace(f.CropName) == "" && strings.TrimSpace(f.Location) == ""
}

// Matches performs case-insensitive substring matching on crop name and location.
func (f ListingFilter) Matches(l *Listing) bool {
	if c := strings.TrimSpace(f.CropName); c != "" &&
		!strings.Contains(strings.ToLower(l.CropName), strings.ToLower(c)) {
		return false
	}
	if loc := strings.TrimSpace(f.Location); loc != "" &&
		!strings.Contains(strings.ToLower(l.Location), strings.ToLower(loc)) {
		return false
	}
	return true
}

// ListingPatch is a partial listing update. Nil fields are left untouched.
type ListingPatch struct {
	CropName     *string          `json:"crop_name,omitempty" validate:"omitempty,min=1,max=120"`
	Location     *string          `json:"location,omitempty" validate:"omitempty,min=1,max=120"`
	Quantity     *decimal.Decimal `json:"quantity,omitempty" validate:"omitempty,gt=0"`
	Unit         *string          `json:"unit,omitempty" validate:"omitempty,min=1"`
	PricePerUnit *decimal.Decimal `json:"price_per_unit,omitempty" validate:"omitempty,gt=0"`
	Description  *string          `json:"description,omitempty" validate:"omitempty,max=2000"`
	Status       *string          `json:"status,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p ListingPatch) IsEmpty() bool {
	return p.CropName == nil && p.Location == nil && p.Quantity == nil && p.Unit == nil &&
		p.PricePerUnit == nil && p.Description == nil && p.Status == nil
}

// Apply writes the set fields of p into l.
func (p ListingPatch) Apply(l *Listing) {
	if p.CropName != nil {
		l.CropName = *p.CropName
	}
	if p.Location != nil {
		l.Location = *p.Location
	}
	if p.Quantity != nil {
		l.Quantity = *p.Quantity
	}
	if p.Unit != nil {
		l.Unit = *p.Unit
	}
	if p.PricePerUnit != nil {
		l.PricePerUnit = *p.PricePerUnit
	}
	if p.Description != nil {
		l.Description = *p.Description
	}
	if p.Status != nil {
		l.Status = *p.Status
	}
}
