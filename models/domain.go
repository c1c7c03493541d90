package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Listing is one property listing as scraped from a single source. Merged
// canonical listings share the shape and carry ID, SourceIDs, IsMerged and
// MergedAt on top.
//
// Pointer fields are nullable: nil means the source did not provide the value.
// Empty strings mean the same for City, Zone, PropertyType and TransactionType.
type Listing struct {
	Source          string   `json:"source" db:"source" validate:"required"`          // supercasas, corotos, etc.
	ExternalID      string   `json:"external_id" db:"external_id" validate:"required"` // id on the source site
	URL             string   `json:"url" db:"url" validate:"omitempty,url"`
	Title           string   `json:"title" db:"title"`
	City            string   `json:"city,omitempty" db:"city"`
	Zone            string   `json:"zone,omitempty" db:"zone"`
	Price           float64  `json:"price" db:"price" validate:"gte=0"`
	Currency        string   `json:"currency" db:"currency" validate:"required"`
	Area            *float64 `json:"area,omitempty" db:"area"` // m²
	Bedrooms        *int     `json:"bedrooms,omitempty" db:"bedrooms"`
	Bathrooms       *int     `json:"bathrooms,omitempty" db:"bathrooms"`
	Parking         *int     `json:"parking,omitempty" db:"parking"`
	PropertyType    string   `json:"property_type,omitempty" db:"property_type"`
	TransactionType string   `json:"transaction_type,omitempty" db:"transaction_type" validate:"omitempty,oneof=sale rent"`
	Images          []string `json:"images,omitempty" db:"images"`
	Description     *string  `json:"description,omitempty" db:"description"`

	ID        string      `json:"id,omitempty" db:"id"`
	SourceIDs []SourceRef `json:"source_ids,omitempty" db:"source_ids"`
	IsMerged  bool        `json:"is_merged,omitempty" db:"is_merged"`
	MergedAt  *time.Time  `json:"merged_at,omitempty" db:"merged_at"`
}

// SourceRef identifies one constituent of a merged listing
type SourceRef struct {
	Source     string `json:"source"`
	ExternalID string `json:"external_id"`
	URL        string `json:"url"`
}

// Ref returns the SourceRef pointing at this listing
func (l *Listing) Ref() SourceRef {
	return SourceRef{Source: l.Source, ExternalID: l.ExternalID, URL: l.URL}
}

// PropertyMatch represents a potential duplicate listing pair awaiting review
type PropertyMatch struct {
	ID                uuid.UUID       `json:"id" db:"id"`
	Source            string          `json:"source" db:"source"`
	ExternalID        string          `json:"external_id" db:"external_id"`
	MatchedSource     string          `json:"matched_source" db:"matched_source"`
	MatchedExternalID string          `json:"matched_external_id" db:"matched_external_id"`
	Confidence        float32         `json:"confidence" db:"confidence"`
	MatchReasons      json.RawMessage `json:"match_reasons" db:"match_reasons"`
	Status            string          `json:"status" db:"status"` // pending, confirmed, rejected
	ReviewedAt        *time.Time      `json:"reviewed_at" db:"reviewed_at"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
}

// Match status
const (
	MatchStatusPending   = "pending"
	MatchStatusConfirmed = "confirmed"
	MatchStatusRejected  = "rejected"
)

// Transaction types
const (
	TransactionSale = "sale"
	TransactionRent = "rent"
)

// Currencies
const (
	CurrencyDOP = "DOP"
	CurrencyUSD = "USD"
)
