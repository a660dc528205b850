package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AvailabilityStatus is the four-way stock status recorded for every check.
type AvailabilityStatus string

const (
	StatusInStock    AvailabilityStatus = "in_stock"
	StatusOutOfStock AvailabilityStatus = "out_of_stock"
	StatusBackOrder  AvailabilityStatus = "back_order"
	StatusUnknown    AvailabilityStatus = "unknown"
)

type Product struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Retailer struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// ProductRetailerLink is one URL at which one product is tracked at one
// retailer. Immutable once created except for removal.
type ProductRetailerLink struct {
	ID         uuid.UUID `json:"id"`
	ProductID  uuid.UUID `json:"product_id"`
	RetailerID uuid.UUID `json:"retailer_id"`
	URL        string    `json:"url"`
	Label      string    `json:"label,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// AvailabilityCheck is one append-only observation for a link. Price fields
// are either all present or all absent. Normalized fields are populated only
// when a rate to the preferred currency was resolvable at check time.
type AvailabilityCheck struct {
	ID              uuid.UUID          `json:"id"`
	LinkID          uuid.UUID          `json:"link_id"`
	ProductID       uuid.UUID          `json:"product_id"`
	Status          AvailabilityStatus `json:"status"`
	RawAvailability string             `json:"raw_availability,omitempty"`
	ErrorMessage    string             `json:"error_message,omitempty"`

	PriceMinor *int64 `json:"price_minor,omitempty"`
	Currency   string `json:"currency,omitempty"`
	RawPrice   string `json:"raw_price,omitempty"`

	NormalizedPriceMinor *int64 `json:"normalized_price_minor,omitempty"`
	NormalizedCurrency   string `json:"normalized_currency,omitempty"`

	CheckedAt time.Time `json:"checked_at"`
}

// HasPrice reports whether the check carries a scraped price.
func (c *AvailabilityCheck) HasPrice() bool {
	return c.PriceMinor != nil && c.Currency != ""
}

// Failed reports whether the check recorded an error, regardless of status.
func (c *AvailabilityCheck) Failed() bool {
	return c.ErrorMessage != ""
}

// VerifiedSession is a domain-scoped browser identity that passed a challenge.
// Cookies holds the serialized cookie jar. A later verification for the same
// domain supersedes the stored row.
type VerifiedSession struct {
	ID        uuid.UUID       `json:"id"`
	Domain    string          `json:"domain"`
	Cookies   json.RawMessage `json:"cookies"`
	UserAgent string          `json:"user_agent"`
	CreatedAt time.Time       `json:"created_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// SessionCookie is one entry of a VerifiedSession cookie jar.
type SessionCookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain,omitempty"`
	Path     string  `json:"path,omitempty"`
	Expires  float64 `json:"expires,omitempty"`
	HTTPOnly bool    `json:"http_only,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	SameSite string  `json:"same_site,omitempty"`
}

type RateSource string

const (
	RateSourceAPI    RateSource = "api"
	RateSourceManual RateSource = "manual"
)

// ExchangeRate is unique per (from, to) pair; upserts overwrite rate, source
// and timestamp.
type ExchangeRate struct {
	FromCurrency string     `json:"from_currency"`
	ToCurrency   string     `json:"to_currency"`
	Rate         float64    `json:"rate"`
	Source       RateSource `json:"source"`
	FetchedAt    time.Time  `json:"fetched_at"`
}
