package models

import "time"

// Listing is one mirrored car listing. ExternalID, taken from the detail
// page path, is the natural key used for every reconciliation.
//
// Year is 0 when the source did not carry a plausible model year.
// Price is whole yen. ImageURL is nil when no image could be resolved.
type Listing struct {
	ID           int64   `json:"id"`
	ExternalID   string  `json:"external_id"`
	Brand        string  `json:"brand"`
	Model        string  `json:"model"`
	Year         int     `json:"year"`
	Price        int64   `json:"price"`
	Color        string  `json:"color"`
	Mileage      int     `json:"mileage"`
	Transmission string  `json:"transmission"`
	FuelType     string  `json:"fuel_type"`
	BodyType     string  `json:"body_type"`
	Location     string  `json:"location"`
	Description  string  `json:"description"`
	URL          string  `json:"url"`
	ImageURL     *string `json:"image_url"`

	LastScrapedAt *time.Time `json:"last_scraped_at"`
	CachedAt      *time.Time `json:"cached_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Stamp marks the listing as confirmed fresh at t.
func (l *Listing) Stamp(t time.Time) {
	ts := t
	l.LastScrapedAt = &ts
	l.CachedAt = &ts
}

// Image returns the image URL or an empty string.
func (l *Listing) Image() string {
	if l.ImageURL == nil {
		return ""
	}
	return *l.ImageURL
}
