package services

import (
	"strings"
	"unicode"

	"carsensor-mirror/models"
	"carsensor-mirror/utils"
)

// Cleaner tidies scraped candidates before they reach the store.
type Cleaner struct {
	logger *utils.Logger
}

// NewCleaner creates a Cleaner with the given logger.
func NewCleaner(logger *utils.Logger) *Cleaner {
	return &Cleaner{logger: logger}
}

// Clean normalises whitespace in the text fields and drops candidates that
// would violate the store constraints. The input slice is not modified.
func (c *Cleaner) Clean(candidates []*models.Listing) []*models.Listing {
	result := make([]*models.Listing, 0, len(candidates))

	for _, l := range candidates {
		if l == nil {
			continue
		}
		cl := *l
		cl.ExternalID = strings.TrimSpace(cl.ExternalID)
		cl.Brand = normaliseText(cl.Brand)
		cl.Model = normaliseText(cl.Model)
		cl.Color = normaliseText(cl.Color)
		cl.Transmission = normaliseText(cl.Transmission)
		cl.FuelType = normaliseText(cl.FuelType)
		cl.BodyType = normaliseText(cl.BodyType)
		cl.Location = normaliseText(cl.Location)
		cl.Description = normaliseText(cl.Description)
		cl.URL = strings.TrimSpace(cl.URL)
		if cl.ImageURL != nil {
			if img := strings.TrimSpace(*cl.ImageURL); img != "" {
				cl.ImageURL = &img
			} else {
				cl.ImageURL = nil
			}
		}
		if cl.Mileage < 0 {
			cl.Mileage = 0
		}

		switch {
		case cl.ExternalID == "":
			c.logger.Warn("[cleaner] Dropping listing without external id: %s %s", cl.Brand, cl.Model)
			continue
		case cl.Brand == "" || cl.Model == "":
			c.logger.Warn("[cleaner] Dropping %s: missing brand or model", cl.ExternalID)
			continue
		case cl.Price <= 0:
			c.logger.Warn("[cleaner] Dropping %s: price %d", cl.ExternalID, cl.Price)
			continue
		}

		result = append(result, &cl)
	}

	if dropped := len(candidates) - len(result); dropped > 0 {
		c.logger.Info("[cleaner] Cleaned %d → %d listings (dropped %d)", len(candidates), len(result), dropped)
	}
	return result
}

// Dedupe collapses candidates sharing an external id. The last occurrence
// wins but keeps the position of the first one. It returns the unique
// listings and the number of duplicates removed.
func Dedupe(candidates []*models.Listing) ([]*models.Listing, int) {
	index := make(map[string]int, len(candidates))
	result := make([]*models.Listing, 0, len(candidates))

	for _, l := range candidates {
		if i, dup := index[l.ExternalID]; dup {
			result[i] = l
			continue
		}
		index[l.ExternalID] = len(result)
		result = append(result, l)
	}
	return result, len(candidates) - len(result)
}

// normaliseText strips leading/trailing whitespace and collapses internal whitespace.
func normaliseText(s string) string {
	fields := strings.FieldsFunc(s, unicode.IsSpace)
	return strings.Join(fields, " ")
}
