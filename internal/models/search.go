package models

import (
	"errors"
	"fmt"
)

const DefaultResultLimit = 12

// SearchCriteria describes the subject property a valuation is being prepared
// for. Coordinates and hierarchy names are both optional; the engine decides
// the matching mode from whichever signals are present.
type SearchCriteria struct {
	Reference       string       `json:"reference"`
	Latitude        *float64     `json:"latitude"`
	Longitude       *float64     `json:"longitude"`
	Urbanization    string       `json:"urbanization"`
	Suburb          string       `json:"suburb"`
	City            string       `json:"city"`
	PropertyType    PropertyType `json:"property_type"`
	Bedrooms        int          `json:"bedrooms"`
	Price           float64      `json:"price"`
	BuildArea       float64      `json:"build_area"`
	ForSale         bool         `json:"for_sale"`
	LongTermRental  bool         `json:"long_term_rental"`
	ShortTermRental bool         `json:"short_term_rental"`
	Limit           int          `json:"limit"`
}

// ListingKind reports the requested market segment, or KindUnknown when the
// flags are missing or contradictory.
func (c *SearchCriteria) ListingKind() ListingKind {
	switch {
	case c.ForSale && !c.LongTermRental && !c.ShortTermRental:
		return KindSale
	case c.LongTermRental && !c.ForSale && !c.ShortTermRental:
		return KindLongTermRental
	case c.ShortTermRental && !c.ForSale && !c.LongTermRental:
		return KindShortTermRental
	}
	return KindUnknown
}

// HasCoordinates reports whether the subject carries a usable coordinate pair.
// The 0,0 origin counts as absent, matching PropertyRecord.
func (c *SearchCriteria) HasCoordinates() bool {
	if c.Latitude == nil || c.Longitude == nil {
		return false
	}
	lat, lng := *c.Latitude, *c.Longitude
	if lat == 0 && lng == 0 {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// HasHierarchy reports whether at least one location-hierarchy name is set.
func (c *SearchCriteria) HasHierarchy() bool {
	return c.Urbanization != "" || c.Suburb != "" || c.City != ""
}

// Validate rejects criteria that cannot be searched. It does not touch the
// store; callers surface the error before any attempt runs.
func (c *SearchCriteria) Validate() error {
	if c.Limit < 0 {
		return fmt.Errorf("limit must not be negative, got %d", c.Limit)
	}
	if c.Bedrooms < 0 {
		return fmt.Errorf("bedrooms must not be negative, got %d", c.Bedrooms)
	}
	if c.Price < 0 {
		return fmt.Errorf("price must not be negative, got %.2f", c.Price)
	}
	if c.BuildArea < 0 {
		return fmt.Errorf("build area must not be negative, got %.2f", c.BuildArea)
	}
	if c.PropertyType != "" && !c.PropertyType.Valid() {
		return fmt.Errorf("unknown property type %q", c.PropertyType)
	}
	set := 0
	for _, flag := range []bool{c.ForSale, c.LongTermRental, c.ShortTermRental} {
		if flag {
			set++
		}
	}
	if set == 0 {
		return errors.New("exactly one listing-kind flag must be set, got none")
	}
	if set > 1 {
		return fmt.Errorf("exactly one listing-kind flag must be set, got %d", set)
	}
	return nil
}

// EffectiveLimit returns the requested result count with the default applied.
func (c *SearchCriteria) EffectiveLimit() int {
	if c.Limit == 0 {
		return DefaultResultLimit
	}
	return c.Limit
}
