package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type PropertyType string

const (
	TypeApartment PropertyType = "apartment"
	TypeHouse     PropertyType = "house"
	TypeVilla     PropertyType = "villa"
	TypePenthouse PropertyType = "penthouse"
	TypeStudio    PropertyType = "studio"
	TypeTownhouse PropertyType = "townhouse"
	TypeOther     PropertyType = "other"
)

func (t PropertyType) Valid() bool {
	switch t {
	case TypeApartment, TypeHouse, TypeVilla, TypePenthouse, TypeStudio, TypeTownhouse, TypeOther:
		return true
	}
	return false
}

// NormalizePropertyType maps the spellings seen in portal feeds onto the
// closed taxonomy. Anything unrecognized lands in TypeOther rather than
// failing ingestion.
func NormalizePropertyType(raw string) PropertyType {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "apartment", "flat", "piso", "ground floor apartment", "middle floor apartment", "top floor apartment", "duplex":
		return TypeApartment
	case "house", "country house", "finca", "chalet", "cortijo":
		return TypeHouse
	case "villa", "detached villa", "semi-detached villa":
		return TypeVilla
	case "penthouse", "atico", "ático", "penthouse duplex":
		return TypePenthouse
	case "studio", "estudio":
		return TypeStudio
	case "townhouse", "town house", "adosado", "semi-detached house", "terraced house":
		return TypeTownhouse
	default:
		return TypeOther
	}
}

type ListingKind string

const (
	KindSale            ListingKind = "sale"
	KindLongTermRental  ListingKind = "long_term_rental"
	KindShortTermRental ListingKind = "short_term_rental"
	KindUnknown         ListingKind = ""
)

// StringList stores a JSON-encoded string slice in a single TEXT column.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("failed to encode string list: %w", err)
	}
	return string(data), nil
}

func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported string list column type %T", value)
	}
	if len(data) == 0 {
		*l = nil
		return nil
	}
	return json.Unmarshal(data, l)
}

// PropertyRecord is one listing as delivered by the intake feed. ID is the
// feed's stable identifier and the upsert key. The *_Key fields hold the
// normalized location names and are maintained by the store on every write.
type PropertyRecord struct {
	ID              int64        `json:"id"`
	Reference       string       `json:"reference"`
	Latitude        *float64     `json:"latitude"`
	Longitude       *float64     `json:"longitude"`
	Urbanization    string       `json:"urbanization"`
	Suburb          string       `json:"suburb"`
	City            string       `json:"city"`
	Province        string       `json:"province"`
	Address         string       `json:"address"`
	UrbanizationKey string       `json:"-"`
	SuburbKey       string       `json:"-"`
	CityKey         string       `json:"-"`
	PropertyType    PropertyType `json:"property_type"`
	Bedrooms        int          `json:"bedrooms"`
	Bathrooms       float64      `json:"bathrooms"`
	BuildArea       float64      `json:"build_area"`
	PlotArea        float64      `json:"plot_area"`
	TerraceArea     float64      `json:"terrace_area"`
	Price           float64      `json:"price"`
	ForSale         bool         `json:"for_sale"`
	LongTermRental  bool         `json:"long_term_rental"`
	ShortTermRental bool         `json:"short_term_rental"`
	Features        StringList   `json:"features"`
	Images          StringList   `json:"images"`
	IsActive        bool         `json:"is_active"`
	LastUpdated     time.Time    `json:"last_updated"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

func (PropertyRecord) TableName() string {
	return "properties"
}

// ListingKind reports the record's market segment, or KindUnknown when the
// feed flags are missing or contradictory.
func (p *PropertyRecord) ListingKind() ListingKind {
	switch {
	case p.ForSale && !p.LongTermRental && !p.ShortTermRental:
		return KindSale
	case p.LongTermRental && !p.ForSale && !p.ShortTermRental:
		return KindLongTermRental
	case p.ShortTermRental && !p.ForSale && !p.LongTermRental:
		return KindShortTermRental
	}
	return KindUnknown
}

// HasCoordinates reports whether both coordinates are present and inside
// plausible WGS84 bounds. Feeds deliver 0,0 for ungeocoded listings often
// enough that the origin is treated as absent.
func (p *PropertyRecord) HasCoordinates() bool {
	if p.Latitude == nil || p.Longitude == nil {
		return false
	}
	lat, lng := *p.Latitude, *p.Longitude
	if lat == 0 && lng == 0 {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

type StoreStats struct {
	TotalProperties  int       `json:"total_properties"`
	ActiveProperties int       `json:"active_properties"`
	WithCoordinates  int       `json:"with_coordinates"`
	ForSale          int       `json:"for_sale"`
	LongTermRentals  int       `json:"long_term_rentals"`
	ShortTermRentals int       `json:"short_term_rentals"`
	IndexSize        int       `json:"index_size"`
	IndexBuiltAt     time.Time `json:"index_built_at"`
}
