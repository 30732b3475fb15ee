package matching

import (
	"time"

	"github.com/paulmach/orb"

	"casaval/server/config"
	"casaval/server/internal/location"
	"casaval/server/internal/models"
)

// Params holds every tolerance knob of the relaxation schedule. Zero values
// fall back to the documented defaults, so a zero Params is usable.
type Params struct {
	DefaultLimit     int
	MaxAttempts      int
	FlexibilityStep  float64
	CandidateCeiling int
	Timeout          time.Duration

	BaseRadiusMeters float64
	RadiusGrowth     float64

	LuxuryPriceThreshold float64
	StandardPricePct     float64
	StandardPriceGrowth  float64
	LuxuryPricePct       float64
	LuxuryPriceGrowth    float64
	FinalPriceFactor     float64

	AreaPct    float64
	AreaGrowth float64

	AdjacencyMinFlexibility float64
}

func DefaultParams() Params {
	return Params{
		DefaultLimit:            models.DefaultResultLimit,
		MaxAttempts:             3,
		FlexibilityStep:         0.5,
		CandidateCeiling:        100,
		Timeout:                 10 * time.Second,
		BaseRadiusMeters:        3000,
		RadiusGrowth:            0.8,
		LuxuryPriceThreshold:    2000000,
		StandardPricePct:        0.30,
		StandardPriceGrowth:     0.50,
		LuxuryPricePct:          0.40,
		LuxuryPriceGrowth:       0.30,
		FinalPriceFactor:        2.5,
		AreaPct:                 0.25,
		AreaGrowth:              0.25,
		AdjacencyMinFlexibility: 1.0,
	}
}

// ParamsFromConfig maps the environment configuration onto engine parameters.
func ParamsFromConfig(cfg *config.Config) Params {
	return Params{
		DefaultLimit:            cfg.Search.DefaultLimit,
		MaxAttempts:             cfg.Search.MaxAttempts,
		FlexibilityStep:         cfg.Search.FlexibilityStep,
		CandidateCeiling:        cfg.Search.CandidateCeiling,
		Timeout:                 cfg.Search.Timeout,
		BaseRadiusMeters:        cfg.Search.BaseRadiusMeters,
		RadiusGrowth:            cfg.Search.RadiusGrowth,
		LuxuryPriceThreshold:    cfg.Search.LuxuryPriceThreshold,
		StandardPricePct:        cfg.Search.StandardPricePct,
		StandardPriceGrowth:     cfg.Search.StandardPriceGrowth,
		LuxuryPricePct:          cfg.Search.LuxuryPricePct,
		LuxuryPriceGrowth:       cfg.Search.LuxuryPriceGrowth,
		FinalPriceFactor:        cfg.Search.FinalPriceFactor,
		AreaPct:                 cfg.Search.AreaPct,
		AreaGrowth:              cfg.Search.AreaGrowth,
		AdjacencyMinFlexibility: cfg.Search.AdjacencyMinFlexibility,
	}
}

func (p Params) withDefaults() Params {
	def := DefaultParams()
	if p.DefaultLimit <= 0 {
		p.DefaultLimit = def.DefaultLimit
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.FlexibilityStep <= 0 {
		p.FlexibilityStep = def.FlexibilityStep
	}
	if p.CandidateCeiling <= 0 {
		p.CandidateCeiling = def.CandidateCeiling
	}
	if p.BaseRadiusMeters <= 0 {
		p.BaseRadiusMeters = def.BaseRadiusMeters
	}
	if p.RadiusGrowth <= 0 {
		p.RadiusGrowth = def.RadiusGrowth
	}
	if p.LuxuryPriceThreshold <= 0 {
		p.LuxuryPriceThreshold = def.LuxuryPriceThreshold
	}
	if p.StandardPricePct <= 0 {
		p.StandardPricePct = def.StandardPricePct
	}
	if p.StandardPriceGrowth <= 0 {
		p.StandardPriceGrowth = def.StandardPriceGrowth
	}
	if p.LuxuryPricePct <= 0 {
		p.LuxuryPricePct = def.LuxuryPricePct
	}
	if p.LuxuryPriceGrowth <= 0 {
		p.LuxuryPriceGrowth = def.LuxuryPriceGrowth
	}
	if p.FinalPriceFactor <= 0 {
		p.FinalPriceFactor = def.FinalPriceFactor
	}
	if p.AreaPct <= 0 {
		p.AreaPct = def.AreaPct
	}
	if p.AreaGrowth <= 0 {
		p.AreaGrowth = def.AreaGrowth
	}
	if p.AdjacencyMinFlexibility <= 0 {
		p.AdjacencyMinFlexibility = def.AdjacencyMinFlexibility
	}
	return p
}

// Flexibility returns the relaxation level for a 1-based attempt number. The
// first attempt runs strict.
func (p Params) Flexibility(attempt int) float64 {
	if attempt <= 1 {
		return 0
	}
	return p.FlexibilityStep * float64(attempt-1)
}

// bedroomWindow widens with the subject size: small homes tolerate ±1 at
// minimum, mid-size ±2, large ±3, and every full flexibility point adds two.
// A zero-bedroom subject is a studio, so the constraint always applies.
func bedroomWindow(bedrooms int, flexibility float64) (int, int) {
	base := 1
	switch {
	case bedrooms > 6:
		base = 3
	case bedrooms >= 4:
		base = 2
	}
	tolerance := base + int(flexibility*2)
	low := bedrooms - tolerance
	if low < 0 {
		low = 0
	}
	return low, bedrooms + tolerance
}

// priceWindow is segment-aware: luxury subjects start wider because that
// market is thin, standard subjects widen faster under relaxation. The final
// attempt multiplies the percentage so even sparse markets return something.
// A zero price means unknown and disables the constraint.
func (p Params) priceWindow(price, flexibility float64, finalAttempt bool) (float64, float64) {
	if price <= 0 {
		return 0, 0
	}
	pct := p.StandardPricePct + p.StandardPriceGrowth*flexibility
	if price >= p.LuxuryPriceThreshold {
		pct = p.LuxuryPricePct + p.LuxuryPriceGrowth*flexibility
	}
	if finalAttempt {
		pct *= p.FinalPriceFactor
	}
	low := price * (1 - pct)
	if low < 0 {
		low = 0
	}
	return low, price * (1 + pct)
}

// areaWindow widens monotonically with flexibility, independent of the price
// segment. A zero area means unknown and disables the constraint.
func (p Params) areaWindow(area, flexibility float64) (float64, float64) {
	if area <= 0 {
		return 0, 0
	}
	pct := p.AreaPct + p.AreaGrowth*flexibility
	low := area * (1 - pct)
	if low < 0 {
		low = 0
	}
	return low, area * (1 + pct)
}

func (p Params) radiusMeters(flexibility float64) float64 {
	return p.BaseRadiusMeters * (1 + p.RadiusGrowth*flexibility)
}

// HierarchyClause is one name lookup the store runs: the level, the
// normalized subject name, and the phrases a substring match must reject.
type HierarchyClause struct {
	Level    location.Level
	Name     string
	Excludes []string
}

// Filter is one attempt's fully bound candidate query. Every relaxation
// decision is baked in here; the store applies it without knowing about
// attempts or flexibility.
type Filter struct {
	Mode             location.Mode
	Flexibility      float64
	FinalAttempt     bool
	Kind             models.ListingKind
	ExcludeReference string
	PropertyType     models.PropertyType

	MinBedrooms int
	MaxBedrooms int

	// Zero max disables the window (unknown subject price or area)
	MinPrice     float64
	MaxPrice     float64
	MinBuildArea float64
	MaxBuildArea float64

	Center       *orb.Point
	RadiusMeters float64

	Hierarchy      []HierarchyClause
	AdjacentCities []string

	// TargetCount is the requested result count, Ceiling caps candidates
	TargetCount int
	Ceiling     int
}

// BuildFilter binds the subject criteria, the location resolution and the
// attempt's flexibility into one Filter.
func (p Params) BuildFilter(c *models.SearchCriteria, res location.Resolution, zones ZoneGuard, attempt int) Filter {
	flex := p.Flexibility(attempt)
	f := Filter{
		Mode:             res.Mode,
		Flexibility:      flex,
		FinalAttempt:     attempt >= p.MaxAttempts,
		Kind:             c.ListingKind(),
		ExcludeReference: c.Reference,
		PropertyType:     c.PropertyType,
		Ceiling:          p.CandidateCeiling,
	}

	f.MinBedrooms, f.MaxBedrooms = bedroomWindow(c.Bedrooms, flex)
	f.MinPrice, f.MaxPrice = p.priceWindow(c.Price, flex, f.FinalAttempt)
	f.MinBuildArea, f.MaxBuildArea = p.areaWindow(c.BuildArea, flex)

	if res.Mode == location.ModeSpatial {
		f.Center = &orb.Point{*c.Longitude, *c.Latitude}
		f.RadiusMeters = p.radiusMeters(flex)
	}

	for _, strat := range res.Strategies {
		clause := HierarchyClause{Level: strat.Level, Name: strat.Name}
		if zones != nil {
			clause.Excludes = zones.ExclusionsFor(strat.Name)
		}
		f.Hierarchy = append(f.Hierarchy, clause)

		if strat.Level == location.LevelCity && zones != nil && flex >= p.AdjacencyMinFlexibility {
			f.AdjacentCities = zones.AdjacentCities(strat.Name)
		}
	}
	return f
}
