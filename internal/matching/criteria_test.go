package matching

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"casaval/server/internal/location"
	"casaval/server/internal/models"
)

type stubZones struct{}

func (stubZones) ExclusionsFor(name string) []string {
	if name == "atalaya" {
		return []string{"nueva atalaya"}
	}
	return nil
}

func (stubZones) AdjacentCities(city string) []string {
	if city == "marbella" {
		return []string{"san pedro de alcantara", "puerto banus"}
	}
	return nil
}

func TestParams_Flexibility(t *testing.T) {
	p := DefaultParams()

	assert.Equal(t, 0.0, p.Flexibility(0))
	assert.Equal(t, 0.0, p.Flexibility(1))
	assert.Equal(t, 0.5, p.Flexibility(2))
	assert.Equal(t, 1.0, p.Flexibility(3))
}

func TestBedroomWindow(t *testing.T) {
	tests := []struct {
		name        string
		bedrooms    int
		flexibility float64
		wantMin     int
		wantMax     int
	}{
		{
			name:     "Two bedrooms strict",
			bedrooms: 2, flexibility: 0,
			wantMin: 1, wantMax: 3,
		},
		{
			name:     "Two bedrooms half flexibility",
			bedrooms: 2, flexibility: 0.5,
			wantMin: 0, wantMax: 4,
		},
		{
			name:     "Two bedrooms full flexibility",
			bedrooms: 2, flexibility: 1.0,
			wantMin: 0, wantMax: 5,
		},
		{
			name:     "Studio clamps at zero",
			bedrooms: 0, flexibility: 0,
			wantMin: 0, wantMax: 1,
		},
		{
			name:     "Three bedrooms still in narrow band",
			bedrooms: 3, flexibility: 0,
			wantMin: 2, wantMax: 4,
		},
		{
			name:     "Four bedrooms widen the base",
			bedrooms: 4, flexibility: 0,
			wantMin: 2, wantMax: 6,
		},
		{
			name:     "Six bedrooms share the mid band",
			bedrooms: 6, flexibility: 0,
			wantMin: 4, wantMax: 8,
		},
		{
			name:     "Seven bedrooms use the wide band",
			bedrooms: 7, flexibility: 0,
			wantMin: 4, wantMax: 10,
		},
		{
			name:     "Large home under relaxation",
			bedrooms: 7, flexibility: 0.5,
			wantMin: 3, wantMax: 11,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			min, max := bedroomWindow(tt.bedrooms, tt.flexibility)
			assert.Equal(t, tt.wantMin, min)
			assert.Equal(t, tt.wantMax, max)
		})
	}
}

func TestPriceWindow(t *testing.T) {
	p := DefaultParams()

	tests := []struct {
		name         string
		price        float64
		flexibility  float64
		finalAttempt bool
		wantMin      float64
		wantMax      float64
	}{
		{
			name:  "Standard segment strict",
			price: 500000, flexibility: 0,
			wantMin: 350000, wantMax: 650000,
		},
		{
			name:  "Standard segment half flexibility",
			price: 500000, flexibility: 0.5,
			wantMin: 225000, wantMax: 725000,
		},
		{
			name:  "Standard final attempt clamps low at zero",
			price: 500000, flexibility: 1.0, finalAttempt: true,
			wantMin: 0, wantMax: 1500000,
		},
		{
			name:  "Luxury segment starts wider",
			price: 2500000, flexibility: 0,
			wantMin: 1500000, wantMax: 3500000,
		},
		{
			name:  "Luxury segment grows slower",
			price: 2500000, flexibility: 0.5,
			wantMin: 1125000, wantMax: 3875000,
		},
		{
			name:  "Luxury final attempt",
			price: 2500000, flexibility: 1.0, finalAttempt: true,
			wantMin: 0, wantMax: 6875000,
		},
		{
			name:  "Threshold price counts as luxury",
			price: 2000000, flexibility: 0,
			wantMin: 1200000, wantMax: 2800000,
		},
		{
			name:  "Unknown price disables the window",
			price: 0, flexibility: 0.5,
			wantMin: 0, wantMax: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			min, max := p.priceWindow(tt.price, tt.flexibility, tt.finalAttempt)
			assert.InDelta(t, tt.wantMin, min, 0.01)
			assert.InDelta(t, tt.wantMax, max, 0.01)
		})
	}
}

func TestAreaWindow(t *testing.T) {
	p := DefaultParams()

	tests := []struct {
		name        string
		area        float64
		flexibility float64
		wantMin     float64
		wantMax     float64
	}{
		{
			name: "Strict",
			area: 100, flexibility: 0,
			wantMin: 75, wantMax: 125,
		},
		{
			name: "Half flexibility",
			area: 100, flexibility: 0.5,
			wantMin: 62.5, wantMax: 137.5,
		},
		{
			name: "Full flexibility",
			area: 100, flexibility: 1.0,
			wantMin: 50, wantMax: 150,
		},
		{
			name: "Unknown area disables the window",
			area: 0, flexibility: 1.0,
			wantMin: 0, wantMax: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			min, max := p.areaWindow(tt.area, tt.flexibility)
			assert.InDelta(t, tt.wantMin, min, 0.01)
			assert.InDelta(t, tt.wantMax, max, 0.01)
		})
	}
}

func TestRadiusMeters(t *testing.T) {
	p := DefaultParams()

	assert.InDelta(t, 3000, p.radiusMeters(0), 0.01)
	assert.InDelta(t, 4200, p.radiusMeters(0.5), 0.01)
	assert.InDelta(t, 5400, p.radiusMeters(1.0), 0.01)
}

func TestParams_WithDefaults(t *testing.T) {
	p := Params{}.withDefaults()

	assert.Equal(t, DefaultParams(), p)

	// Explicit values survive
	custom := Params{MaxAttempts: 5, BaseRadiusMeters: 1000}.withDefaults()
	assert.Equal(t, 5, custom.MaxAttempts)
	assert.Equal(t, 1000.0, custom.BaseRadiusMeters)
	assert.Equal(t, 0.5, custom.FlexibilityStep)
}

func TestBuildFilter_Spatial(t *testing.T) {
	p := DefaultParams()
	lat, lng := 36.4918, -4.9565
	criteria := &models.SearchCriteria{
		Reference:    "R100",
		Latitude:     &lat,
		Longitude:    &lng,
		Urbanization: "Atalaya",
		PropertyType: models.TypeApartment,
		Bedrooms:     2,
		Price:        500000,
		BuildArea:    100,
		ForSale:      true,
	}
	res := location.Resolve(criteria, true)
	require.Equal(t, location.ModeSpatial, res.Mode)

	f := p.BuildFilter(criteria, res, stubZones{}, 1)

	assert.Equal(t, location.ModeSpatial, f.Mode)
	assert.Equal(t, 0.0, f.Flexibility)
	assert.False(t, f.FinalAttempt)
	assert.Equal(t, models.KindSale, f.Kind)
	assert.Equal(t, "R100", f.ExcludeReference)
	assert.Equal(t, models.TypeApartment, f.PropertyType)
	assert.Equal(t, 1, f.MinBedrooms)
	assert.Equal(t, 3, f.MaxBedrooms)
	assert.InDelta(t, 350000, f.MinPrice, 0.01)
	assert.InDelta(t, 650000, f.MaxPrice, 0.01)
	assert.InDelta(t, 75, f.MinBuildArea, 0.01)
	assert.InDelta(t, 125, f.MaxBuildArea, 0.01)
	require.NotNil(t, f.Center)
	assert.Equal(t, orb.Point{lng, lat}, *f.Center)
	assert.InDelta(t, 3000, f.RadiusMeters, 0.01)
	require.Len(t, f.Hierarchy, 1)
	assert.Equal(t, location.LevelUrbanization, f.Hierarchy[0].Level)
	assert.Equal(t, "atalaya", f.Hierarchy[0].Name)
	assert.Equal(t, []string{"nueva atalaya"}, f.Hierarchy[0].Excludes)
	assert.Equal(t, p.CandidateCeiling, f.Ceiling)
}

func TestBuildFilter_RelaxationProgression(t *testing.T) {
	p := DefaultParams()
	lat, lng := 36.4918, -4.9565
	criteria := &models.SearchCriteria{
		Latitude:  &lat,
		Longitude: &lng,
		Bedrooms:  2,
		Price:     500000,
		ForSale:   true,
	}
	res := location.Resolve(criteria, true)

	first := p.BuildFilter(criteria, res, stubZones{}, 1)
	second := p.BuildFilter(criteria, res, stubZones{}, 2)
	third := p.BuildFilter(criteria, res, stubZones{}, 3)

	// Every window only widens as attempts progress
	assert.LessOrEqual(t, second.MinBedrooms, first.MinBedrooms)
	assert.GreaterOrEqual(t, second.MaxBedrooms, first.MaxBedrooms)
	assert.LessOrEqual(t, second.MinPrice, first.MinPrice)
	assert.GreaterOrEqual(t, second.MaxPrice, first.MaxPrice)
	assert.Greater(t, second.RadiusMeters, first.RadiusMeters)
	assert.Greater(t, third.RadiusMeters, second.RadiusMeters)

	assert.False(t, first.FinalAttempt)
	assert.False(t, second.FinalAttempt)
	assert.True(t, third.FinalAttempt)
	assert.InDelta(t, 5400, third.RadiusMeters, 0.01)
}

func TestBuildFilter_AdjacencyGatedByFlexibility(t *testing.T) {
	p := DefaultParams()
	criteria := &models.SearchCriteria{City: "Marbella", ForSale: true}
	res := location.Resolve(criteria, false)
	require.Equal(t, location.ModeHierarchical, res.Mode)

	strict := p.BuildFilter(criteria, res, stubZones{}, 1)
	assert.Empty(t, strict.AdjacentCities)

	half := p.BuildFilter(criteria, res, stubZones{}, 2)
	assert.Empty(t, half.AdjacentCities)

	full := p.BuildFilter(criteria, res, stubZones{}, 3)
	assert.Equal(t, []string{"san pedro de alcantara", "puerto banus"}, full.AdjacentCities)
}

func TestBuildFilter_NilZoneGuard(t *testing.T) {
	p := DefaultParams()
	criteria := &models.SearchCriteria{Urbanization: "Atalaya", City: "Marbella", ForSale: true}
	res := location.Resolve(criteria, false)

	f := p.BuildFilter(criteria, res, nil, 3)

	require.Len(t, f.Hierarchy, 2)
	assert.Empty(t, f.Hierarchy[0].Excludes)
	assert.Empty(t, f.AdjacentCities)
}

func TestBuildFilter_UnknownPriceAndArea(t *testing.T) {
	p := DefaultParams()
	criteria := &models.SearchCriteria{City: "Estepona", Bedrooms: 3, ForSale: true}
	res := location.Resolve(criteria, false)

	f := p.BuildFilter(criteria, res, stubZones{}, 2)

	assert.Zero(t, f.MaxPrice)
	assert.Zero(t, f.MaxBuildArea)
	assert.Equal(t, 1, f.MinBedrooms)
	assert.Equal(t, 5, f.MaxBedrooms)
}
