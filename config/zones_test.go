package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZoneRegistry_ExclusionsFor(t *testing.T) {
	registry := NewZoneRegistry()

	tests := []struct {
		name     string
		zone     string
		expected []string
	}{
		{
			name:     "Atalaya excludes Nueva Atalaya",
			zone:     "Atalaya",
			expected: []string{"nueva atalaya"},
		},
		{
			name:     "Lookup works on normalized input",
			zone:     "atalaya",
			expected: []string{"nueva atalaya"},
		},
		{
			name:     "Las Chapas excludes Hacienda Las Chapas",
			zone:     "LAS CHAPAS",
			expected: []string{"hacienda las chapas"},
		},
		{
			name:     "Unknown zone has no exclusions",
			zone:     "Nueva Andalucía",
			expected: nil,
		},
		{
			name:     "Excluded zone itself has no exclusions",
			zone:     "Nueva Atalaya",
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, registry.ExclusionsFor(tt.zone))
		})
	}
}

func TestZoneRegistry_AdjacentCities(t *testing.T) {
	registry := NewZoneRegistry()

	tests := []struct {
		name     string
		city     string
		expected []string
	}{
		{
			name:     "Marbella touches two neighbors",
			city:     "Marbella",
			expected: []string{"san pedro de alcantara", "puerto banus"},
		},
		{
			name:     "Adjacency is symmetric",
			city:     "San Pedro de Alcántara",
			expected: []string{"marbella"},
		},
		{
			name:     "Accent-insensitive lookup",
			city:     "puerto banús",
			expected: []string{"marbella"},
		},
		{
			name:     "Fuengirola pairs with Mijas Costa",
			city:     "Fuengirola",
			expected: []string{"mijas costa"},
		},
		{
			name:     "Unknown city has no neighbors",
			city:     "Málaga",
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, registry.AdjacentCities(tt.city))
		})
	}
}

func TestZoneRegistry_ReturnsCopies(t *testing.T) {
	registry := NewZoneRegistry()

	first := registry.ExclusionsFor("Atalaya")
	first[0] = "mutated"

	assert.Equal(t, []string{"nueva atalaya"}, registry.ExclusionsFor("Atalaya"))
}

func TestZoneRegistry_LoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zones.json")
	content := `{
		"rules": [
			{"name": "Atalaya", "excludes": ["Nueva Atalaya", "Atalaya Hills"]},
			{"name": "El Paraíso", "excludes": ["El Paraíso Alto"]}
		],
		"city_pairs": [
			{"a": "Benalmádena", "b": "Torremolinos"}
		]
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	registry := NewZoneRegistry()
	require.NoError(t, registry.LoadFile(path))

	// Override replaces the built-in rule for the same zone
	assert.Equal(t, []string{"nueva atalaya", "atalaya hills"}, registry.ExclusionsFor("Atalaya"))
	// New rules and pairs merge in
	assert.Equal(t, []string{"el paraiso alto"}, registry.ExclusionsFor("El Paraíso"))
	assert.Equal(t, []string{"torremolinos"}, registry.AdjacentCities("Benalmádena"))
	// Untouched built-ins survive the merge
	assert.Equal(t, []string{"hacienda las chapas"}, registry.ExclusionsFor("Las Chapas"))
	assert.Equal(t, []string{"marbella"}, registry.AdjacentCities("Puerto Banús"))
}

func TestZoneRegistry_LoadFileErrors(t *testing.T) {
	registry := NewZoneRegistry()

	err := registry.LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read zones file")

	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	err = registry.LoadFile(path)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse zones file")
}
