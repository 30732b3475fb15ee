package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"casaval/server/internal/location"
)

// ZoneRule keeps a broader zone name from swallowing a distinct zone that
// contains it as a substring. Matching "Atalaya" must not pull in listings
// from "Nueva Atalaya", which is a separate urbanization a few kilometers
// away.
type ZoneRule struct {
	Name     string   `json:"name"`
	Excludes []string `json:"excludes"`
}

// CityPair links two administratively distinct but physically contiguous
// cities. The pair is only honored at high relaxation flexibility.
type CityPair struct {
	A string `json:"a"`
	B string `json:"b"`
}

// defaultZoneRules covers the known conflicting names on the Costa del Sol.
// More can be added through the zones override file.
var defaultZoneRules = []ZoneRule{
	{Name: "Atalaya", Excludes: []string{"Nueva Atalaya"}},
	{Name: "Las Chapas", Excludes: []string{"Hacienda Las Chapas"}},
}

// defaultCityPairs lists city fields that portal feeds report separately even
// though the built-up areas run into each other.
var defaultCityPairs = []CityPair{
	{A: "Marbella", B: "San Pedro de Alcántara"},
	{A: "Marbella", B: "Puerto Banús"},
	{A: "Fuengirola", B: "Mijas Costa"},
	{A: "Estepona", B: "Cancelada"},
}

// ZoneRegistry answers exclusion and adjacency questions about zone names.
// All lookups run on normalized names.
type ZoneRegistry struct {
	mu       sync.RWMutex
	excludes map[string][]string
	adjacent map[string][]string
}

// NewZoneRegistry builds a registry preloaded with the built-in rules.
func NewZoneRegistry() *ZoneRegistry {
	r := &ZoneRegistry{
		excludes: make(map[string][]string),
		adjacent: make(map[string][]string),
	}
	for _, rule := range defaultZoneRules {
		r.addRule(rule)
	}
	for _, pair := range defaultCityPairs {
		r.addPair(pair)
	}
	return r
}

func (r *ZoneRegistry) addRule(rule ZoneRule) {
	key := location.NormalizeName(rule.Name)
	if key == "" {
		return
	}
	phrases := make([]string, 0, len(rule.Excludes))
	for _, raw := range rule.Excludes {
		if phrase := location.NormalizeName(raw); phrase != "" {
			phrases = append(phrases, phrase)
		}
	}
	r.excludes[key] = phrases
}

func (r *ZoneRegistry) addPair(pair CityPair) {
	a := location.NormalizeName(pair.A)
	b := location.NormalizeName(pair.B)
	if a == "" || b == "" || a == b {
		return
	}
	if !contains(r.adjacent[a], b) {
		r.adjacent[a] = append(r.adjacent[a], b)
	}
	if !contains(r.adjacent[b], a) {
		r.adjacent[b] = append(r.adjacent[b], a)
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// ExclusionsFor returns the normalized phrases a substring match on the given
// zone name must reject. The name may be raw or already normalized.
func (r *ZoneRegistry) ExclusionsFor(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	phrases := r.excludes[location.NormalizeName(name)]
	if len(phrases) == 0 {
		return nil
	}
	out := make([]string, len(phrases))
	copy(out, phrases)
	return out
}

// AdjacentCities returns the normalized city names registered as contiguous
// with the given one.
func (r *ZoneRegistry) AdjacentCities(city string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cities := r.adjacent[location.NormalizeName(city)]
	if len(cities) == 0 {
		return nil
	}
	out := make([]string, len(cities))
	copy(out, cities)
	return out
}

type zoneFile struct {
	Rules     []ZoneRule `json:"rules"`
	CityPairs []CityPair `json:"city_pairs"`
}

// LoadFile merges a JSON override file into the registry. Rules replace any
// built-in rule with the same name; city pairs accumulate.
func (r *ZoneRegistry) LoadFile(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve zones file path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return fmt.Errorf("failed to read zones file: %w", err)
	}

	var file zoneFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse zones file: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rule := range file.Rules {
		r.addRule(rule)
	}
	for _, pair := range file.CityPairs {
		r.addPair(pair)
	}
	return nil
}
