package matching

import (
	"sort"

	"casaval/server/internal/location"
	"casaval/server/internal/models"
)

// DistanceUnknown marks a comparable with no computable distance, either
// because the subject or the record carries no coordinates.
const DistanceUnknown = -1

// Candidate is one record that passed an attempt's filter, annotated with how
// it matched. MatchLevel is LevelNone for pure radius or attribute matches.
type Candidate struct {
	Record         models.PropertyRecord
	DistanceMeters float64
	MatchLevel     location.Level
}

// HierarchyMatch reports whether the candidate matched the subject by zone
// name rather than by radius alone.
func (c Candidate) HierarchyMatch() bool {
	return c.MatchLevel != location.LevelNone
}

// Comparable is one ranked result as returned to callers.
type Comparable struct {
	Property       models.PropertyRecord `json:"property"`
	DistanceMeters float64               `json:"distance_meters"`
	HierarchyMatch bool                  `json:"hierarchy_match"`
	MatchLevel     string                `json:"match_level,omitempty"`
}

func (c Candidate) comparable() Comparable {
	out := Comparable{
		Property:       c.Record,
		DistanceMeters: c.DistanceMeters,
		HierarchyMatch: c.HierarchyMatch(),
	}
	if c.HierarchyMatch() {
		out.MatchLevel = c.MatchLevel.String()
	}
	return out
}

// sortCandidates orders candidates for the given mode. Spatial results put
// zone-name matches ahead of any coordinate match regardless of distance,
// then sort by distance. Hierarchical and attribute results sort by match
// level, then price, bedrooms and id for a stable order.
func sortCandidates(mode location.Mode, cands []Candidate) {
	switch mode {
	case location.ModeSpatial:
		sort.SliceStable(cands, func(i, j int) bool {
			a, b := cands[i], cands[j]
			if a.HierarchyMatch() != b.HierarchyMatch() {
				return a.HierarchyMatch()
			}
			if a.MatchLevel != b.MatchLevel {
				return a.MatchLevel < b.MatchLevel
			}
			if a.DistanceMeters != b.DistanceMeters {
				return a.DistanceMeters < b.DistanceMeters
			}
			return a.Record.ID < b.Record.ID
		})
	default:
		sort.SliceStable(cands, func(i, j int) bool {
			a, b := cands[i], cands[j]
			if a.MatchLevel != b.MatchLevel {
				return a.MatchLevel < b.MatchLevel
			}
			if a.Record.Price != b.Record.Price {
				return a.Record.Price < b.Record.Price
			}
			if a.Record.Bedrooms != b.Record.Bedrooms {
				return a.Record.Bedrooms < b.Record.Bedrooms
			}
			return a.Record.ID < b.Record.ID
		})
	}
}

// truncate caps the sorted candidates at the requested count. Always applied
// after sorting so the cap keeps the best matches, never arbitrary ones.
func truncate(cands []Candidate, limit int) []Candidate {
	if limit > 0 && len(cands) > limit {
		return cands[:limit]
	}
	return cands
}
