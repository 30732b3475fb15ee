package location

import "casaval/server/internal/models"

// Mode is how candidates get tied to the subject's location.
type Mode int

const (
	// ModeSpatial matches by radius around the subject coordinates, with
	// hierarchy-name matches bypassing the radius.
	ModeSpatial Mode = iota
	// ModeHierarchical matches by zone names only, finest level first.
	ModeHierarchical
	// ModeAttribute is the degraded fallback when the subject carries no
	// usable location signal at all.
	ModeAttribute
)

func (m Mode) String() string {
	switch m {
	case ModeSpatial:
		return "spatial"
	case ModeHierarchical:
		return "hierarchical"
	case ModeAttribute:
		return "attribute"
	}
	return "unknown"
}

// Level identifies one tier of the location hierarchy. The zero value is
// LevelNone, for candidates that did not match by name; among named levels,
// smaller is finer.
type Level int

const (
	LevelNone Level = iota
	LevelUrbanization
	LevelSuburb
	LevelCity
)

func (l Level) String() string {
	switch l {
	case LevelUrbanization:
		return "urbanization"
	case LevelSuburb:
		return "suburb"
	case LevelCity:
		return "city"
	}
	return "none"
}

// Strategy is one hierarchy lookup to run: a level and the normalized subject
// name at that level.
type Strategy struct {
	Level Level
	Name  string
}

// Resolution is the location plan for one search. Strategies are ordered
// finest first and contain only the levels the subject actually names; they
// drive the hierarchical fallback and the hierarchy-bypass clause in spatial
// mode.
type Resolution struct {
	Mode       Mode
	Strategies []Strategy
}

// Degraded reports whether the search runs without any location signal.
func (r Resolution) Degraded() bool {
	return r.Mode == ModeAttribute
}

// Resolve decides the matching mode for the given subject. Spatial mode
// requires both subject coordinates and at least one active record with
// coordinates in the store; a populated hierarchy name falls back to
// hierarchical matching, and a subject with neither degrades to
// attribute-only matching.
func Resolve(c *models.SearchCriteria, storeHasCoordinates bool) Resolution {
	res := Resolution{Mode: ModeAttribute}
	if name := NormalizeName(c.Urbanization); name != "" {
		res.Strategies = append(res.Strategies, Strategy{Level: LevelUrbanization, Name: name})
	}
	if name := NormalizeName(c.Suburb); name != "" {
		res.Strategies = append(res.Strategies, Strategy{Level: LevelSuburb, Name: name})
	}
	if name := NormalizeName(c.City); name != "" {
		res.Strategies = append(res.Strategies, Strategy{Level: LevelCity, Name: name})
	}

	switch {
	case c.HasCoordinates() && storeHasCoordinates:
		res.Mode = ModeSpatial
	case len(res.Strategies) > 0:
		res.Mode = ModeHierarchical
	}
	return res
}
