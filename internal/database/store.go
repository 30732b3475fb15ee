package database

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"casaval/server/internal/location"
	"casaval/server/internal/matching"
	"casaval/server/internal/models"
	"casaval/server/internal/spatial"
)

// Store executes candidate queries for the matching engine and owns the
// spatial index over its active records.
type Store struct {
	db    *Database
	index *spatial.Index
}

var (
	_ matching.CandidateSource = (*Store)(nil)
	_ spatial.PointSource      = (*Store)(nil)
)

func NewStore(db *Database, index *spatial.Index) *Store {
	return &Store{db: db, index: index}
}

// Index exposes the spatial index, mainly for stats and the refresher.
func (s *Store) Index() *spatial.Index {
	return s.index
}

const recordColumns = `
        id, reference, latitude, longitude,
        urbanization, suburb, city, province, address,
        urbanization_key, suburb_key, city_key,
        property_type, bedrooms, bathrooms,
        build_area, plot_area, terrace_area, price,
        for_sale, long_term_rental, short_term_rental,
        features, images, is_active, last_updated, created_at, updated_at`

func scanRecord(rows *sql.Rows) (models.PropertyRecord, error) {
	var p models.PropertyRecord
	var latitude, longitude sql.NullFloat64
	var lastUpdated, createdAt, updatedAt sql.NullTime

	err := rows.Scan(
		&p.ID,
		&p.Reference,
		&latitude,
		&longitude,
		&p.Urbanization,
		&p.Suburb,
		&p.City,
		&p.Province,
		&p.Address,
		&p.UrbanizationKey,
		&p.SuburbKey,
		&p.CityKey,
		&p.PropertyType,
		&p.Bedrooms,
		&p.Bathrooms,
		&p.BuildArea,
		&p.PlotArea,
		&p.TerraceArea,
		&p.Price,
		&p.ForSale,
		&p.LongTermRental,
		&p.ShortTermRental,
		&p.Features,
		&p.Images,
		&p.IsActive,
		&lastUpdated,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return p, err
	}

	if latitude.Valid {
		lat := latitude.Float64
		p.Latitude = &lat
	}
	if longitude.Valid {
		lng := longitude.Float64
		p.Longitude = &lng
	}
	if lastUpdated.Valid {
		p.LastUpdated = lastUpdated.Time
	}
	if createdAt.Valid {
		p.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		p.UpdatedAt = updatedAt.Time
	}
	return p, nil
}

// baseConditions builds the attribute side every mode shares: searchability,
// listing-kind isolation, type equality, and the tolerance windows. A zero
// max disables a window (unknown subject price or area).
func baseConditions(f matching.Filter) ([]string, []interface{}) {
	conditions := []string{"is_active = 1", "price > 0", "build_area > 0"}
	var args []interface{}

	switch f.Kind {
	case models.KindSale:
		conditions = append(conditions, "for_sale = 1", "long_term_rental = 0", "short_term_rental = 0")
	case models.KindLongTermRental:
		conditions = append(conditions, "long_term_rental = 1", "for_sale = 0", "short_term_rental = 0")
	case models.KindShortTermRental:
		conditions = append(conditions, "short_term_rental = 1", "for_sale = 0", "long_term_rental = 0")
	}

	if f.PropertyType != "" {
		conditions = append(conditions, "property_type = ?")
		args = append(args, string(f.PropertyType))
	}
	conditions = append(conditions, "bedrooms BETWEEN ? AND ?")
	args = append(args, f.MinBedrooms, f.MaxBedrooms)

	if f.MaxPrice > 0 {
		conditions = append(conditions, "price BETWEEN ? AND ?")
		args = append(args, f.MinPrice, f.MaxPrice)
	}
	if f.MaxBuildArea > 0 {
		conditions = append(conditions, "build_area BETWEEN ? AND ?")
		args = append(args, f.MinBuildArea, f.MaxBuildArea)
	}
	if f.ExcludeReference != "" {
		conditions = append(conditions, "reference != ?")
		args = append(args, f.ExcludeReference)
	}
	return conditions, args
}

// hierarchyCondition builds the SQL for one hierarchy level. Urbanization and
// suburb names match by equality or containment minus the registered
// exclusion phrases; city names match exactly, widened to adjacent cities
// when the filter carries them.
func hierarchyCondition(cl matching.HierarchyClause, adjacent []string) (string, []interface{}) {
	var col string
	switch cl.Level {
	case location.LevelUrbanization:
		col = "urbanization_key"
	case location.LevelSuburb:
		col = "suburb_key"
	default:
		col = "city_key"
	}

	if cl.Level == location.LevelCity {
		if len(adjacent) == 0 {
			return "(" + col + " = ?)", []interface{}{cl.Name}
		}
		placeholders := make([]string, 0, len(adjacent)+1)
		args := make([]interface{}, 0, len(adjacent)+1)
		placeholders = append(placeholders, "?")
		args = append(args, cl.Name)
		for _, city := range adjacent {
			placeholders = append(placeholders, "?")
			args = append(args, city)
		}
		return "(" + col + " IN (" + strings.Join(placeholders, ", ") + "))", args
	}

	cond := "(" + col + " = ? OR instr(" + col + ", ?) > 0)"
	args := []interface{}{cl.Name, cl.Name}
	for _, excl := range cl.Excludes {
		cond += " AND instr(" + col + ", ?) = 0"
		args = append(args, excl)
	}
	return "(" + cond + ")", args
}

// zoneMatches mirrors hierarchyCondition's containment semantics in Go so
// candidates can be annotated with the level they matched at.
func zoneMatches(key, name string, excludes []string) bool {
	if key == "" || name == "" {
		return false
	}
	if key != name && !strings.Contains(key, name) {
		return false
	}
	for _, excl := range excludes {
		if strings.Contains(key, excl) {
			return false
		}
	}
	return true
}

func matchLevel(p *models.PropertyRecord, clauses []matching.HierarchyClause, adjacent []string) location.Level {
	for _, cl := range clauses {
		switch cl.Level {
		case location.LevelUrbanization:
			if zoneMatches(p.UrbanizationKey, cl.Name, cl.Excludes) {
				return cl.Level
			}
		case location.LevelSuburb:
			if zoneMatches(p.SuburbKey, cl.Name, cl.Excludes) {
				return cl.Level
			}
		case location.LevelCity:
			if p.CityKey != "" && p.CityKey == cl.Name {
				return cl.Level
			}
			for _, adj := range adjacent {
				if p.CityKey == adj {
					return cl.Level
				}
			}
		}
	}
	return location.LevelNone
}

// FindCandidates runs one attempt's fully bound filter and returns annotated
// candidates. The result is capped at the filter's ceiling and only loosely
// ordered; ranking happens upstream.
func (s *Store) FindCandidates(ctx context.Context, f matching.Filter) ([]matching.Candidate, error) {
	switch f.Mode {
	case location.ModeSpatial:
		return s.findSpatial(ctx, f)
	case location.ModeHierarchical:
		return s.findHierarchical(ctx, f)
	default:
		return s.findByAttributes(ctx, f)
	}
}

// findSpatial pulls radius hits from the quadtree and widens the query with
// the hierarchy clauses, which bypass the radius entirely. An exact
// urbanization match 10 km out still belongs in the pool.
func (s *Store) findSpatial(ctx context.Context, f matching.Filter) ([]matching.Candidate, error) {
	if f.Center == nil {
		return nil, fmt.Errorf("spatial filter carries no center point")
	}

	hits := s.index.Within(*f.Center, f.RadiusMeters)
	if len(hits) > f.Ceiling {
		hits = hits[:f.Ceiling]
	}
	if len(hits) == 0 && len(f.Hierarchy) == 0 {
		return nil, nil
	}

	distances := make(map[int64]float64, len(hits))
	var locationConds []string
	var locationArgs []interface{}

	if len(hits) > 0 {
		var ids strings.Builder
		for i, hit := range hits {
			if i > 0 {
				ids.WriteString(",")
			}
			ids.WriteString(strconv.FormatInt(hit.ID, 10))
			distances[hit.ID] = hit.DistanceMeters
		}
		locationConds = append(locationConds, "id IN ("+ids.String()+")")
	}
	for _, cl := range f.Hierarchy {
		cond, condArgs := hierarchyCondition(cl, f.AdjacentCities)
		locationConds = append(locationConds, cond)
		locationArgs = append(locationArgs, condArgs...)
	}

	conditions, args := baseConditions(f)
	conditions = append(conditions, "("+strings.Join(locationConds, " OR ")+")")
	args = append(args, locationArgs...)

	query := "SELECT " + recordColumns + "\n        FROM properties\n        WHERE " +
		strings.Join(conditions, "\n        AND ") +
		"\n        ORDER BY id ASC LIMIT ?"
	args = append(args, f.Ceiling)

	rows, err := s.db.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("spatial candidate query failed: %w", err)
	}
	defer rows.Close()

	var candidates []matching.Candidate
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}

		cand := matching.Candidate{
			Record:         record,
			DistanceMeters: matching.DistanceUnknown,
			MatchLevel:     matchLevel(&record, f.Hierarchy, f.AdjacentCities),
		}
		if d, ok := distances[record.ID]; ok {
			cand.DistanceMeters = d
		} else if record.HasCoordinates() {
			cand.DistanceMeters = geo.Distance(*f.Center, orb.Point{*record.Longitude, *record.Latitude})
		}
		candidates = append(candidates, cand)
	}
	return candidates, rows.Err()
}

// findHierarchical walks the strategies finest first. Each level's matches
// accumulate, and coarser levels only run while the pool is still short of
// the requested count, so an urbanization full of matches never gets diluted
// with city-wide ones.
func (s *Store) findHierarchical(ctx context.Context, f matching.Filter) ([]matching.Candidate, error) {
	var candidates []matching.Candidate
	seen := make(map[int64]bool)

	for _, cl := range f.Hierarchy {
		if f.TargetCount > 0 && len(candidates) >= f.TargetCount {
			break
		}

		cond, condArgs := hierarchyCondition(cl, f.AdjacentCities)
		conditions, args := baseConditions(f)
		conditions = append(conditions, cond)
		args = append(args, condArgs...)

		query := "SELECT " + recordColumns + "\n        FROM properties\n        WHERE " +
			strings.Join(conditions, "\n        AND ") +
			"\n        ORDER BY price ASC, bedrooms ASC, id ASC LIMIT ?"
		args = append(args, f.Ceiling)

		rows, err := s.db.DB().QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("hierarchical candidate query failed at %s: %w", cl.Level, err)
		}

		for rows.Next() {
			record, err := scanRecord(rows)
			if err != nil {
				rows.Close()
				return nil, err
			}
			if seen[record.ID] {
				continue
			}
			seen[record.ID] = true
			candidates = append(candidates, matching.Candidate{
				Record:         record,
				DistanceMeters: matching.DistanceUnknown,
				MatchLevel:     cl.Level,
			})
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}

	if len(candidates) > f.Ceiling {
		candidates = candidates[:f.Ceiling]
	}
	return candidates, nil
}

// findByAttributes is the degraded mode: no location signal at all, just the
// attribute windows.
func (s *Store) findByAttributes(ctx context.Context, f matching.Filter) ([]matching.Candidate, error) {
	conditions, args := baseConditions(f)
	query := "SELECT " + recordColumns + "\n        FROM properties\n        WHERE " +
		strings.Join(conditions, "\n        AND ") +
		"\n        ORDER BY price ASC, bedrooms ASC, id ASC LIMIT ?"
	args = append(args, f.Ceiling)

	rows, err := s.db.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("attribute candidate query failed: %w", err)
	}
	defer rows.Close()

	var candidates []matching.Candidate
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, matching.Candidate{
			Record:         record,
			DistanceMeters: matching.DistanceUnknown,
			MatchLevel:     location.LevelNone,
		})
	}
	return candidates, rows.Err()
}

// HasActiveCoordinates reports whether spatial mode has anything to work
// with: at least one searchable record carrying coordinates.
func (s *Store) HasActiveCoordinates(ctx context.Context) (bool, error) {
	var exists bool
	err := s.db.DB().QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM properties
			WHERE is_active = 1 AND price > 0 AND build_area > 0
			AND latitude IS NOT NULL AND longitude IS NOT NULL
			LIMIT 1
		)`).Scan(&exists)
	return exists, err
}

// ActiveCoordinatePoints feeds the index rebuild.
func (s *Store) ActiveCoordinatePoints(ctx context.Context) ([]spatial.RecordPoint, error) {
	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT id, latitude, longitude FROM properties
		WHERE is_active = 1 AND price > 0 AND build_area > 0
		AND latitude IS NOT NULL AND longitude IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("failed to load coordinate points: %w", err)
	}
	defer rows.Close()

	var points []spatial.RecordPoint
	for rows.Next() {
		var p spatial.RecordPoint
		if err := rows.Scan(&p.ID, &p.Lat, &p.Lng); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// GetByReference returns a single record, or nil when the reference is not
// in the store.
func (s *Store) GetByReference(ctx context.Context, reference string) (*models.PropertyRecord, error) {
	rows, err := s.db.DB().QueryContext(ctx,
		"SELECT "+recordColumns+" FROM properties WHERE reference = ? LIMIT 1", reference)
	if err != nil {
		return nil, fmt.Errorf("failed to query reference %s: %w", reference, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	record, err := scanRecord(rows)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// Stats summarizes the store and the current index snapshot.
func (s *Store) Stats(ctx context.Context) (models.StoreStats, error) {
	var stats models.StoreStats
	err := s.db.DB().QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN is_active = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN is_active = 1 AND latitude IS NOT NULL AND longitude IS NOT NULL THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN is_active = 1 AND for_sale = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN is_active = 1 AND long_term_rental = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN is_active = 1 AND short_term_rental = 1 THEN 1 ELSE 0 END), 0)
		FROM properties`).Scan(
		&stats.TotalProperties,
		&stats.ActiveProperties,
		&stats.WithCoordinates,
		&stats.ForSale,
		&stats.LongTermRentals,
		&stats.ShortTermRentals,
	)
	if err != nil {
		return stats, fmt.Errorf("failed to read store stats: %w", err)
	}

	if s.index != nil {
		stats.IndexSize = s.index.Size()
		stats.IndexBuiltAt = s.index.BuiltAt()
	}
	return stats, nil
}

// UpsertBatch writes one ingestion batch with last-write-wins semantics
// keyed on id.
func (s *Store) UpsertBatch(ctx context.Context, properties []*models.PropertyRecord) error {
	return s.db.ORM().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return UpsertProperties(tx, properties)
	})
}

// UpsertProperties upserts records inside an existing transaction. The
// normalized location keys are recomputed here so every write path keeps
// them in step with the raw names.
func UpsertProperties(tx *gorm.DB, properties []*models.PropertyRecord) error {
	if len(properties) == 0 {
		return nil
	}

	now := time.Now()
	for _, p := range properties {
		p.UrbanizationKey = location.NormalizeName(p.Urbanization)
		p.SuburbKey = location.NormalizeName(p.Suburb)
		p.CityKey = location.NormalizeName(p.City)
		p.PropertyType = models.NormalizePropertyType(string(p.PropertyType))
		if p.LastUpdated.IsZero() {
			p.LastUpdated = now
		}
	}

	// Batches stay small enough to keep the bound-parameter count under
	// sqlite's limit
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).CreateInBatches(properties, 25).Error
}
