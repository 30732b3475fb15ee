package spatial

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/quadtree"
)

// RecordPoint is one indexed listing: its store id and coordinates.
type RecordPoint struct {
	ID  int64
	Lat float64
	Lng float64
}

// Point implements orb.Pointer so records can live in the quadtree directly.
func (p RecordPoint) Point() orb.Point {
	return orb.Point{p.Lng, p.Lat}
}

// Hit is one radius-query result with its great-circle distance in meters.
type Hit struct {
	ID             int64
	DistanceMeters float64
}

type snapshot struct {
	tree    *quadtree.Quadtree
	size    int
	builtAt time.Time
}

// Index is an in-memory quadtree over the active, coordinate-bearing part of
// the store. Rebuilds construct a fresh tree and swap it in under the lock,
// so readers always see a complete snapshot and a failed rebuild leaves the
// previous one serving.
type Index struct {
	mu   sync.RWMutex
	snap *snapshot
}

func NewIndex() *Index {
	return &Index{}
}

// Rebuild replaces the current snapshot with one built from the given points.
// Points with out-of-range or origin coordinates are skipped.
func (ix *Index) Rebuild(points []RecordPoint) error {
	valid := make([]RecordPoint, 0, len(points))
	for _, p := range points {
		if p.Lat < -90 || p.Lat > 90 || p.Lng < -180 || p.Lng > 180 {
			continue
		}
		if p.Lat == 0 && p.Lng == 0 {
			continue
		}
		valid = append(valid, p)
	}

	next := &snapshot{builtAt: time.Now()}
	if len(valid) > 0 {
		bound := orb.Bound{Min: valid[0].Point(), Max: valid[0].Point()}
		for _, p := range valid[1:] {
			bound = bound.Extend(p.Point())
		}
		tree := quadtree.New(bound.Pad(0.001))
		for _, p := range valid {
			if err := tree.Add(p); err != nil {
				return fmt.Errorf("failed to index record %d: %w", p.ID, err)
			}
		}
		next.tree = tree
		next.size = len(valid)
	}

	ix.mu.Lock()
	ix.snap = next
	ix.mu.Unlock()
	return nil
}

// Within returns the indexed records inside radiusMeters of center, nearest
// first. The bound query over-selects by bounding box, so every hit is
// re-checked against the exact great-circle distance.
func (ix *Index) Within(center orb.Point, radiusMeters float64) []Hit {
	ix.mu.RLock()
	snap := ix.snap
	ix.mu.RUnlock()

	if snap == nil || snap.tree == nil {
		return nil
	}

	pointers := snap.tree.InBound(nil, geo.NewBoundAroundPoint(center, radiusMeters))
	hits := make([]Hit, 0, len(pointers))
	for _, ptr := range pointers {
		rp := ptr.(RecordPoint)
		d := geo.Distance(center, rp.Point())
		if d <= radiusMeters {
			hits = append(hits, Hit{ID: rp.ID, DistanceMeters: d})
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].DistanceMeters != hits[j].DistanceMeters {
			return hits[i].DistanceMeters < hits[j].DistanceMeters
		}
		return hits[i].ID < hits[j].ID
	})
	return hits
}

// Size returns the number of indexed records in the current snapshot.
func (ix *Index) Size() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if ix.snap == nil {
		return 0
	}
	return ix.snap.size
}

// BuiltAt returns when the current snapshot was built, zero if none exists.
func (ix *Index) BuiltAt() time.Time {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if ix.snap == nil {
		return time.Time{}
	}
	return ix.snap.builtAt
}

// Ready reports whether a snapshot has been built at all.
func (ix *Index) Ready() bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.snap != nil
}
