package engine

import (
	"math"
	"sort"
	"time"
)

type TimelineBucket struct {
	BucketStart     time.Time          `json:"bucketStart"`
	BucketSec       int64              `json:"bucketSec"`
	MagnitudeByName map[string]float64 `json:"magnitudeByName"`
	Total           float64            `json:"total"`
}

// Timeline is one combat's damage output bucketed over time, newest bucket
// first.
type Timeline struct {
	CombatID  string           `json:"combatId"`
	BucketSec int64            `json:"bucketSec"`
	Names     []string         `json:"names"`
	Buckets   []TimelineBucket `json:"buckets"`
}

type bucketAgg struct {
	bucketSec  int64
	maxBuckets int
	buckets    map[int64]map[string]float64
	totals     map[int64]float64
	order      []int64
}

func newBucketAgg(bucketSec int64, maxBuckets int) *bucketAgg {
	if bucketSec <= 0 {
		bucketSec = 5
	}
	if maxBuckets <= 0 {
		maxBuckets = 120
	}
	return &bucketAgg{
		bucketSec:  bucketSec,
		maxBuckets: maxBuckets,
		buckets:    make(map[int64]map[string]float64),
		totals:     make(map[int64]float64),
	}
}

func (a *bucketAgg) add(ts time.Time, name string, amount float64) {
	if amount <= 0 {
		return
	}
	unix := ts.Unix()
	bucketStart := unix - (unix % a.bucketSec)
	m := a.buckets[bucketStart]
	if m == nil {
		m = make(map[string]float64)
		a.buckets[bucketStart] = m
		a.order = append(a.order, bucketStart)
	}
	m[name] += amount
	a.totals[bucketStart] += amount
	if len(a.order) > a.maxBuckets {
		a.evict()
	}
}

// evict keeps only the newest maxBuckets buckets.
func (a *bucketAgg) evict() {
	if len(a.order) <= a.maxBuckets {
		return
	}
	newest := a.order[0]
	for _, v := range a.order[1:] {
		if v > newest {
			newest = v
		}
	}
	cut := newest - (int64(a.maxBuckets)-1)*a.bucketSec
	kept := a.order[:0]
	for _, bs := range a.order {
		if bs < cut {
			delete(a.buckets, bs)
			delete(a.totals, bs)
			continue
		}
		kept = append(kept, bs)
	}
	a.order = kept
}

// BuildTimeline buckets the damage of every entity in c. With playersOnly set,
// non-player entities are skipped. Respawned players share one series.
func BuildTimeline(c *Combat, bucketSec int64, maxBuckets int, playersOnly bool) Timeline {
	agg := newBucketAgg(bucketSec, maxBuckets)

	entities := c.Players
	if !playersOnly {
		entities = c.Entities()
	}
	for _, e := range entities {
		name := e.Name()
		for i := range e.Events {
			ev := &e.Events[i]
			if ev.IsHitPoints() {
				continue
			}
			agg.add(ev.Timestamp, name, math.Abs(ev.Magnitude))
		}
	}
	agg.evict()

	totals := make(map[string]float64)
	for _, bs := range agg.order {
		for name, v := range agg.buckets[bs] {
			totals[name] += v
		}
	}
	names := make([]string, 0, len(totals))
	for n := range totals {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool {
		if totals[names[i]] == totals[names[j]] {
			return names[i] < names[j]
		}
		return totals[names[i]] > totals[names[j]]
	})

	starts := append([]int64(nil), agg.order...)
	sort.Slice(starts, func(i, j int) bool { return starts[i] > starts[j] })

	loc := c.Start().Location()
	out := Timeline{
		CombatID:  c.ID,
		BucketSec: agg.bucketSec,
		Names:     names,
		Buckets:   make([]TimelineBucket, 0, len(starts)),
	}
	for _, bs := range starts {
		row := TimelineBucket{
			BucketStart:     time.Unix(bs, 0).In(loc),
			BucketSec:       agg.bucketSec,
			MagnitudeByName: make(map[string]float64, len(agg.buckets[bs])),
			Total:           agg.totals[bs],
		}
		for name, v := range agg.buckets[bs] {
			row.MagnitudeByName[name] = v
		}
		out.Buckets = append(out.Buckets, row)
	}
	return out
}
