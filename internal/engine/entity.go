package engine

import (
	"math"
	"time"

	"github.com/ZehenForever/sto-log-parser/internal/model"
)

// DefaultMinInactive is the smallest gap between two events of one entity
// that is recorded as a dead zone.
const DefaultMinInactive = 4 * time.Second

// CombatEntity is one actor's events within one Combat. All statistics are
// computed on read from Events.
type CombatEntity struct {
	OwnerInternal string
	OwnerDisplay  string
	IsPlayer      bool
	InCombat      bool
	Events        []model.CombatEvent
}

func newEntity(ev model.CombatEvent) *CombatEntity {
	return &CombatEntity{
		OwnerInternal: ev.OwnerInternal,
		OwnerDisplay:  ev.OwnerDisplay,
		IsPlayer:      ev.IsOwnerPlayer(),
		InCombat:      true,
	}
}

// Name is the display name, falling back to the stripped internal id.
func (e *CombatEntity) Name() string {
	if e.OwnerDisplay != "" {
		return e.OwnerDisplay
	}
	return model.StrippedName(e.OwnerInternal)
}

func (e *CombatEntity) Start() time.Time {
	if len(e.Events) == 0 {
		return time.Time{}
	}
	return e.Events[0].Timestamp
}

func (e *CombatEntity) End() time.Time {
	if len(e.Events) == 0 {
		return time.Time{}
	}
	return e.Events[len(e.Events)-1].Timestamp
}

func (e *CombatEntity) Duration() time.Duration {
	return flooredDuration(e.Start(), e.End())
}

func (e *CombatEntity) Stats() Stats {
	return summarize(e.Events)
}

func (e *CombatEntity) TotalMagnitude() float64 { return e.Stats().Total }
func (e *CombatEntity) MaxMagnitude() float64   { return e.Stats().Max }
func (e *CombatEntity) Attacks() int            { return e.Stats().Attacks }
func (e *CombatEntity) Kills() int              { return e.Stats().Kills }

func (e *CombatEntity) MagnitudePerSecond() float64 {
	return perSecond(e.Stats().Total, e.Duration())
}

type DeadZone struct {
	Start time.Time
	End   time.Time
}

func (z DeadZone) Duration() time.Duration { return z.End.Sub(z.Start) }

// DeadZones returns every interval between consecutive events that is at
// least minInactive long. minInactive is clamped to one second.
func (e *CombatEntity) DeadZones(minInactive time.Duration) []DeadZone {
	minInactive = ClampMinInactive(minInactive)
	var out []DeadZone
	for i := 1; i < len(e.Events); i++ {
		prev := e.Events[i-1].Timestamp
		cur := e.Events[i].Timestamp
		if cur.Sub(prev) >= minInactive {
			out = append(out, DeadZone{Start: prev, End: cur})
		}
	}
	return out
}

// ActiveDuration is Duration minus the dead zones, floored at one second.
func (e *CombatEntity) ActiveDuration(minInactive time.Duration) time.Duration {
	d := e.Duration()
	for _, z := range e.DeadZones(minInactive) {
		d -= z.Duration()
	}
	if d < time.Second {
		return time.Second
	}
	return d
}

func ClampMinInactive(d time.Duration) time.Duration {
	if d < time.Second {
		return time.Second
	}
	return d
}

// EventGroup collects the events of one ability.
type EventGroup struct {
	EventDisplay  string
	EventInternal string
	Events        []model.CombatEvent
}

func (g *EventGroup) Stats() Stats { return summarize(g.Events) }

// PetGroup collects the events of one pet source. SourceInternal is empty
// when pets are combined by display name.
type PetGroup struct {
	SourceDisplay  string
	SourceInternal string
	Groups         []*EventGroup
}

func (g *PetGroup) Stats() Stats {
	var all []model.CombatEvent
	for _, eg := range g.Groups {
		all = append(all, eg.Events...)
	}
	return summarize(all)
}

// EventGroups groups the entity's own (non-pet) events by ability, in order
// of first appearance.
func (e *CombatEntity) EventGroups() []*EventGroup {
	var out []*EventGroup
	idx := make(map[string]*EventGroup)
	for _, ev := range e.Events {
		if ev.IsOwnerPetEvent() {
			continue
		}
		out = appendToGroup(out, idx, ev.EventInternal, ev)
	}
	return out
}

// PetGroups groups pet events by (source, event type). With combine set,
// sources are keyed by display name so every instance of the same pet
// merges; otherwise each source internal id stays separate.
func (e *CombatEntity) PetGroups(combine bool) []*PetGroup {
	var out []*PetGroup
	pets := make(map[string]*PetGroup)
	groupIdx := make(map[*PetGroup]map[string]*EventGroup)
	for _, ev := range e.Events {
		if !ev.IsOwnerPetEvent() {
			continue
		}
		key := ev.SourceInternal
		if combine {
			key = ev.SourceDisplay
		}
		pg := pets[key]
		if pg == nil {
			pg = &PetGroup{SourceDisplay: ev.SourceDisplay}
			if !combine {
				pg.SourceInternal = ev.SourceInternal
			}
			pets[key] = pg
			groupIdx[pg] = make(map[string]*EventGroup)
			out = append(out, pg)
		}
		pg.Groups = appendToGroup(pg.Groups, groupIdx[pg], ev.EventInternal, ev)
	}
	return out
}

func appendToGroup(groups []*EventGroup, idx map[string]*EventGroup, key string, ev model.CombatEvent) []*EventGroup {
	g := idx[key]
	if g == nil {
		g = &EventGroup{EventDisplay: ev.EventDisplay, EventInternal: ev.EventInternal}
		idx[key] = g
		groups = append(groups, g)
	}
	g.Events = append(g.Events, ev)
	return groups
}

// Stats are the flag and magnitude aggregates over a set of events. Events
// of type HitPoints only contribute to Heal.
type Stats struct {
	Events  int
	Total   float64
	Max     float64
	Heal    float64
	Attacks int
	Kills   int
	Crits   int
	Misses  int
	Flanks  int
}

func summarize(events []model.CombatEvent) Stats {
	var s Stats
	s.Events = len(events)
	for i := range events {
		ev := &events[i]
		mag := math.Abs(ev.Magnitude)
		if ev.IsKill() {
			s.Kills++
		}
		if ev.IsHitPoints() {
			s.Heal += mag
			continue
		}
		s.Attacks++
		s.Total += mag
		if mag > s.Max {
			s.Max = mag
		}
		if ev.IsCritical() {
			s.Crits++
		}
		if ev.IsMiss() {
			s.Misses++
		}
		if ev.IsFlank() {
			s.Flanks++
		}
	}
	return s
}

func flooredDuration(start, end time.Time) time.Duration {
	if start.IsZero() || end.IsZero() {
		return time.Second
	}
	d := end.Sub(start)
	if d < time.Second {
		return time.Second
	}
	return d
}

func perSecond(total float64, d time.Duration) float64 {
	sec := d.Seconds()
	if sec <= 0 {
		return 0
	}
	return total / sec
}
