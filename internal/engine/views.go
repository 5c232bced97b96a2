package engine

import (
	"sort"
	"time"
)

type EntityView struct {
	Name       string    `json:"name"`
	Internal   string    `json:"internal"`
	Player     bool      `json:"player"`
	InCombat   bool      `json:"inCombat"`
	Total      float64   `json:"total"`
	DPS        float64   `json:"dpsCombat"`
	SDPS       float64   `json:"sdps"`
	ActiveSec  float64   `json:"activeSec"`
	PctTotal   float64   `json:"pctTotal"`
	Attacks    int       `json:"attacks"`
	MaxHit     float64   `json:"maxHit"`
	AvgHit     float64   `json:"avgHit"`
	CritPct    float64   `json:"critPct"`
	Kills      int       `json:"kills"`
	Misses     int       `json:"misses"`
	Flanks     int       `json:"flanks"`
	Heal       float64   `json:"heal"`
	DeadZones  int       `json:"deadZones"`
	PetSources int       `json:"petSources"`
	EventCount int       `json:"eventCount"`
	FirstEvent time.Time `json:"firstEvent"`
	LastEvent  time.Time `json:"lastEvent"`
}

type CombatView struct {
	ID          string       `json:"id"`
	Map         string       `json:"map"`
	Start       time.Time    `json:"start"`
	End         time.Time    `json:"end"`
	DurationSec float64      `json:"durationSec"`
	EventCount  int          `json:"eventCount"`
	PlayerCount int          `json:"playerCount"`
	TotalDamage float64      `json:"totalDamage"`
	DPSCombat   float64      `json:"dpsCombat"`
	Locked      bool         `json:"locked"`
	Players     []EntityView `json:"players,omitempty"`
	NonPlayers  []EntityView `json:"nonPlayers,omitempty"`
}

type Snapshot struct {
	Now         time.Time    `json:"now"`
	Version     uint64       `json:"version"`
	CombatCount int          `json:"combatCount"`
	Combats     []CombatView `json:"combats"`
}

type SnapshotOptions struct {
	LimitCombats int
	// SummaryOnly drops the per-entity rows.
	SummaryOnly bool
	MinInactive time.Duration
	CombinePets bool
}

type BreakdownRowView struct {
	Name      string  `json:"name"`
	Source    string  `json:"source,omitempty"`
	PctEntity float64 `json:"pctEntity"`
	Damage    float64 `json:"damage"`
	DPS       float64 `json:"dpsCombat"`
	Hits      int     `json:"hits"`
	MaxHit    float64 `json:"maxHit"`
	AvgHit    float64 `json:"avgHit"`
	CritPct   float64 `json:"critPct"`
	Heal      float64 `json:"heal"`
}

type BreakdownView struct {
	CombatID string             `json:"combatId"`
	Entity   string             `json:"entity"`
	Rows     []BreakdownRowView `json:"rows"`
	Pets     []BreakdownRowView `json:"pets"`
}

// BuildSnapshot renders combats most recent first.
func BuildSnapshot(now time.Time, version uint64, combats []*Combat, opts SnapshotOptions) Snapshot {
	sorted := append([]*Combat(nil), combats...)
	sortCombatsMostRecentFirst(sorted)
	if opts.LimitCombats > 0 && len(sorted) > opts.LimitCombats {
		sorted = sorted[:opts.LimitCombats]
	}

	out := Snapshot{
		Now:         now,
		Version:     version,
		CombatCount: len(sorted),
		Combats:     make([]CombatView, 0, len(sorted)),
	}
	for _, c := range sorted {
		out.Combats = append(out.Combats, BuildCombatView(c, opts))
	}
	return out
}

func BuildCombatView(c *Combat, opts SnapshotOptions) CombatView {
	dur := c.Duration()
	view := CombatView{
		ID:          c.ID,
		Map:         c.Map,
		Start:       c.Start(),
		End:         c.End(),
		DurationSec: dur.Seconds(),
		EventCount:  c.EventCount(),
		PlayerCount: c.PlayerCount(),
		Locked:      c.Locked(),
	}

	players := entityViews(c.Players, dur, opts)
	nonPlayers := entityViews(c.NonPlayers, dur, opts)
	for _, v := range players {
		view.TotalDamage += v.Total
	}
	for _, v := range nonPlayers {
		view.TotalDamage += v.Total
	}
	view.DPSCombat = perSecond(view.TotalDamage, dur)

	fillPct(players)
	fillPct(nonPlayers)
	if !opts.SummaryOnly {
		view.Players = players
		view.NonPlayers = nonPlayers
	}
	return view
}

func entityViews(list []*CombatEntity, combatDur time.Duration, opts SnapshotOptions) []EntityView {
	out := make([]EntityView, 0, len(list))
	for _, e := range list {
		st := e.Stats()
		active := e.ActiveDuration(opts.MinInactive)
		v := EntityView{
			Name:       e.Name(),
			Internal:   e.OwnerInternal,
			Player:     e.IsPlayer,
			InCombat:   e.InCombat,
			Total:      st.Total,
			DPS:        perSecond(st.Total, combatDur),
			SDPS:       perSecond(st.Total, active),
			ActiveSec:  active.Seconds(),
			Attacks:    st.Attacks,
			MaxHit:     st.Max,
			Kills:      st.Kills,
			Misses:     st.Misses,
			Flanks:     st.Flanks,
			Heal:       st.Heal,
			DeadZones:  len(e.DeadZones(opts.MinInactive)),
			PetSources: len(e.PetGroups(opts.CombinePets)),
			EventCount: st.Events,
			FirstEvent: e.Start(),
			LastEvent:  e.End(),
		}
		if st.Attacks > 0 {
			v.AvgHit = st.Total / float64(st.Attacks)
			v.CritPct = float64(st.Crits) / float64(st.Attacks) * 100
		}
		out = append(out, v)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Total == out[j].Total {
			return out[i].Name < out[j].Name
		}
		return out[i].Total > out[j].Total
	})
	return out
}

func fillPct(views []EntityView) {
	var total float64
	for _, v := range views {
		total += v.Total
	}
	if total <= 0 {
		return
	}
	for i := range views {
		views[i].PctTotal = views[i].Total / total * 100
	}
}

// BuildBreakdown renders one entity's per-ability and per-pet rows. The
// entity is matched by internal id; a respawned player resolves to its most
// recent entity.
func BuildBreakdown(c *Combat, ownerInternal string, opts SnapshotOptions) (BreakdownView, bool) {
	e := findLast(c.Players, ownerInternal)
	if e == nil {
		e = findLast(c.NonPlayers, ownerInternal)
	}
	if e == nil {
		return BreakdownView{}, false
	}

	dur := c.Duration()
	entityTotal := e.TotalMagnitude()
	out := BreakdownView{CombatID: c.ID, Entity: e.Name()}

	for _, g := range e.EventGroups() {
		out.Rows = append(out.Rows, breakdownRow(g.EventDisplay, "", g.Stats(), entityTotal, dur))
	}
	for _, pg := range e.PetGroups(opts.CombinePets) {
		for _, g := range pg.Groups {
			out.Pets = append(out.Pets, breakdownRow(g.EventDisplay, pg.SourceDisplay, g.Stats(), entityTotal, dur))
		}
	}
	sortRows(out.Rows)
	sortRows(out.Pets)
	return out, true
}

func breakdownRow(name, source string, st Stats, entityTotal float64, dur time.Duration) BreakdownRowView {
	row := BreakdownRowView{
		Name:   name,
		Source: source,
		Damage: st.Total,
		DPS:    perSecond(st.Total, dur),
		Hits:   st.Attacks,
		MaxHit: st.Max,
		Heal:   st.Heal,
	}
	if entityTotal > 0 {
		row.PctEntity = st.Total / entityTotal * 100
	}
	if st.Attacks > 0 {
		row.AvgHit = st.Total / float64(st.Attacks)
		row.CritPct = float64(st.Crits) / float64(st.Attacks) * 100
	}
	return row
}

func sortRows(rows []BreakdownRowView) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Damage == rows[j].Damage {
			if rows[i].Source == rows[j].Source {
				return rows[i].Name < rows[j].Name
			}
			return rows[i].Source < rows[j].Source
		}
		return rows[i].Damage > rows[j].Damage
	})
}

func sortCombatsMostRecentFirst(cs []*Combat) {
	sort.SliceStable(cs, func(i, j int) bool {
		ei, ej := cs[i].End(), cs[j].End()
		if ei.Equal(ej) {
			if cs[i].Start().Equal(cs[j].Start()) {
				return cs[i].ID < cs[j].ID
			}
			return cs[i].Start().After(cs[j].Start())
		}
		return ei.After(ej)
	})
}
