package mapdetect

import (
	"strings"

	"github.com/samber/lo"

	"github.com/ZehenForever/sto-log-parser/internal/model"
)

type MatchKind uint8

const (
	MatchNone MatchKind = iota
	// MatchUnique means a unique-to-map pattern decided the map.
	MatchUnique
	MatchScored
	MatchGenericGround
	MatchGenericSpace
)

func (k MatchKind) String() string {
	switch k {
	case MatchUnique:
		return "unique"
	case MatchScored:
		return "scored"
	case MatchGenericGround:
		return "generic_ground"
	case MatchGenericSpace:
		return "generic_space"
	default:
		return "none"
	}
}

type Match struct {
	Name  string
	Kind  MatchKind
	Score int
}

// Participants is what the detector needs to know about a combat.
type Participants interface {
	PlayerCount() int
	Identifiers() []string
}

type pattern struct {
	lower  string
	unique bool
}

type rule struct {
	name       string
	enabled    bool
	maxPlayers int
	entities   []pattern
	exclusions []pattern
}

// Detector holds a ruleset prepared for matching. It keeps no state between
// calls and is safe for concurrent use.
type Detector struct {
	rules         []rule
	ground        rule
	space         rule
	globalExclude []pattern
}

// NewDetector prepares settings for matching. A nil settings value yields a
// detector that never matches.
func NewDetector(settings *Settings) *Detector {
	if settings == nil {
		return &Detector{}
	}
	d := &Detector{
		rules:         make([]rule, 0, len(settings.Maps)),
		ground:        compileRule(settings.GenericGround),
		space:         compileRule(settings.GenericSpace),
		globalExclude: compilePatterns(settings.EntityExclusions),
	}
	for _, m := range settings.Maps {
		d.rules = append(d.rules, compileRule(m))
	}
	return d
}

func compileRule(m Map) rule {
	return rule{
		name:       m.Name,
		enabled:    m.Enabled,
		maxPlayers: m.MaxPlayers,
		entities:   compilePatterns(m.Entities),
		exclusions: compilePatterns(m.Exclusions),
	}
}

// compilePatterns drops disabled and empty patterns.
func compilePatterns(in []MapEntity) []pattern {
	out := make([]pattern, 0, len(in))
	for _, e := range in {
		if !e.Enabled || strings.TrimSpace(e.Pattern) == "" {
			continue
		}
		out = append(out, pattern{lower: strings.ToLower(e.Pattern), unique: e.UniqueToMap})
	}
	return out
}

func (p pattern) matches(lowerID string) bool {
	return strings.Contains(lowerID, p.lower)
}

func anyMatch(ps []pattern, lowerID string) bool {
	for _, p := range ps {
		if p.matches(lowerID) {
			return true
		}
	}
	return false
}

// scoreboard is the per-pass scratch state, indexed like the candidate list.
type scoreboard struct {
	counts      [][]int
	excepted    []bool
	ground      []int
	space       []int
	foundInMaps bool
}

func newScoreboard(d *Detector, candidates []int) *scoreboard {
	sb := &scoreboard{
		counts:   make([][]int, len(candidates)),
		excepted: make([]bool, len(candidates)),
		ground:   make([]int, len(d.ground.entities)),
		space:    make([]int, len(d.space.entities)),
	}
	for ci, ri := range candidates {
		sb.counts[ci] = make([]int, len(d.rules[ri].entities))
	}
	return sb
}

// DetectCombat runs Detect on a combat's player count and identifiers.
func (d *Detector) DetectCombat(c Participants) (Match, bool) {
	return d.Detect(c.PlayerCount(), c.Identifiers())
}

// Detect picks the best map for a combat with the given player count and
// participant identifiers. The result does not depend on identifier order.
//
// A map whose exclusion pattern matches any identifier is out for the whole
// pass. An identifier on the global exclusion list is ignored. A unique
// pattern on a remaining map decides immediately. Otherwise the map with the
// most pattern hits wins, first in list order on ties. The generic ground and
// space rules only score while no map pattern has matched, and ground wins a
// tie.
func (d *Detector) Detect(players int, ids []string) (Match, bool) {
	if d == nil || (len(d.rules) == 0 && len(d.ground.entities) == 0 && len(d.space.entities) == 0) {
		return Match{}, false
	}

	var candidates []int
	for i, r := range d.rules {
		if r.enabled && (r.maxPlayers == 0 || r.maxPlayers >= players) {
			candidates = append(candidates, i)
		}
	}

	lowered := make([]string, 0, len(ids))
	for _, id := range uniqueIDs(ids) {
		lowered = append(lowered, strings.ToLower(id))
	}

	sb := newScoreboard(d, candidates)
	for _, lid := range lowered {
		for ci, ri := range candidates {
			if !sb.excepted[ci] && anyMatch(d.rules[ri].exclusions, lid) {
				sb.excepted[ci] = true
			}
		}
	}

	lowered = lo.Filter(lowered, func(lid string, _ int) bool { return !anyMatch(d.globalExclude, lid) })

	// When several unique patterns hit, the first map in list order wins.
	for ci, ri := range candidates {
		if sb.excepted[ci] {
			continue
		}
		for _, p := range d.rules[ri].entities {
			if !p.unique {
				continue
			}
			for _, lid := range lowered {
				if p.matches(lid) {
					return Match{Name: d.rules[ri].name, Kind: MatchUnique, Score: 1}, true
				}
			}
		}
	}

	for _, lid := range lowered {
		matched := false
		for ci, ri := range candidates {
			if sb.excepted[ci] {
				continue
			}
			for pi, p := range d.rules[ri].entities {
				if p.matches(lid) {
					sb.counts[ci][pi]++
					matched = true
				}
			}
		}
		if matched {
			sb.foundInMaps = true
			continue
		}
		if sb.foundInMaps {
			continue
		}

		if d.ground.enabled {
			for pi, p := range d.ground.entities {
				if p.matches(lid) {
					sb.ground[pi]++
				}
			}
		}
		if d.space.enabled {
			for pi, p := range d.space.entities {
				if p.matches(lid) {
					sb.space[pi]++
				}
			}
		}
	}

	return d.resolve(candidates, sb)
}

type scored struct {
	rule  int
	score int
}

func (d *Detector) resolve(candidates []int, sb *scoreboard) (Match, bool) {
	var eligible []scored
	for ci, ri := range candidates {
		if sb.excepted[ci] {
			continue
		}
		if s := lo.Sum(sb.counts[ci]); s > 0 {
			eligible = append(eligible, scored{rule: ri, score: s})
		}
	}
	if len(eligible) > 0 {
		best := lo.MaxBy(eligible, func(a, b scored) bool { return a.score > b.score })
		return Match{Name: d.rules[best.rule].name, Kind: MatchScored, Score: best.score}, true
	}

	g, s := lo.Sum(sb.ground), lo.Sum(sb.space)
	if g == 0 && s == 0 {
		return Match{}, false
	}
	if g >= s {
		return Match{Name: d.ground.name, Kind: MatchGenericGround, Score: g}, true
	}
	return Match{Name: d.space.name, Kind: MatchGenericSpace, Score: s}, true
}

func uniqueIDs(ids []string) []string {
	return lo.Uniq(lo.Filter(ids, func(s string, _ int) bool { return !model.IsBlankID(s) }))
}
