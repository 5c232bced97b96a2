package engine

import (
	"encoding/binary"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ZehenForever/sto-log-parser/internal/model"
)

var ErrCombatLocked = errors.New("combat is locked")

// combatNamespace seeds the deterministic combat ids.
var combatNamespace = uuid.MustParse("5d1c8f0e-3b7a-4c52-9a0e-7f4f2b9c6e31")

// Combat is one encounter: a time-bounded cluster of events split into
// player and non-player entities. Once locked it is read-only.
type Combat struct {
	ID         string
	Players    []*CombatEntity
	NonPlayers []*CombatEntity

	// Map is the detected map name; empty means undetermined.
	Map string

	locked bool
	start  time.Time
	end    time.Time
	events int
}

func newCombat(first model.CombatEvent) *Combat {
	var seed [16]byte
	binary.BigEndian.PutUint64(seed[:8], uint64(first.Timestamp.UnixMilli()))
	binary.BigEndian.PutUint64(seed[8:], first.Checksum)
	return &Combat{
		ID:    uuid.NewSHA1(combatNamespace, seed[:]).String(),
		start: first.Timestamp,
		end:   first.Timestamp,
	}
}

func (c *Combat) Locked() bool { return c.locked }

// Lock finalizes the combat. It is idempotent.
func (c *Combat) Lock() { c.locked = true }

// Append routes ev to its owning entity. created reports whether a new
// entity was added for it.
func (c *Combat) Append(ev model.CombatEvent) (created bool, err error) {
	if c.locked {
		return false, ErrCombatLocked
	}
	created = c.route(ev)
	if c.events == 0 || ev.Timestamp.Before(c.start) {
		c.start = ev.Timestamp
	}
	if c.events == 0 || ev.Timestamp.After(c.end) {
		c.end = ev.Timestamp
	}
	c.events++
	if ev.IsKill() {
		c.markKilled(ev.TargetInternal)
	}
	return created, nil
}

// route finds or creates the entity for ev's owner. A non-player owner always
// reuses its entity. A player whose entity was killed in this combat gets a
// fresh entity alongside the old one.
func (c *Combat) route(ev model.CombatEvent) bool {
	list := &c.NonPlayers
	if ev.IsOwnerPlayer() {
		list = &c.Players
	}
	if e := findLast(*list, ev.OwnerInternal); e != nil {
		if e.InCombat || !e.IsPlayer {
			e.InCombat = true
			e.Events = append(e.Events, ev)
			return false
		}
	}
	e := newEntity(ev)
	e.Events = append(e.Events, ev)
	*list = append(*list, e)
	return true
}

func findLast(list []*CombatEntity, ownerInternal string) *CombatEntity {
	for i := len(list) - 1; i >= 0; i-- {
		if list[i].OwnerInternal == ownerInternal {
			return list[i]
		}
	}
	return nil
}

func (c *Combat) markKilled(targetInternal string) {
	if model.IsBlankID(targetInternal) {
		return
	}
	list := c.NonPlayers
	if model.IsPlayerID(targetInternal) {
		list = c.Players
	}
	if e := findLast(list, targetInternal); e != nil {
		e.InCombat = false
	}
}

func (c *Combat) Start() time.Time { return c.start }
func (c *Combat) End() time.Time   { return c.end }
func (c *Combat) EventCount() int  { return c.events }

func (c *Combat) Duration() time.Duration {
	return flooredDuration(c.start, c.end)
}

// PlayerCount counts distinct player owners, so a respawned player counts once.
func (c *Combat) PlayerCount() int {
	seen := make(map[string]struct{}, len(c.Players))
	for _, p := range c.Players {
		seen[p.OwnerInternal] = struct{}{}
	}
	return len(seen)
}

// Identifiers returns the internal and display ids of everything seen in the
// combat: owners, pet sources and targets. Blank values are excluded. Order is
// first appearance.
func (c *Combat) Identifiers() []string {
	var out []string
	seen := make(map[string]struct{})
	add := func(s string) {
		if model.IsBlankID(s) {
			return
		}
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	for _, list := range [][]*CombatEntity{c.Players, c.NonPlayers} {
		for _, e := range list {
			add(e.OwnerInternal)
			add(e.OwnerDisplay)
			for i := range e.Events {
				ev := &e.Events[i]
				if !model.IsBlankID(ev.SourceInternal) {
					add(ev.SourceInternal)
					add(ev.SourceDisplay)
				}
				if !model.IsBlankID(ev.TargetInternal) {
					add(ev.TargetInternal)
					add(ev.TargetDisplay)
				}
			}
		}
	}
	return out
}

// Entities returns players followed by non-players.
func (c *Combat) Entities() []*CombatEntity {
	out := make([]*CombatEntity, 0, len(c.Players)+len(c.NonPlayers))
	out = append(out, c.Players...)
	return append(out, c.NonPlayers...)
}
