package model

import (
	"strings"
	"time"
)

// HitPointsType is the event Type used for heals and hull restoration. It is
// excluded from damage aggregates.
const HitPointsType = "HitPoints"

const (
	FlagCritical = "Critical"
	FlagFlank    = "Flank"
	FlagKill     = "Kill"
	FlagMiss     = "Miss"
	FlagImmune   = "Immune"
	FlagDodge    = "Dodge"
)

type CombatEvent struct {
	Timestamp time.Time

	OwnerDisplay  string
	OwnerInternal string

	SourceDisplay  string
	SourceInternal string

	TargetDisplay  string
	TargetInternal string

	EventDisplay  string
	EventInternal string

	Type          string
	Flags         string
	Magnitude     float64
	MagnitudeBase float64

	File     string
	Line     int
	Raw      string
	Checksum uint64

	OwnerModified bool
}

// SetOwner rewrites the owner identity. It is the only mutation allowed on a
// parsed event.
func (e *CombatEvent) SetOwner(display, internal string) {
	e.OwnerDisplay = display
	e.OwnerInternal = internal
	e.OwnerModified = true
}

func (e *CombatEvent) IsOwnerPlayer() bool {
	return IsPlayerID(e.OwnerInternal)
}

func (e *CombatEvent) IsOwnerPetEvent() bool {
	if IsBlankID(e.SourceInternal) {
		return false
	}
	return e.SourceInternal != e.OwnerInternal
}

func (e *CombatEvent) IsHitPoints() bool {
	return e.Type == HitPointsType
}

// HasFlag reports whether the flag set contains name, ignoring case.
func (e *CombatEvent) HasFlag(name string) bool {
	if name == "" {
		return false
	}
	for _, f := range e.FlagSet() {
		if strings.EqualFold(f, name) {
			return true
		}
	}
	return false
}

// IsKill matches "kill" anywhere in the flags, case-insensitively.
func (e *CombatEvent) IsKill() bool {
	return strings.Contains(strings.ToLower(e.Flags), "kill")
}

func (e *CombatEvent) IsCritical() bool { return e.HasFlag(FlagCritical) }
func (e *CombatEvent) IsFlank() bool    { return e.HasFlag(FlagFlank) }
func (e *CombatEvent) IsMiss() bool     { return e.HasFlag(FlagMiss) }

// FlagSet returns the individual flags in log order.
func (e *CombatEvent) FlagSet() []string {
	if e.Flags == "" {
		return nil
	}
	parts := strings.Split(e.Flags, "|")
	out := parts[:0]
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
