package engine

import (
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/ZehenForever/sto-log-parser/internal/model"
)

const (
	alice   = "P[100@200 Alice@alice]"
	bob     = "P[101@201 Bob@bob]"
	cube    = "C[55 Space_Borg_Cube]"
	sphere  = "C[56 Space_Borg_Sphere]"
	fighter = "C[77 Pet_Fighter]"
	drone   = "C[78 Pet_Drone]"
)

var t0 = time.Date(2024, 1, 15, 20, 0, 0, 0, time.UTC)

func at(sec float64) time.Time {
	return t0.Add(time.Duration(sec * float64(time.Second)))
}

func displayOf(internal string) string {
	name, _, _ := strings.Cut(model.StrippedName(internal), "@")
	return name
}

// hit is owner attacking whatever the opposite side is, with no pet source.
func hit(ts time.Time, owner string, mag float64) model.CombatEvent {
	target := cube
	if !model.IsPlayerID(owner) {
		target = alice
	}
	ev := model.CombatEvent{
		Timestamp:      ts,
		OwnerDisplay:   displayOf(owner),
		OwnerInternal:  owner,
		SourceInternal: "*",
		TargetDisplay:  displayOf(target),
		TargetInternal: target,
		EventDisplay:   "Phaser Array",
		EventInternal:  "Pn.Phaser_Array",
		Type:           "Phaser",
		Magnitude:      mag,
		MagnitudeBase:  mag,
	}
	ev.Checksum = xxhash.Sum64String(ts.String() + owner)
	return ev
}

func withFlags(ev model.CombatEvent, flags string) model.CombatEvent {
	ev.Flags = flags
	return ev
}

func withTarget(ev model.CombatEvent, target string) model.CombatEvent {
	ev.TargetDisplay = displayOf(target)
	ev.TargetInternal = target
	return ev
}

func withEvent(ev model.CombatEvent, display, internal, typ string) model.CombatEvent {
	ev.EventDisplay = display
	ev.EventInternal = internal
	ev.Type = typ
	return ev
}

func petHit(ts time.Time, owner, source, sourceDisplay string, mag float64) model.CombatEvent {
	ev := hit(ts, owner, mag)
	ev.SourceDisplay = sourceDisplay
	ev.SourceInternal = source
	ev.EventDisplay = "Fighter Cannon"
	ev.EventInternal = "Pet.Cannon"
	return ev
}

func kill(ts time.Time, owner, target string) model.CombatEvent {
	return withFlags(withTarget(hit(ts, owner, 5000), target), "Kill")
}
