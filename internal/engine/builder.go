package engine

import (
	"errors"
	"time"

	"github.com/ZehenForever/sto-log-parser/internal/model"
)

// DefaultNewCombatGap is the inactivity after which the next event opens a
// new combat.
const DefaultNewCombatGap = 20 * time.Second

var ErrOutOfOrder = errors.New("event is older than the previous event")

type UpdateKind uint8

const (
	UpdateCreated UpdateKind = iota + 1
	UpdateEntityAdded
	UpdateLocked
)

func (k UpdateKind) String() string {
	switch k {
	case UpdateCreated:
		return "created"
	case UpdateEntityAdded:
		return "entity_added"
	case UpdateLocked:
		return "locked"
	default:
		return "unknown"
	}
}

// SessionUpdate is emitted when a combat is created, gains an entity, or is
// locked. Plain event appends are not signalled.
type SessionUpdate struct {
	Kind   UpdateKind
	Combat *Combat
}

type BuilderOptions struct {
	NewCombatGap time.Duration
	OnUpdate     func(SessionUpdate)
}

// SessionBuilder clusters a time-ascending event stream into combats. It does
// not sort its input.
type SessionBuilder struct {
	gap      time.Duration
	onUpdate func(SessionUpdate)

	open    *Combat
	done    []*Combat
	lastTs  time.Time
	started bool
}

func NewSessionBuilder(opts BuilderOptions) *SessionBuilder {
	gap := opts.NewCombatGap
	if gap <= 0 {
		gap = DefaultNewCombatGap
	}
	return &SessionBuilder{gap: gap, onUpdate: opts.OnUpdate}
}

func (b *SessionBuilder) Process(ev model.CombatEvent) error {
	if b.started && ev.Timestamp.Before(b.lastTs) {
		return ErrOutOfOrder
	}
	b.started = true
	b.lastTs = ev.Timestamp

	if b.open == nil || ev.Timestamp.Sub(b.open.End()) > b.gap {
		b.lockOpen()
		b.open = newCombat(ev)
		b.emit(UpdateCreated, b.open)
	}

	created, err := b.open.Append(ev)
	if err != nil {
		return err
	}
	if created {
		b.emit(UpdateEntityAdded, b.open)
	}
	return nil
}

// Open returns the combat currently accepting events, or nil.
func (b *SessionBuilder) Open() *Combat { return b.open }

// Finalize locks the open combat and returns every combat in start order.
// The builder can keep accepting later events afterwards; they open a new
// combat.
func (b *SessionBuilder) Finalize() []*Combat {
	b.lockOpen()
	out := make([]*Combat, len(b.done))
	copy(out, b.done)
	return out
}

func (b *SessionBuilder) lockOpen() {
	if b.open == nil {
		return
	}
	b.open.Lock()
	b.done = append(b.done, b.open)
	b.emit(UpdateLocked, b.open)
	b.open = nil
}

func (b *SessionBuilder) emit(kind UpdateKind, c *Combat) {
	if b.onUpdate != nil {
		b.onUpdate(SessionUpdate{Kind: kind, Combat: c})
	}
}

// BuildSessions runs events through a fresh builder. events must already be
// sorted by timestamp.
func BuildSessions(events []model.CombatEvent, gap time.Duration) ([]*Combat, error) {
	b := NewSessionBuilder(BuilderOptions{NewCombatGap: gap})
	for _, ev := range events {
		if err := b.Process(ev); err != nil {
			return nil, err
		}
	}
	return b.Finalize(), nil
}
