package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/ZehenForever/sto-log-parser/internal/engine"
	"github.com/ZehenForever/sto-log-parser/internal/model"
)

// MaxRejected caps the rejected lines kept in a Result. RejectedCount is
// always exact.
const MaxRejected = 100

type Level uint8

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarning
	LevelError
	// LevelHalt means the run produced no combats.
	LevelHalt
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	case LevelHalt:
		return "halt"
	default:
		return "unknown"
	}
}

func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

type Message struct {
	Level Level  `json:"level"`
	Text  string `json:"text"`
}

func (m Message) String() string {
	return fmt.Sprintf("[%s] %s", strings.ToUpper(m.Level.String()), m.Text)
}

type RejectedItem struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Raw    string `json:"raw"`
	Reason string `json:"reason"`
}

func rejectedFrom(pe *model.ParseError) RejectedItem {
	reason := pe.Reason
	if pe.Err != nil {
		reason += ": " + pe.Err.Error()
	}
	return RejectedItem{File: pe.File, Line: pe.Line, Raw: pe.Raw, Reason: reason}
}

type FileTally struct {
	Path       string    `json:"path"`
	ModTime    time.Time `json:"modTime"`
	TotalLines int       `json:"totalLines"`
	Parsed     int       `json:"parsed"`
	Failed     int       `json:"failed"`
	TooOld     bool      `json:"tooOld,omitempty"`
	Err        string    `json:"error,omitempty"`
}

// Result is the outcome of one Run. Level is the most severe message level.
// Success is false only for a halted run; Error and Warning results still
// carry whatever combats could be built.
type Result struct {
	Success       bool             `json:"success"`
	Level         Level            `json:"level"`
	Messages      []Message        `json:"messages"`
	Rejected      []RejectedItem   `json:"rejected,omitempty"`
	RejectedCount int              `json:"rejectedCount"`
	Files         []FileTally      `json:"files"`
	Events        int              `json:"events"`
	Combats       []*engine.Combat `json:"-"`
	Duration      time.Duration    `json:"duration"`
}

func (r *Result) add(level Level, text string) {
	r.Messages = append(r.Messages, Message{Level: level, Text: text})
	if level > r.Level {
		r.Level = level
	}
}

func (r *Result) reject(pe *model.ParseError) {
	r.RejectedCount++
	if len(r.Rejected) < MaxRejected {
		r.Rejected = append(r.Rejected, rejectedFrom(pe))
	}
}

// Halted reports whether the run stopped without producing combats.
func (r *Result) Halted() bool { return r.Level == LevelHalt }

// Text returns the messages at or above floor, one per line.
func (r *Result) Text(floor Level) string {
	var b strings.Builder
	for _, m := range r.Messages {
		if m.Level < floor {
			continue
		}
		b.WriteString(m.String())
		b.WriteByte('\n')
	}
	return b.String()
}
