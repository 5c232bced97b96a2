package parse

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/ZehenForever/sto-log-parser/internal/model"
)

// tsLayout matches "24:01:15:20:33:41.1". The trailing fraction is accepted
// by time.Parse without being spelled out in the layout.
const tsLayout = "06:01:02:15:04:05"

const (
	fieldSep  = ","
	headerSep = "::"
	numFields = 12
)

var (
	errNoSeparator = errors.New("missing timestamp separator")
	errNoOwner     = errors.New("missing owner")
)

// ParseLine parses one combat log line. file and lineNo are provenance only.
func ParseLine(file string, lineNo int, line string, loc *time.Location) (model.CombatEvent, error) {
	if loc == nil {
		loc = time.Local
	}
	line = strings.TrimSuffix(line, "\r")
	line = strings.TrimPrefix(line, "\ufeff")

	fail := func(reason string, err error) (model.CombatEvent, error) {
		return model.CombatEvent{}, &model.ParseError{File: file, Line: lineNo, Raw: line, Reason: reason, Err: err}
	}

	tsStr, rest, ok := strings.Cut(line, headerSep)
	if !ok {
		return fail("malformed line", errNoSeparator)
	}
	ts, err := time.ParseInLocation(tsLayout, strings.TrimSpace(tsStr), loc)
	if err != nil {
		return fail("invalid timestamp", err)
	}

	fields := strings.Split(rest, fieldSep)
	if len(fields) != numFields {
		return fail(fmt.Sprintf("expected %d fields, got %d", numFields, len(fields)), nil)
	}

	mag, err := parseMagnitude(fields[10])
	if err != nil {
		return fail("invalid magnitude", err)
	}
	base, err := parseMagnitude(fields[11])
	if err != nil {
		return fail("invalid base magnitude", err)
	}

	ev := model.CombatEvent{
		Timestamp:      ts,
		OwnerDisplay:   fields[0],
		OwnerInternal:  fields[1],
		SourceDisplay:  fields[2],
		SourceInternal: fields[3],
		TargetDisplay:  fields[4],
		TargetInternal: fields[5],
		EventDisplay:   fields[6],
		EventInternal:  fields[7],
		Type:           fields[8],
		Flags:          fields[9],
		Magnitude:      mag,
		MagnitudeBase:  base,
		File:           file,
		Line:           lineNo,
		Raw:            line,
		Checksum:       xxhash.Sum64String(line),
	}

	if model.IsBlankID(ev.OwnerInternal) {
		if model.IsBlankID(ev.SourceInternal) {
			return fail("malformed line", errNoOwner)
		}
		ev.SetOwner(ev.SourceDisplay, ev.SourceInternal)
	}

	return ev, nil
}

func parseMagnitude(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

func ParseFile(r io.Reader, file string, loc *time.Location) *Iterator {
	return &Iterator{r: r, file: file, loc: loc}
}

// Iterator walks a combat log line by line. Lines that fail to parse are
// collected in Failures and never stop the iteration.
type Iterator struct {
	r    io.Reader
	s    *bufio.Scanner
	err  error
	file string
	loc  *time.Location

	lineNo   int
	blank    int
	parsed   int
	failures []*model.ParseError

	cur model.CombatEvent
}

func (it *Iterator) Next() bool {
	if it.s == nil {
		it.s = bufio.NewScanner(it.r)
		// allow long lines
		buf := make([]byte, 0, 128*1024)
		it.s.Buffer(buf, 4*1024*1024)
	}

	for it.s.Scan() {
		it.lineNo++
		line := it.s.Text()
		if strings.TrimSpace(line) == "" {
			it.blank++
			continue
		}
		ev, err := ParseLine(it.file, it.lineNo, line, it.loc)
		if err != nil {
			var pe *model.ParseError
			if errors.As(err, &pe) {
				it.failures = append(it.failures, pe)
			} else {
				it.failures = append(it.failures, &model.ParseError{File: it.file, Line: it.lineNo, Raw: line, Reason: "parse failed", Err: err})
			}
			continue
		}
		it.parsed++
		it.cur = ev
		return true
	}
	it.err = it.s.Err()
	return false
}

func (it *Iterator) Event() model.CombatEvent      { return it.cur }
func (it *Iterator) Err() error                    { return it.err }
func (it *Iterator) Failures() []*model.ParseError { return it.failures }
func (it *Iterator) Parsed() int                   { return it.parsed }

// Lines is the number of non-blank lines read so far.
func (it *Iterator) Lines() int { return it.lineNo - it.blank }
