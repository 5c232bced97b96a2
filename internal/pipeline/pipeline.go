// Package pipeline runs a batch parse: find the combat logs, parse them,
// cluster the events into combats and name each combat's map.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/ZehenForever/sto-log-parser/internal/engine"
	"github.com/ZehenForever/sto-log-parser/internal/logging"
	"github.com/ZehenForever/sto-log-parser/internal/mapdetect"
	"github.com/ZehenForever/sto-log-parser/internal/metrics"
	"github.com/ZehenForever/sto-log-parser/internal/model"
	"github.com/ZehenForever/sto-log-parser/internal/parse"
)

type Options struct {
	Dir     string
	Pattern string

	// HowFarBackHours skips files last modified before now minus this many
	// hours. Zero disables the filter.
	HowFarBackHours float64
	NewCombatGap    time.Duration
	MinInactive     time.Duration
	CombinePets     bool

	// MapSettings may be nil, in which case every map is left undetermined.
	MapSettings *mapdetect.Settings

	Location *time.Location
	Now      func() time.Time

	// Store, when set, receives the combats of a successful run.
	Store  *engine.Store
	Logger logging.Interface
}

// ViewOptions are the aggregation settings a caller should render with.
func (o Options) ViewOptions() engine.SnapshotOptions {
	return engine.SnapshotOptions{
		MinInactive: engine.ClampMinInactive(o.MinInactive),
		CombinePets: o.CombinePets,
	}
}

type runner struct {
	opts     Options
	log      logging.Interface
	res      *Result
	detector *mapdetect.Detector
}

// Run never returns nil. A halted result carries no combats.
func Run(ctx context.Context, opts Options) *Result {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	r := &runner{
		opts:     opts,
		log:      opts.Logger,
		res:      &Result{},
		detector: mapdetect.NewDetector(opts.MapSettings),
	}

	began := time.Now()
	r.run(ctx)
	r.res.Duration = time.Since(began)
	metrics.RecordRun(r.res.Level.String(), r.res.Duration)
	return r.res
}

func (r *runner) run(ctx context.Context) {
	dir, err := CheckLogDir(r.opts.Dir)
	if err != nil {
		r.halt(err.Error())
		return
	}

	files, err := FindLogFiles(dir, r.opts.Pattern)
	if err != nil {
		r.halt(err.Error())
		return
	}
	r.debugf("found %d combat logs matching %q in %s", len(files), r.opts.Pattern, dir)

	keep, tooOld := SplitByRecency(files, engine.NewTimeFilterLastHours(r.opts.HowFarBackHours, r.opts.Now()))
	for _, lf := range tooOld {
		metrics.RecordFile("too_old")
		r.res.Files = append(r.res.Files, FileTally{Path: lf.Path, ModTime: lf.ModTime, TooOld: true})
		r.debugf("skipping %s: last modified %s", lf.Path, lf.ModTime.Format(time.DateTime))
	}
	if len(keep) == 0 {
		r.halt(fmt.Sprintf("all %d combat logs are older than %g hours", len(files), r.opts.HowFarBackHours))
		return
	}

	var events []model.CombatEvent
	for _, lf := range keep {
		if err := ctx.Err(); err != nil {
			r.halt(fmt.Sprintf("parse cancelled: %v", err))
			return
		}
		events = append(events, r.readFile(lf)...)
	}
	r.res.Events = len(events)
	if len(events) == 0 {
		r.halt("no combat events could be parsed")
		return
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})

	combats, err := r.buildCombats(events)
	if err != nil {
		r.halt(fmt.Sprintf("building combats: %v", err))
		return
	}

	r.res.Combats = combats
	r.res.Success = true
	metrics.CombatsBuilt.Add(float64(len(combats)))
	r.infof("parsed %d events from %d files into %d combats", len(events), len(keep), len(combats))

	if r.opts.Store != nil {
		r.opts.Store.Replace(combats)
	}
}

// readFile parses one file. Line failures are tallied and rejected, they
// never stop the file.
func (r *runner) readFile(lf LogFile) []model.CombatEvent {
	tally := FileTally{Path: lf.Path, ModTime: lf.ModTime}

	f, err := os.Open(lf.Path)
	if err != nil {
		metrics.RecordFile("unreadable")
		tally.Err = err.Error()
		r.res.Files = append(r.res.Files, tally)
		r.errorf("cannot read %s: %v", lf.Path, err)
		return nil
	}
	defer f.Close()

	var events []model.CombatEvent
	it := parse.ParseFile(f, lf.Path, r.opts.Location)
	for it.Next() {
		events = append(events, it.Event())
	}
	for _, pe := range it.Failures() {
		r.res.reject(pe)
	}

	tally.TotalLines = it.Lines()
	tally.Parsed = it.Parsed()
	tally.Failed = len(it.Failures())
	metrics.LinesParsed.Add(float64(tally.Parsed))
	metrics.LinesFailed.Add(float64(tally.Failed))

	if err := it.Err(); err != nil {
		metrics.RecordFile("unreadable")
		tally.Err = err.Error()
		r.res.Files = append(r.res.Files, tally)
		r.errorf("reading %s stopped after line %d: %v", lf.Path, tally.TotalLines, err)
		return events
	}

	metrics.RecordFile("parsed")
	r.res.Files = append(r.res.Files, tally)
	if tally.Failed > 0 {
		r.warnf("%s: %d of %d lines could not be parsed", lf.Path, tally.Failed, tally.TotalLines)
	}
	r.debugf("%s: %d events", lf.Path, tally.Parsed)
	return events
}

// buildCombats drives the session builder and names each combat's map as it
// is locked.
func (r *runner) buildCombats(events []model.CombatEvent) ([]*engine.Combat, error) {
	b := engine.NewSessionBuilder(engine.BuilderOptions{
		NewCombatGap: r.opts.NewCombatGap,
		OnUpdate: func(u engine.SessionUpdate) {
			switch u.Kind {
			case engine.UpdateCreated:
				r.log.Debugf("combat %s opened at %s", u.Combat.ID, u.Combat.Start().Format(time.TimeOnly))
			case engine.UpdateLocked:
				r.detectMap(u.Combat)
			}
		},
	})
	for _, ev := range events {
		if err := b.Process(ev); err != nil {
			if errors.Is(err, engine.ErrOutOfOrder) {
				return nil, fmt.Errorf("%s:%d: %w", ev.File, ev.Line, err)
			}
			return nil, err
		}
	}
	return b.Finalize(), nil
}

func (r *runner) detectMap(c *engine.Combat) {
	m, ok := r.detector.DetectCombat(c)
	metrics.RecordMapDetection(m.Kind.String())
	if !ok {
		r.log.Debugf("combat %s: map undetermined", c.ID)
		return
	}
	c.Map = m.Name
	r.log.Debugf("combat %s: map %q (%s, score %d)", c.ID, m.Name, m.Kind, m.Score)
}

func (r *runner) halt(text string) {
	r.res.Success = false
	r.res.Combats = nil
	r.res.add(LevelHalt, text)
	r.log.Errorf("parse halted: %s", text)
}

func (r *runner) errorf(format string, args ...interface{}) {
	text := fmt.Sprintf(format, args...)
	r.res.add(LevelError, text)
	r.log.Errorf("%s", text)
}

func (r *runner) warnf(format string, args ...interface{}) {
	text := fmt.Sprintf(format, args...)
	r.res.add(LevelWarning, text)
	r.log.Warnf("%s", text)
}

func (r *runner) infof(format string, args ...interface{}) {
	text := fmt.Sprintf(format, args...)
	r.res.add(LevelInfo, text)
	r.log.Infof("%s", text)
}

func (r *runner) debugf(format string, args ...interface{}) {
	text := fmt.Sprintf(format, args...)
	r.res.add(LevelDebug, text)
	r.log.Debugf("%s", text)
}
