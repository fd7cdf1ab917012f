package transform

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"oshirase/internal/extras"
	"oshirase/internal/logging"
	"oshirase/internal/match"
	"oshirase/internal/media"
	"oshirase/internal/services"
)

// Stage pairs one extras set with the threshold used to resolve against it.
type Stage struct {
	Name      string
	Set       *extras.Set
	Threshold float64
	// Kinds limits the stage to these media kinds; empty means all kinds.
	Kinds []media.Kind
	// Apply overrides how a matched extra is written into the record.
	// The default is extras.Extra.Apply.
	Apply func(*media.Media, extras.Extra)
}

func (s Stage) appliesTo(kind media.Kind) bool {
	return len(s.Kinds) == 0 || slices.Contains(s.Kinds, kind)
}

func (s Stage) field() media.Field {
	if s.Set == nil {
		return ""
	}
	return s.Set.Kind().Field()
}

// Report summarizes one TransformAll pass.
type Report struct {
	Records    int
	Matched    map[string]int
	Failed     map[string]int
	Strategies map[match.Strategy]int
	Elapsed    time.Duration
}

func newReport(records int) Report {
	return Report{
		Records:    records,
		Matched:    make(map[string]int),
		Failed:     make(map[string]int),
		Strategies: make(map[match.Strategy]int),
	}
}

// Orchestrator enriches records by running every stage against each record.
type Orchestrator struct {
	resolver *match.Resolver
	workers  int
	logger   *slog.Logger
}

// New returns an orchestrator. workers <= 0 uses GOMAXPROCS.
func New(resolver *match.Resolver, workers int, logger *slog.Logger) *Orchestrator {
	if resolver == nil {
		resolver = match.NewResolver(nil)
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Orchestrator{
		resolver: resolver,
		workers:  workers,
		logger:   logging.NewComponentLogger(logger, "transform"),
	}
}

type stageOutcome struct {
	stage    string
	strategy match.Strategy
	matched  bool
	failed   bool
}

// TransformAll returns enriched copies of records in input order. Records are
// processed in parallel, each by exactly one goroutine; stages run in declared
// order per record. A stage that errors or panics is logged and skipped for
// that record only. Each enrichment field is written at most once per pass.
func (o *Orchestrator) TransformAll(ctx context.Context, records []media.Media, stages []Stage) ([]media.Media, Report) {
	started := time.Now()
	out := make([]media.Media, len(records))
	outcomes := make([][]stageOutcome, len(records))
	logger := logging.WithContext(services.WithStage(ctx, "transform"), o.logger)

	var g errgroup.Group
	g.SetLimit(o.workers)
	for i := range records {
		g.Go(func() error {
			record := records[i].Clone()
			outcomes[i] = o.transformOne(logger, &record, stages)
			out[i] = record
			return nil
		})
	}
	_ = g.Wait()

	report := newReport(len(records))
	for _, recordOutcomes := range outcomes {
		for _, oc := range recordOutcomes {
			report.Strategies[oc.strategy]++
			if oc.matched {
				report.Matched[oc.stage]++
			}
			if oc.failed {
				report.Failed[oc.stage]++
			}
		}
	}
	report.Elapsed = time.Since(started)
	return out, report
}

func (o *Orchestrator) transformOne(logger *slog.Logger, record *media.Media, stages []Stage) []stageOutcome {
	outcomes := make([]stageOutcome, 0, len(stages))
	assigned := make(map[media.Field]bool, 3)
	for _, stage := range stages {
		if !stage.appliesTo(record.Kind) {
			continue
		}
		field := stage.field()
		if assigned[field] {
			continue
		}
		res, err := o.applyStage(record, stage)
		if err != nil {
			logging.WarnWithContext(logger, "transform stage failed", "transform_stage_failed",
				logging.String("transform_stage", stage.Name),
				logging.Int64("media_id", record.MediaID),
				logging.String("title", record.Title),
				logging.Error(err),
				logging.String(logging.FieldImpact, "record left without this enrichment"),
				logging.String(logging.FieldErrorHint, "inspect the extras set for malformed entries"),
			)
			outcomes = append(outcomes, stageOutcome{stage: stage.Name, strategy: match.StrategyNone, failed: true})
			continue
		}
		if res.Found {
			assigned[field] = true
			logger.Debug("record enriched",
				logging.String("transform_stage", stage.Name),
				logging.Int64("media_id", record.MediaID),
				logging.String("strategy", string(res.Strategy)),
				logging.String("key", res.Key),
				logging.Float64("score", res.Score),
			)
		}
		outcomes = append(outcomes, stageOutcome{stage: stage.Name, strategy: res.Strategy, matched: res.Found})
	}
	return outcomes
}

func (o *Orchestrator) applyStage(record *media.Media, stage Stage) (res match.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stage %s panicked: %v", stage.Name, r)
		}
	}()
	res, err = o.resolver.Resolve(record, stage.Set, stage.Threshold)
	if err != nil || !res.Found {
		return res, err
	}
	if stage.Apply != nil {
		stage.Apply(record, res.Extra)
	} else {
		res.Extra.Apply(record)
	}
	return res, nil
}
