// Package orchestrator runs the recon pipeline: subdomain discovery, port
// probing, enrichment, report. Phases execute strictly in order against a
// single run-scoped aggregate, so no phase ever sees a half-written view.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/reconward/reconward/internal/logger"
	"github.com/reconward/reconward/pkg/types"
)

// ErrSkipped is returned by a stage that was configured off. The pipeline
// records the phase as skipped and moves on.
var ErrSkipped = errors.New("stage skipped")

// Stage is one pipeline phase. Run reads what earlier phases appended to the
// aggregate and appends its own findings; it never mutates earlier entries.
type Stage interface {
	Name() string
	Run(ctx context.Context, result *types.ScanResult) error
}

type Pipeline struct {
	Stages     []Stage
	RunTimeout time.Duration
	Logger     *logger.Logger
}

func NewPipeline(stages []Stage, runTimeout time.Duration, log *logger.Logger) *Pipeline {
	if log == nil {
		log = logger.Nop()
	}
	return &Pipeline{
		Stages:     stages,
		RunTimeout: runTimeout,
		Logger:     log.WithComponent("orchestrator"),
	}
}

// Run executes every stage in order. A failed scan phase marks the run
// failed and the remaining scan phases never start, but the report phase
// still runs so partial findings are not lost. The first failure is
// returned after the report is attempted.
func (p *Pipeline) Run(ctx context.Context, result *types.ScanResult) error {
	if p.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.RunTimeout)
		defer cancel()
	}

	log := p.Logger.WithScanID(result.ScanID).WithTarget(result.Target)
	start := time.Now()
	var firstErr error

	for _, stage := range p.Stages {
		st := result.Phase(stage.Name())

		if firstErr != nil && stage.Name() != types.PhaseReport {
			continue // stays not_run: it was never attempted
		}

		st.State = types.PhaseRunning
		st.StartedAt = time.Now().UTC()
		log.Infow("Phase started", "phase", stage.Name())

		stageCtx, span := log.StartSpan(ctx, "phase."+stage.Name())
		err := stage.Run(stageCtx, result)
		span.End()
		st.FinishedAt = time.Now().UTC()

		switch {
		case errors.Is(err, ErrSkipped):
			st.State = types.PhaseSkipped
			log.Infow("Phase skipped", "phase", stage.Name())
		case err != nil:
			st.State = types.PhaseFailed
			st.Err = err.Error()
			result.Failed = true
			if firstErr == nil {
				firstErr = err
			}
			log.LogError(ctx, err, "phase_"+stage.Name())
		default:
			st.State = types.PhaseCompleted
			log.Infow("Phase completed", "phase", stage.Name(), "partial", st.Partial)
		}
	}

	result.FinishedAt = time.Now().UTC()
	log.LogDuration(ctx, "pipeline", start, "failed", result.Failed)
	return firstErr
}
