// compilation_pipeline.go - Phase accounting for builds
//
// Each unit moves through the same linear pipeline; the driver decides
// how far a unit actually travels (a cache hit stops after the
// fingerprint). PhaseTimes aggregates wall time per phase across all
// units so --verbose builds can show where a build spent its life.

package main

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Phase is one stage of a unit's trip through the compiler
type Phase int

const (
	PhaseParse Phase = iota
	PhaseCheck
	PhaseLower
	PhaseOptimize
	PhaseCodegen
	PhaseAssemble
	PhaseLink
	phaseCount
)

func (p Phase) String() string {
	switch p {
	case PhaseParse:
		return "parse"
	case PhaseCheck:
		return "check"
	case PhaseLower:
		return "lower"
	case PhaseOptimize:
		return "optimize"
	case PhaseCodegen:
		return "codegen"
	case PhaseAssemble:
		return "assemble"
	case PhaseLink:
		return "link"
	default:
		return "unknown"
	}
}

// PhaseTimes accumulates per-phase durations; safe for the driver's
// parallel unit workers.
type PhaseTimes struct {
	mu     sync.Mutex
	totals [phaseCount]time.Duration
	counts [phaseCount]int
}

func (pt *PhaseTimes) Observe(p Phase, d time.Duration) {
	pt.mu.Lock()
	pt.totals[p] += d
	pt.counts[p]++
	pt.mu.Unlock()
}

// Timed runs fn and attributes its wall time to phase p
func (pt *PhaseTimes) Timed(p Phase, fn func() error) error {
	start := time.Now()
	err := fn()
	pt.Observe(p, time.Since(start))
	return err
}

// Totals returns a copy of the accumulated durations indexed by phase
func (pt *PhaseTimes) Totals() [phaseCount]time.Duration {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return pt.totals
}

func (pt *PhaseTimes) LogSummary(log *zap.Logger) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	fields := make([]zap.Field, 0, phaseCount)
	for p := Phase(0); p < phaseCount; p++ {
		if pt.counts[p] > 0 {
			fields = append(fields, zap.Duration(p.String(), pt.totals[p]))
		}
	}
	log.Debug("phase times", fields...)
}
