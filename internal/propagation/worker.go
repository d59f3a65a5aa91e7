package propagation

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/star/skypass/internal/earth"
	"github.com/star/skypass/internal/transform"
)

// propagateJob is a unit of work for the worker pool.
type propagateJob struct {
	noradID    int
	orbit      *Orbit
	targetTime time.Time
	gmst       float64 // precomputed GMST for targetTime
}

// propagateResult is the output of a single satellite propagation.
type propagateResult struct {
	position SatellitePosition
	err      error
	noradID  int
}

// WorkerPool runs catalog-wide propagations on a fixed number of
// goroutines.
type WorkerPool struct {
	workers int
	logger  *slog.Logger
}

// NewWorkerPool creates a worker pool with the given number of workers.
func NewWorkerPool(workers int, logger *slog.Logger) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	return &WorkerPool{
		workers: workers,
		logger:  logger,
	}
}

// PropagateBatch propagates every orbit to targetTime. It returns the
// positions that succeeded plus success and failure counts; failures are
// logged and skipped.
func (wp *WorkerPool) PropagateBatch(ctx context.Context, orbits map[int]*Orbit, targetTime time.Time) ([]SatellitePosition, int, int) {
	if len(orbits) == 0 {
		return nil, 0, 0
	}

	// One GMST serves every satellite at this instant.
	gmst := transform.GMST(targetTime)

	jobs := make(chan propagateJob, wp.workers*2)
	results := make(chan propagateResult, wp.workers*2)

	var wg sync.WaitGroup
	for i := 0; i < wp.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				result := propagateSingle(ctx, job)
				select {
				case results <- result:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for id, o := range orbits {
			job := propagateJob{
				noradID:    id,
				orbit:      o,
				targetTime: targetTime,
				gmst:       gmst,
			}
			select {
			case jobs <- job:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	positions := make([]SatellitePosition, 0, len(orbits))
	var successCount, errorCount int

	for result := range results {
		if result.err != nil {
			errorCount++
			level := slog.LevelWarn
			if errors.Is(result.err, ErrDecayed) {
				level = slog.LevelDebug
			}
			wp.logger.Log(ctx, level, "propagation failed",
				"norad_id", result.noradID,
				"error", result.err,
			)
			continue
		}
		successCount++
		positions = append(positions, result.position)
	}

	return positions, successCount, errorCount
}

// propagateSingle propagates one orbit and rotates the result into ECEF.
func propagateSingle(ctx context.Context, job propagateJob) propagateResult {
	pos, err := job.orbit.PredictTime(ctx, job.targetTime)
	if err != nil {
		return propagateResult{noradID: job.noradID, err: err}
	}

	ecef := transform.TEMEToECEFWithGMST(pos.Position, pos.Velocity, job.gmst)

	return propagateResult{
		noradID: job.noradID,
		position: SatellitePosition{
			NORADID:      job.noradID,
			PositionECEF: [3]float64{ecef.X, ecef.Y, ecef.Z},
			VelocityECEF: [3]float64{ecef.VX, ecef.VY, ecef.VZ},
			Latitude:     earth.Deg(pos.Latitude),
			Longitude:    earth.Deg(pos.Longitude),
			Altitude:     pos.Altitude,
			Eclipsed:     pos.Eclipsed,
		},
	}
}
