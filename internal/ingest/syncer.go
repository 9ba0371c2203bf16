// Package ingest drives a full SaveEcoBot sync run: fetch a snapshot,
// normalize and reconcile every station, evaluate thresholds on new
// measurements and aggregate the counters.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/02loveslollipop/eco-monitor/internal/models"
	"github.com/02loveslollipop/eco-monitor/internal/normalize"
	"github.com/02loveslollipop/eco-monitor/internal/reconcile"
	"github.com/02loveslollipop/eco-monitor/internal/saveecobot"
	"github.com/02loveslollipop/eco-monitor/internal/thresholds"
)

// ErrRunInProgress is returned when Run is called while another run is active.
var ErrRunInProgress = errors.New("sync run already in progress")

// Fetcher returns the current feed snapshot.
type Fetcher interface {
	FetchSnapshot(ctx context.Context) ([]saveecobot.StationRecord, error)
}

// Notifier receives the exceedances of newly created measurements.
type Notifier interface {
	Publish(ctx context.Context, report thresholds.Report) error
}

// Recorder observes finished runs.
type Recorder interface {
	ObserveRun(res *Result, err error, elapsed time.Duration)
}

// State is the lifecycle position of the syncer.
type State string

const (
	StateIdle       State = "idle"
	StateFetching   State = "fetching"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Options tune a Syncer. Zero values select the defaults.
type Options struct {
	// Workers bounds how many stations are processed concurrently.
	Workers      int
	FetchTimeout time.Duration
	Thresholds   thresholds.Table
	Notifier     Notifier
	Recorder     Recorder
	Now          func() time.Time
}

// Syncer runs sync passes. Only one Run may be active at a time.
type Syncer struct {
	fetcher    Fetcher
	reconciler *reconcile.Reconciler
	table      thresholds.Table
	notifier   Notifier
	recorder   Recorder
	logger     *slog.Logger
	workers    int
	timeout    time.Duration
	now        func() time.Time

	running atomic.Bool
	mu      sync.RWMutex
	state   State
	last    *Result
}

// New builds a Syncer over the given feed and store.
func New(fetcher Fetcher, store reconcile.Store, logger *slog.Logger, opts Options) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 30 * time.Second
	}
	if opts.Thresholds == nil {
		opts.Thresholds = thresholds.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Syncer{
		fetcher:    fetcher,
		reconciler: reconcile.New(store, opts.Now),
		table:      opts.Thresholds,
		notifier:   opts.Notifier,
		recorder:   opts.Recorder,
		logger:     logger,
		workers:    opts.Workers,
		timeout:    opts.FetchTimeout,
		now:        opts.Now,
		state:      StateIdle,
	}
}

// State reports where the syncer currently is.
func (s *Syncer) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// LastResult returns the result of the most recent completed run, if any.
func (s *Syncer) LastResult() *Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

func (s *Syncer) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Run fetches a snapshot and processes every station in it. The only error
// that aborts a run is a failed fetch; station-level failures are reported in
// Result.Errors.
func (s *Syncer) Run(ctx context.Context) (*Result, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer s.running.Store(false)

	start := s.now()
	s.setState(StateFetching)

	fetchCtx, cancel := context.WithTimeout(ctx, s.timeout)
	records, err := s.fetcher.FetchSnapshot(fetchCtx)
	cancel()
	if err != nil {
		s.setState(StateFailed)
		if !errors.Is(err, saveecobot.ErrFeedUnavailable) {
			err = fmt.Errorf("%w: %v", saveecobot.ErrFeedUnavailable, err)
		}
		s.logger.Error("sync aborted", "error", err)
		if s.recorder != nil {
			s.recorder.ObserveRun(nil, err, s.now().Sub(start))
		}
		return nil, err
	}
	s.logger.Info("fetched feed snapshot", "stations", len(records))

	s.setState(StateProcessing)
	res := s.Process(ctx, records)

	s.mu.Lock()
	s.state = StateCompleted
	s.last = res
	s.mu.Unlock()

	if s.recorder != nil {
		s.recorder.ObserveRun(res, nil, s.now().Sub(start))
	}
	return res, nil
}

// Process reconciles an already obtained list of records. Stations are
// processed independently; their outcomes are merged in input order.
func (s *Syncer) Process(ctx context.Context, records []saveecobot.StationRecord) *Result {
	res := &Result{
		RunID:     uuid.NewString(),
		StartedAt: s.now().UTC(),
		Errors:    []StationError{},
	}
	logger := s.logger.With("run_id", res.RunID)

	outcomes := make([]stationOutcome, len(records))
	if s.workers == 1 {
		for i, rec := range records {
			outcomes[i] = s.processStation(ctx, logger, rec)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(s.workers)
		for i, rec := range records {
			i, rec := i, rec
			g.Go(func() error {
				outcomes[i] = s.processStation(ctx, logger, rec)
				return nil
			})
		}
		_ = g.Wait()
	}

	for _, o := range outcomes {
		res.merge(o)
	}
	res.FinishedAt = s.now().UTC()

	logger.Info("sync completed",
		"stations_processed", res.StationsProcessed,
		"stations_created", res.StationsCreated,
		"stations_updated", res.StationsUpdated,
		"measurements_created", res.MeasurementsCreated,
		"measurements_skipped", res.MeasurementsSkipped,
		"errors", len(res.Errors),
	)
	return res
}

func (s *Syncer) processStation(ctx context.Context, logger *slog.Logger, rec saveecobot.StationRecord) stationOutcome {
	out := stationOutcome{stationID: rec.ID}

	n, err := normalize.Station(rec)
	if err != nil {
		out.err = err
		logger.Warn("skipping station", "station_id", rec.ID, "error", err)
		return out
	}

	out.station, err = s.reconciler.ReconcileStation(ctx, n.Station)
	if err != nil {
		out.err = err
		logger.Error("station reconcile failed", "station_id", rec.ID, "error", err)
		return out
	}
	if out.station == reconcile.Created {
		logger.Info("created station", "station_id", rec.ID)
	}

	meta := models.MeasurementMetadata{
		Source:          models.DefaultSource,
		OriginalData:    n.Raw,
		ProcessingNotes: n.ProcessingNotes(),
	}
	for _, b := range n.Batches {
		outcome, err := s.reconciler.ReconcileMeasurement(ctx, rec.ID, b.MeasurementTime, b.Pollutants, meta)
		if err != nil {
			out.err = err
			logger.Error("measurement reconcile failed", "station_id", rec.ID, "time", b.TimeKey, "error", err)
			return out
		}
		switch outcome {
		case reconcile.Created:
			out.measurementsCreated++
			s.evaluate(ctx, logger, &out, rec.ID, b)
		case reconcile.Skipped:
			out.measurementsSkipped++
		}
	}

	if err := s.reconciler.TouchStation(ctx, rec.ID); err != nil {
		out.err = err
		logger.Error("touch station failed", "station_id", rec.ID, "error", err)
	}
	return out
}

func (s *Syncer) evaluate(ctx context.Context, logger *slog.Logger, out *stationOutcome, stationID string, b normalize.Batch) {
	exc := s.table.Evaluate(b.Pollutants)
	if len(exc) == 0 {
		return
	}
	report := thresholds.Report{
		StationID:       stationID,
		MeasurementTime: b.MeasurementTime,
		Exceedances:     exc,
	}
	out.reports = append(out.reports, report)

	if s.notifier == nil {
		return
	}
	if err := s.notifier.Publish(ctx, report); err != nil {
		logger.Warn("exceedance notification failed", "station_id", stationID, "error", err)
	}
}
