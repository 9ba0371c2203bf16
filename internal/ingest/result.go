package ingest

import (
	"errors"
	"time"

	"github.com/02loveslollipop/eco-monitor/internal/normalize"
	"github.com/02loveslollipop/eco-monitor/internal/reconcile"
	"github.com/02loveslollipop/eco-monitor/internal/thresholds"
)

// Error kinds reported per station.
const (
	KindMalformedCoordinate = "malformed_coordinate"
	KindPersistence         = "persistence"
	KindInvalid             = "invalid"
)

// StationError records why one station could not be fully processed.
type StationError struct {
	StationID string `json:"station_id"`
	Kind      string `json:"kind"`
	Error     string `json:"error"`
}

// Result is the outcome of one sync run.
type Result struct {
	RunID               string              `json:"run_id"`
	StartedAt           time.Time           `json:"started_at"`
	FinishedAt          time.Time           `json:"finished_at"`
	StationsProcessed   int                 `json:"stations_processed"`
	StationsCreated     int                 `json:"stations_created"`
	StationsUpdated     int                 `json:"stations_updated"`
	MeasurementsCreated int                 `json:"measurements_created"`
	MeasurementsSkipped int                 `json:"measurements_skipped"`
	Errors              []StationError      `json:"errors"`
	Exceedances         []thresholds.Report `json:"exceedances,omitempty"`
}

// stationOutcome is what processing a single station produced. Outcomes are
// merged into a Result in feed order once every station has been attempted.
type stationOutcome struct {
	stationID           string
	station             reconcile.Outcome
	measurementsCreated int
	measurementsSkipped int
	reports             []thresholds.Report
	err                 error
}

func (r *Result) merge(o stationOutcome) {
	r.StationsProcessed++
	switch o.station {
	case reconcile.Created:
		r.StationsCreated++
	case reconcile.Updated:
		r.StationsUpdated++
	}
	r.MeasurementsCreated += o.measurementsCreated
	r.MeasurementsSkipped += o.measurementsSkipped
	r.Exceedances = append(r.Exceedances, o.reports...)
	if o.err != nil {
		r.Errors = append(r.Errors, StationError{
			StationID: o.stationID,
			Kind:      errorKind(o.err),
			Error:     o.err.Error(),
		})
	}
}

func errorKind(err error) string {
	var pe *reconcile.PersistenceError
	switch {
	case errors.Is(err, normalize.ErrMalformedCoordinate):
		return KindMalformedCoordinate
	case errors.As(err, &pe):
		return KindPersistence
	}
	return KindInvalid
}
