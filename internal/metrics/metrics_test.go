package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/02loveslollipop/eco-monitor/internal/ingest"
	"github.com/02loveslollipop/eco-monitor/internal/models"
	"github.com/02loveslollipop/eco-monitor/internal/thresholds"
)

func TestObserveRun(t *testing.T) {
	r := New()

	res := &ingest.Result{
		FinishedAt:          time.Unix(1705312800, 0),
		StationsCreated:     2,
		StationsUpdated:     5,
		MeasurementsCreated: 9,
		MeasurementsSkipped: 4,
		Errors:              []ingest.StationError{{StationID: "X", Kind: ingest.KindPersistence}},
		Exceedances: []thresholds.Report{{
			StationID: "A",
			Exceedances: []thresholds.Exceedance{
				{Pollutant: models.PM25, Severity: thresholds.SeverityAlert},
				{Pollutant: models.PM10, Severity: thresholds.SeverityWarning},
			},
		}},
	}
	r.ObserveRun(res, nil, 2*time.Second)
	r.ObserveRun(nil, errors.New("feed unavailable"), time.Second)

	if got := testutil.ToFloat64(r.runs.WithLabelValues("completed")); got != 1 {
		t.Errorf("completed runs=%v want 1", got)
	}
	if got := testutil.ToFloat64(r.runs.WithLabelValues("failed")); got != 1 {
		t.Errorf("failed runs=%v want 1", got)
	}
	if got := testutil.ToFloat64(r.stations.WithLabelValues("updated")); got != 5 {
		t.Errorf("updated stations=%v want 5", got)
	}
	if got := testutil.ToFloat64(r.measurements.WithLabelValues("skipped")); got != 4 {
		t.Errorf("skipped measurements=%v want 4", got)
	}
	if got := testutil.ToFloat64(r.exceedances.WithLabelValues("PM2.5", "alert")); got != 1 {
		t.Errorf("PM2.5 alerts=%v want 1", got)
	}
	if got := testutil.ToFloat64(r.lastSuccessTS); got != 1705312800 {
		t.Errorf("last success=%v", got)
	}
}

func TestHandlerServesRegistry(t *testing.T) {
	r := New()
	r.ObserveRun(&ingest.Result{MeasurementsCreated: 3}, nil, time.Second)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `eco_sync_measurements_total{outcome="created"} 3`) {
		t.Errorf("metrics output missing measurements counter:\n%s", body)
	}
}
