package normalize

import (
	"errors"
	"fmt"
	"time"

	"github.com/02loveslollipop/eco-monitor/internal/models"
)

// SubmittedReading is a pollutant reading as posted by an API client.
type SubmittedReading struct {
	Pollutant       string   `json:"pollutant"`
	Value           *float64 `json:"value"`
	Unit            string   `json:"unit"`
	AveragingPeriod string   `json:"averaging_period"`
	QualityFlag     string   `json:"quality_flag"`
}

// SubmittedMeasurement is a single measurement posted by an API client.
type SubmittedMeasurement struct {
	StationID       string             `json:"station_id"`
	MeasurementTime string             `json:"measurement_time"`
	Pollutants      []SubmittedReading `json:"pollutants"`
}

// Submitted validates a user-submitted measurement. Unlike feed readings,
// readings without a quality flag default to preliminary.
func Submitted(in SubmittedMeasurement, now time.Time) (models.Measurement, error) {
	if in.StationID == "" {
		return models.Measurement{}, errors.New("station_id is required")
	}
	if in.MeasurementTime == "" {
		return models.Measurement{}, errors.New("measurement_time is required")
	}
	ts, err := time.Parse(time.RFC3339Nano, in.MeasurementTime)
	if err != nil {
		return models.Measurement{}, fmt.Errorf("measurement_time must be ISO 8601: %w", err)
	}
	if len(in.Pollutants) == 0 {
		return models.Measurement{}, errors.New("pollutants must contain at least 1 item")
	}

	readings := make([]models.PollutantReading, 0, len(in.Pollutants))
	for i, sr := range in.Pollutants {
		r, err := submittedReading(sr)
		if err != nil {
			return models.Measurement{}, fmt.Errorf("pollutants[%d]: %w", i, err)
		}
		readings = append(readings, r)
	}

	m := models.Measurement{
		StationID:       in.StationID,
		MeasurementTime: ts.UTC(),
		Pollutants:      readings,
		Metadata: models.MeasurementMetadata{
			Source:     models.DefaultSource,
			ImportTime: now.UTC(),
		},
	}
	return m, m.Validate()
}

func submittedReading(sr SubmittedReading) (models.PollutantReading, error) {
	p, err := models.ParsePollutant(sr.Pollutant)
	if err != nil {
		return models.PollutantReading{}, err
	}
	if sr.Value == nil {
		return models.PollutantReading{}, errors.New("value is required")
	}
	u, err := models.ParseUnit(sr.Unit)
	if err != nil {
		return models.PollutantReading{}, err
	}
	avg, err := models.ParseAveragingPeriod(sr.AveragingPeriod)
	if err != nil {
		return models.PollutantReading{}, err
	}
	q, err := models.ParseQualityFlag(sr.QualityFlag)
	if err != nil {
		return models.PollutantReading{}, err
	}
	return models.PollutantReading{
		Pollutant:       p,
		Value:           *sr.Value,
		Unit:            u,
		AveragingPeriod: avg,
		QualityFlag:     q,
	}, nil
}
