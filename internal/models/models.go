package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// DefaultSource is recorded on measurements that do not name their origin.
const DefaultSource = "SaveEcoBot"

// GeoPoint is a WGS84 location stored as (longitude, latitude).
type GeoPoint struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
}

// Validate checks the coordinate ranges.
func (p GeoPoint) Validate() error {
	if math.IsNaN(p.Longitude) || p.Longitude < -180 || p.Longitude > 180 {
		return fmt.Errorf("longitude %v out of range [-180,180]", p.Longitude)
	}
	if math.IsNaN(p.Latitude) || p.Latitude < -90 || p.Latitude > 90 {
		return fmt.Errorf("latitude %v out of range [-90,90]", p.Latitude)
	}
	return nil
}

// Station is a fixed sensing location identified by a stable external id.
type Station struct {
	StationID          string        `json:"station_id"`
	CityName           string        `json:"city_name"`
	StationName        string        `json:"station_name"`
	LocalName          string        `json:"local_name"`
	Timezone           string        `json:"timezone"`
	Location           GeoPoint      `json:"location"`
	PlatformName       string        `json:"platform_name"`
	MeasuredParameters []Pollutant   `json:"measured_parameters"`
	Status             StationStatus `json:"status"`
	LastMeasurementAt  *time.Time    `json:"last_measurement_at,omitempty"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// Validate checks the invariants a station must hold before it is persisted.
func (s Station) Validate() error {
	if s.StationID == "" {
		return errors.New("station_id is required")
	}
	if err := s.Location.Validate(); err != nil {
		return err
	}
	if s.Status != "" {
		if _, err := ParseStationStatus(string(s.Status)); err != nil {
			return err
		}
	}
	for _, p := range s.MeasuredParameters {
		if _, err := ParsePollutant(string(p)); err != nil {
			return err
		}
	}
	return nil
}

// PollutantReading is a single (kind, value, unit) tuple within a measurement.
type PollutantReading struct {
	Pollutant       Pollutant       `json:"pollutant"`
	Value           float64         `json:"value"`
	Unit            Unit            `json:"unit"`
	AveragingPeriod AveragingPeriod `json:"averaging_period"`
	QualityFlag     QualityFlag     `json:"quality_flag"`
}

// Validate rejects unknown enum values and non-finite numbers.
func (r PollutantReading) Validate() error {
	if _, err := ParsePollutant(string(r.Pollutant)); err != nil {
		return err
	}
	if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
		return fmt.Errorf("%s: value must be a valid number", r.Pollutant)
	}
	if _, err := ParseUnit(string(r.Unit)); err != nil {
		return err
	}
	if _, err := ParseAveragingPeriod(string(r.AveragingPeriod)); err != nil {
		return err
	}
	if _, err := ParseQualityFlag(string(r.QualityFlag)); err != nil {
		return err
	}
	return nil
}

// MeasurementMetadata records where a measurement came from.
type MeasurementMetadata struct {
	Source          string          `json:"source"`
	ImportTime      time.Time       `json:"import_time"`
	OriginalData    json.RawMessage `json:"original_data,omitempty"`
	ProcessingNotes string          `json:"processing_notes,omitempty"`
}

// Measurement is one timestamped batch of pollutant readings for a station.
// (StationID, MeasurementTime) is unique.
type Measurement struct {
	StationID       string              `json:"station_id"`
	MeasurementTime time.Time           `json:"measurement_time"`
	Pollutants      []PollutantReading  `json:"pollutants"`
	Metadata        MeasurementMetadata `json:"metadata"`
}

// Validate checks the measurement and all of its readings.
func (m Measurement) Validate() error {
	if m.StationID == "" {
		return errors.New("station_id is required")
	}
	if m.MeasurementTime.IsZero() {
		return errors.New("measurement_time is required")
	}
	if len(m.Pollutants) == 0 {
		return errors.New("pollutants must contain at least 1 item")
	}
	for i, r := range m.Pollutants {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("pollutants[%d]: %w", i, err)
		}
	}
	return nil
}
