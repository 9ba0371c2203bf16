// Package thresholds classifies pollutant readings against alerting bounds.
package thresholds

import (
	"fmt"
	"math"

	"github.com/02loveslollipop/eco-monitor/internal/models"
)

// Severity is the exceedance tier of a reading.
type Severity string

const (
	SeverityNormal    Severity = "normal"
	SeverityWarning   Severity = "warning"
	SeverityAlert     Severity = "alert"
	SeverityEmergency Severity = "emergency"
)

// Bounds are the tier limits for one pollutant. A value must strictly exceed
// a bound to reach its tier.
type Bounds struct {
	Warning   float64 `yaml:"warning" json:"warning"`
	Alert     float64 `yaml:"alert" json:"alert"`
	Emergency float64 `yaml:"emergency" json:"emergency"`
}

func (b Bounds) validate() error {
	if !(b.Warning < b.Alert && b.Alert < b.Emergency) {
		return fmt.Errorf("bounds must satisfy warning < alert < emergency, got %v/%v/%v", b.Warning, b.Alert, b.Emergency)
	}
	if b.Warning <= 0 {
		return fmt.Errorf("warning bound must be positive, got %v", b.Warning)
	}
	return nil
}

// Table maps pollutant kinds to their bounds. Kinds absent from the table are
// never flagged.
type Table map[models.Pollutant]Bounds

// Default returns the built-in table.
func Default() Table {
	return Table{
		models.PM25:            {Warning: 25, Alert: 35, Emergency: 75},
		models.PM10:            {Warning: 50, Alert: 75, Emergency: 150},
		models.AirQualityIndex: {Warning: 50, Alert: 100, Emergency: 150},
	}
}

// Exceedance describes one reading above its warning bound.
type Exceedance struct {
	Pollutant models.Pollutant `json:"pollutant"`
	Value     float64          `json:"value"`
	Threshold float64          `json:"threshold"`
	Severity  Severity         `json:"severity"`
	Ratio     float64          `json:"ratio"`
}

// Classify returns the highest tier whose bound value strictly exceeds, and
// that bound. Normal carries a zero threshold.
func (b Bounds) Classify(value float64) (Severity, float64) {
	switch {
	case value > b.Emergency:
		return SeverityEmergency, b.Emergency
	case value > b.Alert:
		return SeverityAlert, b.Alert
	case value > b.Warning:
		return SeverityWarning, b.Warning
	}
	return SeverityNormal, 0
}

// Evaluate returns one exceedance per reading above its warning bound, in
// reading order.
func (t Table) Evaluate(readings []models.PollutantReading) []Exceedance {
	var out []Exceedance
	for _, r := range readings {
		b, ok := t[r.Pollutant]
		if !ok {
			continue
		}
		sev, limit := b.Classify(r.Value)
		if sev == SeverityNormal {
			continue
		}
		out = append(out, Exceedance{
			Pollutant: r.Pollutant,
			Value:     r.Value,
			Threshold: limit,
			Severity:  sev,
			Ratio:     round2(r.Value / limit),
		})
	}
	return out
}

// Evaluate checks readings against the default table.
func Evaluate(readings []models.PollutantReading) []Exceedance {
	return Default().Evaluate(readings)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
