package models

import "fmt"

// Pollutant is one of the measured parameter kinds a station can report.
type Pollutant string

const (
	PM25            Pollutant = "PM2.5"
	PM10            Pollutant = "PM10"
	Temperature     Pollutant = "Temperature"
	Humidity        Pollutant = "Humidity"
	Pressure        Pollutant = "Pressure"
	AirQualityIndex Pollutant = "Air Quality Index"
	NitrogenDioxide Pollutant = "NO2"
	SulfurDioxide   Pollutant = "SO2"
	CarbonMonoxide  Pollutant = "CO"
	Ozone           Pollutant = "O3"
)

var pollutants = []Pollutant{
	PM25, PM10, Temperature, Humidity, Pressure,
	AirQualityIndex, NitrogenDioxide, SulfurDioxide, CarbonMonoxide, Ozone,
}

// Pollutants lists every known pollutant kind.
func Pollutants() []Pollutant {
	out := make([]Pollutant, len(pollutants))
	copy(out, pollutants)
	return out
}

// ParsePollutant maps a raw string onto a known pollutant kind.
func ParsePollutant(s string) (Pollutant, error) {
	for _, p := range pollutants {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown pollutant %q", s)
}

// Unit is a measurement unit accepted for pollutant readings.
type Unit string

const (
	UnitMicrogramsPerM3 Unit = "ug/m3"
	UnitCelsius         Unit = "Celcius"
	UnitPercent         Unit = "%"
	UnitHectopascal     Unit = "hPa"
	UnitAQI             Unit = "aqi"
	UnitMilligramsPerM3 Unit = "mg/m3"
	UnitPPM             Unit = "ppm"
)

var units = []Unit{
	UnitMicrogramsPerM3, UnitCelsius, UnitPercent, UnitHectopascal,
	UnitAQI, UnitMilligramsPerM3, UnitPPM,
}

// ParseUnit maps a raw string onto a known unit.
func ParseUnit(s string) (Unit, error) {
	for _, u := range units {
		if string(u) == s {
			return u, nil
		}
	}
	return "", fmt.Errorf("unknown unit %q", s)
}

// AveragingPeriod is the window a reading was averaged over.
type AveragingPeriod string

const (
	Averaging1Minute   AveragingPeriod = "1 minute"
	Averaging2Minutes  AveragingPeriod = "2 minutes"
	Averaging5Minutes  AveragingPeriod = "5 minutes"
	Averaging15Minutes AveragingPeriod = "15 minutes"
	Averaging1Hour     AveragingPeriod = "1 hour"
	Averaging24Hours   AveragingPeriod = "24 hours"

	DefaultAveragingPeriod = Averaging2Minutes
)

var averagingPeriods = []AveragingPeriod{
	Averaging1Minute, Averaging2Minutes, Averaging5Minutes,
	Averaging15Minutes, Averaging1Hour, Averaging24Hours,
}

// ParseAveragingPeriod maps a raw string onto a known averaging period.
// An empty string yields the default period.
func ParseAveragingPeriod(s string) (AveragingPeriod, error) {
	if s == "" {
		return DefaultAveragingPeriod, nil
	}
	for _, a := range averagingPeriods {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown averaging period %q", s)
}

// QualityFlag marks how far a reading can be trusted.
type QualityFlag string

const (
	QualityValid       QualityFlag = "valid"
	QualityInvalid     QualityFlag = "invalid"
	QualityEstimated   QualityFlag = "estimated"
	QualityPreliminary QualityFlag = "preliminary"
)

// ParseQualityFlag maps a raw string onto a quality flag. An empty string
// yields preliminary.
func ParseQualityFlag(s string) (QualityFlag, error) {
	switch QualityFlag(s) {
	case "":
		return QualityPreliminary, nil
	case QualityValid, QualityInvalid, QualityEstimated, QualityPreliminary:
		return QualityFlag(s), nil
	}
	return "", fmt.Errorf("unknown quality flag %q", s)
}

// StationStatus is the lifecycle state of a station.
type StationStatus string

const (
	StatusActive   StationStatus = "active"
	StatusInactive StationStatus = "inactive"
)

// ParseStationStatus maps a raw string onto a station status.
func ParseStationStatus(s string) (StationStatus, error) {
	switch StationStatus(s) {
	case StatusActive, StatusInactive:
		return StationStatus(s), nil
	}
	return "", fmt.Errorf("unknown station status %q", s)
}
