package models

import "time"

// StationFilter selects stations for listing.
type StationFilter struct {
	// City matches city_name case-insensitively as a substring.
	City   string
	Status StationStatus
	Limit  int
	Offset int
}

// MeasurementFilter selects measurements for listing, newest first.
type MeasurementFilter struct {
	StationID string
	Since     *time.Time
	Until     *time.Time
	Pollutant Pollutant
	Limit     int
	Offset    int
}

// Statistics aggregates one pollutant at one station over a time range.
type Statistics struct {
	Count  int       `json:"count"`
	Avg    float64   `json:"avg"`
	Min    float64   `json:"min"`
	Max    float64   `json:"max"`
	Latest time.Time `json:"latest"`
}

// StatusSummary describes the overall contents of the store.
type StatusSummary struct {
	TotalStations          int        `json:"total_stations"`
	ActiveStations         int        `json:"active_stations"`
	TotalMeasurements      int        `json:"total_measurements"`
	LastMeasurementTime    *time.Time `json:"last_measurement_time,omitempty"`
	LastMeasurementSource  *string    `json:"last_measurement_source,omitempty"`
	StationsWithRecentData int        `json:"stations_with_recent_data"`
}
