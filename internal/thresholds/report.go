package thresholds

import "time"

// Report groups the exceedances of one newly created measurement.
type Report struct {
	StationID       string       `json:"station_id"`
	MeasurementTime time.Time    `json:"measurement_time"`
	Exceedances     []Exceedance `json:"exceedances"`
}
