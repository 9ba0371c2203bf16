package http

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/02loveslollipop/eco-monitor/internal/models"
)

const maxLimit = 1000

type page struct {
	Page  int
	Limit int
}

func (p page) offset() int { return (p.Page - 1) * p.Limit }

func (p page) meta(total int) gin.H {
	return gin.H{
		"page":  p.Page,
		"limit": p.Limit,
		"total": total,
		"pages": (total + p.Limit - 1) / p.Limit,
	}
}

func (s *Server) parsePage(c *gin.Context) (page, error) {
	p := page{Page: 1, Limit: s.cfg.DefaultLimit}
	if p.Limit <= 0 {
		p.Limit = 100
	}
	if v := c.Query("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return p, errors.New("invalid page")
		}
		p.Page = n
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxLimit {
			return p, fmt.Errorf("invalid limit (1-%d)", maxLimit)
		}
		p.Limit = n
	}
	if p.Page-1 > math.MaxInt/p.Limit {
		return p, errors.New("invalid page")
	}
	return p, nil
}

// parseDate accepts RFC3339 timestamps and plain dates (midnight UTC).
func parseDate(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid date %q, expected RFC3339 or YYYY-MM-DD", v)
}

func parseDateRange(c *gin.Context) (since, until *time.Time, err error) {
	if since, err = parseDate(c.Query("start_date")); err != nil {
		return nil, nil, fmt.Errorf("start_date: %w", err)
	}
	if until, err = parseDate(c.Query("end_date")); err != nil {
		return nil, nil, fmt.Errorf("end_date: %w", err)
	}
	return since, until, nil
}

// stationRequest is the body of station create and update calls.
type stationRequest struct {
	StationID          string   `json:"station_id"`
	CityName           string   `json:"city_name"`
	StationName        string   `json:"station_name"`
	LocalName          string   `json:"local_name"`
	Timezone           string   `json:"timezone"`
	Latitude           *float64 `json:"latitude"`
	Longitude          *float64 `json:"longitude"`
	PlatformName       string   `json:"platform_name"`
	MeasuredParameters []string `json:"measured_parameters"`
	Status             string   `json:"status"`
}

func (r stationRequest) station() (models.Station, error) {
	switch {
	case r.StationID == "":
		return models.Station{}, errors.New("station_id is required")
	case r.CityName == "":
		return models.Station{}, errors.New("city_name is required")
	case r.StationName == "":
		return models.Station{}, errors.New("station_name is required")
	case r.Latitude == nil:
		return models.Station{}, errors.New("latitude is required")
	case r.Longitude == nil:
		return models.Station{}, errors.New("longitude is required")
	}

	st := models.Station{
		StationID:          r.StationID,
		CityName:           r.CityName,
		StationName:        r.StationName,
		LocalName:          r.LocalName,
		Timezone:           r.Timezone,
		Location:           models.GeoPoint{Longitude: *r.Longitude, Latitude: *r.Latitude},
		PlatformName:       r.PlatformName,
		MeasuredParameters: make([]models.Pollutant, 0, len(r.MeasuredParameters)),
	}
	for _, p := range r.MeasuredParameters {
		kind, err := models.ParsePollutant(p)
		if err != nil {
			return models.Station{}, err
		}
		st.MeasuredParameters = append(st.MeasuredParameters, kind)
	}
	if r.Status != "" {
		status, err := models.ParseStationStatus(r.Status)
		if err != nil {
			return models.Station{}, err
		}
		st.Status = status
	}
	return st, st.Validate()
}
