package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/02loveslollipop/eco-monitor/internal/models"
	"github.com/02loveslollipop/eco-monitor/internal/saveecobot"
)

// ErrMalformedCoordinate is returned when a station's latitude or longitude
// cannot be parsed or is out of range.
var ErrMalformedCoordinate = errors.New("malformed coordinate")

// ErrUndecodable is returned for a feed element that could not be decoded.
var ErrUndecodable = errors.New("undecodable station record")

// Batch is the set of readings a station reported for one instant.
type Batch struct {
	TimeKey         string
	MeasurementTime time.Time
	Pollutants      []models.PollutantReading
}

// Normalized is one feed record mapped onto the canonical model.
type Normalized struct {
	Station models.Station
	Batches []Batch
	// Dropped counts readings that carried data but could not be mapped.
	Dropped int
	Raw     json.RawMessage
}

// ProcessingNotes summarises what normalization discarded.
func (n Normalized) ProcessingNotes() string {
	if n.Dropped == 0 {
		return ""
	}
	return fmt.Sprintf("dropped %d unmappable readings", n.Dropped)
}

// Station converts a feed record into a canonical station plus measurement
// batches grouped by timestamp, in order of first appearance. Readings
// without a value or time are skipped. Feed readings are marked valid.
func Station(rec saveecobot.StationRecord) (Normalized, error) {
	if rec.Err != nil {
		return Normalized{}, fmt.Errorf("station %s: %w: %v", rec.ID, ErrUndecodable, rec.Err)
	}
	loc, err := parseLocation(rec.Latitude, rec.Longitude)
	if err != nil {
		return Normalized{}, fmt.Errorf("station %s: %w", rec.ID, err)
	}

	out := Normalized{
		Station: models.Station{
			StationID:          rec.ID,
			CityName:           rec.CityName,
			StationName:        rec.StationName,
			LocalName:          rec.LocalName,
			Timezone:           rec.Timezone,
			Location:           loc,
			PlatformName:       rec.PlatformName,
			MeasuredParameters: MeasuredParameters(rec.Pollutants),
			Status:             models.StatusActive,
		},
		Raw: rec.Raw,
	}

	zone := Zone(rec.Timezone)
	index := make(map[string]int)
	for _, pd := range rec.Pollutants {
		if pd.Time == "" || pd.Value == nil {
			continue
		}
		reading, err := feedReading(pd)
		if err != nil {
			out.Dropped++
			continue
		}

		i, ok := index[pd.Time]
		if !ok {
			ts, err := ParseTime(pd.Time, zone)
			if err != nil {
				out.Dropped++
				continue
			}
			i = len(out.Batches)
			index[pd.Time] = i
			out.Batches = append(out.Batches, Batch{TimeKey: pd.Time, MeasurementTime: ts})
		}
		out.Batches[i].Pollutants = append(out.Batches[i].Pollutants, reading)
	}

	return out, nil
}

// MeasuredParameters returns the distinct known pollutant kinds in the list,
// in first-seen order. Readings without a value still count.
func MeasuredParameters(list []saveecobot.PollutantData) []models.Pollutant {
	seen := make(map[models.Pollutant]bool, len(list))
	out := make([]models.Pollutant, 0, len(list))
	for _, pd := range list {
		p, err := models.ParsePollutant(pd.Pol)
		if err != nil || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

func feedReading(pd saveecobot.PollutantData) (models.PollutantReading, error) {
	p, err := models.ParsePollutant(pd.Pol)
	if err != nil {
		return models.PollutantReading{}, err
	}
	u, err := models.ParseUnit(pd.Unit)
	if err != nil {
		return models.PollutantReading{}, err
	}
	avg, err := models.ParseAveragingPeriod(strings.TrimSpace(pd.Averaging))
	if err != nil {
		avg = models.DefaultAveragingPeriod
	}
	r := models.PollutantReading{
		Pollutant:       p,
		Value:           *pd.Value,
		Unit:            u,
		AveragingPeriod: avg,
		QualityFlag:     models.QualityValid,
	}
	return r, r.Validate()
}

func parseLocation(lat, lon saveecobot.Coordinate) (models.GeoPoint, error) {
	latitude, err := lat.Float()
	if err != nil {
		return models.GeoPoint{}, fmt.Errorf("%w: latitude %q", ErrMalformedCoordinate, string(lat))
	}
	longitude, err := lon.Float()
	if err != nil {
		return models.GeoPoint{}, fmt.Errorf("%w: longitude %q", ErrMalformedCoordinate, string(lon))
	}
	p := models.GeoPoint{Longitude: longitude, Latitude: latitude}
	if err := p.Validate(); err != nil {
		return models.GeoPoint{}, fmt.Errorf("%w: %v", ErrMalformedCoordinate, err)
	}
	return p, nil
}
