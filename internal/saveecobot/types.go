package saveecobot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// StationRecord is one station entry of the SaveEcoBot output feed.
type StationRecord struct {
	ID           string          `json:"id"`
	CityName     string          `json:"cityName"`
	StationName  string          `json:"stationName"`
	LocalName    string          `json:"localName"`
	Timezone     string          `json:"timezone"`
	Latitude     Coordinate      `json:"latitude"`
	Longitude    Coordinate      `json:"longitude"`
	PlatformName string          `json:"platformName"`
	Pollutants   []PollutantData `json:"pollutants"`

	// Raw holds the record exactly as received, for audit.
	Raw json.RawMessage `json:"-"`
	// Err is set when the element of a snapshot could not be decoded. Only
	// ID and Raw are meaningful then.
	Err error `json:"-"`
}

// UnmarshalJSON accepts the id as a string or a bare number.
func (r *StationRecord) UnmarshalJSON(b []byte) error {
	type plain StationRecord
	aux := struct {
		*plain
		ID json.RawMessage `json:"id"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	id, err := looseString(aux.ID)
	if err != nil {
		return fmt.Errorf("id: %w", err)
	}
	r.ID = id
	return nil
}

// PollutantData is one reading within a station record.
type PollutantData struct {
	Pol       string   `json:"pol"`
	Unit      string   `json:"unit"`
	Time      string   `json:"time"`
	Value     *float64 `json:"value"`
	Averaging string   `json:"averaging"`
}

// UnmarshalJSON accepts the value as a number or a numeric string. Null and
// blank strings leave Value nil.
func (p *PollutantData) UnmarshalJSON(b []byte) error {
	type plain PollutantData
	aux := struct {
		*plain
		Value json.RawMessage `json:"value"`
	}{plain: (*plain)(p)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	s, err := looseString(aux.Value)
	if err != nil {
		return fmt.Errorf("value: %w", err)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		p.Value = nil
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("value %q is not a finite number", s)
	}
	p.Value = &v
	return nil
}

// Coordinate keeps the feed's textual latitude/longitude. The feed sends
// strings; bare numbers are accepted and kept in their textual form.
type Coordinate string

func (c *Coordinate) UnmarshalJSON(b []byte) error {
	s, err := looseString(b)
	if err != nil {
		return err
	}
	*c = Coordinate(s)
	return nil
}

// Float parses the coordinate text.
func (c Coordinate) Float() (float64, error) {
	return strconv.ParseFloat(string(c), 64)
}

// looseString reads a JSON string or number as text. Null and absent values
// yield "".
func looseString(b []byte) (string, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return "", nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return "", err
	}
	return n.String(), nil
}

// DecodeRecords decodes a JSON array of station records. Each element keeps
// its raw bytes. Only a payload that is not an array fails; an element that
// cannot be decoded comes back with Err set and whatever id was readable.
func DecodeRecords(data []byte) ([]StationRecord, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	records := make([]StationRecord, 0, len(raw))
	for i, r := range raw {
		rec, err := DecodeRecord(r)
		if err != nil {
			rec = StationRecord{
				ID:  recoverID(r),
				Raw: append(json.RawMessage(nil), r...),
				Err: fmt.Errorf("element %d: %w", i, err),
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// DecodeRecord decodes a single station record.
func DecodeRecord(data []byte) (StationRecord, error) {
	var rec StationRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return StationRecord{}, err
	}
	rec.Raw = append(json.RawMessage(nil), data...)
	return rec, nil
}

func recoverID(data []byte) string {
	var head struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return ""
	}
	id, _ := looseString(head.ID)
	return id
}
