package saveecobot

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const sampleFeed = `[
	{
		"id": "SAVEDNIPRO_1",
		"cityName": "Kyiv",
		"stationName": "Khreshchatyk 1",
		"localName": "",
		"timezone": "Europe/Kyiv",
		"latitude": "50.4501",
		"longitude": "30.5234",
		"platformName": "SaveDnipro",
		"pollutants": [
			{"pol": "PM2.5", "unit": "ug/m3", "time": "2024-01-15 10:30:00", "value": 12.5, "averaging": "2 minutes"},
			{"pol": "Humidity", "unit": "%", "time": "2024-01-15 10:30:00", "value": null, "averaging": "2 minutes"}
		]
	},
	{
		"id": "EcoCity_7",
		"cityName": "Lviv",
		"stationName": "Rynok",
		"timezone": "+0200",
		"latitude": 49.84,
		"longitude": 24.03,
		"platformName": "EcoCity",
		"pollutants": []
	}
]`

func TestFetchSnapshotSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(sampleFeed))
	}))
	defer server.Close()

	records, err := NewClient(server.URL, time.Second).FetchSnapshot(context.Background())
	if err != nil {
		t.Fatalf("FetchSnapshot: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}

	first := records[0]
	if first.ID != "SAVEDNIPRO_1" || first.CityName != "Kyiv" {
		t.Errorf("first record: got id=%q city=%q", first.ID, first.CityName)
	}
	if first.Latitude != "50.4501" {
		t.Errorf("latitude: got %q, want 50.4501", first.Latitude)
	}
	if len(first.Pollutants) != 2 {
		t.Fatalf("pollutants: got %d, want 2", len(first.Pollutants))
	}
	if first.Pollutants[1].Value != nil {
		t.Errorf("null value should decode to nil, got %v", *first.Pollutants[1].Value)
	}
	if len(first.Raw) == 0 {
		t.Error("raw payload was not retained")
	}

	// Numeric coordinates are kept as text.
	if records[1].Latitude != "49.84" || records[1].Longitude != "24.03" {
		t.Errorf("numeric coordinates: got %q/%q", records[1].Latitude, records[1].Longitude)
	}
}

func TestFetchSnapshotServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	records, err := NewClient(server.URL, time.Second).FetchSnapshot(context.Background())
	if !errors.Is(err, ErrFeedUnavailable) {
		t.Fatalf("expected ErrFeedUnavailable, got %v", err)
	}
	if records != nil {
		t.Errorf("expected no records, got %d", len(records))
	}
}

func TestFetchSnapshotInvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("invalid json"))
	}))
	defer server.Close()

	_, err := NewClient(server.URL, time.Second).FetchSnapshot(context.Background())
	if !errors.Is(err, ErrFeedUnavailable) {
		t.Fatalf("expected ErrFeedUnavailable, got %v", err)
	}
}

func TestFetchSnapshotTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	_, err := NewClient(server.URL, 50*time.Millisecond).FetchSnapshot(context.Background())
	if !errors.Is(err, ErrFeedUnavailable) {
		t.Fatalf("expected ErrFeedUnavailable on timeout, got %v", err)
	}
}

func TestCoordinateFloat(t *testing.T) {
	tests := []struct {
		in      Coordinate
		want    float64
		wantErr bool
	}{
		{"50.45", 50.45, false},
		{"-71.0589", -71.0589, false},
		{"", 0, true},
		{"north", 0, true},
	}
	for _, tt := range tests {
		got, err := tt.in.Float()
		if (err != nil) != tt.wantErr {
			t.Errorf("Float(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("Float(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestDecodeRecordsKeepsBadElementsApart(t *testing.T) {
	payload := `[
		{"id": "GOOD", "latitude": "50.1", "longitude": "30.1",
		 "pollutants": [{"pol": "PM10", "unit": "ug/m3", "time": "2024-01-15 10:30:00", "value": "12.5"}]},
		{"id": 42, "latitude": "50.2", "longitude": "30.2",
		 "pollutants": [{"pol": "PM10", "unit": "ug/m3", "time": "2024-01-15 10:30:00", "value": " "}]},
		{"id": "BAD", "latitude": "50.3", "longitude": "30.3",
		 "pollutants": [{"pol": "PM10", "unit": "ug/m3", "time": "2024-01-15 10:30:00", "value": "high"}]},
		{"id": "WORSE", "pollutants": {"pol": "PM10"}}
	]`

	records, err := DecodeRecords([]byte(payload))
	if err != nil {
		t.Fatalf("DecodeRecords: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("got %d records, want 4", len(records))
	}

	good := records[0]
	if good.Err != nil || good.Pollutants[0].Value == nil || *good.Pollutants[0].Value != 12.5 {
		t.Errorf("numeric string value: err=%v pollutants=%+v", good.Err, good.Pollutants)
	}
	numeric := records[1]
	if numeric.Err != nil || numeric.ID != "42" || numeric.Pollutants[0].Value != nil {
		t.Errorf("numeric id / blank value: err=%v id=%q value=%v", numeric.Err, numeric.ID, numeric.Pollutants[0].Value)
	}
	for _, rec := range records[2:] {
		if rec.Err == nil {
			t.Errorf("%s: expected decode error", rec.ID)
		}
		if len(rec.Raw) == 0 {
			t.Errorf("%s: raw payload was not retained", rec.ID)
		}
	}
	if records[2].ID != "BAD" || records[3].ID != "WORSE" {
		t.Errorf("recovered ids: %q %q", records[2].ID, records[3].ID)
	}

	if _, err := DecodeRecords([]byte(`{"id": "GOOD"}`)); err == nil {
		t.Error("expected error for a payload that is not an array")
	}
}
