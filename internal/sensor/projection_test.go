package sensor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/i474232898/weerlive/internal/store"
	"github.com/i474232898/weerlive/internal/weerlive"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeSource struct {
	hasData   bool
	temp      float64
	feel      float64
	wind      float64
	dir       string
	err       error
	updatedAt time.Time
}

func (f *fakeSource) HasData() bool { return f.hasData }
func (f *fakeSource) UpdatedAt() (time.Time, bool) {
	return f.updatedAt, f.hasData
}
func (f *fakeSource) Temperature() (float64, error)          { return f.temp, f.err }
func (f *fakeSource) FeelsLikeTemperature() (float64, error) { return f.feel, f.err }
func (f *fakeSource) WindSpeed() (float64, error)            { return f.wind, f.err }
func (f *fakeSource) WindDirection() (string, error)         { return f.dir, f.err }

func allIDs() []string {
	var ids []string
	for _, k := range Kinds() {
		ids = append(ids, k.ID())
	}
	return ids
}

func TestNewDefaultsToTemperature(t *testing.T) {
	p, err := New(&fakeSource{}, "", nil, quietLogger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sensors := p.Sensors()
	if len(sensors) != 1 || sensors[0].Kind() != Temperature {
		t.Fatalf("expected only the temperature sensor, got %v", sensors)
	}
	if sensors[0].Name() != "weerlive Temperature" {
		t.Fatalf("unexpected name %q", sensors[0].Name())
	}
}

func TestNewRejectsUnknownIDs(t *testing.T) {
	_, err := New(&fakeSource{}, "home", []string{"temperature", "uv_index"}, quietLogger)
	if !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}

func TestNewCollapsesDuplicates(t *testing.T) {
	p, err := New(&fakeSource{}, "home", []string{"wind_speed", "wind_speed", "temperature"}, quietLogger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sensors := p.Sensors()
	if len(sensors) != 2 || sensors[0].Kind() != WindSpeed || sensors[1].Kind() != Temperature {
		t.Fatalf("unexpected sensors %v", sensors)
	}
}

func TestSensorLookup(t *testing.T) {
	p, err := New(&fakeSource{}, "home", []string{"temperature"}, quietLogger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := p.Sensor("temperature"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := p.Sensor("wind_speed"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if _, err := p.Sensor("pressure"); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}

func TestCurrentValueWithoutData(t *testing.T) {
	p, err := New(&fakeSource{temp: 20}, "home", allIDs(), quietLogger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, s := range p.Sensors() {
		if v, ok := s.CurrentValue(); ok || v != nil {
			t.Fatalf("%s: expected absent value, got %v", s.Kind(), v)
		}
	}
}

func TestCurrentValueExtraction(t *testing.T) {
	src := &fakeSource{hasData: true, temp: 18.34, feel: 16.96, wind: 12.25, dir: "ZW"}
	p, err := New(src, "home", allIDs(), quietLogger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := map[Kind]any{
		Temperature:          18.3,
		FeelsLikeTemperature: 17.0,
		WindSpeed:            12.25,
		WindDirection:        "ZW",
	}
	for _, s := range p.Sensors() {
		v, ok := s.CurrentValue()
		if !ok {
			t.Fatalf("%s: expected a value", s.Kind())
		}
		if v != want[s.Kind()] {
			t.Errorf("%s: got %v (%T), want %v", s.Kind(), v, v, want[s.Kind()])
		}
	}
}

func TestCurrentValueAccessorError(t *testing.T) {
	src := &fakeSource{hasData: true, err: weerlive.ErrParse}
	p, err := New(src, "home", []string{"temperature"}, quietLogger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s, _ := p.Sensor("temperature")
	if _, ok := s.CurrentValue(); ok {
		t.Fatal("expected absent value when the accessor fails")
	}
}

func TestReading(t *testing.T) {
	ts := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	src := &fakeSource{hasData: true, wind: 9, updatedAt: ts}
	p, err := New(src, "Garden", []string{"wind_speed"}, quietLogger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	readings := p.Readings()
	if len(readings) != 1 {
		t.Fatalf("expected one reading, got %d", len(readings))
	}
	r := readings[0]
	if r.Name != "Garden Wind speed" || r.Unit != "km/h" || r.Icon != "mdi:weather-windy" {
		t.Fatalf("unexpected reading %+v", r)
	}
	if r.State != 9.0 {
		t.Fatalf("unexpected state %v", r.State)
	}
	if r.Attributes["attribution"] != Attribution {
		t.Fatalf("unexpected attributes %v", r.Attributes)
	}
	if r.LastUpdated == nil || !r.LastUpdated.Equal(ts) {
		t.Fatalf("unexpected last updated %v", r.LastUpdated)
	}

	again, _ := p.Sensor("wind_speed")
	if again.UniqueID() != r.UniqueID {
		t.Fatal("unique id is not stable")
	}
	other, _ := New(src, "Roof", []string{"wind_speed"}, quietLogger)
	if other.Readings()[0].UniqueID == r.UniqueID {
		t.Fatal("unique id must depend on the name prefix")
	}
}

// End to end over a real client: the documented sample payload.
func TestProjectionOverClient(t *testing.T) {
	payloads := []string{
		`{"liveweer":[{"temp":"18.3","gtemp":"16.9","windkmh":"12","windr":"ZW"}]}`,
		`{"liveweer":[{"temp":"18.34"}]}`,
	}
	var n int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		i := atomic.AddInt32(&n, 1) - 1
		_, _ = io.WriteString(w, payloads[i])
	}))
	defer srv.Close()

	client := weerlive.NewClient(
		weerlive.ConnectionConfig{Latitude: 52.1, Longitude: 5.2, APIKey: "demo"},
		store.NewMemoryStore(),
		weerlive.WithBaseURL(srv.URL),
		weerlive.WithLogger(quietLogger),
	)
	p, err := New(client, "weerlive", allIDs(), quietLogger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, s := range p.Sensors() {
		if _, ok := s.CurrentValue(); ok {
			t.Fatalf("%s: expected no value before the first refresh", s.Kind())
		}
	}

	if err := client.Refresh(context.Background(), false); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	want := map[Kind]any{
		Temperature:          18.3,
		FeelsLikeTemperature: 16.9,
		WindSpeed:            12.0,
		WindDirection:        "ZW",
	}
	for _, s := range p.Sensors() {
		v, ok := s.CurrentValue()
		if !ok || v != want[s.Kind()] {
			t.Errorf("%s: got %v (%v), want %v", s.Kind(), v, ok, want[s.Kind()])
		}
	}

	if err := client.Refresh(context.Background(), false); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	temp, _ := p.Sensor("temperature")
	if v, _ := temp.CurrentValue(); v != 18.3 {
		t.Fatalf("expected 18.34 to round to 18.3, got %v", v)
	}
	dir, _ := p.Sensor("wind_direction")
	if _, ok := dir.CurrentValue(); ok {
		t.Fatal("expected wind direction to be absent when missing upstream")
	}
}
