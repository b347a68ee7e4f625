package sensor

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const (
	// Attribution is attached to every reading.
	Attribution = "Data provided by Meteoserver"

	DefaultName = "weerlive"
)

// ErrNotConfigured is returned when a valid kind was not part of the
// configured sensor list.
var ErrNotConfigured = errors.New("sensor not configured")

// Source is the data the projection reads from. *weerlive.Client implements it.
type Source interface {
	HasData() bool
	UpdatedAt() (time.Time, bool)
	Temperature() (float64, error)
	FeelsLikeTemperature() (float64, error)
	WindSpeed() (float64, error)
	WindDirection() (string, error)
}

// Reading is what the host sees for one sensor.
type Reading struct {
	Kind        Kind              `json:"id"`
	UniqueID    string            `json:"unique_id"`
	Name        string            `json:"name"`
	Unit        string            `json:"unit_of_measurement,omitempty"`
	Icon        string            `json:"icon"`
	State       any               `json:"state"`
	Attributes  map[string]string `json:"attributes"`
	LastUpdated *time.Time        `json:"last_updated,omitempty"`
}

// Projection is the set of configured sensors over one Source.
type Projection struct {
	source  Source
	sensors []*Sensor
	byKind  map[Kind]*Sensor
}

// New validates ids against the known kinds and builds one Sensor per
// distinct id. An empty list selects the temperature sensor only.
func New(source Source, name string, ids []string, logger *slog.Logger) (*Projection, error) {
	if source == nil {
		return nil, errors.New("sensor: nil source")
	}
	if name == "" {
		name = DefaultName
	}
	if logger == nil {
		logger = slog.Default()
	}
	if len(ids) == 0 {
		ids = []string{Temperature.ID()}
	}

	p := &Projection{
		source: source,
		byKind: make(map[Kind]*Sensor, len(ids)),
	}
	for _, id := range ids {
		k, err := ParseKind(id)
		if err != nil {
			return nil, err
		}
		if _, dup := p.byKind[k]; dup {
			continue
		}
		s := &Sensor{
			kind:   k,
			source: source,
			prefix: name,
			logger: logger,
		}
		p.sensors = append(p.sensors, s)
		p.byKind[k] = s
	}
	return p, nil
}

// Sensors returns the configured sensors in configuration order.
func (p *Projection) Sensors() []*Sensor {
	out := make([]*Sensor, len(p.sensors))
	copy(out, p.sensors)
	return out
}

// Sensor looks up a configured sensor by identifier.
func (p *Projection) Sensor(id string) (*Sensor, error) {
	k, err := ParseKind(id)
	if err != nil {
		return nil, err
	}
	s, ok := p.byKind[k]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotConfigured, id)
	}
	return s, nil
}

// Readings returns a reading for every configured sensor.
func (p *Projection) Readings() []Reading {
	out := make([]Reading, 0, len(p.sensors))
	for _, s := range p.sensors {
		out = append(out, s.Reading())
	}
	return out
}

// Sensor is a read-only view of one kind over the shared Source.
type Sensor struct {
	kind   Kind
	source Source
	prefix string
	logger *slog.Logger
}

func (s *Sensor) Kind() Kind { return s.kind }

func (s *Sensor) Descriptor() Descriptor { return s.kind.Descriptor() }

// Name is the display name: prefix followed by the descriptor name.
func (s *Sensor) Name() string {
	return s.prefix + " " + s.kind.Descriptor().Name
}

// UniqueID is stable across restarts for the same prefix and kind.
func (s *Sensor) UniqueID() string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("weerlive:"+s.prefix+":"+s.kind.ID())).String()
}

// Attributes is the constant metadata shown next to every reading.
func (s *Sensor) Attributes() map[string]string {
	return map[string]string{"attribution": Attribution}
}

// CurrentValue returns the value of the sensor, or false when there is no
// data yet. Temperatures are rounded to one decimal, wind speed is returned
// as is and wind direction as text.
func (s *Sensor) CurrentValue() (any, bool) {
	if !s.source.HasData() {
		return nil, false
	}

	v, err := s.kind.spec().extract(s.source)
	if err != nil {
		s.logger.Debug("sensor: value unavailable", "sensor", s.kind.ID(), "error", err)
		return nil, false
	}
	return v, true
}

// Reading collects everything the host needs to render the sensor.
func (s *Sensor) Reading() Reading {
	desc := s.kind.Descriptor()
	r := Reading{
		Kind:       s.kind,
		UniqueID:   s.UniqueID(),
		Name:       s.Name(),
		Unit:       desc.Unit,
		Icon:       desc.Icon,
		Attributes: s.Attributes(),
	}
	if v, ok := s.CurrentValue(); ok {
		r.State = v
	}
	if ts, ok := s.source.UpdatedAt(); ok {
		r.LastUpdated = &ts
	}
	return r
}
