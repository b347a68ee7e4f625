package sensor

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrUnknownKind is returned for sensor identifiers outside the supported set.
var ErrUnknownKind = errors.New("unknown sensor kind")

// Kind is one of the supported derived measurements.
type Kind int

const (
	Temperature Kind = iota
	FeelsLikeTemperature
	WindSpeed
	WindDirection

	numKinds
)

// Descriptor is the static metadata for a sensor kind.
type Descriptor struct {
	Name string `json:"name"`
	Unit string `json:"unit"`
	Icon string `json:"icon"`
}

const (
	unitCelsius = "°C"
	unitKMH     = "km/h"

	iconThermometer   = "mdi:thermometer"
	iconWindSpeed     = "mdi:weather-windy"
	iconWindDirection = "mdi:windsock"
)

type kindSpec struct {
	id         string
	descriptor Descriptor
	extract    func(Source) (any, error)
}

var kinds = [numKinds]kindSpec{
	Temperature: {
		id:         "temperature",
		descriptor: Descriptor{Name: "Temperature", Unit: unitCelsius, Icon: iconThermometer},
		extract:    rounded(Source.Temperature),
	},
	FeelsLikeTemperature: {
		id:         "temperature_feels_like",
		descriptor: Descriptor{Name: "Temperature (feels like)", Unit: unitCelsius, Icon: iconThermometer},
		extract:    rounded(Source.FeelsLikeTemperature),
	},
	WindSpeed: {
		id:         "wind_speed",
		descriptor: Descriptor{Name: "Wind speed", Unit: unitKMH, Icon: iconWindSpeed},
		extract: func(s Source) (any, error) {
			return s.WindSpeed()
		},
	},
	WindDirection: {
		id:         "wind_direction",
		descriptor: Descriptor{Name: "Wind direction", Unit: "", Icon: iconWindDirection},
		extract: func(s Source) (any, error) {
			return s.WindDirection()
		},
	},
}

func rounded(read func(Source) (float64, error)) func(Source) (any, error) {
	return func(s Source) (any, error) {
		v, err := read(s)
		if err != nil {
			return nil, err
		}
		return round1(v), nil
	}
}

// round1 rounds the exact binary value to one decimal, ties to even.
func round1(v float64) float64 {
	f, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 1, 64), 64)
	return f
}

// Kinds returns every supported kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, 0, numKinds)
	for k := Kind(0); k < numKinds; k++ {
		out = append(out, k)
	}
	return out
}

// ParseKind maps a configuration identifier such as "wind_speed" to a Kind.
func ParseKind(id string) (Kind, error) {
	for k := Kind(0); k < numKinds; k++ {
		if kinds[k].id == id {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, id)
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool {
	return k >= 0 && k < numKinds
}

// ID is the configuration identifier of k.
func (k Kind) ID() string {
	return k.spec().id
}

func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return k.ID()
}

// Descriptor returns the static metadata of k.
func (k Kind) Descriptor() Descriptor {
	return k.spec().descriptor
}

func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, int(k))
	}
	return []byte(k.ID()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// spec panics for out-of-range kinds; every Kind reaching here came from
// ParseKind or the constants above.
func (k Kind) spec() kindSpec {
	if !k.Valid() {
		panic(fmt.Sprintf("sensor: invalid kind %d", int(k)))
	}
	return kinds[k]
}
