package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelvins/geocoder"

	"github.com/i474232898/weerlive/internal/publisher"
	"github.com/i474232898/weerlive/internal/scheduler"
	"github.com/i474232898/weerlive/internal/sensor"
	"github.com/i474232898/weerlive/internal/weerlive"
)

// ErrConfig marks configuration that cannot be used to start the service.
var ErrConfig = errors.New("invalid configuration")

var validate = validator.New()

type AppConfig struct {
	APIKey string `validate:"required"`

	Latitude  float64 `validate:"latitude"`
	Longitude float64 `validate:"longitude"`

	// MonitoredConditions lists the sensor kinds to expose.
	MonitoredConditions []string `validate:"min=1,dive,oneof=temperature temperature_feels_like wind_speed wind_direction"`

	// Name prefixes every sensor display name.
	Name string `validate:"required"`

	UpdateInterval time.Duration `validate:"gt=0"`
	HTTPTimeout    time.Duration `validate:"gt=0"`

	Port string `validate:"required,numeric"`

	MQTT publisher.Config

	LogLevel slog.Level
}

// Connection returns the parameters the Weerlive client needs.
func (c *AppConfig) Connection() weerlive.ConnectionConfig {
	return weerlive.ConnectionConfig{
		Latitude:  c.Latitude,
		Longitude: c.Longitude,
		APIKey:    c.APIKey,
	}
}

// Coordinates is a resolved location.
type Coordinates struct {
	Latitude  float64
	Longitude float64
}

// GeocodeFunc turns a city and country into coordinates.
type GeocodeFunc func(apiKey, city, country string) (Coordinates, error)

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("config: no .env file loaded", "error", err)
	}
	return load(os.Getenv, geocodeCity)
}

func load(getenv func(string) string, geocode GeocodeFunc) (*AppConfig, error) {
	cfg := &AppConfig{
		APIKey: strings.TrimSpace(getenv("WEERLIVE_API_KEY")),
		Name:   getenvDefault(getenv, "WEERLIVE_NAME", sensor.DefaultName),
		Port:   getenvDefault(getenv, "PORT", "8080"),
		MQTT: publisher.Config{
			Broker:      getenv("MQTT_BROKER"),
			ClientID:    getenv("MQTT_CLIENT_ID"),
			TopicPrefix: getenvDefault(getenv, "MQTT_TOPIC_PREFIX", sensor.DefaultName),
			Username:    getenv("MQTT_USERNAME"),
			Password:    getenv("MQTT_PASSWORD"),
		},
	}

	cfg.MonitoredConditions = splitList(getenvDefault(getenv, "WEERLIVE_MONITORED_CONDITIONS", sensor.Temperature.ID()))

	var err error
	if cfg.UpdateInterval, err = getenvDuration(getenv, "UPDATE_INTERVAL", scheduler.DefaultInterval); err != nil {
		return nil, err
	}
	if cfg.HTTPTimeout, err = getenvDuration(getenv, "HTTP_TIMEOUT", weerlive.DefaultTimeout); err != nil {
		return nil, err
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(getenvDefault(getenv, "LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("%w: LOG_LEVEL: %v", ErrConfig, err)
	}

	coords, err := resolveLocation(getenv, geocode)
	if err != nil {
		return nil, err
	}
	cfg.Latitude = coords.Latitude
	cfg.Longitude = coords.Longitude

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	return cfg, nil
}

// resolveLocation picks coordinates in order: explicit override, the host
// default, then a geocoded home city. Latitude and longitude must be given
// together.
func resolveLocation(getenv func(string) string, geocode GeocodeFunc) (Coordinates, error) {
	if c, ok, err := coordinatePair(getenv, "WEERLIVE_LATITUDE", "WEERLIVE_LONGITUDE"); err != nil || ok {
		return c, err
	}
	if c, ok, err := coordinatePair(getenv, "HOME_LATITUDE", "HOME_LONGITUDE"); err != nil || ok {
		return c, err
	}

	city := getenv("HOME_CITY")
	apiKey := getenv("GEOCODER_API_KEY")
	if city != "" && apiKey != "" && geocode != nil {
		c, err := geocode(apiKey, city, getenv("HOME_COUNTRY"))
		if err != nil {
			return Coordinates{}, fmt.Errorf("%w: geocoding %q: %v", ErrConfig, city, err)
		}
		return c, nil
	}

	return Coordinates{}, fmt.Errorf("%w: latitude or longitude not set", ErrConfig)
}

func coordinatePair(getenv func(string) string, latKey, lonKey string) (Coordinates, bool, error) {
	latStr := strings.TrimSpace(getenv(latKey))
	lonStr := strings.TrimSpace(getenv(lonKey))

	switch {
	case latStr == "" && lonStr == "":
		return Coordinates{}, false, nil
	case latStr == "" || lonStr == "":
		return Coordinates{}, false, fmt.Errorf("%w: %s and %s must exist together", ErrConfig, latKey, lonKey)
	}

	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return Coordinates{}, false, fmt.Errorf("%w: invalid %s: %v", ErrConfig, latKey, err)
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return Coordinates{}, false, fmt.Errorf("%w: invalid %s: %v", ErrConfig, lonKey, err)
	}
	return Coordinates{Latitude: lat, Longitude: lon}, true, nil
}

func geocodeCity(apiKey, city, country string) (Coordinates, error) {
	geocoder.ApiKey = apiKey
	loc, err := geocoder.Geocoding(geocoder.Address{City: city, Country: country})
	if err != nil {
		return Coordinates{}, err
	}
	return Coordinates{Latitude: loc.Latitude, Longitude: loc.Longitude}, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenvDefault(getenv func(string) string, key, def string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return def
}

func getenvDuration(getenv func(string) string, key string, def time.Duration) (time.Duration, error) {
	v := getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s: %v", ErrConfig, key, err)
	}
	return d, nil
}
