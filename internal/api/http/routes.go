package httpapi

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/weerlive/internal/sensor"
	"github.com/i474232898/weerlive/internal/weerlive"
)

var validate = validator.New()

// Refresher is implemented by *weerlive.Client.
type Refresher interface {
	Refresh(ctx context.Context, guarded bool) error
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, projection *sensor.Projection, client Refresher) {
	v1 := app.Group("/api/v1")

	v1.Get("/sensors", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"sensors": projection.Readings(),
		})
	})

	v1.Get("/sensors/:id", func(c *fiber.Ctx) error {
		q := sensorQuery{ID: c.Params("id")}
		if err := validate.Struct(q); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "unknown sensor kind; expected one of: "+strings.Join(kindIDs(), ", "))
		}

		s, err := projection.Sensor(q.ID)
		if err != nil {
			if errors.Is(err, sensor.ErrNotConfigured) {
				return fiber.NewError(fiber.StatusNotFound, "sensor is not configured")
			}
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		return c.JSON(s.Reading())
	})

	// Manual refresh runs unguarded so the caller sees upstream failures.
	v1.Post("/refresh", func(c *fiber.Ctx) error {
		if err := client.Refresh(c.UserContext(), false); err != nil {
			switch {
			case errors.Is(err, weerlive.ErrNetwork):
				return fiber.NewError(fiber.StatusBadGateway, "weather service unavailable")
			case errors.Is(err, weerlive.ErrParse):
				return fiber.NewError(fiber.StatusBadGateway, "weather service returned malformed data")
			default:
				return fiber.NewError(fiber.StatusInternalServerError, "failed to refresh weather data")
			}
		}

		return c.JSON(fiber.Map{
			"sensors": projection.Readings(),
		})
	})
}

// sensorQuery holds the path parameter identifying a sensor.
type sensorQuery struct {
	ID string `validate:"required,oneof=temperature temperature_feels_like wind_speed wind_direction"`
}

func kindIDs() []string {
	kinds := sensor.Kinds()
	ids := make([]string, 0, len(kinds))
	for _, k := range kinds {
		ids = append(ids, k.ID())
	}
	return ids
}
