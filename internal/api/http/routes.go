package httpapi

import (
	"context"
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/air-quality-gateway/internal/aqi"
)

var validate = validator.New()

// Gateway is the subset of aqi.Gateway the routes depend on.
type Gateway interface {
	GetNearestStation(ctx context.Context, latitude, longitude float64) (aqi.Reading, error)
	SearchStations(ctx context.Context, query string) ([]aqi.Reading, error)
	ResolvePlace(ctx context.Context, city, country string) (aqi.Reading, error)
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, gateway Gateway) {
	v1 := app.Group("/api/v1")

	v1.Get("/aqi/nearest", func(c *fiber.Ctx) error {
		q, err := parsePointQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		reading, err := gateway.GetNearestStation(c.UserContext(), q.latitude, q.longitude)
		if err != nil {
			return gatewayError(err)
		}
		return c.JSON(aqi.Assess(reading))
	})

	v1.Get("/aqi/search", func(c *fiber.Ctx) error {
		q := searchQuery{Keyword: c.Query("q")}
		if err := validate.Struct(q); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		readings, err := gateway.SearchStations(c.UserContext(), q.Keyword)
		if err != nil {
			return gatewayError(err)
		}

		results := make([]aqi.Assessment, 0, len(readings))
		for _, r := range readings {
			results = append(results, aqi.Assess(r))
		}
		return c.JSON(fiber.Map{
			"query":   q.Keyword,
			"count":   len(results),
			"results": results,
		})
	})

	v1.Get("/aqi/place", func(c *fiber.Ctx) error {
		q := placeQuery{City: c.Query("city"), Country: c.Query("country")}
		if err := validate.Struct(q); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		reading, err := gateway.ResolvePlace(c.UserContext(), q.City, q.Country)
		if err != nil {
			return gatewayError(err)
		}
		return c.JSON(aqi.Assess(reading))
	})
}

// ErrorHandler renders every error as {"error": true, "message": ...}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": err.Error(),
	})
}

// gatewayError maps the gateway's error taxonomy onto HTTP statuses.
func gatewayError(err error) error {
	var (
		upstreamErr *aqi.UpstreamError
		networkErr  *aqi.NetworkError
	)
	switch {
	case errors.Is(err, aqi.ErrPlaceResolverDisabled):
		return fiber.NewError(fiber.StatusNotImplemented, err.Error())
	case errors.As(err, &upstreamErr):
		return fiber.NewError(fiber.StatusBadGateway, upstreamErr.Error())
	case errors.As(err, &networkErr):
		return fiber.NewError(fiber.StatusServiceUnavailable, "air quality provider unreachable")
	default:
		return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch air quality data")
	}
}

// pointQueryParams holds the raw lat/lon query values. Only syntax is
// checked; range checking is left to the provider.
type pointQueryParams struct {
	Lat string `validate:"required,numeric"`
	Lon string `validate:"required,numeric"`
}

type pointQuery struct {
	latitude  float64
	longitude float64
}

func parsePointQuery(c *fiber.Ctx) (pointQuery, error) {
	raw := pointQueryParams{Lat: c.Query("lat"), Lon: c.Query("lon")}
	if err := validate.Struct(raw); err != nil {
		return pointQuery{}, err
	}

	lat, err := strconv.ParseFloat(raw.Lat, 64)
	if err != nil {
		return pointQuery{}, err
	}
	lon, err := strconv.ParseFloat(raw.Lon, 64)
	if err != nil {
		return pointQuery{}, err
	}
	return pointQuery{latitude: lat, longitude: lon}, nil
}

type searchQuery struct {
	Keyword string `validate:"required"`
}

type placeQuery struct {
	City    string `validate:"required"`
	Country string
}
