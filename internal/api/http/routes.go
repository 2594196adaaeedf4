package httpapi

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/environmental-data-aggregation/internal/environment"
	"github.com/i474232898/environmental-data-aggregation/internal/query"
	"github.com/i474232898/environmental-data-aggregation/internal/region"
)

var validate = validator.New()

// Service is the engine surface the HTTP layer needs.
type Service interface {
	GetAggregatedState(ctx context.Context, r region.Region) (environment.AggregatedState, error)
	Ask(ctx context.Context, text string, r region.Region) (query.Answer, error)
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service Service, catalog *region.Catalog, sessions *environment.Sessions) {
	v1 := app.Group("/api/v1")

	v1.Get("/regions", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"regions": catalog.All()})
	})

	v1.Get("/state", func(c *fiber.Ctx) error {
		q, err := parseRegionQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		r, err := q.resolve(c.UserContext(), catalog)
		if err != nil {
			return toHTTPError(err)
		}

		state, err := service.GetAggregatedState(c.UserContext(), r)
		if err != nil {
			return toHTTPError(err)
		}
		return c.JSON(state)
	})

	v1.Post("/ask", func(c *fiber.Ctx) error {
		var req askRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		r, err := req.regionQuery().resolve(c.UserContext(), catalog)
		if err != nil {
			return toHTTPError(err)
		}

		answer, err := service.Ask(c.UserContext(), req.Question, r)
		if err != nil {
			return toHTTPError(err)
		}
		return c.JSON(answer)
	})

	v1.Put("/sessions/:id/region", func(c *fiber.Ctx) error {
		id, err := sessionID(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		var req selectRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		q := req.regionQuery()
		if err := validate.Struct(q); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		r, err := q.resolve(c.UserContext(), catalog)
		if err != nil {
			return toHTTPError(err)
		}

		sel := sessions.Get(id)
		if _, err := sel.Select(c.UserContext(), r); err != nil {
			return toHTTPError(err)
		}
		return c.JSON(sel.Current())
	})

	v1.Get("/sessions/:id", func(c *fiber.Ctx) error {
		id, err := sessionID(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		sel, ok := sessions.Lookup(id)
		if !ok {
			return fiber.NewError(fiber.StatusNotFound, "unknown session")
		}
		return c.JSON(sel.Current())
	})
}

// ErrorHandler renders every error as {"error": true, "message": ...}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": err.Error(),
	})
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, region.ErrInvalidRegion):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, region.ErrUnknownRegion):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, environment.ErrNoData):
		return fiber.NewError(fiber.StatusServiceUnavailable, environment.ErrNoData.Error())
	case errors.Is(err, environment.ErrSuperseded):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.NewError(fiber.StatusGatewayTimeout, "request timed out")
	default:
		return fiber.NewError(fiber.StatusInternalServerError, "failed to build environmental state")
	}
}

// regionQuery identifies a region by name or by coordinates.
type regionQuery struct {
	Region string   `validate:"required_without_all=Lat Lon,max=100"`
	Lat    *float64 `validate:"required_without=Region,omitempty,latitude"`
	Lon    *float64 `validate:"required_without=Region,omitempty,longitude"`
}

func (q regionQuery) resolve(ctx context.Context, catalog *region.Catalog) (region.Region, error) {
	if name := strings.TrimSpace(q.Region); name != "" {
		return catalog.Resolve(ctx, name)
	}
	return catalog.ByCoordinates(*q.Lat, *q.Lon)
}

func parseRegionQuery(c *fiber.Ctx) (regionQuery, error) {
	var q regionQuery

	q.Region = c.Query("region")

	var err error
	if q.Lat, err = parseCoordinate(c.Query("lat")); err != nil {
		return q, errors.New("lat must be a number")
	}
	if q.Lon, err = parseCoordinate(c.Query("lon")); err != nil {
		return q, errors.New("lon must be a number")
	}

	if err := validate.Struct(q); err != nil {
		return q, err
	}
	return q, nil
}

func parseCoordinate(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

type selectRequest struct {
	Region string   `json:"region"`
	Lat    *float64 `json:"lat"`
	Lon    *float64 `json:"lon"`
}

func (r selectRequest) regionQuery() regionQuery {
	return regionQuery{Region: r.Region, Lat: r.Lat, Lon: r.Lon}
}

type askRequest struct {
	Question string   `json:"question" validate:"required,max=500"`
	Region   string   `json:"region" validate:"required_without_all=Lat Lon,max=100"`
	Lat      *float64 `json:"lat" validate:"required_without=Region,omitempty,latitude"`
	Lon      *float64 `json:"lon" validate:"required_without=Region,omitempty,longitude"`
}

func (r askRequest) regionQuery() regionQuery {
	return regionQuery{Region: r.Region, Lat: r.Lat, Lon: r.Lon}
}

func sessionID(c *fiber.Ctx) (string, error) {
	id := c.Params("id")
	if err := validate.Var(id, "required,max=64,printascii"); err != nil {
		return "", errors.New("invalid session id")
	}
	return id, nil
}
