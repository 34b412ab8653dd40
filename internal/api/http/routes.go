// Package httpapi publishes the normalized reading set and the refresh
// contract over HTTP for whatever registers entities on top of it.
package httpapi

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/hweber/emax-station/internal/coordinator"
	"github.com/hweber/emax-station/internal/emax"
	"github.com/hweber/emax-station/internal/store"
)

var validate = validator.New()

// VendorAPI is the slice of the session client the route layer needs for
// passthrough endpoints.
type VendorAPI interface {
	FetchHistory(ctx context.Context, startDate, endDate string) (map[string]any, error)
	ListDevices(ctx context.Context) ([]map[string]any, error)
	Profile() map[string]any
}

// Options carries the dependencies and display metadata for the routes.
type Options struct {
	Coordinator *coordinator.Coordinator
	Vendor      VendorAPI
	Store       *store.MemoryStore

	// TemperatureUnit is echoed as display metadata; values are always
	// normalized the same way regardless of it.
	TemperatureUnit string

	// RequestTimeout bounds outbound vendor calls made on behalf of a
	// request.
	RequestTimeout time.Duration
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, opts Options) {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = emax.DefaultTimeout
	}

	v1 := app.Group("/api/v1")

	v1.Get("/readings", func(c *fiber.Ctx) error {
		obs, ok := opts.Coordinator.Latest()
		if !ok {
			return fiber.NewError(fiber.StatusNotFound, "no station data yet")
		}
		return c.JSON(fiber.Map{
			"timestamp":       obs.Timestamp,
			"channels":        obs.Channels,
			"readings":        obs.Readings,
			"temperatureUnit": opts.TemperatureUnit,
		})
	})

	v1.Get("/readings/:channel", func(c *fiber.Ctx) error {
		channel, err := strconv.Atoi(c.Params("channel"))
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "channel must be an integer")
		}

		obs, ok := opts.Coordinator.Latest()
		if !ok {
			return fiber.NewError(fiber.StatusNotFound, "no station data yet")
		}

		known := false
		for _, ch := range obs.Channels {
			if ch == channel {
				known = true
				break
			}
		}
		if !known {
			return fiber.NewError(fiber.StatusNotFound, "unknown channel")
		}

		readings := obs.Readings[:0:0]
		for _, r := range obs.Readings {
			if r.Channel == channel {
				readings = append(readings, r)
			}
		}
		return c.JSON(fiber.Map{
			"timestamp": obs.Timestamp,
			"channel":   channel,
			"readings":  readings,
		})
	})

	v1.Get("/channels", func(c *fiber.Ctx) error {
		obs, ok := opts.Coordinator.Latest()
		if !ok {
			return fiber.NewError(fiber.StatusNotFound, "no station data yet")
		}
		return c.JSON(fiber.Map{"channels": obs.Channels})
	})

	v1.Post("/refresh", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.Context(), opts.RequestTimeout)
		defer cancel()

		if _, err := opts.Coordinator.Refresh(ctx); err != nil {
			var re *coordinator.RefreshError
			if errors.As(err, &re) {
				return c.Status(refreshStatus(re)).JSON(fiber.Map{
					"error":   true,
					"kind":    re.Kind.String(),
					"message": re.Error(),
				})
			}
			return fiber.NewError(fiber.StatusBadGateway, err.Error())
		}
		return c.JSON(fiber.Map{"refreshed": true})
	})

	v1.Get("/history", func(c *fiber.Ctx) error {
		var req historyQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		ctx, cancel := context.WithTimeout(c.Context(), opts.RequestTimeout)
		defer cancel()

		content, err := opts.Vendor.FetchHistory(ctx, req.Start, req.End)
		if err != nil {
			return fiber.NewError(vendorStatus(err), "failed to fetch history")
		}
		return c.JSON(fiber.Map{
			"start":   req.Start,
			"end":     req.End,
			"history": content,
		})
	})

	v1.Get("/devices", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.Context(), opts.RequestTimeout)
		defer cancel()

		devices, err := opts.Vendor.ListDevices(ctx)
		if err != nil {
			return fiber.NewError(vendorStatus(err), "failed to fetch devices")
		}
		return c.JSON(fiber.Map{"devices": devices})
	})

	v1.Get("/device", func(c *fiber.Ctx) error {
		profile := opts.Vendor.Profile()
		if profile == nil {
			return fiber.NewError(fiber.StatusNotFound, "no profile yet; not logged in")
		}
		delete(profile, "token")
		return c.JSON(profile)
	})

	v1.Get("/observations", func(c *fiber.Ctx) error {
		var req observationQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		observations, err := opts.Store.Range(req.From, req.To)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no observations for requested range")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to query observations")
		}
		return c.JSON(fiber.Map{
			"from":         req.From,
			"to":           req.To,
			"observations": observations,
		})
	})
}

// refreshStatus maps a classified refresh failure onto an HTTP status.
func refreshStatus(re *coordinator.RefreshError) int {
	if re.Kind == coordinator.FailureTimeout {
		return fiber.StatusGatewayTimeout
	}
	return fiber.StatusBadGateway
}

// vendorStatus maps a client error onto an HTTP status.
func vendorStatus(err error) int {
	switch {
	case errors.Is(err, emax.ErrTimeout):
		return fiber.StatusGatewayTimeout
	case errors.Is(err, emax.ErrAuth):
		return fiber.StatusUnauthorized
	default:
		return fiber.StatusBadGateway
	}
}

// historyQuery holds the vendor history date range (vendor date format).
type historyQuery struct {
	Start string `validate:"required,datetime=2006-01-02"`
	End   string `validate:"required,datetime=2006-01-02"`
}

func (h *historyQuery) bind(c *fiber.Ctx) error {
	h.Start = c.Query("start")
	h.End = c.Query("end")
	if err := validate.Struct(h); err != nil {
		return err
	}

	start, _ := time.Parse("2006-01-02", h.Start)
	end, _ := time.Parse("2006-01-02", h.End)
	if end.Before(start) {
		return errors.New("end must not be before start")
	}
	return nil
}

// observationQuery holds the local history time range.
type observationQuery struct {
	From time.Time `validate:"required"`
	To   time.Time `validate:"required,gtefield=From"`
}

func (o *observationQuery) bind(c *fiber.Ctx) error {
	fromStr := c.Query("from")
	toStr := c.Query("to")
	if fromStr == "" || toStr == "" {
		return errors.New("from and to query parameters are required")
	}

	from, err := parseTime(fromStr)
	if err != nil {
		return err
	}
	to, err := parseTime(toStr)
	if err != nil {
		return err
	}

	o.From = from
	o.To = to
	return validate.Struct(o)
}

// parseTime tries to parse either RFC3339 or Unix seconds.
func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339 or unix seconds")
}
