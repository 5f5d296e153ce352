package http

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/ANIKETSHETTY47/grid-integrity-core/internal/domain"
	"github.com/ANIKETSHETTY47/grid-integrity-core/internal/service"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ErrorHandler maps domain errors to HTTP responses. It is installed as the
// fiber app's error handler.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var (
		ve domain.ValidationError
		nf domain.NotFoundError
		qe domain.QuotaExceededError
		fe *fiber.Error
	)
	switch {
	case errors.As(err, &ve):
		return c.Status(fiber.StatusBadRequest).JSON(errorBody{"VALIDATION_ERROR", ve.Error()})
	case errors.As(err, &nf):
		return c.Status(fiber.StatusNotFound).JSON(errorBody{"NOT_FOUND", nf.Error()})
	case errors.As(err, &qe):
		return c.Status(fiber.StatusConflict).JSON(errorBody{"QUOTA_EXCEEDED", qe.Error()})
	case errors.As(err, &fe):
		return c.Status(fe.Code).JSON(errorBody{"HTTP_ERROR", fe.Message})
	}
	log.Error().Err(err).Str("method", c.Method()).Str("path", c.Path()).Msg("request failed")
	return c.Status(fiber.StatusInternalServerError).JSON(errorBody{"INTERNAL", "internal error"})
}

func Register(app *fiber.App, svcs *service.Services) {
	app.Get("/health", func(c *fiber.Ctx) error { return c.SendString("ok") })

	g := app.Group("/api/v1")

	g.Post("/telemetry", func(c *fiber.Ctx) error {
		var in service.TelemetryInput
		if err := c.BodyParser(&in); err != nil {
			return domain.Invalid("body", err.Error())
		}
		res, err := svcs.Telemetry.Ingest(c.UserContext(), in)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(res)
	})

	g.Get("/meters/:id/quota", func(c *fiber.Ctx) error {
		required := 0.0
		if raw := c.Query("requiredKwh"); raw != "" {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return domain.Invalid("requiredKwh", "not a number")
			}
			required = v
		}
		st, err := svcs.Quota.CheckQuota(c.UserContext(), c.Params("id"), required)
		if err != nil {
			return err
		}
		return c.JSON(st)
	})

	g.Post("/meters/:id/quota/consume", func(c *fiber.Ctx) error {
		var body struct {
			KWh float64 `json:"kwh"`
		}
		if err := c.BodyParser(&body); err != nil {
			return domain.Invalid("body", err.Error())
		}
		res, err := svcs.Quota.ConsumeQuota(c.UserContext(), c.Params("id"), body.KWh)
		if err != nil {
			return err
		}
		return c.JSON(res)
	})

	g.Post("/meters/:id/signature-check", func(c *fiber.Ctx) error {
		res, err := svcs.Telemetry.RunSignatureCheck(c.UserContext(), c.Params("id"))
		if err != nil {
			return err
		}
		return c.JSON(res)
	})

	g.Post("/zones/:id/dispatch", func(c *fiber.Ctx) error {
		var req service.DispatchRequest
		if err := c.BodyParser(&req); err != nil {
			return domain.Invalid("body", err.Error())
		}
		req.ZoneID = c.Params("id")
		res, err := svcs.Dispatch.Dispatch(c.UserContext(), req)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusAccepted).JSON(res)
	})

	g.Get("/zones/:id/dispatch", func(c *fiber.Ctx) error {
		items, err := svcs.Dispatch.ListCommands(c.UserContext(), c.Params("id"), c.QueryInt("limit", 0))
		if err != nil {
			return err
		}
		return c.JSON(items)
	})

	g.Get("/dispatch/:id", func(c *fiber.Ctx) error {
		cmd, err := svcs.Dispatch.GetCommand(c.UserContext(), c.Params("id"))
		if err != nil {
			return err
		}
		return c.JSON(cmd)
	})

	g.Post("/zones/:id/injected-energy", func(c *fiber.Ctx) error {
		var body struct {
			EnergyKWh  float64   `json:"energyKwh"`
			MeasuredAt time.Time `json:"measuredAt"`
			Source     string    `json:"source"`
		}
		if err := c.BodyParser(&body); err != nil {
			return domain.Invalid("body", err.Error())
		}
		rd, err := svcs.Reconciliation.RecordInjectedEnergy(c.UserContext(), c.Params("id"), body.EnergyKWh, body.MeasuredAt, body.Source)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(rd)
	})

	g.Post("/reconciliation/runs", func(c *fiber.Ctx) error {
		sum, err := svcs.Reconciliation.RunReconciliation(c.UserContext())
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(sum)
	})

	g.Get("/reconciliation/runs/:id/results", func(c *fiber.Ctx) error {
		items, err := svcs.Reconciliation.ListResults(c.UserContext(), c.Params("id"))
		if err != nil {
			return err
		}
		return c.JSON(items)
	})
}

// RegisterMetrics exposes the Prometheus registry at /metrics.
func RegisterMetrics(app *fiber.App, g prometheus.Gatherer) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(g, promhttp.HandlerOpts{})))
}
