package tracking

import (
	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"

	"backend-revly/internal/auth"
	"backend-revly/internal/shared/gps"
)

type permissionRequest struct {
	Granted bool `json:"granted"`
}

type batchRequest struct {
	Fixes []gps.Fix `json:"fixes"`
}

type restoreRequest struct {
	BackgroundActive bool      `json:"background_active"`
	Fixes            []gps.Fix `json:"fixes"`
}

type statusResponse struct {
	Status State `json:"status"`
}

// remoteTask stands in for a device-side background task reported over
// HTTP. Stopping it is surfaced to the device in the next response.
type remoteTask struct {
	active  bool
	stopped bool
}

func (t *remoteTask) Active() bool { return t.active && !t.stopped }
func (t *remoteTask) Stop()        { t.stopped = true }

// RegisterRoutes mounts the per-device tracking API. Requests are only
// accepted for the device named in the caller's token.
func RegisterRoutes(r fiber.Router, reg *Registry, authMiddleware fiber.Handler) {
	g := r.Group("/:device", authMiddleware, auth.RequireDevice("device"))

	g.Post("/permission", func(c *fiber.Ctx) error {
		table := reg.Permissions()
		if table == nil {
			return fiber.NewError(fiber.StatusNotImplemented, "permissions are managed externally")
		}
		var req permissionRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid body")
		}
		table.Set(c.Params("device"), req.Granted)
		return c.JSON(req)
	})

	g.Post("/start", func(c *fiber.Ctx) error {
		state, err := reg.Manager(c.Params("device")).Start(c.Context())
		if err != nil {
			return trackingError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(statusResponse{Status: state})
	})

	g.Post("/pause", func(c *fiber.Ctx) error {
		state, err := reg.Manager(c.Params("device")).Pause()
		if err != nil {
			return trackingError(err)
		}
		return c.JSON(statusResponse{Status: state})
	})

	g.Post("/resume", func(c *fiber.Ctx) error {
		state, err := reg.Manager(c.Params("device")).Resume()
		if err != nil {
			return trackingError(err)
		}
		return c.JSON(statusResponse{Status: state})
	})

	g.Post("/reset", func(c *fiber.Ctx) error {
		state := reg.Manager(c.Params("device")).Reset(c.Context())
		return c.JSON(statusResponse{Status: state})
	})

	g.Post("/stop", func(c *fiber.Ctx) error {
		rec, err := reg.Manager(c.Params("device")).Stop(c.Context())
		if err != nil {
			return trackingError(err)
		}
		return c.JSON(rec)
	})

	g.Post("/fixes", func(c *fiber.Ctx) error {
		var fix gps.Fix
		if err := c.BodyParser(&fix); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid fix")
		}
		return c.JSON(reg.Manager(c.Params("device")).Ingest(fix))
	})

	g.Post("/fixes/batch", func(c *fiber.Ctx) error {
		var req batchRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid batch")
		}
		return c.JSON(reg.Manager(c.Params("device")).DrainBackground(req.Fixes))
	})

	g.Post("/restore", func(c *fiber.Ctx) error {
		var req restoreRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid body")
		}
		task := &remoteTask{active: req.BackgroundActive}
		res, err := reg.Manager(c.Params("device")).Restore(c.Context(), task, req.Fixes)
		if err != nil {
			return trackingError(err)
		}
		return c.JSON(res)
	})

	g.Get("/snapshot", func(c *fiber.Ctx) error {
		if m, ok := reg.Lookup(c.Params("device")); ok {
			return c.JSON(m.Snapshot())
		}
		return c.JSON(LiveSnapshot{DeviceID: c.Params("device"), Status: StateIdle})
	})

	g.Get("/segments", func(c *fiber.Ctx) error {
		m, ok := reg.Lookup(c.Params("device"))
		if !ok {
			return c.JSON([][]gps.TrackedPoint{})
		}
		return c.JSON(m.Segments())
	})
}

func trackingError(err error) error {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return fiber.NewError(fiber.StatusForbidden, err.Error())
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrNotActive):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}
