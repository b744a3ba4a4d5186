package trip

import (
	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"

	"backend-revly/internal/auth"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Get("/", authMiddleware, func(c *fiber.Ctx) error {
		device := c.Query("device")
		if device == "" {
			return fiber.NewError(fiber.StatusBadRequest, "device required")
		}
		if !auth.DeviceAllowed(c, device) {
			return auth.ErrForeignDevice
		}
		records, err := svc.ListRecords(c.Context(), device, c.QueryInt("limit", defaultListLimit))
		if err != nil {
			return recordError(err)
		}
		return c.JSON(records)
	})

	r.Get("/:id", authMiddleware, func(c *fiber.Ctx) error {
		rec, err := svc.GetRecord(c.Context(), c.Params("id"))
		if err != nil {
			return recordError(err)
		}
		if !auth.DeviceAllowed(c, rec.DeviceID) {
			return auth.ErrForeignDevice
		}
		return c.JSON(rec)
	})

	r.Get("/:id/gpx", authMiddleware, func(c *fiber.Ctx) error {
		rec, err := svc.GetRecord(c.Context(), c.Params("id"))
		if err != nil {
			return recordError(err)
		}
		if !auth.DeviceAllowed(c, rec.DeviceID) {
			return auth.ErrForeignDevice
		}
		out, err := ExportGPX(rec)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		c.Set(fiber.HeaderContentType, "application/gpx+xml")
		c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+rec.ID+`.gpx"`)
		return c.Send(out)
	})
}

func recordError(err error) error {
	if errors.Is(err, ErrRecordNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "trip not found")
	}
	if errors.Is(err, ErrStorageUnavailable) {
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	}
	return fiber.NewError(fiber.StatusInternalServerError, err.Error())
}
