package auth

import "github.com/gofiber/fiber/v2"

// DeviceAllowed reports whether the caller's token may act on device.
// Tokens without a device claim are not scoped.
func DeviceAllowed(c *fiber.Ctx, device string) bool {
	own, ok := c.Locals("device_id").(string)
	return !ok || own == "" || own == device
}

// RequireDevice rejects requests whose route parameter names a device other
// than the one in the token.
func RequireDevice(param string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !DeviceAllowed(c, c.Params(param)) {
			return ErrForeignDevice
		}
		return c.Next()
	}
}

var ErrForeignDevice = fiber.NewError(fiber.StatusForbidden, "token not issued for this device")
