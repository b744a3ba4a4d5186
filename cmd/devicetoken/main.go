// Command devicetoken prints a bearer token for one device, signed with
// the configured JWT secret.
package main

import (
	"fmt"
	"os"

	"backend-revly/internal/auth"
	"backend-revly/internal/config"

	"github.com/sirupsen/logrus"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: devicetoken <device-id> [user-id]")
		os.Exit(2)
	}
	device := os.Args[1]
	user := ""
	if len(os.Args) > 2 {
		user = os.Args[2]
	}

	cfg := config.Load()
	token, err := auth.SignDeviceToken(cfg.JWTSecret, user, device, auth.DeviceTokenTTL)
	if err != nil {
		logrus.WithError(err).Fatal("token not issued")
	}
	fmt.Println(token)
}
