package main

import (
	"context"
	"time"

	"github.com/shandysiswandi/courier/internal/app"
)

// @title           Courier API
// @version         1.0
// @description     Courier dispatches notifications across in-app and email channels and tracks their delivery.
// @contact.name    Platform Team
// @license.name    MIT
// @license.url     https://mit-license.org/
// @server          http://localhost:8080
// @securityDefinitions.apikey  BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT.
func main() {
	application := app.New()
	<-application.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	application.Stop(ctx)
}
