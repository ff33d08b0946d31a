package app

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"slices"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shandysiswandi/courier/internal/pkg/authz"
	"github.com/shandysiswandi/courier/internal/pkg/clock"
	"github.com/shandysiswandi/courier/internal/pkg/config"
	"github.com/shandysiswandi/courier/internal/pkg/goroutine"
	"github.com/shandysiswandi/courier/internal/pkg/instrument"
	"github.com/shandysiswandi/courier/internal/pkg/jwt"
	"github.com/shandysiswandi/courier/internal/pkg/mail"
	"github.com/shandysiswandi/courier/internal/pkg/messaging"
	"github.com/shandysiswandi/courier/internal/pkg/router"
	"github.com/shandysiswandi/courier/internal/pkg/uid"
	"github.com/shandysiswandi/courier/internal/pkg/validator"
)

type namedServer struct {
	name string
	srv  *http.Server
}

type closer struct {
	name string
	fn   func(context.Context) error
}

// App owns every long-lived dependency of the courier process.
type App struct {
	ctx    context.Context
	cancel context.CancelFunc

	config config.Config
	ins    instrument.Instrumentation

	goroutine  *goroutine.Manager
	validator  validator.Validator
	clock      clock.Clocker
	uid        uid.NumberID
	uuid       uid.StringID
	jwt        jwt.JWT
	authorizer authz.Authorizer

	dbConn    *pgxpool.Pool
	cacheConn *redis.Client
	mail      mail.Mail
	messaging messaging.Messaging

	router  *router.Router
	servers []namedServer

	// closers run in reverse registration order on Stop.
	closers []closer
}

// New builds the application or exits the process if any step fails.
func New() *App {
	ctx, cancel := context.WithCancel(context.Background())
	app := &App{ctx: ctx, cancel: cancel}

	steps := []struct {
		name string
		fn   func() error
	}{
		{"config", app.initConfig},
		{"instrumentation", app.initInstrument},
		{"libraries", app.initLibraries},
		{"auth", app.initAuth},
		{"database", app.initDatabase},
		{"redis", app.initCache},
		{"mail", app.initMail},
		{"messaging", app.initMessaging},
		{"servers", app.initServers},
		{"modules", app.initModules},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			slog.Error("failed to init "+step.name, "error", err)
			app.closeAll(context.Background())
			os.Exit(1)
		}
	}

	return app
}

func (a *App) onClose(name string, fn func(context.Context) error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

func (a *App) closeAll(ctx context.Context) {
	for _, c := range slices.Backward(a.closers) {
		if err := c.fn(ctx); err != nil {
			slog.ErrorContext(ctx, "failed to close resources", "name", c.name, "error", err)
		}
	}
}
