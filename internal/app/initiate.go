package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/shandysiswandi/courier/internal/notification"
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

const pingTimeout = 5 * time.Second

func configPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	if os.Getenv("LOCAL") == "true" {
		return "./config/config.yaml"
	}
	return "/config/config.yaml"
}

func (a *App) initConfig() error {
	cfg, err := config.NewViper(configPath())
	if err != nil {
		return err
	}

	if tz := cfg.GetString("app.tz"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return fmt.Errorf("app.tz: %w", err)
		}
		time.Local = loc
	}

	a.config = cfg
	a.onClose("Config", func(context.Context) error { return cfg.Close() })
	return nil
}

func (a *App) initInstrument() error {
	key := func(k string) string { return "instrument." + k }

	ins, err := instrument.New(a.ctx, &instrument.Config{
		ServiceName:      a.config.GetString(key("service_name")),
		ServiceVersion:   a.config.GetString(key("service_version")),
		Environment:      a.config.GetString(key("env")),
		LogLevel:         a.config.GetString(key("log_level")),
		MaskFields:       a.config.GetArray(key("log_mask_fields")),
		OTLPEndpoint:     a.config.GetString(key("otlp_endpoint")),
		OTLPSecure:       a.config.GetBool(key("otlp_secure")),
		TraceSampleRatio: a.config.GetFloat64(key("trace_sample_ratio")),
		MetricsInterval:  a.config.GetSecond(key("metric_interval_seconds")),
	})
	if err != nil {
		return err
	}

	a.ins = ins
	a.onClose("Instrument", a.ins.Shutdown)
	return nil
}

func (a *App) initLibraries() error {
	v, err := validator.NewV10Validator()
	if err != nil {
		return fmt.Errorf("validator: %w", err)
	}
	snow, err := uid.NewSnowflake()
	if err != nil {
		return fmt.Errorf("snowflake: %w", err)
	}

	a.clock = clock.New()
	a.uuid = uid.NewUUID()
	a.uid = snow
	a.validator = v
	a.goroutine = goroutine.NewManager(a.config.GetInt("app.server.max_goroutine"))
	return nil
}

// initAuth builds the token verifier and the casbin enforcer. Policies are
// written as "p,role,object,action;g,child,parent".
func (a *App) initAuth() error {
	verifier, err := jwt.NewHS512(jwt.Config{
		Secret:    []byte(a.config.GetString("jwt.secret")),
		Issuer:    a.config.GetString("jwt.issuer"),
		Audiences: a.config.GetArray("jwt.audiences"),
		TTL:       a.config.GetMinute("jwt.ttl_minutes"),
		Leeway:    a.config.GetSecond("jwt.leeway_seconds"),
		Clock:     a.clock,
		UUID:      a.uuid,
	})
	if err != nil {
		return fmt.Errorf("jwt: %w", err)
	}

	var policies []string
	for _, line := range strings.Split(a.config.GetString("authz.policies"), ";") {
		if line = strings.TrimSpace(line); line != "" {
			policies = append(policies, line)
		}
	}
	enforcer, err := authz.NewCasbin(policies)
	if err != nil {
		return fmt.Errorf("casbin: %w", err)
	}

	a.jwt = verifier
	a.authorizer = enforcer
	return nil
}

func (a *App) initDatabase() error {
	pc, err := pgxpool.ParseConfig(a.config.GetString("database.url"))
	if err != nil {
		return fmt.Errorf("parse database.url: %w", err)
	}

	pc.MaxConns = a.config.GetInt32("database.pool.max_conns")
	pc.MinConns = a.config.GetInt32("database.pool.min_conns")
	pc.MaxConnLifetime = a.config.GetSecond("database.pool.max_conn_lifetime_seconds")
	pc.MaxConnIdleTime = a.config.GetSecond("database.pool.max_conn_idle_seconds")
	pc.HealthCheckPeriod = a.config.GetSecond("database.pool.health_check_period_seconds")

	pool, err := pgxpool.NewWithConfig(a.ctx, pc)
	if err != nil {
		return err
	}
	a.onClose("Database", func(context.Context) error { pool.Close(); return nil })

	ctx, cancel := context.WithTimeout(a.ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}

	a.dbConn = pool
	return nil
}

func (a *App) initCache() error {
	opt, err := redis.ParseURL(a.config.GetString("redis.url"))
	if err != nil {
		return fmt.Errorf("parse redis.url: %w", err)
	}

	rdb := redis.NewClient(opt)
	a.onClose("Redis", func(context.Context) error { return rdb.Close() })

	ctx, cancel := context.WithTimeout(a.ctx, pingTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}

	a.cacheConn = rdb
	return nil
}

func (a *App) initMail() error {
	trimmed := func(k string) string { return strings.TrimSpace(a.config.GetString(k)) }
	from := a.config.GetString("mail.from")

	client, err := mail.NewFromDriver(a.ctx, trimmed("mail.driver"), mail.FactoryOptions{
		SMTP: mail.SMTPConfig{
			Host:        a.config.GetString("mail.smtp.host"),
			Port:        a.config.GetInt("mail.smtp.port"),
			Username:    a.config.GetString("mail.smtp.username"),
			Password:    a.config.GetString("mail.smtp.password"),
			From:        from,
			ImplicitTLS: a.config.GetBool("mail.smtp.implicit_tls"),
			Timeout:     a.config.GetSecond("mail.smtp.timeout_seconds"),
		},
		SES: mail.SESConfig{
			Region:           trimmed("mail.ses.region"),
			Endpoint:         trimmed("mail.ses.endpoint"),
			AccessKey:        trimmed("mail.ses.access_key"),
			SecretKey:        trimmed("mail.ses.secret_key"),
			SessionToken:     trimmed("mail.ses.session_token"),
			ConfigurationSet: trimmed("mail.ses.configuration_set"),
			From:             from,
		},
	})
	if err != nil {
		return fmt.Errorf("driver %q: %w", trimmed("mail.driver"), err)
	}

	a.mail = client
	a.onClose("Mail", func(context.Context) error { return client.Close() })
	return nil
}

func (a *App) initMessaging() error {
	driver := a.config.GetString("messaging.driver")
	natsKey := func(k string) string { return "messaging.nats." + k }

	client, err := messaging.NewFromDriver(driver, messaging.FactoryOptions{
		Kafka: messaging.KafkaConfig{
			Brokers:     a.config.GetArray("messaging.kafka.brokers"),
			ClientID:    a.config.GetString("messaging.kafka.client_id"),
			DialTimeout: a.config.GetSecond("messaging.kafka.dial_timeout_seconds"),
		},
		NATS: messaging.NATSConfig{
			URL: a.config.GetString(natsKey("url")),
			Options: []nats.Option{
				nats.Name(a.config.GetString(natsKey("name"))),
				nats.MaxReconnects(a.config.GetInt(natsKey("max_reconnects"))),
				nats.Timeout(a.config.GetSecond(natsKey("timeout_seconds"))),
				nats.ReconnectWait(a.config.GetSecond(natsKey("reconnect_wait_seconds"))),
				nats.PingInterval(a.config.GetSecond(natsKey("ping_interval_seconds"))),
				nats.MaxPingsOutstanding(a.config.GetInt(natsKey("max_pings_outstanding"))),
				nats.RetryOnFailedConnect(a.config.GetBool(natsKey("retry_on_failed_connect"))),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("driver %q: %w", driver, err)
	}

	a.messaging = client
	a.onClose("Messaging", func(context.Context) error { return client.Close() })
	return nil
}

// initServers builds the API server and a second listener for WebSocket and
// SSE traffic, which has no write deadline.
func (a *App) initServers() error {
	a.router = router.NewRouter(router.Config{
		Config:          a.config,
		UUID:            a.uuid,
		JWT:             a.jwt,
		Instrument:      a.ins,
		PublicEndpoints: notification.PublicEndpoints(),
	})

	handler := cors.New(cors.Options{
		AllowedOrigins: a.config.GetArray("app.server.cors"),
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut,
			http.MethodPatch, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Correlation-ID", "Last-Event-ID"},
		ExposedHeaders:   []string{"X-Correlation-ID"},
		AllowCredentials: true,
	}).Handler(a.router)

	seconds := func(k string) time.Duration { return a.config.GetSecond("app.server." + k) }

	a.servers = []namedServer{
		{name: "HTTP Server", srv: &http.Server{
			Addr:              a.config.GetString("app.server.http.address"),
			Handler:           handler,
			ReadTimeout:       seconds("http.read_timeout_seconds"),
			ReadHeaderTimeout: seconds("http.read_header_timeout_seconds"),
			WriteTimeout:      seconds("http.write_timeout_seconds"),
			IdleTimeout:       seconds("http.idle_timeout_seconds"),
		}},
		{name: "Stream Server", srv: &http.Server{
			Addr:              a.config.GetString("app.server.stream.address"),
			Handler:           handler,
			ReadHeaderTimeout: seconds("stream.read_header_timeout_seconds"),
		}},
	}
	return nil
}

func (a *App) initModules() error {
	if !a.config.GetBool("modules.notification.enabled") {
		return nil
	}

	return notification.New(notification.Dependency{
		Ctx:        a.ctx,
		DBConn:     a.dbConn,
		Redis:      a.cacheConn,
		Messaging:  a.messaging,
		Config:     a.config,
		Instrument: a.ins,
		UID:        a.uid,
		UUID:       a.uuid,
		Clock:      a.clock,
		Goroutine:  a.goroutine,
		Validator:  a.validator,
		Router:     a.router,
		Mail:       a.mail,
		Authorizer: a.authorizer,
	})
}
