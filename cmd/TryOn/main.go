// Package main is the entry point of the TryOn service.
// It serves the upload queue API over HTTP and drains the queue on a cron schedule.
package main

import (
	"flag"
	"os"

	"TryOn/internal/conf"
	"TryOn/internal/server"
	pkglog "TryOn/pkg/log"

	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/tracing"
	"github.com/go-kratos/kratos/v2/transport/http"

	_ "go.uber.org/automaxprocs"
)

// go build -ldflags "-X main.Version=x.y.z"
var (
	// Name is the name of the compiled software.
	Name = "TryOn"
	// Version is the version of the compiled software.
	Version string
	// flagconf is the config flag.
	flagconf string

	id, _ = os.Hostname()
)

func init() {
	flag.StringVar(&flagconf, "conf", "../../configs/config.yaml", "config path, eg: -conf config.yaml")
}

func newApp(logger log.Logger, hs *http.Server, ds *server.DrainServer) *kratos.App {
	return kratos.New(
		kratos.ID(id),
		kratos.Name(Name),
		kratos.Version(Version),
		kratos.Metadata(map[string]string{}),
		kratos.Logger(logger),
		kratos.Server(
			hs,
			ds,
		),
	)
}

func main() {
	flag.Parse()

	// Viper: config file < TRYON_* env vars
	bc, err := conf.NewBootstrap(flagconf)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	zapLogger, syncLogger, err := pkglog.NewLogger(bc.Log)
	if err != nil {
		log.Fatalf("failed to initialize zap logger: %v", err)
	}
	defer syncLogger()

	logger := log.With(zapLogger,
		"service.id", id,
		"service.name", Name,
		"service.version", Version,
		"trace.id", tracing.TraceID(),
		"span.id", tracing.SpanID(),
	)

	pkglog.NewLogHelper(logger).Startup("TryOn service starting",
		"http.addr", bc.Server.HTTP.Addr,
		"ratelimit.backend", bc.RateLimit.Backend,
		"ratelimit.max_requests", bc.RateLimit.MaxRequests,
		"ratelimit.window", bc.RateLimit.Window.AsDuration().String(),
		"upload.store", bc.Upload.Store,
		"upload.drain_schedule", bc.Upload.DrainSchedule,
		"log.level", bc.Log.Level,
		"log.format", bc.Log.Format,
	)

	app, cleanup, err := wireApp(bc.Server, bc.Data, bc.RateLimit, bc.Upload, logger)
	if err != nil {
		panic(err)
	}
	defer cleanup()

	// start and wait for stop signal
	if err := app.Run(); err != nil {
		panic(err)
	}
}
