package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/offshore-atlas/backend/internal/queue"
	mid "github.com/offshore-atlas/backend/internal/server/middleware"
	"github.com/offshore-atlas/backend/internal/storage"
	"github.com/offshore-atlas/backend/internal/util"
	"github.com/offshore-atlas/backend/pkg/analysis"
	"github.com/offshore-atlas/backend/pkg/logger"
	"github.com/offshore-atlas/backend/pkg/riskflag"

	"github.com/go-playground/validator"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		return err
	}
	return nil
}

func Init() {
	e := echo.New()
	e.Validator = &CustomValidator{validator: validator.New()}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	graphStore, cleanup, err := storage.NewGraphStore(ctx)
	if err != nil {
		logger.Fatal("Failed to connect to graph store", "err", err)
	}
	defer cleanup()

	engine := analysis.NewEngine(graphStore, riskConfigFromEnv())

	que := queue.Init()
	defer que.Close()
	ch, err := que.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	if err := queue.SetupQueues(ch, queue.Queues); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

	s3 := storage.NewS3Client(ctx)

	e.Use(mid.AppContextMiddleware(&mid.App{
		Store:  graphStore,
		Engine: engine,
		Queue:  ch,
		S3:     s3,
	}))
	e.Use(middleware.CORS())
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	RegisterRoutes(e)

	go func() {
		port := util.GetEnv("PORT")
		if port == "" {
			port = "8080"
		}
		logger.Info("Starting server", "port", port)
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed shutting down server", "err", err)
		}
	}()

	<-ctx.Done()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error("Failed to shutdown server", "err", err)
	}
}

func riskConfigFromEnv() riskflag.Config {
	cfg := riskflag.DefaultConfig()
	cfg.MassAddressThreshold = int(util.GetEnvNumeric("RISK_MASS_ADDRESS_THRESHOLD", cfg.MassAddressThreshold))
	cfg.PEPHopRadius = int(util.GetEnvNumeric("RISK_PEP_HOP_RADIUS", cfg.PEPHopRadius))
	cfg.BulkFormationCount = int(util.GetEnvNumeric("RISK_BULK_FORMATION_COUNT", cfg.BulkFormationCount))
	return cfg
}
