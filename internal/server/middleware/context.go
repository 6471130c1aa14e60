package middleware

import (
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/labstack/echo/v4"
	"github.com/rabbitmq/amqp091-go"

	"github.com/offshore-atlas/backend/pkg/analysis"
	"github.com/offshore-atlas/backend/pkg/store"
)

// App bundles the shared dependencies handlers pull from the request
// context: the graph store, the analysis engine built on it, the queue
// channel for ETL jobs and the S3 client for dataset bundles.
type App struct {
	Store  store.GraphStore
	Engine *analysis.Engine
	Queue  *amqp091.Channel
	S3     *s3.Client
}

type AppContext struct {
	echo.Context
	App *App
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &AppContext{c, app}
			return next(cc)
		}
	}
}
