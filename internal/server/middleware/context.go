package middleware

import (
	"github.com/labstack/echo/v4"
	"github.com/rabbitmq/amqp091-go"

	"github.com/docgraph-io/docgraph/internal/graphs"
	"github.com/docgraph-io/docgraph/pkg/embed"
)

// App carries the shared process dependencies every handler needs.
type App struct {
	Manager      *graphs.Manager
	Queue        *amqp091.Channel
	Embedder     embed.Embedder
	MasterAPIKey string
}

type AppContext struct {
	echo.Context
	App *App
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &AppContext{
				Context: c,
				App:     app,
			}
			return next(cc)
		}
	}
}
