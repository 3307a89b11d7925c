package main

import (
	"github.com/docgraph-io/docgraph/internal/server"
	"github.com/docgraph-io/docgraph/internal/util"
	"github.com/docgraph-io/docgraph/pkg/logger"
	"github.com/docgraph-io/docgraph/pkg/logger/console"

	_ "github.com/lib/pq"
)

func main() {
	util.LoadEnv()

	debug := util.GetEnvBool("DEBUG", false)

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	server.Init()
}
