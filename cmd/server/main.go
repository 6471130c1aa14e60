package main

import (
	"github.com/offshore-atlas/backend/internal/server"
	"github.com/offshore-atlas/backend/internal/util"
	"github.com/offshore-atlas/backend/pkg/logger"
	"github.com/offshore-atlas/backend/pkg/logger/console"
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
