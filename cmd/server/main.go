package main

import (
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/isdmx/scriptbox/config"
	"github.com/isdmx/scriptbox/logger"
	"github.com/isdmx/scriptbox/mcpserver"
	"github.com/isdmx/scriptbox/sandbox"
)

func newInterpreter(cfg *config.Config, log *zap.Logger) sandbox.Executor {
	return sandbox.New(log, sandbox.Config{
		Timeout:        cfg.GetTimeout(),
		MaxOutputBytes: cfg.Sandbox.MaxOutputBytes,
		OutputDir:      cfg.Sandbox.OutputDir,
		MaxCallStack:   cfg.Sandbox.MaxCallStack,
		MaxFigures:     cfg.Sandbox.MaxFigures,
		AllowedModules: cfg.Modules.Allowed,
	})
}

func main() {
	app := fx.New(
		// Provide dependencies
		fx.Provide(
			// Config
			config.New,

			// Logger with configuration
			logger.NewFromConfig,

			// Sandbox interpreter based on config
			newInterpreter,

			// MCP Server
			mcpserver.New,
		),

		// Start the appropriate transport based on config
		fx.Invoke(
			func(cfg *config.Config, server *mcpserver.MCPServer) {
				switch cfg.Server.Transport {
				case "stdio":
					go func() {
						if err := server.ServeStdio(); err != nil {
							panic(err)
						}
					}()
				case "http":
					go func() {
						if err := server.ServeHTTP(); err != nil {
							panic(err)
						}
					}()
				default:
					panic("unsupported transport: " + cfg.Server.Transport)
				}
			},
		),

		// Use the application logger for fx logs
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
	)

	// Start the application
	app.Run()
}
