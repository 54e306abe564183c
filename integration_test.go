package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/scriptbox/config"
	"github.com/isdmx/scriptbox/logger"
	"github.com/isdmx/scriptbox/mcpserver"
	"github.com/isdmx/scriptbox/sandbox"
)

func integrationConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Transport: "stdio",
			HTTPPort:  8080,
		},
		Logging: config.LoggingConfig{
			Mode:  "development",
			Level: "debug",
		},
		Sandbox: config.SandboxConfig{
			TimeoutSec:     5,
			MaxOutputBytes: 10000,
			OutputDir:      "generated_plots",
			MaxCallStack:   500,
			MaxFigures:     5,
		},
		Modules: config.ModulesConfig{
			Allowed: sandbox.DefaultAllowedModules(),
		},
	}
}

// TestIntegrationConfigLoggerSandbox tests the integration between config, logger, and sandbox packages
func TestIntegrationConfigLoggerSandbox(t *testing.T) {
	t.Run("ConfigAndLoggerIntegration", func(t *testing.T) {
		cfg := integrationConfig()

		testLogger, err := logger.New(cfg.Logging.Mode, cfg.Logging.Level)
		require.NoError(t, err)
		require.NotNil(t, testLogger)

		testLogger.Info("Integration test started")
		_ = testLogger.Sync()
	})

	t.Run("ConfigLoggerInterpreterIntegration", func(t *testing.T) {
		cfg := integrationConfig()

		testLogger, err := logger.New(cfg.Logging.Mode, cfg.Logging.Level)
		require.NoError(t, err)

		interp := sandbox.New(testLogger, sandbox.Config{
			Timeout:        cfg.GetTimeout(),
			MaxOutputBytes: cfg.Sandbox.MaxOutputBytes,
			OutputDir:      cfg.Sandbox.OutputDir,
			MaxCallStack:   cfg.Sandbox.MaxCallStack,
			MaxFigures:     cfg.Sandbox.MaxFigures,
			AllowedModules: cfg.Modules.Allowed,
		})
		require.NotNil(t, interp)
		assert.True(t, interp.Gate().Allowed("math"))
	})

	t.Run("FullMCPIntegration", func(t *testing.T) {
		cfg := integrationConfig()

		mcpLogger, err := logger.New(cfg.Logging.Mode, cfg.Logging.Level)
		require.NoError(t, err)

		interp := sandbox.New(mcpLogger, sandbox.Config{
			Timeout:        cfg.GetTimeout(),
			AllowedModules: cfg.Modules.Allowed,
		})

		server, err := mcpserver.New(cfg, mcpLogger, interp)
		require.NoError(t, err)
		require.NotNil(t, server)
		require.NotNil(t, server.GetMCPServer())
	})
}

// TestIntegrationScriptExecution runs scripts end to end through the
// config-driven interpreter, with figure output redirected into a
// temporary directory.
func TestIntegrationScriptExecution(t *testing.T) {
	testLogger := zaptest.NewLogger(t)
	cfg := integrationConfig()
	cfg.Sandbox.OutputDir = t.TempDir()

	interp := sandbox.New(testLogger, sandbox.Config{
		Timeout:        cfg.GetTimeout(),
		MaxOutputBytes: cfg.Sandbox.MaxOutputBytes,
		OutputDir:      cfg.Sandbox.OutputDir,
		MaxCallStack:   cfg.Sandbox.MaxCallStack,
		MaxFigures:     cfg.Sandbox.MaxFigures,
		AllowedModules: cfg.Modules.Allowed,
	})

	t.Run("ArithmeticAndVariables", func(t *testing.T) {
		res, err := interp.Execute(context.Background(), sandbox.Request{
			Source: "x = 5\ny = 10\nprint(x + y)",
		})
		require.NoError(t, err)

		assert.True(t, res.Success)
		assert.Equal(t, "15\n", res.Stdout)
		assert.Equal(t, int64(5), res.Variables["x"])
		assert.Equal(t, int64(10), res.Variables["y"])
	})

	t.Run("ModulesAvailablePerConfig", func(t *testing.T) {
		res, err := interp.Execute(context.Background(), sandbox.Request{
			Source: `s = require("stats").mean([2, 4, 6])`,
		})
		require.NoError(t, err)

		assert.True(t, res.Success)
		assert.Equal(t, int64(4), res.Variables["s"])
	})

	t.Run("DeniedImportSurfacesInResult", func(t *testing.T) {
		res, err := interp.Execute(context.Background(), sandbox.Request{
			Source: `require("socket")`,
		})
		require.NoError(t, err)

		assert.False(t, res.Success)
		assert.Equal(t, sandbox.ErrImportDenied, res.ErrorKind)
		assert.Contains(t, res.ErrorMessage, "socket")
	})

	t.Run("PlotWritesArtifactToDisk", func(t *testing.T) {
		res, err := interp.Execute(context.Background(), sandbox.Request{
			Source: `
				p = require("plot");
				f = p.figure();
				f.line([1, 2, 3], [2, 4, 6]);
				f.title("growth");
			`,
		})
		require.NoError(t, err)

		require.True(t, res.Success, "stderr: %s", res.Stderr)
		require.Len(t, res.Artifacts, 1)

		tarData, err := sandbox.ArchiveArtifacts(&sandbox.RealFileSystem{}, res.Artifacts)
		require.NoError(t, err)
		assert.NotEmpty(t, tarData)
	})
}
