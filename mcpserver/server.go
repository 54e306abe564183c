package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/isdmx/scriptbox/config"
	"github.com/isdmx/scriptbox/sandbox"
)

// MCPServer represents the MCP server
type MCPServer struct {
	config    *config.Config
	logger    *zap.Logger
	executor  sandbox.Executor
	fs        sandbox.FileSystem
	mcpServer *server.MCPServer
}

// New creates a new MCPServer
func New(cfg *config.Config, logger *zap.Logger, executor sandbox.Executor) (*MCPServer, error) {
	s := &MCPServer{
		config:   cfg,
		logger:   logger,
		executor: executor,
		fs:       &sandbox.RealFileSystem{},
	}

	// Log configuration parameters on startup
	logger.Info("configuration loaded",
		zap.String("server.transport", s.config.Server.Transport),
		zap.Int("server.http_port", s.config.Server.HTTPPort),
		zap.Int("sandbox.timeout_sec", s.config.Sandbox.TimeoutSec),
		zap.Int("sandbox.max_output_bytes", s.config.Sandbox.MaxOutputBytes),
		zap.String("sandbox.output_dir", s.config.Sandbox.OutputDir),
		zap.Int("sandbox.max_call_stack", s.config.Sandbox.MaxCallStack),
		zap.Int("sandbox.max_figures", s.config.Sandbox.MaxFigures),
		zap.Strings("modules.allowed", s.config.Modules.Allowed),
	)
	if snapshot, snapErr := cfg.Snapshot(); snapErr == nil {
		logger.Debug("effective configuration", zap.String("yaml", snapshot))
	}

	// Create the MCP server
	s.mcpServer = server.NewMCPServer("scriptbox-executor", "A restricted script execution server")

	// Register the execute_script tool
	s.registerExecuteScriptTool()

	return s, nil
}

// registerExecuteScriptTool registers the execute_script tool
func (s *MCPServer) registerExecuteScriptTool() {
	tool := mcp.Tool{
		Name:        "execute_script",
		Description: "Execute an untrusted script in a capability-restricted sandbox",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"code": map[string]any{
					"type":        "string",
					"description": "User-provided script source",
				},
				"timeout_sec": map[string]any{
					"type":        "number",
					"description": "Wall-clock budget in seconds (optional, server default applies)",
				},
				"bindings": map[string]any{
					"type":        "object",
					"description": "Variables pre-set in the script namespace (optional)",
				},
			},
			Required: []string{"code"},
		},
	}

	s.mcpServer.AddTool(tool, s.handleExecuteScript)
}

// executeResponse is the JSON shape returned to the tool caller.
type executeResponse struct {
	sandbox.Result
	ArtifactsTar string `json:"artifacts_tar,omitempty"`
}

// handleExecuteScript handles the execute_script tool
func (s *MCPServer) handleExecuteScript(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.logger.Info("script execution requested")

	code, err := request.RequireString("code")
	if err != nil {
		return nil, fmt.Errorf("code parameter is required: %w", err)
	}

	args := request.GetArguments()

	var timeout time.Duration
	if raw, ok := args["timeout_sec"].(float64); ok {
		if raw <= 0 {
			return nil, fmt.Errorf("timeout_sec must be positive, got: %v", raw)
		}
		timeout = time.Duration(raw * float64(time.Second))
	}

	var bindings map[string]any
	if raw, ok := args["bindings"]; ok && raw != nil {
		bindings, ok = raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("bindings must be an object")
		}
	}

	s.logger.Info("executing script in sandbox",
		zap.Int("code_len", len(code)),
		zap.Duration("timeout", timeout),
		zap.Int("bindings", len(bindings)))

	result, err := s.executor.Execute(ctx, sandbox.Request{
		Source:   code,
		Bindings: bindings,
		Timeout:  timeout,
	})
	if err != nil {
		s.logger.Error("sandbox execution failed", zap.Error(err))
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf("Execution failed: %v", err),
				},
			},
			IsError: true,
		}, nil
	}

	s.logger.Info("script execution completed",
		zap.Bool("success", result.Success),
		zap.Stringer("error_kind", result.ErrorKind),
		zap.Int("stdout_len", len(result.Stdout)),
		zap.Int("artifacts", len(result.Artifacts)))

	resp := executeResponse{Result: result}
	if len(result.Artifacts) > 0 {
		tarData, tarErr := sandbox.ArchiveArtifacts(s.fs, result.Artifacts)
		if tarErr != nil {
			s.logger.Warn("failed to bundle artifacts", zap.Error(tarErr))
		} else {
			resp.ArtifactsTar = base64.StdEncoding.EncodeToString(tarData)
		}
	}

	payload, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: string(payload),
			},
		},
	}, nil
}

// ServeStdio starts the server on stdio
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server on stdio")
	return server.ServeStdio(s.mcpServer)
}

// ServeHTTP starts the server on HTTP
func (s *MCPServer) ServeHTTP() error {
	port := s.config.Server.HTTPPort
	s.logger.Info("starting MCP server on HTTP", zap.Int("port", port))

	httpServer := server.NewStreamableHTTPServer(s.mcpServer)
	return httpServer.Start(fmt.Sprintf(":%d", port))
}

// GetMCPServer returns the underlying MCP server for fx
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}
