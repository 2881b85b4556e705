// Package mcp exposes the task coordinator as Model Context Protocol tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/fentz26/hivemind/internal/log"
	"github.com/fentz26/hivemind/internal/models"
)

// Coordinator is the task coordinator surface served as tools.
type Coordinator interface {
	CreateExecutionPlan(ctx context.Context, descs []models.TaskDescriptor, branchID string, mode models.Mode) (*models.ExecutionPlan, error)
	CompleteTask(ctx context.Context, id, result string, success bool) (*models.ParallelTask, error)
	CancelTask(ctx context.Context, id, reason string) (*models.ParallelTask, error)
	GetTaskStats(ctx context.Context) models.TaskStats
	GetParallelizationLearnings() models.Learnings
	RunningCount() int
}

// StatusSampler reports the current resource status.
type StatusSampler interface {
	GetResourceStatus(ctx context.Context, currentAgents int) models.ResourceStatus
}

// Config is the tool server configuration.
type Config struct {
	Coordinator Coordinator
	Sampler     StatusSampler
	Logger      log.Logger
	Name        string
	Version     string
}

func (c *Config) defaults() error {
	if c.Coordinator == nil {
		return fmt.Errorf("coordinator is required")
	}
	if c.Sampler == nil {
		return fmt.Errorf("sampler is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "mcp.Server"})
	if c.Name == "" {
		c.Name = "hivemind"
	}
	if c.Version == "" {
		c.Version = "dev"
	}

	return nil
}

// Tool is a tool definition with its handler.
type Tool struct {
	Definition mcp.Tool
	Handle     server.ToolHandlerFunc
}

// Server serves the coordinator tools.
type Server struct {
	cfg    Config
	logger log.Logger
	mcp    *server.MCPServer
	tools  []Tool
}

// New creates the tool server with every tool registered.
func New(cfg Config) (*Server, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	s := &Server{
		cfg:    cfg,
		logger: cfg.Logger,
		mcp: server.NewMCPServer(
			cfg.Name,
			cfg.Version,
			server.WithToolCapabilities(true),
			server.WithRecovery(),
		),
	}

	s.tools = []Tool{
		s.createExecutionPlanTool(),
		s.completeTaskTool(),
		s.cancelTaskTool(),
		s.getTaskStatsTool(),
		s.getLearningsTool(),
		s.getResourceStatusTool(),
	}
	for _, t := range s.tools {
		s.mcp.AddTool(t.Definition, t.Handle)
	}

	return s, nil
}

// Tools returns the registered tools.
func (s *Server) Tools() []Tool {
	return s.tools
}

// MCPServer returns the underlying protocol server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// ServeStdio serves the tools over stdin and stdout until the input closes.
func (s *Server) ServeStdio() error {
	s.logger.Infof("serving %d tools over stdio", len(s.tools))
	return server.ServeStdio(s.mcp)
}

// jsonResult renders v as an indented JSON text result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// toolError turns a domain error into a tool level error result.
func (s *Server) toolError(tool string, err error) *mcp.CallToolResult {
	s.logger.Warningf("tool %s failed: %s", tool, err)
	return mcp.NewToolResultError(err.Error())
}
