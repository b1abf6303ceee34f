package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rendis/appspec/internal/loader"
	"github.com/rendis/appspec/internal/secrets"
	"github.com/rendis/appspec/internal/store"
	"github.com/rendis/appspec/internal/validation"
)

// ServerDeps holds the dependencies for creating a Server.
type ServerDeps struct {
	Loader    *loader.Loader
	Validator *validation.Validator
	// Store serves appspec.reports; nil disables the tool's queries.
	Store store.Store
	// Vault seals encrypted device fields; nil disables sealing.
	Vault  secrets.Vault
	Specs  *SpecCache
	Logger *slog.Logger
}

// Server wraps an MCP server with the appspec tool handlers.
type Server struct {
	loader    *loader.Loader
	validator *validation.Validator
	store     store.Store
	vault     secrets.Vault
	specs     *SpecCache
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewServer creates a Server with all 4 tools registered.
func NewServer(deps ServerDeps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	specs := deps.Specs
	if specs == nil {
		specs = NewSpecCache()
	}
	params := deps.Validator
	if params == nil {
		params = validation.NewValidator(logger)
	}

	s := &Server{
		loader:    deps.Loader,
		validator: params,
		store:     deps.Store,
		vault:     deps.Vault,
		specs:     specs,
		logger:    logger,
	}

	mcpSrv := server.NewMCPServer(
		"appspec",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("appspec validates app API specs and the runtime values passed to them. Call appspec.validate_spec first; appspec.validate_arguments and appspec.validate_device check values against the last valid spec of an app, appspec.reports lists past validation reports, and appspec.forget_device removes a device's sealed fields."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *Server) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// Specs returns the cache of validated specs.
func (s *Server) Specs() *SpecCache {
	return s.specs
}

func (s *Server) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: validateSpecTool(), Handler: s.handleValidateSpec},
		{Tool: validateArgumentsTool(), Handler: s.handleValidateArguments},
		{Tool: validateDeviceTool(), Handler: s.handleValidateDevice},
		{Tool: reportsTool(), Handler: s.handleReports},
		{Tool: forgetDeviceTool(), Handler: s.handleForgetDevice},
	}
}

// --- Tool definitions ---

func validateSpecTool() mcp.Tool {
	return mcp.NewTool("appspec.validate_spec",
		mcp.WithDescription("Validate the API spec of an app against the meta-schema and its registered callables"),
		mcp.WithString("app", mcp.Required(), mcp.Description("Name of the app the spec belongs to")),
		mcp.WithObject("document", mcp.Description("Spec document (takes priority over path)")),
		mcp.WithString("path", mcp.Description("Path of a YAML or JSON spec file")),
		mcp.WithString("base_uri", mcp.Description("URI that relative $ref values resolve against")),
	)
}

func validateArgumentsTool() mcp.Tool {
	return mcp.NewTool("appspec.validate_arguments",
		mcp.WithDescription("Validate runtime arguments of an action, condition or transform"),
		mcp.WithString("app", mcp.Required(), mcp.Description("App whose validated spec declares the callable")),
		mcp.WithString("kind", mcp.Required(),
			mcp.Enum("action", "condition", "transform"),
			mcp.Description("Kind of callable"),
		),
		mcp.WithString("name", mcp.Required(), mcp.Description("Name of the action, condition or transform in the spec")),
		mcp.WithArray("arguments", mcp.Description("Arguments: {name, value} or {name, reference, selection}")),
		mcp.WithObject("accumulator", mcp.Description("Prior results keyed by id, for reference arguments")),
	)
}

func validateDeviceTool() mcp.Tool {
	return mcp.NewTool("appspec.validate_device",
		mcp.WithDescription("Validate device configuration fields against a device type of an app"),
		mcp.WithString("app", mcp.Required(), mcp.Description("App whose validated spec declares the device type")),
		mcp.WithString("device_type", mcp.Required(), mcp.Description("Device type name")),
		mcp.WithObject("fields", mcp.Required(), mcp.Description("Field values keyed by field name")),
		mcp.WithBoolean("validate_required", mcp.Description("Fail when a required field is missing (default: true)")),
		mcp.WithString("device_name", mcp.Description("Device name, required with open or seal")),
		mcp.WithBoolean("open", mcp.Description("Resolve this device's vault references before validating")),
		mcp.WithBoolean("seal", mcp.Description("Store encrypted fields in the vault and return vault references")),
	)
}

func forgetDeviceTool() mcp.Tool {
	return mcp.NewTool("appspec.forget_device",
		mcp.WithDescription("Delete every sealed field of a device from the vault"),
		mcp.WithString("app", mcp.Required(), mcp.Description("App the device belongs to")),
		mcp.WithString("device_type", mcp.Required(), mcp.Description("Device type name")),
		mcp.WithString("device_name", mcp.Required(), mcp.Description("Device name used when sealing")),
	)
}

func reportsTool() mcp.Tool {
	return mcp.NewTool("appspec.reports",
		mcp.WithDescription("Query stored validation reports"),
		mcp.WithString("id", mcp.Description("Report ID to fetch")),
		mcp.WithString("app", mcp.Description("Restrict to one app")),
		mcp.WithBoolean("latest", mcp.Description("Return only the latest report of app")),
		mcp.WithString("valid", mcp.Enum("true", "false"), mcp.Description("Filter by outcome")),
		mcp.WithString("since", mcp.Description("RFC3339 lower bound on creation time")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of reports (default: 50)")),
		mcp.WithBoolean("purge", mcp.Description("Delete every report of app")),
	)
}
