// Package mcp exposes the kitchen tools over the Model Context Protocol.
package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/kitchencompanion/kitchencompanion/internal/logging"
	"github.com/kitchencompanion/kitchencompanion/internal/tools"
)

// Server serves one Toolbox. The toolbox's location is shared by every
// call made over the connection.
type Server struct {
	tb  *tools.Toolbox
	mcp *server.MCPServer
	log *zap.Logger
}

// NewServer registers every tool on a new MCP server.
func NewServer(tb *tools.Toolbox, version string, log *zap.Logger) *Server {
	s := &Server{
		tb:  tb,
		mcp: server.NewMCPServer("kitchencompanion", version, server.WithToolCapabilities(false)),
		log: logging.OrNop(log).Named("mcp"),
	}

	s.mcp.AddTool(mcp.NewTool(tools.NameConvertUnits,
		mcp.WithDescription("Convert an amount between kitchen units (cup, tbsp, tsp, ml, g)."),
		mcp.WithNumber("amount", mcp.Required(), mcp.Description("Amount to convert")),
		mcp.WithString("from_unit", mcp.Required(), mcp.Description("Unit of the amount, e.g. cup")),
		mcp.WithString("to_unit", mcp.Required(), mcp.Description("Target unit, e.g. tbsp")),
	), s.handleConvertUnits)

	s.mcp.AddTool(mcp.NewTool(tools.NameSetCity,
		mcp.WithDescription("Set the user's location by city or place name."),
		mcp.WithString("city", mcp.Required(), mcp.Description("City, optionally with state or country")),
	), s.handleSetCity)

	s.mcp.AddTool(mcp.NewTool(tools.NameSetGPS,
		mcp.WithDescription("Set the user's location from GPS coordinates."),
		mcp.WithNumber("lat", mcp.Required(), mcp.Description("Latitude in degrees")),
		mcp.WithNumber("lon", mcp.Required(), mcp.Description("Longitude in degrees")),
	), s.handleSetGPS)

	s.mcp.AddTool(mcp.NewTool(tools.NameUseIP,
		mcp.WithDescription("Approximate the user's location from their IP address (city-level)."),
	), s.handleUseIP)

	s.mcp.AddTool(mcp.NewTool(tools.NameFindGrocery,
		mcp.WithDescription("Find grocery stores and markets near the user's location, nearest first."),
		mcp.WithNumber("radius_m", mcp.Description("Search radius in meters")),
	), s.handleFindGrocery)

	s.mcp.AddTool(mcp.NewTool(tools.NameAskCookbook,
		mcp.WithDescription("Answer a cooking question from the loaded cookbook, with sources."),
		mcp.WithString("question", mcp.Required(), mcp.Description("The cooking question")),
	), s.handleAskCookbook)

	return s
}

// MCP returns the underlying server.
func (s *Server) MCP() *server.MCPServer { return s.mcp }

// ServeStdio serves requests on stdin/stdout until EOF.
func (s *Server) ServeStdio() error {
	s.log.Info("serving tools on stdio")
	return server.ServeStdio(s.mcp)
}
