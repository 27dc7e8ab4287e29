package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/kitchencompanion/kitchencompanion/internal/tools"
)

func (s *Server) handleConvertUnits(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	amount, err := req.RequireFloat("amount")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: amount"), nil
	}
	from, err := req.RequireString("from_unit")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: from_unit"), nil
	}
	to, err := req.RequireString("to_unit")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: to_unit"), nil
	}
	return s.result(tools.NameConvertUnits)(s.tb.ConvertUnits(amount, from, to))
}

func (s *Server) handleSetCity(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	city, err := req.RequireString("city")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: city"), nil
	}
	return s.result(tools.NameSetCity)(s.tb.SetLocationCity(ctx, city))
}

func (s *Server) handleSetGPS(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	lat, err := req.RequireFloat("lat")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: lat"), nil
	}
	lon, err := req.RequireFloat("lon")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: lon"), nil
	}
	return s.result(tools.NameSetGPS)(s.tb.SetLocationGPS(lat, lon))
}

func (s *Server) handleUseIP(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.result(tools.NameUseIP)(s.tb.UseMyIPLocation(ctx))
}

func (s *Server) handleFindGrocery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	radius := req.GetInt("radius_m", 0)
	return s.result(tools.NameFindGrocery)(s.tb.FindNearbyGrocery(ctx, radius))
}

func (s *Server) handleAskCookbook(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := req.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: question"), nil
	}
	return s.result(tools.NameAskCookbook)(s.tb.AskCookbook(ctx, question))
}

// result turns a tool outcome into a call result. Tool failures are
// reported in-band so the caller can show them; they never fail the call.
func (s *Server) result(name string) func(string, error) (*mcp.CallToolResult, error) {
	return func(text string, err error) (*mcp.CallToolResult, error) {
		if err != nil {
			s.log.Debug("tool error", zap.String("tool", name), zap.Error(err))
			return mcp.NewToolResultError(tools.Message(err)), nil
		}
		s.log.Debug("tool ok", zap.String("tool", name))
		return mcp.NewToolResultText(text), nil
	}
}
