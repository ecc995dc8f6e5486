package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/vinroute/internal/catalog"
	"github.com/kalambet/vinroute/internal/planner"
	"github.com/kalambet/vinroute/internal/trip"
)

// VenueLister reads the venue directory.
type VenueLister interface {
	ListVenues(ctx context.Context) ([]catalog.Venue, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Planner Planner
	Venues  VenueLister
	Version string
}

// NewMCPServer creates an MCP server exposing trip planning and the venue
// directory as tools, plus the catalog as a resource.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"vinroute",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("vinroute plans multi-stop wine-trail itineraries from a curated venue catalog."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("plan_trip",
			mcp.WithDescription("Plan a wine-trail itinerary. Always returns an itinerary unless the request itself is invalid."),
			mcp.WithString("vibe", mcp.Description("Overall feel of the trip, e.g. relaxed, adventurous, romantic"), mcp.Required()),
			mcp.WithArray("winePreferences", mcp.Description("Wine styles the group enjoys"), mcp.WithStringItems(), mcp.Required()),
			mcp.WithString("groupType", mcp.Description("Who is travelling, e.g. couple, friends, family"), mcp.Required()),
			mcp.WithNumber("stopCount", mcp.Description("Number of venues to visit (3-5)"), mcp.Required()),
			mcp.WithString("originCity", mcp.Description("City the trip starts from"), mcp.Required()),
			mcp.WithString("visitDateStart", mcp.Description("First visit date, YYYY-MM-DD")),
			mcp.WithString("visitDateEnd", mcp.Description("Last visit date, YYYY-MM-DD")),
			mcp.WithString("occasion", mcp.Description("Optional occasion, e.g. anniversary")),
			mcp.WithString("specialRequests", mcp.Description("Free-text special requests")),
			mcp.WithString("dislikes", mcp.Description("Free-text dislikes to avoid")),
		),
		mcpPlanTrip(deps),
	)

	s.AddTool(
		mcp.NewTool("list_venues",
			mcp.WithDescription("List venues in the catalog, optionally filtered by tag."),
			mcp.WithString("tag", mcp.Description("Only return venues with this tag")),
		),
		mcpListVenues(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"catalog://venues",
			"Venue Catalog",
			mcp.WithResourceDescription("Every venue eligible for itineraries, as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceVenues(deps),
	)

	return s
}

func mcpPlanTrip(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tr, err := tripRequestFromArgs(req)
		if err != nil {
			return mcpError(err.Error()), nil
		}

		res, err := deps.Planner.Plan(ctx, tr, planner.RequestMeta{UserAgent: "mcp"})
		if err != nil {
			var ve *trip.ValidationError
			if errors.As(err, &ve) {
				return mcpError(ve.Error()), nil
			}
			return mcpError(fmt.Sprintf("planning failed: %v", err)), nil
		}

		b, err := json.MarshalIndent(res.Itinerary, "", "  ")
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal itinerary: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

// tripRequestFromArgs maps tool arguments onto the HTTP request shape so
// both entry points share validation.
func tripRequestFromArgs(req mcp.CallToolRequest) (trip.Request, error) {
	tr := trip.Request{
		Vibe:            req.GetString("vibe", ""),
		WinePreferences: req.GetStringSlice("winePreferences", nil),
		GroupType:       req.GetString("groupType", ""),
		OriginCity:      req.GetString("originCity", ""),
		VisitDateStart:  req.GetString("visitDateStart", ""),
		VisitDateEnd:    req.GetString("visitDateEnd", ""),
		Occasion:        req.GetString("occasion", ""),
		SpecialRequests: req.GetString("specialRequests", ""),
		Dislikes:        req.GetString("dislikes", ""),
	}
	if raw, ok := req.GetArguments()["stopCount"]; ok {
		b, err := json.Marshal(raw)
		if err != nil {
			return trip.Request{}, fmt.Errorf("invalid stopCount: %v", err)
		}
		tr.StopCount = b
	}
	return tr, nil
}

func mcpListVenues(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		venues, err := deps.Venues.ListVenues(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list venues: %v", err)), nil
		}
		venues = filterByTag(venues, req.GetString("tag", ""))
		if venues == nil {
			venues = []catalog.Venue{}
		}

		b, err := json.Marshal(venues)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal venues: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceVenues(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		venues, err := deps.Venues.ListVenues(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list venues: %w", err)
		}

		b, err := json.Marshal(venues)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal venues: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
