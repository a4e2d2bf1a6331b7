// Package mcp provides a Model Context Protocol server for voicelog.
//
// It exposes transcript extraction, the follow-up dialogue and episode
// storage as MCP tools, and the most recent episodes as a resource.
// The server is served over stdio by the voicelog mcp command.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/migraineai/voicelog/internal/extract"
	"github.com/migraineai/voicelog/internal/store"
	"github.com/migraineai/voicelog/internal/voice"
)

// maxListLimit caps episode_list results.
const maxListLimit = 100

// ServerConfig holds configuration for the MCP server.
type ServerConfig struct {
	Service *voice.Service
	Version string // version string for MCP server info
}

// dbMu serializes MCP tool calls that touch the database. mcp-go
// dispatches handlers concurrently and SQLite allows a single writer.
var dbMu sync.Mutex

// NewServer creates a configured MCP server with all voicelog tools and
// resources.
func NewServer(cfg ServerConfig) *server.MCPServer {
	ver := cfg.Version
	if ver == "" {
		ver = "dev"
	}

	s := server.NewMCPServer(
		"voicelog",
		ver,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(true, false),
	)

	registerExtractTool(s, cfg.Service)
	registerNextQuestionTool(s, cfg.Service)
	if cfg.Service.Store() != nil {
		registerSaveTool(s, cfg.Service)
		registerListTool(s, cfg.Service.Store())
		registerRecentResource(s, cfg.Service.Store())
	}
	return s
}

func registerExtractTool(s *server.MCPServer, svc *voice.Service) {
	tool := mcp.NewTool("episode_extract",
		mcp.WithDescription("Extract a structured migraine episode from a voice transcript. Returns the sparse payload and which required fields are still missing."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("transcript",
			mcp.Required(),
			mcp.Description("What the user said, as transcribed text"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		transcript, err := req.RequireString("transcript")
		if err != nil || strings.TrimSpace(transcript) == "" {
			return mcp.NewToolResultError("transcript is required"), nil
		}

		res, err := svc.Extract(ctx, transcript)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("extract error: %v", err)), nil
		}
		return jsonResult(res), nil
	})
}

func registerNextQuestionTool(s *server.MCPServer, svc *voice.Service) {
	tool := mcp.NewTool("episode_next_question",
		mcp.WithDescription("Run one dialogue turn: merge the new transcript into the episode so far and return the next follow-up question."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("transcript",
			mcp.Description("The user's latest answer. May be empty on the first turn."),
		),
		mcp.WithString("payload_json",
			mcp.Description("The episode payload collected so far, as a JSON object"),
		),
		mcp.WithString("asked_field",
			mcp.Description("The field the previous question asked about"),
			mcp.Enum(extract.FieldStartTime, extract.FieldTriggers, extract.FieldIntensity, extract.FieldPainLocation, extract.FieldSymptoms),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		transcript := ""
		if t, err := req.RequireString("transcript"); err == nil {
			transcript = t
		}

		var prior *extract.Payload
		if raw, err := req.RequireString("payload_json"); err == nil && strings.TrimSpace(raw) != "" {
			p, err := decodePayload(svc, raw)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			prior = &p
		}

		asked := ""
		if f, err := req.RequireString("asked_field"); err == nil {
			asked = f
		}

		res, err := svc.Turn(ctx, transcript, prior, asked)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("turn error: %v", err)), nil
		}
		return jsonResult(res), nil
	})
}

func registerSaveTool(s *server.MCPServer, svc *voice.Service) {
	tool := mcp.NewTool("episode_save",
		mcp.WithDescription("Save an episode payload. Without episode_id a new episode is created; with it the payload is merged into the existing episode field by field."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithNumber("user_id",
			mcp.Required(),
			mcp.Description("Owner of the episode"),
		),
		mcp.WithString("payload_json",
			mcp.Required(),
			mcp.Description("Episode payload as a JSON object"),
		),
		mcp.WithString("transcript",
			mcp.Description("Transcript to store alongside the episode"),
		),
		mcp.WithNumber("episode_id",
			mcp.Description("Existing episode to update"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		userVal, err := req.RequireFloat("user_id")
		if err != nil || userVal <= 0 {
			return mcp.NewToolResultError("user_id must be a positive number"), nil
		}
		raw, err := req.RequireString("payload_json")
		if err != nil {
			return mcp.NewToolResultError("payload_json is required"), nil
		}
		p, err := decodePayload(svc, raw)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		transcript := ""
		if t, err := req.RequireString("transcript"); err == nil {
			transcript = t
		}
		var episodeID int64
		if id, err := req.RequireFloat("episode_id"); err == nil && id > 0 {
			episodeID = int64(id)
		}

		ep, err := svc.Save(ctx, int64(userVal), episodeID, p, transcript)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("save error: %v", err)), nil
		}
		return jsonResult(ep), nil
	})
}

func registerListTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("episode_list",
		mcp.WithDescription("List saved migraine episodes, newest first."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithNumber("user_id",
			mcp.Description("Only list this user's episodes"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum results (default: 50, max: 100)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		opts := store.ListOpts{Limit: store.DefaultListLimit}
		if u, err := req.RequireFloat("user_id"); err == nil && u > 0 {
			opts.UserID = int64(u)
		}
		if limitVal, err := req.RequireFloat("limit"); err == nil {
			limit := int(limitVal)
			if limit > maxListLimit {
				limit = maxListLimit
			}
			if limit > 0 {
				opts.Limit = limit
			}
		}

		episodes, err := st.ListEpisodes(ctx, opts)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("list error: %v", err)), nil
		}
		if episodes == nil {
			episodes = []*store.Episode{}
		}
		return jsonResult(map[string]any{
			"episodes": episodes,
			"count":    len(episodes),
		}), nil
	})
}

// decodePayload accepts a payload in the loose analysis shape and
// canonicalizes it through the mapper.
func decodePayload(svc *voice.Service, raw string) (extract.Payload, error) {
	var a extract.AnalysisResult
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return extract.Payload{}, fmt.Errorf("payload_json is not a JSON object: %v", err)
	}
	return svc.Canonicalize(a), nil
}

func jsonResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encoding result: %v", err))
	}
	return mcp.NewToolResultText(string(data))
}
