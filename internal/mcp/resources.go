package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/migraineai/voicelog/internal/extract"
	"github.com/migraineai/voicelog/internal/store"
)

const recentEpisodesLimit = 20

func registerRecentResource(s *server.MCPServer, st store.Store) {
	resource := mcp.NewResource(
		"voicelog://episodes/recent",
		"Recent Episodes",
		mcp.WithResourceDescription("The 20 most recently logged migraine episodes."),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		episodes, err := st.ListEpisodes(ctx, store.ListOpts{Limit: recentEpisodesLimit})
		if err != nil {
			return nil, fmt.Errorf("listing recent episodes: %w", err)
		}

		type recentEpisode struct {
			ID        int64           `json:"id"`
			UserID    int64           `json:"user_id"`
			Payload   extract.Payload `json:"payload"`
			CreatedAt string          `json:"created_at"`
		}
		recent := make([]recentEpisode, 0, len(episodes))
		for _, ep := range episodes {
			recent = append(recent, recentEpisode{
				ID:        ep.ID,
				UserID:    ep.UserID,
				Payload:   ep.Payload,
				CreatedAt: ep.CreatedAt.Format(time.RFC3339),
			})
		}

		data, _ := json.MarshalIndent(recent, "", "  ")
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	})
}
