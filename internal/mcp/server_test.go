package mcp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/migraineai/voicelog/internal/extract"
	"github.com/migraineai/voicelog/internal/store"
	"github.com/migraineai/voicelog/internal/temporal"
	"github.com/migraineai/voicelog/internal/voice"
)

const templeTranscript = "It's a 9 out of 10 pain in my left temple, triggered by stress, with nausea and light sensitivity"

var fixedNow = time.Date(2025, 3, 10, 14, 30, 45, 0, temporal.DefaultLocation())

// setupTestService creates a heuristics-only service over an in-memory store.
func setupTestService(t *testing.T) (*voice.Service, store.Store) {
	t.Helper()
	st, err := store.NewStore(store.StoreConfig{DBPath: ":memory:"})
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	resolver := temporal.NewResolver(temporal.WithNow(func() time.Time { return fixedNow }))
	svc := voice.New(voice.Config{
		Mapper: extract.NewMapper(resolver, extract.NewGuard(quiet)),
		Store:  st,
		Logger: quiet,
	})
	return svc, st
}

func TestNewServer(t *testing.T) {
	svc, _ := setupTestService(t)
	srv := NewServer(ServerConfig{Service: svc})
	if srv == nil {
		t.Fatal("NewServer returned nil")
	}
}

type toolResponse struct {
	Text    string
	IsError bool
}

// callTool invokes an MCP tool through a JSON-RPC tools/call frame.
func callTool(t *testing.T, srv *server.MCPServer, name string, args map[string]interface{}) toolResponse {
	t.Helper()

	result := srv.HandleMessage(context.Background(), mustMarshal(t, map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params": map[string]interface{}{
			"name":      name,
			"arguments": args,
		},
	}))

	respBytes, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}

	var resp struct {
		Result struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
			IsError bool `json:"isError"`
		} `json:"result"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		t.Fatalf("unmarshal response: %v\nraw: %s", err, string(respBytes))
	}
	if resp.Error != nil {
		t.Fatalf("JSON-RPC error: %d %s", resp.Error.Code, resp.Error.Message)
	}

	out := toolResponse{IsError: resp.Result.IsError}
	for _, c := range resp.Result.Content {
		if c.Type == "text" {
			out.Text = c.Text
			break
		}
	}
	return out
}

func mustMarshal(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func TestExtractTool(t *testing.T) {
	svc, _ := setupTestService(t)
	srv := NewServer(ServerConfig{Service: svc})

	resp := callTool(t, srv, "episode_extract", map[string]interface{}{
		"transcript": templeTranscript,
	})
	if resp.IsError {
		t.Fatalf("unexpected tool error: %s", resp.Text)
	}

	var res voice.Result
	if err := json.Unmarshal([]byte(resp.Text), &res); err != nil {
		t.Fatalf("parsing extract result: %v", err)
	}
	if res.Payload.Intensity == nil || *res.Payload.Intensity != 9 {
		t.Errorf("intensity = %v, want 9", res.Payload.Intensity)
	}
	if res.Payload.PainLocation != "left temple" {
		t.Errorf("pain_location = %q, want %q", res.Payload.PainLocation, "left temple")
	}
	if len(res.Context.Missing) != 1 || res.Context.Missing[0] != extract.FieldStartTime {
		t.Errorf("missing = %v, want [start_time]", res.Context.Missing)
	}
}

func TestExtractToolRejectsBlankTranscript(t *testing.T) {
	svc, _ := setupTestService(t)
	srv := NewServer(ServerConfig{Service: svc})

	resp := callTool(t, srv, "episode_extract", map[string]interface{}{"transcript": "   "})
	if !resp.IsError {
		t.Fatalf("expected tool error, got %s", resp.Text)
	}
}

func TestExtractToolHallucination(t *testing.T) {
	svc, _ := setupTestService(t)
	srv := NewServer(ServerConfig{Service: svc})

	resp := callTool(t, srv, "episode_extract", map[string]interface{}{"transcript": "Thanks for watching!"})
	if resp.IsError {
		t.Fatalf("unexpected tool error: %s", resp.Text)
	}
	var res voice.Result
	if err := json.Unmarshal([]byte(resp.Text), &res); err != nil {
		t.Fatalf("parsing extract result: %v", err)
	}
	if !res.Rejected {
		t.Error("expected transcript to be rejected")
	}
	if !res.Payload.IsEmpty() {
		t.Errorf("expected empty payload, got %+v", res.Payload)
	}
}

func TestNextQuestionToolAskOnce(t *testing.T) {
	svc, _ := setupTestService(t)
	srv := NewServer(ServerConfig{Service: svc})

	resp := callTool(t, srv, "episode_next_question", map[string]interface{}{
		"transcript":   "I'm not sure",
		"payload_json": `{"intensity": 7, "pain_location": "forehead", "symptoms": ["nausea"], "triggers": ["stress"]}`,
		"asked_field":  "start_time",
	})
	if resp.IsError {
		t.Fatalf("unexpected tool error: %s", resp.Text)
	}

	var res voice.TurnResult
	if err := json.Unmarshal([]byte(resp.Text), &res); err != nil {
		t.Fatalf("parsing turn result: %v", err)
	}
	if res.Payload.StartTime == nil {
		t.Fatal("expected start_time defaulted after asking once")
	}
	if !res.Payload.StartTime.Equal(fixedNow) {
		t.Errorf("start_time = %v, want %v", res.Payload.StartTime, fixedNow)
	}
	if res.Turn.IsFollowupRequired {
		t.Errorf("expected no follow-up, got %+v", res.Turn)
	}
}

func TestNextQuestionToolAsksForMissingField(t *testing.T) {
	svc, _ := setupTestService(t)
	srv := NewServer(ServerConfig{Service: svc})

	resp := callTool(t, srv, "episode_next_question", map[string]interface{}{
		"transcript": templeTranscript,
	})
	if resp.IsError {
		t.Fatalf("unexpected tool error: %s", resp.Text)
	}
	var res voice.TurnResult
	if err := json.Unmarshal([]byte(resp.Text), &res); err != nil {
		t.Fatalf("parsing turn result: %v", err)
	}
	if !res.Turn.IsFollowupRequired || res.Turn.NextQuestionField != extract.FieldStartTime {
		t.Errorf("turn = %+v, want follow-up on start_time", res.Turn)
	}
	if strings.TrimSpace(res.Turn.AssistantResponse) == "" {
		t.Error("expected a question")
	}
}

func TestNextQuestionToolInvalidPayload(t *testing.T) {
	svc, _ := setupTestService(t)
	srv := NewServer(ServerConfig{Service: svc})

	resp := callTool(t, srv, "episode_next_question", map[string]interface{}{
		"payload_json": "not json",
	})
	if !resp.IsError {
		t.Fatalf("expected tool error, got %s", resp.Text)
	}
}

func TestSaveAndListTools(t *testing.T) {
	svc, _ := setupTestService(t)
	srv := NewServer(ServerConfig{Service: svc})

	resp := callTool(t, srv, "episode_save", map[string]interface{}{
		"user_id":      float64(7),
		"payload_json": `{"intensity": 6, "triggers": ["stress"]}`,
		"transcript":   "six out of ten, stress",
	})
	if resp.IsError {
		t.Fatalf("unexpected tool error: %s", resp.Text)
	}
	var ep store.Episode
	if err := json.Unmarshal([]byte(resp.Text), &ep); err != nil {
		t.Fatalf("parsing episode: %v", err)
	}
	if ep.ID == 0 || ep.UserID != 7 {
		t.Fatalf("episode = %+v", ep)
	}

	resp = callTool(t, srv, "episode_save", map[string]interface{}{
		"user_id":      float64(7),
		"episode_id":   float64(ep.ID),
		"payload_json": `{"pain_location": "behind the eyes"}`,
	})
	if resp.IsError {
		t.Fatalf("unexpected tool error on update: %s", resp.Text)
	}
	var updated store.Episode
	if err := json.Unmarshal([]byte(resp.Text), &updated); err != nil {
		t.Fatalf("parsing updated episode: %v", err)
	}
	if updated.ID != ep.ID {
		t.Errorf("update created a new episode: %d != %d", updated.ID, ep.ID)
	}
	if updated.Payload.Intensity == nil || *updated.Payload.Intensity != 6 {
		t.Errorf("intensity lost on merge: %v", updated.Payload.Intensity)
	}
	if updated.Payload.PainLocation != "behind the eyes" {
		t.Errorf("pain_location = %q", updated.Payload.PainLocation)
	}

	resp = callTool(t, srv, "episode_list", map[string]interface{}{
		"user_id": float64(7),
		"limit":   float64(500),
	})
	if resp.IsError {
		t.Fatalf("unexpected tool error on list: %s", resp.Text)
	}
	var listed struct {
		Episodes []store.Episode `json:"episodes"`
		Count    int             `json:"count"`
	}
	if err := json.Unmarshal([]byte(resp.Text), &listed); err != nil {
		t.Fatalf("parsing list: %v", err)
	}
	if listed.Count != 1 || len(listed.Episodes) != 1 {
		t.Fatalf("expected 1 episode, got %d", listed.Count)
	}

	resp = callTool(t, srv, "episode_list", map[string]interface{}{"user_id": float64(8)})
	if err := json.Unmarshal([]byte(resp.Text), &listed); err != nil {
		t.Fatalf("parsing list: %v", err)
	}
	if listed.Count != 0 {
		t.Errorf("expected no episodes for another user, got %d", listed.Count)
	}
}

func TestSaveToolValidation(t *testing.T) {
	svc, _ := setupTestService(t)
	srv := NewServer(ServerConfig{Service: svc})

	tests := []struct {
		name string
		args map[string]interface{}
	}{
		{"missing user", map[string]interface{}{"payload_json": `{"intensity": 5}`}},
		{"zero user", map[string]interface{}{"user_id": float64(0), "payload_json": `{"intensity": 5}`}},
		{"missing payload", map[string]interface{}{"user_id": float64(1)}},
		{"bad payload", map[string]interface{}{"user_id": float64(1), "payload_json": "[1,2]"}},
		{"unknown episode", map[string]interface{}{"user_id": float64(1), "episode_id": float64(99), "payload_json": `{"intensity": 5}`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := callTool(t, srv, "episode_save", tt.args)
			if !resp.IsError {
				t.Errorf("expected tool error, got %s", resp.Text)
			}
		})
	}
}

func TestRecentResource(t *testing.T) {
	svc, st := setupTestService(t)
	srv := NewServer(ServerConfig{Service: svc})

	intensity := 4
	if _, err := st.CreateEpisode(context.Background(), 3, "", extract.Payload{Intensity: &intensity}, ""); err != nil {
		t.Fatalf("creating episode: %v", err)
	}

	result := srv.HandleMessage(context.Background(), mustMarshal(t, map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      2,
		"method":  "resources/read",
		"params":  map[string]interface{}{"uri": "voicelog://episodes/recent"},
	}))
	raw, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}

	var resp struct {
		Result struct {
			Contents []mcplib.TextResourceContents `json:"contents"`
		} `json:"result"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("unmarshal response: %v\nraw: %s", err, raw)
	}
	if len(resp.Result.Contents) != 1 {
		t.Fatalf("expected one content block, got %s", raw)
	}

	var recent []struct {
		ID      int64           `json:"id"`
		UserID  int64           `json:"user_id"`
		Payload extract.Payload `json:"payload"`
	}
	if err := json.Unmarshal([]byte(resp.Result.Contents[0].Text), &recent); err != nil {
		t.Fatalf("parsing resource: %v", err)
	}
	if len(recent) != 1 || recent[0].UserID != 3 {
		t.Fatalf("recent = %+v", recent)
	}
	if recent[0].Payload.Intensity == nil || *recent[0].Payload.Intensity != 4 {
		t.Errorf("payload = %+v", recent[0].Payload)
	}
}
