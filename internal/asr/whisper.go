// Package asr transcribes recorded voice notes through a Whisper-compatible
// speech-to-text endpoint.
package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "whisper-1"

	transcribeEndpoint = "/audio/transcriptions"
	defaultTimeout     = 120 * time.Second
	providerName       = "openai-whisper"
)

// Result is a finished transcription. Confidence is nil when the response
// carries no segments.
type Result struct {
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence"`
	Provider   string   `json:"provider"`
}

// Transcriber is implemented by speech-to-text backends.
type Transcriber interface {
	Name() string
	Transcribe(ctx context.Context, audio []byte, format string) (Result, error)
}

// Client calls the /audio/transcriptions endpoint with verbose_json output.
type Client struct {
	apiKey   string
	baseURL  string
	model    string
	language string
	client   *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL sets the API base URL (proxies, tests).
func WithBaseURL(url string) Option {
	return func(c *Client) {
		if url != "" {
			c.baseURL = strings.TrimRight(url, "/")
		}
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithModel sets the model name.
func WithModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithLanguage sets the language hint. Empty disables it.
func WithLanguage(lang string) Option {
	return func(c *Client) { c.language = lang }
}

// New creates a Whisper client.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:   apiKey,
		baseURL:  DefaultBaseURL,
		model:    DefaultModel,
		language: "en",
		client:   &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the provider identifier stored with each clip.
func (c *Client) Name() string { return providerName }

type verboseResponse struct {
	Text     string `json:"text"`
	Segments []struct {
		AvgLogprob *float64 `json:"avg_logprob"`
	} `json:"segments"`
}

// Transcribe uploads audio and returns its text and segment confidence.
// format is the file extension of the recording ("m4a", "webm", "wav").
func (c *Client) Transcribe(ctx context.Context, audio []byte, format string) (Result, error) {
	if len(audio) == 0 {
		return Result{}, ErrEmptyAudio
	}
	format = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(format)), ".")
	if format == "" {
		format = "m4a"
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", "audio."+format)
	if err != nil {
		return Result{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return Result{}, fmt.Errorf("write audio: %w", err)
	}
	fields := [][2]string{{"model", c.model}, {"response_format", "verbose_json"}}
	if c.language != "" {
		fields = append(fields, [2]string{"language", c.language})
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return Result{}, fmt.Errorf("write %s field: %w", f[0], err)
		}
	}
	if err := w.Close(); err != nil {
		return Result{}, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+transcribeEndpoint, &buf)
	if err != nil {
		return Result{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return Result{}, requestError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, handleError(resp.StatusCode, body)
	}

	var vr verboseResponse
	if err := json.Unmarshal(body, &vr); err != nil {
		return Result{}, fmt.Errorf("parse response: %w", err)
	}

	var probs []float64
	for _, s := range vr.Segments {
		if s.AvgLogprob != nil {
			probs = append(probs, *s.AvgLogprob)
		}
	}
	return Result{
		Text:       strings.TrimSpace(vr.Text),
		Confidence: SegmentConfidence(probs),
		Provider:   providerName,
	}, nil
}

// SegmentConfidence converts per-segment average log probabilities into a
// single confidence: the mean of exp(logprob), rounded to four decimals.
func SegmentConfidence(avgLogprobs []float64) *float64 {
	if len(avgLogprobs) == 0 {
		return nil
	}
	var sum float64
	for _, lp := range avgLogprobs {
		sum += math.Exp(lp)
	}
	c := math.Round(sum/float64(len(avgLogprobs))*10000) / 10000
	return &c
}

func handleError(status int, body []byte) error {
	var er struct {
		Error struct {
			Message string `json:"message"`
			Code    any    `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &er); err != nil || er.Error.Message == "" {
		return NewStatusError(status, "", string(body))
	}
	code, _ := er.Error.Code.(string)
	return NewStatusError(status, code, er.Error.Message)
}
