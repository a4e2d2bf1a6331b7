package asr

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscribe(t *testing.T) {
	var gotModel, gotFormat, gotLang, gotFile, gotAuth, gotName string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/transcriptions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		gotModel = r.FormValue("model")
		gotFormat = r.FormValue("response_format")
		gotLang = r.FormValue("language")
		f, hdr, err := r.FormFile("file")
		if assert.NoError(t, err) {
			b, _ := io.ReadAll(f)
			gotFile = string(b)
			gotName = hdr.Filename
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":" I have a headache since 7am ","segments":[{"avg_logprob":0},{"avg_logprob":-0.6931471805599453}]}`))
	}))
	defer srv.Close()

	c := New("sk-test", WithBaseURL(srv.URL+"/"), WithModel("whisper-large"))
	res, err := c.Transcribe(context.Background(), []byte("RIFFDATA"), ".WAV")
	require.NoError(t, err)

	assert.Equal(t, "I have a headache since 7am", res.Text)
	require.NotNil(t, res.Confidence)
	assert.Equal(t, 0.75, *res.Confidence)
	assert.Equal(t, "openai-whisper", res.Provider)

	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "whisper-large", gotModel)
	assert.Equal(t, "verbose_json", gotFormat)
	assert.Equal(t, "en", gotLang)
	assert.Equal(t, "RIFFDATA", gotFile)
	assert.Equal(t, "audio.wav", gotName)
}

func TestTranscribeWithoutSegments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"text":"hello"}`))
	}))
	defer srv.Close()

	res, err := New("k", WithBaseURL(srv.URL)).Transcribe(context.Background(), []byte("x"), "")
	require.NoError(t, err)
	assert.Equal(t, "hello", res.Text)
	assert.Nil(t, res.Confidence)
}

func TestTranscribeEmptyAudio(t *testing.T) {
	_, err := New("k").Transcribe(context.Background(), nil, "m4a")
	assert.ErrorIs(t, err, ErrEmptyAudio)
}

func TestTranscribeErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		code      string
		retryable bool
		cause     error
		msg       string
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"slow down","code":"rate_limit_exceeded"}}`, "rate_limit_exceeded", true, ErrRateLimited,
			"transcribe voice note via openai-whisper: HTTP 429 (rate_limit_exceeded): slow down"},
		{"bad key", http.StatusUnauthorized, `{"error":{"message":"bad key","code":"invalid_api_key"}}`, "invalid_api_key", false, ErrUnauthorized,
			"transcribe voice note via openai-whisper: HTTP 401 (invalid_api_key): bad key"},
		{"server error", http.StatusBadGateway, "upstream down\n", "502", true, nil,
			"transcribe voice note via openai-whisper: HTTP 502: upstream down"},
		{"bad request", http.StatusBadRequest, `{"error":{"message":"audio too short","code":null}}`, "400", false, nil,
			"transcribe voice note via openai-whisper: HTTP 400: audio too short"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := New("k", WithBaseURL(srv.URL)).Transcribe(context.Background(), []byte("x"), "m4a")
			require.Error(t, err)
			var te *TranscriptionError
			require.True(t, errors.As(err, &te))
			assert.Equal(t, tt.status, te.Status)
			assert.Equal(t, tt.code, te.Code)
			assert.Equal(t, tt.msg, err.Error())
			assert.Equal(t, tt.retryable, IsRetryable(err))
			if tt.cause != nil {
				assert.ErrorIs(t, err, tt.cause)
			}
			assert.ErrorIs(t, err, &TranscriptionError{Status: tt.status})
			assert.ErrorIs(t, err, &TranscriptionError{Provider: providerName, Code: tt.code})
			assert.NotErrorIs(t, err, &TranscriptionError{Status: http.StatusTeapot})
		})
	}
}

func TestTranscribeUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New("k", WithBaseURL(url)).Transcribe(context.Background(), []byte("x"), "m4a")
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
	assert.Contains(t, err.Error(), "transcribe voice note via openai-whisper: upload failed: ")
}

func TestSegmentConfidence(t *testing.T) {
	assert.Nil(t, SegmentConfidence(nil))
	c := SegmentConfidence([]float64{-0.1053605156578263})
	require.NotNil(t, c)
	assert.Equal(t, 0.9, *c)
}
