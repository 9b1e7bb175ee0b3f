package recognizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

const (
	defaultWhisperURL = "https://api.openai.com/v1/audio/transcriptions"
	whisperSampleRate = 16000
)

// WhisperAPIConfig holds configuration for the hosted Whisper backend.
type WhisperAPIConfig struct {
	APIKey  string
	BaseURL string // optional, defaults to the OpenAI endpoint
	Model   string // optional, defaults to "whisper-1"
}

// WhisperAPI transcribes through OpenAI's hosted Whisper model. The
// voice activity detector cuts the stream into utterances and each one
// is uploaded as a WAV file, so all segments arrive final.
type WhisperAPI struct {
	apiKey  string
	baseURL string
	model   string
	http    *http.Client
}

// NewWhisperAPI creates the hosted Whisper provider.
func NewWhisperAPI(cfg WhisperAPIConfig) *WhisperAPI {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultWhisperURL
	}
	if cfg.Model == "" {
		cfg.Model = "whisper-1"
	}
	return &WhisperAPI{
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

func (w *WhisperAPI) Name() string        { return "whisper-api" }
func (w *WhisperAPI) DisplayName() string { return "OpenAI Whisper API" }

// Available is true with an API key or a custom endpoint; self-hosted
// Whisper servers take no key.
func (w *WhisperAPI) Available() bool {
	return w.apiKey != "" || w.baseURL != defaultWhisperURL
}

func (w *WhisperAPI) NewSession(cfg SessionConfig) (Session, error) {
	if !w.Available() {
		return nil, fmt.Errorf("whisper-api: %w", ErrUnavailable)
	}
	return newChunkedSession(cfg, w.transcribe, DefaultVADConfig(), whisperSampleRate), nil
}

func (w *WhisperAPI) transcribe(ctx context.Context, samples []float32, sampleRate int, language string) (string, error) {
	wavData, err := encodeWAV(samples, sampleRate)
	if err != nil {
		return "", fmt.Errorf("encode wav: %w", err)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(wavData); err != nil {
		return "", fmt.Errorf("write audio data: %w", err)
	}
	if err := writer.WriteField("model", w.model); err != nil {
		return "", fmt.Errorf("write model field: %w", err)
	}
	// The API rejects "auto"; an absent field means auto-detect.
	if language != "" && language != "auto" {
		if err := writer.WriteField("language", language); err != nil {
			return "", fmt.Errorf("write language field: %w", err)
		}
	}
	if err := writer.WriteField("response_format", "json"); err != nil {
		return "", fmt.Errorf("write response_format field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL, &buf)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if w.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+w.apiKey)
	}

	resp, err := w.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("whisper api status %d: %s", resp.StatusCode, string(body))
	}

	var apiResp struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	return apiResp.Text, nil
}
