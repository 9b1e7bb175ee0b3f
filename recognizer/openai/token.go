package openai

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/realtime"
)

// RealtimeEndpoint is the endpoint for WebRTC SDP exchange.
const RealtimeEndpoint = "https://api.openai.com/v1/realtime/calls"

// SessionToken holds the ephemeral key for one WebRTC call.
type SessionToken struct {
	Value     string
	ExpiresAt int64
}

var httpClient = &http.Client{Timeout: 30 * time.Second}

// TokenConfig describes the transcription session to mint a token for.
type TokenConfig struct {
	Model    string // transcription model, e.g. "gpt-4o-transcribe"
	Language string // language code, e.g. "en"
	Prompt   string // optional transcription prompt
}

// CreateToken mints an ephemeral client secret for a transcription
// session with semantic turn detection.
func CreateToken(ctx context.Context, apiKey string, cfg TokenConfig) (*SessionToken, error) {
	language := cfg.Language
	if language == "" || language == "auto" {
		language = "en"
	}
	model := cfg.Model
	if model == "" {
		model = string(realtime.AudioTranscriptionModelGPT4oTranscribe)
	}

	client := openai.NewClient(option.WithAPIKey(apiKey))

	transcription := realtime.AudioTranscriptionParam{
		Model:    realtime.AudioTranscriptionModel(model),
		Language: openai.String(language),
	}
	if cfg.Prompt != "" {
		transcription.Prompt = openai.String(cfg.Prompt)
	}

	params := realtime.ClientSecretNewParams{
		Session: realtime.ClientSecretNewParamsSessionUnion{
			OfTranscription: &realtime.RealtimeTranscriptionSessionCreateRequestParam{
				Audio: realtime.RealtimeTranscriptionSessionAudioParam{
					Input: realtime.RealtimeTranscriptionSessionAudioInputParam{
						TurnDetection: realtime.RealtimeTranscriptionSessionAudioInputTurnDetectionUnionParam{
							OfSemanticVad: &realtime.RealtimeTranscriptionSessionAudioInputTurnDetectionSemanticVadParam{
								Type:      "semantic_vad",
								Eagerness: "high",
							},
						},
						Transcription: transcription,
					},
				},
			},
		},
	}
	resp, err := client.Realtime.ClientSecrets.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("create client secret: %w", err)
	}

	return &SessionToken{Value: resp.Value, ExpiresAt: resp.ExpiresAt}, nil
}

// ExchangeSDP posts the local SDP offer and returns the SDP answer.
func ExchangeSDP(ctx context.Context, offer, ephemeralKey string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, RealtimeEndpoint, bytes.NewBufferString(offer))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+ephemeralKey)
	req.Header.Set("Content-Type", "application/sdp")

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("sdp exchange status %d: %s", resp.StatusCode, body)
	}
	return string(body), nil
}
