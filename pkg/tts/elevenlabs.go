package tts

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/teslashibe/go-ruxpin/pkg/wav"
)

const (
	elevenLabsBaseURL  = "https://api.elevenlabs.io/v1"
	providerElevenLabs = "elevenlabs"
)

// ElevenLabs models
const (
	ModelTurboV2_5      = "eleven_turbo_v2_5"
	ModelMultilingualV2 = "eleven_multilingual_v2"
)

// ElevenLabs synthesizes through the ElevenLabs REST API. Raw PCM is
// requested and wrapped in a WAV header locally.
type ElevenLabs struct {
	model   string
	voice   string
	format  Encoding
	baseURL string
	http    *hosted
}

// NewElevenLabs creates an ElevenLabs provider. An API key and a voice ID
// are required.
func NewElevenLabs(opts ...Option) (*ElevenLabs, error) {
	cfg := DefaultConfig()
	cfg.ModelID = ModelTurboV2_5
	cfg.Apply(opts...)

	if err := cfg.ValidateWithVoice(); err != nil {
		return nil, WrapError(providerElevenLabs, err)
	}
	switch cfg.OutputFormat {
	case EncodingPCM16, EncodingPCM22, EncodingPCM24, EncodingPCM44:
	default:
		cfg.OutputFormat = EncodingPCM16
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = elevenLabsBaseURL
	}

	header := http.Header{}
	header.Set("xi-api-key", cfg.APIKey)

	return &ElevenLabs{
		model:   cfg.ModelID,
		voice:   cfg.Voice,
		format:  cfg.OutputFormat,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    newHosted(providerElevenLabs, cfg, header, elevenLabsError),
	}, nil
}

// Synthesize converts text to a WAV buffer.
func (e *ElevenLabs) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, WrapError(providerElevenLabs, ErrEmptyText)
	}
	start := time.Now()

	endpoint := fmt.Sprintf("%s/text-to-speech/%s?output_format=%s",
		e.baseURL, url.PathEscape(e.voice), e.format)

	body, err := json.Marshal(map[string]string{
		"text":     text,
		"model_id": e.model,
	})
	if err != nil {
		return nil, WrapError(providerElevenLabs, fmt.Errorf("marshal payload: %w", err))
	}

	resp, err := e.http.post(ctx, endpoint, "audio/pcm", body)
	if err != nil {
		return nil, err
	}
	pcm, err := e.http.readBody(resp)
	if err != nil {
		return nil, err
	}

	format := AudioFormat{
		Encoding:   EncodingWAV,
		SampleRate: SampleRateFromEncoding(e.format),
		Channels:   1,
		BitDepth:   16,
	}
	latency := time.Since(start).Milliseconds()
	e.http.logger.Debug("synthesized audio",
		"chars", len(text),
		"bytes", len(pcm),
		"latency_ms", latency,
		"model", e.model,
	)

	return &AudioResult{
		Audio:     wav.EncodePCM(pcm, format.SampleRate, format.Channels),
		Format:    format,
		Duration:  durationOf(len(pcm), format),
		CharCount: len(text),
		LatencyMs: latency,
	}, nil
}

// Health checks the API key against the user endpoint.
func (e *ElevenLabs) Health(ctx context.Context) error {
	return e.http.check(ctx, e.baseURL+"/user")
}

// Close releases idle connections.
func (e *ElevenLabs) Close() error {
	e.http.close()
	return nil
}

// elevenLabsError decodes {"detail": {"message", "status"}} bodies.
func elevenLabsError(resp *http.Response) *APIError {
	var body struct {
		Detail struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"detail"`
	}
	return decodeAPIError(providerElevenLabs, resp, &body, func() (string, string) {
		return body.Detail.Message, body.Detail.Status
	})
}

var _ Provider = (*ElevenLabs)(nil)
