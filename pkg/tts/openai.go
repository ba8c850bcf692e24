package tts

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/go-ruxpin/pkg/wav"
)

const (
	openAITTSURL    = "https://api.openai.com/v1/audio/speech"
	openAIModelsURL = "https://api.openai.com/v1/models"
	providerOpenAI  = "openai"
)

// OpenAI voices. Onyx is the closest to the bear's stock voice.
const (
	VoiceAlloy = "alloy"
	VoiceEcho  = "echo"
	VoiceFable = "fable"
	VoiceOnyx  = "onyx"
	VoiceNova  = "nova"
)

// OpenAI models
const (
	ModelTTS1   = "tts-1"
	ModelTTS1HD = "tts-1-hd"
)

// OpenAI synthesizes through the OpenAI speech endpoint, asking for WAV so
// the result can be played and enveloped like local output.
type OpenAI struct {
	model string
	voice string
	url   string
	http  *hosted
}

// NewOpenAI creates an OpenAI provider. An API key is required.
func NewOpenAI(opts ...Option) (*OpenAI, error) {
	cfg := DefaultConfig()
	cfg.ModelID = ModelTTS1
	cfg.Voice = VoiceOnyx
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, WrapError(providerOpenAI, err)
	}

	// espeak-style voice names mean nothing to OpenAI.
	if cfg.Voice == "" || strings.Contains(cfg.Voice, "+") {
		cfg.Voice = VoiceOnyx
	}
	url := cfg.BaseURL
	if url == "" {
		url = openAITTSURL
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+cfg.APIKey)

	return &OpenAI{
		model: cfg.ModelID,
		voice: cfg.Voice,
		url:   url,
		http:  newHosted(providerOpenAI, cfg, header, openAIError),
	}, nil
}

// Synthesize requests WAV audio for text.
func (o *OpenAI) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, WrapError(providerOpenAI, ErrEmptyText)
	}
	start := time.Now()

	body, err := json.Marshal(map[string]string{
		"model":           o.model,
		"voice":           o.voice,
		"input":           text,
		"response_format": "wav",
	})
	if err != nil {
		return nil, WrapError(providerOpenAI, fmt.Errorf("marshal payload: %w", err))
	}

	resp, err := o.http.post(ctx, o.url, "audio/wav", body)
	if err != nil {
		return nil, err
	}
	audio, err := o.http.readBody(resp)
	if err != nil {
		return nil, err
	}

	f, err := wav.Decode(audio)
	if err != nil {
		return nil, WrapError(providerOpenAI, fmt.Errorf("decode response: %w", err))
	}

	latency := time.Since(start).Milliseconds()
	o.http.logger.Debug("synthesized audio",
		"chars", len(text),
		"bytes", len(audio),
		"latency_ms", latency,
		"voice", o.voice,
	)

	return &AudioResult{
		Audio: audio,
		Format: AudioFormat{
			Encoding:   EncodingWAV,
			SampleRate: f.SampleRate,
			Channels:   f.Channels,
			BitDepth:   f.BitsPerSample,
		},
		Duration:  f.Duration(),
		CharCount: len(text),
		LatencyMs: latency,
	}, nil
}

// Health lists models to check the key.
func (o *OpenAI) Health(ctx context.Context) error {
	return o.http.check(ctx, openAIModelsURL)
}

// Close releases idle connections.
func (o *OpenAI) Close() error {
	o.http.close()
	return nil
}

// VoiceID returns the configured voice.
func (o *OpenAI) VoiceID() string {
	return o.voice
}

// openAIError decodes {"error": {"message", "code"}} bodies.
func openAIError(resp *http.Response) *APIError {
	var body struct {
		Error struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	return decodeAPIError(providerOpenAI, resp, &body, func() (string, string) {
		return body.Error.Message, body.Error.Code
	})
}

var _ Provider = (*OpenAI)(nil)
