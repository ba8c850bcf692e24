package tts

import (
	"log/slog"
	"time"
)

// DefaultTimeout bounds one hosted synthesis request or local command.
const DefaultTimeout = 30 * time.Second

// Config is shared by every engine; each reads the fields it understands.
type Config struct {
	APIKey  string
	BaseURL string // hosted endpoint override, mainly for tests

	// Voice is an espeak voice ("en+m3"), a say voice, a piper model path
	// or a hosted voice ID depending on the engine.
	Voice   string
	ModelID string
	Speed   int // espeak words per minute
	Pitch   int // espeak 0-99

	SampleRate   int
	OutputFormat Encoding
	Binary       string

	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration

	Logger *slog.Logger

	run runner
}

// Option adjusts a Config.
type Option func(*Config)

func WithAPIKey(key string) Option       { return func(c *Config) { c.APIKey = key } }
func WithBaseURL(u string) Option        { return func(c *Config) { c.BaseURL = u } }
func WithVoice(voice string) Option      { return func(c *Config) { c.Voice = voice } }
func WithModel(id string) Option         { return func(c *Config) { c.ModelID = id } }
func WithSpeed(wpm int) Option           { return func(c *Config) { c.Speed = wpm } }
func WithPitch(pitch int) Option         { return func(c *Config) { c.Pitch = pitch } }
func WithSampleRate(hz int) Option       { return func(c *Config) { c.SampleRate = hz } }
func WithBinary(path string) Option      { return func(c *Config) { c.Binary = path } }
func WithTimeout(d time.Duration) Option { return func(c *Config) { c.Timeout = d } }
func WithLogger(l *slog.Logger) Option   { return func(c *Config) { c.Logger = l } }

// WithRetry sets how often a hosted request is retried after a 429, a 5xx
// or a transport error. The wait grows linearly from delay.
func WithRetry(n int, delay time.Duration) Option {
	return func(c *Config) {
		c.MaxRetries = n
		c.RetryDelay = delay
	}
}

func withRunner(r runner) Option { return func(c *Config) { c.run = r } }

// DefaultConfig returns the espeak settings the bear was tuned with.
func DefaultConfig() *Config {
	return &Config{
		Speed:        125,
		Pitch:        50,
		SampleRate:   16000,
		OutputFormat: EncodingPCM16,
		Timeout:      DefaultTimeout,
		MaxRetries:   3,
		RetryDelay:   100 * time.Millisecond,
		Logger:       slog.Default(),
		run:          execRunner,
	}
}

// Apply runs opts in order and restores any defaults they cleared.
func (c *Config) Apply(opts ...Option) {
	for _, o := range opts {
		o(c)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.run == nil {
		c.run = execRunner
	}
}

// Validate requires an API key.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return ErrNoAPIKey
	}
	return nil
}

// ValidateWithVoice requires an API key and a voice.
func (c *Config) ValidateWithVoice() error {
	switch {
	case c.APIKey == "":
		return ErrNoAPIKey
	case c.Voice == "":
		return ErrNoVoiceID
	}
	return nil
}
