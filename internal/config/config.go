// Package config loads go-ruxpin configuration.
//
// Precedence is environment > YAML file > defaults. The YAML file is
// optional; a missing file leaves the defaults in place.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-ruxpin/pkg/actuator"
)

// Environments accepted by Config.Environment.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTesting     = "testing"
)

// Config is the complete runtime configuration.
type Config struct {
	Environment string `yaml:"environment" validate:"oneof=development production testing"`
	Debug       bool   `yaml:"debug"`
	LogLevel    string `yaml:"log_level" validate:"oneof=DEBUG INFO WARNING ERROR CRITICAL"`
	LogFormat   string `yaml:"log_format" validate:"oneof=text json"`
	Host        string `yaml:"host"`
	Port        int    `yaml:"port" validate:"gte=1,lte=65535"`

	Hardware Hardware `yaml:"hardware"`
	Audio    Audio    `yaml:"audio"`
	TTS      TTS      `yaml:"tts"`
	Behavior Behavior `yaml:"behavior"`

	PhrasesFile string `yaml:"phrases_file" validate:"required"`
	SoundsDir   string `yaml:"sounds_dir" validate:"required"`
}

// Hardware selects the GPIO backend and the two actuators.
type Hardware struct {
	GPIOBackend string   `yaml:"gpio_backend" validate:"oneof=auto vattu sim"`
	Eyes        Actuator `yaml:"eyes"`
	Mouth       Actuator `yaml:"mouth"`
}

// Actuator configures one motor.
type Actuator struct {
	Pins     actuator.PinAssignment `yaml:"pins"`
	Speed    int                    `yaml:"speed" validate:"gte=1,lte=1000"`
	Duration time.Duration          `yaml:"duration" validate:"gt=0,lte=2s"`
}

// Audio configures playback and the amplitude tracker.
type Audio struct {
	Device             string `yaml:"device"`
	Card               string `yaml:"card"`
	Mixer              string `yaml:"mixer" validate:"required"`
	StartVolume        int    `yaml:"start_volume" validate:"gte=0,lte=90"`
	SampleRate         int    `yaml:"sample_rate" validate:"gte=8000,lte=48000"`
	AmplitudeThreshold int    `yaml:"amplitude_threshold" validate:"gte=0"`
}

// TTS configures speech synthesis.
type TTS struct {
	Engine    string `yaml:"engine" validate:"required"`
	Voice     string `yaml:"voice"`
	Speed     int    `yaml:"speed" validate:"gte=80,lte=500"`
	Pitch     int    `yaml:"pitch" validate:"gte=0,lte=99"`
	OutputDir string `yaml:"output_dir" validate:"required"`
	APIKey    string `yaml:"-"`
}

// Behavior holds the orchestration timings. They were tuned on one bear
// and are expected to be adjusted per unit.
type Behavior struct {
	TalkInterval     time.Duration `yaml:"talk_interval" validate:"gt=0"`
	TalkMoveDuration time.Duration `yaml:"talk_move_duration" validate:"gt=0,lte=2s"`
	IdleInterval     time.Duration `yaml:"idle_interval" validate:"gt=0"`
	BlinkMin         time.Duration `yaml:"blink_min" validate:"gt=0"`
	BlinkMax         time.Duration `yaml:"blink_max" validate:"gtefield=BlinkMin"`
	BlinkMove        time.Duration `yaml:"blink_move" validate:"gt=0,lte=2s"`
	BlinkPause       time.Duration `yaml:"blink_pause" validate:"gte=0"`
	BlinkRecheck     time.Duration `yaml:"blink_recheck" validate:"gt=0"`
	ManualEyes       time.Duration `yaml:"manual_eyes" validate:"gt=0,lte=2s"`
	ManualMouth      time.Duration `yaml:"manual_mouth" validate:"gt=0,lte=2s"`
	DeadBand         int           `yaml:"dead_band" validate:"gte=0,lte=100"`
	MaxAmplitude     int           `yaml:"max_amplitude" validate:"gt=0"`
	BlinkEnabled     bool          `yaml:"blink_enabled"`
}

// DefaultConfig returns the stock bear configuration.
func DefaultConfig() *Config {
	return &Config{
		Environment: EnvDevelopment,
		LogLevel:    "INFO",
		LogFormat:   "text",
		Host:        "0.0.0.0",
		Port:        8080,
		Hardware: Hardware{
			GPIOBackend: "auto",
			Eyes: Actuator{
				Pins:     actuator.PinAssignment{PWM: 21, Dir: 16, CDir: 20},
				Speed:    100,
				Duration: 800 * time.Millisecond,
			},
			Mouth: Actuator{
				Pins:     actuator.PinAssignment{PWM: 25, Dir: 7, CDir: 8},
				Speed:    100,
				Duration: 300 * time.Millisecond,
			},
		},
		Audio: Audio{
			Mixer:              "PCM",
			StartVolume:        90,
			SampleRate:         16000,
			AmplitudeThreshold: 500,
		},
		TTS: TTS{
			Engine:    "espeak",
			Voice:     "en+m3",
			Speed:     125,
			Pitch:     50,
			OutputDir: "sounds/tts",
		},
		Behavior: Behavior{
			TalkInterval:     40 * time.Millisecond,
			TalkMoveDuration: 150 * time.Millisecond,
			IdleInterval:     150 * time.Millisecond,
			BlinkMin:         3 * time.Second,
			BlinkMax:         7 * time.Second,
			BlinkMove:        600 * time.Millisecond,
			BlinkPause:       200 * time.Millisecond,
			BlinkRecheck:     500 * time.Millisecond,
			ManualEyes:       800 * time.Millisecond,
			ManualMouth:      500 * time.Millisecond,
			DeadBand:         actuator.DefaultDeadBand,
			MaxAmplitude:     3000,
		},
		PhrasesFile: "config/phrases.json",
		SoundsDir:   "sounds",
	}
}

// Load reads path (if it exists), applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.Environment = strings.ToLower(cfg.Environment)
	cfg.LogLevel = strings.ToUpper(cfg.LogLevel)
	if cfg.LogLevel == "WARN" {
		cfg.LogLevel = "WARNING"
	}
	if cfg.Debug {
		cfg.LogLevel = "DEBUG"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	str := map[string]*string{
		"GO_ENV":              &c.Environment,
		"RUXPIN_HOST":         &c.Host,
		"RUXPIN_LOG_LEVEL":    &c.LogLevel,
		"RUXPIN_LOG_FORMAT":   &c.LogFormat,
		"RUXPIN_GPIO_BACKEND": &c.Hardware.GPIOBackend,
		"RUXPIN_AUDIO_DEVICE": &c.Audio.Device,
		"RUXPIN_AUDIO_CARD":   &c.Audio.Card,
		"RUXPIN_TTS_ENGINE":   &c.TTS.Engine,
		"RUXPIN_TTS_VOICE":    &c.TTS.Voice,
		"RUXPIN_PHRASES_FILE": &c.PhrasesFile,
		"RUXPIN_SOUNDS_DIR":   &c.SoundsDir,
	}
	for key, dst := range str {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	// Hosted engines read their usual key variables.
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && strings.Contains(c.TTS.Engine, "openai") {
		c.TTS.APIKey = v
	}
	if v := os.Getenv("ELEVENLABS_API_KEY"); v != "" && strings.Contains(c.TTS.Engine, "elevenlabs") {
		c.TTS.APIKey = v
	}

	if v := os.Getenv("RUXPIN_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: RUXPIN_PORT: %w", err)
		}
		c.Port = port
	}
	if v := os.Getenv("RUXPIN_DEBUG"); v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: RUXPIN_DEBUG: %w", err)
		}
		c.Debug = debug
	}
	return nil
}

// Addr returns host:port for the HTTP listener.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsProduction reports whether Environment is production.
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// Validate checks field ranges and that the six actuator pins are distinct.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, e := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s %s", e.Namespace(), formatValidationMessage(e)))
			}
			return fmt.Errorf("config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("config: %w", err)
	}

	for name, a := range map[string]Actuator{"eyes": c.Hardware.Eyes, "mouth": c.Hardware.Mouth} {
		if err := a.Pins.Validate(); err != nil {
			return fmt.Errorf("config: hardware.%s: %w", name, err)
		}
	}

	seen := make(map[int]string, 6)
	for _, p := range []struct {
		name string
		pin  int
	}{
		{"eyes.pwm", c.Hardware.Eyes.Pins.PWM},
		{"eyes.dir", c.Hardware.Eyes.Pins.Dir},
		{"eyes.cdir", c.Hardware.Eyes.Pins.CDir},
		{"mouth.pwm", c.Hardware.Mouth.Pins.PWM},
		{"mouth.dir", c.Hardware.Mouth.Pins.Dir},
		{"mouth.cdir", c.Hardware.Mouth.Pins.CDir},
	} {
		if other, ok := seen[p.pin]; ok {
			return fmt.Errorf("config: pin %d used by both %s and %s", p.pin, other, p.name)
		}
		seen[p.pin] = p.name
	}
	return nil
}

func formatValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "gt":
		return fmt.Sprintf("must be greater than %s", e.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", e.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", e.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", e.Param())
	case "gtefield":
		return fmt.Sprintf("must not be less than %s", e.Param())
	default:
		return fmt.Sprintf("failed validation '%s'", e.Tag())
	}
}
