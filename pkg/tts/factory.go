package tts

import (
	"fmt"
	"runtime"
	"strings"
)

// Engine names accepted by New.
const (
	EngineAuto       = "auto"
	EngineEspeak     = "espeak"
	EngineSay        = "say"
	EnginePiper      = "piper"
	EngineOpenAI     = "openai"
	EngineElevenLabs = "elevenlabs"
	EngineMock       = "mock"
)

// New creates the provider named by engine. "auto" picks say on macOS and
// espeak elsewhere. A comma-separated list builds a Chain, tried in order.
func New(engine string, opts ...Option) (Provider, error) {
	if strings.Contains(engine, ",") {
		var providers []Provider
		for _, name := range strings.Split(engine, ",") {
			p, err := New(strings.TrimSpace(name), opts...)
			if err != nil {
				return nil, err
			}
			providers = append(providers, p)
		}
		cfg := DefaultConfig()
		cfg.Apply(opts...)
		return NewChainWithLogger(cfg.Logger, providers...)
	}

	switch strings.ToLower(engine) {
	case EngineAuto, "":
		if runtime.GOOS == "darwin" {
			return NewSay(opts...), nil
		}
		return NewEspeak(opts...), nil
	case EngineEspeak:
		return NewEspeak(opts...), nil
	case "espeak-ng":
		return NewEspeak(append(opts, WithBinary("espeak-ng"))...), nil
	case EngineSay:
		return NewSay(opts...), nil
	case EnginePiper:
		return provider(NewPiper(opts...))
	case EngineOpenAI:
		return provider(NewOpenAI(opts...))
	case EngineElevenLabs:
		return provider(NewElevenLabs(opts...))
	case EngineMock:
		return NewMock(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, engine)
	}
}

// provider converts a constructor result so a failed constructor yields a
// nil interface rather than a typed nil.
func provider[P Provider](p P, err error) (Provider, error) {
	if err != nil {
		return nil, err
	}
	return p, nil
}
