// Package protocol defines the WebSocket messages exchanged between the bear
// and its control clients. Every message is a flat JSON object with a "type"
// field; inbound payload fields sit next to it.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/teslashibe/go-ruxpin/pkg/actuator"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Client → bear
	TypeUpdateBear      MessageType = "update_bear"
	TypeSpeak           MessageType = "speak"
	TypePlay            MessageType = "play"
	TypeSetVolume       MessageType = "set_volume"
	TypeFetchPhrases    MessageType = "fetch_phrases"
	TypeSetBlinkEnabled MessageType = "set_blink_enabled"
	TypeSetLogLevel     MessageType = "set_log_level"
	TypeGetGPIOStatus   MessageType = "get_gpio_status"

	// Bear → client
	TypeBearState  MessageType = "bear_state"
	TypePhrases    MessageType = "phrases"
	TypeError      MessageType = "error"
	TypeSuccess    MessageType = "success"
	TypeLog        MessageType = "log"
	TypeGPIOStatus MessageType = "gpio_status"
)

// MaxSpeakLength is the longest text a speak message may carry.
const MaxSpeakLength = 500

// Message is an inbound message. The raw bytes are kept so the payload can
// be decoded once the type is known.
type Message struct {
	Type MessageType `json:"type"`
	raw  []byte
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var head struct {
		Type MessageType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if head.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return &Message{Type: head.Type, raw: data}, nil
}

// ParseData unmarshals the message into v and validates it.
func (m *Message) ParseData(v any) error {
	if err := json.Unmarshal(m.raw, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidPayload, m.Type, err)
	}
	return Validate(v)
}

// UpdateBear moves the eyes and/or mouth to a discrete position.
type UpdateBear struct {
	Eyes  *actuator.State `json:"eyes,omitempty" validate:"omitempty,oneof=open closed"`
	Mouth *actuator.State `json:"mouth,omitempty" validate:"omitempty,oneof=open closed"`
}

// Speak asks the bear to say text.
type Speak struct {
	Text string `json:"text" validate:"required,min=1,max=500"`
}

// Play asks the bear to perform a named sound.
type Play struct {
	Sound string `json:"sound" validate:"required,max=128"`
}

// SetVolume sets the output volume in percent.
type SetVolume struct {
	Level *int `json:"level" validate:"required,gte=0,lte=100"`
}

// SetBlinkEnabled toggles idle blinking.
type SetBlinkEnabled struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// SetLogLevel changes the process log level.
type SetLogLevel struct {
	Level string `json:"level" validate:"required,oneof=DEBUG INFO WARNING ERROR CRITICAL"`
}

// GetUpdateBear extracts an update_bear payload
func (m *Message) GetUpdateBear() (*UpdateBear, error) {
	var data UpdateBear
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetSpeak extracts a speak payload. Surrounding whitespace is trimmed
// before validation.
func (m *Message) GetSpeak() (*Speak, error) {
	var data Speak
	if err := json.Unmarshal(m.raw, &data); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, m.Type, err)
	}
	data.Text = strings.TrimSpace(data.Text)
	if err := Validate(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPlay extracts a play payload
func (m *Message) GetPlay() (*Play, error) {
	var data Play
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetSetVolume extracts a set_volume payload
func (m *Message) GetSetVolume() (*SetVolume, error) {
	var data SetVolume
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetSetBlinkEnabled extracts a set_blink_enabled payload
func (m *Message) GetSetBlinkEnabled() (*SetBlinkEnabled, error) {
	var data SetBlinkEnabled
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetSetLogLevel extracts a set_log_level payload. The level is matched
// case-insensitively and WARN is accepted for WARNING.
func (m *Message) GetSetLogLevel() (*SetLogLevel, error) {
	var data SetLogLevel
	if err := json.Unmarshal(m.raw, &data); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, m.Type, err)
	}
	data.Level = strings.ToUpper(strings.TrimSpace(data.Level))
	if data.Level == "WARN" {
		data.Level = "WARNING"
	}
	if err := Validate(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// Outbound is a message sent to clients.
type Outbound struct {
	Type    MessageType `json:"type"`
	Data    any         `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// Bytes returns the JSON-encoded message
func (o Outbound) Bytes() ([]byte, error) {
	return json.Marshal(o)
}

// GPIOStatus is the payload of a gpio_status message.
type GPIOStatus struct {
	Pins map[int]bool `json:"pins"`
}

// NewStateMessage wraps a bear state snapshot.
func NewStateMessage(state any) Outbound {
	return Outbound{Type: TypeBearState, Data: state}
}

// NewPhrasesMessage wraps the phrase table.
func NewPhrasesMessage(phrases map[string]string) Outbound {
	if phrases == nil {
		phrases = map[string]string{}
	}
	return Outbound{Type: TypePhrases, Data: phrases}
}

// NewErrorMessage reports a failed request.
func NewErrorMessage(msg string) Outbound {
	return Outbound{Type: TypeError, Message: msg}
}

// NewSuccessMessage acknowledges a request.
func NewSuccessMessage(msg string) Outbound {
	return Outbound{Type: TypeSuccess, Message: msg}
}

// NewLogMessage wraps a log record.
func NewLogMessage(record any) Outbound {
	return Outbound{Type: TypeLog, Data: record}
}

// NewGPIOStatusMessage wraps the last written level of each output pin.
func NewGPIOStatusMessage(pins map[int]bool) Outbound {
	if pins == nil {
		pins = map[int]bool{}
	}
	return Outbound{Type: TypeGPIOStatus, Data: GPIOStatus{Pins: pins}}
}
