package web

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/contrib/websocket"

	"github.com/teslashibe/go-ruxpin/pkg/hub"
	"github.com/teslashibe/go-ruxpin/pkg/protocol"
)

// handleWS registers the connection, sends the current state and phrases,
// then serves its messages until it closes.
func (s *Server) handleWS(conn *websocket.Conn) {
	client := hub.NewClient(s.hub, conn)
	s.reply(client, protocol.NewStateMessage(s.cfg.Bear.State()))
	s.reply(client, protocol.NewPhrasesMessage(s.cfg.Bear.Phrases()))
	client.Run(s.handleMessage)
}

func (s *Server) reply(c *hub.Client, msg protocol.Outbound) {
	if err := c.SendJSON(msg); err != nil {
		s.logger.Error("failed to encode reply", "type", msg.Type, "error", err)
	}
}

// fail sends err to the requesting client only, followed by a state
// broadcast so every client sees the outcome.
func (s *Server) fail(c *hub.Client, err error) {
	s.reply(c, protocol.NewErrorMessage(err.Error()))
	s.broadcastState()
}

func (s *Server) handleMessage(c *hub.Client, data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		s.reply(c, protocol.NewErrorMessage(err.Error()))
		return
	}
	s.logger.Debug("message received", "client", c.ID, "type", msg.Type)

	switch msg.Type {
	case protocol.TypeUpdateBear:
		req, err := msg.GetUpdateBear()
		if err != nil {
			s.reply(c, protocol.NewErrorMessage(err.Error()))
			return
		}
		if _, err := s.cfg.Bear.UpdatePositions(s.ctx, req.Eyes, req.Mouth); err != nil {
			s.fail(c, err)
			return
		}
		s.broadcastState()

	case protocol.TypeSpeak:
		req, err := msg.GetSpeak()
		if err != nil {
			s.reply(c, protocol.NewErrorMessage(err.Error()))
			return
		}
		go s.perform(c, func(ctx context.Context) error {
			return s.cfg.Bear.Speak(ctx, req.Text)
		})

	case protocol.TypePlay:
		req, err := msg.GetPlay()
		if err != nil {
			s.reply(c, protocol.NewErrorMessage(err.Error()))
			return
		}
		go s.perform(c, func(ctx context.Context) error {
			return s.cfg.Bear.Play(ctx, req.Sound)
		})

	case protocol.TypeSetVolume:
		req, err := msg.GetSetVolume()
		if err != nil {
			s.reply(c, protocol.NewErrorMessage(err.Error()))
			return
		}
		if err := s.cfg.Bear.SetVolume(s.ctx, *req.Level); err != nil {
			s.fail(c, err)
			return
		}
		s.reply(c, protocol.NewSuccessMessage(fmt.Sprintf("volume set to %d%%", *req.Level)))
		s.broadcastState()

	case protocol.TypeFetchPhrases:
		s.reply(c, protocol.NewPhrasesMessage(s.cfg.Bear.Phrases()))

	case protocol.TypeSetBlinkEnabled:
		req, err := msg.GetSetBlinkEnabled()
		if err != nil {
			s.reply(c, protocol.NewErrorMessage(err.Error()))
			return
		}
		s.cfg.Bear.SetBlinkEnabled(*req.Enabled)
		s.broadcastState()

	case protocol.TypeSetLogLevel:
		req, err := msg.GetSetLogLevel()
		if err != nil {
			s.reply(c, protocol.NewErrorMessage(err.Error()))
			return
		}
		if s.cfg.SetLogLevel == nil {
			s.reply(c, protocol.NewErrorMessage("log level changes are disabled"))
			return
		}
		if err := s.cfg.SetLogLevel(req.Level); err != nil {
			s.reply(c, protocol.NewErrorMessage(err.Error()))
			return
		}
		s.logger.Info("log level changed", "level", req.Level, "client", c.ID)
		s.reply(c, protocol.NewSuccessMessage("log level set to "+req.Level))

	case protocol.TypeGetGPIOStatus:
		if s.cfg.GPIO == nil {
			s.reply(c, protocol.NewErrorMessage("gpio not configured"))
			return
		}
		s.reply(c, protocol.NewGPIOStatusMessage(s.cfg.GPIO.PinStates()))

	default:
		s.reply(c, protocol.NewErrorMessage(fmt.Errorf("%w: %s", protocol.ErrUnknownType, msg.Type).Error()))
	}
}

// perform announces the bear as busy, runs fn and broadcasts the final
// state. Failures go to the requesting client.
func (s *Server) perform(c *hub.Client, fn func(context.Context) error) {
	st := s.cfg.Bear.State()
	st.IsBusy = true
	s.broadcast(protocol.NewStateMessage(st))

	if err := fn(s.ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			s.fail(c, err)
		}
		return
	}
	s.broadcastState()
}
