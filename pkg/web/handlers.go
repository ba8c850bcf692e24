package web

import (
	"github.com/gofiber/fiber/v2"
)

// handleHealth reports liveness and version
func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"version": s.cfg.Version,
		"clients": s.hub.ClientCount(),
	})
}

// handleState returns the bear's current state
func (s *Server) handleState(c *fiber.Ctx) error {
	return c.JSON(s.cfg.Bear.State())
}

// handlePhrases returns the phrase table
func (s *Server) handlePhrases(c *fiber.Ctx) error {
	phrases := s.cfg.Bear.Phrases()
	if phrases == nil {
		phrases = map[string]string{}
	}
	return c.JSON(phrases)
}

// handleGPIO returns the last written level of every output pin
func (s *Server) handleGPIO(c *fiber.Ctx) error {
	if s.cfg.GPIO == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "gpio not configured",
		})
	}
	return c.JSON(fiber.Map{
		"backend": s.cfg.GPIO.Backend(),
		"pins":    s.cfg.GPIO.PinStates(),
	})
}
