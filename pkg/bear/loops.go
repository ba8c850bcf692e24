package bear

import (
	"context"
	"time"

	"github.com/teslashibe/go-ruxpin/pkg/actuator"
)

// talkLoop follows the audio amplitude with the mouth while a performance
// owns it. It only returns when ctx is cancelled.
func (s *Service) talkLoop(ctx context.Context) error {
	s.logger.Debug("talk loop started")
	defer s.logger.Debug("talk loop stopped")

	for {
		interval := s.behavior.IdleInterval
		if s.mouthSync.Load() {
			interval = s.behavior.TalkInterval
			s.talkStep(ctx)
		}
		if err := sleep(ctx, interval); err != nil {
			return err
		}
	}
}

func (s *Service) talkStep(ctx context.Context) {
	s.talkMu.Lock()
	defer s.talkMu.Unlock()

	if !s.mouthSync.Load() {
		return
	}
	target := s.audio.MouthPosition()
	if err := s.mouth.SetPositionPercent(ctx, target, s.behavior.TalkMoveDuration); err != nil && ctx.Err() == nil {
		s.logger.Warn("talk step failed", "target", target, "error", err)
	}
}

// blinkLoop blinks the eyes at random intervals while idle. Conditions are
// checked again after the random wait since a performance or a manual move
// may have started in the meantime.
func (s *Service) blinkLoop(ctx context.Context) error {
	s.logger.Debug("blink loop started")
	defer s.logger.Debug("blink loop stopped")

	for {
		if !s.canBlink() {
			if err := sleep(ctx, s.behavior.BlinkRecheck); err != nil {
				return err
			}
			continue
		}

		delay := s.blinkDelay()
		s.logger.Debug("blink scheduled", "in", delay)
		if err := sleep(ctx, delay); err != nil {
			return err
		}

		if !s.canBlink() {
			s.logger.Debug("blink skipped",
				"enabled", s.blink.Load(),
				"busy", s.busy.Load(),
				"eyes", s.eyes.State(),
			)
			continue
		}
		if err := s.blinkOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn("blink failed", "error", err)
		}
	}
}

func (s *Service) canBlink() bool {
	return s.blink.Load() && !s.busy.Load() && s.eyes.State() == actuator.Open
}

func (s *Service) blinkDelay() time.Duration {
	span := s.behavior.BlinkMax - s.behavior.BlinkMin
	return s.behavior.BlinkMin + time.Duration(s.rand()*float64(span))
}

func (s *Service) blinkOnce(ctx context.Context) error {
	if err := s.eyes.CloseFor(ctx, s.behavior.BlinkMove); err != nil {
		return err
	}
	if err := sleep(ctx, s.behavior.BlinkPause); err != nil {
		return err
	}
	if err := s.eyes.OpenFor(ctx, s.behavior.BlinkMove); err != nil {
		return err
	}
	if s.observer != nil {
		s.observer.ObserveBlink()
	}
	s.logger.Debug("blinked")
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
