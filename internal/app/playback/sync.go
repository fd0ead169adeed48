package playback

import (
	"context"
	"time"

	"github.com/osa030/moodbox/internal/domain/feedback"
	"github.com/osa030/moodbox/internal/domain/track"
	zlog "github.com/rs/zerolog/log"
)

// runSynchronizer polls the engine every PollInterval until teardown.
func (c *Controller) runSynchronizer() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.Sync(c.ctx)
		}
	}
}

// Sync reconciles the elapsed position and paused flag with the engine and
// schedules auto-advance near the end of the current track.
func (c *Controller) Sync(ctx context.Context) {
	c.mu.Lock()
	if c.state != StateReady {
		c.mu.Unlock()
		return
	}
	index := c.position
	seq := c.commandSeq
	id, _ := c.queue.Get(index)
	c.mu.Unlock()

	reqCtx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	ext, err := c.engine.PlaybackState(reqCtx)
	cancel()
	if err != nil {
		zlog.Debug().Err(err).Msg("playback: failed to read engine state")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateReady || c.position != index {
		return
	}
	// Engine state read before a queued command was delivered is stale
	if c.commandSeq != seq || c.pendingCommands > 0 {
		return
	}
	if ext == nil {
		return
	}
	if ext.TrackID != "" && ext.TrackID != id {
		zlog.Debug().Msgf("playback: engine reports another track, skipping sync: want=%s got=%s", id, ext.TrackID)
		return
	}

	t := c.currentTrackLocked()
	if t == nil || c.playing != index {
		return
	}

	if !c.scrubbing {
		pos := ext.Position
		if pos < 0 {
			pos = 0
		}
		if pos > t.Duration {
			pos = t.Duration
		}
		c.elapsed = pos
	}
	c.setPausedLocked(!ext.Playing)

	c.maybeScheduleAutoAdvanceLocked(t, ext)
}

func (c *Controller) maybeScheduleAutoAdvanceLocked(t *track.Track, ext *track.PlayerState) {
	if !ext.Playing || c.scrubbing || c.autoAdvanceCancel != nil || c.autoAdvanced {
		return
	}

	remaining := ext.Remaining(t.Duration)
	if remaining > c.config.AutoAdvanceThreshold {
		return
	}

	index := c.position
	c.autoAdvanceGen++
	gen := c.autoAdvanceGen

	zlog.Debug().Msgf("playback: scheduling auto-advance: index=%d remaining=%v", index, remaining)

	c.autoAdvanceCancel = c.startWallClockTimer(remaining, func() {
		c.onAutoAdvance(index, gen)
	})
}

func (c *Controller) onAutoAdvance(index int, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// A cancelled or superseded timer may still fire once
	if gen != c.autoAdvanceGen || c.autoAdvanceCancel == nil {
		return
	}
	c.autoAdvanceCancel = nil

	if c.state != StateReady || c.position != index {
		return
	}
	c.autoAdvanced = true
	c.metrics.AutoAdvanced()

	if c.canNextLocked() {
		zlog.Info().Msgf("playback: auto-advancing: from=%d", index)
		c.advanceLocked(feedback.IntentExtend, true)
		return
	}

	zlog.Info().Msgf("playback: reached the tail, extending queue: index=%d", index)
	c.advanceOnGrowth = true
	c.continueLocked(feedback.IntentExtend)
}

func (c *Controller) cancelAutoAdvanceLocked() {
	if c.autoAdvanceCancel != nil {
		c.autoAdvanceCancel()
		c.autoAdvanceCancel = nil
	}
	c.autoAdvanceGen++
}
