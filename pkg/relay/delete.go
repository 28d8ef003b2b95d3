package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Propagator cascades a delete observed on one platform to the paired
// messages on the other, keeping the correlation store and echo set in step.
type Propagator struct {
	dc        DiscordPort
	qq        QQPort
	correlate Correlator
	echo      *EchoSet
	log       zerolog.Logger

	RetryDelay time.Duration
}

func NewPropagator(dc DiscordPort, qq QQPort, correlate Correlator, echo *EchoSet, log zerolog.Logger) *Propagator {
	return &Propagator{
		dc:         dc,
		qq:         qq,
		correlate:  correlate,
		echo:       echo,
		log:        log,
		RetryDelay: 5 * time.Second,
	}
}

// PropagateQQDelete deletes every Discord message paired with the recalled
// QQ message. Each target id enters the echo set before its remote delete so
// the resulting Discord delete event is recognized as self-caused. Rows are
// removed as each remote delete succeeds; exhausted retries abort the
// remainder but never roll back completed rows.
func (p *Propagator) PropagateQQDelete(ctx context.Context, link *Link, messageID string) error {
	targets, err := p.correlate.TargetsFor(messageID)
	if err != nil {
		return fmt.Errorf("reading correlations for %s: %w", messageID, err)
	}
	for _, dcID := range targets {
		if err := p.deleteDiscord(ctx, link, dcID); err != nil {
			return err
		}
		if err := p.correlate.DeleteByTarget(dcID); err != nil {
			p.log.Error().Err(err).Str("target_message_id", dcID).Msg("correlation delete failed")
		}
	}

	// The recalled message may itself be the relayed copy of a Discord
	// original; deleting the copy cascades back to the original.
	if dcID, ok, err := p.correlate.SourceFor(messageID); err == nil && ok {
		if err := p.deleteDiscord(ctx, link, dcID); err != nil {
			return err
		}
		if err := p.correlate.DeleteBySource(dcID); err != nil {
			p.log.Error().Err(err).Str("source_message_id", dcID).Msg("correlation delete failed")
		}
	}
	return nil
}

// PropagateDiscordDelete is the mirror image of PropagateQQDelete.
func (p *Propagator) PropagateDiscordDelete(ctx context.Context, link *Link, messageID string) error {
	targets, err := p.correlate.TargetsFor(messageID)
	if err != nil {
		return fmt.Errorf("reading correlations for %s: %w", messageID, err)
	}
	for _, qqID := range targets {
		if err := p.deleteQQ(ctx, link, qqID); err != nil {
			return err
		}
		if err := p.correlate.DeleteByTarget(qqID); err != nil {
			p.log.Error().Err(err).Str("target_message_id", qqID).Msg("correlation delete failed")
		}
	}

	if qqID, ok, err := p.correlate.SourceFor(messageID); err == nil && ok {
		if err := p.deleteQQ(ctx, link, qqID); err != nil {
			return err
		}
		if err := p.correlate.DeleteBySource(qqID); err != nil {
			p.log.Error().Err(err).Str("source_message_id", qqID).Msg("correlation delete failed")
		}
	}
	return nil
}

func (p *Propagator) deleteDiscord(ctx context.Context, link *Link, messageID string) error {
	p.echo.MarkJustDeleted(messageID)
	attempts, err := withRetry(ctx, p.log, p.RetryDelay, func() error {
		return p.dc.DeleteMessage(ctx, link.DCChannelID, messageID)
	})
	if err != nil {
		return fmt.Errorf("deleting discord message %s after %d attempt(s): %w", messageID, attempts, err)
	}
	return nil
}

func (p *Propagator) deleteQQ(ctx context.Context, link *Link, messageID string) error {
	p.echo.MarkJustDeleted(messageID)
	attempts, err := withRetry(ctx, p.log, p.RetryDelay, func() error {
		return p.qq.DeleteMessage(ctx, link.QQChannelID, messageID)
	})
	if err != nil {
		return fmt.Errorf("deleting qq message %s after %d attempt(s): %w", messageID, attempts, err)
	}
	return nil
}
