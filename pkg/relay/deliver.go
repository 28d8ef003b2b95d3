package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	// Transient send failures are retried this many times with a fixed
	// delay; moderation rejections are never retried.
	sendAttempts = 3

	// QQ audit results are polled this many times before the send is
	// abandoned.
	auditPolls = 5
)

// Deliverer sends translated messages to their target platform and records
// the resulting identity pairs.
type Deliverer struct {
	dc        DiscordPort
	qq        QQPort
	images    ImagePort
	correlate Correlator
	log       zerolog.Logger

	// RetryDelay and AuditDelay are the fixed backoff and audit poll
	// intervals. Tests shrink them.
	RetryDelay time.Duration
	AuditDelay time.Duration
}

func NewDeliverer(dc DiscordPort, qq QQPort, images ImagePort, correlate Correlator, log zerolog.Logger) *Deliverer {
	return &Deliverer{
		dc:         dc,
		qq:         qq,
		images:     images,
		correlate:  correlate,
		log:        log,
		RetryDelay: 5 * time.Second,
		AuditDelay: time.Second,
	}
}

// DeliverToDiscord posts one translated message through the link's webhook.
// Discord accepts all images in a single webhook execution, so exactly one
// target message is produced. Its id is recorded before returning.
func (d *Deliverer) DeliverToDiscord(ctx context.Context, link *Link, msg TranslatedMessage, sourceID string) ([]string, error) {
	cred, ok := link.Credential()
	if !ok {
		return nil, fmt.Errorf("channel %s has no webhook credential", link.DCChannelID)
	}

	files := make([]File, len(msg.Images))
	g, gctx := errgroup.WithContext(ctx)
	for i, url := range msg.Images {
		g.Go(func() error {
			data, err := d.images.Fetch(gctx, url)
			if err != nil {
				return fmt.Errorf("downloading %s: %w", url, err)
			}
			files[i] = d.images.DiscordFile(url, data)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, &DeliveryError{SourceID: sourceID, Channel: link.DCChannelID, Attempts: 1, Err: err}
	}

	payload := WebhookMessage{
		Content:   msg.Text,
		Username:  msg.Identity.DisplayName,
		AvatarURL: msg.Identity.AvatarURL,
		Quote:     msg.Quote,
		Files:     files,
	}

	var targetID string
	attempts, err := withRetry(ctx, d.log, d.RetryDelay, func() error {
		var err error
		targetID, err = d.dc.ExecuteWebhook(ctx, cred, payload)
		return err
	})
	if err != nil {
		return nil, &DeliveryError{SourceID: sourceID, Channel: link.DCChannelID, Attempts: attempts, Err: err}
	}

	d.record(sourceID, targetID, link.DCChannelID)
	return []string{targetID}, nil
}

// DeliverToQQ posts one translated message into the link's QQ channel. QQ
// limits a message to one image, so extra images become follow-up messages in
// discovery order, each with its own target id. Every id is recorded as soon
// as its send succeeds; an audit rejection terminates the remaining sends.
func (d *Deliverer) DeliverToQQ(ctx context.Context, link *Link, msg TranslatedMessage, sourceID string) ([]string, error) {
	images := make([][]byte, len(msg.Images))
	g, gctx := errgroup.WithContext(ctx)
	for i, url := range msg.Images {
		g.Go(func() error {
			data, err := d.images.Fetch(gctx, url)
			if err != nil {
				return fmt.Errorf("downloading %s: %w", url, err)
			}
			images[i], err = d.images.PrepareForQQ(data)
			if err != nil {
				return fmt.Errorf("transcoding %s: %w", url, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, &DeliveryError{SourceID: sourceID, Channel: link.QQChannelID, Attempts: 1, Err: err}
	}

	sends := []QQSend{{
		Content:         msg.Text,
		ReplyToID:       msg.ReplyToID,
		MentionEveryone: msg.MentionEveryone,
	}}
	if len(images) > 0 {
		sends[0].Image = images[0]
		for _, img := range images[1:] {
			sends = append(sends, QQSend{Image: img})
		}
	}

	var targetIDs []string
	for _, send := range sends {
		var targetID string
		attempts, err := withRetry(ctx, d.log, d.RetryDelay, func() error {
			var err error
			targetID, err = d.sendQQ(ctx, link.QQChannelID, send, sourceID)
			return err
		})
		if err != nil {
			return targetIDs, &DeliveryError{SourceID: sourceID, Channel: link.QQChannelID, Attempts: attempts, Err: err}
		}
		d.record(sourceID, targetID, link.QQChannelID)
		targetIDs = append(targetIDs, targetID)
	}
	return targetIDs, nil
}

// sendQQ performs one send, waiting out QQ's asynchronous content audit when
// the platform defers acceptance. Rejection and audit timeout both surface as
// ErrAuditRejected, which is deliberately not transient: partial moderation
// state is unrecoverable, so the send must not be repeated.
func (d *Deliverer) sendQQ(ctx context.Context, channelID string, send QQSend, sourceID string) (string, error) {
	messageID, ticket, err := d.qq.Send(ctx, channelID, send)
	if err != nil {
		return "", err
	}
	if messageID != "" {
		return messageID, nil
	}

	for poll := 1; poll <= auditPolls; poll++ {
		status, done := d.qq.AuditResult(ticket)
		if done {
			if status.Rejected {
				d.log.Warn().
					Str("audit_id", status.AuditID).
					Str("source_message_id", sourceID).
					Msg("message audit rejected")
				return "", ErrAuditRejected
			}
			return status.MessageID, nil
		}
		d.log.Debug().Str("source_message_id", sourceID).Int("poll", poll).Msg("waiting for audit result")
		select {
		case <-time.After(d.AuditDelay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	d.log.Warn().
		Str("ticket", ticket).
		Str("source_message_id", sourceID).
		Msg("message audit timed out")
	return "", fmt.Errorf("%w: audit result not available after %d polls", ErrAuditRejected, auditPolls)
}

// record writes the identity pair. A failed write after a successful send
// leaves an orphaned target message that can never be deleted through the
// bridge, so it is logged loudly rather than silently dropped.
func (d *Deliverer) record(sourceID, targetID, channelID string) {
	if err := d.correlate.Record(sourceID, targetID); err != nil {
		d.log.Error().Err(err).
			Str("source_message_id", sourceID).
			Str("target_message_id", targetID).
			Str("channel_id", channelID).
			Msg("correlation write failed; target message is orphaned")
	}
}

// withRetry runs op up to sendAttempts times with a fixed delay between
// attempts. Only errors marked transient are retried; everything else fails
// fast.
func withRetry(ctx context.Context, log zerolog.Logger, delay time.Duration, op func() error) (int, error) {
	var err error
	for attempt := 1; attempt <= sendAttempts; attempt++ {
		if err = op(); err == nil {
			return attempt, nil
		}
		if !errors.Is(err, ErrTransient) {
			return attempt, err
		}
		if attempt < sendAttempts {
			log.Warn().Err(err).Int("attempt", attempt).Msg("send failed, retrying")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return attempt, ctx.Err()
			}
		}
	}
	return sendAttempts, err
}
