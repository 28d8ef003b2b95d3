// Package relay implements the bridge core: event handling, message
// translation between the two platforms, delivery with retry, deletion
// propagation, and webhook provisioning. The core holds no platform session
// state; everything it needs arrives through the port interfaces.
package relay

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"github.com/rs/zerolog"
)

// Relay wires the translators, deliverer and propagator behind the Handler
// surface the gateways dispatch into.
type Relay struct {
	registry *Registry
	qqToDC   *QQToDiscord
	dcToQQ   *DiscordToQQ
	deliver  *Deliverer
	prop     *Propagator
	echo     *EchoSet

	ignorePrefixes []string
	log            zerolog.Logger
}

func New(
	registry *Registry,
	qqToDC *QQToDiscord,
	dcToQQ *DiscordToQQ,
	deliver *Deliverer,
	prop *Propagator,
	echo *EchoSet,
	ignorePrefixes []string,
	log zerolog.Logger,
) *Relay {
	return &Relay{
		registry:       registry,
		qqToDC:         qqToDC,
		dcToQQ:         dcToQQ,
		deliver:        deliver,
		prop:           prop,
		echo:           echo,
		ignorePrefixes: ignorePrefixes,
		log:            log,
	}
}

// HandleQQMessage relays a QQ guild message to its linked Discord channel.
// Bot-authored messages are dropped before any other processing, which covers
// both the relay's own injected messages and other bots.
func (r *Relay) HandleQQMessage(ctx context.Context, ev QQMessageEvent) {
	log := r.log.With().
		Str("platform", "qq").
		Str("channel_id", ev.ChannelID).
		Str("message_id", ev.MessageID).
		Logger()

	if ev.AuthorBot {
		log.Debug().Msg("ignoring bot message")
		return
	}
	if r.hasIgnoredPrefix(ev.Content) {
		log.Debug().Msg("ignoring prefixed message")
		return
	}

	link := r.registry.ByQQChannel(ev.ChannelID)
	if link == nil {
		log.Debug().Msg("channel not linked")
		return
	}

	msg, err := r.qqToDC.Translate(ctx, link, ev)
	if err != nil {
		log.Error().Err(err).Msg("translation failed")
		return
	}

	targets, err := r.deliver.DeliverToDiscord(ctx, link, msg, ev.MessageID)
	if err != nil {
		log.Error().Err(err).Msg("delivery failed")
		return
	}
	log.Info().Strs("target_ids", targets).Msg("relayed to discord")
}

// HandleQQDelete cascades a QQ recall to the paired Discord messages, unless
// the recall was caused by the relay itself.
func (r *Relay) HandleQQDelete(ctx context.Context, ev QQDeleteEvent) {
	log := r.log.With().
		Str("platform", "qq").
		Str("channel_id", ev.ChannelID).
		Str("message_id", ev.MessageID).
		Logger()

	if r.echo.ConsumeJustDeleted(ev.MessageID) {
		log.Debug().Msg("ignoring self-caused delete")
		return
	}

	link := r.registry.ByQQChannel(ev.ChannelID)
	if link == nil {
		log.Debug().Msg("channel not linked")
		return
	}

	if err := r.prop.PropagateQQDelete(ctx, link, ev.MessageID); err != nil {
		log.Error().Err(err).Msg("delete propagation failed")
		return
	}
	log.Info().Msg("propagated delete to discord")
}

// HandleDiscordMessage relays a Discord message to its linked QQ channel.
// Messages posted through the relay's own webhooks come back as bot-authored
// create events with the identity-suffixed username; those are suppressed so
// a message never loops.
func (r *Relay) HandleDiscordMessage(ctx context.Context, ev DiscordMessageEvent) {
	log := r.log.With().
		Str("platform", "discord").
		Str("channel_id", ev.ChannelID).
		Str("message_id", ev.MessageID).
		Logger()

	if IsSelfEcho(ev.AuthorUsername, ev.AuthorBot) {
		log.Debug().Msg("ignoring own relayed message")
		return
	}
	if r.hasIgnoredPrefix(ev.Content) {
		log.Debug().Msg("ignoring prefixed message")
		return
	}

	link := r.registry.ByDCChannel(ev.ChannelID)
	if link == nil {
		log.Debug().Msg("channel not linked")
		return
	}

	msg, err := r.dcToQQ.Translate(ctx, link, ev)
	if err != nil {
		log.Error().Err(err).Msg("translation failed")
		return
	}

	targets, err := r.deliver.DeliverToQQ(ctx, link, msg, ev.MessageID)
	if err != nil {
		if errors.Is(err, ErrAuditRejected) {
			log.Warn().Err(err).Strs("target_ids", targets).Msg("delivery stopped by content audit")
		} else {
			log.Error().Err(err).Strs("target_ids", targets).Msg("delivery failed")
		}
		return
	}
	log.Info().Strs("target_ids", targets).Msg("relayed to qq")
}

// HandleDiscordDelete cascades a Discord delete to the paired QQ messages,
// unless the delete was caused by the relay itself.
func (r *Relay) HandleDiscordDelete(ctx context.Context, ev DiscordDeleteEvent) {
	log := r.log.With().
		Str("platform", "discord").
		Str("channel_id", ev.ChannelID).
		Str("message_id", ev.MessageID).
		Logger()

	if r.echo.ConsumeJustDeleted(ev.MessageID) {
		log.Debug().Msg("ignoring self-caused delete")
		return
	}

	link := r.registry.ByDCChannel(ev.ChannelID)
	if link == nil {
		log.Debug().Msg("channel not linked")
		return
	}

	if err := r.prop.PropagateDiscordDelete(ctx, link, ev.MessageID); err != nil {
		log.Error().Err(err).Msg("delete propagation failed")
		return
	}
	log.Info().Msg("propagated delete to qq")
}

// hasIgnoredPrefix reports whether the message starts with one of the
// configured command prefixes, after skipping leading whitespace.
func (r *Relay) hasIgnoredPrefix(content string) bool {
	trimmed := strings.TrimLeftFunc(content, unicode.IsSpace)
	if trimmed == "" {
		return false
	}
	for _, prefix := range r.ignorePrefixes {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	return false
}
