package relay

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Provisioner resolves or creates the webhook credential for each link's
// Discord channel, exactly once per channel.
type Provisioner struct {
	dc  DiscordPort
	log zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewProvisioner(dc DiscordPort, log zerolog.Logger) *Provisioner {
	return &Provisioner{dc: dc, log: log, locks: make(map[string]*sync.Mutex)}
}

// EnsureWebhooks provisions credentials for all links concurrently. Each
// channel's provisioning is isolated: one channel failing is reported but
// does not prevent the others from bridging. The returned slice lists the
// Discord channel ids that could not be provisioned.
func (p *Provisioner) EnsureWebhooks(ctx context.Context, links []*Link) []string {
	var mu sync.Mutex
	var failed []string

	var g errgroup.Group
	for _, link := range links {
		g.Go(func() error {
			if err := p.EnsureCredential(ctx, link); err != nil {
				p.log.Error().Err(err).Str("channel_id", link.DCChannelID).Msg("webhook provisioning failed")
				mu.Lock()
				failed = append(failed, link.DCChannelID)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return failed
}

// EnsureCredential attaches a webhook credential to the link if it does not
// have one yet: reuse the cached one, then look for an existing webhook owned
// by this bot, then create a new one named after the channel. Concurrent
// calls for the same channel are serialized so at most one webhook is ever
// created.
func (p *Provisioner) EnsureCredential(ctx context.Context, link *Link) error {
	if _, ok := link.Credential(); ok {
		return nil
	}

	lock := p.channelLock(link.DCChannelID)
	lock.Lock()
	defer lock.Unlock()

	if _, ok := link.Credential(); ok {
		return nil
	}

	// Only webhooks this bot created are adopted; executing under another
	// application's webhook would break its owner's expectations and our
	// delete permissions. Without a resolved bot id nothing is adopted and a
	// fresh webhook is created instead.
	botID, err := p.dc.BotUserID(ctx)
	if err != nil {
		p.log.Warn().Err(err).Str("channel_id", link.DCChannelID).Msg("resolving bot user id failed")
	}

	hooks, err := p.dc.ChannelWebhooks(ctx, link.DCChannelID)
	if err != nil {
		// Listing can fail on missing permissions; creating may still work.
		p.log.Warn().Err(err).Str("channel_id", link.DCChannelID).Msg("listing webhooks failed")
	}
	for _, hook := range hooks {
		if hook.ID != "" && hook.Token != "" && botID != "" && hook.OwnerID == botID {
			link.SetCredential(hook)
			p.log.Debug().Str("channel_id", link.DCChannelID).Str("webhook_id", hook.ID).Msg("reusing webhook")
			return nil
		}
	}

	hook, err := p.dc.CreateWebhook(ctx, link.DCChannelID, link.DCChannelID)
	if err != nil {
		return fmt.Errorf("creating webhook for channel %s: %w", link.DCChannelID, err)
	}
	link.SetCredential(hook)
	p.log.Info().Str("channel_id", link.DCChannelID).Str("webhook_id", hook.ID).Msg("created webhook")
	return nil
}

func (p *Provisioner) channelLock(channelID string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	lock, ok := p.locks[channelID]
	if !ok {
		lock = &sync.Mutex{}
		p.locks[channelID] = lock
	}
	return lock
}
