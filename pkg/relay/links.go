package relay

import (
	"sync"

	"github.com/Autuamn/dcqg-relay/pkg/config"
)

// Webhook is the delivery credential for posting into a Discord channel
// under a custom identity. OwnerID is the Discord user that created the
// webhook; the provisioner only adopts webhooks owned by this bot.
type Webhook struct {
	ID      string
	Token   string
	OwnerID string
}

// Link is one bridged channel pair. The webhook credential starts empty and
// is attached once by the provisioner; it is never cleared at runtime.
type Link struct {
	QQGuildID   string
	QQChannelID string
	DCGuildID   string
	DCChannelID string

	mu      sync.Mutex
	webhook Webhook
}

func (l *Link) Credential() (Webhook, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.webhook, l.webhook.ID != ""
}

func (l *Link) SetCredential(w Webhook) {
	l.mu.Lock()
	l.webhook = w
	l.mu.Unlock()
}

// Registry resolves links by either side's channel id. It is built once from
// configuration and read-only afterwards; config.Validate guarantees channel
// ids are unique per side.
type Registry struct {
	links    []*Link
	byQQ     map[string]*Link
	byDC     map[string]*Link
}

func NewRegistry(links []config.LinkConfig) *Registry {
	r := &Registry{
		byQQ: make(map[string]*Link, len(links)),
		byDC: make(map[string]*Link, len(links)),
	}
	for _, lc := range links {
		l := &Link{
			QQGuildID:   lc.QQGuildID,
			QQChannelID: lc.QQChannelID,
			DCGuildID:   lc.DCGuildID,
			DCChannelID: lc.DCChannelID,
		}
		if lc.WebhookID != "" && lc.WebhookToken != "" {
			l.webhook = Webhook{ID: lc.WebhookID, Token: lc.WebhookToken}
		}
		r.links = append(r.links, l)
		r.byQQ[l.QQChannelID] = l
		r.byDC[l.DCChannelID] = l
	}
	return r
}

// ByQQChannel returns the link bridging the given QQ channel, or nil when the
// channel is not linked. An unlinked channel means "not relayed", not an error.
func (r *Registry) ByQQChannel(channelID string) *Link {
	return r.byQQ[channelID]
}

// ByDCChannel returns the link bridging the given Discord channel, or nil.
func (r *Registry) ByDCChannel(channelID string) *Link {
	return r.byDC[channelID]
}

// Links returns all configured links in configuration order.
func (r *Registry) Links() []*Link {
	return r.links
}
