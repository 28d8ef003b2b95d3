package relay

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// DiscordToQQ translates Discord messages into the QQ guild representation.
type DiscordToQQ struct {
	dc        DiscordPort
	correlate Correlator
	log       zerolog.Logger
}

func NewDiscordToQQ(dc DiscordPort, correlate Correlator, log zerolog.Logger) *DiscordToQQ {
	return &DiscordToQQ{dc: dc, correlate: correlate, log: log}
}

// Translate resolves a Discord message into a TranslatedMessage bound for QQ.
// The relayed text opens with a header identifying the original author, in
// the shape the echo guard recognizes on replay.
func (t *DiscordToQQ) Translate(ctx context.Context, link *Link, ev DiscordMessageEvent) (TranslatedMessage, error) {
	name, err := t.dc.MemberDisplayName(ctx, ev.GuildID, ev.AuthorID)
	if err != nil {
		t.log.Debug().Err(err).Str("user_id", ev.AuthorID).Msg("author lookup failed")
		name = fmt.Sprintf("(%s)", ev.AuthorID)
	}

	content := ev.Content
	if content == "" {
		// Gateway delete of the content intent or an embed-only payload;
		// fall back to fetching the message body.
		fetched, err := t.dc.Message(ctx, ev.ChannelID, ev.MessageID)
		if err != nil {
			return TranslatedMessage{}, fmt.Errorf("fetching message %s content: %w", ev.MessageID, err)
		}
		content = fetched.Content
	}

	nodes := ParseDiscordMarkup(content)
	resolved := t.resolveTokens(ctx, ev.GuildID, nodes)

	var text strings.Builder
	text.WriteString(fmt.Sprintf("%s(@%s):\n", name, ev.AuthorUsername))

	var images []string
	for _, n := range nodes {
		switch n.Kind {
		case NodeText:
			text.WriteString(n.Text)
		case NodeUserMention:
			text.WriteString(resolved[tokenKey(n)])
		case NodeRoleMention:
			text.WriteString(resolved[tokenKey(n)])
		case NodeChannelMention:
			text.WriteString(resolved[tokenKey(n)])
		case NodeSlashRef:
			// Slash-command references have no QQ rendering.
		case NodeCustomEmoji:
			if n.ID == "" {
				text.WriteString(n.Name)
				break
			}
			ext := "webp"
			if n.Animated {
				ext = "gif"
			}
			images = append(images, fmt.Sprintf("https://cdn.discordapp.com/emojis/%s.%s", n.ID, ext))
		case NodeTimestamp:
			// QQ has no native timestamp marker; keep the literal token.
			text.WriteString(n.Raw)
		}
	}

	for _, att := range ev.Attachments {
		switch att.ContentType {
		case "image/gif", "image/jpeg", "image/png", "image/webp":
			images = append(images, att.URL)
		default:
			// Non-image attachments are not re-uploaded.
		}
	}

	msg := TranslatedMessage{
		Text:            text.String(),
		Images:          images,
		MentionEveryone: ev.MentionEveryone,
	}

	if ev.ReplyToID != "" {
		if qqID, ok := t.qqCounterpart(ev.ReplyToID); ok {
			msg.ReplyToID = qqID
		}
	}

	return msg, nil
}

// resolveTokens looks up all mention targets concurrently and renders each to
// its display text. Unresolvable ids degrade to a placeholder keeping the raw
// id visible.
func (t *DiscordToQQ) resolveTokens(ctx context.Context, guildID string, nodes []Node) map[string]string {
	type lookup struct {
		key  string
		node Node
	}
	var lookups []lookup
	seen := make(map[string]bool)
	for _, n := range nodes {
		switch n.Kind {
		case NodeUserMention, NodeRoleMention, NodeChannelMention:
			k := tokenKey(n)
			if !seen[k] {
				seen[k] = true
				lookups = append(lookups, lookup{key: k, node: n})
			}
		}
	}

	out := make(map[string]string, len(lookups))
	if len(lookups) == 0 {
		return out
	}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	for _, l := range lookups {
		g.Go(func() error {
			var rendered string
			switch l.node.Kind {
			case NodeUserMention:
				if username, err := t.dc.Username(ctx, l.node.ID); err == nil {
					rendered = "@" + username
				} else {
					t.log.Debug().Err(err).Str("user_id", l.node.ID).Msg("user lookup failed")
					rendered = fmt.Sprintf("@(%s)", l.node.ID)
				}
			case NodeRoleMention:
				if role, err := t.dc.RoleName(ctx, guildID, l.node.ID); err == nil {
					rendered = "@" + role
				} else {
					t.log.Debug().Err(err).Str("role_id", l.node.ID).Msg("role lookup failed")
					rendered = fmt.Sprintf("@(%s)", l.node.ID)
				}
			case NodeChannelMention:
				if channel, err := t.dc.ChannelName(ctx, guildID, l.node.ID); err == nil {
					rendered = "#" + channel
				} else {
					t.log.Debug().Err(err).Str("channel_id", l.node.ID).Msg("channel lookup failed")
					rendered = fmt.Sprintf("#(%s)", l.node.ID)
				}
			}
			mu.Lock()
			out[l.key] = rendered
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// qqCounterpart finds the QQ message paired with a Discord message id,
// regardless of which side originated the pair.
func (t *DiscordToQQ) qqCounterpart(dcID string) (string, bool) {
	if src, ok, err := t.correlate.SourceFor(dcID); err == nil && ok {
		return src, true
	}
	if targets, err := t.correlate.TargetsFor(dcID); err == nil && len(targets) > 0 {
		return targets[0], true
	}
	return "", false
}

func tokenKey(n Node) string {
	return fmt.Sprintf("%d/%s", n.Kind, n.ID)
}
