package relay

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Autuamn/dcqg-relay/pkg/qqemoji"
)

// QQToDiscord translates QQ guild messages into the Discord representation.
type QQToDiscord struct {
	qq        QQPort
	dc        DiscordPort
	correlate Correlator
	log       zerolog.Logger
}

func NewQQToDiscord(qq QQPort, dc DiscordPort, correlate Correlator, log zerolog.Logger) *QQToDiscord {
	return &QQToDiscord{qq: qq, dc: dc, correlate: correlate, log: log}
}

// Translate resolves a QQ message into a TranslatedMessage bound for Discord.
// Lookup failures degrade to visible placeholders; they never abort the
// message.
func (t *QQToDiscord) Translate(ctx context.Context, link *Link, ev QQMessageEvent) (TranslatedMessage, error) {
	nodes := ParseQQMarkup(ev.Content)
	names := t.resolveMentions(ctx, ev.GuildID, nodes)

	var text strings.Builder
	for _, n := range nodes {
		switch n.Kind {
		case NodeText:
			text.WriteString(defuseEveryone(n.Text))
		case NodeUserMention:
			fmt.Fprintf(&text, "@%s[ID:%s] ", names[n.ID], n.ID)
		case NodeQQEmoji:
			if name, ok := qqemoji.Name(n.ID); ok {
				fmt.Fprintf(&text, "[%s]", name)
			} else {
				fmt.Fprintf(&text, "[QQemojiID:%s]", n.ID)
			}
		}
	}

	var images []string
	for _, att := range ev.Attachments {
		if isRelayableImage(att.ContentType) {
			images = append(images, att.URL)
		}
	}

	msg := TranslatedMessage{
		Text:   text.String(),
		Images: images,
		Identity: Identity{
			DisplayName: fmt.Sprintf("%s [ID:%s]", ev.AuthorName, ev.AuthorID),
			AvatarURL:   ev.AuthorAvatar,
		},
	}

	if ev.ReplyToID != "" {
		msg.Quote = t.buildQuote(ctx, link, ev)
	}

	return msg, nil
}

// resolveMentions looks up every distinct mentioned member concurrently.
// A failed lookup leaves the name empty; the raw id stays visible in the
// rendered mention either way.
func (t *QQToDiscord) resolveMentions(ctx context.Context, guildID string, nodes []Node) map[string]string {
	names := make(map[string]string)
	for _, n := range nodes {
		if n.Kind == NodeUserMention {
			names[n.ID] = ""
		}
	}
	if len(names) == 0 {
		return names
	}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	for id := range names {
		g.Go(func() error {
			member, err := t.qq.Member(ctx, guildID, id)
			if err != nil {
				t.log.Debug().Err(err).Str("user_id", id).Msg("member lookup failed")
				return nil
			}
			mu.Lock()
			names[id] = member.Name
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return names
}

// buildQuote renders the reply block for a QQ message quoting another one.
// When the quoted message is known to the correlation store, the quote links
// back to its Discord counterpart; when the quoted message was itself
// injected by the relay, it is attributed to the original Discord author
// instead of the bot.
func (t *QQToDiscord) buildQuote(ctx context.Context, link *Link, ev QQMessageEvent) *Quote {
	quote := &Quote{}

	quoted, err := t.qq.Message(ctx, ev.ChannelID, ev.ReplyToID)
	if err != nil {
		t.log.Debug().Err(err).Str("message_id", ev.ReplyToID).Msg("quoted message fetch failed")
		quoted = &QQMessage{ID: ev.ReplyToID, ChannelID: ev.ChannelID, GuildID: ev.GuildID}
	}
	quote.Text = quoted.Content
	quote.Timestamp = quoted.Timestamp

	if dcID, ok := t.discordCounterpart(ev.ReplyToID); ok {
		if dcMsg, err := t.dc.Message(ctx, link.DCChannelID, dcID); err == nil {
			quote.Resolved = true
			quote.Text = dcMsg.Content
			quote.BackLink = fmt.Sprintf("https://discord.com/channels/%s/%s/%s",
				link.DCGuildID, link.DCChannelID, dcID)

			if botID, err := t.qq.BotUserID(ctx); err == nil && quoted.AuthorID == botID {
				// Relay-injected message: credit the Discord author it was
				// relayed from, not the bot account.
				name, err := t.dc.MemberDisplayName(ctx, link.DCGuildID, dcMsg.AuthorID)
				if err != nil {
					name = fmt.Sprintf("(%s)", dcMsg.AuthorID)
				}
				quote.AuthorName = fmt.Sprintf("%s(@%s)", name, dcMsg.AuthorUsername)
				if avatar, err := t.dc.MemberAvatarURL(ctx, link.DCGuildID, dcMsg.AuthorID); err == nil {
					quote.AuthorAvatar = avatar
				}
				quote.Timestamp = dcMsg.Timestamp
			}
		} else {
			t.log.Debug().Err(err).Str("message_id", dcID).Msg("counterpart fetch failed")
		}
	}

	if quote.AuthorName == "" {
		member, err := t.qq.Member(ctx, quoted.GuildID, quoted.AuthorID)
		if err != nil {
			t.log.Debug().Err(err).Str("user_id", quoted.AuthorID).Msg("quoted author lookup failed")
		}
		quote.AuthorName = fmt.Sprintf("%s[ID:%s]", member.Name, quoted.AuthorID)
		quote.AuthorAvatar = member.AvatarURL
	}

	return quote
}

// discordCounterpart finds the Discord message paired with a QQ message id,
// regardless of which side originated the pair.
func (t *QQToDiscord) discordCounterpart(qqID string) (string, bool) {
	if targets, err := t.correlate.TargetsFor(qqID); err == nil && len(targets) > 0 {
		return targets[0], true
	}
	if src, ok, err := t.correlate.SourceFor(qqID); err == nil && ok {
		return src, true
	}
	return "", false
}

// defuseEveryone neutralizes literal everyone-mentions so a relayed message
// cannot ping the whole target guild.
func defuseEveryone(s string) string {
	s = strings.ReplaceAll(s, "@everyone", "@.everyone")
	return strings.ReplaceAll(s, "@here", "@.here")
}

func isRelayableImage(contentType string) bool {
	switch contentType {
	case "image/gif", "image/jpeg", "image/png", "image/webp":
		return true
	case "":
		// QQ attachment payloads frequently omit the content type; guild
		// attachments are images in practice.
		return true
	default:
		return false
	}
}
