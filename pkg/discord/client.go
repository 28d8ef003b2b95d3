// Package discord adapts a discordgo session to the relay's Discord port.
package discord

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/gorilla/websocket"

	"github.com/Autuamn/dcqg-relay/pkg/relay"
)

// Client wraps one discordgo session. All REST calls go through it; the
// gateway side lives in Gateway and shares the same session.
type Client struct {
	session *discordgo.Session

	mu    sync.Mutex
	botID string
}

// New builds a client from a bot token. proxyURL may be empty; when set it is
// applied to both the REST client and the gateway websocket dial.
func New(token, proxyURL string) (*Client, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("creating discord session: %w", err)
	}

	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url: %w", err)
		}
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.Proxy = http.ProxyURL(u)
		session.Client = &http.Client{Transport: transport, Timeout: 30 * time.Second}
		session.Dialer = &websocket.Dialer{
			Proxy:            http.ProxyURL(u),
			HandshakeTimeout: 45 * time.Second,
		}
	}

	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentMessageContent

	return &Client{session: session}, nil
}

// BotUserID resolves the bot's own user id. The gateway session populates it
// on READY; before that it is fetched over REST once and cached, so callers
// racing the gateway open still get a usable id.
func (c *Client) BotUserID(ctx context.Context) (string, error) {
	if c.session.State != nil && c.session.State.User != nil {
		return c.session.State.User.ID, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.botID != "" {
		return c.botID, nil
	}
	me, err := c.session.User("@me", discordgo.WithContext(ctx))
	if err != nil {
		return "", classify(err)
	}
	c.botID = me.ID
	return c.botID, nil
}

func (c *Client) MemberDisplayName(ctx context.Context, guildID, userID string) (string, error) {
	member, err := c.session.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		return "", classify(err)
	}
	if member.Nick != "" {
		return member.Nick, nil
	}
	if member.User.GlobalName != "" {
		return member.User.GlobalName, nil
	}
	return member.User.Username, nil
}

func (c *Client) Username(ctx context.Context, userID string) (string, error) {
	user, err := c.session.User(userID, discordgo.WithContext(ctx))
	if err != nil {
		return "", classify(err)
	}
	return user.Username, nil
}

func (c *Client) MemberAvatarURL(ctx context.Context, guildID, userID string) (string, error) {
	member, err := c.session.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		return "", classify(err)
	}
	return member.AvatarURL(""), nil
}

func (c *Client) RoleName(ctx context.Context, guildID, roleID string) (string, error) {
	roles, err := c.session.GuildRoles(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return "", classify(err)
	}
	for _, role := range roles {
		if role.ID == roleID {
			return role.Name, nil
		}
	}
	return "", fmt.Errorf("role %s not found in guild %s", roleID, guildID)
}

func (c *Client) ChannelName(ctx context.Context, guildID, channelID string) (string, error) {
	channel, err := c.session.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		return "", classify(err)
	}
	return channel.Name, nil
}

func (c *Client) Message(ctx context.Context, channelID, messageID string) (*relay.DiscordMessage, error) {
	msg, err := c.session.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, classify(err)
	}
	return mapMessage(msg), nil
}

// ChannelWebhooks returns the channel's webhooks that carry an execution
// token, with their owning user so the caller can decide which to adopt.
func (c *Client) ChannelWebhooks(ctx context.Context, channelID string) ([]relay.Webhook, error) {
	hooks, err := c.session.ChannelWebhooks(channelID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, classify(err)
	}
	var out []relay.Webhook
	for _, hook := range hooks {
		if hook.Token == "" {
			continue
		}
		w := relay.Webhook{ID: hook.ID, Token: hook.Token}
		if hook.User != nil {
			w.OwnerID = hook.User.ID
		}
		out = append(out, w)
	}
	return out, nil
}

func (c *Client) CreateWebhook(ctx context.Context, channelID, name string) (relay.Webhook, error) {
	hook, err := c.session.WebhookCreate(channelID, name, "", discordgo.WithContext(ctx))
	if err != nil {
		return relay.Webhook{}, classify(err)
	}
	return relay.Webhook{ID: hook.ID, Token: hook.Token}, nil
}

func (c *Client) ExecuteWebhook(ctx context.Context, cred relay.Webhook, msg relay.WebhookMessage) (string, error) {
	params := &discordgo.WebhookParams{
		Content:   msg.Content,
		Username:  msg.Username,
		AvatarURL: msg.AvatarURL,
	}
	for _, f := range msg.Files {
		params.Files = append(params.Files, &discordgo.File{
			Name:        f.Name,
			ContentType: f.ContentType,
			Reader:      bytes.NewReader(f.Data),
		})
	}
	if msg.Quote != nil {
		params.Embeds = []*discordgo.MessageEmbed{quoteEmbed(msg.Quote)}
	}

	created, err := c.session.WebhookExecute(cred.ID, cred.Token, true, params, discordgo.WithContext(ctx))
	if err != nil {
		return "", classify(err)
	}
	return created.ID, nil
}

func (c *Client) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	return classify(c.session.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx)))
}

// quoteEmbed renders a reply block as an embed above the relayed content.
func quoteEmbed(q *relay.Quote) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Author: &discordgo.MessageEmbedAuthor{
			Name:    q.AuthorName,
			IconURL: q.AuthorAvatar,
		},
		Description: q.Text,
	}
	// The footer uses Discord's relative-timestamp marker so readers see
	// "3 minutes ago" instead of an absolute instant.
	var footer string
	if !q.Timestamp.IsZero() {
		footer = fmt.Sprintf("<t:%d:R> ", q.Timestamp.Unix())
	}
	if q.BackLink != "" {
		footer += fmt.Sprintf("[original message](%s)", q.BackLink)
	} else if !q.Resolved {
		footer += "(original message not resolvable)"
	}
	if footer != "" {
		embed.Description += "\n\n" + footer
	}
	return embed
}

func mapMessage(msg *discordgo.Message) *relay.DiscordMessage {
	out := &relay.DiscordMessage{
		ID:              msg.ID,
		ChannelID:       msg.ChannelID,
		Content:         msg.Content,
		Timestamp:       msg.Timestamp,
		MentionEveryone: msg.MentionEveryone,
	}
	if msg.Author != nil {
		out.AuthorID = msg.Author.ID
		out.AuthorUsername = msg.Author.Username
	}
	for _, att := range msg.Attachments {
		out.Attachments = append(out.Attachments, relay.Attachment{
			URL:         att.URL,
			ContentType: att.ContentType,
		})
	}
	if msg.MessageReference != nil {
		out.ReplyToID = msg.MessageReference.MessageID
	}
	return out
}

// classify marks rate limits, server errors and network failures as
// transient so the deliverer retries them; everything else fails fast.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Response != nil {
		if rest.Response.StatusCode == http.StatusTooManyRequests || rest.Response.StatusCode >= 500 {
			return relay.Transient(err)
		}
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return relay.Transient(err)
	}
	return err
}
