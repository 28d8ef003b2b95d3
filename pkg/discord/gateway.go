package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/Autuamn/dcqg-relay/pkg/relay"
)

// Gateway owns the websocket side of the session: it maps gateway payloads to
// relay events and dispatches them to the handler.
type Gateway struct {
	client  *Client
	handler relay.Handler
	log     zerolog.Logger

	ctx context.Context
}

func NewGateway(client *Client, handler relay.Handler, log zerolog.Logger) *Gateway {
	return &Gateway{client: client, handler: handler, log: log}
}

// Run connects to the gateway and dispatches events until ctx is cancelled.
func (g *Gateway) Run(ctx context.Context) error {
	g.ctx = ctx

	session := g.client.session
	removeCreate := session.AddHandler(g.onMessageCreate)
	defer removeCreate()
	removeDelete := session.AddHandler(g.onMessageDelete)
	defer removeDelete()

	if err := session.Open(); err != nil {
		return fmt.Errorf("opening discord gateway: %w", err)
	}
	botID, err := g.client.BotUserID(ctx)
	if err != nil {
		g.log.Warn().Err(err).Msg("resolving bot user id")
	}
	g.log.Info().Str("bot_id", botID).Msg("discord gateway connected")

	<-ctx.Done()
	if err := session.Close(); err != nil {
		g.log.Warn().Err(err).Msg("closing discord gateway")
	}
	return ctx.Err()
}

func (g *Gateway) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.GuildID == "" {
		return
	}

	ev := relay.DiscordMessageEvent{
		MessageID:       m.ID,
		GuildID:         m.GuildID,
		ChannelID:       m.ChannelID,
		AuthorID:        m.Author.ID,
		AuthorUsername:  m.Author.Username,
		AuthorBot:       m.Author.Bot,
		Content:         m.Content,
		MentionEveryone: m.MentionEveryone,
	}
	for _, att := range m.Attachments {
		ev.Attachments = append(ev.Attachments, relay.Attachment{
			URL:         att.URL,
			ContentType: att.ContentType,
		})
	}
	if m.MessageReference != nil {
		ev.ReplyToID = m.MessageReference.MessageID
	}

	go g.handler.HandleDiscordMessage(g.ctx, ev)
}

func (g *Gateway) onMessageDelete(_ *discordgo.Session, m *discordgo.MessageDelete) {
	if m.GuildID == "" {
		return
	}

	ev := relay.DiscordDeleteEvent{
		MessageID: m.ID,
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
	}
	go g.handler.HandleDiscordDelete(g.ctx, ev)
}
