package qqguild

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/tencent-connect/botgo"
	"github.com/tencent-connect/botgo/dto"
	"github.com/tencent-connect/botgo/event"
	"github.com/tencent-connect/botgo/token"

	"github.com/Autuamn/dcqg-relay/pkg/relay"
)

// Gateway owns the QQ websocket session: it maps guild events to relay events
// and feeds audit outcomes back into the client's audit registry.
type Gateway struct {
	client  *Client
	handler relay.Handler
	log     zerolog.Logger

	ctx context.Context
}

func NewGateway(client *Client, handler relay.Handler, log zerolog.Logger) *Gateway {
	return &Gateway{client: client, handler: handler, log: log}
}

// Run connects the websocket session and dispatches events until ctx is
// cancelled or the session dies.
func (g *Gateway) Run(ctx context.Context) error {
	g.ctx = ctx

	// Keep the access token fresh for the whole session; stops with ctx.
	if err := token.StartRefreshAccessToken(ctx, g.client.tokenSource); err != nil {
		return fmt.Errorf("starting qq token refresh: %w", err)
	}

	ws, err := g.client.api.WS(ctx, nil, "")
	if err != nil {
		return fmt.Errorf("fetching qq gateway info: %w", err)
	}

	intent := event.RegisterHandlers(
		event.MessageEventHandler(g.onMessage),
		event.MessageDeleteEventHandler(g.onMessageDelete),
		event.MessageAuditEventHandler(g.onMessageAudit),
	)

	g.log.Info().Msg("qq gateway connecting")
	errCh := make(chan error, 1)
	go func() {
		errCh <- botgo.NewSessionManager().Start(ws, g.client.tokenSource, &intent)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("qq gateway session: %w", err)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Gateway) onMessage(_ *dto.WSPayload, data *dto.WSMessageData) error {
	ev := relay.QQMessageEvent{
		MessageID: data.ID,
		GuildID:   data.GuildID,
		ChannelID: data.ChannelID,
		Content:   data.Content,
	}
	if data.Author != nil {
		ev.AuthorID = data.Author.ID
		ev.AuthorName = data.Author.Username
		ev.AuthorAvatar = data.Author.Avatar
		ev.AuthorBot = data.Author.Bot
	}
	if data.Member != nil && data.Member.Nick != "" {
		ev.AuthorName = data.Member.Nick
	}
	for _, att := range data.Attachments {
		if att == nil {
			continue
		}
		// Guild attachments carry no content type; downstream sniffing
		// decides how to handle them.
		ev.Attachments = append(ev.Attachments, relay.Attachment{
			URL: normalizeAttachmentURL(att.URL),
		})
	}
	if data.MessageReference != nil {
		ev.ReplyToID = data.MessageReference.MessageID
	}

	go g.handler.HandleQQMessage(g.ctx, ev)
	return nil
}

func (g *Gateway) onMessageDelete(_ *dto.WSPayload, data *dto.WSMessageDeleteData) error {
	ev := relay.QQDeleteEvent{
		MessageID: data.Message.ID,
		GuildID:   data.Message.GuildID,
		ChannelID: data.Message.ChannelID,
	}
	go g.handler.HandleQQDelete(g.ctx, ev)
	return nil
}

// onMessageAudit settles the pending ticket for the audited channel. Passes
// carry the created message id; rejects carry none.
func (g *Gateway) onMessageAudit(payload *dto.WSPayload, data *dto.WSMessageAuditData) error {
	status := relay.AuditStatus{
		AuditID:   data.AuditID,
		MessageID: data.MessageID,
		Rejected:  payload.Type == dto.EventMessageAuditReject,
	}
	g.log.Debug().
		Str("audit_id", data.AuditID).
		Str("channel_id", data.ChannelID).
		Bool("rejected", status.Rejected).
		Msg("audit result received")
	g.client.audits.resolve(data.ChannelID, status)
	return nil
}

// normalizeAttachmentURL fixes the scheme-less urls QQ puts on attachments.
func normalizeAttachmentURL(url string) string {
	if url == "" || strings.Contains(url, "://") {
		return url
	}
	return "https://" + url
}
