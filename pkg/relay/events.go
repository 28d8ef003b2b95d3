package relay

import "context"

// Attachment is one file attached to an inbound message.
type Attachment struct {
	URL         string
	ContentType string
}

// QQMessageEvent is a message created in a QQ guild channel.
type QQMessageEvent struct {
	MessageID string
	GuildID   string
	ChannelID string

	AuthorID     string
	AuthorName   string
	AuthorAvatar string
	AuthorBot    bool

	// Content is the raw QQ markup string (<@!id> mentions, <emoji:id>).
	Content     string
	Attachments []Attachment

	// ReplyToID is the id of the message this one quotes, if any.
	ReplyToID string
}

// QQDeleteEvent is a message recalled in a QQ guild channel.
type QQDeleteEvent struct {
	MessageID string
	GuildID   string
	ChannelID string
}

// DiscordMessageEvent is a message created in a Discord guild channel.
type DiscordMessageEvent struct {
	MessageID string
	GuildID   string
	ChannelID string

	AuthorID       string
	AuthorUsername string
	AuthorBot      bool

	Content         string
	MentionEveryone bool
	Attachments     []Attachment

	ReplyToID string
}

// DiscordDeleteEvent is a message deleted in a Discord guild channel.
type DiscordDeleteEvent struct {
	MessageID string
	GuildID   string
	ChannelID string
}

// Handler is the inbound event surface of the relay. The platform gateways
// translate their native payloads into these events and dispatch them here;
// each call is an independent unit of work and may run concurrently with any
// other.
type Handler interface {
	HandleQQMessage(ctx context.Context, ev QQMessageEvent)
	HandleQQDelete(ctx context.Context, ev QQDeleteEvent)
	HandleDiscordMessage(ctx context.Context, ev DiscordMessageEvent)
	HandleDiscordDelete(ctx context.Context, ev DiscordDeleteEvent)
}
