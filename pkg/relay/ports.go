package relay

import (
	"context"
	"time"
)

// DiscordMessage is the subset of a fetched Discord message the relay needs
// for reply rendering and content fallback.
type DiscordMessage struct {
	ID              string
	ChannelID       string
	Content         string
	AuthorID        string
	AuthorUsername  string
	Timestamp       time.Time
	MentionEveryone bool
	Attachments     []Attachment
	ReplyToID       string
}

// QQMessage is the subset of a fetched QQ message the relay needs for reply
// rendering.
type QQMessage struct {
	ID        string
	ChannelID string
	GuildID   string
	Content   string
	AuthorID  string
	Timestamp time.Time
}

// File is one upload attached to an outbound Discord webhook message.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// WebhookMessage is the payload for one webhook delivery to Discord.
type WebhookMessage struct {
	Content   string
	Username  string
	AvatarURL string
	Quote     *Quote
	Files     []File
}

// QQSend is the payload for one message post to a QQ channel. QQ accepts at
// most one image per message.
type QQSend struct {
	Content         string
	Image           []byte
	ReplyToID       string
	MentionEveryone bool
}

// AuditStatus is the outcome of QQ's asynchronous content audit for one send.
type AuditStatus struct {
	AuditID   string
	MessageID string
	Rejected  bool
}

// DiscordPort is everything the relay core needs from the Discord side.
// Implementations wrap a live client handle; the core never holds global
// session state.
type DiscordPort interface {
	// BotUserID identifies the relay's own Discord user, used to find
	// webhooks it previously created. Implementations may resolve it over
	// REST when the gateway session is not established yet.
	BotUserID(ctx context.Context) (string, error)

	MemberDisplayName(ctx context.Context, guildID, userID string) (string, error)
	Username(ctx context.Context, userID string) (string, error)
	MemberAvatarURL(ctx context.Context, guildID, userID string) (string, error)
	RoleName(ctx context.Context, guildID, roleID string) (string, error)
	ChannelName(ctx context.Context, guildID, channelID string) (string, error)
	Message(ctx context.Context, channelID, messageID string) (*DiscordMessage, error)

	ChannelWebhooks(ctx context.Context, channelID string) ([]Webhook, error)
	CreateWebhook(ctx context.Context, channelID, name string) (Webhook, error)

	// ExecuteWebhook posts one message through the given credential and
	// returns the created message id.
	ExecuteWebhook(ctx context.Context, cred Webhook, msg WebhookMessage) (string, error)

	DeleteMessage(ctx context.Context, channelID, messageID string) error
}

// QQMember is the resolved display info for one guild member.
type QQMember struct {
	Name      string
	AvatarURL string
}

// QQPort is everything the relay core needs from the QQ guild side.
type QQPort interface {
	BotUserID(ctx context.Context) (string, error)

	Member(ctx context.Context, guildID, userID string) (QQMember, error)
	Message(ctx context.Context, channelID, messageID string) (*QQMessage, error)

	// Send posts one message. When QQ defers the message to content audit,
	// the returned message id is empty and the ticket identifies the pending
	// audit for polling via AuditResult.
	Send(ctx context.Context, channelID string, msg QQSend) (messageID, ticket string, err error)

	// AuditResult reports the outcome for a ticket returned by Send. ok is
	// false while the audit is still pending.
	AuditResult(ticket string) (AuditStatus, bool)

	DeleteMessage(ctx context.Context, channelID, messageID string) error
}

// ImagePort downloads attachment bytes (optionally through the configured
// proxy) and prepares them for re-upload on the target platform.
type ImagePort interface {
	Fetch(ctx context.Context, url string) ([]byte, error)

	// DiscordFile wraps downloaded bytes as an upload with a sniffed
	// filename and content type.
	DiscordFile(url string, data []byte) File

	// PrepareForQQ transcodes webp images to PNG, which QQ cannot render;
	// other formats pass through unmodified.
	PrepareForQQ(data []byte) ([]byte, error)
}

// Correlator is the correlation-store surface the relay core depends on.
// *store.Store is the durable implementation.
type Correlator interface {
	Record(sourceID, targetID string) error
	TargetsFor(sourceID string) ([]string, error)
	SourceFor(targetID string) (string, bool, error)
	DeleteBySource(sourceID string) error
	DeleteByTarget(targetID string) error
}
