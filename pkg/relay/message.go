package relay

import "time"

// Identity is the display identity a relayed message is presented under on
// the target platform. The name embeds the origin user id so the echo guard
// can recognize relay-originated messages when they come back as events.
type Identity struct {
	DisplayName string
	AvatarURL   string
}

// Quote is the rendered reply block for a message that quotes another one.
// Resolved is false when the quoted message predates the bridge (or was never
// relayed), in which case only the immediately visible text is carried and
// the back-link is replaced by a "not resolvable" marker.
type Quote struct {
	AuthorName   string
	AuthorAvatar string
	Text         string
	Timestamp    time.Time
	BackLink     string
	Resolved     bool
}

// TranslatedMessage is the platform-neutral intermediate representation a
// translator produces and a delivery pipeline consumes.
type TranslatedMessage struct {
	// Text is the fully resolved message body.
	Text string

	// Images are source URLs to download and re-upload, in the order they
	// were discovered in the source message.
	Images []string

	// Quote is set when the source message replies to a message that must be
	// rendered as an attributed quote block (QQ → Discord direction).
	Quote *Quote

	// ReplyToID is a target-platform message id to attach as a native reply
	// reference (Discord → QQ direction).
	ReplyToID string

	// MentionEveryone relays the structured mention-everyone flag as a real
	// mention on the target platform. Literal "@everyone" text is defused in
	// Text instead.
	MentionEveryone bool

	Identity Identity
}
