package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

func nopLogger() zerolog.Logger { return zerolog.Nop() }

// fakeDiscord is an in-memory DiscordPort. Error queues let tests script
// per-call failures for the retry paths.
type fakeDiscord struct {
	mu sync.Mutex

	botID        string
	displayNames map[string]string
	usernames    map[string]string
	avatars      map[string]string
	roles        map[string]string
	channelNames map[string]string
	messages     map[string]*DiscordMessage

	webhooks    map[string][]Webhook
	createCalls int
	createErrs  map[string]error
	botIDErr    error

	executed    []WebhookMessage
	executeErrs []error

	deleted    []string
	deleteErrs []error
}

func newFakeDiscord() *fakeDiscord {
	return &fakeDiscord{
		botID:        "dc-bot",
		displayNames: make(map[string]string),
		usernames:    make(map[string]string),
		avatars:      make(map[string]string),
		roles:        make(map[string]string),
		channelNames: make(map[string]string),
		messages:     make(map[string]*DiscordMessage),
		webhooks:     make(map[string][]Webhook),
		createErrs:   make(map[string]error),
	}
}

func (f *fakeDiscord) BotUserID(context.Context) (string, error) {
	if f.botIDErr != nil {
		return "", f.botIDErr
	}
	return f.botID, nil
}

func (f *fakeDiscord) MemberDisplayName(_ context.Context, _, userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if name, ok := f.displayNames[userID]; ok {
		return name, nil
	}
	return "", fmt.Errorf("member %s not found", userID)
}

func (f *fakeDiscord) Username(_ context.Context, userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if name, ok := f.usernames[userID]; ok {
		return name, nil
	}
	return "", fmt.Errorf("user %s not found", userID)
}

func (f *fakeDiscord) MemberAvatarURL(_ context.Context, _, userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if url, ok := f.avatars[userID]; ok {
		return url, nil
	}
	return "", fmt.Errorf("member %s not found", userID)
}

func (f *fakeDiscord) RoleName(_ context.Context, _, roleID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if name, ok := f.roles[roleID]; ok {
		return name, nil
	}
	return "", fmt.Errorf("role %s not found", roleID)
}

func (f *fakeDiscord) ChannelName(_ context.Context, _, channelID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if name, ok := f.channelNames[channelID]; ok {
		return name, nil
	}
	return "", fmt.Errorf("channel %s not found", channelID)
}

func (f *fakeDiscord) Message(_ context.Context, _, messageID string) (*DiscordMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := f.messages[messageID]; ok {
		return msg, nil
	}
	return nil, fmt.Errorf("message %s not found", messageID)
}

func (f *fakeDiscord) ChannelWebhooks(_ context.Context, channelID string) ([]Webhook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.webhooks[channelID], nil
}

func (f *fakeDiscord) CreateWebhook(_ context.Context, channelID, name string) (Webhook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.createErrs[channelID]; err != nil {
		return Webhook{}, err
	}
	f.createCalls++
	hook := Webhook{ID: fmt.Sprintf("hook-%d", f.createCalls), Token: "tok", OwnerID: f.botID}
	f.webhooks[channelID] = append(f.webhooks[channelID], hook)
	return hook, nil
}

func (f *fakeDiscord) ExecuteWebhook(_ context.Context, _ Webhook, msg WebhookMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.executeErrs) > 0 {
		err := f.executeErrs[0]
		f.executeErrs = f.executeErrs[1:]
		if err != nil {
			return "", err
		}
	}
	f.executed = append(f.executed, msg)
	return fmt.Sprintf("dc-%d", len(f.executed)), nil
}

func (f *fakeDiscord) DeleteMessage(_ context.Context, _, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.deleteErrs) > 0 {
		err := f.deleteErrs[0]
		f.deleteErrs = f.deleteErrs[1:]
		if err != nil {
			return err
		}
	}
	f.deleted = append(f.deleted, messageID)
	return nil
}

// fakeQQ is an in-memory QQPort. With auditAll set, every send returns a
// pending ticket whose outcome comes from auditOutcomes.
type fakeQQ struct {
	mu sync.Mutex

	botID    string
	members  map[string]QQMember
	messages map[string]*QQMessage

	sent     []QQSend
	sendErrs []error

	auditAll      bool
	auditOutcomes map[string]AuditStatus
	ticketSeq     int

	deleted    []string
	deleteErrs []error
}

func newFakeQQ() *fakeQQ {
	return &fakeQQ{
		botID:         "qq-bot",
		members:       make(map[string]QQMember),
		messages:      make(map[string]*QQMessage),
		auditOutcomes: make(map[string]AuditStatus),
	}
}

func (f *fakeQQ) BotUserID(context.Context) (string, error) { return f.botID, nil }

func (f *fakeQQ) Member(_ context.Context, _, userID string) (QQMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.members[userID]; ok {
		return m, nil
	}
	return QQMember{}, fmt.Errorf("member %s not found", userID)
}

func (f *fakeQQ) Message(_ context.Context, _, messageID string) (*QQMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := f.messages[messageID]; ok {
		return msg, nil
	}
	return nil, fmt.Errorf("message %s not found", messageID)
}

func (f *fakeQQ) Send(_ context.Context, _ string, msg QQSend) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sendErrs) > 0 {
		err := f.sendErrs[0]
		f.sendErrs = f.sendErrs[1:]
		if err != nil {
			return "", "", err
		}
	}
	f.sent = append(f.sent, msg)
	if f.auditAll {
		f.ticketSeq++
		return "", fmt.Sprintf("ticket-%d", f.ticketSeq), nil
	}
	return fmt.Sprintf("qq-%d", len(f.sent)), "", nil
}

func (f *fakeQQ) AuditResult(ticket string) (AuditStatus, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status, ok := f.auditOutcomes[ticket]
	return status, ok
}

func (f *fakeQQ) DeleteMessage(_ context.Context, _, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.deleteErrs) > 0 {
		err := f.deleteErrs[0]
		f.deleteErrs = f.deleteErrs[1:]
		if err != nil {
			return err
		}
	}
	f.deleted = append(f.deleted, messageID)
	return nil
}

// fakeImages serves attachment bytes from a map and passes QQ preparation
// through untouched.
type fakeImages struct {
	data      map[string][]byte
	fetchErrs map[string]error
}

func newFakeImages() *fakeImages {
	return &fakeImages{data: make(map[string][]byte), fetchErrs: make(map[string]error)}
}

func (f *fakeImages) Fetch(_ context.Context, url string) ([]byte, error) {
	if err, ok := f.fetchErrs[url]; ok {
		return nil, err
	}
	if data, ok := f.data[url]; ok {
		return data, nil
	}
	return []byte(url), nil
}

func (f *fakeImages) DiscordFile(url string, data []byte) File {
	return File{Name: "file.png", ContentType: "image/png", Data: data}
}

func (f *fakeImages) PrepareForQQ(data []byte) ([]byte, error) { return data, nil }

// memCorrelator is an in-memory Correlator matching the durable store's
// semantics.
type memCorrelator struct {
	mu      sync.Mutex
	targets map[string][]string
	sources map[string]string

	recordErr error
}

func newMemCorrelator() *memCorrelator {
	return &memCorrelator{
		targets: make(map[string][]string),
		sources: make(map[string]string),
	}
}

func (m *memCorrelator) Record(sourceID, targetID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recordErr != nil {
		return m.recordErr
	}
	if owner, ok := m.sources[targetID]; ok {
		if owner != sourceID {
			return fmt.Errorf("target %s already owned by source %s", targetID, owner)
		}
		return nil
	}
	m.targets[sourceID] = append(m.targets[sourceID], targetID)
	m.sources[targetID] = sourceID
	return nil
}

func (m *memCorrelator) TargetsFor(sourceID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.targets[sourceID]...), nil
}

func (m *memCorrelator) SourceFor(targetID string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	src, ok := m.sources[targetID]
	return src, ok, nil
}

func (m *memCorrelator) DeleteBySource(sourceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.targets[sourceID] {
		delete(m.sources, t)
	}
	delete(m.targets, sourceID)
	return nil
}

func (m *memCorrelator) DeleteByTarget(targetID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	src, ok := m.sources[targetID]
	if !ok {
		return nil
	}
	delete(m.sources, targetID)
	kept := m.targets[src][:0]
	for _, t := range m.targets[src] {
		if t != targetID {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		delete(m.targets, src)
	} else {
		m.targets[src] = kept
	}
	return nil
}

func (m *memCorrelator) rows() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sources)
}

func testLink() *Link {
	l := &Link{
		QQGuildID:   "qg",
		QQChannelID: "qc",
		DCGuildID:   "dg",
		DCChannelID: "dc",
	}
	l.SetCredential(Webhook{ID: "hook", Token: "tok"})
	return l
}

func fastDeliverer(dc DiscordPort, qq QQPort, images ImagePort, correlate Correlator) *Deliverer {
	d := NewDeliverer(dc, qq, images, correlate, nopLogger())
	d.RetryDelay = time.Millisecond
	d.AuditDelay = time.Millisecond
	return d
}
