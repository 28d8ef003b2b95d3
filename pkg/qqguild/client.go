// Package qqguild adapts the QQ guild open platform SDK to the relay's QQ
// port.
package qqguild

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tencent-connect/botgo"
	"github.com/tencent-connect/botgo/constant"
	"github.com/tencent-connect/botgo/dto"
	"github.com/tencent-connect/botgo/errs"
	"github.com/tencent-connect/botgo/openapi"
	"github.com/tencent-connect/botgo/token"
	"golang.org/x/oauth2"

	"github.com/Autuamn/dcqg-relay/pkg/relay"
)

// QQ returns this code when a message is withheld for content audit instead
// of being created immediately.
const codeMessageAudit = 304023

// How long an unresolved audit ticket is kept before being pruned.
const auditTicketTTL = 10 * time.Minute

const maxResponseBytes = 1 << 20

// Client wraps the QQ open API. The gateway side lives in Gateway and shares
// the same token source.
type Client struct {
	appID       string
	tokenSource oauth2.TokenSource
	api         openapi.OpenAPI
	base        string
	http        *http.Client
	audits      *auditRegistry

	mu    sync.Mutex
	botID string
}

func New(appID, secret string, sandbox bool) *Client {
	ts := token.NewQQBotTokenSource(&token.QQBotCredentials{
		AppID:     appID,
		AppSecret: secret,
	})
	var api openapi.OpenAPI
	base := constant.APIDomain
	if sandbox {
		api = botgo.NewSandboxOpenAPI(appID, ts).WithTimeout(10 * time.Second)
		base = constant.SandBoxAPIDomain
	} else {
		api = botgo.NewOpenAPI(appID, ts).WithTimeout(10 * time.Second)
	}
	return &Client{
		appID:       appID,
		tokenSource: ts,
		api:         api,
		base:        base,
		http:        &http.Client{Timeout: 30 * time.Second},
		audits:      newAuditRegistry(),
	}
}

func (c *Client) BotUserID(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.botID != "" {
		return c.botID, nil
	}
	me, err := c.api.Me(ctx)
	if err != nil {
		return "", classify(err)
	}
	c.botID = me.ID
	return c.botID, nil
}

func (c *Client) Member(ctx context.Context, guildID, userID string) (relay.QQMember, error) {
	member, err := c.api.GuildMember(ctx, guildID, userID)
	if err != nil {
		return relay.QQMember{}, classify(err)
	}
	out := relay.QQMember{Name: member.Nick}
	if member.User != nil {
		if out.Name == "" {
			out.Name = member.User.Username
		}
		out.AvatarURL = member.User.Avatar
	}
	return out, nil
}

func (c *Client) Message(ctx context.Context, channelID, messageID string) (*relay.QQMessage, error) {
	msg, err := c.api.Message(ctx, channelID, messageID)
	if err != nil {
		return nil, classify(err)
	}
	out := &relay.QQMessage{
		ID:        msg.ID,
		ChannelID: msg.ChannelID,
		GuildID:   msg.GuildID,
		Content:   msg.Content,
	}
	if msg.Author != nil {
		out.AuthorID = msg.Author.ID
	}
	if ts, err := msg.Timestamp.Time(); err == nil {
		out.Timestamp = ts
	}
	return out, nil
}

// Send posts one message. A ticket is registered before the API call so an
// audit event racing the response cannot be lost; when the platform defers
// the message to audit, the ticket is returned for polling and resolved by
// the gateway's audit event handler.
func (c *Client) Send(ctx context.Context, channelID string, msg relay.QQSend) (string, string, error) {
	payload := &dto.MessageToCreate{Content: msg.Content}
	if msg.MentionEveryone {
		payload.Content = "@everyone " + payload.Content
	}
	if msg.ReplyToID != "" {
		payload.MessageReference = &dto.MessageReference{MessageID: msg.ReplyToID}
	}

	ticket := c.audits.register(channelID)

	var created *dto.Message
	var err error
	if len(msg.Image) > 0 {
		created, err = c.postImageMessage(ctx, channelID, payload.Content, msg.Image)
	} else {
		created, err = c.api.PostMessage(ctx, channelID, payload)
	}
	if err != nil {
		if isAuditError(err) {
			return "", ticket, nil
		}
		c.audits.cancel(channelID, ticket)
		return "", "", classify(err)
	}

	c.audits.cancel(channelID, ticket)
	return created.ID, "", nil
}

// postImageMessage uploads image bytes as a guild message. The SDK's message
// API only takes image URLs, so raw bytes go to the channel messages endpoint
// directly as a multipart form with a file_image part.
func (c *Client) postImageMessage(ctx context.Context, channelID, content string, image []byte) (*dto.Message, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	if content != "" {
		if err := form.WriteField("content", content); err != nil {
			return nil, err
		}
	}
	part, err := form.CreateFormFile("file_image", "file_image")
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(image); err != nil {
		return nil, err
	}
	if err := form.Close(); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/channels/%s/messages", c.base, channelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, err
	}
	tk, err := c.tokenSource.Token()
	if err != nil {
		return nil, fmt.Errorf("fetching qq access token: %w", err)
	}
	req.Header.Set("Authorization", tk.TokenType+" "+tk.AccessToken)
	req.Header.Set("X-Union-Appid", c.appID)
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &apiError{status: resp.StatusCode, code: bodyCode(data), body: string(data)}
	}
	created := &dto.Message{}
	if err := json.Unmarshal(data, created); err != nil {
		return nil, fmt.Errorf("parsing message create response: %w", err)
	}
	return created, nil
}

func (c *Client) AuditResult(ticket string) (relay.AuditStatus, bool) {
	return c.audits.result(ticket)
}

func (c *Client) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	return classify(c.api.RetractMessage(ctx, channelID, messageID))
}

// auditRegistry correlates audit tickets with the pass/reject events arriving
// on the websocket. The platform does not echo a request id back, so tickets
// are resolved in send order per channel.
type auditRegistry struct {
	mu      sync.Mutex
	pending map[string][]pendingAudit
	results map[string]relay.AuditStatus
}

type pendingAudit struct {
	ticket string
	at     time.Time
}

func newAuditRegistry() *auditRegistry {
	return &auditRegistry{
		pending: make(map[string][]pendingAudit),
		results: make(map[string]relay.AuditStatus),
	}
}

func (r *auditRegistry) register(channelID string) string {
	ticket := uuid.NewString()
	r.mu.Lock()
	r.prune(channelID)
	r.pending[channelID] = append(r.pending[channelID], pendingAudit{ticket: ticket, at: time.Now()})
	r.mu.Unlock()
	return ticket
}

func (r *auditRegistry) cancel(channelID, ticket string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	queue := r.pending[channelID]
	for i, p := range queue {
		if p.ticket == ticket {
			r.pending[channelID] = append(queue[:i], queue[i+1:]...)
			return
		}
	}
}

// resolve settles the oldest pending ticket in the event's channel.
func (r *auditRegistry) resolve(channelID string, status relay.AuditStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	queue := r.pending[channelID]
	if len(queue) == 0 {
		return
	}
	r.results[queue[0].ticket] = status
	r.pending[channelID] = queue[1:]
}

func (r *auditRegistry) result(ticket string) (relay.AuditStatus, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	status, ok := r.results[ticket]
	if ok {
		delete(r.results, ticket)
	}
	return status, ok
}

// prune drops pending tickets whose audit event never arrived. Callers hold
// the lock.
func (r *auditRegistry) prune(channelID string) {
	cutoff := time.Now().Add(-auditTicketTTL)
	queue := r.pending[channelID]
	for len(queue) > 0 && queue[0].at.Before(cutoff) {
		queue = queue[1:]
	}
	r.pending[channelID] = queue
}

// apiError is an open-platform error from the direct message-create call.
// status is the HTTP status; code is the business code from the body.
type apiError struct {
	status int
	code   int
	body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("qq api status %d code %d: %s", e.status, e.code, e.body)
}

// bodyCode extracts the business error code from an error response body.
func bodyCode(body []byte) int {
	var b struct {
		Code    int `json:"code"`
		ErrCode int `json:"err_code"`
	}
	_ = json.Unmarshal(body, &b)
	if b.ErrCode != 0 {
		return b.ErrCode
	}
	return b.Code
}

// isAuditError reports whether err means the message went to content audit
// rather than failing. SDK errors carry the HTTP status as their code and the
// raw response body as text, so the business code is read out of the body.
func isAuditError(err error) bool {
	var api *apiError
	if errors.As(err, &api) {
		return api.code == codeMessageAudit
	}
	var sdk *errs.Err
	if errors.As(err, &sdk) {
		return bodyCode([]byte(sdk.Text())) == codeMessageAudit
	}
	return false
}

// classify marks rate limits, server errors and network failures as
// transient.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if status, ok := httpStatus(err); ok {
		if status == http.StatusTooManyRequests || (status >= 500 && status < 600) {
			return relay.Transient(err)
		}
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return relay.Transient(err)
	}
	return fmt.Errorf("qq api: %w", err)
}

func httpStatus(err error) (int, bool) {
	var api *apiError
	if errors.As(err, &api) {
		return api.status, true
	}
	var sdk *errs.Err
	if errors.As(err, &sdk) {
		return sdk.Code(), true
	}
	return 0, false
}
