package sinch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/constants"
	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/models"
	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/retry"

	"github.com/sirupsen/logrus"
)

// Client talks to the Sinch Conversation API. All authenticated calls
// obtain their bearer token from the in-process token cache, minting a
// new one via the client-credentials grant on a miss.
type Client struct {
	cfg     models.SinchConfig
	gateway *Gateway
	exec    *retry.Executor
	tokens  TokenCache
	mu      sync.Mutex // guards tokens
	logger  *logrus.Logger

	baseURL     string
	authURL     string
	templateURL string
}

// SendOptions carries the optional parts of a message send.
type SendOptions struct {
	ChannelPriorityOrder []string
	Metadata             string
}

// ContactOptions carries the optional parts of a contact create.
type ContactOptions struct {
	DisplayName string
	Metadata    string
}

// MessagesFilter narrows message list reads.
type MessagesFilter struct {
	StartTime *time.Time
	PageSize  int
}

func NewClient(cfg models.SinchConfig, retryCfg retry.Config, logger *logrus.Logger) *Client {
	region := cfg.Region
	if region == "" {
		region = constants.DefaultRegion
	}
	return NewClientWithURLs(cfg, retryCfg, logger,
		fmt.Sprintf("https://%s.conversation.api.sinch.com", region),
		fmt.Sprintf("https://%s.auth.sinch.com/oauth2/token", region),
		fmt.Sprintf("https://%s.template.api.sinch.com", region),
	)
}

// NewClientWithURLs allows endpoint overrides, used by tests.
func NewClientWithURLs(cfg models.SinchConfig, retryCfg retry.Config, logger *logrus.Logger, baseURL, authURL, templateURL string) *Client {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}
	return &Client{
		cfg:         cfg,
		gateway:     NewGateway(constants.DefaultHTTPTimeoutSec*time.Second, logger),
		exec:        retry.NewExecutor(retryCfg),
		logger:      logger,
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		authURL:     authURL,
		templateURL: strings.TrimSuffix(templateURL, "/"),
	}
}

// OAuth2Token returns a valid bearer token, minting one through the
// client-credentials grant when the cache is empty or expired.
func (c *Client) OAuth2Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if token, ok := c.tokens.Get(); ok {
		return token, nil
	}

	if c.cfg.APIKey == "" || c.cfg.APISecret == "" {
		return "", models.ConfigError{Message: "sinch API key and secret are required (set SINCH_API_KEY and SINCH_API_SECRET)"}
	}

	form := url.Values{"grant_type": {"client_credentials"}}

	var res *Result
	err := c.exec.Do(ctx, func(ctx context.Context) (int, error) {
		r, err := c.gateway.DoForm(ctx, http.MethodPost, c.authURL, c.cfg.APIKey, c.cfg.APISecret, form)
		if err != nil {
			return 0, err
		}
		res = r
		return r.StatusCode, nil
	})
	if err != nil {
		return "", &APIError{Message: fmt.Sprintf("token request failed: %v", err)}
	}
	if res.StatusCode != http.StatusOK {
		return "", apiErrorFromResult(res)
	}

	var grant struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(res.Raw, &grant); err != nil || grant.AccessToken == "" {
		return "", &APIError{Message: "token response did not contain an access token", StatusCode: res.StatusCode}
	}

	ttl := grant.ExpiresIn
	if ttl <= 0 {
		ttl = constants.DefaultTokenTTLSec
	}
	c.tokens.Set(grant.AccessToken, time.Duration(ttl)*time.Second)

	return grant.AccessToken, nil
}

// doAuthorized performs one authenticated call through the retry executor
// and returns the final response. A 401 invalidates the cached token so
// the next call re-authenticates; the 401 itself is surfaced unchanged.
func (c *Client) doAuthorized(ctx context.Context, method, endpoint string, payload interface{}) (*Result, error) {
	token, err := c.OAuth2Token(ctx)
	if err != nil {
		return nil, err
	}

	var res *Result
	err = c.exec.Do(ctx, func(ctx context.Context) (int, error) {
		r, err := c.gateway.DoJSON(ctx, method, endpoint, token, payload)
		if err != nil {
			return 0, err
		}
		res = r
		return r.StatusCode, nil
	})
	if err != nil {
		return nil, &APIError{Message: fmt.Sprintf("%s %s failed: %v", method, endpoint, err)}
	}

	if res.StatusCode == http.StatusUnauthorized {
		c.mu.Lock()
		c.tokens.Invalidate()
		c.mu.Unlock()
	}

	return res, nil
}

func (c *Client) projectURL(format string, args ...interface{}) string {
	return c.baseURL + "/v1/projects/" + c.cfg.ProjectID + fmt.Sprintf(format, args...)
}

// SendMessage sends a text message addressed to an existing contact.
func (c *Client) SendMessage(ctx context.Context, contactID, text string, opts SendOptions) (*SendMessageResponse, error) {
	payload := sendMessageRequest{
		AppID:                c.cfg.AppID,
		Recipient:            recipient{ContactID: contactID},
		Message:              MessageContent{TextMessage: &TextMessage{Text: text}},
		ChannelPriorityOrder: opts.ChannelPriorityOrder,
		Metadata:             opts.Metadata,
	}
	return c.sendMessage(ctx, payload)
}

// SendMessageToIdentity sends addressed by raw channel identity (dispatch
// mode, no pre-created contact).
func (c *Client) SendMessageToIdentity(ctx context.Context, channel, identity, text string, opts SendOptions) (*SendMessageResponse, error) {
	payload := sendMessageRequest{
		AppID: c.cfg.AppID,
		Recipient: recipient{IdentifiedBy: &identifiedBy{
			ChannelIdentities: []ChannelIdentity{{Channel: channel, Identity: identity}},
		}},
		Message:              MessageContent{TextMessage: &TextMessage{Text: text}},
		ChannelPriorityOrder: opts.ChannelPriorityOrder,
		Metadata:             opts.Metadata,
	}
	return c.sendMessage(ctx, payload)
}

func (c *Client) sendMessage(ctx context.Context, payload sendMessageRequest) (*SendMessageResponse, error) {
	res, err := c.doAuthorized(ctx, http.MethodPost, c.projectURL("/messages:send"), payload)
	if err != nil {
		return nil, err
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		c.logger.WithFields(logrus.Fields{
			"status": res.StatusCode,
			"body":   string(res.Raw),
		}).Error("Message send rejected by vendor")
		return nil, apiErrorFromResult(res)
	}

	var out SendMessageResponse
	if err := json.Unmarshal(res.Raw, &out); err != nil {
		return nil, &APIError{Message: "failed to decode send response", StatusCode: res.StatusCode}
	}
	return &out, nil
}

// GetConversationMessages lists the messages of one conversation,
// following pagination, optionally bounded by a start time.
func (c *Client) GetConversationMessages(ctx context.Context, conversationID string, filter MessagesFilter) ([]MessageRecord, error) {
	var all []MessageRecord
	pageToken := ""

	for {
		params := url.Values{}
		if filter.StartTime != nil {
			params.Set("start_time", filter.StartTime.UTC().Format(time.RFC3339))
		}
		if filter.PageSize > 0 {
			params.Set("page_size", fmt.Sprintf("%d", filter.PageSize))
		}
		if pageToken != "" {
			params.Set("page_token", pageToken)
		}

		endpoint := c.projectURL("/conversations/%s/messages", url.PathEscape(conversationID))
		if encoded := params.Encode(); encoded != "" {
			endpoint += "?" + encoded
		}

		res, err := c.doAuthorized(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		if res.StatusCode != http.StatusOK {
			return nil, apiErrorFromResult(res)
		}

		var page struct {
			Messages      []MessageRecord `json:"messages"`
			NextPageToken string          `json:"next_page_token"`
		}
		if err := json.Unmarshal(res.Raw, &page); err != nil {
			return nil, &APIError{Message: "failed to decode message list", StatusCode: res.StatusCode}
		}

		all = append(all, page.Messages...)
		if page.NextPageToken == "" {
			return all, nil
		}
		pageToken = page.NextPageToken
	}
}

// GetMessage fetches one message by vendor id.
func (c *Client) GetMessage(ctx context.Context, messageID string) (*MessageRecord, error) {
	res, err := c.doAuthorized(ctx, http.MethodGet, c.projectURL("/messages/%s", url.PathEscape(messageID)), nil)
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusOK {
		return nil, apiErrorFromResult(res)
	}

	var out MessageRecord
	if err := json.Unmarshal(res.Raw, &out); err != nil {
		return nil, &APIError{Message: "failed to decode message", StatusCode: res.StatusCode}
	}
	return &out, nil
}

// ListMessages lists project messages, most recent first.
func (c *Client) ListMessages(ctx context.Context, filter MessagesFilter) ([]MessageRecord, error) {
	params := url.Values{}
	if filter.PageSize > 0 {
		params.Set("page_size", fmt.Sprintf("%d", filter.PageSize))
	}
	if filter.StartTime != nil {
		params.Set("start_time", filter.StartTime.UTC().Format(time.RFC3339))
	}

	endpoint := c.projectURL("/messages")
	if encoded := params.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	res, err := c.doAuthorized(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusOK {
		return nil, apiErrorFromResult(res)
	}

	var page struct {
		Messages []MessageRecord `json:"messages"`
	}
	if err := json.Unmarshal(res.Raw, &page); err != nil {
		return nil, &APIError{Message: "failed to decode message list", StatusCode: res.StatusCode}
	}
	return page.Messages, nil
}

// CreateContact registers a new vendor-side contact for a channel identity.
func (c *Client) CreateContact(ctx context.Context, channel, identity string, opts ContactOptions) (*ContactRecord, error) {
	payload := createContactRequest{
		ChannelIdentities: []ChannelIdentity{{Channel: channel, Identity: identity}},
		DisplayName:       opts.DisplayName,
		Metadata:          opts.Metadata,
	}

	res, err := c.doAuthorized(ctx, http.MethodPost, c.projectURL("/contacts"), payload)
	if err != nil {
		return nil, err
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, apiErrorFromResult(res)
	}

	var out ContactRecord
	if err := json.Unmarshal(res.Raw, &out); err != nil {
		return nil, &APIError{Message: "failed to decode contact", StatusCode: res.StatusCode}
	}
	return &out, nil
}

// GetContact fetches one vendor contact by id.
func (c *Client) GetContact(ctx context.Context, contactID string) (*ContactRecord, error) {
	res, err := c.doAuthorized(ctx, http.MethodGet, c.projectURL("/contacts/%s", url.PathEscape(contactID)), nil)
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusOK {
		return nil, apiErrorFromResult(res)
	}

	var out ContactRecord
	if err := json.Unmarshal(res.Raw, &out); err != nil {
		return nil, &APIError{Message: "failed to decode contact", StatusCode: res.StatusCode}
	}
	return &out, nil
}

// GetApp fetches the channel/app configuration. An empty appID means the
// configured app.
func (c *Client) GetApp(ctx context.Context, appID string) (*AppConfig, error) {
	if appID == "" {
		appID = c.cfg.AppID
	}
	if appID == "" {
		return nil, models.ConfigError{Message: "sinch app id is required (set SINCH_APP_ID)"}
	}

	res, err := c.doAuthorized(ctx, http.MethodGet, c.projectURL("/apps/%s", url.PathEscape(appID)), nil)
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusOK {
		return nil, apiErrorFromResult(res)
	}

	var out AppConfig
	if err := json.Unmarshal(res.Raw, &out); err != nil {
		return nil, &APIError{Message: "failed to decode app config", StatusCode: res.StatusCode}
	}
	return &out, nil
}

// TestConnection performs a minimal authenticated read purely to validate
// credentials. When the vendor rejects the call with a WWW-Authenticate
// header, its detail is surfaced in the error.
func (c *Client) TestConnection(ctx context.Context) error {
	res, err := c.doAuthorized(ctx, http.MethodGet,
		c.projectURL("/messages?page_size=%d", constants.DefaultConnTestPageSz), nil)
	if err != nil {
		return err
	}
	if res.StatusCode == http.StatusOK {
		return nil
	}

	if detail := authenticateDetail(res.Header.Get("WWW-Authenticate")); detail != "" {
		return &APIError{Message: detail, StatusCode: res.StatusCode}
	}
	return apiErrorFromResult(res)
}

// authenticateDetail pulls a human-readable description out of a
// WWW-Authenticate challenge, e.g.
// `Bearer error="invalid_token", error_description="expired"`.
func authenticateDetail(header string) string {
	if header == "" {
		return ""
	}
	for _, key := range []string{"error_description", "error"} {
		marker := key + "=\""
		start := strings.Index(header, marker)
		if start < 0 {
			continue
		}
		rest := header[start+len(marker):]
		end := strings.Index(rest, "\"")
		if end < 0 {
			continue
		}
		if value := rest[:end]; value != "" {
			return value
		}
	}
	return strings.TrimSpace(header)
}

// ListWebhooks lists the project's registered webhook subscriptions.
func (c *Client) ListWebhooks(ctx context.Context) ([]WebhookRecord, error) {
	res, err := c.doAuthorized(ctx, http.MethodGet, c.projectURL("/webhooks"), nil)
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusOK {
		return nil, apiErrorFromResult(res)
	}

	var page struct {
		Webhooks []WebhookRecord `json:"webhooks"`
	}
	if err := json.Unmarshal(res.Raw, &page); err != nil {
		return nil, &APIError{Message: "failed to decode webhook list", StatusCode: res.StatusCode}
	}
	return page.Webhooks, nil
}

// CreateWebhook registers a webhook subscription against the configured app.
func (c *Client) CreateWebhook(ctx context.Context, target string, triggers []string, secret string) (*WebhookRecord, error) {
	payload := WebhookRecord{
		AppID:    c.cfg.AppID,
		Target:   target,
		Triggers: triggers,
		Secret:   secret,
	}

	res, err := c.doAuthorized(ctx, http.MethodPost, c.projectURL("/webhooks"), payload)
	if err != nil {
		return nil, err
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, apiErrorFromResult(res)
	}

	var out WebhookRecord
	if err := json.Unmarshal(res.Raw, &out); err != nil {
		return nil, &APIError{Message: "failed to decode webhook", StatusCode: res.StatusCode}
	}
	return &out, nil
}
