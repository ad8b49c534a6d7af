// Package provider implements the mailbox adapter for Gmail.
package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"agent_server/core/domain"
	"agent_server/core/port/out"
	"agent_server/pkg/apperr"
)

// GmailConfig holds Gmail adapter configuration.
type GmailConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// TokenDir holds one <account_id>.json OAuth token per account.
	TokenDir       string
	ProcessedLabel string
}

// GmailAdapter implements out.MailboxPort against the Gmail API. Services
// and label ID maps are cached per account; the label state itself always
// lives in the mailbox, never here.
type GmailAdapter struct {
	config         *oauth2.Config
	tokenDir       string
	processedLabel string
	cb             *gobreaker.CircuitBreaker
	log            zerolog.Logger

	mu       sync.Mutex
	services map[string]*gmail.Service
	labelIDs map[string]map[string]string // account -> label name -> label ID
}

// NewGmailAdapter creates a Gmail adapter with a shared circuit breaker.
func NewGmailAdapter(cfg *GmailConfig, log zerolog.Logger) *GmailAdapter {
	oauthConfig := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes: []string{
			gmail.GmailReadonlyScope,
			gmail.GmailModifyScope,
			gmail.GmailLabelsScope,
		},
		Endpoint: google.Endpoint,
	}

	logger := log.With().Str("component", "gmail").Logger()
	cbSettings := gobreaker.Settings{
		Name:        "gmail-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	}

	return &GmailAdapter{
		config:         oauthConfig,
		tokenDir:       cfg.TokenDir,
		processedLabel: cfg.ProcessedLabel,
		cb:             gobreaker.NewCircuitBreaker(cbSettings),
		log:            logger,
		services:       make(map[string]*gmail.Service),
		labelIDs:       make(map[string]map[string]string),
	}
}

// FetchUnread returns unread messages that do not yet carry the processed
// marker. The filtering happens in the Gmail query itself, which is what
// makes reprocessing impossible even across concurrently running agents.
func (a *GmailAdapter) FetchUnread(ctx context.Context, accountID string, maxResults int64) ([]out.RawMessage, error) {
	svc, err := a.service(ctx, accountID)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("is:unread -label:%s", a.processedLabel)
	var resp *gmail.ListMessagesResponse
	cbErr := a.execute(func() error {
		var apiErr error
		resp, apiErr = svc.Users.Messages.List("me").Q(query).MaxResults(maxResults).Context(ctx).Do()
		return apiErr
	})
	if cbErr != nil {
		return nil, a.wrapError(cbErr, "failed to list unread messages")
	}

	msgs := make([]out.RawMessage, 0, len(resp.Messages))
	for _, ref := range resp.Messages {
		var full *gmail.Message
		cbErr := a.execute(func() error {
			var apiErr error
			full, apiErr = svc.Users.Messages.Get("me", ref.Id).Format("full").Context(ctx).Do()
			return apiErr
		})
		if cbErr != nil {
			// One broken fetch costs one message, not the batch.
			a.log.Warn().Err(cbErr).Str("message_id", ref.Id).Msg("message fetch failed")
			continue
		}
		msgs = append(msgs, a.convertMessage(accountID, full))
	}

	a.log.Debug().Str("account_id", accountID).Int("count", len(msgs)).Msg("unread messages fetched")
	return msgs, nil
}

// HydrateAttachments downloads payloads for attachments within the size cap.
// Oversized attachments come back without data; they are skipped, never
// truncated.
func (a *GmailAdapter) HydrateAttachments(ctx context.Context, accountID, messageID string, atts []domain.Attachment, maxBytes int64) ([]domain.Attachment, error) {
	svc, err := a.service(ctx, accountID)
	if err != nil {
		return nil, err
	}

	hydrated := make([]domain.Attachment, len(atts))
	copy(hydrated, atts)
	for i := range hydrated {
		att := &hydrated[i]
		if att.ID == "" || len(att.Data) > 0 {
			continue
		}
		if maxBytes > 0 && att.Size > maxBytes {
			continue
		}

		var body *gmail.MessagePartBody
		cbErr := a.execute(func() error {
			var apiErr error
			body, apiErr = svc.Users.Messages.Attachments.Get("me", messageID, att.ID).Context(ctx).Do()
			return apiErr
		})
		if cbErr != nil {
			return nil, a.wrapError(cbErr, "failed to download attachment")
		}

		data, decodeErr := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(strings.TrimRight(body.Data, "="))
		if decodeErr != nil {
			a.log.Warn().Err(decodeErr).Str("attachment_id", att.ID).Msg("attachment decode failed")
			continue
		}
		att.Data = data
	}
	return hydrated, nil
}

// EnsureLabels creates any missing labels and returns name -> label ID.
func (a *GmailAdapter) EnsureLabels(ctx context.Context, accountID string, names []string) (map[string]string, error) {
	svc, err := a.service(ctx, accountID)
	if err != nil {
		return nil, err
	}

	existing, err := a.refreshLabelCache(ctx, svc, accountID)
	if err != nil {
		return nil, err
	}

	result := make(map[string]string, len(names))
	for _, name := range names {
		if id, ok := existing[name]; ok {
			result[name] = id
			continue
		}

		var created *gmail.Label
		cbErr := a.execute(func() error {
			var apiErr error
			created, apiErr = svc.Users.Labels.Create("me", &gmail.Label{
				Name:                  name,
				LabelListVisibility:   "labelShow",
				MessageListVisibility: "show",
			}).Context(ctx).Do()
			return apiErr
		})
		if cbErr != nil {
			// Concurrent creation races surface as 409; re-list resolves it.
			if apiErr, ok := cbErr.(*googleapi.Error); ok && apiErr.Code == 409 {
				refreshed, refreshErr := a.refreshLabelCache(ctx, svc, accountID)
				if refreshErr == nil {
					if id, ok := refreshed[name]; ok {
						result[name] = id
						continue
					}
				}
			}
			return nil, a.wrapError(cbErr, "failed to create label")
		}

		a.mu.Lock()
		a.labelIDs[accountID][name] = created.Id
		a.mu.Unlock()
		result[name] = created.Id
		a.log.Info().Str("account_id", accountID).Str("label", name).Msg("label created")
	}
	return result, nil
}

// ApplyLabels adds labels one modify call per label, so a partial failure
// reports exactly which labels landed. The reconciler needs that split.
func (a *GmailAdapter) ApplyLabels(ctx context.Context, accountID, messageID string, labels []string) (*out.LabelApplyResult, error) {
	svc, err := a.service(ctx, accountID)
	if err != nil {
		return nil, err
	}

	ids, err := a.EnsureLabels(ctx, accountID, labels)
	if err != nil {
		return nil, err
	}

	result := &out.LabelApplyResult{}
	for _, name := range labels {
		cbErr := a.execute(func() error {
			_, apiErr := svc.Users.Messages.Modify("me", messageID, &gmail.ModifyMessageRequest{
				AddLabelIds: []string{ids[name]},
			}).Context(ctx).Do()
			return apiErr
		})
		if cbErr != nil {
			a.log.Warn().Err(cbErr).Str("message_id", messageID).Str("label", name).Msg("label apply failed")
			result.Failed = append(result.Failed, name)
			continue
		}
		result.Applied = append(result.Applied, name)
	}
	return result, nil
}

// MarkProcessed adds the processed marker label.
func (a *GmailAdapter) MarkProcessed(ctx context.Context, accountID, messageID string) error {
	svc, err := a.service(ctx, accountID)
	if err != nil {
		return err
	}

	ids, err := a.EnsureLabels(ctx, accountID, []string{a.processedLabel})
	if err != nil {
		return err
	}

	cbErr := a.execute(func() error {
		_, apiErr := svc.Users.Messages.Modify("me", messageID, &gmail.ModifyMessageRequest{
			AddLabelIds: []string{ids[a.processedLabel]},
		}).Context(ctx).Do()
		return apiErr
	})
	if cbErr != nil {
		return a.wrapError(cbErr, "failed to mark processed")
	}
	return nil
}

// Trash moves a message to the Gmail trash.
func (a *GmailAdapter) Trash(ctx context.Context, accountID, messageID string) error {
	svc, err := a.service(ctx, accountID)
	if err != nil {
		return err
	}

	cbErr := a.execute(func() error {
		_, apiErr := svc.Users.Messages.Trash("me", messageID).Context(ctx).Do()
		return apiErr
	})
	if cbErr != nil {
		return a.wrapError(cbErr, "failed to trash message")
	}
	return nil
}

// ListProcessed returns metadata for messages bearing the marker label,
// paginating up to maxResults. Only labels and the date are fetched.
func (a *GmailAdapter) ListProcessed(ctx context.Context, accountID, markerLabel string, maxResults int64) ([]out.ProcessedMessage, error) {
	svc, err := a.service(ctx, accountID)
	if err != nil {
		return nil, err
	}

	idToName, err := a.labelNamesByID(ctx, svc, accountID)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("label:%s", markerLabel)
	var msgs []out.ProcessedMessage
	pageToken := ""
	for {
		req := svc.Users.Messages.List("me").Q(query).MaxResults(maxResults)
		if pageToken != "" {
			req = req.PageToken(pageToken)
		}

		var resp *gmail.ListMessagesResponse
		cbErr := a.execute(func() error {
			var apiErr error
			resp, apiErr = req.Context(ctx).Do()
			return apiErr
		})
		if cbErr != nil {
			return nil, a.wrapError(cbErr, "failed to list processed messages")
		}

		for _, ref := range resp.Messages {
			var meta *gmail.Message
			cbErr := a.execute(func() error {
				var apiErr error
				meta, apiErr = svc.Users.Messages.Get("me", ref.Id).Format("metadata").MetadataHeaders("Date").Context(ctx).Do()
				return apiErr
			})
			if cbErr != nil {
				a.log.Warn().Err(cbErr).Str("message_id", ref.Id).Msg("metadata fetch failed")
				continue
			}

			names := make([]string, 0, len(meta.LabelIds))
			for _, id := range meta.LabelIds {
				if name, ok := idToName[id]; ok {
					names = append(names, name)
				}
			}
			msgs = append(msgs, out.ProcessedMessage{
				ID:        ref.Id,
				AccountID: accountID,
				Labels:    names,
				Date:      time.UnixMilli(meta.InternalDate).UTC(),
			})
		}

		if resp.NextPageToken == "" || int64(len(msgs)) >= maxResults {
			break
		}
		pageToken = resp.NextPageToken
	}
	return msgs, nil
}

func (a *GmailAdapter) service(ctx context.Context, accountID string) (*gmail.Service, error) {
	a.mu.Lock()
	if svc, ok := a.services[accountID]; ok {
		a.mu.Unlock()
		return svc, nil
	}
	a.mu.Unlock()

	token, err := a.loadToken(accountID)
	if err != nil {
		return nil, err
	}

	svc, err := gmail.NewService(ctx, option.WithTokenSource(
		a.config.TokenSource(ctx, token),
	))
	if err != nil {
		return nil, apperr.Mailbox(err, "failed to create gmail service")
	}

	a.mu.Lock()
	a.services[accountID] = svc
	if a.labelIDs[accountID] == nil {
		a.labelIDs[accountID] = make(map[string]string)
	}
	a.mu.Unlock()
	return svc, nil
}

func (a *GmailAdapter) loadToken(accountID string) (*oauth2.Token, error) {
	return loadAccountToken(a.tokenDir, accountID)
}

// loadAccountToken reads the per-account OAuth token file shared by all
// Google API adapters.
func loadAccountToken(tokenDir, accountID string) (*oauth2.Token, error) {
	path := filepath.Join(tokenDir, accountID+".json")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.FatalConfig("missing oauth token file").WithDetail("path", path)
	}
	var token oauth2.Token
	if err := json.Unmarshal(raw, &token); err != nil {
		return nil, apperr.FatalConfig("malformed oauth token file").WithDetail("path", path)
	}
	return &token, nil
}

func (a *GmailAdapter) refreshLabelCache(ctx context.Context, svc *gmail.Service, accountID string) (map[string]string, error) {
	var resp *gmail.ListLabelsResponse
	cbErr := a.execute(func() error {
		var apiErr error
		resp, apiErr = svc.Users.Labels.List("me").Context(ctx).Do()
		return apiErr
	})
	if cbErr != nil {
		return nil, a.wrapError(cbErr, "failed to list labels")
	}

	byName := make(map[string]string, len(resp.Labels))
	for _, l := range resp.Labels {
		byName[l.Name] = l.Id
	}

	a.mu.Lock()
	a.labelIDs[accountID] = byName
	a.mu.Unlock()
	return byName, nil
}

func (a *GmailAdapter) labelNamesByID(ctx context.Context, svc *gmail.Service, accountID string) (map[string]string, error) {
	byName, err := a.refreshLabelCache(ctx, svc, accountID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]string, len(byName))
	for name, id := range byName {
		byID[id] = name
	}
	return byID, nil
}

// execute wraps an API call with the circuit breaker. Client errors (4xx
// except 429) must not trip the circuit.
func (a *GmailAdapter) execute(fn func() error) error {
	_, err := a.cb.Execute(func() (interface{}, error) {
		if err := fn(); err != nil {
			if apiErr, ok := err.(*googleapi.Error); ok {
				switch apiErr.Code {
				case 500, 502, 503, 429:
					return nil, err
				case 400, 401, 403, 404, 409:
					return nil, &nonCircuitError{err: err}
				}
			}
			return nil, err
		}
		return nil, nil
	})

	if nce, ok := err.(*nonCircuitError); ok {
		return nce.err
	}
	return err
}

// nonCircuitError wraps errors that should not trip the circuit breaker.
type nonCircuitError struct {
	err error
}

func (e *nonCircuitError) Error() string {
	return e.err.Error()
}

func (a *GmailAdapter) wrapError(err error, defaultMsg string) error {
	if err == nil {
		return nil
	}
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return apperr.TransientBackend(err, "gmail circuit open")
	}
	if apiErr, ok := err.(*googleapi.Error); ok {
		switch apiErr.Code {
		case 429, 500, 502, 503:
			return apperr.TransientBackend(err, defaultMsg)
		}
	}
	return apperr.Mailbox(err, defaultMsg)
}

func (a *GmailAdapter) convertMessage(accountID string, msg *gmail.Message) out.RawMessage {
	raw := out.RawMessage{
		ID:        msg.Id,
		ThreadID:  msg.ThreadId,
		AccountID: accountID,
		Date:      time.UnixMilli(msg.InternalDate).UTC(),
	}
	if msg.Payload == nil {
		return raw
	}

	raw.From = getHeader(msg.Payload.Headers, "From")
	raw.Subject = getHeader(msg.Payload.Headers, "Subject")
	raw.Body = extractBody(msg.Payload)
	raw.Attachments = extractAttachments(msg.Payload)

	for _, att := range raw.Attachments {
		if att.IsImage() {
			raw.HasNonTextContent = true
			break
		}
	}
	if raw.Body == "" {
		raw.HasNonTextContent = raw.HasNonTextContent || len(raw.Attachments) > 0
	}
	return raw
}

// extractBody walks MIME parts depth-first and returns the first text part,
// preferring text/plain over text/html.
func extractBody(part *gmail.MessagePart) string {
	if part == nil {
		return ""
	}

	var htmlBody string
	var walk func(p *gmail.MessagePart) string
	walk = func(p *gmail.MessagePart) string {
		if p.Body != nil && p.Body.Data != "" {
			switch p.MimeType {
			case "text/plain":
				return p.Body.Data
			case "text/html":
				if htmlBody == "" {
					htmlBody = p.Body.Data
				}
			}
		}
		for _, child := range p.Parts {
			if plain := walk(child); plain != "" {
				return plain
			}
		}
		return ""
	}

	if plain := walk(part); plain != "" {
		return plain
	}
	return htmlBody
}

func extractAttachments(part *gmail.MessagePart) []domain.Attachment {
	if part == nil {
		return nil
	}

	var atts []domain.Attachment
	var walk func(p *gmail.MessagePart)
	walk = func(p *gmail.MessagePart) {
		if p.Filename != "" && p.Body != nil && p.Body.AttachmentId != "" {
			atts = append(atts, domain.Attachment{
				ID:       p.Body.AttachmentId,
				Filename: p.Filename,
				MimeType: p.MimeType,
				Size:     p.Body.Size,
			})
		}
		for _, child := range p.Parts {
			walk(child)
		}
	}
	walk(part)
	return atts
}

func getHeader(headers []*gmail.MessagePartHeader, name string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

var _ out.MailboxPort = (*GmailAdapter)(nil)
