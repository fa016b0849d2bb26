// Package gmail provides the Gmail adapter of the provider gateway.
package gmail

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"html"
	"mime"
	"net/http"
	"strings"
	"time"

	"integration_server/adapter/out/provider/gclient"
	"integration_server/core/domain"
	"integration_server/core/port/out"
	"integration_server/pkg/apperr"
	"integration_server/pkg/logger"
	"integration_server/pkg/resilience"

	gmailapi "google.golang.org/api/gmail/v1"
)

const (
	providerName = string(domain.ProviderGoogle)
	me           = "me"
)

type Config struct {
	// Endpoint overrides the API base URL.
	Endpoint   string
	HTTPClient *http.Client
}

// Adapter implements out.MailProvider over the Gmail API.
type Adapter struct {
	endpoint string
	client   *http.Client
	breaker  *resilience.Breaker
}

var _ out.MailProvider = (*Adapter)(nil)

func NewAdapter(cfg Config) *Adapter {
	return &Adapter{
		endpoint: cfg.Endpoint,
		client:   cfg.HTTPClient,
		breaker:  gclient.NewBreaker("gmail-api"),
	}
}

func (a *Adapter) service(ctx context.Context, conn *domain.ProviderConnection) (*gmailapi.Service, error) {
	svc, err := gmailapi.NewService(ctx, gclient.Options(ctx, conn, a.client, a.endpoint)...)
	if err != nil {
		return nil, apperr.InternalWithError(fmt.Errorf("create gmail service: %w", err))
	}
	return svc, nil
}

func (a *Adapter) execute(operation string, fn func() error) error {
	return gclient.WrapError(operation, a.breaker.Execute(fn))
}

// ListInbox returns the newest inbox messages, oldest first, as
// "Subject: snippet" lines.
func (a *Adapter) ListInbox(ctx context.Context, conn *domain.ProviderConnection, limit int) ([]domain.ExternalMessage, error) {
	if !conn.IsConnected() {
		return nil, apperr.NotConnected(providerName)
	}
	limit = domain.ClampHistoryLimit(limit)

	svc, err := a.service(ctx, conn)
	if err != nil {
		return nil, err
	}

	var list *gmailapi.ListMessagesResponse
	err = a.execute("list inbox", func() error {
		var err error
		list, err = svc.Users.Messages.List(me).Q("in:inbox").MaxResults(int64(limit)).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}

	messages := make([]domain.ExternalMessage, 0, len(list.Messages))
	for i := len(list.Messages) - 1; i >= 0; i-- {
		id := list.Messages[i].Id

		var msg *gmailapi.Message
		err := a.breaker.Execute(func() error {
			var err error
			msg, err = svc.Users.Messages.Get(me, id).
				Format("metadata").
				MetadataHeaders("Subject", "From").
				Context(ctx).
				Do()
			return err
		})
		if err != nil {
			if gclient.IsNotFound(err) {
				logger.WithContext(ctx).WithField("message_id", id).Debug("inbox message vanished, skipping")
				continue
			}
			return nil, gclient.WrapError("get message", err)
		}

		messages = append(messages, convertInboxMessage(msg))
	}
	return messages, nil
}

func convertInboxMessage(msg *gmailapi.Message) domain.ExternalMessage {
	subject := header(msg, "Subject")
	if subject == "" {
		subject = "(no subject)"
	}
	snippet := strings.TrimSpace(html.UnescapeString(msg.Snippet))

	text := subject
	if snippet != "" {
		text = subject + ": " + snippet
	}
	return domain.ExternalMessage{
		ExternalID: msg.Id,
		Text:       text,
		AuthorID:   header(msg, "From"),
		Timestamp:  time.UnixMilli(msg.InternalDate).UTC(),
	}
}

// Send sends a drafted email and returns the Gmail message id. A reply is
// threaded when InReplyTo names a Gmail message id; an RFC Message-ID in
// angle brackets only sets the reply headers.
func (a *Adapter) Send(ctx context.Context, conn *domain.ProviderConnection, email *domain.OutgoingEmail) (string, error) {
	if !conn.IsConnected() {
		return "", apperr.NotConnected(providerName)
	}
	if email == nil || len(email.To) == 0 {
		return "", apperr.MissingField("to")
	}

	svc, err := a.service(ctx, conn)
	if err != nil {
		return "", err
	}

	var reply replyHeaders
	if email.InReplyTo != "" {
		reply, err = a.resolveReply(ctx, svc, email.InReplyTo)
		if err != nil {
			return "", err
		}
	}

	msg := &gmailapi.Message{
		Raw:      base64.URLEncoding.EncodeToString(buildRawMessage(email, reply)),
		ThreadId: reply.threadID,
	}

	var sent *gmailapi.Message
	err = a.execute("send email", func() error {
		var err error
		sent, err = svc.Users.Messages.Send(me, msg).Context(ctx).Do()
		return err
	})
	if err != nil {
		return "", err
	}
	return sent.Id, nil
}

type replyHeaders struct {
	threadID   string
	inReplyTo  string
	references string
}

func (a *Adapter) resolveReply(ctx context.Context, svc *gmailapi.Service, inReplyTo string) (replyHeaders, error) {
	if strings.HasPrefix(inReplyTo, "<") {
		return replyHeaders{inReplyTo: inReplyTo, references: inReplyTo}, nil
	}

	var orig *gmailapi.Message
	err := a.execute("load replied message", func() error {
		var err error
		orig, err = svc.Users.Messages.Get(me, inReplyTo).
			Format("metadata").
			MetadataHeaders("Message-ID", "References").
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return replyHeaders{}, err
	}

	messageID := header(orig, "Message-ID")
	refs := strings.TrimSpace(header(orig, "References") + " " + messageID)
	return replyHeaders{
		threadID:   orig.ThreadId,
		inReplyTo:  messageID,
		references: refs,
	}, nil
}

func header(msg *gmailapi.Message, name string) string {
	if msg == nil || msg.Payload == nil {
		return ""
	}
	for _, h := range msg.Payload.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// buildRawMessage renders an RFC 2822 message.
func buildRawMessage(email *domain.OutgoingEmail, reply replyHeaders) []byte {
	var buf bytes.Buffer

	subject := email.Subject
	if reply.inReplyTo != "" && !strings.HasPrefix(strings.ToLower(subject), "re:") {
		subject = "Re: " + subject
	}

	to := make([]string, 0, len(email.To))
	for _, addr := range email.To {
		if addr = sanitizeHeader(addr); addr != "" {
			to = append(to, addr)
		}
	}

	buf.WriteString("To: " + strings.Join(to, ", ") + "\r\n")
	buf.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", sanitizeHeader(subject)) + "\r\n")
	buf.WriteString("MIME-Version: 1.0\r\n")
	if reply.inReplyTo != "" {
		buf.WriteString("In-Reply-To: " + sanitizeHeader(reply.inReplyTo) + "\r\n")
	}
	if reply.references != "" {
		buf.WriteString("References: " + sanitizeHeader(reply.references) + "\r\n")
	}
	if email.IsHTML {
		buf.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	} else {
		buf.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	}
	buf.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(email.Body)

	return buf.Bytes()
}

func sanitizeHeader(v string) string {
	return strings.TrimSpace(strings.NewReplacer("\r", "", "\n", "").Replace(v))
}
