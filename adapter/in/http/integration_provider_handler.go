package http

import (
	"strings"

	"integration_server/core/domain"
	"integration_server/core/port/in"
	"integration_server/pkg/response"

	"github.com/gofiber/fiber/v2"
)

const defaultInboxCount = 10

// ProviderHandler exposes Slack, Gmail and Calendar operations of the
// connected accounts.
type ProviderHandler struct {
	gateway in.GatewayService
	summary in.SummaryService
}

func NewProviderHandler(gateway in.GatewayService, summary in.SummaryService) *ProviderHandler {
	return &ProviderHandler{gateway: gateway, summary: summary}
}

func (h *ProviderHandler) Register(router fiber.Router) {
	slack := router.Group("/integrations/slack")
	slack.Get("/channels", h.ListChannels)
	slack.Post("/messages", h.SendMessage)
	slack.Get("/channels/:channel/history", h.FetchHistory)
	slack.Post("/channels/:channel/summary", h.SummarizeChannel)

	google := router.Group("/integrations/google")
	google.Get("/inbox", h.FetchInbox)
	google.Post("/inbox/summary", h.SummarizeInbox)
	google.Post("/emails", h.SendEmail)
	google.Post("/calendar/sync-out", h.SyncEventsOut)
	google.Post("/calendar/sync-in", h.SyncEventsIn)
}

// =============================================================================
// Slack
// =============================================================================

type sendMessageRequest struct {
	Channel     string `json:"channel"`
	Text        string `json:"text"`
	ThreadTS    string `json:"thread_ts"`
	UnfurlLinks bool   `json:"unfurl_links"`
}

func (h *ProviderHandler) ListChannels(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}

	channels, err := h.gateway.ListChannels(c.UserContext(), userID)
	if err != nil {
		return err
	}
	return response.List(c, channels)
}

func (h *ProviderHandler) SendMessage(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	var req sendMessageRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	result, err := h.gateway.SendMessage(c.UserContext(), userID, req.Channel, req.Text, domain.SendOptions{
		ThreadTS:    req.ThreadTS,
		UnfurlLinks: req.UnfurlLinks,
	})
	if err != nil {
		return err
	}
	return response.Created(c, result)
}

func (h *ProviderHandler) FetchHistory(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	limit, err := countQuery(c, "limit", domain.DefaultHistoryLimit)
	if err != nil {
		return err
	}

	msgs, err := h.gateway.FetchHistory(c.UserContext(), userID, c.Params("channel"), limit)
	if err != nil {
		return err
	}
	return response.List(c, msgs)
}

func (h *ProviderHandler) SummarizeChannel(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	count, err := countQuery(c, "count", domain.DefaultHistoryLimit)
	if err != nil {
		return err
	}

	summary, err := h.summary.SummarizeChannel(c.UserContext(), userID, c.Params("channel"), count)
	if err != nil {
		return err
	}
	return response.OK(c, fiber.Map{"summary": summary})
}

// =============================================================================
// Google
// =============================================================================

type sendEmailRequest struct {
	To        []string `json:"to"`
	Subject   string   `json:"subject"`
	Body      string   `json:"body"`
	IsHTML    bool     `json:"is_html"`
	InReplyTo string   `json:"in_reply_to"`
}

type syncOutRequest struct {
	Events []domain.CalendarEvent `json:"events"`
}

func (h *ProviderHandler) FetchInbox(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	limit, err := countQuery(c, "limit", defaultInboxCount)
	if err != nil {
		return err
	}

	msgs, err := h.gateway.FetchInbox(c.UserContext(), userID, limit)
	if err != nil {
		return err
	}
	return response.List(c, msgs)
}

func (h *ProviderHandler) SummarizeInbox(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	count, err := countQuery(c, "count", defaultInboxCount)
	if err != nil {
		return err
	}

	summary, err := h.summary.SummarizeInbox(c.UserContext(), userID, count)
	if err != nil {
		return err
	}
	return response.OK(c, fiber.Map{"summary": summary})
}

func (h *ProviderHandler) SendEmail(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	var req sendEmailRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	to := make([]string, 0, len(req.To))
	for _, addr := range req.To {
		if addr = strings.TrimSpace(addr); addr != "" {
			to = append(to, addr)
		}
	}

	id, err := h.gateway.SendEmail(c.UserContext(), userID, &domain.OutgoingEmail{
		To:        to,
		Subject:   req.Subject,
		Body:      req.Body,
		IsHTML:    req.IsHTML,
		InReplyTo: req.InReplyTo,
	})
	if err != nil {
		return err
	}
	return response.Created(c, fiber.Map{"message_id": id})
}

func (h *ProviderHandler) SyncEventsOut(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	var req syncOutRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	result, err := h.gateway.SyncEventsOut(c.UserContext(), userID, req.Events)
	if err != nil {
		return err
	}
	return response.OK(c, result)
}

func (h *ProviderHandler) SyncEventsIn(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}

	events, err := h.gateway.SyncEventsIn(c.UserContext(), userID)
	if err != nil {
		return err
	}
	return response.List(c, events)
}
