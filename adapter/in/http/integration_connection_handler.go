package http

import (
	"errors"
	"net/url"

	"integration_server/core/port/in"
	"integration_server/pkg/apperr"
	"integration_server/pkg/logger"
	"integration_server/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// ConnectionHandler serves the OAuth connect flow and connection status.
type ConnectionHandler struct {
	connections in.ConnectionService
	frontendURL string
}

func NewConnectionHandler(connections in.ConnectionService, frontendURL string) *ConnectionHandler {
	return &ConnectionHandler{connections: connections, frontendURL: frontendURL}
}

// RegisterPublic mounts the provider callback, which arrives without our JWT.
func (h *ConnectionHandler) RegisterPublic(router fiber.Router) {
	router.Get("/integrations/:provider/callback", h.Callback)
}

func (h *ConnectionHandler) Register(router fiber.Router) {
	router.Get("/integrations", h.Status)
	router.Get("/integrations/:provider/connect", h.Connect)
	router.Delete("/integrations/:provider", h.Disconnect)
}

func (h *ConnectionHandler) Connect(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	provider, err := providerParam(c)
	if err != nil {
		return err
	}

	authURL, state, err := h.connections.BuildAuthorizationURL(c.UserContext(), userID, provider)
	if err != nil {
		return err
	}
	return response.OK(c, fiber.Map{
		"auth_url": authURL,
		"state":    state,
	})
}

// Callback completes authorization. With a frontend configured the browser
// is redirected back with the outcome in the query string.
func (h *ConnectionHandler) Callback(c *fiber.Ctx) error {
	provider, err := providerParam(c)
	if err != nil {
		return err
	}

	result, err := h.connections.HandleCallback(c.UserContext(), provider, c.Query("code"), c.Query("state"), c.Query("error"))
	if h.frontendURL == "" {
		if err != nil {
			return err
		}
		return response.OK(c, result)
	}

	q := url.Values{}
	q.Set("provider", string(provider))
	if err != nil {
		var appErr *apperr.AppError
		code := apperr.CodeInternalError
		if errors.As(err, &appErr) {
			code = appErr.Code
		}
		logger.WithContext(c.UserContext()).WithError(err).Warn("oauth callback failed for %s", provider)
		q.Set("error", code)
	} else {
		q.Set("oauth", "success")
	}
	return c.Redirect(h.frontendURL+"/settings/integrations?"+q.Encode(), fiber.StatusFound)
}

func (h *ConnectionHandler) Disconnect(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	provider, err := providerParam(c)
	if err != nil {
		return err
	}

	if err := h.connections.Disconnect(c.UserContext(), userID, provider); err != nil {
		return err
	}
	return response.NoContent(c)
}

func (h *ConnectionHandler) Status(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}

	statuses, err := h.connections.Status(c.UserContext(), userID)
	if err != nil {
		return err
	}
	return response.List(c, statuses)
}
