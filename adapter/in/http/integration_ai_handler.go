package http

import (
	"integration_server/core/domain"
	"integration_server/core/port/in"
	"integration_server/pkg/response"

	"github.com/gofiber/fiber/v2"
)

type AIHandler struct {
	ai in.AIService
}

func NewAIHandler(ai in.AIService) *AIHandler {
	return &AIHandler{ai: ai}
}

// Register mounts the generation routes. limit guards every route since
// each request costs a model call.
func (h *AIHandler) Register(router fiber.Router, limit fiber.Handler) {
	router.Post("/ai/learning-resources", limit, h.LearningResources)
	router.Post("/ai/coach", limit, h.Coach)
	router.Post("/integrations/google/emails/draft", limit, h.DraftEmail)
}

type draftEmailRequest struct {
	Instruction string `json:"instruction"`
	Thread      string `json:"thread"`
}

type coachRequest struct {
	Goal     string `json:"goal"`
	Progress string `json:"progress"`
}

func (h *AIHandler) LearningResources(c *fiber.Ctx) error {
	if _, err := GetUserID(c); err != nil {
		return err
	}
	var req domain.GenerationRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	resources, err := h.ai.GenerateLearningResources(c.UserContext(), req)
	if err != nil {
		return err
	}
	return response.List(c, resources)
}

func (h *AIHandler) DraftEmail(c *fiber.Ctx) error {
	if _, err := GetUserID(c); err != nil {
		return err
	}
	var req draftEmailRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	draft, err := h.ai.DraftEmail(c.UserContext(), req.Instruction, req.Thread)
	if err != nil {
		return err
	}
	return response.OK(c, fiber.Map{"draft": draft})
}

func (h *AIHandler) Coach(c *fiber.Ctx) error {
	if _, err := GetUserID(c); err != nil {
		return err
	}
	var req coachRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	advice, err := h.ai.Coach(c.UserContext(), req.Goal, req.Progress)
	if err != nil {
		return err
	}
	return response.OK(c, fiber.Map{"advice": advice})
}
