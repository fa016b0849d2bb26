package ai

import (
	"context"
	"strings"

	"integration_server/core/domain"
	"integration_server/core/port/in"
	"integration_server/pkg/apperr"
	"integration_server/pkg/logger"
)

// Generator is the slice of the LLM client this service needs.
type Generator interface {
	SuggestResources(ctx context.Context, req domain.GenerationRequest) ([]domain.GeneratedResource, error)
	DraftEmail(ctx context.Context, instruction, thread string) (string, error)
	Coach(ctx context.Context, goal, progress string) (string, error)
}

type Service struct {
	generator Generator
}

var _ in.AIService = (*Service)(nil)

func NewService(generator Generator) *Service {
	return &Service{generator: generator}
}

// GenerateLearningResources asks the generator for resources on a topic.
// Duplicated URLs are dropped and at most five are returned; fewer than
// three is a degraded result, not an error.
func (s *Service) GenerateLearningResources(ctx context.Context, req domain.GenerationRequest) ([]domain.GeneratedResource, error) {
	req.Topic = strings.TrimSpace(req.Topic)
	if req.Topic == "" {
		return nil, apperr.MissingField("topic")
	}
	req.TypeHint = strings.TrimSpace(req.TypeHint)
	req.Difficulty = normalizeDifficulty(req.Difficulty)

	resources, err := s.generator.SuggestResources(ctx, req)
	if err != nil {
		return nil, err
	}

	resources = dedupeByURL(resources)
	if len(resources) > domain.MaxGeneratedResources {
		resources = resources[:domain.MaxGeneratedResources]
	}
	if len(resources) < domain.MinGeneratedResources {
		logger.WithContext(ctx).WithFields(map[string]any{
			"topic": req.Topic,
			"count": len(resources),
		}).Warn("generator returned fewer resources than requested")
	}
	return resources, nil
}

func (s *Service) DraftEmail(ctx context.Context, instruction, thread string) (string, error) {
	if strings.TrimSpace(instruction) == "" {
		return "", apperr.MissingField("instruction")
	}
	return s.generator.DraftEmail(ctx, instruction, thread)
}

func (s *Service) Coach(ctx context.Context, goal, progress string) (string, error) {
	if strings.TrimSpace(goal) == "" {
		return "", apperr.MissingField("goal")
	}
	return s.generator.Coach(ctx, goal, progress)
}

func normalizeDifficulty(d string) string {
	switch d = strings.ToLower(strings.TrimSpace(d)); d {
	case domain.DifficultyBeginner, domain.DifficultyIntermediate, domain.DifficultyAdvanced:
		return d
	default:
		return domain.DifficultyBeginner
	}
}

// dedupeByURL keeps the first resource per URL. Placeholder URLs are not
// real links and are never treated as duplicates.
func dedupeByURL(resources []domain.GeneratedResource) []domain.GeneratedResource {
	seen := make(map[string]struct{}, len(resources))
	result := make([]domain.GeneratedResource, 0, len(resources))
	for _, r := range resources {
		if r.URL != domain.PlaceholderURL {
			key := strings.TrimRight(strings.ToLower(r.URL), "/")
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
		}
		result = append(result, r)
	}
	return result
}
