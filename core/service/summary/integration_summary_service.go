// Package summary turns recent provider messages into a short AI summary.
// Nothing read or generated here is persisted.
package summary

import (
	"context"
	"strings"

	"integration_server/core/domain"
	"integration_server/core/port/in"
	"integration_server/pkg/logger"

	"github.com/google/uuid"
)

// EmptySummary is returned when there is nothing to summarize.
const EmptySummary = "No messages to summarize."

// Summarizer is the text generator behind the pipeline.
type Summarizer interface {
	SummarizeChannel(ctx context.Context, transcript string) (string, error)
	SummarizeInbox(ctx context.Context, transcript string) (string, error)
}

type Service struct {
	gateway    in.GatewayService
	summarizer Summarizer
}

var _ in.SummaryService = (*Service)(nil)

func NewService(gateway in.GatewayService, summarizer Summarizer) *Service {
	return &Service{gateway: gateway, summarizer: summarizer}
}

// SummarizeChannel summarizes the last count messages of a Slack channel.
func (s *Service) SummarizeChannel(ctx context.Context, userID uuid.UUID, destination string, count int) (string, error) {
	msgs, err := s.gateway.FetchHistory(ctx, userID, destination, count)
	if err != nil {
		return "", err
	}

	transcript := buildTranscript(msgs)
	if transcript == "" {
		return EmptySummary, nil
	}

	logger.WithContext(ctx).WithFields(map[string]any{
		"channel":  destination,
		"messages": len(msgs),
	}).Debug("summarizing channel")
	return s.summarizer.SummarizeChannel(ctx, transcript)
}

// SummarizeInbox summarizes the newest count inbox messages.
func (s *Service) SummarizeInbox(ctx context.Context, userID uuid.UUID, count int) (string, error) {
	msgs, err := s.gateway.FetchInbox(ctx, userID, count)
	if err != nil {
		return "", err
	}

	transcript := buildTranscript(msgs)
	if transcript == "" {
		return EmptySummary, nil
	}
	return s.summarizer.SummarizeInbox(ctx, transcript)
}

// buildTranscript joins non-blank messages one per line, keeping the
// chronological order the gateway returns.
func buildTranscript(msgs []domain.ExternalMessage) string {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		text := strings.TrimSpace(m.Text)
		if text == "" {
			continue
		}
		lines = append(lines, text)
	}
	return strings.Join(lines, "\n")
}
