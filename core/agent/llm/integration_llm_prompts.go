package llm

import (
	"context"
	"fmt"
	"strings"

	"integration_server/core/domain"
)

const (
	channelSummaryRole = `You are a team communication assistant. Summarize the conversation below for someone who missed it.
Cover the main topics, decisions that were made, and open questions or action items with their owners.
Keep it to a short paragraph or a few bullet points.`

	inboxSummaryRole = `You are a personal email assistant. Summarize the recent inbox messages below, one subject per line.
Group related messages, call out anything that needs a reply or has a deadline, and skip newsletters unless they look important.`

	draftEmailRole = `You are an email writing assistant. Write a clear, polite email body that follows the user's instruction.
Match the tone of any thread provided. Return only the email body, without a subject line or signature placeholder.`

	coachRole = `You are a supportive productivity coach. Given a goal and the progress made so far,
give brief encouragement, point out what is going well, and suggest two or three concrete next steps.`

	summaryMaxTokens = 400
	draftMaxTokens   = 600
	coachMaxTokens   = 400
)

// SummarizeChannel summarizes a chronological chat transcript, one message per line.
func (c *Client) SummarizeChannel(ctx context.Context, transcript string) (string, error) {
	return c.Complete(ctx, channelSummaryRole, "Conversation:\n"+transcript, summaryMaxTokens, 0.3)
}

// SummarizeInbox summarizes inbox lines of the form "Subject: snippet".
func (c *Client) SummarizeInbox(ctx context.Context, transcript string) (string, error) {
	return c.Complete(ctx, inboxSummaryRole, "Inbox:\n"+transcript, summaryMaxTokens, 0.3)
}

// DraftEmail writes an email body. thread may be empty.
func (c *Client) DraftEmail(ctx context.Context, instruction, thread string) (string, error) {
	prompt := "Instruction: " + strings.TrimSpace(instruction)
	if thread = strings.TrimSpace(thread); thread != "" {
		prompt += "\n\nThread so far:\n" + truncateText(thread, 4000)
	}
	return c.Complete(ctx, draftEmailRole, prompt, draftMaxTokens, DefaultTemperature)
}

func (c *Client) Coach(ctx context.Context, goal, progress string) (string, error) {
	prompt := fmt.Sprintf("Goal: %s\n\nProgress so far:\n%s", strings.TrimSpace(goal), truncateText(progress, 3000))
	return c.Complete(ctx, coachRole, prompt, coachMaxTokens, DefaultTemperature)
}

// ResourcesField is the array field the resource prompt asks for.
const ResourcesField = "resources"

const resourceExample = `{
  "resources": [
    {
      "title": "Resource title",
      "description": "One or two sentences on what the learner gets from it",
      "url": "https://example.com/resource",
      "type": "article",
      "category": "programming"
    }
  ]
}`

// ResourcePrompt builds the instruction for GenerateStructured.
func ResourcePrompt(req domain.GenerationRequest) (string, SchemaHint) {
	var b strings.Builder
	fmt.Fprintf(&b, "Suggest %d to %d high-quality learning resources about %q for a %s learner.",
		domain.MinGeneratedResources, domain.MaxGeneratedResources, req.Topic, req.Difficulty)
	if req.TypeHint != "" {
		fmt.Fprintf(&b, " Prefer resources of type %q.", req.TypeHint)
	}
	b.WriteString("\nEach resource must have a title, a description, a real URL, a type (one of: article, video, course, book, podcast, tutorial, documentation, tool, other)")
	b.WriteString(" and a category (one of: programming, design, business, marketing, science, language, health, productivity, personal_development, other).")
	b.WriteString("\nDo not repeat a URL.")
	return b.String(), SchemaHint{Field: ResourcesField, Example: resourceExample}
}

// SuggestResources generates and parses learning resources. The result is
// not de-duplicated or bounded.
func (c *Client) SuggestResources(ctx context.Context, req domain.GenerationRequest) ([]domain.GeneratedResource, error) {
	instruction, hint := ResourcePrompt(req)
	raw, err := c.GenerateStructured(ctx, instruction, hint)
	if err != nil {
		return nil, err
	}
	return ParseResourceList(raw)
}

func truncateText(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
