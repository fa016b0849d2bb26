package ai

import (
	"context"
	"strconv"
	"testing"

	"integration_server/core/domain"
	"integration_server/pkg/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGenerator struct {
	resources []domain.GeneratedResource
	err       error
	req       domain.GenerationRequest
	calls     int
}

func (f *fakeGenerator) SuggestResources(_ context.Context, req domain.GenerationRequest) ([]domain.GeneratedResource, error) {
	f.calls++
	f.req = req
	return f.resources, f.err
}

func (f *fakeGenerator) DraftEmail(_ context.Context, instruction, thread string) (string, error) {
	f.calls++
	return "draft:" + instruction + "|" + thread, nil
}

func (f *fakeGenerator) Coach(_ context.Context, goal, _ string) (string, error) {
	f.calls++
	return "coach:" + goal, nil
}

func resource(url string) domain.GeneratedResource {
	return domain.GeneratedResource{Title: url, URL: url, Type: domain.ResourceArticle, Source: domain.SourceAISuggested}
}

func TestGenerateLearningResources_RequiresTopic(t *testing.T) {
	gen := &fakeGenerator{}
	svc := NewService(gen)

	_, err := svc.GenerateLearningResources(context.Background(), domain.GenerationRequest{Topic: "  "})
	assert.Equal(t, apperr.CodeMissingField, apperr.AsAppError(err).Code)
	assert.Zero(t, gen.calls)
}

func TestGenerateLearningResources_DefaultsDifficulty(t *testing.T) {
	gen := &fakeGenerator{resources: []domain.GeneratedResource{resource("https://a")}}
	svc := NewService(gen)

	_, err := svc.GenerateLearningResources(context.Background(), domain.GenerationRequest{Topic: " Go ", Difficulty: "expert"})
	require.NoError(t, err)
	assert.Equal(t, "Go", gen.req.Topic)
	assert.Equal(t, domain.DifficultyBeginner, gen.req.Difficulty)

	_, err = svc.GenerateLearningResources(context.Background(), domain.GenerationRequest{Topic: "Go", Difficulty: "Advanced"})
	require.NoError(t, err)
	assert.Equal(t, domain.DifficultyAdvanced, gen.req.Difficulty)
}

func TestGenerateLearningResources_DedupesAndTruncates(t *testing.T) {
	var list []domain.GeneratedResource
	for i := 0; i < 7; i++ {
		list = append(list, resource("https://example.com/"+strconv.Itoa(i)))
	}
	list = append([]domain.GeneratedResource{
		resource("https://example.com/0/"),
		domain.PlaceholderResource(),
		domain.PlaceholderResource(),
	}, list...)

	svc := NewService(&fakeGenerator{resources: list})
	got, err := svc.GenerateLearningResources(context.Background(), domain.GenerationRequest{Topic: "Go"})
	require.NoError(t, err)
	require.Len(t, got, domain.MaxGeneratedResources)

	assert.Equal(t, "https://example.com/0/", got[0].URL)
	assert.Equal(t, domain.PlaceholderURL, got[1].URL)
	assert.Equal(t, domain.PlaceholderURL, got[2].URL)
	assert.Equal(t, "https://example.com/1", got[3].URL)
	assert.Equal(t, "https://example.com/2", got[4].URL)
}

func TestGenerateLearningResources_FewerThanMinimumIsNotAnError(t *testing.T) {
	svc := NewService(&fakeGenerator{resources: []domain.GeneratedResource{resource("https://a"), resource("https://a")}})

	got, err := svc.GenerateLearningResources(context.Background(), domain.GenerationRequest{Topic: "Go"})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestGenerateLearningResources_GeneratorErrorPropagates(t *testing.T) {
	svc := NewService(&fakeGenerator{err: apperr.MalformedResponse(`missing "resources" field`)})

	_, err := svc.GenerateLearningResources(context.Background(), domain.GenerationRequest{Topic: "Go"})
	assert.ErrorIs(t, err, apperr.ErrMalformedResponse)
}

func TestDraftEmailAndCoach(t *testing.T) {
	gen := &fakeGenerator{}
	svc := NewService(gen)

	draft, err := svc.DraftEmail(context.Background(), "decline politely", "Can you join Friday?")
	require.NoError(t, err)
	assert.Equal(t, "draft:decline politely|Can you join Friday?", draft)

	_, err = svc.DraftEmail(context.Background(), "", "")
	assert.Equal(t, apperr.CodeMissingField, apperr.AsAppError(err).Code)

	advice, err := svc.Coach(context.Background(), "run 5k", "")
	require.NoError(t, err)
	assert.Equal(t, "coach:run 5k", advice)

	_, err = svc.Coach(context.Background(), " ", "x")
	assert.Equal(t, apperr.CodeMissingField, apperr.AsAppError(err).Code)
	assert.Equal(t, 2, gen.calls)
}
