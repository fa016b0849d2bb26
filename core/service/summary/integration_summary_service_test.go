package summary

import (
	"context"
	"testing"

	"integration_server/core/domain"
	"integration_server/core/port/in"
	"integration_server/pkg/apperr"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	in.GatewayService
	msgs  []domain.ExternalMessage
	err   error
	count int
}

func (f *fakeGateway) FetchHistory(_ context.Context, _ uuid.UUID, _ string, limit int) ([]domain.ExternalMessage, error) {
	f.count = limit
	return f.msgs, f.err
}

func (f *fakeGateway) FetchInbox(_ context.Context, _ uuid.UUID, limit int) ([]domain.ExternalMessage, error) {
	f.count = limit
	return f.msgs, f.err
}

type fakeSummarizer struct {
	calls      int
	transcript string
	role       string
}

func (f *fakeSummarizer) SummarizeChannel(_ context.Context, transcript string) (string, error) {
	f.calls++
	f.role = "channel"
	f.transcript = transcript
	return "channel summary", nil
}

func (f *fakeSummarizer) SummarizeInbox(_ context.Context, transcript string) (string, error) {
	f.calls++
	f.role = "inbox"
	f.transcript = transcript
	return "inbox summary", nil
}

func TestSummarizeChannel_JoinsNonBlankLines(t *testing.T) {
	gw := &fakeGateway{msgs: []domain.ExternalMessage{
		{Text: "ship it on friday"},
		{Text: "   "},
		{Text: "agreed, I'll write the notes "},
	}}
	gen := &fakeSummarizer{}
	svc := NewService(gw, gen)

	got, err := svc.SummarizeChannel(context.Background(), uuid.New(), "C1", 25)
	require.NoError(t, err)
	assert.Equal(t, "channel summary", got)
	assert.Equal(t, 25, gw.count)
	assert.Equal(t, "ship it on friday\nagreed, I'll write the notes", gen.transcript)
}

func TestSummarize_EmptySkipsGenerator(t *testing.T) {
	for name, msgs := range map[string][]domain.ExternalMessage{
		"no messages":  {},
		"only blanks":  {{Text: ""}, {Text: "\n\t"}},
		"nil response": nil,
	} {
		t.Run(name, func(t *testing.T) {
			gen := &fakeSummarizer{}
			svc := NewService(&fakeGateway{msgs: msgs}, gen)

			got, err := svc.SummarizeChannel(context.Background(), uuid.New(), "C1", 10)
			require.NoError(t, err)
			assert.Equal(t, EmptySummary, got)

			got, err = svc.SummarizeInbox(context.Background(), uuid.New(), 10)
			require.NoError(t, err)
			assert.Equal(t, EmptySummary, got)

			assert.Zero(t, gen.calls)
		})
	}
}

func TestSummarizeInbox_UsesInboxRole(t *testing.T) {
	gen := &fakeSummarizer{}
	svc := NewService(&fakeGateway{msgs: []domain.ExternalMessage{{Text: "Invoice: due Friday"}}}, gen)

	got, err := svc.SummarizeInbox(context.Background(), uuid.New(), 5)
	require.NoError(t, err)
	assert.Equal(t, "inbox summary", got)
	assert.Equal(t, "inbox", gen.role)
}

func TestSummarize_GatewayErrorPropagates(t *testing.T) {
	gen := &fakeSummarizer{}
	svc := NewService(&fakeGateway{err: apperr.NotConnected("slack")}, gen)

	_, err := svc.SummarizeChannel(context.Background(), uuid.New(), "C1", 10)
	assert.ErrorIs(t, err, apperr.ErrNotConnected)
	assert.Zero(t, gen.calls)
}
