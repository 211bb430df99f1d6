package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"crewline/internal/config"
)

func TestWebhookNotifierPostsToMatchingHooks(t *testing.T) {
	var got webhookMessage
	var header http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Clone()
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier([]config.WebhookConfig{
		{URL: srv.URL, Secret: "shh", Audiences: []string{AudienceAnnouncements}},
	}, zap.NewNop())

	err := n.Notify(context.Background(), AudienceAnnouncements, "three cheers")
	require.NoError(t, err)
	assert.Equal(t, AudienceAnnouncements, got.Audience)
	assert.Equal(t, "three cheers", got.Message)
	assert.NotEmpty(t, got.DeliveryID)
	assert.Equal(t, "shh", header.Get("X-Crewline-Secret"))
	assert.Equal(t, AudienceAnnouncements, header.Get("X-Crewline-Audience"))
}

func TestWebhookNotifierSkipsNonMatchingAudience(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer srv.Close()

	n := NewWebhookNotifier([]config.WebhookConfig{
		{URL: srv.URL, Audiences: []string{AudienceAdmins}},
	}, zap.NewNop())

	require.NoError(t, n.Notify(context.Background(), AudienceAnnouncements, "nope"))
	assert.Zero(t, calls)
}

func TestWebhookNotifierSkipsDisabledHook(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer srv.Close()

	off := false
	n := NewWebhookNotifier([]config.WebhookConfig{
		{URL: srv.URL, Enabled: &off},
	}, zap.NewNop())

	require.NoError(t, n.Notify(context.Background(), AudienceAdmins, "off"))
	assert.Zero(t, calls)
}

func TestWebhookNotifierReportsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := NewWebhookNotifier([]config.WebhookConfig{{URL: srv.URL}}, zap.NewNop())
	err := n.Notify(context.Background(), AudienceAdmins, "hi")
	assert.Error(t, err)
}

func TestLogNotifierNeverFails(t *testing.T) {
	n := LogNotifier{Logger: zap.NewNop()}
	assert.NoError(t, n.Notify(context.Background(), AudienceAdmins, "quiet"))
}

type stubNotifier struct {
	calls int
	err   error
}

func (s *stubNotifier) Notify(context.Context, string, string) error {
	s.calls++
	return s.err
}

func TestMultiTriesAllAndReturnsFirstError(t *testing.T) {
	a := &stubNotifier{err: assert.AnError}
	b := &stubNotifier{}
	err := Multi{a, b}.Notify(context.Background(), AudienceAdmins, "fanout")
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, b.calls)
}
