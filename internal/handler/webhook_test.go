package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/pedalworks/trainsync/internal/ratelimit"
	"github.com/pedalworks/trainsync/internal/repository"
	"github.com/pedalworks/trainsync/internal/webhook"
)

type MockWebhookService struct {
	mock.Mock
}

func (m *MockWebhookService) Ingest(ctx context.Context, event *webhook.InboundEvent) (*webhook.IngestResult, error) {
	args := m.Called(ctx, event)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*webhook.IngestResult), args.Error(1)
}

func (m *MockWebhookService) MarkProcessed(ctx context.Context, eventID, processErr string) error {
	args := m.Called(ctx, eventID, processErr)
	return args.Error(0)
}

func (m *MockWebhookService) Stats(ctx context.Context) (*repository.WebhookEventStats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.WebhookEventStats), args.Error(1)
}

func newWebhookTestHandlers(t *testing.T, svc webhook.Service, rateLimit int) *WebhookHandlers {
	t.Helper()
	limiter, err := ratelimit.NewLimiter()
	if err != nil {
		t.Fatalf("failed to create limiter: %v", err)
	}
	return NewWebhookHandlers(svc, limiter, rateLimit, time.Minute)
}

func routeWebhook(h http.HandlerFunc, method, pattern, target string, body []byte) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.MethodFunc(method, pattern, h)

	req := httptest.NewRequest(method, target, bytes.NewBuffer(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandleIngest(t *testing.T) {
	t.Run("matched event returns 200 with event id", func(t *testing.T) {
		svc := new(MockWebhookService)
		h := newWebhookTestHandlers(t, svc, 100)

		svc.On("Ingest", mock.Anything, mock.MatchedBy(func(e *webhook.InboundEvent) bool {
			return e.Provider == "strava" && e.ProviderUserID == "12345"
		})).Return(&webhook.IngestResult{EventID: "evt-1", Matched: true, UserID: "user-1"}, nil)

		body, _ := json.Marshal(WebhookEventRequest{
			ProviderUserID: "12345",
			EventType:      "activity.created",
			ActivityID:     "act-9",
		})
		w := routeWebhook(h.HandleIngest(), http.MethodPost,
			"/webhooks/{provider}", "/webhooks/strava", body)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "evt-1")
	})

	t.Run("orphaned event still returns 200", func(t *testing.T) {
		svc := new(MockWebhookService)
		h := newWebhookTestHandlers(t, svc, 100)

		svc.On("Ingest", mock.Anything, mock.Anything).
			Return(&webhook.IngestResult{EventID: "evt-2", Matched: false}, nil)

		body, _ := json.Marshal(WebhookEventRequest{
			ProviderUserID: "unknown-99",
			EventType:      "activity.created",
		})
		w := routeWebhook(h.HandleIngest(), http.MethodPost,
			"/webhooks/{provider}", "/webhooks/strava", body)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"matched":false`)
	})

	t.Run("flooding sender gets throttled", func(t *testing.T) {
		svc := new(MockWebhookService)
		h := newWebhookTestHandlers(t, svc, 2)

		svc.On("Ingest", mock.Anything, mock.Anything).
			Return(&webhook.IngestResult{EventID: "evt-3", Matched: true}, nil)

		body, _ := json.Marshal(WebhookEventRequest{
			ProviderUserID: "12345",
			EventType:      "activity.created",
		})
		for i := 0; i < 2; i++ {
			w := routeWebhook(h.HandleIngest(), http.MethodPost,
				"/webhooks/{provider}", "/webhooks/strava", body)
			assert.Equal(t, http.StatusOK, w.Code)
		}

		w := routeWebhook(h.HandleIngest(), http.MethodPost,
			"/webhooks/{provider}", "/webhooks/strava", body)
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.NotEmpty(t, w.Header().Get("Retry-After"))
		svc.AssertNumberOfCalls(t, "Ingest", 2)
	})

	t.Run("missing fields fail validation", func(t *testing.T) {
		h := newWebhookTestHandlers(t, new(MockWebhookService), 100)

		body, _ := json.Marshal(WebhookEventRequest{})
		w := routeWebhook(h.HandleIngest(), http.MethodPost,
			"/webhooks/{provider}", "/webhooks/strava", body)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandleMarkProcessed(t *testing.T) {
	svc := new(MockWebhookService)
	h := newWebhookTestHandlers(t, svc, 100)

	eventID := "0d2f8a6e-1b3c-4d5e-9f70-123456789abc"
	svc.On("MarkProcessed", mock.Anything, eventID, "").Return(nil)

	body, _ := json.Marshal(MarkProcessedRequest{EventID: eventID})
	w := routeWebhook(h.HandleMarkProcessed(), http.MethodPost,
		"/webhooks/events/processed", "/webhooks/events/processed", body)

	assert.Equal(t, http.StatusOK, w.Code)
}
