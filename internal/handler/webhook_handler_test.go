package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"splitpay/internal/model"
	"splitpay/pkg/signature"

	"github.com/gin-gonic/gin"
)

const testSecret = "whsec_test"

type recordingQueue struct {
	mu     sync.Mutex
	events []*model.WebhookEvent
}

func (q *recordingQueue) Enqueue(event *model.WebhookEvent) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events = append(q.events, event)
	return true
}

func newWebhookRouter(secret string, queue EventQueue) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/webhooks/pagarme", NewWebhookHandler(secret, queue).Handle)
	return r
}

func postWebhook(r *gin.Engine, body, sig string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/pagarme", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if sig != "" {
		req.Header.Set(signature.HeaderName, sig)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestWebhookValidSignatureEnqueues(t *testing.T) {
	queue := &recordingQueue{}
	r := newWebhookRouter(testSecret, queue)

	body := `{"id":"or_1","status":"paid","type":"order.paid"}`
	w := postWebhook(r, body, signature.Sign([]byte(body), []byte(testSecret)))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp map[string]bool
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || !resp["received"] {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
	if len(queue.events) != 1 || queue.events[0].ID != "or_1" || queue.events[0].Status != "paid" {
		t.Fatalf("unexpected queued events: %+v", queue.events)
	}
	if string(queue.events[0].Raw) != body {
		t.Fatal("raw body should be preserved")
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	body := `{"id":"or_1","status":"paid"}`
	tests := []struct {
		name   string
		secret string
		sig    string
	}{
		{"missing header", testSecret, ""},
		{"wrong secret", testSecret, signature.Sign([]byte(body), []byte("other"))},
		{"tampered body", testSecret, signature.Sign([]byte(`{"id":"or_1","status":"failed"}`), []byte(testSecret))},
		{"not hex", testSecret, "zzzz"},
		{"secret not configured", "", signature.Sign([]byte(body), []byte(""))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			queue := &recordingQueue{}
			w := postWebhook(newWebhookRouter(tt.secret, queue), body, tt.sig)
			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", w.Code)
			}
			if len(queue.events) != 0 {
				t.Fatal("unauthenticated events must not be enqueued")
			}
		})
	}
}

func TestWebhookMalformedBodyIsAcknowledged(t *testing.T) {
	for _, body := range []string{`not json`, `{"status":"paid"}`, `{"id":"or_1"}`} {
		queue := &recordingQueue{}
		w := postWebhook(newWebhookRouter(testSecret, queue), body, signature.Sign([]byte(body), []byte(testSecret)))
		if w.Code != http.StatusOK {
			t.Fatalf("body %q: status = %d, want 200", body, w.Code)
		}
		if len(queue.events) != 0 {
			t.Fatalf("body %q: malformed event must not be enqueued", body)
		}
	}
}
