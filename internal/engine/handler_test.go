package engine

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"leadchat_backend/internal/conversation/domain"
	"leadchat_backend/internal/conversation/repository"
	"leadchat_backend/internal/queue"
	"leadchat_backend/platform/logger"
)

func newConsumerRouter(f *engineFixture, cfg fakeQueueAuthConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler := NewHandler(f.service, NewAuthenticator(cfg), logger.New("test"))

	r := gin.New()
	r.POST("/engine/process", handler.HandleProcess)
	return r
}

func consumerBody(t *testing.T, conversationID string) []byte {
	t.Helper()
	body, err := json.Marshal(queue.ProcessMessagePayload{
		ConversationID: conversationID,
		Sender:         "919876543210",
		Text:           "hi",
	})
	if err != nil {
		t.Fatal(err)
	}
	return body
}

func TestHandleProcessAuth(t *testing.T) {
	cfg := fakeQueueAuthConfig{operatorKey: "op-key", keyCurrent: "signing-key", env: "production"}

	t.Run("no credentials", func(t *testing.T) {
		conv := liveConversation(domain.StateGreeting)
		router := newConsumerRouter(newEngineFixture(conv), cfg)

		req := httptest.NewRequest(http.MethodPost, "/engine/process", bytes.NewReader(consumerBody(t, conv.ID.String())))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
	})

	t.Run("operator key", func(t *testing.T) {
		conv := liveConversation(domain.StateGreeting)
		f := newEngineFixture(conv)
		router := newConsumerRouter(f, cfg)

		req := httptest.NewRequest(http.MethodPost, "/engine/process", bytes.NewReader(consumerBody(t, conv.ID.String())))
		req.Header.Set("X-Operator-Key", "op-key")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		f.bus.Drain()

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200 (%s)", w.Code, w.Body.String())
		}
		var resp map[string]string
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		if resp["status"] != string(OutcomeProcessed) {
			t.Errorf("status = %q, want processed", resp["status"])
		}
	})

	t.Run("queue signature", func(t *testing.T) {
		conv := liveConversation(domain.StateGreeting)
		f := newEngineFixture(conv)
		router := newConsumerRouter(f, cfg)

		body := consumerBody(t, conv.ID.String())
		token, err := SignBody("signing-key", body)
		if err != nil {
			t.Fatal(err)
		}

		req := httptest.NewRequest(http.MethodPost, "/engine/process", bytes.NewReader(body))
		req.Header.Set("X-Queue-Signature", token)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		f.bus.Drain()

		if w.Code != http.StatusOK {
			t.Errorf("status = %d, want 200 (%s)", w.Code, w.Body.String())
		}
	})

	t.Run("signature for different body", func(t *testing.T) {
		conv := liveConversation(domain.StateGreeting)
		router := newConsumerRouter(newEngineFixture(conv), cfg)

		token, err := SignBody("signing-key", []byte("something else"))
		if err != nil {
			t.Fatal(err)
		}

		req := httptest.NewRequest(http.MethodPost, "/engine/process", bytes.NewReader(consumerBody(t, conv.ID.String())))
		req.Header.Set("X-Queue-Signature", token)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
	})
}

func TestHandleProcessMissingConversationIs404(t *testing.T) {
	cfg := fakeQueueAuthConfig{operatorKey: "op-key", env: "production"}
	f := newEngineFixture(repository.Conversation{})
	f.store.getErr = repository.ErrConversationNotFound
	router := newConsumerRouter(f, cfg)

	req := httptest.NewRequest(http.MethodPost, "/engine/process", bytes.NewReader(consumerBody(t, "2b6d7f1e-1111-4222-8333-444455556666")))
	req.Header.Set("X-Operator-Key", "op-key")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 so the dispatcher drops the job", w.Code)
	}
}

func TestHandleProcessBadPayload(t *testing.T) {
	cfg := fakeQueueAuthConfig{operatorKey: "op-key", env: "production"}
	router := newConsumerRouter(newEngineFixture(liveConversation(domain.StateGreeting)), cfg)

	req := httptest.NewRequest(http.MethodPost, "/engine/process", bytes.NewReader([]byte("{not json")))
	req.Header.Set("X-Operator-Key", "op-key")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}
