package channel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvolutionSenderSendText(t *testing.T) {
	t.Run("posts to sendText/{instance} with the apikey header", func(t *testing.T) {
		var gotPath, gotKey string
		var gotBody evolutionSendTextRequest
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			gotKey = r.Header.Get("apikey")
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		sender := NewEvolutionSender(server.URL, "secret-key", "instance-1", time.Second)
		err := sender.SendText(context.Background(), "5511999999999", "hello")
		require.NoError(t, err)
		assert.Equal(t, "/message/sendText/instance-1", gotPath)
		assert.Equal(t, "secret-key", gotKey)
		assert.Equal(t, "5511999999999", gotBody.Number)
		assert.Equal(t, "hello", gotBody.Text)
	})

	t.Run("returns an error on a non-2xx response", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		sender := NewEvolutionSender(server.URL, "key", "inst", time.Second)
		err := sender.SendText(context.Background(), "123", "hi")
		require.Error(t, err)
	})

	t.Run("SetHumanHandoff is a no-op", func(t *testing.T) {
		sender := NewEvolutionSender("http://unused.test", "key", "inst", time.Second)
		require.NoError(t, sender.SetHumanHandoff(context.Background(), "123", true))
	})
}

func TestTelegramSender(t *testing.T) {
	t.Run("NewTelegramSender binds the given token", func(t *testing.T) {
		sender := NewTelegramSender("tok123", time.Second)
		assert.Equal(t, "tok123", sender.botToken)
	})

	t.Run("SetHumanHandoff is a no-op", func(t *testing.T) {
		sender := NewTelegramSender("tok123", time.Second)
		require.NoError(t, sender.SetHumanHandoff(context.Background(), "123", true))
	})

	t.Run("ChatIDFromInt64 formats a bare decimal string", func(t *testing.T) {
		assert.Equal(t, "123456789", ChatIDFromInt64(123456789))
		assert.Equal(t, "-100987654321", ChatIDFromInt64(-100987654321))
	})
}

func TestChatwootSender(t *testing.T) {
	t.Run("defaults accountID to 1 when zero", func(t *testing.T) {
		sender := NewChatwootSender("http://unused.test", "tok", 0, time.Second)
		assert.Equal(t, 1, sender.accountID)
	})

	t.Run("SendText posts an outgoing, non-private message", func(t *testing.T) {
		var gotPath string
		var gotBody chatwootSendMessageRequest
		var gotToken string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			gotToken = r.Header.Get("api_access_token")
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		sender := NewChatwootSender(server.URL, "token-abc", 5, time.Second)
		require.NoError(t, sender.SendText(context.Background(), "42", "hi there"))
		assert.Equal(t, "/api/v1/accounts/5/conversations/42/messages", gotPath)
		assert.Equal(t, "token-abc", gotToken)
		assert.Equal(t, "outgoing", gotBody.MessageType)
		assert.False(t, gotBody.Private)
		assert.Equal(t, "hi there", gotBody.Content)
	})

	t.Run("SetHumanHandoff toggles status open/pending", func(t *testing.T) {
		var gotBodies []chatwootToggleStatusRequest
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var body chatwootToggleStatusRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			gotBodies = append(gotBodies, body)
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		sender := NewChatwootSender(server.URL, "tok", 1, time.Second)
		require.NoError(t, sender.SetHumanHandoff(context.Background(), "7", true))
		require.NoError(t, sender.SetHumanHandoff(context.Background(), "7", false))
		require.Len(t, gotBodies, 2)
		assert.Equal(t, "open", gotBodies[0].Status)
		assert.Equal(t, "pending", gotBodies[1].Status)
	})

	t.Run("UpdateContact skips the request when both fields are empty", func(t *testing.T) {
		called := false
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		sender := NewChatwootSender(server.URL, "tok", 1, time.Second)
		require.NoError(t, sender.UpdateContact(context.Background(), "9", "", ""))
		assert.False(t, called)
	})

	t.Run("UpdateContact tolerates a 422 by logging and returning nil", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
		}))
		defer server.Close()

		sender := NewChatwootSender(server.URL, "tok", 1, time.Second)
		require.NoError(t, sender.UpdateContact(context.Background(), "9", "taken@example.com", ""))
	})
}
