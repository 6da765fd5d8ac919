package notifier_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/italolelis/geofetch/internal/notifier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookNotifier_Notify(t *testing.T) {
	var payload map[string]string

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
	}))
	defer ts.Close()

	n := &notifier.WebhookNotifier{WebhookURL: ts.URL}

	require.NoError(t, n.Notify("✅ Batch finished: 4 downloaded"))
	assert.Equal(t, "✅ Batch finished: 4 downloaded", payload["content"])
}

func TestWebhookNotifier_Errors(t *testing.T) {
	t.Run("missing url", func(t *testing.T) {
		n := &notifier.WebhookNotifier{}
		assert.ErrorContains(t, n.Notify("hi"), "webhook URL is not set")
	})

	t.Run("non-2xx response", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer ts.Close()

		n := &notifier.WebhookNotifier{WebhookURL: ts.URL}
		assert.ErrorContains(t, n.Notify("hi"), "status 502")
	})
}
