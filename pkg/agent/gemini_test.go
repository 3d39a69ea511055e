package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func geminiServer(t *testing.T, text string, requests *[]map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/models/gemini-2.0-flash:generateContent"), r.URL.Path)
		assert.Equal(t, "g-key", r.Header.Get("x-goog-api-key"))

		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		*requests = append(*requests, body)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{
					"role":  "model",
					"parts": []map[string]any{{"text": text}},
				},
				"finishReason": "STOP",
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGeminiAgent_Reply(t *testing.T) {
	var requests []map[string]any
	srv := geminiServer(t, "Hello from Gemini.", &requests)

	a, err := NewGeminiAgent(context.Background(), GeminiConfig{APIKey: "g-key", BaseURL: srv.URL + "/"})
	require.NoError(t, err)
	assert.Equal(t, "gemini", a.Name())

	reply, err := a.Reply(context.Background(), Message{Text: "hello", RoomID: "room"})
	require.NoError(t, err)
	assert.Equal(t, "Hello from Gemini.", reply)
	assert.Equal(t, 2, a.HistoryLen("room"))

	_, err = a.Reply(context.Background(), Message{Text: "again", RoomID: "room"})
	require.NoError(t, err)

	require.Len(t, requests, 2)
	contents := requests[1]["contents"].([]any)
	assert.Len(t, contents, 3, "past user, past model, new user")
	assert.Equal(t, "model", contents[1].(map[string]any)["role"])
	assert.Contains(t, requests[1], "systemInstruction")
	assert.Equal(t, 0, a.HistoryLen("other"))
}

func TestGeminiAgent_EmptyReply(t *testing.T) {
	var requests []map[string]any
	srv := geminiServer(t, "", &requests)

	a, err := NewGeminiAgent(context.Background(), GeminiConfig{APIKey: "g-key", BaseURL: srv.URL + "/"})
	require.NoError(t, err)

	_, err = a.Reply(context.Background(), Message{Text: "hello", RoomID: "room"})
	assert.ErrorIs(t, err, ErrEmptyReply)
	assert.Equal(t, 0, a.HistoryLen("room"))
}

func TestGeminiAgent_HistoryBounded(t *testing.T) {
	var requests []map[string]any
	srv := geminiServer(t, "ok", &requests)

	a, err := NewGeminiAgent(context.Background(), GeminiConfig{APIKey: "g-key", BaseURL: srv.URL + "/", MaxHistory: 4})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := a.Reply(context.Background(), Message{Text: "turn", RoomID: "room"})
		require.NoError(t, err)
	}
	assert.Equal(t, 4, a.HistoryLen("room"))
}

func TestNewGeminiAgent_RequiresKey(t *testing.T) {
	_, err := NewGeminiAgent(context.Background(), GeminiConfig{})
	assert.Error(t, err)
}

func TestTrimHistory(t *testing.T) {
	assert.Equal(t, []int{1, 2}, trimHistory([]int{1, 2}, 4))
	assert.Equal(t, []int{3, 4, 5, 6}, trimHistory([]int{1, 2, 3, 4, 5, 6}, 4))
	assert.Equal(t, []int{3, 4, 5, 6}, trimHistory([]int{1, 2, 3, 4, 5, 6}, 5))
}
