package genai

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validModelJSON = `{
  "analysis": {
    "theme": "城市骑行",
    "audience": "通勤人群",
    "structure": [{"section":"开篇","timestamp":"00:00-00:20","summary":"引入","narrativeFunction":"钩子"}],
    "corePoints": ["观点A"],
    "transcriptSegments": [{"title":"开场","content":"文案"}]
  },
  "script": {
    "title": "骑行脚本",
    "scenes": [{"sceneNumber":1,"location":"街头","shotType":"跟拍","visuals":"车流","audio":"旁白"}]
  }
}`

func geminiResponse(text string) string {
	body := map[string]any{
		"candidates": []map[string]any{
			{"content": map[string]any{"parts": []map[string]string{{"text": text}}}},
		},
	}
	out, _ := json.Marshal(body)
	return string(out)
}

func TestParseModelJSON(t *testing.T) {
	t.Run("plain", func(t *testing.T) {
		res, err := parseModelJSON(validModelJSON)
		require.NoError(t, err)
		assert.Equal(t, "城市骑行", res.Analysis.Theme)
		assert.Len(t, res.Script.Scenes, 1)
	})

	t.Run("code fences and chatter", func(t *testing.T) {
		wrapped := "好的，以下是结果：\n```json\n" + validModelJSON + "\n```\n希望对你有帮助"
		res, err := parseModelJSON(wrapped)
		require.NoError(t, err)
		assert.Equal(t, "骑行脚本", res.Script.Title)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := parseModelJSON("")
		assert.Error(t, err)
	})

	t.Run("not json", func(t *testing.T) {
		_, err := parseModelJSON("I could not analyze that video, sorry.")
		assert.Error(t, err)
	})
}

func TestGenerateWithoutKeyReturnsSample(t *testing.T) {
	c := NewClient(Config{}, slog.Default())

	free, err := c.Generate(context.Background(), TierFree, "anything")
	require.NoError(t, err)
	assert.Equal(t, "free-sample", free.UsedModel)

	paid, err := c.Generate(context.Background(), TierPaid, "anything")
	require.NoError(t, err)
	assert.Equal(t, "paid-sample", paid.UsedModel)
}

func TestGenerateFallsBackOnce(t *testing.T) {
	var calls []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.URL.Path)
		if strings.Contains(r.URL.Path, "pro-model") {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(geminiResponse(validModelJSON)))
	}))
	defer srv.Close()

	c := NewClient(Config{
		BaseURL:       srv.URL,
		PaidAPIKey:    "k",
		PaidModel:     "pro-model",
		FallbackModel: "flash-model",
		Timeout:       5 * time.Second,
	}, slog.Default())

	res, err := c.Generate(context.Background(), TierPaid, "a video")
	require.NoError(t, err)
	assert.Equal(t, "flash-model", res.UsedModel)
	assert.Len(t, calls, 2)
}

func TestGenerateUpstreamErrorAfterFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(Config{
		BaseURL:       srv.URL,
		FreeAPIKey:    "k",
		FreeModel:     "flash-model",
		FallbackModel: "other-model",
	}, slog.Default())

	_, err := c.Generate(context.Background(), TierFree, "a video")
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestGenerateMalformedOutputIsUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(geminiResponse("not valid json at all")))
	}))
	defer srv.Close()

	c := NewClient(Config{
		BaseURL:    srv.URL,
		FreeAPIKey: "k",
		FreeModel:  "flash-model",
	}, slog.Default())

	_, err := c.Generate(context.Background(), TierFree, "a video")
	assert.ErrorIs(t, err, ErrUpstream)
}
