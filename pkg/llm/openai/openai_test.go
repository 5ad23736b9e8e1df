package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/entrhq/clippypour/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider_RequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := NewProvider("")
	assert.Error(t, err)

	t.Setenv("OPENAI_API_KEY", "env-key")
	p, err := NewProvider("")
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, p.GetModel())
}

func TestNewProvider_BaseURLFromEnv(t *testing.T) {
	t.Setenv("OPENAI_BASE_URL", "http://localhost:9999/v1/")
	p, err := NewProvider("key")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9999/v1", p.GetBaseURL())
	assert.Equal(t, "http://localhost:9999/v1", p.GetModelInfo().Metadata["base_url"])

	p, err = NewProvider("key", WithBaseURL("http://explicit/v1"), WithModel("gpt-4o"))
	require.NoError(t, err)
	assert.Equal(t, "http://explicit/v1", p.GetBaseURL())
	assert.Equal(t, "gpt-4o", p.GetModelInfo().Name)
}

func TestComplete(t *testing.T) {
	var got map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "cmpl-1",
			"object": "chat.completion",
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "{\"scores\":[]}"}}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 4, "total_tokens": 16}
		}`))
	}))
	defer server.Close()

	p, err := NewProvider("test-key", WithBaseURL(server.URL))
	require.NoError(t, err)

	reply, err := p.Complete(context.Background(), []*types.Message{
		types.NewSystemMessage("score fields"),
		types.NewUserMessage("field: email"),
	})
	require.NoError(t, err)
	assert.Equal(t, types.RoleAssistant, reply.Role)
	assert.Equal(t, `{"scores":[]}`, reply.Content)

	assert.Equal(t, DefaultModel, got["model"])
	messages, ok := got["messages"].([]interface{})
	require.True(t, ok)
	assert.Len(t, messages, 2)

	require.NotNil(t, p.LastUsage())
	assert.Equal(t, 16, p.LastUsage().TotalTokens)
}

func TestComplete_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	p, err := NewProvider("key", WithBaseURL(server.URL))
	require.NoError(t, err)

	_, err = p.Complete(context.Background(), []*types.Message{types.NewUserMessage("hi")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestComplete_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices": []}`))
	}))
	defer server.Close()

	p, err := NewProvider("key", WithBaseURL(server.URL))
	require.NoError(t, err)

	_, err = p.Complete(context.Background(), []*types.Message{types.NewUserMessage("hi")})
	assert.ErrorContains(t, err, "no choices")
}

func TestConvertToOpenAIMessages(t *testing.T) {
	out := convertToOpenAIMessages([]*types.Message{
		types.NewSystemMessage("s"),
		types.NewUserMessage("u"),
		types.NewAssistantMessage("a"),
		{Role: "tool", Content: "t"},
	})
	require.Len(t, out, 4)
	assert.NotNil(t, out[0].OfSystem)
	assert.NotNil(t, out[1].OfUser)
	assert.NotNil(t, out[2].OfAssistant)
	assert.NotNil(t, out[3].OfUser)
}
