package openarena

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raih/internal/config"
)

func TestClientCredentialsToken(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "id", r.PostForm.Get("client_id"))
		assert.Equal(t, "secret", r.PostForm.Get("client_secret"))
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		json.NewEncoder(w).Encode(map[string]any{"access_token": "tok-123", "expires_in": 3600})
	}))
	defer srv.Close()

	cc, err := NewClientCredentials(config.AuthConfig{
		AuthURL:      srv.URL,
		ClientID:     "id",
		ClientSecret: "secret",
		GrantType:    "client_credentials",
	}, srv.Client())
	require.NoError(t, err)

	tok, err := cc.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-123", tok)

	// Second call is served from cache.
	tok, err = cc.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-123", tok)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClientCredentialsTokenError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	cc, err := NewClientCredentials(config.AuthConfig{
		AuthURL:      srv.URL,
		ClientID:     "id",
		ClientSecret: "bad",
	}, srv.Client())
	require.NoError(t, err)

	_, err = cc.Token(context.Background())
	assert.Error(t, err)
}

func TestStaticToken(t *testing.T) {
	tok, err := StaticToken("personal").Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "personal", tok)

	_, err = StaticToken("").Token(context.Background())
	assert.Error(t, err)
}

func TestProviderFromConfig(t *testing.T) {
	p, err := ProviderFromConfig(config.AuthConfig{PersonalToken: "personal"}, nil)
	require.NoError(t, err)
	_, ok := p.(StaticToken)
	assert.True(t, ok)

	_, err = ProviderFromConfig(config.AuthConfig{}, nil)
	assert.Error(t, err)
}

func TestChatSend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "wf-1", req.WorkflowID)
		assert.Equal(t, "hello", req.Query)
		assert.Equal(t, "be helpful", req.ModelParams["system_prompt"])
		assert.Equal(t, []string{"file-1"}, req.FileUUIDs)

		json.NewEncoder(w).Encode(map[string]string{"answer": "hi there"})
	}))
	defer srv.Close()

	chat := NewChat(config.OpenArenaConfig{BaseURL: srv.URL}, "wf-1", StaticToken("tok"),
		WithSystemPrompt("be helpful"))
	chat.AddFileUUID("file-1")

	answer, err := chat.Send(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "hi there", answer)
}

func TestChatSendMessageTooBig(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		json.NewEncoder(w).Encode(map[string]string{"error": "Message too big for workflow"})
	}))
	defer srv.Close()

	chat := NewChat(config.OpenArenaConfig{BaseURL: srv.URL}, "wf-1", StaticToken("tok"))

	_, err := chat.Send(context.Background(), "huge payload")
	assert.ErrorIs(t, err, ErrMessageTooBig)
}

func TestChatHistoryBounded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"answer": "ok"})
	}))
	defer srv.Close()

	chat := NewChat(config.OpenArenaConfig{BaseURL: srv.URL}, "wf-1", StaticToken("tok"),
		WithMaxHistory(2))

	for i := 0; i < 5; i++ {
		_, err := chat.Send(context.Background(), "turn")
		require.NoError(t, err)
	}
	// 2 turns means at most 4 retained messages.
	assert.Len(t, chat.history, 4)
}

func TestFileClientUpload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "wf-1", r.FormValue("workflow_id"))

		_, fh, err := r.FormFile("file")
		require.NoError(t, err)
		assert.Equal(t, "evidence.txt", fh.Filename)

		json.NewEncoder(w).Encode(map[string]string{"file_uuid": "uuid-42"})
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "evidence.txt")
	require.NoError(t, os.WriteFile(path, []byte("contents"), 0o600))

	fc := NewFileClient(config.OpenArenaConfig{BaseURL: srv.URL}, StaticToken("tok"))
	uuid, err := fc.Upload(context.Background(), path, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "uuid-42", uuid)
}

func TestFileClientUploadMissingFile(t *testing.T) {
	fc := NewFileClient(config.OpenArenaConfig{BaseURL: "http://localhost:0"}, StaticToken("tok"))
	_, err := fc.Upload(context.Background(), "/does/not/exist", "wf-1")
	assert.Error(t, err)
}
