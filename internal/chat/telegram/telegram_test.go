package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/trackrelay/internal/chat"
)

func TestSendText_PostsMarkdown(t *testing.T) {
	var got sendMessageRequest
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
	}))
	defer srv.Close()

	ch := NewClient(srv.URL, "123:abc").Channel("-100500")
	require.NoError(t, ch.SendText(context.Background(), "*hi*", true))

	assert.Equal(t, "/bot123:abc/sendMessage", path)
	assert.Equal(t, "-100500", got.ChatID)
	assert.Equal(t, "*hi*", got.Text)
	assert.Equal(t, "Markdown", got.ParseMode)
	assert.Equal(t, "-100500", ch.ID())
}

func TestSendText_PlainOmitsParseMode(t *testing.T) {
	var raw map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	require.NoError(t, NewClient(srv.URL, "t").Channel("1").SendText(context.Background(), "x", false))
	_, present := raw["parse_mode"]
	assert.False(t, present)
}

func TestSendText_ClassifiesEntityErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: can't parse entities: Can't find end of the entity starting at byte offset 4"}`))
	}))
	defer srv.Close()

	err := NewClient(srv.URL, "t").Channel("1").SendText(context.Background(), "_oops", true)
	require.Error(t, err)
	assert.True(t, chat.IsFormattingError(err))
}

func TestSendText_OtherErrorsAreGeneric(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":403,"description":"Forbidden: bot was kicked from the group chat"}`))
	}))
	defer srv.Close()

	err := NewClient(srv.URL, "t").Channel("1").SendText(context.Background(), "x", true)
	require.Error(t, err)
	assert.False(t, chat.IsFormattingError(err))
	assert.Contains(t, err.Error(), "kicked")
}

func TestSendText_NetworkErrorHidesToken(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := NewClient(url, "secret-token").Channel("1").SendText(context.Background(), "x", true)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secret-token")
}
