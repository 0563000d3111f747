package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/assert/v2"

	"github.com/ItsKorayYT/antarcticom/internal/models"
)

func TestMessagesRequest(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, r.URL.Path, "/api/channels/c1/messages")
		json.NewEncoder(w).Encode([]models.Message{
			{ID: 3, ChannelID: "c1", Content: "c"},
			{ID: 2, ChannelID: "c1", Content: "b"},
		})
	}))
	defer server.Close()

	client := NewREST(server.URL)
	client.SetToken("tok")

	messages, err := client.Messages(context.Background(), "c1", 50)
	assert.Equal(t, err, nil)
	assert.Equal(t, len(messages), 2)
	assert.Equal(t, messages[0].ID, int64(3))
	assert.Equal(t, gotAuth, "Bearer tok")
}

func TestUnauthorizedFiresInvalidation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"code": "unauthorized", "message": "bad token"})
	}))
	defer server.Close()

	client := NewREST(server.URL)
	fired := 0
	client.SetUnauthorizedHandler(func() { fired++ })

	_, err := client.Servers(context.Background())
	assert.Equal(t, KindOf(err), KindUnauthorized)
	assert.Equal(t, IsUnauthorized(err), true)
	assert.Equal(t, fired, 1)
}

func TestErrorKinds(t *testing.T) {
	cases := []struct {
		status int
		kind   ErrorKind
	}{
		{http.StatusConflict, KindConflict},
		{http.StatusNotFound, KindNotFound},
		{http.StatusBadRequest, KindValidation},
		{http.StatusUnprocessableEntity, KindValidation},
		{http.StatusInternalServerError, KindInternal},
	}
	for _, tc := range cases {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))
		client := NewREST(server.URL)
		err := client.JoinServer(context.Background(), "s1")
		assert.Equal(t, KindOf(err), tc.kind)
		server.Close()
	}
}

func TestUnreachable(t *testing.T) {
	// Nothing listens on this port.
	client := NewREST("http://127.0.0.1:1")
	_, err := client.InstanceInfo(context.Background())
	assert.Equal(t, KindOf(err), KindUnreachable)
}

func TestSendMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, r.Method, http.MethodPost)
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		json.NewEncoder(w).Encode(models.Message{ID: 7, ChannelID: "c1", Content: body["content"]})
	}))
	defer server.Close()

	client := NewREST(server.URL)
	sent, err := client.SendMessage(context.Background(), "c1", "hello")
	assert.Equal(t, err, nil)
	assert.Equal(t, sent.ID, int64(7))
	assert.Equal(t, sent.Content, "hello")
}
