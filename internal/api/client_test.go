package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtran/mailflow/internal/model"
)

func newTestClient(handler http.HandlerFunc) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	return New(srv.URL, "test-token", nil), srv
}

func TestMessagesDecodesEnvelope(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "inbox", r.URL.Query().Get("folder"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"success": true,
			"emails": [
				{"id": "1", "from_name": "Alice", "from_email": "alice@example.com",
				 "subject": "hi", "is_read": false, "is_starred": true,
				 "attachments": [{"id": "a1", "filename": "x.pdf", "size": 1024, "mime_type": "application/pdf"}]},
				{"id": "2", "from_email": "bob@example.com", "subject": "yo"}
			]
		}`))
	})
	defer srv.Close()

	msgs, err := c.Messages(context.Background(), model.FolderInbox)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Alice", msgs[0].Sender)
	assert.True(t, msgs[0].IsStarred)
	require.Len(t, msgs[0].Attachments, 1)
	assert.Equal(t, "application/pdf", msgs[0].Attachments[0].MimeHint)
	assert.Equal(t, "bob@example.com", msgs[1].Sender, "sender falls back to the bare address")
	assert.Equal(t, model.FolderInbox, msgs[1].Folder, "folder falls back to the requested one")
}

func TestErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "401 is an auth error",
			status: http.StatusUnauthorized,
			check: func(t *testing.T, err error) {
				var authErr *AuthError
				assert.True(t, errors.As(err, &authErr))
			},
		},
		{
			name:   "5xx is transient",
			status: http.StatusBadGateway,
			body:   "upstream down",
			check: func(t *testing.T, err error) {
				var transient *TransientError
				assert.True(t, errors.As(err, &transient))
			},
		},
		{
			name:   "4xx is a request error",
			status: http.StatusNotFound,
			body:   "no such message",
			check: func(t *testing.T, err error) {
				var reqErr *RequestError
				require.True(t, errors.As(err, &reqErr))
				assert.Equal(t, http.StatusNotFound, reqErr.StatusCode)
			},
		},
		{
			name:   "success=false is a request error",
			status: http.StatusOK,
			body:   `{"success": false, "error": "mailbox locked"}`,
			check: func(t *testing.T, err error) {
				var reqErr *RequestError
				require.True(t, errors.As(err, &reqErr))
				assert.Contains(t, reqErr.Message, "mailbox locked")
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			defer srv.Close()

			_, err := c.UnreadCount(context.Background())
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestConnectionFailureIsTransient(t *testing.T) {
	srv := httptest.NewServer(nil)
	c := New(srv.URL, "t", nil)
	srv.Close()

	err := c.Online(context.Background())
	var transient *TransientError
	assert.True(t, errors.As(err, &transient))
}

func TestSendText(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat/send", r.URL.Path)
		w.Write([]byte(`{"success": true, "message_id": "42"}`))
	})
	defer srv.Close()

	id, err := c.SendText(context.Background(), "alice@example.com", "hi")
	require.NoError(t, err)
	assert.Equal(t, "42", id)
}

func TestSendAudioMultipart(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1 << 20))
		assert.Equal(t, "alice@example.com", r.FormValue("to"))
		assert.Equal(t, "3", r.FormValue("duration"))
		assert.Equal(t, "audio/wav", r.FormValue("format"))

		file, header, err := r.FormFile("audio")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "voice.wav", header.Filename)

		w.Write([]byte(`{"success": true, "message_id": "99", "audio_url": "/audio/99.wav"}`))
	})
	defer srv.Close()

	id, ref, err := c.SendAudio(context.Background(), "alice@example.com", []byte{1, 2, 3}, "audio/wav", 3)
	require.NoError(t, err)
	assert.Equal(t, "99", id)
	assert.Equal(t, "/audio/99.wav", ref)
}

func TestFetchAudioRelativeRef(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/99.wav", r.URL.Path)
		w.Write([]byte{1, 2, 3, 4})
	})
	defer srv.Close()

	data, err := c.FetchAudio(context.Background(), "/audio/99.wav")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, data)
}

func TestHistoryDecodesAudioMessages(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "alice@example.com", r.URL.Query().Get("with"))
		w.Write([]byte(`{
			"success": true,
			"messages": [
				{"id": "1", "content": "hey", "sent_by_me": false, "type": "text"},
				{"id": "2", "content": "Voice message", "sent_by_me": true,
				 "type": "audio", "audio_url": "/audio/2.ogg", "duration": 7}
			]
		}`))
	})
	defer srv.Close()

	msgs, err := c.History(context.Background(), "alice@example.com")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, model.KindText, msgs[0].Kind)
	assert.Nil(t, msgs[0].Audio)
	assert.Equal(t, model.KindAudio, msgs[1].Kind)
	require.NotNil(t, msgs[1].Audio)
	assert.Equal(t, "/audio/2.ogg", msgs[1].Audio.Ref)
	assert.Equal(t, 7, msgs[1].Audio.DurationSec)
}

func TestEmptyBodyFireAndForget(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	defer srv.Close()

	assert.NoError(t, c.Online(context.Background()))
}
