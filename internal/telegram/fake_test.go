package telegram

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

const testToken = "123456:TEST-token"

type sentMessage struct {
	ChatID  int64
	Text    string
	ReplyTo int64
}

// fakeAPI serves getMe, getUpdates and sendMessage from memory.
type fakeAPI struct {
	t      *testing.T
	server *httptest.Server

	mu      sync.Mutex
	batches [][]Update
	offsets []int64
	sent    []sentMessage
	sentCh  chan sentMessage
}

func newFakeAPI(t *testing.T, batches ...[]Update) *fakeAPI {
	t.Helper()
	f := &fakeAPI{t: t, batches: batches, sentCh: make(chan sentMessage, 64)}
	f.server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeAPI) client() *Client {
	return NewClient(testToken, WithBaseURL(f.server.URL))
}

func (f *fakeAPI) serve(w http.ResponseWriter, r *http.Request) {
	prefix := "/bot" + testToken + "/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":401,"description":"Unauthorized"}`))
		return
	}

	switch strings.TrimPrefix(r.URL.Path, prefix) {
	case "getMe":
		f.reply(w, User{ID: 1, IsBot: true, FirstName: "Salawat", Username: "salawat_bot"})
	case "getUpdates":
		var req UpdatesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			f.t.Errorf("decode getUpdates: %v", err)
		}
		f.mu.Lock()
		f.offsets = append(f.offsets, req.Offset)
		var batch []Update
		if len(f.batches) > 0 {
			batch, f.batches = f.batches[0], f.batches[1:]
		}
		f.mu.Unlock()
		if batch == nil {
			time.Sleep(10 * time.Millisecond)
			batch = []Update{}
		}
		f.reply(w, batch)
	case "sendMessage":
		var body struct {
			ChatID          int64  `json:"chat_id"`
			Text            string `json:"text"`
			ReplyParameters *struct {
				MessageID int64 `json:"message_id"`
			} `json:"reply_parameters"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			f.t.Errorf("decode sendMessage: %v", err)
		}
		msg := sentMessage{ChatID: body.ChatID, Text: body.Text}
		if body.ReplyParameters != nil {
			msg.ReplyTo = body.ReplyParameters.MessageID
		}
		f.mu.Lock()
		f.sent = append(f.sent, msg)
		f.mu.Unlock()
		f.sentCh <- msg
		f.reply(w, map[string]any{"message_id": 999})
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":404,"description":"Not Found"}`))
	}
}

func (f *fakeAPI) reply(w http.ResponseWriter, result any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": result})
}

// waitSent returns the next sent message or fails after a timeout.
func (f *fakeAPI) waitSent(t *testing.T) sentMessage {
	t.Helper()
	select {
	case msg := <-f.sentCh:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for sendMessage")
		return sentMessage{}
	}
}

func (f *fakeAPI) pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

func (f *fakeAPI) seenOffsets() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.offsets...)
}

func textMessage(updateID, messageID int64, chat Chat, from *User, text string) Update {
	return Update{
		UpdateID: updateID,
		Message: &Message{
			MessageID: messageID,
			From:      from,
			Chat:      chat,
			Text:      text,
		},
	}
}
