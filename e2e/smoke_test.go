package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// TestSmoke walks the happy path against a running server: temp token,
// room creation, realtime join, one message round trip, history readback.
func TestSmoke(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	if cfg.ServerAddr == "" {
		t.Skip("E2E_SERVER_ADDR not set")
	}
	req := require.New(t)
	base := "http://" + cfg.ServerAddr

	// 1. Temp token
	var temp struct {
		Token string `json:"token"`
	}
	postJSON(t, cfg, base+"/api/temp-token", "", nil, &temp)
	req.NotEmpty(temp.Token)

	// 2. Create a short-lived chat
	var chat struct {
		ID        string    `json:"id"`
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expiresAt"`
	}
	postJSON(t, cfg, base+"/api/chats", temp.Token, map[string]string{"duration": "2m"}, &chat)
	req.Len(chat.ID, 32)

	// 3. Join over WebSocket
	conn, resp, err := websocket.DefaultDialer.Dial("ws://"+cfg.ServerAddr+"/ws", nil)
	req.NoError(err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	defer conn.Close()

	req.NoError(conn.WriteJSON(map[string]string{"type": "join", "roomId": chat.ID, "identity": "smoke"}))
	frame := readFrame(t, conn)
	req.Equal("userCount", frame["type"])

	// 4. One message round trip
	req.NoError(conn.WriteJSON(map[string]string{"type": "message", "roomId": chat.ID, "sender": "smoke", "content": "smoke test"}))
	frame = readFrame(t, conn)
	req.Equal("message", frame["type"])
	req.Equal("smoke test", frame["content"])

	// 5. History readback through the REST facade
	request, err := http.NewRequest(http.MethodGet, base+"/api/chats/"+chat.ID, nil)
	req.NoError(err)
	request.Header.Set("x-auth-token", chat.Token)
	response, err := http.DefaultClient.Do(request)
	req.NoError(err)
	defer response.Body.Close()
	req.Equal(http.StatusOK, response.StatusCode)

	var history struct {
		Messages []struct {
			Content string `json:"content"`
		} `json:"messages"`
	}
	req.NoError(json.NewDecoder(response.Body).Decode(&history))
	req.Len(history.Messages, 1)
	req.Equal("smoke test", history.Messages[0].Content)
}

func postJSON(t *testing.T, cfg Config, url, token string, body, out any) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	request, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(raw))
	require.NoError(t, err)
	request.Header.Set("Content-Type", "application/json")
	if token != "" {
		request.Header.Set("x-auth-token", token)
	}

	response, err := http.DefaultClient.Do(request)
	require.NoError(t, err)
	defer response.Body.Close()
	payload := decodeBody(t, response)
	if cfg.DebugJSON {
		fmt.Printf("POST %s -> %d %s\n", url, response.StatusCode, payload)
	}
	require.Less(t, response.StatusCode, 300)
	require.NoError(t, json.Unmarshal(payload, out))
}

func decodeBody(t *testing.T, response *http.Response) []byte {
	t.Helper()
	var buf bytes.Buffer
	_, err := buf.ReadFrom(response.Body)
	require.NoError(t, err)
	return buf.Bytes()
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var frame map[string]any
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}
