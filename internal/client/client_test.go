// ABOUTME: Tests for WebSocket client implementation
// ABOUTME: Tests connection, handshake, and message routing against a test server
package client

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tempocast/tempocast-go/internal/protocol"
)

func TestNewClient(t *testing.T) {
	config := Config{
		ServerAddr: "localhost:8927",
		ClientID:   "test-client",
		Name:       "Test Player",
	}

	client := NewClient(config)
	if client == nil {
		t.Fatal("expected client to be created")
	}

	if client.config.ServerAddr != "localhost:8927" {
		t.Errorf("expected server addr localhost:8927, got %s", client.config.ServerAddr)
	}
	if client.IsConnected() {
		t.Error("expected not connected before Connect")
	}
}

// testServer accepts one connection, answers the handshake, then hands the
// connection to fn.
func testServer(t *testing.T, fn func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tempocast" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}

		// Expect client/hello
		var hello protocol.Message
		if err := conn.ReadJSON(&hello); err != nil {
			t.Errorf("read hello failed: %v", err)
			return
		}
		if hello.Type != protocol.TypeClientHello {
			t.Errorf("expected client/hello, got %s", hello.Type)
		}

		// Answer server/hello
		conn.WriteJSON(protocol.Message{
			Type:    protocol.TypeServerHello,
			Payload: protocol.ServerHello{ServerID: "srv-1", Name: "test server", Version: protocol.Version},
		})

		// Swallow the initial player/update
		var update protocol.Message
		if err := conn.ReadJSON(&update); err != nil {
			t.Errorf("read initial state failed: %v", err)
			return
		}
		if update.Type != protocol.TypeUpdate {
			t.Errorf("expected player/update, got %s", update.Type)
		}

		if fn != nil {
			fn(conn)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func connectTo(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	addr := strings.TrimPrefix(srv.URL, "http://")
	client := NewClient(Config{ServerAddr: addr, ClientID: "test-client", Name: "Test Player"})
	if err := client.Connect(); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func TestConnectHandshake(t *testing.T) {
	srv := testServer(t, nil)
	client := connectTo(t, srv)

	if !client.IsConnected() {
		t.Error("expected connected after handshake")
	}
}

func TestAudioChunkRouting(t *testing.T) {
	srv := testServer(t, func(conn *websocket.Conn) {
		frame := protocol.EncodeChunkFrame(424242, []byte{1, 2, 3, 4})
		conn.WriteMessage(websocket.BinaryMessage, frame)
	})
	client := connectTo(t, srv)

	select {
	case chunk := <-client.AudioChunks:
		if chunk.Timestamp != 424242 {
			t.Errorf("expected timestamp 424242, got %d", chunk.Timestamp)
		}
		if len(chunk.Data) != 4 {
			t.Errorf("expected 4 payload bytes, got %d", len(chunk.Data))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for audio chunk")
	}
}

func TestTimeSyncRoundTrip(t *testing.T) {
	srv := testServer(t, func(conn *websocket.Conn) {
		var msg protocol.Message
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		if msg.Type != protocol.TypeClientTime {
			t.Errorf("expected client/time, got %s", msg.Type)
			return
		}
		payloadBytes, _ := json.Marshal(msg.Payload)
		var ct protocol.ClientTime
		json.Unmarshal(payloadBytes, &ct)

		conn.WriteJSON(protocol.Message{
			Type: protocol.TypeServerTime,
			Payload: protocol.ServerTime{
				ClientTransmitted: ct.ClientTransmitted,
				ServerReceived:    1000,
				ServerTransmitted: 1100,
			},
		})
	})
	client := connectTo(t, srv)

	if err := client.SendTimeSync(777); err != nil {
		t.Fatalf("send time sync failed: %v", err)
	}

	select {
	case resp := <-client.TimeSyncResp:
		if resp.ClientTransmitted != 777 {
			t.Errorf("expected echoed t1 777, got %d", resp.ClientTransmitted)
		}
		if resp.ServerReceived != 1000 || resp.ServerTransmitted != 1100 {
			t.Errorf("unexpected server timestamps: %+v", resp)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for time sync response")
	}
}

func TestStreamStartRouting(t *testing.T) {
	srv := testServer(t, func(conn *websocket.Conn) {
		conn.WriteJSON(protocol.Message{
			Type: protocol.TypeStreamStart,
			Payload: protocol.StreamStart{
				Codec:      "pcm",
				SampleRate: 48000,
				Channels:   2,
				BitDepth:   16,
			},
		})
	})
	client := connectTo(t, srv)

	select {
	case start := <-client.StreamStart:
		if start.SampleRate != 48000 || start.Codec != "pcm" {
			t.Errorf("unexpected stream start: %+v", start)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for stream start")
	}
}

func TestCloseIdempotent(t *testing.T) {
	srv := testServer(t, nil)
	client := connectTo(t, srv)

	client.Close()
	client.Close()

	if client.IsConnected() {
		t.Error("expected disconnected after close")
	}

	select {
	case <-client.Done():
	case <-time.After(time.Second):
		t.Error("expected Done to be closed")
	}
}
