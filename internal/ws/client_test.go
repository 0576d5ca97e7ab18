package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// dialTestConn upgrades one connection on an in-process server and
// hands back both ends of it.
func dialTestConn(t *testing.T) (server, dial *websocket.Conn) {
	t.Helper()

	upgrader := websocket.Upgrader{}
	conns := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		conns <- conn
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	dial, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { dial.Close() })

	select {
	case server = <-conns:
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw the connection")
	}
	return server, dial
}

func TestReadPumpClosesConnOnReadError(t *testing.T) {
	hub := NewHub(Deps{})
	server, dial := dialTestConn(t)

	c := NewClient("c1", creatorAddr, server, hub)
	hub.AddConnection(c)
	go c.Run()

	// a frame over the read limit kills the read side; the client must
	// tear the whole connection down, not just unregister
	big := strings.Repeat("x", 8192)
	require.NoError(t, dial.WriteMessage(websocket.TextMessage, []byte(big)))

	select {
	case <-c.Done:
	case <-time.After(2 * time.Second):
		t.Fatal("client never shut down")
	}

	// the peer observes the close: reads fail once buffered data drains
	dial.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := dial.ReadMessage(); err != nil {
			break
		}
	}

	// and the local socket is unusable for the write pump
	require.Eventually(t, func() bool {
		return server.WriteMessage(websocket.PingMessage, nil) != nil
	}, 2*time.Second, 10*time.Millisecond)
}
