package gateway

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestWritePumpRecordsWriteFault(t *testing.T) {
	result := make(chan *Connection, 1)
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn := newConnection(ws, "player-1", DefaultConnectionConfig())
		// writes fail once the socket is gone underneath the pump
		ws.UnderlyingConn().Close()
		go conn.writePump()
		_ = conn.Send([]byte(`{"type":"stats_update"}`))

		select {
		case <-conn.Done():
		case <-time.After(2 * time.Second):
		}
		result <- conn
	}))
	defer server.Close()

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	conn := <-result
	select {
	case <-conn.Done():
	default:
		t.Fatal("connection should close after a write fault")
	}
	if conn.WriteErr() == nil {
		t.Error("write fault should be recorded")
	}
}

func TestCloseIsNotAWriteFault(t *testing.T) {
	conn := newConnection(nil, "player-1", DefaultConnectionConfig())
	conn.Close()
	conn.Close()

	if err := conn.WriteErr(); err != nil {
		t.Errorf("WriteErr() = %v, want nil after a deliberate close", err)
	}
	if err := conn.Send([]byte("late")); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Send() after close = %v, want ErrSessionClosed", err)
	}
}

func TestReadFailedAfterWriteFaultIsAbrupt(t *testing.T) {
	tests := []struct {
		name       string
		close      func(c *Connection)
		wantAbrupt bool
	}{
		{
			name:       "write fault",
			close:      func(c *Connection) { c.fail(errors.New("broken pipe")) },
			wantAbrupt: true,
		},
		{
			name:       "local close",
			close:      func(c *Connection) { c.Close() },
			wantAbrupt: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := newConnection(nil, "player-1", DefaultConnectionConfig())
			tt.close(conn)

			s := &clientSession{conn: conn, state: stateActive}
			s.readFailed(io.ErrUnexpectedEOF)
			if s.abrupt != tt.wantAbrupt {
				t.Errorf("abrupt = %v, want %v", s.abrupt, tt.wantAbrupt)
			}
		})
	}
}
