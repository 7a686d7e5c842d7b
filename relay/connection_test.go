package relay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nostrforge/corenostr/keys"
	"github.com/nostrforge/corenostr/nostr"
)

// fakeServerConn is the relay side of one upgraded WebSocket, with its
// own read loop already running so ping/pong control frames are handled
// without the test needing to drive them manually.
type fakeServerConn struct {
	conn *websocket.Conn
	recv chan []byte
}

func (s *fakeServerConn) sendOK(eventID string, accepted bool, msg string) {
	s.conn.WriteMessage(websocket.TextMessage, []byte(`["OK",`+quote(eventID)+`,`+boolStr(accepted)+`,`+quote(msg)+`]`))
}

func quote(s string) string { return `"` + s + `"` }
func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

type fakeRelay struct {
	server    *httptest.Server
	url       string
	connected chan *fakeServerConn
}

func newFakeRelay(t *testing.T) *fakeRelay {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	fr := &fakeRelay{connected: make(chan *fakeServerConn, 8)}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		sc := &fakeServerConn{conn: conn, recv: make(chan []byte, 16)}
		go func() {
			for {
				_, data, err := conn.ReadMessage()
				if err != nil {
					close(sc.recv)
					return
				}
				sc.recv <- data
			}
		}()
		fr.connected <- sc
	})
	fr.server = httptest.NewServer(mux)
	fr.url = "ws" + strings.TrimPrefix(fr.server.URL, "http")
	t.Cleanup(fr.server.Close)
	return fr
}

func quickConfig() Config {
	cfg := DefaultConfig()
	cfg.ConnectionTimeout = 2 * time.Second
	cfg.OperationTimeout = 300 * time.Millisecond
	cfg.AutoReconnect = false
	return cfg
}

func TestConnectReachesConnectedThenDisconnects(t *testing.T) {
	fr := newFakeRelay(t)
	c := NewConnection(fr.url, quickConfig(), nil)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if c.State() != Connected {
		t.Fatalf("State() = %v, want Connected", c.State())
	}

	c.Disconnect()
	if c.State() != Disconnected {
		t.Fatalf("State() after Disconnect = %v, want Disconnected", c.State())
	}
}

func TestPublishReceivesOkFrame(t *testing.T) {
	fr := newFakeRelay(t)
	c := NewConnection(fr.url, quickConfig(), nil)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	sc := <-fr.connected

	kp, _ := keys.New()
	ev, err := nostr.Sign(nostr.UnsignedEvent{Kind: 1, Content: "hi"}, kp)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	go func() {
		for data := range sc.recv {
			parsed, err := ParseClientMessage(data)
			if err != nil {
				continue
			}
			if em, ok := parsed.(EventMessage); ok {
				sc.sendOK(em.Event.ID, true, "stored")
			}
		}
	}()

	res, err := c.Publish(context.Background(), ev)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if !res.Accepted {
		t.Fatalf("res.Accepted = false, want true")
	}
	if res.Message != "stored" {
		t.Errorf("res.Message = %q, want stored", res.Message)
	}
}

func TestPublishTimesOutWithoutOkFrame(t *testing.T) {
	fr := newFakeRelay(t)
	cfg := quickConfig()
	cfg.OperationTimeout = 100 * time.Millisecond
	c := NewConnection(fr.url, cfg, nil)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	<-fr.connected // accept, but never reply

	kp, _ := keys.New()
	ev, _ := nostr.Sign(nostr.UnsignedEvent{Kind: 1, Content: "hi"}, kp)

	_, err := c.Publish(context.Background(), ev)
	if err != ErrTimeout {
		t.Fatalf("Publish err = %v, want ErrTimeout", err)
	}
}

func TestDisconnectWakesPendingPublishWithNotConnected(t *testing.T) {
	fr := newFakeRelay(t)
	cfg := quickConfig()
	cfg.OperationTimeout = 5 * time.Second
	c := NewConnection(fr.url, cfg, nil)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	<-fr.connected // accept, but never reply

	kp, _ := keys.New()
	ev, _ := nostr.Sign(nostr.UnsignedEvent{Kind: 1, Content: "hi"}, kp)

	done := make(chan error, 1)
	go func() {
		_, err := c.Publish(context.Background(), ev)
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	c.Disconnect()

	select {
	case err := <-done:
		if err != ErrNotConnected {
			t.Fatalf("Publish err = %v, want ErrNotConnected", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Publish did not wake up after Disconnect")
	}
}

func TestMessagesBroadcastsIncomingEventFrame(t *testing.T) {
	fr := newFakeRelay(t)
	c := NewConnection(fr.url, quickConfig(), nil)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	sc := <-fr.connected

	ch, cancel := c.Messages()
	defer cancel()

	kp, _ := keys.New()
	ev, _ := nostr.Sign(nostr.UnsignedEvent{Kind: 1, Content: "live update"}, kp)
	frame, err := (EventMessage{Event: ev}).MarshalClientMessage()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	// Reuse the EVENT frame shape but as a server->client ["EVENT", sub_id, event] frame.
	wireFrame := strings.Replace(string(frame), `["EVENT",`, `["EVENT","sub1",`, 1)
	sc.conn.WriteMessage(websocket.TextMessage, []byte(wireFrame))

	select {
	case msg := <-ch:
		ef, ok := msg.(EventFrame)
		if !ok {
			t.Fatalf("msg type = %T, want EventFrame", msg)
		}
		if ef.SubID != "sub1" || ef.Event.ID != ev.ID {
			t.Errorf("unexpected frame: %+v", ef)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no message received within timeout")
	}
}

func TestStateChangesYieldsCurrentStateImmediately(t *testing.T) {
	c := NewConnection("ws://unused.invalid", quickConfig(), nil)
	ch, cancel := c.StateChanges()
	defer cancel()

	select {
	case s := <-ch:
		if s != Disconnected {
			t.Fatalf("initial state = %v, want Disconnected", s)
		}
	case <-time.After(time.Second):
		t.Fatal("did not receive initial state")
	}
}
