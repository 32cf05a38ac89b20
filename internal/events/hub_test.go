package events

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/reelcap/reelcap/testutil"
)

func dialHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial hub: %v", err)
	}
	return conn
}

func TestPublishReachesSubscriber(t *testing.T) {
	hub := NewHub()
	defer hub.Close()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dialHub(t, srv)
	defer conn.Close()

	// The subscriber registers asynchronously after the upgrade.
	testutil.AssertEventually(t, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		return len(hub.subs) == 1
	}, time.Second, 10*time.Millisecond, "subscriber registered")

	hub.Publish(Event{State: StateRecording, Path: "/out/Screen-x.mp4"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	testutil.AssertNoError(t, err, "read event")

	var ev Event
	testutil.AssertNoError(t, json.Unmarshal(data, &ev), "event is JSON")
	testutil.AssertEqual(t, StateRecording, ev.State, "state delivered")
	testutil.AssertEqual(t, "/out/Screen-x.mp4", ev.Path, "path delivered")
	testutil.AssertFalse(t, ev.Timestamp.IsZero(), "timestamp stamped")
}

func TestPublishFansOut(t *testing.T) {
	hub := NewHub()
	defer hub.Close()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	c1 := dialHub(t, srv)
	defer c1.Close()
	c2 := dialHub(t, srv)
	defer c2.Close()

	testutil.AssertEventually(t, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		return len(hub.subs) == 2
	}, time.Second, 10*time.Millisecond, "both subscribers registered")

	hub.Publish(Event{State: StatePaused})

	for i, conn := range []*websocket.Conn{c1, c2} {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		testutil.AssertNoError(t, err, "read on subscriber")
		var ev Event
		testutil.AssertNoError(t, json.Unmarshal(data, &ev), "decode on subscriber")
		if ev.State != StatePaused {
			t.Errorf("subscriber %d got state %s", i, ev.State)
		}
	}
}

func TestPublishWithoutSubscribersDoesNotBlock(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			hub.Publish(Event{State: StateFinalized})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked with no subscribers")
	}
}

func TestCloseDisconnectsSubscribers(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dialHub(t, srv)
	defer conn.Close()

	testutil.AssertEventually(t, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		return len(hub.subs) == 1
	}, time.Second, 10*time.Millisecond, "subscriber registered")

	hub.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	testutil.AssertError(t, err, "connection closed after hub shutdown")
}
