package main

import (
	"io"
	"log"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"pedsim/internal/geom"
	sim "pedsim/internal/sim"
	"pedsim/internal/wire"
)

func newTestSimulation(t *testing.T) *sim.Simulation {
	t.Helper()
	cfg := sim.DefaultConfig()
	cfg.Workers = -1
	s, err := sim.New(cfg, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("expected simulation, got %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("expected websocket dial to succeed, got %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	return conn
}

func readStatus(t *testing.T, conn *websocket.Conn) wire.Status {
	t.Helper()
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("expected a status message, got %v", err)
	}
	st, err := wire.DecodeStatus(data)
	if err != nil {
		t.Fatalf("expected status to decode, got %v", err)
	}
	return st
}

func TestHubAppliesControlMessages(t *testing.T) {
	s := newTestSimulation(t)
	h := newHub()
	srv := httptest.NewServer(h.handler(s))
	defer srv.Close()

	conn := dial(t, srv)
	if st := readStatus(t, conn); st.Integrator != "semi-implicit-euler" || st.Paused {
		t.Fatalf("unexpected initial status %+v", st)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"paused": true, "integrator": "runge-kutta"}`)); err != nil {
		t.Fatalf("expected control write to succeed, got %v", err)
	}
	st := readStatus(t, conn)
	if !st.Paused || st.Integrator != "runge-kutta" || st.Epoch != 1 {
		t.Fatalf("expected paused runge-kutta at epoch 1, got %+v", st)
	}
	if !s.Paused() {
		t.Fatal("expected the simulation to be paused")
	}
}

func TestHubBroadcastsFrames(t *testing.T) {
	s := newTestSimulation(t)
	if err := corridor(s, 5, 1); err != nil {
		t.Fatalf("expected demo scenario to build, got %v", err)
	}
	h := newHub()
	srv := httptest.NewServer(h.handler(s))
	defer srv.Close()

	conn := dial(t, srv)
	readStatus(t, conn)

	s.Step(0.1)
	h.broadcastFrame(s.Snapshot())

	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("expected a frame, got %v", err)
	}
	f, err := wire.DecodeFrame(data)
	if err != nil {
		t.Fatalf("expected frame to decode, got %v", err)
	}
	if f.Tick != 1 || len(f.Pedestrians) != 7 {
		t.Fatalf("expected tick 1 with 7 pedestrians, got tick %d with %d", f.Tick, len(f.Pedestrians))
	}
	for _, p := range f.Pedestrians {
		if p.Position == (geom.Vec{}) {
			t.Fatalf("expected pedestrian %d to have a position, got %v", p.ID, p.Position)
		}
	}
}
