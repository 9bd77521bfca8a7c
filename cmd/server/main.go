package main

import (
	"context"
	"flag"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"pedsim/internal/geom"
	sim "pedsim/internal/sim"
	"pedsim/internal/wayfinding"
	"pedsim/internal/wire"
)

type hub struct {
	mu       sync.Mutex
	clients  map[*websocket.Conn]struct{}
	upgrader websocket.Upgrader
}

func newHub() *hub {
	return &hub{
		clients: make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (h *hub) add(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[conn] = struct{}{}
}

func (h *hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, conn)
	conn.Close()
}

func (h *hub) broadcast(payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.clients {
		if err := conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
			log.Printf("failed to write to client: %v", err)
			conn.Close()
			delete(h.clients, conn)
		}
	}
}

func (h *hub) broadcastStatus(state sim.ControlState) {
	payload, err := wire.EncodeStatus(wire.Status{
		Integrator: state.Integrator,
		Paused:     state.Paused,
		TimeScale:  state.TimeScale,
		Epoch:      state.Epoch,
	})
	if err != nil {
		log.Printf("failed to encode control status: %v", err)
		return
	}
	h.broadcast(payload)
}

func (h *hub) broadcastFrame(snap sim.Snapshot) {
	f := wire.Frame{
		Tick:        snap.Stats.Tick,
		Time:        snap.Stats.Time,
		Epoch:       snap.Control.Epoch,
		Integrator:  snap.Control.Integrator,
		Pedestrians: make([]wire.Pedestrian, len(snap.Pedestrians)),
	}
	for i, p := range snap.Pedestrians {
		f.Pedestrians[i] = wire.Pedestrian{
			ID:       int64(p.ID),
			Group:    int64(p.GroupID),
			Crowd:    int64(p.CrowdID),
			Position: p.Position,
			Velocity: p.Velocity,
			Force:    p.Forces.Total,
			Waiting:  p.Waiting,
			Lost:     p.Lost,
			Finished: p.Finished,
		}
	}
	h.broadcast(wire.EncodeFrame(f))
}

func (h *hub) handler(simulation *sim.Simulation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("websocket upgrade failed: %v", err)
			return
		}
		h.add(conn)
		defer h.remove(conn)

		// Send the current control state immediately.
		h.broadcastStatus(simulation.ControlState())

		for {
			kind, data, err := conn.ReadMessage()
			if err != nil {
				log.Printf("control stream read error: %v", err)
				return
			}

			var control wire.Control
			if kind == websocket.TextMessage {
				control, err = wire.DecodeControlJSON(data)
			} else {
				control, err = wire.DecodeControl(data)
			}
			if err != nil {
				log.Printf("unable to decode control update: %v", err)
				continue
			}

			state, err := simulation.ApplyControlSettings(sim.ControlSettings{
				Integrator: control.Integrator,
				Paused:     control.Paused,
				TimeScale:  control.TimeScale,
			})
			if err != nil {
				log.Printf("control update rejected: %v", err)
			}
			h.broadcastStatus(state)
		}
	}
}

// corridor builds the demo scene: a 50 m corridor with a pillar half way
// that the route passes on its upper side. A second crowd trails the first
// pedestrian.
func corridor(s *sim.Simulation, pedestrians int, seed int64) error {
	s.AddBoundaries(
		geom.Seg(geom.V(0, 0), geom.V(50, 0)),
		geom.Seg(geom.V(0, 6), geom.V(50, 6)),
		geom.Seg(geom.V(0, 0), geom.V(0, 6)),
		geom.Seg(geom.V(24, 2.5), geom.V(26, 2.5)),
		geom.Seg(geom.V(26, 2.5), geom.V(26, 3.5)),
		geom.Seg(geom.V(26, 3.5), geom.V(24, 3.5)),
		geom.Seg(geom.V(24, 3.5), geom.V(24, 2.5)),
	)
	route, err := s.NewRoute([]wayfinding.WayPoint{
		{Position: geom.V(12, 3), Width: 5},
		{Position: geom.V(25, 4.8), Width: 2.4},
		{Position: geom.V(38, 3), Width: 5, WaitingPeriod: 1},
		{Position: geom.V(48, 3), Width: 5},
	})
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(seed))
	var groups [][]geom.Vec
	for placed := 0; placed < pedestrians; {
		size := 1 + rng.Intn(3)
		if placed+size > pedestrians {
			size = pedestrians - placed
		}
		anchor := geom.V(0.8+rng.Float64()*8, 0.8+rng.Float64()*4.4)
		group := make([]geom.Vec, size)
		for i := range group {
			group[i] = anchor.Add(geom.V(float64(i)*0.6, 0))
		}
		groups = append(groups, group)
		placed += size
	}
	crowd, err := s.SpawnCrowd(route, groups)
	if err != nil {
		return err
	}
	if peds := crowd.Pedestrians(); len(peds) > 0 {
		s.SpawnFollowers(peds[0].ID(), []geom.Vec{geom.V(1, 1), geom.V(1.8, 1)})
	}
	return nil
}

func main() {
	addr := flag.String("addr", ":8080", "server listen address")
	configPath := flag.String("config", "", "path to a JSON config file")
	tick := flag.Duration("tick", 100*time.Millisecond, "wall-clock interval between ticks")
	seed := flag.Int64("seed", 0, "random seed, overrides the config when non-zero")
	pedestrians := flag.Int("pedestrians", 60, "pedestrians in the demo corridor")
	flag.Parse()

	cfg := sim.DefaultConfig()
	if *configPath != "" {
		loaded, err := sim.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		cfg = loaded
	}
	if *seed != 0 {
		cfg.Seed = *seed
	}

	simulation, err := sim.New(cfg, nil)
	if err != nil {
		log.Fatalf("simulation: %v", err)
	}
	defer simulation.Close()
	if err := corridor(simulation, *pedestrians, cfg.Seed); err != nil {
		log.Fatalf("scenario: %v", err)
	}

	h := newHub()
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	go simulation.Run(ctx, *tick, func(snap sim.Snapshot) {
		h.broadcastFrame(snap)
		if snap.Stats.Tick%100 == 0 {
			log.Printf("tick=%d t=%.1fs pedestrians=%d took=%v", snap.Stats.Tick, snap.Stats.Time, snap.Stats.Pedestrians, snap.Stats.Duration)
		}
	})

	mux := http.NewServeMux()
	mux.Handle("/proto/", http.StripPrefix("/proto/", http.FileServer(http.Dir("proto"))))
	mux.Handle("/ws", h.handler(simulation))

	srv := &http.Server{Addr: *addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdown, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		srv.Shutdown(shutdown)
	}()

	log.Printf("streaming frames on ws://localhost%v/ws", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server failed: %v", err)
	}
}
