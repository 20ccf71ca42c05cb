package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/gorilla/websocket"

	"fleetfeast.ai/internal/protocol"
	"fleetfeast.ai/internal/sim/city"
)

func main() {
	var (
		url   = flag.String("url", "ws://localhost:8080/v1/stream", "stream url")
		name  = flag.String("name", "watch", "observer name")
		every = flag.Int("every", 10, "print one line every N ticks")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[watch] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	sub := protocol.SubscribeMsg{
		Type:            protocol.TypeSubscribe,
		ProtocolVersion: protocol.Version,
		ObserverName:    *name,
	}
	if err := conn.WriteJSON(sub); err != nil {
		logger.Fatalf("send SUBSCRIBE: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	for {
		select {
		case <-stop:
			return
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil || base.Type != protocol.TypeSnapshot {
			continue
		}
		var env protocol.SnapshotMsg
		if err := json.Unmarshal(msg, &env); err != nil {
			continue
		}
		var snap city.Snapshot
		if err := json.Unmarshal(env.Data, &snap); err != nil {
			continue
		}
		if *every > 1 && snap.Tick%uint64(*every) != 0 {
			continue
		}
		logger.Printf("tick=%d day=%d %02d:%02d %s", snap.Tick, snap.Day,
			snap.CurrentTime/60, snap.CurrentTime%60, summarize(&snap))
	}
}

func summarize(s *city.Snapshot) string {
	var b strings.Builder
	revenue := 0.0
	for _, t := range s.Trucks {
		revenue += t.TotalRevenue
		switch t.Status {
		case city.StatusMoving:
			fmt.Fprintf(&b, "%s→%s ", t.ID, t.DestinationZone)
		default:
			fmt.Fprintf(&b, "%s@%s(%s,%d) ", t.ID, t.CurrentZone, t.Status, t.Inventory)
		}
	}
	fmt.Fprintf(&b, "revenue=%.0f", revenue)
	return b.String()
}
