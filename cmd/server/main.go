package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"fleetfeast.ai/internal/bridge"
	"fleetfeast.ai/internal/persistence/archive"
	persistlog "fleetfeast.ai/internal/persistence/log"
	"fleetfeast.ai/internal/sim/city"
	"fleetfeast.ai/internal/sim/tuning"
	"fleetfeast.ai/internal/store"
	"fleetfeast.ai/internal/transport/stream"
)

func main() {
	var (
		addr       = flag.String("addr", envStr("FLEET_ADDR", ":8080"), "http listen address")
		configPath = flag.String("config", envStr("FLEET_CONFIG", "./configs/city.yaml"), "city config path")
		dataDir    = flag.String("data", envStr("FLEET_DATA", "./data"), "runtime data directory")
		storePath  = flag.String("store", envStr("FLEET_STORE", ""), "sqlite store path (default: <data>/fleet.db)")
		queueName  = flag.String("queue", envStr("FLEET_QUEUE", "actions"), "action queue name")
		stateKey   = flag.String("state_key", envStr("FLEET_STATE_KEY", "latest"), "shared-state slot key")
		agentURL   = flag.String("agent_url", envStr("FLEET_AGENT_URL", ""), "external decision service url (empty: built-in policy)")
		memQueue   = flag.Bool("mem_queue", envBool("FLEET_MEM_QUEUE", false), "use the in-memory action queue instead of the store")
	)
	flag.Parse()

	logger := logrus.New()
	if envBool("FLEET_LOG_JSON", false) {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	if lvl, err := logrus.ParseLevel(envStr("FLEET_LOG_LEVEL", "info")); err == nil {
		logger.SetLevel(lvl)
	}
	log := logger.WithField("component", "server")

	tune, err := tuning.Load(*configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.WithError(err).Fatal("load city config")
		}
		log.WithField("path", *configPath).Info("city config not found; using defaults")
		tune = tuning.Defaults()
	}
	applyEnvOverrides(&tune)

	cfg := tune.Config()
	cityDir := filepath.Join(*dataDir, "cities", cfg.ID)
	_ = os.MkdirAll(cityDir, 0o755)

	// Shared-state store: the durable snapshot slot plus the action queue
	// the bridge produces into.
	var (
		st    *store.Store
		queue city.ActionQueue
	)
	if !*memQueue {
		sp := strings.TrimSpace(*storePath)
		if sp == "" {
			sp = filepath.Join(*dataDir, "fleet.db")
		}
		st, err = store.Open(sp, *stateKey, *queueName, logger)
		if err != nil {
			log.WithError(err).Fatal("open store")
		}
		defer st.Close()
		queue = st
	} else {
		queue = city.NewMemoryQueue()
	}

	w, err := city.New(cfg, queue, logger)
	if err != nil {
		log.WithError(err).Fatal("city config invalid")
	}

	ctx, cancel := signalContext()
	defer cancel()

	tickLog := persistlog.NewTickLogger(cityDir)
	defer tickLog.Close()
	w.SetTickLogger(tickLog)

	decLog := persistlog.NewDecisionLogger(cityDir)
	defer decLog.Close()

	// State writer: persists each published snapshot to the shared-state
	// slot and cuts the day archive at midnight. Failures never reach the
	// loop; the health endpoint reports the consecutive-failure count.
	var writeFails atomic.Int64
	stateCh := make(chan city.PublishedState, 2)
	w.SetStateSink(stateCh)
	collector := archive.NewCollector(cityDir, cfg.ID, cfg.Seed, cfg.DayTicks, logger)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ps := <-stateCh:
				if st != nil {
					if err := st.SaveState(ps.Tick, ps.Payload); err != nil {
						n := writeFails.Add(1)
						log.WithError(err).WithField("consecutive_failures", n).Warn("state write failed; retrying next tick")
					} else {
						writeFails.Store(0)
					}
				}
				if _, _, err := collector.Observe(ps.Tick, ps.Payload); err != nil {
					log.WithError(err).Warn("day archive failed")
				}
			}
		}
	}()

	// Decision-maker: external service when configured, otherwise the
	// built-in greedy policy so the fleet still moves.
	var maker bridge.DecisionMaker
	if strings.TrimSpace(*agentURL) != "" {
		maker = bridge.NewHTTPDecisionMaker(*agentURL)
		log.WithField("agent_url", *agentURL).Info("using external decision service")
	} else {
		maker = bridge.NewGreedyPolicy()
		log.Info("no agent_url configured; using built-in policy")
	}
	br := bridge.New(w, queue, maker, tune.AgentPeriod(), logger)
	br.SetDecisionLog(decLog)
	go func() {
		if err := br.Run(ctx); err != nil && err != context.Canceled {
			log.WithError(err).Warn("bridge stopped")
		}
	}()

	go func() {
		if err := w.Run(ctx); err != nil && err != context.Canceled {
			log.WithError(err).Warn("city stopped")
		}
	}()

	srv := stream.NewServer(w, pinger(st), &writeFails, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", srv.HealthHandler())
	mux.HandleFunc("/metrics", metricsHandler(w, cfg.ID, &writeFails))
	mux.HandleFunc("/v1/state", srv.StateHandler())
	mux.HandleFunc("/v1/actions", srv.ActionsHandler())
	mux.HandleFunc("/v1/stream", srv.StreamHandler())

	httpSrv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = httpSrv.Shutdown(ctx2)
	}()

	log.WithFields(logrus.Fields{"addr": *addr, "city": cfg.ID}).Info("listening")
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Fatal("ListenAndServe")
	}
}

// pinger keeps the nil store out of the non-nil interface trap.
func pinger(st *store.Store) stream.Pinger {
	if st == nil {
		return nil
	}
	return st
}

func metricsHandler(w *city.World, cityID string, writeFails *atomic.Int64) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		m := w.Metrics()
		tick := w.CurrentTick()
		if m.Tick != 0 {
			tick = m.Tick
		}

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP fleetfeast_city_tick Current simulation tick.\n")
		fmt.Fprintf(rw, "# TYPE fleetfeast_city_tick gauge\n")
		fmt.Fprintf(rw, "fleetfeast_city_tick{city=%q} %d\n", cityID, tick)

		fmt.Fprintf(rw, "# HELP fleetfeast_city_subscribers Connected snapshot subscribers.\n")
		fmt.Fprintf(rw, "# TYPE fleetfeast_city_subscribers gauge\n")
		fmt.Fprintf(rw, "fleetfeast_city_subscribers{city=%q} %d\n", cityID, m.Subscribers)

		fmt.Fprintf(rw, "# HELP fleetfeast_city_step_ms Last tick step duration in milliseconds.\n")
		fmt.Fprintf(rw, "# TYPE fleetfeast_city_step_ms gauge\n")
		fmt.Fprintf(rw, "fleetfeast_city_step_ms{city=%q} %.3f\n", cityID, m.StepMS)

		fmt.Fprintf(rw, "# HELP fleetfeast_city_actions_drained Actions drained on the last tick.\n")
		fmt.Fprintf(rw, "# TYPE fleetfeast_city_actions_drained gauge\n")
		fmt.Fprintf(rw, "fleetfeast_city_actions_drained{city=%q} %d\n", cityID, m.ActionsDrained)

		fmt.Fprintf(rw, "# HELP fleetfeast_city_actions_rejected Actions rejected on the last tick.\n")
		fmt.Fprintf(rw, "# TYPE fleetfeast_city_actions_rejected gauge\n")
		fmt.Fprintf(rw, "fleetfeast_city_actions_rejected{city=%q} %d\n", cityID, m.ActionsRejected)

		fmt.Fprintf(rw, "# HELP fleetfeast_fleet_revenue Cumulative fleet revenue.\n")
		fmt.Fprintf(rw, "# TYPE fleetfeast_fleet_revenue gauge\n")
		fmt.Fprintf(rw, "fleetfeast_fleet_revenue{city=%q} %.2f\n", cityID, m.FleetRevenue)

		fmt.Fprintf(rw, "# HELP fleetfeast_state_write_failures Consecutive shared-state write failures.\n")
		fmt.Fprintf(rw, "# TYPE fleetfeast_state_write_failures gauge\n")
		fmt.Fprintf(rw, "fleetfeast_state_write_failures{city=%q} %d\n", cityID, writeFails.Load())
	}
}

// applyEnvOverrides lets deployments adjust periods without editing the
// config file. All are read once at startup.
func applyEnvOverrides(t *tuning.Tuning) {
	if v := envInt("FLEET_TICK_MS", 0); v > 0 {
		t.TickPeriodMS = v
	}
	if v := envInt("FLEET_AGENT_MS", 0); v > 0 {
		t.AgentPeriodMS = v
	}
	if v := envInt("FLEET_DAY_TICKS", 0); v > 0 {
		t.DayTicks = v
	}
	if v := envInt("FLEET_SEED", 0); v != 0 {
		t.Seed = int64(v)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func envStr(name, def string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return def
}

func envInt(name string, def int) int {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envBool(name string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(name)))
	switch v {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
