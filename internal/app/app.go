// Package app wires every component this module builds into one running
// server: the directory (room/relay/state registries), the message router,
// the connection monitor, the optional recorder/audit trail/VoIP gateway,
// the embedded STUN/TURN servers, the admin API, and the primary net/http
// server exposing the signaling and monitoring endpoints. Grounded on
// internal/app/app.go: a single App struct built by New and started by Run,
// negroni as the net/http middleware stack, and graceful shutdown on
// SIGINT/SIGTERM.
package app

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
	"github.com/pion/logging"
	"github.com/urfave/negroni/v3"
	nhws "nhooyr.io/websocket"

	"sfu-conference/internal/adminapi"
	"sfu-conference/internal/audit"
	"sfu-conference/internal/config"
	"sfu-conference/internal/directory"
	"sfu-conference/internal/media"
	"sfu-conference/internal/monitor"
	"sfu-conference/internal/recorder"
	"sfu-conference/internal/recovery"
	"sfu-conference/internal/room"
	"sfu-conference/internal/router"
	"sfu-conference/internal/session"
	"sfu-conference/internal/state"
	"sfu-conference/internal/stunserver"
	"sfu-conference/internal/transport"
	"sfu-conference/internal/turncred"
	"sfu-conference/internal/turnserver"
	"sfu-conference/internal/voip"
)

const writeDeadline = 5 * time.Second

// App holds every live component started by New.
type App struct {
	cfg *config.Config
	log logging.LeveledLogger

	dir     *directory.Directory
	router  *router.Router
	mon     *monitor.Monitor
	rec     *recorder.Recorder
	trail   *audit.Trail
	credGen turncred.Generator

	gorillaUpgrader websocket.Upgrader

	turnSrv *turnserver.Server
	stunSrv *stunserver.Server
	voipGW  *voip.Gateway

	adminAddr string
	adminApp  *fiber.App

	httpServer *http.Server

	monitorUnsubscribe func()
	livenessStop       func()
}

// New builds every component from cfg but starts no listeners; Run does
// that. It does start the registries' own sweep goroutines and the router's
// 2s liveness validator, since both need to be running before the first
// session can be accepted.
func New(cfg *config.Config) (*App, error) {
	log := buildLogger(cfg)

	states := state.NewMachine()
	relays := media.NewRegistry(log)
	rooms := room.NewRegistry()
	mon := monitor.New(60 * time.Second)

	iceCfg := media.ICEConfig{
		StunURLs:       []string{"stun:" + joinHostPort(cfg.StunServer, cfg.StunPort)},
		TurnURLs:       []string{"turn:" + joinHostPort(cfg.TurnServer, cfg.TurnPort)},
		TurnUsername:   cfg.TurnUser,
		TurnCredential: cfg.TurnPass,
	}

	defaultSettings := room.DefaultSettings()
	defaultSettings.RecordingEnabled = cfg.RecordingEnabled

	dir := directory.New(relays, rooms, states, mon, iceCfg, defaultSettings, log)

	var rec *recorder.Recorder
	var recorderIface router.Recorder
	if cfg.RecordingEnabled {
		rec = recorder.New(cfg.RecordingPath, log)
		recorderIface = rec
	}

	trail, err := audit.Open(cfg.DatabaseURL, log)
	if err != nil {
		return nil, err
	}

	rt := router.New(dir, recorderIface, trail, log)

	unsubscribe := wireMonitor(states, mon)
	livenessStop := rt.StartLivenessValidator(2 * time.Second)

	a := &App{
		cfg:    cfg,
		log:    log,
		dir:    dir,
		router: rt,
		mon:    mon,
		rec:    rec,
		trail:  trail,
		credGen: turncred.Generator{
			StunServer:     cfg.StunServer,
			StunPort:       cfg.StunPort,
			TurnServer:     cfg.TurnServer,
			TurnPort:       cfg.TurnPort,
			StaticUsername: cfg.TurnUser,
			StaticPassword: cfg.TurnPass,
		},
		gorillaUpgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		adminAddr:          cfg.AdminAddr,
		monitorUnsubscribe: unsubscribe,
		livenessStop:       livenessStop,
	}

	a.adminApp = adminapi.New(adminapi.Config{
		Addr:      cfg.AdminAddr,
		APIKey:    cfg.AdminAPIKey,
		JWTSecret: cfg.AdminJWTSecret,
	}, rooms, trail, log)

	return a, nil
}

// wireMonitor subscribes to every accepted state transition and mirrors it
// into mon, returning a func that unsubscribes and waits for the mirroring
// goroutine to drain.
func wireMonitor(states *state.Machine, mon *monitor.Monitor) func() {
	ch := states.Subscribe(64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for t := range ch {
			if t.From == "" {
				mon.Register(t.PeerID)
			}
			mon.UpdateState(t.PeerID, t.To)
		}
	}()
	return func() {
		states.Unsubscribe(ch)
		<-done
	}
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// Run starts the embedded STUN/TURN servers (and VoIP gateway, if
// configured), the admin API, and the primary HTTP server, then blocks
// until a shutdown signal arrives.
func (a *App) Run() error {
	var err error
	a.stunSrv, err = stunserver.Start(joinHostPort(a.cfg.StunServer, a.cfg.StunPort), a.log)
	if err != nil {
		return err
	}

	a.turnSrv, err = turnserver.Start(turnserver.Config{
		ListenAddr: a.cfg.TurnServer,
		Port:       a.cfg.TurnPort,
		PublicIP:   a.cfg.TurnServer,
		Realm:      "sfu-conference",
		Username:   a.cfg.TurnUser,
		Password:   a.cfg.TurnPass,
	}, a.log)
	if err != nil {
		a.log.Warnf("turnserver: failed to start, continuing without embedded TURN: %v", err)
	}

	if a.cfg.SIPBindAddress != "" {
		a.voipGW, err = voip.Start(voip.Config{
			BindAddress: a.cfg.SIPBindAddress,
			Port:        a.cfg.SIPPort,
			Domain:      a.cfg.SIPDomain,
		}, a.log)
		if err != nil {
			a.log.Warnf("voip: failed to start gateway, continuing without it: %v", err)
		}
	}

	mux := http.NewServeMux()
	a.registerRoutes(mux)

	n := negroni.New()
	n.Use(negroni.HandlerFunc(func(w http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
		recovery.RecoveryMiddleware(a.log, next).ServeHTTP(w, r)
	}))
	n.UseHandler(mux)

	a.httpServer = &http.Server{
		Addr:         a.cfg.Addr,
		Handler:      n,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		a.log.Infof("http: listening on %s", a.cfg.Addr)
		serverErrors <- a.httpServer.ListenAndServe()
	}()

	adminErrors := make(chan error, 1)
	go func() {
		a.log.Infof("adminapi: listening on %s", a.adminAddr)
		adminErrors <- a.adminApp.Listen(a.adminAddr)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		a.log.Infof("received signal %v, shutting down", sig)
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			a.log.Errorf("http server error: %v", err)
			return err
		}
	case err := <-adminErrors:
		if err != nil {
			a.log.Errorf("admin server error: %v", err)
			return err
		}
	}

	return a.shutdown()
}

func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if a.httpServer != nil {
		if err := a.httpServer.Shutdown(ctx); err != nil {
			a.log.Errorf("http server shutdown error: %v", err)
		}
	}
	if a.adminApp != nil {
		if err := a.adminApp.ShutdownWithContext(ctx); err != nil {
			a.log.Errorf("admin server shutdown error: %v", err)
		}
	}
	if a.turnSrv != nil {
		recovery.SafeCloser(a.log, a.turnSrv.Close, "turnserver")
	}
	if a.stunSrv != nil {
		recovery.SafeCloser(a.log, a.stunSrv.Close, "stunserver")
	}
	if a.voipGW != nil {
		recovery.SafeCloser(a.log, a.voipGW.Close, "voip gateway")
	}
	if a.livenessStop != nil {
		a.livenessStop()
	}
	if a.monitorUnsubscribe != nil {
		a.monitorUnsubscribe()
	}
	if a.trail != nil {
		recovery.SafeCloser(a.log, a.trail.Close, "audit trail")
	}

	a.log.Infof("shutdown complete")
	return nil
}

func (a *App) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", a.handleGorillaWS)
	mux.HandleFunc("/ws2", a.handleNhooyrWS)
	mux.HandleFunc("/monitoring/ws", a.handleMonitoringWS)
	mux.HandleFunc("/api/turn-credentials", a.handleTurnCredentials)
	mux.HandleFunc("/debug/media-stats", a.handleMediaStats)
	mux.HandleFunc("/debug/connection-states", a.handleConnectionStates)
	mux.HandleFunc("/monitoring/metrics", a.handleMonitoringMetrics)
	mux.HandleFunc("/monitoring/alerts", a.handleMonitoringAlerts)
	mux.HandleFunc("/health", a.handleHealth)
}

func (a *App) handleGorillaWS(w http.ResponseWriter, r *http.Request) {
	conn, err := a.gorillaUpgrader.Upgrade(w, r, nil)
	if err != nil {
		a.log.Errorf("ws: upgrade failed: %v", err)
		return
	}
	handle := transport.NewGorillaHandle(conn, writeDeadline)
	sess := session.New(handle, handle, a.router, a.log)
	go sess.Run()
}

func (a *App) handleNhooyrWS(w http.ResponseWriter, r *http.Request) {
	conn, err := nhws.Accept(w, r, &nhws.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		a.log.Errorf("ws2: accept failed: %v", err)
		return
	}
	handle := transport.NewNhooyrHandle(conn, writeDeadline)
	sess := session.New(handle, handle, a.router, a.log)
	go sess.Run()
}

func (a *App) handleMonitoringWS(w http.ResponseWriter, r *http.Request) {
	conn, err := nhws.Accept(w, r, &nhws.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		a.log.Errorf("monitoring/ws: accept failed: %v", err)
		return
	}
	defer conn.Close(nhws.StatusNormalClosure, "closing")

	ch := a.dir.States.Subscribe(32)
	defer a.dir.States.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case t, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(t)
			if err != nil {
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, writeDeadline)
			err = conn.Write(wctx, nhws.MessageText, data)
			cancel()
			if err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) handleTurnCredentials(w http.ResponseWriter, r *http.Request) {
	creds := a.credGen.Generate(time.Now())
	writeJSON(w, http.StatusOK, creds)
}

type mediaStatsEntry struct {
	PeerID string           `json:"peer_id"`
	Stats  mediaStatsFields `json:"stats"`
}

type mediaStatsFields struct {
	PacketsReceived uint64 `json:"packets_received"`
	PacketsSent     uint64 `json:"packets_sent"`
	BytesReceived   uint64 `json:"bytes_received"`
	BytesSent       uint64 `json:"bytes_sent"`
	LastUpdatedSecs int64  `json:"last_updated_secs"`
}

func (a *App) handleMediaStats(w http.ResponseWriter, r *http.Request) {
	snapshot := a.dir.Relays.Snapshot()
	out := make([]mediaStatsEntry, 0, len(snapshot))
	now := time.Now()
	for peerID, relay := range snapshot {
		s := relay.Stats()
		out = append(out, mediaStatsEntry{
			PeerID: peerID,
			Stats: mediaStatsFields{
				PacketsReceived: s.PacketsReceived,
				PacketsSent:     s.PacketsSent,
				BytesReceived:   s.BytesReceived,
				BytesSent:       s.BytesSent,
				LastUpdatedSecs: int64(now.Sub(s.UpdatedAt).Seconds()),
			},
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *App) handleConnectionStates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.dir.States.All())
}

func (a *App) handleMonitoringMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.mon.GetMetrics())
}

func (a *App) handleMonitoringAlerts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.mon.CheckForAlerts())
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func buildLogger(cfg *config.Config) logging.LeveledLogger {
	factory := logging.NewDefaultLoggerFactory()
	switch cfg.LogLevel {
	case "debug":
		factory.DefaultLogLevel = logging.LogLevelDebug
	case "warn":
		factory.DefaultLogLevel = logging.LogLevelWarn
	case "error":
		factory.DefaultLogLevel = logging.LogLevelError
	default:
		factory.DefaultLogLevel = logging.LogLevelInfo
	}
	return factory.NewLogger("sfu-conference")
}
