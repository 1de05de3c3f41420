package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tickget/roomsession/go/clients/tickget_api_client"
	"github.com/tickget/roomsession/go/internal/room/session"
	"github.com/tickget/roomsession/go/internal/room/subscription"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := loadConfig(getEnv("CONFIG_PATH", ""))
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	log.Info().
		Int64("room_id", cfg.Room.ID).
		Int64("user_id", cfg.Room.UserID).
		Str("api_url", cfg.API.BaseURL).
		Str("feed", cfg.Feed.Transport).
		Str("port", cfg.Server.Port).
		Msg("starting room session agent")

	transport, closeTransport, err := connectFeed(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect event feed")
	}
	defer closeTransport()

	clock := clockwork.NewRealClock()
	manager := subscription.NewManager(transport, clock, subscription.DefaultConfig())

	api := tickget_api_client.NewTickgetClient(cfg.API.BaseURL, cfg.API.AuthToken)
	shell := newHeadlessShell(session.NavigationNavigate)
	store := session.NewMemoryStore()

	ctrl, err := session.New(session.Config{
		RoomID:     cfg.Room.ID,
		UserID:     cfg.Room.UserID,
		UserName:   cfg.Room.UserName,
		Clock:      clock,
		API:        api,
		Shell:      shell,
		Store:      store,
		Subscriber: manager,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create session controller")
	}

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := ctrl.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start session")
	}

	server := setupServer(cfg.Server.Port, ctrl, shell)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	cancel()
	ctrl.Close()

	log.Info().Msg("room session agent shutdown complete")
}

// connectFeed dials the configured event feed and returns it as the generic
// subscription transport plus its close function.
func connectFeed(cfg *Config) (subscription.Transport, func(), error) {
	switch cfg.Feed.Transport {
	case "websocket":
		t, err := subscription.DialWebSocket(subscription.DefaultWebSocketConfig(cfg.Feed.WebSocketURL))
		if err != nil {
			return nil, nil, err
		}
		return t, t.Close, nil
	case "nats", "":
		natsCfg := subscription.DefaultNATSConfig()
		natsCfg.URL = cfg.NATS.URL
		t, err := subscription.ConnectNATS(natsCfg)
		if err != nil {
			return nil, nil, err
		}
		return t, t.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown feed transport %q", cfg.Feed.Transport)
	}
}

func setupServer(port string, ctrl *session.Controller, shell *headlessShell) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	mux.HandleFunc("/state", func(w http.ResponseWriter, r *http.Request) {
		state := ctrl.Snapshot()
		guard := ctrl.GuardSnapshot()
		gateAt, gateOpened := ctrl.GateOpened()

		out := map[string]any{
			"roomId":        state.RoomID,
			"phase":         state.Phase,
			"roster":        state.DisplayRoster(),
			"hostUserId":    state.HostUserID,
			"capacity":      state.Capacity,
			"queueStatus":   state.QueueStatus,
			"queueBaseline": state.QueueBaseline,
			"matchId":       state.MatchID,
			"secondsLeft":   ctrl.SecondsLeft(),
			"gateOpened":    gateOpened,
			"exitReason":    guard.ExitReason,
			"location":      shell.Location(),
		}
		if gateOpened {
			out["gateOpenedAt"] = gateAt
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(out); err != nil {
			log.Error().Err(err).Msg("failed to encode state")
		}
	})

	mux.HandleFunc("/exit", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		exited := ctrl.RequestExit()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"exited":%t}`, exited)
	})

	mux.HandleFunc("/reserve", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		dest, err := ctrl.ReserveClicked()
		if err != nil {
			w.WriteHeader(http.StatusBadGateway)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"dest":%q}`, dest)
	})

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	return &http.Server{
		Addr:         fmt.Sprintf(":%s", port),
		Handler:      c.Handler(mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}
