package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/docannex/annosync/internal/apiclient"
	"github.com/docannex/annosync/internal/httpapi"
	"github.com/docannex/annosync/internal/syncer"
)

// The bridge terminates viewer websocket connections and reconciles their
// annotation events against the annosync REST API. It is trusted with the
// session secret so it can mint a session for the connecting user.
func main() {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	addr := os.Getenv("ANNOSYNC_BRIDGE_ADDR")
	if addr == "" {
		addr = ":8091"
	}
	apiURL := os.Getenv("ANNOSYNC_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8090"
	}
	secret := os.Getenv("ANNOSYNC_SESSION_SECRET")
	if secret == "" {
		logger.Fatal().Msg("ANNOSYNC_SESSION_SECRET is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	router := chi.NewRouter()
	router.Get("/ws/documents/{docID}", func(w http.ResponseWriter, r *http.Request) {
		docID, err := strconv.ParseInt(chi.URLParam(r, "docID"), 10, 64)
		if err != nil || docID <= 0 {
			http.Error(w, "docID must be a positive integer", http.StatusBadRequest)
			return
		}
		user := r.URL.Query().Get("user")
		if user == "" {
			http.Error(w, "user is required", http.StatusBadRequest)
			return
		}
		connLogger := logger.With().
			Str("conn", uuid.NewString()).
			Int64("doc", docID).
			Str("user", user).
			Logger()

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			connLogger.Warn().Err(err).Msg("websocket accept failed")
			return
		}
		defer conn.Close(websocket.StatusInternalError, "bridge shutting down")

		client, err := newAPIClient(apiURL, secret, user, r.URL.Query().Get("name"), connLogger)
		if err != nil {
			connLogger.Error().Err(err).Msg("api client setup failed")
			conn.Close(websocket.StatusInternalError, "backend unavailable")
			return
		}

		bridge := syncer.NewBridge(conn, docID, connLogger)
		reconciler := syncer.New(client, bridge, connLogger)

		connCtx := r.Context()
		if err := bridge.Hydrate(connCtx, client); err != nil {
			connLogger.Error().Err(err).Msg("hydrate failed")
			conn.Close(websocket.StatusInternalError, "hydrate failed")
			return
		}
		go func() {
			if err := bridge.ReadLoop(connCtx); err != nil {
				connLogger.Debug().Err(err).Msg("read loop ended")
			}
		}()
		if err := reconciler.Run(connCtx, bridge.Events()); err != nil {
			connLogger.Debug().Err(err).Msg("reconciler ended")
		}
		conn.Close(websocket.StatusNormalClosure, "")
	})

	httpServer := &http.Server{Addr: addr, Handler: router}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", addr).Str("api", apiURL).Msg("annosync bridge listening")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal().Err(err).Msg("bridge failed")
	}
}

func newAPIClient(apiURL, secret, user, displayName string, logger zerolog.Logger) (*apiclient.Client, error) {
	client, err := apiclient.New(apiclient.Options{BaseURL: apiURL, Logger: logger})
	if err != nil {
		return nil, err
	}
	session, err := httpapi.MintSession(secret, httpapi.Session{
		User:        user,
		DisplayName: displayName,
		Exp:         time.Now().Add(12 * time.Hour).Unix(),
	})
	if err != nil {
		return nil, err
	}
	client.SetCookies(
		&http.Cookie{Name: httpapi.SessionCookieName, Value: session},
		&http.Cookie{Name: httpapi.CSRFCookieName, Value: httpapi.NewCSRFToken()},
	)
	return client, nil
}
