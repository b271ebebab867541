package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rossycoder/carcatlog-backend/internal/enrich"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the vehicle lookup HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initLookup(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(env, cfg.Server.CORSOrigins),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// newRouter builds the HTTP API. Routes:
//
//	GET    /health
//	GET    /api/v1/vehicles/{plate}?use_cache=&mileage=
//	DELETE /api/v1/vehicles/{plate}/cache
func newRouter(env *lookupEnv, corsOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{"GET", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1/vehicles", func(r chi.Router) {
		r.Get("/{plate}", func(w http.ResponseWriter, req *http.Request) {
			opts := enrich.LookupOptions{UseCache: true}
			if v := req.URL.Query().Get("use_cache"); v != "" {
				useCache, err := strconv.ParseBool(v)
				if err != nil {
					writeJSON(w, http.StatusBadRequest, map[string]string{"error": "use_cache must be a boolean"})
					return
				}
				opts.UseCache = useCache
			}
			if v := req.URL.Query().Get("mileage"); v != "" {
				mileage, err := strconv.Atoi(v)
				if err != nil || mileage <= 0 {
					writeJSON(w, http.StatusBadRequest, map[string]string{"error": "mileage must be a positive integer"})
					return
				}
				opts.Mileage = mileage
			}

			rec, err := env.Orchestrator.Lookup(req.Context(), chi.URLParam(req, "plate"), opts)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
				return
			}
			writeJSON(w, http.StatusOK, rec)
		})

		r.Delete("/{plate}/cache", func(w http.ResponseWriter, req *http.Request) {
			plate, err := enrich.NormalizePlate(chi.URLParam(req, "plate"))
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
				return
			}

			n, err := env.Store.ClearPlate(req.Context(), plate)
			if err != nil {
				zap.L().Error("cache clear failed", zap.String("plate", plate), zap.Error(err))
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cache clear failed"})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"plate": plate, "deleted": n})
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
