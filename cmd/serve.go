package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/crestway-partners/leadscout/internal/evidence"
	"github.com/crestway-partners/leadscout/internal/export"
	"github.com/crestway-partners/leadscout/internal/model"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for dashboards and the review queue",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		env, err := initPipeline(ctx)
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
			Handler:           newRouter(env),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			_ = srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

// newRouter mounts the API. The surface is read-mostly: the only writes are
// re-validation of a single record and a rule reload, both idempotent.
func newRouter(env *pipelineEnv) chi.Router {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
			snap, err := env.Reporter.Funnel(req.Context())
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, snap)
		})

		r.Get("/businesses", func(w http.ResponseWriter, req *http.Request) {
			filter, err := filterFromQuery(req)
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			businesses, err := env.Store.ListBusinesses(req.Context(), filter)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, businesses)
		})

		r.Get("/businesses/{id}", func(w http.ResponseWriter, req *http.Request) {
			b, err := env.Store.BusinessByID(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				writeError(w, http.StatusNotFound, err)
				return
			}
			writeJSON(w, http.StatusOK, b)
		})

		r.Get("/businesses/{id}/audit", func(w http.ResponseWriter, req *http.Request) {
			trail, err := env.Reporter.Audit(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				writeError(w, http.StatusNotFound, err)
				return
			}
			writeJSON(w, http.StatusOK, trail)
		})

		r.Post("/businesses/{id}/validate", func(w http.ResponseWriter, req *http.Request) {
			id := chi.URLParam(req, "id")
			status, reasons, err := env.Orchestrator.Validate(req.Context(), id)
			if err != nil {
				writeError(w, http.StatusUnprocessableEntity, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"business_id": id,
				"status":      status,
				"reasons":     reasons,
			})
		})

		r.Get("/review", func(w http.ResponseWriter, req *http.Request) {
			limit := 0
			if raw := req.URL.Query().Get("limit"); raw != "" {
				n, err := strconv.Atoi(raw)
				if err != nil {
					writeError(w, http.StatusBadRequest, eris.Errorf("invalid limit %q", raw))
					return
				}
				limit = n
			}
			items, err := env.Reporter.ReviewQueue(req.Context(), limit)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, items)
		})

		r.Post("/rules/reload", func(w http.ResponseWriter, _ *http.Request) {
			if err := env.Rules.Reload(); err != nil {
				writeError(w, http.StatusUnprocessableEntity, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
		})

		r.Get("/export/geojson", func(w http.ResponseWriter, req *http.Request) {
			filter, err := filterFromQuery(req)
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			w.Header().Set("Content-Type", "application/geo+json")
			if _, err := export.WriteGeoJSON(req.Context(), env.Store, w, export.GeoJSONOptions{
				Status: filter.Status,
				City:   filter.City,
				Limit:  filter.Limit,
			}); err != nil {
				// Headers are gone; all we can do is log.
				zap.L().Error("geojson export failed", zap.Error(err))
			}
		})
	})

	return r
}

// filterFromQuery reads the status/city/limit query parameters shared by the
// list and export endpoints.
func filterFromQuery(req *http.Request) (evidence.BusinessFilter, error) {
	var filter evidence.BusinessFilter

	if raw := req.URL.Query().Get("status"); raw != "" {
		status := model.Status(raw)
		if !status.Valid() {
			return filter, eris.Errorf("unknown status %q", raw)
		}
		filter.Status = status
	}
	filter.City = req.URL.Query().Get("city")
	if raw := req.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return filter, eris.Errorf("invalid limit %q", raw)
		}
		filter.Limit = n
	}
	return filter, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("response encode failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
