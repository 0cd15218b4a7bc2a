package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
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
	"golang.org/x/time/rate"

	"github.com/sells-group/saleready-cli/internal/config"
	"github.com/sells-group/saleready-cli/internal/ingest"
	"github.com/sells-group/saleready-cli/internal/lineage"
	"github.com/sells-group/saleready-cli/internal/metrics"
	"github.com/sells-group/saleready-cli/internal/model"
	"github.com/sells-group/saleready-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the metrics computation HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		limiter := rate.NewLimiter(rate.Limit(cfg.Server.RateLimit), cfg.Server.RateBurst)
		handler := newRouter(st, cfg.Analysis, limiter)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
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

// newRouter builds the API surface. Computation runs asynchronously; the
// compute endpoint answers 202 with the queued run ID.
func newRouter(st store.Store, analysis config.AnalysisConfig, limiter *rate.Limiter) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.Recoverer,
		cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}),
		rateLimit(limiter),
	)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeResponse(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/api/compute", func(w http.ResponseWriter, req *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, req.Body, 16<<20))
		if err != nil {
			writeError(w, http.StatusBadRequest, "request body too large or unreadable")
			return
		}

		deal, err := ingest.ParseJSON(body, "api-deal")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid deal document")
			return
		}

		run, err := st.CreateRun(req.Context(), deal.Name)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "create run")
			return
		}

		go executeRun(st, analysis, deal, run.ID)

		writeResponse(w, http.StatusAccepted, map[string]string{
			"run_id": run.ID,
			"deal":   deal.Name,
			"status": string(model.RunStatusQueued),
		})
	})

	r.Get("/api/runs", func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		limit, _ := strconv.Atoi(q.Get("limit"))

		runs, err := st.ListRuns(req.Context(), store.RunFilter{
			Status: model.RunStatus(q.Get("status")),
			Deal:   q.Get("deal"),
			Limit:  limit,
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, "list runs")
			return
		}
		if runs == nil {
			runs = []model.Run{}
		}
		writeResponse(w, http.StatusOK, runs)
	})

	r.Get("/api/runs/{id}", func(w http.ResponseWriter, req *http.Request) {
		run, err := st.GetRun(req.Context(), chi.URLParam(req, "id"))
		if err != nil {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		writeResponse(w, http.StatusOK, run)
	})

	r.Get("/api/runs/{id}/lineage", func(w http.ResponseWriter, req *http.Request) {
		id := chi.URLParam(req, "id")
		if _, err := st.GetRun(req.Context(), id); err != nil {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		export, err := st.GetLineage(req.Context(), id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "load lineage")
			return
		}
		writeResponse(w, http.StatusOK, export)
	})

	return r
}

// executeRun computes one queued deal in the background and records the
// outcome. The request context is gone by the time this runs.
func executeRun(st store.Store, analysis config.AnalysisConfig, deal *ingest.Deal, runID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := st.UpdateRunStatus(ctx, runID, model.RunStatusRunning); err != nil {
		zap.L().Error("mark run running", zap.String("run_id", runID), zap.Error(err))
		return
	}

	analysis = analysis.Merge(deal.Analysis)

	tracker := lineage.New()
	bundle, err := metrics.New(analysis, tracker).Compute(deal.Statements, deal.Ledger, deal.Equipment)
	if err != nil {
		zap.L().Error("run failed", zap.String("run_id", runID), zap.Error(err))
		if ferr := st.FailRun(ctx, runID, err); ferr != nil {
			zap.L().Error("record run failure", zap.String("run_id", runID), zap.Error(ferr))
		}
		return
	}

	export := tracker.Export()
	if err := st.FinishRun(ctx, runID, bundle, &export); err != nil {
		zap.L().Error("store run result", zap.String("run_id", runID), zap.Error(err))
		return
	}

	zap.L().Info("run complete",
		zap.String("run_id", runID),
		zap.String("deal", deal.Name),
		zap.Int("lineage_records", export.Summary.TotalRecords),
	)
}

// rateLimit rejects requests above the configured sustained rate with 429.
func rateLimit(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if limiter != nil && !limiter.Allow() {
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

func writeResponse(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeResponse(w, code, map[string]string{"error": msg})
}
