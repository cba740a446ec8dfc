package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tonearm/tonearm/internal/consensus"
	"github.com/tonearm/tonearm/internal/model"
	"github.com/tonearm/tonearm/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the debug HTTP API over stored analyses",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		engine, err := buildEngine(cfg)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		analyze := func(ctx context.Context, path string) (*consensus.TrackAnalysis, error) {
			sig, err := newDecoder(cfg).Decode(ctx, path)
			if err != nil {
				return nil, err
			}
			return engine.Analyze(ctx, sig, model.AllFeatures()...)
		}

		router := newRouter(st, analyze)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: router,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(context.Background())
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

// newRouter builds the API routes. The analyze callback is injected so
// handler tests can stub the whole decode+consensus path.
func newRouter(st store.Store, analyze analyzeFunc) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/analyses", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			q := req.URL.Query()
			limit, _ := strconv.Atoi(q.Get("limit"))
			offset, _ := strconv.Atoi(q.Get("offset"))

			list, err := st.ListAnalyses(req.Context(), store.AnalysisFilter{
				PathPrefix: q.Get("prefix"),
				Limit:      limit,
				Offset:     offset,
			})
			if err != nil {
				zap.L().Error("list analyses failed", zap.Error(err))
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list failed"})
				return
			}

			out := make([]analysisOutput, 0, len(list))
			for i := range list {
				out = append(out, newAnalysisOutput(&list[i]))
			}
			writeJSON(w, http.StatusOK, out)
		})

		r.Get("/{id}", func(w http.ResponseWriter, req *http.Request) {
			ta, err := st.GetAnalysis(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					writeJSON(w, http.StatusNotFound, map[string]string{"error": "analysis not found"})
					return
				}
				zap.L().Error("get analysis failed", zap.Error(err))
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "get failed"})
				return
			}
			writeJSON(w, http.StatusOK, newAnalysisOutput(ta))
		})

		r.Get("/{id}/contributions", func(w http.ResponseWriter, req *http.Request) {
			ta, err := st.GetAnalysis(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					writeJSON(w, http.StatusNotFound, map[string]string{"error": "analysis not found"})
					return
				}
				zap.L().Error("get analysis failed", zap.Error(err))
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "get failed"})
				return
			}

			out := map[string][]consensus.Contribution{}
			if ta.Tempo != nil {
				out["tempo"] = ta.Tempo.Contributions
			}
			if ta.Key != nil {
				out["key"] = ta.Key.Contributions
			}
			writeJSON(w, http.StatusOK, out)
		})
	})

	r.Post("/api/analyze", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Path string `json:"path"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.Path == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "path is required"})
			return
		}

		ta, err := analyze(req.Context(), body.Path)
		if err != nil {
			zap.L().Error("analysis failed", zap.String("path", body.Path), zap.Error(err))
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
			return
		}

		if err := st.SaveAnalysis(req.Context(), ta); err != nil {
			zap.L().Error("save failed", zap.String("path", body.Path), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "save failed"})
			return
		}

		writeJSON(w, http.StatusCreated, newAnalysisOutput(ta))
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
