package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/materia-group/blueline/internal/config"
	"github.com/materia-group/blueline/internal/eligibility"
	"github.com/materia-group/blueline/internal/model"
	"github.com/materia-group/blueline/internal/service"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the reconciliation HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(e, cfg.Server),
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func newRouter(e *env, serverCfg config.ServerConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: serverCfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/materials", func(w http.ResponseWriter, req *http.Request) {
			materials, err := e.Store.ListMaterials(req.Context())
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, materials)
		})

		r.Post("/submissions", func(w http.ResponseWriter, req *http.Request) {
			var sub service.Submission
			if err := json.NewDecoder(req.Body).Decode(&sub); err != nil {
				writeError(w, http.StatusBadRequest, eris.New("invalid request body"))
				return
			}
			result, err := e.Service.IngestSubmission(req.Context(), &sub)
			if err != nil {
				var elErr *eligibility.Error
				if errors.As(err, &elErr) && result != nil {
					// The gate blocked the rebuild after the report and
					// composition were persisted. The caller gets both.
					writeJSON(w, http.StatusConflict, map[string]any{
						"error":   elErr.Error(),
						"reasons": elErr.Reasons,
						"result":  result,
					})
					return
				}
				writeServiceError(w, err)
				return
			}
			status := http.StatusOK
			if !result.Accepted {
				status = http.StatusUnprocessableEntity
			}
			writeJSON(w, status, result)
		})

		r.Get("/records/{materialID}", func(w http.ResponseWriter, req *http.Request) {
			record, err := e.Store.GetCanonicalRecord(req.Context(),
				chi.URLParam(req, "materialID"), req.URL.Query().Get("supplier"))
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			if record == nil {
				writeError(w, http.StatusNotFound, eris.New("record not found"))
				return
			}
			writeJSON(w, http.StatusOK, record)
		})

		r.Post("/records/{materialID}/resolve", func(w http.ResponseWriter, req *http.Request) {
			record, err := e.Service.ResolveCanonicalRecord(req.Context(),
				chi.URLParam(req, "materialID"),
				req.URL.Query().Get("supplier"),
				req.URL.Query().Get("force") == "true")
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, record)
		})

		r.Put("/records/{materialID}/fields/{fieldID}", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				Value string `json:"value"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeError(w, http.StatusBadRequest, eris.New("invalid request body"))
				return
			}
			record, err := e.Service.SetManualField(req.Context(),
				chi.URLParam(req, "materialID"),
				req.URL.Query().Get("supplier"),
				chi.URLParam(req, "fieldID"),
				body.Value)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, record)
		})

		r.Get("/eligibility/{materialID}", func(w http.ResponseWriter, req *http.Request) {
			el, err := e.Service.CheckEligibility(req.Context(),
				chi.URLParam(req, "materialID"), req.URL.Query().Get("supplier"))
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, el)
		})

		r.Post("/compositions/compare", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				A string `json:"a"`
				B string `json:"b"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeError(w, http.StatusBadRequest, eris.New("invalid request body"))
				return
			}
			result, err := e.Service.CompareCompositions(req.Context(), body.A, body.B)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, result)
		})

		r.Post("/compositions/average", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				A string `json:"a"`
				B string `json:"b"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeError(w, http.StatusBadRequest, eris.New("invalid request body"))
				return
			}
			record, warn, err := e.Service.AverageCompositions(req.Context(), body.A, body.B)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"composition": record,
				"warning":     warn,
			})
		})

		r.Post("/compositions/{id}/promote", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				Source     string                      `json:"source"`
				Components []model.IngredientComponent `json:"components"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeError(w, http.StatusBadRequest, eris.New("invalid request body"))
				return
			}
			record, err := e.Service.PromoteComposition(req.Context(),
				chi.URLParam(req, "id"), body.Components, body.Source)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, record)
		})

		r.Get("/materials/{materialID}/coherence", func(w http.ResponseWriter, req *http.Request) {
			reports, err := e.Store.ListCoherenceReports(req.Context(), chi.URLParam(req, "materialID"))
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, reports)
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// writeServiceError maps service errors to HTTP statuses: unknown entities
// to 404, eligibility refusals to 409, everything else to 500.
func writeServiceError(w http.ResponseWriter, err error) {
	var elErr *eligibility.Error
	switch {
	case eris.Is(err, service.ErrMaterialNotFound), eris.Is(err, service.ErrCompositionNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.As(err, &elErr):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":   elErr.Error(),
			"reasons": elErr.Reasons,
		})
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
