package main

import (
	"context"
	"encoding/json"
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

	"github.com/sells-group/enrich-cli/internal/events"
	"github.com/sells-group/enrich-cli/internal/importer"
	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/store"
)

// uploadMaxBytes bounds catalog uploads; exports run a few MB at most.
const uploadMaxBytes = 32 << 20

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long:  "Serves catalog upload, product listing, enrichment triggers, and per-product SSE progress streams.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		api := &apiServer{env: env}

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.Server.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))

		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
		r.Route("/api", func(r chi.Router) {
			r.Post("/upload", api.handleUpload)
			r.Get("/products", api.handleListProducts)
			r.Get("/products/{id}", api.handleGetProduct)
			r.Post("/products/{id}/enrich", api.handleEnrich(ctx))
			r.Post("/products/batch-process", api.handleBatchProcess(ctx))
			r.Get("/events/{id}", api.handleEvents)
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
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

type apiServer struct {
	env *pipelineEnv
}

func (s *apiServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, uploadMaxBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	products, err := importer.Read(file, header.Filename)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if len(products) == 0 {
		writeError(w, http.StatusUnprocessableEntity, "catalog contains no importable rows")
		return
	}

	created, err := s.env.Store.ImportProducts(r.Context(), products)
	if err != nil {
		zap.L().Error("catalog import failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "import failed")
		return
	}

	zap.L().Info("catalog uploaded",
		zap.String("file", header.Filename),
		zap.Int64("created", created))
	writeJSON(w, http.StatusCreated, map[string]any{
		"created": created,
		"rows":    len(products),
	})
}

func (s *apiServer) handleListProducts(w http.ResponseWriter, r *http.Request) {
	filter := store.ProductFilter{
		Status: model.Status(r.URL.Query().Get("status")),
		Brand:  r.URL.Query().Get("brand"),
		EAN:    r.URL.Query().Get("ean"),
		Limit:  100,
	}

	products, err := s.env.Store.ListProducts(r.Context(), filter)
	if err != nil {
		zap.L().Error("list products failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (s *apiServer) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := s.env.Store.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "product not found")
		return
	}
	writeJSON(w, http.StatusOK, product)
}

// handleEnrich triggers an async run for one product. Runs use the server's
// lifetime context rather than the request's, so closing the browser tab
// does not abort the enrichment.
func (s *apiServer) handleEnrich(serverCtx context.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if _, err := s.env.Store.GetProduct(r.Context(), id); err != nil {
			writeError(w, http.StatusNotFound, "product not found")
			return
		}

		go func() {
			if _, err := s.env.Pipeline.Run(serverCtx, id); err != nil {
				zap.L().Warn("async enrichment failed",
					zap.String("product_id", id), zap.Error(err))
			}
		}()

		writeJSON(w, http.StatusAccepted, map[string]string{
			"status":     "accepted",
			"product_id": id,
		})
	}
}

// handleBatchProcess enqueues every pending product sequentially in one
// goroutine, keeping collaborator load identical to the batch command.
func (s *apiServer) handleBatchProcess(serverCtx context.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		products, err := s.env.Store.ListProducts(r.Context(), store.ProductFilter{
			Status: model.StatusPending,
		})
		if err != nil {
			zap.L().Error("list pending products failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "list failed")
			return
		}

		go func() {
			for _, product := range products {
				if serverCtx.Err() != nil {
					return
				}
				if _, err := s.env.Pipeline.Run(serverCtx, product.ID); err != nil {
					zap.L().Warn("batch enrichment failed",
						zap.String("product_id", product.ID), zap.Error(err))
				}
			}
		}()

		writeJSON(w, http.StatusAccepted, map[string]any{
			"status":   "accepted",
			"enqueued": len(products),
		})
	}
}

// handleEvents streams pipeline progress for one product as SSE until the
// client disconnects.
func (s *apiServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	id := chi.URLParam(r, "id")
	ch, cancel := s.env.Bus.Subscribe(events.ProductChannel(id))
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-ch:
			if !open {
				return
			}
			payload, err := events.FormatSSE(ev)
			if err != nil {
				zap.L().Warn("sse encode failed", zap.Error(err))
				continue
			}
			if _, err := fmt.Fprint(w, payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
