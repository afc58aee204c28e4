package cli

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/provtools/provtrace/pkg/provio"
)

// serveCommand creates the serve command for exposing a captured document
// over HTTP.
func (c *CLI) serveCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve [document]",
		Short: "Serve a captured document over HTTP",
		Long: `Serve exposes a prov.json document on a local HTTP endpoint:

  GET /healthz        liveness probe
  GET /api/manifest   session manifest
  GET /api/graph      full interchange document
  GET /api/graph.svg  rendered graph`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runServe(cmd.Context(), args[0], addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:7777", "listen address")

	return cmd
}

// runServe loads the document, starts the HTTP server, and shuts it down
// when the command context is canceled.
func (c *CLI) runServe(ctx context.Context, path, addr string) error {
	doc, err := provio.ImportJSON(path)
	if err != nil {
		return err
	}
	c.Logger.Infof("Loaded %s: %d nodes, %d edges",
		path, len(doc.Nodes)+len(doc.Data), len(doc.Edges))

	srv := &http.Server{
		Addr:              addr,
		Handler:           c.newServeHandler(doc),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	c.Logger.Infof("Serving on http://%s", addr)
	printNextStep("Open the graph", "http://"+addr+"/api/graph.svg")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		c.Logger.Info("Server stopped")
		return nil
	}
}

// newServeHandler builds the router for a loaded document. The SVG is
// rendered on first request and cached for the server's lifetime.
func (c *CLI) newServeHandler(doc *provio.Document) http.Handler {
	var (
		svgOnce sync.Once
		svg     []byte
		svgErr  error
	)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(c.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/api/manifest", func(w http.ResponseWriter, _ *http.Request) {
		writeManifest(w, doc)
	})

	r.Get("/api/graph", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := provio.WriteJSON(doc, w); err != nil {
			c.Logger.Error("write document", "err", err)
		}
	})

	r.Get("/api/graph.svg", func(w http.ResponseWriter, _ *http.Request) {
		svgOnce.Do(func() {
			g, err := doc.ToGraph()
			if err != nil {
				svgErr = err
				return
			}
			svg, svgErr = provio.RenderSVG(provio.ToDOT(g))
		})
		if svgErr != nil {
			http.Error(w, svgErr.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/svg+xml")
		_, _ = w.Write(svg)
	})

	return r
}

// writeManifest responds with only the manifest part of the document.
func writeManifest(w http.ResponseWriter, doc *provio.Document) {
	w.Header().Set("Content-Type", "application/json")
	slim := &provio.Document{Manifest: doc.Manifest}
	_ = provio.WriteJSON(slim, w)
}

// logRequests is a minimal request-logging middleware on the CLI logger.
func (c *CLI) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		c.Logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"dur", time.Since(start).Round(time.Microsecond),
		)
	})
}
