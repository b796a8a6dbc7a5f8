package mcpserver

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
	TransportSSE   = "sse"
)

const shutdownTimeout = 5 * time.Second

// ListenOptions select how Run serves the MCP protocol.
type ListenOptions struct {
	Transport string
	Addr      string
	// APIKey, when set, is required as a bearer token on the MCP routes.
	APIKey string
	// Ready is called with the bound address once an HTTP listener is up.
	Ready func(addr string)
}

// Run serves until ctx is cancelled or the client disconnects.
func (s *Server) Run(ctx context.Context, opts ListenOptions) error {
	switch opts.Transport {
	case "", TransportStdio:
		s.logger.Info("serving over stdio", "tools", len(s.names))
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	case TransportHTTP, TransportSSE:
		return s.listenAndServe(ctx, opts)
	default:
		return fmt.Errorf("unknown transport %q", opts.Transport)
	}
}

// Handler returns the HTTP routes for the streamable HTTP or SSE transport:
// the MCP endpoint plus /healthz.
func (s *Server) Handler(transport, apiKey string) http.Handler {
	getServer := func(*http.Request) *mcp.Server { return s.mcp }

	mux := http.NewServeMux()
	switch transport {
	case TransportSSE:
		mux.Handle("/sse", requireBearer(apiKey, mcp.NewSSEHandler(getServer, nil)))
	default:
		mux.Handle("/mcp", requireBearer(apiKey, mcp.NewStreamableHTTPHandler(getServer, nil)))
	}
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"server":    Name,
			"version":   Version,
			"transport": transport,
			"tools":     len(s.names),
		})
	})
	return mux
}

func (s *Server) listenAndServe(ctx context.Context, opts ListenOptions) error {
	listener, err := net.Listen("tcp", opts.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", opts.Addr, err)
	}
	defer listener.Close()

	httpServer := &http.Server{
		Handler:           s.Handler(opts.Transport, opts.APIKey),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(listener)
	}()

	addr := listener.Addr().String()
	s.logger.Info("serving over http", "transport", opts.Transport, "addr", addr, "auth", opts.APIKey != "")
	if opts.Ready != nil {
		opts.Ready(addr)
	}

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func requireBearer(apiKey string, next http.Handler) http.Handler {
	if apiKey == "" {
		return next
	}
	want := []byte("Bearer " + apiKey)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := []byte(strings.TrimSpace(r.Header.Get("Authorization")))
		if subtle.ConstantTimeCompare(got, want) != 1 {
			w.Header().Set("WWW-Authenticate", `Bearer realm="virtmcp"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
