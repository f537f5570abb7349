// ABOUTME: HTTP surface: /rpc, /health, /health/ready, /metrics, /docs.
// ABOUTME: The RPC body is capped at the envelope size limit; latency is logged per request.

package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yuin/goldmark"

	"github.com/2389/drawbridge/internal/assets"
	"github.com/2389/drawbridge/internal/config"
	"github.com/2389/drawbridge/internal/envelope"
)

func (g *Gateway) buildMux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/rpc", g.handleRPC)
	mux.HandleFunc("/rpc/ws", g.handleWS)

	// Health endpoints carry no auth; probes and the forwarding client's
	// health checks hit them.
	mux.HandleFunc("/health", g.handleHealth)
	mux.HandleFunc("/health/ready", g.handleReady)

	mux.HandleFunc("/docs", g.handleDocs)

	if g.promRegistry != nil {
		path := g.config.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		mux.Handle(path, promhttp.HandlerFor(g.promRegistry, promhttp.HandlerOpts{}))
	}

	return mux
}

// handleRPC is the main surface: one envelope in, one envelope out. Every
// outcome is a 200 with a response envelope; HTTP status codes are reserved
// for conditions where no envelope exists yet (method, auth, rate, size).
func (g *Gateway) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if g.limiter != nil && !g.limiter.Allow() {
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}
	if err := g.auth.authorize(r); err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, envelope.MaxBodySize))
	if err != nil {
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}

	start := time.Now()
	resp := g.dispatcher.Dispatch(r.Context(), body)
	g.logRequest(resp, time.Since(start), r.RemoteAddr)

	g.writeEnvelope(w, resp)
}

func (g *Gateway) logRequest(resp *envelope.Response, duration time.Duration, remote string) {
	if resp.Error != nil {
		g.logger.Info("rpc request failed",
			"id", resp.ID, "code", resp.Error.Code, "duration", duration, "remote", remote)
		return
	}
	g.logger.Info("rpc request", "id", resp.ID, "duration", duration, "remote", remote)
}

func (g *Gateway) writeEnvelope(w http.ResponseWriter, resp *envelope.Response) {
	encoded, err := resp.Encode()
	if err != nil {
		// The result payload failed to serialize; still answer with an envelope.
		g.logger.Error("encoding response failed", "id", resp.ID, "error", err)
		fallback := envelope.NewError(resp.ID, envelope.CodeInternalError, "response encoding failed")
		encoded, _ = fallback.Encode()
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(encoded)
}

// handleHealth is plain liveness, independent of the RPC envelope.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady reports 503 naming what is down: any remote endpoint the
// tracker marks unreachable, or a local AI provider that does not answer.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	var down []string

	for _, st := range g.tracker.Status() {
		if !st.Up {
			down = append(down, fmt.Sprintf("endpoint %s", st.Endpoint))
		}
	}

	if g.provider != nil && g.config.Routes.AI.Mode == config.ModeLocal {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := g.provider.Available(ctx); err != nil {
			down = append(down, fmt.Sprintf("ai provider %s", g.provider.Name()))
		}
	}

	if len(down) > 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
		for _, name := range down {
			_, _ = fmt.Fprintf(w, "not ready: %s\n", name)
		}
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

var (
	docsOnce sync.Once
	docsHTML []byte
	docsErr  error
)

// handleDocs renders the embedded method reference once and caches it.
func (g *Gateway) handleDocs(w http.ResponseWriter, r *http.Request) {
	docsOnce.Do(func() {
		var buf bytes.Buffer
		buf.WriteString("<!DOCTYPE html><html><head><title>drawbridge</title></head><body>")
		if err := goldmark.Convert(assets.MethodsMarkdown, &buf); err != nil {
			docsErr = err
			return
		}
		buf.WriteString("</body></html>")
		docsHTML = buf.Bytes()
	})

	if docsErr != nil {
		http.Error(w, "docs rendering failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(docsHTML)
}
