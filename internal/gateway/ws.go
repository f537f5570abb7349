// ABOUTME: WebSocket RPC surface: one request envelope per text message.
// ABOUTME: Requests dispatch concurrently; writes to the socket are serialized.

package gateway

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/2389/drawbridge/internal/envelope"
)

// handleWS upgrades the connection and serves envelopes until the peer
// closes or sends an unrecoverable frame. Each text message is dispatched in
// its own goroutine; responses correlate by id, so ordering between
// concurrent calls is not guaranteed.
func (g *Gateway) handleWS(w http.ResponseWriter, r *http.Request) {
	if err := g.auth.authorize(r); err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		g.logger.Debug("websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closing")

	conn.SetReadLimit(envelope.MaxBodySize)

	ctx := r.Context()
	var writeMu sync.Mutex
	var wg sync.WaitGroup

	writeResponse := func(resp *envelope.Response) {
		encoded, err := resp.Encode()
		if err != nil {
			g.logger.Error("encoding websocket response failed", "id", resp.ID, "error", err)
			fallback := envelope.NewError(resp.ID, envelope.CodeInternalError, "response encoding failed")
			encoded, _ = fallback.Encode()
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.Write(ctx, websocket.MessageText, encoded); err != nil {
			g.logger.Debug("websocket write failed", "id", resp.ID, "error", err)
		}
	}

	for {
		msgType, raw, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
				g.logger.Debug("websocket closed", "remote", r.RemoteAddr)
			} else {
				g.logger.Debug("websocket read failed", "remote", r.RemoteAddr, "error", err)
			}
			break
		}
		if msgType != websocket.MessageText {
			conn.Close(websocket.StatusUnsupportedData, "text frames only")
			break
		}

		wg.Add(1)
		go func(raw []byte) {
			defer wg.Done()
			writeResponse(g.dispatcher.Dispatch(ctx, raw))
		}(raw)
	}

	wg.Wait()
	conn.Close(websocket.StatusNormalClosure, "")
}
