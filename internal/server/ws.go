package server

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/Nancy-30/LTrail/internal/model"
	"github.com/Nancy-30/LTrail/internal/stream"
)

// upgrader accepts any origin. Browser dashboards connect from arbitrary
// dev ports and the API carries no credentials in cookies, so origin
// checking buys nothing here.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// HandleWS upgrades the connection and attaches it as a live subscriber
// for one trace. An existing trace produces an immediate initial_state
// snapshot; inbound client messages are echoed back as pong events.
func (h *Handlers) HandleWS(w http.ResponseWriter, r *http.Request) {
	traceID := r.PathValue("trace_id")

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		h.logger.Warn("ws: upgrade failed", "trace_id", traceID, "error", err)
		return
	}

	conn := stream.NewConn(ws, h.wsSendBuffer, h.logger)
	go conn.Run()

	h.ingest.Attach(traceID, conn)
	h.logger.Info("ws: subscriber attached", "trace_id", traceID, "subscriber_id", conn.ID())

	// Blocks until the peer disconnects or the read deadline lapses.
	conn.ReadLoop(func(data string) {
		// Liveness echo only. A full send buffer here means the peer is
		// not reading; drop the connection like any other slow consumer.
		if err := conn.Send(model.PongEvent(data)); err != nil {
			conn.Close()
		}
	})

	h.ingest.Detach(traceID, conn)
	conn.Close()
	h.logger.Info("ws: subscriber detached", "trace_id", traceID, "subscriber_id", conn.ID())
}
