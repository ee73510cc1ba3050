package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/xhad/reviewground/pkg/experiment"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Message is the envelope for everything written to the stream: "progress"
// carries a ProgressEvent, "result" the finished batch, "error" a failure.
type Message struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	Data    any    `json:"data,omitempty"`
}

// streamConn serializes writes; progress arrives from several workers.
type streamConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
	s    *Server
}

func (sc *streamConn) sendMessage(msgType, content string, data any) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if err := sc.conn.WriteJSON(Message{Type: msgType, Content: content, Data: data}); err != nil {
		sc.s.logger.Warn("error sending message", "error", err)
	}
}

// handleExperimentStream runs a batch experiment for ?papers=N and streams
// its progress. Closing the socket cancels the run.
func (s *Server) handleExperimentStream(c *gin.Context) {
	count := 0
	if v := c.Query("papers"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			badRequest(c, "papers must be an integer")
			return
		}
		count = n
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	sc := &streamConn{conn: conn, s: s}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	runner := s.pipeline.Runner.WithProgress(func(e experiment.ProgressEvent) {
		sc.sendMessage("progress", string(e.Stage), e)
	})

	sc.sendMessage("status", "starting batch experiment", gin.H{"papers": count})
	batch, err := runner.RunBatch(ctx, count)
	if err != nil {
		sc.sendMessage("error", fmt.Sprintf("batch experiment failed: %v", err), nil)
		return
	}
	sc.sendMessage("result", fmt.Sprintf("completed %d papers", batch.TotalPapers), batch)

	sc.mu.Lock()
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"))
	sc.mu.Unlock()
}
