package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lexiqai/tts-gateway/internal/observability"
	"github.com/lexiqai/tts-gateway/internal/tts"
)

var upgrader = websocket.Upgrader{
	// Browser clients on other origins are expected; the API carries no cookies
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 64 * 1024,
}

const (
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = (pongWait * 9) / 10
	requestQueueSize = 16
)

// StreamRequest is a text frame sent by a stream client
type StreamRequest struct {
	ID string `json:"id,omitempty"` // echoed back so clients can match replies
	tts.Request
}

// StreamHeader precedes each binary audio frame
type StreamHeader struct {
	Type     string `json:"type"` // "audio"
	ID       string `json:"id,omitempty"`
	CacheKey string `json:"cacheKey"`
	CacheHit bool   `json:"cacheHit"`
	MimeType string `json:"mimeType"`
	Bytes    int    `json:"bytes"`
}

// StreamError replaces the header and audio frames of a failed request
type StreamError struct {
	Type   string `json:"type"` // "error"
	ID     string `json:"id,omitempty"`
	Status int    `json:"status"`
	ErrorResponse
}

type frame struct {
	messageType int
	data        []byte
}

// streamSession holds the state of one WebSocket connection. Requests are
// synthesized one at a time in arrival order, so replies never interleave.
type streamSession struct {
	conn   *websocket.Conn
	synth  Synthesizer
	logger zerolog.Logger

	requests chan StreamRequest
	outgoing chan frame
	done     chan struct{}
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error
		h.logger.Warn().Err(err).Msg("Failed to upgrade connection to WebSocket")
		return
	}
	defer conn.Close()

	logger, sessionID := observability.WithRequestID(h.logger, r.Header.Get("X-Request-ID"))
	ctx, cancel := context.WithCancel(observability.ContextWithRequestID(context.Background(), sessionID))
	defer cancel()

	s := &streamSession{
		conn:     conn,
		synth:    h.synth,
		logger:   logger,
		requests: make(chan StreamRequest, requestQueueSize),
		outgoing: make(chan frame, 4),
		done:     make(chan struct{}),
	}
	logger.Info().Str("remote_addr", r.RemoteAddr).Msg("TTS stream connected")

	go s.processRequests(ctx)
	go s.processOutgoing()

	s.processIncoming()

	// Stop issuing chunk calls for whatever is still queued
	cancel()
	<-s.done
	logger.Info().Msg("TTS stream closed")
}

// processIncoming reads request frames until the connection closes
func (s *streamSession) processIncoming() {
	defer close(s.requests)

	s.conn.SetReadLimit(maxRequestBytes)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn().Err(err).Msg("WebSocket read error")
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))

		if messageType != websocket.TextMessage {
			s.sendError("", invalidFrame(errors.New("requests must be JSON text frames")))
			continue
		}

		var req StreamRequest
		if err := json.Unmarshal(message, &req); err != nil {
			s.sendError("", invalidFrame(err))
			continue
		}

		select {
		case s.requests <- req:
		default:
			s.logger.Warn().Str("id", req.ID).Msg("Stream request queue full, rejecting request")
			s.sendError(req.ID, &tts.Error{
				Kind: tts.KindRateLimited,
				Op:   "stream",
				Err:  errors.New("too many queued requests on this connection"),
			})
		}
	}
}

// processRequests synthesizes queued requests in order
func (s *streamSession) processRequests(ctx context.Context) {
	defer close(s.outgoing)

	for req := range s.requests {
		res, err := s.synth.Synthesize(ctx, req.Request)
		if err != nil {
			s.logger.Warn().Err(err).Str("id", req.ID).Str("kind", string(tts.KindOf(err))).Msg("Stream synthesis failed")
			s.sendError(req.ID, err)
			continue
		}

		header, err := json.Marshal(StreamHeader{
			Type:     "audio",
			ID:       req.ID,
			CacheKey: res.CacheKey,
			CacheHit: res.CacheHit,
			MimeType: res.MimeType,
			Bytes:    len(res.Audio),
		})
		if err != nil {
			s.sendError(req.ID, err)
			continue
		}

		s.outgoing <- frame{messageType: websocket.TextMessage, data: header}
		s.outgoing <- frame{messageType: websocket.BinaryMessage, data: res.Audio}

		s.logger.Debug().
			Str("id", req.ID).
			Str("cache_key", res.CacheKey).
			Bool("cache_hit", res.CacheHit).
			Int("bytes", len(res.Audio)).
			Msg("Sent audio to stream client")
	}
}

// processOutgoing is the connection's only writer. After a write failure it
// keeps draining so producers never block on a dead connection.
func (s *streamSession) processOutgoing() {
	defer close(s.done)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	failed := false
	write := func(messageType int, data []byte) {
		if failed {
			return
		}
		_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := s.conn.WriteMessage(messageType, data); err != nil {
			s.logger.Warn().Err(err).Msg("Error writing to stream client")
			failed = true
			// Unblocks the reader
			s.conn.Close()
		}
	}

	for {
		select {
		case f, ok := <-s.outgoing:
			if !ok {
				write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			write(f.messageType, f.data)

		case <-ticker.C:
			write(websocket.PingMessage, nil)
		}
	}
}

func (s *streamSession) sendError(id string, err error) {
	status, body := errorResponse(err, "")
	data, _ := json.Marshal(StreamError{
		Type:          "error",
		ID:            id,
		Status:        status,
		ErrorResponse: body,
	})
	s.outgoing <- frame{messageType: websocket.TextMessage, data: data}
}

func invalidFrame(err error) error {
	return &tts.Error{Kind: tts.KindInvalidArgument, Op: "stream", Err: err}
}
