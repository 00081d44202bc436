package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MeKo-Tech/foodlens/internal/classifier"
	"github.com/MeKo-Tech/foodlens/internal/food"
	"github.com/MeKo-Tech/foodlens/internal/preprocess"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
)

// upgrader accepts browser origins allowed by the CORS setting.
func (s *Server) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.allowOrigin,
	}
}

// allowOrigin reports whether the request's Origin matches cors_origin, a
// comma-separated list or "*". Requests without an Origin are not from a
// browser and are allowed.
func (s *Server) allowOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range strings.Split(s.corsOrigin, ",") {
		allowed = strings.TrimSpace(allowed)
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// WebSocketClassifyRequest is a classification request sent by the client.
// Image is base64 in JSON.
type WebSocketClassifyRequest struct {
	Type          string `json:"type"` // "classify"
	Image         []byte `json:"image,omitempty"`
	Filename      string `json:"filename,omitempty"`
	Retry         bool   `json:"retry,omitempty"`
	MinConfidence *int   `json:"min_confidence,omitempty"`
	MaxRetries    *int   `json:"max_retries,omitempty"`
}

// WebSocketConnWriter is an interface for writing WebSocket messages.
type WebSocketConnWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// WebSocketClassifyResponse is sent for each stage of a request.
type WebSocketClassifyResponse struct {
	Type      string                 `json:"type"`
	Status    string                 `json:"status"` // "processing", "completed", "error"
	Result    *ClassificationPayload `json:"result,omitempty"`
	Error     string                 `json:"error,omitempty"`
	ErrorType string                 `json:"error_type,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// classifyWebSocketHandler handles WebSocket connections for streaming classification.
func (s *Server) classifyWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("failed to upgrade connection to WebSocket", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	websocketConnections.Inc()
	defer websocketConnections.Dec()

	s.logger.Info("WebSocket connection established", "remote_addr", r.RemoteAddr)
	s.handleWebSocketConnection(r.Context(), conn)
}

// handleWebSocketConnection processes messages until the client disconnects.
func (s *Server) handleWebSocketConnection(ctx context.Context, conn *websocket.Conn) {
	conn.SetReadLimit(s.maxUploadBytes*4/3 + 4096)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
					return
				}
			}
		}
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("WebSocket error", "error", err)
			}
			return
		}
		websocketMessagesTotal.WithLabelValues("received").Inc()
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

		if messageType == websocket.TextMessage {
			s.handleWebSocketMessage(ctx, conn, data)
		}
	}
}

// handleWebSocketMessage processes one client message.
func (s *Server) handleWebSocketMessage(ctx context.Context, conn WebSocketConnWriter, data []byte) {
	var req WebSocketClassifyRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.sendWebSocketError(conn, "", "invalid_request", fmt.Sprintf("failed to parse request: %v", err))
		return
	}
	if req.Type != "classify" {
		s.sendWebSocketError(conn, "", "invalid_request", "unsupported request type: "+req.Type)
		return
	}

	if req.MinConfidence != nil && (*req.MinConfidence < food.MinConfidence || *req.MinConfidence > food.MaxConfidence) {
		s.sendWebSocketError(conn, "", "invalid_request",
			fmt.Sprintf("invalid min_confidence %d (must be 0-100)", *req.MinConfidence))
		return
	}
	if req.MaxRetries != nil && *req.MaxRetries < 1 {
		s.sendWebSocketError(conn, "", "invalid_request",
			fmt.Sprintf("invalid max_retries %d (must be a positive integer)", *req.MaxRetries))
		return
	}

	requestID := uuid.NewString()
	s.sendWebSocketResponse(conn, WebSocketClassifyResponse{
		Type:      "classify_response",
		Status:    "processing",
		RequestID: requestID,
	})

	creq := classifyRequest{
		retry:         req.Retry,
		minConfidence: s.retryMinConfidence,
		maxRetries:    s.maxRetries,
	}
	if req.MinConfidence != nil {
		creq.minConfidence = *req.MinConfidence
	}
	if req.MaxRetries != nil {
		creq.maxRetries = *req.MaxRetries
	}
	if int64(len(req.Image)) > s.maxUploadBytes {
		s.sendWebSocketError(conn, requestID, "invalid_request", fmt.Sprintf("image exceeds %d bytes", s.maxUploadBytes))
		return
	}
	id := req.Filename
	if id == "" {
		id = "ws-" + requestID
	}
	creq.resource = preprocess.NewBytesResource(id, req.Image)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.runClassification(ctx, creq)
	if err != nil {
		var ve *classifier.ValidationError
		if errors.As(err, &ve) {
			s.sendWebSocketError(conn, requestID, "invalid_request", err.Error())
			return
		}
		s.logger.ErrorContext(ctx, "classification failed", "request_id", requestID, "error", err)
		s.sendWebSocketError(conn, requestID, "classification_failed", "classification failed")
		return
	}

	s.sendWebSocketResponse(conn, WebSocketClassifyResponse{
		Type:      "classify_response",
		Status:    "completed",
		Result:    s.payload(res),
		RequestID: requestID,
	})
}

// sendWebSocketResponse sends a response message over WebSocket.
func (s *Server) sendWebSocketResponse(conn WebSocketConnWriter, response WebSocketClassifyResponse) {
	data, err := json.Marshal(response)
	if err != nil {
		s.logger.Error("failed to marshal WebSocket response", "error", err)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.logger.Error("failed to send WebSocket message", "error", err)
		return
	}
	websocketMessagesTotal.WithLabelValues("sent").Inc()
}

// sendWebSocketError sends an error message over WebSocket.
func (s *Server) sendWebSocketError(conn WebSocketConnWriter, requestID, errorType, message string) {
	s.sendWebSocketResponse(conn, WebSocketClassifyResponse{
		Type:      "error",
		Status:    "error",
		Error:     message,
		ErrorType: errorType,
		RequestID: requestID,
	})
}
