package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/chiyuki0325/Memoh/internal/domain/agent/ports"
	"github.com/chiyuki0325/Memoh/internal/domain/agent/stream"
	apperrors "github.com/chiyuki0325/Memoh/internal/shared/errors"
)

// agentRequest is the body of /agent/ask and /agent/stream and the first
// WebSocket message. With a conversation id and no explicit messages the
// server supplies the stored history and appends the new turn to it.
type agentRequest struct {
	ports.AgentInput
	ConversationID string `json:"conversationId,omitempty"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleAsk(c *gin.Context) {
	req, ok := s.bindRequest(c)
	if !ok {
		return
	}
	res, err := s.runner.Ask(c.Request.Context(), s.withHistory(req))
	if err != nil {
		s.logger.Warn("[%s] ask failed: %v", requestID(c), err)
		c.JSON(errorStatus(c.Request.Context(), err), s.errorBody(c, err))
		return
	}
	s.appendHistory(req.ConversationID, res.Messages)
	c.JSON(http.StatusOK, res)
}

// handleStream writes one SSE data frame per action. A failed turn ends
// with an "error" event. Closing the connection cancels the turn.
func (s *Server) handleStream(c *gin.Context) {
	req, ok := s.bindRequest(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	mapper := s.runner.Stream(ctx, s.withHistory(req))
	defer mapper.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	for {
		action, err := mapper.Next(ctx)
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("[%s] stream failed: %v", requestID(c), err)
			_ = sse.Encode(c.Writer, sse.Event{Event: "error", Data: s.errorBody(c, err)})
			c.Writer.Flush()
			return
		}
		if end, ok := action.(stream.AgentEnd); ok {
			s.appendHistory(req.ConversationID, end.Messages)
		}
		if err := sse.Encode(c.Writer, sse.Event{Data: action}); err != nil {
			s.logger.Debug("[%s] client went away: %v", requestID(c), err)
			return
		}
		c.Writer.Flush()
	}
}

// handleWebSocket reads one request message, then sends every action as a
// JSON text message. Any later read failure, including the peer closing,
// cancels the turn.
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("[%s] websocket upgrade failed: %v", requestID(c), err)
		return
	}
	defer conn.Close()

	var req agentRequest
	if err := conn.ReadJSON(&req); err != nil {
		s.logger.Debug("[%s] websocket request unreadable: %v", requestID(c), err)
		return
	}
	if err := validateInput(req.AgentInput); err != nil {
		_ = conn.WriteJSON(gin.H{"type": "error", "error": err.Error()})
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	mapper := s.runner.Stream(ctx, s.withHistory(req))
	defer mapper.Close()
	for {
		action, err := mapper.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			body := s.errorBody(c, err)
			_ = conn.WriteJSON(gin.H{"type": "error", "error": body.Error, "kind": body.Kind})
			break
		}
		if end, ok := action.(stream.AgentEnd); ok {
			s.appendHistory(req.ConversationID, end.Messages)
		}
		if err := conn.WriteJSON(action); err != nil {
			return
		}
	}
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (s *Server) handleResetConversation(c *gin.Context) {
	if s.history == nil {
		c.Status(http.StatusNotFound)
		return
	}
	s.history.Reset(c.Param("id"))
	c.Status(http.StatusNoContent)
}

func (s *Server) bindRequest(c *gin.Context) (agentRequest, bool) {
	var req agentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error(), RequestID: requestID(c)})
		return req, false
	}
	if err := validateInput(req.AgentInput); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), RequestID: requestID(c)})
		return req, false
	}
	return req, true
}

func validateInput(input ports.AgentInput) error {
	if strings.TrimSpace(input.Query) == "" && len(input.Attachments) == 0 {
		return errors.New("query or attachments required")
	}
	return nil
}

func (s *Server) withHistory(req agentRequest) ports.AgentInput {
	input := req.AgentInput
	if s.history != nil && req.ConversationID != "" && len(input.Messages) == 0 {
		input.Messages = s.history.Get(req.ConversationID)
	}
	return input
}

func (s *Server) appendHistory(conversationID string, msgs []ports.Message) {
	if s.history == nil || conversationID == "" || len(msgs) == 0 {
		return
	}
	s.history.Append(conversationID, msgs...)
}

func (s *Server) errorBody(c *gin.Context, err error) errorResponse {
	return errorResponse{
		Error:     apperrors.FormatForLLM(err),
		Kind:      apperrors.GetErrorType(err).String(),
		RequestID: requestID(c),
	}
}

func errorStatus(ctx context.Context, err error) int {
	switch {
	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	case apperrors.IsTransient(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}
