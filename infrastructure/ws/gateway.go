// Package ws is the realtime gateway: one WebSocket connection per
// participant, JSON frames in both directions.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"voynich/domain"
	apperrors "voynich/errors"
	"voynich/services"
	"voynich/sink"
)

const (
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = 45 * time.Second

	// maxFrameBytes bounds a single inbound frame, attachments included.
	maxFrameBytes = 8 << 20
)

type Gateway struct {
	log              *slog.Logger
	service          services.IChatService
	validate         *validator.Validate
	upgrader         websocket.Upgrader
	bufferSize       int
	sinkTimeout      time.Duration
	maxContentLength int
}

func NewGateway(log *slog.Logger, service services.IChatService, bufferSize int,
	sinkTimeout time.Duration, maxContentLength int) *Gateway {
	return &Gateway{
		log:      log,
		service:  service,
		validate: validator.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		bufferSize:       bufferSize,
		sinkTimeout:      sinkTimeout,
		maxContentLength: maxContentLength,
	}
}

// Handle upgrades the request and serves the connection until it drops, the
// client leaves, or the room expires.
func (g *Gateway) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	c := &connection{
		gateway:  g,
		conn:     conn,
		id:       uuid.New(),
		sink:     sink.NewSessionSink(g.bufferSize, g.sinkTimeout),
		outbound: make(chan serverFrame, 8),
		done:     make(chan struct{}),
	}
	g.log.Debug("Connection opened", "connection_id", c.id, "remote", r.RemoteAddr)

	go c.writeLoop()
	c.readLoop()
}

// connection holds the per-socket state. The join state machine fields are
// touched by the read loop only.
type connection struct {
	gateway  *Gateway
	conn     *websocket.Conn
	id       uuid.UUID
	sink     *sink.SessionSink
	outbound chan serverFrame
	done     chan struct{}

	roomID   domain.RoomID
	identity string
	joined   bool
}

func (c *connection) readLoop() {
	defer c.teardown()

	c.conn.SetReadLimit(maxFrameBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.dispatch(raw)
	}
}

func (c *connection) dispatch(raw []byte) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.sendError("malformed frame")
		return
	}

	ctx := context.Background()
	switch env.Type {
	case frameJoin:
		c.handleJoin(ctx, raw)
	case frameMessage:
		c.handleMessage(ctx, raw)
	default:
		c.sendError("unknown frame type")
	}
}

func (c *connection) handleJoin(ctx context.Context, raw []byte) {
	if c.joined {
		c.sendError(apperrors.ErrAlreadyJoined.Error())
		return
	}

	var frame joinFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		c.sendError("malformed frame")
		return
	}
	if err := c.gateway.validate.Struct(frame); err != nil {
		c.sendError("invalid join frame")
		return
	}

	roomID := domain.RoomID(frame.RoomID)
	if _, err := c.gateway.service.Join(ctx, roomID, c.id, frame.Identity, c.sink); err != nil {
		c.sendError(reason(err))
		return
	}
	c.roomID = roomID
	c.identity = frame.Identity
	c.joined = true
}

func (c *connection) handleMessage(ctx context.Context, raw []byte) {
	if !c.joined {
		c.sendError(apperrors.ErrNotJoined.Error())
		return
	}

	var frame messageFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		c.sendError("malformed frame")
		return
	}
	if err := c.gateway.validate.Struct(frame); err != nil {
		c.sendError("invalid message frame")
		return
	}
	if domain.RoomID(frame.RoomID) != c.roomID {
		c.sendError(apperrors.ErrNotJoined.Error())
		return
	}
	if max := c.gateway.maxContentLength; max > 0 && len(frame.Content) > max {
		c.sendError("message too long")
		return
	}

	var attachment *domain.Attachment
	if frame.Attachment != nil {
		attachment = &domain.Attachment{
			Name:      frame.Attachment.Name,
			MediaType: frame.Attachment.MediaType,
			Data:      frame.Attachment.Data,
		}
	}

	if err := c.gateway.service.Send(ctx, c.roomID, frame.Sender, frame.Content, attachment); err != nil {
		c.sendError(reason(err))
	}
}

func (c *connection) writeLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer func() { _ = c.conn.Close() }()

	for {
		select {
		case e := <-c.sink.Events:
			frame, terminal := frameFromEvent(e)
			if err := c.write(frame); err != nil {
				return
			}
			if terminal {
				deadline := time.Now().Add(writeTimeout)
				_ = c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "chat expired"), deadline)
				return
			}
		case frame := <-c.outbound:
			if err := c.write(frame); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *connection) write(frame serverFrame) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(frame)
}

func (c *connection) sendError(errReason string) {
	select {
	case c.outbound <- serverFrame{Type: frameError, Reason: errReason}:
	case <-c.done:
	}
}

// teardown runs once the read loop ends, whatever the cause. Leaving twice
// (after an eviction, say) is harmless by contract.
func (c *connection) teardown() {
	c.sink.Close()
	close(c.done)
	c.gateway.service.Leave(context.Background(), c.id)
	_ = c.conn.Close()
	c.gateway.log.Debug("Connection closed", "connection_id", c.id, "identity", c.identity)
}

// reason maps an error to a client-safe explanation. Anything outside the
// public taxonomy stays opaque.
func reason(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrRoomNotFound),
		errors.Is(err, apperrors.ErrRoomExpired),
		errors.Is(err, apperrors.ErrMalformedAttachment):
		return err.Error()
	}
	return "internal error"
}
