package chat

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"IMSync/logger"
	"IMSync/middleware"
	"IMSync/module/chat/event"
	"IMSync/module/chat/ingest"
	"IMSync/module/chat/presence"
	"IMSync/module/chat/readstate"
	"IMSync/module/chat/store"
	"IMSync/module/chat/typing"
	errs "IMSync/tools/errs"
	ids "IMSync/tools/ids"
	safe "IMSync/tools/safe"
)

// Conf wires the gateway's collaborators together.
type Conf struct {
	Store    store.Store
	Ingest   *ingest.Service
	Reads    *readstate.Service
	Typing   *typing.Broadcaster
	Presence *presence.Tracker
	Rooms    *Rooms
	Conns    *ConnManager
	Auth     *middleware.Verifier

	QueueSize int // per-connection send queue
}

// Server is the websocket gateway. One goroutine reads each connection, so
// frames from a single client are handled strictly in order; concurrency
// exists across connections, not within one.
type Server struct {
	store    store.Store
	ingest   *ingest.Service
	reads    *readstate.Service
	typing   *typing.Broadcaster
	presence *presence.Tracker
	rooms    *Rooms
	conns    *ConnManager
	auth     *middleware.Verifier

	queueSize int
	dispatch  *Dispatcher
}

func NewServer(conf Conf) *Server {
	s := &Server{
		store:     conf.Store,
		ingest:    conf.Ingest,
		reads:     conf.Reads,
		typing:    conf.Typing,
		presence:  conf.Presence,
		rooms:     conf.Rooms,
		conns:     conf.Conns,
		auth:      conf.Auth,
		queueSize: conf.QueueSize,
	}

	d := NewDispatcher()
	d.Register(joinHandler{s})
	d.Register(leaveHandler{s})
	d.Register(submitHandler{s})
	d.Register(typingHandler{s})
	d.Register(readHandler{s})
	d.Register(heartbeatHandler{s})
	s.dispatch = d
	return s
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// HandleWS authenticates the handshake, upgrades, and runs the read loop until
// the socket dies. Connecting counts as a heartbeat.
func (s *Server) HandleWS(ctx *gin.Context) {
	id := s.auth.Verify(middleware.BearerToken(ctx.Request))
	if !id.Valid {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing token"})
		return
	}

	ws, err := upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		logger.Warnf("[gateway] upgrade failed user=%s err=%v", id.UserID, err)
		return
	}

	c := NewClient(ids.GenerateString(), id.UserID, id.Name, ws, s.queueSize)
	c.arm()
	s.conns.Add(c)
	s.presence.Heartbeat(c.UserID, c.ConnID)
	safe.Go(c.WritePump)
	logger.Infof("[gateway] connected conn=%s user=%s", c.ConnID, c.UserID)

	s.readLoop(c)
}

func (s *Server) readLoop(c *Client) {
	defer s.cleanup(c)

	for {
		raw, err := c.Read()
		if err != nil {
			return
		}
		kind, payload, err := ParseFrame(raw)
		if err != nil {
			s.nack(c, "frame", "", err)
			continue
		}
		if err := s.dispatch.Dispatch(context.Background(), c, kind, payload); err != nil {
			logger.Warnf("[gateway] %s failed conn=%s user=%s err=%v", kind, c.ConnID, c.UserID, err)
		}
	}
}

// cleanup unwinds one connection: rooms, registry, presence. Room membership
// does not survive the socket; a reconnecting client joins again and resyncs.
func (s *Server) cleanup(c *Client) {
	c.Close()
	s.rooms.DropConn(c.ConnID)
	s.conns.Remove(c.ConnID)
	s.presence.Disconnect(c.UserID, c.ConnID)
	logger.Infof("[gateway] disconnected conn=%s user=%s", c.ConnID, c.UserID)
}

func (s *Server) ack(c *Client, a event.Ack) {
	frame, err := MarshalFrame(event.KindAck, a)
	if err != nil {
		logger.Errorf("[gateway] marshal ack failed op=%s err=%v", a.Op, err)
		return
	}
	c.Enqueue(frame)
}

func (s *Server) nack(c *Client, op, token string, err error) {
	s.ack(c, event.Ack{
		Op:    op,
		Token: token,
		Code:  errs.Code(err),
		Error: errs.Msg(err),
	})
}
