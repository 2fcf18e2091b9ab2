// Package ws adapts the socket.io messaging layer to engine actions and
// delivers the engine's notifications back to connected participants.
package ws

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	socketio "github.com/googollee/go-socket.io"
	"github.com/rs/zerolog/log"

	"github.com/versefold/corpse/internal/engine"
	"github.com/versefold/corpse/internal/game"
)

type ConnCtx struct {
	ParticipantID string
}

// Server is the socket.io gateway. It implements game.Notifier: a
// participant may have several live connections and each gets every
// notification addressed to them. Delivery is best-effort; the engine has
// already committed by the time Notify runs.
type Server struct {
	eng *engine.Engine

	mu      sync.Mutex
	members map[string]map[string]socketio.Conn // participantID -> socketID -> Conn
}

func New() *Server {
	return &Server{members: make(map[string]map[string]socketio.Conn)}
}

// SetEngine wires the engine in after construction; the engine needs the
// gateway as its notifier first.
func (srv *Server) SetEngine(e *engine.Engine) { srv.eng = e }

// Notify emits the notification to every live connection of the recipient.
func (srv *Server) Notify(n game.Notification) {
	event := eventFor(n.Kind)
	if event == "" {
		return
	}
	srv.mu.Lock()
	conns := make([]socketio.Conn, 0, len(srv.members[n.To]))
	for _, c := range srv.members[n.To] {
		conns = append(conns, c)
	}
	srv.mu.Unlock()

	if len(conns) == 0 {
		log.Debug().Str("participant", n.To).Str("kind", string(n.Kind)).Msg("recipient offline, notification dropped")
		return
	}
	for _, c := range conns {
		c.Emit(event, n)
	}
}

func eventFor(kind game.NotificationKind) string {
	switch kind {
	case game.NoteYourTurn:
		return "corpse:yourTurn"
	case game.NoteTurnAccepted:
		return "corpse:turnAccepted"
	case game.NoteGameCompleted:
		return "corpse:completed"
	case game.NoteGameAbandoned:
		return "corpse:abandoned"
	case game.NoteActionRejected:
		return "corpse:rejected"
	}
	return ""
}

// Mount attaches the Socket.IO server with handlers to the given Gin engine.
func (srv *Server) Mount(r *gin.Engine) *socketio.Server {
	io := socketio.NewServer(nil)

	io.OnConnect("/", func(s socketio.Conn) error {
		s.SetContext(&ConnCtx{})
		log.Info().Str("sid", s.ID()).Msg("socket connected")
		return nil
	})

	// corpse:hello binds the platform identity to this connection and
	// re-prompts a pending turn after a reconnect.
	io.OnEvent("/", "corpse:hello", func(s socketio.Conn, payload struct {
		ParticipantID string `json:"participantId"`
	}) map[string]any {
		if payload.ParticipantID == "" {
			return srv.err(s, "bad_request", "participantId required")
		}
		s.SetContext(&ConnCtx{ParticipantID: payload.ParticipantID})
		srv.addMember(payload.ParticipantID, s)
		log.Info().Str("sid", s.ID()).Str("participant", payload.ParticipantID).Msg("corpse:hello")

		if st, err := srv.eng.Status(context.Background(), payload.ParticipantID); err == nil && st.YourTurn {
			s.Emit("corpse:yourTurn", game.Notification{
				To:        payload.ParticipantID,
				Kind:      game.NoteYourTurn,
				SessionID: st.SessionID,
				Context:   st.Window,
				Turn:      st.Turn,
				MaxTurns:  st.MaxTurns,
			})
		}
		return map[string]any{"ok": true}
	})

	// corpse:start
	io.OnEvent("/", "corpse:start", func(s socketio.Conn, payload struct {
		Config  game.Config `json:"config"`
		Opening string      `json:"opening"`
	}) map[string]any {
		p, ok := srv.participant(s)
		if !ok {
			return srv.err(s, "unauthorized", "send corpse:hello first")
		}
		id, err := srv.eng.Start(context.Background(), p, payload.Config, payload.Opening)
		if err != nil {
			return srv.actionErr(s, err)
		}
		log.Info().Str("session", id).Str("participant", p).Msg("corpse:start")
		return map[string]any{"sessionId": id}
	})

	// corpse:join
	io.OnEvent("/", "corpse:join", func(s socketio.Conn) map[string]any {
		p, ok := srv.participant(s)
		if !ok {
			return srv.err(s, "unauthorized", "send corpse:hello first")
		}
		id, err := srv.eng.Join(context.Background(), p)
		if err != nil {
			return srv.actionErr(s, err)
		}
		log.Info().Str("session", id).Str("participant", p).Msg("corpse:join")
		return map[string]any{"sessionId": id}
	})

	// corpse:submit
	io.OnEvent("/", "corpse:submit", func(s socketio.Conn, payload struct {
		Text string `json:"text"`
	}) map[string]any {
		p, ok := srv.participant(s)
		if !ok {
			return srv.err(s, "unauthorized", "send corpse:hello first")
		}
		if err := srv.eng.Submit(context.Background(), p, payload.Text); err != nil {
			return srv.actionErr(s, err)
		}
		return map[string]any{"ok": true}
	})

	// corpse:abandon
	io.OnEvent("/", "corpse:abandon", func(s socketio.Conn) map[string]any {
		p, ok := srv.participant(s)
		if !ok {
			return srv.err(s, "unauthorized", "send corpse:hello first")
		}
		if err := srv.eng.Abandon(context.Background(), p); err != nil {
			return srv.actionErr(s, err)
		}
		return map[string]any{"ok": true}
	})

	// corpse:status
	io.OnEvent("/", "corpse:status", func(s socketio.Conn) map[string]any {
		p, ok := srv.participant(s)
		if !ok {
			return srv.err(s, "unauthorized", "send corpse:hello first")
		}
		st, err := srv.eng.Status(context.Background(), p)
		if err != nil {
			return srv.actionErr(s, err)
		}
		return map[string]any{"status": st}
	})

	io.OnError("/", func(s socketio.Conn, e error) {
		log.Error().Str("sid", s.ID()).Err(e).Msg("socket error")
	})
	io.OnDisconnect("/", func(s socketio.Conn, reason string) {
		if ctx, ok := s.Context().(*ConnCtx); ok && ctx.ParticipantID != "" {
			srv.removeMember(ctx.ParticipantID, s)
		}
		log.Info().Str("sid", s.ID()).Str("reason", reason).Msg("socket disconnected")
	})

	go io.Serve()

	r.GET("/socket.io/*any", gin.WrapH(io))
	r.POST("/socket.io/*any", gin.WrapH(io))
	r.OPTIONS("/socket.io/*any", func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		c.Status(http.StatusNoContent)
	})

	return io
}

func (srv *Server) participant(s socketio.Conn) (string, bool) {
	ctx, ok := s.Context().(*ConnCtx)
	if !ok || ctx.ParticipantID == "" {
		return "", false
	}
	return ctx.ParticipantID, true
}

func (srv *Server) addMember(participantID string, c socketio.Conn) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.members[participantID] == nil {
		srv.members[participantID] = make(map[string]socketio.Conn)
	}
	srv.members[participantID][c.ID()] = c
}

func (srv *Server) removeMember(participantID string, c socketio.Conn) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if m := srv.members[participantID]; m != nil {
		delete(m, c.ID())
	}
}

// actionErr acknowledges a failed action. Game-rule violations already went
// out as corpse:rejected via the Notifier; system errors only say so.
func (srv *Server) actionErr(s socketio.Conn, err error) map[string]any {
	if kind := game.Kind(err); kind != "" {
		return map[string]any{"error": kind}
	}
	log.Error().Err(err).Msg("action failed")
	return map[string]any{"error": "internal"}
}

func (srv *Server) err(s socketio.Conn, code, message string) map[string]any {
	s.Emit("error", map[string]any{"code": code, "message": message})
	return map[string]any{"error": message}
}

var _ game.Notifier = (*Server)(nil)
