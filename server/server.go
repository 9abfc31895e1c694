package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wfunc/piratepanic/auth"
	"github.com/wfunc/piratepanic/broadcast"
	"github.com/wfunc/piratepanic/config"
	"github.com/wfunc/piratepanic/logger"
	"github.com/wfunc/piratepanic/matchmaker"
	"github.com/wfunc/piratepanic/models"
	"github.com/wfunc/piratepanic/monitor"
	"github.com/wfunc/piratepanic/network"
	"github.com/wfunc/piratepanic/persistence"
	"github.com/wfunc/piratepanic/room"
	"github.com/wfunc/piratepanic/rpc"
	"github.com/wfunc/piratepanic/services"
	"github.com/wfunc/piratepanic/session"
)

const heartbeatInterval = 30 * time.Second

// GameServer is the relay: it authenticates devices, pairs them and forwards
// match data between the peers of each match. It never interprets match data.
type GameServer struct {
	cfg            config.ServerConfig
	upgrader       websocket.Upgrader
	auth           *auth.Auth
	roomManager    *room.Manager
	sessionManager *session.Manager
	matchmaker     *matchmaker.Matchmaker
	monitor        *monitor.Monitor
	rpcServer      *rpc.Server
	log            *zap.SugaredLogger
}

func NewGameServer(cfg *config.Config, db persistence.Database) *GameServer {
	s := &GameServer{
		cfg:            cfg.Server,
		auth:           auth.New(cfg.Auth),
		roomManager:    room.NewRoomManager(cfg.Server.MatchMaxSize),
		sessionManager: session.NewManager(),
		matchmaker:     matchmaker.New(cfg.Match.ExpectedPlayers),
		monitor:        monitor.NewMonitor("piratepanic"),
		log:            logger.Named("server"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有跨域请求
			},
		},
	}

	s.roomManager.UseBroadcaster(broadcast.NewRoomBroadcaster(s.roomManager, s.monitor))

	rewards := services.NewRewardService(db, s.roomManager)
	s.rpcServer = rpc.NewServer(cfg.Server.RPCAddress, s.auth, rewards)
	return s
}

func (s *GameServer) Router() http.Handler {
	r := chi.NewRouter()
	r.Post("/v2/account/authenticate/device", s.auth.HandleAuthenticateDevice)
	r.Get("/ws", s.handleWebSocket)
	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", s.monitor.Handler())
	return r
}

// Start serves HTTP and the reward RPC until ctx is done or either fails.
func (s *GameServer) Start(ctx context.Context) error {
	httpServer := &http.Server{Addr: s.cfg.HTTPAddress, Handler: s.Router()}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.log.Infof("Game server listening on %s", s.cfg.HTTPAddress)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(s.rpcServer.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.rpcServer.Stop()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

type health struct {
	Sessions int `json:"sessions"`
	Matches  int `json:"matches"`
	Queued   int `json:"queued"`
}

func (s *GameServer) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health{
		Sessions: s.sessionManager.Count(),
		Matches:  s.roomManager.Count(),
		Queued:   s.matchmaker.Len(),
	})
}

func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	tok := r.URL.Query().Get("token")
	if tok == "" {
		tok = auth.BearerToken(r.Header.Get("Authorization"))
	}
	claims, err := s.auth.ParseToken(tok)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.handleConnection(network.NewWSConnection(conn), claims)
}

func (s *GameServer) handleConnection(conn *network.WSConnection, claims *auth.Claims) {
	sess := session.NewSession(uuid.NewString(), conn, claims.Subject, claims.Username)
	s.sessionManager.Add(sess)
	s.monitor.IncOnlinePlayers()
	conn.SetHeartbeat(heartbeatInterval)

	log := s.log.With("session_id", sess.ID, "user_id", sess.UserID)
	log.Infow("connection opened", "remote_addr", conn.RemoteAddr())

	defer func() {
		s.matchmaker.Remove(sess.ID)
		if sess.MatchID() != "" {
			s.roomManager.Leave(sess)
			s.monitor.SetActiveMatches(s.roomManager.Count())
		}
		s.sessionManager.Remove(sess.ID)
		s.monitor.DecOnlinePlayers()
		conn.Close()
		log.Infow("connection closed")
	}()

	for {
		packet, err := conn.ReadPacket()
		if err != nil {
			if errors.Is(err, network.ErrFrameTooShort) {
				s.sendError(sess, 0, network.ErrCodeBadRequest, err)
				continue
			}
			return
		}
		start := time.Now()
		s.monitor.IncMessagesReceived()
		s.handlePacket(sess, packet)
		s.monitor.ObserveMessageLatency(time.Since(start))
	}
}

func (s *GameServer) handlePacket(sess *session.Session, packet *network.Packet) {
	switch packet.MsgID {
	case network.MsgTypeHeartbeat:
		sess.Send(network.MsgTypeHeartbeat, struct{}{})
	case network.MsgTypeMatchmakerAdd:
		s.handleMatchmakerAdd(sess)
	case network.MsgTypeMatchJoin:
		s.handleMatchJoin(sess, packet)
	case network.MsgTypeMatchLeave:
		s.handleMatchLeave(sess)
	case network.MsgTypeMatchDataSend:
		s.handleMatchData(sess, packet)
	default:
		s.log.Infof("Unknown message type: %d", packet.MsgID)
		s.sendError(sess, packet.MsgID, network.ErrCodeBadRequest, errors.New("unknown message type"))
	}
}

func (s *GameServer) handleMatchmakerAdd(sess *session.Session) {
	ticket, matched, err := s.matchmaker.Add(sess)
	if err != nil {
		s.sendError(sess, network.MsgTypeMatchmakerAdd, network.ErrCodeBadRequest, err)
		return
	}
	s.log.Debugw("matchmaker ticket", "session_id", sess.ID, "ticket", ticket)
	if matched == nil {
		return
	}

	users := make([]models.Presence, 0, len(matched.Tickets))
	for _, t := range matched.Tickets {
		users = append(users, t.Session.Presence())
	}
	for _, t := range matched.Tickets {
		t.Session.Send(network.MsgTypeMatchmakerMatched, network.MatchmakerMatched{
			Ticket:  t.ID,
			MatchID: matched.MatchID,
			Self:    t.Session.Presence(),
			Users:   users,
		})
	}
	s.log.Infow("matched", "match_id", matched.MatchID, "players", len(users))
}

func (s *GameServer) handleMatchJoin(sess *session.Session, packet *network.Packet) {
	var req network.MatchJoin
	if err := packet.Decode(&req); err != nil || req.MatchID == "" {
		s.sendError(sess, network.MsgTypeMatchJoin, network.ErrCodeBadRequest, errors.New("match_id required"))
		return
	}
	info, err := s.roomManager.Join(sess, req.MatchID)
	if err != nil {
		code := network.ErrCodeBadRequest
		if errors.Is(err, room.ErrRoomFull) {
			code = network.ErrCodeMatchFull
		}
		s.sendError(sess, network.MsgTypeMatchJoin, code, err)
		return
	}
	s.monitor.SetActiveMatches(s.roomManager.Count())
	s.log.Infow("joined match", "session_id", sess.ID, "match_id", req.MatchID)
	sess.Send(network.MsgTypeMatchJoined, info)
}

func (s *GameServer) handleMatchLeave(sess *session.Session) {
	if err := s.roomManager.Leave(sess); err != nil {
		s.sendError(sess, network.MsgTypeMatchLeave, network.ErrCodeNotInMatch, err)
		return
	}
	s.monitor.SetActiveMatches(s.roomManager.Count())
}

func (s *GameServer) handleMatchData(sess *session.Session, packet *network.Packet) {
	var msg network.MatchDataSend
	if err := packet.Decode(&msg); err != nil {
		s.sendError(sess, network.MsgTypeMatchDataSend, network.ErrCodeBadRequest, err)
		return
	}
	if err := s.roomManager.Relay(sess, msg); err != nil {
		if errors.Is(err, room.ErrNotInRoom) || errors.Is(err, room.ErrRoomNotFound) {
			s.sendError(sess, network.MsgTypeMatchDataSend, network.ErrCodeNotInMatch, err)
			return
		}
		s.log.Warnw("relay failed", "match_id", msg.MatchID, "error", err)
	}
}

func (s *GameServer) sendError(sess *session.Session, request uint16, code int, err error) {
	sess.Send(network.MsgTypeError, network.ErrorMessage{Request: request, Code: code, Message: err.Error()})
}
