// Package relayclient talks to the relay server: device authentication over
// HTTP, then matchmaking and match traffic over the socket. Client implements
// match.Relay.
package relayclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/wfunc/piratepanic/auth"
	"github.com/wfunc/piratepanic/logger"
	"github.com/wfunc/piratepanic/models"
	"github.com/wfunc/piratepanic/network"
)

var (
	ErrClosed    = errors.New("relay connection closed")
	ErrNotDialed = errors.New("relay socket not connected")
)

// ServerError is an error frame sent by the relay.
type ServerError struct {
	Code    int
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("relay error %d: %s", e.Code, e.Message)
}

const heartbeatInterval = 15 * time.Second

type exchange struct {
	kind uint16
	want uint16
}

type Client struct {
	httpURL   string
	socketURL string
	http      *http.Client
	log       *zap.SugaredLogger

	conn      *network.WSConnection
	responses chan *network.Packet
	done      chan struct{}
	closeOnce sync.Once

	// requestMutex serializes request/response exchanges on the socket.
	requestMutex sync.Mutex
	// inflight is the request awaiting a reply; replies for anything else
	// are dropped.
	inflightMutex sync.Mutex
	inflight      *exchange

	handlerMutex sync.Mutex
	handler      models.RelayHandler
	handlerGen   int
}

func New(httpURL, socketURL string) *Client {
	return &Client{
		httpURL:   httpURL,
		socketURL: socketURL,
		http:      &http.Client{Timeout: 10 * time.Second},
		log:       logger.Named("relayclient"),
		responses: make(chan *network.Packet, 8),
		done:      make(chan struct{}),
	}
}

// Authenticate exchanges a device id for a session token.
func (c *Client) Authenticate(ctx context.Context, deviceID, username string) (*auth.SessionResponse, error) {
	body, err := json.Marshal(auth.DeviceRequest{ID: deviceID, Username: username})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.httpURL+"/v2/account/authenticate/device", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("authenticate: status %d", resp.StatusCode)
	}
	var session auth.SessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	return &session, nil
}

// Dial opens the socket and starts reading it.
func (c *Client) Dial(ctx context.Context, token string) error {
	u, err := url.Parse(c.socketURL)
	if err != nil {
		return err
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial relay: %w", err)
	}
	c.conn = network.NewWSConnection(conn)
	go c.readLoop()
	go c.heartbeat()
	return nil
}

// Done is closed once the socket is gone.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.shutdown()
	return err
}

func (c *Client) shutdown() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Client) readLoop() {
	defer c.shutdown()
	for {
		packet, err := c.conn.ReadPacket()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.log.Infow("relay socket closed", "error", err)
			}
			return
		}
		c.route(packet)
	}
}

func (c *Client) route(packet *network.Packet) {
	switch packet.MsgID {
	case network.MsgTypeMatchData:
		var data models.MatchData
		if err := packet.Decode(&data); err != nil {
			c.log.Warnw("bad match data frame", "error", err)
			return
		}
		if h := c.currentHandler(); h.OnMatchData != nil {
			h.OnMatchData(data)
		}
	case network.MsgTypeMatchPresence:
		var event models.PresenceEvent
		if err := packet.Decode(&event); err != nil {
			c.log.Warnw("bad presence frame", "error", err)
			return
		}
		if h := c.currentHandler(); h.OnPresence != nil {
			h.OnPresence(event)
		}
	case network.MsgTypeHeartbeat:
	case network.MsgTypeMatchJoined, network.MsgTypeMatchmakerMatched, network.MsgTypeError:
		if !c.expects(packet) {
			return
		}
		select {
		case c.responses <- packet:
		default:
			c.log.Warnw("response buffer full", "kind", packet.MsgID)
		}
	default:
		c.log.Debugw("unknown frame", "kind", packet.MsgID)
	}
}

// expects reports whether packet answers the request in flight. Errors for
// fire-and-forget frames are logged here since nobody waits for them.
func (c *Client) expects(packet *network.Packet) bool {
	c.inflightMutex.Lock()
	inflight := c.inflight
	c.inflightMutex.Unlock()

	if packet.MsgID != network.MsgTypeError {
		if inflight == nil || inflight.want != packet.MsgID {
			c.log.Warnw("dropping unsolicited response", "kind", packet.MsgID)
			return false
		}
		return true
	}
	var msg network.ErrorMessage
	if err := packet.Decode(&msg); err != nil {
		c.log.Warnw("bad error frame", "error", err)
		return false
	}
	if inflight == nil || inflight.kind != msg.Request {
		c.log.Warnw("relay rejected frame", "kind", msg.Request, "code", msg.Code, "message", msg.Message)
		return false
	}
	return true
}

func (c *Client) setInflight(e *exchange) {
	c.inflightMutex.Lock()
	c.inflight = e
	c.inflightMutex.Unlock()
}

func (c *Client) heartbeat() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := c.conn.SendJSON(network.MsgTypeHeartbeat, struct{}{}); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// request sends a frame and waits for the reply of kind want, or an error frame.
func (c *Client) request(ctx context.Context, kind uint16, body any, want uint16, reply any) error {
	if c.conn == nil {
		return ErrNotDialed
	}
	c.requestMutex.Lock()
	defer c.requestMutex.Unlock()

	// Replies left over from a request abandoned on ctx.
	for drained := false; !drained; {
		select {
		case <-c.responses:
		default:
			drained = true
		}
	}
	c.setInflight(&exchange{kind: kind, want: want})
	defer c.setInflight(nil)

	if err := c.conn.SendJSON(kind, body); err != nil {
		return err
	}
	for {
		select {
		case packet := <-c.responses:
			switch packet.MsgID {
			case want:
				return packet.Decode(reply)
			case network.MsgTypeError:
				var msg network.ErrorMessage
				if err := packet.Decode(&msg); err != nil {
					return err
				}
				return &ServerError{Code: msg.Code, Message: msg.Message}
			}
		case <-c.done:
			return ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Matchmake queues for a match and blocks until paired.
func (c *Client) Matchmake(ctx context.Context) (*network.MatchmakerMatched, error) {
	var matched network.MatchmakerMatched
	err := c.request(ctx, network.MsgTypeMatchmakerAdd, network.MatchmakerAdd{MinCount: 2, MaxCount: 2},
		network.MsgTypeMatchmakerMatched, &matched)
	if err != nil {
		return nil, err
	}
	return &matched, nil
}

func (c *Client) JoinMatch(ctx context.Context, descriptor models.MatchDescriptor) (*models.MatchInfo, error) {
	var info models.MatchInfo
	if err := c.request(ctx, network.MsgTypeMatchJoin, descriptor, network.MsgTypeMatchJoined, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) SendMatchState(_ context.Context, matchID string, opCode int64, data []byte) error {
	if c.conn == nil {
		return ErrNotDialed
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	return c.conn.SendJSON(network.MsgTypeMatchDataSend, network.MatchDataSend{
		MatchID: matchID,
		OpCode:  opCode,
		Data:    data,
	})
}

func (c *Client) LeaveMatch(_ context.Context, matchID string) error {
	if c.conn == nil {
		return ErrNotDialed
	}
	return c.conn.SendJSON(network.MsgTypeMatchLeave, network.MatchLeave{MatchID: matchID})
}

// Subscribe replaces the event handler. The returned func removes it unless
// another handler was subscribed since.
func (c *Client) Subscribe(h models.RelayHandler) func() {
	c.handlerMutex.Lock()
	c.handler = h
	c.handlerGen++
	gen := c.handlerGen
	c.handlerMutex.Unlock()

	return func() {
		c.handlerMutex.Lock()
		defer c.handlerMutex.Unlock()
		if c.handlerGen == gen {
			c.handler = models.RelayHandler{}
		}
	}
}

func (c *Client) currentHandler() models.RelayHandler {
	c.handlerMutex.Lock()
	defer c.handlerMutex.Unlock()
	return c.handler
}
