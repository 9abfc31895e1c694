package session

import (
	"net"
	"testing"
	"time"

	"github.com/wfunc/piratepanic/network"
)

// MockConnection is a test double for the network.Connection interface.
type MockConnection struct {
	sent []uint16
}

func (m *MockConnection) Send(msgID uint16, data []byte) error {
	m.sent = append(m.sent, msgID)
	return nil
}
func (m *MockConnection) SendJSON(msgID uint16, v any) error  { return m.Send(msgID, nil) }
func (m *MockConnection) Close() error                         { return nil }
func (m *MockConnection) RemoteAddr() net.Addr                 { return &net.TCPAddr{} }
func (m *MockConnection) SetHeartbeat(interval time.Duration)  {}
func (m *MockConnection) ReadPacket() (*network.Packet, error) { return nil, nil }

func TestNewManager(t *testing.T) {
	manager := NewManager()
	if manager == nil {
		t.Fatal("NewManager should not return nil")
	}
	if manager.Count() != 0 {
		t.Fatal("NewManager should start empty")
	}
}

func TestManager_Add_Remove(t *testing.T) {
	manager := NewManager()
	manager.Add(NewSession("test_session_1", &MockConnection{}, "user-1", "alice"))
	manager.Add(NewSession("test_session_2", &MockConnection{}, "user-2", "bob"))
	if manager.Count() != 2 {
		t.Fatalf("Expected session count to be 2, got %d", manager.Count())
	}

	manager.Remove("test_session_1")
	manager.Remove("unknown")
	if manager.Count() != 1 {
		t.Fatalf("Expected session count to be 1, got %d", manager.Count())
	}
}

func TestSession_PresenceAndSend(t *testing.T) {
	conn := &MockConnection{}
	sess := NewSession("s1", conn, "user-1", "alice")

	p := sess.Presence()
	if p.UserID != "user-1" || p.SessionID != "s1" || p.Username != "alice" {
		t.Fatalf("unexpected presence %+v", p)
	}

	if err := sess.Send(network.MsgTypeHeartbeat, struct{}{}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(conn.sent) != 1 || conn.sent[0] != network.MsgTypeHeartbeat {
		t.Fatalf("unexpected frames %v", conn.sent)
	}

	sess.SetMatchID("m1")
	if sess.MatchID() != "m1" {
		t.Fatalf("MatchID = %q", sess.MatchID())
	}
}
