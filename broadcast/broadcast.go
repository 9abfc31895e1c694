// broadcast/broadcast.go
package broadcast

import (
	"errors"

	"go.uber.org/multierr"

	"github.com/wfunc/piratepanic/room"
	"github.com/wfunc/piratepanic/session"
)

var (
	ErrRoomNotFound = errors.New("room not found")
)

// SendObserver is told about every frame delivered to a session.
type SendObserver interface {
	IncMessagesSent()
}

// RoomBroadcaster 基于房间的广播器, implements room.Broadcaster.
type RoomBroadcaster struct {
	roomManager *room.Manager
	observer    SendObserver
}

func NewRoomBroadcaster(roomManager *room.Manager, observer SendObserver) *RoomBroadcaster {
	return &RoomBroadcaster{
		roomManager: roomManager,
		observer:    observer,
	}
}

// BroadcastToRoom keeps sending after a failed session and reports every
// failure together.
func (b *RoomBroadcaster) BroadcastToRoom(roomID string, msgID uint16, v any, exclude string) error {
	r, exists := b.roomManager.GetRoom(roomID)
	if !exists {
		return ErrRoomNotFound
	}

	var errs error
	for _, s := range r.GetSessions() {
		if s.ID == exclude {
			continue
		}
		errs = multierr.Append(errs, b.send(s, msgID, v))
	}
	return errs
}

func (b *RoomBroadcaster) send(s *session.Session, msgID uint16, v any) error {
	if err := s.Send(msgID, v); err != nil {
		return err
	}
	if b.observer != nil {
		b.observer.IncMessagesSent()
	}
	return nil
}
