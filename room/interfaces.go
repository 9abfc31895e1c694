package room

// Broadcaster defines the interface for broadcasting messages to a room.
// This is defined here to break the import cycle between room and broadcast.
type Broadcaster interface {
	// BroadcastToRoom sends v to every session in the room except exclude.
	BroadcastToRoom(roomID string, msgID uint16, v any, exclude string) error
}
