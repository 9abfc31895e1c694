// Package election picks the match host from the participant set without any
// network round trip.
package election

import (
	"errors"
	"sort"

	"github.com/wfunc/piratepanic/models"
)

var ErrNoParticipants = errors.New("no participants to elect a host from")

// Elect returns the participant owning the lexicographically smallest session
// id. The result depends only on the set, not on its order.
func Elect(participants []models.Presence) (models.Presence, error) {
	if len(participants) == 0 {
		return models.Presence{}, ErrNoParticipants
	}
	sorted := append([]models.Presence(nil), participants...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].SessionID < sorted[j].SessionID
	})
	return sorted[0], nil
}

func IsHost(participants []models.Presence, userID string) bool {
	host, err := Elect(participants)
	return err == nil && host.UserID == userID
}
