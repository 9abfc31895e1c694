// models/gorm_models.go
package models

import (
	"gorm.io/gorm"
)

// MatchResult is the persisted outcome of a finished match.
type MatchResult struct {
	gorm.Model
	MatchID               string `gorm:"uniqueIndex;not null"`
	WinnerID              string `gorm:"index;not null"`
	LoserID               string `gorm:"index;not null"`
	WinnerTowersDestroyed int    `gorm:"default:0"`
	LoserTowersDestroyed  int    `gorm:"default:0"`
	DurationSeconds       int    `gorm:"default:0"`
	ReportedBy            string `gorm:"not null"`
}

func NewMatchResult(ended MatchEnded, reportedBy string) *MatchResult {
	return &MatchResult{
		MatchID:               ended.MatchID,
		WinnerID:              ended.WinnerID,
		LoserID:               ended.LoserID,
		WinnerTowersDestroyed: ended.WinnerTowersDestroyed,
		LoserTowersDestroyed:  ended.LoserTowersDestroyed,
		DurationSeconds:       ended.DurationSeconds,
		ReportedBy:            reportedBy,
	}
}

func (r *MatchResult) Ended() MatchEnded {
	return MatchEnded{
		MatchID:               r.MatchID,
		WinnerID:              r.WinnerID,
		LoserID:               r.LoserID,
		WinnerTowersDestroyed: r.WinnerTowersDestroyed,
		LoserTowersDestroyed:  r.LoserTowersDestroyed,
		DurationSeconds:       r.DurationSeconds,
	}
}
