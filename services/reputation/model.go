package reputation

import (
	"math"
	"time"
)

// Record carries a user's cumulative auction trust state. Score may go
// negative; the record is never deleted.
type Record struct {
	UserID             string    `gorm:"column:user_id;primaryKey"`
	CreatedAt          time.Time `gorm:"column:created_at"`
	UpdatedAt          time.Time `gorm:"column:updated_at"`
	Score              int       `gorm:"column:score"`
	TotalAuctions      int       `gorm:"column:total_auctions"`
	SuccessfulAuctions int       `gorm:"column:successful_auctions"`
}

func (Record) TableName() string {
	return "reputation_records"
}

type Action string

const (
	ActionIncrease Action = "increase"
	ActionDecrease Action = "decrease"
)

// Event is the append-only adjustment log. Rows are written alongside every
// score change and never mutated.
type Event struct {
	ID        string    `gorm:"column:id;primaryKey"`
	UserID    string    `gorm:"column:user_id;index"`
	Action    Action    `gorm:"column:action"`
	Reason    string    `gorm:"column:reason"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (Event) TableName() string {
	return "reputation_events"
}

type Tier string

const (
	TierNovice     Tier = "novice"
	TierApprentice Tier = "apprentice"
	TierJourneyman Tier = "journeyman"
	TierExpert     Tier = "expert"
	TierMaster     Tier = "master"
)

// TierForScore is a monotone step function over the score. Breakpoints are
// strictly increasing and produce exactly five tiers.
func TierForScore(score int) Tier {
	switch {
	case score >= 100:
		return TierMaster
	case score >= 50:
		return TierExpert
	case score >= 25:
		return TierJourneyman
	case score >= 10:
		return TierApprentice
	default:
		return TierNovice
	}
}

// EligibilityLimitForTier is the highest auction value a user of the tier
// may bid into. Master is unbounded.
func EligibilityLimitForTier(tier Tier) int64 {
	switch tier {
	case TierMaster:
		return math.MaxInt64
	case TierExpert:
		return 50_000_000
	case TierJourneyman:
		return 10_000_000
	case TierApprentice:
		return 2_000_000
	default:
		return 500_000
	}
}

// BonusForTier is the settlement payout bonus, in percent.
func BonusForTier(tier Tier) int {
	switch tier {
	case TierMaster:
		return 12
	case TierExpert:
		return 8
	case TierJourneyman:
		return 5
	case TierApprentice:
		return 2
	default:
		return 0
	}
}
