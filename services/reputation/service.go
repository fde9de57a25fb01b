package reputation

import (
	"context"
	"errors"
	"time"

	"auctionhouse/pkg/db/option"
	"auctionhouse/pkg/errutil"
	"auctionhouse/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Service struct {
	db   *gorm.DB
	node *snowflake.Node

	records repository.Repository[Record]
	events  repository.Repository[Event]
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:   p.DB,
		node: p.Node,

		records: repository.ProvideStore[Record](p.DB),
		events:  repository.ProvideStore[Event](p.DB),
	}
}

// Increase credits the user with a successful auction outcome: score +1,
// totals and success counters incremented, history appended.
func (s *Service) Increase(ctx context.Context, userID, reason string) error {
	return s.adjust(ctx, userID, reason, ActionIncrease)
}

// Decrease charges the user with a failed outcome: score -1, total counter
// incremented, history appended. Success counter is untouched.
func (s *Service) Decrease(ctx context.Context, userID, reason string) error {
	return s.adjust(ctx, userID, reason, ActionDecrease)
}

func (s *Service) adjust(ctx context.Context, userID, reason string, action Action) error {
	if userID == "" {
		return errutil.BadRequest("user id is required")
	}

	delta := 1
	success := 1
	if action == ActionDecrease {
		delta = -1
		success = 0
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec Record
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).
			First(&rec).Error; err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			rec = Record{UserID: userID}
		}

		rec.Score += delta
		rec.TotalAuctions++
		rec.SuccessfulAuctions += success

		if err := tx.Save(&rec).Error; err != nil {
			return err
		}

		return tx.Create(&Event{
			ID:        s.node.Generate().String(),
			UserID:    userID,
			Action:    action,
			Reason:    reason,
			CreatedAt: time.Now().UTC(),
		}).Error
	})
	if err != nil {
		zap.L().Error("failed to adjust reputation",
			zap.String("user_id", userID),
			zap.String("action", string(action)),
			zap.Error(err),
		)
		return errutil.Internal("failed to adjust reputation", errutil.WithErr(err))
	}

	zap.L().Info("reputation adjusted",
		zap.String("user_id", userID),
		zap.String("action", string(action)),
		zap.String("reason", reason),
	)

	return nil
}

// Get returns the user's record, or a zero-valued one when the user has no
// auction history yet.
func (s *Service) Get(ctx context.Context, userID string) (*Record, error) {
	rec, err := s.records.FindOne(ctx, &Record{UserID: userID})
	if err != nil {
		return nil, errutil.Internal("failed to load reputation record", errutil.WithErr(err))
	}
	if rec == nil {
		rec = &Record{UserID: userID}
	}
	return rec, nil
}

// History returns the append-only adjustment log, newest first.
func (s *Service) History(ctx context.Context, userID string) ([]*Event, error) {
	return s.events.Find(ctx, &Event{UserID: userID},
		option.WithSortBy(option.QuerySortBy{Field: "created_at", OrderBy: "DESC"}))
}

func (s *Service) Tier(ctx context.Context, userID string) (Tier, error) {
	rec, err := s.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	return TierForScore(rec.Score), nil
}

// EligibilityLimit is the highest auction value the user may currently bid
// into, derived from their tier.
func (s *Service) EligibilityLimit(ctx context.Context, userID string) (int64, error) {
	tier, err := s.Tier(ctx, userID)
	if err != nil {
		return 0, err
	}
	return EligibilityLimitForTier(tier), nil
}

// Bonus is the user's settlement payout bonus in percent.
func (s *Service) Bonus(ctx context.Context, userID string) (int, error) {
	tier, err := s.Tier(ctx, userID)
	if err != nil {
		return 0, err
	}
	return BonusForTier(tier), nil
}

// TrustScore is the share of successful auctions in percent, 0 for users
// with no history.
func (s *Service) TrustScore(ctx context.Context, userID string) (float64, error) {
	rec, err := s.Get(ctx, userID)
	if err != nil {
		return 0, err
	}
	if rec.TotalAuctions == 0 {
		return 0, nil
	}
	return float64(rec.SuccessfulAuctions) / float64(rec.TotalAuctions) * 100, nil
}
