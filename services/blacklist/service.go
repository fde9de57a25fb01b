package blacklist

import (
	"context"
	"time"

	"auctionhouse/pkg/errutil"
	"auctionhouse/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	node    *snowflake.Node
	entries repository.Repository[Entry]
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		node:    p.Node,
		entries: repository.ProvideStore[Entry](p.DB),
	}
}

func (s *Service) Contains(ctx context.Context, tenantID, userID string) (bool, error) {
	n, err := s.entries.Count(ctx, &Entry{TenantID: tenantID, UserID: userID})
	if err != nil {
		return false, errutil.Internal("failed to check blacklist", errutil.WithErr(err))
	}
	return n > 0, nil
}

// Add is idempotent: a user already on the tenant's blacklist stays there.
func (s *Service) Add(ctx context.Context, tenantID, userID, reason string) error {
	listed, err := s.Contains(ctx, tenantID, userID)
	if err != nil {
		return err
	}
	if listed {
		return nil
	}

	entry := &Entry{
		ID:        s.node.Generate().String(),
		TenantID:  tenantID,
		UserID:    userID,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.entries.Create(ctx, entry); err != nil {
		zap.L().Error("failed to add blacklist entry",
			zap.String("tenant_id", tenantID),
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return errutil.Internal("failed to add blacklist entry", errutil.WithErr(err))
	}

	zap.L().Info("user blacklisted",
		zap.String("tenant_id", tenantID),
		zap.String("user_id", userID),
		zap.String("reason", reason),
	)

	return nil
}

func (s *Service) Remove(ctx context.Context, tenantID, userID string) error {
	if err := s.entries.Delete(ctx, &Entry{TenantID: tenantID, UserID: userID}); err != nil {
		return errutil.Internal("failed to remove blacklist entry", errutil.WithErr(err))
	}
	return nil
}
