package sequence

import (
	"context"
	"fmt"

	"auctionhouse/pkg/rediskey"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

var Module = fx.Module("sequence",
	fx.Provide(NewRedisGenerator),
)

// Generator hands out per-tenant lot numbers for newly created auctions.
// Lot numbers are display identifiers; the auction id itself comes from the
// snowflake node.
type Generator interface {
	NextLotNumber(ctx context.Context, tenantID string) (string, error)
}

type RedisGenerator struct {
	rdb *redis.Client
}

type Params struct {
	fx.In

	Redis *redis.Client
}

func NewRedisGenerator(p Params) Generator {
	return &RedisGenerator{
		rdb: p.Redis,
	}
}

func (g *RedisGenerator) NextLotNumber(ctx context.Context, tenantID string) (string, error) {
	key := rediskey.BuildLotSequenceKey(tenantID)
	seq, err := g.rdb.Incr(ctx, key).Result()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("LOT-%05d", seq), nil
}
