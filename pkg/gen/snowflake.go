package gen

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

var Module = fx.Module("snowflake",
	fx.Provide(NewNode),
)

// NewNode builds the snowflake node used for auction, bid and event IDs.
// The engine is a single authoritative process per deployment, so node id 1
// is enough.
func NewNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
