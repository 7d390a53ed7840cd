package messenger

import (
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
)

// IDGenerator hands out conversation and message identifiers.
type IDGenerator interface {
	NextID() int64
}

// SnowflakeIDs generates time-ordered ids that stay unique within a
// millisecond: 41 bits of time, 10 bits of node id, 12 bits of sequence.
// Two processes need distinct node ids.
type SnowflakeIDs struct {
	node *snowflake.Node
}

// NewSnowflakeIDs creates a generator for the given node id (0-1023).
func NewSnowflakeIDs(nodeID int64) (*SnowflakeIDs, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", nodeID, err)
	}
	return &SnowflakeIDs{node: node}, nil
}

func (g *SnowflakeIDs) NextID() int64 {
	return g.node.Generate().Int64()
}

// Clock supplies the time stamped on new rows.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// stamp reads the clock at the precision the tables keep.
func stamp(c Clock) time.Time {
	return time.UnixMilli(c.Now().UnixMilli()).UTC()
}
