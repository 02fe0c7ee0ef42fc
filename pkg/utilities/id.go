package utilities

import (
	"os"
	"strconv"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/segmentio/ksuid"
)

// NewKSUID generates a new globally unique KSUID string.
func NewKSUID() string {
	return ksuid.New().String()
}

// IDGenerator hands out snowflake ids from a single node so ids stay unique
// within the process.
type IDGenerator struct {
	node *snowflake.Node
}

// NewIDGenerator creates a generator for the given node id (0-1023).
func NewIDGenerator(nodeID int64) (*IDGenerator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, err
	}
	return &IDGenerator{node: node}, nil
}

// Next returns the next id.
func (g *IDGenerator) Next() int64 {
	return g.node.Generate().Int64()
}

var (
	defaultGen     *IDGenerator
	defaultGenOnce sync.Once
)

// NewSnowflakeID returns an id from a process-wide generator whose node id
// comes from SNOWFLAKE_NODE. Invalid or missing values fall back to node 1.
func NewSnowflakeID() int64 {
	defaultGenOnce.Do(func() {
		nodeID := int64(1)
		if v := os.Getenv("SNOWFLAKE_NODE"); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				nodeID = n
			}
		}
		g, err := NewIDGenerator(nodeID)
		if err != nil {
			// out-of-range node id
			g, _ = NewIDGenerator(1)
		}
		defaultGen = g
	})
	return defaultGen.Next()
}
