// Package idgen produces process-unique IDs for correlating authentication
// attempts and creation cycles in logs.
package idgen

import (
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	node *snowflake.Node
	once sync.Once
)

// Initialize sets up the Snowflake generator with a node ID. Safe to call
// more than once; only the first call takes effect.
func Initialize(nodeID int64) error {
	var err error
	once.Do(func() {
		node, err = snowflake.NewNode(nodeID)
	})
	return err
}

// GenerateID returns a new Snowflake ID as a string, initializing the
// generator with node ID 1 if Initialize was never called.
func GenerateID() string {
	if node == nil {
		_ = Initialize(1)
	}
	return node.Generate().String()
}
