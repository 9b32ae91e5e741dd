// Package id generates the int64 identifiers used for sessions, turn
// rows, hint records and metrics reports. Snowflake ids are
// time-ordered, which keeps session listings and report tables in
// creation order without a secondary sort column.
package id

import (
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	node *snowflake.Node
	once sync.Once
)

// Init seeds the generator with this process's node id. Call once at
// startup before any New call; repeated calls are no-ops.
func Init(nodeID int64) error {
	var err error
	once.Do(func() {
		node, err = snowflake.NewNode(nodeID)
	})
	return err
}

// New returns a fresh globally unique id.
func New() int64 {
	return node.Generate().Int64()
}
