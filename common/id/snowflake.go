package id

import (
	"strconv"
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	node    *snowflake.Node
	once    sync.Once
	initErr error
)

// Init initializes the Snowflake node with the given node ID.
// The CLI and the API server use different node IDs so run IDs never collide
// when both write to the same archive.
func Init(nodeID int64) error {
	once.Do(func() {
		node, initErr = snowflake.NewNode(nodeID)
	})
	return initErr
}

// New generates a time-ordered int64 ID. Init must have been called.
func New() int64 {
	return node.Generate().Int64()
}

// NewHandle returns a base36 string ID used for participant invocation handles.
// Falls back to node 0 when Init was never called (tests, library use).
func NewHandle() string {
	if node == nil {
		_ = Init(0)
	}
	return strconv.FormatInt(New(), 36)
}
