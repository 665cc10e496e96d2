// Package snowflake generates time-ordered 63-bit identifiers.
//
// Layout (most significant first): 41 bits of milliseconds since the epoch,
// 10 bits of node id, 12 bits of per-millisecond sequence. IDs from one node
// are strictly increasing, so ordering by id is ordering by creation time.
package snowflake

import (
	"fmt"
	"sync"
	"time"
)

// Epoch is 2024-01-01T00:00:00Z in unix milliseconds.
const Epoch int64 = 1704067200000

const (
	nodeBits     = 10
	sequenceBits = 12

	MaxNode     = (1 << nodeBits) - 1
	maxSequence = (1 << sequenceBits) - 1

	nodeShift = sequenceBits
	timeShift = sequenceBits + nodeBits
)

// Node produces unique ids for one process.
type Node struct {
	mu       sync.Mutex
	node     int64
	sequence int64
	last     int64
	now      func() int64
}

// NewNode creates a generator for node id in [0, MaxNode].
func NewNode(node int64) (*Node, error) {
	if node < 0 || node > MaxNode {
		return nil, fmt.Errorf("snowflake: node must be between 0 and %d", MaxNode)
	}
	return &Node{
		node: node,
		now:  func() int64 { return time.Now().UnixMilli() - Epoch },
	}, nil
}

// Next returns the next id. It blocks briefly when the sequence for the
// current millisecond is exhausted, and never goes backwards when the wall
// clock does.
func (n *Node) Next() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := n.now()
	if now < n.last {
		now = n.last
	}

	if now == n.last {
		n.sequence = (n.sequence + 1) & maxSequence
		if n.sequence == 0 {
			for now <= n.last {
				now = n.now()
			}
		}
	} else {
		n.sequence = 0
	}
	n.last = now

	return now<<timeShift | n.node<<nodeShift | n.sequence
}

// Time returns the creation time embedded in id.
func Time(id int64) time.Time {
	return time.UnixMilli((id >> timeShift) + Epoch)
}

// NodeOf returns the node id embedded in id.
func NodeOf(id int64) int64 {
	return (id >> nodeShift) & MaxNode
}
