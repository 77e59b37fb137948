package region

import (
	"fmt"
	"strconv"
)

// ID uniquely identifies a Region across the fleet. The same ID appears on
// every node hosting a replica of that Region.
type ID uint64

func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ParseID parses a decimal region id. Zero is rejected.
func ParseID(s string) (ID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("region id %q: %w", s, err)
	}
	if v == 0 {
		return 0, fmt.Errorf("region id must be non-zero")
	}
	return ID(v), nil
}

// Role is the part a reporting replica plays in its Region.
type Role int

const (
	// Follower replicates from the Region leader.
	Follower Role = iota
	// Leader currently accepts writes for the Region.
	Leader
)

func (r Role) String() string {
	switch r {
	case Follower:
		return "follower"
	case Leader:
		return "leader"
	default:
		return "unknown"
	}
}
