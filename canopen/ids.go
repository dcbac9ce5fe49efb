package canopen

import (
	"fmt"
	"strconv"
	"strings"
)

// NodeID represents a CANopen node identifier (1..127).
type NodeID uint8

// Node id limits.
const (
	MinNodeID NodeID = 1
	MaxNodeID NodeID = 127
)

// Validate checks that the node identifier is in the range 1..127.
func (n NodeID) Validate() error {
	if n < MinNodeID || n > MaxNodeID {
		return fmt.Errorf("canopen: invalid node id %d (valid 1..127)", n)
	}
	return nil
}

// FunctionCode enumerates CANopen function code bases used here.
// See CiA 301 table for COB-IDs.
type FunctionCode uint16

const (
	FC_SDO_TX FunctionCode = 0x580 // server->client
	FC_SDO_RX FunctionCode = 0x600 // client->server
)

// COBID composes the 11-bit CAN identifier for a function code and node id.
func COBID(fc FunctionCode, node NodeID) uint32 {
	return uint32(uint16(fc) + uint16(node))
}

// RequestID is the COB-id a client addresses SDO requests to (0x600 + node).
func (n NodeID) RequestID() uint32 { return COBID(FC_SDO_RX, n) }

// ResponseID is the COB-id a node answers SDO requests from (0x580 + node).
func (n NodeID) ResponseID() uint32 { return COBID(FC_SDO_TX, n) }

// ParseCOBID infers the SDO function code and node id from an 11-bit id.
// Identifiers outside the SDO ranges are rejected.
func ParseCOBID(id uint32) (FunctionCode, NodeID, error) {
	switch {
	case id >= 0x581 && id <= 0x5FF:
		return FC_SDO_TX, NodeID(id - 0x580), nil
	case id >= 0x601 && id <= 0x67F:
		return FC_SDO_RX, NodeID(id - 0x600), nil
	default:
		return 0, 0, fmt.Errorf("canopen: id 0x%X not an SDO COB-id", id)
	}
}

// NodeRange returns the ascending node ids first..last, clamped to 1..127.
func NodeRange(first, last NodeID) []NodeID {
	if first < MinNodeID {
		first = MinNodeID
	}
	if last > MaxNodeID {
		last = MaxNodeID
	}
	if last < first {
		return nil
	}
	out := make([]NodeID, 0, int(last-first)+1)
	for n := int(first); n <= int(last); n++ {
		out = append(out, NodeID(n))
	}
	return out
}

// ParseNodeID parses a decimal or 0x-prefixed node id and validates it.
func ParseNodeID(s string) (NodeID, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 8)
	if err != nil {
		return 0, fmt.Errorf("canopen: invalid node id %q", s)
	}
	n := NodeID(v)
	if err := n.Validate(); err != nil {
		return 0, err
	}
	return n, nil
}

// ParseNodeList parses a comma separated node id list such as "1, 2,0x03".
func ParseNodeList(s string) ([]NodeID, error) {
	var out []NodeID
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		n, err := ParseNodeID(part)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("canopen: empty node list %q", s)
	}
	return out, nil
}
