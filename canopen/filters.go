package canopen

import "github.com/notnil/canbms/canbus"

// SDO-typed frame filters.

// SDORequest matches client->server SDO frames addressed to node (0x600+node).
func SDORequest(node NodeID) canbus.FrameFilter {
	return canbus.And(canbus.StandardOnly(), canbus.DataOnly(), canbus.ByID(node.RequestID()))
}

// SDOResponse matches server->client SDO frames from node (0x580+node).
func SDOResponse(node NodeID) canbus.FrameFilter {
	return canbus.And(canbus.StandardOnly(), canbus.DataOnly(), canbus.ByID(node.ResponseID()))
}

// SDOAny matches SDO traffic in either direction for nodes 1..127.
func SDOAny() canbus.FrameFilter {
	return canbus.And(canbus.StandardOnly(), canbus.Or(
		canbus.ByRange(COBID(FC_SDO_TX, MinNodeID), COBID(FC_SDO_TX, MaxNodeID)),
		canbus.ByRange(COBID(FC_SDO_RX, MinNodeID), COBID(FC_SDO_RX, MaxNodeID)),
	))
}
