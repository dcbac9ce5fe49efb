package canopen

import "fmt"

// AbortError is a node's rejection of an object access. Code is passed
// through as received.
type AbortError struct {
	Node NodeID
	Ref  ObjectRef
	Code uint32
}

func (e *AbortError) Error() string {
	if msg, ok := sdoAbortText[e.Code]; ok {
		return fmt.Sprintf("canopen: sdo abort 0x%08X node %d @ %v: %s", e.Code, e.Node, e.Ref, msg)
	}
	return fmt.Sprintf("canopen: sdo abort 0x%08X node %d @ %v", e.Code, e.Node, e.Ref)
}

// Description returns the CiA 301 text for the abort code, if known.
func (e *AbortError) Description() string { return AbortText(e.Code) }

// AbortText returns the CiA 301 description of an abort code, or "".
func AbortText(code uint32) string { return sdoAbortText[code] }

// Common SDO abort codes (subset of CiA 301)
const (
	AbortToggleBit          uint32 = 0x05030000
	AbortTimeout            uint32 = 0x05040000
	AbortCommandSpecifier   uint32 = 0x05040001
	AbortUnsupportedAccess  uint32 = 0x06010000
	AbortWriteOnly          uint32 = 0x06010001
	AbortReadOnly           uint32 = 0x06010002
	AbortObjectNotExist     uint32 = 0x06020000
	AbortLengthMismatch     uint32 = 0x06070010
	AbortSubindexNotExist   uint32 = 0x06090011
	AbortValueTooHigh       uint32 = 0x06090031
	AbortValueTooLow        uint32 = 0x06090032
	AbortGeneral            uint32 = 0x08000000
	AbortDataNotTransferred uint32 = 0x08000020
)

var sdoAbortText = map[uint32]string{
	AbortToggleBit:          "toggle bit not alternated",
	AbortTimeout:            "SDO protocol timeout",
	AbortCommandSpecifier:   "command specifier invalid or unknown",
	AbortUnsupportedAccess:  "unsupported access to object",
	AbortWriteOnly:          "attempt to read a write-only object",
	AbortReadOnly:           "attempt to write a read-only object",
	AbortObjectNotExist:     "object does not exist",
	0x06040041:              "object cannot be mapped to PDO",
	0x06040042:              "PDO length exceeded",
	0x06040043:              "general parameter incompatibility",
	0x06040047:              "internal incompatibility in device",
	0x06060000:              "hardware error",
	AbortLengthMismatch:     "data type does not match (length)",
	0x06070012:              "data type does not match (length too high)",
	0x06070013:              "data type does not match (length too low)",
	AbortSubindexNotExist:   "sub-index does not exist",
	0x06090030:              "value range exceeded",
	AbortValueTooHigh:       "value too high",
	AbortValueTooLow:        "value too low",
	0x06090036:              "maximum value less than minimum value",
	AbortGeneral:            "general error",
	AbortDataNotTransferred: "data cannot be transferred/stored",
	0x08000021:              "local control",
	0x08000022:              "device state",
	0x08000023:              "OD dynamic generation fails",
}
