package canopen

import (
	"encoding/binary"
	"fmt"

	"github.com/notnil/canbms/canbus"
)

// SDO command specifiers (bits 7..5 of byte 0).
const (
	sdoCCSDownloadInitiate = 1 // client->server
	sdoCCSUploadInitiate   = 2 // client->server
	sdoSCSUploadInitiate   = 2 // server->client
	sdoSCSDownloadInitiate = 3 // server->client
	sdoCSAbort             = 4 // either direction
)

// Expedited initiate flags: bits 3..2 hold n (unused bytes of 4..7),
// bit 1 e (expedited), bit 0 s (size indicated).
const (
	sdoFlagExpedited = 1 << 1
	sdoFlagSized     = 1 << 0
)

// Command bytes on the wire.
const (
	CmdUploadRequest   byte = sdoCCSUploadInitiate << 5                                 // 0x40
	CmdDownloadSuccess byte = sdoSCSDownloadInitiate << 5                               // 0x60
	CmdAbort           byte = sdoCSAbort << 5                                           // 0x80
	cmdUploadExpedited byte = sdoSCSUploadInitiate<<5 | sdoFlagExpedited | sdoFlagSized // 0x43 with n=0
	cmdDownloadExp     byte = sdoCCSDownloadInitiate<<5 | sdoFlagExpedited | sdoFlagSized
)

// expeditedCmd composes an expedited, size-indicated initiate command for
// 1..4 data bytes.
func expeditedCmd(base byte, size int) byte {
	return base | byte(4-size)<<2
}

// DownloadCommand returns the initiate download command byte for an
// expedited payload of size bytes: 1→0x2F, 2→0x2B, 3→0x27, 4→0x23.
func DownloadCommand(size int) (byte, error) {
	if err := checkExpeditedSize(size); err != nil {
		return 0, err
	}
	return expeditedCmd(cmdDownloadExp, size), nil
}

// UploadCommand returns the expedited upload response command byte for
// size bytes: 1→0x4F, 2→0x4B, 3→0x47, 4→0x43.
func UploadCommand(size int) (byte, error) {
	if err := checkExpeditedSize(size); err != nil {
		return 0, err
	}
	return expeditedCmd(cmdUploadExpedited, size), nil
}

func checkExpeditedSize(size int) error {
	switch {
	case size > 4:
		return fmt.Errorf("%w: got %d", ErrPayloadTooLarge, size)
	case size < 1:
		return ErrEmptyPayload
	}
	return nil
}

// isUploadSuccess reports whether cmd is one of 0x43, 0x47, 0x4B, 0x4F.
func isUploadSuccess(cmd byte) bool {
	return cmd&^0x0C == cmdUploadExpedited
}

func sdoFrame(id uint32, cmd byte, ref ObjectRef) canbus.Frame {
	var f canbus.Frame
	f.ID = id
	f.Len = 8
	f.Data[0] = cmd
	binary.LittleEndian.PutUint16(f.Data[1:3], ref.Index)
	f.Data[3] = ref.Subindex
	return f
}

func frameRef(f canbus.Frame) ObjectRef {
	return ObjectRef{Index: binary.LittleEndian.Uint16(f.Data[1:3]), Subindex: f.Data[3]}
}

// UploadRequest builds the client->server initiate upload frame
// [0x40, idx_lo, idx_hi, sub, 0, 0, 0, 0].
func UploadRequest(node NodeID, ref ObjectRef) (canbus.Frame, error) {
	if err := node.Validate(); err != nil {
		return canbus.Frame{}, err
	}
	return sdoFrame(node.RequestID(), CmdUploadRequest, ref), nil
}

// DownloadRequest builds the client->server expedited download frame. data is
// zero padded on the right to 4 bytes.
func DownloadRequest(node NodeID, ref ObjectRef, data []byte) (canbus.Frame, error) {
	cmd, err := DownloadCommand(len(data))
	if err != nil {
		return canbus.Frame{}, err
	}
	if err := node.Validate(); err != nil {
		return canbus.Frame{}, err
	}
	f := sdoFrame(node.RequestID(), cmd, ref)
	copy(f.Data[4:8], data)
	return f, nil
}

// UploadResponse builds the server->client expedited upload response.
func UploadResponse(node NodeID, ref ObjectRef, data []byte) (canbus.Frame, error) {
	cmd, err := UploadCommand(len(data))
	if err != nil {
		return canbus.Frame{}, err
	}
	if err := node.Validate(); err != nil {
		return canbus.Frame{}, err
	}
	f := sdoFrame(node.ResponseID(), cmd, ref)
	copy(f.Data[4:8], data)
	return f, nil
}

// DownloadResponse builds the server->client download acknowledgement that
// echoes ref.
func DownloadResponse(node NodeID, ref ObjectRef) (canbus.Frame, error) {
	if err := node.Validate(); err != nil {
		return canbus.Frame{}, err
	}
	return sdoFrame(node.ResponseID(), CmdDownloadSuccess, ref), nil
}

// AbortResponse builds a server->client abort carrying code in bytes 4..7.
func AbortResponse(node NodeID, ref ObjectRef, code uint32) (canbus.Frame, error) {
	if err := node.Validate(); err != nil {
		return canbus.Frame{}, err
	}
	f := sdoFrame(node.ResponseID(), CmdAbort, ref)
	binary.LittleEndian.PutUint32(f.Data[4:8], code)
	return f, nil
}

// ResponseKind classifies a server->client SDO frame by its leading byte.
type ResponseKind uint8

const (
	ResponseOther ResponseKind = iota
	ResponseUpload
	ResponseDownload
	ResponseAbort
)

func (k ResponseKind) String() string {
	switch k {
	case ResponseUpload:
		return "upload"
	case ResponseDownload:
		return "download"
	case ResponseAbort:
		return "abort"
	default:
		return "other"
	}
}

// Response is a classified SDO response frame.
type Response struct {
	Kind ResponseKind
	Ref  ObjectRef // as echoed in bytes 1..3
	Data [4]byte   // bytes 4..7; the abort code for ResponseAbort
}

// AbortCode returns the little-endian abort code of an abort response.
func (r Response) AbortCode() uint32 { return binary.LittleEndian.Uint32(r.Data[:]) }

// ClassifyResponse inspects an SDO response frame. Frames that are not
// 8 bytes long are classified as ResponseOther.
func ClassifyResponse(f canbus.Frame) Response {
	if f.Len != 8 || f.RTR {
		return Response{Kind: ResponseOther}
	}
	r := Response{Ref: frameRef(f)}
	copy(r.Data[:], f.Data[4:8])
	switch cmd := f.Data[0]; {
	case cmd == CmdAbort:
		r.Kind = ResponseAbort
	case cmd == CmdDownloadSuccess:
		r.Kind = ResponseDownload
	case isUploadSuccess(cmd):
		r.Kind = ResponseUpload
	default:
		r.Kind = ResponseOther
	}
	return r
}

// Request is a parsed client->server expedited SDO request.
type Request struct {
	Node   NodeID
	Ref    ObjectRef
	Upload bool   // false for a download
	Data   []byte // download payload, 1..4 bytes
}

// ParseRequest decodes a client->server initiate upload or expedited
// download frame. Segmented and block requests are rejected.
func ParseRequest(f canbus.Frame) (Request, error) {
	fc, node, err := ParseCOBID(f.ID)
	if err != nil {
		return Request{}, err
	}
	if fc != FC_SDO_RX {
		return Request{}, fmt.Errorf("canopen: not SDO rx frame (id=0x%X)", f.ID)
	}
	if f.Len != 8 {
		return Request{}, fmt.Errorf("canopen: SDO frame len %d, want 8", f.Len)
	}
	req := Request{Node: node, Ref: frameRef(f)}
	cmd := f.Data[0]
	switch {
	case cmd == CmdUploadRequest:
		req.Upload = true
	case cmd&^0x0C == cmdDownloadExp:
		size := 4 - int(cmd>>2&0x3)
		req.Data = append([]byte(nil), f.Data[4:4+size]...)
	default:
		return Request{}, fmt.Errorf("canopen: unsupported SDO command 0x%02X", cmd)
	}
	return req, nil
}
