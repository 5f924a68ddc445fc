package wire

import (
	"encoding/binary"
	"fmt"
)

// ByteOrder is the byte order used for every multi-byte integer field in
// the message encoding (distinct from, but consistent with, the frame
// length prefix).
var ByteOrder = binary.BigEndian

// Kind distinguishes a request envelope from a response envelope.
type Kind uint8

const (
	KindRequest  Kind = 0
	KindResponse Kind = 1
)

// Code is the outcome reported in a Response.
type Code uint8

const (
	CodeSuccess Code = 0
	CodeError   Code = 1
)

// Command is a request payload: a command name and its positional
// byte-string parameters.
type Command struct {
	Name       string
	Parameters [][]byte
}

// Response is a reply payload. Result entries may be nil to represent the
// wire protocol's null marker (e.g. a missing key in a GET).
type Response struct {
	Code    Code
	Message string
	Result  [][]byte
}

// Message is the top-level envelope exchanged over the wire. Exactly one
// of Command or Response is set, matching Kind.
type Message struct {
	ID       uint64
	Kind     Kind
	Command  *Command
	Response *Response
}

const nullMarker = 0xFF
const presentMarker = 0x00

// Encode serializes m into its tagged binary form.
func Encode(m *Message) ([]byte, error) {
	buf := make([]byte, 0, 64)
	var idBuf [8]byte
	ByteOrder.PutUint64(idBuf[:], m.ID)
	buf = append(buf, idBuf[:]...)
	buf = append(buf, byte(m.Kind))

	switch m.Kind {
	case KindRequest:
		if m.Command == nil {
			return nil, fmt.Errorf("wire: request message missing command")
		}
		buf = appendCommand(buf, m.Command)
	case KindResponse:
		if m.Response == nil {
			return nil, fmt.Errorf("wire: response message missing response")
		}
		buf = appendResponse(buf, m.Response)
	default:
		return nil, fmt.Errorf("wire: unknown message kind %d", m.Kind)
	}
	return buf, nil
}

func appendCommand(buf []byte, c *Command) []byte {
	buf = appendLenPrefixedString(buf, c.Name)

	var countBuf [4]byte
	ByteOrder.PutUint32(countBuf[:], uint32(len(c.Parameters)))
	buf = append(buf, countBuf[:]...)
	for _, p := range c.Parameters {
		var pLen [4]byte
		ByteOrder.PutUint32(pLen[:], uint32(len(p)))
		buf = append(buf, pLen[:]...)
		buf = append(buf, p...)
	}
	return buf
}

func appendResponse(buf []byte, r *Response) []byte {
	buf = append(buf, byte(r.Code))
	buf = appendLenPrefixedString(buf, r.Message)

	var countBuf [4]byte
	ByteOrder.PutUint32(countBuf[:], uint32(len(r.Result)))
	buf = append(buf, countBuf[:]...)
	for _, entry := range r.Result {
		if entry == nil {
			buf = append(buf, nullMarker)
			continue
		}
		buf = append(buf, presentMarker)
		var eLen [4]byte
		ByteOrder.PutUint32(eLen[:], uint32(len(entry)))
		buf = append(buf, eLen[:]...)
		buf = append(buf, entry...)
	}
	return buf
}

func appendLenPrefixedString(buf []byte, s string) []byte {
	var sLen [2]byte
	ByteOrder.PutUint16(sLen[:], uint16(len(s)))
	buf = append(buf, sLen[:]...)
	return append(buf, s...)
}

// Decode parses a frame payload produced by Encode back into a Message.
func Decode(payload []byte) (*Message, error) {
	if len(payload) < 9 {
		return nil, fmt.Errorf("wire: payload too short (%d bytes)", len(payload))
	}
	m := &Message{
		ID:   ByteOrder.Uint64(payload[0:8]),
		Kind: Kind(payload[8]),
	}
	rest := payload[9:]

	switch m.Kind {
	case KindRequest:
		cmd, err := decodeCommand(rest)
		if err != nil {
			return nil, err
		}
		m.Command = cmd
	case KindResponse:
		resp, err := decodeResponse(rest)
		if err != nil {
			return nil, err
		}
		m.Response = resp
	default:
		return nil, fmt.Errorf("wire: unknown message kind %d", m.Kind)
	}
	return m, nil
}

func decodeCommand(data []byte) (*Command, error) {
	name, off, err := readLenPrefixedString(data, 0)
	if err != nil {
		return nil, fmt.Errorf("wire: command name: %w", err)
	}
	if off+4 > len(data) {
		return nil, fmt.Errorf("wire: truncated parameter count")
	}
	count := ByteOrder.Uint32(data[off:])
	off += 4

	params := make([][]byte, 0, count)
	for i := uint32(0); i < count; i++ {
		if off+4 > len(data) {
			return nil, fmt.Errorf("wire: truncated parameter %d length", i)
		}
		plen := int(ByteOrder.Uint32(data[off:]))
		off += 4
		if off+plen > len(data) {
			return nil, fmt.Errorf("wire: truncated parameter %d value", i)
		}
		p := make([]byte, plen)
		copy(p, data[off:off+plen])
		off += plen
		params = append(params, p)
	}
	return &Command{Name: name, Parameters: params}, nil
}

func decodeResponse(data []byte) (*Response, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("wire: truncated response code")
	}
	code := Code(data[0])
	msg, off, err := readLenPrefixedString(data, 1)
	if err != nil {
		return nil, fmt.Errorf("wire: response message: %w", err)
	}
	if off+4 > len(data) {
		return nil, fmt.Errorf("wire: truncated result count")
	}
	count := ByteOrder.Uint32(data[off:])
	off += 4

	result := make([][]byte, 0, count)
	for i := uint32(0); i < count; i++ {
		if off >= len(data) {
			return nil, fmt.Errorf("wire: truncated result entry %d marker", i)
		}
		marker := data[off]
		off++
		if marker == nullMarker {
			result = append(result, nil)
			continue
		}
		if off+4 > len(data) {
			return nil, fmt.Errorf("wire: truncated result entry %d length", i)
		}
		elen := int(ByteOrder.Uint32(data[off:]))
		off += 4
		if off+elen > len(data) {
			return nil, fmt.Errorf("wire: truncated result entry %d value", i)
		}
		v := make([]byte, elen)
		copy(v, data[off:off+elen])
		off += elen
		result = append(result, v)
	}
	return &Response{Code: code, Message: msg, Result: result}, nil
}

func readLenPrefixedString(data []byte, off int) (string, int, error) {
	if off+2 > len(data) {
		return "", 0, fmt.Errorf("truncated length prefix at %d", off)
	}
	length := int(ByteOrder.Uint16(data[off:]))
	off += 2
	if off+length > len(data) {
		return "", 0, fmt.Errorf("truncated string of length %d at %d", length, off)
	}
	return string(data[off : off+length]), off + length, nil
}
