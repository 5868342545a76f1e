// Package lrcp implements the Line Reversal Control Protocol: a reliable,
// ordered byte-stream transport built on top of unreliable UDP datagrams.
package lrcp

import (
	"fmt"
	"strconv"
)

// MaxFieldValue is the exclusive upper bound on any numeric field
// (session id, position, length) the wire format allows.
const MaxFieldValue = 1 << 31

// MaxDatagramSize is the largest number of bytes a serialized LRCP
// message may occupy on the wire.
const MaxDatagramSize = 999

// MsgType identifies which of the four LRCP message shapes a Message is.
type MsgType int

const (
	MsgConnect MsgType = iota
	MsgData
	MsgAck
	MsgClose
)

func (t MsgType) String() string {
	switch t {
	case MsgConnect:
		return "connect"
	case MsgData:
		return "data"
	case MsgAck:
		return "ack"
	case MsgClose:
		return "close"
	default:
		return "unknown"
	}
}

// Message is the parsed form of one LRCP datagram. Only the fields
// relevant to Type are meaningful; Payload, if present, is already
// unescaped plaintext.
type Message struct {
	Type      MsgType
	SessionID int64
	Pos       int64
	Payload   []byte
	Length    int64
}

// ParseMessage decodes a single UDP payload into a Message. Any
// malformed input — wrong field count, missing delimiters, non-numeric
// or out-of-range numeric fields, non-ASCII bytes, unescaped slashes in
// the data field — yields an error, and the caller should silently
// drop the datagram.
func ParseMessage(raw []byte) (*Message, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("lrcp: empty datagram")
	}
	if !isASCII(raw) {
		return nil, fmt.Errorf("lrcp: datagram contains non-ASCII bytes")
	}
	if raw[0] != '/' {
		return nil, fmt.Errorf("lrcp: missing leading /")
	}

	typeField, rest, err := nextField(raw[1:])
	if err != nil {
		return nil, fmt.Errorf("lrcp: error reading type field: %w", err)
	}

	sidField, rest, err := nextField(rest)
	if err != nil {
		return nil, fmt.Errorf("lrcp: error reading session field: %w", err)
	}
	sid, err := parseFieldInt(sidField)
	if err != nil {
		return nil, fmt.Errorf("lrcp: bad session id: %w", err)
	}

	switch string(typeField) {
	case "connect":
		if len(rest) != 0 {
			return nil, fmt.Errorf("lrcp: trailing data after connect session field")
		}
		return &Message{Type: MsgConnect, SessionID: sid}, nil

	case "close":
		if len(rest) != 0 {
			return nil, fmt.Errorf("lrcp: trailing data after close session field")
		}
		return &Message{Type: MsgClose, SessionID: sid}, nil

	case "ack":
		lenField, rest, err := nextField(rest)
		if err != nil {
			return nil, fmt.Errorf("lrcp: error reading ack length field: %w", err)
		}
		if len(rest) != 0 {
			return nil, fmt.Errorf("lrcp: trailing data after ack length field")
		}
		length, err := parseFieldInt(lenField)
		if err != nil {
			return nil, fmt.Errorf("lrcp: bad ack length: %w", err)
		}
		return &Message{Type: MsgAck, SessionID: sid, Length: length}, nil

	case "data":
		posField, rest, err := nextField(rest)
		if err != nil {
			return nil, fmt.Errorf("lrcp: error reading data pos field: %w", err)
		}
		pos, err := parseFieldInt(posField)
		if err != nil {
			return nil, fmt.Errorf("lrcp: bad data pos: %w", err)
		}
		escaped, rest, err := nextField(rest)
		if err != nil {
			return nil, fmt.Errorf("lrcp: error reading data payload field: %w", err)
		}
		if len(rest) != 0 {
			return nil, fmt.Errorf("lrcp: trailing data after data payload field")
		}
		payload, err := unescapePayload(escaped)
		if err != nil {
			return nil, fmt.Errorf("lrcp: bad data payload: %w", err)
		}
		if pos+int64(len(payload)) > MaxFieldValue {
			return nil, fmt.Errorf("lrcp: data pos+len exceeds field bound")
		}
		return &Message{Type: MsgData, SessionID: sid, Pos: pos, Payload: payload}, nil

	default:
		return nil, fmt.Errorf("lrcp: unknown message type %q", typeField)
	}
}

// nextField scans bs for the next unescaped '/', returning the bytes
// before it and everything after it. An unescaped backslash only
// escapes an immediately following '/' or '\'; anything else terminates
// the field at the first bare '/'.
func nextField(bs []byte) (field, rest []byte, err error) {
	for i := 0; i < len(bs); i++ {
		if bs[i] != '/' {
			continue
		}
		if i > 0 && bs[i-1] == '\\' && !precedingBackslashEscaped(bs, i-1) {
			continue
		}
		return bs[:i], bs[i+1:], nil
	}
	return nil, nil, fmt.Errorf("no terminating / found in %q", bs)
}

// precedingBackslashEscaped reports whether the backslash at index i is
// itself the escaped half of a `\\` pair, rather than the start of a new
// escape sequence. It walks back over the run of consecutive backslashes
// ending at i: an even-length run fully pairs off, so the backslash at i
// is inert and whatever follows it (e.g. a '/') is not escaped by it. An
// odd-length run leaves the backslash at i unpaired, so it does escape
// whatever follows. This is what makes `\\/` parse as an escaped
// backslash followed by a bare terminator, not an escaped slash.
func precedingBackslashEscaped(bs []byte, i int) bool {
	count := 0
	for j := i; j >= 0 && bs[j] == '\\'; j-- {
		count++
	}
	return count%2 == 0
}

func parseFieldInt(bs []byte) (int64, error) {
	if len(bs) == 0 {
		return 0, fmt.Errorf("empty numeric field")
	}
	for _, b := range bs {
		if b < '0' || b > '9' {
			return 0, fmt.Errorf("non-digit byte in numeric field %q", bs)
		}
	}
	n, err := strconv.ParseInt(string(bs), 10, 64)
	if err != nil {
		return 0, err
	}
	if n >= MaxFieldValue {
		return 0, fmt.Errorf("value %d exceeds field bound %d", n, MaxFieldValue)
	}
	return n, nil
}

func isASCII(bs []byte) bool {
	for _, b := range bs {
		if b >= 0x80 {
			return false
		}
	}
	return true
}

// unescapePayload is the inverse of escapePayload: `\/` -> `/`, `\\` -> `\`.
// An unescaped bare backslash (not followed by `/` or `\`) is preserved
// as-is, per spec.md §4.1.
func unescapePayload(bs []byte) ([]byte, error) {
	out := make([]byte, 0, len(bs))
	for i := 0; i < len(bs); i++ {
		if bs[i] == '\\' && i+1 < len(bs) && (bs[i+1] == '/' || bs[i+1] == '\\') {
			out = append(out, bs[i+1])
			i++
			continue
		}
		out = append(out, bs[i])
	}
	return out, nil
}

// escapePayload transforms raw plaintext into the escaped form used in
// a data message's payload field: literal `\` becomes `\\`, literal
// `/` becomes `\/`.
func escapePayload(raw []byte) []byte {
	out := make([]byte, 0, len(raw))
	for _, b := range raw {
		switch b {
		case '\\':
			out = append(out, '\\', '\\')
		case '/':
			out = append(out, '\\', '/')
		default:
			out = append(out, b)
		}
	}
	return out
}

// EncodeConnect serializes a Connect message.
func EncodeConnect(sessionID int64) []byte {
	return []byte(fmt.Sprintf("/connect/%d/", sessionID))
}

// EncodeAck serializes an Ack message.
func EncodeAck(sessionID, length int64) []byte {
	return []byte(fmt.Sprintf("/ack/%d/%d/", sessionID, length))
}

// EncodeClose serializes a Close message.
func EncodeClose(sessionID int64) []byte {
	return []byte(fmt.Sprintf("/close/%d/", sessionID))
}

// EncodeData serializes a single Data message. It returns an error if
// the result would exceed MaxDatagramSize; callers should chunk with
// ChunkPayload first.
func EncodeData(sessionID, pos int64, payload []byte) ([]byte, error) {
	buf := []byte(fmt.Sprintf("/data/%d/%d/", sessionID, pos))
	buf = append(buf, escapePayload(payload)...)
	buf = append(buf, '/')
	if len(buf) >= MaxDatagramSize+1 {
		return nil, fmt.Errorf("lrcp: encoded data message is %d bytes, exceeds limit", len(buf))
	}
	return buf, nil
}

// DataChunk is one maximal slice of a pending payload, together with
// the stream offset of its first byte.
type DataChunk struct {
	Pos     int64
	Payload []byte
}

// ChunkPayload splits payload (starting at stream offset startPos) into
// the fewest chunks such that each, once encoded as a Data message, is
// at most MaxDatagramSize bytes. It measures the actual encoded
// length and binary-searches the cut point, so it stays correct even
// against a payload that is entirely '/' and '\' bytes (the worst case
// for escape expansion).
func ChunkPayload(sessionID, startPos int64, payload []byte) []DataChunk {
	var chunks []DataChunk
	pos := startPos
	remaining := payload
	for len(remaining) > 0 {
		n := maxEncodableLength(sessionID, pos, remaining)
		if n == 0 {
			// Pathological: even a single byte doesn't fit (e.g. an
			// enormous session id leaves no room). Force progress by
			// taking one raw byte; EncodeData will then legitimately
			// fail upstream if it truly cannot fit, surfacing the bug.
			n = 1
		}
		chunks = append(chunks, DataChunk{Pos: pos, Payload: remaining[:n]})
		pos += int64(n)
		remaining = remaining[n:]
	}
	return chunks
}

// maxEncodableLength returns the largest prefix length of data that
// encodes to a Data message of at most MaxDatagramSize bytes, for
// the given sessionID/pos envelope.
func maxEncodableLength(sessionID, pos int64, data []byte) int {
	fits := func(n int) bool {
		msg, err := EncodeData(sessionID, pos, data[:n])
		return err == nil && len(msg) <= MaxDatagramSize
	}
	lo, hi := 0, len(data)
	if fits(hi) {
		return hi
	}
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if fits(mid) {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}
