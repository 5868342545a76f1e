// Package lineapp implements the line-reversal application that rides
// on top of an LRCP stream: read newline-terminated lines, reverse
// each one byte-for-byte, and write it back followed by a newline.
package lineapp

import (
	"bufio"
	"bytes"
	"io"

	"github.com/sirupsen/logrus"

	"protopuzzles/internal/lrcp"
)

// ScanLinesNoCR is a bufio.SplitFunc like bufio.ScanLines except it
// does not strip a trailing '\r': LRCP's line protocol is newline-only,
// so a '\r' immediately before '\n' is data, not part of the
// terminator. It also discards a final unterminated fragment at EOF
// instead of returning it, since a stream that never sends the closing
// newline has no complete line to reverse.
func ScanLinesNoCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return i + 1, data[0:i], nil
	}
	if atEOF {
		return len(data), nil, nil
	}
	return 0, nil, nil
}

// reverse returns a new slice holding b's bytes in reverse order.
func reverse(b []byte) []byte {
	out := make([]byte, len(b))
	for i, c := range b {
		out[len(b)-1-i] = c
	}
	return out
}

// Serve reads lines from stream, reverses each, and writes it back
// followed by '\n', until the stream is closed or a read/write error
// occurs. It closes stream before returning.
func Serve(stream *lrcp.Stream, log logrus.FieldLogger) {
	defer stream.Close()

	log = log.WithField("session_id", stream.SessionID())
	scanner := bufio.NewScanner(stream)
	scanner.Buffer(make([]byte, 4096), 1<<20)
	scanner.Split(ScanLinesNoCR)

	for scanner.Scan() {
		line := scanner.Bytes()
		reversed := reverse(line)
		reversed = append(reversed, '\n')
		if _, err := stream.Write(reversed); err != nil {
			log.WithError(err).Debug("lineapp: write error; closing session")
			return
		}
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		log.WithError(err).Debug("lineapp: scan error")
	}
}
