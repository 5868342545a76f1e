package lrcp

import "net"

// Stream is the application-facing handle for an accepted LRCP
// session: an ordered, reliable byte stream, independent of the
// Session's internal retransmit/ack bookkeeping. Applications (the
// line-reversal server, test harnesses) only ever see a Stream.
type Stream struct {
	session *Session
}

func newStream(s *Session) *Stream {
	return &Stream{session: s}
}

// Read implements io.Reader, blocking until data arrives or the peer
// closes the session.
func (s *Stream) Read(b []byte) (int, error) {
	return s.session.Read(b)
}

// Write implements io.Writer, queuing data for reliable delivery.
func (s *Stream) Write(b []byte) (int, error) {
	return s.session.Write(b)
}

// Close implements io.Closer, ending the session and notifying the peer.
func (s *Stream) Close() error {
	s.session.Close()
	return nil
}

// SessionID returns the LRCP session identifier backing this stream.
func (s *Stream) SessionID() int64 {
	return s.session.ID
}

// RemoteAddr returns the peer's network address.
func (s *Stream) RemoteAddr() net.Addr {
	return s.session.Addr
}
