package lrcp

import (
	"fmt"
	"math/rand"
	"net"

	"github.com/sirupsen/logrus"
)

// Dial opens an LRCP session to raddr over a dedicated UDP socket. It
// is used by the test harness and by any command-line client; servers
// never call it. Like the server side, the dialed connection gets its
// own single egress-writer goroutine (here there's exactly one Session
// per socket, so the split is trivial but kept for symmetry).
func Dial(raddr *net.UDPAddr, timers *Timers, log logrus.FieldLogger) (*Stream, error) {
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("lrcp: dial %s: %w", raddr, err)
	}
	if timers == nil {
		timers = NewTimers()
	}

	egress := make(chan outboundDatagram, egressBufferSize)
	id := rand.Int63n(MaxFieldValue)

	cleanup := func(s *Session) {
		_ = conn.Close()
	}

	session := newClientSession(raddr, id, egress, timers, nil, log, cleanup)

	go clientWriteLoop(conn, egress)
	go clientReadLoop(conn, session, log)

	if err := session.sendConnect(); err != nil {
		return nil, fmt.Errorf("lrcp: error sending connect: %w", err)
	}
	return newStream(session), nil
}

func clientWriteLoop(conn *net.UDPConn, egress <-chan outboundDatagram) {
	for out := range egress {
		if _, err := conn.Write(out.data); err != nil {
			return
		}
	}
}

func clientReadLoop(conn *net.UDPConn, s *Session, log logrus.FieldLogger) {
	buf := make([]byte, MaxDatagramSize+1)
	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		msg, err := ParseMessage(buf[:n])
		if err != nil {
			log.WithError(err).Debug("lrcp client: dropped unparseable datagram")
			continue
		}
		if msg.SessionID != s.ID {
			log.WithFields(logrus.Fields{"got": msg.SessionID, "want": s.ID}).Warn("lrcp client: session id mismatch; closing")
			s.Close()
			return
		}
		switch msg.Type {
		case MsgConnect:
			log.Warn("lrcp client: unexpected connect from server; closing")
			s.Close()
			return
		case MsgClose:
			s.Close()
			return
		case MsgAck, MsgData:
			if err := s.Receive(msg); err != nil {
				log.WithError(err).Debug("lrcp client: dropped packet")
			}
		}
	}
}
