package lrcp

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestSession(t *testing.T) (*Session, <-chan outboundDatagram) {
	t.Helper()
	egress := make(chan outboundDatagram, 64)
	addr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 4321}
	timers := NewTimers()
	timers.SetIdle(time.Hour) // keep the idle timer from firing mid-test
	cleaned := make(chan struct{}, 1)
	s := newServerSession(addr, 1, egress, timers, nil, testLogger(), func(*Session) {
		select {
		case cleaned <- struct{}{}:
		default:
		}
	})
	t.Cleanup(s.Abort)
	return s, egress
}

func newTestSessionWithIdle(t *testing.T, idle time.Duration) (*Session, <-chan outboundDatagram) {
	t.Helper()
	egress := make(chan outboundDatagram, 64)
	addr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 4322}
	timers := NewTimers()
	timers.SetIdle(idle)
	s := newServerSession(addr, 1, egress, timers, nil, testLogger(), func(*Session) {})
	t.Cleanup(s.Abort)
	return s, egress
}

func TestAppendReadAcceptsSequentialData(t *testing.T) {
	s, _ := newTestSession(t)
	n, err := s.appendRead(0, []byte("hello"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 5 {
		t.Fatalf("got length %d, want 5", n)
	}
	n, err = s.appendRead(5, []byte(" world"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 11 {
		t.Fatalf("got length %d, want 11", n)
	}
}

func TestAppendReadRejectsMisalignedPosition(t *testing.T) {
	s, _ := newTestSession(t)
	if _, err := s.appendRead(0, []byte("hello")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Neither retransmitted-duplicate-at-an-earlier-offset nor a gap
	// ahead of the buffer is accepted: LRCP does no reassembly.
	if _, err := s.appendRead(2, []byte("xyz")); err == nil {
		t.Fatal("expected error for misaligned position")
	}
	if _, err := s.appendRead(100, []byte("xyz")); err == nil {
		t.Fatal("expected error for position past current length")
	}
}

func TestSessionReadDeliversAppendedData(t *testing.T) {
	s, _ := newTestSession(t)
	if _, err := s.appendRead(0, []byte("hello")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	select {
	case s.readCh <- struct{}{}:
	default:
	}
	buf := make([]byte, 16)
	n, err := s.Read(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(buf[:n]) != "hello" {
		t.Fatalf("got %q, want %q", buf[:n], "hello")
	}
}

func TestSessionReadReturnsEOFAfterCloseAndDrain(t *testing.T) {
	s, _ := newTestSession(t)
	if _, err := s.appendRead(0, []byte("hi")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	buf := make([]byte, 2)
	select {
	case s.readCh <- struct{}{}:
	default:
	}
	if _, err := s.Read(buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s.cancel()
	n, err := s.Read(buf)
	if n != 0 || err != io.EOF {
		t.Fatalf("got %d, %v; want 0, io.EOF", n, err)
	}
}

func TestSessionReceiveRejectsNonAckData(t *testing.T) {
	s, _ := newTestSession(t)
	if err := s.Receive(&Message{Type: MsgConnect}); err == nil {
		t.Fatal("expected error receiving a connect message")
	}
	if err := s.Receive(&Message{Type: MsgClose}); err == nil {
		t.Fatal("expected error receiving a close message")
	}
}

func TestSessionWriteRejectsAfterClose(t *testing.T) {
	s, egress := newTestSession(t)
	go func() {
		for range egress {
		}
	}()
	s.Close()
	if _, err := s.Write([]byte("data")); err == nil {
		t.Fatal("expected error writing to closed session")
	}
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	s, egress := newTestSession(t)
	go func() {
		for range egress {
		}
	}()
	s.Close()
	s.Close() // must not panic or double-run cleanup
}

func TestSessionRefreshIdleDelaysClose(t *testing.T) {
	s, egress := newTestSessionWithIdle(t, 60*time.Millisecond)
	go func() {
		for range egress {
		}
	}()

	deadline := time.Now().Add(150 * time.Millisecond)
	for time.Now().Before(deadline) {
		s.RefreshIdle()
		time.Sleep(15 * time.Millisecond)
	}

	select {
	case <-s.ctx.Done():
		t.Fatal("session closed despite repeated idle refreshes")
	default:
	}
}

func TestSessionIdlesOutWithoutRefresh(t *testing.T) {
	s, egress := newTestSessionWithIdle(t, 30*time.Millisecond)
	go func() {
		for range egress {
		}
	}()

	select {
	case <-s.ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("expected session to idle out without any refresh")
	}
}

func TestSessionAckAboveMaxAckableClosesSession(t *testing.T) {
	s, egress := newTestSession(t)
	drained := make(chan struct{})
	go func() {
		for range egress {
		}
		close(drained)
	}()
	if err := s.Receive(&Message{Type: MsgAck, Length: 1000}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	select {
	case <-s.ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("expected session to close after an ack beyond maxAckable")
	}
}
