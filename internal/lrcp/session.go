package lrcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
)

// receiveBufferSize bounds how many unprocessed ack/data messages a
// Session will queue before it starts dropping them. Tuned the same way
// as the teacher's: large enough to ride out bursts, small enough that
// a stalled session can't accumulate unbounded memory.
const receiveBufferSize = 16

// maxStreamLength is the exclusive upper bound on the cumulative byte
// count, in either direction, of a single session's stream. It mirrors the wire
// format's field bound (spec.md §3): any position or length the codec
// would refuse to encode can never legitimately appear here either.
const maxStreamLength = MaxFieldValue

// Session owns all mutable state for one LRCP connection. Its fields
// are touched only by Session's own methods and its two worker
// goroutines (readWorker, writeWorker); there is no shared Session
// state visible to the Router.
type Session struct {
	readLock  sync.Mutex
	writeLock sync.Mutex
	closeLock sync.Mutex

	Addr net.Addr
	ID   int64

	// egress is the single channel every Session funnels outbound
	// datagrams through; a dedicated writer goroutine owned by the
	// Router drains it and is the only goroutine that ever touches the
	// UDP socket (spec.md §4.3, SPEC_FULL.md "single egress-writer task").
	egress chan<- outboundDatagram

	timers  *Timers
	metrics *Metrics
	log     logrus.FieldLogger

	ctx    context.Context
	cancel context.CancelFunc

	cleanup func(s *Session)

	receiveCh chan *Message
	refreshCh chan struct{}
	readCh    chan struct{}

	readBuffer []byte
	readIndex  int64

	// lastAck is the length last acknowledged by the peer. -1 means a
	// client session still awaiting the ack of its own connect.
	lastAck atomic.Int64
	// maxAckable is the largest length we have ever sent; an ack above
	// it is a protocol violation.
	maxAckable atomic.Int64

	writeBuffer []byte

	isClient bool
}

func newSession(addr net.Addr, id int64, egress chan<- outboundDatagram, timers *Timers, metrics *Metrics, log logrus.FieldLogger, cleanup func(s *Session), isClient bool) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		Addr:        addr,
		ID:          id,
		egress:      egress,
		timers:      timers,
		metrics:     metrics,
		log:         log.WithFields(logrus.Fields{"session_id": id, "trace_id": xid.New().String(), "peer": addr.String()}),
		ctx:         ctx,
		cancel:      cancel,
		cleanup:     cleanup,
		receiveCh:   make(chan *Message, receiveBufferSize),
		refreshCh:   make(chan struct{}, 1),
		readCh:      make(chan struct{}, 1),
		readBuffer:  make([]byte, 0, 1024),
		writeBuffer: make([]byte, 0, 1024),
		isClient:    isClient,
	}
	if isClient {
		s.lastAck.Store(-1)
	}
	metrics.sessionOpened()
	go s.readWorker()
	go s.writeWorker()
	return s
}

// newServerSession is used by the Router when a peer's /connect/ opens
// a new session.
func newServerSession(addr net.Addr, id int64, egress chan<- outboundDatagram, timers *Timers, metrics *Metrics, log logrus.FieldLogger, cleanup func(s *Session)) *Session {
	return newSession(addr, id, egress, timers, metrics, log, cleanup, false)
}

// newClientSession is used by the LRCP client harness (internal/lrcp/client.go)
// to dial a peer.
func newClientSession(addr net.Addr, id int64, egress chan<- outboundDatagram, timers *Timers, metrics *Metrics, log logrus.FieldLogger, cleanup func(s *Session)) *Session {
	return newSession(addr, id, egress, timers, metrics, log, cleanup, true)
}

// Key uniquely identifies a session by peer address and session id.
func (s *Session) Key() string {
	return fmt.Sprintf("%s-%d", s.Addr, s.ID)
}

// Read implements io.Reader over the data the peer has sent so far.
func (s *Session) Read(b []byte) (int, error) {
	select {
	case <-s.ctx.Done():
		s.readLock.Lock()
		defer s.readLock.Unlock()
		if s.readIndex >= int64(len(s.readBuffer)) {
			return 0, io.EOF
		}
	case <-s.readCh:
		s.readLock.Lock()
		defer s.readLock.Unlock()
	}
	if s.readIndex >= int64(len(s.readBuffer)) {
		return 0, nil
	}
	n := copy(b, s.readBuffer[s.readIndex:])
	s.readIndex += int64(n)
	if s.readIndex < int64(len(s.readBuffer)) {
		select {
		case s.readCh <- struct{}{}:
		default:
		}
	}
	return n, nil
}

// appendRead records data received at stream offset pos. Per spec.md
// §4.2's "no reassembly buffer" rule, data that doesn't land exactly at
// the current end of the buffer is rejected (and the caller still acks
// the unchanged current length) rather than stashed for later.
func (s *Session) appendRead(pos int64, b []byte) (int64, error) {
	s.readLock.Lock()
	defer s.readLock.Unlock()

	select {
	case <-s.ctx.Done():
		return int64(len(s.readBuffer)), fmt.Errorf("session %s is closed", s.Key())
	default:
	}

	if pos < 0 {
		return int64(len(s.readBuffer)), fmt.Errorf("invalid position %d < 0", pos)
	}
	if pos != int64(len(s.readBuffer)) {
		return int64(len(s.readBuffer)), fmt.Errorf("position %d != current data length %d", pos, len(s.readBuffer))
	}
	if total := pos + int64(len(b)); total >= maxStreamLength {
		return int64(len(s.readBuffer)), fmt.Errorf("total data length %d exceeds max transmission size %d", total, maxStreamLength)
	}
	s.readBuffer = append(s.readBuffer, b...)
	s.metrics.bytesReceived(len(b))
	return int64(len(s.readBuffer)), nil
}

// Write queues application data for delivery to the peer.
func (s *Session) Write(b []byte) (int, error) {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()
	select {
	case <-s.ctx.Done():
		return 0, fmt.Errorf("session %s is closed", s.Key())
	default:
	}
	total := int64(len(s.writeBuffer) + len(b))
	if total >= maxStreamLength {
		return 0, fmt.Errorf("total data length %d exceeds max transmission size %d", total, maxStreamLength)
	}
	s.writeBuffer = append(s.writeBuffer, b...)
	return len(b), nil
}

// Abort tears down a Session's goroutines without notifying the peer.
// Useful for a Session that was speculatively created (e.g. a racing
// duplicate connect) and must be discarded before use.
func (s *Session) Abort() {
	s.cancel()
}

// Close ends the session: stops its workers, tells the peer, and asks
// the Router to forget it. Safe to call more than once.
func (s *Session) Close() {
	s.closeLock.Lock()
	defer s.closeLock.Unlock()

	select {
	case <-s.ctx.Done():
		return
	default:
	}
	s.sendClose()
	s.cancel()
	s.metrics.sessionClosed()
	s.cleanup(s)
}

func (s *Session) readWorker() {
	timer := time.NewTimer(s.timers.Idle())
	defer timer.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-timer.C:
			s.log.Info("no reply from peer within idle timeout; closing session")
			s.Close()
			return
		case <-s.refreshCh:
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(s.timers.Idle())
		case msg := <-s.receiveCh:
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(s.timers.Idle())

			switch msg.Type {
			case MsgAck:
				maxAckable := s.maxAckable.Load()
				if msg.Length > maxAckable {
					s.log.WithFields(logrus.Fields{"ack_length": msg.Length, "max_ackable": maxAckable}).
						Warn("peer acked beyond what was ever sent; closing session")
					s.metrics.violation()
					s.Close()
					return
				}
				for {
					lastAck := s.lastAck.Load()
					if msg.Length <= lastAck {
						break
					}
					if s.lastAck.CompareAndSwap(lastAck, msg.Length) {
						break
					}
				}
			case MsgData:
				n, err := s.appendRead(msg.Pos, msg.Payload)
				s.sendAck(n)
				if err != nil {
					s.log.WithError(err).Debug("dropped misaligned or invalid data message")
					continue
				}
				select {
				case s.readCh <- struct{}{}:
				default:
				}
			default:
				s.log.WithField("type", msg.Type).Warn("unexpected message type forwarded to session")
			}
		}
	}
}

// Receive hands an ack or data message to the session's readWorker
// without blocking. If the session's inbound queue is full the
// datagram is dropped, matching the protocol's general tolerance for
// dropped packets (the peer will retransmit).
func (s *Session) Receive(msg *Message) error {
	if msg.Type != MsgAck && msg.Type != MsgData {
		return fmt.Errorf("session only accepts ack or data messages, got %s", msg.Type)
	}
	select {
	case s.receiveCh <- msg:
		return nil
	default:
		return errors.New("receive queue full")
	}
}

// RefreshIdle resets the session's idle timer without otherwise
// touching its state. The Router calls this for a duplicate Connect on
// an already-known session id: spec.md's state table treats a repeat
// Connect as evidence the peer is still alive, distinct from an ack or
// data message but just as deserving of an idle-timeout reset.
func (s *Session) RefreshIdle() {
	select {
	case s.refreshCh <- struct{}{}:
	default:
	}
}

func (s *Session) writeWorker() {
	ticker := time.NewTicker(s.timers.Retransmit())
	defer ticker.Stop()
	writeIndex := int64(0)

	send := func(retransmit bool) {
		s.writeLock.Lock()
		defer s.writeLock.Unlock()
		if writeIndex >= int64(len(s.writeBuffer)) {
			return
		}
		chunks := ChunkPayload(s.ID, writeIndex, s.writeBuffer[writeIndex:])
		for _, c := range chunks {
			msg, err := EncodeData(s.ID, c.Pos, c.Payload)
			if err != nil {
				s.log.WithError(err).Error("failed to encode outbound data chunk")
				return
			}
			if err := s.send(msg); err != nil {
				s.log.WithError(err).Debug("failed to enqueue outbound data chunk")
				return
			}
			if retransmit {
				s.metrics.retransmit()
			}
			writeIndex += int64(len(c.Payload))
			s.metrics.bytesSent(len(c.Payload))
		}
		for {
			maxAckable := s.maxAckable.Load()
			if writeIndex <= maxAckable || s.maxAckable.CompareAndSwap(maxAckable, writeIndex) {
				break
			}
		}
	}

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			ticker.Reset(s.timers.Retransmit())
			writeIndex = s.lastAck.Load()
			if writeIndex < 0 {
				if err := s.sendConnect(); err != nil {
					s.log.WithError(err).Warn("failed to resend connect")
				}
				continue
			}
			send(true)
		default:
			// Spins between writes when the buffer is empty; a
			// signal-driven wakeup from Write would avoid that but
			// isn't worth the complexity at this session volume.
			if writeIndex >= 0 {
				send(false)
			}
		}
	}
}

// send funnels a pre-encoded datagram through the session's shared
// egress channel. It never touches the UDP socket directly.
func (s *Session) send(data []byte) error {
	var addr *net.UDPAddr
	if !s.isClient {
		a, ok := s.Addr.(*net.UDPAddr)
		if !ok {
			return fmt.Errorf("session %s: peer address is not a UDP address", s.Key())
		}
		addr = a
	}
	select {
	case s.egress <- outboundDatagram{addr: addr, data: data}:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}

func (s *Session) sendAck(length int64) {
	if err := s.send(EncodeAck(s.ID, length)); err != nil {
		s.log.WithError(err).Debug("failed to enqueue ack")
	}
}

func (s *Session) sendConnect() error {
	return s.send(EncodeConnect(s.ID))
}

func (s *Session) sendClose() {
	if err := s.send(EncodeClose(s.ID)); err != nil {
		s.log.WithError(err).Debug("failed to enqueue close")
	}
}
