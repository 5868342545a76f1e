package lrcp

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// acceptBufferSize gives headroom for "at least 20 simultaneous
// sessions" (spec.md §6) to all connect at once without Accept keeping
// up in lockstep.
const acceptBufferSize = 20

// egressBufferSize bounds how many outbound datagrams the writer
// goroutine may have queued before a Session blocks trying to send.
const egressBufferSize = 256

type outboundDatagram struct {
	addr *net.UDPAddr
	data []byte
}

// Router owns the UDP socket's lifecycle and demultiplexes inbound
// datagrams to Sessions by (address, session id). Per SPEC_FULL.md's
// concurrency model it runs three long-lived goroutines — an ingress
// reader, a routing loop, and a single egress writer — supervised
// together so that any one's exit brings the others down cleanly.
type Router struct {
	conn *net.UDPConn

	timers  *Timers
	metrics *Metrics
	log     logrus.FieldLogger

	acceptCh chan *Session
	egressCh chan outboundDatagram
	ingestCh chan inboundDatagram

	mu       sync.Mutex
	sessions map[string]*Session

	group  *errgroup.Group
	cancel context.CancelFunc
}

type inboundDatagram struct {
	addr *net.UDPAddr
	data []byte
}

// Listen binds laddr and starts the Router's goroutines.
func Listen(laddr *net.UDPAddr, timers *Timers, metrics *Metrics, log logrus.FieldLogger) (*Router, error) {
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("lrcp: error listening on %s: %w", laddr, err)
	}
	if timers == nil {
		timers = NewTimers()
	}
	log.WithField("addr", conn.LocalAddr()).Info("lrcp: listening")

	ctx, cancel := context.WithCancel(context.Background())
	group, ctx := errgroup.WithContext(ctx)

	r := &Router{
		conn:     conn,
		timers:   timers,
		metrics:  metrics,
		log:      log,
		acceptCh: make(chan *Session, acceptBufferSize),
		egressCh: make(chan outboundDatagram, egressBufferSize),
		ingestCh: make(chan inboundDatagram, egressBufferSize),
		sessions: make(map[string]*Session),
		group:    group,
		cancel:   cancel,
	}

	group.Go(func() error { return r.readLoop(ctx) })
	group.Go(func() error { return r.routeLoop(ctx) })
	group.Go(func() error { return r.writeLoop(ctx) })

	return r, nil
}

// readLoop is the sole goroutine that reads from the UDP socket. It
// does no routing of its own; it just hands datagrams to routeLoop.
func (r *Router) readLoop(ctx context.Context) error {
	buf := make([]byte, MaxDatagramSize+1)
	for {
		n, addr, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			r.log.WithError(err).Warn("lrcp: read error")
			continue
		}
		cp := make([]byte, n)
		copy(cp, buf[:n])
		select {
		case r.ingestCh <- inboundDatagram{addr: addr, data: cp}:
		case <-ctx.Done():
			return nil
		default:
			r.log.Warn("lrcp: ingest queue full, dropping datagram")
		}
	}
}

// routeLoop is the only goroutine that inserts into the session map.
// Entries are removed by forget, under mu, on whichever goroutine
// closes the Session.
func (r *Router) routeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case dgram := <-r.ingestCh:
			r.route(dgram)
		}
	}
}

func (r *Router) route(dgram inboundDatagram) {
	msg, err := ParseMessage(dgram.data)
	if err != nil {
		r.metrics.violation()
		r.log.WithError(err).WithField("peer", dgram.addr).Debug("lrcp: dropped unparseable datagram")
		return
	}

	key := fmt.Sprintf("%s-%d", dgram.addr, msg.SessionID)

	if msg.Type == MsgConnect {
		r.mu.Lock()
		session, exists := r.sessions[key]
		if !exists {
			session = newServerSession(dgram.addr, msg.SessionID, r.egressCh, r.timers, r.metrics, r.log, r.forget)
			r.sessions[key] = session
		}
		r.mu.Unlock()
		if !exists {
			select {
			case r.acceptCh <- session:
			default:
				r.log.WithField("session", key).Warn("lrcp: accept queue full, dropping session")
				session.Abort()
				r.mu.Lock()
				delete(r.sessions, key)
				r.mu.Unlock()
				return
			}
		} else {
			session.RefreshIdle()
		}
		session.sendAck(0)
		return
	}

	r.mu.Lock()
	session, exists := r.sessions[key]
	r.mu.Unlock()
	if !exists {
		r.sendDirect(dgram.addr, EncodeClose(msg.SessionID))
		return
	}

	switch msg.Type {
	case MsgClose:
		session.Close()
	case MsgAck, MsgData:
		if err := session.Receive(msg); err != nil {
			r.log.WithField("session", key).WithError(err).Debug("lrcp: dropped packet")
		}
	}
}

// forget is the cleanup callback every Session is constructed with; it
// removes a closed Session from the map. It runs on whichever goroutine
// calls Session.Close: routeLoop for a peer's close, or the session's
// own readWorker on idle expiry or a protocol violation. It therefore
// takes the same lock routeLoop takes.
func (r *Router) forget(s *Session) {
	r.mu.Lock()
	delete(r.sessions, s.Key())
	r.mu.Unlock()
}

// writeLoop is the single egress writer: every outbound datagram,
// whether minted by a Session or by Router.route directly, passes
// through here and only here touches the UDP socket.
func (r *Router) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case out := <-r.egressCh:
			if _, _, err := r.conn.WriteMsgUDP(out.data, nil, out.addr); err != nil {
				r.log.WithError(err).WithField("addr", out.addr).Warn("lrcp: write error")
			}
		}
	}
}

func (r *Router) sendDirect(addr *net.UDPAddr, data []byte) {
	select {
	case r.egressCh <- outboundDatagram{addr: addr, data: data}:
	default:
		r.log.Warn("lrcp: egress queue full, dropping direct reply")
	}
}

// Accept blocks until a new session has connected, or the Router shuts
// down, and returns the application-facing Stream for it.
func (r *Router) Accept() (*Stream, error) {
	s, ok := <-r.acceptCh
	if !ok {
		return nil, fmt.Errorf("lrcp: router closed")
	}
	return newStream(s), nil
}

// LocalAddr returns the address the Router's UDP socket is bound to.
func (r *Router) LocalAddr() net.Addr {
	return r.conn.LocalAddr()
}

// Close shuts down the Router's goroutines and the underlying socket.
func (r *Router) Close() error {
	r.cancel()
	err := r.conn.Close()
	_ = r.group.Wait()
	close(r.acceptCh)
	return err
}
