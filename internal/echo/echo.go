// Package echo implements a TCP echo server: every byte a client sends
// is written back unchanged.
package echo

import (
	"io"
	"net"

	"github.com/sirupsen/logrus"
)

// Serve accepts connections on l until it is closed, echoing each
// connection's bytes back to itself.
func Serve(l net.Listener, log logrus.FieldLogger) error {
	for {
		conn, err := l.Accept()
		if err != nil {
			return err
		}
		go handle(conn, log)
	}
}

func handle(conn net.Conn, log logrus.FieldLogger) {
	defer conn.Close()
	log = log.WithField("peer", conn.RemoteAddr().String())
	log.Info("echo: accepted connection")
	written, err := io.Copy(conn, conn)
	if err != nil {
		log.WithError(err).Warn("echo: connection error")
		return
	}
	log.WithField("bytes_written", written).Info("echo: connection closed")
}
