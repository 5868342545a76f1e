// Package mean implements the running-mean store protocol: binary
// Insert and Query messages over TCP, one independent database per
// connection.
package mean

import (
	"encoding/binary"
	"io"
	"net"

	"github.com/sirupsen/logrus"
)

// Serve accepts connections on l, each maintaining its own database.
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

	var tree *Node
	buf := make([]byte, 9)
	for {
		if _, err := io.ReadFull(conn, buf); err != nil {
			if err != io.EOF && err != io.ErrUnexpectedEOF {
				log.WithError(err).Debug("mean: read error")
			}
			return
		}
		msg, err := ParseMessage(buf)
		if err != nil {
			log.WithError(err).Debug("mean: malformed message")
			return
		}
		switch msg.Type {
		case Insert:
			if tree == nil {
				tree = NewNode(msg.A, msg.B)
			} else {
				tree.InsertKeyValue(msg.A, msg.B)
			}
		case Query:
			var mean int32
			if tree != nil {
				mean = tree.MeanRange(msg.A, msg.B)
			}
			if err := reply(conn, mean); err != nil {
				log.WithError(err).Debug("mean: write error")
				return
			}
		}
	}
}

func reply(conn net.Conn, mean int32) error {
	return binary.Write(conn, binary.BigEndian, mean)
}
