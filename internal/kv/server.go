// Package kv implements the UDP key/value store protocol: a datagram
// containing "=" is an insert, anything else is a query.
package kv

import (
	"fmt"
	"net"
	"strings"

	"github.com/sirupsen/logrus"
)

// MaxDatagramSize bounds both requests and responses per the protocol.
const MaxDatagramSize = 999

// Serve reads requests off conn until it errors or ctx-less shutdown.
func Serve(conn *net.UDPConn, log logrus.FieldLogger) error {
	store := NewStore()
	buf := make([]byte, MaxDatagramSize)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			return err
		}
		request := string(buf[:n])
		log.WithField("peer", addr.String()).Debugf("kv: got %q", request)

		key, value, isInsert := strings.Cut(request, "=")
		if isInsert {
			store.Insert(key, value)
			continue
		}
		reply := fmt.Sprintf("%s=%s", request, store.Get(request))
		if _, err := conn.WriteToUDP([]byte(reply), addr); err != nil {
			log.WithError(err).Debug("kv: write error")
		}
	}
}
