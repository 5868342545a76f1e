// Package mitm implements a transparent line-oriented TCP proxy that
// rewrites Boguscoin addresses to a fixed address in both directions.
package mitm

import (
	"bufio"
	"context"
	"io"
	"net"
	"strings"

	"github.com/sirupsen/logrus"
)

// Serve accepts connections on l and proxies each to upstream,
// rewriting Boguscoin addresses in every line that passes through.
func Serve(l net.Listener, upstream string, log logrus.FieldLogger) error {
	for {
		client, err := l.Accept()
		if err != nil {
			return err
		}
		go handle(client, upstream, log)
	}
}

func handle(client net.Conn, upstream string, log logrus.FieldLogger) {
	log = log.WithField("peer", client.RemoteAddr().String())

	server, err := net.Dial("tcp", upstream)
	if err != nil {
		client.Close()
		log.WithError(err).Debug("mitm: could not reach upstream")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer client.Close()
	defer server.Close()

	go relay(ctx, cancel, client, server, log.WithField("dir", "client->server"))
	relay(ctx, cancel, server, client, log.WithField("dir", "server->client"))
}

// relay copies newline-delimited lines from src to dst, rewriting
// Boguscoin addresses, until src errors, dst errors, or ctx is
// cancelled by the other direction's relay.
func relay(ctx context.Context, cancel context.CancelFunc, src, dst net.Conn, log logrus.FieldLogger) {
	reader := bufio.NewReader(src)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err != io.EOF {
				log.WithError(err).Debug("mitm: read error")
			}
			cancel()
			return
		}
		out := Replace(strings.TrimSuffix(line, "\n")) + "\n"
		if _, err := dst.Write([]byte(out)); err != nil {
			log.WithError(err).Debug("mitm: write error")
			cancel()
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}
