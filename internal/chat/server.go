// Package chat implements a line-oriented TCP chat room: clients pick
// a name, then every line one client sends is relayed to every other
// connected client.
package chat

import (
	"bufio"
	"fmt"
	"net"
	"strings"

	"github.com/sirupsen/logrus"
)

const welcomeMessage = "Welcome to budgetchat! What shall I call you?\n"

// Serve accepts connections on l and relays chat lines between them
// through a shared Broker.
func Serve(l net.Listener, log logrus.FieldLogger) error {
	b := NewBroker()
	for {
		conn, err := l.Accept()
		if err != nil {
			return err
		}
		go handle(conn, b, log)
	}
}

func handle(conn net.Conn, b *Broker, log logrus.FieldLogger) {
	defer conn.Close()
	log = log.WithField("peer", conn.RemoteAddr().String())
	scanner := bufio.NewScanner(conn)

	if _, err := conn.Write([]byte(welcomeMessage)); err != nil {
		log.WithError(err).Debug("chat: failed to send welcome")
		return
	}
	if !scanner.Scan() {
		log.Debug("chat: client disconnected before sending a name")
		return
	}
	name, err := ValidateName(scanner.Bytes())
	if err != nil {
		fmt.Fprintf(conn, "* invalid name: %s\n", err)
		log.WithError(err).Debug("chat: rejected name")
		return
	}
	log = log.WithField("name", name)

	active, err := b.Register(name)
	if err != nil {
		fmt.Fprintf(conn, "* %s\n", err)
		log.WithError(err).Debug("chat: registration failed")
		return
	}
	defer b.Logoff(name)
	log.Info("chat: joined")
	defer log.Info("chat: left")

	fmt.Fprintf(conn, "* the room contains: %s\n", strings.Join(active, ", "))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for scanner.Scan() {
			b.Send(name, scanner.Text())
		}
	}()

	for {
		msg, ok := b.Receive(name, done)
		if !ok {
			return
		}
		if _, err := conn.Write([]byte(msg)); err != nil {
			log.WithError(err).Debug("chat: write error")
			return
		}
	}
}
