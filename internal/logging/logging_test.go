package logging

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewParsesKnownLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "debug")
	if l.GetLevel() != logrus.DebugLevel {
		t.Fatalf("got level %v, want debug", l.GetLevel())
	}
}

func TestNewFallsBackToInfoOnUnknownLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "not-a-level")
	if l.GetLevel() != logrus.InfoLevel {
		t.Fatalf("got level %v, want info", l.GetLevel())
	}
}

func TestNewWritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "info")
	l.WithField("session_id", "abc").Info("hello")
	out := buf.String()
	if !bytes.Contains([]byte(out), []byte(`"session_id":"abc"`)) {
		t.Fatalf("got %q, want session_id field", out)
	}
}
