package lineapp

import (
	"bufio"
	"bytes"
	"strings"
	"testing"
)

func TestScanLinesNoCRKeepsCarriageReturn(t *testing.T) {
	scanner := bufio.NewScanner(strings.NewReader("abcd\r\nabcd\n"))
	scanner.Split(ScanLinesNoCR)

	var got []string
	for scanner.Scan() {
		got = append(got, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("unexpected scan error: %v", err)
	}
	want := []string{"abcd\r", "abcd"}
	if len(got) != len(want) {
		t.Fatalf("got %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("line %d: got %q want %q", i, got[i], want[i])
		}
	}
}

func TestScanLinesNoCRDropsTrailingPartialLine(t *testing.T) {
	scanner := bufio.NewScanner(strings.NewReader("complete\nincomplete-no-newline"))
	scanner.Split(ScanLinesNoCR)

	var got []string
	for scanner.Scan() {
		got = append(got, scanner.Text())
	}
	if len(got) != 1 || got[0] != "complete" {
		t.Fatalf("got %q, want only [\"complete\"]", got)
	}
}

func TestReverseIsByteLevelNotRuneLevel(t *testing.T) {
	// Non-UTF-8 input; a rune-aware reversal would mangle this.
	in := []byte{0x32, 0xcd, 0x1e, 0x59, 0x86}
	want := []byte{0x86, 0x59, 0x1e, 0xcd, 0x32}
	got := reverse(in)
	if !bytes.Equal(got, want) {
		t.Fatalf("got %x want %x", got, want)
	}
}

func TestReverseEmpty(t *testing.T) {
	if got := reverse(nil); len(got) != 0 {
		t.Fatalf("got %x want empty", got)
	}
}
