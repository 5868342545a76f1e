package mitm

import "testing"

func TestReplaceRewritesBogusAddress(t *testing.T) {
	in := "Please pay the ransom of 750,000 boguscoins to 7iKDZEwPZSqIvDnHvVN2r0hUWXD5rHX"
	got := Replace(in)
	want := "Please pay the ransom of 750,000 boguscoins to " + TonyAddress
	if got != want {
		t.Fatalf("got %q", got)
	}
}

func TestReplaceIgnoresNonAddressWords(t *testing.T) {
	in := "hello there, how are you?"
	if got := Replace(in); got != in {
		t.Fatalf("got %q, want unchanged", got)
	}
}

func TestReplaceRewritesMultipleAddresses(t *testing.T) {
	in := "7iKDZEwPZSqIvDnHvVN2r0hUWXD5rHX and 7LOLrfHYQTiCZ7RfX6g9U9pWvOIMHhTh"
	got := Replace(in)
	want := TonyAddress + " and " + TonyAddress
	if got != want {
		t.Fatalf("got %q", got)
	}
}

func TestReplaceRequiresLeadingSeven(t *testing.T) {
	in := "8iKDZEwPZSqIvDnHvVN2r0hUWXD5rHX"
	if got := Replace(in); got != in {
		t.Fatalf("got %q, want unchanged since address doesn't start with 7", got)
	}
}

func TestReplaceRejectsTooShort(t *testing.T) {
	in := "7shortaddress"
	if got := Replace(in); got != in {
		t.Fatalf("got %q, want unchanged since address is too short", got)
	}
}
