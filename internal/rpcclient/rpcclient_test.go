package rpcclient

import (
	"testing"
	"time"
)

func TestHexPrefixed(t *testing.T) {
	got := hexPrefixed([]byte{0xde, 0xad, 0xbe, 0xef})
	want := "0xdeadbeef"
	if got != want {
		t.Errorf("hexPrefixed = %s, want %s", got, want)
	}
}

func TestNewRejectsBadURL(t *testing.T) {
	if _, err := New(Config{BaseURL: "://not-a-url"}); err == nil {
		t.Fatal("expected error for malformed base URL")
	}
}

func TestNewWithAPIKey(t *testing.T) {
	c, err := New(Config{
		BaseURL: "https://rpc.example",
		APIKey:  "key-123",
		Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if c.inner == nil {
		t.Fatal("inner client not constructed")
	}
}
