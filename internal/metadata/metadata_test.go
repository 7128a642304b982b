package metadata

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testAssetID() [32]byte {
	var id [32]byte
	for i := range id {
		id[i] = byte(i)
	}
	return id
}

func TestFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(apiResponse{Name: "Marmot Coin", Code: "MRMT", URI: "https://example.com/mrmt.png"})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Timeout: time.Second})
	info := c.Fetch(context.Background(), testAssetID())

	if info.Name != "Marmot Coin" || info.ShortName != "MRMT" || info.ImageURL != "https://example.com/mrmt.png" {
		t.Errorf("got %+v", info)
	}
}

func TestFetchNotFoundFallsBackToPlaceholder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(apiResponse{Error: "Not found"})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Timeout: time.Second})
	id := testAssetID()
	info := c.Fetch(context.Background(), id)

	want := placeholder(id)
	if info != want {
		t.Errorf("got %+v, want placeholder %+v", info, want)
	}
}

func TestFetchTransportErrorFallsBackToPlaceholder(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:1", Timeout: 50 * time.Millisecond})
	id := testAssetID()
	info := c.Fetch(context.Background(), id)

	want := placeholder(id)
	if info != want {
		t.Errorf("got %+v, want placeholder %+v", info, want)
	}
}

func TestPlaceholderFormat(t *testing.T) {
	id := testAssetID()
	p := placeholder(id)
	if p.Name != "CAT 0x00010203" {
		t.Errorf("name = %q, want %q", p.Name, "CAT 0x00010203")
	}
	if p.ShortName != "???" {
		t.Errorf("short name = %q, want ???", p.ShortName)
	}
}
