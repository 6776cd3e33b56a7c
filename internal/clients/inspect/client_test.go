package inspect

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/longtails/freemasons/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	c := NewClient(&config.InspectConfig{BaseURL: ts.URL + "/"})
	c.httpClient = ts.Client()
	return c
}

func TestListMembers_ParsesListing(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/collections/members/0xabc" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.URL.Query().Get("limit") != "2000" {
			t.Errorf("limit = %q, expected 2000", r.URL.Query().Get("limit"))
		}
		if r.URL.Query().Get("onlyNewMembers") != "false" {
			t.Errorf("onlyNewMembers = %q, expected false", r.URL.Query().Get("onlyNewMembers"))
		}
		w.Write([]byte(`{"members":[
			{"id":"m1","username":"alice","name":"Alice","pfpUrl":"https://img/a","token":"eip155:0xabc:1"},
			{"id":77,"username":"bob","name":"Bob","pfpUrl":"","token":"eip155:0xabc:2"}
		]}`))
	})

	listing, err := c.ListMembers(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("ListMembers() error = %v", err)
	}
	if listing.Status != 200 {
		t.Errorf("Status = %d, expected 200", listing.Status)
	}
	if len(listing.Members) != 2 {
		t.Fatalf("got %d members, expected 2", len(listing.Members))
	}
	first := listing.Members[0]
	if first.ID != "m1" || first.Username != "alice" || first.PfpURL != "https://img/a" || first.Token != "eip155:0xabc:1" {
		t.Errorf("first member = %+v", first)
	}
	if listing.Members[1].ID != "77" {
		t.Errorf("numeric id = %q, expected \"77\"", listing.Members[1].ID)
	}
}

func TestListMembers_NonSuccessStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	listing, err := c.ListMembers(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("ListMembers() error = %v", err)
	}
	if listing.Status != http.StatusBadGateway {
		t.Errorf("Status = %d, expected 502", listing.Status)
	}
	if len(listing.Members) != 0 {
		t.Error("no members expected on failure")
	}
}

func TestListMembers_MissingMembersKey(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[]}`))
	})

	_, err := c.ListMembers(context.Background(), "0xabc")
	if !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("error = %v, expected ErrMalformedResponse", err)
	}
}
