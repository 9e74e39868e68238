package session

import (
	"errors"
	"testing"
	"time"
)

func TestIssuer_RoundTrip(t *testing.T) {
	issuer := NewIssuer("secret", time.Hour)
	want := Identity{PlayerID: "p1", RoomID: "r1", Name: "Ann"}

	token, err := issuer.Issue(want, time.Now())
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	got, err := issuer.Parse(token)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if got != want {
		t.Errorf("Expected %+v, got %+v", want, got)
	}
}

func TestIssuer_Rejects(t *testing.T) {
	issuer := NewIssuer("secret", time.Hour)
	id := Identity{PlayerID: "p1", RoomID: "r1"}

	expired, err := issuer.Issue(id, time.Now().Add(-2*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := issuer.Parse(expired); !errors.Is(err, ErrExpiredToken) {
		t.Errorf("Expected ErrExpiredToken, got %v", err)
	}

	forged, err := NewIssuer("other", time.Hour).Issue(id, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := issuer.Parse(forged); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Expected ErrInvalidToken for a foreign signature, got %v", err)
	}

	if _, err := issuer.Parse("not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Expected ErrInvalidToken for garbage, got %v", err)
	}
}
