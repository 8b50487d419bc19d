package core

import (
	"fmt"
	"strings"
	"testing"
)

func TestRemotePrefix_DisjointAcrossVersions(t *testing.T) {
	ws := Workspace{ID: "ws-1", Version: 3}
	p3 := ws.RemotePrefix()
	ws.Version = 4
	p4 := ws.RemotePrefix()
	if p3 == p4 {
		t.Fatalf("prefixes for two versions collide: %s", p3)
	}
	if strings.HasPrefix(p3+"/", p4+"/") || strings.HasPrefix(p4+"/", p3+"/") {
		t.Fatalf("prefixes intersect: %s vs %s", p3, p4)
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := map[ErrorCode]int{
		ErrBadRequest:        400,
		ErrNotFound:          404,
		ErrHostNotFound:      404,
		ErrConflict:          409,
		ErrUnknownBackend:    422,
		ErrBackend:           502,
		ErrRemote:            502,
		ErrProtocol:          502,
		ErrResourceExhausted: 503,
		ErrInternal:          500,
	}
	for code, want := range cases {
		if got := code.HTTPStatus(); got != want {
			t.Errorf("%s: expected %d, got %d", code, want, got)
		}
	}
}

func TestWrapError_KeepsCause(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := WrapError(ErrBackend, "upload failed", cause)
	if !IsCode(err, ErrBackend) {
		t.Fatal("expected ErrBackend code")
	}
	if err.Unwrap() != cause {
		t.Fatal("expected cause to be reachable")
	}
	wrapped := fmt.Errorf("startup: %w", err)
	if CodeOf(wrapped) != ErrBackend {
		t.Fatalf("expected ErrBackend through wrapping, got %s", CodeOf(wrapped))
	}
}

func TestCodeOf_Plain(t *testing.T) {
	if CodeOf(fmt.Errorf("boom")) != ErrInternal {
		t.Fatal("plain errors should map to ErrInternal")
	}
}
