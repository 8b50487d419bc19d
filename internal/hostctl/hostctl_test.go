package hostctl

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/coursebench/workspaced/internal/core"
)

type fakeResolver struct {
	host core.Host
	err  error
}

func (f *fakeResolver) SelectWorkspaceHost(ctx context.Context, workspaceID string) (core.Host, error) {
	return f.host, f.err
}

func channelFor(t *testing.T, srv *httptest.Server) *Channel {
	t.Helper()
	hostname := strings.TrimPrefix(srv.URL, "http://")
	resolver := &fakeResolver{host: core.Host{ID: "host-1", Hostname: hostname}}
	return New(resolver, t.TempDir(), 5*time.Second, true, zap.NewNop())
}

func TestSend_InitSuccess(t *testing.T) {
	var got request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected json content type, got %s", ct)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := channelFor(t, srv)
	res, err := c.Send(context.Background(), "ws-1", ActionInit, map[string]any{"useInitialZip": true})
	if err != nil {
		t.Fatalf("send failed: %s", err)
	}
	if res.FilePath != "" {
		t.Error("init must not produce a file")
	}
	if got.WorkspaceID != "ws-1" || got.Action != "init" {
		t.Errorf("unexpected request body: %+v", got)
	}
	if v, ok := got.Options["useInitialZip"].(bool); !ok || !v {
		t.Errorf("useInitialZip not carried: %+v", got.Options)
	}
}

func TestSend_RemoteErrorParsed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"message": "container runtime on fire"})
	}))
	defer srv.Close()

	c := channelFor(t, srv)
	_, err := c.Send(context.Background(), "ws-1", ActionInit, nil)
	if !core.IsCode(err, core.ErrRemote) {
		t.Fatalf("expected ErrRemote, got %v", err)
	}
	if !strings.Contains(err.Error(), "container runtime on fire") {
		t.Errorf("remote message not surfaced: %s", err)
	}
}

func TestSend_GradedFilesStreamsAttachment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="graded.zip"`)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("zip-bytes"))
	}))
	defer srv.Close()

	c := channelFor(t, srv)
	res, err := c.Send(context.Background(), "ws-1", ActionGetGradedFiles, nil)
	if err != nil {
		t.Fatalf("send failed: %s", err)
	}
	if res.FilePath == "" {
		t.Fatal("expected a downloaded file path")
	}
	body, err := os.ReadFile(res.FilePath)
	if err != nil {
		t.Fatalf("downloaded file unreadable: %s", err)
	}
	if string(body) != "zip-bytes" {
		t.Errorf("expected streamed body, got %q", body)
	}
}

func TestSend_GradedFilesMissingDispositionIsProtocolError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("zip-bytes"))
	}))
	defer srv.Close()

	c := channelFor(t, srv)
	_, err := c.Send(context.Background(), "ws-1", ActionGetGradedFiles, nil)
	if !core.IsCode(err, core.ErrProtocol) {
		t.Fatalf("expected ErrProtocol, got %v", err)
	}
}

func TestSend_GradedFilesMalformedDispositionIsProtocolError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", "inline")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := channelFor(t, srv)
	_, err := c.Send(context.Background(), "ws-1", ActionGetGradedFiles, nil)
	if !core.IsCode(err, core.ErrProtocol) {
		t.Fatalf("expected ErrProtocol, got %v", err)
	}
}

func TestSend_DispositionFilenameIsSanitized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="../../etc/graded.zip"`)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("x"))
	}))
	defer srv.Close()

	c := channelFor(t, srv)
	res, err := c.Send(context.Background(), "ws-1", ActionGetGradedFiles, nil)
	if err != nil {
		t.Fatalf("send failed: %s", err)
	}
	if strings.Contains(res.FilePath, "..") {
		t.Fatalf("path traversal in download path: %s", res.FilePath)
	}
	if !strings.HasSuffix(res.FilePath, "ws-1-graded.zip") {
		t.Errorf("unexpected download name: %s", res.FilePath)
	}
}

func TestSend_DisabledSkipsRoundTrip(t *testing.T) {
	resolver := &fakeResolver{err: core.NewAppError(core.ErrHostNotFound, "no host assigned")}
	c := New(resolver, t.TempDir(), time.Second, false, zap.NewNop())

	res, err := c.Send(context.Background(), "ws-1", ActionInit, nil)
	if err != nil {
		t.Fatalf("disabled send must resolve: %s", err)
	}
	if res == nil || res.FilePath != "" {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestSend_NoAssignedHost(t *testing.T) {
	resolver := &fakeResolver{err: core.NewAppError(core.ErrHostNotFound, "no host assigned")}
	c := New(resolver, t.TempDir(), time.Second, true, zap.NewNop())

	_, err := c.Send(context.Background(), "ws-1", ActionInit, nil)
	if !core.IsCode(err, core.ErrHostNotFound) {
		t.Fatalf("expected ErrHostNotFound, got %v", err)
	}
}
