// Package hostctl is the control channel to a workspace's host agent:
// one HTTP POST per command, JSON in, and for graded-file export a
// streamed attachment out. There is no internal retry; a failed or slow
// host call surfaces directly to the caller.
package hostctl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/coursebench/workspaced/internal/core"
	"github.com/coursebench/workspaced/internal/observability"
)

const (
	ActionInit           = "init"
	ActionReset          = "reset"
	ActionGetGradedFiles = "getGradedFiles"
)

// HostResolver looks up the host currently assigned to a workspace.
type HostResolver interface {
	SelectWorkspaceHost(ctx context.Context, workspaceID string) (core.Host, error)
}

type request struct {
	WorkspaceID string         `json:"workspace_id"`
	Action      string         `json:"action"`
	Options     map[string]any `json:"options,omitempty"`
}

type errorBody struct {
	Message string `json:"message"`
}

// Result carries the outcome of a Send. FilePath is set only for
// getGradedFiles, naming the streamed attachment on local disk.
type Result struct {
	FilePath string
}

type Channel struct {
	resolver    HostResolver
	httpc       *http.Client
	downloadDir string
	enabled     bool
	log         *zap.Logger
}

func New(resolver HostResolver, downloadDir string, timeout time.Duration, enabled bool, log *zap.Logger) *Channel {
	return &Channel{
		resolver:    resolver,
		httpc:       &http.Client{Timeout: timeout},
		downloadDir: downloadDir,
		enabled:     enabled,
		log:         log,
	}
}

// Send issues one command to the workspace's assigned host. When the
// subsystem is disabled it resolves successfully without any round trip;
// callers must not assume the host was contacted.
func (c *Channel) Send(ctx context.Context, workspaceID, action string, options map[string]any) (*Result, error) {
	if !c.enabled {
		return &Result{}, nil
	}

	host, err := c.resolver.SelectWorkspaceHost(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(request{WorkspaceID: workspaceID, Action: action, Options: options})
	if err != nil {
		return nil, fmt.Errorf("encode control request: %w", err)
	}

	// Hostnames in the fleet store carry the agent port.
	url := "http://" + host.Hostname + "/"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build control request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpc.Do(req)
	observability.ControlRequestDuration.WithLabelValues(action).Observe(time.Since(start).Seconds())
	if err != nil {
		observability.ControlRequestsTotal.WithLabelValues(action, "transport_error").Inc()
		return nil, core.WrapError(core.ErrRemote, fmt.Sprintf("host %s unreachable", host.Hostname), err)
	}
	defer resp.Body.Close()
	observability.ControlRequestsTotal.WithLabelValues(action, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.readRemoteError(resp, host.Hostname)
	}

	if action == ActionGetGradedFiles {
		return c.streamAttachment(workspaceID, resp)
	}

	io.Copy(io.Discard, resp.Body)
	c.log.Info("control command accepted",
		zap.String("workspace_id", workspaceID),
		zap.String("action", action),
		zap.String("host", host.Hostname))
	return &Result{}, nil
}

func (c *Channel) readRemoteError(resp *http.Response, hostname string) error {
	var eb errorBody
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&eb); err != nil || eb.Message == "" {
		eb.Message = resp.Status
	}
	return core.NewAppError(core.ErrRemote, fmt.Sprintf("host %s: %s", hostname, eb.Message))
}

// streamAttachment writes the response body to the download dir under
// the name the host declared in its content-disposition header. A
// missing or malformed disposition means the agent violated the wire
// contract.
func (c *Channel) streamAttachment(workspaceID string, resp *http.Response) (*Result, error) {
	cd := resp.Header.Get("Content-Disposition")
	if cd == "" {
		return nil, core.NewAppError(core.ErrProtocol, "graded file response has no content-disposition header")
	}
	mediatype, params, err := mime.ParseMediaType(cd)
	if err != nil || mediatype != "attachment" || params["filename"] == "" {
		return nil, core.NewAppError(core.ErrProtocol, fmt.Sprintf("malformed content-disposition %q", cd))
	}

	name := filepath.Base(filepath.FromSlash(params["filename"]))
	if err := os.MkdirAll(c.downloadDir, 0o755); err != nil {
		return nil, core.WrapError(core.ErrBackend, "create download dir", err)
	}
	dst := filepath.Join(c.downloadDir, workspaceID+"-"+name)

	out, err := os.Create(dst)
	if err != nil {
		return nil, core.WrapError(core.ErrBackend, "create download file", err)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(dst)
		return nil, core.WrapError(core.ErrRemote, "stream graded files", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return nil, core.WrapError(core.ErrBackend, "finish download file", err)
	}

	c.log.Info("graded files streamed from host",
		zap.String("workspace_id", workspaceID),
		zap.String("file", dst))
	return &Result{FilePath: dst}, nil
}
