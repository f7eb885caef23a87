package daemon

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/haasonsaas/hive/internal/home"
)

// BasePort is the first port the daemon tries to bind.
const BasePort = 2718

// Request is one IPC command. One request per connection, newline
// terminated.
type Request struct {
	Type    string       `json:"type"`
	ID      string       `json:"id,omitempty"`
	Payload *TaskPayload `json:"payload,omitempty"`
}

// TaskPayload carries the fields of a task enqueue request.
type TaskPayload struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	AgentID string `json:"agent_id,omitempty"`
}

// Response is a decoded IPC reply.
type Response map[string]any

// Err returns the response's error field, if any.
func (r Response) Err() string {
	if s, ok := r["error"].(string); ok {
		return s
	}
	return ""
}

// Client talks to a running daemon over its loopback IPC socket.
type Client struct {
	home    home.Dir
	timeout time.Duration
}

// NewClient returns a Client for the daemon rooted at h.
func NewClient(h home.Dir) *Client {
	return &Client{home: h, timeout: 5 * time.Second}
}

// Port reads the daemon's bound port from the port file.
func (c *Client) Port() (int, error) {
	data, err := os.ReadFile(c.home.PortFile())
	if err != nil {
		return 0, errors.Wrap(err, "reading daemon port file")
	}
	port, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, errors.Wrap(err, "parsing daemon port file")
	}
	return port, nil
}

// Send delivers one request and reads one response.
func (c *Client) Send(req Request) (Response, error) {
	port, err := c.Port()
	if err != nil {
		return nil, err
	}

	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), c.timeout)
	if err != nil {
		return nil, errors.Wrap(err, "connecting to daemon")
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(c.timeout))

	data, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "encoding request")
	}
	if _, err := conn.Write(append(data, '\n')); err != nil {
		return nil, errors.Wrap(err, "writing request")
	}

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		return nil, errors.Wrap(err, "reading response")
	}
	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, errors.Wrap(err, "decoding response")
	}
	if msg := resp.Err(); msg != "" {
		return resp, errors.New(msg)
	}
	return resp, nil
}

// Ping checks daemon liveness.
func (c *Client) Ping() (Response, error) {
	return c.Send(Request{Type: "ping"})
}

// Status returns the daemon status report.
func (c *Client) Status() (Response, error) {
	return c.Send(Request{Type: "status"})
}

// Stop asks the daemon to shut down.
func (c *Client) Stop() (Response, error) {
	return c.Send(Request{Type: "stop"})
}

// EnqueueTask submits a task for background execution.
func (c *Client) EnqueueTask(id, title, agentID string) (Response, error) {
	return c.Send(Request{Type: "task", Payload: &TaskPayload{ID: id, Title: title, AgentID: agentID}})
}

// CancelTask cancels a queued or running task.
func (c *Client) CancelTask(id string) (Response, error) {
	return c.Send(Request{Type: "task_cancel", ID: id})
}

// ReloadIntegrations restarts all platform adapters.
func (c *Client) ReloadIntegrations() (Response, error) {
	return c.Send(Request{Type: "integrations_reload"})
}
