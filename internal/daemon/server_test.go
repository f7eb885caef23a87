package daemon

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/haasonsaas/hive/internal/config"
	"github.com/haasonsaas/hive/internal/home"
	"github.com/haasonsaas/hive/internal/observability"
	"github.com/haasonsaas/hive/internal/store"
)

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.LogConfig{Level: "error", Output: io.Discard})
}

// startServer boots a daemon in a temp home and returns a client for it.
func startServer(t *testing.T) (*Server, *Client, home.Dir) {
	t.Helper()
	h := home.Dir(t.TempDir())
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")

	cfg := config.Default()
	cfg.Heartbeat.Interval = config.MinHeartbeatInterval

	srv := NewServer(h, cfg, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan int, 1)
	go func() { done <- srv.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("daemon did not stop")
		}
	})

	client := NewClient(h)
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := client.Ping(); err == nil {
			return srv, client, h
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("daemon never answered ping")
	return nil, nil, ""
}

func TestPingAndRuntimeFiles(t *testing.T) {
	_, client, h := startServer(t)

	resp, err := client.Ping()
	if err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if resp["pong"] != true {
		t.Errorf("pong = %v", resp["pong"])
	}
	if _, ok := resp["timestamp"].(string); !ok {
		t.Errorf("timestamp missing: %v", resp)
	}

	for _, path := range []string{h.PidFile(), h.PortFile(), h.HeartbeatFile()} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("missing runtime file %s: %v", path, err)
		}
	}
}

func TestStatusShape(t *testing.T) {
	_, client, _ := startServer(t)

	resp, err := client.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	for _, key := range []string{"pid", "uptime", "uptimeSeconds", "agent", "provider", "model", "memoryStats", "ctxEnabled", "taskWorker", "integrations", "timestamp"} {
		if _, ok := resp[key]; !ok {
			t.Errorf("status missing %q: %v", key, resp)
		}
	}
	stats, ok := resp["memoryStats"].(map[string]any)
	if !ok {
		t.Fatalf("memoryStats = %T", resp["memoryStats"])
	}
	if _, ok := stats["episodes"]; !ok {
		t.Errorf("memoryStats missing episodes: %v", stats)
	}

	integrationsMap, ok := resp["integrations"].(map[string]any)
	if !ok {
		t.Fatalf("integrations = %T", resp["integrations"])
	}
	// No tokens configured in tests.
	if got := integrationsMap["telegram"]; got != "not configured" {
		t.Errorf("telegram status = %v", got)
	}
}

func TestUnknownCommandAndInvalidJSON(t *testing.T) {
	_, client, _ := startServer(t)

	_, err := client.Send(Request{Type: "bogus"})
	if err == nil || !strings.Contains(err.Error(), "Unknown command type: bogus") {
		t.Errorf("unknown command error = %v", err)
	}

	port, err := client.Port()
	if err != nil {
		t.Fatalf("Port: %v", err)
	}
	conn, err := net.Dial("tcp", "127.0.0.1:"+strconv.Itoa(port))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("{not json}\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Err() != "Invalid JSON" {
		t.Errorf("error = %q", resp.Err())
	}
}

func TestTaskEnqueueAccepted(t *testing.T) {
	_, client, _ := startServer(t)

	resp, err := client.EnqueueTask("t-000001", "echo hello", "")
	if err != nil {
		t.Fatalf("EnqueueTask: %v", err)
	}
	if resp["accepted"] != true || resp["id"] != "t-000001" {
		t.Errorf("enqueue response = %v", resp)
	}
}

func TestTaskCancelBeforeDispatch(t *testing.T) {
	srv, client, _ := startServer(t)

	// Insert directly so the worker is not nudged before the cancel lands.
	task, err := srv.store.InsertTask(context.Background(), "t-000002", "doomed", "")
	if err != nil {
		t.Fatalf("InsertTask: %v", err)
	}

	if _, err := client.CancelTask(task.ID); err != nil {
		t.Fatalf("CancelTask: %v", err)
	}

	got, err := srv.store.GetTask(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Status != store.TaskFailed || got.Error != "cancelled" {
		t.Errorf("task after cancel = %+v", got)
	}
}

func TestTaskRequiresTitle(t *testing.T) {
	_, client, _ := startServer(t)

	resp, _ := client.Send(Request{Type: "task", Payload: &TaskPayload{}})
	if resp["accepted"] != false {
		t.Errorf("response = %v", resp)
	}
}

func TestStopShutsDownAndRemovesFiles(t *testing.T) {
	_, client, h := startServer(t)

	resp, err := client.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if resp["acknowledged"] != true {
		t.Errorf("response = %v", resp)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(h.PidFile()); os.IsNotExist(err) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("pid file still present after stop")
}

func TestSecondDaemonRefusesToBoot(t *testing.T) {
	_, _, h := startServer(t)

	cfg := config.Default()
	second := NewServer(h, cfg, testLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if code := second.Run(ctx); code != 1 {
		t.Errorf("second daemon exit code = %d, want 1", code)
	}
}

func TestHeartbeatFileIsEpochMillis(t *testing.T) {
	_, _, h := startServer(t)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		data, err := os.ReadFile(h.HeartbeatFile())
		if err == nil && len(data) > 0 {
			millis := strings.TrimSpace(string(data))
			for _, r := range millis {
				if r < '0' || r > '9' {
					t.Fatalf("heartbeat not epoch millis: %q", millis)
				}
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("heartbeat file never written")
}
