// Package daemon runs the Hive background process: boot, heartbeat, the
// loopback IPC server, the watcher, and clean shutdown.
package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/haasonsaas/hive/internal/agent"
	"github.com/haasonsaas/hive/internal/config"
	"github.com/haasonsaas/hive/internal/home"
	"github.com/haasonsaas/hive/internal/integrations"
	"github.com/haasonsaas/hive/internal/integrations/discord"
	"github.com/haasonsaas/hive/internal/integrations/slack"
	"github.com/haasonsaas/hive/internal/integrations/telegram"
	"github.com/haasonsaas/hive/internal/memory"
	"github.com/haasonsaas/hive/internal/observability"
	"github.com/haasonsaas/hive/internal/prompt"
	"github.com/haasonsaas/hive/internal/provider"
	"github.com/haasonsaas/hive/internal/store"
	"github.com/haasonsaas/hive/internal/tasks"
	"github.com/haasonsaas/hive/internal/web"
)

// MaxPortAttempts bounds the EADDRINUSE retry loop.
const MaxPortAttempts = 50

// Server is one daemon process.
type Server struct {
	home   home.Dir
	cfg    config.Config
	logger *observability.Logger

	store    *store.Store
	agent    *store.Agent
	provider provider.Provider
	orch     *agent.Orchestrator
	worker   *tasks.Worker
	manager  *integrations.Manager
	pipeline *memory.Pipeline
	longTerm *memory.CtxMemory
	updater  *prompt.Updater

	listener  net.Listener
	port      int
	startedAt time.Time

	mu       sync.Mutex
	stopOnce sync.Once
	stopped  chan struct{}
}

// NewServer wires a daemon rooted at h.
func NewServer(h home.Dir, cfg config.Config, logger *observability.Logger) *Server {
	return &Server{
		home:    h,
		cfg:     cfg,
		logger:  logger,
		stopped: make(chan struct{}),
	}
}

// Run boots the daemon and serves until stopped. The returned exit code is 0
// on clean shutdown, 1 on a fatal boot or serve error.
func (s *Server) Run(ctx context.Context) int {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := s.boot(ctx); err != nil {
		s.logger.Error(ctx, "daemon boot failed", "error", err)
		return 1
	}
	s.logger.Info(ctx, "daemon started", "pid", os.Getpid(), "port", s.port)

	go s.heartbeatLoop(ctx)
	go s.worker.Run(ctx)
	go s.updater.MaybeUpdate(ctx)
	s.manager.Start(ctx)
	go s.acceptLoop(ctx)

	select {
	case <-ctx.Done():
	case <-s.stopped:
	}
	s.shutdown(ctx, cancel)
	return 0
}

func (s *Server) boot(ctx context.Context) error {
	if err := s.home.EnsureDirs(); err != nil {
		return err
	}
	if err := s.checkSingleton(); err != nil {
		return err
	}
	// An explicit start clears a leftover stop sentinel.
	_ = os.Remove(s.home.StopSentinel())

	st, err := store.Open(ctx, s.home.DBPath())
	if err != nil {
		return err
	}
	s.store = st
	if err := st.CheckIntegrity(ctx); err != nil {
		return err
	}
	if n, err := st.ResetRunningTasksToQueued(ctx); err != nil {
		return err
	} else if n > 0 {
		s.logger.Info(ctx, "re-queued abandoned tasks", "count", n)
	}

	if ag, err := st.GetPrimaryAgent(ctx); err != nil {
		s.logger.Warn(ctx, "no primary agent; chat features disabled until init", "error", err)
	} else {
		s.agent = &ag
	}

	if prov, err := s.newProvider(); err != nil {
		s.logger.Warn(ctx, "provider construction failed; will retry on demand", "error", err)
	} else {
		s.provider = prov
	}

	s.longTerm = memory.NewCtxMemory(s.home.CtxDir(), st)
	s.rebuildOrchestrator()

	if err := os.WriteFile(s.home.PidFile(), []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return errors.Wrap(err, "writing pid file")
	}
	s.touchHeartbeat()

	if err := s.bind(); err != nil {
		return err
	}

	if s.provider != nil {
		s.pipeline = memory.NewPipeline(st, s.provider, s.logger, s.longTerm, s.cfg.Memory)
	}
	s.worker = tasks.NewWorker(st, s.orchestratorOnDemand, nil, s.logger)
	s.manager = s.newManager()
	s.updater = &prompt.Updater{
		PromptsDir: s.home.PromptsDir(),
		Store:      st,
		Logger:     s.logger,
	}
	return nil
}

// checkSingleton refuses to boot when another daemon answers on the recorded
// port. A stale pid file with a dead socket is overwritten.
func (s *Server) checkSingleton() error {
	if _, err := os.Stat(s.home.PidFile()); err != nil {
		return nil
	}
	client := NewClient(s.home)
	client.timeout = time.Second
	if _, err := client.Ping(); err == nil {
		return errors.New("daemon already running")
	}
	return nil
}

func (s *Server) newProvider() (provider.Provider, error) {
	return provider.New(s.cfg.Provider.Vendor, provider.Options{
		APIKey: s.cfg.Provider.APIKey,
		Model:  s.cfg.Provider.Model,
	})
}

func (s *Server) rebuildOrchestrator() {
	if s.agent == nil || s.provider == nil {
		return
	}
	s.orch = agent.New(agent.Config{
		Store:      s.store,
		Provider:   s.provider,
		Agent:      *s.agent,
		Web:        web.NewClient(),
		Logger:     s.logger,
		PromptsDir: s.home.PromptsDir(),
	})
}

// orchestratorOnDemand retries provider construction for tasks arriving
// before the provider became available.
func (s *Server) orchestratorOnDemand(ctx context.Context) (*agent.Orchestrator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.orch != nil {
		return s.orch, nil
	}
	if s.agent == nil {
		if ag, err := s.store.GetPrimaryAgent(ctx); err == nil {
			s.agent = &ag
		} else {
			return nil, errors.New("agent not initialized")
		}
	}
	if s.provider == nil {
		prov, err := s.newProvider()
		if err != nil {
			return nil, err
		}
		s.provider = prov
	}
	s.rebuildOrchestrator()
	return s.orch, nil
}

func (s *Server) newManager() *integrations.Manager {
	auth := integrations.NewAuth(s.home)
	handler := &integrations.Handler{
		Store:    s.store,
		Orch:     s.orch,
		Auth:     auth,
		Limiter:  integrations.NewLimiter(0),
		LongTerm: s.longTerm,
		Memory:   s.pipeline,
		Logger:   s.logger,
		Home:     s.home,
	}
	adapters := []integrations.Adapter{
		telegram.New(s.cfg.Integrations.Telegram.Token, s.logger),
		discord.New(s.cfg.Integrations.Discord.Token, s.logger),
		slack.New(s.cfg.Integrations.Slack.BotToken, s.cfg.Integrations.Slack.AppToken, s.logger),
	}
	return integrations.NewManager(adapters, auth, handler.Handle, s.logger)
}

// bind acquires a loopback listener, walking up from BasePort while ports
// are taken, and records the bound port.
func (s *Server) bind() error {
	for port := BasePort; port < BasePort+MaxPortAttempts; port++ {
		ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err != nil {
			continue
		}
		s.listener = ln
		s.port = port
		s.startedAt = time.Now()
		return errors.Wrap(
			os.WriteFile(s.home.PortFile(), []byte(strconv.Itoa(port)), 0o644),
			"writing port file")
	}
	return errors.Errorf("no free port in [%d, %d)", BasePort, BasePort+MaxPortAttempts)
}

// heartbeatLoop touches the heartbeat file every tick and honors the stop
// sentinel.
func (s *Server) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Heartbeat.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.touchHeartbeat()
			if _, err := os.Stat(s.home.StopSentinel()); err == nil {
				s.logger.Info(ctx, "stop sentinel found, shutting down")
				s.requestStop()
				return
			}
		}
	}
}

func (s *Server) touchHeartbeat() {
	millis := strconv.FormatInt(time.Now().UnixMilli(), 10)
	_ = os.WriteFile(s.home.HeartbeatFile(), []byte(millis), 0o644)
}

func (s *Server) requestStop() {
	s.stopOnce.Do(func() { close(s.stopped) })
}

func (s *Server) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() == nil {
				select {
				case <-s.stopped:
				default:
					s.logger.Warn(ctx, "ipc accept failed", "error", err)
				}
			}
			return
		}
		go s.handleConn(ctx, conn)
	}
}

// handleConn serves one request/response pair. A request without a trailing
// newline never resolves; a connection closed mid-read is dropped quietly.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		return
	}

	resp := s.handleRequest(ctx, line)
	data, err := json.Marshal(resp)
	if err != nil {
		data = []byte(`{"error":"internal error"}`)
	}
	_, _ = conn.Write(append(data, '\n'))
}

func (s *Server) handleRequest(ctx context.Context, line []byte) Response {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return Response{"error": "Invalid JSON"}
	}

	switch req.Type {
	case "ping":
		return Response{"pong": true, "timestamp": time.Now().UTC().Format(time.RFC3339Nano)}

	case "status":
		return s.statusReport(ctx)

	case "stop":
		// Acknowledge first; the shutdown races the response write, so
		// stop is requested after a short grace period.
		time.AfterFunc(50*time.Millisecond, s.requestStop)
		return Response{"acknowledged": true}

	case "task":
		if req.Payload == nil || req.Payload.Title == "" {
			return Response{"accepted": false, "error": "task title is required"}
		}
		task, err := s.store.InsertTask(ctx, req.Payload.ID, req.Payload.Title, req.Payload.AgentID)
		if err != nil {
			return Response{"accepted": false, "error": err.Error()}
		}
		s.worker.Nudge()
		return Response{"accepted": true, "id": task.ID}

	case "task_cancel":
		if req.ID == "" {
			return Response{"ok": false, "error": "task id is required"}
		}
		s.worker.Cancels().Cancel(req.ID)
		if err := s.store.CancelTask(ctx, req.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return Response{"ok": false, "error": err.Error()}
		}
		return Response{"ok": true}

	case "integrations_reload":
		go s.manager.Reload()
		return Response{"ok": true}

	default:
		return Response{"error": fmt.Sprintf("Unknown command type: %s", req.Type)}
	}
}

func (s *Server) statusReport(ctx context.Context) Response {
	episodes, _ := s.store.CountEpisodes(ctx)
	conversations, _ := s.store.CountConversations(ctx)

	s.mu.Lock()
	agentName := ""
	if s.agent != nil {
		agentName = s.agent.AgentName
	}
	providerName, model := "", ""
	if s.provider != nil {
		providerName = s.provider.Name()
		model = s.provider.DefaultModel()
	}
	s.mu.Unlock()

	statuses := map[string]string{}
	for platform, info := range s.manager.Statuses() {
		statuses[platform] = string(info.Status)
	}

	uptime := time.Since(s.startedAt)
	return Response{
		"pid":           os.Getpid(),
		"uptime":        uptime.Round(time.Second).String(),
		"uptimeSeconds": int(uptime.Seconds()),
		"agent":         agentName,
		"provider":      providerName,
		"model":         model,
		"memoryStats": map[string]int{
			"episodes":      episodes,
			"conversations": conversations,
		},
		"ctxEnabled":   s.longTerm != nil,
		"taskWorker":   map[string]string{"activeTaskId": s.worker.ActiveTaskID()},
		"integrations": statuses,
		"timestamp":    time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// shutdown drains everything and removes the runtime files.
func (s *Server) shutdown(ctx context.Context, cancel context.CancelFunc) {
	s.logger.Info(ctx, "daemon stopping")
	cancel()

	if s.manager != nil {
		s.manager.Stop()
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
	if s.pipeline != nil {
		s.pipeline.Close()
	}
	_ = os.Remove(s.home.PidFile())
	_ = os.Remove(s.home.PortFile())
	if s.store != nil {
		_ = s.store.Close()
	}
	s.logger.Info(context.Background(), "daemon stopped")
}
