package agent

import (
	"bufio"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/mylxsw/asteria/log"
	"golang.org/x/sync/errgroup"
)

// Timeout kinds reported in synthetic error records.
const (
	TimeoutTotal      = "total"
	TimeoutInactivity = "inactivity"
)

const (
	defaultTotalTimeout      = time.Hour
	defaultInactivityTimeout = 5 * time.Minute
	defaultKillTimeout       = 5 * time.Second

	inactivityPoll = 100 * time.Millisecond
	maxRecordBytes = 1024 * 1024
)

// Config controls how agent processes are launched and supervised.
type Config struct {
	// CLIPath is the agent executable; empty means "claude" from PATH.
	CLIPath string
	// TotalTimeout caps the lifetime of one agent process.
	TotalTimeout time.Duration
	// InactivityTimeout fires when the agent produces no output for the
	// duration; reset on every output line.
	InactivityTimeout time.Duration
	// KillTimeout is the grace window between SIGTERM and SIGKILL.
	KillTimeout time.Duration
	// MCPConfigPath, when set and present on disk, is passed through to
	// the agent via --mcp-config.
	MCPConfigPath string
	// UsePTY launches the agent on a pseudo-terminal. Some CLIs buffer
	// stdout when it is not a tty; the pty keeps output unbuffered at the
	// cost of passing the prompt as an argument instead of stdin.
	UsePTY bool
}

func (c Config) cliPath() string {
	if c.CLIPath != "" {
		return c.CLIPath
	}
	return "claude"
}

// Request describes one agent invocation. Immutable once handed to the
// runner.
type Request struct {
	Prompt          string
	SessionID       string
	Workspace       string // resolved absolute directory, used as cwd
	SystemPrompt    string
	AllowedTools    []string
	DisallowedTools []string
	Skills          []string
	SkillOptions    string // raw JSON object passed through to the CLI
	SkipPermissions bool
}

// Runner launches and supervises agent processes, one per Execute call.
type Runner struct {
	cfg      Config
	registry *Registry

	commandRun func(name string, arg ...string) *exec.Cmd
}

func NewRunner(cfg Config, registry *Registry) *Runner {
	if cfg.TotalTimeout <= 0 {
		cfg.TotalTimeout = defaultTotalTimeout
	}
	if cfg.InactivityTimeout <= 0 {
		cfg.InactivityTimeout = defaultInactivityTimeout
	}
	if cfg.KillTimeout <= 0 {
		cfg.KillTimeout = defaultKillTimeout
	}
	return &Runner{cfg: cfg, registry: registry, commandRun: exec.Command}
}

// Registry exposes the active-process registry for observability.
func (r *Runner) Registry() *Registry { return r.registry }

// Execute spawns the agent for one request and streams its decoded output
// records. The returned channel is closed on every terminal path: normal
// exit, either timeout, context cancellation, or spawn failure after
// partial setup. Spawn failures surface as an error with no channel.
//
// Cancellation and both timeouts converge on the same idempotent
// termination routine: SIGTERM, a grace window, then SIGKILL.
func (r *Runner) Execute(ctx context.Context, req Request) (<-chan Record, error) {
	cmd := r.commandRun(r.cfg.cliPath(), r.buildArgs(req, r.cfg.UsePTY)...)
	cmd.Dir = req.Workspace
	cmd.Env = BuildCommandEnv(nil)

	var out io.Reader
	closeIO := func() {}
	g := new(errgroup.Group)

	if r.cfg.UsePTY {
		ptmx, err := pty.Start(cmd)
		if err != nil {
			return nil, spawnError(err)
		}
		out = ptmx
		closeIO = func() { _ = ptmx.Close() }
	} else {
		stdin, err := cmd.StdinPipe()
		if err != nil {
			return nil, NewError(TypeAgentCLI, CodeAgentFailed, "stdin pipe: %v", err)
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, NewError(TypeAgentCLI, CodeAgentFailed, "stdout pipe: %v", err)
		}
		stderr, err := cmd.StderrPipe()
		if err != nil {
			return nil, NewError(TypeAgentCLI, CodeAgentFailed, "stderr pipe: %v", err)
		}
		if err := cmd.Start(); err != nil {
			return nil, spawnError(err)
		}

		prompt := req.Prompt
		g.Go(func() error {
			defer stdin.Close()
			if _, err := io.WriteString(stdin, prompt); err != nil {
				log.Debugf("agent stdin write: %v", err)
			}
			return nil
		})
		g.Go(func() error {
			drainStderr(cmd.Process.Pid, stderr)
			return nil
		})
		out = stdout
		closeIO = func() {
			_ = stdout.Close()
			_ = stderr.Close()
		}
	}

	// Closing the output streams doubles as the unblocking path for the
	// scanner: a child the agent leaves behind can hold the pipe open
	// after the agent itself is dead.
	var ioOnce sync.Once
	closeStreams := func() { ioOnce.Do(closeIO) }

	now := time.Now()
	handle := &Handle{
		PID:        cmd.Process.Pid,
		SessionID:  req.SessionID,
		Workspace:  req.Workspace,
		StartedAt:  now,
		lastOutput: now,
	}

	procExited := make(chan struct{})
	var termOnce sync.Once
	terminate := func(reason string) {
		termOnce.Do(func() {
			log.Debugf("terminating agent: pid=%d reason=%s", handle.PID, reason)
			if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
				log.Debugf("SIGTERM pid=%d: %v", handle.PID, err)
			}
			go func() {
				grace := time.NewTimer(r.cfg.KillTimeout)
				defer grace.Stop()
				select {
				case <-procExited:
				case <-grace.C:
					log.Warningf("agent ignored SIGTERM, killing: pid=%d", handle.PID)
					_ = cmd.Process.Kill()
					closeStreams()
				}
			}()
		})
	}

	r.registry.Add(handle, func() { terminate("server shutdown") })

	var timeoutMu sync.Mutex
	var timeoutKind string
	setTimeout := func(kind string) {
		timeoutMu.Lock()
		if timeoutKind == "" {
			timeoutKind = kind
		}
		timeoutMu.Unlock()
	}
	firedTimeout := func() string {
		timeoutMu.Lock()
		defer timeoutMu.Unlock()
		return timeoutKind
	}

	// Watcher: total timer, inactivity poll, and caller cancellation all
	// converge on terminate.
	go func() {
		total := time.NewTimer(r.cfg.TotalTimeout)
		defer total.Stop()
		poll := time.NewTicker(inactivityPoll)
		defer poll.Stop()
		for {
			select {
			case <-procExited:
				return
			case <-ctx.Done():
				log.Infof("request cancelled, terminating agent: pid=%d", handle.PID)
				terminate("cancelled")
				return
			case <-total.C:
				setTimeout(TimeoutTotal)
				log.Errorf("agent total timeout: pid=%d limit=%s", handle.PID, r.cfg.TotalTimeout)
				terminate("total timeout")
				return
			case <-poll.C:
				if time.Since(handle.LastOutput()) >= r.cfg.InactivityTimeout {
					setTimeout(TimeoutInactivity)
					log.Errorf("agent inactivity timeout: pid=%d limit=%s", handle.PID, r.cfg.InactivityTimeout)
					terminate("inactivity timeout")
					return
				}
			}
		}
	}()

	// Capacity one keeps the reader a single record ahead of the consumer
	// at most, so records reach the client as the CLI emits them.
	events := make(chan Record, 1)

	go func() {
		defer close(events)
		defer r.registry.Remove(handle.PID)

		log.Infof("agent started: pid=%d workspace=%s session=%s", handle.PID, req.Workspace, req.SessionID)

		delivering := true
		scanner := bufio.NewScanner(out)
		scanner.Buffer(make([]byte, 64*1024), maxRecordBytes)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			handle.Touch()

			rec, err := ParseRecord([]byte(line))
			if err != nil {
				log.Warningf("skipping undecodable agent output: pid=%d err=%v", handle.PID, err)
				continue
			}
			if delivering {
				select {
				case events <- rec:
				case <-ctx.Done():
					delivering = false
				}
			}
			if rec.Type == RecordResult {
				break
			}
		}
		closeStreams()
		_ = g.Wait()

		// The CLI normally exits right after its result record; reap it,
		// killing it if it lingers.
		terminate("stream closed")
		waitErr := cmd.Wait()
		close(procExited)

		exitCode := -1
		if cmd.ProcessState != nil {
			exitCode = cmd.ProcessState.ExitCode()
		}
		duration := time.Since(handle.StartedAt)

		if kind := firedTimeout(); kind != "" {
			limit := r.cfg.TotalTimeout
			if kind == TimeoutInactivity {
				limit = r.cfg.InactivityTimeout
			}
			if delivering {
				select {
				case events <- TimeoutRecord(kind, limit):
				case <-ctx.Done():
				}
			}
		} else if waitErr != nil && ctx.Err() == nil {
			// Abnormal exit is metadata, not a stream error: the agent's
			// last record already carries its status.
			log.Warningf("agent exited abnormally: pid=%d exit_code=%d err=%v", handle.PID, exitCode, waitErr)
		}

		log.Infof("agent finished: pid=%d exit_code=%d duration=%s", handle.PID, exitCode, duration)
	}()

	return events, nil
}

func (r *Runner) buildArgs(req Request, promptAsArg bool) []string {
	args := []string{"-p"}
	if promptAsArg {
		args = append(args, req.Prompt)
	}
	args = append(args, "--verbose", "--output-format", "stream-json")

	if r.cfg.MCPConfigPath != "" {
		if _, err := os.Stat(r.cfg.MCPConfigPath); err == nil {
			args = append(args, "--mcp-config", r.cfg.MCPConfigPath)
		}
	}
	if req.SessionID != "" {
		args = append(args, "--resume", req.SessionID)
	}
	if req.SkipPermissions {
		args = append(args, "--dangerously-skip-permissions")
	}
	if req.SystemPrompt != "" {
		args = append(args, "--system-prompt", req.SystemPrompt)
	}
	if len(req.AllowedTools) > 0 {
		args = append(args, "--allowedTools", strings.Join(req.AllowedTools, ","))
	}
	if len(req.DisallowedTools) > 0 {
		args = append(args, "--disallowedTools", strings.Join(req.DisallowedTools, ","))
	}
	if len(req.Skills) > 0 {
		args = append(args, "--skills", strings.Join(req.Skills, ","))
	}
	if req.SkillOptions != "" {
		args = append(args, "--skillOptions", req.SkillOptions)
	}
	return args
}

func drainStderr(pid int, stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 64*1024), maxRecordBytes)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			log.Warningf("agent stderr: pid=%d %s", pid, line)
		}
	}
}

func spawnError(err error) error {
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOENT) {
		return NewError(TypeAgentCLI, CodeAgentNotFound, "agent CLI not available: %v", err)
	}
	return NewError(TypeAgentCLI, CodeAgentFailed, "failed to start agent CLI: %v", err)
}
