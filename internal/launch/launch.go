// Package launch builds and starts the processes that run an executable
// inside a prefix, either with the system Wine or with a Proton runtime.
package launch

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/zelotez/winemgr/internal/logging"
)

// SteamClientPath is handed to Proton when no Steam installation is used.
const SteamClientPath = "/usr"

var ErrInvalidSpec = errors.New("invalid launch spec")

// Spec describes one launch.
type Spec struct {
	Prefix string
	Exe    string
	// ProtonExe is the runtime entry point; empty runs the system wine.
	ProtonExe string
	// Env is the base environment; nil means the current process environment.
	Env []string
	// Wine overrides the wine binary name.
	Wine string
}

// Runtime names what the spec launches with.
func (s Spec) Runtime() string {
	if s.ProtonExe != "" {
		return "Proton " + filepath.Base(filepath.Dir(s.ProtonExe))
	}
	return "Wine"
}

func (s Spec) validate() error {
	if strings.TrimSpace(s.Prefix) == "" || strings.TrimSpace(s.Exe) == "" {
		return fmt.Errorf("%w: prefix and executable are required", ErrInvalidSpec)
	}
	return nil
}

// Command returns the command for spec without starting it.
func Command(ctx context.Context, spec Spec) (*exec.Cmd, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}

	env := spec.Env
	if env == nil {
		env = os.Environ()
	}
	env = setEnv(env, "WINEPREFIX", spec.Prefix)

	var cmd *exec.Cmd
	if spec.ProtonExe != "" {
		env = setEnv(env, "STEAM_COMPAT_DATA_PATH", spec.Prefix)
		env = setEnv(env, "STEAM_COMPAT_CLIENT_INSTALL_PATH", SteamClientPath)
		cmd = exec.CommandContext(ctx, spec.ProtonExe, "run", spec.Exe)
	} else {
		wine := spec.Wine
		if wine == "" {
			wine = "wine"
		}
		cmd = exec.CommandContext(ctx, wine, "start", "/unix", spec.Exe)
	}
	cmd.Env = env
	cmd.Dir = filepath.Dir(spec.Exe)
	return cmd, nil
}

// setEnv returns env with key set to value, replacing earlier entries.
func setEnv(env []string, key, value string) []string {
	out := make([]string, 0, len(env)+1)
	for _, kv := range env {
		if !strings.HasPrefix(kv, key+"=") {
			out = append(out, kv)
		}
	}
	return append(out, key+"="+value)
}

// Process is a started launch whose output is being logged.
type Process struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

// Pid returns the operating system process id.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Wait blocks until the process exits.
func (p *Process) Wait() error {
	<-p.done
	return p.err
}

// Start launches spec and logs every output line: stdout at info level,
// stderr at error level when it mentions a failure and warn otherwise.
func Start(ctx context.Context, spec Spec, logger *log.Logger) (*Process, error) {
	logger = logging.OrDiscard(logger)
	cmd, err := Command(ctx, spec)
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to attach stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to attach stderr: %w", err)
	}

	name := filepath.Base(spec.Exe)
	logger.Info("launching", "exe", name, "prefix", spec.Prefix, "runtime", spec.Runtime(), "cmd", strings.Join(cmd.Args, " "))
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to launch %s: %w", name, err)
	}
	logger.Info("started process", "exe", name, "pid", cmd.Process.Pid)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		pipeLines(stdout, func(line string) { logger.Info(line, "exe", name, "stream", "stdout") })
	}()
	go func() {
		defer wg.Done()
		pipeLines(stderr, func(line string) {
			if looksLikeError(line) {
				logger.Error(line, "exe", name, "stream", "stderr")
			} else {
				logger.Warn(line, "exe", name, "stream", "stderr")
			}
		})
	}()

	p := &Process{cmd: cmd, done: make(chan struct{})}
	go func() {
		// pipes must be drained before Wait closes them
		wg.Wait()
		p.err = cmd.Wait()
		if p.err != nil {
			logger.Warn("process exited", "exe", name, "err", p.err)
		} else {
			logger.Info("process exited", "exe", name)
		}
		close(p.done)
	}()
	return p, nil
}

func pipeLines(r io.Reader, fn func(string)) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			fn(line)
		}
	}
}

func looksLikeError(line string) bool {
	l := strings.ToLower(line)
	for _, kw := range []string{"error", "failed", "exception"} {
		if strings.Contains(l, kw) {
			return true
		}
	}
	return false
}
