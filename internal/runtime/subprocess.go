package runtime

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"shardgen/internal/events"
)

// DefaultArgs is used when no argument template is configured.
var DefaultArgs = []string{
	"--manifest", "{manifest}",
	"--dtype", "{dtype}",
	"--model-type", "{model_type}",
	"--host", "{host}",
	"--port", "{port}",
	"--tensor-parallel", "{tp}",
}

// SubprocessOptions configure a runtime launched per materialization.
type SubprocessOptions struct {
	Bin string
	// Args may reference {manifest} {dtype} {model_type} {host} {port} {tp}.
	Args           []string
	Host           string
	PortStart      int
	PortEnd        int
	APIKey         string
	ReadyTimeout   time.Duration
	RequestTimeout time.Duration
	StopTimeout    time.Duration
	Log            zerolog.Logger
	Publisher      events.Publisher
}

type subprocessRuntime struct {
	opts SubprocessOptions
}

// NewSubprocess returns a Runtime that spawns opts.Bin and drives it over HTTP.
func NewSubprocess(opts SubprocessOptions) Runtime {
	if strings.TrimSpace(opts.Host) == "" {
		opts.Host = "127.0.0.1"
	}
	if len(opts.Args) == 0 {
		opts.Args = DefaultArgs
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = 5 * time.Minute
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 5 * time.Second
	}
	opts.Publisher = events.OrNop(opts.Publisher)
	return &subprocessRuntime{opts: opts}
}

// expandArgs substitutes template placeholders.
func expandArgs(tmpl []string, vars map[string]string) []string {
	pairs := make([]string, 0, 2*len(vars))
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	r := strings.NewReplacer(pairs...)
	out := make([]string, len(tmpl))
	for i, a := range tmpl {
		out[i] = r.Replace(a)
	}
	return out
}

func (r *subprocessRuntime) Materialize(ctx context.Context, spec LoadSpec) (Engine, error) {
	if strings.TrimSpace(r.opts.Bin) == "" {
		return nil, errors.New("runtime bin is empty")
	}
	host := r.opts.Host
	var port int
	var err error
	if r.opts.PortStart > 0 && r.opts.PortEnd >= r.opts.PortStart {
		port, err = pickPortInRange(host, r.opts.PortStart, r.opts.PortEnd)
	} else {
		port, err = pickFreePort(host)
	}
	if err != nil {
		return nil, err
	}
	baseURL := fmt.Sprintf("http://%s", net.JoinHostPort(host, strconv.Itoa(port)))
	tp := spec.TensorParallel
	if tp <= 0 {
		tp = 1
	}
	args := expandArgs(r.opts.Args, map[string]string{
		"manifest":   spec.ManifestPath,
		"dtype":      spec.DType.String(),
		"model_type": spec.ModelType,
		"host":       host,
		"port":       strconv.Itoa(port),
		"tp":         strconv.Itoa(tp),
	})

	cmd := exec.Command(r.opts.Bin, args...)
	stderr := &tailBuffer{max: 4096}
	cmd.Stderr = stderr
	// Children inheriting stderr must not keep Wait blocked after exit.
	cmd.WaitDelay = 2 * time.Second
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start runtime: %w", err)
	}
	pid := cmd.Process.Pid
	log := r.opts.Log.With().Str("adapter", "subprocess").Int("pid", pid).Logger()
	log.Info().Str("bin", r.opts.Bin).Str("url", baseURL).Msg("spawn")
	r.opts.Publisher.Publish(events.Event{Name: "spawn_start", Subject: spec.ModelType, Fields: map[string]any{"pid": pid, "host": host, "port": port}})

	p := &process{cmd: cmd, exited: make(chan error, 1), done: make(chan struct{}), stopTimeout: r.opts.StopTimeout}
	go func() {
		p.exited <- cmd.Wait()
		close(p.done)
	}()

	c := newClient(baseURL, r.opts.APIKey, r.opts.RequestTimeout)
	if err := waitHealthy(ctx, c, r.opts.ReadyTimeout, p.exited); err != nil {
		_ = p.stop()
		var ee *exitError
		if errors.As(err, &ee) {
			log.Warn().Err(err).Msg("exit before ready")
			r.opts.Publisher.Publish(events.Event{Name: "spawn_exit", Subject: spec.ModelType, Fields: map[string]any{"pid": pid, "error": err.Error()}})
			return nil, fmt.Errorf("%w; stderr tail: %s", err, stderr.String())
		}
		log.Warn().Err(err).Msg("not ready")
		r.opts.Publisher.Publish(events.Event{Name: "spawn_timeout", Subject: spec.ModelType, Fields: map[string]any{"pid": pid}})
		return nil, err
	}
	log.Info().Str("manifest", spec.ManifestPath).Msg("load")
	if err := c.load(ctx, spec); err != nil {
		_ = p.stop()
		r.opts.Publisher.Publish(events.Event{Name: "runtime_load_failed", Subject: spec.ModelType, Fields: map[string]any{"pid": pid, "error": err.Error()}})
		return nil, fmt.Errorf("runtime load: %w", err)
	}
	log.Info().Str("url", baseURL).Msg("ready")
	r.opts.Publisher.Publish(events.Event{Name: "runtime_ready", Subject: spec.ModelType, Fields: map[string]any{"pid": pid, "url": baseURL}})

	var once sync.Once
	closeFn := func() error {
		var err error
		once.Do(func() {
			err = p.stop()
			log.Info().Msg("stopped")
			r.opts.Publisher.Publish(events.Event{Name: "spawn_stop", Subject: spec.ModelType, Fields: map[string]any{"pid": pid}})
		})
		return err
	}
	return &httpEngine{c: c, info: Info{Mode: "subprocess", URL: baseURL, PID: pid}, closeFn: closeFn}, nil
}

// process tracks a spawned runtime; done closes once Wait returns.
type process struct {
	cmd         *exec.Cmd
	exited      chan error
	done        chan struct{}
	stopTimeout time.Duration
}

// stop sends SIGTERM, then kills after stopTimeout.
func (p *process) stop() error {
	select {
	case <-p.done:
		return nil
	default:
	}
	_ = p.cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-p.done:
		return nil
	case <-time.After(p.stopTimeout):
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	<-p.done
	return nil
}

func pickPortInRange(host string, start, end int) (int, error) {
	for p := start; p <= end; p++ {
		l, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(p)))
		if err != nil {
			continue
		}
		_ = l.Close()
		return p, nil
	}
	return 0, fmt.Errorf("no free port in range %d-%d", start, end)
}

func pickFreePort(host string) (int, error) {
	l, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}
