// Package portscan probes TCP ports on resolved hosts, classifying each as
// open, closed, or filtered, and grabs service banners from open ports.
package portscan

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/reconward/reconward/internal/logger"
	"github.com/reconward/reconward/internal/worker"
	"github.com/reconward/reconward/pkg/types"
	"golang.org/x/time/rate"
)

// DialFunc opens one TCP connection. Production use is net.Dialer.DialContext;
// tests inject scripted outcomes per address.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Prober probes ports through the shared worker pool, one task per
// (host, port) pair. A rate limiter spaces out connection attempts so a wide
// scan does not hammer the target.
type Prober struct {
	Dial          DialFunc
	Pool          worker.Pool
	Limiter       *rate.Limiter
	TaskTimeout   time.Duration
	BannerTimeout time.Duration
	Logger        *logger.Logger
}

// NewProber builds a prober with the default dialer. ratePerSec <= 0 disables
// rate limiting.
func NewProber(pool worker.Pool, taskTimeout time.Duration, ratePerSec int, log *logger.Logger) *Prober {
	if log == nil {
		log = logger.Nop()
	}
	if taskTimeout <= 0 {
		taskTimeout = worker.DefaultTaskTimeout
	}
	var limiter *rate.Limiter
	if ratePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec)
	}
	dialer := &net.Dialer{}
	return &Prober{
		Dial:          dialer.DialContext,
		Pool:          pool,
		Limiter:       limiter,
		TaskTimeout:   taskTimeout,
		BannerTimeout: time.Second,
		Logger:        log.WithComponent("portscan"),
	}
}

// Scan probes every port on host and returns one result per distinct port,
// sorted ascending. A task that exceeds its deadline yields a filtered
// result, the same as an unreachable host.
func (p *Prober) Scan(ctx context.Context, host string, ports []int) []types.PortResult {
	ports = dedupePorts(ports)
	start := time.Now()

	tasks := make([]worker.Task[types.PortResult], len(ports))
	for i, port := range ports {
		port := port
		tasks[i] = worker.Task[types.PortResult]{
			Key:     fmt.Sprintf("%s:%d", host, port),
			Timeout: p.TaskTimeout,
			Fn: func(ctx context.Context) (types.PortResult, error) {
				return p.probe(ctx, host, port)
			},
		}
	}

	results := worker.Execute(ctx, p.Pool, tasks)
	out := make([]types.PortResult, len(results))
	for i, r := range results {
		if r.TimedOut || r.Err != nil {
			out[i] = types.PortResult{Host: host, Port: ports[i], State: types.PortFiltered}
			continue
		}
		out[i] = r.Value
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Port < out[j].Port })

	open := 0
	for _, pr := range out {
		if pr.State == types.PortOpen {
			open++
		}
	}
	p.Logger.LogDuration(ctx, "port_scan", start,
		"host", host, "ports", len(out), "open", open)

	return out
}

// probe dials one port and classifies the outcome. Connection refused means a
// host answered with a reset: the port is closed. A timeout or unreachable
// network gives no evidence either way: filtered.
func (p *Prober) probe(ctx context.Context, host string, port int) (types.PortResult, error) {
	pr := types.PortResult{Host: host, Port: port}

	if p.Limiter != nil {
		if err := p.Limiter.Wait(ctx); err != nil {
			pr.State = types.PortFiltered
			return pr, nil
		}
	}

	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	conn, err := p.Dial(ctx, "tcp", addr)
	if err != nil {
		pr.State = classifyDialError(err)
		return pr, nil
	}
	defer conn.Close()

	pr.State = types.PortOpen
	pr.Service = GuessService(port)
	pr.Banner = p.grabBanner(ctx, conn, port)
	return pr, nil
}

// bannerHeadroom is how much of the task budget the banner attempt must
// leave untouched, so a silent service cannot push an already-open port
// into the timeout path.
const bannerHeadroom = 50 * time.Millisecond

// grabBanner reads whatever the service volunteers. HTTP-style services say
// nothing first, so a silent web port gets a HEAD poke. TLS ports are left
// alone; a plaintext poke would only elicit a protocol alert. All reads
// share one absolute deadline capped below the task's own.
func (p *Prober) grabBanner(ctx context.Context, conn net.Conn, port int) string {
	timeout := p.BannerTimeout
	if timeout <= 0 {
		timeout = time.Second
	}
	deadline := time.Now().Add(timeout)
	if dl, ok := ctx.Deadline(); ok {
		if capped := dl.Add(-bannerHeadroom); capped.Before(deadline) {
			deadline = capped
		}
	}
	if !deadline.After(time.Now()) {
		return ""
	}

	buf := make([]byte, 1024)
	_ = conn.SetReadDeadline(deadline)
	n, _ := conn.Read(buf)

	if n == 0 && WebPorts[port] && !TLSPorts[port] && deadline.After(time.Now()) {
		if _, err := conn.Write([]byte("HEAD / HTTP/1.0\r\n\r\n")); err == nil {
			_ = conn.SetReadDeadline(deadline)
			n, _ = conn.Read(buf)
		}
	}
	if n == 0 {
		return ""
	}
	return sanitizeBanner(buf[:n])
}

func classifyDialError(err error) types.PortState {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return types.PortClosed
	}
	if errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETUNREACH) {
		return types.PortFiltered
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return types.PortFiltered
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return types.PortFiltered
	}
	// Unknown dial failure gives no proof the port answered.
	return types.PortFiltered
}

// sanitizeBanner keeps the first line-ish chunk of printable text.
func sanitizeBanner(b []byte) string {
	s := strings.ToValidUTF8(string(b), "")
	s = strings.ReplaceAll(s, "\r", "")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		// Keep the status line plus Server header if present.
		lines := strings.Split(s, "\n")
		kept := lines[:1]
		for _, l := range lines[1:] {
			if strings.HasPrefix(strings.ToLower(l), "server:") {
				kept = append(kept, strings.TrimSpace(l))
				break
			}
		}
		s = strings.Join(kept, " ")
	}
	var out strings.Builder
	for _, r := range s {
		if r >= 32 && r < 127 {
			out.WriteRune(r)
		}
	}
	banner := strings.TrimSpace(out.String())
	if len(banner) > 200 {
		banner = banner[:200]
	}
	return banner
}

func dedupePorts(ports []int) []int {
	seen := make(map[int]struct{}, len(ports))
	out := make([]int, 0, len(ports))
	for _, p := range ports {
		if p < 1 || p > 65535 {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
