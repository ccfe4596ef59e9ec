package portscan

import (
	"context"
	"errors"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/reconward/reconward/internal/worker"
	"github.com/reconward/reconward/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// timeoutErr mimics a dial or read deadline expiring.
type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

// fakeConn serves a scripted banner. If the banner is empty and the caller
// writes an HTTP poke, it answers with an HTTP banner.
type fakeConn struct {
	banner     []byte
	httpAnswer []byte
	read       bool
	closed     bool
}

func (c *fakeConn) Read(b []byte) (int, error) {
	if c.read || len(c.banner) == 0 {
		return 0, timeoutErr{}
	}
	c.read = true
	return copy(b, c.banner), nil
}

func (c *fakeConn) Write(b []byte) (int, error) {
	if len(c.httpAnswer) > 0 {
		c.banner = c.httpAnswer
		c.read = false
	}
	return len(b), nil
}

func (c *fakeConn) Close() error                     { c.closed = true; return nil }
func (c *fakeConn) LocalAddr() net.Addr              { return &net.TCPAddr{} }
func (c *fakeConn) RemoteAddr() net.Addr             { return &net.TCPAddr{} }
func (c *fakeConn) SetDeadline(time.Time) error      { return nil }
func (c *fakeConn) SetReadDeadline(time.Time) error  { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func newTestProber(dial DialFunc) *Prober {
	p := NewProber(worker.New(4, nil), time.Second, 0, nil)
	p.Dial = dial
	p.BannerTimeout = 50 * time.Millisecond
	return p
}

func TestScanClassifiesAndSorts(t *testing.T) {
	// One host, three ports: 80 answers with a banner, 443 times out,
	// 22 refuses the connection.
	dial := func(ctx context.Context, network, addr string) (net.Conn, error) {
		switch addr {
		case "scanme.example.com:80":
			return &fakeConn{banner: []byte("HTTP/1.0 200 OK\r\nServer: nginx/1.18.0\r\n\r\n")}, nil
		case "scanme.example.com:443":
			return nil, timeoutErr{}
		case "scanme.example.com:22":
			return nil, &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}
		}
		return nil, errors.New("unexpected address " + addr)
	}

	p := newTestProber(dial)
	// Deliberately unsorted submission order.
	results := p.Scan(context.Background(), "scanme.example.com", []int{80, 443, 22})

	require.Len(t, results, 3)
	assert.Equal(t, []int{22, 80, 443}, []int{results[0].Port, results[1].Port, results[2].Port})

	assert.Equal(t, types.PortClosed, results[0].State)
	assert.Equal(t, types.PortOpen, results[1].State)
	assert.Equal(t, types.PortFiltered, results[2].State)

	assert.Equal(t, "http", results[1].Service)
	assert.Contains(t, results[1].Banner, "HTTP/1.0 200 OK")
	assert.Contains(t, results[1].Banner, "nginx/1.18.0")
}

func TestScanSilentWebPortGetsHTTPPoke(t *testing.T) {
	conn := &fakeConn{httpAnswer: []byte("HTTP/1.0 403 Forbidden\r\nServer: Apache\r\n\r\n")}
	dial := func(ctx context.Context, network, addr string) (net.Conn, error) {
		return conn, nil
	}

	p := newTestProber(dial)
	results := p.Scan(context.Background(), "h.example.com", []int{8080})

	require.Len(t, results, 1)
	assert.Equal(t, types.PortOpen, results[0].State)
	assert.Contains(t, results[0].Banner, "403 Forbidden")
	assert.True(t, conn.closed)
}

func TestScanSilentNonWebPortHasNoBanner(t *testing.T) {
	dial := func(ctx context.Context, network, addr string) (net.Conn, error) {
		return &fakeConn{}, nil
	}

	p := newTestProber(dial)
	results := p.Scan(context.Background(), "h.example.com", []int{445})

	require.Len(t, results, 1)
	assert.Equal(t, types.PortOpen, results[0].State)
	assert.Empty(t, results[0].Banner)
	assert.Equal(t, "smb", results[0].Service)
}

// silentConn never volunteers data; reads block until the configured read
// deadline passes, like a live service that simply says nothing.
type silentConn struct{ deadline time.Time }

func (c *silentConn) Read(b []byte) (int, error) {
	if d := time.Until(c.deadline); d > 0 {
		time.Sleep(d)
	}
	return 0, timeoutErr{}
}

func (c *silentConn) Write(b []byte) (int, error)       { return len(b), nil }
func (c *silentConn) Close() error                      { return nil }
func (c *silentConn) LocalAddr() net.Addr               { return &net.TCPAddr{} }
func (c *silentConn) RemoteAddr() net.Addr              { return &net.TCPAddr{} }
func (c *silentConn) SetDeadline(time.Time) error       { return nil }
func (c *silentConn) SetReadDeadline(t time.Time) error { c.deadline = t; return nil }
func (c *silentConn) SetWriteDeadline(time.Time) error  { return nil }

func TestScanLateDialSilentServiceStillOpen(t *testing.T) {
	// The dial lands close to the task deadline and the service never talks.
	// The banner attempt must give up within the remaining budget instead of
	// overrunning it and turning the completed connection into a filtered
	// result.
	dial := func(ctx context.Context, network, addr string) (net.Conn, error) {
		time.Sleep(120 * time.Millisecond)
		return &silentConn{}, nil
	}

	p := NewProber(worker.New(1, nil), 200*time.Millisecond, 0, nil)
	p.Dial = dial
	p.BannerTimeout = time.Second

	results := p.Scan(context.Background(), "h.example.com", []int{8080})
	require.Len(t, results, 1)
	assert.Equal(t, types.PortOpen, results[0].State, "a completed connection is open no matter how silent the service")
	assert.Empty(t, results[0].Banner)
}

func TestScanDedupesAndDropsInvalidPorts(t *testing.T) {
	var dialed []string
	dial := func(ctx context.Context, network, addr string) (net.Conn, error) {
		dialed = append(dialed, addr)
		return nil, &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}
	}

	p := newTestProber(dial)
	results := p.Scan(context.Background(), "h.example.com", []int{80, 80, 0, 70000, 22})

	require.Len(t, results, 2)
	assert.Len(t, dialed, 2)
	assert.Equal(t, 22, results[0].Port)
	assert.Equal(t, 80, results[1].Port)
}

func TestScanUnreachableHostAllFiltered(t *testing.T) {
	dial := func(ctx context.Context, network, addr string) (net.Conn, error) {
		return nil, &net.OpError{Op: "dial", Err: syscall.EHOSTUNREACH}
	}

	p := newTestProber(dial)
	results := p.Scan(context.Background(), "dark.example.com", []int{22, 80, 443})

	require.Len(t, results, 3)
	for _, r := range results {
		assert.Equal(t, types.PortFiltered, r.State)
	}
}

func TestClassifyDialError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want types.PortState
	}{
		{"refused", syscall.ECONNREFUSED, types.PortClosed},
		{"wrapped refused", &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, types.PortClosed},
		{"timeout", timeoutErr{}, types.PortFiltered},
		{"host unreachable", syscall.EHOSTUNREACH, types.PortFiltered},
		{"net unreachable", syscall.ENETUNREACH, types.PortFiltered},
		{"deadline", context.DeadlineExceeded, types.PortFiltered},
		{"unknown", errors.New("mystery"), types.PortFiltered},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyDialError(tt.err))
		})
	}
}

func TestFullRangeBounds(t *testing.T) {
	ports := FullRange()
	require.Len(t, ports, 65535)
	assert.Equal(t, 1, ports[0])
	assert.Equal(t, 65535, ports[len(ports)-1])
}
