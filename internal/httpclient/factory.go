// Package httpclient builds the shared HTTP clients used for liveness checks
// and technology fingerprinting. Recon targets routinely present self-signed
// or mismatched certificates, so verification is relaxed deliberately.
package httpclient

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

type Config struct {
	Timeout         time.Duration
	UserAgent       string
	FollowRedirects bool
	MaxIdleConns    int
}

func DefaultConfig() Config {
	return Config{
		Timeout:         10 * time.Second,
		UserAgent:       "reconward/1.0",
		FollowRedirects: true,
		MaxIdleConns:    20,
	}
}

// New returns a client tuned for probing unknown hosts: short dial and TLS
// handshake timeouts, no connection reuse pressure, certificate verification
// disabled.
func New(cfg Config) *http.Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = 20
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 15 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 5 * time.Second,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: true, //nolint:gosec // probing hosts with self-signed certs
			MinVersion:         tls.VersionTLS10,
		},
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       30 * time.Second,
		ExpectContinueTimeout: time.Second,
	}

	client := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: transport,
	}

	if !cfg.FollowRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	return client
}
