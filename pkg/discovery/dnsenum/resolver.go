// Package dnsenum discovers subdomains of a target by resolving a candidate
// list built from a wordlist, with wildcard DNS detection so catch-all zones
// do not flood the results.
package dnsenum

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/miekg/dns"
	"github.com/reconward/reconward/pkg/types"
)

// ExchangeFunc performs one DNS query against one server. Production use
// wraps dns.Client.ExchangeContext; tests inject canned responses.
type ExchangeFunc func(ctx context.Context, msg *dns.Msg, server string) (*dns.Msg, error)

// Resolver answers A/AAAA/CNAME questions, rotating across its server list.
// A single Resolver is shared by every worker in the enumeration fan-out, so
// it must be safe for concurrent use.
type Resolver struct {
	Servers  []string
	Timeout  time.Duration
	Exchange ExchangeFunc

	next atomic.Uint64
}

// NewResolver builds a resolver over the given servers ("ip:53"). A nil or
// empty server list falls back to well-known public resolvers.
func NewResolver(servers []string, timeout time.Duration) *Resolver {
	if len(servers) == 0 {
		servers = []string{"8.8.8.8:53", "1.1.1.1:53"}
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	client := &dns.Client{Timeout: timeout}
	return &Resolver{
		Servers: servers,
		Timeout: timeout,
		Exchange: func(ctx context.Context, msg *dns.Msg, server string) (*dns.Msg, error) {
			resp, _, err := client.ExchangeContext(ctx, msg, server)
			return resp, err
		},
	}
}

// Resolve looks up hostname and returns a ResolvedHost. NXDOMAIN and empty
// answers produce Resolved=false with no error; only transport failures set
// Err. The hostname is recorded in its original form.
func (r *Resolver) Resolve(ctx context.Context, hostname string) types.ResolvedHost {
	host := types.ResolvedHost{Hostname: hostname}
	fqdn := dns.Fqdn(strings.ToLower(hostname))

	var lastErr error
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		msg := new(dns.Msg)
		msg.SetQuestion(fqdn, qtype)
		msg.RecursionDesired = true

		resp, err := r.exchange(ctx, msg)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.Rcode != dns.RcodeSuccess {
			continue
		}
		for _, rr := range resp.Answer {
			switch v := rr.(type) {
			case *dns.A:
				host.IPs = append(host.IPs, v.A.String())
			case *dns.AAAA:
				host.IPs = append(host.IPs, v.AAAA.String())
			case *dns.CNAME:
				host.CNAME = strings.TrimSuffix(v.Target, ".")
			}
		}
	}

	host.Resolved = len(host.IPs) > 0 || host.CNAME != ""
	if !host.Resolved && lastErr != nil {
		host.Err = lastErr.Error()
	}
	return host
}

func (r *Resolver) exchange(ctx context.Context, msg *dns.Msg) (*dns.Msg, error) {
	offset := int((r.next.Add(1) - 1) % uint64(len(r.Servers)))
	var lastErr error
	for i := 0; i < len(r.Servers); i++ {
		server := r.Servers[(offset+i)%len(r.Servers)]
		resp, err := r.Exchange(ctx, msg, server)
		if err == nil && resp != nil {
			return resp, nil
		}
		if err != nil {
			lastErr = err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no resolver answered")
	}
	return nil, lastErr
}
