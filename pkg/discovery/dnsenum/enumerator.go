package dnsenum

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/reconward/reconward/internal/config"
	"github.com/reconward/reconward/internal/logger"
	"github.com/reconward/reconward/internal/worker"
	"github.com/reconward/reconward/pkg/types"
)

// Lookup resolves a single hostname. Satisfied by *Resolver; tests supply
// table-driven fakes.
type Lookup interface {
	Resolve(ctx context.Context, hostname string) types.ResolvedHost
}

// Enumerator drives subdomain discovery for one target: it builds the
// candidate list, detects wildcard DNS, resolves candidates through the
// worker pool, and splits the outcome into raw and active host sets.
type Enumerator struct {
	Lookup       Lookup
	Pool         worker.Pool
	Wordlist     []string
	Permutations bool
	TaskTimeout  time.Duration
	Logger       *logger.Logger

	// Liveness optionally tightens the active set: when set, a resolved
	// non-wildcard host must also pass it to stay active. Hosts failing the
	// check remain in the raw list.
	Liveness func(ctx context.Context, hostname string) bool
}

func NewEnumerator(lookup Lookup, pool worker.Pool, log *logger.Logger) *Enumerator {
	if log == nil {
		log = logger.Nop()
	}
	return &Enumerator{
		Lookup:      lookup,
		Pool:        pool,
		Wordlist:    DefaultWordlist,
		TaskTimeout: worker.DefaultTaskTimeout,
		Logger:      log.WithComponent("dnsenum"),
	}
}

// Enumerate resolves every candidate for target and returns all outcomes plus
// the active subset downstream phases consume. The bare target is always a
// candidate. Candidates are deduplicated by hostname; hosts sharing an IP are
// distinct results. Active hosts are resolved, non-wildcard entries.
func (e *Enumerator) Enumerate(ctx context.Context, target string) (all, active []types.ResolvedHost, err error) {
	target = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(target), "."))
	if target == "" {
		return nil, nil, fmt.Errorf("empty target")
	}

	start := time.Now()
	wildcardIPs := e.checkWildcard(ctx, target)
	if len(wildcardIPs) > 0 {
		e.Logger.Warnw("Wildcard DNS detected, matching candidates will be excluded from active set",
			"target", target, "wildcard_ips", setKeys(wildcardIPs))
	}

	candidates := e.buildCandidates(target, e.Wordlist)
	all = e.resolveBatch(ctx, candidates, wildcardIPs, target)

	if e.Permutations {
		perms := e.permutationCandidates(target, all)
		if len(perms) > 0 {
			e.Logger.Debugw("Resolving permutation candidates", "count", len(perms))
			all = append(all, e.resolveBatch(ctx, perms, wildcardIPs, target)...)
		}
	}

	for _, h := range all {
		if !h.Resolved || h.Wildcard {
			continue
		}
		if e.Liveness != nil && !e.Liveness(ctx, h.Hostname) {
			continue
		}
		active = append(active, h)
	}

	e.Logger.LogDuration(ctx, "subdomain_enumeration", start,
		"target", target,
		"candidates", len(all),
		"active", len(active))

	if ctx.Err() != nil {
		return all, active, ctx.Err()
	}
	return all, active, nil
}

// buildCandidates returns the bare target followed by word.target for every
// wordlist entry, deduplicated by hostname. Entries that would form an
// invalid hostname are dropped rather than wasted on the resolver.
func (e *Enumerator) buildCandidates(target string, words []string) []string {
	seen := map[string]struct{}{target: {}}
	candidates := []string{target}
	for _, w := range words {
		host := w + "." + target
		if !config.ValidHostname(host) {
			e.Logger.Debugw("Skipping invalid candidate", "candidate", host)
			continue
		}
		if _, dup := seen[host]; dup {
			continue
		}
		seen[host] = struct{}{}
		candidates = append(candidates, host)
	}
	return candidates
}

func (e *Enumerator) permutationCandidates(target string, resolved []types.ResolvedHost) []string {
	seen := make(map[string]struct{}, len(resolved))
	for _, h := range resolved {
		seen[h.Hostname] = struct{}{}
	}

	var out []string
	for _, h := range resolved {
		if !h.Resolved || h.Wildcard || h.Hostname == target {
			continue
		}
		label, ok := strings.CutSuffix(h.Hostname, "."+target)
		if !ok || strings.Contains(label, ".") {
			continue
		}
		for _, mutated := range Permutations(label) {
			candidate := mutated + "." + target
			if _, dup := seen[candidate]; dup {
				continue
			}
			seen[candidate] = struct{}{}
			out = append(out, candidate)
		}
	}
	sort.Strings(out)
	return out
}

func (e *Enumerator) resolveBatch(ctx context.Context, candidates []string, wildcardIPs map[string]struct{}, target string) []types.ResolvedHost {
	tasks := make([]worker.Task[types.ResolvedHost], len(candidates))
	for i, host := range candidates {
		host := host
		tasks[i] = worker.Task[types.ResolvedHost]{
			Key:     host,
			Timeout: e.TaskTimeout,
			Fn: func(ctx context.Context) (types.ResolvedHost, error) {
				return e.Lookup.Resolve(ctx, host), nil
			},
		}
	}

	results := worker.Execute(ctx, e.Pool, tasks)
	out := make([]types.ResolvedHost, 0, len(results))
	for i, r := range results {
		h := r.Value
		if r.Err != nil || r.TimedOut {
			h = types.ResolvedHost{Hostname: candidates[i]}
			if r.Err != nil {
				h.Err = r.Err.Error()
			}
		}
		h.Source = sourceFor(h.Hostname, target)
		if h.Hostname != target && h.Resolved && matchesWildcard(h, wildcardIPs) {
			h.Wildcard = true
		}
		out = append(out, h)
	}
	return out
}

// checkWildcard resolves a label that cannot plausibly exist. If it resolves,
// the zone is a catch-all and the returned IP set identifies wildcard answers.
func (e *Enumerator) checkWildcard(ctx context.Context, target string) map[string]struct{} {
	probe := fmt.Sprintf("reconward-%s.%s", uuid.NewString()[:12], target)
	h := e.Lookup.Resolve(ctx, probe)
	if !h.Resolved {
		return nil
	}
	ips := make(map[string]struct{}, len(h.IPs))
	for _, ip := range h.IPs {
		ips[ip] = struct{}{}
	}
	if len(ips) == 0 && h.CNAME != "" {
		ips[h.CNAME] = struct{}{}
	}
	return ips
}

// matchesWildcard reports whether every answer for h is part of the wildcard
// answer set. A host with at least one distinct IP is a genuine subdomain.
func matchesWildcard(h types.ResolvedHost, wildcardIPs map[string]struct{}) bool {
	if len(wildcardIPs) == 0 {
		return false
	}
	if len(h.IPs) == 0 {
		_, ok := wildcardIPs[h.CNAME]
		return ok
	}
	for _, ip := range h.IPs {
		if _, ok := wildcardIPs[ip]; !ok {
			return false
		}
	}
	return true
}

func sourceFor(hostname, target string) types.HostSource {
	if hostname == target {
		return types.SourceTarget
	}
	label, _ := strings.CutSuffix(hostname, "."+target)
	for _, p := range permutationPrefixes {
		if strings.HasPrefix(label, p) {
			return types.SourcePermutation
		}
	}
	for _, s := range permutationSuffixes {
		if strings.HasSuffix(label, s) {
			return types.SourcePermutation
		}
	}
	return types.SourceWordlist
}

func setKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
