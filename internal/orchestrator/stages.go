package orchestrator

import (
	"context"
	"fmt"
	"sort"

	"github.com/reconward/reconward/internal/logger"
	"github.com/reconward/reconward/pkg/types"
	"golang.org/x/sync/errgroup"
)

// Collaborator seams. Production wiring injects the dnsenum, portscan,
// techstack, browser, and nmap implementations; tests inject fakes.

type Enumerator interface {
	Enumerate(ctx context.Context, target string) (all, active []types.ResolvedHost, err error)
}

type Prober interface {
	Scan(ctx context.Context, host string, ports []int) []types.PortResult
}

type Fingerprinter interface {
	FingerprintAll(ctx context.Context, endpoints []types.Endpoint) []types.TechResult
}

type Screenshotter interface {
	Capture(ctx context.Context, endpoints []types.Endpoint, outDir string) ([]types.Screenshot, error)
}

type ServiceEnricher interface {
	Scan(ctx context.Context, host string, ports []int) ([]types.PortResult, error)
}

type ReportWriter interface {
	Write(result *types.ScanResult) (reportPath, dumpPath string, err error)
}

// SubdomainStage populates Hosts and ActiveHosts. When skipped, the bare
// target is assumed live so the port phase still has something to probe.
type SubdomainStage struct {
	Enumerator Enumerator
	Skip       bool
}

func (s *SubdomainStage) Name() string { return types.PhaseSubdomains }

func (s *SubdomainStage) Run(ctx context.Context, result *types.ScanResult) error {
	if s.Skip {
		host := types.ResolvedHost{Hostname: result.Target, Resolved: true, Source: types.SourceTarget}
		result.Hosts = append(result.Hosts, host)
		result.ActiveHosts = append(result.ActiveHosts, host)
		return ErrSkipped
	}

	all, active, err := s.Enumerator.Enumerate(ctx, result.Target)
	result.Hosts = append(result.Hosts, all...)
	result.ActiveHosts = append(result.ActiveHosts, active...)
	if err != nil {
		return err
	}
	if len(result.ActiveHosts) == 0 {
		// Nothing to carry forward: the run cannot produce anything beyond
		// the raw resolution record.
		return fmt.Errorf("target %s is entirely unresolvable", result.Target)
	}
	return nil
}

// PortStage probes the configured ports on every active host. Zero active
// hosts is a legitimate empty outcome, not a failure.
type PortStage struct {
	Prober Prober
	Ports  []int
	Skip   bool
	Logger *logger.Logger
}

func (s *PortStage) Name() string { return types.PhasePorts }

func (s *PortStage) Run(ctx context.Context, result *types.ScanResult) error {
	if s.Skip {
		return ErrSkipped
	}

	hosts := activeHostnames(result)
	if len(hosts) == 0 {
		stageLogger(ctx, s.Logger).Warnw("No active hosts to probe", "target", result.Target)
		return nil
	}

	for _, host := range hosts {
		if ctx.Err() != nil {
			result.Phase(s.Name()).Partial = true
			return ctx.Err()
		}
		result.Ports[host] = s.Prober.Scan(ctx, host, s.Ports)
	}
	return nil
}

// EnrichmentStage derives web endpoints from open ports and runs the
// fingerprinting, screenshot, and nmap collaborators concurrently. Each
// collaborator collects into locals; the aggregate is only appended to after
// all of them finish, keeping the no-locking rule intact.
type EnrichmentStage struct {
	Fingerprinter Fingerprinter
	Screenshotter Screenshotter
	Enricher      ServiceEnricher
	WebPorts      map[int]bool
	ScreenshotDir string

	SkipTech        bool
	SkipScreenshots bool
	Logger          *logger.Logger
}

func (s *EnrichmentStage) Name() string { return types.PhaseEnrichment }

func (s *EnrichmentStage) Run(ctx context.Context, result *types.ScanResult) error {
	result.Endpoints = append(result.Endpoints, s.deriveEndpoints(result)...)

	runTech := !s.SkipTech && s.Fingerprinter != nil && len(result.Endpoints) > 0
	runShots := !s.SkipScreenshots && s.Screenshotter != nil && len(result.Endpoints) > 0
	runNmap := s.Enricher != nil

	if !runTech && !runShots && !runNmap {
		if s.SkipTech && s.SkipScreenshots && s.Enricher == nil {
			return ErrSkipped
		}
		return nil
	}

	var (
		tech     []types.TechResult
		shots    []types.Screenshot
		enriched map[string][]types.PortResult
	)

	g, gctx := errgroup.WithContext(ctx)

	if runTech {
		g.Go(func() error {
			tech = s.Fingerprinter.FingerprintAll(gctx, result.Endpoints)
			return nil
		})
	}

	if runShots {
		g.Go(func() error {
			var err error
			shots, err = s.Screenshotter.Capture(gctx, result.Endpoints, s.ScreenshotDir)
			if err != nil {
				// Browser missing entirely: record the failure per endpoint.
				shots = shots[:0]
				for _, ep := range result.Endpoints {
					shots = append(shots, types.Screenshot{Endpoint: ep.URL, Err: err.Error()})
				}
			}
			return nil
		})
	}

	if runNmap {
		g.Go(func() error {
			enriched = make(map[string][]types.PortResult)
			for _, host := range activeHostnames(result) {
				open := result.OpenPorts(host)
				if len(open) == 0 {
					continue
				}
				ports := make([]int, len(open))
				for i, pr := range open {
					ports[i] = pr.Port
				}
				prs, err := s.Enricher.Scan(gctx, host, ports)
				if err != nil {
					stageLogger(gctx, s.Logger).Warnw("Service enrichment failed", "host", host, "error", err)
					result.Phase(s.Name()).Partial = true
					continue
				}
				enriched[host] = prs
			}
			return nil
		})
	}

	_ = g.Wait() // collaborators report their failures per item, not as errors

	result.Tech = append(result.Tech, tech...)
	result.Screenshots = append(result.Screenshots, shots...)
	for host, prs := range enriched {
		result.Ports[host] = mergePortResults(result.Ports[host], prs)
	}

	for _, tr := range tech {
		if tr.Err != "" {
			result.Phase(s.Name()).Partial = true
		}
	}
	for _, sh := range shots {
		if sh.Err != "" {
			result.Phase(s.Name()).Partial = true
		}
	}

	return ctx.Err()
}

func (s *EnrichmentStage) deriveEndpoints(result *types.ScanResult) []types.Endpoint {
	webPorts := s.WebPorts
	var endpoints []types.Endpoint
	for _, host := range activeHostnames(result) {
		for _, pr := range result.OpenPorts(host) {
			if webPorts != nil && !webPorts[pr.Port] {
				continue
			}
			endpoints = append(endpoints, types.Endpoint{
				Host: host,
				Port: pr.Port,
				URL:  types.EndpointURL(host, pr.Port),
			})
		}
	}
	return endpoints
}

// mergePortResults folds enrichment findings into probe results. Direct probe
// observations win: enrichment only adds ports the probes never saw and fills
// in missing service names and banners on ports they did.
func mergePortResults(probed, enriched []types.PortResult) []types.PortResult {
	byPort := make(map[int]int, len(probed))
	out := make([]types.PortResult, len(probed))
	copy(out, probed)
	for i, pr := range out {
		byPort[pr.Port] = i
	}

	for _, epr := range enriched {
		if i, seen := byPort[epr.Port]; seen {
			if out[i].Service == "" {
				out[i].Service = epr.Service
			}
			if out[i].Banner == "" {
				out[i].Banner = epr.Banner
			}
			continue
		}
		out = append(out, epr)
		byPort[epr.Port] = len(out) - 1
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Port < out[j].Port })
	return out
}

// ReportStage renders the final artifacts. It runs even for failed runs.
type ReportStage struct {
	Writer ReportWriter
}

func (s *ReportStage) Name() string { return types.PhaseReport }

func (s *ReportStage) Run(ctx context.Context, result *types.ScanResult) error {
	reportPath, dumpPath, err := s.Writer.Write(result)
	if err != nil {
		return err
	}
	result.ReportPath = reportPath
	result.DumpPath = dumpPath
	return nil
}

// stageLogger falls back to the context logger for stages built without one.
func stageLogger(ctx context.Context, l *logger.Logger) *logger.Logger {
	if l != nil {
		return l
	}
	return logger.FromContext(ctx)
}

func activeHostnames(result *types.ScanResult) []string {
	seen := make(map[string]struct{}, len(result.ActiveHosts))
	var hosts []string
	for _, h := range result.ActiveHosts {
		if _, dup := seen[h.Hostname]; dup {
			continue
		}
		seen[h.Hostname] = struct{}{}
		hosts = append(hosts, h.Hostname)
	}
	return hosts
}
