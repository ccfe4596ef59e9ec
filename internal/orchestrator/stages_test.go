package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/reconward/reconward/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEnumerator struct {
	all    []types.ResolvedHost
	active []types.ResolvedHost
	err    error
}

func (f *fakeEnumerator) Enumerate(ctx context.Context, target string) ([]types.ResolvedHost, []types.ResolvedHost, error) {
	return f.all, f.active, f.err
}

type fakeProber struct {
	results map[string][]types.PortResult
	scanned []string
}

func (f *fakeProber) Scan(ctx context.Context, host string, ports []int) []types.PortResult {
	f.scanned = append(f.scanned, host)
	return f.results[host]
}

type fakeFingerprinter struct {
	failEndpoints map[string]bool
}

func (f *fakeFingerprinter) FingerprintAll(ctx context.Context, endpoints []types.Endpoint) []types.TechResult {
	var out []types.TechResult
	for _, ep := range endpoints {
		if f.failEndpoints[ep.URL] {
			out = append(out, types.TechResult{Endpoint: ep.URL, Err: "connection reset"})
			continue
		}
		out = append(out, types.TechResult{
			Endpoint:     ep.URL,
			Technologies: []types.Technology{{Name: "nginx"}},
		})
	}
	return out
}

type fakeScreenshotter struct {
	err error
}

func (f *fakeScreenshotter) Capture(ctx context.Context, endpoints []types.Endpoint, outDir string) ([]types.Screenshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []types.Screenshot
	for _, ep := range endpoints {
		out = append(out, types.Screenshot{Endpoint: ep.URL, Path: outDir + "/" + ep.Host + ".png"})
	}
	return out, nil
}

type fakeEnricher struct {
	results map[string][]types.PortResult
	err     error
}

func (f *fakeEnricher) Scan(ctx context.Context, host string, ports []int) ([]types.PortResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.results[host], nil
}

func activeHost(name string) types.ResolvedHost {
	return types.ResolvedHost{Hostname: name, IPs: []string{"203.0.113.1"}, Resolved: true}
}

func TestSubdomainStagePopulatesAggregate(t *testing.T) {
	enum := &fakeEnumerator{
		all:    []types.ResolvedHost{activeHost("example.com"), {Hostname: "gone.example.com"}},
		active: []types.ResolvedHost{activeHost("example.com")},
	}
	stage := &SubdomainStage{Enumerator: enum}
	result := types.NewScanResult("example.com", "s1")

	require.NoError(t, stage.Run(context.Background(), result))
	assert.Len(t, result.Hosts, 2)
	assert.Len(t, result.ActiveHosts, 1)
}

func TestSubdomainStageUnresolvableTargetFails(t *testing.T) {
	enum := &fakeEnumerator{
		all: []types.ResolvedHost{{Hostname: "example.invalid"}},
	}
	stage := &SubdomainStage{Enumerator: enum}
	result := types.NewScanResult("example.invalid", "s1b")

	err := stage.Run(context.Background(), result)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unresolvable")
	assert.Len(t, result.Hosts, 1, "the raw resolution record is kept")
}

func TestSubdomainStageSkipSeedsBareTarget(t *testing.T) {
	stage := &SubdomainStage{Skip: true}
	result := types.NewScanResult("example.com", "s2")

	err := stage.Run(context.Background(), result)
	assert.ErrorIs(t, err, ErrSkipped)
	require.Len(t, result.ActiveHosts, 1)
	assert.Equal(t, "example.com", result.ActiveHosts[0].Hostname)
}

func TestPortStageProbesEveryActiveHost(t *testing.T) {
	prober := &fakeProber{results: map[string][]types.PortResult{
		"example.com": {
			{Host: "example.com", Port: 80, State: types.PortOpen, Service: "http"},
		},
		"www.example.com": {
			{Host: "www.example.com", Port: 443, State: types.PortOpen, Service: "https"},
		},
	}}
	stage := &PortStage{Prober: prober, Ports: []int{80, 443}}

	result := types.NewScanResult("example.com", "s3")
	result.ActiveHosts = []types.ResolvedHost{activeHost("example.com"), activeHost("www.example.com")}

	require.NoError(t, stage.Run(context.Background(), result))
	assert.ElementsMatch(t, []string{"example.com", "www.example.com"}, prober.scanned)
	assert.Len(t, result.Ports["example.com"], 1)
	assert.Len(t, result.Ports["www.example.com"], 1)
}

func TestPortStageNoActiveHostsCompletesEmpty(t *testing.T) {
	prober := &fakeProber{}
	stage := &PortStage{Prober: prober, Ports: []int{80}}

	result := types.NewScanResult("unresolvable.example", "s4")
	require.NoError(t, stage.Run(context.Background(), result))
	assert.Empty(t, prober.scanned)
	assert.Empty(t, result.Ports)
}

func TestEnrichmentStageDerivesWebEndpoints(t *testing.T) {
	result := types.NewScanResult("example.com", "s5")
	result.ActiveHosts = []types.ResolvedHost{activeHost("example.com")}
	result.Ports["example.com"] = []types.PortResult{
		{Host: "example.com", Port: 22, State: types.PortOpen, Service: "ssh"},
		{Host: "example.com", Port: 80, State: types.PortOpen, Service: "http"},
		{Host: "example.com", Port: 443, State: types.PortOpen, Service: "https"},
		{Host: "example.com", Port: 3306, State: types.PortClosed},
	}

	stage := &EnrichmentStage{
		Fingerprinter:   &fakeFingerprinter{},
		WebPorts:        map[int]bool{80: true, 443: true},
		SkipScreenshots: true,
	}
	require.NoError(t, stage.Run(context.Background(), result))

	require.Len(t, result.Endpoints, 2, "only open web ports become endpoints")
	assert.Equal(t, "http://example.com", result.Endpoints[0].URL)
	assert.Equal(t, "https://example.com", result.Endpoints[1].URL)
	assert.Len(t, result.Tech, 2)
}

func TestEnrichmentStagePartialFailure(t *testing.T) {
	result := types.NewScanResult("example.com", "s6")
	result.ActiveHosts = []types.ResolvedHost{
		activeHost("a.example.com"),
		activeHost("b.example.com"),
		activeHost("c.example.com"),
		activeHost("d.example.com"),
		activeHost("e.example.com"),
	}
	for _, h := range []string{"a", "b", "c", "d", "e"} {
		host := h + ".example.com"
		result.Ports[host] = []types.PortResult{{Host: host, Port: 80, State: types.PortOpen}}
	}

	stage := &EnrichmentStage{
		Fingerprinter: &fakeFingerprinter{failEndpoints: map[string]bool{
			"http://b.example.com": true,
			"http://d.example.com": true,
		}},
		WebPorts:        map[int]bool{80: true},
		SkipScreenshots: true,
	}

	require.NoError(t, stage.Run(context.Background(), result), "per-endpoint failures do not fail the phase")
	assert.True(t, result.Phase(types.PhaseEnrichment).Partial)

	require.Len(t, result.Tech, 5)
	failed := 0
	for _, tr := range result.Tech {
		if tr.Err != "" {
			failed++
		} else {
			assert.NotEmpty(t, tr.Technologies)
		}
	}
	assert.Equal(t, 2, failed, "three endpoints succeed, two fail, all five reported")
}

func TestEnrichmentStageScreenshotterErrorRecordedPerEndpoint(t *testing.T) {
	result := types.NewScanResult("example.com", "s7")
	result.ActiveHosts = []types.ResolvedHost{activeHost("example.com")}
	result.Ports["example.com"] = []types.PortResult{{Host: "example.com", Port: 80, State: types.PortOpen}}

	stage := &EnrichmentStage{
		Screenshotter: &fakeScreenshotter{err: errors.New("chrome not found")},
		WebPorts:      map[int]bool{80: true},
		SkipTech:      true,
		ScreenshotDir: t.TempDir(),
	}

	require.NoError(t, stage.Run(context.Background(), result))
	require.Len(t, result.Screenshots, 1)
	assert.Contains(t, result.Screenshots[0].Err, "chrome not found")
	assert.True(t, result.Phase(types.PhaseEnrichment).Partial)
}

func TestEnrichmentStageNmapMergePrecedence(t *testing.T) {
	result := types.NewScanResult("example.com", "s8")
	result.ActiveHosts = []types.ResolvedHost{activeHost("example.com")}
	result.Ports["example.com"] = []types.PortResult{
		{Host: "example.com", Port: 80, State: types.PortOpen, Service: "http", Banner: "probe-banner"},
		{Host: "example.com", Port: 8080, State: types.PortOpen},
	}

	stage := &EnrichmentStage{
		Enricher: &fakeEnricher{results: map[string][]types.PortResult{
			"example.com": {
				{Host: "example.com", Port: 80, State: types.PortOpen, Service: "http-alt", Banner: "nmap-banner"},
				{Host: "example.com", Port: 8080, State: types.PortOpen, Service: "http-proxy", Banner: "Jetty 9.4"},
				{Host: "example.com", Port: 9090, State: types.PortOpen, Service: "zeus-admin"},
			},
		}},
		SkipTech:        true,
		SkipScreenshots: true,
	}

	require.NoError(t, stage.Run(context.Background(), result))
	ports := result.Ports["example.com"]
	require.Len(t, ports, 3)

	assert.Equal(t, 80, ports[0].Port)
	assert.Equal(t, "http", ports[0].Service, "probe identification wins")
	assert.Equal(t, "probe-banner", ports[0].Banner)

	assert.Equal(t, 8080, ports[1].Port)
	assert.Equal(t, "http-proxy", ports[1].Service, "enrichment fills empty fields")
	assert.Equal(t, "Jetty 9.4", ports[1].Banner)

	assert.Equal(t, 9090, ports[2].Port)
	assert.Equal(t, "zeus-admin", ports[2].Service, "enrichment adds unseen ports")
}

func TestEnrichmentStageNmapFailureIsPartial(t *testing.T) {
	result := types.NewScanResult("example.com", "s9")
	result.ActiveHosts = []types.ResolvedHost{activeHost("example.com")}
	result.Ports["example.com"] = []types.PortResult{{Host: "example.com", Port: 80, State: types.PortOpen, Service: "http"}}

	stage := &EnrichmentStage{
		Enricher:        &fakeEnricher{err: errors.New("nmap binary not found")},
		SkipTech:        true,
		SkipScreenshots: true,
	}

	require.NoError(t, stage.Run(context.Background(), result))
	assert.True(t, result.Phase(types.PhaseEnrichment).Partial)
	assert.Equal(t, "http", result.Ports["example.com"][0].Service, "probe results untouched")
}

func TestEnrichmentStageFullySkipped(t *testing.T) {
	result := types.NewScanResult("example.com", "s10")
	stage := &EnrichmentStage{SkipTech: true, SkipScreenshots: true}
	assert.ErrorIs(t, stage.Run(context.Background(), result), ErrSkipped)
}

type fakeWriter struct {
	err   error
	calls int
}

func (f *fakeWriter) Write(result *types.ScanResult) (string, string, error) {
	f.calls++
	if f.err != nil {
		return "", "", f.err
	}
	return fmt.Sprintf("out/%s.txt", result.ScanID), fmt.Sprintf("out/%s.json", result.ScanID), nil
}

func TestReportStageRecordsPaths(t *testing.T) {
	w := &fakeWriter{}
	stage := &ReportStage{Writer: w}
	result := types.NewScanResult("example.com", "s11")

	require.NoError(t, stage.Run(context.Background(), result))
	assert.Equal(t, 1, w.calls)
	assert.Equal(t, "out/s11.txt", result.ReportPath)
	assert.Equal(t, "out/s11.json", result.DumpPath)
}

func TestMergePortResultsSorted(t *testing.T) {
	merged := mergePortResults(
		[]types.PortResult{{Port: 443, State: types.PortOpen}, {Port: 80, State: types.PortOpen}},
		[]types.PortResult{{Port: 22, State: types.PortOpen, Service: "ssh"}},
	)
	require.Len(t, merged, 3)
	assert.Equal(t, []int{22, 80, 443}, []int{merged[0].Port, merged[1].Port, merged[2].Port})
}
