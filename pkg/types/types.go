package types

import (
	"fmt"
	"time"
)

// PortState describes the observed state of a probed TCP port.
type PortState string

const (
	PortOpen     PortState = "open"
	PortClosed   PortState = "closed"
	PortFiltered PortState = "filtered"
)

// HostSource records how a resolved host entered the result set.
type HostSource string

const (
	SourceTarget      HostSource = "target"
	SourceWordlist    HostSource = "wordlist"
	SourcePermutation HostSource = "permutation"
)

// ResolvedHost is the outcome of one resolution attempt. Resolved=false with an
// empty IP set is a negative result, not an error condition.
type ResolvedHost struct {
	Hostname string     `json:"hostname"`
	IPs      []string   `json:"ips,omitempty"`
	CNAME    string     `json:"cname,omitempty"`
	Resolved bool       `json:"resolved"`
	Wildcard bool       `json:"wildcard,omitempty"`
	Source   HostSource `json:"source,omitempty"`
	Err      string     `json:"error,omitempty"`
}

// PortResult is one (host, port) probe outcome. Never mutated after creation.
type PortResult struct {
	Host    string    `json:"host"`
	Port    int       `json:"port"`
	State   PortState `json:"state"`
	Service string    `json:"service,omitempty"`
	Banner  string    `json:"banner,omitempty"`
}

// Endpoint is a live HTTP(S) endpoint derived from a resolved host and an open
// web port.
type Endpoint struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	URL  string `json:"url"`
}

// Technology is a detected technology on an endpoint.
type Technology struct {
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
	Version  string `json:"version,omitempty"`
	Evidence string `json:"evidence,omitempty"`
}

// TechResult carries per-endpoint fingerprinting output. Err set means the
// endpoint was attempted and failed; other endpoints are unaffected.
type TechResult struct {
	Endpoint     string       `json:"endpoint"`
	Technologies []Technology `json:"technologies,omitempty"`
	Err          string       `json:"error,omitempty"`
}

// Screenshot records one capture attempt.
type Screenshot struct {
	Endpoint string `json:"endpoint"`
	Path     string `json:"path,omitempty"`
	Err      string `json:"error,omitempty"`
}

// PhaseState is the lifecycle state of one pipeline phase.
type PhaseState string

const (
	PhaseNotRun    PhaseState = "not_run"
	PhaseRunning   PhaseState = "running"
	PhaseCompleted PhaseState = "completed"
	PhaseSkipped   PhaseState = "skipped"
	PhaseFailed    PhaseState = "failed"
)

// PhaseStatus distinguishes not-attempted, attempted-and-failed, and succeeded
// for one phase, including partial completion.
type PhaseStatus struct {
	State      PhaseState `json:"state"`
	Partial    bool       `json:"partial,omitempty"`
	Err        string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at,omitempty"`
	FinishedAt time.Time  `json:"finished_at,omitempty"`
}

// Phase names, in pipeline order.
const (
	PhaseSubdomains = "subdomains"
	PhasePorts      = "ports"
	PhaseEnrichment = "enrichment"
	PhaseReport     = "report"
)

// PhaseOrder is the canonical pipeline sequence.
var PhaseOrder = []string{PhaseSubdomains, PhasePorts, PhaseEnrichment, PhaseReport}

// ScanResult is the run-scoped aggregate. It is owned by a single pipeline
// instance, built append-only phase by phase, and read-only once the run
// finishes. Phases are strictly sequential, so no locking is needed.
type ScanResult struct {
	Target     string    `json:"target"`
	ScanID     string    `json:"scan_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	Failed     bool      `json:"failed,omitempty"`

	// Raw resolved hosts and the active subset downstream phases consume.
	Hosts       []ResolvedHost `json:"hosts"`
	ActiveHosts []ResolvedHost `json:"active_hosts"`

	// Port results per host, sorted ascending by port within a host.
	Ports map[string][]PortResult `json:"ports"`

	Endpoints   []Endpoint   `json:"endpoints,omitempty"`
	Tech        []TechResult `json:"tech,omitempty"`
	Screenshots []Screenshot `json:"screenshots,omitempty"`

	Phases map[string]*PhaseStatus `json:"phases"`

	ReportPath string `json:"report_path,omitempty"`
	DumpPath   string `json:"dump_path,omitempty"`
}

// NewScanResult creates an empty aggregate for one run.
func NewScanResult(target, scanID string) *ScanResult {
	phases := make(map[string]*PhaseStatus, len(PhaseOrder))
	for _, name := range PhaseOrder {
		phases[name] = &PhaseStatus{State: PhaseNotRun}
	}
	return &ScanResult{
		Target:    target,
		ScanID:    scanID,
		StartedAt: time.Now().UTC(),
		Ports:     make(map[string][]PortResult),
		Phases:    phases,
	}
}

// Phase returns the status entry for name, creating one for custom stages.
func (r *ScanResult) Phase(name string) *PhaseStatus {
	if st, ok := r.Phases[name]; ok {
		return st
	}
	st := &PhaseStatus{State: PhaseNotRun}
	r.Phases[name] = st
	return st
}

// OpenPorts returns the open-state subset for a host, preserving order.
func (r *ScanResult) OpenPorts(host string) []PortResult {
	var open []PortResult
	for _, pr := range r.Ports[host] {
		if pr.State == PortOpen {
			open = append(open, pr)
		}
	}
	return open
}

// Counts summarizes the aggregate for logging and the report header.
func (r *ScanResult) Counts() (hosts, active, openPorts, endpoints int) {
	hosts = len(r.Hosts)
	active = len(r.ActiveHosts)
	for h := range r.Ports {
		openPorts += len(r.OpenPorts(h))
	}
	endpoints = len(r.Endpoints)
	return
}

// EndpointURL builds the canonical URL for a host/port pair.
func EndpointURL(host string, port int) string {
	scheme := "http"
	switch port {
	case 443, 8443, 9443, 10443:
		scheme = "https"
	}
	if (scheme == "http" && port == 80) || (scheme == "https" && port == 443) {
		return fmt.Sprintf("%s://%s", scheme, host)
	}
	return fmt.Sprintf("%s://%s:%d", scheme, host, port)
}
