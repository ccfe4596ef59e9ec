// Package nmap wraps the nmap binary for service/version enrichment of hosts
// that already have probe results. It is optional: runs proceed without it
// and its findings never override what the direct probes observed.
package nmap

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Ullaakut/nmap/v3"
	"github.com/reconward/reconward/internal/logger"
	"github.com/reconward/reconward/pkg/types"
)

type Enricher struct {
	BinaryPath string
	Timeout    time.Duration
	Logger     *logger.Logger
}

func NewEnricher(binaryPath string, timeout time.Duration, log *logger.Logger) *Enricher {
	if binaryPath == "" {
		binaryPath = "nmap"
	}
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Enricher{
		BinaryPath: binaryPath,
		Timeout:    timeout,
		Logger:     log.WithComponent("nmap"),
	}
}

// Scan runs a service-detection scan of the given ports on host and returns
// port results with nmap's service identification.
func (e *Enricher) Scan(ctx context.Context, host string, ports []int) ([]types.PortResult, error) {
	if len(ports) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	portSpec := make([]string, len(ports))
	for i, p := range ports {
		portSpec[i] = strconv.Itoa(p)
	}

	scanner, err := nmap.NewScanner(ctx,
		nmap.WithBinaryPath(e.BinaryPath),
		nmap.WithTargets(host),
		nmap.WithPorts(strings.Join(portSpec, ",")),
		nmap.WithServiceInfo(),
		nmap.WithTimingTemplate(nmap.TimingNormal),
		nmap.WithSkipHostDiscovery(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create nmap scanner: %w", err)
	}

	start := time.Now()
	result, warnings, err := scanner.Run()
	if err != nil {
		return nil, fmt.Errorf("nmap scan failed: %w", err)
	}
	if warnings != nil && len(*warnings) > 0 {
		e.Logger.Debugw("Nmap reported warnings", "host", host, "warnings", *warnings)
	}

	var out []types.PortResult
	for _, h := range result.Hosts {
		for _, port := range h.Ports {
			pr := types.PortResult{
				Host:    host,
				Port:    int(port.ID),
				State:   mapState(port.State.State),
				Service: port.Service.Name,
			}
			if port.Service.Product != "" {
				banner := port.Service.Product
				if port.Service.Version != "" {
					banner += " " + port.Service.Version
				}
				pr.Banner = banner
			}
			out = append(out, pr)
		}
	}

	e.Logger.LogDuration(ctx, "nmap_enrichment", start, "host", host, "ports", len(out))
	return out, nil
}

func mapState(s string) types.PortState {
	switch s {
	case "open":
		return types.PortOpen
	case "closed":
		return types.PortClosed
	default:
		return types.PortFiltered
	}
}
