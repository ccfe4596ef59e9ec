// Package techstack identifies web technologies on discovered endpoints from
// response headers, cookies, and body content.
package techstack

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	wappalyzer "github.com/projectdiscovery/wappalyzergo"
	"github.com/reconward/reconward/internal/logger"
	"github.com/reconward/reconward/pkg/types"
)

const maxBodyBytes = 512 * 1024

// pattern is one hand-maintained signature, checked alongside the wappalyzer
// fingerprint set for the technologies we care most about.
type pattern struct {
	name     string
	category string
	header   string
	match    *regexp.Regexp
	body     *regexp.Regexp
}

var patterns = []pattern{
	{name: "nginx", category: "web-server", header: "Server", match: regexp.MustCompile(`(?i)nginx(?:/([\d.]+))?`)},
	{name: "Apache", category: "web-server", header: "Server", match: regexp.MustCompile(`(?i)apache(?:/([\d.]+))?`)},
	{name: "IIS", category: "web-server", header: "Server", match: regexp.MustCompile(`(?i)microsoft-iis(?:/([\d.]+))?`)},
	{name: "PHP", category: "language", header: "X-Powered-By", match: regexp.MustCompile(`(?i)php(?:/([\d.]+))?`)},
	{name: "ASP.NET", category: "framework", header: "X-Powered-By", match: regexp.MustCompile(`(?i)asp\.net`)},
	{name: "Express", category: "framework", header: "X-Powered-By", match: regexp.MustCompile(`(?i)express`)},
	{name: "WordPress", category: "cms", body: regexp.MustCompile(`(?i)wp-content|wp-includes`)},
	{name: "Drupal", category: "cms", body: regexp.MustCompile(`(?i)drupal\.settings|sites/default/files`)},
	{name: "Joomla", category: "cms", body: regexp.MustCompile(`(?i)/media/jui/|joomla`)},
	{name: "jQuery", category: "js-library", body: regexp.MustCompile(`(?i)jquery[.-]([\d.]+)?(?:\.min)?\.js`)},
	{name: "React", category: "js-library", body: regexp.MustCompile(`(?i)data-reactroot|__NEXT_DATA__`)},
	{name: "Cloudflare", category: "cdn", header: "Server", match: regexp.MustCompile(`(?i)cloudflare`)},
}

// Fingerprinter fetches each endpoint once and merges signature matches from
// the built-in pattern table with the wappalyzer fingerprint database.
type Fingerprinter struct {
	Client *http.Client
	Logger *logger.Logger

	wapp *wappalyzer.Wappalyze
}

func NewFingerprinter(client *http.Client, log *logger.Logger) (*Fingerprinter, error) {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if log == nil {
		log = logger.Nop()
	}
	wapp, err := wappalyzer.New()
	if err != nil {
		return nil, fmt.Errorf("failed to load fingerprint database: %w", err)
	}
	return &Fingerprinter{
		Client: client,
		Logger: log.WithComponent("techstack"),
		wapp:   wapp,
	}, nil
}

// FingerprintAll processes endpoints sequentially, one result each. A failed
// fetch is recorded in that endpoint's result and never affects the others.
func (f *Fingerprinter) FingerprintAll(ctx context.Context, endpoints []types.Endpoint) []types.TechResult {
	results := make([]types.TechResult, 0, len(endpoints))
	for _, ep := range endpoints {
		if ctx.Err() != nil {
			results = append(results, types.TechResult{Endpoint: ep.URL, Err: ctx.Err().Error()})
			continue
		}
		results = append(results, f.Fingerprint(ctx, ep))
	}
	return results
}

// Fingerprint fetches one endpoint and returns its detected technologies,
// sorted by name.
func (f *Fingerprinter) Fingerprint(ctx context.Context, ep types.Endpoint) types.TechResult {
	result := types.TechResult{Endpoint: ep.URL}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ep.URL, nil)
	if err != nil {
		result.Err = err.Error()
		return result
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; reconward/1.0)")

	resp, err := f.Client.Do(req)
	if err != nil {
		result.Err = err.Error()
		return result
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		result.Err = err.Error()
		return result
	}

	merged := make(map[string]types.Technology)
	for _, tech := range f.matchPatterns(resp.Header, body) {
		merged[strings.ToLower(tech.Name)] = tech
	}
	for name, info := range f.wapp.FingerprintWithInfo(resp.Header, body) {
		tech := types.Technology{Name: name, Evidence: "fingerprint"}
		if base, version, ok := strings.Cut(name, ":"); ok {
			tech.Name = base
			tech.Version = version
		}
		if len(info.Categories) > 0 {
			tech.Category = strings.ToLower(info.Categories[0])
		}
		key := strings.ToLower(tech.Name)
		if existing, ok := merged[key]; ok {
			if existing.Version == "" {
				existing.Version = tech.Version
			}
			if existing.Category == "" {
				existing.Category = tech.Category
			}
			merged[key] = existing
			continue
		}
		merged[key] = tech
	}

	for _, tech := range merged {
		result.Technologies = append(result.Technologies, tech)
	}
	sort.Slice(result.Technologies, func(i, j int) bool {
		return result.Technologies[i].Name < result.Technologies[j].Name
	})

	f.Logger.Debugw("Fingerprinted endpoint",
		"endpoint", ep.URL,
		"status", resp.StatusCode,
		"technologies", len(result.Technologies))
	return result
}

func (f *Fingerprinter) matchPatterns(headers http.Header, body []byte) []types.Technology {
	var out []types.Technology
	for _, p := range patterns {
		var m []string
		var evidence string
		if p.header != "" {
			value := headers.Get(p.header)
			if value == "" {
				continue
			}
			m = p.match.FindStringSubmatch(value)
			evidence = p.header + ": " + value
		} else if p.body != nil {
			m = p.body.FindStringSubmatch(string(body))
			evidence = "body"
		}
		if m == nil {
			continue
		}
		tech := types.Technology{Name: p.name, Category: p.category, Evidence: evidence}
		if len(m) > 1 {
			tech.Version = m[1]
		}
		out = append(out, tech)
	}
	return out
}
