// Package profiles loads named scan profiles from YAML. A profile bundles
// the knobs of a run so teams can share "quick", "web", or "thorough"
// presets instead of long flag lists.
package profiles

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Profile struct {
	Name        string        `yaml:"name"`
	Description string        `yaml:"description,omitempty"`
	Workers     int           `yaml:"workers,omitempty"`
	TaskTimeout time.Duration `yaml:"task_timeout,omitempty"`
	RateLimit   int           `yaml:"rate_limit,omitempty"`
	Ports       []int         `yaml:"ports,omitempty"`
	FullRange   bool          `yaml:"full_range,omitempty"`

	Permutations    bool `yaml:"permutations,omitempty"`
	SkipSubdomains  bool `yaml:"skip_subdomains,omitempty"`
	SkipPorts       bool `yaml:"skip_ports,omitempty"`
	SkipTech        bool `yaml:"skip_tech,omitempty"`
	SkipScreenshots bool `yaml:"skip_screenshots,omitempty"`

	Wordlist []string `yaml:"wordlist,omitempty"`
}

// Builtin profiles available without a profile file.
var Builtin = map[string]Profile{
	"quick": {
		Name:            "quick",
		Description:     "fast surface check: common ports, no permutations, no screenshots",
		Workers:         20,
		TaskTimeout:     2 * time.Second,
		SkipScreenshots: true,
	},
	"web": {
		Name:        "web",
		Description: "web estate focus: web ports only, tech and screenshots on",
		Ports:       []int{80, 443, 3000, 5000, 8000, 8080, 8443, 8888, 9000, 9090, 9443},
	},
	"thorough": {
		Name:         "thorough",
		Description:  "full port range with permutations",
		FullRange:    true,
		Permutations: true,
		TaskTimeout:  5 * time.Second,
	},
}

type profileFile struct {
	Profiles []Profile `yaml:"profiles"`
}

// Load reads a profile file and returns its profiles keyed by name. File
// profiles shadow builtins of the same name.
func Load(path string) (map[string]Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile file: %w", err)
	}

	var pf profileFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("failed to parse profile file: %w", err)
	}

	out := make(map[string]Profile, len(Builtin)+len(pf.Profiles))
	for name, p := range Builtin {
		out[name] = p
	}
	for _, p := range pf.Profiles {
		if p.Name == "" {
			return nil, fmt.Errorf("profile without a name in %s", path)
		}
		if err := validate(p); err != nil {
			return nil, fmt.Errorf("profile %q: %w", p.Name, err)
		}
		out[p.Name] = p
	}
	return out, nil
}

// Resolve returns the named profile from file (optional) or builtins.
func Resolve(name, path string) (Profile, error) {
	var available map[string]Profile
	if path != "" {
		loaded, err := Load(path)
		if err != nil {
			return Profile{}, err
		}
		available = loaded
	} else {
		available = Builtin
	}

	p, ok := available[name]
	if !ok {
		return Profile{}, fmt.Errorf("unknown profile %q", name)
	}
	return p, nil
}

func validate(p Profile) error {
	if p.Workers < 0 {
		return fmt.Errorf("workers must not be negative")
	}
	if p.TaskTimeout < 0 {
		return fmt.Errorf("task_timeout must not be negative")
	}
	for _, port := range p.Ports {
		if port < 1 || port > 65535 {
			return fmt.Errorf("port %d out of range", port)
		}
	}
	return nil
}
