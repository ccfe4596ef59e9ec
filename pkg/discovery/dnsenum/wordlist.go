package dnsenum

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// DefaultWordlist covers the subdomains seen on the overwhelming majority of
// real estates. External wordlists replace it entirely, they do not extend it.
var DefaultWordlist = []string{
	"www", "mail", "ftp", "webmail", "smtp", "pop", "imap",
	"admin", "portal", "api", "app", "dev", "staging", "test",
	"vpn", "remote", "gateway", "proxy", "ns1", "ns2", "dns",
	"mx", "mx1", "mx2", "blog", "shop", "store", "cdn", "static",
	"assets", "img", "files", "docs", "wiki", "help", "support",
	"status", "monitor", "grafana", "jenkins", "git", "gitlab",
	"jira", "confluence", "auth", "sso", "login", "id", "accounts",
	"db", "mysql", "postgres", "redis", "backup", "old", "new",
	"beta", "demo", "sandbox", "internal", "intranet", "corp",
	"cloud", "aws", "azure", "k8s", "docker", "registry",
}

// permutationSuffixes generate second-order candidates from discovered
// subdomains, e.g. dev-api.example.com from api.example.com.
var permutationPrefixes = []string{"dev-", "staging-", "test-", "new-", "old-"}
var permutationSuffixes = []string{"-dev", "-staging", "-test", "-01", "-02"}

// LoadWordlist reads one word per line, skipping blanks and '#' comments.
// Entries are lowercased and deduplicated, preserving first-seen order.
func LoadWordlist(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open wordlist: %w", err)
	}
	defer f.Close()

	seen := make(map[string]struct{})
	var words []string

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		word := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if word == "" || strings.HasPrefix(word, "#") {
			continue
		}
		if _, dup := seen[word]; dup {
			continue
		}
		seen[word] = struct{}{}
		words = append(words, word)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read wordlist: %w", err)
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("wordlist %s is empty", path)
	}
	return words, nil
}

// Permutations derives mutated labels from a discovered subdomain label.
func Permutations(label string) []string {
	var out []string
	for _, p := range permutationPrefixes {
		if !strings.HasPrefix(label, strings.TrimSuffix(p, "-")) {
			out = append(out, p+label)
		}
	}
	for _, s := range permutationSuffixes {
		if !strings.HasSuffix(label, strings.TrimPrefix(s, "-")) {
			out = append(out, label+s)
		}
	}
	return out
}
