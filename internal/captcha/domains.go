package captcha

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"searchbot/internal/logging"
)

// DomainRegistry remembers domains where a challenge widget was seen. With a
// file path it persists one `domain<TAB>first_seen` line per domain; without
// one it is memory-only.
type DomainRegistry struct {
	path    string
	domains map[string]time.Time
	mu      sync.RWMutex
	logger  logging.Logger
}

// NewDomainRegistry loads the registry from path if the file exists. A nil
// logger means the global one.
func NewDomainRegistry(path string, logger logging.Logger) (*DomainRegistry, error) {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	r := &DomainRegistry{
		path:    path,
		domains: make(map[string]time.Time),
		logger:  logger,
	}

	if path != "" {
		if err := r.load(); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Known reports whether the URL's domain was recorded before.
func (r *DomainRegistry) Known(rawURL string) bool {
	domain, err := extractDomain(rawURL)
	if err != nil {
		return false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.domains[domain]
	return ok
}

// Record adds the URL's domain and saves the file when it is new.
func (r *DomainRegistry) Record(rawURL string) error {
	domain, err := extractDomain(rawURL)
	if err != nil {
		return fmt.Errorf("failed to extract domain from URL %s: %w", rawURL, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.domains[domain]; exists {
		return nil
	}
	r.domains[domain] = time.Now().UTC().Truncate(time.Second)

	r.logger.Info("Added new captcha domain", map[string]interface{}{
		"domain":      domain,
		"total_count": len(r.domains),
	})

	if r.path == "" {
		return nil
	}
	return r.save()
}

// Domains returns a copy of all recorded domains.
func (r *DomainRegistry) Domains() map[string]time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]time.Time, len(r.domains))
	for d, ts := range r.domains {
		out[d] = ts
	}
	return out
}

func (r *DomainRegistry) load() error {
	file, err := os.Open(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open captcha domains file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		domain, stamp, _ := strings.Cut(line, "\t")
		firstSeen, err := time.Parse(time.RFC3339, stamp)
		if err != nil {
			firstSeen = time.Now().UTC()
		}
		r.domains[domain] = firstSeen
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading captcha domains file: %w", err)
	}

	r.logger.Debug("Loaded captcha domains from file", map[string]interface{}{
		"file":  r.path,
		"count": len(r.domains),
	})
	return nil
}

// save rewrites the file; callers hold the write lock.
func (r *DomainRegistry) save() error {
	names := make([]string, 0, len(r.domains))
	for d := range r.domains {
		names = append(names, d)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("# Captcha-protected domains (automatically managed)\n")
	b.WriteString("# Format: domain\\tfirst_seen_timestamp\n\n")
	for _, d := range names {
		fmt.Fprintf(&b, "%s\t%s\n", d, r.domains[d].Format(time.RFC3339))
	}

	if err := os.WriteFile(r.path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("failed to write captcha domains file: %w", err)
	}
	return nil
}

// extractDomain returns the hostname without a leading "www.".
func extractDomain(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}

	hostname := parsed.Hostname()
	if hostname == "" {
		return "", fmt.Errorf("no hostname found in URL")
	}
	return strings.TrimPrefix(strings.ToLower(hostname), "www."), nil
}
