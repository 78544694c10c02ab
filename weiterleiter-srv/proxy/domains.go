package proxy

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"os"
	"path/filepath"
	"strings"

	ahocorasick "github.com/BobuSumisu/aho-corasick"

	"github.com/codefionn/weiterleiter/weiterleiter-srv/logger"
)

// DomainLookupFilter is a FilterLogic which matches the request's target host
// against a fixed set of domains using an Aho-Corasick trie. A domain matches
// the host itself and any of its subdomains. Like AddrLookupFilter, the set
// is immutable after construction and safe for concurrent reads.
type DomainLookupFilter struct {
	trie    *ahocorasick.Trie
	domains []string
	// IsBlacklist selects the interpretation of the domain set, with the
	// same meaning as AddrLookupFilter.IsBlacklist.
	IsBlacklist bool
}

// NewDomainLookupFilter builds the filter from an in-memory domain list.
func NewDomainLookupFilter(domains []string, isBlacklist bool) *DomainLookupFilter {
	f := &DomainLookupFilter{domains: domains, IsBlacklist: isBlacklist}
	if len(domains) > 0 {
		f.trie = ahocorasick.NewTrieBuilder().AddStrings(domains).Build()
	}
	return f
}

// NewDomainLookupFilterFromFile loads a domains file (one domain per line,
// '#' and ';' comments, "*.domain" treated as "domain") and builds the filter.
func NewDomainLookupFilterFromFile(filePath string, isBlacklist bool) (*DomainLookupFilter, error) {
	domains, err := loadDomainsFile(filePath)
	if err != nil {
		return nil, NewProxyError(ErrCodeDomainsFileInvalid, GetErrorDescription(ErrCodeDomainsFileInvalid), err)
	}
	if len(domains) == 0 {
		logger.Warn("No domains found in file: %s", filePath)
	} else {
		logger.Info("Loaded %d domains from file: %s", len(domains), filePath)
	}
	return NewDomainLookupFilter(domains, isBlacklist), nil
}

// Filter returns whether the request's target host passes the lookup. Only
// the host is consulted; the caller address is ignored.
func (f *DomainLookupFilter) Filter(_ netip.AddrPort, req *http.Request) bool {
	return f.IsBlacklist != f.matches(requestHost(req))
}

func (f *DomainLookupFilter) matches(host string) bool {
	if f.trie == nil || host == "" {
		return false
	}
	for _, match := range f.trie.MatchString(host) {
		domain := f.domains[match.Pattern()]
		if !strings.HasSuffix(host, domain) {
			continue
		}
		if len(host) == len(domain) {
			return true
		}
		// Subdomain match requires a dot boundary (host ends with ".domain").
		if host[len(host)-len(domain)-1] == '.' {
			return true
		}
	}
	return false
}

// requestHost extracts the target hostname of a request, without the port.
func requestHost(req *http.Request) string {
	host := req.URL.Host
	if host == "" {
		host = req.Host
	}
	if hostname, _, err := net.SplitHostPort(host); err == nil {
		return hostname
	}
	return host
}

func loadDomainsFile(filePath string) ([]string, error) {
	cleanPath := filepath.Clean(filePath)
	if !filepath.IsAbs(cleanPath) {
		absPath, err := filepath.Abs(cleanPath)
		if err != nil {
			return nil, fmt.Errorf("invalid file path: %w", err)
		}
		cleanPath = absPath
	}

	file, err := os.Open(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open domains file: %w", err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			logger.Error("Error closing domains file: %v", closeErr)
		}
	}()

	var domains []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if idx := strings.IndexAny(line, "#;"); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
		}
		// Wildcards are not supported, but subdomains match anyway.
		line = strings.TrimPrefix(line, "*.")
		if line != "" {
			domains = append(domains, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading domains file: %w", err)
	}
	return domains, nil
}
