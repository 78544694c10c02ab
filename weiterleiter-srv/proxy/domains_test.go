package proxy

import (
	"net/http"
	"net/http/httptest"
	"net/netip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func domainRequest(t *testing.T, host string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "http://"+host+"/", nil)
	return req
}

func TestDomainLookupFilterMatching(t *testing.T) {
	filter := NewDomainLookupFilter([]string{"example.com", "tracker.net"}, false)

	tests := []struct {
		host  string
		admit bool
	}{
		{"example.com", true},
		{"www.example.com", true},
		{"deep.sub.example.com", true},
		{"tracker.net", true},
		{"notexample.com", false},
		{"example.com.evil.org", false},
		{"example.org", false},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			got := filter.Filter(netip.AddrPort{}, domainRequest(t, tt.host))
			assert.Equal(t, tt.admit, got)
		})
	}
}

func TestDomainLookupFilterBlacklist(t *testing.T) {
	filter := NewDomainLookupFilter([]string{"ads.example.com"}, true)

	assert.False(t, filter.Filter(netip.AddrPort{}, domainRequest(t, "ads.example.com")))
	assert.False(t, filter.Filter(netip.AddrPort{}, domainRequest(t, "sub.ads.example.com")))
	assert.True(t, filter.Filter(netip.AddrPort{}, domainRequest(t, "example.com")))
	assert.True(t, filter.Filter(netip.AddrPort{}, domainRequest(t, "other.org")))
}

func TestDomainLookupFilterIgnoresPort(t *testing.T) {
	filter := NewDomainLookupFilter([]string{"example.com"}, false)

	req := domainRequest(t, "example.com:8443")
	assert.True(t, filter.Filter(netip.AddrPort{}, req))
}

func TestDomainLookupFilterEmptyList(t *testing.T) {
	whitelist := NewDomainLookupFilter(nil, false)
	blacklist := NewDomainLookupFilter(nil, true)

	req := domainRequest(t, "example.com")
	assert.False(t, whitelist.Filter(netip.AddrPort{}, req), "empty whitelist admits nothing")
	assert.True(t, blacklist.Filter(netip.AddrPort{}, req), "empty blacklist admits everything")
}

func TestNewDomainLookupFilterFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "domains.txt")
	content := `# comment line
example.com
; another comment

*.wildcard.org
tracker.net # inline comment
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	filter, err := NewDomainLookupFilterFromFile(path, false)
	require.NoError(t, err)

	assert.True(t, filter.Filter(netip.AddrPort{}, domainRequest(t, "example.com")))
	assert.True(t, filter.Filter(netip.AddrPort{}, domainRequest(t, "sub.wildcard.org")))
	assert.True(t, filter.Filter(netip.AddrPort{}, domainRequest(t, "wildcard.org")))
	assert.True(t, filter.Filter(netip.AddrPort{}, domainRequest(t, "tracker.net")))
	assert.False(t, filter.Filter(netip.AddrPort{}, domainRequest(t, "comment")))
}

func TestNewDomainLookupFilterFromMissingFile(t *testing.T) {
	_, err := NewDomainLookupFilterFromFile("/does/not/exist/domains.txt", false)
	require.Error(t, err)

	var proxyErr *Error
	require.ErrorAs(t, err, &proxyErr)
	assert.Equal(t, ErrCodeDomainsFileInvalid, proxyErr.Code)
}
