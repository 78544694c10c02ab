package proxy

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustAddrPort(t *testing.T, s string) netip.AddrPort {
	t.Helper()
	addr, err := netip.ParseAddrPort(s)
	require.NoError(t, err)
	return addr
}

// recordingHandler remembers whether it was invoked and with which arguments.
type recordingHandler struct {
	called bool
	from   netip.AddrPort
	req    *http.Request
	resp   *http.Response
	err    error
}

func (h *recordingHandler) Handle(_ context.Context, from netip.AddrPort, req *http.Request, _ *http.Client) (*http.Response, error) {
	h.called = true
	h.from = from
	h.req = req
	return h.resp, h.err
}

func TestFilterAdmitsAndDelegates(t *testing.T) {
	inner := &recordingHandler{resp: &http.Response{StatusCode: http.StatusOK}}
	filter := &Filter{
		Inner: inner,
		Logic: FilterLogicFunc(func(netip.AddrPort, *http.Request) bool { return true }),
	}

	from := mustAddrPort(t, "10.0.0.1:4711")
	req := httptest.NewRequest(http.MethodGet, "http://example.com/", nil)

	resp, err := filter.Handle(context.Background(), from, req, nil)
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.True(t, inner.called, "admitted request must reach the inner handler")
	assert.Equal(t, from, inner.from, "caller address must be handed through unchanged")
	assert.Same(t, req, inner.req, "request must be handed through unchanged")
}

func TestFilterRejectsWithoutDelegating(t *testing.T) {
	inner := &recordingHandler{resp: &http.Response{StatusCode: http.StatusOK}}
	rejectCalls := 0
	filter := &Filter{
		Inner: inner,
		Logic: FilterLogicFunc(func(netip.AddrPort, *http.Request) bool { return false }),
		OnReject: func(netip.AddrPort, *http.Request) {
			rejectCalls++
		},
	}

	from := mustAddrPort(t, "10.0.0.1:4711")
	req := httptest.NewRequest(http.MethodGet, "http://example.com/", nil)

	resp, err := filter.Handle(context.Background(), from, req, nil)
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.False(t, inner.called, "rejected request must never reach the inner handler")
	assert.Equal(t, 1, rejectCalls)

	var filtered *FilteredOutError
	require.ErrorAs(t, err, &filtered)
	assert.Equal(t, from, filtered.From)
	assert.Same(t, req, filtered.Request, "rejection must carry the original request")
}

func TestFilterWrapsInnerFailure(t *testing.T) {
	innerErr := errors.New("upstream exploded")
	inner := &recordingHandler{err: innerErr}
	filter := &Filter{
		Inner: inner,
		Logic: FilterLogicFunc(func(netip.AddrPort, *http.Request) bool { return true }),
	}

	req := httptest.NewRequest(http.MethodGet, "http://example.com/", nil)
	_, err := filter.Handle(context.Background(), mustAddrPort(t, "10.0.0.1:4711"), req, nil)
	require.Error(t, err)

	var wrapped *InnerError
	require.ErrorAs(t, err, &wrapped)
	assert.ErrorIs(t, err, innerErr)

	var filtered *FilteredOutError
	assert.False(t, errors.As(err, &filtered), "inner failure must not look like a rejection")
}

func TestAddrLookupFilterWhitelist(t *testing.T) {
	listed := mustAddrPort(t, "192.168.1.10:5000")
	other := mustAddrPort(t, "192.168.1.11:5000")

	logic := &AddrLookupFilter{List: NewAddrSet(listed), IsBlacklist: false}

	assert.True(t, logic.Filter(listed, nil))
	assert.False(t, logic.Filter(other, nil))
}

func TestAddrLookupFilterBlacklist(t *testing.T) {
	listed := mustAddrPort(t, "192.168.1.10:5000")
	other := mustAddrPort(t, "192.168.1.11:5000")

	logic := &AddrLookupFilter{List: NewAddrSet(listed), IsBlacklist: true}

	assert.False(t, logic.Filter(listed, nil))
	assert.True(t, logic.Filter(other, nil))
}

// Whitelist and blacklist interpretations of the same list must be exact
// complements for every address.
func TestAddrLookupFilterModesAreComplementary(t *testing.T) {
	list := NewAddrSet(
		mustAddrPort(t, "10.0.0.1:80"),
		mustAddrPort(t, "10.0.0.2:443"),
		mustAddrPort(t, "[::1]:8080"),
	)
	whitelist := &AddrLookupFilter{List: list, IsBlacklist: false}
	blacklist := &AddrLookupFilter{List: list, IsBlacklist: true}

	probes := []string{
		"10.0.0.1:80",
		"10.0.0.2:443",
		"[::1]:8080",
		"10.0.0.1:81",
		"10.0.0.3:80",
		"[::2]:8080",
	}
	for _, probe := range probes {
		from := mustAddrPort(t, probe)
		assert.NotEqual(t, whitelist.Filter(from, nil), blacklist.Filter(from, nil), "probe %s", probe)
	}
}

// Membership is keyed on IP and port together: the same IP with a different
// port is a different caller.
func TestAddrLookupFilterComparesFullSocketAddress(t *testing.T) {
	logic := &AddrLookupFilter{List: NewAddrSet(mustAddrPort(t, "10.0.0.1:80"))}

	assert.True(t, logic.Filter(mustAddrPort(t, "10.0.0.1:80"), nil))
	assert.False(t, logic.Filter(mustAddrPort(t, "10.0.0.1:81"), nil))
	assert.False(t, logic.Filter(mustAddrPort(t, "10.0.0.2:80"), nil))
}

func TestParseAddrSet(t *testing.T) {
	set, err := ParseAddrSet([]string{"127.0.0.1:8080", "[::1]:9090"})
	require.NoError(t, err)
	assert.Len(t, set, 2)
	assert.Contains(t, set, mustAddrPort(t, "127.0.0.1:8080"))
	assert.Contains(t, set, mustAddrPort(t, "[::1]:9090"))
}

func TestParseAddrSetRejectsInvalidAddress(t *testing.T) {
	_, err := ParseAddrSet([]string{"127.0.0.1"})
	require.Error(t, err)

	var proxyErr *Error
	require.ErrorAs(t, err, &proxyErr)
	assert.Equal(t, ErrCodeInvalidFilterList, proxyErr.Code)
}

func TestNewAddrWhitelistAndBlacklistShortcuts(t *testing.T) {
	inner := &recordingHandler{resp: &http.Response{StatusCode: http.StatusOK}}
	listed := mustAddrPort(t, "172.16.0.1:1234")
	list := NewAddrSet(listed)

	req := httptest.NewRequest(http.MethodGet, "http://example.com/", nil)

	whitelist := NewAddrWhitelist(inner, list)
	_, err := whitelist.Handle(context.Background(), listed, req, nil)
	assert.NoError(t, err)

	blacklist := NewAddrBlacklist(inner, list)
	_, err = blacklist.Handle(context.Background(), listed, req, nil)
	var filtered *FilteredOutError
	require.ErrorAs(t, err, &filtered)
}
