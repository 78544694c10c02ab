package proxy

import (
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	go_socks5 "github.com/armon/go-socks5"
	"github.com/quic-go/quic-go/http3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/weiterleiter/weiterleiter-srv/config"
)

// startSocks5Server runs a SOCKS5 server on a random local port.
func startSocks5Server(t *testing.T, authUser, authPass string) string {
	t.Helper()

	conf := &go_socks5.Config{}
	if authUser != "" {
		creds := go_socks5.StaticCredentials{authUser: authPass}
		conf.AuthMethods = []go_socks5.Authenticator{go_socks5.UserPassAuthenticator{Credentials: creds}}
	}

	server, err := go_socks5.New(conf)
	require.NoError(t, err)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { listener.Close() })

	go func() {
		_ = server.Serve(listener)
	}()

	return listener.Addr().String()
}

func TestNewClientDefaultTransport(t *testing.T) {
	client, err := NewClient(config.ClientConfig{}, 5)
	require.NoError(t, err)

	transport, ok := client.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, 100, transport.MaxIdleConns)
	assert.Equal(t, 10, transport.MaxIdleConnsPerHost)
	assert.NotNil(t, transport.DialContext)
}

func TestNewClientPoolSettingsFromConfig(t *testing.T) {
	client, err := NewClient(config.ClientConfig{
		MaxIdleConns:           42,
		MaxIdleConnsPerHost:    7,
		IdleConnTimeoutSeconds: 30,
	}, 5)
	require.NoError(t, err)

	transport, ok := client.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, 42, transport.MaxIdleConns)
	assert.Equal(t, 7, transport.MaxIdleConnsPerHost)
}

func TestNewClientHTTP3Transport(t *testing.T) {
	client, err := NewClient(config.ClientConfig{Protocol: "http3"}, 5)
	require.NoError(t, err)

	_, ok := client.Transport.(*http3.Transport)
	assert.True(t, ok, "http3 protocol must select the HTTP/3 transport")
}

func TestNewClientDoesNotFollowRedirects(t *testing.T) {
	redirects := 0
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/start" {
			redirects++
			http.Redirect(w, r, "/end", http.StatusFound)
			return
		}
		_, _ = w.Write([]byte("end"))
	}))
	defer backend.Close()

	client, err := NewClient(config.ClientConfig{}, 5)
	require.NoError(t, err)

	resp, err := client.Get(backend.URL + "/start")
	require.NoError(t, err)
	defer resp.Body.Close()

	// The redirect response belongs to the caller; the client must not
	// chase it.
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/end", resp.Header.Get("Location"))
}

func TestNewClientThroughSocks5(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("via socks5"))
	}))
	defer backend.Close()

	socksAddr := startSocks5Server(t, "", "")

	client, err := NewClient(config.ClientConfig{
		Socks5: &config.Socks5Forward{Address: socksAddr},
	}, 5)
	require.NoError(t, err)

	resp, err := client.Get(backend.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "via socks5", string(body))
}

func TestNewClientThroughSocks5WithAuth(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("authenticated"))
	}))
	defer backend.Close()

	socksAddr := startSocks5Server(t, "testuser", "testpass")

	user := "testuser"
	pass := "testpass"
	client, err := NewClient(config.ClientConfig{
		Socks5: &config.Socks5Forward{
			Address:  socksAddr,
			Username: &user,
			Password: &pass,
		},
	}, 5)
	require.NoError(t, err)

	resp, err := client.Get(backend.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "authenticated", string(body))
}

func TestNewClientSocks5AuthFailure(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("should not arrive"))
	}))
	defer backend.Close()

	socksAddr := startSocks5Server(t, "testuser", "testpass")

	user := "testuser"
	pass := "wrong"
	client, err := NewClient(config.ClientConfig{
		Socks5: &config.Socks5Forward{
			Address:  socksAddr,
			Username: &user,
			Password: &pass,
		},
	}, 5)
	require.NoError(t, err)

	_, err = client.Get(backend.URL) //nolint:bodyclose // request must fail
	require.Error(t, err)
}

func TestNewClientForceIPv4(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("v4"))
	}))
	defer backend.Close()

	client, err := NewClient(config.ClientConfig{ForceIPv4: true}, 5)
	require.NoError(t, err)

	resp, err := client.Get(backend.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "v4", string(body))
}
