package config

import (
	"encoding/json"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/codefionn/weiterleiter/weiterleiter-srv/logger"
)

// FilterMode selects how an address or domain list is interpreted.
type FilterMode string

// Available filter modes
const (
	FilterModeNone      FilterMode = ""          // No filtering
	FilterModeWhitelist FilterMode = "whitelist" // Only listed entries are admitted
	FilterModeBlacklist FilterMode = "blacklist" // Listed entries are rejected
)

// RedirectConfig configures the terminal redirect handler.
type RedirectConfig struct {
	Authority string // Destination authority (host[:port]) every request is rewritten to
}

// FilterConfig configures the admission filters wrapped around the redirect.
type FilterConfig struct {
	Mode        FilterMode // Address filter mode
	Addresses   []string   // Caller socket addresses (ip:port) for the address filter
	DomainsMode FilterMode // Domain filter mode
	DomainsFile string     // Path to a domains file (one domain per line)
}

// Socks5Forward configures an upstream SOCKS5 proxy for outbound connections.
type Socks5Forward struct {
	Address  string
	Username *string
	Password *string
}

// ClientConfig configures the shared outbound HTTP client.
type ClientConfig struct {
	Protocol               string         // "http" (default) or "http3"
	ForceIPv4              bool           // Disable IPv6 fallback when dialing upstream
	Socks5                 *Socks5Forward // Optional SOCKS5 upstream
	MaxIdleConns           int
	MaxIdleConnsPerHost    int
	IdleConnTimeoutSeconds int
}

// AuditConfig configures the audit statistics collector.
type AuditConfig struct {
	Enabled     bool
	Backend     string // "memory", "sqlite", "postgres" or "dummy"
	SQLitePath  string
	PostgresDSN string
}

// Config represents the main configuration structure for the proxy.
type Config struct {
	ListenAddress  string // Address to listen on (e.g., 127.0.0.1:8080)
	TimeoutSeconds int    // Global timeout for inbound and outbound connections
	Redirect       RedirectConfig
	Filter         FilterConfig
	Client         ClientConfig
	Audit          AuditConfig
}

// LoadConfig loads configuration from the specified file path.
// Defaults are applied first, then environment variables, then the file.
func LoadConfig(configPath string) (*Config, error) {
	cfg := &Config{
		ListenAddress:  "127.0.0.1:8080",
		TimeoutSeconds: 30,
		Client: ClientConfig{
			Protocol:               "http",
			MaxIdleConns:           100,
			MaxIdleConnsPerHost:    10,
			IdleConnTimeoutSeconds: 90,
		},
		Audit: AuditConfig{Backend: "memory"},
	}

	loadConfigFromEnv(cfg)

	if configPath != "" {
		var err error

		ext := filepath.Ext(configPath)
		switch strings.ToLower(ext) {
		case ".json":
			err = loadJSONConfig(configPath, cfg)
		case ".hcl":
			err = loadHCLConfig(configPath, cfg)
		default:
			return nil, fmt.Errorf("unsupported config file format: %s", ext)
		}

		if err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for inconsistencies that would only
// surface later as runtime failures.
func (c *Config) Validate() error {
	switch c.Filter.Mode {
	case FilterModeNone, FilterModeWhitelist, FilterModeBlacklist:
	default:
		return fmt.Errorf("invalid filter mode: %q", c.Filter.Mode)
	}
	switch c.Filter.DomainsMode {
	case FilterModeNone, FilterModeWhitelist, FilterModeBlacklist:
	default:
		return fmt.Errorf("invalid domains filter mode: %q", c.Filter.DomainsMode)
	}
	if c.Filter.Mode != FilterModeNone && len(c.Filter.Addresses) == 0 {
		return fmt.Errorf("filter mode %q requires at least one address", c.Filter.Mode)
	}
	for _, addr := range c.Filter.Addresses {
		if _, err := netip.ParseAddrPort(addr); err != nil {
			return fmt.Errorf("invalid filter address %q: %w", addr, err)
		}
	}
	if c.Filter.DomainsMode != FilterModeNone && c.Filter.DomainsFile == "" {
		return fmt.Errorf("domains filter mode %q requires a domains file", c.Filter.DomainsMode)
	}
	switch c.Client.Protocol {
	case "", "http", "http3":
	default:
		return fmt.Errorf("invalid client protocol: %q", c.Client.Protocol)
	}
	if c.Client.Socks5 != nil && c.Client.Socks5.Address == "" {
		return fmt.Errorf("socks5 forward requires an address")
	}
	return nil
}

func loadJSONConfig(configPath string, cfg *Config) error {
	cleanPath := filepath.Clean(configPath)
	if !filepath.IsAbs(cleanPath) {
		absPath, err := filepath.Abs(cleanPath)
		if err != nil {
			return fmt.Errorf("invalid config file path: %w", err)
		}
		cleanPath = absPath
	}
	file, err := os.Open(cleanPath)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			logger.Error("Error closing config file: %v", closeErr)
		}
	}()

	// Decode into a map first so hyphenated keys can be handled uniformly
	// with the HCL loader.
	var data map[string]any
	if err := json.NewDecoder(file).Decode(&data); err != nil {
		return fmt.Errorf("failed to parse JSON config: %w", err)
	}

	return applyConfigMap(cfg, data)
}

// applyConfigMap applies a decoded configuration map onto cfg. Both the JSON
// and the HCL loader produce this shape.
func applyConfigMap(cfg *Config, data map[string]any) error {
	for key, value := range data {
		var err error
		switch key {
		case "listen-address":
			cfg.ListenAddress, err = asString(key, value)
		case "timeout-seconds":
			cfg.TimeoutSeconds, err = asInt(key, value)
		case "redirect":
			err = applyRedirect(&cfg.Redirect, key, value)
		case "filter":
			err = applyFilter(&cfg.Filter, key, value)
		case "client":
			err = applyClient(&cfg.Client, key, value)
		case "audit":
			err = applyAudit(&cfg.Audit, key, value)
		default:
			return fmt.Errorf("unknown configuration key: %q", key)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func applyRedirect(rc *RedirectConfig, parent string, value any) error {
	section, err := asMap(parent, value)
	if err != nil {
		return err
	}
	for key, v := range section {
		switch key {
		case "authority":
			if rc.Authority, err = asString(key, v); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown key %q in %q", key, parent)
		}
	}
	return nil
}

func applyFilter(fc *FilterConfig, parent string, value any) error {
	section, err := asMap(parent, value)
	if err != nil {
		return err
	}
	for key, v := range section {
		switch key {
		case "mode":
			s, err := asString(key, v)
			if err != nil {
				return err
			}
			fc.Mode = FilterMode(s)
		case "addresses":
			if fc.Addresses, err = asStringSlice(key, v); err != nil {
				return err
			}
		case "domains-mode":
			s, err := asString(key, v)
			if err != nil {
				return err
			}
			fc.DomainsMode = FilterMode(s)
		case "domains-file":
			if fc.DomainsFile, err = asString(key, v); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown key %q in %q", key, parent)
		}
	}
	return nil
}

func applyClient(cc *ClientConfig, parent string, value any) error {
	section, err := asMap(parent, value)
	if err != nil {
		return err
	}
	for key, v := range section {
		switch key {
		case "protocol":
			if cc.Protocol, err = asString(key, v); err != nil {
				return err
			}
		case "force-ipv4":
			if cc.ForceIPv4, err = asBool(key, v); err != nil {
				return err
			}
		case "max-idle-conns":
			if cc.MaxIdleConns, err = asInt(key, v); err != nil {
				return err
			}
		case "max-idle-conns-per-host":
			if cc.MaxIdleConnsPerHost, err = asInt(key, v); err != nil {
				return err
			}
		case "idle-conn-timeout-seconds":
			if cc.IdleConnTimeoutSeconds, err = asInt(key, v); err != nil {
				return err
			}
		case "socks5":
			fwd := &Socks5Forward{}
			if err := applySocks5(fwd, key, v); err != nil {
				return err
			}
			cc.Socks5 = fwd
		default:
			return fmt.Errorf("unknown key %q in %q", key, parent)
		}
	}
	return nil
}

func applySocks5(fwd *Socks5Forward, parent string, value any) error {
	section, err := asMap(parent, value)
	if err != nil {
		return err
	}
	for key, v := range section {
		switch key {
		case "address":
			if fwd.Address, err = asString(key, v); err != nil {
				return err
			}
		case "username":
			s, err := asString(key, v)
			if err != nil {
				return err
			}
			fwd.Username = &s
		case "password":
			s, err := asString(key, v)
			if err != nil {
				return err
			}
			fwd.Password = &s
		default:
			return fmt.Errorf("unknown key %q in %q", key, parent)
		}
	}
	return nil
}

func applyAudit(ac *AuditConfig, parent string, value any) error {
	section, err := asMap(parent, value)
	if err != nil {
		return err
	}
	for key, v := range section {
		switch key {
		case "enabled":
			if ac.Enabled, err = asBool(key, v); err != nil {
				return err
			}
		case "backend":
			if ac.Backend, err = asString(key, v); err != nil {
				return err
			}
		case "sqlite-path":
			if ac.SQLitePath, err = asString(key, v); err != nil {
				return err
			}
		case "postgres-dsn":
			if ac.PostgresDSN, err = asString(key, v); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown key %q in %q", key, parent)
		}
	}
	return nil
}

func asMap(key string, value any) (map[string]any, error) {
	m, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected an object for %q, got %T", key, value)
	}
	return m, nil
}

func asString(key string, value any) (string, error) {
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("expected a string for %q, got %T", key, value)
	}
	return s, nil
}

func asBool(key string, value any) (bool, error) {
	b, ok := value.(bool)
	if !ok {
		return false, fmt.Errorf("expected a boolean for %q, got %T", key, value)
	}
	return b, nil
}

func asInt(key string, value any) (int, error) {
	switch n := value.(type) {
	case float64:
		return int(n), nil
	case int:
		return n, nil
	case int64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("expected a number for %q, got %T", key, value)
	}
}

func asStringSlice(key string, value any) ([]string, error) {
	raw, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("expected a list for %q, got %T", key, value)
	}
	result := make([]string, 0, len(raw))
	for _, item := range raw {
		s, err := asString(key, item)
		if err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, nil
}

// loadConfigFromEnv applies WEITERLEITER_* environment variables onto cfg.
func loadConfigFromEnv(cfg *Config) {
	if addr := os.Getenv("WEITERLEITER_LISTENADDRESS"); addr != "" {
		cfg.ListenAddress = addr
	}
	if timeoutStr := os.Getenv("WEITERLEITER_TIMEOUTSECONDS"); timeoutStr != "" {
		if timeout, err := strconv.Atoi(timeoutStr); err == nil {
			cfg.TimeoutSeconds = timeout
		} else {
			fmt.Fprintf(os.Stderr, "Warning: Invalid format for WEITERLEITER_TIMEOUTSECONDS: %s\n", timeoutStr)
		}
	}
	if authority := os.Getenv("WEITERLEITER_AUTHORITY"); authority != "" {
		cfg.Redirect.Authority = authority
	}
	if mode := os.Getenv("WEITERLEITER_FILTERMODE"); mode != "" {
		cfg.Filter.Mode = FilterMode(mode)
	}
	if addrs := os.Getenv("WEITERLEITER_FILTERADDRESSES"); addrs != "" {
		cfg.Filter.Addresses = nil
		for _, addr := range strings.Split(addrs, ",") {
			if trimmed := strings.TrimSpace(addr); trimmed != "" {
				cfg.Filter.Addresses = append(cfg.Filter.Addresses, trimmed)
			}
		}
	}
	if domainsFile := os.Getenv("WEITERLEITER_DOMAINSFILE"); domainsFile != "" {
		cfg.Filter.DomainsFile = domainsFile
	}
	if mode := os.Getenv("WEITERLEITER_DOMAINSMODE"); mode != "" {
		cfg.Filter.DomainsMode = FilterMode(mode)
	}
	if protocol := os.Getenv("WEITERLEITER_CLIENTPROTOCOL"); protocol != "" {
		cfg.Client.Protocol = protocol
	}
	if enabledStr := os.Getenv("WEITERLEITER_AUDIT"); enabledStr != "" {
		cfg.Audit.Enabled = enabledStr == "true" || enabledStr == "1"
	}
	if backend := os.Getenv("WEITERLEITER_AUDITBACKEND"); backend != "" {
		cfg.Audit.Backend = backend
	}
	if path := os.Getenv("WEITERLEITER_SQLITEPATH"); path != "" {
		cfg.Audit.SQLitePath = path
	}
	if dsn := os.Getenv("WEITERLEITER_POSTGRESDSN"); dsn != "" {
		cfg.Audit.PostgresDSN = dsn
	}
}
