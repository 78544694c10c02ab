package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/codefionn/weiterleiter/weiterleiter-srv/config"
	"github.com/codefionn/weiterleiter/weiterleiter-srv/logger"
	"github.com/codefionn/weiterleiter/weiterleiter-srv/proxy"
	"github.com/codefionn/weiterleiter/weiterleiter-srv/stats"
)

var version string

func main() {
	cfg, configPath := parseFlagsAndConfig()
	runProxy(cfg, configPath)
}

// parseFlagsAndConfig handles CLI flags, environment, logging, and config loading.
func parseFlagsAndConfig() (cfg *config.Config, configPath string) {
	versionFlag := flag.Bool("version", false, "Print version and exit")
	versionShortFlag := flag.Bool("v", false, "Print version and exit (shorthand)")
	configPathPtr := flag.String("config", "config.json", "Path to configuration file (supports .json and .hcl formats)")
	envfile := flag.String("envfile", "", "Path to env file to load environment variables")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *versionFlag || *versionShortFlag {
		if version == "" {
			version = "dev"
		}
		fmt.Println("weiterleiter version:", version)
		os.Exit(0)
	}

	if *envfile != "" {
		if err := loadEnvFile(*envfile); err != nil {
			logger.Fatal("Failed to load envfile: %v", err)
		}
		logger.Info("Loaded environment variables from %s", *envfile)
	}

	if *debugMode {
		logger.SetLevel(logger.DEBUG)
		logger.Debug("Debug logging enabled")
	}

	logger.Info("Starting weiterleiter forwarding proxy")
	logger.Debug("Using configuration file: %s", *configPathPtr)

	cfg, err := config.LoadConfig(*configPathPtr)
	if err != nil {
		logger.Warn("Could not load config file: %v. Using environment variables.", err)
		cfg, err = config.LoadConfig("")
		if err != nil {
			logger.Fatal("Failed to load configuration: %v", err)
		}
	}

	logger.Debug("Configuration loaded successfully")
	logger.Debug("Listening on %s", cfg.ListenAddress)
	if cfg.Redirect.Authority != "" {
		logger.Debug("Redirecting requests to %s", cfg.Redirect.Authority)
	}
	logger.Debug("Timeout: %d seconds", cfg.TimeoutSeconds)

	return cfg, *configPathPtr
}

// buildHandler assembles the handler chain from the configuration: an outer
// address filter, an optional domain filter, and a redirect (or plain
// forwarder) at the core.
func buildHandler(cfg *config.Config, collector stats.Collector) (proxy.RequestHandler, error) {
	var handler proxy.RequestHandler
	if cfg.Redirect.Authority != "" {
		redirect, err := proxy.NewRedirectToAuthority(cfg.Redirect.Authority)
		if err != nil {
			return nil, err
		}
		handler = redirect
	} else {
		handler = proxy.HandlerFunc(func(ctx context.Context, _ netip.AddrPort, req *http.Request, client *http.Client) (*http.Response, error) {
			return client.Do(req.WithContext(ctx))
		})
	}

	onReject := func(from netip.AddrPort, req *http.Request) {
		host := req.URL.Host
		if host == "" {
			host = req.Host
		}
		if err := collector.RecordFilteredRequest(context.Background(), from.String(), host); err != nil {
			logger.Error("Failed to record filtered request: %v", err)
		}
	}

	if cfg.Filter.DomainsMode != config.FilterModeNone {
		logic, err := proxy.NewDomainLookupFilterFromFile(cfg.Filter.DomainsFile, cfg.Filter.DomainsMode == config.FilterModeBlacklist)
		if err != nil {
			return nil, err
		}
		handler = &proxy.Filter{Inner: handler, Logic: logic, OnReject: onReject}
	}

	if cfg.Filter.Mode != config.FilterModeNone {
		set, err := proxy.ParseAddrSet(cfg.Filter.Addresses)
		if err != nil {
			return nil, err
		}
		logic := &proxy.AddrLookupFilter{List: set, IsBlacklist: cfg.Filter.Mode == config.FilterModeBlacklist}
		handler = &proxy.Filter{Inner: handler, Logic: logic, OnReject: onReject}
	}

	return handler, nil
}

func newProxyFromConfig(cfg *config.Config) (*proxy.Proxy, stats.Collector, error) {
	collector, err := stats.NewCollectorFactory().CreateCollector(&cfg.Audit)
	if err != nil {
		return nil, nil, err
	}

	handler, err := buildHandler(cfg, collector)
	if err != nil {
		return nil, nil, err
	}

	instance, err := proxy.NewProxy(proxy.ProxyConfig{
		ListenAddress:  cfg.ListenAddress,
		Handler:        handler,
		Client:         cfg.Client,
		TimeoutSeconds: cfg.TimeoutSeconds,
		Collector:      collector,
	})
	if err != nil {
		return nil, nil, err
	}
	return instance, collector, nil
}

// runProxy starts and manages the proxy server, including signal handling and reloads.
func runProxy(cfg *config.Config, configPath string) {
	proxyInstance, collector, err := newProxyFromConfig(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize proxy: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	startProxy := func(instance *proxy.Proxy) {
		go func() {
			logger.Info("Starting proxy server...")
			if err := instance.Run(); err != nil {
				logger.Fatal("Proxy server error: %v", err)
			}
		}()
	}

	startProxy(proxyInstance)
	currentCfg := cfg

	for {
		sig := <-sigChan
		switch sig {
		case syscall.SIGHUP:
			logger.Info("Received SIGHUP: reloading configuration...")
			newCfg, err := config.LoadConfig(configPath)
			if err != nil {
				logger.Error("Failed to reload config: %v (keeping current config)", err)
				continue
			}
			if !config.HasChanged(currentCfg, newCfg) {
				logger.Info("Config unchanged after reload; not restarting proxy.")
				continue
			}
			logger.Info("Config changed. Restarting proxy...")
			newInstance, newCollector, err := newProxyFromConfig(newCfg)
			if err != nil {
				logger.Error("Failed to build proxy from new config: %v (keeping current config)", err)
				continue
			}
			if err := proxyInstance.Stop(); err != nil {
				logger.Error("Error stopping proxy for reload: %v", err)
			}
			if err := collector.Close(); err != nil {
				logger.Error("Error closing audit collector: %v", err)
			}
			proxyInstance, collector = newInstance, newCollector
			startProxy(proxyInstance)
			currentCfg = newCfg
			logger.Info("Proxy restarted with new configuration.")
		case syscall.SIGINT, syscall.SIGTERM:
			logger.Info("Received signal %v, shutting down proxy server...", sig)
			if err := proxyInstance.Stop(); err != nil {
				logger.Error("Error during shutdown: %v", err)
			}
			if err := collector.Close(); err != nil {
				logger.Error("Error closing audit collector: %v", err)
			}
			logger.Info("Proxy server shutdown complete")
			return
		}
	}
}

// loadEnvFile reads a .env-style file and sets environment variables
func loadEnvFile(path string) error {
	cleanPath := filepath.Clean(path)
	if !filepath.IsAbs(cleanPath) {
		absPath, err := filepath.Abs(cleanPath)
		if err != nil {
			return fmt.Errorf("invalid file path: %w", err)
		}
		cleanPath = absPath
	}
	f, err := os.Open(cleanPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			logger.Error("Error closing env file: %v", closeErr)
		}
	}()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.Trim(strings.TrimSpace(parts[1]), `"'`)
		if setErr := os.Setenv(key, val); setErr != nil {
			logger.Error("Error setting environment variable %s: %v", key, setErr)
		}
	}
	return scanner.Err()
}
