package config

// HasChanged returns true if the configuration has changed compared to another
// config. All fields are compared explicitly without using reflection.
func HasChanged(a, b *Config) bool {
	if a == nil || b == nil {
		return a != b
	}
	if a.ListenAddress != b.ListenAddress {
		return true
	}
	if a.TimeoutSeconds != b.TimeoutSeconds {
		return true
	}
	if a.Redirect.Authority != b.Redirect.Authority {
		return true
	}
	if filterChanged(&a.Filter, &b.Filter) {
		return true
	}
	if clientChanged(&a.Client, &b.Client) {
		return true
	}
	if auditChanged(&a.Audit, &b.Audit) {
		return true
	}
	return false
}

func filterChanged(a, b *FilterConfig) bool {
	if a.Mode != b.Mode || a.DomainsMode != b.DomainsMode || a.DomainsFile != b.DomainsFile {
		return true
	}
	if len(a.Addresses) != len(b.Addresses) {
		return true
	}
	for i := range a.Addresses {
		if a.Addresses[i] != b.Addresses[i] {
			return true
		}
	}
	return false
}

func clientChanged(a, b *ClientConfig) bool {
	if a.Protocol != b.Protocol || a.ForceIPv4 != b.ForceIPv4 {
		return true
	}
	if a.MaxIdleConns != b.MaxIdleConns ||
		a.MaxIdleConnsPerHost != b.MaxIdleConnsPerHost ||
		a.IdleConnTimeoutSeconds != b.IdleConnTimeoutSeconds {
		return true
	}
	if (a.Socks5 == nil) != (b.Socks5 == nil) {
		return true
	}
	if a.Socks5 != nil {
		if a.Socks5.Address != b.Socks5.Address {
			return true
		}
		if !stringPtrEqual(a.Socks5.Username, b.Socks5.Username) {
			return true
		}
		if !stringPtrEqual(a.Socks5.Password, b.Socks5.Password) {
			return true
		}
	}
	return false
}

func auditChanged(a, b *AuditConfig) bool {
	return a.Enabled != b.Enabled ||
		a.Backend != b.Backend ||
		a.SQLitePath != b.SQLitePath ||
		a.PostgresDSN != b.PostgresDSN
}

func stringPtrEqual(a, b *string) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}
