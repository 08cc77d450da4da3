// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package scraper

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// AllowedHosts is the shipped outbound allow-list. Any host not matching an
// entry (or a subdomain of one) is rejected pre-flight.
var AllowedHosts = []string{
	"api.mangadex.org",
	"mangadex.org",
	"mangapark.io",
	"comick.io",
	"mangasee123.com",
}

// HostAllowlistGuard is the default [URLGuard]: https-only, allow-listed
// hosts, and no raw IP targets. The full SSRF stack (DNS re-resolution,
// private-range checks at dial time) is owned by the platform security
// layer; this guard is the worker-side pre-flight.
type HostAllowlistGuard struct {
	hosts []string
}

// NewHostAllowlistGuard builds a guard over the given hosts, defaulting to
// [AllowedHosts] when none are supplied.
func NewHostAllowlistGuard(hosts ...string) *HostAllowlistGuard {
	if len(hosts) == 0 {
		hosts = AllowedHosts
	}
	lowered := make([]string, len(hosts))
	for i, host := range hosts {
		lowered[i] = strings.ToLower(host)
	}
	return &HostAllowlistGuard{hosts: lowered}
}

// Validate implements [URLGuard].
func (guard *HostAllowlistGuard) Validate(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("guard: unparseable url: %w", err)
	}

	if parsed.Scheme != "https" {
		return fmt.Errorf("guard: scheme %q not allowed", parsed.Scheme)
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return fmt.Errorf("guard: empty host")
	}

	// Literal IPs never match the allow-list, including internal ranges.
	if net.ParseIP(host) != nil {
		return fmt.Errorf("guard: raw IP target %q not allowed", host)
	}

	for _, allowed := range guard.hosts {
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return nil
		}
	}

	return fmt.Errorf("guard: host %q not in allow-list", host)
}
