package dcmanager

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/miekg/dns"

	"github.com/mtprotogo/core/mtclog"
)

// defaultDoHServer is used when RefreshableDirectory.DoHServer is left
// empty; Cloudflare's resolver, same default the teacher's
// network/dns_resolver.go assumed.
const defaultDoHServer = "cloudflare-dns.com"

// dcHostname is seeded by the caller with each DC's hostname (§3's
// config.dc_options entries are occasionally hostnames rather than bare
// IPs, e.g. during a provider-side IP rotation); a port must be supplied
// alongside since DCDirectory.Addresses returns dialable "host:port" pairs.
type dcHostname struct {
	Host string
	Port string
}

// RefreshableDirectory is a DCDirectory backed by a seed hostname per DC,
// periodically re-resolved over DNS-over-HTTPS and cached until the next
// refresh (§3 "DC address table", supplemented: a client long enough lived
// to need migration handling also outlives a single DNS answer's TTL).
// Grounded on the teacher's network/dns_resolver.go doQuery/LookupA shape
// (miekg/dns message pack/unpack over a DoH GET request), trimmed to the
// single A-record lookup this directory needs and re-targeted from "resolve
// the proxy's own upstream" to "resolve a DC's current address".
type RefreshableDirectory struct {
	DoHServer string
	Logger    mtclog.Logger

	httpClient *http.Client

	mu       sync.RWMutex
	seeds    map[int]dcHostname
	resolved map[int][]string

	stop chan struct{}
}

// NewRefreshableDirectory creates a directory seeded with hostnames, doing
// no resolution yet; call Refresh (or Start for periodic refresh) before
// relying on Addresses.
func NewRefreshableDirectory(seeds map[int]string, logger mtclog.Logger) *RefreshableDirectory {
	hostnames := make(map[int]dcHostname, len(seeds))

	for dcID, hostport := range seeds {
		host, port := splitHostPort(hostport)
		hostnames[dcID] = dcHostname{Host: host, Port: port}
	}

	return &RefreshableDirectory{
		Logger:     logger,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		seeds:      hostnames,
		resolved:   make(map[int][]string),
		stop:       make(chan struct{}),
	}
}

func splitHostPort(hostport string) (string, string) {
	for i := len(hostport) - 1; i >= 0; i-- {
		if hostport[i] == ':' {
			return hostport[:i], hostport[i+1:]
		}
	}

	return hostport, "443"
}

// Start launches a background goroutine refreshing every seeded DC's
// address on interval until Stop is called.
func (d *RefreshableDirectory) Start(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		d.Refresh(context.Background())

		for {
			select {
			case <-d.stop:
				return
			case <-ticker.C:
				d.Refresh(context.Background())
			}
		}
	}()
}

// Stop ends the background refresh goroutine, if running.
func (d *RefreshableDirectory) Stop() {
	close(d.stop)
}

// Refresh re-resolves every seeded hostname, replacing the cached addresses
// wholesale; a lookup failure for one DC leaves its previous addresses in
// place rather than clearing them.
func (d *RefreshableDirectory) Refresh(ctx context.Context) {
	d.mu.RLock()
	seeds := make(map[int]dcHostname, len(d.seeds))
	for id, h := range d.seeds {
		seeds[id] = h
	}
	d.mu.RUnlock()

	for dcID, h := range seeds {
		ips, err := d.lookupA(ctx, h.Host)
		if err != nil {
			if d.Logger != nil {
				d.Logger.WarningError(fmt.Sprintf("dcmanager: dns refresh failed for dc %d (%s)", dcID, h.Host), err)
			}

			continue
		}

		addrs := make([]string, len(ips))
		for i, ip := range ips {
			addrs[i] = ip + ":" + h.Port
		}

		d.mu.Lock()
		d.resolved[dcID] = addrs
		d.mu.Unlock()
	}
}

func (d *RefreshableDirectory) lookupA(ctx context.Context, hostname string) ([]string, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(hostname), dns.TypeA)
	msg.RecursionDesired = true

	packed, err := msg.Pack()
	if err != nil {
		return nil, fmt.Errorf("dcmanager: cannot pack dns query for %s: %w", hostname, err)
	}

	server := d.DoHServer
	if server == "" {
		server = defaultDoHServer
	}

	url := fmt.Sprintf("https://%s/dns-query?dns=%s", server, base64.RawURLEncoding.EncodeToString(packed))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dcmanager: cannot build dns-over-https request: %w", err)
	}

	req.Header.Set("Accept", "application/dns-message")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dcmanager: dns-over-https request to %s failed: %w", server, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("dcmanager: dns-over-https server %s returned status %d", server, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("dcmanager: cannot read dns-over-https response: %w", err)
	}

	var response dns.Msg
	if err := response.Unpack(body); err != nil {
		return nil, fmt.Errorf("dcmanager: cannot unpack dns-over-https response: %w", err)
	}

	var ips []string

	for _, rr := range response.Answer {
		if a, ok := rr.(*dns.A); ok {
			ips = append(ips, a.A.String())
		}
	}

	return ips, nil
}

// Addresses implements DCDirectory: the most recently resolved addresses
// for dcID, or nil if it has never resolved successfully.
func (d *RefreshableDirectory) Addresses(dcID int) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	addrs := d.resolved[dcID]
	out := make([]string, len(addrs))
	copy(out, addrs)

	return out
}

// IsKnown implements DCDirectory.
func (d *RefreshableDirectory) IsKnown(dcID int) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	_, ok := d.seeds[dcID]

	return ok
}

// RandomDC implements DCDirectory.
func (d *RefreshableDirectory) RandomDC() int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for id := range d.seeds {
		return id
	}

	return 0
}

// RandomDCExcluding implements DCDirectory.
func (d *RefreshableDirectory) RandomDCExcluding(exclude int) int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for id := range d.seeds {
		if id != exclude {
			return id
		}
	}

	return 0
}
