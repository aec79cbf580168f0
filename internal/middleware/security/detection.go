package security

import (
	"fmt"
	"mime"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync/atomic"

	"secureflow/internal/log"
)

// Finding names one reason a request looks hostile to the import API.
type Finding string

const (
	FindingTraversal  Finding = "path_traversal"
	FindingInjection  Finding = "injection"
	FindingQueryValue Finding = "query_value"
	FindingExportKind Finding = "export_kind"
	FindingUploadType Finding = "upload_content_type"
	FindingBoundary   Finding = "multipart_boundary"
	FindingScanner    Finding = "scanner_agent"
	FindingMethod     Finding = "method"
	FindingLongURL    Finding = "long_url"
	FindingProxyChain Finding = "proxy_chain"
)

const (
	importPrefix = "/api/import/"
	exportPrefix = "/api/export/"

	maxURLLength = 2048
	// RFC 2046 caps multipart boundaries at 70 characters.
	maxBoundary  = 70
	maxProxyHops = 5
)

var (
	// Period labels and day filters are short tokens such as 2024-05 or
	// 2024-05-10.
	filterValue = regexp.MustCompile(`^[0-9A-Za-z_-]{0,32}$`)
	feedName    = regexp.MustCompile(`^[a-z]{1,16}$`)

	filterParams = []string{"mes", "dia", "de", "ate"}

	traversalMarkers = []string{"..", "%2e", "%2f", "%5c", "\\", "\x00"}
	injectionMarkers = []string{
		"union select", "<script", "javascript:", "' or ", "\" or ",
		"sleep(", "benchmark(", "; drop", ";drop",
	}

	// Scripted uploads with curl are expected; only scanners are flagged.
	scannerAgents = []string{
		"sqlmap", "nmap", "nikto", "gobuster", "dirb",
		"masscan", "zgrab", "scanner",
	}

	unusualMethods = map[string]bool{"TRACE": true, "TRACK": true, "DEBUG": true, "CONNECT": true}
)

// DetectionMetrics counts flagged requests and forged forwarding headers.
type DetectionMetrics struct {
	SuspiciousRequests int64
	InvalidIPAttempts  int64
}

// Detector inspects requests against the shapes the API accepts and
// resolves client addresses behind trusted proxies.
type Detector struct {
	metrics        *DetectionMetrics
	trustedProxies []*net.IPNet
}

// NewDetector trusts loopback and private networks as proxies.
func NewDetector() *Detector {
	return &Detector{
		metrics: &DetectionMetrics{},
		trustedProxies: []*net.IPNet{
			parseCIDR("127.0.0.0/8"),
			parseCIDR("10.0.0.0/8"),
			parseCIDR("172.16.0.0/12"),
			parseCIDR("192.168.0.0/16"),
			parseCIDR("::1/128"),
		},
	}
}

func parseCIDR(cidr string) *net.IPNet {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		panic(fmt.Sprintf("failed to parse trusted proxy CIDR %s: %v", cidr, err))
	}
	return network
}

// Inspect returns every finding for r, or nil for an ordinary request.
func (d *Detector) Inspect(r *http.Request) []Finding {
	var found []Finding
	add := func(f Finding) { found = append(found, f) }

	path := strings.ToLower(r.URL.Path)
	escaped := strings.ToLower(r.URL.EscapedPath())
	if containsAny(path, traversalMarkers) || containsAny(escaped, traversalMarkers) {
		add(FindingTraversal)
	}

	if q, err := url.QueryUnescape(r.URL.RawQuery); err == nil && containsAny(strings.ToLower(q), injectionMarkers) {
		add(FindingInjection)
	}
	query := r.URL.Query()
	for _, p := range filterParams {
		for _, v := range query[p] {
			if !filterValue.MatchString(v) {
				add(FindingQueryValue)
				break
			}
		}
	}

	if kind, ok := strings.CutPrefix(path, exportPrefix); ok && !feedName.MatchString(kind) {
		add(FindingExportKind)
	}
	if strings.HasPrefix(path, importPrefix) && r.Method == http.MethodPost {
		mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		switch {
		case err != nil || mediaType != "multipart/form-data":
			add(FindingUploadType)
		case len(params["boundary"]) > maxBoundary:
			add(FindingBoundary)
		}
	}

	if containsAny(strings.ToLower(r.Header.Get("User-Agent")), scannerAgents) {
		add(FindingScanner)
	}
	if unusualMethods[r.Method] {
		add(FindingMethod)
	}
	if len(r.URL.String()) > maxURLLength {
		add(FindingLongURL)
	}
	if strings.Count(r.Header.Get("X-Forwarded-For"), ",") > maxProxyHops {
		add(FindingProxyChain)
	}

	if len(found) > 0 {
		atomic.AddInt64(&d.metrics.SuspiciousRequests, 1)
	}
	return found
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// ExtractClientIP returns the address of the client. Forwarding headers
// are honored only when the connection comes from a trusted proxy, and
// X-Forwarded-For is read from the right, skipping trusted hops, so a
// client cannot pick its own address by prepending entries.
func (d *Detector) ExtractClientIP(r *http.Request) string {
	directIP, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		directIP = r.RemoteAddr
	}
	parsed := net.ParseIP(directIP)
	if parsed == nil || !d.isTrustedProxy(parsed) {
		return directIP
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			ip := net.ParseIP(hop)
			if ip == nil {
				atomic.AddInt64(&d.metrics.InvalidIPAttempts, 1)
				break
			}
			if !d.isTrustedProxy(ip) {
				return hop
			}
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		if net.ParseIP(xri) != nil {
			return xri
		}
		atomic.AddInt64(&d.metrics.InvalidIPAttempts, 1)
	}
	return directIP
}

func (d *Detector) isTrustedProxy(ip net.IP) bool {
	for _, network := range d.trustedProxies {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

func (d *Detector) GetMetrics() DetectionMetrics {
	return DetectionMetrics{
		SuspiciousRequests: atomic.LoadInt64(&d.metrics.SuspiciousRequests),
		InvalidIPAttempts:  atomic.LoadInt64(&d.metrics.InvalidIPAttempts),
	}
}

// AddTrustedProxy trusts forwarding headers sent from cidr.
func (d *Detector) AddTrustedProxy(cidr string) error {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		return fmt.Errorf("invalid CIDR %s: %w", cidr, err)
	}
	d.trustedProxies = append(d.trustedProxies, network)
	return nil
}

// Middleware logs requests with findings. It never blocks them: the
// handlers already reject malformed uploads and unknown feeds.
func (d *Detector) Middleware(logger *log.Logger) func(http.Handler) http.Handler {
	logger = logger.WithComponent(log.ComponentSecurity)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if found := d.Inspect(r); len(found) > 0 {
				names := make([]string, len(found))
				for i, f := range found {
					names[i] = string(f)
				}
				logger.WarnContext(r.Context(), "Suspicious request",
					"findings", strings.Join(names, ","),
					log.FieldMethod, r.Method,
					log.FieldPath, r.URL.Path,
					log.FieldUserAgent, r.Header.Get("User-Agent"),
					log.FieldClientIP, d.ExtractClientIP(r))
			}
			next.ServeHTTP(w, r)
		})
	}
}
