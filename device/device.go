package device

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// Descriptor is a human-readable description of the client device,
// recomputed on every login and persisted only inside the session record.
type Descriptor struct {
	UserAgent      string `json:"userAgent"`
	AcceptLanguage string `json:"acceptLanguage"`
	AcceptEncoding string `json:"acceptEncoding"`
	Accept         string `json:"accept"`
	IP             string `json:"ip"`
	Browser        string `json:"browser"`
	OS             string `json:"os"`
	DeviceType     string `json:"deviceType"`
	DNT            string `json:"dnt"`
	Connection     string `json:"connection"`
	Timestamp      string `json:"timestamp"`
}

const separator = "|"

// Fingerprint derives a stable hash identifying the client device from
// request headers. Identical header sets always collide to the same value
// so repeat logins from one browser map to one session; the hash is
// one-way and does not encode the raw headers.
func Fingerprint(r *http.Request) string {
	components := []string{
		r.Header.Get("User-Agent"),
		r.Header.Get("Accept-Language"),
		r.Header.Get("Accept-Encoding"),
		r.Header.Get("Accept"),
		ClientIP(r),
		r.Header.Get("X-Forwarded-For"),
	}

	sum := sha256.Sum256([]byte(strings.Join(components, separator)))
	return hex.EncodeToString(sum[:])
}

// Describe parses a best-effort device descriptor from the request.
// Unrecognized user-agents yield "Unknown" values, never an error.
func Describe(r *http.Request) Descriptor {
	ua := r.Header.Get("User-Agent")

	dnt := r.Header.Get("DNT")
	if dnt == "" {
		dnt = r.Header.Get("Do-Not-Track")
	}

	return Descriptor{
		UserAgent:      ua,
		AcceptLanguage: r.Header.Get("Accept-Language"),
		AcceptEncoding: r.Header.Get("Accept-Encoding"),
		Accept:         r.Header.Get("Accept"),
		IP:             ClientIP(r),
		Browser:        detectBrowser(ua),
		OS:             detectOS(ua),
		DeviceType:     detectDeviceType(ua),
		DNT:            dnt,
		Connection:     r.Header.Get("Connection"),
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	}
}

// ClientIP resolves the real client address: the first forwarded-for
// entry, then the common proxy headers, then the connection peer.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first := strings.TrimSpace(strings.SplitN(fwd, ",", 2)[0])
		if first != "" {
			return first
		}
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if ip := r.Header.Get("X-Client-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
	return host
}

// Ordered first-match-wins checks. Edge ships a Chrome UA so it must be
// tested first; Safari's check must exclude Chrome for the same reason.
func detectBrowser(userAgent string) string {
	ua := strings.ToLower(userAgent)

	switch {
	case strings.Contains(ua, "edg/"):
		return "Edge"
	case strings.Contains(ua, "chrome/"):
		return "Chrome"
	case strings.Contains(ua, "firefox/"):
		return "Firefox"
	case strings.Contains(ua, "safari/"):
		return "Safari"
	case strings.Contains(ua, "opera/") || strings.Contains(ua, "opr/"):
		return "Opera"
	case strings.Contains(ua, "trident/") || strings.Contains(ua, "msie"):
		return "Internet Explorer"
	}
	return "Unknown"
}

var (
	macVersionRe     = regexp.MustCompile(`mac os x ([\d_]+)`)
	iosVersionRe     = regexp.MustCompile(`iphone os ([\d_]+)`)
	androidVersionRe = regexp.MustCompile(`android ([\d.]+)`)
)

func detectOS(userAgent string) string {
	ua := strings.ToLower(userAgent)

	switch {
	case strings.Contains(ua, "windows nt 10.0"):
		return "Windows 10/11"
	case strings.Contains(ua, "windows nt 6.3"):
		return "Windows 8.1"
	case strings.Contains(ua, "windows nt 6.2"):
		return "Windows 8"
	case strings.Contains(ua, "windows nt 6.1"):
		return "Windows 7"
	case strings.Contains(ua, "windows"):
		return "Windows"
	}

	if strings.Contains(ua, "mac os x") {
		if m := macVersionRe.FindStringSubmatch(ua); m != nil {
			return "macOS " + strings.ReplaceAll(m[1], "_", ".")
		}
		return "macOS"
	}
	if strings.Contains(ua, "iphone os") {
		if m := iosVersionRe.FindStringSubmatch(ua); m != nil {
			return "iOS " + strings.ReplaceAll(m[1], "_", ".")
		}
		return "iOS"
	}
	if strings.Contains(ua, "android") {
		if m := androidVersionRe.FindStringSubmatch(ua); m != nil {
			return "Android " + m[1]
		}
		return "Android"
	}

	switch {
	case strings.Contains(ua, "cros"):
		return "Chrome OS"
	case strings.Contains(ua, "ubuntu"):
		return "Ubuntu"
	case strings.Contains(ua, "linux"):
		return "Linux"
	}
	return "Unknown"
}

func detectDeviceType(userAgent string) string {
	ua := strings.ToLower(userAgent)

	// Tablet first: iPad and Android tablets advertise mobile-adjacent
	// tokens.
	if strings.Contains(ua, "tablet") || strings.Contains(ua, "ipad") {
		return "tablet"
	}
	if strings.Contains(ua, "mobile") || strings.Contains(ua, "android") || strings.Contains(ua, "iphone") {
		return "mobile"
	}
	return "desktop"
}
