package floodgate

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// KeyExtractor derives a rate limit key from an HTTP request, identifying
// the client the limit is scoped to (IP address, API key, session, ...).
type KeyExtractor func(*http.Request) (string, error)

// remoteIP extracts the host part of RemoteAddr.
func remoteIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RemoteAddr without a port in edge cases
		return r.RemoteAddr
	}
	return ip
}

// ExtractIP keys clients by the connection's remote IP address.
func ExtractIP() KeyExtractor {
	return func(r *http.Request) (string, error) {
		ip := remoteIP(r)
		if ip == "" {
			return "", fmt.Errorf("%w: empty remote address", ErrKeyExtractionFailed)
		}
		return "ip:" + ip, nil
	}
}

// ExtractIPWithProxy keys clients by IP, honoring X-Forwarded-For and
// X-Real-IP before falling back to the remote address. Use this when the
// application sits behind a reverse proxy or load balancer.
func ExtractIPWithProxy() KeyExtractor {
	return func(r *http.Request) (string, error) {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			// First entry in the list is the original client
			if ip := strings.TrimSpace(strings.SplitN(xff, ",", 2)[0]); ip != "" {
				return "ip:" + ip, nil
			}
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return "ip:" + xri, nil
		}
		ip := remoteIP(r)
		if ip == "" {
			return "", fmt.Errorf("%w: empty remote address", ErrKeyExtractionFailed)
		}
		return "ip:" + ip, nil
	}
}

// ExtractHeader keys clients by the value of the named header.
func ExtractHeader(name string) KeyExtractor {
	return func(r *http.Request) (string, error) {
		value := r.Header.Get(name)
		if value == "" {
			return "", fmt.Errorf("%w: header %s missing or empty", ErrKeyExtractionFailed, name)
		}
		return fmt.Sprintf("header:%s:%s", name, value), nil
	}
}

// ExtractBearer keys clients by the Bearer token in the Authorization header.
func ExtractBearer() KeyExtractor {
	return func(r *http.Request) (string, error) {
		auth := r.Header.Get("Authorization")
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
			return "", fmt.Errorf("%w: missing or malformed bearer token", ErrKeyExtractionFailed)
		}
		return "bearer:" + parts[1], nil
	}
}

// ExtractCookie keys clients by the value of the named cookie, e.g. a
// session id.
func ExtractCookie(name string) KeyExtractor {
	return func(r *http.Request) (string, error) {
		cookie, err := r.Cookie(name)
		if err != nil {
			return "", fmt.Errorf("%w: cookie %s not found", ErrKeyExtractionFailed, name)
		}
		if cookie.Value == "" {
			return "", fmt.Errorf("%w: cookie %s is empty", ErrKeyExtractionFailed, name)
		}
		return fmt.Sprintf("cookie:%s:%s", name, cookie.Value), nil
	}
}

// ExtractStatic always returns the same key, giving all clients one shared
// limit.
func ExtractStatic(key string) KeyExtractor {
	return func(*http.Request) (string, error) {
		if key == "" {
			return "", fmt.Errorf("%w: static key is empty", ErrKeyExtractionFailed)
		}
		return key, nil
	}
}

// ExtractComposite tries each extractor in order and returns the first key
// produced. Useful for fallbacks, e.g. API key first, client IP second.
func ExtractComposite(extractors ...KeyExtractor) KeyExtractor {
	return func(r *http.Request) (string, error) {
		var lastErr error
		for _, extract := range extractors {
			key, err := extract(r)
			if err == nil && key != "" {
				return key, nil
			}
			lastErr = err
		}
		return "", fmt.Errorf("%w: no extractor produced a key: %v", ErrKeyExtractionFailed, lastErr)
	}
}

// ParseKeyExtractor builds a KeyExtractor from a configuration string:
//
//	"ip"                 ExtractIP
//	"ip-proxy"           ExtractIPWithProxy
//	"header:X-API-Key"   ExtractHeader("X-API-Key")
//	"bearer"             ExtractBearer
//	"cookie:session_id"  ExtractCookie("session_id")
//	"static:global"      ExtractStatic("global")
func ParseKeyExtractor(config string) (KeyExtractor, error) {
	parts := strings.SplitN(config, ":", 2)
	switch parts[0] {
	case "ip":
		return ExtractIP(), nil
	case "ip-proxy":
		return ExtractIPWithProxy(), nil
	case "header":
		if len(parts) != 2 || parts[1] == "" {
			return nil, fmt.Errorf("%w: header extractor requires 'header:Name'", ErrInvalidConfig)
		}
		return ExtractHeader(parts[1]), nil
	case "bearer":
		return ExtractBearer(), nil
	case "cookie":
		if len(parts) != 2 || parts[1] == "" {
			return nil, fmt.Errorf("%w: cookie extractor requires 'cookie:Name'", ErrInvalidConfig)
		}
		return ExtractCookie(parts[1]), nil
	case "static":
		if len(parts) != 2 || parts[1] == "" {
			return nil, fmt.Errorf("%w: static extractor requires 'static:key'", ErrInvalidConfig)
		}
		return ExtractStatic(parts[1]), nil
	default:
		return nil, fmt.Errorf("%w: unknown key extractor %q", ErrInvalidConfig, config)
	}
}
