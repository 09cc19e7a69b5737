package proxy

import (
	"net/http"
	"strings"
)

// Header names set on outbound requests.
const (
	HeaderCorrelationID  = "X-Correlation-ID"
	HeaderForwardedFor   = "X-Forwarded-For"
	HeaderForwardedProto = "X-Forwarded-Proto"
	HeaderForwardedHost  = "X-Forwarded-Host"
	HeaderUserID         = "X-User-ID"
)

// hopHeaders apply to a single connection and are never forwarded.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// copyHeaders copies src into dst without hop-by-hop headers, headers named
// in Connection, Host and Content-Length.
func copyHeaders(dst, src http.Header) {
	skip := connectionTokens(src)
	for k, vv := range src {
		ck := http.CanonicalHeaderKey(k)
		if isHopHeader(ck) || skip[ck] || ck == "Host" || ck == "Content-Length" {
			continue
		}
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

// withoutKeys returns h minus the canonical keys in drop.
func withoutKeys(h http.Header, drop map[string]bool) http.Header {
	if len(drop) == 0 {
		return h
	}
	out := make(http.Header, len(h))
	for k, vv := range h {
		if !drop[http.CanonicalHeaderKey(k)] {
			out[k] = vv
		}
	}
	return out
}

func isHopHeader(key string) bool {
	for _, h := range hopHeaders {
		if key == h {
			return true
		}
	}
	return false
}

func connectionTokens(h http.Header) map[string]bool {
	tokens := make(map[string]bool)
	for _, v := range h.Values("Connection") {
		for _, f := range strings.Split(v, ",") {
			if f = strings.TrimSpace(f); f != "" {
				tokens[http.CanonicalHeaderKey(f)] = true
			}
		}
	}
	return tokens
}

// appendForwardedFor adds clientIP to an existing X-Forwarded-For chain.
func appendForwardedFor(prior, clientIP string) string {
	switch {
	case clientIP == "":
		return prior
	case prior == "":
		return clientIP
	default:
		return prior + ", " + clientIP
	}
}
