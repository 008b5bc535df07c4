// Package middleware provides HTTP middleware for client identification, request logging and rate limiting.
package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"strings"

	"github.com/go-kratos/kratos/v2/transport/http"
)

// ClientResolver derives the rate limiting key of a request.
//
// X-Real-IP and X-Forwarded-For are read only when the TCP peer is a trusted proxy.
// An API key gives the caller a window of its own only when it is one of the configured
// keys; unknown keys are ignored so that rotating them cannot reset a window.
type ClientResolver struct {
	trusted []*net.IPNet
	apiKeys map[string]struct{}
}

// NewClientResolver builds a resolver from proxy IPs or CIDRs and the known API keys.
func NewClientResolver(trustedProxies, apiKeys []string) (*ClientResolver, error) {
	r := &ClientResolver{apiKeys: make(map[string]struct{}, len(apiKeys))}

	for _, proxy := range trustedProxies {
		proxy = strings.TrimSpace(proxy)
		if proxy == "" {
			continue
		}
		if !strings.Contains(proxy, "/") {
			ip := net.ParseIP(proxy)
			if ip == nil {
				return nil, fmt.Errorf("invalid trusted proxy %q", proxy)
			}
			bits := 128
			if ip.To4() != nil {
				ip, bits = ip.To4(), 32
			}
			r.trusted = append(r.trusted, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, ipNet, err := net.ParseCIDR(proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", proxy, err)
		}
		r.trusted = append(r.trusted, ipNet)
	}

	for _, key := range apiKeys {
		if key = strings.TrimSpace(key); key != "" {
			r.apiKeys[hashAPIKey(key)] = struct{}{}
		}
	}

	return r, nil
}

// Key returns "key:<hash>" for callers presenting a known API key and "ip:<addr>"
// otherwise. The raw API key never leaves the resolver.
func (r *ClientResolver) Key(req *http.Request) string {
	if apiKey := extractAPIKey(req); apiKey != "" {
		hashed := hashAPIKey(apiKey)
		if _, ok := r.apiKeys[hashed]; ok {
			return "key:" + hashed
		}
	}
	return "ip:" + r.ClientIP(req)
}

// ClientIP returns the address of the client.
// The peer address is used unless the peer is a trusted proxy, in which case
// X-Real-IP wins, then the nearest untrusted X-Forwarded-For hop.
func (r *ClientResolver) ClientIP(req *http.Request) string {
	peer := remoteHost(req.RemoteAddr)
	if !r.isTrusted(peer) {
		return peer
	}

	if ip := strings.TrimSpace(req.Header.Get("X-Real-IP")); net.ParseIP(ip) != nil {
		return ip
	}

	if forwarded := req.Header.Get("X-Forwarded-For"); forwarded != "" {
		hops := strings.Split(forwarded, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if net.ParseIP(hop) == nil {
				break
			}
			if !r.isTrusted(hop) || i == 0 {
				return hop
			}
		}
	}

	return peer
}

func (r *ClientResolver) isTrusted(addr string) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, ipNet := range r.trusted {
		if ipNet.Contains(ip) {
			return true
		}
	}
	return false
}

// extractAPIKey reads the bearer token, falling back to X-API-Key.
func extractAPIKey(req *http.Request) string {
	if authHeader := req.Header.Get("Authorization"); authHeader != "" {
		if apiKey := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer ")); apiKey != "" {
			return apiKey
		}
	}
	return strings.TrimSpace(req.Header.Get("X-API-Key"))
}

func hashAPIKey(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:])[:16]
}

func remoteHost(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}
