package api

import (
	"net"
	"net/http"
	"net/netip"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const clientIdleTimeout = 10 * time.Minute

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientLimiters rate limits requests per remote IP.
type clientLimiters struct {
	limit rate.Limit
	burst int

	mu        sync.Mutex
	clients   map[string]*client
	lastPrune time.Time
}

func newClientLimiters(limit rate.Limit, burst int) *clientLimiters {
	if limit == 0 {
		limit = rate.Inf
	}

	if burst < 1 {
		burst = 1
	}

	return &clientLimiters{
		limit:     limit,
		burst:     burst,
		clients:   map[string]*client{},
		lastPrune: time.Now(),
	}
}

func (cl *clientLimiters) allow(ip string) bool {
	now := time.Now()

	cl.mu.Lock()
	if now.Sub(cl.lastPrune) > time.Minute {
		for k, c := range cl.clients {
			if now.Sub(c.lastSeen) > clientIdleTimeout {
				delete(cl.clients, k)
			}
		}
		cl.lastPrune = now
	}

	c, ok := cl.clients[ip]
	if !ok {
		c = &client{limiter: rate.NewLimiter(cl.limit, cl.burst)}
		cl.clients[ip] = c
	}
	c.lastSeen = now
	limiter := c.limiter
	cl.mu.Unlock()

	return limiter.Allow()
}

// remoteIP keys IPv6 clients by their /64 prefix.
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return canonicalizeIP(host)
}

func canonicalizeIP(ip string) string {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return ip
	}

	if addr.Is4() || addr.Is4In6() {
		return addr.Unmap().String()
	}

	prefix, err := addr.Prefix(64)
	if err != nil {
		return ip
	}
	return prefix.Addr().String()
}
