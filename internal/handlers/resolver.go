package handlers

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/DE-IBH/b3lb/internal/store"
)

// forwardedHost returns the client-facing hostname, port stripped.
func forwardedHost(c *gin.Context) string {
	host := c.GetHeader("X-Forwarded-Host")
	if host == "" {
		host = c.Request.Host
	}
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	return host
}

// resolveSecret loads the secret addressed by the request: the path
// slug when present, else the forwarded host matched against the API
// base domain. A nil secret means the request is unauthorized. Lookups
// go through the TTL cache when one is configured.
func (h *Handlers) resolveSecret(ctx context.Context, c *gin.Context) (*store.Secret, error) {
	slug, subID, ok := h.requestSlug(c)
	if !ok {
		return nil, nil
	}
	if h.secrets == nil {
		return h.loadSecret(ctx, slug, subID)
	}

	key := slug + "#" + strconv.Itoa(subID)
	val, found, err := h.secrets.Get(ctx, key, func(ctx context.Context, _ string) (interface{}, bool, error) {
		secret, err := h.loadSecret(ctx, slug, subID)
		if err != nil {
			return nil, false, err
		}
		if secret == nil {
			return nil, false, nil
		}
		return secret, true, nil
	})
	if err != nil || !found {
		return nil, err
	}
	return val.(*store.Secret), nil
}

func (h *Handlers) loadSecret(ctx context.Context, slug string, subID int) (*store.Secret, error) {
	secret, err := h.store.GetSecret(ctx, slug, subID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return secret, nil
}

// requestSlug extracts (tenant slug, sub ID) from the path parameter or
// the forwarded host. The tenant slug is stored upper-case.
func (h *Handlers) requestSlug(c *gin.Context) (string, int, bool) {
	if raw := c.Param("slug"); raw != "" {
		m := h.slugRegex.FindStringSubmatch(raw)
		if m == nil {
			return "", 0, false
		}
		return strings.ToUpper(m[1]), atoiDefault(m[3]), true
	}

	m := h.hostRegex.FindStringSubmatch(forwardedHost(c))
	if m == nil {
		return "", 0, false
	}
	return strings.ToUpper(m[1]), atoiDefault(m[3]), true
}

func atoiDefault(s string) int {
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
