package handlers

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/DE-IBH/b3lb/internal/store"
)

// Ping answers monitoring probes with a database round trip.
func (h *Handlers) Ping(c *gin.Context) {
	if err := h.store.Ping(c.Request.Context()); err != nil {
		c.String(http.StatusServiceUnavailable, "Doh!")
		return
	}
	c.String(http.StatusOK, "OK!")
}

// Stats serves the tenant's live statistics JSON, authorized by the
// stats token.
func (h *Handlers) Stats(c *gin.Context) {
	secret, err := h.resolveSecret(c.Request.Context(), c)
	if err != nil {
		h.fail(c, err)
		return
	}
	token := c.GetHeader("Authorization")
	if secret == nil || token == "" || token != secret.Tenant.StatsToken.String() {
		c.String(http.StatusUnauthorized, "Unauthorized")
		return
	}
	h.writeTenantStats(c, secret)
}

func (h *Handlers) writeTenantStats(c *gin.Context, secret *store.Secret) {
	stats, err := h.store.ListStatsForTenant(c.Request.Context(), secret.Tenant.UUID)
	if err != nil {
		h.fail(c, err)
		return
	}

	document := make(map[string]map[string]gin.H)
	for _, st := range stats {
		byOrigin := document[st.OriginServerName]
		if byOrigin == nil {
			byOrigin = make(map[string]gin.H)
			document[st.OriginServerName] = byOrigin
		}
		byOrigin[st.Origin] = gin.H{
			"participantCount":      st.Attendees,
			"listenerCount":         st.ListenerCount,
			"voiceParticipantCount": st.VoiceParticipantCount,
			"moderatorCount":        st.ModeratorCount,
			"videoCount":            st.VideoCount,
			"meetingCount":          st.Meetings,
		}
	}
	c.JSON(http.StatusOK, document)
}

// Metrics serves the rendered Prometheus text: the global document on
// the bare API base domain, the per-secret one behind the stats token.
func (h *Handlers) Metrics(c *gin.Context) {
	ctx := c.Request.Context()

	if c.Param("slug") == "" && forwardedHost(c) == h.cfg.APIBaseDomain {
		document, err := h.store.GetSecretMetricsList(ctx, nil)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.Data(http.StatusOK, "text/plain", []byte(document))
		return
	}

	secret, err := h.resolveSecret(ctx, c)
	if err != nil {
		h.fail(c, err)
		return
	}
	token := c.GetHeader("Authorization")
	if secret == nil || token == "" || token != secret.Tenant.StatsToken.String() {
		c.String(http.StatusUnauthorized, "Unauthorized")
		return
	}

	document, err := h.store.GetSecretMetricsList(ctx, &secret.UUID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "text/plain", []byte(document))
}

// secretMetrics is the in-API b3lb_metrics variant; the checksum has
// already been verified, the stats token gates tenant-prefixed access.
func (h *Handlers) secretMetrics(r *apiRequest) {
	token := r.c.GetHeader("Authorization")
	if forwardedHost(r.c) != h.cfg.APIBaseDomain &&
		(token == "" || token != r.secret.Tenant.StatsToken.String()) {
		r.c.String(http.StatusUnauthorized, "Unauthorized")
		return
	}
	document, err := h.store.GetSecretMetricsList(r.c.Request.Context(), &r.secret.UUID)
	if err != nil {
		h.fail(r.c, err)
		return
	}
	r.c.Data(http.StatusOK, "text/plain", []byte(document))
}

// secretStats is the in-API b3lb_stats variant.
func (h *Handlers) secretStats(r *apiRequest) {
	token := r.c.GetHeader("Authorization")
	if token == "" || token != r.secret.Tenant.StatsToken.String() {
		r.c.String(http.StatusUnauthorized, "Unauthorized")
		return
	}
	h.writeTenantStats(r.c, r.secret)
}

// assetCacheControl keeps node fetches of logo/slide/css cheap.
const assetCacheControl = "public, max-age=60"

func (h *Handlers) AssetLogo(c *gin.Context) {
	h.serveAsset(c, func(a *store.Asset) *store.AssetFile { return a.Logo })
}

func (h *Handlers) AssetSlide(c *gin.Context) {
	h.serveAsset(c, func(a *store.Asset) *store.AssetFile { return a.Slide })
}

func (h *Handlers) AssetCSS(c *gin.Context) {
	h.serveAsset(c, func(a *store.Asset) *store.AssetFile { return a.CustomCSS })
}

func (h *Handlers) serveAsset(c *gin.Context, pick func(*store.Asset) *store.AssetFile) {
	slug := strings.ToUpper(c.Param("slug"))
	asset, err := h.store.GetAssetBySlug(c.Request.Context(), slug)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && asset == nil) {
		c.String(http.StatusNotFound, "Not Found")
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	file := pick(asset)
	if file == nil || len(file.Blob) == 0 {
		c.String(http.StatusNotFound, "Not Found")
		return
	}
	c.Header("Cache-Control", assetCacheControl)
	c.Data(http.StatusOK, file.Mimetype, file.Blob)
}
