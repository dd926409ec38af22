// Package handlers implements the public BigBlueButton API frontend,
// the tenant service endpoints and the node-facing backend callbacks.
package handlers

import (
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"

	"github.com/DE-IBH/b3lb/internal/balancer"
	"github.com/DE-IBH/b3lb/internal/bbb"
	"github.com/DE-IBH/b3lb/internal/cache"
	"github.com/DE-IBH/b3lb/internal/config"
	"github.com/DE-IBH/b3lb/internal/logging"
	"github.com/DE-IBH/b3lb/internal/storage"
	"github.com/DE-IBH/b3lb/internal/store"
)

// Handlers carries the shared dependencies of every HTTP endpoint.
type Handlers struct {
	cfg      config.Config
	store    *store.Store
	balancer *balancer.Balancer
	blobs    storage.Storage
	pool     *bbb.AlgorithmPool
	client   *http.Client
	secrets  *cache.Cache

	hostRegex *regexp.Regexp
	slugRegex *regexp.Regexp

	logger logging.Logger
}

// New wires the handler set. The host pattern binds tenant slugs to the
// configured API base domain.
func New(cfg config.Config, st *store.Store, bal *balancer.Balancer, blobs storage.Storage, logger logging.Logger) *Handlers {
	var secrets *cache.Cache
	if cfg.CacheSecretTimeout > 0 {
		secrets = cache.New(cache.Options{
			TTL:         cfg.CacheSecretTimeout,
			NegativeTTL: cfg.CacheSecretTimeout,
			MaxEntries:  1024,
		})
	}
	return &Handlers{
		cfg:      cfg,
		store:    st,
		balancer: bal,
		blobs:    blobs,
		pool:     bbb.NewAlgorithmPool(cfg.AllowedSHAAlgorithms),
		client:   &http.Client{Timeout: cfg.NodeRequestTimeout},
		secrets:  secrets,
		hostRegex: regexp.MustCompile(
			`^([a-z]{2,10})(-(\d{3}))?\.` + regexp.QuoteMeta(cfg.APIBaseDomain) + `$`),
		slugRegex: regexp.MustCompile(`^([a-z]{2,10})(-(\d{3}))?$`),
		logger:    logger,
	}
}

// RegisterRoutes attaches every endpoint to the router.
func (h *Handlers) RegisterRoutes(router *gin.Engine) {
	router.Any("/bigbluebutton/api/*endpoint", h.API)
	router.Any("/b3lb/t/:slug/bbb/api/*endpoint", h.API)

	router.GET("/b3lb/ping", h.Ping)
	router.GET("/b3lb/stats", h.Stats)
	router.GET("/b3lb/t/:slug/stats", h.Stats)
	router.GET("/b3lb/metrics", h.Metrics)
	router.GET("/b3lb/t/:slug/metrics", h.Metrics)

	router.GET("/b3lb/t/:slug/logo", h.AssetLogo)
	router.GET("/b3lb/t/:slug/slide", h.AssetSlide)
	router.GET("/b3lb/t/:slug/css", h.AssetCSS)

	router.GET("/b3lb/b/meeting/end", h.EndMeetingCallback)
	router.POST("/b3lb/b/record/upload", h.RecordUpload)
	router.GET("/b3lb/r/:nonce", h.RecordDelivery)
}
