package config

import (
	"strings"
	"time"
)

// Config carries every balancer setting read from the environment.
type Config struct {
	// APIBaseDomain is the public domain the balancer is reachable under.
	// Tenant hostnames are <slug>.<APIBaseDomain>.
	APIBaseDomain string

	NodeProtocol      string
	NodeDefaultDomain string
	NodeBBBEndpoint   string
	NodeLoadEndpoint  string
	NodeRequestTimeout time.Duration

	// AllowedSHAAlgorithms restricts which digests inbound checksums may use.
	AllowedSHAAlgorithms []string

	CacheNMLPattern    string
	CacheNMLTimeout    time.Duration
	CacheSecretTimeout time.Duration

	RecordStorage            string // "local" or "s3"
	RecordRoot               string // local storage root
	RecordPathHierarchyWidth int
	RecordPathHierarchyDepth int
	RecordMetaDataTag        string
	Rendering                bool

	S3AccessKey   string
	S3SecretKey   string
	S3EndpointURL string
	S3BucketName  string
	S3Region      string
	S3URLProtocol string

	NoSlidesText string

	PollInterval        time.Duration
	PollMaxConcurrency  int
	AggregationInterval time.Duration
	StatisticsInterval  time.Duration
	RenderInterval      time.Duration
	RetentionInterval   time.Duration
}

// Load reads the balancer configuration from the environment.
// APIBaseDomain is mandatory; everything else has the upstream defaults.
func Load() Config {
	return Config{
		APIBaseDomain: RequireEnv("API_BASE_DOMAIN"),

		NodeProtocol:       GetEnv("NODE_PROTOCOL", "https://"),
		NodeDefaultDomain:  GetEnv("NODE_DEFAULT_DOMAIN", "bbbconf.de"),
		NodeBBBEndpoint:    GetEnv("NODE_BBB_ENDPOINT", "bigbluebutton/api/"),
		NodeLoadEndpoint:   GetEnv("NODE_LOAD_ENDPOINT", "b3lb/load"),
		NodeRequestTimeout: GetEnvDuration("NODE_REQUEST_TIMEOUT", 5*time.Second),

		AllowedSHAAlgorithms: splitList(GetEnv("ALLOWED_SHA_ALGORITHMS", "sha1,sha256,sha384,sha512")),

		CacheNMLPattern:    GetEnv("CACHE_NML_PATTERN", "NML#%s"),
		CacheNMLTimeout:    GetEnvDuration("CACHE_NML_TIMEOUT", 30*time.Second),
		CacheSecretTimeout: GetEnvDuration("CACHE_SECRET_TIMEOUT", 30*time.Second),

		RecordStorage:            GetEnv("RECORD_STORAGE", "local"),
		RecordRoot:               GetEnv("RECORD_ROOT", "/media_root"),
		RecordPathHierarchyWidth: GetEnvInt("RECORD_PATH_HIERARCHY_WIDTH", 2),
		RecordPathHierarchyDepth: GetEnvInt("RECORD_PATH_HIERARCHY_DEPTH", 3),
		RecordMetaDataTag:        GetEnv("RECORD_META_DATA_TAG", "b3lb-recordset"),
		Rendering:                GetEnvBool("RENDERING", false),

		S3AccessKey:   GetEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:   GetEnv("S3_SECRET_KEY", ""),
		S3EndpointURL: GetEnv("S3_ENDPOINT_URL", ""),
		S3BucketName:  GetEnv("S3_BUCKET_NAME", "raw"),
		S3Region:      GetEnv("S3_REGION", "us-east-1"),
		S3URLProtocol: GetEnv("S3_URL_PROTOCOL", "https:"),

		NoSlidesText: GetEnv("NO_SLIDES_TEXT", "<default>"),

		PollInterval:        GetEnvDuration("POLL_INTERVAL", 8*time.Second),
		PollMaxConcurrency:  GetEnvInt("POLL_MAX_CONCURRENCY", 10),
		AggregationInterval: GetEnvDuration("AGGREGATION_INTERVAL", 30*time.Second),
		StatisticsInterval:  GetEnvDuration("STATISTICS_INTERVAL", 60*time.Second),
		RenderInterval:      GetEnvDuration("RENDER_INTERVAL", 60*time.Second),
		RetentionInterval:   GetEnvDuration("RETENTION_INTERVAL", time.Hour),
	}
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
