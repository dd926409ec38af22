package store

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Cluster is a homogeneous group of nodes sharing load parameters and
// the hash used to sign upstream requests.
type Cluster struct {
	UUID              uuid.UUID
	Name              string
	LoadAFactor       float64
	LoadMFactor       float64
	LoadCPUIterations int
	LoadCPUMax        int
	SHAFunction       string
}

// Node is a single conferencing server instance.
type Node struct {
	UUID        uuid.UUID
	Slug        string
	Domain      string
	Secret      string
	ClusterUUID uuid.UUID
	Cluster     Cluster
	Attendees   int
	Meetings    int
	CPULoad     int
	HasErrors   bool
	Maintenance bool
}

// Hostname is the node's FQDN.
func (n *Node) Hostname() string {
	return n.Slug + "." + n.Domain
}

// APIBaseURL builds the signed BBB API base for this node.
func (n *Node) APIBaseURL(protocol, bbbEndpoint string) string {
	return protocol + n.Hostname() + "/" + bbbEndpoint
}

// LoadBaseURL builds the CPU load probe URL for this node.
func (n *Node) LoadBaseURL(protocol, loadEndpoint string) string {
	return protocol + n.Hostname() + "/" + loadEndpoint
}

// Load computes the node's synthetic load. Maintenance nodes report -2
// and errored nodes -1; both are ineligible for selection. The CPU term
// sums the Taylor series (cpu/10000)^k for k=1..iterations-1 scaled to
// load_cpu_max, so an idle node scores 0 and a saturated one approaches
// load_cpu_max.
func (n *Node) Load() int {
	if n.Maintenance {
		return -2
	}
	if n.HasErrors {
		return -1
	}

	workAttendees := float64(n.Attendees) * n.Cluster.LoadAFactor
	workMeetings := float64(n.Meetings) * n.Cluster.LoadMFactor

	workCPU := 0.0
	if n.Cluster.LoadCPUIterations > 0 {
		for k := 1; k < n.Cluster.LoadCPUIterations; k++ {
			workCPU += math.Pow(float64(n.CPULoad)/10000.0, float64(k))
		}
		workCPU = workCPU * float64(n.Cluster.LoadCPUMax) / float64(n.Cluster.LoadCPUIterations)
	}

	return int(workAttendees + workMeetings + workCPU)
}

// Tenant is a logical customer with a slug, limits and optional
// recording.
type Tenant struct {
	UUID             uuid.UUID
	Slug             string
	Description      string
	ClusterGroupUUID uuid.UUID
	AttendeeLimit    int
	MeetingLimit     int
	RecordingEnabled bool
	RecordsHoldTime  int
	StatsToken       uuid.UUID
}

// Secret is a tenant credential, optionally sub-indexed. Sub ID 0 is the
// tenant-wide secret and the aggregation root.
type Secret struct {
	UUID             uuid.UUID
	Tenant           Tenant
	SubID            int
	Secret           string
	Secret2          string
	AttendeeLimit    int
	MeetingLimit     int
	RecordingEnabled bool
	RecordsHoldTime  int
}

// Slug renders the canonical "<TENANT>" or "<TENANT>-NNN" identifier.
func (s *Secret) Slug() string {
	if s.SubID == 0 {
		return s.Tenant.Slug
	}
	return fmt.Sprintf("%s-%03d", s.Tenant.Slug, s.SubID)
}

// Endpoint is the hostname clients use for this secret.
func (s *Secret) Endpoint(apiBaseDomain string) string {
	if s.SubID == 0 {
		return fmt.Sprintf("%s.%s", lower(s.Tenant.Slug), apiBaseDomain)
	}
	return fmt.Sprintf("%s-%03d.%s", lower(s.Tenant.Slug), s.SubID, apiBaseDomain)
}

// IsRecordEnabled requires recording on both the tenant and the secret.
func (s *Secret) IsRecordEnabled() bool {
	return s.RecordingEnabled && s.Tenant.RecordingEnabled
}

// RecordsEffectiveHoldTime is the minimum of the tenant and secret hold
// days, unless either is 0 (unlimited) in which case the maximum wins.
func (s *Secret) RecordsEffectiveHoldTime() int {
	if s.RecordsHoldTime == 0 || s.Tenant.RecordsHoldTime == 0 {
		if s.RecordsHoldTime > s.Tenant.RecordsHoldTime {
			return s.RecordsHoldTime
		}
		return s.Tenant.RecordsHoldTime
	}
	if s.RecordsHoldTime < s.Tenant.RecordsHoldTime {
		return s.RecordsHoldTime
	}
	return s.Tenant.RecordsHoldTime
}

// Secrets returns both rotation slots.
func (s *Secret) Secrets() []string {
	return []string{s.Secret, s.Secret2}
}

func lower(s string) string {
	out := []byte(s)
	for i := range out {
		if 'A' <= out[i] && out[i] <= 'Z' {
			out[i] += 'a' - 'A'
		}
	}
	return string(out)
}

// Meeting is an active conference tracked by the balancer; its node
// binding is the routing affinity for all later operations.
type Meeting struct {
	ID                    string
	SecretUUID            uuid.UUID
	NodeUUID              uuid.UUID
	RoomName              string
	Age                   time.Time
	Attendees             int
	ListenerCount         int
	VoiceParticipantCount int
	ModeratorCount        int
	VideoCount            int
	Origin                string
	OriginServerName      string
	EndCallbackURL        string
	Nonce                 string
}

// RecordSet lifecycle states.
const (
	RecordSetUnknown  = "UNKNOWN"
	RecordSetUploaded = "UPLOADED"
	RecordSetRendered = "RENDERED"
	RecordSetDeleting = "DELETING"
)

// RecordSet ties a meeting to its raw archive and rendered outputs.
type RecordSet struct {
	UUID                    uuid.UUID
	SecretUUID              uuid.UUID
	MeetingID               string
	RecordingReadyOriginURL string
	Nonce                   string
	Status                  string
	FilePath                string
	RawSize                 int64
	MetaMeetingID           string
	MetaMeetingName         string
	MetaEndCallbackURL      string
	MetaOrigin              string
	MetaOriginVersion       string
	MetaOriginServerName    string
	MetaIsBreakout          bool
	MetaGLListed            bool
	MetaStartTime           string
	MetaEndTime             string
	MetaParticipants        int
	CreatedAt               time.Time
}

// RecordProfile is a rendering recipe.
type RecordProfile struct {
	UUID           uuid.UUID
	Name           string
	Description    string
	Width          int
	Height         int
	WebcamSize     int
	Annotations    bool
	IsDefault      bool
	FileExtension  string
	MimeType       string
	BackendProfile string
}

// Record is one rendered video for a RecordSet under a profile.
type Record struct {
	UUID          uuid.UUID
	RecordSetUUID uuid.UUID
	ProfileUUID   uuid.UUID
	FileKey       string
	FileSize      int64
	Name          string
	GLListed      bool
	Published     bool
	Nonce         string
	UploadedAt    time.Time
}

// Metric names. Gauges are set absolutely each poll; counters increment
// modulo 2^63.
const (
	MetricAttendees         = "attendees"
	MetricListeners         = "listeners"
	MetricVoices            = "voices"
	MetricVideos            = "videos"
	MetricMeetings          = "meetings"
	MetricAttendeesTotal    = "attendees_total"
	MetricMeetingsTotal     = "meetings_total"
	MetricDurationCount     = "meeting_duration_seconds_count"
	MetricDurationSum       = "meeting_duration_seconds_sum"
	MetricAttendeeLimitHits = "attendee_limit_hits"
	MetricMeetingLimitHits  = "meeting_limit_hits"
)

// MetricGauges is the set of gauge-kind metric names.
var MetricGauges = map[string]bool{
	MetricAttendees: true,
	MetricListeners: true,
	MetricVoices:    true,
	MetricVideos:    true,
	MetricMeetings:  true,
}

// MetricHelp maps every metric name to its HELP line text.
var MetricHelp = map[string]string{
	MetricAttendees:         "Total number of current attendees",
	MetricListeners:         "Total number of current listeners",
	MetricVoices:            "Total number of current voice participants",
	MetricVideos:            "Total number of current video participants",
	MetricMeetings:          "Total number of running meetings",
	MetricAttendeesTotal:    "Number of attendees that have joined",
	MetricMeetingsTotal:     "Number of meetings that have been created",
	MetricDurationCount:     "Total number of meeting durations",
	MetricDurationSum:       "Sum of meeting durations",
	MetricAttendeeLimitHits: "Number of attendee limit hits",
	MetricMeetingLimitHits:  "Number of meeting limit hits",
}

// MetricNames is the fixed emission order for rendered metric documents.
var MetricNames = []string{
	MetricAttendees,
	MetricListeners,
	MetricVoices,
	MetricVideos,
	MetricMeetings,
	MetricAttendeesTotal,
	MetricMeetingsTotal,
	MetricDurationCount,
	MetricDurationSum,
	MetricAttendeeLimitHits,
	MetricMeetingLimitHits,
}

// Metric is one (name, secret, node) sample.
type Metric struct {
	Name       string
	SecretUUID uuid.UUID
	NodeUUID   *uuid.UUID
	Value      int64
}

// Stats is a per-(tenant, origin, origin server) live aggregate for the
// JSON statistics endpoint.
type Stats struct {
	UUID                  uuid.UUID
	TenantUUID            uuid.UUID
	Attendees             int
	Meetings              int
	ListenerCount         int
	VoiceParticipantCount int
	ModeratorCount        int
	VideoCount            int
	Origin                string
	OriginServerName      string
}

// Parameter rule modes.
const (
	ParameterBlock    = "BLOCK"
	ParameterSet      = "SET"
	ParameterOverride = "OVERRIDE"
)

// Parameter is a per-tenant request parameter rule.
type Parameter struct {
	UUID       uuid.UUID
	TenantUUID uuid.UUID
	Parameter  string
	Mode       string
	Value      string
}

// AssetFile is one stored tenant asset blob.
type AssetFile struct {
	Blob     []byte
	Filename string
	Mimetype string
}

// Asset carries the optional tenant slide, logo and custom CSS.
type Asset struct {
	TenantUUID uuid.UUID
	Slide      *AssetFile
	Logo       *AssetFile
	CustomCSS  *AssetFile
}

// URL builders for asset injection into create/join parameters.

func AssetSlideURL(apiBaseDomain, tenantSlug string) string {
	return "https://" + apiBaseDomain + "/b3lb/t/" + lower(tenantSlug) + "/slide"
}

func AssetLogoURL(apiBaseDomain, tenantSlug string) string {
	return "https://" + apiBaseDomain + "/b3lb/t/" + lower(tenantSlug) + "/logo"
}

func AssetCSSURL(apiBaseDomain, tenantSlug string) string {
	return "https://" + apiBaseDomain + "/b3lb/t/" + lower(tenantSlug) + "/css"
}
