package store

import (
	"testing"
)

func TestNodeLoad(t *testing.T) {
	cluster := Cluster{
		LoadAFactor:       1,
		LoadMFactor:       30,
		LoadCPUIterations: 6,
		LoadCPUMax:        5000,
	}

	tests := []struct {
		name string
		node Node
		want int
	}{
		{"idle", Node{Cluster: cluster}, 0},
		{"attendees only", Node{Cluster: cluster, Attendees: 10}, 10},
		{"meetings weigh more", Node{Cluster: cluster, Meetings: 3}, 90},
		{"maintenance", Node{Cluster: cluster, Attendees: 10, Maintenance: true}, -2},
		{"errored", Node{Cluster: cluster, Attendees: 10, HasErrors: true}, -1},
		{"maintenance wins over error", Node{Cluster: cluster, HasErrors: true, Maintenance: true}, -2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.node.Load(); got != tt.want {
				t.Fatalf("Load() = %d, want %d", got, tt.want)
			}
		})
	}

	// A saturated CPU approaches load_cpu_max; it must dominate an
	// otherwise idle node without exceeding the cap.
	hot := Node{Cluster: cluster, CPULoad: 10000}
	load := hot.Load()
	if load <= 0 || load > cluster.LoadCPUMax {
		t.Fatalf("saturated CPU load = %d, want within (0, %d]", load, cluster.LoadCPUMax)
	}
	cold := Node{Cluster: cluster, CPULoad: 1000}
	if cold.Load() >= load {
		t.Fatalf("cooler CPU must score below a saturated one")
	}
}

func TestNodeURLs(t *testing.T) {
	node := Node{Slug: "node01", Domain: "bbbconf.example.org"}

	if got := node.Hostname(); got != "node01.bbbconf.example.org" {
		t.Fatalf("Hostname = %q", got)
	}
	if got := node.APIBaseURL("https://", "bigbluebutton/api/"); got != "https://node01.bbbconf.example.org/bigbluebutton/api/" {
		t.Fatalf("APIBaseURL = %q", got)
	}
	if got := node.LoadBaseURL("https://", "b3lb/load"); got != "https://node01.bbbconf.example.org/b3lb/load" {
		t.Fatalf("LoadBaseURL = %q", got)
	}
}

func TestSecretSlugAndEndpoint(t *testing.T) {
	base := &Secret{Tenant: Tenant{Slug: "GL"}}
	if got := base.Slug(); got != "GL" {
		t.Fatalf("sub-0 slug = %q", got)
	}
	if got := base.Endpoint("bbb.example.org"); got != "gl.bbb.example.org" {
		t.Fatalf("sub-0 endpoint = %q", got)
	}

	sub := &Secret{Tenant: Tenant{Slug: "GL"}, SubID: 7}
	if got := sub.Slug(); got != "GL-007" {
		t.Fatalf("sub slug = %q", got)
	}
	if got := sub.Endpoint("bbb.example.org"); got != "gl-007.bbb.example.org" {
		t.Fatalf("sub endpoint = %q", got)
	}
}

func TestSecretIsRecordEnabled(t *testing.T) {
	tests := []struct {
		tenant, secret, want bool
	}{
		{true, true, true},
		{true, false, false},
		{false, true, false},
		{false, false, false},
	}
	for _, tt := range tests {
		s := &Secret{Tenant: Tenant{RecordingEnabled: tt.tenant}, RecordingEnabled: tt.secret}
		if got := s.IsRecordEnabled(); got != tt.want {
			t.Fatalf("tenant=%v secret=%v: IsRecordEnabled=%v, want %v", tt.tenant, tt.secret, got, tt.want)
		}
	}
}

func TestRecordsEffectiveHoldTime(t *testing.T) {
	tests := []struct {
		name           string
		tenant, secret int
		want           int
	}{
		{"both limited takes minimum", 30, 14, 14},
		{"both limited takes minimum swapped", 14, 30, 14},
		{"secret unlimited takes tenant", 30, 0, 30},
		{"tenant unlimited takes secret", 0, 14, 14},
		{"both unlimited", 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Secret{
				Tenant:          Tenant{RecordsHoldTime: tt.tenant},
				RecordsHoldTime: tt.secret,
			}
			if got := s.RecordsEffectiveHoldTime(); got != tt.want {
				t.Fatalf("RecordsEffectiveHoldTime = %d, want %d", got, tt.want)
			}
		})
	}
}
