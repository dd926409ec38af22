// Package poller probes conferencing nodes: CPU load, meeting census
// and the per-secret gauge updates derived from both.
package poller

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/DE-IBH/b3lb/internal/bbb"
	"github.com/DE-IBH/b3lb/internal/logging"
	"github.com/DE-IBH/b3lb/internal/state"
	"github.com/DE-IBH/b3lb/internal/store"
)

// Config holds the node endpoint layout.
type Config struct {
	NodeProtocol     string
	NodeBBBEndpoint  string
	NodeLoadEndpoint string
	RequestTimeout   time.Duration
}

// Poller runs the per-node check cycle.
type Poller struct {
	store  *store.Store
	cache  *state.MeetingListCache
	client *http.Client
	cfg    Config
	logger logging.Logger
}

func New(st *store.Store, cache *state.MeetingListCache, cfg Config, logger logging.Logger) *Poller {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Poller{
		store:  st,
		cache:  cache,
		client: &http.Client{Timeout: timeout},
		cfg:    cfg,
		logger: logger,
	}
}

// CheckNode runs one poll cycle against a node: refresh its CPU load,
// capture its getMeetings document, reconcile tracked meetings and
// update the per-secret gauges. Probe failures mark the node errored
// and cache an empty meeting list.
func (p *Poller) CheckNode(ctx context.Context, node *store.Node) {
	log := p.logger.WithField("node", node.Hostname())

	p.probeLoad(ctx, node)

	census := p.probeMeetings(ctx, node)
	hasErrors := census == nil

	if hasErrors {
		if err := p.cache.Set(ctx, node.UUID.String(), bbb.ReturnNoMeetings); err != nil {
			log.WithError(err).Debug("Failed to cache fallback meeting list")
		}
		if err := p.store.SetNodeMeetingList(ctx, node.UUID, bbb.ReturnNoMeetings); err != nil {
			log.WithError(err).Warn("Failed to store fallback meeting list")
		}
		census = &bbb.Census{Meetings: map[string]bbb.MeetingCensus{}}
	}

	if err := p.store.UpdateNodeCensus(ctx, node.UUID, hasErrors, census.Attendees, census.Running); err != nil {
		log.WithError(err).Error("Failed to update node census")
		return
	}

	if !hasErrors {
		p.reconcileMeetings(ctx, node, census)
	}
}

// probeLoad fetches the load endpoint. Any failure keeps the last
// stored CPU value.
func (p *Poller) probeLoad(ctx context.Context, node *store.Node) {
	url := node.LoadBaseURL(p.cfg.NodeProtocol, p.cfg.NodeLoadEndpoint)
	body, err := p.get(ctx, url)
	if err != nil {
		p.logger.WithError(err).WithField("node", node.Hostname()).Debug("Load probe failed")
		return
	}
	cpuLoad, err := bbb.ParseNodeLoad(body)
	if err != nil {
		p.logger.WithError(err).WithField("node", node.Hostname()).Debug("Load probe unparsable")
		return
	}
	if err := p.store.UpdateNodeCPULoad(ctx, node.UUID, cpuLoad); err != nil {
		p.logger.WithError(err).WithField("node", node.Hostname()).Warn("Failed to persist CPU load")
	}
}

// probeMeetings fetches and parses the signed getMeetings document,
// caching the raw XML for the aggregator. A nil return means the node
// must be flagged errored.
func (p *Poller) probeMeetings(ctx context.Context, node *store.Node) *bbb.Census {
	raw, err := p.get(ctx, p.meetingsURL(node))
	if err != nil {
		p.logger.WithError(err).WithField("node", node.Hostname()).Warn("getMeetings probe failed")
		return nil
	}

	if err := p.cache.Set(ctx, node.UUID.String(), raw); err != nil {
		p.logger.WithError(err).WithField("node", node.Hostname()).Debug("Failed to cache meeting list")
	}
	if err := p.store.SetNodeMeetingList(ctx, node.UUID, raw); err != nil {
		p.logger.WithError(err).WithField("node", node.Hostname()).Warn("Failed to store meeting list")
		return nil
	}

	census, err := bbb.ParseCensus(raw)
	if err != nil {
		p.logger.WithError(err).WithField("node", node.Hostname()).Warn("getMeetings response invalid")
		return nil
	}
	return census
}

// meetingsURL signs a bare getMeetings request with the node secret
// using the cluster's hash.
func (p *Poller) meetingsURL(node *store.Node) string {
	checksum := bbb.Checksum(bbb.HashByName(node.Cluster.SHAFunction), "getMeetings", "", node.Secret)
	return node.APIBaseURL(p.cfg.NodeProtocol, p.cfg.NodeBBBEndpoint) + "getMeetings?checksum=" + checksum
}

// meetingGracePeriod protects meetings the node has not reported yet
// right after create.
const meetingGracePeriod = 5 * time.Second

// zombieLifetime caps the duration metric: anything older is treated as
// a leftover row rather than a real meeting.
const zombieLifetime = 12 * time.Hour

// reconcileMeetings syncs tracked meetings against the census, retires
// vanished ones and rewrites the per-secret gauges for this node.
func (p *Poller) reconcileMeetings(ctx context.Context, node *store.Node, census *bbb.Census) {
	log := p.logger.WithField("node", node.Hostname())

	meetings, err := p.store.ListMeetingsOnNode(ctx, node.UUID)
	if err != nil {
		log.WithError(err).Error("Failed to list node meetings")
		return
	}

	type gaugeSet struct {
		attendees int
		listeners int
		voices    int
		videos    int
		meetings  int
	}
	gauges := make(map[string]gaugeSet)
	gaugeSecrets := make(map[string]bool)

	for _, meeting := range meetings {
		entry, live := census.Meetings[meeting.ID]
		if live {
			if err := p.store.UpdateMeetingCounters(ctx, meeting, entry); err != nil {
				log.WithError(err).WithField("meeting", meeting.ID).Warn("Failed to update meeting counters")
			}
			key := meeting.SecretUUID.String()
			set := gauges[key]
			set.attendees += entry.ParticipantCount
			set.listeners += entry.ListenerCount
			set.voices += entry.VoiceParticipantCount
			set.videos += entry.VideoCount
			set.meetings++
			gauges[key] = set
			gaugeSecrets[key] = true
			continue
		}

		lifetime := time.Since(meeting.Age)
		if lifetime <= meetingGracePeriod {
			continue
		}
		if lifetime < zombieLifetime {
			seconds := int64(lifetime / time.Second)
			if err := p.store.IncrMetric(ctx, store.MetricDurationCount, meeting.SecretUUID, &node.UUID, 1); err != nil {
				log.WithError(err).Warn("Failed to count meeting duration")
			}
			if err := p.store.IncrMetric(ctx, store.MetricDurationSum, meeting.SecretUUID, &node.UUID, seconds); err != nil {
				log.WithError(err).Warn("Failed to sum meeting duration")
			}
		}
		if err := p.store.DeleteMeeting(ctx, meeting.ID, meeting.SecretUUID); err != nil {
			log.WithError(err).WithField("meeting", meeting.ID).Warn("Failed to retire meeting")
		}
	}

	secrets, err := p.store.ListSecrets(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to list secrets for gauge update")
		return
	}
	for _, secret := range secrets {
		key := secret.UUID.String()
		if !gaugeSecrets[key] {
			// Unseen secrets get their gauges cleared on this node.
			if err := p.store.ZeroGaugesForSecretOnNode(ctx, secret.UUID, node.UUID); err != nil {
				log.WithError(err).WithField("secret", secret.Slug()).Warn("Failed to zero gauges")
			}
			continue
		}
		set := gauges[key]
		for name, value := range map[string]int{
			store.MetricAttendees: set.attendees,
			store.MetricListeners: set.listeners,
			store.MetricVoices:    set.voices,
			store.MetricVideos:    set.videos,
			store.MetricMeetings:  set.meetings,
		} {
			if err := p.store.SetMetric(ctx, name, secret.UUID, &node.UUID, int64(value)); err != nil {
				log.WithError(err).WithField("metric", name).Warn("Failed to set gauge")
			}
		}
	}
}

func (p *Poller) get(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}
