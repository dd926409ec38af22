package poller

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/DE-IBH/b3lb/internal/bbb"
	"github.com/DE-IBH/b3lb/internal/logging"
	"github.com/DE-IBH/b3lb/internal/state"
	"github.com/DE-IBH/b3lb/internal/store"
)

const censusDocument = `<response>
<returncode>SUCCESS</returncode>
<meetings>
<meeting>
<meetingID>room-1</meetingID>
<participantCount>2</participantCount>
<listenerCount>1</listenerCount>
<voiceParticipantCount>1</voiceParticipantCount>
<videoCount>0</videoCount>
<moderatorCount>1</moderatorCount>
<isBreakout>false</isBreakout>
<metadata>
<bbb-origin>greenlight</bbb-origin>
<bbb-origin-server-name>gl.example.org</bbb-origin-server-name>
</metadata>
</meeting>
</meetings>
</response>`

type testPoller struct {
	poller *Poller
	mock   sqlmock.Sqlmock
	redis  *miniredis.Miniredis
	node   *store.Node
}

// newTestPoller wires a poller against a fake node server; the node row
// is split so Hostname() points at the httptest listener.
func newTestPoller(t *testing.T, upstreamHost string) *testPoller {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	mock.MatchExpectationsInOrder(false)

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := logging.NewLogger()
	st := store.New(db, logger)
	cache := state.NewMeetingListCache(client, "", 0, logger)

	p := New(st, cache, Config{
		NodeProtocol:     "http://",
		NodeBBBEndpoint:  "bigbluebutton/api/",
		NodeLoadEndpoint: "b3lb/load",
		RequestTimeout:   2 * time.Second,
	}, logger)

	slug, domain, _ := strings.Cut(upstreamHost, ".")
	node := &store.Node{
		UUID:   uuid.New(),
		Slug:   slug,
		Domain: domain,
		Secret: "node-secret",
		Cluster: store.Cluster{
			UUID:        uuid.New(),
			Name:        "default",
			SHAFunction: bbb.SHA256,
		},
	}
	return &testPoller{poller: p, mock: mock, redis: mr, node: node}
}

func TestCheckNode(t *testing.T) {
	var meetingsChecksum string
	mux := http.NewServeMux()
	mux.HandleFunc("/b3lb/load", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "3000\n")
	})
	mux.HandleFunc("/bigbluebutton/api/getMeetings", func(w http.ResponseWriter, r *http.Request) {
		meetingsChecksum = r.URL.Query().Get("checksum")
		_, _ = io.WriteString(w, censusDocument)
	})
	upstream := httptest.NewServer(mux)
	defer upstream.Close()

	tp := newTestPoller(t, strings.TrimPrefix(upstream.URL, "http://"))
	secretUUID := uuid.New()

	// CPU load update, row-locked.
	tp.mock.ExpectBegin()
	tp.mock.ExpectQuery(`SELECT cpu_load FROM nodes WHERE uuid = \$1 FOR UPDATE`).
		WithArgs(tp.node.UUID).
		WillReturnRows(tp.mock.NewRows([]string{"cpu_load"}).AddRow(0))
	tp.mock.ExpectExec(`UPDATE nodes SET cpu_load = \$2`).
		WithArgs(tp.node.UUID, 3000).
		WillReturnResult(sqlmock.NewResult(0, 1))
	tp.mock.ExpectCommit()

	tp.mock.ExpectExec(`ON CONFLICT \(node_uuid\) DO UPDATE SET xml = \$2`).
		WithArgs(tp.node.UUID, censusDocument).
		WillReturnResult(sqlmock.NewResult(0, 1))

	// Census counters.
	tp.mock.ExpectBegin()
	tp.mock.ExpectQuery(`SELECT uuid FROM nodes WHERE uuid = \$1 FOR UPDATE`).
		WithArgs(tp.node.UUID).
		WillReturnRows(tp.mock.NewRows([]string{"uuid"}).AddRow(tp.node.UUID.String()))
	tp.mock.ExpectExec(`UPDATE nodes SET has_errors = \$2, attendees = \$3, meetings = \$4`).
		WithArgs(tp.node.UUID, false, 2, 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	tp.mock.ExpectCommit()

	// Reconcile: the tracked meeting is live, counters are copied over.
	tp.mock.ExpectQuery(`FROM meetings WHERE node_uuid = \$1`).
		WithArgs(tp.node.UUID).
		WillReturnRows(tp.mock.NewRows([]string{
			"id", "secret_uuid", "node_uuid", "room_name", "age",
			"attendees", "listener_count", "voice_participant_count", "moderator_count", "video_count",
			"bbb_origin", "bbb_origin_server_name", "end_callback_url", "nonce",
		}).AddRow(
			"room-1", secretUUID.String(), tp.node.UUID.String(), "Room", time.Now(),
			0, 0, 0, 0, 0, "", "", "", "n0nce"))
	tp.mock.ExpectExec(`SET attendees = \$3, listener_count = \$4, voice_participant_count = \$5`).
		WithArgs("room-1", secretUUID, 2, 1, 1, 1, 0, "greenlight", "gl.example.org").
		WillReturnResult(sqlmock.NewResult(0, 1))

	idleSecretUUID := uuid.New()
	tenantUUID := uuid.New()
	tp.mock.ExpectQuery(`FROM secrets s JOIN tenants t`).
		WillReturnRows(tp.mock.NewRows([]string{
			"uuid", "sub_id", "secret", "secret2",
			"attendee_limit", "meeting_limit", "recording_enabled", "records_hold_time",
			"t_uuid", "t_slug", "t_description", "t_cluster_group_uuid",
			"t_attendee_limit", "t_meeting_limit", "t_recording_enabled", "t_records_hold_time", "t_stats_token",
		}).AddRow(
			secretUUID.String(), 0, "secret", "",
			0, 0, false, 0,
			tenantUUID.String(), "GL", "", uuid.New().String(),
			0, 0, false, 0, uuid.New().String(),
		).AddRow(
			idleSecretUUID.String(), 1, "other-secret", "",
			0, 0, false, 0,
			tenantUUID.String(), "GL", "", uuid.New().String(),
			0, 0, false, 0, uuid.New().String()))

	// One gauge write per metric name for the active secret on this node.
	for i := 0; i < 5; i++ {
		tp.mock.ExpectExec(`DO UPDATE SET value = \$5`).
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), secretUUID, tp.node.UUID, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}

	// The secret without meetings gets its node gauges zeroed instead.
	tp.mock.ExpectExec(`UPDATE metrics SET value = 0`).
		WithArgs(idleSecretUUID, tp.node.UUID).
		WillReturnResult(sqlmock.NewResult(0, 5))

	tp.poller.CheckNode(context.Background(), tp.node)

	if err := tp.mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("poll cycle incomplete: %v", err)
	}

	// The census probe is signed with the node secret.
	if !bbb.Verify(sha256.New, "getMeetings", "", meetingsChecksum, "node-secret") {
		t.Fatalf("census probe checksum %q does not verify", meetingsChecksum)
	}

	// The raw document is cached for the aggregator.
	cached, err := tp.redis.Get(fmt.Sprintf(state.DefaultKeyPattern, tp.node.UUID.String()))
	if err != nil || cached != censusDocument {
		t.Fatalf("cached meeting list = (%q, %v)", cached, err)
	}
}

func TestCheckNodeProbeFailure(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer upstream.Close()

	tp := newTestPoller(t, strings.TrimPrefix(upstream.URL, "http://"))

	// The fallback empty list is stored and the node flagged errored;
	// nothing else runs.
	tp.mock.ExpectExec(`ON CONFLICT \(node_uuid\) DO UPDATE SET xml = \$2`).
		WithArgs(tp.node.UUID, bbb.ReturnNoMeetings).
		WillReturnResult(sqlmock.NewResult(0, 1))
	tp.mock.ExpectBegin()
	tp.mock.ExpectQuery(`SELECT uuid FROM nodes WHERE uuid = \$1 FOR UPDATE`).
		WithArgs(tp.node.UUID).
		WillReturnRows(tp.mock.NewRows([]string{"uuid"}).AddRow(tp.node.UUID.String()))
	tp.mock.ExpectExec(`UPDATE nodes SET has_errors = \$2, attendees = \$3, meetings = \$4`).
		WithArgs(tp.node.UUID, true, 0, 0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	tp.mock.ExpectCommit()

	tp.poller.CheckNode(context.Background(), tp.node)

	if err := tp.mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("fallback cycle incomplete: %v", err)
	}
}
