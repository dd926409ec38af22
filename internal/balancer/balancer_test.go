package balancer

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/DE-IBH/b3lb/internal/logging"
	"github.com/DE-IBH/b3lb/internal/store"
)

var nodeColumnNames = []string{
	"uuid", "slug", "domain", "secret", "cluster_uuid",
	"attendees", "meetings", "cpu_load", "has_errors", "maintenance",
	"c_uuid", "c_name", "load_a_factor", "load_m_factor",
	"load_cpu_iterations", "load_cpu_max", "sha_function",
}

type mockNode struct {
	slug        string
	attendees   int
	meetings    int
	hasErrors   bool
	maintenance bool
}

func newMockBalancer(t *testing.T) (*Balancer, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	logger := logging.NewLogger()
	return New(store.New(db, logger), logger), mock
}

func nodeRows(mock sqlmock.Sqlmock, clusterUUID uuid.UUID, nodes []mockNode) *sqlmock.Rows {
	rows := mock.NewRows(nodeColumnNames)
	for _, n := range nodes {
		rows.AddRow(
			uuid.New().String(), n.slug, "bbbconf.example.org", "node-secret", clusterUUID.String(),
			n.attendees, n.meetings, 0, n.hasErrors, n.maintenance,
			clusterUUID.String(), "default", 1.0, 30.0, 6, 5000, "sha256",
		)
	}
	return rows
}

func testSecret() *store.Secret {
	return &store.Secret{
		UUID: uuid.New(),
		Tenant: store.Tenant{
			UUID:             uuid.New(),
			Slug:             "GL",
			ClusterGroupUUID: uuid.New(),
		},
	}
}

func TestSelectNodePicksLowestLoad(t *testing.T) {
	b, mock := newMockBalancer(t)
	secret := testSecret()
	clusterUUID := uuid.New()

	mock.ExpectQuery(`FROM nodes n`).
		WithArgs(secret.Tenant.ClusterGroupUUID).
		WillReturnRows(nodeRows(mock, clusterUUID, []mockNode{
			{slug: "busy", attendees: 50, meetings: 5},
			{slug: "idle"},
			{slug: "down", hasErrors: true},
		}))

	node, err := b.SelectNode(context.Background(), secret)
	if err != nil {
		t.Fatalf("SelectNode: %v", err)
	}
	if node.Slug != "idle" {
		t.Fatalf("selected %q, want the idle node", node.Slug)
	}
}

func TestSelectNodeBreaksTiesAmongLowest(t *testing.T) {
	b, mock := newMockBalancer(t)
	secret := testSecret()
	clusterUUID := uuid.New()

	// Two idle nodes tie; with enough draws both must be selected.
	seen := map[string]bool{}
	for i := 0; i < 50 && len(seen) < 2; i++ {
		mock.ExpectQuery(`FROM nodes n`).
			WithArgs(secret.Tenant.ClusterGroupUUID).
			WillReturnRows(nodeRows(mock, clusterUUID, []mockNode{
				{slug: "idle-a"},
				{slug: "idle-b"},
				{slug: "busy", meetings: 10},
			}))
		node, err := b.SelectNode(context.Background(), secret)
		if err != nil {
			t.Fatalf("SelectNode: %v", err)
		}
		if node.Slug == "busy" {
			t.Fatalf("busy node selected over idle tie")
		}
		seen[node.Slug] = true
	}
	if len(seen) != 2 {
		t.Fatalf("tie breaking never chose both nodes: %v", seen)
	}
}

func TestSelectNodeNoneAvailable(t *testing.T) {
	b, mock := newMockBalancer(t)
	secret := testSecret()
	clusterUUID := uuid.New()

	mock.ExpectQuery(`FROM nodes n`).
		WithArgs(secret.Tenant.ClusterGroupUUID).
		WillReturnRows(nodeRows(mock, clusterUUID, []mockNode{
			{slug: "down", hasErrors: true},
			{slug: "parked", maintenance: true},
		}))

	if _, err := b.SelectNode(context.Background(), secret); err != ErrNoNodeAvailable {
		t.Fatalf("expected ErrNoNodeAvailable, got %v", err)
	}

	mock.ExpectQuery(`FROM nodes n`).
		WithArgs(secret.Tenant.ClusterGroupUUID).
		WillReturnRows(nodeRows(mock, clusterUUID, nil))
	if _, err := b.SelectNode(context.Background(), secret); err != ErrNoNodeAvailable {
		t.Fatalf("expected ErrNoNodeAvailable for empty group, got %v", err)
	}
}

func TestCheckLimitsUnlimited(t *testing.T) {
	b, _ := newMockBalancer(t)
	// All limits zero: no queries are expected at all.
	if err := b.CheckLimits(context.Background(), testSecret(), nil); err != nil {
		t.Fatalf("CheckLimits: %v", err)
	}
}

func TestCheckLimitsTenantMeetingLimit(t *testing.T) {
	b, mock := newMockBalancer(t)
	secret := testSecret()
	secret.Tenant.MeetingLimit = 5

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM meetings m`).
		WithArgs(secret.Tenant.UUID).
		WillReturnRows(mock.NewRows([]string{"count"}).AddRow(5))
	// The hit lands on the tenant-wide sub_id=0 secret; this secret is
	// already sub 0, so no root lookup happens.
	mock.ExpectExec(`INSERT INTO metrics`).
		WithArgs(sqlmock.AnyArg(), store.MetricMeetingLimitHits, secret.UUID, int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := b.CheckLimits(context.Background(), secret, nil); err != ErrLimitReached {
		t.Fatalf("expected ErrLimitReached, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCheckLimitsSecretAttendeeLimit(t *testing.T) {
	b, mock := newMockBalancer(t)
	secret := testSecret()
	secret.AttendeeLimit = 100
	nodeUUID := uuid.New()
	node := &store.Node{UUID: nodeUUID}

	mock.ExpectQuery(`SELECT COALESCE\(SUM\(attendees\), 0\) FROM meetings`).
		WithArgs(secret.UUID).
		WillReturnRows(mock.NewRows([]string{"sum"}).AddRow(120))
	mock.ExpectExec(`INSERT INTO metrics`).
		WithArgs(sqlmock.AnyArg(), store.MetricAttendeeLimitHits, secret.UUID, nodeUUID, int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := b.CheckLimits(context.Background(), secret, node); err != ErrLimitReached {
		t.Fatalf("expected ErrLimitReached, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCheckLimitsUnderLimit(t *testing.T) {
	b, mock := newMockBalancer(t)
	secret := testSecret()
	secret.Tenant.MeetingLimit = 5
	secret.MeetingLimit = 2

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM meetings m`).
		WithArgs(secret.Tenant.UUID).
		WillReturnRows(mock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM meetings WHERE secret_uuid`).
		WithArgs(secret.UUID).
		WillReturnRows(mock.NewRows([]string{"count"}).AddRow(1))

	if err := b.CheckLimits(context.Background(), secret, nil); err != nil {
		t.Fatalf("CheckLimits under limit: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
