package handlers

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/DE-IBH/b3lb/internal/balancer"
	"github.com/DE-IBH/b3lb/internal/bbb"
	"github.com/DE-IBH/b3lb/internal/policy"
	"github.com/DE-IBH/b3lb/internal/recording"
	"github.com/DE-IBH/b3lb/internal/store"
)

// create places a new meeting on the least-loaded node of the tenant's
// cluster group, or relays to the node already holding the meeting ID.
func (h *Handlers) create(r *apiRequest) {
	ctx := r.c.Request.Context()

	if r.meetingID() == "" {
		r.c.Data(http.StatusOK, bbb.ContentTypeXML, []byte(bbb.ReturnMissingMeetingID))
		return
	}
	if !bbb.IsMeetingNameLengthFine(r.params.Get("name")) {
		r.c.Data(http.StatusOK, bbb.ContentTypeXML, []byte(bbb.ReturnWrongMeetingNameSize))
		return
	}

	found, err := h.lookupMeeting(ctx, r)
	if err != nil {
		h.fail(r.c, err)
		return
	}
	if !found {
		node, err := h.balancer.SelectNode(ctx, r.secret)
		if errors.Is(err, balancer.ErrNoNodeAvailable) {
			r.c.Data(http.StatusOK, bbb.ContentTypeXML, []byte(bbb.ReturnCreateNoNodeAvailable))
			return
		}
		if err != nil {
			h.fail(r.c, err)
			return
		}
		if err := h.balancer.CheckLimits(ctx, r.secret, node); err != nil {
			if errors.Is(err, balancer.ErrLimitReached) {
				r.c.Data(http.StatusOK, bbb.ContentTypeXML, []byte(bbb.ReturnCreateLimitReached))
				return
			}
			h.fail(r.c, err)
			return
		}
		r.node = node
	}

	meeting, created, err := h.store.GetOrCreateMeeting(ctx, r.meetingID(), r.secret.UUID,
		r.node.UUID, r.params.Get("name"), r.params.Get("meta_endCallbackUrl"))
	if err != nil {
		h.fail(r.c, err)
		return
	}
	r.meeting = meeting

	if created {
		if err := h.store.AddNodeCreatePenalty(ctx, r.node.UUID); err != nil {
			h.logger.WithError(err).Warn("Failed to apply create penalty")
		}
		if err := h.store.IncrMetric(ctx, store.MetricMeetingsTotal, r.secret.UUID, &r.node.UUID, 1); err != nil {
			h.logger.WithError(err).Warn("Failed to count created meeting")
		}
	}

	if err := h.applyCreatePolicy(r, created); err != nil {
		h.fail(r.c, err)
		return
	}
	h.proxy(r)
}

// applyCreatePolicy runs the tenant rules and create rewrites, opening
// a record set for freshly created recorded meetings.
func (h *Handlers) applyCreatePolicy(r *apiRequest, created bool) error {
	ctx := r.c.Request.Context()

	rules, err := h.store.ListParameters(ctx, r.secret.Tenant.UUID)
	if err != nil {
		return err
	}
	policy.ApplyRules(r.params, rules, "create")

	asset, err := h.store.GetAsset(ctx, r.secret.Tenant.UUID)
	if err != nil {
		return err
	}

	result := policy.ApplyCreateExtras(r.params, policy.CreateContext{
		Secret:        r.secret,
		Asset:         asset,
		Meeting:       r.meeting,
		Created:       created,
		Method:        r.method,
		APIBaseDomain: h.cfg.APIBaseDomain,
		RecordMetaTag: h.cfg.RecordMetaDataTag,
		NoSlidesText:  h.cfg.NoSlidesText,
	})

	if result.Body != "" {
		r.body = []byte(result.Body)
	}
	if result.NewRecordSet != nil {
		rs := result.NewRecordSet
		rs.UUID = uuid.New()
		rs.FilePath = recording.FilePath(rs.UUID,
			h.cfg.RecordPathHierarchyWidth, h.cfg.RecordPathHierarchyDepth)
		if err := h.store.CreateRecordSet(ctx, rs); err != nil {
			return err
		}
	}
	return nil
}

// join authenticates against the tracked meeting and redirects the
// client to the signed node URL.
func (h *Handlers) join(r *apiRequest) {
	ctx := r.c.Request.Context()

	if r.meetingID() == "" {
		r.c.Data(http.StatusOK, bbb.ContentTypeXML, []byte(bbb.ReturnMissingMeetingID))
		return
	}
	found, err := h.lookupMeeting(ctx, r)
	if err != nil {
		h.fail(r.c, err)
		return
	}
	if !found {
		r.c.String(http.StatusBadRequest, "Bad Request")
		return
	}

	rules, err := h.store.ListParameters(ctx, r.secret.Tenant.UUID)
	if err != nil {
		h.fail(r.c, err)
		return
	}
	policy.ApplyRules(r.params, rules, "join")

	asset, err := h.store.GetAsset(ctx, r.secret.Tenant.UUID)
	if err != nil {
		h.fail(r.c, err)
		return
	}
	policy.ApplyJoinExtras(r.params, r.secret, asset, h.cfg.APIBaseDomain)

	if err := h.store.IncrMetric(ctx, store.MetricAttendeesTotal, r.secret.UUID, &r.node.UUID, 1); err != nil {
		h.logger.WithError(err).Warn("Failed to count joined attendee")
	}
	r.c.Redirect(http.StatusFound, h.nodeEndpointURL(r))
}

// isMeetingRunning answers from the balancer's own state when the
// meeting is unknown and relays to the node otherwise.
func (h *Handlers) isMeetingRunning(r *apiRequest) {
	found, err := h.lookupMeeting(r.c.Request.Context(), r)
	if err != nil {
		h.fail(r.c, err)
		return
	}
	if !found {
		r.c.Data(http.StatusOK, bbb.ContentTypeXML, []byte(bbb.ReturnIsMeetingRunningFalse))
		return
	}
	h.proxy(r)
}

// getMeetings serves the aggregated per-secret document.
func (h *Handlers) getMeetings(r *apiRequest) {
	document, err := h.store.GetSecretMeetingList(r.c.Request.Context(), r.secret.UUID)
	if err != nil {
		h.fail(r.c, err)
		return
	}
	if document == "" {
		document = bbb.ReturnNoMeetings
	}
	r.c.Data(http.StatusOK, bbb.ContentTypeXML, []byte(document))
}
