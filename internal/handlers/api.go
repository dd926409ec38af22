package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/DE-IBH/b3lb/internal/bbb"
	"github.com/DE-IBH/b3lb/internal/store"
)

// apiRequest carries the per-request state of one API call through the
// endpoint handlers.
type apiRequest struct {
	c        *gin.Context
	endpoint string
	params   url.Values
	checksum string
	secret   *store.Secret
	meeting  *store.Meeting
	node     *store.Node
	// body overrides the forwarded request body (slide injection).
	body   []byte
	method string
}

func (r *apiRequest) meetingID() string {
	return r.params.Get("meetingID")
}

// passThroughEndpoints are forwarded to the meeting's node untouched.
var passThroughEndpoints = map[string]bool{
	"end":            true,
	"insertDocument": true,
	"setConfigXML":   true,
	"getMeetingInfo": true,
}

func allowedMethods(endpoint string) []string {
	switch endpoint {
	case "join", "b3lb_metrics", "b3lb_stats":
		return []string{http.MethodGet}
	}
	return []string{http.MethodGet, http.MethodPost}
}

// API is the BigBlueButton frontend: checksum-authenticated endpoint
// dispatch for both the plain and the tenant-prefixed route.
func (h *Handlers) API(c *gin.Context) {
	endpoint := strings.TrimPrefix(c.Param("endpoint"), "/")

	if !methodAllowed(c.Request.Method, allowedMethods(endpoint)) {
		c.Header("Allow", strings.Join(allowedMethods(endpoint), ", "))
		c.String(http.StatusMethodNotAllowed, "Method Not Allowed")
		return
	}

	params := cloneQuery(c.Request.URL.Query())
	checksum := params.Get("checksum")
	params.Del("checksum")
	if checksum == "" {
		c.String(http.StatusUnauthorized, "Unauthorized")
		return
	}

	secret, err := h.resolveSecret(c.Request.Context(), c)
	if err != nil {
		h.logger.WithError(err).Error("Failed to resolve tenant secret")
		c.String(http.StatusInternalServerError, "Internal Server Error")
		return
	}
	if secret == nil || !h.verifyChecksum(c, endpoint, params, checksum, secret) {
		c.String(http.StatusUnauthorized, "Unauthorized")
		return
	}

	r := &apiRequest{
		c:        c,
		endpoint: endpoint,
		params:   params,
		checksum: checksum,
		secret:   secret,
		method:   c.Request.Method,
	}

	switch endpoint {
	case "":
		c.Data(http.StatusOK, bbb.ContentTypeXML, []byte(bbb.ReturnVersion))
	case "create":
		h.create(r)
	case "join":
		h.join(r)
	case "isMeetingRunning":
		h.isMeetingRunning(r)
	case "getMeetings":
		h.getMeetings(r)
	case "getRecordings":
		h.getRecordings(r)
	case "publishRecordings":
		h.publishRecordings(r)
	case "deleteRecordings":
		h.deleteRecordings(r)
	case "updateRecordings":
		h.updateRecordings(r)
	case "getRecordingTextTracks":
		c.Data(http.StatusOK, "application/json", []byte(bbb.ReturnNoTextTracksJSON))
	case "b3lb_metrics":
		h.secretMetrics(r)
	case "b3lb_stats":
		h.secretStats(r)
	default:
		if passThroughEndpoints[endpoint] {
			h.passThrough(r)
			return
		}
		c.String(http.StatusForbidden, "Forbidden")
	}
}

func methodAllowed(method string, allowed []string) bool {
	for _, m := range allowed {
		if m == method {
			return true
		}
	}
	return false
}

func cloneQuery(q url.Values) url.Values {
	out := make(url.Values, len(q))
	for k, vs := range q {
		out[k] = append([]string(nil), vs...)
	}
	return out
}

// verifyChecksum validates the request signature over the raw query
// string with the checksum stripped verbatim, trying both secret slots.
func (h *Handlers) verifyChecksum(c *gin.Context, endpoint string, params url.Values, checksum string, secret *store.Secret) bool {
	newHash, ok := h.pool.Select(params.Get("checksumHash"), checksum)
	if !ok {
		return false
	}
	queryString := bbb.StripChecksum(c.Request.URL.RawQuery, checksum)
	return bbb.Verify(newHash, endpoint, queryString, checksum, secret.Secrets()...)
}

// lookupMeeting binds the request to its tracked meeting and node. A
// meeting whose node is errored counts as not found.
func (h *Handlers) lookupMeeting(ctx context.Context, r *apiRequest) (bool, error) {
	if r.meetingID() == "" {
		return false, nil
	}
	meeting, err := h.store.GetMeeting(ctx, r.meetingID(), r.secret.UUID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	node, err := h.store.GetNode(ctx, meeting.NodeUUID)
	if err != nil {
		return false, err
	}
	if node.HasErrors {
		return false, nil
	}
	r.meeting = meeting
	r.node = node
	return true, nil
}

// nodeEndpointURL builds the signed node URL for the current parameter
// set using the cluster's hash function.
func (h *Handlers) nodeEndpointURL(r *apiRequest) string {
	paramStr := r.params.Encode()
	checksum := bbb.Checksum(bbb.HashByName(r.node.Cluster.SHAFunction),
		r.endpoint, paramStr, r.node.Secret)
	return r.node.APIBaseURL(h.cfg.NodeProtocol, h.cfg.NodeBBBEndpoint) +
		r.endpoint + "?" + paramStr + "&checksum=" + checksum
}

// passThrough relays the request to the meeting's node and mirrors the
// upstream response.
func (h *Handlers) passThrough(r *apiRequest) {
	ctx := r.c.Request.Context()

	if r.meetingID() == "" {
		r.c.Data(http.StatusOK, bbb.ContentTypeXML, []byte(bbb.ReturnMissingMeetingID))
		return
	}
	if r.meeting == nil {
		found, err := h.lookupMeeting(ctx, r)
		if err != nil {
			h.fail(r.c, err)
			return
		}
		if !found {
			r.c.Data(http.StatusOK, bbb.ContentTypeXML, []byte(bbb.ReturnGetMeetingInfoFalse))
			return
		}
	}
	h.proxy(r)
}

// proxy performs the upstream request. POST bodies are forwarded, and a
// synthesized body forces POST regardless of the client method.
func (h *Handlers) proxy(r *apiRequest) {
	var body io.Reader
	method := r.method
	if r.body != nil {
		body = bytes.NewReader(r.body)
		method = http.MethodPost
	} else if r.method == http.MethodPost {
		body = r.c.Request.Body
	}

	req, err := http.NewRequestWithContext(r.c.Request.Context(), method, h.nodeEndpointURL(r), body)
	if err != nil {
		h.fail(r.c, err)
		return
	}
	if body != nil {
		if contentType := r.c.ContentType(); r.body == nil && contentType != "" {
			req.Header.Set("Content-Type", contentType)
		} else {
			req.Header.Set("Content-Type", "application/xml")
		}
	}

	resp, err := h.client.Do(req)
	if err != nil {
		h.logger.WithError(err).WithField("node", r.node.Hostname()).
			Warn("Node pass-through failed")
		r.c.String(http.StatusBadGateway, "Bad Gateway")
		return
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		h.fail(r.c, err)
		return
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = bbb.ContentTypeXML
	}
	r.c.Data(resp.StatusCode, contentType, payload)
}

func (h *Handlers) fail(c *gin.Context, err error) {
	h.logger.WithError(err).Error("Request failed")
	c.String(http.StatusInternalServerError, "Internal Server Error")
}
