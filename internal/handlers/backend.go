package handlers

import (
	"database/sql"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/DE-IBH/b3lb/internal/recording"
	"github.com/DE-IBH/b3lb/internal/store"
)

// EndMeetingCallback is the node-facing end hook every meeting is
// created with. It relays the tenant's original callback, closes the
// record set when no recording marks exist and drops the meeting row.
// The response is always 204 so nodes never retry.
func (h *Handlers) EndMeetingCallback(c *gin.Context) {
	ctx := c.Request.Context()

	nonce := c.Query("nonce")
	meetingID := c.Query("meetingID")
	if nonce == "" || meetingID == "" {
		c.Status(http.StatusNoContent)
		return
	}

	meeting, err := h.store.GetMeetingByNonce(ctx, meetingID, nonce)
	if errors.Is(err, sql.ErrNoRows) {
		c.Status(http.StatusNoContent)
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	recordingMarks := c.Query("recordingmarks")
	if recordingMarks != "true" && recordingMarks != "false" {
		recordingMarks = "false"
	}

	if meeting.EndCallbackURL != "" {
		go h.relayEndCallback(meeting.EndCallbackURL, meetingID, recordingMarks)
	}

	if recordingMarks == "false" {
		if rs, err := h.store.GetRecordSetByNonce(ctx, meeting.Nonce); err == nil {
			// The retention sweep removes the row and any stored blobs.
			if err := h.store.SetRecordSetStatus(ctx, rs.UUID, store.RecordSetDeleting); err != nil {
				h.logger.WithError(err).WithField("record_set", rs.UUID).
					Warn("Failed to discard record set")
			}
		} else if !errors.Is(err, sql.ErrNoRows) {
			h.logger.WithError(err).Warn("Failed to look up record set")
		}
	}

	if err := h.store.DeleteMeeting(ctx, meeting.ID, meeting.SecretUUID); err != nil {
		h.logger.WithError(err).WithField("meeting", meeting.ID).
			Warn("Failed to delete ended meeting")
	}
	c.Status(http.StatusNoContent)
}

// relayEndCallback fires the tenant's own end callback, fire and
// forget.
func (h *Handlers) relayEndCallback(callbackURL, meetingID, recordingMarks string) {
	suffix := "meetingID=" + meetingID + "&recordingmarks=" + recordingMarks
	if strings.Contains(callbackURL, "?") {
		callbackURL += "&" + suffix
	} else {
		callbackURL += "?" + suffix
	}
	resp, err := h.client.Get(callbackURL)
	if err != nil {
		h.logger.WithError(err).WithField("url", callbackURL).
			Warn("End callback relay failed")
		return
	}
	resp.Body.Close()
}

// RecordUpload receives a node's raw recording archive plus its
// metadata.xml, authenticated by the record set nonce.
func (h *Handlers) RecordUpload(c *gin.Context) {
	ctx := c.Request.Context()

	nonce := c.Query("nonce")
	if nonce == "" {
		c.Status(http.StatusBadRequest)
		return
	}

	rs, err := h.store.GetRecordSetByNonce(ctx, nonce)
	if errors.Is(err, sql.ErrNoRows) {
		c.Status(http.StatusNotFound)
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}
	metaHeader, err := c.FormFile("meta")
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}

	metaFile, err := metaHeader.Open()
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}
	metaRaw, err := io.ReadAll(metaFile)
	metaFile.Close()
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}
	meta, err := recording.ParseMeta(metaRaw)
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}

	if meta.IsBreakout {
		// Breakout room recordings are not supported; drop the set.
		if err := h.store.SetRecordSetStatus(ctx, rs.UUID, store.RecordSetDeleting); err != nil {
			h.logger.WithError(err).WithField("record_set", rs.UUID).
				Warn("Failed to discard breakout record set")
		}
		c.Status(http.StatusForbidden)
		return
	}

	archive, err := fileHeader.Open()
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}
	defer archive.Close()
	if err := h.blobs.Save(ctx, recording.RawKey(rs), archive); err != nil {
		h.logger.WithError(err).WithField("record_set", rs.UUID).
			Error("Failed to store raw recording archive")
		c.String(http.StatusServiceUnavailable, "Error during file save")
		return
	}

	meta.Apply(rs)
	rs.RawSize = fileHeader.Size
	if err := h.store.UpdateRecordSetUpload(ctx, rs); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
