package handlers

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/DE-IBH/b3lb/internal/bbb"
	"github.com/DE-IBH/b3lb/internal/storage"
	"github.com/DE-IBH/b3lb/internal/store"
)

// splitValidUUIDs splits a comma list and keeps only valid UUID
// elements; malformed ones contribute nothing.
func splitValidUUIDs(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if _, err := uuid.Parse(part); err == nil {
			out = append(out, part)
		}
	}
	return out
}

// getRecordings lists the secret's rendered records, optionally
// filtered by record IDs, meeting IDs and publish state.
func (h *Handlers) getRecordings(r *apiRequest) {
	if !r.secret.IsRecordEnabled() {
		r.c.Data(http.StatusOK, bbb.ContentTypeXML, []byte(bbb.ReturnNoRecordings))
		return
	}

	q := store.RecordQuery{}
	if state := r.params.Get("state"); state != "" {
		q.States = []string{state}
	}
	filtered := false
	if recordIDs := r.params.Get("recordID"); recordIDs != "" {
		filtered = true
		q.RecordIDs = splitValidUUIDs(recordIDs)
	} else if r.meetingID() != "" {
		filtered = true
		q.MeetingIDs = splitValidUUIDs(r.meetingID())
	}
	if filtered && len(q.RecordIDs) == 0 && len(q.MeetingIDs) == 0 {
		r.c.Data(http.StatusOK, bbb.ContentTypeXML, []byte(bbb.ReturnNoRecordings))
		return
	}

	records, err := h.store.ListRecords(r.c.Request.Context(), r.secret.UUID, q)
	if err != nil {
		h.fail(r.c, err)
		return
	}
	if len(records) == 0 {
		r.c.Data(http.StatusOK, bbb.ContentTypeXML, []byte(bbb.ReturnNoRecordings))
		return
	}

	infos := make([]bbb.RecordingInfo, 0, len(records))
	for _, rec := range records {
		infos = append(infos, h.recordingInfo(rec))
	}
	r.c.Data(http.StatusOK, bbb.ContentTypeXML, []byte(bbb.RenderGetRecordings(infos)))
}

func (h *Handlers) recordingInfo(rec *store.RecordWithSet) bbb.RecordingInfo {
	return bbb.RecordingInfo{
		RecordID:         rec.Record.UUID.String(),
		MeetingID:        rec.Set.MetaMeetingID,
		Name:             rec.Record.Name,
		IsBreakout:       rec.Set.MetaIsBreakout,
		GLListed:         rec.Record.GLListed,
		Published:        rec.Record.Published,
		StartTime:        rec.Set.MetaStartTime,
		EndTime:          rec.Set.MetaEndTime,
		Participants:     rec.Set.MetaParticipants,
		RawSize:          rec.Set.RawSize,
		Origin:           rec.Set.MetaOrigin,
		OriginVersion:    rec.Set.MetaOriginVersion,
		OriginServerName: rec.Set.MetaOriginServerName,
		EndCallbackURL:   rec.Set.MetaEndCallbackURL,
		MeetingName:      rec.Set.MetaMeetingName,
		VideoSize:        rec.Record.FileSize,
		VideoURL:         fmt.Sprintf("https://%s/b3lb/r/%s", h.cfg.APIBaseDomain, rec.Record.Nonce),
		VideoLengthMin:   videoLengthMinutes(rec.Set.MetaStartTime, rec.Set.MetaEndTime),
	}
}

// videoLengthMinutes converts the millisecond meta timestamps to a
// duration in minutes, 0 when either is unparsable.
func videoLengthMinutes(startTime, endTime string) int {
	start, err := strconv.ParseInt(startTime, 10, 64)
	if err != nil {
		return 0
	}
	end, err := strconv.ParseInt(endTime, 10, 64)
	if err != nil {
		return 0
	}
	return int((end - start) / 60000)
}

// publishRecordings flips the publish flag of the addressed records.
func (h *Handlers) publishRecordings(r *apiRequest) {
	recordIDs := r.params.Get("recordID")
	publish := r.params.Get("publish")
	if recordIDs == "" {
		r.c.Data(http.StatusOK, bbb.ContentTypeXML, []byte(bbb.ReturnMissingRecordID))
		return
	}
	if lower := strings.ToLower(publish); lower != "true" && lower != "false" {
		r.c.Data(http.StatusOK, bbb.ContentTypeXML, []byte(bbb.ReturnMissingRecordPublish))
		return
	}

	published := publish == "true"
	for _, id := range splitValidUUIDs(recordIDs) {
		if _, err := h.store.SetRecordPublished(r.c.Request.Context(),
			r.secret.UUID, uuid.MustParse(id), published); err != nil {
			h.fail(r.c, err)
			return
		}
	}
	r.c.Data(http.StatusOK, bbb.ContentTypeXML, []byte(bbb.ReturnRecordPublished(publish)))
}

// deleteRecordings removes the addressed records and their stored
// files.
func (h *Handlers) deleteRecordings(r *apiRequest) {
	ctx := r.c.Request.Context()

	recordIDs := r.params.Get("recordID")
	if recordIDs == "" {
		r.c.Data(http.StatusOK, bbb.ContentTypeXML, []byte(bbb.ReturnMissingRecordID))
		return
	}

	for _, id := range splitValidUUIDs(recordIDs) {
		rec, err := h.store.GetRecordForSecret(ctx, r.secret.UUID, uuid.MustParse(id))
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			h.fail(r.c, err)
			return
		}
		if rec.FileKey != "" {
			if err := h.blobs.Delete(ctx, rec.FileKey); err != nil {
				h.logger.WithError(err).WithField("record", rec.UUID).
					Warn("Failed to delete record file")
			}
		}
		if err := h.store.DeleteRecord(ctx, rec.UUID); err != nil {
			h.fail(r.c, err)
			return
		}
	}
	r.c.Data(http.StatusOK, bbb.ContentTypeXML, []byte(bbb.ReturnRecordDeleted))
}

// maxRecordRenameLength matches the records.name column.
const maxRecordRenameLength = 514

// updateRecordings renames records and re-flags their directory
// listing; other metadata is ignored.
func (h *Handlers) updateRecordings(r *apiRequest) {
	recordIDs := r.params.Get("recordID")
	if recordIDs == "" {
		r.c.Data(http.StatusOK, bbb.ContentTypeXML, []byte(bbb.ReturnMissingRecordID))
		return
	}

	name := strings.TrimSpace(r.params.Get("meta_name"))
	if len(name) > maxRecordRenameLength {
		name = name[:maxRecordRenameLength]
	}
	var glListed *bool
	switch r.params.Get("meta_gl-listed") {
	case "true":
		listed := true
		glListed = &listed
	case "false":
		listed := false
		glListed = &listed
	}

	for _, id := range splitValidUUIDs(recordIDs) {
		if err := h.store.UpdateRecordMeta(r.c.Request.Context(),
			r.secret.UUID, uuid.MustParse(id), name, glListed); err != nil {
			h.fail(r.c, err)
			return
		}
	}
	r.c.Data(http.StatusOK, bbb.ContentTypeXML, []byte(bbb.ReturnRecordUpdated))
}

// RecordDelivery serves a rendered video by its delivery nonce: a
// presigned redirect on S3 and a direct stream on local storage.
func (h *Handlers) RecordDelivery(c *gin.Context) {
	ctx := c.Request.Context()

	record, err := h.store.GetRecordByNonce(ctx, c.Param("nonce"))
	if errors.Is(err, sql.ErrNoRows) {
		c.String(http.StatusNotFound, "Not Found")
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	filename := "video"
	if ext := fileExtension(record.FileKey); ext != "" {
		filename += "." + ext
	}

	url, err := h.blobs.PresignGet(ctx, record.FileKey, filename, 10*time.Minute)
	if err == nil {
		c.Redirect(http.StatusFound, url)
		return
	}
	if !errors.Is(err, storage.ErrPresignUnsupported) {
		h.fail(c, err)
		return
	}

	reader, err := h.blobs.Open(ctx, record.FileKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.String(http.StatusNotFound, "Not Found")
			return
		}
		h.fail(c, err)
		return
	}
	defer reader.Close()

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.DataFromReader(http.StatusOK, record.FileSize, videoContentType(fileExtension(record.FileKey)), reader, nil)
}

func fileExtension(key string) string {
	if i := strings.LastIndexByte(key, '.'); i >= 0 && i < len(key)-1 {
		return key[i+1:]
	}
	return ""
}

func videoContentType(ext string) string {
	switch ext {
	case "mp4":
		return "video/mp4"
	case "webm":
		return "video/webm"
	case "mkv":
		return "video/x-matroska"
	}
	return "application/octet-stream"
}
