package recording

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/DE-IBH/b3lb/internal/logging"
	"github.com/DE-IBH/b3lb/internal/storage"
	"github.com/DE-IBH/b3lb/internal/store"
)

// renderBatchSize caps the UPLOADED sets picked up per job run.
const renderBatchSize = 10

// maxRecordNameLength matches the records.name column.
const maxRecordNameLength = 514

// Renderer turns an unpacked raw archive into one video per profile.
type Renderer interface {
	// Render reads workDir/in and must produce
	// workDir/out/video.<profile extension>.
	Render(ctx context.Context, workDir string, profile *store.RecordProfile) error
}

// ExecRenderer shells out to an external rendering tool. The tool
// receives the profile's backend name, the work directory and the
// output extension as arguments.
type ExecRenderer struct {
	Command string
}

func (r *ExecRenderer) Render(ctx context.Context, workDir string, profile *store.RecordProfile) error {
	cmd := exec.CommandContext(ctx, r.Command, profile.BackendProfile, workDir, profile.FileExtension)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("render %s: %w: %s", profile.Name, err, out)
	}
	return nil
}

// Pipeline drives record sets from UPLOADED to RENDERED and performs
// retention cleanup.
type Pipeline struct {
	store    *store.Store
	blobs    storage.Storage
	renderer Renderer
	client   *http.Client
	scratch  string
	logger   logging.Logger
}

func NewPipeline(st *store.Store, blobs storage.Storage, renderer Renderer, scratch string, logger logging.Logger) *Pipeline {
	if scratch == "" {
		scratch = os.TempDir()
	}
	return &Pipeline{
		store:    st,
		blobs:    blobs,
		renderer: renderer,
		client:   &http.Client{Timeout: 10 * time.Second},
		scratch:  scratch,
		logger:   logger,
	}
}

// RenderPending renders the oldest UPLOADED record sets.
func (p *Pipeline) RenderPending(ctx context.Context) {
	sets, err := p.store.ListRecordSetsByStatus(ctx, store.RecordSetUploaded, renderBatchSize)
	if err != nil {
		p.logger.WithError(err).Error("Failed to list uploaded record sets")
		return
	}
	for _, rs := range sets {
		if err := p.RenderRecordSet(ctx, rs); err != nil {
			p.logger.WithError(err).WithField("record_set", rs.UUID).
				Warn("Failed to render record set")
		}
	}
}

// RenderRecordSet renders one set with every profile of its secret and
// moves it to RENDERED. An empty raw archive aborts without a state
// change so a later upload can still complete the set.
func (p *Pipeline) RenderRecordSet(ctx context.Context, rs *store.RecordSet) error {
	rawSize, err := p.blobs.Size(ctx, RawKey(rs))
	if err != nil {
		return err
	}
	if rawSize == 0 {
		p.logger.WithField("record_set", rs.UUID).Warn("Raw archive empty or missing")
		return nil
	}

	workDir, err := os.MkdirTemp(p.scratch, "render-")
	if err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)
	for _, sub := range []string{"in", "out"} {
		if err := os.Mkdir(filepath.Join(workDir, sub), 0o755); err != nil {
			return fmt.Errorf("create work dir: %w", err)
		}
	}

	if err := p.fetchRawArchive(ctx, rs, workDir); err != nil {
		return err
	}
	if out, err := exec.CommandContext(ctx, "tar", "-xf",
		filepath.Join(workDir, "raw.tar"), "-C", filepath.Join(workDir, "in")).CombinedOutput(); err != nil {
		return fmt.Errorf("unpack raw archive: %w: %s", err, out)
	}

	profiles, err := p.store.ListRecordProfilesForSecret(ctx, rs.SecretUUID)
	if err != nil {
		return err
	}
	for _, profile := range profiles {
		if err := p.renderProfile(ctx, rs, profile, workDir); err != nil {
			return err
		}
	}

	if err := p.store.SetRecordSetStatus(ctx, rs.UUID, store.RecordSetRendered); err != nil {
		return err
	}
	p.notifyRecordingReady(rs)
	return nil
}

func (p *Pipeline) fetchRawArchive(ctx context.Context, rs *store.RecordSet, workDir string) error {
	src, err := p.blobs.Open(ctx, RawKey(rs))
	if err != nil {
		return fmt.Errorf("fetch raw archive: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(filepath.Join(workDir, "raw.tar"))
	if err != nil {
		return fmt.Errorf("fetch raw archive: %w", err)
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("fetch raw archive: %w", err)
	}
	return nil
}

func (p *Pipeline) renderProfile(ctx context.Context, rs *store.RecordSet, profile *store.RecordProfile, workDir string) error {
	if err := p.renderer.Render(ctx, workDir, profile); err != nil {
		return err
	}

	videoPath := filepath.Join(workDir, "out", "video."+profile.FileExtension)
	video, err := os.Open(videoPath)
	if err != nil {
		return fmt.Errorf("render %s: no video output: %w", profile.Name, err)
	}
	defer video.Close()
	info, err := video.Stat()
	if err != nil {
		return fmt.Errorf("render %s: %w", profile.Name, err)
	}

	key := RecordKey(rs, profile)
	if err := p.blobs.Save(ctx, key, video); err != nil {
		return fmt.Errorf("store rendered video: %w", err)
	}

	return p.store.UpsertRecord(ctx, &store.Record{
		RecordSetUUID: rs.UUID,
		ProfileUUID:   profile.UUID,
		FileKey:       key,
		FileSize:      info.Size(),
		Name:          recordName(rs, profile),
		GLListed:      rs.MetaGLListed,
		Published:     true,
	})
}

func recordName(rs *store.RecordSet, profile *store.RecordProfile) string {
	name := rs.MetaMeetingName + ", " + profile.Description
	if len(name) > maxRecordNameLength {
		name = name[:maxRecordNameLength]
	}
	return name
}

// notifyRecordingReady pings the origin callback once the rendered
// videos are available. Failures are logged and dropped.
func (p *Pipeline) notifyRecordingReady(rs *store.RecordSet) {
	if rs.RecordingReadyOriginURL == "" {
		return
	}
	resp, err := p.client.Get(rs.RecordingReadyOriginURL)
	if err != nil {
		p.logger.WithError(err).WithField("record_set", rs.UUID).
			Warn("Recording ready callback failed")
		return
	}
	resp.Body.Close()
}
