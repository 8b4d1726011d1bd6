// Package job runs refresh invocations asynchronously, one goroutine per
// job. Per-owner serialization is the refresh service's own concern; the
// runner only tracks lifecycle state.
package job

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/entforge/entforge/internal/clock"
	jobdomain "github.com/entforge/entforge/internal/job/domain"
	obsmetrics "github.com/entforge/entforge/internal/observability/metrics"
	refreshdomain "github.com/entforge/entforge/internal/refresh/domain"
)

type Runner struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock

	refreshSvc refreshdomain.Service

	wg sync.WaitGroup
}

type RunnerParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock

	RefreshSvc refreshdomain.Service
}

func NewRunner(p RunnerParam) jobdomain.Runner {
	return &Runner{
		db:         p.DB,
		log:        p.Log.Named("job.runner"),
		genID:      p.GenID,
		clock:      p.Clock,
		refreshSvc: p.RefreshSvc,
	}
}

// Submit records the job in state CREATED and starts it on a goroutine. The
// job context is detached from the request context: an HTTP client going
// away must not abort a running refresh.
func (r *Runner) Submit(ctx context.Context, ownerKey string, force bool) (jobdomain.RefreshJob, error) {
	job := jobdomain.RefreshJob{
		ID:        r.genID.Generate(),
		OwnerKey:  strings.TrimSpace(ownerKey),
		Force:     force,
		State:     jobdomain.StateCreated,
		CreatedAt: r.clock.Now(),
	}
	if err := r.db.WithContext(ctx).Create(&job).Error; err != nil {
		return jobdomain.RefreshJob{}, err
	}
	obsmetrics.Refresh().IncJobState(string(jobdomain.StateCreated))

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(job)
	}()

	return job, nil
}

func (r *Runner) run(job jobdomain.RefreshJob) {
	ctx := context.Background()

	started := r.clock.Now()
	if err := r.transition(ctx, job.ID, map[string]any{
		"state":      jobdomain.StateRunning,
		"started_at": started,
	}); err != nil {
		r.log.Error("job transition failed", zap.Int64("job_id", int64(job.ID)), zap.Error(err))
		return
	}
	obsmetrics.Refresh().IncJobState(string(jobdomain.StateRunning))

	result, err := r.refreshSvc.Refresh(ctx, job.OwnerKey, job.Force)
	finished := r.clock.Now()

	if err != nil {
		if terr := r.transition(ctx, job.ID, map[string]any{
			"state":       jobdomain.StateFailed,
			"error":       err.Error(),
			"finished_at": finished,
		}); terr != nil {
			r.log.Error("job transition failed", zap.Int64("job_id", int64(job.ID)), zap.Error(terr))
		}
		obsmetrics.Refresh().IncJobState(string(jobdomain.StateFailed))
		r.log.Warn("refresh job failed",
			zap.Int64("job_id", int64(job.ID)),
			zap.String("owner_key", job.OwnerKey),
			zap.Error(err),
		)
		return
	}

	payload, err := resultPayload(result)
	if err != nil {
		r.log.Error("job result encode failed", zap.Int64("job_id", int64(job.ID)), zap.Error(err))
		payload = datatypes.JSONMap{}
	}

	if terr := r.transition(ctx, job.ID, map[string]any{
		"state":       jobdomain.StateFinished,
		"result":      payload,
		"finished_at": finished,
	}); terr != nil {
		r.log.Error("job transition failed", zap.Int64("job_id", int64(job.ID)), zap.Error(terr))
		return
	}
	obsmetrics.Refresh().IncJobState(string(jobdomain.StateFinished))
}

func (r *Runner) transition(ctx context.Context, id snowflake.ID, updates map[string]any) error {
	return r.db.WithContext(ctx).Model(&jobdomain.RefreshJob{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *Runner) Get(ctx context.Context, id string) (jobdomain.RefreshJob, error) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return jobdomain.RefreshJob{}, jobdomain.ErrJobNotFound
	}

	var job jobdomain.RefreshJob
	if err := r.db.WithContext(ctx).Where("id = ?", parsed).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jobdomain.RefreshJob{}, jobdomain.ErrJobNotFound
		}
		return jobdomain.RefreshJob{}, err
	}
	return job, nil
}

// Wait blocks until all submitted jobs have finished running.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func resultPayload(result refreshdomain.RefreshResult) (datatypes.JSONMap, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	var payload datatypes.JSONMap
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}
