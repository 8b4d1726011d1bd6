// Package domain defines asynchronous refresh jobs. A job wraps exactly one
// refresh invocation and carries its structured result, so the synchronous
// and asynchronous paths report identical outcomes.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

var (
	ErrJobNotFound = errors.New("job_not_found")
)

// State is the refresh job lifecycle.
type State string

const (
	StateCreated  State = "CREATED"
	StateRunning  State = "RUNNING"
	StateFinished State = "FINISHED"
	StateFailed   State = "FAILED"
)

// RefreshJob records one asynchronous refresh run.
type RefreshJob struct {
	ID         snowflake.ID      `gorm:"primaryKey" json:"id"`
	OwnerKey   string            `gorm:"type:text;not null;index" json:"owner_key"`
	Force      bool              `gorm:"not null;default:false" json:"force"`
	State      State             `gorm:"type:text;not null" json:"state"`
	Result     datatypes.JSONMap `gorm:"type:jsonb" json:"result,omitempty"`
	Error      string            `gorm:"type:text" json:"error,omitempty"`
	CreatedAt  time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	StartedAt  *time.Time        `json:"started_at,omitempty"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
}

// TableName sets the database table name.
func (RefreshJob) TableName() string { return "refresh_jobs" }

// Runner schedules refresh jobs and reports their status.
type Runner interface {
	Submit(ctx context.Context, ownerKey string, force bool) (RefreshJob, error)
	Get(ctx context.Context, id string) (RefreshJob, error)
	// Wait blocks until no submitted job is still running. Test hook.
	Wait()
}
