package store

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	api "github.com/virtforensics/memory-inspector/api/v1alpha1"
)

type BaseQuerier struct {
	QueryFn []func(tx *gorm.DB) *gorm.DB
}

type JobQueryFilter BaseQuerier

func NewJobQueryFilter() *JobQueryFilter {
	return &JobQueryFilter{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}
}

func (qf *JobQueryFilter) ByInstanceID(instanceID string) *JobQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("instance_id = ?", instanceID)
	})
	return qf
}

func (qf *JobQueryFilter) ByStatus(status api.JobStatus) *JobQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("status = ?", string(status))
	})
	return qf
}

func (qf *JobQueryFilter) ByImageID(imageID uuid.UUID) *JobQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("image_id = ?", imageID)
	})
	return qf
}

// ByNonTerminalStatus selects jobs that were still running when the service
// last stopped. Used by startup recovery.
func (qf *JobQueryFilter) ByNonTerminalStatus() *JobQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("status NOT IN ?", []string{
			string(api.JobStatusCompleted),
			string(api.JobStatusFailed),
			string(api.JobStatusCancelled),
		})
	})
	return qf
}

type ImageQueryFilter BaseQuerier

func NewImageQueryFilter() *ImageQueryFilter {
	return &ImageQueryFilter{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}
}

func (qf *ImageQueryFilter) ByInstanceID(instanceID string) *ImageQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("instance_id = ?", instanceID)
	})
	return qf
}

func (qf *ImageQueryFilter) OlderThan(t time.Time) *ImageQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("created_at < ?", t)
	})
	return qf
}
