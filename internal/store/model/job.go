package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	api "github.com/virtforensics/memory-inspector/api/v1alpha1"
)

type Job struct {
	gorm.Model
	ID          uuid.UUID `gorm:"primaryKey;"`
	InstanceID  string    `gorm:"index;not null"`
	Status      string    `gorm:"index;not null"`
	Progress    int       `gorm:"not null;default:0"`
	CurrentStep string
	Error       string
	Tools       *JSONField[[]string]       `gorm:"type:jsonb"`
	Results     *JSONField[api.ResultSet]  `gorm:"type:jsonb"`
	ImageID     *uuid.UUID                 `gorm:"index"`
	Image       *Image                     `gorm:"foreignKey:ImageID"`
	ReportPath  string
	StartedAt   *time.Time
	FinishedAt  *time.Time
}

type JobList []Job

func NewJobFromId(id uuid.UUID) *Job {
	return &Job{ID: id}
}

func (j Job) String() string {
	val, _ := json.Marshal(j)
	return string(val)
}
