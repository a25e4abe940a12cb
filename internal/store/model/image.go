package model

import (
	"encoding/json"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Image struct {
	gorm.Model
	ID         uuid.UUID `gorm:"primaryKey;"`
	InstanceID string    `gorm:"index;not null"`
	Domain     string    `gorm:"not null"`
	Path       string    `gorm:"not null"`
	Format     string    `gorm:"not null;default:raw"`
	SizeBytes  int64
	Sha256     string `gorm:"index"`
}

type ImageList []Image

func NewImageFromId(id uuid.UUID) *Image {
	return &Image{ID: id}
}

func (i Image) String() string {
	val, _ := json.Marshal(i)
	return string(val)
}
