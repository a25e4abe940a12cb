package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/virtforensics/memory-inspector/internal/store/model"
)

type Image interface {
	List(ctx context.Context, filter *ImageQueryFilter) (model.ImageList, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Image, error)
	Create(ctx context.Context, image model.Image) (*model.Image, error)
	Delete(ctx context.Context, id uuid.UUID) error
	InitialMigration(ctx context.Context) error
}

type ImageStore struct {
	db *gorm.DB
}

// Make sure we conform to Image interface
var _ Image = (*ImageStore)(nil)

func NewImageStore(db *gorm.DB) Image {
	return &ImageStore{db: db}
}

func (s *ImageStore) InitialMigration(ctx context.Context) error {
	return s.getDB(ctx).AutoMigrate(&model.Image{})
}

func (s *ImageStore) List(ctx context.Context, filter *ImageQueryFilter) (model.ImageList, error) {
	var images model.ImageList
	tx := s.getDB(ctx).Model(&model.Image{}).Order("created_at DESC")
	if filter != nil {
		for _, fn := range filter.QueryFn {
			tx = fn(tx)
		}
	}
	if result := tx.Find(&images); result.Error != nil {
		return nil, result.Error
	}
	return images, nil
}

func (s *ImageStore) Get(ctx context.Context, id uuid.UUID) (*model.Image, error) {
	image := model.NewImageFromId(id)
	if result := s.getDB(ctx).First(&image); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, result.Error
	}
	return image, nil
}

func (s *ImageStore) Create(ctx context.Context, image model.Image) (*model.Image, error) {
	if result := s.getDB(ctx).Create(&image); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateKey
		}
		return nil, result.Error
	}
	return &image, nil
}

func (s *ImageStore) Delete(ctx context.Context, id uuid.UUID) error {
	image := model.NewImageFromId(id)
	result := s.getDB(ctx).Unscoped().Delete(&image)
	if result.Error != nil && !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return result.Error
	}
	return nil
}

func (s *ImageStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return s.db
}
