package service

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"

	api "github.com/virtforensics/memory-inspector/api/v1alpha1"
	"github.com/virtforensics/memory-inspector/internal/store"
	"github.com/virtforensics/memory-inspector/pkg/log"
)

type ImageService struct {
	store  store.Store
	logger *log.StructuredLogger
}

func NewImageService(s store.Store) *ImageService {
	return &ImageService{store: s, logger: log.NewDebugLogger("image_service")}
}

func (s *ImageService) ListImages(ctx context.Context, instanceID string) (api.ImageList, error) {
	tracer := s.logger.WithContext(ctx).Operation("list_images").Build()

	filter := store.NewImageQueryFilter()
	if instanceID != "" {
		filter = filter.ByInstanceID(instanceID)
	}
	records, err := s.store.Image().List(ctx, filter)
	if err != nil {
		tracer.Error(err).Log()
		return nil, fmt.Errorf("failed to list images: %w", err)
	}

	tracer.Success().WithParam("count", len(records)).Log()
	return records.ToApiResource(), nil
}

func (s *ImageService) GetImage(ctx context.Context, id uuid.UUID) (*api.Image, error) {
	tracer := s.logger.WithContext(ctx).Operation("get_image").Build()

	record, err := s.store.Image().Get(ctx, id)
	if err != nil {
		tracer.Error(err).Log()
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrImageNotFound(id)
		}
		return nil, fmt.Errorf("failed to get image: %w", err)
	}

	image := record.ToApiResource()
	tracer.Success().WithParam("image_id", id).Log()
	return &image, nil
}

// DeleteImage removes the image row and its backing file. A missing file is
// not an error, retention sweeps may have removed it already.
func (s *ImageService) DeleteImage(ctx context.Context, id uuid.UUID) error {
	tracer := s.logger.WithContext(ctx).Operation("delete_image").Build()

	record, err := s.store.Image().Get(ctx, id)
	if err != nil {
		tracer.Error(err).Log()
		if errors.Is(err, store.ErrRecordNotFound) {
			return NewErrImageNotFound(id)
		}
		return fmt.Errorf("failed to get image: %w", err)
	}

	if err := os.Remove(record.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		tracer.Error(err).Log()
		return fmt.Errorf("failed to remove image file: %w", err)
	}
	if err := s.store.Image().Delete(ctx, id); err != nil {
		tracer.Error(err).Log()
		return fmt.Errorf("failed to delete image: %w", err)
	}

	tracer.Success().WithParam("image_id", id).Log()
	return nil
}
