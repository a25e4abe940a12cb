package service

import (
	"context"
	"fmt"

	api "github.com/virtforensics/memory-inspector/api/v1alpha1"
	"github.com/virtforensics/memory-inspector/pkg/log"
)

// InstanceSource lists guests known to the inventory service.
type InstanceSource interface {
	List(ctx context.Context) (api.InstanceList, error)
}

type InstanceService struct {
	source InstanceSource
	logger *log.StructuredLogger
}

func NewInstanceService(source InstanceSource) *InstanceService {
	return &InstanceService{source: source, logger: log.NewDebugLogger("instance_service")}
}

func (s *InstanceService) ListInstances(ctx context.Context) (api.InstanceList, error) {
	tracer := s.logger.WithContext(ctx).Operation("list_instances").Build()

	if s.source == nil {
		err := NewErrInvalidRequest("no inventory service configured")
		tracer.Error(err).Log()
		return nil, err
	}

	instances, err := s.source.List(ctx)
	if err != nil {
		tracer.Error(err).Log()
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}

	tracer.Success().WithParam("count", len(instances)).Log()
	return instances, nil
}
