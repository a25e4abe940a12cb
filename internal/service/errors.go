package service

import (
	"fmt"

	"github.com/google/uuid"
)

type ErrResourceNotFound struct {
	error
}

func NewErrResourceNotFound(id uuid.UUID, resourceType string) *ErrResourceNotFound {
	return &ErrResourceNotFound{fmt.Errorf("%s %s not found", resourceType, id)}
}

func NewErrJobNotFound(id uuid.UUID) *ErrResourceNotFound {
	return NewErrResourceNotFound(id, "job")
}

func NewErrImageNotFound(id uuid.UUID) *ErrResourceNotFound {
	return NewErrResourceNotFound(id, "image")
}

func NewErrReportNotReady(id uuid.UUID) *ErrResourceNotFound {
	return &ErrResourceNotFound{fmt.Errorf("no report available for job %s", id)}
}

type ErrInvalidRequest struct {
	error
}

func NewErrInvalidRequest(message string) *ErrInvalidRequest {
	return &ErrInvalidRequest{fmt.Errorf("bad request: %s", message)}
}

type ErrJobFinished struct {
	error
}

func NewErrJobFinished(id uuid.UUID) *ErrJobFinished {
	return &ErrJobFinished{fmt.Errorf("job %s already reached a terminal state", id)}
}

type ErrHypervisorUnavailable struct {
	error
}

func NewErrHypervisorUnavailable(cause error) *ErrHypervisorUnavailable {
	return &ErrHypervisorUnavailable{fmt.Errorf("hypervisor control interface unavailable: %v", cause)}
}

type ErrInstanceMismatch struct {
	error
}

func NewErrInstanceMismatch(imageID uuid.UUID, instanceID string) *ErrInstanceMismatch {
	return &ErrInstanceMismatch{fmt.Errorf("image %s does not belong to instance %s", imageID, instanceID)}
}
