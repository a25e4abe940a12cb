// Package v1alpha1 exposes the job pipeline over HTTP.
package v1alpha1

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/virtforensics/memory-inspector/internal/service"
	"github.com/virtforensics/memory-inspector/pkg/requestid"
)

type ServiceHandler struct {
	jobSrv      *service.JobService
	imageSrv    *service.ImageService
	instanceSrv *service.InstanceService
}

func NewServiceHandler(jobSrv *service.JobService, imageSrv *service.ImageService, instanceSrv *service.InstanceService) *ServiceHandler {
	return &ServiceHandler{
		jobSrv:      jobSrv,
		imageSrv:    imageSrv,
		instanceSrv: instanceSrv,
	}
}

// Routes mounts all v1alpha1 endpoints.
func (h *ServiceHandler) Routes() chi.Router {
	router := chi.NewRouter()

	router.Route("/jobs", func(r chi.Router) {
		r.Post("/", h.CreateJob)
		r.Get("/", h.ListJobs)
		r.Get("/{id}", h.GetJob)
		r.Delete("/{id}", h.DeleteJob)
		r.Post("/{id}/cancel", h.CancelJob)
		r.Get("/{id}/report", h.GetJobReport)
	})
	router.Route("/images", func(r chi.Router) {
		r.Get("/", h.ListImages)
		r.Get("/{id}", h.GetImage)
		r.Delete("/{id}", h.DeleteImage)
	})
	router.Get("/instances", h.ListInstances)

	return router
}

type ErrorResponse struct {
	Message   string  `json:"message"`
	RequestId *string `json:"requestId,omitempty"`
}

func renderError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch err.(type) {
	case *service.ErrResourceNotFound:
		status = http.StatusNotFound
	case *service.ErrInvalidRequest:
		status = http.StatusBadRequest
	case *service.ErrJobFinished, *service.ErrInstanceMismatch:
		status = http.StatusConflict
	case *service.ErrHypervisorUnavailable:
		status = http.StatusServiceUnavailable
	}

	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Message: err.Error(), RequestId: requestid.FromContextPtr(r.Context())})
}
