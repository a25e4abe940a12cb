package v1alpha1

import (
	"errors"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	api "github.com/virtforensics/memory-inspector/api/v1alpha1"
	"github.com/virtforensics/memory-inspector/internal/service"
)

func (h *ServiceHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var request api.SubmitJobRequest
	if err := render.DecodeJSON(r.Body, &request); err != nil {
		renderError(w, r, service.NewErrInvalidRequest("malformed request body"))
		return
	}

	job, err := h.jobSrv.CreateJob(r.Context(), request)
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, job)
}

func (h *ServiceHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	filter := service.JobFilter{
		InstanceID: r.URL.Query().Get("instanceId"),
		Status:     r.URL.Query().Get("status"),
	}

	jobs, err := h.jobSrv.ListJobs(r.Context(), filter)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, jobs)
}

func (h *ServiceHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		renderError(w, r, err)
		return
	}

	job, err := h.jobSrv.GetJob(r.Context(), id)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, job)
}

func (h *ServiceHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		renderError(w, r, err)
		return
	}

	job, err := h.jobSrv.CancelJob(r.Context(), id)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, job)
}

func (h *ServiceHandler) DeleteJob(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		renderError(w, r, err)
		return
	}

	if err := h.jobSrv.DeleteJob(r.Context(), id); err != nil {
		renderError(w, r, err)
		return
	}
	render.NoContent(w, r)
}

// GetJobReport streams the rendered HTML report of a completed job.
func (h *ServiceHandler) GetJobReport(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		renderError(w, r, err)
		return
	}

	job, err := h.jobSrv.GetJob(r.Context(), id)
	if err != nil {
		renderError(w, r, err)
		return
	}
	if job.ReportPath == "" {
		renderError(w, r, service.NewErrReportNotReady(id))
		return
	}
	if _, err := os.Stat(job.ReportPath); errors.Is(err, os.ErrNotExist) {
		renderError(w, r, service.NewErrReportNotReady(id))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	http.ServeFile(w, r, job.ReportPath)
}

func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, service.NewErrInvalidRequest("id must be a valid uuid")
	}
	return id, nil
}
