package v1alpha1

import (
	"net/http"

	"github.com/go-chi/render"
)

func (h *ServiceHandler) ListImages(w http.ResponseWriter, r *http.Request) {
	images, err := h.imageSrv.ListImages(r.Context(), r.URL.Query().Get("instanceId"))
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, images)
}

func (h *ServiceHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		renderError(w, r, err)
		return
	}

	image, err := h.imageSrv.GetImage(r.Context(), id)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, image)
}

func (h *ServiceHandler) DeleteImage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		renderError(w, r, err)
		return
	}

	if err := h.imageSrv.DeleteImage(r.Context(), id); err != nil {
		renderError(w, r, err)
		return
	}
	render.NoContent(w, r)
}
