package v1alpha1

import (
	"net/http"

	"github.com/go-chi/render"
)

func (h *ServiceHandler) ListInstances(w http.ResponseWriter, r *http.Request) {
	instances, err := h.instanceSrv.ListInstances(r.Context())
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, instances)
}
