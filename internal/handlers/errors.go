package handlers

import (
	"net/http"

	"github.com/ieraasyl/PingService/pkg/utils"
)

// NotFound renders unknown routes in the error envelope.
func NotFound(w http.ResponseWriter, r *http.Request) {
	utils.RespondWithAPIError(w, r, utils.ErrNotFound)
}

// MethodNotAllowed renders a known route hit with the wrong method.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	utils.RespondWithAPIError(w, r, utils.ErrMethodNotAllowed)
}
