package httpmiddleware

import (
	"net/http"

	"github.com/boypt/dlbridge/common"
)

// Liveness answers /healthz before any other handler, auth included.
func Liveness(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			w.WriteHeader(http.StatusOK)
			_, err := w.Write([]byte("OK"))
			common.HandleError(err)
			return
		}
		h.ServeHTTP(w, r)
	})
}
