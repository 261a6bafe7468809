package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/juju/errors"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, struct {
		Detail string `json:"detail"`
	}{Detail: detail})
}

// writeError maps err to a status code. Errors without a known kind are
// logged and reported without their message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Errorf("request %s %s %s: %s", requestID(r.Context()), r.Method, r.URL.Path, errors.ErrorStack(err))
		writeDetail(w, status, http.StatusText(status))
		return
	}
	logger.Debugf("request %s %s %s: %v", requestID(r.Context()), r.Method, r.URL.Path, err)
	writeDetail(w, status, err.Error())
}

func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errors.NotFound):
		return http.StatusNotFound
	case errors.Is(err, errors.BadRequest):
		return http.StatusBadRequest
	case errors.Is(err, errors.NotValid):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeCreated answers 201 with the absolute URL of the new resource.
func writeCreated(w http.ResponseWriter, r *http.Request, path string, payload any) {
	w.Header().Set("Location", baseURL(r)+path)
	writeJSON(w, http.StatusCreated, payload)
}

func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = strings.TrimSpace(strings.Split(proto, ",")[0])
	}
	return fmt.Sprintf("%s://%s", scheme, r.Host)
}
