// Package handler provides the HTTP surface of Workroom: a chi router,
// bearer-token middleware, and JSON endpoint handlers.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/prn-tf/workroom/internal/domain"
	"github.com/prn-tf/workroom/internal/service"
)

// errorBody is the JSON envelope for error responses.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

// unauthorizedDetail is the single body used for every authentication
// failure, so responses never reveal which check failed.
const unauthorizedDetail = "could not validate credentials"

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeUnauthorized sends the uniform 401 response.
func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeJSON(w, http.StatusUnauthorized, errorBody{
		Error: errorDetail{Kind: "unauthorized", Detail: unauthorizedDetail},
	})
}

// writeError maps a service/domain error to an HTTP response.
func writeError(w http.ResponseWriter, logger zerolog.Logger, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidCredentials),
		errors.Is(err, domain.ErrUserDisabled),
		errors.Is(err, domain.ErrInvalidToken),
		errors.Is(err, domain.ErrUserNotFound):
		writeUnauthorized(w)

	case errors.Is(err, domain.ErrUserAlreadyExists),
		errors.Is(err, domain.ErrProjectAlreadyExists):
		writeJSON(w, http.StatusConflict, errorBody{
			Error: errorDetail{Kind: "conflict", Detail: err.Error()},
		})

	case errors.Is(err, domain.ErrProjectNotFound),
		errors.Is(err, domain.ErrFileNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{
			Error: errorDetail{Kind: "not_found", Detail: err.Error()},
		})

	case errors.Is(err, domain.ErrInvalidUsername),
		errors.Is(err, domain.ErrInvalidPassword),
		errors.Is(err, domain.ErrInvalidProjectName),
		errors.Is(err, domain.ErrInvalidFileName),
		errors.Is(err, domain.ErrInvalidFolder),
		errors.Is(err, service.ErrInvalidEmail),
		errors.Is(err, service.ErrEmptyMessage):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{
			Error: errorDetail{Kind: "validation", Detail: err.Error()},
		})

	case errors.Is(err, domain.ErrInvalidAPIKey):
		writeJSON(w, http.StatusBadRequest, errorBody{
			Error: errorDetail{Kind: "invalid_api_key", Detail: err.Error()},
		})

	case errors.Is(err, domain.ErrExternalService):
		writeJSON(w, http.StatusServiceUnavailable, errorBody{
			Error: errorDetail{Kind: "upstream_unavailable", Detail: domain.ErrExternalService.Error()},
		})

	default:
		logger.Error().Err(err).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, errorBody{
			Error: errorDetail{Kind: "internal", Detail: "internal server error"},
		})
	}
}

// writeBadRequest reports an unparseable request body.
func writeBadRequest(w http.ResponseWriter, detail string) {
	writeJSON(w, http.StatusBadRequest, errorBody{
		Error: errorDetail{Kind: "bad_request", Detail: detail},
	})
}
