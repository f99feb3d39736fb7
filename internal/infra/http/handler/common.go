// Package handler contains the HTTP request handlers.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/scanforge/api/pkg/apierror"
	"github.com/scanforge/api/pkg/domain/shared"
	"github.com/scanforge/api/pkg/pagination"
	"github.com/scanforge/api/pkg/validator"
)

// respondJSON writes v as a JSON response with the given status.
func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// decodeJSON decodes the request body into v.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apierror.BadRequest("invalid JSON body")
	}
	return nil
}

// respondError maps domain and validation errors onto HTTP responses.
func respondError(w http.ResponseWriter, err error) {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		apierror.New(http.StatusRequestEntityTooLarge, apierror.CodeBadRequest, "request body too large").WriteJSON(w)
		return
	}

	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		apierror.ValidationFailed("validation failed", validationErrs).WriteJSON(w)
		return
	}

	switch {
	case shared.IsNotFound(err):
		apierror.NotFound("resource").WriteJSON(w)
	case shared.IsValidation(err):
		apierror.BadRequest(err.Error()).WriteJSON(w)
	case shared.IsConflict(err):
		apierror.Conflict(err.Error()).WriteJSON(w)
	default:
		apierror.FromError(err).WriteJSON(w)
	}
}

// parseIDParam parses the {id} path parameter.
func parseIDParam(raw string) (shared.ID, error) {
	id, err := shared.IDFromString(raw)
	if err != nil {
		return shared.ID{}, apierror.BadRequest("invalid scan id")
	}
	return id, nil
}

// paginationFromQuery reads page/per_page query parameters.
func paginationFromQuery(r *http.Request) pagination.Pagination {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	return pagination.New(page, perPage)
}
