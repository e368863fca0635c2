package server

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/vango-dev/pagekeeper/internal/errors"
	"github.com/vango-dev/pagekeeper/pkg/pages"
	"github.com/vango-dev/pagekeeper/pkg/session"
)

// errInvalidBody is returned for undecodable request bodies.
var errInvalidBody = stderrors.New("server: invalid request body")

// apiError maps an error onto its coded API form.
func apiError(err error) *errors.KeeperError {
	var ke *errors.KeeperError
	if stderrors.As(err, &ke) {
		return ke
	}

	var code string
	switch {
	case stderrors.Is(err, pages.ErrPageNotFound):
		code = "P001"
	case stderrors.Is(err, pages.ErrIdentityCollision):
		code = "P002"
	case stderrors.Is(err, pages.ErrRefreshInProgress):
		code = "P003"
	case stderrors.Is(err, session.ErrSessionNotFound):
		code = "P010"
	case stderrors.Is(err, pages.ErrInvalidTarget),
		stderrors.Is(err, errInvalidBody):
		code = "P011"
	case stderrors.Is(err, session.ErrManagerStopped):
		code = "P012"
	default:
		code = "P099"
	}
	return errors.New(code).Wrap(err)
}

// writeError writes err as a JSON error body with its mapped status.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	ke := apiError(err)
	status := ke.HTTPStatus()
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"code", ke.Code,
			"error", err)
	}
	writeJSON(w, status, ke.Body())
}

// writeJSON writes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
