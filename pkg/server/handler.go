package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	kerrors "github.com/vango-dev/pagekeeper/internal/errors"
	"github.com/vango-dev/pagekeeper/pkg/middleware"
	"github.com/vango-dev/pagekeeper/pkg/pages"
	"github.com/vango-dev/pagekeeper/pkg/route"
	"github.com/vango-dev/pagekeeper/pkg/routepath"
	"github.com/vango-dev/pagekeeper/pkg/session"
)

// navigateRequest is the body of POST /navigate.
type navigateRequest struct {
	FullPath string         `json:"fullPath"`
	Path     string         `json:"path,omitempty"`
	Name     string         `json:"name,omitempty"`
	Meta     map[string]any `json:"meta,omitempty"`
}

// closeResponse tells the client where to navigate after a close.
type closeResponse struct {
	Navigate string `json:"navigate,omitempty"`
}

// pageView is a page as the API shows it, meta included.
type pageView struct {
	pages.Page
	Meta map[string]any `json:"meta,omitempty"`
}

func newPageView(p pages.Page) pageView {
	v := pageView{Page: p}
	if m := p.Meta.Map(); len(m) > 0 {
		v.Meta = m
	}
	return v
}

// stateView is the body of GET /state.
type stateView struct {
	Active     string     `json:"active,omitempty"`
	Pages      []pageView `json:"pages"`
	Membership []string   `json:"membership"`
}

func newStateView(st pages.State) stateView {
	v := stateView{
		Active:     st.Active,
		Pages:      make([]pageView, 0, len(st.Pages)),
		Membership: st.Membership,
	}
	if v.Membership == nil {
		v.Membership = []string{}
	}
	for _, p := range st.Pages {
		v.Pages = append(v.Pages, newPageView(p))
	}
	return v
}

// =============================================================================
// Sessions
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.sessions.Count(),
	})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	e, err := s.sessions.Create()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if s.metrics != nil {
		s.metrics.RecordSessionCreate()
		go func() {
			<-e.Done()
			s.metrics.RecordSessionDestroy()
		}()
	}
	s.logger.Debug("session created", "session_id", e.ID)
	writeJSON(w, http.StatusCreated, map[string]string{"id": e.ID})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Delete(chi.URLParam(r, middleware.SessionParam)); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// registry resolves the session named in the URL.
func (s *Server) registry(r *http.Request) (*pages.Registry, error) {
	e, err := s.sessions.Get(chi.URLParam(r, middleware.SessionParam))
	if err != nil {
		return nil, err
	}
	return e.Registry, nil
}

// =============================================================================
// Pages
// =============================================================================

func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	reg, err := s.registry(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req navigateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %v", errInvalidBody, err))
		return
	}

	target, err := buildTarget(req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := reg.HandleNavigation(target); err != nil {
		if s.metrics != nil && errors.Is(err, pages.ErrIdentityCollision) {
			s.metrics.RecordCollision()
		}
		middleware.RecordError(r.Context(), err)
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newStateView(reg.Snapshot()))
}

// buildTarget canonicalizes the request into a navigation target.
func buildTarget(req navigateRequest) (route.Target, error) {
	res, err := canonical(req.FullPath)
	if err != nil {
		return route.Target{}, err
	}
	if req.Path != "" && req.Path != res.Path {
		if p, err := routepath.Canonicalize(req.Path); err != nil || p.Path != res.Path {
			return route.Target{}, kerrors.New("P011").
				WithDetail(fmt.Sprintf("path %q does not match fullPath %q", req.Path, req.FullPath))
		}
	}

	meta, rejected := route.MetaFromMap(req.Meta)
	if len(rejected) > 0 {
		return route.Target{}, kerrors.New("P011").
			WithDetail("invalid meta values for " + strings.Join(rejected, ", ")).
			WithSuggestion("cacheEligible, hidden and pinned must be booleans; title and icon must be strings")
	}

	return route.Target{
		FullPath: res.FullPath(),
		Path:     res.Path,
		Name:     req.Name,
		Meta:     meta,
	}, nil
}

// canonical canonicalizes an inbound fullPath.
func canonical(fullPath string) (routepath.Result, error) {
	res, err := routepath.Canonicalize(fullPath)
	if err != nil {
		return routepath.Result{}, kerrors.New("P011").
			WithDetail(fmt.Sprintf("%q: %v", fullPath, err))
	}
	return res, nil
}

// queryFullPath reads and canonicalizes the fullPath query parameter.
func queryFullPath(r *http.Request) (string, error) {
	res, err := canonical(r.URL.Query().Get("fullPath"))
	if err != nil {
		return "", err
	}
	return res.FullPath(), nil
}

func (s *Server) handleClosePage(w http.ResponseWriter, r *http.Request) {
	reg, err := s.registry(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	fullPath, err := queryFullPath(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	cmd, err := reg.ClosePage(fullPath)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, commandResponse(cmd))
}

func (s *Server) handleCloseCurrent(w http.ResponseWriter, r *http.Request) {
	reg, err := s.registry(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	cmd, err := reg.CloseCurrent()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, commandResponse(cmd))
}

func (s *Server) handleCloseOthers(w http.ResponseWriter, r *http.Request) {
	reg, err := s.registry(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	reg.CloseOthers()
	writeJSON(w, http.StatusOK, newStateView(reg.Snapshot()))
}

func (s *Server) handleCloseAll(w http.ResponseWriter, r *http.Request) {
	reg, err := s.registry(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, commandResponse(reg.CloseAll()))
}

func (s *Server) handleRefreshActive(w http.ResponseWriter, r *http.Request) {
	reg, err := s.registry(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := reg.RefreshActive(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newStateView(reg.Snapshot()))
}

func (s *Server) handleRefreshPage(w http.ResponseWriter, r *http.Request) {
	reg, err := s.registry(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	fullPath, err := queryFullPath(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := reg.RefreshPage(r.Context(), fullPath); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newStateView(reg.Snapshot()))
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	reg, err := s.registry(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newStateView(reg.Snapshot()))
}

func commandResponse(cmd *pages.Command) closeResponse {
	if cmd == nil {
		return closeResponse{}
	}
	return closeResponse{Navigate: cmd.FullPath}
}

// sessionEntry is used by the event stream, which needs Done.
func (s *Server) sessionEntry(r *http.Request) (*session.Entry, error) {
	return s.sessions.Get(chi.URLParam(r, middleware.SessionParam))
}
