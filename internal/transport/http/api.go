package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"quiz-match-service/internal/app"
	"quiz-match-service/internal/domain"
)

// Identity headers set by the fronting gateway.
const (
	HeaderUserID   = "X-User-Id"
	HeaderUserRole = "X-User-Role"
)

// API exposes the match use cases as a polling JSON API.
type API struct {
	service *app.MatchService
	log     *slog.Logger
}

func NewAPI(service *app.MatchService, log *slog.Logger) *API {
	if log == nil {
		log = slog.Default()
	}
	return &API{service: service, log: log}
}

// Routes registers all HTTP routes.
func (a *API) Routes(r chi.Router) {
	r.Get("/games/{gamCod}/matches", a.handleListMatches)
	r.Post("/games/{gamCod}/matches", a.handleCreateMatch)

	r.Route("/matches/{matchCod}", func(r chi.Router) {
		r.Get("/", a.handleGetMatch)
		r.Delete("/", a.handleRemoveMatch)
		r.Put("/groups", a.handleRestrictMatch)

		r.Post("/resume", a.handleResume)
		r.Post("/play-pause", a.handlePlayPause)
		r.Post("/next", a.handleNext)
		r.Post("/previous", a.handlePrevious)
		r.Post("/countdown", a.handleCountdown)
		r.Post("/qst-results/toggle", a.handleToggleQstResults)
		r.Post("/usr-results/toggle", a.handleToggleUsrResults)
		r.Post("/num-cols", a.handleNumCols)

		r.Get("/teacher", a.handleTeacherRefresh)
		r.Get("/student", a.handleStudentRefresh)

		r.Put("/answers/{qstInd}", a.handleSubmitAnswer)
		r.Delete("/answers/{qstInd}", a.handleRetractAnswer)

		r.Get("/prints", a.handleListPrints)
		r.Get("/prints/{usrCod}", a.handleGetPrint)
		r.Get("/distribution", a.handleDistribution)
	})
}

// CallerFromRequest reads the identity headers. Missing or malformed
// headers yield an anonymous caller.
func CallerFromRequest(r *http.Request) domain.Caller {
	id, err := strconv.ParseInt(r.Header.Get(HeaderUserID), 10, 64)
	if err != nil || id <= 0 {
		return domain.Caller{}
	}
	return domain.Caller{UserID: id, Role: domain.ParseRole(r.Header.Get(HeaderUserRole))}
}

type createMatchRequest struct {
	Title  string  `json:"title"`
	Groups []int64 `json:"groups,omitempty"`
}

type groupsRequest struct {
	Groups []int64 `json:"groups"`
}

type positionRequest struct {
	Expect *domain.Position `json:"expect,omitempty"`
}

type countdownRequest struct {
	Seconds int `json:"seconds"`
}

type numColsRequest struct {
	NumCols int `json:"numCols"`
}

type answerRequest struct {
	Option int `json:"option"`
}

type controlResponse struct {
	Match   domain.Match `json:"match"`
	Applied bool         `json:"applied"`
	Reason  string       `json:"reason,omitempty"`
}

func newControlResponse(res app.ControlResult) controlResponse {
	out := controlResponse{Match: res.Match, Applied: res.Applied}
	if res.Reason != nil {
		out.Reason = res.Reason.Error()
	}
	return out
}

func (a *API) handleListMatches(w http.ResponseWriter, r *http.Request) {
	gamCod, ok := pathInt(w, r, "gamCod")
	if !ok {
		return
	}
	matches, err := a.service.ListMatches(r.Context(), CallerFromRequest(r), gamCod)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if matches == nil {
		matches = []domain.Match{}
	}
	writeJSON(w, http.StatusOK, matches)
}

func (a *API) handleCreateMatch(w http.ResponseWriter, r *http.Request) {
	gamCod, ok := pathInt(w, r, "gamCod")
	if !ok {
		return
	}
	var req createMatchRequest
	if !decodeOptional(w, r, &req) {
		return
	}
	match, err := a.service.CreateMatch(r.Context(), CallerFromRequest(r), gamCod, req.Title, req.Groups...)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, match)
}

func (a *API) handleGetMatch(w http.ResponseWriter, r *http.Request) {
	matchCod, ok := pathInt(w, r, "matchCod")
	if !ok {
		return
	}
	match, err := a.service.GetMatch(r.Context(), CallerFromRequest(r), matchCod)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, match)
}

func (a *API) handleRemoveMatch(w http.ResponseWriter, r *http.Request) {
	matchCod, ok := pathInt(w, r, "matchCod")
	if !ok {
		return
	}
	if err := a.service.RemoveMatch(r.Context(), CallerFromRequest(r), matchCod); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleRestrictMatch(w http.ResponseWriter, r *http.Request) {
	matchCod, ok := pathInt(w, r, "matchCod")
	if !ok {
		return
	}
	var req groupsRequest
	if !decodeOptional(w, r, &req) {
		return
	}
	if err := a.service.RestrictMatch(r.Context(), CallerFromRequest(r), matchCod, req.Groups); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleResume(w http.ResponseWriter, r *http.Request) {
	a.control(w, r, func(c domain.Caller, cod int64) (app.ControlResult, error) {
		return a.service.Resume(r.Context(), c, cod)
	})
}

func (a *API) handlePlayPause(w http.ResponseWriter, r *http.Request) {
	a.control(w, r, func(c domain.Caller, cod int64) (app.ControlResult, error) {
		return a.service.PlayPause(r.Context(), c, cod)
	})
}

func (a *API) handleNext(w http.ResponseWriter, r *http.Request) {
	var req positionRequest
	if !decodeOptional(w, r, &req) {
		return
	}
	a.control(w, r, func(c domain.Caller, cod int64) (app.ControlResult, error) {
		return a.service.Next(r.Context(), c, cod, req.Expect)
	})
}

func (a *API) handlePrevious(w http.ResponseWriter, r *http.Request) {
	var req positionRequest
	if !decodeOptional(w, r, &req) {
		return
	}
	a.control(w, r, func(c domain.Caller, cod int64) (app.ControlResult, error) {
		return a.service.Previous(r.Context(), c, cod, req.Expect)
	})
}

func (a *API) handleCountdown(w http.ResponseWriter, r *http.Request) {
	var req countdownRequest
	if !decode(w, r, &req) {
		return
	}
	a.control(w, r, func(c domain.Caller, cod int64) (app.ControlResult, error) {
		return a.service.SetCountdown(r.Context(), c, cod, req.Seconds)
	})
}

func (a *API) handleToggleQstResults(w http.ResponseWriter, r *http.Request) {
	a.control(w, r, func(c domain.Caller, cod int64) (app.ControlResult, error) {
		return a.service.ToggleQstResultsVisible(r.Context(), c, cod)
	})
}

func (a *API) handleToggleUsrResults(w http.ResponseWriter, r *http.Request) {
	a.control(w, r, func(c domain.Caller, cod int64) (app.ControlResult, error) {
		return a.service.ToggleUsrResultsVisible(r.Context(), c, cod)
	})
}

func (a *API) handleNumCols(w http.ResponseWriter, r *http.Request) {
	var req numColsRequest
	if !decode(w, r, &req) {
		return
	}
	a.control(w, r, func(c domain.Caller, cod int64) (app.ControlResult, error) {
		return a.service.ChangeNumCols(r.Context(), c, cod, req.NumCols)
	})
}

// control answers 200 whether or not the transition was applied; refusals
// are reported in the body.
func (a *API) control(w http.ResponseWriter, r *http.Request, op func(domain.Caller, int64) (app.ControlResult, error)) {
	matchCod, ok := pathInt(w, r, "matchCod")
	if !ok {
		return
	}
	res, err := op(CallerFromRequest(r), matchCod)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newControlResponse(res))
}

func (a *API) handleTeacherRefresh(w http.ResponseWriter, r *http.Request) {
	matchCod, ok := pathInt(w, r, "matchCod")
	if !ok {
		return
	}
	view, err := a.service.TeacherRefresh(r.Context(), CallerFromRequest(r), matchCod)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleStudentRefresh(w http.ResponseWriter, r *http.Request) {
	matchCod, ok := pathInt(w, r, "matchCod")
	if !ok {
		return
	}
	view, err := a.service.StudentRefresh(r.Context(), CallerFromRequest(r), matchCod)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleSubmitAnswer(w http.ResponseWriter, r *http.Request) {
	matchCod, ok := pathInt(w, r, "matchCod")
	if !ok {
		return
	}
	qstInd, ok := pathInt(w, r, "qstInd")
	if !ok {
		return
	}
	var req answerRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := a.service.SubmitAnswer(r.Context(), CallerFromRequest(r), matchCod, int(qstInd), req.Option)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleRetractAnswer(w http.ResponseWriter, r *http.Request) {
	matchCod, ok := pathInt(w, r, "matchCod")
	if !ok {
		return
	}
	qstInd, ok := pathInt(w, r, "qstInd")
	if !ok {
		return
	}
	res, err := a.service.RetractAnswer(r.Context(), CallerFromRequest(r), matchCod, int(qstInd))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleListPrints(w http.ResponseWriter, r *http.Request) {
	matchCod, ok := pathInt(w, r, "matchCod")
	if !ok {
		return
	}
	prints, err := a.service.ListMatchPrints(r.Context(), CallerFromRequest(r), matchCod)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, prints)
}

func (a *API) handleGetPrint(w http.ResponseWriter, r *http.Request) {
	matchCod, ok := pathInt(w, r, "matchCod")
	if !ok {
		return
	}
	usrCod, ok := pathInt(w, r, "usrCod")
	if !ok {
		return
	}
	view, err := a.service.GetMatchPrint(r.Context(), CallerFromRequest(r), matchCod, usrCod)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleDistribution(w http.ResponseWriter, r *http.Request) {
	matchCod, ok := pathInt(w, r, "matchCod")
	if !ok {
		return
	}
	buckets, err := a.service.GetMatchScoreDistribution(r.Context(), CallerFromRequest(r), matchCod)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, buckets)
}

type errorPayload struct {
	Message string `json:"message"`
}

// StatusCode maps service errors to HTTP statuses.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrInvalidState):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := StatusCode(err)
	if code == http.StatusInternalServerError {
		a.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSON(w, code, errorPayload{Message: "internal error"})
		return
	}
	writeJSON(w, code, errorPayload{Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func pathInt(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	v, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorPayload{Message: "invalid " + name})
		return 0, false
	}
	return v, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorPayload{Message: "invalid request body"})
		return false
	}
	return true
}

// decodeOptional accepts an empty body.
func decodeOptional(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil {
		return true
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	writeJSON(w, http.StatusBadRequest, errorPayload{Message: "invalid request body"})
	return false
}
