package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"quiz-match-service/internal/app"
	"quiz-match-service/internal/domain"
	"quiz-match-service/internal/infra/memory"
)

type testServer struct {
	server    *httptest.Server
	feed      *app.Feed
	enrolment *memory.Enrolment
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	feed := app.NewFeed()
	enrolment := memory.NewEnrolment()
	games := memory.NewGameRepository(memory.NewStaticGameLoader(sampleGames()), time.Minute)
	service := app.NewMatchService(memory.NewMatchStore(), memory.NewAnswerStore(), memory.NewPlayerStore(), games,
		enrolment, app.WithPublisher(feed))
	router := NewRouter(NewAPI(service, nil), NewWSHandler(service, feed, 50*time.Millisecond, nil))
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return &testServer{server: server, feed: feed, enrolment: enrolment}
}

func (s *testServer) do(t *testing.T, method, path string, caller domain.Caller, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, s.server.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	setIdentity(req.Header, caller)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func setIdentity(h http.Header, caller domain.Caller) {
	if caller.UserID == 0 {
		return
	}
	h.Set(HeaderUserID, strconv.FormatInt(caller.UserID, 10))
	h.Set(HeaderUserRole, caller.Role.String())
}

var (
	teacher = domain.Caller{UserID: 1, Role: domain.RoleTeacher}
	student = domain.Caller{UserID: 100, Role: domain.RoleStudent}
)

func TestAPIMatchFlow(t *testing.T) {
	s := newTestServer(t)

	var match domain.Match
	if code := s.do(t, http.MethodPost, "/api/games/1/matches", teacher, nil, &match); code != http.StatusCreated {
		t.Fatalf("create: status %d", code)
	}
	base := "/api/matches/" + strconv.FormatInt(match.Cod, 10)

	var ctl controlResponse
	for _, step := range []string{"/resume", "/next", "/next"} {
		if code := s.do(t, http.MethodPost, base+step, teacher, nil, &ctl); code != http.StatusOK || !ctl.Applied {
			t.Fatalf("%s: status %d, %+v", step, code, ctl)
		}
	}
	if ctl.Match.Status.Showing != domain.PhaseAnswers {
		t.Fatalf("expected answers, got %s", ctl.Match.Status.Showing)
	}

	var sv app.StudentView
	if code := s.do(t, http.MethodGet, base+"/student", student, nil, &sv); code != http.StatusOK {
		t.Fatalf("student refresh: status %d", code)
	}
	if sv.Question == nil || len(sv.Question.Options) != 3 {
		t.Fatalf("expected three options, got %+v", sv.Question)
	}

	var sub app.SubmitResult
	if code := s.do(t, http.MethodPut, base+"/answers/1", student, answerRequest{Option: 1}, &sub); code != http.StatusOK {
		t.Fatalf("submit: status %d", code)
	}
	if !sub.Changed || sub.Print.Score != 1 {
		t.Fatalf("unexpected submit result %+v", sub)
	}
	if code := s.do(t, http.MethodPut, base+"/answers/2", student, answerRequest{Option: 1}, nil); code != http.StatusConflict {
		t.Fatalf("expected conflict for wrong question, got %d", code)
	}

	var tv app.TeacherView
	if code := s.do(t, http.MethodGet, base+"/teacher", teacher, nil, &tv); code != http.StatusOK {
		t.Fatalf("teacher refresh: status %d", code)
	}
	if tv.NumResponders != 1 || tv.NumPlayers != 1 {
		t.Fatalf("expected one responder and player, got %+v", tv)
	}

	var prints []app.PrintView
	if code := s.do(t, http.MethodGet, base+"/prints", teacher, nil, &prints); code != http.StatusOK || len(prints) != 1 {
		t.Fatalf("prints: status %d, %+v", code, prints)
	}
	var buckets []app.ScoreBucket
	if code := s.do(t, http.MethodGet, base+"/distribution", teacher, nil, &buckets); code != http.StatusOK || len(buckets) != 1 {
		t.Fatalf("distribution: status %d, %+v", code, buckets)
	}

	if code := s.do(t, http.MethodDelete, base, teacher, nil, nil); code != http.StatusNoContent {
		t.Fatalf("remove: status %d", code)
	}
	if code := s.do(t, http.MethodGet, base, teacher, nil, nil); code != http.StatusNotFound {
		t.Fatalf("expected removed match not found, got %d", code)
	}
}

func TestAPIGroupsRestrictMatch(t *testing.T) {
	s := newTestServer(t)
	member := domain.Caller{UserID: 101, Role: domain.RoleStudent}
	if err := s.enrolment.AddMember(context.Background(), 7, member.UserID); err != nil {
		t.Fatalf("add member: %v", err)
	}

	var match domain.Match
	req := createMatchRequest{Groups: []int64{7}}
	if code := s.do(t, http.MethodPost, "/api/games/1/matches", teacher, req, &match); code != http.StatusCreated {
		t.Fatalf("create: status %d", code)
	}
	base := "/api/matches/" + strconv.FormatInt(match.Cod, 10)

	if code := s.do(t, http.MethodGet, base+"/student", student, nil, nil); code != http.StatusForbidden {
		t.Fatalf("expected student outside group refused, got %d", code)
	}
	if code := s.do(t, http.MethodGet, base+"/student", member, nil, nil); code != http.StatusOK {
		t.Fatalf("expected group member admitted, got %d", code)
	}

	other := domain.Caller{UserID: 2, Role: domain.RoleTeacher}
	if code := s.do(t, http.MethodPut, base+"/groups", other, groupsRequest{}, nil); code != http.StatusForbidden {
		t.Fatalf("expected foreign teacher refused, got %d", code)
	}
	if code := s.do(t, http.MethodPut, base+"/groups", teacher, groupsRequest{}, nil); code != http.StatusNoContent {
		t.Fatalf("reopen: status %d", code)
	}
	if code := s.do(t, http.MethodGet, base+"/student", student, nil, nil); code != http.StatusOK {
		t.Fatalf("expected reopened match to admit everyone, got %d", code)
	}
}

func TestAPIControlRefusalIsReported(t *testing.T) {
	s := newTestServer(t)
	var match domain.Match
	s.do(t, http.MethodPost, "/api/games/1/matches", teacher, nil, &match)
	base := "/api/matches/" + strconv.FormatInt(match.Cod, 10)

	stale := domain.Position{QstInd: 1, Showing: domain.PhaseAnswers}
	var ctl controlResponse
	if code := s.do(t, http.MethodPost, base+"/next", teacher, positionRequest{Expect: &stale}, &ctl); code != http.StatusOK {
		t.Fatalf("next: status %d", code)
	}
	if ctl.Applied || ctl.Reason == "" {
		t.Fatalf("expected stale refusal, got %+v", ctl)
	}

	other := domain.Caller{UserID: 2, Role: domain.RoleTeacher}
	s.do(t, http.MethodPost, base+"/next", other, nil, &ctl)
	if ctl.Applied {
		t.Fatalf("expected foreign teacher refused")
	}
}

func TestAPIErrors(t *testing.T) {
	s := newTestServer(t)

	if code := s.do(t, http.MethodPost, "/api/games/1/matches", domain.Caller{}, nil, nil); code != http.StatusForbidden {
		t.Fatalf("expected anonymous refused, got %d", code)
	}
	if code := s.do(t, http.MethodPost, "/api/games/9/matches", teacher, nil, nil); code != http.StatusNotFound {
		t.Fatalf("expected unknown game, got %d", code)
	}
	if code := s.do(t, http.MethodGet, "/api/matches/abc", teacher, nil, nil); code != http.StatusBadRequest {
		t.Fatalf("expected bad request, got %d", code)
	}
	if code := s.do(t, http.MethodPost, "/api/games/2/matches", teacher, nil, nil); code != http.StatusInternalServerError {
		t.Fatalf("expected unplayable game to fail, got %d", code)
	}
}

func TestCallerFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if CallerFromRequest(req).LoggedIn() {
		t.Fatalf("expected anonymous caller")
	}
	req.Header.Set(HeaderUserID, "42")
	req.Header.Set(HeaderUserRole, "net")
	c := CallerFromRequest(req)
	if c.UserID != 42 || c.Role != domain.RoleNonEditingTeacher {
		t.Fatalf("unexpected caller %+v", c)
	}
}

func sampleGames() map[int64]domain.Game {
	return map[int64]domain.Game{
		1: {
			Cod:      1,
			Title:    "Arithmetic",
			MaxGrade: 10,
			Questions: []domain.Question{
				{
					Cod:        11,
					Ind:        1,
					Stem:       "What is 2 + 2?",
					AnswerType: domain.AnswerUniqueChoice,
					Options: []domain.Option{
						{Text: "3", Correct: false},
						{Text: "4", Correct: true},
						{Text: "5", Correct: false},
					},
				},
			},
		},
		2: {
			Cod:       2,
			Questions: []domain.Question{{Cod: 21, Ind: 1, AnswerType: domain.AnswerText}},
		},
	}
}
