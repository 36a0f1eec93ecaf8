package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"quiz-match-service/internal/app"
	"quiz-match-service/internal/domain"
)

// DefaultRefreshInterval is how often a connected client gets a fresh view
// when nothing else happened in the match.
const DefaultRefreshInterval = time.Second

// WSHandler pushes refresh views of a match over a websocket and accepts the
// same commands as the polling API.
type WSHandler struct {
	service  *app.MatchService
	feed     *app.Feed
	interval time.Duration
	log      *slog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler builds the handler. feed may be nil, in which case clients
// only get views on the refresh interval and after their own commands.
func NewWSHandler(service *app.MatchService, feed *app.Feed, interval time.Duration, log *slog.Logger) *WSHandler {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	if log == nil {
		log = slog.Default()
	}
	return &WSHandler{
		service:  service,
		feed:     feed,
		interval: interval,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type commandPayload struct {
	Expect  *domain.Position `json:"expect,omitempty"`
	Seconds int              `json:"seconds"`
	NumCols int              `json:"numCols"`
	QstInd  int              `json:"qstInd"`
	Option  int              `json:"option"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

const (
	msgView         = "view"
	msgControl      = "control"
	msgAnswerResult = "answerResult"
	msgRemoved      = "removed"
	msgError        = "error"
)

// ServeWS upgrades HTTP requests to websockets for one match. The first view
// is computed before upgrading so access errors are plain HTTP errors.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	matchCod, err := strconv.ParseInt(r.URL.Query().Get("matchCod"), 10, 64)
	if err != nil {
		http.Error(w, "missing or invalid matchCod", http.StatusBadRequest)
		return
	}
	caller := CallerFromRequest(r)
	ctx := r.Context()

	first, err := h.view(ctx, caller, matchCod)
	if err != nil {
		http.Error(w, err.Error(), StatusCode(err))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	var events <-chan app.MatchEvent
	if h.feed != nil {
		ch, cancel := h.feed.Subscribe(matchCod)
		defer cancel()
		events = ch
	}

	send := make(chan outboundMessage, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	pusherDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debug("ws write error", "match", matchCod, "error", err)
				return
			}
			if msg.Type == msgRemoved {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "match removed"),
					time.Now().Add(time.Second))
				_ = conn.Close()
				return
			}
		}
	}()

	push := func(msg outboundMessage) bool {
		select {
		case send <- msg:
			return true
		case <-writerDone:
			return false
		case <-closeSignals:
			return false
		}
	}
	pushView := func() bool {
		v, err := h.view(ctx, caller, matchCod)
		if errors.Is(err, domain.ErrNotFound) {
			push(outboundMessage{Type: msgRemoved, Payload: errorPayload{Message: err.Error()}})
			return false
		}
		if err != nil {
			return push(outboundMessage{Type: msgError, Payload: errorPayload{Message: err.Error()}})
		}
		return push(outboundMessage{Type: msgView, Payload: v})
	}

	go func() {
		defer close(pusherDone)
		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				if ev.Kind == app.EventRemoved {
					push(outboundMessage{Type: msgRemoved, Payload: ev})
					return
				}
				if !pushView() {
					return
				}
			case <-ticker.C:
				if !pushView() {
					return
				}
			case <-closeSignals:
				return
			case <-writerDone:
				return
			}
		}
	}()

	push(outboundMessage{Type: msgView, Payload: first})

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		reply := h.handleCommand(ctx, caller, matchCod, inbound)
		if !push(reply) {
			break
		}
		if h.feed == nil && reply.Type != msgError {
			pushView()
		}
	}

	close(closeSignals)
	<-pusherDone
	close(send)
	<-writerDone
}

func (h *WSHandler) handleCommand(ctx context.Context, caller domain.Caller, matchCod int64, in inboundMessage) outboundMessage {
	var p commandPayload
	if len(in.Payload) > 0 {
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			return outboundMessage{Type: msgError, Payload: errorPayload{Message: "invalid " + in.Type + " payload"}}
		}
	}

	var (
		res app.ControlResult
		err error
	)
	switch in.Type {
	case "refresh":
		v, err := h.view(ctx, caller, matchCod)
		if err != nil {
			return errorMessage(err)
		}
		return outboundMessage{Type: msgView, Payload: v}
	case "answer":
		sub, err := h.service.SubmitAnswer(ctx, caller, matchCod, p.QstInd, p.Option)
		if err != nil {
			return errorMessage(err)
		}
		return outboundMessage{Type: msgAnswerResult, Payload: sub}
	case "retract":
		sub, err := h.service.RetractAnswer(ctx, caller, matchCod, p.QstInd)
		if err != nil {
			return errorMessage(err)
		}
		return outboundMessage{Type: msgAnswerResult, Payload: sub}
	case "resume":
		res, err = h.service.Resume(ctx, caller, matchCod)
	case "play_pause":
		res, err = h.service.PlayPause(ctx, caller, matchCod)
	case "next":
		res, err = h.service.Next(ctx, caller, matchCod, p.Expect)
	case "previous":
		res, err = h.service.Previous(ctx, caller, matchCod, p.Expect)
	case "countdown":
		res, err = h.service.SetCountdown(ctx, caller, matchCod, p.Seconds)
	case "toggle_qst_results":
		res, err = h.service.ToggleQstResultsVisible(ctx, caller, matchCod)
	case "toggle_usr_results":
		res, err = h.service.ToggleUsrResultsVisible(ctx, caller, matchCod)
	case "num_cols":
		res, err = h.service.ChangeNumCols(ctx, caller, matchCod, p.NumCols)
	default:
		return outboundMessage{Type: msgError, Payload: errorPayload{Message: "unsupported message type"}}
	}
	if err != nil {
		return errorMessage(err)
	}
	return outboundMessage{Type: msgControl, Payload: newControlResponse(res)}
}

// view is the teacher refresh for teaching roles and the student refresh
// otherwise. Teacher views drive the countdown, like polling does.
func (h *WSHandler) view(ctx context.Context, caller domain.Caller, matchCod int64) (any, error) {
	if caller.Role.IsTeacherLike() {
		return h.service.TeacherRefresh(ctx, caller, matchCod)
	}
	return h.service.StudentRefresh(ctx, caller, matchCod)
}

func errorMessage(err error) outboundMessage {
	if StatusCode(err) == http.StatusInternalServerError {
		return outboundMessage{Type: msgError, Payload: errorPayload{Message: "internal error"}}
	}
	return outboundMessage{Type: msgError, Payload: errorPayload{Message: err.Error()}}
}
