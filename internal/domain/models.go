package domain

import (
	"math"
	"time"
)

// Role is the capability of the caller inside the course that owns a game.
type Role int

const (
	RoleUnknown Role = iota
	RoleStudent
	RoleNonEditingTeacher
	RoleTeacher
	RoleAdmin
)

// ParseRole maps the textual role used by transports to a Role.
func ParseRole(raw string) Role {
	switch raw {
	case "student":
		return RoleStudent
	case "net", "non-editing-teacher":
		return RoleNonEditingTeacher
	case "teacher":
		return RoleTeacher
	case "admin":
		return RoleAdmin
	default:
		return RoleUnknown
	}
}

func (r Role) String() string {
	switch r {
	case RoleStudent:
		return "student"
	case RoleNonEditingTeacher:
		return "non-editing-teacher"
	case RoleTeacher:
		return "teacher"
	case RoleAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// IsTeacherLike reports whether the role may create and control matches.
func (r Role) IsTeacherLike() bool {
	switch r {
	case RoleNonEditingTeacher, RoleTeacher, RoleAdmin:
		return true
	default:
		return false
	}
}

// Caller is the request-scoped identity of whoever invokes the engine.
type Caller struct {
	UserID int64
	Role   Role
}

func (c Caller) LoggedIn() bool {
	return c.UserID > 0 && c.Role != RoleUnknown
}

// AnswerType of a question. Only unique choice questions are played in matches.
type AnswerType string

const (
	AnswerUniqueChoice   AnswerType = "unique_choice"
	AnswerMultipleChoice AnswerType = "multiple_choice"
	AnswerTrueFalse      AnswerType = "true_false"
	AnswerText           AnswerType = "text"
)

// Option represents a possible answer for a question. Its position in
// Question.Options is its answer index.
type Option struct {
	Text    string `json:"text" yaml:"text"`
	Correct bool   `json:"correct" yaml:"correct"`
}

// Question is one entry of a game, at 1-based position Ind.
type Question struct {
	Cod        int64      `json:"cod" yaml:"cod"`
	Ind        int        `json:"ind" yaml:"ind"`
	Stem       string     `json:"stem" yaml:"stem"`
	AnswerType AnswerType `json:"answerType" yaml:"answer_type"`
	Shuffle    bool       `json:"shuffle" yaml:"shuffle"`
	Options    []Option   `json:"options" yaml:"options"`
}

// Game is the reusable pool of questions a match is played from.
type Game struct {
	Cod       int64      `json:"cod" yaml:"cod"`
	Title     string     `json:"title" yaml:"title"`
	MaxGrade  float64    `json:"maxGrade" yaml:"max_grade"`
	Questions []Question `json:"questions" yaml:"questions"`
}

// Question returns the question at game position ind.
func (g Game) Question(ind int) (Question, bool) {
	for _, q := range g.Questions {
		if q.Ind == ind {
			return q, true
		}
	}
	return Question{}, false
}

const (
	// AfterLastQuestion is the QstInd of a match that has ended.
	AfterLastQuestion = math.MaxInt32
	NoQuestion        = int64(-1)
	NoCountdown       = -1
	MaxCountdown      = 3600
	MinNumCols        = 1
	MaxNumCols        = 4
)

// Phase is what a match is currently showing.
type Phase string

const (
	PhaseStart   Phase = "start"
	PhaseStem    Phase = "stem"
	PhaseAnswers Phase = "answers"
	PhaseResults Phase = "results"
	PhaseEnd     Phase = "end"
)

func (p Phase) Valid() bool {
	switch p {
	case PhaseStart, PhaseStem, PhaseAnswers, PhaseResults, PhaseEnd:
		return true
	default:
		return false
	}
}

// Position identifies a point in the match timeline.
type Position struct {
	QstInd  int   `json:"qstInd"`
	Showing Phase `json:"showing"`
}

// Status is the frequently read and written part of a match.
type Status struct {
	QstInd         int   `json:"qstInd"`
	QstCod         int64 `json:"qstCod"`
	Showing        Phase `json:"showing"`
	Countdown      int   `json:"countdown"`
	NumCols        int   `json:"numCols"`
	ShowQstResults bool  `json:"showQstResults"`
	ShowUsrResults bool  `json:"showUsrResults"`
	Playing        bool  `json:"playing"`
	NumPlayers     int   `json:"numPlayers"`
}

// Match is one live instance of playing a game.
type Match struct {
	Cod       int64     `json:"cod"`
	GamCod    int64     `json:"gamCod"`
	UsrCod    int64     `json:"usrCod"`
	Title     string    `json:"title"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	Status    Status    `json:"status"`
	// TickedAt is the instant up to which elapsed time has been accounted.
	TickedAt time.Time `json:"-"`
	// Elapsed holds seconds spent on each question index.
	Elapsed map[int]int `json:"-"`
}

// Finished reports whether the match reached its end.
func (m Match) Finished() bool {
	return m.Status.Showing == PhaseEnd
}

// ElapsedInMatch is the sum of the time spent on every question.
func (m Match) ElapsedInMatch() time.Duration {
	total := 0
	for _, secs := range m.Elapsed {
		total += secs
	}
	return time.Duration(total) * time.Second
}

// ElapsedInQuestion is the time spent on the current question.
func (m Match) ElapsedInQuestion() time.Duration {
	return time.Duration(m.Elapsed[m.Status.QstInd]) * time.Second
}

// AnswerIndex is the immutable option permutation of one question inside a match.
// Order[k] is the answer index shown as on-screen option k.
type AnswerIndex struct {
	QstInd int
	QstCod int64
	Order  []int
}

// UserAnswer is the option a student selected for one question of a match.
type UserAnswer struct {
	MatchCod   int64     `json:"matchCod"`
	UsrCod     int64     `json:"usrCod"`
	QstInd     int       `json:"qstInd"`
	NumOpt     int       `json:"numOpt"`
	AnsInd     int       `json:"ansInd"`
	AnsweredAt time.Time `json:"answeredAt"`
}

// MatchPrint is the scoring summary of one student in one match.
type MatchPrint struct {
	MatchCod        int64     `json:"matchCod"`
	UsrCod          int64     `json:"usrCod"`
	StartTime       time.Time `json:"startTime"`
	EndTime         time.Time `json:"endTime"`
	NumQsts         int       `json:"numQsts"`
	NumQstsNotBlank int       `json:"numQstsNotBlank"`
	Score           float64   `json:"score"`
}
