package domain

import "time"

// QuestionType controls how a question's answer is collected and scored.
type QuestionType string

const (
	QuestionSingle   QuestionType = "single"
	QuestionMultiple QuestionType = "multiple"
	QuestionOpen     QuestionType = "open"
)

// Participation restricts who may submit a quiz.
type Participation string

const (
	ParticipationIndividual Participation = "Individual"
	ParticipationGroup      Participation = "Group"
	ParticipationAll        Participation = "All"
)

// AttemptStatus is the lifecycle state of an attempt.
type AttemptStatus string

const (
	AttemptStarted   AttemptStatus = "started"
	AttemptCompleted AttemptStatus = "completed"
	AttemptExpired   AttemptStatus = "expired"
)

// OwnerKind separates individual and group bookkeeping.
type OwnerKind string

const (
	OwnerUser  OwnerKind = "user"
	OwnerGroup OwnerKind = "group"
)

// Valid reports whether k is a known owner kind.
func (k OwnerKind) Valid() bool {
	return k == OwnerUser || k == OwnerGroup
}

// Owner identifies the user or trivia group an attempt or ranking belongs to.
type Owner struct {
	Kind OwnerKind `json:"kind"`
	ID   string    `json:"id"`
}

func UserOwner(id string) Owner  { return Owner{Kind: OwnerUser, ID: id} }
func GroupOwner(id string) Owner { return Owner{Kind: OwnerGroup, ID: id} }

// Choice is one selectable answer of a question.
type Choice struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"isCorrect"`
}

// Question is read-only input for scoring.
type Question struct {
	ID      string       `json:"id"`
	Text    string       `json:"text"`
	Type    QuestionType `json:"type"`
	Points  int          `json:"points"`
	Penalty int          `json:"penalty"` // 0 enables proportional credit
	Choices []Choice     `json:"choices"`
}

// Choice returns the choice with the given id if it belongs to the question.
func (q Question) Choice(id string) (Choice, bool) {
	for _, c := range q.Choices {
		if c.ID == id {
			return c, true
		}
	}
	return Choice{}, false
}

// CorrectChoiceIDs lists the ids of choices flagged correct, in declaration order.
func (q Question) CorrectChoiceIDs() []string {
	ids := make([]string, 0, len(q.Choices))
	for _, c := range q.Choices {
		if c.IsCorrect {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

// Quiz is a set of questions plus the rules for taking it.
type Quiz struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Participation Participation `json:"participation"`
	PassingScore  int           `json:"passingScore"` // percentage
	MaxAttempts   int           `json:"maxAttempts"`
	IsActive      bool          `json:"isActive"`
	IsPublic      bool          `json:"isPublic"`
	Questions     []Question    `json:"questions"`
}

// TotalPoints is the sum of question points, independent of any answers.
func (q Quiz) TotalPoints() int {
	total := 0
	for _, question := range q.Questions {
		total += question.Points
	}
	return total
}

// AllowsGroups reports whether groups may submit this quiz.
func (q Quiz) AllowsGroups() bool {
	return q.Participation == ParticipationGroup || q.Participation == ParticipationAll
}

// TriviaGroup is the subset of a church trivia group needed to authorize submissions.
type TriviaGroup struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	CaptainID string   `json:"captainId"`
	PatronID  string   `json:"patronId"`
	MemberIDs []string `json:"memberIds"`
}

// IsMemberOrCaptainOrPatron reports whether userID may act on behalf of the group.
func (g TriviaGroup) IsMemberOrCaptainOrPatron(userID string) bool {
	if userID == "" {
		return false
	}
	if g.CaptainID == userID || g.PatronID == userID {
		return true
	}
	for _, id := range g.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Answer is what the submitter sent for one question. ChoiceIDs takes precedence
// over ChoiceID; ChoiceID models a single radio-style selection.
type Answer struct {
	ChoiceID  string
	ChoiceIDs []string
	Text      string
}

// Attempt is one scored pass through a quiz by a single owner.
type Attempt struct {
	ID            string        `json:"id"`
	QuizID        string        `json:"quizId"`
	Owner         Owner         `json:"owner"`
	InitiatedBy   string        `json:"initiatedBy"` // submitting user; for user attempts equals Owner.ID
	AttemptNumber int           `json:"attemptNumber"`
	Status        AttemptStatus `json:"status"`
	Score         int           `json:"score"`
	StartedAt     time.Time     `json:"startedAt"`
	CompletedAt   *time.Time    `json:"completedAt,omitempty"`
}

// PenaltySnapshot freezes the penalty inputs at scoring time so later edits to the
// question never change historical accounting.
type PenaltySnapshot struct {
	WrongSelected   int `json:"wrong_selected"`
	QuestionPenalty int `json:"question_penalty"`
}

// Deduction is the ranking penalty contributed by a response.
func (p PenaltySnapshot) Deduction() int {
	return p.WrongSelected * p.QuestionPenalty
}

// Response is the scored record of one question's answer within one attempt.
type Response struct {
	ID                string
	AttemptID         string
	QuestionID        string
	Owner             Owner  // copied from the attempt; group responses carry the group here
	RespondedBy       string // user who submitted
	TextAnswer        string
	SelectedChoiceIDs []string
	PointsAwarded     int
	Snapshot          PenaltySnapshot
	CreatedAt         time.Time
}

// Ranking is a running per-owner accumulator. Monthly maps "YYYY-MM" to points.
type Ranking struct {
	Owner     Owner          `json:"owner"`
	Points    int            `json:"points"`
	Penalty   int            `json:"penalty"`
	Monthly   map[string]int `json:"metadata"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// RankingDelta is one additive change applied to a ranking.
type RankingDelta struct {
	Points  int
	Penalty int
	Month   string
}

// SubmissionResult summarizes a scored submission.
type SubmissionResult struct {
	QuizID         string    `json:"quizId"`
	Score          int       `json:"score"`
	TotalPoints    int       `json:"totalPoints"`
	Percentage     float64   `json:"percentage"`
	Passed         bool      `json:"passed"`
	CorrectAnswers int       `json:"correctAnswers"`
	TotalQuestions int       `json:"totalQuestions"`
	AttemptID      string    `json:"attemptId,omitempty"`
	AttemptKind    OwnerKind `json:"attemptKind,omitempty"`
	AttemptNumber  int       `json:"attemptNumber,omitempty"`
	// RankingFailures lists responses whose ranking update did not apply.
	// The attempt itself is persisted regardless.
	RankingFailures []RankingFailure `json:"rankingFailures,omitempty"`
	// Review is only filled for previews, which have no persisted attempt to review later.
	Review []ReviewItem `json:"review,omitempty"`
}

// RankingFailure records a skipped ranking update.
type RankingFailure struct {
	ResponseID string `json:"responseId"`
	QuestionID string `json:"questionId"`
	Reason     string `json:"reason"`
}

// ReviewItem is the per-question view of a scored answer.
type ReviewItem struct {
	QuestionID     string          `json:"questionId"`
	QuestionText   string          `json:"questionText"`
	QuestionType   QuestionType    `json:"questionType"`
	SelectedIDs    []string        `json:"selectedIds"`
	CorrectIDs     []string        `json:"correctIds"`
	IsCorrect      *bool           `json:"isCorrect"` // nil for open questions
	PointsAwarded  int             `json:"pointsAwarded"`
	QuestionPoints int             `json:"questionPoints"`
	TextAnswer     string          `json:"textAnswer,omitempty"`
	RespondedBy    string          `json:"respondedBy,omitempty"`
	Metadata       PenaltySnapshot `json:"metadata"`
}

// AttemptReview is an attempt plus its review items.
type AttemptReview struct {
	Attempt Attempt      `json:"attempt"`
	QuizID  string       `json:"quizId"`
	Items   []ReviewItem `json:"items"`
}
