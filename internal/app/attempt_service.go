package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"

	"trivia-service/internal/domain"
)

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// GroupDirectory resolves trivia groups and their rosters.
type GroupDirectory interface {
	GetGroup(ctx context.Context, groupID string) (domain.TriviaGroup, error)
}

// AttemptStore persists attempts and responses.
//
// NextAttemptNumber must hand out each number once per (quiz, owner) even under
// concurrent callers. SaveAttempt stores a finished attempt together with all of its
// responses, or nothing at all. It reports domain.ErrAttemptConflict when the number is
// already taken and domain.ErrDuplicateResponse when two responses share a question.
type AttemptStore interface {
	NextAttemptNumber(ctx context.Context, quizID string, owner domain.Owner) (int, error)
	SaveAttempt(ctx context.Context, attempt domain.Attempt, responses []domain.Response) error
	GetAttempt(ctx context.Context, attemptID string) (domain.Attempt, error)
	ListResponses(ctx context.Context, attemptID string) ([]domain.Response, error)
	ListAttempts(ctx context.Context, owner domain.Owner) ([]domain.Attempt, error)
}

// Submitter is who is submitting. GroupID is empty for individual submissions.
type Submitter struct {
	UserID  string
	GroupID string
}

// AttemptService runs quiz submissions end to end.
type AttemptService struct {
	quizzes  QuizRepository
	groups   GroupDirectory
	attempts AttemptStore
	rankings *RankingUpdater
	logger   *log.Logger
	now      func() time.Time
}

func NewAttemptService(quizzes QuizRepository, groups GroupDirectory, attempts AttemptStore, rankings *RankingUpdater, logger *log.Logger) *AttemptService {
	return NewAttemptServiceWithClock(quizzes, groups, attempts, rankings, logger, time.Now)
}

// NewAttemptServiceWithClock is test-only for deterministic timestamps.
func NewAttemptServiceWithClock(quizzes QuizRepository, groups GroupDirectory, attempts AttemptStore, rankings *RankingUpdater, logger *log.Logger, now func() time.Time) *AttemptService {
	if logger == nil {
		logger = log.Default()
	}
	return &AttemptService{
		quizzes:  quizzes,
		groups:   groups,
		attempts: attempts,
		rankings: rankings,
		logger:   logger,
		now:      now,
	}
}

// Submit scores a full quiz submission and persists it as one attempt with one
// response per question. Validation and permission failures happen before any write,
// and the attempt is stored whole or not at all. Rankings are updated only after the
// attempt is stored.
func (s *AttemptService) Submit(ctx context.Context, quizID string, sub Submitter, answers map[string]domain.Answer) (domain.SubmissionResult, error) {
	if sub.UserID == "" {
		return domain.SubmissionResult{}, domain.ErrMissingUser
	}
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.SubmissionResult{}, err
	}
	if err := checkTakeable(quiz); err != nil {
		return domain.SubmissionResult{}, err
	}
	owner, err := s.resolveOwner(ctx, quiz, sub)
	if err != nil {
		return domain.SubmissionResult{}, err
	}
	for _, w := range ValidateQuiz(quiz) {
		s.logger.Printf("integrity warning: quiz=%s question=%s: %s", quiz.ID, w.QuestionID, w.Reason)
	}

	number, err := s.attempts.NextAttemptNumber(ctx, quiz.ID, owner)
	if err != nil {
		return domain.SubmissionResult{}, fmt.Errorf("assign attempt number: %w", err)
	}
	attempt := domain.Attempt{
		ID:            uuid.NewString(),
		QuizID:        quiz.ID,
		Owner:         owner,
		InitiatedBy:   sub.UserID,
		AttemptNumber: number,
		Status:        domain.AttemptStarted,
		StartedAt:     s.now(),
	}

	result := domain.SubmissionResult{
		QuizID:         quiz.ID,
		TotalPoints:    quiz.TotalPoints(),
		TotalQuestions: len(quiz.Questions),
		AttemptID:      attempt.ID,
		AttemptKind:    owner.Kind,
		AttemptNumber:  attempt.AttemptNumber,
	}
	responses := make([]domain.Response, 0, len(quiz.Questions))
	for _, q := range quiz.Questions {
		score := ScoreAnswer(q, answers[q.ID])
		responses = append(responses, domain.Response{
			ID:                uuid.NewString(),
			AttemptID:         attempt.ID,
			QuestionID:        q.ID,
			Owner:             owner,
			RespondedBy:       sub.UserID,
			TextAnswer:        score.TextAnswer,
			SelectedChoiceIDs: score.SelectedIDs,
			PointsAwarded:     score.Points,
			Snapshot:          score.Snapshot(q),
			CreatedAt:         s.now(),
		})
		attempt.Score += score.Points
		if score.Points > 0 {
			result.CorrectAnswers++
		}
	}

	completedAt := s.now()
	attempt.Status = domain.AttemptCompleted
	attempt.CompletedAt = &completedAt
	if err := s.attempts.SaveAttempt(ctx, attempt, responses); err != nil {
		return domain.SubmissionResult{}, fmt.Errorf("save attempt: %w", err)
	}

	if s.rankings != nil {
		for _, resp := range responses {
			if _, err := s.rankings.ResponseCreated(ctx, resp); err != nil {
				s.logger.Printf("ranking update skipped: attempt=%s response=%s: %v", attempt.ID, resp.ID, err)
				result.RankingFailures = append(result.RankingFailures, domain.RankingFailure{
					ResponseID: resp.ID,
					QuestionID: resp.QuestionID,
					Reason:     err.Error(),
				})
			}
		}
	}

	result.Score = attempt.Score
	summarize(&result, quiz.PassingScore)
	return result, nil
}

// Preview scores a submission without persisting anything and without touching
// rankings. It serves anonymous takers of public quizzes.
func (s *AttemptService) Preview(ctx context.Context, quizID string, answers map[string]domain.Answer) (domain.SubmissionResult, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.SubmissionResult{}, err
	}
	if err := checkTakeable(quiz); err != nil {
		return domain.SubmissionResult{}, err
	}
	if !quiz.IsPublic {
		return domain.SubmissionResult{}, domain.ErrQuizNotPublic
	}

	result := domain.SubmissionResult{
		QuizID:         quiz.ID,
		TotalPoints:    quiz.TotalPoints(),
		TotalQuestions: len(quiz.Questions),
		Review:         make([]domain.ReviewItem, 0, len(quiz.Questions)),
	}
	for _, q := range quiz.Questions {
		score := ScoreAnswer(q, answers[q.ID])
		result.Score += score.Points
		if score.Points > 0 {
			result.CorrectAnswers++
		}
		result.Review = append(result.Review, reviewItem(q, score.SelectedIDs, score.TextAnswer, score.Points, score.Snapshot(q)))
	}
	summarize(&result, quiz.PassingScore)
	return result, nil
}

// Review returns the per-question breakdown of a stored attempt. Users may review
// their own attempts and the attempts of groups they belong to.
func (s *AttemptService) Review(ctx context.Context, userID, attemptID string) (domain.AttemptReview, error) {
	attempt, err := s.attempts.GetAttempt(ctx, attemptID)
	if err != nil {
		return domain.AttemptReview{}, err
	}
	if err := s.authorizeOwner(ctx, userID, attempt.Owner); err != nil {
		if errors.Is(err, domain.ErrNotGroupMember) {
			return domain.AttemptReview{}, domain.ErrReviewForbidden
		}
		return domain.AttemptReview{}, err
	}
	responses, err := s.attempts.ListResponses(ctx, attempt.ID)
	if err != nil {
		return domain.AttemptReview{}, fmt.Errorf("list responses: %w", err)
	}

	// The quiz may have been edited since; fall back to what the response itself recorded.
	questions := map[string]domain.Question{}
	if quiz, err := s.quizzes.GetQuiz(ctx, attempt.QuizID); err == nil {
		for _, q := range quiz.Questions {
			questions[q.ID] = q
		}
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.AttemptReview{}, err
	}

	review := domain.AttemptReview{
		Attempt: attempt,
		QuizID:  attempt.QuizID,
		Items:   make([]domain.ReviewItem, 0, len(responses)),
	}
	for _, resp := range responses {
		q, ok := questions[resp.QuestionID]
		if !ok {
			q = domain.Question{ID: resp.QuestionID, Type: domain.QuestionOpen}
		}
		item := reviewItem(q, resp.SelectedChoiceIDs, resp.TextAnswer, resp.PointsAwarded, resp.Snapshot)
		item.RespondedBy = resp.RespondedBy
		review.Items = append(review.Items, item)
	}
	return review, nil
}

// History lists an owner's attempts, newest first.
func (s *AttemptService) History(ctx context.Context, userID string, owner domain.Owner) ([]domain.Attempt, error) {
	if err := s.authorizeOwner(ctx, userID, owner); err != nil {
		return nil, err
	}
	return s.attempts.ListAttempts(ctx, owner)
}

func (s *AttemptService) resolveOwner(ctx context.Context, quiz domain.Quiz, sub Submitter) (domain.Owner, error) {
	if sub.GroupID == "" {
		if quiz.Participation == domain.ParticipationGroup {
			return domain.Owner{}, domain.ErrGroupRequired
		}
		return domain.UserOwner(sub.UserID), nil
	}
	if !quiz.AllowsGroups() {
		return domain.Owner{}, domain.ErrGroupNotAllowed
	}
	group, err := s.groups.GetGroup(ctx, sub.GroupID)
	if err != nil {
		return domain.Owner{}, err
	}
	if !group.IsMemberOrCaptainOrPatron(sub.UserID) {
		return domain.Owner{}, domain.ErrNotGroupMember
	}
	return domain.GroupOwner(group.ID), nil
}

func (s *AttemptService) authorizeOwner(ctx context.Context, userID string, owner domain.Owner) error {
	if userID == "" {
		return domain.ErrMissingUser
	}
	switch owner.Kind {
	case domain.OwnerUser:
		if owner.ID != userID {
			return domain.ErrReviewForbidden
		}
		return nil
	case domain.OwnerGroup:
		group, err := s.groups.GetGroup(ctx, owner.ID)
		if err != nil {
			return err
		}
		if !group.IsMemberOrCaptainOrPatron(userID) {
			return domain.ErrNotGroupMember
		}
		return nil
	default:
		return domain.ErrInvalidOwner
	}
}

func checkTakeable(quiz domain.Quiz) error {
	if !quiz.IsActive {
		return domain.ErrQuizUnavailable
	}
	if len(quiz.Questions) == 0 {
		return domain.ErrQuizHasNoQuestions
	}
	seen := make(map[string]struct{}, len(quiz.Questions))
	for _, q := range quiz.Questions {
		if _, dup := seen[q.ID]; dup {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateQuestion, q.ID)
		}
		seen[q.ID] = struct{}{}
	}
	return nil
}

// summarize fills percentage and pass state. Passing is judged on the unrounded
// percentage; the reported one is rounded half to even at one decimal.
func summarize(result *domain.SubmissionResult, passingScore int) {
	percentage := 0.0
	if result.TotalPoints > 0 {
		percentage = float64(result.Score) / float64(result.TotalPoints) * 100
	}
	result.Passed = percentage >= float64(passingScore)
	result.Percentage = math.RoundToEven(percentage*10) / 10
}
