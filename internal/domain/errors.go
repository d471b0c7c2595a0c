package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation classifies malformed or inconsistent input; nothing was persisted.
	ErrValidation = errors.New("validation failed")
	// ErrPermission classifies requests the actor is not authorized to make.
	ErrPermission = errors.New("permission denied")
	// ErrConflict classifies retryable uniqueness races.
	ErrConflict = errors.New("conflict")
	// ErrNotFound classifies missing records.
	ErrNotFound = errors.New("not found")
)

var (
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = fmt.Errorf("quiz %w", ErrNotFound)
	// ErrGroupNotFound indicates the named trivia group does not exist.
	ErrGroupNotFound = fmt.Errorf("%w: trivia group not found", ErrValidation)
	// ErrAttemptNotFound indicates an unknown attempt id.
	ErrAttemptNotFound = fmt.Errorf("attempt %w", ErrNotFound)
	// ErrRankingNotFound indicates the owner has no ranking yet.
	ErrRankingNotFound = fmt.Errorf("ranking %w", ErrNotFound)

	ErrQuizHasNoQuestions = fmt.Errorf("%w: quiz has no questions", ErrValidation)
	ErrQuizUnavailable    = fmt.Errorf("%w: quiz is not available", ErrValidation)
	ErrQuizNotPublic      = fmt.Errorf("%w: quiz is not public", ErrValidation)
	ErrDuplicateQuestion  = fmt.Errorf("%w: quiz lists a question more than once", ErrValidation)
	ErrMissingUser        = fmt.Errorf("%w: authenticated user required", ErrValidation)
	ErrGroupRequired      = fmt.Errorf("%w: quiz must be taken by a group", ErrValidation)
	ErrGroupNotAllowed    = fmt.Errorf("%w: quiz does not accept group submissions", ErrValidation)
	ErrInvalidOwner       = fmt.Errorf("%w: unknown owner kind", ErrValidation)

	// ErrNotGroupMember is returned when the submitter is neither member, captain nor patron.
	ErrNotGroupMember = fmt.Errorf("%w: user cannot act for this group", ErrPermission)
	// ErrReviewForbidden is returned when a user asks for someone else's attempt.
	ErrReviewForbidden = fmt.Errorf("%w: attempt belongs to another owner", ErrPermission)

	// ErrAttemptConflict is returned when attempt numbering collides; callers may retry.
	ErrAttemptConflict = fmt.Errorf("%w: attempt number already taken", ErrConflict)
	// ErrDuplicateResponse is returned when an attempt already has a response for a question.
	ErrDuplicateResponse = fmt.Errorf("%w: response already recorded", ErrConflict)

	// ErrRankingOwnerUnresolved means the response carried no owner to rank.
	ErrRankingOwnerUnresolved = errors.New("ranking owner unresolved")
)
