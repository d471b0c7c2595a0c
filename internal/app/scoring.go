package app

import (
	"math"

	"trivia-service/internal/domain"
)

// Score is the outcome of scoring one answer against one question.
type Score struct {
	Points        int
	SelectedIDs   []string
	WrongSelected int
	TextAnswer    string
}

// Snapshot freezes the penalty inputs of this score for the question as it is now.
func (s Score) Snapshot(q domain.Question) domain.PenaltySnapshot {
	return domain.PenaltySnapshot{WrongSelected: s.WrongSelected, QuestionPenalty: q.Penalty}
}

// ScoreAnswer is pure: the same question and answer always produce the same score.
//
// Open questions are never graded. A lone ChoiceID is all-or-nothing. A ChoiceIDs list
// earns proportional credit over the correct choices, minus penalty per wrong choice
// when the question has one. Ties round half to even and the result is never negative.
func ScoreAnswer(q domain.Question, a domain.Answer) Score {
	if q.Type == domain.QuestionOpen {
		return Score{TextAnswer: a.Text}
	}
	if len(a.ChoiceIDs) == 0 {
		return scoreSingle(q, a.ChoiceID)
	}
	return scoreSelection(q, a.ChoiceIDs)
}

func scoreSingle(q domain.Question, choiceID string) Score {
	if choiceID == "" {
		return Score{}
	}
	choice, ok := q.Choice(choiceID)
	if !ok {
		return Score{}
	}
	if choice.IsCorrect {
		return Score{Points: q.Points, SelectedIDs: []string{choice.ID}}
	}
	return Score{SelectedIDs: []string{choice.ID}, WrongSelected: 1}
}

func scoreSelection(q domain.Question, ids []string) Score {
	submitted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		submitted[id] = struct{}{}
	}

	// Walk the question's choices so foreign ids drop out and the order is stable.
	var (
		selected      []string
		correctHits   int
		wrongSelected int
		denom         int
	)
	for _, c := range q.Choices {
		if c.IsCorrect {
			denom++
		}
		if _, ok := submitted[c.ID]; !ok {
			continue
		}
		selected = append(selected, c.ID)
		if c.IsCorrect {
			correctHits++
		} else {
			wrongSelected++
		}
	}
	if len(selected) == 0 {
		return Score{}
	}

	out := Score{SelectedIDs: selected, WrongSelected: wrongSelected}
	if denom == 0 {
		return out
	}

	base := float64(q.Points) * float64(correctHits) / float64(denom)
	if q.Penalty == 0 {
		if correctHits > 0 {
			out.Points = int(math.RoundToEven(base))
		}
		return out
	}
	pts := int(math.RoundToEven(base - float64(q.Penalty*wrongSelected)))
	if pts > 0 {
		out.Points = pts
	}
	return out
}

// IntegrityWarning flags a question that can never award points, or awards none by design.
type IntegrityWarning struct {
	QuestionID string
	Reason     string
}

// ValidateQuiz reports authoring problems that degrade scoring without making it fail.
func ValidateQuiz(quiz domain.Quiz) []IntegrityWarning {
	var warnings []IntegrityWarning
	for _, q := range quiz.Questions {
		if q.Points <= 0 {
			warnings = append(warnings, IntegrityWarning{QuestionID: q.ID, Reason: "question points must be positive"})
		}
		if q.Type == domain.QuestionOpen {
			continue
		}
		switch {
		case len(q.Choices) == 0:
			warnings = append(warnings, IntegrityWarning{QuestionID: q.ID, Reason: "question has no choices"})
		case len(q.CorrectChoiceIDs()) == 0:
			warnings = append(warnings, IntegrityWarning{QuestionID: q.ID, Reason: "question has no correct choice"})
		}
	}
	return warnings
}

// reviewItem builds the per-question review from a stored or ephemeral score.
func reviewItem(q domain.Question, selected []string, text string, points int, snap domain.PenaltySnapshot) domain.ReviewItem {
	item := domain.ReviewItem{
		QuestionID:     q.ID,
		QuestionText:   q.Text,
		QuestionType:   q.Type,
		SelectedIDs:    nonNil(selected),
		CorrectIDs:     nonNil(q.CorrectChoiceIDs()),
		PointsAwarded:  points,
		QuestionPoints: q.Points,
		TextAnswer:     text,
		Metadata:       snap,
	}
	if q.Type != domain.QuestionOpen {
		ok := sameSet(item.SelectedIDs, item.CorrectIDs)
		item.IsCorrect = &ok
	}
	return item
}

func sameSet(a, b []string) bool {
	set := make(map[string]struct{}, len(a))
	for _, id := range a {
		set[id] = struct{}{}
	}
	other := make(map[string]struct{}, len(b))
	for _, id := range b {
		if _, ok := set[id]; !ok {
			return false
		}
		other[id] = struct{}{}
	}
	return len(set) == len(other)
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
