package app

import "strings"

// suggestionEntry is one candidate answer for a question, with the set of
// identities that voted for it. Entries are kept in submission order so
// plurality ties resolve to the earliest suggestion.
type suggestionEntry struct {
	answer      string
	suggestedBy string
	voters      map[string]struct{}
}

func (e *suggestionEntry) view() SuggestionView {
	voters := make([]string, 0, len(e.voters))
	for id := range e.voters {
		voters = append(voters, id)
	}
	return SuggestionView{Answer: e.answer, SuggestedBy: e.suggestedBy, Voters: voters}
}

// Resolver turns a round's suggestions into one group answer and scores it.
type Resolver struct {
	// NormalizeAnswers switches correctness checking from exact string
	// equality to trimmed, case-folded comparison.
	NormalizeAnswers bool
	// PointsPerCorrect is the flat reward added to the group score per
	// correctly answered round.
	PointsPerCorrect int
}

// RoundOutcome is the result of resolving one question.
type RoundOutcome struct {
	// GroupAnswer is nil when no suggestions were cast; a no-answer round is
	// always scored incorrect.
	GroupAnswer *string
	Correct     bool
	Awarded     int
}

// Resolve picks the suggestion with the most voters. Ties break by
// submission order. The winner is compared against the question's accepted
// answer; an empty round yields no group answer.
func (r Resolver) Resolve(entries []*suggestionEntry, correctAnswer string) RoundOutcome {
	var winner *suggestionEntry
	for _, entry := range entries {
		if winner == nil || len(entry.voters) > len(winner.voters) {
			winner = entry
		}
	}
	if winner == nil {
		return RoundOutcome{}
	}

	answer := winner.answer
	outcome := RoundOutcome{GroupAnswer: &answer}
	if r.matches(answer, correctAnswer) {
		outcome.Correct = true
		outcome.Awarded = r.PointsPerCorrect
	}
	return outcome
}

func (r Resolver) matches(answer, correct string) bool {
	if r.NormalizeAnswers {
		return strings.EqualFold(strings.TrimSpace(answer), strings.TrimSpace(correct))
	}
	return answer == correct
}
