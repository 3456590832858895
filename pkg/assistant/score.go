package assistant

// Points awarded per answer quality. Unrecognized qualities score 5.
var answerScoreMap = map[string]int{
	"excellent":         10,
	"good":              8,
	"satisfactory":      6,
	"needs_improvement": 4,
	"incorrect":         2,
}

const unknownQualityScore = 5

// ScoreState tracks one session's quiz counters and free-text notes. It is
// mutated only by tool handlers, which run sequentially within a session.
type ScoreState struct {
	score     int
	questions int
	notes     []string
}

// Reset zeroes the counters. Notes survive; they belong to the whole
// session, not one quiz run.
func (s *ScoreState) Reset() {
	s.score = 0
	s.questions = 0
}

// RecordAnswer counts a question and awards points for the answer quality.
// It returns the points awarded.
func (s *ScoreState) RecordAnswer(quality string) int {
	s.questions++
	points, ok := answerScoreMap[quality]
	if !ok {
		points = unknownQualityScore
	}
	s.score += points
	return points
}

// AddNote appends a free-text note.
func (s *ScoreState) AddNote(note string) {
	s.notes = append(s.notes, note)
}

func (s *ScoreState) Score() int     { return s.score }
func (s *ScoreState) Questions() int { return s.questions }

// Notes returns a copy of the recorded notes in order.
func (s *ScoreState) Notes() []string {
	out := make([]string, len(s.notes))
	copy(out, s.notes)
	return out
}

// Average is the cumulative score divided by max(questions, 1).
func (s *ScoreState) Average() float64 {
	n := s.questions
	if n < 1 {
		n = 1
	}
	return float64(s.score) / float64(n)
}

// LetterGrade maps an average score to the report-card ladder. Boundary
// values map to the higher grade.
func LetterGrade(avg float64) string {
	switch {
	case avg >= 9:
		return "A+"
	case avg >= 8:
		return "A"
	case avg >= 7:
		return "B"
	case avg >= 6:
		return "C"
	case avg >= 5:
		return "D"
	default:
		return "F"
	}
}

// SummaryGrade maps an average score to the four-bucket qualitative ladder
// used in the spoken quiz summary.
func SummaryGrade(avg float64) string {
	switch {
	case avg >= 8:
		return "Excellent"
	case avg >= 6:
		return "Good"
	case avg >= 4:
		return "Satisfactory"
	default:
		return "Needs Improvement"
	}
}
