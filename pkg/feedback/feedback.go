// Package feedback delivers student evaluation records to the external
// feedback webhook.
package feedback

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultTimeout bounds every outbound webhook call.
const DefaultTimeout = 10 * time.Second

// Outcome classifies the result of a webhook delivery.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeFailed          // Non-200 HTTP status
	OutcomeTimeout
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailed:
		return "failed"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeError:
		return "error"
	default:
		return "unknown"
	}
}

// Result is the classified outcome of one delivery attempt. It is always
// returned, never panicked or propagated as a raw transport error.
type Result struct {
	Outcome    Outcome
	StatusCode int
	Body       string
	Err        error
}

// ProjectInfo is the project block of a feedback record.
type ProjectInfo struct {
	Title        string   `json:"title"`
	Domain       string   `json:"domain"`
	Progress     int      `json:"progress"`
	CurrentPhase string   `json:"current_phase"`
	Technologies []string `json:"technologies"`
}

// Record is the evaluation payload POSTed to the feedback webhook. The
// SendEmail flag asks the downstream workflow to mail the student a copy.
type Record struct {
	SendEmail bool `json:"send_email"`

	StudentName  string   `json:"student_name"`
	StudentEmail string   `json:"student_email"`
	SkillLevel   string   `json:"skill_level"`
	Interests    []string `json:"interests"`
	ExternalID   string   `json:"convex_user_id,omitempty"`

	Project     *ProjectInfo `json:"project"`
	ProjectName string       `json:"project_name"`

	OverallRating  string  `json:"overall_rating"`
	QuizScore      float64 `json:"quiz_score"`
	Grade          string  `json:"grade"`
	QuestionsAsked int     `json:"questions_asked"`
	TotalPoints    int     `json:"total_points"`

	Strengths      string   `json:"strengths"`
	Improvements   string   `json:"improvements"`
	Recommendation string   `json:"recommendation"`
	DetailedNotes  []string `json:"detailed_notes"`

	FeedbackType string `json:"feedback_type"`
	Evaluator    string `json:"evaluator"`
	Timestamp    string `json:"timestamp"`
	Date         string `json:"date"`
	Time         string `json:"time"`
}

// TestPayload is the small probe sent by the webhook connectivity check.
type TestPayload struct {
	Test        bool   `json:"test"`
	StudentName string `json:"student_name"`
	Message     string `json:"message"`
	Timestamp   string `json:"timestamp"`
}

// Submitter POSTs JSON payloads to the feedback webhook with a bounded
// timeout on every call.
type Submitter struct {
	url        string
	timeout    time.Duration
	httpClient *http.Client
}

// NewSubmitter creates a submitter for the given webhook URL. A zero timeout
// falls back to DefaultTimeout.
func NewSubmitter(url string, timeout time.Duration) *Submitter {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Submitter{
		url:        url,
		timeout:    timeout,
		httpClient: &http.Client{},
	}
}

// URL returns the webhook URL the submitter delivers to.
func (s *Submitter) URL() string {
	return s.url
}

// Submit delivers a payload and classifies the outcome. It never returns an
// error; transport failures become Result classifications.
func (s *Submitter) Submit(ctx context.Context, payload interface{}) Result {
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{Outcome: OutcomeError, Err: fmt.Errorf("marshal payload: %w", err)}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return Result{Outcome: OutcomeError, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Result{Outcome: OutcomeTimeout, Err: err}
		}
		return Result{Outcome: OutcomeError, Err: err}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode != http.StatusOK {
		return Result{Outcome: OutcomeFailed, StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	return Result{Outcome: OutcomeSuccess, StatusCode: resp.StatusCode, Body: string(respBody)}
}
