package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projectgen/liya/pkg/feedback"
)

type fakeSender struct {
	sent     [][]byte
	reliable []bool
	err      error
}

func (f *fakeSender) SendData(data []byte, reliable bool) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, data)
	f.reliable = append(f.reliable, reliable)
	return nil
}

func dispatch(t *testing.T, a *Assistant, name string, args map[string]interface{}) string {
	t.Helper()
	result, err := a.Dispatch(context.Background(), name, args)
	require.NoError(t, err)
	return result
}

func TestDispatchUnknownTool(t *testing.T) {
	a := New(nil, nil, nil)
	_, err := a.Dispatch(context.Background(), "fly_to_moon", nil)
	assert.Error(t, err)
}

func TestRecordObservation(t *testing.T) {
	a := New(nil, nil, nil)
	result := dispatch(t, a, "record_observation", map[string]interface{}{
		"observation": "asks clarifying questions",
	})

	assert.Equal(t, "Observation recorded for the final report.", result)
	assert.Equal(t, []string{"Observation: asks clarifying questions"}, a.Scores().Notes())
}

func TestStartQuizResetsCounters(t *testing.T) {
	a := New(nil, nil, nil)
	a.Scores().RecordAnswer("excellent")

	result := dispatch(t, a, "start_quiz", map[string]interface{}{"project_name": "Chat App"})
	assert.Contains(t, result, "Starting viva session for project: Chat App")
	assert.Equal(t, 0, a.Scores().Score())
	assert.Equal(t, 0, a.Scores().Questions())

	// Starting again resets regardless of prior state.
	a.Scores().RecordAnswer("good")
	dispatch(t, a, "start_quiz", map[string]interface{}{"project_name": "Chat App"})
	assert.Equal(t, 0, a.Scores().Score())
	assert.Equal(t, 0, a.Scores().Questions())
}

func TestRecordQuizAnswer(t *testing.T) {
	a := New(nil, nil, nil)

	result := dispatch(t, a, "record_quiz_answer", map[string]interface{}{
		"question":       "What does your project solve?",
		"answer_quality": "good",
		"notes":          "clear explanation",
	})

	assert.Equal(t, "Answer recorded. Quality: good", result)
	assert.Equal(t, 8, a.Scores().Score())
	assert.Equal(t, 1, a.Scores().Questions())
	assert.Equal(t, []string{"Q1: What does your project solve? - good: clear explanation"}, a.Scores().Notes())
}

func TestUpdateProjectStatus(t *testing.T) {
	sender := &fakeSender{}
	a := New(&StudentContext{Name: "Asha"}, sender, nil)

	result := dispatch(t, a, "update_project_status", map[string]interface{}{
		"project_id": "p1",
		"status":     "in-progress",
		"progress":   float64(60), // JSON numbers decode to float64
	})

	assert.Contains(t, result, "'in-progress' with 60% progress")
	require.Len(t, sender.sent, 1)
	assert.True(t, sender.reliable[0])

	var msg ProjectStatusUpdate
	require.NoError(t, json.Unmarshal(sender.sent[0], &msg))
	assert.Equal(t, "update_project_status", msg.Type)
	assert.Equal(t, "p1", msg.Data.ProjectID)
	assert.Equal(t, "in-progress", msg.Data.Status)
	assert.Equal(t, 60, msg.Data.Progress)
}

func TestUpdateProjectStatusSendFailure(t *testing.T) {
	sender := &fakeSender{err: errors.New("channel closed")}
	a := New(nil, sender, nil)

	result := dispatch(t, a, "update_project_status", map[string]interface{}{
		"project_id": "p1",
		"status":     "completed",
		"progress":   float64(100),
	})

	// Emission failure surfaces as a describing acknowledgment, not an error.
	assert.Contains(t, result, "technical issue")
	assert.Contains(t, result, "channel closed")
}

func TestSubmitFeedbackDeliversRecord(t *testing.T) {
	var received feedback.Record
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
	}))
	defer server.Close()

	student := &StudentContext{
		Name:       "Asha",
		Email:      "asha@example.com",
		SkillLevel: "Intermediate",
		Interests:  []string{"web"},
		ExternalID: "user_123",
		ActiveProjects: []Project{
			{Title: "Chat App", Domain: "Web", Progress: 40, CurrentPhase: "Backend", Technologies: []string{"Go"}},
		},
	}
	a := New(student, nil, feedback.NewSubmitter(server.URL, 0))
	a.Scores().RecordAnswer("excellent")
	a.Scores().RecordAnswer("good")

	result := dispatch(t, a, "submit_feedback", map[string]interface{}{
		"overall_rating": "good",
		"strengths":      "solid fundamentals",
		"improvements":   "testing discipline",
		"recommendation": "keep going",
	})

	assert.Contains(t, result, "Grade: A+")
	assert.Contains(t, result, "Score: 9.0/10")

	assert.True(t, received.SendEmail)
	assert.Equal(t, "Asha", received.StudentName)
	assert.Equal(t, "user_123", received.ExternalID)
	assert.Equal(t, "A+", received.Grade)
	assert.Equal(t, 9.0, received.QuizScore)
	assert.Equal(t, 2, received.QuestionsAsked)
	assert.Equal(t, 18, received.TotalPoints)
	assert.Equal(t, "quiz_viva", received.FeedbackType)
	assert.Equal(t, "Liya AI Coach", received.Evaluator)
	require.NotNil(t, received.Project)
	assert.Equal(t, "Chat App", received.Project.Title)
	assert.Equal(t, "Chat App", received.ProjectName)
}

func TestSubmitFeedbackWebhookFailureStillAcknowledges(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	a := New(&StudentContext{Name: "Asha"}, nil, feedback.NewSubmitter(server.URL, 0))
	a.Scores().RecordAnswer("good")

	result := dispatch(t, a, "submit_feedback", map[string]interface{}{
		"overall_rating": "good",
	})

	assert.Contains(t, result, "Grade: A")
	assert.Contains(t, result, "Score: 8.0/10")
}

func TestSubmitFeedbackDefaults(t *testing.T) {
	var received feedback.Record
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
	}))
	defer server.Close()

	a := New(nil, nil, feedback.NewSubmitter(server.URL, 0))
	dispatch(t, a, "submit_feedback", map[string]interface{}{"overall_rating": "satisfactory"})

	assert.Equal(t, "Unknown Student", received.StudentName)
	assert.Equal(t, "Not specified", received.SkillLevel)
	assert.Equal(t, "No Project", received.ProjectName)
	assert.Nil(t, received.Project)
	assert.Equal(t, "F", received.Grade)
}

func TestReviewPresentation(t *testing.T) {
	a := New(nil, nil, nil)
	result := dispatch(t, a, "review_presentation", map[string]interface{}{
		"slide_content": "architecture diagram",
		"feedback":      "label the data flow",
	})

	assert.Equal(t, "Slide reviewed: label the data flow", result)
	assert.Equal(t, []string{"Slide Review: architecture diagram - label the data flow"}, a.Scores().Notes())
}

func TestEndQuizSession(t *testing.T) {
	t.Run("no questions", func(t *testing.T) {
		a := New(nil, nil, nil)
		result := dispatch(t, a, "end_quiz_session", nil)
		assert.Equal(t, "No questions were asked in this session.", result)
	})

	t.Run("with questions", func(t *testing.T) {
		a := New(nil, nil, nil)
		a.Scores().RecordAnswer("excellent")
		a.Scores().RecordAnswer("satisfactory")

		result := dispatch(t, a, "end_quiz_session", nil)
		assert.Contains(t, result, "Questions asked: 2")
		assert.Contains(t, result, "Average score: 8.0/10")
		assert.Contains(t, result, "Grade: Excellent")
	})
}

func TestTestWebhook(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		var payload feedback.TestPayload
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			fmt.Fprint(w, "ok")
		}))
		defer server.Close()

		a := New(&StudentContext{Name: "Asha"}, nil, feedback.NewSubmitter(server.URL, 0))
		result := dispatch(t, a, "test_webhook", nil)

		assert.Contains(t, result, "working correctly")
		assert.Contains(t, result, "Status: 200")
		assert.True(t, payload.Test)
		assert.Equal(t, "Asha", payload.StudentName)
	})

	t.Run("non-200", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		a := New(nil, nil, feedback.NewSubmitter(server.URL, 0))
		result := dispatch(t, a, "test_webhook", nil)
		assert.Contains(t, result, "status 502")
	})

	t.Run("unreachable", func(t *testing.T) {
		a := New(nil, nil, feedback.NewSubmitter("http://127.0.0.1:1/webhook", 0))
		result := dispatch(t, a, "test_webhook", nil)
		assert.Contains(t, result, "failed with error")
	})
}

func TestToolSurfaceIsComplete(t *testing.T) {
	a := New(nil, nil, nil)

	names := make([]string, 0, len(a.Tools()))
	for _, tool := range a.Tools() {
		names = append(names, tool.Name)
	}

	assert.ElementsMatch(t, []string{
		"record_observation",
		"start_quiz",
		"record_quiz_answer",
		"update_project_status",
		"submit_feedback",
		"review_presentation",
		"end_quiz_session",
		"test_webhook",
	}, names)
}
