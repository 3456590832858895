package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/projectgen/liya/pkg/feedback"
	"github.com/projectgen/liya/pkg/trace"
)

// ProjectStatusUpdate is the reliable data message sent to the room when a
// project's dashboard status changes.
type ProjectStatusUpdate struct {
	Type string            `json:"type"`
	Data ProjectStatusData `json:"data"`
}

type ProjectStatusData struct {
	ProjectID string `json:"projectId"`
	Status    string `json:"status"`
	Progress  int    `json:"progress"`
}

// DataSender publishes structured messages to the room. Satisfied by
// room.Room.
type DataSender interface {
	SendData(data []byte, reliable bool) error
}

// Assistant is one session's project coach: the student profile, the quiz
// counters, and the tools bound to them.
type Assistant struct {
	student   *StudentContext
	scores    ScoreState
	sender    DataSender
	submitter *feedback.Submitter

	tools     []Tool
	toolIndex map[string]Tool
}

// New creates an assistant for one session. student may be nil when the
// context handshake timed out; sender and submitter may be nil in tests.
func New(student *StudentContext, sender DataSender, submitter *feedback.Submitter) *Assistant {
	a := &Assistant{
		student:   student,
		sender:    sender,
		submitter: submitter,
	}
	a.tools = a.buildTools()
	a.toolIndex = make(map[string]Tool, len(a.tools))
	for _, t := range a.tools {
		a.toolIndex[t.Name] = t
	}
	return a
}

// Student returns the profile snapshot, possibly nil.
func (a *Assistant) Student() *StudentContext {
	return a.student
}

// Scores exposes the quiz state for inspection.
func (a *Assistant) Scores() *ScoreState {
	return &a.scores
}

// Instructions returns the personalized system prompt.
func (a *Assistant) Instructions() string {
	return BuildInstructions(a.student)
}

// Tools returns the assistant's tool surface.
func (a *Assistant) Tools() []Tool {
	return a.tools
}

func (a *Assistant) studentName(def string) string {
	if a.student == nil || a.student.Name == "" {
		return def
	}
	return a.student.Name
}

func (a *Assistant) buildTools() []Tool {
	return []Tool{
		{
			Name:        "record_observation",
			Description: "Record an observation about the student's learning progress or behavior during the session.",
			Parameters: []Parameter{
				{Name: "observation", Type: "string", Description: "The specific observation to record", Required: true},
				{Name: "urgency", Type: "string", Description: "How urgent the observation is", Enum: []string{"low", "medium", "high"}},
			},
			Handler: a.recordObservation,
		},
		{
			Name:        "start_quiz",
			Description: "Start a quiz/viva session to test student knowledge about their project.",
			Parameters: []Parameter{
				{Name: "project_name", Type: "string", Description: "The name of the project to quiz about", Required: true},
			},
			Handler: a.startQuiz,
		},
		{
			Name:        "record_quiz_answer",
			Description: "Record a student's answer quality during the quiz.",
			Parameters: []Parameter{
				{Name: "question", Type: "string", Description: "The question that was asked", Required: true},
				{Name: "answer_quality", Type: "string", Description: "Rating of the answer", Required: true,
					Enum: []string{"excellent", "good", "satisfactory", "needs_improvement", "incorrect"}},
				{Name: "notes", Type: "string", Description: "Additional notes about the answer"},
			},
			Handler: a.recordQuizAnswer,
		},
		{
			Name: "update_project_status",
			Description: "Update the status and progress of a student's project in the dashboard. " +
				"Use this when a student completes a phase, starts a new one, or makes significant progress.",
			Parameters: []Parameter{
				{Name: "project_id", Type: "string", Description: "The unique ID of the project to update", Required: true},
				{Name: "status", Type: "string", Description: "New status", Required: true,
					Enum: []string{"planning", "in-progress", "completed", "paused"}},
				{Name: "progress", Type: "integer", Description: "New progress percentage (0-100)", Required: true},
			},
			Handler: a.updateProjectStatus,
		},
		{
			Name: "submit_feedback",
			Description: "Submit student feedback to the evaluation system via the feedback webhook. " +
				"This will also trigger an email to be sent to the student with their feedback.",
			Parameters: []Parameter{
				{Name: "overall_rating", Type: "string", Description: "Overall rating", Required: true,
					Enum: []string{"excellent", "good", "satisfactory", "needs_improvement"}},
				{Name: "strengths", Type: "string", Description: "Key strengths observed in the student's work", Required: true},
				{Name: "improvements", Type: "string", Description: "Areas that need improvement", Required: true},
				{Name: "recommendation", Type: "string", Description: "Final recommendation or comments", Required: true},
			},
			Handler: a.submitFeedback,
		},
		{
			Name:        "review_presentation",
			Description: "Review a presentation slide and provide feedback.",
			Parameters: []Parameter{
				{Name: "slide_content", Type: "string", Description: "Description of what's on the current slide", Required: true},
				{Name: "feedback", Type: "string", Description: "Feedback for this slide", Required: true},
			},
			Handler: a.reviewPresentation,
		},
		{
			Name:        "end_quiz_session",
			Description: "End the quiz session and provide a summary.",
			Handler:     a.endQuizSession,
		},
		{
			Name: "test_webhook",
			Description: "Test the feedback webhook connection to verify it's working correctly. " +
				"Use this when the user asks to test the webhook.",
			Handler: a.testWebhook,
		},
	}
}

func (a *Assistant) recordObservation(ctx context.Context, args map[string]interface{}) (string, error) {
	observation := stringArg(args, "observation")
	a.scores.AddNote(fmt.Sprintf("Observation: %s", observation))
	log.Printf("[Assistant] recorded observation: %s", observation)
	return "Observation recorded for the final report.", nil
}

func (a *Assistant) startQuiz(ctx context.Context, args map[string]interface{}) (string, error) {
	projectName := stringArg(args, "project_name")
	a.scores.Reset()
	log.Printf("[Assistant] starting quiz for project: %s", projectName)
	return fmt.Sprintf("Starting viva session for project: %s. I will ask you questions about your project. Answer honestly and explain your understanding.", projectName), nil
}

func (a *Assistant) recordQuizAnswer(ctx context.Context, args map[string]interface{}) (string, error) {
	question := stringArg(args, "question")
	quality := stringArg(args, "answer_quality")
	notes := stringArg(args, "notes")

	a.scores.RecordAnswer(quality)
	a.scores.AddNote(fmt.Sprintf("Q%d: %s - %s: %s", a.scores.Questions(), question, quality, notes))
	log.Printf("[Assistant] recorded answer: %s for question: %s", quality, question)
	return fmt.Sprintf("Answer recorded. Quality: %s", quality), nil
}

func (a *Assistant) updateProjectStatus(ctx context.Context, args map[string]interface{}) (string, error) {
	projectID := stringArg(args, "project_id")
	status := stringArg(args, "status")
	progress := intArg(args, "progress")

	log.Printf("[Assistant] updating project %s for %s -> %s (%d%%)", projectID, a.studentName("Student"), status, progress)

	payload, err := json.Marshal(ProjectStatusUpdate{
		Type: "update_project_status",
		Data: ProjectStatusData{
			ProjectID: projectID,
			Status:    status,
			Progress:  progress,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal project status update: %w", err)
	}

	if a.sender == nil {
		return "I tried to update your project status but the room connection is not available.", nil
	}

	if err := a.sender.SendData(payload, true); err != nil {
		log.Printf("[Assistant] failed to send project update signal: %v", err)
		return fmt.Sprintf("I tried to update your project status but encountered a technical issue: %v", err), nil
	}

	log.Printf("[Assistant] project update signal sent to room")
	return fmt.Sprintf("I've updated your project status in the dashboard to '%s' with %d%% progress. Great work!", status, progress), nil
}

func (a *Assistant) submitFeedback(ctx context.Context, args map[string]interface{}) (string, error) {
	overallRating := stringArg(args, "overall_rating")
	strengths := stringArg(args, "strengths")
	improvements := stringArg(args, "improvements")
	recommendation := stringArg(args, "recommendation")

	studentName := a.studentName("Unknown Student")
	var studentEmail, skillLevel, externalID string
	var interests []string
	if a.student != nil {
		studentEmail = a.student.Email
		skillLevel = a.student.SkillLevel
		interests = a.student.Interests
		externalID = a.student.ExternalID
	}
	if skillLevel == "" {
		skillLevel = "Not specified"
	}

	var projectInfo *feedback.ProjectInfo
	projectName := "No Project"
	if p := a.student.FirstProject(); p != nil {
		title := p.Title
		if title == "" {
			title = "Unknown Project"
		}
		domain := p.Domain
		if domain == "" {
			domain = "General"
		}
		phase := p.CurrentPhase
		if phase == "" {
			phase = "Not started"
		}
		projectInfo = &feedback.ProjectInfo{
			Title:        title,
			Domain:       domain,
			Progress:     p.Progress,
			CurrentPhase: phase,
			Technologies: p.Technologies,
		}
		projectName = title
	}

	avg := a.scores.Average()
	grade := LetterGrade(avg)
	now := time.Now()

	record := feedback.Record{
		SendEmail:      true,
		StudentName:    studentName,
		StudentEmail:   studentEmail,
		SkillLevel:     skillLevel,
		Interests:      interests,
		ExternalID:     externalID,
		Project:        projectInfo,
		ProjectName:    projectName,
		OverallRating:  overallRating,
		QuizScore:      roundTo(avg, 2),
		Grade:          grade,
		QuestionsAsked: a.scores.Questions(),
		TotalPoints:    a.scores.Score(),
		Strengths:      strengths,
		Improvements:   improvements,
		Recommendation: recommendation,
		DetailedNotes:  a.scores.Notes(),
		FeedbackType:   "quiz_viva",
		Evaluator:      "Liya AI Coach",
		Timestamp:      now.Format(time.RFC3339),
		Date:           now.Format("January 2, 2006"),
		Time:           now.Format("3:04 PM"),
	}

	log.Printf("[Assistant] feedback submission for %s <%s>: rating=%s grade=%s score=%.2f",
		studentName, studentEmail, overallRating, grade, avg)

	// Delivery failure is log-only; the spoken acknowledgment always carries
	// the locally computed grade and score.
	if a.submitter != nil {
		ctx, span := trace.StartSpan(ctx, "feedback.submit")
		span.SetAttributes(trace.QuizAttrs(a.scores.Questions(), avg, grade)...)

		result := a.submitter.Submit(ctx, record)
		span.SetAttributes(trace.WebhookAttrs(result.Outcome.String(), result.StatusCode)...)
		trace.RecordError(span, result.Err)
		span.End()

		switch result.Outcome {
		case feedback.OutcomeSuccess:
			log.Printf("[Assistant] feedback webhook: delivered")
		case feedback.OutcomeFailed:
			log.Printf("[Assistant] feedback webhook: status %d", result.StatusCode)
		default:
			log.Printf("[Assistant] feedback webhook: %s: %v", result.Outcome, result.Err)
		}
	}

	return fmt.Sprintf("Feedback synchronized! Grade: %s, Score: %.1f/10. (Target: %s)", grade, avg, studentEmail), nil
}

func (a *Assistant) reviewPresentation(ctx context.Context, args map[string]interface{}) (string, error) {
	slideContent := stringArg(args, "slide_content")
	fb := stringArg(args, "feedback")

	a.scores.AddNote(fmt.Sprintf("Slide Review: %s - %s", slideContent, fb))
	log.Printf("[Assistant] reviewing slide: %s", slideContent)
	return fmt.Sprintf("Slide reviewed: %s", fb), nil
}

func (a *Assistant) endQuizSession(ctx context.Context, args map[string]interface{}) (string, error) {
	if a.scores.Questions() == 0 {
		return "No questions were asked in this session.", nil
	}

	avg := a.scores.Average()
	summary := fmt.Sprintf("Quiz completed! Questions asked: %d, Average score: %.1f/10, Grade: %s",
		a.scores.Questions(), avg, SummaryGrade(avg))
	log.Printf("[Assistant] %s", summary)
	return summary, nil
}

func (a *Assistant) testWebhook(ctx context.Context, args map[string]interface{}) (string, error) {
	if a.submitter == nil {
		return "No feedback webhook is configured, so there is nothing to test.", nil
	}

	payload := feedback.TestPayload{
		Test:        true,
		StudentName: a.studentName("Test Student"),
		Message:     "This is a test from Liya AI Coach",
		Timestamp:   time.Now().Format(time.RFC3339),
	}

	log.Printf("[Assistant] testing feedback webhook: %s", a.submitter.URL())

	ctx, span := trace.StartSpan(ctx, "feedback.test")
	result := a.submitter.Submit(ctx, payload)
	span.SetAttributes(trace.WebhookAttrs(result.Outcome.String(), result.StatusCode)...)
	trace.RecordError(span, result.Err)
	span.End()

	switch result.Outcome {
	case feedback.OutcomeSuccess:
		log.Printf("[Assistant] webhook test succeeded: %s", result.Body)
		return fmt.Sprintf("Great news! The feedback webhook is working correctly. Status: %d. The feedback system is ready to receive data.", result.StatusCode), nil
	case feedback.OutcomeFailed:
		log.Printf("[Assistant] webhook test returned status %d: %s", result.StatusCode, result.Body)
		return fmt.Sprintf("The feedback webhook responded with status %d. This might indicate a configuration issue.", result.StatusCode), nil
	case feedback.OutcomeTimeout:
		log.Printf("[Assistant] webhook test timed out")
		return "The webhook test timed out. The server might be slow or unreachable.", nil
	default:
		log.Printf("[Assistant] webhook test failed: %v", result.Err)
		return fmt.Sprintf("The webhook test failed with error: %v. Please check the webhook URL configuration.", result.Err), nil
	}
}

func roundTo(v float64, places int) float64 {
	shift := 1.0
	for i := 0; i < places; i++ {
		shift *= 10
	}
	return float64(int(v*shift+0.5)) / shift
}
