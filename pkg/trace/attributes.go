package trace

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys used across the agent's spans.
const (
	AttrSessionID    = "session.id"
	AttrSessionState = "session.state"

	AttrToolName = "tool.name"

	AttrQuizQuestions = "quiz.questions"
	AttrQuizScore     = "quiz.score"
	AttrQuizGrade     = "quiz.grade"

	AttrWebhookOutcome = "webhook.outcome"
	AttrWebhookStatus  = "webhook.status"

	AttrLLMProvider = "llm.provider"
	AttrLLMModel    = "llm.model"
)

// SessionAttrs creates attributes for session lifecycle spans.
func SessionAttrs(sessionID, state string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrSessionID, sessionID),
		attribute.String(AttrSessionState, state),
	}
}

// ToolAttrs creates attributes for tool invocation spans.
func ToolAttrs(toolName string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrToolName, toolName),
	}
}

// QuizAttrs creates attributes for evaluation results.
func QuizAttrs(questions int, score float64, grade string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrQuizQuestions, questions),
		attribute.Float64(AttrQuizScore, score),
		attribute.String(AttrQuizGrade, grade),
	}
}

// WebhookAttrs creates attributes for feedback delivery spans.
func WebhookAttrs(outcome string, status int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrWebhookOutcome, outcome),
		attribute.Int(AttrWebhookStatus, status),
	}
}

// LLMAttrs creates attributes for language model calls.
func LLMAttrs(provider, model string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrLLMProvider, provider),
		attribute.String(AttrLLMModel, model),
	}
}
