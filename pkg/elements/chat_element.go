package elements

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"

	"github.com/projectgen/liya/pkg/assistant"
	"github.com/projectgen/liya/pkg/pipeline"
	"github.com/projectgen/liya/pkg/trace"
)

var _ pipeline.Element = (*ChatElement)(nil)

// maxToolRounds bounds the completion/tool-call loop within one turn.
const maxToolRounds = 5

// ToolDispatcher resolves tool calls issued by the language model.
// Satisfied by assistant.Assistant.
type ToolDispatcher interface {
	Tools() []assistant.Tool
	Dispatch(ctx context.Context, name string, args map[string]interface{}) (string, error)
}

// ChatConfig holds configuration for the chat element.
type ChatConfig struct {
	APIKey       string // OpenAI API key
	Model        string // Model name (default "gpt-4o-mini")
	SystemPrompt string // System prompt for the assistant
	MaxTokens    int    // Maximum tokens in response (0 = default)
	MaxHistory   int    // Maximum history messages retained (default 20)
}

// ChatElement runs conversational turns through the OpenAI chat completion
// API. User text triggers a completion with the assistant's tool surface
// attached; scripted "say" text bypasses the model and flows straight to
// synthesis.
type ChatElement struct {
	*pipeline.BaseElement

	config     ChatConfig
	client     *openai.Client
	dispatcher ToolDispatcher
	history    []openai.ChatCompletionMessageParamUnion

	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
}

// NewChatElement creates a chat element. dispatcher may be nil for plain
// conversation without tools.
func NewChatElement(config ChatConfig, dispatcher ToolDispatcher) (*ChatElement, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if config.Model == "" {
		config.Model = "gpt-4o-mini"
	}
	if config.SystemPrompt == "" {
		config.SystemPrompt = "You are a helpful voice assistant. Keep your responses concise and conversational."
	}
	if config.MaxHistory == 0 {
		config.MaxHistory = 20
	}

	return &ChatElement{
		BaseElement: pipeline.NewBaseElement("chat", 100),
		config:      config,
		dispatcher:  dispatcher,
		history:     make([]openai.ChatCompletionMessageParamUnion, 0),
	}, nil
}

func (e *ChatElement) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	opts := []option.RequestOption{
		option.WithAPIKey(e.config.APIKey),
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	e.client = &client

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.processLoop(ctx)
	}()

	log.Printf("[Chat] Started (model: %s, tools: %d, max_history: %d)",
		e.config.Model, len(e.toolParams()), e.config.MaxHistory)
	return nil
}

func (e *ChatElement) Stop() error {
	if e.cancel != nil {
		e.cancel()
		e.wg.Wait()
		e.cancel = nil
	}
	log.Println("[Chat] Stopped")
	return nil
}

func (e *ChatElement) processLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-e.BaseElement.InChan:
			if !ok {
				return
			}
			if msg.Type != pipeline.MsgTypeData || msg.TextData == nil {
				e.BaseElement.OutChan <- msg
				continue
			}

			text := strings.TrimSpace(string(msg.TextData.Data))
			if text == "" {
				continue
			}

			switch msg.TextData.TextType {
			case pipeline.TextTypeSay:
				// Scripted speech: record it as an assistant turn and pass
				// it downstream unmodified.
				e.addToHistory(openai.AssistantMessage(text))
				e.emitText(ctx, text, msg.SessionID)
			default:
				if err := e.processTurn(ctx, text, msg.SessionID); err != nil {
					log.Printf("[Chat] Error processing turn: %v", err)
					e.publish(pipeline.Event{
						Type:      pipeline.EventError,
						Timestamp: time.Now(),
						Payload:   fmt.Sprintf("chat error: %v", err),
					})
				}
			}
		}
	}
}

func (e *ChatElement) processTurn(ctx context.Context, userText, sessionID string) error {
	log.Printf("[Chat] User: %s", userText)
	e.addToHistory(openai.UserMessage(userText))

	e.publish(pipeline.Event{
		Type:      pipeline.EventResponseStart,
		Timestamp: time.Now(),
		Payload:   sessionID,
	})

	response, err := e.complete(ctx)
	if err != nil {
		e.publish(pipeline.Event{
			Type:      pipeline.EventResponseEnd,
			Timestamp: time.Now(),
			Payload:   map[string]interface{}{"error": err.Error()},
		})
		return err
	}

	e.addToHistory(openai.AssistantMessage(response))
	e.emitText(ctx, response, sessionID)

	e.publish(pipeline.Event{
		Type:      pipeline.EventResponseEnd,
		Timestamp: time.Now(),
		Payload:   map[string]interface{}{"text": response},
	})

	log.Printf("[Chat] Assistant: %s", truncateForLog(response, 100))
	return nil
}

// complete runs the completion loop, resolving tool calls until the model
// produces plain text or the round limit is hit.
func (e *ChatElement) complete(ctx context.Context) (string, error) {
	ctx, span := trace.StartSpan(ctx, "chat.complete")
	defer span.End()
	span.SetAttributes(trace.LLMAttrs("openai", e.config.Model)...)

	messages := e.buildMessages()
	tools := e.toolParams()

	for round := 0; round < maxToolRounds; round++ {
		params := openai.ChatCompletionNewParams{
			Messages: messages,
			Model:    shared.ChatModel(e.config.Model),
		}
		if len(tools) > 0 {
			params.Tools = tools
		}
		if e.config.MaxTokens > 0 {
			params.MaxTokens = openai.Int(int64(e.config.MaxTokens))
		}

		completion, err := e.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return "", fmt.Errorf("completion error: %w", err)
		}
		if len(completion.Choices) == 0 {
			return "", fmt.Errorf("no response from model")
		}

		message := completion.Choices[0].Message
		if len(message.ToolCalls) == 0 {
			return message.Content, nil
		}

		messages = append(messages, message.ToParam())
		for _, call := range message.ToolCalls {
			result := e.runTool(ctx, call.Function.Name, call.Function.Arguments)
			messages = append(messages, openai.ToolMessage(result, call.ID))
		}
	}

	return "", fmt.Errorf("tool call loop exceeded %d rounds", maxToolRounds)
}

func (e *ChatElement) runTool(ctx context.Context, name, rawArgs string) string {
	if e.dispatcher == nil {
		return fmt.Sprintf("tool %s is not available", name)
	}

	args := make(map[string]interface{})
	if rawArgs != "" {
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			log.Printf("[Chat] Bad tool arguments for %s: %v", name, err)
			return fmt.Sprintf("invalid arguments for %s", name)
		}
	}

	log.Printf("[Chat] Tool call: %s(%s)", name, truncateForLog(rawArgs, 200))
	result, err := e.dispatcher.Dispatch(ctx, name, args)
	if err != nil {
		log.Printf("[Chat] Tool %s failed: %v", name, err)
		return fmt.Sprintf("tool %s failed: %v", name, err)
	}
	return result
}

// toolParams converts the dispatcher's tool surface into function tool
// definitions for the chat completion API.
func (e *ChatElement) toolParams() []openai.ChatCompletionToolUnionParam {
	if e.dispatcher == nil {
		return nil
	}

	tools := e.dispatcher.Tools()
	params := make([]openai.ChatCompletionToolUnionParam, 0, len(tools))
	for _, t := range tools {
		params = append(params, openai.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
			Name:        t.Name,
			Description: openai.String(t.Description),
			Parameters:  toolParameterSchema(t.Parameters),
		}))
	}
	return params
}

// toolParameterSchema builds a JSON schema object for a tool's parameters.
func toolParameterSchema(params []assistant.Parameter) shared.FunctionParameters {
	properties := make(map[string]interface{}, len(params))
	required := make([]string, 0, len(params))

	for _, p := range params {
		prop := map[string]interface{}{
			"type":        p.Type,
			"description": p.Description,
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}

	schema := shared.FunctionParameters{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func (e *ChatElement) buildMessages() []openai.ChatCompletionMessageParamUnion {
	e.mu.RLock()
	defer e.mu.RUnlock()

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(e.history)+1)
	messages = append(messages, openai.SystemMessage(e.config.SystemPrompt))
	messages = append(messages, e.history...)
	return messages
}

func (e *ChatElement) addToHistory(msg openai.ChatCompletionMessageParamUnion) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.history = append(e.history, msg)

	if e.config.MaxHistory > 0 && len(e.history) > e.config.MaxHistory {
		excess := len(e.history) - e.config.MaxHistory
		if excess%2 != 0 {
			excess++ // Keep user/assistant pairs
		}
		e.history = e.history[excess:]
	}
}

func (e *ChatElement) emitText(ctx context.Context, text, sessionID string) {
	if strings.TrimSpace(text) == "" {
		return
	}

	msg := &pipeline.Message{
		Type:      pipeline.MsgTypeData,
		SessionID: sessionID,
		Timestamp: time.Now(),
		TextData: &pipeline.TextData{
			Data:      []byte(text),
			TextType:  pipeline.TextTypeFinal,
			Timestamp: time.Now(),
		},
	}

	select {
	case e.BaseElement.OutChan <- msg:
	case <-ctx.Done():
	}
}

func (e *ChatElement) publish(event pipeline.Event) {
	if e.BaseElement.Bus() != nil {
		e.BaseElement.Bus().Publish(event)
	}
}

// truncateForLog truncates text for logging.
func truncateForLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
