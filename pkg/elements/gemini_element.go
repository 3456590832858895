package elements

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"

	"github.com/projectgen/liya/pkg/assistant"
	"github.com/projectgen/liya/pkg/pipeline"
	"github.com/projectgen/liya/pkg/trace"
)

var _ pipeline.Element = (*GeminiElement)(nil)

// GeminiConfig holds configuration for the Gemini element.
type GeminiConfig struct {
	APIKey       string // Google API key
	Model        string // Model name (default "gemini-2.0-flash")
	SystemPrompt string // System instruction for the assistant
	MaxHistory   int    // Maximum history contents retained (default 40)
}

// GeminiElement runs conversational turns through the Gemini API with the
// assistant's tool surface attached as function declarations. It mirrors
// ChatElement's contract so the two backends are interchangeable in the
// pipeline.
type GeminiElement struct {
	*pipeline.BaseElement

	config     GeminiConfig
	client     *genai.Client
	dispatcher ToolDispatcher
	history    []*genai.Content

	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
}

// NewGeminiElement creates a Gemini element. dispatcher may be nil for plain
// conversation without tools.
func NewGeminiElement(config GeminiConfig, dispatcher ToolDispatcher) (*GeminiElement, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if config.Model == "" {
		config.Model = "gemini-2.0-flash"
	}
	if config.MaxHistory == 0 {
		config.MaxHistory = 40
	}

	return &GeminiElement{
		BaseElement: pipeline.NewBaseElement("gemini", 100),
		config:      config,
		dispatcher:  dispatcher,
	}, nil
}

func (e *GeminiElement) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  e.config.APIKey,
		Backend: genai.BackendGoogleAI,
	})
	if err != nil {
		cancel()
		return fmt.Errorf("create gemini client: %w", err)
	}
	e.client = client

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.processLoop(ctx)
	}()

	log.Printf("[Gemini] Started (model: %s, tools: %d)", e.config.Model, len(e.declarations()))
	return nil
}

func (e *GeminiElement) Stop() error {
	if e.cancel != nil {
		e.cancel()
		e.wg.Wait()
		e.cancel = nil
	}
	log.Println("[Gemini] Stopped")
	return nil
}

func (e *GeminiElement) processLoop(ctx context.Context) {
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
				e.appendHistory(&genai.Content{
					Role:  "model",
					Parts: []*genai.Part{{Text: text}},
				})
				e.emitText(ctx, text, msg.SessionID)
			default:
				if err := e.processTurn(ctx, text, msg.SessionID); err != nil {
					log.Printf("[Gemini] Error processing turn: %v", err)
					e.publish(pipeline.Event{
						Type:      pipeline.EventError,
						Timestamp: time.Now(),
						Payload:   fmt.Sprintf("gemini error: %v", err),
					})
				}
			}
		}
	}
}

func (e *GeminiElement) processTurn(ctx context.Context, userText, sessionID string) error {
	log.Printf("[Gemini] User: %s", userText)
	e.appendHistory(&genai.Content{
		Role:  "user",
		Parts: []*genai.Part{{Text: userText}},
	})

	e.publish(pipeline.Event{
		Type:      pipeline.EventResponseStart,
		Timestamp: time.Now(),
		Payload:   sessionID,
	})

	response, err := e.generate(ctx)
	if err != nil {
		e.publish(pipeline.Event{
			Type:      pipeline.EventResponseEnd,
			Timestamp: time.Now(),
			Payload:   map[string]interface{}{"error": err.Error()},
		})
		return err
	}

	e.emitText(ctx, response, sessionID)

	e.publish(pipeline.Event{
		Type:      pipeline.EventResponseEnd,
		Timestamp: time.Now(),
		Payload:   map[string]interface{}{"text": response},
	})

	log.Printf("[Gemini] Assistant: %s", truncateForLog(response, 100))
	return nil
}

// generate runs the generation loop, resolving function calls until the
// model produces plain text or the round limit is hit.
func (e *GeminiElement) generate(ctx context.Context) (string, error) {
	ctx, span := trace.StartSpan(ctx, "gemini.generate")
	defer span.End()
	span.SetAttributes(trace.LLMAttrs("gemini", e.config.Model)...)

	config := &genai.GenerateContentConfig{}
	if e.config.SystemPrompt != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: e.config.SystemPrompt}},
		}
	}
	if decls := e.declarations(); len(decls) > 0 {
		config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	for round := 0; round < maxToolRounds; round++ {
		contents := e.snapshotHistory()

		resp, err := e.client.Models.GenerateContent(ctx, e.config.Model, contents, config)
		if err != nil {
			return "", fmt.Errorf("generate content: %w", err)
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			return "", fmt.Errorf("no response from model")
		}

		content := resp.Candidates[0].Content
		calls := functionCalls(content)
		if len(calls) == 0 {
			text := contentText(content)
			e.appendHistory(content)
			return text, nil
		}

		e.appendHistory(content)

		responseParts := make([]*genai.Part, 0, len(calls))
		for _, call := range calls {
			result := e.runTool(ctx, call)
			responseParts = append(responseParts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{
					Name:     call.Name,
					Response: map[string]interface{}{"result": result},
				},
			})
		}
		e.appendHistory(&genai.Content{Role: "user", Parts: responseParts})
	}

	return "", fmt.Errorf("function call loop exceeded %d rounds", maxToolRounds)
}

func (e *GeminiElement) runTool(ctx context.Context, call *genai.FunctionCall) string {
	if e.dispatcher == nil {
		return fmt.Sprintf("tool %s is not available", call.Name)
	}

	args := call.Args
	if args == nil {
		args = make(map[string]interface{})
	}

	log.Printf("[Gemini] Tool call: %s", call.Name)
	result, err := e.dispatcher.Dispatch(ctx, call.Name, args)
	if err != nil {
		log.Printf("[Gemini] Tool %s failed: %v", call.Name, err)
		return fmt.Sprintf("tool %s failed: %v", call.Name, err)
	}
	return result
}

// declarations converts the dispatcher's tool surface into Gemini function
// declarations.
func (e *GeminiElement) declarations() []*genai.FunctionDeclaration {
	if e.dispatcher == nil {
		return nil
	}

	tools := e.dispatcher.Tools()
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  declarationSchema(t.Parameters),
		})
	}
	return decls
}

func declarationSchema(params []assistant.Parameter) *genai.Schema {
	if len(params) == 0 {
		return nil
	}

	properties := make(map[string]*genai.Schema, len(params))
	required := make([]string, 0, len(params))

	for _, p := range params {
		properties[p.Name] = &genai.Schema{
			Type:        schemaType(p.Type),
			Description: p.Description,
			Enum:        p.Enum,
		}
		if p.Required {
			required = append(required, p.Name)
		}
	}

	return &genai.Schema{
		Type:       genai.TypeObject,
		Properties: properties,
		Required:   required,
	}
}

func schemaType(t string) genai.Type {
	switch t {
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	default:
		return genai.TypeString
	}
}

func functionCalls(content *genai.Content) []*genai.FunctionCall {
	var calls []*genai.FunctionCall
	for _, part := range content.Parts {
		if part.FunctionCall != nil {
			calls = append(calls, part.FunctionCall)
		}
	}
	return calls
}

func contentText(content *genai.Content) string {
	var b strings.Builder
	for _, part := range content.Parts {
		b.WriteString(part.Text)
	}
	return b.String()
}

func (e *GeminiElement) snapshotHistory() []*genai.Content {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*genai.Content, len(e.history))
	copy(out, e.history)
	return out
}

func (e *GeminiElement) appendHistory(content *genai.Content) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.history = append(e.history, content)
	if e.config.MaxHistory > 0 && len(e.history) > e.config.MaxHistory {
		e.history = e.history[len(e.history)-e.config.MaxHistory:]
	}
}

func (e *GeminiElement) emitText(ctx context.Context, text, sessionID string) {
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

func (e *GeminiElement) publish(event pipeline.Event) {
	if e.BaseElement.Bus() != nil {
		e.BaseElement.Bus().Publish(event)
	}
}
