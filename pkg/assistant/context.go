// Package assistant implements the Liya project coach: student context,
// quiz scoring, and the tool surface the language model calls mid-dialogue.
package assistant

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Project is one active student project.
type Project struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Domain       string   `json:"domain"`
	Progress     int      `json:"progress"`
	CurrentPhase string   `json:"currentPhase"`
	Technologies []string `json:"technologies"`
}

// StudentContext is the profile snapshot the client sends once per session.
// Absent fields keep neutral defaults at the point of use.
type StudentContext struct {
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	ExternalID     string    `json:"convexId"`
	SkillLevel     string    `json:"skillLevel"`
	Interests      []string  `json:"interests"`
	ActiveProjects []Project `json:"activeProjects"`
}

// ParseStudentContext decodes the context object of a student_context message.
func ParseStudentContext(raw json.RawMessage) (*StudentContext, error) {
	var ctx StudentContext
	if err := json.Unmarshal(raw, &ctx); err != nil {
		return nil, fmt.Errorf("parse student context: %w", err)
	}
	return &ctx, nil
}

// FirstProject returns the first active project, or nil.
func (c *StudentContext) FirstProject() *Project {
	if c == nil || len(c.ActiveProjects) == 0 {
		return nil
	}
	return &c.ActiveProjects[0]
}

// GreetingName returns the name used in the spoken greeting, "there" when
// the profile never arrived or carries no name.
func (c *StudentContext) GreetingName() string {
	if c == nil || c.Name == "" {
		return "there"
	}
	return c.Name
}

const baseInstructions = `# Persona
You are Liya, a Student Project Guide AI Assistant and Project Examiner that helps students worldwide build projects step-by-step and evaluates their knowledge.

# Context
You are a multilingual virtual assistant that provides comprehensive project guidance to students from all countries and educational backgrounds. You communicate in the student's preferred language and adapt to their skill level.

# Capabilities
You have the following special abilities:
1. **Quiz Mode (Viva Voice)** - Test student knowledge about their project with questions
2. **Project Review** - Review student presentations (PPT) and provide feedback
3. **Feedback System** - Submit student performance feedback to the evaluation system

# Task
Provide detailed, step-by-step project guidance AND evaluate student performance:

    ## Project Guidance
    1. Help students choose appropriate projects based on skill level
    2. Break down complex projects into manageable phases
    3. Provide step-by-step implementation instructions
    4. Help with debugging and troubleshooting

    ## Quiz/Viva Mode
    When conducting a viva or quiz:
    1. Ask questions about the student's project
    2. Test understanding of concepts, technologies, and implementation
    3. Ask about challenges faced and solutions found
    4. Evaluate problem-solving skills
    5. Use the submit_feedback tool to record performance

    Question types to ask:
    - What problem does your project solve?
    - Explain the architecture/design of your project
    - What technologies did you use and why?
    - What challenges did you face?
    - How would you improve your project?
    - Explain a specific feature implementation

    ## Project Review
    When reviewing a project or presentation:
    1. Ask the student to share their screen showing PPT/presentation
    2. Review each slide for content, design, and clarity
    3. Evaluate technical accuracy
    4. Provide constructive feedback
    5. Submit feedback using the feedback tool

# Voice Output Guidelines
- Keep responses concise for voice (1-3 sentences at a time)
- Use natural conversational tone
- Be encouraging but honest in feedback
- Celebrate achievements and provide constructive criticism
`

// BuildInstructions produces the system prompt, appending a student
// information block when a context snapshot is available.
func BuildInstructions(c *StudentContext) string {
	if c == nil {
		return baseInstructions
	}

	var b strings.Builder
	b.WriteString(baseInstructions)
	b.WriteString("\n# Student Information\n")

	name := c.Name
	if name == "" {
		name = "Student"
	}
	email := c.Email
	if email == "" {
		email = "Not provided"
	}
	skill := c.SkillLevel
	if skill == "" {
		skill = "Beginner"
	}

	fmt.Fprintf(&b, "- Name: %s\n", name)
	fmt.Fprintf(&b, "- Email: %s\n", email)
	fmt.Fprintf(&b, "- Skill Level: %s\n", skill)
	fmt.Fprintf(&b, "- Interests: %s\n", strings.Join(c.Interests, ", "))

	if len(c.ActiveProjects) == 0 {
		b.WriteString("- No active projects yet\n")
	} else {
		for _, p := range c.ActiveProjects {
			fmt.Fprintf(&b, "- %s (%s): %d%% complete.\n", p.Title, p.Domain, p.Progress)
		}
	}

	return b.String()
}

// WelcomeMessage builds the single scripted greeting spoken after the
// pipeline starts.
func WelcomeMessage(c *StudentContext) string {
	name := c.GreetingName()

	if p := c.FirstProject(); p != nil {
		title := p.Title
		if title == "" {
			title = "your project"
		}
		return fmt.Sprintf("Hi %s! I'm Liya, your AI Project Coach. I see you're working on %s. I can help you with project guidance, conduct a viva to test your knowledge, or review your presentation. What would you like to do?", name, title)
	}

	return fmt.Sprintf("Hi %s! I'm Liya, your AI Project Coach. I can help you build projects, conduct viva sessions to test your knowledge, or review your presentations. What would you like to work on today?", name)
}
