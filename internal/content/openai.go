package content

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/brightboard-labs/brightboard/internal/config"
	"github.com/brightboard-labs/brightboard/internal/lesson"
)

type openAISource struct {
	client         *openai.Client
	model          string
	imageModel     string
	temperature    float32
	sectionCount   int
	maxSourceChars int
	logger         *slog.Logger
}

func newOpenAISource(cfg config.ContentConfig, logger *slog.Logger) *openAISource {
	return &openAISource{
		client:         openai.NewClient(cfg.APIKey),
		model:          cfg.Model,
		imageModel:     cfg.ImageModel,
		temperature:    float32(cfg.Temperature),
		sectionCount:   cfg.SectionCount,
		maxSourceChars: cfg.MaxSourceChars,
		logger:         logger.With(slog.String("component", "content-source")),
	}
}

const planSystemPrompt = `You are an elementary school teacher preparing a spoken micro-lesson for a child.
Respond with a single JSON object only, matching this shape exactly:
{"topic": string, "learningGoal": string,
 "sections": [{"sectionTitle": string, "text": string, "visualPrompts": [string], "visualType": "image"|"none"}],
 "quizzes": [{"question": string, "options": [string], "answer": int}],
 "activities": [{"title": string, "description": string, "materials": [string], "steps": [string], "exampleResultDesc": string}]}`

func (s *openAISource) planInstructions(grade, style string, quizCount int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You teach %s students. Your teaching style: %q.\n", grade, style)
	fmt.Fprintf(&b, "Structure the lesson as exactly %d sections, from introduction to deeper material.\n", s.sectionCount)
	b.WriteString("Put a one-sentence summary of today's core goal in the learningGoal field.\n")
	fmt.Fprintf(&b, "The final section %d must be a summary titled as a review of what was learned.\n", s.sectionCount)
	b.WriteString("Write each section's text as the teacher speaking directly to the child, lively and easy to follow.\n")
	b.WriteString("Give each section exactly 1 English image-generation prompt in visualPrompts.\n")
	fmt.Fprintf(&b, "Include exactly %d quiz questions with an answer field holding the 0-based index of the correct option.\n", quizCount)
	fmt.Fprintf(&b, "After the quizzes, suggest 3 creative hands-on activities fit for %s, each with materials, steps and a detailed English visual description of the finished result in exampleResultDesc.\n", grade)
	return b.String()
}

func (s *openAISource) GeneratePlan(ctx context.Context, topic, grade, style string, quizCount int) (*lesson.Plan, error) {
	prompt := fmt.Sprintf("%s\nTopic: %q. Prepare the lesson now.", s.planInstructions(grade, style, quizCount), topic)
	return s.completePlan(ctx, prompt, quizCount)
}

func (s *openAISource) GeneratePlanFromText(ctx context.Context, sourceText, grade, style string, quizCount int) (*lesson.Plan, error) {
	if len(sourceText) > s.maxSourceChars {
		sourceText = sourceText[:s.maxSourceChars]
	}
	prompt := fmt.Sprintf("%s\nBuild the lesson from this source material:\n\"\"\"\n%s\n\"\"\"", s.planInstructions(grade, style, quizCount), sourceText)
	return s.completePlan(ctx, prompt, quizCount)
}

func (s *openAISource) completePlan(ctx context.Context, prompt string, quizCount int) (*lesson.Plan, error) {
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.model,
		Temperature: s.temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: planSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return nil, &GenerationError{Stage: "plan", Err: err}
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return nil, &GenerationError{Stage: "plan", Err: errors.New("empty model response")}
	}

	var plan lesson.Plan
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &plan); err != nil {
		return nil, &GenerationError{Stage: "plan", Err: fmt.Errorf("decode plan: %w", err)}
	}
	if err := lesson.Validate(&plan, s.sectionCount, quizCount); err != nil {
		return nil, &GenerationError{Stage: "plan", Err: err}
	}
	return &plan, nil
}

func (s *openAISource) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	resp, err := s.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Model:          s.imageModel,
		N:              1,
		Size:           openai.CreateImageSize1024x1024,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		return nil, &GenerationError{Stage: "image", Err: err}
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, &GenerationError{Stage: "image", Err: errors.New("no image in response")}
	}
	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, &GenerationError{Stage: "image", Err: fmt.Errorf("decode image: %w", err)}
	}
	return data, nil
}
