package content

import (
	"bytes"
	"context"
	"image/png"
	"testing"

	"github.com/brightboard-labs/brightboard/internal/lesson"
)

func TestMockPlanIsValid(t *testing.T) {
	src := NewMockSource(10)
	plan, err := src.GeneratePlan(context.Background(), "the water cycle", "3rd grade", "playful", 3)
	if err != nil {
		t.Fatalf("generate plan: %v", err)
	}
	if err := lesson.Validate(plan, 10, 3); err != nil {
		t.Fatalf("mock plan failed validation: %v", err)
	}
	last := plan.Sections[len(plan.Sections)-1]
	if last.Title != "Review: what we learned" {
		t.Fatalf("last section must be the review step, got %q", last.Title)
	}
}

func TestMockImageIsPNG(t *testing.T) {
	src := NewMockSource(10)
	data, err := src.GenerateImage(context.Background(), "a volcano")
	if err != nil {
		t.Fatalf("generate image: %v", err)
	}
	if _, err := png.Decode(bytes.NewReader(data)); err != nil {
		t.Fatalf("mock image is not a decodable png: %v", err)
	}
}

func TestMockPlanHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewMockSource(10).GeneratePlan(ctx, "stars", "3rd grade", "calm", 3); err == nil {
		t.Fatalf("expected context error")
	}
}
