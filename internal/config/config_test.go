package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
	if cfg.Content.SectionCount != 10 {
		t.Fatalf("expected 10 default sections, got %d", cfg.Content.SectionCount)
	}
	if cfg.Speech.SampleRate != 24000 {
		t.Fatalf("expected 24kHz default sample rate, got %d", cfg.Speech.SampleRate)
	}
	if cfg.Matte.Threshold != 230 {
		t.Fatalf("expected matte threshold 230, got %d", cfg.Matte.Threshold)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("BRIGHTBOARD_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("BRIGHTBOARD_BUS_USERNAME", "alice")
	t.Setenv("BRIGHTBOARD_BUS_PASSWORD", "secret")
	t.Setenv("BRIGHTBOARD_CONTENT_MODE", "openai")
	t.Setenv("BRIGHTBOARD_CONTENT_API_KEY", "sk-test")
	t.Setenv("BRIGHTBOARD_CONTENT_SECTION_COUNT", "12")
	t.Setenv("BRIGHTBOARD_SPEECH_VOICE", "alloy")
	t.Setenv("BRIGHTBOARD_IMAGES_ATTEMPTS", "5")
	t.Setenv("BRIGHTBOARD_SESSION_DEFAULT_QUIZ_COUNT", "4")
	t.Setenv("BRIGHTBOARD_EVENT_STORE_RETENTION_MODE", "persistent")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" || cfg.Bus.Password != "secret" {
		t.Fatalf("expected credentials override")
	}
	if cfg.Content.Mode != "openai" || cfg.Content.APIKey != "sk-test" {
		t.Fatalf("expected content backend override")
	}
	if cfg.Content.SectionCount != 12 {
		t.Fatalf("expected section count override, got %d", cfg.Content.SectionCount)
	}
	if cfg.Speech.Voice != "alloy" {
		t.Fatalf("expected voice override, got %q", cfg.Speech.Voice)
	}
	if cfg.Images.Attempts != 5 {
		t.Fatalf("expected attempts override, got %d", cfg.Images.Attempts)
	}
	if cfg.Session.DefaultQuizCount != 4 {
		t.Fatalf("expected quiz count override, got %d", cfg.Session.DefaultQuizCount)
	}
	if cfg.EventStore.RetentionMode != "persistent" {
		t.Fatalf("expected retention mode override")
	}
}

func TestValidateRejectsMissingKey(t *testing.T) {
	t.Setenv("BRIGHTBOARD_SPEECH_MODE", "openai")

	if _, err := Load(""); err == nil {
		t.Fatalf("expected validation error for openai speech without api key")
	}
}
