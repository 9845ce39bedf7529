package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	EventStore  EventStoreConfig `yaml:"event_store"`
	Content     ContentConfig    `yaml:"content"`
	Speech      SpeechConfig     `yaml:"speech"`
	Video       VideoConfig      `yaml:"video"`
	Images      ImageConfig      `yaml:"images"`
	Session     SessionConfig    `yaml:"session"`
	Teacher     TeacherConfig    `yaml:"teacher"`
	Matte       MatteConfig      `yaml:"matte"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type ContentConfig struct {
	Mode           string  `yaml:"mode"` // mock, openai
	APIKey         string  `yaml:"api_key"`
	Model          string  `yaml:"model"`
	ImageModel     string  `yaml:"image_model"`
	Temperature    float64 `yaml:"temperature"`
	SectionCount   int     `yaml:"section_count"`
	MaxSourceChars int     `yaml:"max_source_chars"`
}

type SpeechConfig struct {
	Mode       string `yaml:"mode"` // mock, openai
	APIKey     string `yaml:"api_key"`
	Model      string `yaml:"model"`
	Voice      string `yaml:"voice"`
	SampleRate int    `yaml:"sample_rate"`
	Channels   int    `yaml:"channels"`
}

type VideoConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Mode           string `yaml:"mode"` // mock, http
	Endpoint       string `yaml:"endpoint"`
	PollIntervalMS int    `yaml:"poll_interval_ms"`
	TimeoutMS      int    `yaml:"timeout_ms"`
}

type ImageConfig struct {
	Attempts       int `yaml:"attempts"`
	BackoffStepMS  int `yaml:"backoff_step_ms"`
	SetupTimeoutMS int `yaml:"setup_timeout_ms"`
}

type SessionConfig struct {
	DefaultQuizCount int `yaml:"default_quiz_count"`
	ClipCacheSize    int `yaml:"clip_cache_size"`
}

// TeacherConfig describes the persona used for narration and setup imagery.
type TeacherConfig struct {
	Name             string `yaml:"name"`
	Style            string `yaml:"style"`
	Greeting         string `yaml:"greeting"`
	VisualPrompt     string `yaml:"visual_prompt"`
	BackgroundPrompt string `yaml:"background_prompt"`
	DefaultGrade     string `yaml:"default_grade"`
}

type MatteConfig struct {
	Threshold int `yaml:"threshold"`
}

func Default() Config {
	return Config{
		RuntimeName: "brightboard-runtime",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/brightboard-events.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxSessions:   10000,
		},
		Content: ContentConfig{
			Mode:           "mock",
			Model:          "gpt-4o-mini",
			ImageModel:     "dall-e-3",
			Temperature:    0.7,
			SectionCount:   10,
			MaxSourceChars: 10000,
		},
		Speech: SpeechConfig{
			Mode:       "mock",
			Model:      "tts-1",
			Voice:      "nova",
			SampleRate: 24000,
			Channels:   1,
		},
		Video: VideoConfig{
			Enabled:        false,
			Mode:           "mock",
			PollIntervalMS: 5000,
			TimeoutMS:      600000,
		},
		Images: ImageConfig{
			Attempts:       3,
			BackoffStepMS:  1000,
			SetupTimeoutMS: 10000,
		},
		Session: SessionConfig{
			DefaultQuizCount: 3,
			ClipCacheSize:    256,
		},
		Teacher: TeacherConfig{
			Name:             "Ms. Spark",
			Style:            "cheerful and curious, explains with playful examples",
			Greeting:         "Hello everyone, I am Ms. Spark!",
			VisualPrompt:     "friendly cartoon teacher, full body character, vector illustration, white background",
			BackgroundPrompt: "bright and cozy elementary school classroom with chalkboard and cute decorations",
			DefaultGrade:     "3rd grade",
		},
		Matte: MatteConfig{
			Threshold: 230,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "BRIGHTBOARD_RUNTIME_NAME")
	overrideString(&cfg.Environment, "BRIGHTBOARD_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "BRIGHTBOARD_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "BRIGHTBOARD_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "BRIGHTBOARD_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "BRIGHTBOARD_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "BRIGHTBOARD_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "BRIGHTBOARD_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Embedded, "BRIGHTBOARD_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "BRIGHTBOARD_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "BRIGHTBOARD_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "BRIGHTBOARD_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "BRIGHTBOARD_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "BRIGHTBOARD_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "BRIGHTBOARD_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "BRIGHTBOARD_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.EventStore.Path, "BRIGHTBOARD_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "BRIGHTBOARD_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "BRIGHTBOARD_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxSessions, "BRIGHTBOARD_EVENT_STORE_MAX_SESSIONS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "BRIGHTBOARD_EVENT_STORE_VACUUM_ON_START")
	overrideString(&cfg.Content.Mode, "BRIGHTBOARD_CONTENT_MODE")
	overrideString(&cfg.Content.APIKey, "BRIGHTBOARD_CONTENT_API_KEY")
	overrideString(&cfg.Content.Model, "BRIGHTBOARD_CONTENT_MODEL")
	overrideString(&cfg.Content.ImageModel, "BRIGHTBOARD_CONTENT_IMAGE_MODEL")
	overrideFloat(&cfg.Content.Temperature, "BRIGHTBOARD_CONTENT_TEMPERATURE")
	overrideInt(&cfg.Content.SectionCount, "BRIGHTBOARD_CONTENT_SECTION_COUNT")
	overrideInt(&cfg.Content.MaxSourceChars, "BRIGHTBOARD_CONTENT_MAX_SOURCE_CHARS")
	overrideString(&cfg.Speech.Mode, "BRIGHTBOARD_SPEECH_MODE")
	overrideString(&cfg.Speech.APIKey, "BRIGHTBOARD_SPEECH_API_KEY")
	overrideString(&cfg.Speech.Model, "BRIGHTBOARD_SPEECH_MODEL")
	overrideString(&cfg.Speech.Voice, "BRIGHTBOARD_SPEECH_VOICE")
	overrideInt(&cfg.Speech.SampleRate, "BRIGHTBOARD_SPEECH_SAMPLE_RATE")
	overrideInt(&cfg.Speech.Channels, "BRIGHTBOARD_SPEECH_CHANNELS")
	overrideBool(&cfg.Video.Enabled, "BRIGHTBOARD_VIDEO_ENABLED")
	overrideString(&cfg.Video.Mode, "BRIGHTBOARD_VIDEO_MODE")
	overrideString(&cfg.Video.Endpoint, "BRIGHTBOARD_VIDEO_ENDPOINT")
	overrideInt(&cfg.Video.PollIntervalMS, "BRIGHTBOARD_VIDEO_POLL_INTERVAL_MS")
	overrideInt(&cfg.Video.TimeoutMS, "BRIGHTBOARD_VIDEO_TIMEOUT_MS")
	overrideInt(&cfg.Images.Attempts, "BRIGHTBOARD_IMAGES_ATTEMPTS")
	overrideInt(&cfg.Images.BackoffStepMS, "BRIGHTBOARD_IMAGES_BACKOFF_STEP_MS")
	overrideInt(&cfg.Images.SetupTimeoutMS, "BRIGHTBOARD_IMAGES_SETUP_TIMEOUT_MS")
	overrideInt(&cfg.Session.DefaultQuizCount, "BRIGHTBOARD_SESSION_DEFAULT_QUIZ_COUNT")
	overrideInt(&cfg.Session.ClipCacheSize, "BRIGHTBOARD_SESSION_CLIP_CACHE_SIZE")
	overrideString(&cfg.Teacher.Name, "BRIGHTBOARD_TEACHER_NAME")
	overrideString(&cfg.Teacher.Style, "BRIGHTBOARD_TEACHER_STYLE")
	overrideString(&cfg.Teacher.Greeting, "BRIGHTBOARD_TEACHER_GREETING")
	overrideString(&cfg.Teacher.VisualPrompt, "BRIGHTBOARD_TEACHER_VISUAL_PROMPT")
	overrideString(&cfg.Teacher.BackgroundPrompt, "BRIGHTBOARD_TEACHER_BACKGROUND_PROMPT")
	overrideString(&cfg.Teacher.DefaultGrade, "BRIGHTBOARD_TEACHER_DEFAULT_GRADE")
	overrideInt(&cfg.Matte.Threshold, "BRIGHTBOARD_MATTE_THRESHOLD")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.EventStore.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	switch cfg.Content.Mode {
	case "mock", "openai":
	default:
		return errors.New("content.mode must be one of mock|openai")
	}
	if cfg.Content.Mode == "openai" && cfg.Content.APIKey == "" {
		return errors.New("content.api_key must be set when mode=openai")
	}
	if cfg.Content.SectionCount <= 1 {
		return errors.New("content.section_count must be at least 2")
	}
	if cfg.Content.MaxSourceChars <= 0 {
		return errors.New("content.max_source_chars must be positive")
	}
	switch cfg.Speech.Mode {
	case "mock", "openai":
	default:
		return errors.New("speech.mode must be one of mock|openai")
	}
	if cfg.Speech.Mode == "openai" && cfg.Speech.APIKey == "" {
		return errors.New("speech.api_key must be set when mode=openai")
	}
	if cfg.Speech.SampleRate <= 0 {
		return errors.New("speech.sample_rate must be positive")
	}
	if cfg.Speech.Channels <= 0 {
		return errors.New("speech.channels must be positive")
	}
	if cfg.Video.Enabled {
		switch cfg.Video.Mode {
		case "mock", "http":
		default:
			return errors.New("video.mode must be one of mock|http")
		}
		if cfg.Video.Mode == "http" && cfg.Video.Endpoint == "" {
			return errors.New("video.endpoint must be set when mode=http")
		}
		if cfg.Video.PollIntervalMS <= 0 {
			return errors.New("video.poll_interval_ms must be positive")
		}
	}
	if cfg.Images.Attempts <= 0 {
		return errors.New("images.attempts must be >= 1")
	}
	if cfg.Images.BackoffStepMS < 0 {
		return errors.New("images.backoff_step_ms must be >= 0")
	}
	if cfg.Images.SetupTimeoutMS <= 0 {
		return errors.New("images.setup_timeout_ms must be positive")
	}
	if cfg.Session.DefaultQuizCount <= 0 {
		return errors.New("session.default_quiz_count must be >= 1")
	}
	if cfg.Session.ClipCacheSize <= 0 {
		return errors.New("session.clip_cache_size must be >= 1")
	}
	if cfg.Matte.Threshold < 0 || cfg.Matte.Threshold > 255 {
		return errors.New("matte.threshold must be between 0 and 255")
	}
	return nil
}
