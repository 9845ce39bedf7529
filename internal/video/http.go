package video

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brightboard-labs/brightboard/internal/config"
	"github.com/brightboard-labs/brightboard/internal/retry"
)

// httpSummarizer drives a job-style video API: start a render job, then
// poll its status until a completion flag is set.
type httpSummarizer struct {
	endpoint     string
	pollInterval time.Duration
	timeout      time.Duration
	logger       *slog.Logger
}

func newHTTPSummarizer(cfg config.VideoConfig, logger *slog.Logger) *httpSummarizer {
	return &httpSummarizer{
		endpoint:     cfg.Endpoint,
		pollInterval: time.Duration(cfg.PollIntervalMS) * time.Millisecond,
		timeout:      time.Duration(cfg.TimeoutMS) * time.Millisecond,
		logger:       logger.With(slog.String("component", "video-summarizer")),
	}
}

type startJobRequest struct {
	Prompt string `json:"prompt"`
}

type jobStatus struct {
	JobID string `json:"job_id"`
	Done  bool   `json:"done"`
	URL   string `json:"url,omitempty"`
	Error string `json:"error,omitempty"`
}

func (s *httpSummarizer) Summarize(ctx context.Context, topic string) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	prompt := fmt.Sprintf("Cute educational animation about: %s. Cartoon style, bright colors.", topic)
	job, err := s.startJob(ctx, prompt)
	if err != nil {
		return "", err
	}
	s.logger.Info("video job started", slog.String("job_id", job))

	return retry.Poll(ctx, s.pollInterval, func(ctx context.Context) (string, bool, error) {
		status, err := s.pollJob(ctx, job)
		if err != nil {
			return "", false, err
		}
		if status.Error != "" {
			return "", false, errors.New(status.Error)
		}
		if !status.Done {
			return "", false, nil
		}
		if status.URL == "" {
			return "", false, errors.New("video job finished without a url")
		}
		return status.URL, true, nil
	})
}

func (s *httpSummarizer) startJob(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(startJobRequest{Prompt: prompt})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+"/v1/videos", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("video service returned status %s", resp.Status)
	}

	var status jobStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return "", err
	}
	if status.JobID == "" {
		return "", errors.New("video service returned no job id")
	}
	return status.JobID, nil
}

func (s *httpSummarizer) pollJob(ctx context.Context, jobID string) (jobStatus, error) {
	var status jobStatus
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"/v1/videos/"+jobID, nil)
	if err != nil {
		return status, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return status, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return status, fmt.Errorf("video service returned status %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return status, err
	}
	return status, nil
}
