package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/brightboard-labs/brightboard/internal/config"
	"github.com/brightboard-labs/brightboard/internal/content"
	"github.com/brightboard-labs/brightboard/internal/lesson"
	"github.com/brightboard-labs/brightboard/internal/matte"
	"github.com/brightboard-labs/brightboard/internal/protocol"
	"github.com/brightboard-labs/brightboard/internal/retry"
	"github.com/brightboard-labs/brightboard/internal/video"
)

// NoticePlanFailed is shown when lesson generation fails.
const NoticePlanFailed = "could not prepare the lesson, please try again"

// Narrator is the audible side of the session. Play and Prefetch must not
// block; the engine resolves clips in the background.
type Narrator interface {
	Play(ctx context.Context, text string)
	Prefetch(ctx context.Context, text string)
	Stop()
	Reset()
	Playing() bool
	LastError() string
}

// Publisher pushes snapshots and generated assets to whoever renders them.
type Publisher interface {
	Publish(subject string, v any) error
}

// Recorder persists the session timeline. Failures are logged, never fatal.
type Recorder interface {
	BeginSession(ctx context.Context, id, topic string, student protocol.StudentInfo) error
	AppendEvent(ctx context.Context, sessionID, kind string, payload any) error
}

// Controller owns all session state. Every learner action acquires the
// lock, transitions, and broadcasts a snapshot; slow work (plan and image
// generation) runs in goroutines that re-check the display epoch before
// publishing, so results for a screen the learner already left are dropped.
type Controller struct {
	cfg      config.Config
	source   content.Source
	narrator Narrator
	matte    *matte.Processor
	video    video.Summarizer
	pub      Publisher
	rec      Recorder
	logger   *slog.Logger

	mu        sync.Mutex
	state     State
	plan      *lesson.Plan
	epoch     uint64
	videoBusy bool

	// sectionImages holds resolved illustration sets per section index so a
	// revisit republishes instead of regenerating. Cleared with the plan.
	sectionImages map[int][][]byte
}

func NewController(cfg config.Config, source content.Source, narrator Narrator, matteProc *matte.Processor, summarizer video.Summarizer, pub Publisher, rec Recorder, logger *slog.Logger) *Controller {
	return &Controller{
		cfg:      cfg,
		source:   source,
		narrator: narrator,
		matte:    matteProc,
		video:    summarizer,
		pub:      pub,
		rec:      rec,
		logger:   logger.With(slog.String("component", "session-controller")),
		state:    newIdleState(),
	}
}

// State returns a copy of the current session state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Plan returns the active lesson plan, or nil before one is ready.
func (c *Controller) Plan() *lesson.Plan {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.plan
}

// StartLesson begins generating a new lesson. A start while a previous one
// is still planning is ignored. The narration cache is cleared before any
// new clip is fetched.
func (c *Controller) StartLesson(ctx context.Context, cmd protocol.Command) {
	quizCount := cmd.QuizCount
	if quizCount <= 0 {
		quizCount = c.cfg.Session.DefaultQuizCount
	}
	grade := cmd.Grade
	if grade == "" {
		grade = c.cfg.Teacher.DefaultGrade
	}

	c.mu.Lock()
	if c.state.Phase == PhasePlanning {
		c.mu.Unlock()
		return
	}
	c.state = newIdleState()
	c.state.SessionID = uuid.NewString()
	c.state.Phase = PhasePlanning
	c.state.Student = cmd.Student
	c.plan = nil
	c.sectionImages = nil
	c.epoch++
	epoch := c.epoch
	id := c.state.SessionID
	c.mu.Unlock()

	c.narrator.Reset()
	c.publishSnapshot()
	if err := c.rec.BeginSession(ctx, id, cmd.Topic, cmd.Student); err != nil {
		c.logger.Warn("record session start", slog.String("error", err.Error()))
	}
	c.record(ctx, id, "session_started", cmd)

	go c.warmSetupImages(ctx, id)
	go c.generatePlan(ctx, cmd, grade, quizCount, epoch)
}

func (c *Controller) generatePlan(ctx context.Context, cmd protocol.Command, grade string, quizCount int, epoch uint64) {
	var (
		plan *lesson.Plan
		err  error
	)
	if cmd.SourceText != "" {
		text := cmd.SourceText
		if len(text) > c.cfg.Content.MaxSourceChars {
			text = text[:c.cfg.Content.MaxSourceChars]
		}
		plan, err = c.source.GeneratePlanFromText(ctx, text, grade, c.cfg.Teacher.Style, quizCount)
	} else {
		plan, err = c.source.GeneratePlan(ctx, cmd.Topic, grade, c.cfg.Teacher.Style, quizCount)
	}

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return
	}
	if err != nil {
		c.state.Phase = PhaseIdle
		c.state.Notice = NoticePlanFailed
		id := c.state.SessionID
		c.mu.Unlock()
		c.logger.Error("lesson generation failed", slog.String("error", err.Error()))
		c.publishSnapshot()
		c.record(ctx, id, "plan_failed", map[string]string{"error": err.Error()})
		return
	}
	c.plan = plan
	c.state.Phase = PhaseTeaching
	c.state.Overview = true
	c.state.Notice = ""
	id := c.state.SessionID
	c.mu.Unlock()

	c.publishSnapshot()
	c.record(ctx, id, "plan_ready", map[string]any{"topic": plan.Topic, "sections": len(plan.Sections), "quizzes": len(plan.Quizzes)})

	c.playNarration(ctx, greetingNarration(c.cfg.Teacher.Greeting, plan.Topic, plan.LearningGoal))
	c.narrator.Prefetch(ctx, plan.Sections[0].NarrationText)

	go c.fetchBoardSketch(ctx, id, "topic", 0, "a lesson about "+plan.Topic, epoch)
}

// BeginLesson leaves the overview and shows the first section.
func (c *Controller) BeginLesson(ctx context.Context) {
	c.mu.Lock()
	if c.state.Phase != PhaseTeaching || !c.state.Overview || c.plan == nil {
		c.mu.Unlock()
		return
	}
	c.state.Overview = false
	c.state.SectionIndex = 0
	c.epoch++
	epoch := c.epoch
	c.mu.Unlock()

	c.publishSnapshot()
	c.showSection(ctx, 0, epoch)
}

// Next advances to the following section, or into the quiz after the last
// section. No-op outside teaching.
func (c *Controller) Next(ctx context.Context) {
	c.mu.Lock()
	if c.state.Phase != PhaseTeaching || c.state.Overview || c.plan == nil {
		c.mu.Unlock()
		return
	}
	if c.state.SectionIndex < len(c.plan.Sections)-1 {
		c.state.SectionIndex++
		c.epoch++
		idx, epoch := c.state.SectionIndex, c.epoch
		c.mu.Unlock()
		c.publishSnapshot()
		c.showSection(ctx, idx, epoch)
		return
	}
	if len(c.plan.Quizzes) == 0 {
		c.finishLocked(ctx)
		return
	}
	c.state.Phase = PhaseQuiz
	c.state.QuizIndex = 0
	c.state.Selected = NoSelection
	c.epoch++
	epoch := c.epoch
	id := c.state.SessionID
	c.mu.Unlock()

	c.publishSnapshot()
	c.record(ctx, id, "quiz_started", nil)
	c.showQuestion(ctx, 0, epoch)
}

// Prev steps back one section. No-op at the first section or outside
// teaching.
func (c *Controller) Prev(ctx context.Context) {
	c.mu.Lock()
	if c.state.Phase != PhaseTeaching || c.state.Overview || c.plan == nil || c.state.SectionIndex == 0 {
		c.mu.Unlock()
		return
	}
	c.state.SectionIndex--
	c.epoch++
	idx, epoch := c.state.SectionIndex, c.epoch
	c.mu.Unlock()

	c.publishSnapshot()
	c.showSection(ctx, idx, epoch)
}

// Answer locks in a choice for the current question. Only the first answer
// counts; later calls for the same question are ignored.
func (c *Controller) Answer(ctx context.Context, option int) {
	c.mu.Lock()
	if c.state.Phase != PhaseQuiz || c.state.Finished || c.plan == nil || c.state.Selected != NoSelection {
		c.mu.Unlock()
		return
	}
	item := c.plan.Quizzes[c.state.QuizIndex]
	if option < 0 || option >= len(item.Options) {
		c.mu.Unlock()
		return
	}
	c.state.Selected = option
	correct := option == item.CorrectIndex
	if correct {
		c.state.Score++
	}
	id, quizIdx := c.state.SessionID, c.state.QuizIndex
	c.mu.Unlock()

	feedback := protocol.QuizFeedback{SessionID: id, QuizIndex: quizIdx, Selected: option, Correct: correct}
	c.publish(protocol.SubjectQuizFeedback, feedback)
	c.publishSnapshot()
	c.record(ctx, id, "answer_submitted", feedback)
}

// NextQuestion moves on after an answered question, finishing the lesson
// after the last one. Ignored while the current question is unanswered.
func (c *Controller) NextQuestion(ctx context.Context) {
	c.mu.Lock()
	if c.state.Phase != PhaseQuiz || c.state.Finished || c.plan == nil || c.state.Selected == NoSelection {
		c.mu.Unlock()
		return
	}
	if c.state.QuizIndex < len(c.plan.Quizzes)-1 {
		c.state.QuizIndex++
		c.state.Selected = NoSelection
		c.epoch++
		idx, epoch := c.state.QuizIndex, c.epoch
		c.mu.Unlock()
		c.publishSnapshot()
		c.showQuestion(ctx, idx, epoch)
		return
	}
	c.finishLocked(ctx)
}

// finishLocked is called with the lock held and releases it.
func (c *Controller) finishLocked(ctx context.Context) {
	c.state.Finished = true
	c.epoch++
	score, total := c.state.Score, 0
	if c.plan != nil {
		total = len(c.plan.Quizzes)
	}
	id := c.state.SessionID
	c.mu.Unlock()

	c.publishSnapshot()
	c.record(ctx, id, "lesson_finished", map[string]int{"score": score, "total": total})
	c.playNarration(ctx, closingNarration(score, total))
}

// Restart abandons the current lesson and returns to idle. The clip cache
// survives until the next lesson actually starts.
func (c *Controller) Restart(ctx context.Context) {
	c.mu.Lock()
	id := c.state.SessionID
	c.state = newIdleState()
	c.plan = nil
	c.sectionImages = nil
	c.epoch++
	c.mu.Unlock()

	c.narrator.Stop()
	c.publishSnapshot()
	if id != "" {
		c.record(ctx, id, "session_restarted", nil)
	}
}

// ReplayNarration re-plays the narration for whatever is on screen.
func (c *Controller) ReplayNarration(ctx context.Context) {
	text := c.currentNarration()
	if text == "" {
		return
	}
	c.playNarration(ctx, text)
}

func (c *Controller) currentNarration() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.plan == nil {
		return ""
	}
	switch {
	case c.state.Finished:
		return closingNarration(c.state.Score, len(c.plan.Quizzes))
	case c.state.Phase == PhaseQuiz:
		return QuizNarration(c.state.QuizIndex+1, c.plan.Quizzes[c.state.QuizIndex])
	case c.state.Phase == PhaseTeaching && c.state.Overview:
		return greetingNarration(c.cfg.Teacher.Greeting, c.plan.Topic, c.plan.LearningGoal)
	case c.state.Phase == PhaseTeaching:
		return c.plan.Sections[c.state.SectionIndex].NarrationText
	}
	return ""
}

// ToggleAggregateView switches between the single-step view and the whole
// lesson overview. Entering the aggregate view silences narration; leaving
// it does not auto-play.
func (c *Controller) ToggleAggregateView(ctx context.Context) {
	c.mu.Lock()
	c.state.AggregateView = !c.state.AggregateView
	entering := c.state.AggregateView
	c.mu.Unlock()

	if entering {
		c.narrator.Stop()
	}
	c.publishSnapshot()
}

// RequestSummaryVideo kicks off a recap video render for a finished
// lesson. Fire-and-forget; the outcome arrives as a VideoStatus message.
func (c *Controller) RequestSummaryVideo(ctx context.Context) {
	c.mu.Lock()
	if !c.state.Finished || c.plan == nil || c.videoBusy || !c.cfg.Video.Enabled {
		c.mu.Unlock()
		return
	}
	c.videoBusy = true
	id, topic := c.state.SessionID, c.plan.Topic
	c.mu.Unlock()

	c.record(ctx, id, "video_requested", nil)
	go func() {
		url, err := c.video.Summarize(ctx, topic)
		c.mu.Lock()
		c.videoBusy = false
		c.mu.Unlock()

		status := protocol.VideoStatus{SessionID: id, URL: url}
		if err != nil {
			status.Error = err.Error()
			c.logger.Warn("summary video failed", slog.String("error", err.Error()))
		}
		c.publish(protocol.SubjectVideoStatus, status)
	}()
}

// showSection narrates section idx, warms the next section's clip, and
// starts the board sketch and illustration fetches.
func (c *Controller) showSection(ctx context.Context, idx int, epoch uint64) {
	c.mu.Lock()
	plan := c.plan
	id := c.state.SessionID
	cached := c.sectionImages[idx]
	c.mu.Unlock()
	if plan == nil || idx >= len(plan.Sections) {
		return
	}
	sec := plan.Sections[idx]

	c.playNarration(ctx, sec.NarrationText)
	if idx+1 < len(plan.Sections) {
		c.narrator.Prefetch(ctx, plan.Sections[idx+1].NarrationText)
	} else if len(plan.Quizzes) > 0 {
		c.narrator.Prefetch(ctx, QuizNarration(1, plan.Quizzes[0]))
	}
	c.record(ctx, id, "section_shown", map[string]any{"index": idx, "title": sec.Title})

	go c.fetchBoardSketch(ctx, id, "section", idx, sec.Title, epoch)

	if sec.VisualKind == lesson.VisualImage && len(sec.VisualPrompts) > 0 {
		if cached != nil {
			c.publishSectionImages(id, idx, cached, epoch)
		} else {
			go c.fetchSectionImages(ctx, id, idx, sec.VisualPrompts, epoch)
		}
	}
}

// showQuestion narrates question idx, warms the clip for the next one, and
// sketches the question on the board.
func (c *Controller) showQuestion(ctx context.Context, idx int, epoch uint64) {
	c.mu.Lock()
	plan := c.plan
	id := c.state.SessionID
	c.mu.Unlock()
	if plan == nil || idx >= len(plan.Quizzes) {
		return
	}

	c.playNarration(ctx, QuizNarration(idx+1, plan.Quizzes[idx]))
	if idx+1 < len(plan.Quizzes) {
		c.narrator.Prefetch(ctx, QuizNarration(idx+2, plan.Quizzes[idx+1]))
	}
	c.record(ctx, id, "quiz_shown", map[string]int{"index": idx})

	go c.fetchBoardSketch(ctx, id, "quiz", idx, plan.Quizzes[idx].Question, epoch)
}

// playNarration plays unless the aggregate view is up, which suppresses
// audio without touching the cache.
func (c *Controller) playNarration(ctx context.Context, text string) {
	c.mu.Lock()
	suppressed := c.state.AggregateView
	c.mu.Unlock()
	if suppressed {
		c.narrator.Prefetch(ctx, text)
		return
	}
	c.narrator.Play(ctx, text)
}

// warmSetupImages fetches the teacher avatar and classroom background with
// a single attempt each under one shared deadline. The avatar gets its
// white surround matted out. Failures only cost the visuals. Avatar and
// background live for the whole session, so they are guarded by session id
// rather than display epoch.
func (c *Controller) warmSetupImages(ctx context.Context, id string) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(c.cfg.Images.SetupTimeoutMS)*time.Millisecond)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		png, err := c.source.GenerateImage(gctx, c.cfg.Teacher.VisualPrompt)
		if err != nil {
			return fmt.Errorf("avatar: %w", err)
		}
		c.publishSessionImage(id, "avatar", c.matte.CutoutPNG(png))
		return nil
	})
	g.Go(func() error {
		png, err := c.source.GenerateImage(gctx, c.cfg.Teacher.BackgroundPrompt)
		if err != nil {
			return fmt.Errorf("background: %w", err)
		}
		c.publishSessionImage(id, "background", png)
		return nil
	})
	if err := g.Wait(); err != nil {
		c.logger.Warn("setup imagery incomplete", slog.String("error", err.Error()))
	}
}

// fetchBoardSketch draws the chalkboard sketch for whatever just came on
// screen: the overview title card, a section heading, or a quiz question.
// One sketch per display change, dropped if the learner has moved on.
func (c *Controller) fetchBoardSketch(ctx context.Context, id, scope string, index int, subject string, epoch uint64) {
	prompt := fmt.Sprintf("Simple and cute chalkboard-style illustration for: %s, white background", subject)
	png, err := retry.Do(ctx, c.cfg.Images.Attempts, time.Duration(c.cfg.Images.BackoffStepMS)*time.Millisecond, func() ([]byte, error) {
		return c.source.GenerateImage(ctx, prompt)
	})
	if err != nil {
		c.logger.Warn("board sketch failed", slog.String("scope", scope), slog.String("error", err.Error()))
		return
	}
	c.publishImage(id, scope, index, png, epoch)
}

// fetchSectionImages renders every visual prompt of one section, retrying
// each a few times. Prompts that still fail are skipped; the section then
// shows without that picture.
func (c *Controller) fetchSectionImages(ctx context.Context, id string, idx int, prompts []string, epoch uint64) {
	results := make([][]byte, len(prompts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(2)
	for i, prompt := range prompts {
		g.Go(func() error {
			png, err := retry.Do(gctx, c.cfg.Images.Attempts, time.Duration(c.cfg.Images.BackoffStepMS)*time.Millisecond, func() ([]byte, error) {
				return c.source.GenerateImage(gctx, prompt)
			})
			if err != nil {
				c.logger.Warn("section image failed",
					slog.Int("section", idx),
					slog.Int("prompt", i),
					slog.String("error", err.Error()))
				return nil
			}
			results[i] = png
			return nil
		})
	}
	_ = g.Wait()

	var pngs [][]byte
	for _, png := range results {
		if png != nil {
			pngs = append(pngs, png)
		}
	}
	if len(pngs) == 0 {
		return
	}

	c.mu.Lock()
	if c.sectionImages == nil {
		c.sectionImages = make(map[int][][]byte)
	}
	c.sectionImages[idx] = pngs
	c.mu.Unlock()

	c.publishSectionImages(id, idx, pngs, epoch)
}

func (c *Controller) publishSectionImages(id string, idx int, pngs [][]byte, epoch uint64) {
	c.mu.Lock()
	stale := c.epoch != epoch
	c.mu.Unlock()
	if stale {
		return
	}
	c.publish(protocol.SubjectSectionImages, protocol.SectionImages{SessionID: id, Index: idx, PNGs: pngs})
}

func (c *Controller) publishImage(id, scope string, index int, png []byte, epoch uint64) {
	c.mu.Lock()
	stale := c.epoch != epoch
	c.mu.Unlock()
	if stale {
		return
	}
	c.publish(protocol.SubjectBoardImage, protocol.BoardImage{SessionID: id, Scope: scope, Index: index, PNG: png})
}

func (c *Controller) publishSessionImage(id, scope string, png []byte) {
	c.mu.Lock()
	stale := c.state.SessionID != id
	c.mu.Unlock()
	if stale {
		return
	}
	c.publish(protocol.SubjectBoardImage, protocol.BoardImage{SessionID: id, Scope: scope, PNG: png})
}

func (c *Controller) publishSnapshot() {
	c.mu.Lock()
	snap := protocol.StateSnapshot{
		SessionID:     c.state.SessionID,
		Phase:         string(c.state.Phase),
		Overview:      c.state.Overview,
		SectionIndex:  c.state.SectionIndex,
		QuizIndex:     c.state.QuizIndex,
		Score:         c.state.Score,
		Selected:      c.state.Selected,
		Finished:      c.state.Finished,
		AggregateView: c.state.AggregateView,
		Notice:        c.state.Notice,
		Timestamp:     time.Now().UTC(),
	}
	if c.plan != nil {
		snap.Topic = c.plan.Topic
		snap.LearningGoal = c.plan.LearningGoal
		snap.SectionCount = len(c.plan.Sections)
		snap.QuizCount = len(c.plan.Quizzes)
	}
	c.mu.Unlock()

	snap.Playing = c.narrator.Playing()
	snap.AudioNotice = c.narrator.LastError()
	c.publish(protocol.SubjectSessionState, snap)
}

func (c *Controller) publish(subject string, v any) {
	if err := c.pub.Publish(subject, v); err != nil {
		c.logger.Warn("publish failed", slog.String("subject", subject), slog.String("error", err.Error()))
	}
}

func (c *Controller) record(ctx context.Context, id, kind string, payload any) {
	if id == "" {
		return
	}
	if err := c.rec.AppendEvent(ctx, id, kind, payload); err != nil {
		c.logger.Warn("record event", slog.String("kind", kind), slog.String("error", err.Error()))
	}
}
