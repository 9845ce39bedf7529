package session

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/brightboard-labs/brightboard/internal/config"
	"github.com/brightboard-labs/brightboard/internal/content"
	"github.com/brightboard-labs/brightboard/internal/matte"
	"github.com/brightboard-labs/brightboard/internal/protocol"
	"github.com/brightboard-labs/brightboard/internal/video"
)

type stubNarrator struct {
	mu         sync.Mutex
	played     []string
	prefetched []string
	stops      int
	resets     int
}

func (n *stubNarrator) Play(ctx context.Context, text string) {
	n.mu.Lock()
	n.played = append(n.played, text)
	n.mu.Unlock()
}

func (n *stubNarrator) Prefetch(ctx context.Context, text string) {
	n.mu.Lock()
	n.prefetched = append(n.prefetched, text)
	n.mu.Unlock()
}

func (n *stubNarrator) Stop() {
	n.mu.Lock()
	n.stops++
	n.mu.Unlock()
}

func (n *stubNarrator) Reset() {
	n.mu.Lock()
	n.resets++
	n.mu.Unlock()
}

func (n *stubNarrator) Playing() bool     { return false }
func (n *stubNarrator) LastError() string { return "" }

func (n *stubNarrator) playedTexts() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.played...)
}

func (n *stubNarrator) prefetchedTexts() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.prefetched...)
}

type stubPublisher struct {
	mu   sync.Mutex
	msgs []publishedMsg
}

type publishedMsg struct {
	subject string
	payload any
}

func (p *stubPublisher) Publish(subject string, v any) error {
	p.mu.Lock()
	p.msgs = append(p.msgs, publishedMsg{subject: subject, payload: v})
	p.mu.Unlock()
	return nil
}

func (p *stubPublisher) bySubject(subject string) []any {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []any
	for _, m := range p.msgs {
		if m.subject == subject {
			out = append(out, m.payload)
		}
	}
	return out
}

type stubRecorder struct {
	mu    sync.Mutex
	kinds []string
}

func (r *stubRecorder) BeginSession(ctx context.Context, id, topic string, student protocol.StudentInfo) error {
	return nil
}

func (r *stubRecorder) AppendEvent(ctx context.Context, sessionID, kind string, payload any) error {
	r.mu.Lock()
	r.kinds = append(r.kinds, kind)
	r.mu.Unlock()
	return nil
}

func newTestController(t *testing.T) (*Controller, *stubNarrator, *stubPublisher) {
	t.Helper()
	cfg := config.Default()
	cfg.Video.Enabled = true
	narrator := &stubNarrator{}
	pub := &stubPublisher{}
	ctrl := NewController(
		cfg,
		content.NewMockSource(cfg.Content.SectionCount),
		narrator,
		matte.New(cfg.Matte.Threshold),
		video.NewMockSummarizer(),
		pub,
		&stubRecorder{},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	return ctrl, narrator, pub
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func startLesson(t *testing.T, ctrl *Controller, narrator *stubNarrator) {
	t.Helper()
	ctrl.StartLesson(context.Background(), protocol.Command{Action: protocol.ActionStart, Topic: "volcanoes"})
	waitFor(t, func() bool { return ctrl.State().Phase == PhaseTeaching }, "plan to be ready")
	waitFor(t, func() bool { return len(narrator.playedTexts()) >= 1 }, "greeting narration")
}

func TestStartLessonReachesOverview(t *testing.T) {
	ctrl, narrator, _ := newTestController(t)
	startLesson(t, ctrl, narrator)

	st := ctrl.State()
	if !st.Overview {
		t.Fatal("expected overview after planning")
	}
	if st.SessionID == "" {
		t.Fatal("expected a session id")
	}
	if narrator.resets != 1 {
		t.Fatalf("expected one narration reset, got %d", narrator.resets)
	}
	played := narrator.playedTexts()
	if len(played) == 0 || !strings.Contains(played[0], "volcanoes") {
		t.Fatalf("expected greeting mentioning the topic, got %v", played)
	}
	if ctrl.Plan() == nil {
		t.Fatal("expected a plan")
	}
}

func TestStartLessonIgnoredWhilePlanning(t *testing.T) {
	ctrl, narrator, _ := newTestController(t)
	ctrl.StartLesson(context.Background(), protocol.Command{Topic: "rivers"})
	ctrl.StartLesson(context.Background(), protocol.Command{Topic: "mountains"})
	waitFor(t, func() bool { return ctrl.State().Phase == PhaseTeaching }, "plan to be ready")

	if got := ctrl.Plan().Topic; got != "rivers" {
		t.Fatalf("second start should have been ignored, plan topic is %q", got)
	}
	if narrator.resets != 1 {
		t.Fatalf("expected one reset, got %d", narrator.resets)
	}
}

func TestFullLessonWalkthrough(t *testing.T) {
	ctrl, narrator, pub := newTestController(t)
	ctx := context.Background()
	startLesson(t, ctrl, narrator)

	ctrl.BeginLesson(ctx)
	st := ctrl.State()
	if st.Overview || st.SectionIndex != 0 {
		t.Fatalf("expected section 0, got %+v", st)
	}

	plan := ctrl.Plan()
	for i := 1; i < len(plan.Sections); i++ {
		ctrl.Next(ctx)
	}
	st = ctrl.State()
	if st.SectionIndex != len(plan.Sections)-1 {
		t.Fatalf("expected last section, got %d", st.SectionIndex)
	}

	// One more Next enters the quiz.
	ctrl.Next(ctx)
	st = ctrl.State()
	if st.Phase != PhaseQuiz || st.QuizIndex != 0 || st.Selected != NoSelection {
		t.Fatalf("expected quiz start, got %+v", st)
	}

	// Answer correct, incorrect, correct.
	answers := []int{plan.Quizzes[0].CorrectIndex, wrongAnswer(plan.Quizzes[1].CorrectIndex, len(plan.Quizzes[1].Options)), plan.Quizzes[2].CorrectIndex}
	for i, a := range answers {
		ctrl.Answer(ctx, a)
		if i < len(answers)-1 {
			ctrl.NextQuestion(ctx)
		}
	}
	ctrl.NextQuestion(ctx)

	st = ctrl.State()
	if !st.Finished {
		t.Fatal("expected finished lesson")
	}
	if st.Score != 2 {
		t.Fatalf("expected score 2, got %d", st.Score)
	}

	played := narrator.playedTexts()
	last := played[len(played)-1]
	if !strings.Contains(last, "2 out of 3") {
		t.Fatalf("closing narration should report the score, got %q", last)
	}

	feedback := pub.bySubject(protocol.SubjectQuizFeedback)
	if len(feedback) != 3 {
		t.Fatalf("expected 3 feedback messages, got %d", len(feedback))
	}
	second := feedback[1].(protocol.QuizFeedback)
	if second.Correct {
		t.Fatal("second answer was wrong, feedback says correct")
	}
}

func wrongAnswer(correct, options int) int {
	return (correct + 1) % options
}

func TestPrevBoundsAndNoOp(t *testing.T) {
	ctrl, narrator, _ := newTestController(t)
	ctx := context.Background()
	startLesson(t, ctrl, narrator)
	ctrl.BeginLesson(ctx)

	ctrl.Prev(ctx)
	if got := ctrl.State().SectionIndex; got != 0 {
		t.Fatalf("prev at the first section must stay put, got %d", got)
	}

	ctrl.Next(ctx)
	ctrl.Prev(ctx)
	if got := ctrl.State().SectionIndex; got != 0 {
		t.Fatalf("expected to be back at section 0, got %d", got)
	}
}

func TestAnswerOnlyFirstCounts(t *testing.T) {
	ctrl, narrator, _ := newTestController(t)
	ctx := context.Background()
	startLesson(t, ctrl, narrator)
	ctrl.BeginLesson(ctx)
	plan := ctrl.Plan()
	for i := 0; i < len(plan.Sections); i++ {
		ctrl.Next(ctx)
	}
	if ctrl.State().Phase != PhaseQuiz {
		t.Fatal("expected quiz phase")
	}

	q := plan.Quizzes[0]
	ctrl.Answer(ctx, wrongAnswer(q.CorrectIndex, len(q.Options)))
	ctrl.Answer(ctx, q.CorrectIndex)

	st := ctrl.State()
	if st.Score != 0 {
		t.Fatalf("second answer must not count, score %d", st.Score)
	}
	if st.Selected == q.CorrectIndex {
		t.Fatal("selection should keep the first answer")
	}
}

func TestNextQuestionRequiresAnswer(t *testing.T) {
	ctrl, narrator, _ := newTestController(t)
	ctx := context.Background()
	startLesson(t, ctrl, narrator)
	ctrl.BeginLesson(ctx)
	plan := ctrl.Plan()
	for i := 0; i < len(plan.Sections); i++ {
		ctrl.Next(ctx)
	}

	ctrl.NextQuestion(ctx)
	if got := ctrl.State().QuizIndex; got != 0 {
		t.Fatalf("next question without an answer must be ignored, got index %d", got)
	}
}

func TestQuizPrefetchMatchesPlayText(t *testing.T) {
	ctrl, narrator, _ := newTestController(t)
	ctx := context.Background()
	startLesson(t, ctrl, narrator)
	ctrl.BeginLesson(ctx)
	plan := ctrl.Plan()
	for i := 0; i < len(plan.Sections); i++ {
		ctrl.Next(ctx)
	}

	// The first question's clip was prefetched on the last section; the
	// warmed text must match the played text exactly.
	want := QuizNarration(1, plan.Quizzes[0])
	var warmed bool
	for _, text := range narrator.prefetchedTexts() {
		if text == want {
			warmed = true
		}
	}
	if !warmed {
		t.Fatalf("question 1 was not prefetched as %q", want)
	}

	played := narrator.playedTexts()
	if played[len(played)-1] != want {
		t.Fatalf("played text differs from prefetched text: %q", played[len(played)-1])
	}
}

func TestToggleAggregateViewSilencesAudio(t *testing.T) {
	ctrl, narrator, _ := newTestController(t)
	ctx := context.Background()
	startLesson(t, ctrl, narrator)
	ctrl.BeginLesson(ctx)

	before := len(narrator.playedTexts())
	ctrl.ToggleAggregateView(ctx)
	if !ctrl.State().AggregateView {
		t.Fatal("expected aggregate view on")
	}
	stopsAfterToggle := narrator.stops

	ctrl.Next(ctx)
	if got := len(narrator.playedTexts()); got != before {
		t.Fatalf("aggregate view must suppress playback, got %d plays", got-before)
	}
	if narrator.stops < stopsAfterToggle || stopsAfterToggle == 0 {
		t.Fatal("entering aggregate view should stop audio")
	}

	ctrl.ToggleAggregateView(ctx)
	if ctrl.State().AggregateView {
		t.Fatal("expected aggregate view off")
	}
}

func TestReplayNarration(t *testing.T) {
	ctrl, narrator, _ := newTestController(t)
	ctx := context.Background()
	startLesson(t, ctrl, narrator)
	ctrl.BeginLesson(ctx)

	played := narrator.playedTexts()
	current := played[len(played)-1]
	ctrl.ReplayNarration(ctx)

	replayed := narrator.playedTexts()
	if replayed[len(replayed)-1] != current {
		t.Fatalf("replay should repeat %q, got %q", current, replayed[len(replayed)-1])
	}
}

func TestRestartReturnsToIdle(t *testing.T) {
	ctrl, narrator, _ := newTestController(t)
	ctx := context.Background()
	startLesson(t, ctrl, narrator)
	ctrl.BeginLesson(ctx)

	ctrl.Restart(ctx)
	st := ctrl.State()
	if st.Phase != PhaseIdle || st.Finished || st.SessionID != "" {
		t.Fatalf("expected a clean idle state, got %+v", st)
	}
	if ctrl.Plan() != nil {
		t.Fatal("restart should drop the plan")
	}
}

func TestSummaryVideoOnlyWhenFinished(t *testing.T) {
	ctrl, narrator, pub := newTestController(t)
	ctx := context.Background()
	startLesson(t, ctrl, narrator)
	ctrl.BeginLesson(ctx)

	ctrl.RequestSummaryVideo(ctx)
	time.Sleep(100 * time.Millisecond)
	if got := pub.bySubject(protocol.SubjectVideoStatus); len(got) != 0 {
		t.Fatalf("video before finish must be ignored, got %d messages", len(got))
	}

	plan := ctrl.Plan()
	for i := 0; i < len(plan.Sections); i++ {
		ctrl.Next(ctx)
	}
	for i := range plan.Quizzes {
		ctrl.Answer(ctx, plan.Quizzes[i].CorrectIndex)
		ctrl.NextQuestion(ctx)
	}
	if !ctrl.State().Finished {
		t.Fatal("expected finished lesson")
	}

	ctrl.RequestSummaryVideo(ctx)
	waitFor(t, func() bool { return len(pub.bySubject(protocol.SubjectVideoStatus)) == 1 }, "video status")

	status := pub.bySubject(protocol.SubjectVideoStatus)[0].(protocol.VideoStatus)
	if status.Error != "" || status.URL == "" {
		t.Fatalf("expected a video url, got %+v", status)
	}
}

func TestSetupImagesPublished(t *testing.T) {
	ctrl, narrator, pub := newTestController(t)
	startLesson(t, ctrl, narrator)

	waitFor(t, func() bool {
		scopes := map[string]bool{}
		for _, m := range pub.bySubject(protocol.SubjectBoardImage) {
			scopes[m.(protocol.BoardImage).Scope] = true
		}
		return scopes["avatar"] && scopes["background"] && scopes["topic"]
	}, "setup and topic images")
}

func hasBoardImage(pub *stubPublisher, scope string, index int) bool {
	for _, m := range pub.bySubject(protocol.SubjectBoardImage) {
		img := m.(protocol.BoardImage)
		if img.Scope == scope && img.Index == index {
			return true
		}
	}
	return false
}

func TestBoardSketchFollowsSectionAndQuestion(t *testing.T) {
	ctrl, narrator, pub := newTestController(t)
	ctx := context.Background()
	startLesson(t, ctrl, narrator)

	ctrl.BeginLesson(ctx)
	waitFor(t, func() bool { return hasBoardImage(pub, "section", 0) }, "section 0 sketch")

	ctrl.Next(ctx)
	waitFor(t, func() bool { return hasBoardImage(pub, "section", 1) }, "section 1 sketch")

	plan := ctrl.Plan()
	for i := 1; i < len(plan.Sections); i++ {
		ctrl.Next(ctx)
	}
	if ctrl.State().Phase != PhaseQuiz {
		t.Fatal("expected quiz phase")
	}
	waitFor(t, func() bool { return hasBoardImage(pub, "quiz", 0) }, "question 0 sketch")

	ctrl.Answer(ctx, plan.Quizzes[0].CorrectIndex)
	ctrl.NextQuestion(ctx)
	waitFor(t, func() bool { return hasBoardImage(pub, "quiz", 1) }, "question 1 sketch")
}

type countingSource struct {
	content.Source
	mu      sync.Mutex
	prompts map[string]int
}

func (s *countingSource) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	s.mu.Lock()
	if s.prompts == nil {
		s.prompts = make(map[string]int)
	}
	s.prompts[prompt]++
	s.mu.Unlock()
	return s.Source.GenerateImage(ctx, prompt)
}

func (s *countingSource) count(prompt string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prompts[prompt]
}

func TestSectionIllustrationsReusedOnRevisit(t *testing.T) {
	cfg := config.Default()
	src := &countingSource{Source: content.NewMockSource(cfg.Content.SectionCount)}
	narrator := &stubNarrator{}
	pub := &stubPublisher{}
	ctrl := NewController(
		cfg,
		src,
		narrator,
		matte.New(cfg.Matte.Threshold),
		video.NewMockSummarizer(),
		pub,
		&stubRecorder{},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	ctx := context.Background()
	startLesson(t, ctrl, narrator)

	ctrl.BeginLesson(ctx)
	sectionZero := func() int {
		count := 0
		for _, m := range pub.bySubject(protocol.SubjectSectionImages) {
			if m.(protocol.SectionImages).Index == 0 {
				count++
			}
		}
		return count
	}
	waitFor(t, func() bool { return sectionZero() >= 1 }, "section 0 illustrations")

	ctrl.Next(ctx)
	ctrl.Prev(ctx)
	waitFor(t, func() bool { return sectionZero() >= 2 }, "revisit to republish section 0")

	prompt := ctrl.Plan().Sections[0].VisualPrompts[0]
	if got := src.count(prompt); got != 1 {
		t.Fatalf("revisit must reuse stored illustrations, prompt was generated %d times", got)
	}
}
