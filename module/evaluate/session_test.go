package evaluate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// 确定性随机源：依次返回给定序列
type scriptedRand struct {
	seq []int
	pos int
}

func (r *scriptedRand) Intn(n int) int {
	if r.pos >= len(r.seq) {
		return 0
	}
	v := r.seq[r.pos] % n
	r.pos++
	return v
}

// 手动推进的虚拟时钟
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// 记录调用的收集端：可配置先失败若干次
type fakeSubmitter struct {
	mu       sync.Mutex
	calls    int
	failures int
	got      []Submission
}

func (f *fakeSubmitter) Submit(_ context.Context, sub Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.got = append(f.got, sub)
	if f.failures > 0 {
		f.failures--
		return errors.New("network error")
	}
	return nil
}

type fakePreloader struct {
	mu   sync.Mutex
	urls []string
}

func (f *fakePreloader) Preload(url string) {
	f.mu.Lock()
	f.urls = append(f.urls, url)
	f.mu.Unlock()
}

func testProject(imageCount int, duration float64, questions, images int) Project {
	p := Project{ID: "p1", ImageCount: imageCount, ImageDuration: duration}
	for i := 0; i < questions; i++ {
		p.Questions = append(p.Questions, Question{ID: "q" + string(rune('1'+i)), Text: "问题"})
	}
	for i := 0; i < images; i++ {
		p.Images = append(p.Images, ImageItem{ID: "img" + string(rune('1'+i)), URL: "http://cdn/img" + string(rune('1'+i))})
	}
	return p
}

// 答完当前图片：推进计时并提交全部问题的取值
func answerCurrent(t *testing.T, s *Session, clock *manualClock, duration float64, values map[string]float64) {
	t.Helper()
	s.ImageLoaded()
	clock.Advance(time.Duration(duration*float64(time.Second)) + time.Millisecond)
	if !s.Tick() {
		t.Fatalf("计时耗尽后 Tick 未触发转移, phase=%v", s.Phase())
	}
	if err := s.SubmitAnswers(context.Background(), values); err != nil {
		t.Fatalf("SubmitAnswers: %v", err)
	}
}

func TestSampleImagesShuffleAndCap(t *testing.T) {
	tests := []struct {
		name       string
		images     int
		blankURLs  int
		imageCount int
		wantLen    int
	}{
		{"足量图片截取上限", 5, 0, 3, 3},
		{"图片不足时全部使用", 2, 0, 5, 2},
		{"空白URL被过滤", 4, 2, 4, 2},
		{"上限为零", 3, 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var images []ImageItem
			for i := 0; i < tt.images; i++ {
				images = append(images, ImageItem{ID: "img" + string(rune('a'+i)), URL: "http://cdn/x"})
			}
			for i := 0; i < tt.blankURLs; i++ {
				images = append(images, ImageItem{ID: "blank" + string(rune('a'+i)), URL: "   "})
			}
			got := sampleImages(images, tt.imageCount, &scriptedRand{})
			if len(got) != tt.wantLen {
				t.Fatalf("长度 = %d, want %d", len(got), tt.wantLen)
			}
			seen := map[string]bool{}
			for _, img := range got {
				if img.URL == "   " || img.URL == "" {
					t.Errorf("空白 URL 未被过滤: %+v", img)
				}
				if seen[img.ID] {
					t.Errorf("出现重复图片: %s", img.ID)
				}
				seen[img.ID] = true
			}
		})
	}
}

func TestSampleImagesDeterministicPermutation(t *testing.T) {
	images := []ImageItem{
		{ID: "a", URL: "u"}, {ID: "b", URL: "u"}, {ID: "c", URL: "u"}, {ID: "d", URL: "u"},
	}
	// Fisher–Yates 自后向前：i=3 与 j=1 交换，i=2 与 j=0 交换，i=1 与 j=1 交换
	r := &scriptedRand{seq: []int{1, 0, 1}}
	got := sampleImages(images, 4, r)
	want := []string{"c", "d", "a", "b"}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("位置 %d = %s, want %s (全序列 %v)", i, got[i].ID, id, got)
		}
	}
}

func TestNewSessionNoImages(t *testing.T) {
	sub := &fakeSubmitter{}
	tests := []struct {
		name   string
		images []ImageItem
	}{
		{"没有图片", nil},
		{"全部URL空白", []ImageItem{{ID: "a", URL: ""}, {ID: "b", URL: "  "}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Project{ID: "p1", ImageCount: 3, ImageDuration: 3, Images: tt.images}
			if _, err := NewSession(p, Options{Submitter: sub}); !errors.Is(err, ErrNoImages) {
				t.Fatalf("err = %v, want ErrNoImages", err)
			}
		})
	}
	if sub.calls != 0 {
		t.Fatalf("空会话不应产生网络调用, calls = %d", sub.calls)
	}
}

func TestNewSessionRequiresSubmitter(t *testing.T) {
	p := testProject(1, 1, 1, 1)
	if _, err := NewSession(p, Options{}); !errors.Is(err, ErrNilSubmitter) {
		t.Fatalf("err = %v, want ErrNilSubmitter", err)
	}
}

func TestSessionIDUnique(t *testing.T) {
	p := testProject(1, 1, 1, 1)
	s1, _ := NewSession(p, Options{Submitter: &fakeSubmitter{}})
	s2, _ := NewSession(p, Options{Submitter: &fakeSubmitter{}})
	if s1.ID() == "" || s1.ID() == s2.ID() {
		t.Fatalf("会话ID必须非空且互不相同: %q vs %q", s1.ID(), s2.ID())
	}
}

func TestTimerGating(t *testing.T) {
	clock := newManualClock()
	p := testProject(1, 3, 1, 1)
	s, err := NewSession(p, Options{Submitter: &fakeSubmitter{}, Clock: clock})
	if err != nil {
		t.Fatal(err)
	}

	// 图片未加载完成：计时不启动，剩余时长保持完整
	clock.Advance(10 * time.Second)
	if s.Tick() {
		t.Fatal("加载事件前不应触发转移")
	}
	if got := s.Remaining(); got != 3 {
		t.Fatalf("未加载时 Remaining = %v, want 3", got)
	}

	s.ImageLoaded()
	clock.Advance(2 * time.Second)
	if s.Tick() {
		t.Fatal("时长未耗尽不应触发转移")
	}
	if got := s.Remaining(); got != 1 {
		t.Fatalf("Remaining = %v, want 1", got)
	}

	clock.Advance(1 * time.Second)
	if !s.Tick() {
		t.Fatal("时长耗尽后应触发转移")
	}
	if s.Phase() != PhaseShowSliders {
		t.Fatalf("phase = %v, want PhaseShowSliders", s.Phase())
	}
	// 回答阶段剩余时长冻结为完整时长（仅展示用）
	clock.Advance(5 * time.Second)
	if got := s.Remaining(); got != 3 {
		t.Fatalf("回答阶段 Remaining = %v, want 3", got)
	}
	// 阶段已推进，过期的 Tick 是空操作
	if s.Tick() {
		t.Fatal("回答阶段的 Tick 不应再触发转移")
	}
}

func TestSubmitAnswersRequiresAllQuestions(t *testing.T) {
	clock := newManualClock()
	p := testProject(1, 1, 2, 1)
	s, _ := NewSession(p, Options{Submitter: &fakeSubmitter{}, Clock: clock})

	s.ImageLoaded()
	clock.Advance(2 * time.Second)
	s.Tick()

	err := s.SubmitAnswers(context.Background(), map[string]float64{"q1": 0.5})
	if !errors.Is(err, ErrMissingAnswer) {
		t.Fatalf("err = %v, want ErrMissingAnswer", err)
	}
	// 校验失败不追加任何评分
	if got := len(s.Answers()); got != 0 {
		t.Fatalf("answers = %d, want 0", got)
	}
}

func TestSubmitAnswersWrongPhase(t *testing.T) {
	p := testProject(1, 3, 1, 1)
	s, _ := NewSession(p, Options{Submitter: &fakeSubmitter{}, Clock: newManualClock()})
	if err := s.SubmitAnswers(context.Background(), map[string]float64{"q1": 0}); !errors.Is(err, ErrWrongPhase) {
		t.Fatalf("err = %v, want ErrWrongPhase", err)
	}
}

func TestMonotonicProgressionAndPreload(t *testing.T) {
	clock := newManualClock()
	pre := &fakePreloader{}
	sub := &fakeSubmitter{}
	p := testProject(3, 1, 1, 3)
	s, _ := NewSession(p, Options{Submitter: sub, Clock: clock, Preloader: pre, Rand: &scriptedRand{}})

	order := s.Images()
	for i := 0; i < 3; i++ {
		if got := s.Index(); got != i {
			t.Fatalf("index = %d, want %d", got, i)
		}
		cur, ok := s.CurrentImage()
		if !ok || cur.ID != order[i].ID {
			t.Fatalf("当前图片 = %+v, want %+v", cur, order[i])
		}
		answerCurrent(t, s, clock, 1, map[string]float64{"q1": 0})
	}

	if s.Phase() != PhaseSubmitted {
		t.Fatalf("phase = %v, want PhaseSubmitted", s.Phase())
	}
	// 前两次推进各预热一次下一张
	if len(pre.urls) != 2 || pre.urls[0] != order[1].URL || pre.urls[1] != order[2].URL {
		t.Fatalf("预热序列 = %v", pre.urls)
	}
}

func TestAnswerCompleteness(t *testing.T) {
	clock := newManualClock()
	sub := &fakeSubmitter{}
	p := testProject(2, 1, 2, 4)
	s, _ := NewSession(p, Options{Submitter: sub, Clock: clock})

	shown := s.Images()
	answerCurrent(t, s, clock, 1, map[string]float64{"q1": 0.5, "q2": -0.2})
	answerCurrent(t, s, clock, 1, map[string]float64{"q1": 1, "q2": 0})

	if sub.calls != 1 {
		t.Fatalf("提交次数 = %d, want 1", sub.calls)
	}
	got := sub.got[0]
	if got.SessionID != s.ID() {
		t.Fatalf("sessionId = %q, want %q", got.SessionID, s.ID())
	}
	// m 张图片 × q 个问题 = m×q 条评分，图片按访问顺序、问题按给定顺序
	if len(got.Answers) != 4 {
		t.Fatalf("answers = %d, want 4", len(got.Answers))
	}
	validImage := map[string]bool{shown[0].ID: true, shown[1].ID: true}
	for _, a := range got.Answers {
		if !validImage[a.ImageID] {
			t.Errorf("未知图片ID: %s", a.ImageID)
		}
		if a.QuestionID != "q1" && a.QuestionID != "q2" {
			t.Errorf("未知问题ID: %s", a.QuestionID)
		}
	}
	if got.Answers[0].ImageID != shown[0].ID || got.Answers[2].ImageID != shown[1].ID {
		t.Errorf("评分顺序与图片访问顺序不符: %+v", got.Answers)
	}
	if got.Answers[0].Value != 0.5 || got.Answers[1].Value != -0.2 {
		t.Errorf("第一张图片的取值捕获错误: %+v", got.Answers[:2])
	}
}

func TestRetryAfterFailureKeepsPayload(t *testing.T) {
	clock := newManualClock()
	sub := &fakeSubmitter{failures: 1}
	done := 0
	p := testProject(1, 1, 2, 1)
	s, _ := NewSession(p, Options{
		Submitter:  sub,
		Clock:      clock,
		OnComplete: func(string) { done++ },
	})

	s.ImageLoaded()
	clock.Advance(2 * time.Second)
	s.Tick()

	// 第一次提交失败：评分保留，不进入终态
	err := s.SubmitAnswers(context.Background(), map[string]float64{"q1": 0.3, "q2": -0.7})
	if err == nil {
		t.Fatal("首次提交应失败")
	}
	if s.Phase() == PhaseSubmitted {
		t.Fatal("失败后不应进入 PhaseSubmitted")
	}
	if done != 0 {
		t.Fatal("失败后不应触发完成回调")
	}

	// 重试：成功，且载荷与第一次完全一致
	if err := s.Submit(context.Background()); err != nil {
		t.Fatalf("重试失败: %v", err)
	}
	if sub.calls != 2 {
		t.Fatalf("提交次数 = %d, want 2", sub.calls)
	}
	if len(sub.got[0].Answers) != len(sub.got[1].Answers) {
		t.Fatal("重试载荷长度与首次不一致")
	}
	for i := range sub.got[0].Answers {
		if sub.got[0].Answers[i] != sub.got[1].Answers[i] {
			t.Fatalf("重试载荷在位置 %d 被改动: %+v vs %+v", i, sub.got[0].Answers[i], sub.got[1].Answers[i])
		}
	}
	if s.Phase() != PhaseSubmitted || done != 1 {
		t.Fatalf("phase = %v, done = %d", s.Phase(), done)
	}

	// 终态后再提交被拒绝
	if err := s.Submit(context.Background()); !errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("err = %v, want ErrAlreadySubmitted", err)
	}
}

// 最后一张上报失败后，参与者再次点击提交按钮走的仍是 SubmitAnswers：
// 评分不得重复追加，会话要能恢复到可提交状态
func TestResubmitLastImageAfterFailure(t *testing.T) {
	clock := newManualClock()
	sub := &fakeSubmitter{failures: 1}
	p := testProject(1, 1, 2, 1)
	s, _ := NewSession(p, Options{Submitter: sub, Clock: clock})

	s.ImageLoaded()
	clock.Advance(2 * time.Second)
	s.Tick()

	values := map[string]float64{"q1": 0.3, "q2": -0.7}
	if err := s.SubmitAnswers(context.Background(), values); err == nil {
		t.Fatal("首次提交应失败")
	}

	// 双击/重试再次走 SubmitAnswers，而不是 Submit
	if err := s.SubmitAnswers(context.Background(), values); err != nil {
		t.Fatalf("重试失败: %v", err)
	}
	if got := len(s.Answers()); got != 2 {
		t.Fatalf("answers = %d, want 2 (不得重复追加)", got)
	}
	if sub.calls != 2 {
		t.Fatalf("提交次数 = %d, want 2", sub.calls)
	}
	if len(sub.got[1].Answers) != 2 {
		t.Fatalf("重试载荷 = %d 条, want 2", len(sub.got[1].Answers))
	}
	if s.Phase() != PhaseSubmitted {
		t.Fatalf("phase = %v, want PhaseSubmitted", s.Phase())
	}
}

// 收到信号前一直阻塞的收集端，用于制造在途提交
type blockingSubmitter struct {
	release chan struct{}
	calls   int
	mu      sync.Mutex
}

func (b *blockingSubmitter) Submit(context.Context, Submission) error {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	<-b.release
	return nil
}

func TestAtMostOneInFlightSubmission(t *testing.T) {
	clock := newManualClock()
	sub := &blockingSubmitter{release: make(chan struct{})}
	p := testProject(1, 1, 1, 1)
	s, _ := NewSession(p, Options{Submitter: sub, Clock: clock})

	s.ImageLoaded()
	clock.Advance(2 * time.Second)
	s.Tick()

	first := make(chan error, 1)
	go func() {
		first <- s.SubmitAnswers(context.Background(), map[string]float64{"q1": 0})
	}()

	// 等第一次提交进入在途状态
	for i := 0; ; i++ {
		sub.mu.Lock()
		c := sub.calls
		sub.mu.Unlock()
		if c == 1 {
			break
		}
		if i > 100 {
			t.Fatal("首次提交未进入在途状态")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// 双击：第二次触发被立即拒绝，不产生第二个网络调用
	if err := s.Submit(context.Background()); !errors.Is(err, ErrSubmitInFlight) {
		t.Fatalf("err = %v, want ErrSubmitInFlight", err)
	}

	close(sub.release)
	if err := <-first; err != nil {
		t.Fatalf("首次提交失败: %v", err)
	}
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.calls != 1 {
		t.Fatalf("网络调用 = %d, want 1", sub.calls)
	}
}

// 完整场景：imageCount=2、imageDuration=3、2个问题、2张有效图片
func TestFullScenario(t *testing.T) {
	clock := newManualClock()
	sub := &fakeSubmitter{}
	var doneProject string
	p := Project{
		ID:            "study-42",
		ImageCount:    2,
		ImageDuration: 3,
		Questions:     []Question{{ID: "q1", Text: "明度"}, {ID: "q2", Text: "对比度"}},
		Images:        []ImageItem{{ID: "imgA", URL: "http://cdn/a"}, {ID: "imgB", URL: "http://cdn/b"}},
	}
	s, err := NewSession(p, Options{
		Submitter:  sub,
		Clock:      clock,
		OnComplete: func(id string) { doneProject = id },
	})
	if err != nil {
		t.Fatal(err)
	}

	answerCurrent(t, s, clock, 3, map[string]float64{"q1": 0.5, "q2": -0.2})
	answerCurrent(t, s, clock, 3, map[string]float64{"q1": 1, "q2": 0})

	if sub.calls != 1 {
		t.Fatalf("恰好一次提交, got %d", sub.calls)
	}
	got := sub.got[0]
	if len(got.Answers) != 4 {
		t.Fatalf("answers = %d, want 4", len(got.Answers))
	}
	images := map[string]bool{}
	questions := map[string]bool{}
	for _, a := range got.Answers {
		images[a.ImageID] = true
		questions[a.QuestionID] = true
	}
	if !images["imgA"] || !images["imgB"] || !questions["q1"] || !questions["q2"] {
		t.Fatalf("载荷未覆盖全部图片与问题: %+v", got.Answers)
	}
	if doneProject != "study-42" {
		t.Fatalf("完成回调项目ID = %q, want study-42", doneProject)
	}
}
