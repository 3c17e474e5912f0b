package evaluate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNoImages 项目过滤后没有可用图片，会话无法开始
	ErrNoImages = errors.New("没有可用的图片")
	// ErrWrongPhase 操作与当前阶段不符
	ErrWrongPhase = errors.New("当前阶段不允许该操作")
	// ErrMissingAnswer 没有为每个问题提供取值
	ErrMissingAnswer = errors.New("存在未回答的问题")
	// ErrSubmitInFlight 已有一次提交在途，拒绝并发重复提交
	ErrSubmitInFlight = errors.New("评分正在提交中")
	// ErrAlreadySubmitted 会话已成功提交，不能重复提交
	ErrAlreadySubmitted = errors.New("评分已提交")
	// ErrNilSubmitter 创建会话时未提供评分收集方
	ErrNilSubmitter = errors.New("缺少评分收集方")
)

// Options 会话的可注入依赖。零值字段使用默认实现
type Options struct {
	Rand       Rand               // 洗牌随机源，默认 math/rand
	Clock      Clock              // 计时时钟，默认真实时钟
	Preloader  Preloader          // 下一张图片的预热器，可为空
	Submitter  Submitter          // 最终评分收集方
	OnComplete func(projectID string) // 提交成功后的完成回调（导航到致谢页）
	SessionID  string             // 指定会话ID，默认生成新的 UUID
}

// Session 驱动一名参与者完成一次评估流程：
// 按随机顺序逐张展示图片，计时结束后收集每个问题的评分，
// 最后一张答完后将全部评分一次性上报。
// 状态只向前推进，已提交的评分不可修改。
type Session struct {
	mu sync.Mutex

	id      string
	project Project
	images  []ImageItem // 抽样洗牌后的展示序列，创建后冻结

	index int
	phase Phase

	answers []Answer // 只追加，按图片访问顺序

	clock      Clock
	preloader  Preloader
	submitter  Submitter
	onComplete func(string)

	imageLoaded bool
	loadedAt    time.Time

	submitting bool // 在途提交标记，保证同一会话至多一次未完成的提交
}

// NewSession 创建一次参与会话。收集方是必填依赖，缺失返回 ErrNilSubmitter；
// 过滤后没有可用图片时返回 ErrNoImages，
// 此时不启动计时器，也不会产生任何网络请求。
func NewSession(project Project, opts Options) (*Session, error) {
	if opts.Submitter == nil {
		return nil, ErrNilSubmitter
	}
	r := opts.Rand
	if r == nil {
		r = defaultRand()
	}
	images := sampleImages(project.Images, project.ImageCount, r)
	if len(images) == 0 {
		return nil, ErrNoImages
	}

	id := opts.SessionID
	if id == "" {
		id = uuid.NewString()
	}
	clock := opts.Clock
	if clock == nil {
		clock = realClock{}
	}

	return &Session{
		id:         id,
		project:    project,
		images:     images,
		phase:      PhaseShowImage,
		clock:      clock,
		preloader:  opts.Preloader,
		submitter:  opts.Submitter,
		onComplete: opts.OnComplete,
	}, nil
}

// ID 返回会话标识（不关联任何已持久化身份）
func (s *Session) ID() string {
	return s.id
}

// Phase 返回当前阶段
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Index 返回当前图片下标（只增不减）
func (s *Session) Index() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

// Images 返回本次会话的展示序列副本
func (s *Session) Images() []ImageItem {
	out := make([]ImageItem, len(s.images))
	copy(out, s.images)
	return out
}

// CurrentImage 返回正在展示/回答的图片
func (s *Session) CurrentImage() (ImageItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseSubmitted || s.index >= len(s.images) {
		return ImageItem{}, false
	}
	return s.images[s.index], true
}

// Answers 返回已累计评分的副本（上报前仅供宿主侧使用，不向参与者展示）
func (s *Session) Answers() []Answer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Answer, len(s.answers))
	copy(out, s.answers)
	return out
}

// ImageLoaded 图片加载完成事件。计时从这里开始：
// 加载耗时不占用展示时长，加载失败则计时永远不启动（见设计记录）
func (s *Session) ImageLoaded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseShowImage || s.imageLoaded {
		return
	}
	s.imageLoaded = true
	s.loadedAt = s.clock.Now()
}

// Tick 宿主环境的逐帧回调。展示时长耗尽时触发 ShowImage→ShowSliders，
// 返回是否发生了转移。其余阶段调用是无害的空操作（过期的回调不会误触发）
func (s *Session) Tick() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseShowImage || !s.imageLoaded {
		return false
	}
	elapsed := s.clock.Now().Sub(s.loadedAt).Seconds()
	if elapsed < s.project.ImageDuration {
		return false
	}
	s.phase = PhaseShowSliders
	return true
}

// Remaining 剩余展示时长（秒）。图片未加载完成时不开始倒计时；
// 回答阶段冻结为完整时长（仅用于展示）
func (s *Session) Remaining() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseShowImage || !s.imageLoaded {
		return s.project.ImageDuration
	}
	remaining := s.project.ImageDuration - s.clock.Now().Sub(s.loadedAt).Seconds()
	if remaining < 0 {
		return 0
	}
	return remaining
}

// SubmitAnswers 提交当前图片的全部问题评分，values 以问题ID为键。
// 每个问题都必须有取值（中性默认值也算已回答）；提交瞬间捕获取值，
// 之后滑块再变动不影响已记录的评分。
// 非最后一张：追加评分、预热下一张图片、推进到下一张的展示阶段。
// 最后一张：追加评分后立即触发最终上报（见 Submit）；
// 上报失败后的重复调用不追加评分，直接重试上报。
func (s *Session) SubmitAnswers(ctx context.Context, values map[string]float64) error {
	s.mu.Lock()
	if s.phase != PhaseShowSliders {
		s.mu.Unlock()
		return ErrWrongPhase
	}

	// 当前图片的评分已捕获过（最后一张上报失败后参与者再次点击提交），
	// 不再追加，直接重试上报
	if len(s.project.Questions) > 0 && len(s.answers) == (s.index+1)*len(s.project.Questions) {
		s.mu.Unlock()
		return s.Submit(ctx)
	}

	img := s.images[s.index]
	// 逐题校验并按给定顺序捕获
	captured := make([]Answer, 0, len(s.project.Questions))
	for _, q := range s.project.Questions {
		v, ok := values[q.ID]
		if !ok {
			s.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrMissingAnswer, q.ID)
		}
		captured = append(captured, Answer{ImageID: img.ID, QuestionID: q.ID, Value: v})
	}
	s.answers = append(s.answers, captured...)

	if s.index+1 < len(s.images) {
		next := s.images[s.index+1]
		// 预热只是发起一次资源抓取，不等待完成，也不影响状态机
		if s.preloader != nil {
			s.preloader.Preload(next.URL)
		}
		s.index++
		s.phase = PhaseShowImage
		s.imageLoaded = false
		s.loadedAt = time.Time{}
		s.mu.Unlock()
		return nil
	}

	// 最后一张：进入最终上报
	s.mu.Unlock()
	return s.Submit(ctx)
}

// Submit 将完整评分集合上报给收集方。成功（2xx）后进入终态并触发完成回调；
// 失败时评分原样保留，宿主可重新调用本方法重试。
// 同一时刻至多一次在途提交：重复触发返回 ErrSubmitInFlight。
func (s *Session) Submit(ctx context.Context) error {
	s.mu.Lock()
	if s.phase == PhaseSubmitted {
		s.mu.Unlock()
		return ErrAlreadySubmitted
	}
	if s.phase != PhaseShowSliders || len(s.answers) != len(s.images)*len(s.project.Questions) {
		s.mu.Unlock()
		return ErrWrongPhase
	}
	if s.submitting {
		s.mu.Unlock()
		return ErrSubmitInFlight
	}
	s.submitting = true
	sub := Submission{SessionID: s.id, Answers: make([]Answer, len(s.answers))}
	copy(sub.Answers, s.answers)
	s.mu.Unlock()

	err := s.submitter.Submit(ctx, sub)

	s.mu.Lock()
	s.submitting = false
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("上报评分失败: %w", err)
	}
	s.phase = PhaseSubmitted
	done := s.onComplete
	projectID := s.project.ID
	s.mu.Unlock()

	if done != nil {
		done(projectID)
	}
	return nil
}
