package evaluate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestHTTPSubmitter(t *testing.T) {
	var calls int32
	var lastBody Submission
	status := int32(http.StatusOK)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.Method != http.MethodPost || r.URL.Path != "/scores" {
			t.Errorf("意外的请求: %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&lastBody); err != nil {
			t.Errorf("解析请求体失败: %v", err)
		}
		w.WriteHeader(int(atomic.LoadInt32(&status)))
	}))
	defer srv.Close()

	sub := NewHTTPSubmitter(srv.URL + "/")
	payload := Submission{
		SessionID: "sess-1",
		Answers:   []Answer{{ImageID: "i1", QuestionID: "q1", Value: 0.5}},
	}

	if err := sub.Submit(context.Background(), payload); err != nil {
		t.Fatalf("2xx 应视为成功: %v", err)
	}
	if lastBody.SessionID != "sess-1" || len(lastBody.Answers) != 1 {
		t.Fatalf("线上载荷不符: %+v", lastBody)
	}

	// 非 2xx 返回错误
	atomic.StoreInt32(&status, http.StatusInternalServerError)
	if err := sub.Submit(context.Background(), payload); err == nil {
		t.Fatal("5xx 应返回错误")
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestStartTimerDrivesTransition(t *testing.T) {
	p := testProject(1, 0.05, 1, 1)
	s, _ := NewSession(p, Options{Submitter: &fakeSubmitter{}})

	s.ImageLoaded()
	stop := s.StartTimer(context.Background(), 5*time.Millisecond)
	defer stop()

	deadline := time.After(2 * time.Second)
	for s.Phase() != PhaseShowSliders {
		select {
		case <-deadline:
			t.Fatal("计时循环未在期限内触发转移")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestStartTimerCancel(t *testing.T) {
	p := testProject(1, 3600, 1, 1)
	s, _ := NewSession(p, Options{Submitter: &fakeSubmitter{}})

	s.ImageLoaded()
	stop := s.StartTimer(context.Background(), time.Millisecond)
	stop()

	time.Sleep(20 * time.Millisecond)
	if s.Phase() != PhaseShowImage {
		t.Fatalf("取消后不应发生转移, phase = %v", s.Phase())
	}
}
