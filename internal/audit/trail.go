package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/Hara602/datrain/internal/model"
	"github.com/Hara602/datrain/internal/sysutil"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// recentKeep 状态页保留的最近记录条数
const recentKeep = 64

// Trail 有界异步审计日志，JSONL 追加写
// 缓冲写满时丢最旧一条并计数，绝不阻塞 intake 主循环
type Trail struct {
	ch      chan model.AuditRecord
	done    chan struct{}
	file    *os.File
	dropped prometheus.Counter

	mu     sync.Mutex
	recent []model.AuditRecord
}

// NewTrail 打开审计文件并启动后台写入协程
func NewTrail(path string, buffer int, reg prometheus.Registerer) (*Trail, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit file: %w", err)
	}

	dropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "datrain_audit_dropped_total",
		Help: "Audit records dropped because the buffer was full.",
	})
	if err := reg.Register(dropped); err != nil {
		f.Close()
		return nil, err
	}

	t := &Trail{
		ch:      make(chan model.AuditRecord, buffer),
		done:    make(chan struct{}),
		file:    f,
		dropped: dropped,
	}
	go t.writer()
	return t, nil
}

// Record 投递一条记录，满则丢最旧
func (t *Trail) Record(file string, verdict model.Verdict, outcome model.Outcome, detail string, opErr error) {
	rec := model.AuditRecord{
		ID:      uuid.NewString(),
		File:    file,
		Verdict: verdict.String(),
		Outcome: outcome.String(),
		Detail:  detail,
		At:      time.Now(),
	}
	if opErr != nil {
		rec.Err = opErr.Error()
	}

	for {
		select {
		case t.ch <- rec:
			return
		default:
		}
		// 腾出最旧一条再投递；并发下可能循环几次
		select {
		case <-t.ch:
			t.dropped.Inc()
		default:
		}
	}
}

func (t *Trail) writer() {
	defer close(t.done)
	enc := json.NewEncoder(t.file)
	for rec := range t.ch {
		if err := enc.Encode(rec); err != nil {
			sysutil.Log.Error("Audit write failed", zap.Error(err))
		}
		t.mu.Lock()
		t.recent = append(t.recent, rec)
		if len(t.recent) > recentKeep {
			t.recent = t.recent[len(t.recent)-recentKeep:]
		}
		t.mu.Unlock()

		sysutil.Log.Info("📋 Audit",
			zap.String("file", rec.File),
			zap.String("verdict", rec.Verdict),
			zap.String("outcome", rec.Outcome),
		)
	}
}

// Recent 最近写入的 n 条记录快照，n 非正时返回空
func (t *Trail) Recent(n int) []model.AuditRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n < 0 {
		n = 0
	}
	if n > len(t.recent) {
		n = len(t.recent)
	}
	out := make([]model.AuditRecord, n)
	copy(out, t.recent[len(t.recent)-n:])
	return out
}

// Close 排空缓冲并关闭文件
func (t *Trail) Close() error {
	close(t.ch)
	<-t.done
	return t.file.Close()
}
