package gate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Hara602/datrain/internal/analysis"
	"github.com/Hara602/datrain/internal/audit"
	"github.com/Hara602/datrain/internal/cache"
	"github.com/Hara602/datrain/internal/model"
	"github.com/Hara602/datrain/internal/privacy"
	"github.com/Hara602/datrain/internal/scanner"
	"github.com/Hara602/datrain/internal/sysutil"
	"go.uber.org/zap"
)

// Gate 单文件决策状态机
//
//	NEW -> 稳定性未过 -> DEFERRED（下轮重试）
//	NEW -> SCANNING -> ACCEPTED -> 原子提交缓存 -> ACCEPTED_COMMITTED
//	NEW -> SCANNING -> REJECTED/INDETERMINATE -> REJECTED_LOGGED（文件原地不动）
type Gate struct {
	scanner   scanner.Scanner
	store     *cache.Store
	inspector *analysis.Inspector
	trail     *audit.Trail
	enforcer  *privacy.Enforcer
	metrics   *Metrics

	stabilityDelay time.Duration
	quarantineDir  string
}

func New(sc scanner.Scanner, store *cache.Store, ins *analysis.Inspector, trail *audit.Trail,
	enf *privacy.Enforcer, m *Metrics, stabilityDelay time.Duration, quarantineDir string) *Gate {
	return &Gate{
		scanner:        sc,
		store:          store,
		inspector:      ins,
		trail:          trail,
		enforcer:       enf,
		metrics:        m,
		stabilityDelay: stabilityDelay,
		quarantineDir:  quarantineDir,
	}
}

// Process 处理一个候选文件，返回终态
// 任何失败只影响这个文件本身，绝不中断同轮其他文件
func (g *Gate) Process(ctx context.Context, f model.InboundFile) model.Outcome {
	// 稳定性检查：隔一小段时间再 stat 一次，大小或修改时间变了说明还在写入
	select {
	case <-time.After(g.stabilityDelay):
	case <-ctx.Done():
		return model.OutcomeDeferred
	}

	info, err := os.Stat(f.Path)
	if err != nil {
		if os.IsNotExist(err) {
			// 外部写入方把文件挪走了，不算错误
			sysutil.Log.Debug("File vanished before scan", zap.String("file", f.Name))
			return model.OutcomeDeferred
		}
		g.trail.Record(f.Name, model.VerdictNone, model.OutcomeError, "stat failed", err)
		return model.OutcomeError
	}
	if info.Size() != f.Size || !info.ModTime().Equal(f.ModTime) {
		g.metrics.Deferred.Inc()
		g.trail.Record(f.Name, model.VerdictNone, model.OutcomeDeferred,
			fmt.Sprintf("still being written (size %d -> %d): %v", f.Size, info.Size(), model.ErrUnstable), nil)
		return model.OutcomeDeferred
	}

	// 旁证：文件头伪装检测，不影响扫描结论，只进审计与日志
	detail := ""
	if g.inspector != nil {
		if res, err := g.inspector.Inspect(f.Path); err == nil && res.IsMasquerade {
			detail = res.Message
			sysutil.Log.Warn("⚠️ Masquerade suspected",
				zap.String("file", f.Name),
				zap.String("risk", res.RiskLevel),
				zap.String("detail", res.Message))
		}
	}

	verdict, scanDetail := g.scanner.Scan(ctx, f.Path)
	g.metrics.Scans.WithLabelValues(verdict.String()).Inc()
	if detail != "" {
		scanDetail = scanDetail + "; " + detail
	}

	switch verdict {
	case model.VerdictAccepted:
		return g.commit(ctx, f, scanDetail)
	case model.VerdictRejected:
		g.refuse(f, verdict, scanDetail)
		return model.OutcomeRefused
	default:
		// INDETERMINATE 等同拒绝，但绝不隔离搬动——扫描器恢复后下轮还要原地重试
		sysutil.Log.Warn("Scan inconclusive, failing closed", zap.String("file", f.Name))
		g.trail.Record(f.Name, verdict, model.OutcomeRefused, scanDetail, nil)
		return model.OutcomeRefused
	}
}

func (g *Gate) commit(ctx context.Context, f model.InboundFile, detail string) model.Outcome {
	entry, err := g.store.Commit(f.Path, f.Name, model.VerdictAccepted.String())
	if errors.Is(err, model.ErrAlreadyCached) {
		// 并发赛跑的失败方：首份已落位，视作无事发生
		g.trail.Record(f.Name, model.VerdictAccepted, model.OutcomeCommitted, "already cached", nil)
		return model.OutcomeCommitted
	}
	if err != nil {
		g.metrics.CommitFailures.Inc()
		sysutil.Log.Error("Commit failed, file left for retry", zap.String("file", f.Name), zap.Error(err))
		g.trail.Record(f.Name, model.VerdictAccepted, model.OutcomeError, detail, err)
		return model.OutcomeError
	}

	g.metrics.Commits.Inc()
	// 收权是尽力而为，失败不回滚提交
	g.enforcer.Restrict(ctx, g.store.PathOf(entry.Name))
	g.trail.Record(f.Name, model.VerdictAccepted, model.OutcomeCommitted, detail, nil)
	return model.OutcomeCommitted
}

func (g *Gate) refuse(f model.InboundFile, verdict model.Verdict, detail string) {
	sysutil.Log.Warn("🚨 MALICIOUS FILE REFUSED", zap.String("file", f.Name))

	if g.quarantineDir != "" {
		dst := filepath.Join(g.quarantineDir, f.Name)
		if _, err := os.Stat(dst); err == nil {
			dst = fmt.Sprintf("%s.%d", dst, time.Now().UnixNano())
		}
		if err := os.MkdirAll(g.quarantineDir, 0o700); err != nil {
			sysutil.Log.Error("Quarantine dir not usable, file left in place",
				zap.String("dir", g.quarantineDir), zap.Error(err))
		} else if err := os.Rename(f.Path, dst); err != nil {
			sysutil.Log.Error("Quarantine move failed", zap.String("file", f.Name), zap.Error(err))
		} else {
			detail = detail + "; quarantined to " + dst
		}
	}

	g.trail.Record(f.Name, verdict, model.OutcomeRefused, detail, nil)
}
