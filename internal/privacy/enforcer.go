package privacy

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/Hara602/datrain/internal/sysutil"
	"go.uber.org/zap"
)

// Enforcer 调用外部 ACL 收权工具，把缓存文件的访问权收窄到属主
// 尽力而为：失败只记日志，不回滚已提交的缓存条目
type Enforcer struct {
	command []string
	timeout time.Duration
}

// New 未配置工具时返回 nil，调用方可安全地对 nil 调 Restrict
func New(cmdline string, timeout time.Duration) *Enforcer {
	fields := strings.Fields(cmdline)
	if len(fields) == 0 {
		return nil
	}
	return &Enforcer{command: fields, timeout: timeout}
}

// Restrict 对指定路径执行收权
func (e *Enforcer) Restrict(ctx context.Context, path string) {
	if e == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	args := append(append([]string{}, e.command[1:]...), path)
	if err := exec.CommandContext(ctx, e.command[0], args...).Run(); err != nil {
		sysutil.Log.Warn("Privacy enforcement failed", zap.String("path", path), zap.Error(err))
		return
	}
	sysutil.Log.Info("🔒 Access restricted", zap.String("path", path))
}
