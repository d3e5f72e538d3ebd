package scanner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/Hara602/datrain/internal/model"
	"github.com/Hara602/datrain/internal/sysutil"
	"go.uber.org/zap"
)

// 扫描器子进程协议：单个文件路径作参数，stdout 输出 OK 或 MALICIOUS
const (
	outputClean     = "OK"
	outputMalicious = "MALICIOUS"
)

// Subprocess 以独立子进程方式调用外部扫描器，强制超时
type Subprocess struct {
	command []string
	timeout time.Duration
}

// NewSubprocess 解析扫描器命令行（可带固定参数）
func NewSubprocess(cmdline string, timeout time.Duration) (*Subprocess, error) {
	fields := strings.Fields(cmdline)
	if len(fields) == 0 {
		return nil, fmt.Errorf("scanner: empty command")
	}
	return &Subprocess{command: fields, timeout: timeout}, nil
}

// Scan 调用扫描器并归一化输出
// 超时/启动失败/非零退出/无法识别的输出一律 INDETERMINATE，绝不默认放行
func (s *Subprocess) Scan(ctx context.Context, path string) (model.Verdict, string) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	args := append(append([]string{}, s.command[1:]...), path)
	cmd := exec.CommandContext(ctx, s.command[0], args...)

	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	runErr := cmd.Run()
	out := strings.TrimSpace(stdout.String())

	// MALICIOUS 输出优先于退出码：真实扫描器命中时常以非零码退出
	if out == outputMalicious {
		return model.VerdictRejected, out
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		sysutil.Log.Warn("⏱️ Scanner timed out", zap.String("file", path), zap.Duration("timeout", s.timeout))
		return model.VerdictIndeterminate, fmt.Sprintf("scanner timeout after %s", s.timeout)
	}
	if runErr != nil {
		sysutil.Log.Warn("Scanner invocation failed", zap.String("file", path), zap.Error(runErr))
		return model.VerdictIndeterminate, fmt.Sprintf("scanner error: %v", runErr)
	}
	if out == outputClean {
		return model.VerdictAccepted, out
	}

	sysutil.Log.Warn("Scanner produced unexpected output", zap.String("file", path), zap.String("output", out))
	return model.VerdictIndeterminate, fmt.Sprintf("unexpected scanner output: %q", out)
}
