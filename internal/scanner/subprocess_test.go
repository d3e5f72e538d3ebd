package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Hara602/datrain/internal/model"
	"github.com/Hara602/datrain/internal/sysutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	sysutil.InitLogger(false)
	os.Exit(m.Run())
}

// writeScript 生成一个可执行的假扫描器
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scanner.sh")
	script := "#!/bin/sh\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestScanNormalization(t *testing.T) {
	target := filepath.Join(t.TempDir(), "sample.bin")
	require.NoError(t, os.WriteFile(target, []byte("payload"), 0o644))

	tests := []struct {
		name    string
		body    string
		verdict model.Verdict
	}{
		{"clean", `echo "OK"`, model.VerdictAccepted},
		{"clean with whitespace", `echo "  OK  "`, model.VerdictAccepted},
		{"malicious", `echo "MALICIOUS"`, model.VerdictRejected},
		{"malicious with nonzero exit", `echo "MALICIOUS"; exit 1`, model.VerdictRejected},
		{"exit 1 no output", `exit 1`, model.VerdictIndeterminate},
		{"garbage output", `echo "maybe fine"`, model.VerdictIndeterminate},
		{"ok but nonzero exit", `echo "OK"; exit 2`, model.VerdictIndeterminate},
		{"empty output", `true`, model.VerdictIndeterminate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSubprocess(writeScript(t, tt.body), 5*time.Second)
			require.NoError(t, err)
			verdict, _ := s.Scan(context.Background(), target)
			assert.Equal(t, tt.verdict, verdict)
		})
	}
}

func TestScanTimeout(t *testing.T) {
	s, err := NewSubprocess(writeScript(t, `sleep 5; echo "OK"`), 100*time.Millisecond)
	require.NoError(t, err)

	start := time.Now()
	verdict, detail := s.Scan(context.Background(), "/dev/null")
	assert.Equal(t, model.VerdictIndeterminate, verdict)
	assert.Contains(t, detail, "timeout")
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestScanLaunchFailure(t *testing.T) {
	s, err := NewSubprocess("/nonexistent/scanner-binary", time.Second)
	require.NoError(t, err)

	verdict, _ := s.Scan(context.Background(), "/dev/null")
	assert.Equal(t, model.VerdictIndeterminate, verdict)
}

func TestScanPassesPathArgument(t *testing.T) {
	// 扫描器要拿到被扫文件路径作为最后一个参数
	s, err := NewSubprocess(writeScript(t, `case "$1" in *evil*) echo "MALICIOUS";; *) echo "OK";; esac`), 5*time.Second)
	require.NoError(t, err)

	verdict, _ := s.Scan(context.Background(), "/tmp/evil.exe")
	assert.Equal(t, model.VerdictRejected, verdict)

	verdict, _ = s.Scan(context.Background(), "/tmp/benign.txt")
	assert.Equal(t, model.VerdictAccepted, verdict)
}

func TestNewSubprocessEmptyCommand(t *testing.T) {
	_, err := NewSubprocess("   ", time.Second)
	assert.Error(t, err)
}
