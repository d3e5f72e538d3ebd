package gate

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hara602/datrain/internal/audit"
	"github.com/Hara602/datrain/internal/cache"
	"github.com/Hara602/datrain/internal/model"
	"github.com/Hara602/datrain/internal/scanner"
	"github.com/Hara602/datrain/internal/sysutil"
)

func TestMain(m *testing.M) {
	sysutil.InitLogger(false)
	os.Exit(m.Run())
}

type fixture struct {
	gate  *Gate
	fake  *scanner.Fake
	store *cache.Store
	trail *audit.Trail
}

func newFixture(t *testing.T, quarantineDir string) *fixture {
	t.Helper()
	store, err := cache.Open(filepath.Join(t.TempDir(), "cache"), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	reg := prometheus.NewRegistry()
	trail, err := audit.NewTrail(filepath.Join(t.TempDir(), "audit.jsonl"), 64, reg)
	require.NoError(t, err)

	metrics, err := NewMetrics(reg)
	require.NoError(t, err)

	fake := scanner.NewFake()
	g := New(fake, store, nil, trail, nil, metrics, 10*time.Millisecond, quarantineDir)
	return &fixture{gate: g, fake: fake, store: store, trail: trail}
}

func inbound(t *testing.T, dir, name, content string) model.InboundFile {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	info, err := os.Stat(path)
	require.NoError(t, err)
	return model.InboundFile{Path: path, Name: name, Size: info.Size(), ModTime: info.ModTime()}
}

func TestProcessAcceptedCommits(t *testing.T) {
	fx := newFixture(t, "")
	fx.fake.Set("a.txt", model.VerdictAccepted)

	f := inbound(t, t.TempDir(), "a.txt", "clean")
	outcome := fx.gate.Process(context.Background(), f)
	assert.Equal(t, model.OutcomeCommitted, outcome)

	exists, err := fx.store.Exists("a.txt")
	require.NoError(t, err)
	assert.True(t, exists)
	// 源文件原样保留，搬走与否是外部生产者的事
	assert.FileExists(t, f.Path)
}

func TestProcessRejectedNeverCached(t *testing.T) {
	fx := newFixture(t, "")
	fx.fake.Set("b.exe", model.VerdictRejected)

	f := inbound(t, t.TempDir(), "b.exe", "malware")
	outcome := fx.gate.Process(context.Background(), f)
	assert.Equal(t, model.OutcomeRefused, outcome)

	exists, err := fx.store.Exists("b.exe")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.FileExists(t, f.Path)
}

func TestProcessIndeterminateFailsClosed(t *testing.T) {
	fx := newFixture(t, "")
	fx.fake.Set("c.bin", model.VerdictIndeterminate)

	f := inbound(t, t.TempDir(), "c.bin", "unknown")
	outcome := fx.gate.Process(context.Background(), f)
	assert.Equal(t, model.OutcomeRefused, outcome)

	exists, err := fx.store.Exists("c.bin")
	require.NoError(t, err)
	assert.False(t, exists)
	// INDETERMINATE 不隔离：文件留在原地等扫描器恢复
	assert.FileExists(t, f.Path)
}

func TestProcessUnstableDeferred(t *testing.T) {
	fx := newFixture(t, "")
	fx.fake.Set("grow.dat", model.VerdictAccepted)

	dir := t.TempDir()
	f := inbound(t, dir, "grow.dat", "part")
	// 枚举后文件又长了：用过期的 Size 模拟两次 stat 之间的写入
	f.Size = f.Size - 1

	outcome := fx.gate.Process(context.Background(), f)
	assert.Equal(t, model.OutcomeDeferred, outcome)

	// 本轮绝不扫描，更不落缓存
	assert.Zero(t, fx.fake.Calls("grow.dat"))
	exists, err := fx.store.Exists("grow.dat")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestProcessVanishedDeferred(t *testing.T) {
	fx := newFixture(t, "")

	f := model.InboundFile{
		Path: filepath.Join(t.TempDir(), "ghost.txt"),
		Name: "ghost.txt", Size: 4, ModTime: time.Now(),
	}
	outcome := fx.gate.Process(context.Background(), f)
	assert.Equal(t, model.OutcomeDeferred, outcome)
	assert.Zero(t, fx.fake.Calls("ghost.txt"))
}

func TestProcessRejectedQuarantined(t *testing.T) {
	quarantine := filepath.Join(t.TempDir(), "quarantine")
	fx := newFixture(t, quarantine)
	fx.fake.Set("b.exe", model.VerdictRejected)

	f := inbound(t, t.TempDir(), "b.exe", "malware")
	outcome := fx.gate.Process(context.Background(), f)
	assert.Equal(t, model.OutcomeRefused, outcome)

	// 配置了隔离目录时 REJECTED 文件被搬走
	assert.NoFileExists(t, f.Path)
	assert.FileExists(t, filepath.Join(quarantine, "b.exe"))
}

// 隔离目录建不起来时文件原地保留，拒绝照常记录，不吞错也不崩
func TestProcessQuarantineDirUnusable(t *testing.T) {
	// 路径上压着一个普通文件，MkdirAll 必然失败
	blocker := filepath.Join(t.TempDir(), "blocked")
	require.NoError(t, os.WriteFile(blocker, []byte("in the way"), 0o644))

	fx := newFixture(t, blocker)
	fx.fake.Set("b.exe", model.VerdictRejected)

	f := inbound(t, t.TempDir(), "b.exe", "malware")
	outcome := fx.gate.Process(context.Background(), f)
	assert.Equal(t, model.OutcomeRefused, outcome)
	assert.FileExists(t, f.Path)
}

func TestProcessAlreadyCachedRace(t *testing.T) {
	fx := newFixture(t, "")
	fx.fake.Set("a.txt", model.VerdictAccepted)

	dir := t.TempDir()
	f := inbound(t, dir, "a.txt", "clean")

	require.Equal(t, model.OutcomeCommitted, fx.gate.Process(context.Background(), f))
	// 赛跑失败方也收敛到 committed，而不是报错
	assert.Equal(t, model.OutcomeCommitted, fx.gate.Process(context.Background(), f))
}
