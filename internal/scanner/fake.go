package scanner

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/Hara602/datrain/internal/model"
)

// Fake 测试用内存扫描器，按文件名预置结论并统计调用次数
type Fake struct {
	mu       sync.Mutex
	verdicts map[string]model.Verdict
	calls    map[string]int
}

func NewFake() *Fake {
	return &Fake{
		verdicts: make(map[string]model.Verdict),
		calls:    make(map[string]int),
	}
}

// Set 预置某个文件名的扫描结论
func (f *Fake) Set(name string, v model.Verdict) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verdicts[name] = v
}

func (f *Fake) Scan(_ context.Context, path string) (model.Verdict, string) {
	name := filepath.Base(path)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
	if v, ok := f.verdicts[name]; ok {
		return v, "fake: " + v.String()
	}
	// 未预置的文件按扫描器故障处理
	return model.VerdictIndeterminate, "fake: no verdict configured"
}

// Calls 返回某个文件名被扫描的次数
func (f *Fake) Calls(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

// TotalCalls 所有文件的扫描次数之和
func (f *Fake) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}
