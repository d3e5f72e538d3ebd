package intake

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Hara602/datrain/internal/cache"
	"github.com/Hara602/datrain/internal/gate"
	"github.com/Hara602/datrain/internal/model"
	"github.com/Hara602/datrain/internal/sysutil"
	"go.uber.org/zap"
)

// Scheduler 驱动 tick 循环：枚举入站目录，对照缓存索引，把没见过的文件
// 派发给有界 worker 池。tick 之间串行，tick 之内各文件相互独立
type Scheduler struct {
	gate    *gate.Gate
	store   *cache.Store
	workers int

	mu      sync.Mutex
	sources []string
}

func NewScheduler(g *gate.Gate, store *cache.Store, inboundDir string, workers int) *Scheduler {
	return &Scheduler{
		gate:    g,
		store:   store,
		workers: workers,
		sources: []string{inboundDir},
	}
}

// AddSource 运行期追加入站来源（可移动介质挂载点）
func (s *Scheduler) AddSource(dir string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, src := range s.sources {
		if src == dir {
			return
		}
	}
	s.sources = append(s.sources, dir)
	sysutil.Log.Info("👀 Inbound source added", zap.String("dir", dir))
}

// RemoveSource 介质拔出后移除来源
func (s *Scheduler) RemoveSource(dir string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, src := range s.sources {
		if src == dir {
			s.sources = append(s.sources[:i], s.sources[i+1:]...)
			return
		}
	}
}

// ConsumeMounts 消费可移动介质事件流直到通道关闭
// 插入即追加入站来源，拔出即移除；remove 事件只带设备路径，
// 所以在这里维护 设备->挂载点 的映射
func (s *Scheduler) ConsumeMounts(events <-chan model.MountEvent) {
	mounts := make(map[string]string)
	for ev := range events {
		switch ev.Action {
		case "add":
			mounts[ev.DevicePath] = ev.MountPoint
			s.AddSource(ev.MountPoint)
		case "remove":
			if mp, ok := mounts[ev.DevicePath]; ok {
				s.RemoveSource(mp)
				delete(mounts, ev.DevicePath)
				sysutil.Log.Info("❌ Removable media removed",
					zap.String("dev", ev.DevicePath), zap.String("mount", mp))
			}
		}
	}
}

func (s *Scheduler) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.sources))
	copy(out, s.sources)
	return out
}

// Tick 执行一轮：只读枚举 + 派发。目录消失只告警，本轮空转，进程不退出
func (s *Scheduler) Tick(ctx context.Context) {
	var candidates []model.InboundFile

	for _, dir := range s.snapshot() {
		entries, err := os.ReadDir(dir)
		if err != nil {
			sysutil.Log.Warn("Inbound dir not readable, skipping this tick",
				zap.String("dir", dir), zap.Error(err))
			continue
		}

		for _, entry := range entries {
			if !entry.Type().IsRegular() || cache.IsTempName(entry.Name()) {
				continue
			}

			// 存在性检查先于一切：已缓存的文件绝不再进扫描器
			exists, err := s.store.Exists(entry.Name())
			if err != nil {
				sysutil.Log.Error("Cache index query failed", zap.String("file", entry.Name()), zap.Error(err))
				continue
			}
			if exists {
				continue
			}

			info, err := entry.Info()
			if err != nil {
				// 单个文件的权限/竞态问题只跳过本轮，下轮重试
				sysutil.Log.Warn("Cannot stat inbound file, skipped this cycle",
					zap.String("file", entry.Name()), zap.Error(err))
				continue
			}

			candidates = append(candidates, model.InboundFile{
				Path:    filepath.Join(dir, entry.Name()),
				Name:    entry.Name(),
				Size:    info.Size(),
				ModTime: info.ModTime(),
			})
		}
	}

	if len(candidates) == 0 {
		return
	}
	sysutil.Log.Debug("Dispatching candidates", zap.Int("count", len(candidates)))

	// 有界 worker 池并行过闸，等全部收尾才结束本轮
	jobs := make(chan model.InboundFile)
	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for f := range jobs {
				s.gate.Process(ctx, f)
			}
		}()
	}

	for _, f := range candidates {
		select {
		case jobs <- f:
		case <-ctx.Done():
			// 停机：不再派发，已在处理中的文件让它走完
			close(jobs)
			wg.Wait()
			return
		}
	}
	close(jobs)
	wg.Wait()
}

// Run 以固定间隔驱动 tick，直到收到停机信号；在途扫描走完才返回
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	sysutil.Log.Info("🛡️ Intake loop started", zap.Duration("interval", interval))

	// 启动先跑一轮，不等第一个间隔
	s.Tick(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Tick(ctx)
		case <-ctx.Done():
			sysutil.Log.Info("Intake loop stopped")
			return
		}
	}
}
