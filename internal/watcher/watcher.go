package watcher

import "github.com/Hara602/datrain/internal/model"

// SourceWatcher 监听可移动介质挂载，为 intake 调度器提供额外入站来源
type SourceWatcher interface {
	Start() (<-chan model.MountEvent, error)
	Stop()
}

func New() SourceWatcher {
	return newWatcher()
}
