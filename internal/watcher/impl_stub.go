//go:build !linux

package watcher

import "github.com/Hara602/datrain/internal/model"

type stubWatcher struct{}

func newWatcher() SourceWatcher                                { return &stubWatcher{} }
func (w *stubWatcher) Start() (<-chan model.MountEvent, error) { return nil, nil }
func (w *stubWatcher) Stop()                                   {}
