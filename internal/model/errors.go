package model

import "errors"

// 错误分级：只有配置错误在启动时致命，其余均在本轮内恢复
var (
	// ErrAlreadyCached 同名条目已提交过，后到者拿到幂等拒绝
	ErrAlreadyCached = errors.New("entry already cached")
	// ErrUnstable 两次 stat 之间文件仍在变化
	ErrUnstable = errors.New("file not yet stable")
	// ErrNoSpace 缓存目录剩余空间低于阈值
	ErrNoSpace = errors.New("insufficient free space in cache dir")
)
