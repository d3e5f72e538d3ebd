package scanner

import (
	"context"

	"github.com/Hara602/datrain/internal/model"
)

// Scanner 对单个文件给出结论，detail 为原始输出或失败原因，进审计日志
type Scanner interface {
	Scan(ctx context.Context, path string) (model.Verdict, string)
}
