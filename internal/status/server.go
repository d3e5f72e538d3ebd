package status

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Hara602/datrain/internal/audit"
	"github.com/Hara602/datrain/internal/cache"
	"github.com/Hara602/datrain/internal/sysutil"
)

// Server 运维状态页：存活探针、指标、最近的审计记录
type Server struct {
	app *fiber.App
}

func New(reg *prometheus.Registry, store *cache.Store, trail *audit.Trail) *Server {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	// 状态页上的任何 panic 只打 500，绝不拖垮流水线进程
	app.Use(recover.New())

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		count, err := store.Count()
		if err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "degraded", "error": err.Error(),
			})
		}
		return c.JSON(fiber.Map{"status": "healthy", "cached": count})
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	app.Get("/audit/recent", func(c *fiber.Ctx) error {
		n := c.QueryInt("n", 20)
		return c.JSON(trail.Recent(n))
	})

	app.Get("/cache/recent", func(c *fiber.Ctx) error {
		n := c.QueryInt("n", 20)
		entries, err := store.Recent(n)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(entries)
	})

	return &Server{app: app}
}

// Start 在独立协程里监听，失败只记日志不拖垮流水线
func (s *Server) Start(addr string) {
	go func() {
		if err := s.app.Listen(addr); err != nil {
			sysutil.Log.Error("Status server stopped", zap.Error(err))
		}
	}()
	sysutil.Log.Info("📊 Status server listening", zap.String("addr", addr))
}

func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
