package logger

import (
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
)

type Backend string

const (
	BackendStd Backend = "std" // Text-хендлер slog
	BackendZap Backend = "zap" // JSON через slog-zap, с sampling-ом
)

type Config struct {
	Service    string
	Version    string
	InstanceID string

	Level   slog.Level
	Env     Env
	Backend Backend // default: zap для stage/prod, std для dev
	Debug   bool

	AddSource bool
}

var def *slog.Logger

// Init настраивает slog в зависимости от среды
func Init(cfg Config) {
	if cfg.Env == "" {
		cfg.Env = DetectEnv()
	}
	if cfg.Service == "" {
		cfg.Service = "collab-service"
	}
	if cfg.InstanceID == "" {
		hn, _ := os.Hostname()
		cfg.InstanceID = hn + "-" + uuid.New().String()[:8]
	}

	if cfg.Backend == "" {
		if cfg.Env == EnvDev {
			cfg.Backend = BackendStd
		} else {
			cfg.Backend = BackendZap
		}
	}

	var h slog.Handler
	switch cfg.Backend {
	case BackendZap:
		h = newZapHandler(cfg)
	default:
		h = newStdHandler(cfg)
	}

	h = h.WithAttrs([]slog.Attr{
		slog.String("service", cfg.Service),
		slog.String("env", string(cfg.Env)),
		slog.String("version", cfg.Version),
		slog.String("instance_id", cfg.InstanceID),
		slog.Time("started_at", time.Now()),
	})

	base := slog.New(h)
	slog.SetDefault(base)
	def = base
}

func L() *slog.Logger {
	if def != nil {
		return def
	}

	Init(Config{})
	return def
}
