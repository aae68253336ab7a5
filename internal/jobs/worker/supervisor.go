package worker

import (
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/yungbote/bookrec-backend/internal/platform/logger"
)

type SupervisorConfig struct {
	FailureThreshold float64
	FailureDecay     float64
	FailureBackoff   time.Duration
	ShutdownTimeout  time.Duration
}

func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// NewSupervisor returns a suture supervisor whose lifecycle events go to the
// structured log.
func NewSupervisor(name string, baseLog *logger.Logger, cfg SupervisorConfig) *suture.Supervisor {
	def := DefaultSupervisorConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.FailureDecay <= 0 {
		cfg.FailureDecay = def.FailureDecay
	}
	if cfg.FailureBackoff <= 0 {
		cfg.FailureBackoff = def.FailureBackoff
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	log := baseLog.With("component", "Supervisor", "supervisor", name)
	return suture.New(name, suture.Spec{
		EventHook:        eventHook(log),
		FailureThreshold: cfg.FailureThreshold,
		FailureDecay:     cfg.FailureDecay,
		FailureBackoff:   cfg.FailureBackoff,
		Timeout:          cfg.ShutdownTimeout,
	})
}

func eventHook(log *logger.Logger) suture.EventHook {
	return func(e suture.Event) {
		kv := make([]any, 0, 8)
		for k, v := range e.Map() {
			kv = append(kv, k, v)
		}
		switch e.Type() {
		case suture.EventTypeServicePanic, suture.EventTypeServiceTerminate:
			log.Warn(e.String(), kv...)
		case suture.EventTypeBackoff:
			log.Warn("Supervisor backing off", kv...)
		case suture.EventTypeStopTimeout:
			log.Error(e.String(), kv...)
		default:
			log.Info(e.String(), kv...)
		}
	}
}
