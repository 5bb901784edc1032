// Package gpuhealth runs a background probe of the local GPU and exposes the
// latest result as an immutable snapshot. Consumers read one snapshot per
// claim cycle and pass it down; nothing else in the process reads the flag.
package gpuhealth

import (
	"context"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Health is one observation of the GPU probe.
type Health struct {
	GPUHealthy bool
	CheckedAt  time.Time
}

// Probe periodically runs a health-check command (by default nvidia-smi) and
// records whether it exited cleanly.
type Probe struct {
	command  string
	args     []string
	interval time.Duration
	timeout  time.Duration

	mu     sync.RWMutex
	latest Health
}

func NewProbe(command string, args []string, interval time.Duration) *Probe {
	return &Probe{
		command:  command,
		args:     args,
		interval: interval,
		timeout:  15 * time.Second,
		// Until the first probe completes, a worker with a probe configured
		// claims nothing; a worker without one is always healthy.
		latest: Health{GPUHealthy: command == "", CheckedAt: time.Now()},
	}
}

// Snapshot returns the most recent observation.
func (p *Probe) Snapshot() Health {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest
}

// Run probes immediately and then on the configured interval until ctx ends.
// It does nothing when no command is configured.
func (p *Probe) Run(ctx context.Context) {
	if p.command == "" {
		return
	}

	p.check(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.check(ctx)
		}
	}
}

func (p *Probe) check(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := exec.CommandContext(probeCtx, p.command, p.args...).Run()
	healthy := err == nil

	p.mu.Lock()
	flipped := p.latest.GPUHealthy != healthy
	p.latest = Health{GPUHealthy: healthy, CheckedAt: time.Now()}
	p.mu.Unlock()

	if flipped {
		if healthy {
			log.Info().Str("command", p.command).Msg("gpu health restored")
		} else {
			log.Warn().Err(err).Str("command", p.command).Msg("gpu health check failed")
		}
	}
}
