package worker

import (
	"time"

	"github.com/FiditeNemini/artcraft-sub020/internal/gpuhealth"
	"github.com/FiditeNemini/artcraft-sub020/internal/jobs"
	"github.com/FiditeNemini/artcraft-sub020/internal/modelscan"
)

// CapabilityConfig is the static part of what this worker may serve.
type CapabilityConfig struct {
	EnabledJobTypes []jobs.JobType
	RoutingTags     []string
	// RequiredModelFiles maps job types to the weights filename each needs
	// on local disk. Types absent from the map need no local file.
	RequiredModelFiles map[jobs.JobType]string
}

// CapabilitySnapshot is what this process may claim right now: static config
// narrowed by the GPU health observation and the model files present on disk
// at the start of the cycle. Built once per claim cycle and passed down;
// never read from global state mid-cycle.
type CapabilitySnapshot struct {
	JobTypes    []jobs.JobType
	RoutingTags []string
	ModelReady  map[jobs.JobType]bool
	GPUHealthy  bool
	TakenAt     time.Time
}

// ClaimsAnything reports whether a claim cycle is worth running at all.
func (s CapabilitySnapshot) ClaimsAnything() bool {
	return s.GPUHealthy && len(s.JobTypes) > 0
}

// ServesTag reports whether this process answers the given routing tag.
// Untagged jobs are always served.
func (s CapabilitySnapshot) ServesTag(tag string) bool {
	if tag == "" {
		return true
	}
	for _, t := range s.RoutingTags {
		if t == tag {
			return true
		}
	}
	return false
}

// BuildSnapshot is a pure function of its inputs. An unhealthy GPU empties
// the claimable set entirely; a missing weights file removes just that job
// type from it (other workers may still have the file).
func BuildSnapshot(cfg CapabilityConfig, health gpuhealth.Health, models modelscan.Result) CapabilitySnapshot {
	snap := CapabilitySnapshot{
		RoutingTags: cfg.RoutingTags,
		ModelReady:  make(map[jobs.JobType]bool, len(cfg.EnabledJobTypes)),
		GPUHealthy:  health.GPUHealthy,
		TakenAt:     time.Now(),
	}

	for _, t := range cfg.EnabledJobTypes {
		_, needsFile := cfg.RequiredModelFiles[t]
		ready := models.Ready(t, needsFile)
		snap.ModelReady[t] = ready
		if ready && health.GPUHealthy {
			snap.JobTypes = append(snap.JobTypes, t)
		}
	}
	return snap
}
