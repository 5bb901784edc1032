package jobs

import "time"

// Retry delays are a fixed interval per job type, not exponential: inference
// failures are dominated by transient GPU/runtime conditions that clear on a
// timescale set by the model class, so heavier pipelines simply wait longer.
const defaultRetryDelay = 90 * time.Second

var retryDelayByType = map[JobType]time.Duration{
	TypeTextToSpeech:      60 * time.Second,
	TypeVoiceConversion:   60 * time.Second,
	TypeImageGeneration:   120 * time.Second,
	TypeVideoGeneration:   120 * time.Second,
	TypeAsset3DGeneration: 120 * time.Second,
	TypeWorkflow:          120 * time.Second,
	TypeLipSync:           90 * time.Second,
	TypeMotionCapture:     90 * time.Second,
}

// RetryDelay returns the fixed wait before a failed job of this type becomes
// claimable again.
func RetryDelay(t JobType) time.Duration {
	if d, ok := retryDelayByType[t]; ok {
		return d
	}
	return defaultRetryDelay
}
