package worker

import (
	"testing"

	"github.com/FiditeNemini/artcraft-sub020/internal/gpuhealth"
	"github.com/FiditeNemini/artcraft-sub020/internal/jobs"
	"github.com/FiditeNemini/artcraft-sub020/internal/modelscan"
)

func TestBuildSnapshot_UnhealthyGPUClaimsNothing(t *testing.T) {
	cfg := CapabilityConfig{
		EnabledJobTypes: []jobs.JobType{jobs.TypeTextToSpeech, jobs.TypeImageGeneration},
	}
	snap := BuildSnapshot(cfg, gpuhealth.Health{GPUHealthy: false}, modelscan.Result{})

	if snap.ClaimsAnything() {
		t.Fatal("snapshot with unhealthy GPU still claims jobs")
	}
	if len(snap.JobTypes) != 0 {
		t.Fatalf("unhealthy snapshot lists %d job types, want 0", len(snap.JobTypes))
	}
}

func TestBuildSnapshot_MissingWeightsRemovesOnlyThatType(t *testing.T) {
	cfg := CapabilityConfig{
		EnabledJobTypes: []jobs.JobType{jobs.TypeTextToSpeech, jobs.TypeImageGeneration},
		RequiredModelFiles: map[jobs.JobType]string{
			jobs.TypeTextToSpeech:    "tts.safetensors",
			jobs.TypeImageGeneration: "sd.safetensors",
		},
	}
	// Only the image generation weights are on disk.
	models := modelscan.Result{PathByType: map[jobs.JobType]string{
		jobs.TypeImageGeneration: "/models/sd.safetensors",
	}}

	snap := BuildSnapshot(cfg, gpuhealth.Health{GPUHealthy: true}, models)

	if !snap.ClaimsAnything() {
		t.Fatal("snapshot claims nothing despite one ready type")
	}
	if len(snap.JobTypes) != 1 || snap.JobTypes[0] != jobs.TypeImageGeneration {
		t.Fatalf("claimable types = %v, want [image_generation]", snap.JobTypes)
	}
	if snap.ModelReady[jobs.TypeTextToSpeech] {
		t.Error("tts reported model-ready with no weights file")
	}
	if !snap.ModelReady[jobs.TypeImageGeneration] {
		t.Error("image generation reported not ready despite weights on disk")
	}
}

func TestBuildSnapshot_TypesWithoutWeightsAreAlwaysReady(t *testing.T) {
	cfg := CapabilityConfig{
		EnabledJobTypes: []jobs.JobType{jobs.TypeWorkflow},
	}
	snap := BuildSnapshot(cfg, gpuhealth.Health{GPUHealthy: true}, modelscan.Result{})

	if len(snap.JobTypes) != 1 {
		t.Fatalf("claimable types = %v, want [workflow]", snap.JobTypes)
	}
}

func TestServesTag(t *testing.T) {
	snap := CapabilitySnapshot{RoutingTags: []string{"gpu-a"}}

	tests := []struct {
		tag  string
		want bool
	}{
		{"", true}, // untagged jobs run anywhere
		{"gpu-a", true},
		{"gpu-b", false},
	}
	for _, tt := range tests {
		if got := snap.ServesTag(tt.tag); got != tt.want {
			t.Errorf("ServesTag(%q) = %v, want %v", tt.tag, got, tt.want)
		}
	}
}
