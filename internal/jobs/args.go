package jobs

import (
	"encoding/json"
	"fmt"
)

// Args is the polymorphic per-job-type payload, persisted as a tagged JSON
// object: {"type": "<job_type>", "payload": {...}}. Exactly one variant
// pointer is non-nil, matching Type. The scheduler core treats the payload
// as opaque; only the dispatcher and the handlers look inside.
type Args struct {
	Type JobType

	TextToSpeech      *TextToSpeechArgs
	VoiceConversion   *VoiceConversionArgs
	ImageGeneration   *ImageGenerationArgs
	VideoGeneration   *VideoGenerationArgs
	Asset3DGeneration *Asset3DGenerationArgs
	Workflow          *WorkflowArgs
	LipSync           *LipSyncArgs
	MotionCapture     *MotionCaptureArgs
}

type TextToSpeechArgs struct {
	ModelToken string `json:"model_token"`
	Text       string `json:"text"`
	OutputCodec string `json:"output_codec,omitempty"`
}

type VoiceConversionArgs struct {
	ModelToken      string `json:"model_token"`
	SourceMediaToken string `json:"source_media_token"`
	PitchShift      int    `json:"pitch_shift,omitempty"`
}

type ImageGenerationArgs struct {
	ModelToken     string `json:"model_token"`
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
	Width          int    `json:"width,omitempty"`
	Height         int    `json:"height,omitempty"`
	Seed           int64  `json:"seed,omitempty"`
}

type VideoGenerationArgs struct {
	ModelToken   string `json:"model_token"`
	Prompt       string `json:"prompt"`
	FrameCount   int    `json:"frame_count,omitempty"`
	SourceImageToken string `json:"source_image_token,omitempty"`
}

type Asset3DGenerationArgs struct {
	ModelToken       string `json:"model_token"`
	Prompt           string `json:"prompt,omitempty"`
	SourceImageToken string `json:"source_image_token,omitempty"`
}

// WorkflowArgs drives a node-graph compositing workflow; the graph itself is
// validated by the workflow handler, not here.
type WorkflowArgs struct {
	GraphJSON     json.RawMessage `json:"graph"`
	InputTokens   []string        `json:"input_tokens,omitempty"`
}

type LipSyncArgs struct {
	ModelToken       string `json:"model_token"`
	AudioMediaToken  string `json:"audio_media_token"`
	TargetMediaToken string `json:"target_media_token"`
}

type MotionCaptureArgs struct {
	ModelToken       string `json:"model_token"`
	SourceMediaToken string `json:"source_media_token"`
}

type argsEnvelope struct {
	Type    JobType         `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// MarshalJSON encodes the active variant under its type tag.
func (a Args) MarshalJSON() ([]byte, error) {
	payload, err := a.activePayload()
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(argsEnvelope{Type: a.Type, Payload: raw})
}

// UnmarshalJSON decodes the tagged payload into the variant named by the tag.
// An unknown tag is an error; producers and workers must agree on the set of
// job types before a new one is enqueued.
func (a *Args) UnmarshalJSON(data []byte) error {
	var env argsEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("decode args envelope: %w", err)
	}

	*a = Args{Type: env.Type}
	var dst any
	switch env.Type {
	case TypeTextToSpeech:
		a.TextToSpeech = &TextToSpeechArgs{}
		dst = a.TextToSpeech
	case TypeVoiceConversion:
		a.VoiceConversion = &VoiceConversionArgs{}
		dst = a.VoiceConversion
	case TypeImageGeneration:
		a.ImageGeneration = &ImageGenerationArgs{}
		dst = a.ImageGeneration
	case TypeVideoGeneration:
		a.VideoGeneration = &VideoGenerationArgs{}
		dst = a.VideoGeneration
	case TypeAsset3DGeneration:
		a.Asset3DGeneration = &Asset3DGenerationArgs{}
		dst = a.Asset3DGeneration
	case TypeWorkflow:
		a.Workflow = &WorkflowArgs{}
		dst = a.Workflow
	case TypeLipSync:
		a.LipSync = &LipSyncArgs{}
		dst = a.LipSync
	case TypeMotionCapture:
		a.MotionCapture = &MotionCaptureArgs{}
		dst = a.MotionCapture
	default:
		return fmt.Errorf("unknown job type tag %q", env.Type)
	}

	if len(env.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		return fmt.Errorf("decode %s args: %w", env.Type, err)
	}
	return nil
}

// Validate checks that exactly the variant named by Type is set. A mismatch
// means the producer wrote an inconsistent row; the dispatcher treats it as
// an invalid job, not a transient failure.
func (a Args) Validate() error {
	if !a.Type.Valid() {
		return fmt.Errorf("unknown job type %q", a.Type)
	}
	if _, err := a.activePayload(); err != nil {
		return err
	}
	set := 0
	for _, v := range []bool{
		a.TextToSpeech != nil,
		a.VoiceConversion != nil,
		a.ImageGeneration != nil,
		a.VideoGeneration != nil,
		a.Asset3DGeneration != nil,
		a.Workflow != nil,
		a.LipSync != nil,
		a.MotionCapture != nil,
	} {
		if v {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("args for %s carry %d variant payloads, want exactly 1", a.Type, set)
	}
	return nil
}

func (a Args) activePayload() (any, error) {
	var payload any
	switch a.Type {
	case TypeTextToSpeech:
		if a.TextToSpeech != nil {
			payload = a.TextToSpeech
		}
	case TypeVoiceConversion:
		if a.VoiceConversion != nil {
			payload = a.VoiceConversion
		}
	case TypeImageGeneration:
		if a.ImageGeneration != nil {
			payload = a.ImageGeneration
		}
	case TypeVideoGeneration:
		if a.VideoGeneration != nil {
			payload = a.VideoGeneration
		}
	case TypeAsset3DGeneration:
		if a.Asset3DGeneration != nil {
			payload = a.Asset3DGeneration
		}
	case TypeWorkflow:
		if a.Workflow != nil {
			payload = a.Workflow
		}
	case TypeLipSync:
		if a.LipSync != nil {
			payload = a.LipSync
		}
	case TypeMotionCapture:
		if a.MotionCapture != nil {
			payload = a.MotionCapture
		}
	default:
		return nil, fmt.Errorf("unknown job type %q", a.Type)
	}
	if payload == nil {
		return nil, fmt.Errorf("args tagged %q carry no matching payload", a.Type)
	}
	return payload, nil
}
