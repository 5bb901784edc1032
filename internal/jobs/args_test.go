package jobs

import (
	"encoding/json"
	"testing"
)

func TestArgsRoundTrip(t *testing.T) {
	original := Args{
		Type: TypeTextToSpeech,
		TextToSpeech: &TextToSpeechArgs{
			ModelToken: "model_tts_01",
			Text:       "hello fleet",
		},
	}

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded Args
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if decoded.Type != TypeTextToSpeech {
		t.Fatalf("decoded type = %q, want %q", decoded.Type, TypeTextToSpeech)
	}
	if decoded.TextToSpeech == nil {
		t.Fatal("decoded TextToSpeech payload is nil")
	}
	if decoded.TextToSpeech.Text != "hello fleet" {
		t.Errorf("decoded text = %q, want %q", decoded.TextToSpeech.Text, "hello fleet")
	}
	if decoded.ImageGeneration != nil {
		t.Error("decoded args carry an unrelated variant")
	}
}

func TestArgsUnmarshal_UnknownTag(t *testing.T) {
	var args Args
	err := json.Unmarshal([]byte(`{"type":"teleportation","payload":{}}`), &args)
	if err == nil {
		t.Fatal("expected error for unknown job type tag")
	}
}

func TestArgsUnmarshal_EveryType(t *testing.T) {
	for _, jt := range AllTypes() {
		payload := []byte(`{"type":"` + string(jt) + `","payload":{}}`)
		var args Args
		if err := json.Unmarshal(payload, &args); err != nil {
			t.Errorf("unmarshal %s: %v", jt, err)
			continue
		}
		if args.Type != jt {
			t.Errorf("decoded type = %q, want %q", args.Type, jt)
		}
		if err := args.Validate(); err != nil {
			t.Errorf("validate %s: %v", jt, err)
		}
	}
}

func TestArgsValidate_TagPayloadMismatch(t *testing.T) {
	args := Args{
		Type:            TypeTextToSpeech,
		ImageGeneration: &ImageGenerationArgs{Prompt: "a cat"},
	}
	if err := args.Validate(); err == nil {
		t.Fatal("expected error when payload variant does not match tag")
	}
}

func TestArgsValidate_MultiplePayloads(t *testing.T) {
	args := Args{
		Type:            TypeImageGeneration,
		ImageGeneration: &ImageGenerationArgs{Prompt: "a cat"},
		TextToSpeech:    &TextToSpeechArgs{Text: "meow"},
	}
	if err := args.Validate(); err == nil {
		t.Fatal("expected error when two variant payloads are set")
	}
}
