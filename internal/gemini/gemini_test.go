package gemini

import (
	"errors"
	"testing"

	"github.com/google/generative-ai-go/genai"
)

func TestResponseText_JoinsTextParts(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text("<TITRE>T</TITRE>"), genai.Text("<RESUME>B</RESUME>")}},
		}},
	}
	got, err := responseText(resp)
	if err != nil {
		t.Fatalf("responseText: %v", err)
	}
	if got != "<TITRE>T</TITRE><RESUME>B</RESUME>" {
		t.Errorf("got %q", got)
	}
}

func TestResponseText_Empty(t *testing.T) {
	cases := []*genai.GenerateContentResponse{
		nil,
		{},
		{Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}}},
		{Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []genai.Part{genai.Text("   ")}}}}},
	}
	for i, resp := range cases {
		if _, err := responseText(resp); err == nil {
			t.Errorf("case %d: expected error", i)
		}
	}
}

func TestResponseText_MaxTokens(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			FinishReason: genai.FinishReasonMaxTokens,
			Content:      &genai.Content{Parts: []genai.Part{genai.Text(`{"title":"T","body":"coupé`)}},
		}},
	}
	if _, err := responseText(resp); !errors.Is(err, ErrTruncated) {
		t.Errorf("err = %v, want ErrTruncated", err)
	}
}

func TestNewClient_TokenLimits(t *testing.T) {
	if c := newClient(); c.maxTokens != DefaultMaxTokens {
		t.Errorf("tags: maxTokens = %d", c.maxTokens)
	}
	if c := newClient(WithJSON(true)); c.maxTokens != JSONMaxTokens {
		t.Errorf("json: maxTokens = %d", c.maxTokens)
	}
	if c := newClient(WithJSON(true), WithMaxTokens(200)); c.maxTokens != 200 {
		t.Errorf("explicit: maxTokens = %d", c.maxTokens)
	}
}
