package ai

import (
	"context"
	"strings"
	"testing"

	"cloud.google.com/go/vertexai/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPrompt(t *testing.T) {
	got := BuildPrompt("  List the action items. ", "Meeting notes")
	assert.Equal(t, "List the action items.\n\nDocument:\nMeeting notes", got)

	got = BuildPrompt("", "text")
	assert.True(t, strings.HasPrefix(got, defaultPrompt))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 10))
	assert.Equal(t, "ab", Truncate("abc", 2))
	assert.Equal(t, "héll", Truncate("héllo", 4))
	assert.Equal(t, "abc", Truncate("abc", 0))
}

func TestFromResponse(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text("Short "), genai.Text("summary.")}},
		}},
		UsageMetadata: &genai.UsageMetadata{TotalTokenCount: 42},
	}

	gen, err := fromResponse(resp)
	require.NoError(t, err)
	assert.Equal(t, "Short summary.", gen.Text)
	assert.Equal(t, 42, gen.TokenCount)

	_, err = fromResponse(&genai.GenerateContentResponse{})
	assert.ErrorIs(t, err, ErrEmptyResponse)

	_, err = fromResponse(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{}}},
	})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestDisabled(t *testing.T) {
	_, err := Disabled{}.Generate(context.Background(), "", "text")
	assert.ErrorIs(t, err, ErrDisabled)
}
