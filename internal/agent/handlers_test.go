package agent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/jamie/pipecanvas/internal/db"
	"github.com/jamie/pipecanvas/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubLLM returns canned output for both generation modes.
type stubLLM struct {
	out string
	err error
}

func (s *stubLLM) GenerateContent(ctx context.Context, prompt string, tier llm.ModelTier) (string, error) {
	return s.out, s.err
}

func (s *stubLLM) GenerateJSON(ctx context.Context, prompt string, tier llm.ModelTier) (string, error) {
	return s.out, s.err
}

func (s *stubLLM) Close() error { return nil }

func TestMarketingCampaignRequiresLLM(t *testing.T) {
	a := &Agent{} // no LLM client configured
	job := &db.AgentJob{
		Type:    db.JobTypeMarketingCampaign,
		Payload: json.RawMessage(`{"audience":"editors","product":"PipeCanvas"}`),
	}

	_, err := a.handleMarketingCampaign(context.Background(), job)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "GEMINI_API_KEY")
}

func TestMarketingCampaignValidatesPayload(t *testing.T) {
	a := &Agent{}

	job := &db.AgentJob{Payload: json.RawMessage(`{not json`)}
	_, err := a.handleMarketingCampaign(context.Background(), job)
	assert.Error(t, err)

	// Missing required fields is reported before any LLM call
	job = &db.AgentJob{Payload: json.RawMessage(`{"tone":"upbeat"}`)}
	_, err = a.handleMarketingCampaign(context.Background(), job)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "audience")
}

func TestMarketingCampaignStructuredOutput(t *testing.T) {
	a := &Agent{llm: &stubLLM{out: `{"subject":"Ship faster","body":"Try PipeCanvas today."}`}}
	job := &db.AgentJob{
		Type:    db.JobTypeMarketingCampaign,
		Payload: json.RawMessage(`{"audience":"editors","product":"PipeCanvas"}`),
	}

	result, err := a.handleMarketingCampaign(context.Background(), job)
	require.NoError(t, err)

	var email map[string]string
	require.NoError(t, json.Unmarshal(result, &email))
	assert.Equal(t, "Ship faster", email["subject"])
	assert.Equal(t, "Try PipeCanvas today.", email["body"])
}

func TestMarketingCampaignRejectsMalformedOutput(t *testing.T) {
	job := &db.AgentJob{
		Type:    db.JobTypeMarketingCampaign,
		Payload: json.RawMessage(`{"audience":"editors","product":"PipeCanvas"}`),
	}

	a := &Agent{llm: &stubLLM{out: `not json at all`}}
	_, err := a.handleMarketingCampaign(context.Background(), job)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "malformed")

	// Valid JSON without the required keys is also rejected
	a = &Agent{llm: &stubLLM{out: `{"subject":"only half"}`}}
	_, err = a.handleMarketingCampaign(context.Background(), job)
	assert.Error(t, err)
}

func TestWeeklyDigestValidatesPayload(t *testing.T) {
	a := &Agent{}

	job := &db.AgentJob{Payload: json.RawMessage(`{"user_id":"not-a-uuid"}`)}
	_, err := a.handleWeeklyDigest(context.Background(), job)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "user_id")

	job = &db.AgentJob{Payload: json.RawMessage(`null`)}
	_, err = a.handleWeeklyDigest(context.Background(), job)
	assert.Error(t, err)
}

func TestChurnCheckRejectsBadPayload(t *testing.T) {
	a := &Agent{}

	job := &db.AgentJob{Payload: json.RawMessage(`{"inactive_days":"thirty"}`)}
	_, err := a.handleChurnCheck(context.Background(), job)
	assert.Error(t, err)
}

func TestHandlersCoverAllJobTypes(t *testing.T) {
	a := New(nil, nil, testAgentConfig())

	for _, jt := range []string{db.JobTypeMarketingCampaign, db.JobTypeChurnCheck, db.JobTypeWeeklyDigest} {
		_, ok := a.handlers[jt]
		assert.True(t, ok, "missing handler for job type %s", jt)
	}
}
