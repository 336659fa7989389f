package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jamie/pipecanvas/internal/db"
	"github.com/jamie/pipecanvas/internal/llm"
)

// marketingCampaignPayload describes the copy a campaign job should produce.
type marketingCampaignPayload struct {
	Audience string `json:"audience"`
	Product  string `json:"product"`
	Tone     string `json:"tone,omitempty"`
}

// handleMarketingCampaign generates structured campaign copy with the LLM.
func (a *Agent) handleMarketingCampaign(ctx context.Context, job *db.AgentJob) ([]byte, error) {
	var payload marketingCampaignPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}
	if payload.Audience == "" || payload.Product == "" {
		return nil, fmt.Errorf("payload requires audience and product")
	}
	if a.llm == nil {
		return nil, fmt.Errorf("marketing_campaign requires an LLM client (GEMINI_API_KEY not set)")
	}

	tone := payload.Tone
	if tone == "" {
		tone = "friendly and direct"
	}

	prompt := fmt.Sprintf(
		`Write a short marketing email promoting %s to %s. Tone: %s. Respond with a JSON object with keys "subject" (one line) and "body" (3 short paragraphs).`,
		payload.Product, payload.Audience, tone)

	raw, err := a.llm.GenerateJSON(ctx, prompt, llm.TierStandard)
	if err != nil {
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	var email struct {
		Subject string `json:"subject"`
		Body    string `json:"body"`
	}
	if err := json.Unmarshal([]byte(raw), &email); err != nil {
		return nil, fmt.Errorf("malformed generation output: %w", err)
	}
	if email.Subject == "" || email.Body == "" {
		return nil, fmt.Errorf("generation output missing subject or body")
	}

	return json.Marshal(map[string]string{
		"subject": email.Subject,
		"body":    email.Body,
	})
}

// churnCheckPayload tunes the inactivity window for a churn scan.
type churnCheckPayload struct {
	InactiveDays int `json:"inactive_days,omitempty"`
	Limit        int `json:"limit,omitempty"`
}

// handleChurnCheck flags users with no runs inside the inactivity
// window. Pure SQL, no LLM involved.
func (a *Agent) handleChurnCheck(ctx context.Context, job *db.AgentJob) ([]byte, error) {
	payload := churnCheckPayload{InactiveDays: 30}
	if len(job.Payload) > 0 {
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return nil, fmt.Errorf("invalid payload: %w", err)
		}
	}
	if payload.InactiveDays < 1 {
		payload.InactiveDays = 30
	}

	since := time.Now().AddDate(0, 0, -payload.InactiveDays)
	users, err := a.db.ListInactiveUsers(ctx, since, payload.Limit)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}

	return json.Marshal(map[string]any{
		"inactive_days": payload.InactiveDays,
		"at_risk_count": len(ids),
		"at_risk_users": ids,
	})
}

// weeklyDigestPayload names the user a digest job summarizes.
type weeklyDigestPayload struct {
	UserID string `json:"user_id"`
}

// handleWeeklyDigest summarizes a user's last week of runs. The summary
// text comes from the LLM when available, otherwise a plain count line.
func (a *Agent) handleWeeklyDigest(ctx context.Context, job *db.AgentJob) ([]byte, error) {
	var payload weeklyDigestPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}
	userID, err := uuid.Parse(payload.UserID)
	if err != nil {
		return nil, fmt.Errorf("invalid user_id: %w", err)
	}

	runs, err := a.db.ListRunsByUser(ctx, userID, 100)
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().AddDate(0, 0, -7)
	var total, completed, failed, spent int
	for _, r := range runs {
		if r.StartedAt.Before(cutoff) {
			continue
		}
		total++
		spent += r.Cost
		switch r.Status {
		case db.RunCompleted:
			completed++
		case db.RunFailed:
			failed++
		}
	}

	summary := fmt.Sprintf("%d runs this week (%d completed, %d failed), %d credits spent.",
		total, completed, failed, spent)

	if a.llm != nil && total > 0 {
		prompt := strings.Join([]string{
			"Write a two-sentence friendly weekly activity digest for a user of a media pipeline editor.",
			fmt.Sprintf("Stats: %s", summary),
		}, " ")
		if text, err := a.llm.GenerateContent(ctx, prompt, llm.TierLite); err == nil {
			summary = text
		}
		// Generation failure falls back to the stat line.
	}

	return json.Marshal(map[string]any{
		"user_id":       userID,
		"runs":          total,
		"completed":     completed,
		"failed":        failed,
		"credits_spent": spent,
		"summary":       summary,
	})
}
