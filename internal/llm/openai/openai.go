package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"alpha-engine/internal/store"
	"alpha-engine/internal/trace"
	"alpha-engine/internal/types"
)

const voteSchema = `{"vote":"YES|NO|ABSTAIN|VETO","confidence":0.0,"reasoning":"string"}`

// Reasoner calls an OpenAI-compatible chat completions endpoint and parses
// the structured vote it returns. Any transport, timeout or parse failure
// is an error; callers degrade to their rule-based heuristic.
type Reasoner struct {
	cfg      *store.Config
	endpoint string
}

func New(cfg *store.Config) *Reasoner {
	endpoint := "https://api.openai.com/v1/chat/completions"
	if ep := os.Getenv("OPENAI_API_ENDPOINT"); ep != "" {
		endpoint = ep
	}
	return &Reasoner{cfg: cfg, endpoint: endpoint}
}

func (r *Reasoner) Assess(ctx context.Context, role types.VoterRole, system string, payload map[string]any) (types.ReasonedVote, error) {
	ctx, span := trace.StartSpan(ctx, "openai-assess")
	defer span.End()

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return types.ReasonedVote{}, errors.New("OPENAI_API_KEY missing")
	}

	timeout := time.Duration(r.cfg.LLM.TimeoutSeconds) * time.Second
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pb, _ := json.Marshal(payload)
	prompt := fmt.Sprintf(
		"You will receive decision context as JSON. Respond ONLY with compact JSON matching the schema.\nSchema:%s\nContext:%s",
		voteSchema, string(pb))

	body := map[string]any{
		"model":       r.cfg.LLM.Model,
		"messages":    []map[string]string{{"role": "system", "content": system}, {"role": "user", "content": prompt}},
		"temperature": r.cfg.LLM.Temperature,
		"max_tokens":  r.cfg.LLM.MaxTokens,
	}
	bb, _ := json.Marshal(body)

	req, _ := http.NewRequestWithContext(ctx, "POST", r.endpoint, bytes.NewReader(bb))
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return types.ReasonedVote{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return types.ReasonedVote{}, fmt.Errorf("openai http %d", resp.StatusCode)
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return types.ReasonedVote{}, err
	}
	if len(out.Choices) == 0 {
		return types.ReasonedVote{}, errors.New("no choices")
	}

	content := strings.TrimSpace(out.Choices[0].Message.Content)
	var rv types.ReasonedVote
	if err := json.Unmarshal([]byte(content), &rv); err != nil {
		return types.ReasonedVote{}, fmt.Errorf("unparseable vote for role %s: %w", role, err)
	}

	rv.Vote = types.VoteValue(strings.ToUpper(strings.TrimSpace(string(rv.Vote))))
	switch rv.Vote {
	case types.VoteYes, types.VoteNo, types.VoteAbstain:
	case types.VoteVeto:
		// Only the risk manager seat may veto.
		if role != types.RoleRiskManager {
			rv.Vote = types.VoteNo
		}
	default:
		rv.Vote = types.VoteAbstain
	}
	if rv.Confidence < 0 || rv.Confidence > 1 {
		rv.Confidence = 0
	}
	return rv, nil
}
