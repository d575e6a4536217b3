package llmrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/axiomtrader/assistant/internal/apperr"
	"github.com/axiomtrader/assistant/internal/domain"
)

// HTTPProvider is a generic OpenAI-compatible-chat provider client. It is
// grounded on SynapseStrike/mcp/architect_client.go's shared-Client +
// ClientOption pattern, simplified to one struct with functional options
// instead of a base Client plus a "hooks" interface, since this repo only
// needs one wire shape rather than per-backend URL/body/parse overrides.
type HTTPProvider struct {
	name       string
	model      string
	baseURL    string
	apiKey     string
	taskClasses map[TaskClass]bool
	httpClient *http.Client
}

// HTTPProviderOption configures an HTTPProvider.
type HTTPProviderOption func(*HTTPProvider)

func WithModel(model string) HTTPProviderOption {
	return func(p *HTTPProvider) { p.model = model }
}

func WithBaseURL(url string) HTTPProviderOption {
	return func(p *HTTPProvider) { p.baseURL = url }
}

func WithAPIKey(key string) HTTPProviderOption {
	return func(p *HTTPProvider) { p.apiKey = key }
}

func WithTaskClasses(classes ...TaskClass) HTTPProviderOption {
	return func(p *HTTPProvider) {
		p.taskClasses = make(map[TaskClass]bool, len(classes))
		for _, c := range classes {
			p.taskClasses[c] = true
		}
	}
}

// NewHTTPProvider creates a named provider client.
func NewHTTPProvider(name string, opts ...HTTPProviderOption) *HTTPProvider {
	p := &HTTPProvider{
		name:        name,
		taskClasses: map[TaskClass]bool{TaskLightweight: true, TaskStandard: true, TaskComplex: true},
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *HTTPProvider) Name() string { return p.name }

func (p *HTTPProvider) SupportsTaskClass(c TaskClass) bool { return p.taskClasses[c] }

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// decisionPayload is the closed JSON schema every provider response is
// validated against; a response that doesn't unmarshal into this shape is
// treated as a malformed provider failure and triggers fallback.
type decisionPayload struct {
	Asset           string    `json:"asset"`
	Action          string    `json:"action"`
	Confidence      float64   `json:"confidence"`
	Entry           float64   `json:"entry"`
	StopLoss        float64   `json:"stop_loss"`
	TakeProfitTiers []float64 `json:"take_profit_tiers"`
	Reasoning       string    `json:"reasoning"`
}

func (p *HTTPProvider) Complete(ctx context.Context, spec PromptSpec) (Response, error) {
	if p.baseURL == "" {
		return Response{}, apperr.Wrap(apperr.ConfigurationError, "provider %s has no base URL configured", p.name)
	}

	userPrompt := renderUserPrompt(spec)
	body := chatRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: spec.SystemRole},
			{Role: "user", Content: userPrompt},
		},
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return Response{}, apperr.Wrap(apperr.TransientUpstream, "encode request for %s: %v", p.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(encoded))
	if err != nil {
		return Response{}, apperr.Wrap(apperr.TransientUpstream, "build request for %s: %v", p.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Response{}, apperr.Wrap(apperr.TransientUpstream, "call %s: %v", p.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return Response{}, apperr.Wrap(apperr.TransientUpstream, "provider %s returned %d", p.name, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return Response{}, apperr.Wrap(apperr.ValidationError, "provider %s rejected request: %d", p.name, resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil || len(parsed.Choices) == 0 {
		return Response{}, apperr.Wrap(apperr.TransientUpstream, "malformed response from %s", p.name)
	}

	var payload decisionPayload
	raw := parsed.Choices[0].Message.Content
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return Response{}, apperr.Wrap(apperr.TransientUpstream, "malformed decision JSON from %s: %v", p.name, err)
	}

	advice := domain.Advice{
		Asset:           domain.Asset{ID: payload.Asset},
		Action:          domain.Action(payload.Action),
		Confidence:      payload.Confidence,
		Entry:           payload.Entry,
		StopLoss:        payload.StopLoss,
		TakeProfitTiers: payload.TakeProfitTiers,
		ReasoningText:   payload.Reasoning,
		Source:          domain.SourceLLM,
		GeneratedAt:     time.Now(),
	}

	return Response{Decisions: []domain.Advice{advice}, RawText: raw}, nil
}

func renderUserPrompt(spec PromptSpec) string {
	var b bytes.Buffer
	fmt.Fprintf(&b, "%s\n", spec.TaskDescription)
	if q := spec.Context.Quote; q != nil {
		fmt.Fprintf(&b, "quote: asset=%s price=%.4f volume=%.2f change24h=%.4f\n", q.Asset, q.Price, q.VolumeWindow, q.Change24hPct)
	}
	if snap := spec.Context.Indicators; snap != nil {
		fmt.Fprintf(&b, "indicators: fast_rsi_present=%v fast_rsi=%.2f std_rsi_present=%v std_rsi=%.2f\n",
			snap.FastRSI.Present, snap.FastRSI.Value, snap.StandardRSI.Present, snap.StandardRSI.Value)
	}
	if ev := spec.Context.Anomaly; ev != nil {
		fmt.Fprintf(&b, "anomaly: kind=%s severity=%s score=%.2f\n", ev.Kind, ev.Severity, ev.Score)
	}
	if spec.Context.NewsSummary != "" {
		fmt.Fprintf(&b, "news: %s\n", spec.Context.NewsSummary)
	}
	if len(spec.Context.Positions) > 0 {
		fmt.Fprintf(&b, "open positions: %d\n", len(spec.Context.Positions))
	}
	b.WriteString("Respond with a single JSON object matching the decision schema.")
	return b.String()
}
