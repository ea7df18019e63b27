// Package genai calls the Gemini REST API to turn a video URL or description
// into a structured analysis report and shooting script.
package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrUpstream covers provider failures after the fallback attempt,
	// including responses that cannot be parsed into the expected shape.
	ErrUpstream = errors.New("upstream model failure")
)

const (
	TierFree = "free"
	TierPaid = "paid"
)

type Config struct {
	BaseURL       string
	FreeAPIKey    string
	PaidAPIKey    string
	FreeModel     string
	PaidModel     string
	FallbackModel string
	Timeout       time.Duration
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *slog.Logger
}

func NewClient(cfg Config, log *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com"
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

type StructureSection struct {
	Section           string `json:"section"`
	Timestamp         string `json:"timestamp"`
	Summary           string `json:"summary"`
	NarrativeFunction string `json:"narrativeFunction"`
}

type TranscriptSegment struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type Analysis struct {
	Theme              string              `json:"theme"`
	Audience           string              `json:"audience"`
	Structure          []StructureSection  `json:"structure"`
	CorePoints         []string            `json:"corePoints"`
	TranscriptSegments []TranscriptSegment `json:"transcriptSegments"`
}

type Scene struct {
	SceneNumber int    `json:"sceneNumber"`
	Location    string `json:"location"`
	ShotType    string `json:"shotType"`
	Visuals     string `json:"visuals"`
	Audio       string `json:"audio"`
}

type Script struct {
	Title  string  `json:"title"`
	Scenes []Scene `json:"scenes"`
}

// Result is the full response returned to analyze callers.
type Result struct {
	Analysis  Analysis `json:"analysis"`
	Script    Script   `json:"script"`
	UsedModel string   `json:"usedModel"`
}

// Generate runs the analysis for one input. The tier selects the API key and
// model; a primary-model failure triggers exactly one fallback attempt on the
// cheaper model before the call is reported as an upstream failure. Without a
// configured key it returns a deterministic sample result so the service can
// run locally end to end.
func (c *Client) Generate(ctx context.Context, tier, input string) (*Result, error) {
	apiKey := c.cfg.FreeAPIKey
	model := c.cfg.FreeModel
	if tier == TierPaid {
		apiKey = c.cfg.PaidAPIKey
		model = c.cfg.PaidModel
	}

	if apiKey == "" {
		return sampleResult(tier), nil
	}

	prompt := buildPrompt(input)

	result, err := c.generateOnce(ctx, apiKey, model, prompt)
	if err == nil {
		return result, nil
	}
	if c.cfg.FallbackModel == "" || c.cfg.FallbackModel == model {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	c.log.Warn("primary model failed, falling back",
		"model", model, "fallback", c.cfg.FallbackModel, "err", err)

	result, fbErr := c.generateOnce(ctx, apiKey, c.cfg.FallbackModel, prompt)
	if fbErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, fbErr)
	}
	return result, nil
}

func (c *Client) generateOnce(ctx context.Context, apiKey, model, prompt string) (*Result, error) {
	reqBody := map[string]any{
		"contents": []map[string]any{
			{"parts": []map[string]string{{"text": prompt}}},
		},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent",
		strings.TrimRight(c.cfg.BaseURL, "/"), model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("model %s returned status %d", model, resp.StatusCode)
	}

	var envelope struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(envelope.Candidates) == 0 || len(envelope.Candidates[0].Content.Parts) == 0 {
		return nil, errors.New("model returned no candidates")
	}

	text := envelope.Candidates[0].Content.Parts[0].Text
	result, err := parseModelJSON(text)
	if err != nil {
		return nil, err
	}
	result.UsedModel = model
	return result, nil
}

// parseModelJSON tolerates the usual model misbehavior: code fences and
// chatter around the JSON object. Anything that still fails to decode is an
// upstream failure; partial results are never returned.
func parseModelJSON(text string) (*Result, error) {
	if text == "" {
		return nil, errors.New("model returned empty output")
	}
	cleaned := strings.ReplaceAll(text, "```json", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	first := strings.Index(cleaned, "{")
	last := strings.LastIndex(cleaned, "}")
	if first != -1 && last > first {
		cleaned = cleaned[first : last+1]
	}

	var result Result
	if err := json.Unmarshal([]byte(cleaned), &result); err != nil {
		return nil, fmt.Errorf("model output is not the expected JSON shape: %w", err)
	}
	return &result, nil
}

func buildPrompt(input string) string {
	var b strings.Builder
	b.WriteString(`角色与目标:
你是一名专业的视频内容分析师和脚本撰写专家。你的目标是分析用户提供的视频源（URL 或 描述），并生成两部分内容：1) 深度分析报告，2) 基于分析衍生的拍摄脚本。

语言要求:
必须使用简体中文 (Simplified Chinese) 输出所有内容。

重要指令:
1. 你是一个 API 端点。你的输出将被程序直接解析。
2. 不要在 JSON 前后输出任何对话、问候、解释或 Markdown 标记。
3. 只返回 JSON 对象本身。

任务:
1. 视频内容解读: 分析来源的主题、受众、结构和意图。
2. 结构拆解: 将视频解构为关键部分（引言、主体、结尾）。
3. 核心观点提取: 识别主要论点或关键信息。
4. 文案整理: 根据声音内容/字幕/文案，整理详尽的视频文本内容（智能分段）。
5. 脚本撰写: 基于分析结果，创作结构化拍摄脚本。

用户输入上下文:
`)
	b.WriteString(input)
	b.WriteString(`

输出 JSON Schema:
{
  "analysis": {
    "theme": "视频的核心主题",
    "audience": "目标受众描述",
    "structure": [
      { "section": "章节名称", "timestamp": "预估时间戳", "summary": "内容摘要", "narrativeFunction": "叙事功能" }
    ],
    "corePoints": ["核心观点 1", "核心观点 2"],
    "transcriptSegments": [
      { "title": "分段标题", "content": "详细文案内容..." }
    ]
  },
  "script": {
    "title": "脚本标题",
    "scenes": [
      { "sceneNumber": 1, "location": "场景/地点", "shotType": "镜头类型", "visuals": "视觉画面描述", "audio": "对白/旁白/音效" }
    ]
  }
}
`)
	return b.String()
}

func sampleResult(tier string) *Result {
	usedModel := "free-sample"
	if tier == TierPaid {
		usedModel = "paid-sample"
	}
	return &Result{
		Analysis: Analysis{
			Theme:    "示例主题",
			Audience: "目标受众示例",
			Structure: []StructureSection{
				{Section: "开篇", Timestamp: "00:00-00:30", Summary: "开篇概要", NarrativeFunction: "吸引注意"},
			},
			CorePoints: []string{"核心观点 1", "核心观点 2"},
			TranscriptSegments: []TranscriptSegment{
				{Title: "00:00 开场白", Content: "这里是示例文案。"},
			},
		},
		Script: Script{
			Title: "示例脚本",
			Scenes: []Scene{
				{SceneNumber: 1, Location: "室内", ShotType: "特写", Visuals: "画面描述示例", Audio: "对白示例"},
			},
		},
		UsedModel: usedModel,
	}
}
