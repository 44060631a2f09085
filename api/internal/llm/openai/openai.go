package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"problem-recs/api/internal/llm"
	"problem-recs/api/internal/util"
)

const defaultBaseURL = "https://api.openai.com"

type Engine struct {
	APIKey      string
	Model       string
	VisionModel string
	EmbedModel  string
	BaseURL     string
	httpc       *http.Client
}

func New(key, model, visionModel, embedModel, baseURL string) *Engine {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	if strings.TrimSpace(visionModel) == "" {
		visionModel = model
	}
	return &Engine{
		APIKey:      strings.TrimSpace(key),
		Model:       model,
		VisionModel: visionModel,
		EmbedModel:  embedModel,
		BaseURL:     strings.TrimRight(baseURL, "/"),
		httpc:       &http.Client{Timeout: 120 * time.Second},
	}
}

func (e *Engine) Name() string { return "openai" }

func (e *Engine) GetModel() string { return e.Model }

func (e *Engine) SetModel(m string) {
	if m = strings.TrimSpace(m); m != "" {
		e.Model = m
	}
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (e *Engine) Transcribe(ctx context.Context, system string, image []byte, mime string) (string, error) {
	if e.APIKey == "" {
		return "", fmt.Errorf("%w: OPENAI_API_KEY is empty", llm.ErrNotConfigured)
	}
	dataURL := util.MakeDataURL(mime, base64.StdEncoding.EncodeToString(image))

	body := map[string]any{
		"model": e.VisionModel,
		"messages": []any{
			map[string]any{"role": "system", "content": system},
			map[string]any{
				"role": "user",
				"content": []any{
					map[string]any{"type": "text", "text": "Transcribe all mathematical content from this image."},
					map[string]any{"type": "image_url", "image_url": map[string]any{"url": dataURL, "detail": "high"}},
				},
			},
		},
		"temperature": 0,
	}
	out, err := e.chat(ctx, "transcribe", body)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (e *Engine) CompleteJSON(ctx context.Context, system, user string) (string, error) {
	if e.APIKey == "" {
		return "", fmt.Errorf("%w: OPENAI_API_KEY is empty", llm.ErrNotConfigured)
	}
	body := map[string]any{
		"model": e.Model,
		"messages": []any{
			map[string]any{"role": "system", "content": system},
			map[string]any{"role": "user", "content": user},
		},
		"temperature": 0,
	}
	out, err := e.chat(ctx, "complete", body)
	if err != nil {
		return "", err
	}
	return util.StripCodeFences(out), nil
}

func (e *Engine) chat(ctx context.Context, op string, body map[string]any) (string, error) {
	payload, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.BaseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.APIKey)

	resp, err := e.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("openai %s: %w", op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		x, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &llm.StatusError{Provider: "openai", Op: op, Code: resp.StatusCode, Body: strings.TrimSpace(string(x))}
	}

	var raw chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return "", fmt.Errorf("openai %s: decode: %w", op, err)
	}
	if len(raw.Choices) == 0 {
		return "", fmt.Errorf("openai %s: empty response", op)
	}
	return raw.Choices[0].Message.Content, nil
}

func (e *Engine) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.APIKey == "" {
		return nil, fmt.Errorf("%w: OPENAI_API_KEY is empty", llm.ErrNotConfigured)
	}
	payload, _ := json.Marshal(map[string]any{
		"model": e.EmbedModel,
		"input": text,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.BaseURL+"/v1/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.APIKey)

	resp, err := e.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		x, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &llm.StatusError{Provider: "openai", Op: "embed", Code: resp.StatusCode, Body: strings.TrimSpace(string(x))}
	}

	var raw struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("openai embed: decode: %w", err)
	}
	if len(raw.Data) == 0 || len(raw.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("openai embed: empty response")
	}
	return raw.Data[0].Embedding, nil
}
