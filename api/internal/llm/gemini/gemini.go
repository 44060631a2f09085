package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/option"

	"problem-recs/api/internal/llm"
	"problem-recs/api/internal/util"
)

type Engine struct {
	APIKey     string
	Model      string
	EmbedModel string
}

func New(apiKey, model, embedModel string) *Engine {
	return &Engine{
		APIKey:     strings.TrimSpace(apiKey),
		Model:      strings.TrimSpace(model),
		EmbedModel: strings.TrimSpace(embedModel),
	}
}

func (e *Engine) Name() string     { return "gemini" }
func (e *Engine) GetModel() string { return e.Model }

func (e *Engine) SetModel(m string) {
	if m = strings.TrimSpace(m); m != "" {
		e.Model = m
	}
}

func (e *Engine) client(ctx context.Context) (*genai.Client, error) {
	if e.APIKey == "" {
		return nil, fmt.Errorf("%w: GEMINI_API_KEY is empty", llm.ErrNotConfigured)
	}
	return genai.NewClient(ctx, option.WithAPIKey(e.APIKey))
}

func (e *Engine) model(cl *genai.Client, system string, jsonOut bool) *genai.GenerativeModel {
	m := cl.GenerativeModel(e.Model)
	m.GenerationConfig = genai.GenerationConfig{
		Temperature: ptrFloat32(0),
	}
	if jsonOut {
		m.GenerationConfig.ResponseMIMEType = "application/json"
	}
	m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	return m
}

// --------------------------- TRANSCRIBE ---------------------------

func (e *Engine) Transcribe(ctx context.Context, system string, image []byte, mime string) (string, error) {
	cl, err := e.client(ctx)
	if err != nil {
		return "", err
	}
	defer cl.Close()

	m := e.model(cl, system, false)
	resp, err := m.GenerateContent(ctx,
		genai.Text("Transcribe all mathematical content from this image."),
		&genai.Blob{MIMEType: mime, Data: image},
	)
	if err != nil {
		return "", wrapErr("transcribe", err)
	}
	return strings.TrimSpace(firstText(resp)), nil
}

// --------------------------- COMPLETE ---------------------------

func (e *Engine) CompleteJSON(ctx context.Context, system, user string) (string, error) {
	cl, err := e.client(ctx)
	if err != nil {
		return "", err
	}
	defer cl.Close()

	m := e.model(cl, system, true)
	resp, err := m.GenerateContent(ctx, genai.Text(user))
	if err != nil {
		return "", wrapErr("complete", err)
	}
	txt := firstText(resp)
	if txt == "" {
		return "", fmt.Errorf("gemini complete: empty response")
	}
	return util.StripCodeFences(txt), nil
}

// --------------------------- EMBED ---------------------------

func (e *Engine) Embed(ctx context.Context, text string) ([]float32, error) {
	cl, err := e.client(ctx)
	if err != nil {
		return nil, err
	}
	defer cl.Close()

	res, err := cl.EmbeddingModel(e.EmbedModel).EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, wrapErr("embed", err)
	}
	if res == nil || res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, fmt.Errorf("gemini embed: empty response")
	}
	return res.Embedding.Values, nil
}

// wrapErr приводит ошибки API к llm.StatusError, чтобы наверху был виден код апстрима.
func wrapErr(op string, err error) error {
	var ae *apierror.APIError
	if errors.As(err, &ae) {
		code := ae.HTTPCode()
		if code <= 0 {
			code = http.StatusBadGateway
		}
		return &llm.StatusError{Provider: "gemini", Op: op, Code: code, Body: ae.Error()}
	}
	return fmt.Errorf("gemini %s: %w", op, err)
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, c := range resp.Candidates {
		if c == nil || c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		if b.Len() > 0 {
			break
		}
	}
	return b.String()
}

func ptrFloat32(v float32) *float32 { return &v }
