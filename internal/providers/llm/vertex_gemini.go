package llm

import (
	"context"
	"strings"

	vertexgenai "cloud.google.com/go/vertexai/genai"
	"github.com/yoockh/vaihub/internal/models"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

type VertexGemini struct {
	client    *vertexgenai.Client
	modelName string
}

func NewVertexGemini(ctx context.Context, projectID, location, modelName string, opts ...option.ClientOption) (*VertexGemini, error) {
	c, err := vertexgenai.NewClient(ctx, projectID, location, opts...)
	if err != nil {
		return nil, err
	}

	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}

	return &VertexGemini{client: c, modelName: modelName}, nil
}

func (v *VertexGemini) Close() error { return v.client.Close() }

func (v *VertexGemini) chat(system string, turns []models.ChatTurn) (*vertexgenai.ChatSession, string) {
	m := v.client.GenerativeModel(v.modelName)
	if system != "" {
		m.SystemInstruction = &vertexgenai.Content{Parts: []vertexgenai.Part{vertexgenai.Text(system)}}
	}

	cs := m.StartChat()
	for _, t := range turns[:len(turns)-1] {
		if strings.TrimSpace(t.Content) == "" {
			continue
		}
		cs.History = append(cs.History, &vertexgenai.Content{
			Role:  geminiRole(t.Role),
			Parts: []vertexgenai.Part{vertexgenai.Text(t.Content)},
		})
	}
	return cs, turns[len(turns)-1].Content
}

func geminiRole(role string) string {
	if role == models.TurnAssistant {
		return "model"
	}
	return "user"
}

func (v *VertexGemini) Complete(ctx context.Context, system string, turns []models.ChatTurn) (string, error) {
	if err := CheckTurns(turns); err != nil {
		return "", err
	}
	cs, prompt := v.chat(system, turns)

	resp, err := cs.SendMessage(ctx, vertexgenai.Text(prompt))
	if err != nil {
		return "", err
	}

	text := responseText(resp)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func (v *VertexGemini) Stream(ctx context.Context, system string, turns []models.ChatTurn) (<-chan string, <-chan error) {
	out := make(chan string, 32)
	errs := make(chan error, 1)

	if err := CheckTurns(turns); err != nil {
		close(out)
		errs <- err
		close(errs)
		return out, errs
	}

	go func() {
		defer close(out)
		defer close(errs)

		cs, prompt := v.chat(system, turns)
		it := cs.SendMessageStream(ctx, vertexgenai.Text(prompt))
		for {
			resp, err := it.Next()
			if err == iterator.Done {
				return
			}
			if err != nil {
				errs <- err
				return
			}

			if t := responseText(resp); t != "" {
				select {
				case out <- t:
				case <-ctx.Done():
					errs <- ctx.Err()
					return
				}
			}
		}
	}()

	return out, errs
}

func responseText(resp *vertexgenai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(vertexgenai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}
