// Package groq is a narrow client for the Groq chat completions API, used
// only to extract structured routine fields from free text.
package groq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotinalab/rotinabot/internal/service"
)

const (
	defaultBaseURL = "https://api.groq.com/openai/v1"
	defaultModel   = "llama-3.3-70b-versatile"
)

type Client struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

func NewClient(apiKey, model string) *Client {
	if model == "" {
		model = defaultModel
	}
	return &Client{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultBaseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) IsConfigured() bool {
	return c.apiKey != ""
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

const extractionPrompt = `Você extrai campos de rotinas a partir de mensagens em português. Hoje é %s (%s).
Responda SOMENTE com um JSON neste formato:
{"dia": "...", "horario": "HH:MM", "mensagem": "...", "tipo": "unica|repetitiva", "repeticao": "diariamente|semanalmente|a cada 2 semanas|mensalmente|anualmente", "tarefa": true|false}
Regras:
- "dia": para tipo unica, a data "YYYY-MM-DD"; para semanalmente, os dias da semana separados por vírgula; para mensalmente, o dia do mês.
- "tarefa" é true quando a pessoa precisa confirmar a conclusão (fazer algo), false para avisos simples.
- "mensagem" é o texto do lembrete, sem a parte de agendamento.`

// ExtractRoutine asks the model to break the text into routine fields.
func (c *Client) ExtractRoutine(ctx context.Context, text string, now time.Time) (*service.Extraction, error) {
	if !c.IsConfigured() {
		return nil, fmt.Errorf("groq api key not configured")
	}

	system := fmt.Sprintf(extractionPrompt, now.Format("2006-01-02"), now.Weekday())
	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: text},
		},
		Temperature: 0.1,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("groq request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("groq status %d: %s", resp.StatusCode, string(body))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("empty completion")
	}

	return parseExtraction(parsed.Choices[0].Message.Content)
}

// parseExtraction pulls the JSON object out of the completion text; models
// sometimes wrap it in prose or code fences.
func parseExtraction(content string) (*service.Extraction, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in completion: %q", content)
	}

	var ex service.Extraction
	if err := json.Unmarshal([]byte(content[start:end+1]), &ex); err != nil {
		return nil, fmt.Errorf("decode extraction: %w", err)
	}
	if ex.Time == "" || ex.Message == "" {
		return nil, fmt.Errorf("incomplete extraction: %+v", ex)
	}
	return &ex, nil
}
