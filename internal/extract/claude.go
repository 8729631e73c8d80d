// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/template"

	"github.com/pdiddy/brim-extract/internal/httputil"
)

// extractionPromptTmpl wraps the enriched instruction and the document text.
var extractionPromptTmpl = template.Must(template.New("extraction").Parse(`You are a clinical data abstraction system. Read the clinical document below and answer the extraction instruction using only what the document states.

Respond with a single JSON object and nothing else. Use null for values the document does not contain. Include a "confidence" field between 0.0 and 1.0 and an "evidence" field quoting the supporting text.

Document ID: {{.DocumentID}}
Document type: {{.DocumentType}}

--- DOCUMENT START ---
{{.Document}}
--- DOCUMENT END ---

Instruction:
{{.Prompt}}
`))

// claudeAPIURL is the Claude API endpoint. Package-level var for test substitution.
var claudeAPIURL = "https://api.anthropic.com/v1/messages"

const defaultMaxTokens = 4096

// ClaudeBackend is an Extractor backed by the Claude Messages API.
type ClaudeBackend struct {
	APIKey     string
	Model      string
	MaxTokens  int
	MaxRetries int
	Client     *http.Client
	Documents  DocumentSource
}

type claudeRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	Messages  []claudeMessage `json:"messages"`
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeResponse struct {
	Content []claudeContent `json:"content"`
}

type claudeContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Invoke loads the document, renders the prompt and returns the model's
// text reply unparsed.
func (c *ClaudeBackend) Invoke(ctx context.Context, req Request) (string, error) {
	if c.Documents == nil {
		return "", fmt.Errorf("no document source configured")
	}
	doc, err := c.Documents.Load(ctx, req.DocumentID)
	if err != nil {
		return "", err
	}

	prompt, err := renderPrompt(req, doc)
	if err != nil {
		return "", fmt.Errorf("rendering prompt: %w", err)
	}

	maxTokens := c.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	bodyBytes, err := json.Marshal(claudeRequest{
		Model:     c.Model,
		MaxTokens: maxTokens,
		Messages:  []claudeMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, claudeAPIURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.APIKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := httputil.DoWithRetry(ctx, client, httpReq, c.MaxRetries)
	if err != nil {
		return "", fmt.Errorf("calling Claude API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("Claude API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var cResp claudeResponse
	if err := json.NewDecoder(resp.Body).Decode(&cResp); err != nil {
		return "", fmt.Errorf("decoding Claude response: %w", err)
	}

	for _, block := range cResp.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("no text content in Claude API response")
}

func renderPrompt(req Request, document string) (string, error) {
	var buf bytes.Buffer
	err := extractionPromptTmpl.Execute(&buf, struct {
		DocumentID   string
		DocumentType string
		Document     string
		Prompt       string
	}{
		DocumentID:   req.DocumentID,
		DocumentType: req.DocumentType,
		Document:     document,
		Prompt:       req.Prompt,
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}
