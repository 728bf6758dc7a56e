package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/chiyuki0325/Memoh/internal/domain/agent/ports"
	apperrors "github.com/chiyuki0325/Memoh/internal/shared/errors"
)

const (
	defaultBraveBaseURL = "https://api.search.brave.com/res/v1"
	maxFetchBytes       = 2 << 20
	maxFetchText        = 15000
)

// BraveConfig configures the Brave Search API.
type BraveConfig struct {
	APIKey  string `mapstructure:"api_key" yaml:"api_key"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
}

// WebTools returns web_search (when a Brave key is configured) and web_fetch.
func WebTools(brave BraveConfig, client *http.Client) []Tool {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	var out []Tool
	if strings.TrimSpace(brave.APIKey) != "" {
		base := strings.TrimRight(brave.BaseURL, "/")
		if base == "" {
			base = defaultBraveBaseURL
		}
		out = append(out, &webSearch{apiKey: brave.APIKey, baseURL: base, client: client})
	}
	return append(out, &webFetch{client: client})
}

type webSearch struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func (t *webSearch) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "web_search",
		Description: "Search the web with Brave Search and return titles, URLs and snippets.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"query": {Type: "string", Description: "Search query"},
				"count": {Type: "integer", Description: "Number of results (1-20, default 5)"},
			},
			Required: []string{"query"},
		},
	}
}

type searchResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

func (t *webSearch) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	query := stringArg(call, "query")
	if query == "" {
		return nil, missingArg("query")
	}
	count := min(max(intArg(call, "count", 5), 1), 20)

	endpoint := fmt.Sprintf("%s/web/search?q=%s&count=%d", t.baseURL, url.QueryEscape(query), count)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", t.apiKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, apperrors.WrapRequestError(err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.MapHTTPError(resp.StatusCode, body, resp.Header)
	}

	var payload struct {
		Web struct {
			Results []searchResult `json:"results"`
		} `json:"web"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	results := payload.Web.Results
	if len(results) > count {
		results = results[:count]
	}
	content, err := json.Marshal(map[string]any{"query": query, "results": results})
	if err != nil {
		return nil, err
	}
	return &ports.ToolResult{Content: string(content), Metadata: map[string]any{"result_count": len(results)}}, nil
}

type webFetch struct {
	client *http.Client
}

func (t *webFetch) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "web_fetch",
		Description: "Fetch a web page and return its readable text.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"url": {Type: "string", Description: "Full URL to fetch (http/https)"},
			},
			Required: []string{"url"},
		},
	}
}

func (t *webFetch) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	raw := stringArg(call, "url")
	if raw == "" {
		return nil, missingArg("url")
	}
	parsed, err := url.Parse(raw)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, apperrors.NewPermanentError(fmt.Errorf("invalid url %q", raw), "URL must be an absolute http or https URL.")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Memoh/1.0 (+web_fetch)")
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, apperrors.WrapRequestError(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, apperrors.MapHTTPError(resp.StatusCode, body, resp.Header)
	}

	body := io.LimitReader(resp.Body, maxFetchBytes)
	var text string
	if ct := resp.Header.Get("Content-Type"); ct == "" || strings.Contains(ct, "html") {
		text, err = htmlToText(body)
	} else {
		var data []byte
		data, err = io.ReadAll(body)
		text = string(data)
	}
	if err != nil {
		return nil, fmt.Errorf("read page: %w", err)
	}
	if len(text) > maxFetchText {
		text = text[:maxFetchText] + "\n\n[Content truncated...]"
	}
	return &ports.ToolResult{Content: text, Metadata: map[string]any{"url": resp.Request.URL.String()}}, nil
}

// htmlToText keeps the title, headings, paragraphs and list items of a page.
func htmlToText(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", err
	}
	doc.Find("script, style, nav, footer, header, aside, iframe, noscript").Remove()

	var b strings.Builder
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		b.WriteString("# " + title + "\n\n")
	}
	doc.Find("h1, h2, h3, h4, h5, h6, p, li, pre").Each(func(_ int, s *goquery.Selection) {
		text := strings.Join(strings.Fields(s.Text()), " ")
		if text == "" {
			return
		}
		switch tag := goquery.NodeName(s); tag {
		case "li":
			b.WriteString("- " + text + "\n")
		case "p", "pre":
			b.WriteString(text + "\n\n")
		default:
			level := int(tag[1] - '0')
			b.WriteString(strings.Repeat("#", level) + " " + text + "\n\n")
		}
	})
	return strings.TrimSpace(b.String()), nil
}
