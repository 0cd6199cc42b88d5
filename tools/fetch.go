package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hapershtein/llamagent/errors"
)

const (
	fetchTimeout  = 15 * time.Second
	maxFetchChars = 20_000
)

// FetchURLTool performs an HTTP GET and returns the (truncated) body.
type FetchURLTool struct{}

func (t *FetchURLTool) Name() string { return "fetch_url" }
func (t *FetchURLTool) Description() string {
	return "Fetch the content of a URL (HTTP GET). Returns text response."
}
func (t *FetchURLTool) Risk() Risk { return RiskSafe }
func (t *FetchURLTool) Schema() Parameters {
	return Parameters{
		Type: "object",
		Properties: map[string]Property{
			"url":     {Type: "string", Description: "URL to fetch."},
			"headers": {Type: "object", Description: "Optional HTTP headers as key-value pairs."},
		},
		Required: []string{"url"},
	}
}

func (t *FetchURLTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	url, ok := strArg(args, "url")
	if !ok {
		return "", errors.New("missing or invalid 'url' argument")
	}

	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", errors.Wrapf(err, "invalid URL '%s'", url)
	}
	if headers, ok := args["headers"].(map[string]interface{}); ok {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				req.Header.Set(k, s)
			}
		}
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", errors.Wrapf(err, "failed to fetch '%s'", url)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchChars+1))
	if err != nil {
		return "", errors.Wrapf(err, "failed to read response from '%s'", url)
	}
	text := string(body)
	if len(text) > maxFetchChars {
		text = text[:maxFetchChars] + "\n...(truncated)"
	}

	return fmt.Sprintf("[HTTP %d] %s\n\n%s", resp.StatusCode, resp.Header.Get("Content-Type"), text), nil
}
