// Package httpcall provides the built-in "http" action: one outbound HTTP request.
package httpcall

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukex/taskpipe/pkg/protocol"
	"github.com/dukex/taskpipe/pkg/template"
	"github.com/go-resty/resty/v2"
)

// ErrHTTPStatus is returned when the remote server answers with a status of 400 or above.
var ErrHTTPStatus = errors.New("http request returned an error status")

// Request is the decoded handler input.
type Request struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
	Query   map[string]any    `json:"query"`
	Body    any               `json:"body"`
}

type Handler struct {
	client *resty.Client
	logger *slog.Logger
}

func NewHandler(client *resty.Client, logger *slog.Logger) *Handler {
	return &Handler{
		client: client,
		logger: logger.With("module", "http_action"),
	}
}

// Execute performs the request and returns {status, headers, body}. The body is
// decoded as JSON when possible and returned as text otherwise.
func (h *Handler) Execute(ctx context.Context, inv protocol.Invocation) (any, error) {
	if err := protocol.ValidateInput(inputSchema, inv.Input); err != nil {
		return nil, err
	}

	request, err := decodeRequest(inv.Input)
	if err != nil {
		return nil, err
	}

	logger := h.logger.With("task_id", inv.Task.TaskID, "method", request.Method, "url", request.URL)
	logger.InfoContext(ctx, "Executing HTTP action")

	req := h.client.R().SetContext(ctx).SetHeaders(request.Headers)

	for key, value := range request.Query {
		text, err := template.Text(value)
		if err != nil {
			return nil, fmt.Errorf("%w: query parameter %s: %w", protocol.ErrInvalidInput, key, err)
		}

		req.SetQueryParam(key, text)
	}

	if request.Body != nil {
		if text, ok := request.Body.(string); ok {
			req.SetBody(text)
		} else {
			req.SetHeader("Content-Type", "application/json").SetBody(request.Body)
		}
	}

	resp, err := req.Execute(request.Method, request.URL)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}

	result := map[string]any{
		"status":  resp.StatusCode(),
		"headers": flattenHeaders(resp.Header()),
		"body":    decodeBody(resp.Body()),
	}

	if resp.StatusCode() >= http.StatusBadRequest {
		logger.WarnContext(ctx, "HTTP action returned error status", "status", resp.StatusCode())

		return nil, fmt.Errorf("%w: %s %s responded %d: %s",
			ErrHTTPStatus, request.Method, request.URL, resp.StatusCode(), strings.TrimSpace(resp.String()))
	}

	return result, nil
}

func decodeRequest(input any) (Request, error) {
	raw, err := json.Marshal(input)
	if err != nil {
		return Request{}, fmt.Errorf("%w: %w", protocol.ErrInvalidInput, err)
	}

	var request Request

	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()

	err = decoder.Decode(&request)
	if err != nil {
		return Request{}, fmt.Errorf("%w: %w", protocol.ErrInvalidInput, err)
	}

	request.Method = strings.ToUpper(request.Method)
	if request.Method == "" {
		request.Method = http.MethodGet
	}

	return request, nil
}

func flattenHeaders(header http.Header) map[string]any {
	flat := make(map[string]any, len(header))
	for key, values := range header {
		flat[key] = strings.Join(values, ", ")
	}

	return flat
}

func decodeBody(body []byte) any {
	if len(body) == 0 {
		return nil
	}

	if decoded, err := template.Decode(body); err == nil {
		return decoded
	}

	return string(body)
}
