package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/photo-capture/internal/logging"
	"github.com/example/photo-capture/pkg/models"
)

// HTTPProcessor submits captures to the processing service over its JSON
// contract: POST {baseURL}/process.
type HTTPProcessor struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewHTTPProcessor builds a client for the given service base URL. The
// timeout bounds the whole exchange; the controller additionally applies its
// own submit timeout through the request context.
func NewHTTPProcessor(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPProcessor {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPProcessor{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.Named("http_processor"),
	}
}

// Process implements Processor. Non-2xx responses are returned as
// *ServiceError carrying the service's structured error message.
func (p *HTTPProcessor) Process(ctx context.Context, req models.ProcessingRequest) (*models.ProcessingResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, logging.NewOperationError("client.marshal_request", "", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/process", bytes.NewReader(body))
	if err != nil {
		return nil, logging.NewOperationError("client.build_request", "", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		wrapped := logging.NewOperationError("client.submit", "", err)
		p.logger.Error("submission failed", zap.Error(wrapped))
		return nil, wrapped
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, 32<<20))
	if err != nil {
		return nil, logging.NewOperationError("client.read_response", "", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		var errResp models.ErrorResponse
		message := fmt.Sprintf("unexpected status %d", httpResp.StatusCode)
		if unmarshalErr := json.Unmarshal(respBody, &errResp); unmarshalErr == nil && errResp.Error != "" {
			message = errResp.Error
		}
		p.logger.Warn("service rejected capture",
			zap.Int("status", httpResp.StatusCode),
			zap.String("message", message))
		return nil, &ServiceError{Status: httpResp.StatusCode, Message: message}
	}

	var resp models.ProcessingResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, logging.NewOperationError("client.decode_response", "", err)
	}
	if resp.ProcessedImage == "" {
		return nil, logging.NewOperationError("client.decode_response", "",
			fmt.Errorf("response missing processed image"))
	}
	return &resp, nil
}
