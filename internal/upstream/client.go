// internal/upstream/client.go
package upstream

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"go.uber.org/zap"

	"github.com/xkilldash9x/chatrelay/api/schemas"
	"github.com/xkilldash9x/chatrelay/internal/config"
)

// statusChallenge is the status the upstream uses to demand verification.
const statusChallenge = http.StatusTeapot

// readChunkSize is the read granularity when draining the stream.
const readChunkSize = 4096

// chatPayload is the request body of the replayed chat call. The capability
// flags are fixed; the page always sends them this way.
type chatPayload struct {
	Model                string                `json:"model"`
	Messages             []schemas.ChatMessage `json:"messages"`
	CanUseTools          bool                  `json:"canUseTools"`
	CanUseApproxLocation bool                  `json:"canUseApproxLocation"`
}

// Client replays the browser's internal chat call outside the browser, using
// captured session headers, and decodes the streamed reply into one answer.
type Client struct {
	endpoint string
	http     *http.Client
	logger   *zap.Logger
}

func NewClient(cfg config.UpstreamConfig, target config.TargetConfig, logger *zap.Logger) *Client {
	return &Client{
		endpoint: target.APIEndpoint,
		http: &http.Client{
			Timeout: cfg.Timeout,
			// The captured headers carry the session cookie verbatim; a
			// redirect would leak it to a different URL.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: logger.Named("upstream"),
	}
}

// Send POSTs one chat request with the given captured headers and returns the
// concatenated answer text.
//
// Error classes: ErrChallengeRequired for the challenge status or a
// challenge-class stream event, *UpstreamError for other HTTP rejections,
// *TransportError for mid-stream network failures.
func (c *Client) Send(ctx context.Context, headers map[string]string, req *schemas.ChatRequest) (string, error) {
	body, err := json.Marshal(chatPayload{
		Model:                req.Model,
		Messages:             req.Messages,
		CanUseTools:          true,
		CanUseApproxLocation: false,
	})
	if err != nil {
		return "", fmt.Errorf("encoding chat payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building upstream request: %w", err)
	}

	for name, value := range FilterHeaders(headers) {
		httpReq.Header.Set(name, value)
	}
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == statusChallenge {
		c.logger.Info("Upstream demanded challenge verification",
			zap.Int("status", resp.StatusCode))
		return "", ErrChallengeRequired
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &UpstreamError{Status: resp.StatusCode}
	}

	reader, err := decodeBody(resp)
	if err != nil {
		return "", &TransportError{Err: err}
	}

	answer, err := c.drainStream(reader)
	if err != nil {
		return "", err
	}

	c.logger.Debug("Upstream stream complete",
		zap.Int("answer_len", len(answer)),
		zap.Duration("elapsed", time.Since(start)))
	return answer, nil
}

// drainStream feeds the body through the line decoder until a terminal event
// or EOF. Natural EOF without an explicit end sentinel still returns the
// accumulated text.
func (c *Client) drainStream(r io.Reader) (string, error) {
	var (
		dec Decoder
		out strings.Builder
		buf = make([]byte, readChunkSize)
	)
	consume := func(events []Event) (string, bool, error) {
		for _, ev := range events {
			switch ev.Kind {
			case EventToken:
				out.WriteString(ev.Text)
			case EventChallengeRequired:
				return "", true, ErrChallengeRequired
			case EventEnd:
				return out.String(), true, nil
			}
		}
		return "", false, nil
	}

	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			if answer, terminal, err := consume(dec.Feed(buf[:n])); terminal {
				return answer, err
			}
		}
		if readErr == io.EOF {
			// A final line without its newline still counts.
			if answer, terminal, err := consume(dec.Flush()); terminal {
				return answer, err
			}
			return out.String(), nil
		}
		if readErr != nil {
			return "", &TransportError{Err: readErr}
		}
	}
}

// decodeBody unwraps Content-Encoding before line decoding. The transport
// only auto-decompresses gzip it negotiated itself.
func decodeBody(resp *http.Response) (io.Reader, error) {
	switch strings.ToLower(resp.Header.Get("Content-Encoding")) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("opening gzip stream: %w", err)
		}
		return gz, nil
	case "br":
		return brotli.NewReader(resp.Body), nil
	default:
		return resp.Body, nil
	}
}
