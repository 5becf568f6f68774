// Package stream relays incremental answers from an Ollama-compatible generation backend.
package stream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/hyperjump/kbase/internal/models"
	"go.uber.org/zap"
)

// DefaultBaseURL is the local Ollama endpoint.
const DefaultBaseURL = "http://localhost:11434"

// maxLineSize bounds a single line of the streamed response.
const maxLineSize = 1024 * 1024

// GenerateOptions are sampling options forwarded to the backend.
type GenerateOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

// Proxy opens one streaming request per call. It holds no conversation state.
type Proxy struct {
	baseURL  string
	client   *http.Client
	defaults *GenerateOptions
	logger   *zap.Logger
}

// Option configures a Proxy.
type Option func(*Proxy)

// WithHTTPClient sets the HTTP client. The proxy itself never sets a timeout.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Proxy) {
		if client != nil {
			p.client = client
		}
	}
}

// WithDefaultOptions sets options sent when a call does not supply its own.
func WithDefaultOptions(opts *GenerateOptions) Option {
	return func(p *Proxy) { p.defaults = opts }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Proxy) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewProxy creates a proxy for the backend at baseURL.
func NewProxy(baseURL string, opts ...Option) *Proxy {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	p := &Proxy{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// BaseURL returns the backend address.
func (p *Proxy) BaseURL() string {
	return p.baseURL
}

type chatRequest struct {
	Model    string           `json:"model"`
	Messages []models.Message `json:"messages"`
	Stream   bool             `json:"stream"`
	Options  *GenerateOptions `json:"options,omitempty"`
}

type chatLine struct {
	Message *models.Message `json:"message"`
	Done    bool            `json:"done"`
}

type generateRequest struct {
	Model   string           `json:"model"`
	Prompt  string           `json:"prompt"`
	Stream  bool             `json:"stream"`
	Options *GenerateOptions `json:"options,omitempty"`
}

type generateLine struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Stream sends messages to /api/chat and yields each message.content fragment
// as it arrives. Backend failures are yielded as a single error fragment.
// The sequence is lazy and can be iterated once.
func (p *Proxy) Stream(ctx context.Context, model string, messages []models.Message) iter.Seq[string] {
	body := chatRequest{Model: model, Messages: messages, Stream: true, Options: p.defaults}
	return p.stream(ctx, "/api/chat", body, func(line []byte) (string, bool, error) {
		var l chatLine
		if err := json.Unmarshal(line, &l); err != nil {
			return "", false, err
		}
		if l.Message == nil {
			return "", l.Done, nil
		}
		return l.Message.Content, l.Done, nil
	})
}

// StreamPrompt sends a single prompt to /api/generate and yields each response
// fragment. opts overrides the proxy defaults when non-nil.
func (p *Proxy) StreamPrompt(ctx context.Context, model, prompt string, opts *GenerateOptions) iter.Seq[string] {
	if opts == nil {
		opts = p.defaults
	}
	body := generateRequest{Model: model, Prompt: prompt, Stream: true, Options: opts}
	return p.stream(ctx, "/api/generate", body, func(line []byte) (string, bool, error) {
		var l generateLine
		if err := json.Unmarshal(line, &l); err != nil {
			return "", false, err
		}
		return l.Response, l.Done, nil
	})
}

// Collect drains seq into a single string.
func Collect(seq iter.Seq[string]) string {
	var sb strings.Builder
	for fragment := range seq {
		sb.WriteString(fragment)
	}
	return sb.String()
}

type lineParser func(line []byte) (fragment string, done bool, err error)

func (p *Proxy) stream(ctx context.Context, path string, body any, parse lineParser) iter.Seq[string] {
	var used atomic.Bool
	return func(yield func(string) bool) {
		if used.Swap(true) {
			return
		}

		data, err := json.Marshal(body)
		if err != nil {
			yield(fmt.Sprintf("❌ Error: %v", err))
			return
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(data))
		if err != nil {
			yield(fmt.Sprintf("❌ Error: %v", err))
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := p.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Warn("generation backend unreachable", zap.String("url", p.baseURL), zap.Error(err))
			yield(unreachable(p.baseURL))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			p.logger.Warn("generation backend returned error", zap.Int("status", resp.StatusCode))
			yield(fmt.Sprintf("❌ Error: %d", resp.StatusCode))
			return
		}

		lines := newLineReader(resp.Body, maxLineSize)
		for {
			line, err := lines.next()
			if line = bytes.TrimSpace(line); len(line) > 0 {
				fragment, done, perr := parse(line)
				if perr != nil {
					p.logger.Debug("skipping malformed stream line", zap.Error(perr))
				} else {
					if fragment != "" && !yield(fragment) {
						return
					}
					if done {
						return
					}
				}
			}
			if err == nil {
				continue
			}
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				p.logger.Warn("generation stream interrupted", zap.Error(err))
				yield(interrupted(err))
			}
			return
		}
	}
}

// lineReader splits a stream on '\n'. Lines longer than max are dropped
// whole and reading resumes at the next line.
type lineReader struct {
	r     *bufio.Reader
	limit int
	long  []byte
}

func newLineReader(r io.Reader, limit int) *lineReader {
	return &lineReader{r: bufio.NewReaderSize(r, 64*1024), limit: limit}
}

// next returns the next line, terminator included, or nil for a dropped line.
// A nil error means more lines may follow; io.EOF comes with the final
// unterminated line, if any.
func (l *lineReader) next() ([]byte, error) {
	l.long = l.long[:0]
	oversized := false
	for {
		chunk, err := l.r.ReadSlice('\n')
		if errors.Is(err, bufio.ErrBufferFull) {
			if !oversized && len(l.long)+len(chunk) > l.limit {
				oversized = true
				l.long = l.long[:0]
			}
			if !oversized {
				l.long = append(l.long, chunk...)
			}
			continue
		}
		if !oversized && len(l.long)+len(chunk) > l.limit {
			oversized = true
		}
		if oversized {
			return nil, err
		}
		if len(l.long) > 0 {
			l.long = append(l.long, chunk...)
			return l.long, err
		}
		return chunk, err
	}
}

func interrupted(err error) string {
	return fmt.Sprintf("❌ Generation stream interrupted: %v", err)
}

func unreachable(baseURL string) string {
	return fmt.Sprintf("❌ Generation backend unreachable at %s: is `ollama serve` running?", baseURL)
}
