package compress

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// Compressor is an opaque, round-trippable transform over handoff context.
type Compressor interface {
	Compress(text string) ([]byte, error)
	Decompress(data []byte) (string, error)
}

// Frame markers. The first payload byte tells Decompress how to read the rest.
const (
	framePlain byte = 0x00
	frameGzip  byte = 0x01
)

// GzipConfig tunes the gated gzip codec.
type GzipConfig struct {
	// MinTokens is the gate: payloads counting fewer tokens are framed
	// uncompressed. Zero keeps the default.
	MinTokens int `json:"min_tokens" yaml:"min_tokens"`

	// Encoding names the tiktoken encoding backing the gate.
	Encoding string `json:"encoding" yaml:"encoding"`
}

// DefaultGzipConfig returns the default codec configuration.
func DefaultGzipConfig() *GzipConfig {
	return &GzipConfig{
		MinTokens: 256,
		Encoding:  "cl100k_base",
	}
}

// GzipCompressor implements Compressor with a token-count gate in front of
// gzip. Counter failures degrade to a character estimate, never to a failed
// handoff.
type GzipCompressor struct {
	config   *GzipConfig
	counter  TokenCounter
	estimate EstimateCounter
	logger   *zap.Logger
}

// NewGzipCompressor creates the codec. Config, counter, and logger may be
// nil; a nil counter selects tiktoken with the configured encoding.
func NewGzipCompressor(config *GzipConfig, counter TokenCounter, logger *zap.Logger) *GzipCompressor {
	if config == nil {
		config = DefaultGzipConfig()
	}
	if config.MinTokens <= 0 {
		config.MinTokens = DefaultGzipConfig().MinTokens
	}
	if counter == nil {
		counter = NewTiktokenCounter(config.Encoding)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GzipCompressor{
		config:  config,
		counter: counter,
		logger:  logger.With(zap.String("component", "gzip_compressor")),
	}
}

// Compress frames the text, gzipping it only when it clears the token gate.
func (g *GzipCompressor) Compress(text string) ([]byte, error) {
	if g.countTokens(text) < g.config.MinTokens {
		framed := make([]byte, 0, len(text)+1)
		framed = append(framed, framePlain)
		return append(framed, text...), nil
	}

	var buf bytes.Buffer
	buf.WriteByte(frameGzip)
	writer := gzip.NewWriter(&buf)
	if _, err := writer.Write([]byte(text)); err != nil {
		return nil, fmt.Errorf("gzip write: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("gzip close: %w", err)
	}

	g.logger.Debug("context compressed",
		zap.Int("raw_bytes", len(text)),
		zap.Int("framed_bytes", buf.Len()))
	return buf.Bytes(), nil
}

// Decompress restores the original text from either frame.
func (g *GzipCompressor) Decompress(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty payload")
	}

	switch data[0] {
	case framePlain:
		return string(data[1:]), nil
	case frameGzip:
		reader, err := gzip.NewReader(bytes.NewReader(data[1:]))
		if err != nil {
			return "", fmt.Errorf("gzip open: %w", err)
		}
		defer reader.Close()
		raw, err := io.ReadAll(reader)
		if err != nil {
			return "", fmt.Errorf("gzip read: %w", err)
		}
		return string(raw), nil
	default:
		return "", fmt.Errorf("unknown frame marker 0x%02x", data[0])
	}
}

func (g *GzipCompressor) countTokens(text string) int {
	count, err := g.counter.Count(text)
	if err != nil {
		g.logger.Warn("token count failed, falling back to estimate", zap.Error(err))
		count, _ = g.estimate.Count(text)
	}
	return count
}
