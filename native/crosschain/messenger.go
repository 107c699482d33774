package crosschain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// FlatFee quotes the same fee for every message.
type FlatFee struct {
	Native *big.Int
	Token  *big.Int
}

func (f FlatFee) quote(payInNative bool) *big.Int {
	fee := f.Token
	if payInNative {
		fee = f.Native
	}
	if fee == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(fee)
}

// LoopbackMessenger delivers messages in-process. Tests and single-host
// deployments wire two nodes together with it.
type LoopbackMessenger struct {
	fee     FlatFee
	mu      sync.Mutex
	deliver func(context.Context, Message) error
	sent    []Message
}

func NewLoopbackMessenger(fee FlatFee) *LoopbackMessenger {
	return &LoopbackMessenger{fee: fee}
}

// Connect sets the receiving side, typically the peer node's Receive.
func (l *LoopbackMessenger) Connect(deliver func(context.Context, Message) error) {
	l.mu.Lock()
	l.deliver = deliver
	l.mu.Unlock()
}

func (l *LoopbackMessenger) Quote(_ string, _ uint64, _ []byte, payInNative bool) (*big.Int, error) {
	return l.fee.quote(payInNative), nil
}

func (l *LoopbackMessenger) Send(ctx context.Context, msg Message) error {
	l.mu.Lock()
	deliver := l.deliver
	l.sent = append(l.sent, msg)
	l.mu.Unlock()
	if deliver == nil {
		return nil
	}
	return deliver(ctx, msg)
}

// Sent returns every message handed to the messenger.
func (l *LoopbackMessenger) Sent() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Message(nil), l.sent...)
}

// HTTPConfig points the messenger at the peer daemon.
type HTTPConfig struct {
	PeerURL string
	Token   string
	Timeout time.Duration
	Fee     FlatFee
}

// HTTPMessenger posts the JSON envelope to the peer's receive endpoint.
type HTTPMessenger struct {
	url        string
	token      string
	fee        FlatFee
	httpClient *http.Client
}

func NewHTTPMessenger(cfg HTTPConfig) (*HTTPMessenger, error) {
	base := strings.TrimSpace(cfg.PeerURL)
	if base == "" {
		return nil, fmt.Errorf("crosschain: peer url required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPMessenger{
		url:   strings.TrimRight(base, "/") + "/v1/crosschain/receive",
		token: strings.TrimSpace(cfg.Token),
		fee:   cfg.Fee,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}, nil
}

func (h *HTTPMessenger) Quote(_ string, _ uint64, _ []byte, payInNative bool) (*big.Int, error) {
	return h.fee.quote(payInNative), nil
}

func (h *HTTPMessenger) Send(ctx context.Context, msg Message) error {
	if h == nil {
		return ErrNoMessenger
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("crosschain: encode: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("crosschain: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("crosschain: send: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("crosschain: peer returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}
