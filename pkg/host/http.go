package host

import (
	"context"
	"io"
	"net/http"
	"net/url"

	pypeserrors "github.com/pypes-run/pypes/pkg/errors"
)

// OutgoingHandler implements the trusted side of
// wasi:http/outgoing-handler, subject to a fixed hostname allowlist.
type OutgoingHandler struct {
	allowlist  map[string]struct{}
	maxPayload int
	client     *http.Client
}

// NewOutgoingHandler creates an OutgoingHandler gated by cfg.HTTPAllowlist.
func NewOutgoingHandler(cfg Config) *OutgoingHandler {
	allow := make(map[string]struct{}, len(cfg.HTTPAllowlist))
	for _, host := range cfg.HTTPAllowlist {
		allow[host] = struct{}{}
	}
	return &OutgoingHandler{
		allowlist:  allow,
		maxPayload: cfg.MaxPayloadSize,
		client:     &http.Client{},
	}
}

// Get issues an allowlisted outgoing GET request and returns its body.
func (h *OutgoingHandler) Get(ctx context.Context, rawURL string) ([]byte, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, pypeserrors.New(pypeserrors.ErrCodeInstantiationFailed, "malformed outgoing request URL").
			WithDetail("url", rawURL)
	}
	if _, ok := h.allowlist[parsed.Hostname()]; !ok {
		return nil, pypeserrors.New(pypeserrors.ErrCodeInstantiationFailed, "outgoing host not allowlisted").
			WithDetail("host", parsed.Hostname())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, pypeserrors.New(pypeserrors.ErrCodeInstantiationFailed, "failed to build outgoing request").
			WithDetail("url", rawURL).WithDetail("cause", err.Error())
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, pypeserrors.New(pypeserrors.ErrCodeInstantiationFailed, "outgoing request failed").
			WithDetail("url", rawURL).WithDetail("cause", err.Error())
	}
	defer resp.Body.Close()

	var reader io.Reader = resp.Body
	if h.maxPayload > 0 {
		reader = io.LimitReader(resp.Body, int64(h.maxPayload)+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, pypeserrors.New(pypeserrors.ErrCodeInstantiationFailed, "failed to read outgoing response").
			WithDetail("url", rawURL).WithDetail("cause", err.Error())
	}
	if h.maxPayload > 0 && len(body) > h.maxPayload {
		return nil, pypeserrors.PayloadTooLarge("wasi:http/outgoing-handler.get", len(body), h.maxPayload)
	}
	return body, nil
}
