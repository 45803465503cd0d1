package optimizer

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
)

// thinkingCtxKey carries the per-request thinking flag down to the
// HTTP transport.
type thinkingCtxKey struct{}

func withThinking(ctx context.Context, enabled bool) context.Context {
	return context.WithValue(ctx, thinkingCtxKey{}, enabled)
}

// thinkingTransport injects the enable_thinking field qwen-style
// backends read from the chat completion body. The OpenAI client has
// no slot for non-standard request fields, so the body is patched on
// the wire. Backends that do not know the field ignore it.
type thinkingTransport struct {
	base http.RoundTripper
}

func (t *thinkingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	enabled, ok := req.Context().Value(thinkingCtxKey{}).(bool)
	if !ok || req.Body == nil {
		return t.base.RoundTrip(req)
	}

	body, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return nil, err
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err == nil {
		payload["enable_thinking"] = json.RawMessage(strconv.FormatBool(enabled))
		if patched, err := json.Marshal(payload); err == nil {
			body = patched
		}
	}

	req.Body = io.NopCloser(bytes.NewReader(body))
	req.ContentLength = int64(len(body))
	return t.base.RoundTrip(req)
}
