package provider

import "context"

// Params are the model parameters forwarded verbatim to the provider. The
// orchestrator never inspects them.
type Params struct {
	Model       string  `json:"model,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

// Invoker is the provider invocation contract. One adapter implements it per
// provider; the orchestrator is written once against this interface.
//
// Transform must fail with a *Error carrying KindTransient (timeout, throttle,
// server error) or KindFatal (auth, malformed request, content rejection).
// Provider-specific error types are mapped to one of the two kinds at the
// adapter boundary.
type Invoker interface {
	Transform(ctx context.Context, chunkText, instructions string, params Params) (string, error)
}

// Func adapts a plain function to the Invoker interface.
type Func func(ctx context.Context, chunkText, instructions string, params Params) (string, error)

func (f Func) Transform(ctx context.Context, chunkText, instructions string, params Params) (string, error) {
	return f(ctx, chunkText, instructions, params)
}
