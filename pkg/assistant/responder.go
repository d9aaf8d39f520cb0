package assistant

import "context"

// StaticResponder is a placeholder Responder for deployments where the
// model gateway is not wired yet. It acknowledges the prompt and bills the
// estimate, which keeps the governance path fully exercised.
type StaticResponder struct{}

// Respond returns a canned acknowledgement
func (StaticResponder) Respond(_ context.Context, prompt string) (string, int64, error) {
	return "The assistant is not configured for this environment.", estimateTokens(prompt), nil
}
