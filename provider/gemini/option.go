package gemini

// Option configures a Gemini provider.
type Option func(*Gemini)

// WithTemperature sets the sampling temperature (default 0.1).
func WithTemperature(t float64) Option {
	return func(g *Gemini) { g.temperature = t }
}

// WithTopP sets nucleus sampling top-p (default 0.9).
func WithTopP(p float64) Option {
	return func(g *Gemini) { g.topP = p }
}

// WithMaxOutputTokens caps the generated response length.
// Only sent when explicitly set; omitted by default.
func WithMaxOutputTokens(n int) Option {
	return func(g *Gemini) { g.maxOutputTokens = n }
}

// WithSafetySettings sets the Gemini safety filter entries, passed through to
// the API verbatim. Omitted by default (API defaults apply).
func WithSafetySettings(settings []SafetySetting) Option {
	return func(g *Gemini) { g.safetySettings = settings }
}
