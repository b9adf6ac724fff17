package observer

import "go.opentelemetry.io/otel/attribute"

// Attribute keys for relay observability spans and metrics.
var (
	AttrLLMModel    = attribute.Key("llm.model")
	AttrLLMProvider = attribute.Key("llm.provider")

	AttrTokensInput  = attribute.Key("llm.tokens.input")
	AttrTokensOutput = attribute.Key("llm.tokens.output")

	AttrPushUser  = attribute.Key("push.user")
	AttrPushBytes = attribute.Key("push.bytes")
)
