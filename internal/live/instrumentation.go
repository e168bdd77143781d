package live

import (
	"go.opentelemetry.io/otel"
)

const scopeName = "github.com/lexiqai/jarvis-gateway/internal/live"

var tracer = otel.Tracer(scopeName)
