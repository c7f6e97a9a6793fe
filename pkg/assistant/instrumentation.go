package assistant

import "go.opentelemetry.io/otel"

const scopeName = "github.com/harunnryd/asisten/pkg/assistant"

var tracer = otel.Tracer(scopeName)
