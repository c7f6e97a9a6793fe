package agent

import "go.opentelemetry.io/otel"

const scopeName = "github.com/harunnryd/asisten/pkg/agent"

var tracer = otel.Tracer(scopeName)
