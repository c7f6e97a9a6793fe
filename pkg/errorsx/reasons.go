package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	ReasonRecognitionStart  ReasonCode = "recognition_start"
	ReasonRecognitionStop   ReasonCode = "recognition_stop"
	ReasonRecognitionStream ReasonCode = "recognition_stream"

	ReasonGenerate          ReasonCode = "generate"
	ReasonGenerateRateLimit ReasonCode = "generate_rate_limit"

	ReasonToolCall    ReasonCode = "tool_call"
	ReasonToolTimeout ReasonCode = "tool_timeout"
	ReasonToolUnknown ReasonCode = "tool_unknown"

	ReasonSpeak            ReasonCode = "speak"
	ReasonSpeakConnect     ReasonCode = "speak_connect"
	ReasonSpeakRateLimit   ReasonCode = "speak_rate_limit"
	ReasonSpeakCircuitOpen ReasonCode = "speak_circuit_open"

	ReasonConfig  ReasonCode = "config"
	ReasonJournal ReasonCode = "journal"
)
