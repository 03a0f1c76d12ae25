// File: internal/protocol/version.go
package protocol

// Client identity sent with every request. Resolved once at build time, never
// re-read per request.
const (
	ClientVersion  = "0.9.2"
	ClientLanguage = "go"
)

// Header names understood by the session service.
const (
	headerProjectID      = "x-wp-project-id"
	headerAPIKey         = "x-wp-api-key"
	headerSessionID      = "x-wp-session-id"
	headerModelAPIKey    = "x-model-api-key"
	headerStreamResponse = "x-stream-response"
	headerSentAt         = "x-sent-at"
	headerLanguage       = "x-language"
	headerClientVersion  = "x-client-version"
)
