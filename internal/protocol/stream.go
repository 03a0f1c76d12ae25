// File: internal/protocol/stream.go
package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/kfalter89/webpilot/api/schemas"
)

// dataPrefix is the server-sent-event field prefix carrying a payload.
const dataPrefix = "data: "

// recordSeparator delimits complete records in the streamed body.
const recordSeparator = "\n\n"

// knownServerInternalLogs are log lines the hosted runtime emits for its own
// bookkeeping. They carry no meaning outside the hosted context and are
// suppressed rather than forwarded to the caller's logger.
var knownServerInternalLogs = []string{
	"attaching debugger session",
	"proxy heartbeat",
}

// errStreamDone is an internal sentinel: a terminal record was decoded and no
// further chunks should be read.
var errStreamDone = errors.New("stream finished")

// decodeStream consumes the response body incrementally, splitting on the SSE
// record separator and retaining trailing partial records between chunks. It
// returns the result payload of the first "finished" system event.
//
// A "system" record with status "error" fails the call with the server's
// message as a plain error. A malformed record fails with
// ResponseParseError. A stream that ends without a terminal event fails with
// ServerError, after one final attempt to parse whatever partial record
// remains buffered.
func decodeStream(ctx context.Context, body io.Reader, logger *zap.Logger) (json.RawMessage, error) {
	var (
		buffer strings.Builder
		chunk  = make([]byte, 4096)
	)

	pending := ""
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, readErr := body.Read(chunk)
		if n > 0 {
			buffer.Reset()
			buffer.WriteString(pending)
			buffer.Write(chunk[:n])
			pending = buffer.String()

			for {
				idx := strings.Index(pending, recordSeparator)
				if idx < 0 {
					break
				}
				record := pending[:idx]
				pending = pending[idx+len(recordSeparator):]

				res, err := handleRecord(record, logger)
				if err == errStreamDone {
					return res, nil
				}
				if err != nil {
					return nil, err
				}
			}
		}

		if readErr != nil {
			if readErr != io.EOF {
				return nil, readErr
			}
			break
		}
	}

	// The stream closed without a finished event. The terminal record may sit
	// in the buffer without a trailing separator; give it one last chance.
	if rest := strings.TrimSpace(pending); rest != "" {
		res, err := handleRecord(rest, logger)
		if err == errStreamDone {
			return res, nil
		}
		if err != nil {
			return nil, err
		}
	}

	return nil, &ServerError{Message: "stream ended without completion signal"}
}

// handleRecord processes one complete record. It returns errStreamDone with
// the result payload when the record is a terminal system event.
func handleRecord(record string, logger *zap.Logger) (json.RawMessage, error) {
	record = strings.TrimSpace(record)
	if !strings.HasPrefix(record, dataPrefix) {
		// Comments, retry hints and other SSE fields are not payload.
		return nil, nil
	}
	payload := record[len(dataPrefix):]

	var envelope schemas.StreamEnvelope
	if err := jsoniter.UnmarshalFromString(payload, &envelope); err != nil {
		return nil, &ResponseParseError{Record: payload, Err: err}
	}

	switch envelope.Type {
	case "system":
		var event schemas.SystemEvent
		if err := jsoniter.Unmarshal(envelope.Data, &event); err != nil {
			return nil, &ResponseParseError{Record: payload, Err: err}
		}
		switch event.Status {
		case "error":
			// Raised plain so callers see the server's message unchanged.
			return nil, errors.New(event.Error)
		case "finished":
			return event.Result, errStreamDone
		default:
			logger.Debug("Ignoring system event with unknown status", zap.String("status", event.Status))
		}

	case "log":
		var event schemas.LogEvent
		if err := jsoniter.Unmarshal(envelope.Data, &event); err != nil {
			return nil, &ResponseParseError{Record: payload, Err: err}
		}
		if !isServerInternalLog(event.Message) {
			logger.Info("Remote session log",
				zap.String("message", event.Message),
				zap.String("level", event.Level),
				zap.String("category", event.Category))
		}

	default:
		logger.Debug("Ignoring stream record with unknown type", zap.String("type", envelope.Type))
	}

	return nil, nil
}

func isServerInternalLog(message string) bool {
	lowered := strings.ToLower(message)
	for _, internal := range knownServerInternalLogs {
		if strings.Contains(lowered, internal) {
			return true
		}
	}
	return false
}
