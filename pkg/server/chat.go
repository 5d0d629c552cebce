package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/sableworks/bulwark/pkg/limits/ratelimit"
	"github.com/sableworks/bulwark/pkg/pipeline"
	"github.com/sableworks/bulwark/pkg/providers"
	"github.com/sableworks/bulwark/pkg/retry"
)

// maxRequestBody bounds the decoded request body.
const maxRequestBody = 10 << 20

// chatRequest is the wire shape of a completion request. It is the
// pipeline's request plus the stream flag, which is transport concern
// rather than pipeline concern.
type chatRequest struct {
	providers.ChatRequest
	Stream bool `json:"stream,omitempty"`
}

// errorBody is the error envelope, shaped like the OpenAI error format
// so existing client SDKs surface it cleanly.
type errorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code,omitempty"`
	} `json:"error"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	var body errorBody
	body.Error.Message = message
	body.Error.Type = "error"
	body.Error.Code = code

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) chatHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST")
			return
		}

		var req chatRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", fmt.Sprintf("cannot parse request body: %v", err))
			return
		}

		if req.Stream {
			s.serveStream(w, r, &req.ChatRequest)
			return
		}

		resp, err := s.pipe.Chat(r.Context(), &req.ChatRequest)
		if err != nil {
			s.writePipelineError(w, err)
			return
		}

		if resp.Cached {
			w.Header().Set("X-Cache", "hit")
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})
}

// serveStream relays pipeline chunks as server-sent events. Errors
// before the stream is established map to normal HTTP statuses; a
// failure mid-stream is delivered as a final error event because the
// status line has already been sent.
func (s *Server) serveStream(w http.ResponseWriter, r *http.Request, req *providers.ChatRequest) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming_unsupported", "response writer does not support streaming")
		return
	}

	chunks, err := s.pipe.StreamChat(r.Context(), req)
	if err != nil {
		s.writePipelineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	enc := json.NewEncoder(w)
	for chunk := range chunks {
		if chunk.Err != nil {
			fmt.Fprintf(w, "event: error\ndata: %s\n\n", jsonErrorLine(chunk.Err))
			flusher.Flush()
			return
		}
		if _, err := fmt.Fprint(w, "data: "); err != nil {
			return
		}
		if err := enc.Encode(chunk); err != nil {
			return
		}
		// Encode already wrote one newline; SSE events end with a blank
		// line.
		fmt.Fprint(w, "\n")
		flusher.Flush()
	}

	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func jsonErrorLine(err error) string {
	b, _ := json.Marshal(map[string]string{"message": err.Error()})
	return string(b)
}

// writePipelineError maps the error taxonomy onto HTTP statuses.
func (s *Server) writePipelineError(w http.ResponseWriter, err error) {
	var timeout *ratelimit.TimeoutError
	if errors.As(err, &timeout) {
		if timeout.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(timeout.RetryAfter.Seconds()+1)))
		}
		writeError(w, http.StatusTooManyRequests, "rate_limited", "request rate limit exceeded, retry later")
		return
	}

	var rateLimited *providers.RateLimitedError
	if errors.As(err, &rateLimited) {
		if rateLimited.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(rateLimited.RetryAfter.Seconds()+1)))
		}
		writeError(w, http.StatusTooManyRequests, "rate_limited", err.Error())
		return
	}

	var validation *providers.ValidationError
	if errors.As(err, &validation) {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	if errors.Is(err, pipeline.ErrUnknownProvider) {
		writeError(w, http.StatusBadRequest, "unknown_provider", err.Error())
		return
	}

	var fatal *providers.FatalError
	if errors.As(err, &fatal) {
		switch fatal.Kind {
		case providers.FatalKindAuth:
			writeError(w, http.StatusUnauthorized, "authentication_failed", err.Error())
		case providers.FatalKindNotFound:
			writeError(w, http.StatusNotFound, "not_found", err.Error())
		default:
			writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		}
		return
	}

	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) {
		writeError(w, http.StatusBadGateway, "upstream_exhausted", err.Error())
		return
	}

	var transient *providers.TransientError
	if errors.As(err, &transient) {
		writeError(w, http.StatusBadGateway, "upstream_error", err.Error())
		return
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "timeout", "request timed out")
	case errors.Is(err, context.Canceled):
		// The client is gone; the status is best effort.
		writeError(w, 499, "client_closed_request", "request cancelled")
	default:
		s.logger.Error("unclassified pipeline error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "An internal error occurred. Please try again later.")
	}
}
