// Package queue carries parse requests over an asynq task queue. The
// enqueue side builds tasks from parser requests; the worker side runs them
// through a parser and stores the outcome as the task result.
package queue

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/MeKo-Tech/ocrparse/internal/parser"
)

// Task types.
const (
	TypeParse       = "document:parse"
	TypeParseFields = "document:parse_fields"
)

// ErrInvalidRequest is returned for a request that can never be parsed.
var ErrInvalidRequest = errors.New("invalid parse request")

// NewParseTask builds a full parse task for req.
func NewParseTask(req parser.Request, opts ...asynq.Option) (*asynq.Task, error) {
	return newTask(TypeParse, req, opts)
}

// NewParseFieldsTask builds a field-only parse task for req.
func NewParseFieldsTask(req parser.Request, opts ...asynq.Option) (*asynq.Task, error) {
	return newTask(TypeParseFields, req, opts)
}

func newTask(typename string, req parser.Request, opts []asynq.Option) (*asynq.Task, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", typename, err)
	}
	return asynq.NewTask(typename, payload, opts...), nil
}

// decodeRequest reads the request carried by task.
func decodeRequest(task *asynq.Task) (parser.Request, error) {
	var req parser.Request
	if err := json.Unmarshal(task.Payload(), &req); err != nil {
		return req, fmt.Errorf("%w: %s payload: %w", ErrInvalidRequest, task.Type(), err)
	}
	return req, validateRequest(req)
}

func validateRequest(req parser.Request) error {
	switch {
	case req.DocumentPath == "":
		return fmt.Errorf("%w: document path is required", ErrInvalidRequest)
	case req.MimeType == "":
		return fmt.Errorf("%w: mime type is required", ErrInvalidRequest)
	}
	return nil
}
