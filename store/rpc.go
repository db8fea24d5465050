package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/stevemurr/termstore/document"
)

// RPC methods understood by Dispatch.
const (
	MethodCreate      = "create"
	MethodRead        = "read"
	MethodUpdate      = "update"
	MethodDelete      = "delete"
	MethodList        = "list"
	MethodCollections = "collections"
)

// RPC error codes. They carry the error taxonomy across the wire.
const (
	CodeNotFound      = "not_found"
	CodeAlreadyExists = "already_exists"
	CodeInvalid       = "invalid"
	CodeStorage       = "storage"
)

// ErrInvalidRequest marks an RPC request Dispatch cannot serve.
var ErrInvalidRequest = errors.New("invalid rpc request")

// RPCRequest is one storage call sent to a remote backend.
type RPCRequest struct {
	Method     string           `json:"method"`
	Collection string           `json:"collection,omitempty"`
	ID         string           `json:"id,omitempty"`
	Data       document.Payload `json:"data,omitempty"`
}

// RPCResponse carries whichever result the method produces.
type RPCResponse struct {
	Document    *document.Document  `json:"document,omitempty"`
	Documents   []document.Document `json:"documents,omitempty"`
	Collections []string            `json:"collections,omitempty"`
}

// RPCError is the body of a failed RPC call.
type RPCError struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

// ErrorCode maps an error onto its RPC code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrAlreadyExists):
		return CodeAlreadyExists
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrInvalidCollection),
		errors.Is(err, document.ErrInvalidPayload):
		return CodeInvalid
	default:
		return CodeStorage
	}
}

// Dispatch executes req against b.
func Dispatch(ctx context.Context, b Backend, req RPCRequest) (RPCResponse, error) {
	if req.Method != MethodCollections {
		if err := ValidateCollectionName(req.Collection); err != nil {
			return RPCResponse{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
	}
	switch req.Method {
	case MethodCreate:
		if req.ID == "" {
			return RPCResponse{}, fmt.Errorf("%w: id is required", ErrInvalidRequest)
		}
		data, err := document.Normalize(req.Data)
		if err != nil {
			return RPCResponse{}, err
		}
		doc := document.Document{ID: req.ID, Data: data}
		if err := b.Create(ctx, req.Collection, doc); err != nil {
			return RPCResponse{}, err
		}
		return RPCResponse{Document: &doc}, nil
	case MethodRead:
		doc, err := b.Get(ctx, req.Collection, req.ID)
		if err != nil {
			return RPCResponse{}, err
		}
		return RPCResponse{Document: doc}, nil
	case MethodUpdate:
		data, err := document.Normalize(req.Data)
		if err != nil {
			return RPCResponse{}, err
		}
		doc, err := b.Update(ctx, req.Collection, req.ID, data)
		if err != nil {
			return RPCResponse{}, err
		}
		return RPCResponse{Document: &doc}, nil
	case MethodDelete:
		doc, err := b.Delete(ctx, req.Collection, req.ID)
		if err != nil {
			return RPCResponse{}, err
		}
		return RPCResponse{Document: &doc}, nil
	case MethodList:
		docs, err := b.List(ctx, req.Collection)
		if err != nil {
			return RPCResponse{}, err
		}
		return RPCResponse{Documents: docs}, nil
	case MethodCollections:
		names, err := b.ListCollections(ctx)
		if err != nil {
			return RPCResponse{}, err
		}
		return RPCResponse{Collections: names}, nil
	default:
		return RPCResponse{}, fmt.Errorf("%w: unknown method %q", ErrInvalidRequest, req.Method)
	}
}
