package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/stevemurr/termstore/document"
)

const remoteBackend = "remote"

// RemoteStore is a Backend served by another termstore over its /rpc
// endpoint. Errors come back through the same taxonomy as local backends.
type RemoteStore struct {
	endpoint string
	client   *http.Client
}

// NewRemoteStore targets the server at baseURL. A nil client gets a default
// one with a 10 second timeout.
func NewRemoteStore(baseURL string, client *http.Client) (*RemoteStore, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, storageErr(remoteBackend, "open", fmt.Errorf("invalid remote url %q", baseURL))
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &RemoteStore{
		endpoint: strings.TrimRight(baseURL, "/") + "/rpc",
		client:   client,
	}, nil
}

func (r *RemoteStore) Close() error {
	r.client.CloseIdleConnections()
	return nil
}

func (r *RemoteStore) call(ctx context.Context, req RPCRequest) (RPCResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return RPCResponse{}, storageErr(remoteBackend, req.Method, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return RPCResponse{}, storageErr(remoteBackend, req.Method, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return RPCResponse{}, storageErr(remoteBackend, req.Method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		var rpcErr RPCError
		if err := json.Unmarshal(raw, &rpcErr); err != nil || rpcErr.Code == "" {
			return RPCResponse{}, storageErr(remoteBackend, req.Method,
				fmt.Errorf("rpc unsuccessful: %s: %s", resp.Status, strings.TrimSpace(string(raw))))
		}
		return RPCResponse{}, translateRPCError(req, rpcErr)
	}

	var out RPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return RPCResponse{}, storageErr(remoteBackend, req.Method, err)
	}
	return out, nil
}

func translateRPCError(req RPCRequest, e RPCError) error {
	switch e.Code {
	case CodeNotFound:
		return &NotFoundError{Collection: req.Collection, ID: req.ID}
	case CodeAlreadyExists:
		return &AlreadyExistsError{Collection: req.Collection, ID: req.ID}
	case CodeInvalid:
		return fmt.Errorf("%w: %s", ErrInvalidRequest, e.Detail)
	default:
		return storageErr(remoteBackend, req.Method, errors.New(e.Detail))
	}
}

func (r *RemoteStore) Create(ctx context.Context, collection string, doc document.Document) error {
	_, err := r.call(ctx, RPCRequest{Method: MethodCreate, Collection: collection, ID: doc.ID, Data: doc.Data})
	return err
}

func (r *RemoteStore) Get(ctx context.Context, collection, id string) (*document.Document, error) {
	resp, err := r.call(ctx, RPCRequest{Method: MethodRead, Collection: collection, ID: id})
	if err != nil {
		return nil, err
	}
	return resp.Document, nil
}

func (r *RemoteStore) Update(ctx context.Context, collection, id string, partial document.Payload) (document.Document, error) {
	resp, err := r.call(ctx, RPCRequest{Method: MethodUpdate, Collection: collection, ID: id, Data: partial})
	if err != nil {
		return document.Document{}, err
	}
	return derefDocument(resp, MethodUpdate)
}

func (r *RemoteStore) Delete(ctx context.Context, collection, id string) (document.Document, error) {
	resp, err := r.call(ctx, RPCRequest{Method: MethodDelete, Collection: collection, ID: id})
	if err != nil {
		return document.Document{}, err
	}
	return derefDocument(resp, MethodDelete)
}

func derefDocument(resp RPCResponse, op string) (document.Document, error) {
	if resp.Document == nil {
		return document.Document{}, storageErr(remoteBackend, op, errors.New("response carries no document"))
	}
	return *resp.Document, nil
}

func (r *RemoteStore) List(ctx context.Context, collection string) ([]document.Document, error) {
	resp, err := r.call(ctx, RPCRequest{Method: MethodList, Collection: collection})
	if err != nil {
		return nil, err
	}
	if resp.Documents == nil {
		return []document.Document{}, nil
	}
	return resp.Documents, nil
}

func (r *RemoteStore) ListCollections(ctx context.Context) ([]string, error) {
	resp, err := r.call(ctx, RPCRequest{Method: MethodCollections})
	if err != nil {
		return nil, err
	}
	return resp.Collections, nil
}
