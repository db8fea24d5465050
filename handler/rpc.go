package handler

import (
	"net/http"

	"github.com/stevemurr/termstore/store"
)

// RPC serves storage calls for store.RemoteStore against b. It speaks to the
// backend directly, so writes arriving here skip the collections and indexes
// of this server.
func RPC(b store.Backend) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req store.RPCRequest
		if err := readJSON(r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, store.RPCError{Code: store.CodeInvalid, Detail: "invalid JSON: " + err.Error()})
			return
		}
		resp, err := store.Dispatch(r.Context(), b, req)
		if err != nil {
			code := store.ErrorCode(err)
			writeJSON(w, rpcStatus(code), store.RPCError{Code: code, Detail: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, resp)
	})
}

func rpcStatus(code string) int {
	switch code {
	case store.CodeNotFound:
		return http.StatusNotFound
	case store.CodeAlreadyExists:
		return http.StatusConflict
	case store.CodeInvalid:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
