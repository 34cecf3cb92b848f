package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"
	"github.com/klauspost/compress/gzhttp"
	"golang.org/x/time/rate"

	"github.com/mantlenetworkio/evm-gateway/op-gateway/prover"
)

// CCIPRoute is the path prefix the CCIP-read handler is mounted on.
const CCIPRoute = "/ccip/"

// maxBodyBytes bounds POST bodies.
const maxBodyBytes = 1 << 20

type ccipRequest struct {
	Sender string `json:"sender"`
	Data   string `json:"data"`
}

type ccipResponse struct {
	Data hexutil.Bytes `json:"data"`
}

type ccipError struct {
	Message string `json:"message"`
}

// CCIPHandler serves EIP-3668 gateway requests:
// GET /ccip/{sender}/{data}.json and POST /ccip/ with a {"sender","data"} body.
// Responses are gzipped for clients that accept it.
type CCIPHandler struct {
	frontend
	handler http.Handler
}

var _ http.Handler = (*CCIPHandler)(nil)

func NewCCIPHandler(log log.Logger, p Prover, limiter *rate.Limiter, m RequestMetricer) *CCIPHandler {
	h := &CCIPHandler{
		frontend: frontend{log: log, prover: p, limiter: limiter, metrics: m},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+CCIPRoute+"{sender}/{file}", h.handleGet)
	mux.HandleFunc("POST "+CCIPRoute+"{$}", h.handlePost)
	h.handler = gzhttp.GzipHandler(mux)
	return h
}

func (h *CCIPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.handler.ServeHTTP(w, r)
}

func (h *CCIPHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	data, ok := strings.CutSuffix(r.PathValue("file"), ".json")
	if !ok {
		writeJSON(w, http.StatusNotFound, ccipError{Message: "not found"})
		return
	}
	h.serve(w, r, r.PathValue("sender"), data)
}

func (h *CCIPHandler) handlePost(w http.ResponseWriter, r *http.Request) {
	var req ccipRequest
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err == nil {
		err = json.Unmarshal(body, &req)
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ccipError{Message: fmt.Sprintf("invalid request body: %v", err)})
		return
	}
	h.serve(w, r, req.Sender, req.Data)
}

func (h *CCIPHandler) serve(w http.ResponseWriter, r *http.Request, sender string, data string) {
	if !common.IsHexAddress(sender) {
		writeJSON(w, http.StatusBadRequest, ccipError{Message: fmt.Sprintf("invalid sender %q", sender)})
		return
	}
	calldata, err := hexutil.Decode(data)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ccipError{Message: fmt.Sprintf("invalid data: %v", err)})
		return
	}
	req, err := DecodeCalldata(calldata)
	if err != nil {
		writeJSON(w, statusOf(err), ccipError{Message: err.Error()})
		return
	}
	witness, err := h.createProofs(r.Context(), TransportCCIP, req)
	if err != nil {
		writeJSON(w, statusOf(err), ccipError{Message: err.Error()})
		return
	}
	out, err := EncodeResponse(witness)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ccipError{Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, ccipResponse{Data: out})
}

// statusOf maps a request failure to the HTTP status of the CCIP-read response.
func statusOf(err error) int {
	switch {
	case errors.Is(err, ErrUnknownSelector):
		return http.StatusNotFound
	case errors.Is(err, ErrMalformedCalldata):
		return http.StatusBadRequest
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case prover.Outcome(err) == prover.OutcomeInvalid:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
