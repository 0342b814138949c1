package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	rpctypes "github.com/tendermint/tendermint/rpc/jsonrpc/types"

	"github.com/gogotex/gogotex/backend/notary-service/internal/apperr"
)

// JSON-RPC methods exposed by the ledger node.
const (
	rpcCall  = "ledger_call"
	rpcQuery = "ledger_query"

	// revertCode marks a deterministic contract rejection; Data holds the reason code.
	revertCode = -32000
)

const DefaultCallTimeout = 60 * time.Second

type rpcParams struct {
	Contract string   `json:"contract"`
	Method   string   `json:"method"`
	Args     []string `json:"args"`
	From     string   `json:"from,omitempty"`
	Value    string   `json:"value,omitempty"`
}

// RPCGateway speaks JSON-RPC 2.0 over HTTP POST to one ledger endpoint bound
// to one contract address.
type RPCGateway struct {
	endpoint string
	contract string
	client   *http.Client
	nextID   atomic.Int64
}

func NewRPCGateway(endpoint, contract string, timeout time.Duration) *RPCGateway {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return &RPCGateway{
		endpoint: endpoint,
		contract: contract,
		client:   &http.Client{Timeout: timeout},
	}
}

func (g *RPCGateway) Contract() string { return g.contract }

func (g *RPCGateway) Call(ctx context.Context, req Request) (*Receipt, error) {
	var rc Receipt
	p := rpcParams{Contract: g.contract, Method: req.Method, Args: req.Args, From: req.From, Value: req.Value}
	if err := g.do(ctx, rpcCall, p, &rc); err != nil {
		return nil, err
	}
	return &rc, nil
}

func (g *RPCGateway) Query(ctx context.Context, method string, args []string, out interface{}) error {
	return g.do(ctx, rpcQuery, rpcParams{Contract: g.contract, Method: method, Args: args}, out)
}

func (g *RPCGateway) do(ctx context.Context, rpcMethod string, params rpcParams, out interface{}) error {
	payload, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	id := rpctypes.JSONRPCIntID(g.nextID.Add(1))
	body, err := json.Marshal(rpctypes.NewRPCRequest(id, rpcMethod, payload))
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	hreq.Header.Set("Content-Type", "application/json")
	resp, err := g.client.Do(hreq)
	if err != nil {
		return apperr.Upstream(params.Method, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperr.Upstream(params.Method, err)
	}
	if resp.StatusCode >= 500 {
		return apperr.Upstream(params.Method, fmt.Errorf("ledger http status %d", resp.StatusCode))
	}

	var rr rpctypes.RPCResponse
	if err := json.Unmarshal(raw, &rr); err != nil {
		return apperr.Upstream(params.Method, fmt.Errorf("decode response: %w", err))
	}
	if rr.Error != nil {
		if rr.Error.Code == revertCode {
			if known := apperr.FromCode(rr.Error.Data, rr.Error.Message); known != nil {
				return known
			}
		}
		return apperr.Upstream(params.Method, rr.Error)
	}
	if got, ok := rr.ID.(rpctypes.JSONRPCIntID); !ok || got != id {
		return apperr.Upstream(params.Method, fmt.Errorf("response id %v does not match request id %d", rr.ID, id))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(rr.Result, out); err != nil {
		return apperr.Upstream(params.Method, fmt.Errorf("decode result: %w", err))
	}
	return nil
}

// RPCHandler exposes any Gateway as a JSON-RPC endpoint. The dev ledger command
// serves the simulator through it and tests use it behind httptest.
func RPCHandler(gw Gateway) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpctypes.RPCRequest
		var resp rpctypes.RPCResponse
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeRPC(w, rpctypes.RPCParseError(err))
			return
		}
		var p rpcParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			writeRPC(w, rpctypes.RPCInvalidParamsError(req.ID, err))
			return
		}

		switch req.Method {
		case rpcCall:
			rc, err := gw.Call(r.Context(), Request{Method: p.Method, Args: p.Args, From: p.From, Value: p.Value})
			if err != nil {
				resp = errorResponse(req, err)
				break
			}
			out, err := json.Marshal(rc)
			if err != nil {
				resp = rpctypes.RPCInternalError(req.ID, err)
				break
			}
			resp = rpctypes.RPCResponse{JSONRPC: "2.0", ID: req.ID, Result: out}
		case rpcQuery:
			var out json.RawMessage
			if err := gw.Query(r.Context(), p.Method, p.Args, &out); err != nil {
				resp = errorResponse(req, err)
			} else {
				resp = rpctypes.RPCResponse{JSONRPC: "2.0", ID: req.ID, Result: out}
			}
		default:
			resp = rpctypes.RPCMethodNotFoundError(req.ID)
		}
		writeRPC(w, resp)
	})
}

func errorResponse(req rpctypes.RPCRequest, err error) rpctypes.RPCResponse {
	if code := apperr.CodeOf(err); code != "" && apperr.KindOf(err) != apperr.KindUpstream {
		return rpctypes.NewRPCErrorResponse(req.ID, revertCode, err.Error(), code)
	}
	return rpctypes.RPCInternalError(req.ID, err)
}

func writeRPC(w http.ResponseWriter, resp rpctypes.RPCResponse) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
