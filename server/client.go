package server

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
)

// handlerOptions registers the jscore codecs on a handler.
func handlerOptions() []connect.HandlerOption {
	return []connect.HandlerOption{
		connect.WithCodec(CBORCodec{}),
		connect.WithCodec(JSONCodec{}),
	}
}

// Client calls a jscore server. It speaks CBOR unless opts select another codec.
type Client struct {
	evaluate      *connect.Client[EvaluateRequest, EvaluateResponse]
	checkSyntax   *connect.Client[CheckSyntaxRequest, CheckSyntaxResponse]
	createSession *connect.Client[CreateSessionRequest, CreateSessionResponse]
	destroy       *connect.Client[DestroySessionRequest, DestroySessionResponse]
	releaseHandle *connect.Client[ReleaseHandleRequest, ReleaseHandleResponse]
}

// NewClient creates a client for the server at baseURL, e.g.
// "http://localhost:4567". A nil httpClient means http.DefaultClient.
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(CBORCodec{})}, opts...)
	return &Client{
		evaluate: connect.NewClient[EvaluateRequest, EvaluateResponse](
			httpClient, baseURL+EvalServiceEvaluateProcedure, opts...),
		checkSyntax: connect.NewClient[CheckSyntaxRequest, CheckSyntaxResponse](
			httpClient, baseURL+EvalServiceCheckSyntaxProcedure, opts...),
		createSession: connect.NewClient[CreateSessionRequest, CreateSessionResponse](
			httpClient, baseURL+SessionServiceCreateProcedure, opts...),
		destroy: connect.NewClient[DestroySessionRequest, DestroySessionResponse](
			httpClient, baseURL+SessionServiceDestroyProcedure, opts...),
		releaseHandle: connect.NewClient[ReleaseHandleRequest, ReleaseHandleResponse](
			httpClient, baseURL+SessionServiceReleaseHandleProcedure, opts...),
	}
}

func (c *Client) Evaluate(ctx context.Context, req *EvaluateRequest) (*EvaluateResponse, error) {
	resp, err := c.evaluate.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *Client) CheckSyntax(ctx context.Context, req *CheckSyntaxRequest) (*CheckSyntaxResponse, error) {
	resp, err := c.checkSyntax.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// CreateSession returns the new session's ID.
func (c *Client) CreateSession(ctx context.Context, name string) (string, error) {
	resp, err := c.createSession.CallUnary(ctx, connect.NewRequest(&CreateSessionRequest{Name: name}))
	if err != nil {
		return "", err
	}
	return resp.Msg.SessionID, nil
}

// DestroySession returns the number of handles the server released.
func (c *Client) DestroySession(ctx context.Context, id string) (int, error) {
	resp, err := c.destroy.CallUnary(ctx, connect.NewRequest(&DestroySessionRequest{SessionID: id}))
	if err != nil {
		return 0, err
	}
	return resp.Msg.ReleasedHandles, nil
}

func (c *Client) ReleaseHandle(ctx context.Context, handle string) error {
	_, err := c.releaseHandle.CallUnary(ctx, connect.NewRequest(&ReleaseHandleRequest{Handle: handle}))
	return err
}
