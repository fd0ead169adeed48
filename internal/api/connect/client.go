package connect

import (
	"context"
	"strings"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ErrUnknownAction is returned for action names missing from Actions.
var ErrUnknownAction = errors.New("unknown action")

// Client is a PlayerService client. Every request carries the control token.
type Client struct {
	token   string
	status  *connect.Client[emptypb.Empty, structpb.Struct]
	actions map[string]*connect.Client[emptypb.Empty, structpb.Struct]
	seek    *connect.Client[wrapperspb.DoubleValue, structpb.Struct]
	slideTo *connect.Client[wrapperspb.DoubleValue, structpb.Struct]
	watch   *connect.Client[emptypb.Empty, structpb.Struct]
}

// NewClient creates a PlayerService client for the server at baseURL.
func NewClient(httpClient connect.HTTPClient, baseURL, token string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	c := &Client{
		token:   token,
		status:  connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+PlayerServiceStatusProcedure, opts...),
		actions: make(map[string]*connect.Client[emptypb.Empty, structpb.Struct], len(Actions)),
		seek:    connect.NewClient[wrapperspb.DoubleValue, structpb.Struct](httpClient, baseURL+PlayerServiceSeekProcedure, opts...),
		slideTo: connect.NewClient[wrapperspb.DoubleValue, structpb.Struct](httpClient, baseURL+PlayerServiceSlidingEndProcedure, opts...),
		watch:   connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+PlayerServiceWatchProcedure, opts...),
	}
	for name, procedure := range Actions {
		c.actions[name] = connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+procedure, opts...)
	}
	return c
}

// Status returns the player status.
func (c *Client) Status(ctx context.Context) (*structpb.Struct, error) {
	resp, err := c.status.CallUnary(ctx, c.empty())
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// Do runs a parameterless action such as "next" or "like".
func (c *Client) Do(ctx context.Context, action string) (*structpb.Struct, error) {
	client, ok := c.actions[action]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownAction, "%q", action)
	}
	resp, err := client.CallUnary(ctx, c.empty())
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// Seek seeks the current track to seconds.
func (c *Client) Seek(ctx context.Context, seconds float64) (*structpb.Struct, error) {
	resp, err := c.seek.CallUnary(ctx, c.position(seconds))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// SlidingEnd commits a scrub at seconds.
func (c *Client) SlidingEnd(ctx context.Context, seconds float64) (*structpb.Struct, error) {
	resp, err := c.slideTo.CallUnary(ctx, c.position(seconds))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// Watch calls fn for every notification until the stream ends, ctx is
// cancelled or fn returns an error.
func (c *Client) Watch(ctx context.Context, fn func(*structpb.Struct) error) error {
	stream, err := c.watch.CallServerStream(ctx, c.empty())
	if err != nil {
		return err
	}
	defer stream.Close()

	for stream.Receive() {
		if err := fn(stream.Msg()); err != nil {
			return err
		}
	}
	return stream.Err()
}

func (c *Client) empty() *connect.Request[emptypb.Empty] {
	req := connect.NewRequest(&emptypb.Empty{})
	req.Header().Set(ControlTokenHeader, c.token)
	return req
}

func (c *Client) position(seconds float64) *connect.Request[wrapperspb.DoubleValue] {
	req := connect.NewRequest(wrapperspb.Double(seconds))
	req.Header().Set(ControlTokenHeader, c.token)
	return req
}
