package lambda

import (
	"context"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
)

// Router dispatches API Gateway requests to the handler based on path.
// Supports:
//   - POST /challenge -> send a code for a login attempt
//   - POST /verify    -> submit a code for a login attempt
type Router struct {
	handler *Handler
}

// NewRouter creates a new Router for handler.
func NewRouter(handler *Handler) *Router {
	return &Router{handler: handler}
}

// Route handles an API Gateway v2 HTTP request and routes to the matching operation.
func (r *Router) Route(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	path := strings.TrimSuffix(req.RawPath, "/")
	method := strings.ToUpper(req.RequestContext.HTTP.Method)

	var handle func(context.Context, events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error)
	switch path {
	case "/challenge":
		handle = r.handler.HandleChallenge
	case "/verify":
		handle = r.handler.HandleVerify
	default:
		return errorResponse(http.StatusNotFound, "NOT_FOUND", "Unknown path: "+req.RawPath)
	}

	if method != http.MethodPost {
		resp, err := errorResponse(http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
			"Use POST for "+path)
		resp.Headers["Allow"] = http.MethodPost
		return resp, err
	}
	return handle(ctx, req)
}
