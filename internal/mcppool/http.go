package mcppool

import (
	"context"
	"fmt"

	"github.com/lydakis/mcpxagent/internal/config"
	"github.com/lydakis/mcpxagent/internal/httpheaders"
	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
)

func connectHTTP(ctx context.Context, scfg config.ServerConfig) (*connection, error) {
	var opts []transport.StreamableHTTPCOption
	headers := httpheaders.Merge(nil, scfg.Headers, true)
	headers = httpheaders.Merge(headers, map[string]string{"User-Agent": ClientName + "/" + ClientVersion}, false)
	opts = append(opts, transport.WithHTTPHeaders(headers))

	c, err := mcpclient.NewStreamableHttpClient(scfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating HTTP client: %w", err)
	}

	if err := c.Start(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("starting HTTP client: %w", err)
	}

	if _, err := c.Initialize(ctx, initializeRequest()); err != nil {
		c.Close()
		return nil, fmt.Errorf("initializing: %w", err)
	}

	return newConnection(c, c.Close), nil
}
