// Package client exposes the registry API client to other modules.
package client

import (
	"github.com/agentregistry-dev/mcpindex/internal/client"
)

// Client is the registry API client.
type Client = client.Client

// Error is a failed API call as reported by the server.
type Error = client.Error

// DefaultBaseURL is used when no registry URL is given.
const DefaultBaseURL = client.DefaultBaseURL

// NewClientFromEnv builds a client from MCP_REGISTRY_URL and
// MCP_REGISTRY_TOKEN and waits for the registry to answer.
func NewClientFromEnv() (*Client, error) {
	return client.NewClientFromEnv()
}

func NewClient(baseURL, token string) *Client {
	return client.NewClient(baseURL, token)
}
