package v0

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/agentregistry-dev/mcpindex/internal/registry/models"
	"github.com/agentregistry-dev/mcpindex/internal/registry/service"
	"github.com/agentregistry-dev/mcpindex/pkg/types"
)

// BearerAuth is the security requirement of endpoints that need a session.
var BearerAuth = []map[string][]string{{"bearer": {}}}

// PublishInput is a publish request body
type PublishInput struct {
	Body models.PublishRequest
}

// ServerIDInput identifies a server by id
type ServerIDInput struct {
	ID string `path:"id" doc:"Server id"`
}

// ServerNameInput identifies a server by its unique name
type ServerNameInput struct {
	Name string `query:"name" required:"true" minLength:"1" doc:"Unique server name" example:"io.acme/tool"`
}

// UpdateServerRequest is a partial update of a server
type UpdateServerRequest struct {
	ID   string `path:"id" doc:"Server id"`
	Body models.UpdateServerInput
}

// AddVersionRequest appends a version to a server
type AddVersionRequest struct {
	ID   string `path:"id" doc:"Server id"`
	Body models.VersionInput
}

// RatingBody is a single user rating
type RatingBody struct {
	Rating int `json:"rating" minimum:"1" maximum:"5"`
}

// RateServerRequest rates a server
type RateServerRequest struct {
	ID   string `path:"id" doc:"Server id"`
	Body RatingBody
}

func (ec ErrorConfig) serverResponse(resp *models.ServerResponse, err error) (*types.Response[models.ServerResponse], error) {
	if err != nil {
		return nil, ec.apiError(err)
	}
	return &types.Response[models.ServerResponse]{Body: *resp}, nil
}

// RegisterServersEndpoints registers the server read and write endpoints with a custom path prefix
func RegisterServersEndpoints(api huma.API, pathPrefix string, registry service.RegistryService, ec ErrorConfig) {
	suffix := strings.ReplaceAll(pathPrefix, "/", "-")

	huma.Register(api, huma.Operation{
		OperationID:   "publish-server" + suffix,
		Method:        http.MethodPost,
		Path:          pathPrefix + "/servers",
		Summary:       "Publish a server",
		Description:   "Registers a new, unclaimed server. Names and (source, external_id) pairs are unique.",
		Tags:          []string{"servers"},
		DefaultStatus: http.StatusCreated,
		Security:      BearerAuth,
	}, func(ctx context.Context, input *PublishInput) (*types.Response[models.ServerResponse], error) {
		return ec.serverResponse(registry.Publish(ctx, &input.Body))
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-server" + suffix,
		Method:      http.MethodGet,
		Path:        pathPrefix + "/servers/{id}",
		Summary:     "Get a server",
		Tags:        []string{"servers"},
	}, func(ctx context.Context, input *ServerIDInput) (*types.Response[models.ServerResponse], error) {
		return ec.serverResponse(registry.GetServer(ctx, input.ID))
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-server-by-name" + suffix,
		Method:      http.MethodGet,
		Path:        pathPrefix + "/servers/lookup",
		Summary:     "Get a server by name",
		Tags:        []string{"servers"},
	}, func(ctx context.Context, input *ServerNameInput) (*types.Response[models.ServerResponse], error) {
		return ec.serverResponse(registry.GetServerByName(ctx, input.Name))
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-server" + suffix,
		Method:      http.MethodPatch,
		Path:        pathPrefix + "/servers/{id}",
		Summary:     "Update a server",
		Description: "Applies the given fields. Only the claimant, a member of the owning publisher or an admin may update.",
		Tags:        []string{"servers"},
		Security:    BearerAuth,
	}, func(ctx context.Context, input *UpdateServerRequest) (*types.Response[models.ServerResponse], error) {
		return ec.serverResponse(registry.UpdateServer(ctx, input.ID, &input.Body))
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-server" + suffix,
		Method:        http.MethodDelete,
		Path:          pathPrefix + "/servers/{id}",
		Summary:       "Delete a server",
		Tags:          []string{"servers"},
		DefaultStatus: http.StatusNoContent,
		Security:      BearerAuth,
	}, func(ctx context.Context, input *ServerIDInput) (*struct{}, error) {
		if err := registry.DeleteServer(ctx, input.ID); err != nil {
			return nil, ec.apiError(err)
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-server-version" + suffix,
		Method:        http.MethodPost,
		Path:          pathPrefix + "/servers/{id}/versions",
		Summary:       "Add a version",
		Description:   "The new version becomes latest only when it is greater than the current latest.",
		Tags:          []string{"servers"},
		DefaultStatus: http.StatusCreated,
		Security:      BearerAuth,
	}, func(ctx context.Context, input *AddVersionRequest) (*types.Response[models.ServerResponse], error) {
		return ec.serverResponse(registry.AddVersion(ctx, input.ID, &input.Body))
	})

	huma.Register(api, huma.Operation{
		OperationID: "claim-server" + suffix,
		Method:      http.MethodPost,
		Path:        pathPrefix + "/servers/{id}/claim",
		Summary:     "Claim a server",
		Tags:        []string{"servers"},
		Security:    BearerAuth,
	}, func(ctx context.Context, input *ServerIDInput) (*types.Response[models.ServerResponse], error) {
		return ec.serverResponse(registry.ClaimServer(ctx, input.ID))
	})

	huma.Register(api, huma.Operation{
		OperationID: "unclaim-server" + suffix,
		Method:      http.MethodDelete,
		Path:        pathPrefix + "/servers/{id}/claim",
		Summary:     "Release a claim",
		Tags:        []string{"servers"},
		Security:    BearerAuth,
	}, func(ctx context.Context, input *ServerIDInput) (*types.Response[models.ServerResponse], error) {
		return ec.serverResponse(registry.UnclaimServer(ctx, input.ID))
	})

	huma.Register(api, huma.Operation{
		OperationID: "rate-server" + suffix,
		Method:      http.MethodPost,
		Path:        pathPrefix + "/servers/{id}/ratings",
		Summary:     "Rate a server",
		Tags:        []string{"servers"},
		Security:    BearerAuth,
	}, func(ctx context.Context, input *RateServerRequest) (*types.Response[models.ServerResponse], error) {
		return ec.serverResponse(registry.RateServer(ctx, input.ID, input.Body.Rating))
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-server-score" + suffix,
		Method:      http.MethodGet,
		Path:        pathPrefix + "/servers/{id}/score",
		Summary:     "Get the ranking breakdown",
		Description: "Returns the score committed with the last mutation of the server",
		Tags:        []string{"servers"},
	}, func(ctx context.Context, input *ServerIDInput) (*types.Response[models.Score], error) {
		score, err := registry.GetScore(ctx, input.ID)
		if err != nil {
			return nil, ec.apiError(err)
		}
		return &types.Response[models.Score]{Body: *score}, nil
	})
}

// PublisherIDInput identifies a publisher
type PublisherIDInput struct {
	ID string `path:"id" doc:"Publisher id"`
}

// CreatePublisherRequest creates a publisher
type CreatePublisherRequest struct {
	Body models.PublisherInput
}

// RegisterPublishersEndpoints registers publisher endpoints with a custom path prefix
func RegisterPublishersEndpoints(api huma.API, pathPrefix string, registry service.RegistryService, ec ErrorConfig) {
	suffix := strings.ReplaceAll(pathPrefix, "/", "-")

	huma.Register(api, huma.Operation{
		OperationID:   "create-publisher" + suffix,
		Method:        http.MethodPost,
		Path:          pathPrefix + "/publishers",
		Summary:       "Create a publisher",
		Tags:          []string{"publishers"},
		DefaultStatus: http.StatusCreated,
		Security:      BearerAuth,
	}, func(ctx context.Context, input *CreatePublisherRequest) (*types.Response[models.Publisher], error) {
		p, err := registry.CreatePublisher(ctx, &input.Body)
		if err != nil {
			return nil, ec.apiError(err)
		}
		return &types.Response[models.Publisher]{Body: *p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-publisher" + suffix,
		Method:      http.MethodGet,
		Path:        pathPrefix + "/publishers/{id}",
		Summary:     "Get a publisher",
		Tags:        []string{"publishers"},
	}, func(ctx context.Context, input *PublisherIDInput) (*types.Response[models.Publisher], error) {
		p, err := registry.GetPublisher(ctx, input.ID)
		if err != nil {
			return nil, ec.apiError(err)
		}
		return &types.Response[models.Publisher]{Body: *p}, nil
	})
}
