package v0

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/agentregistry-dev/mcpindex/internal/registry/auth"
	"github.com/agentregistry-dev/mcpindex/internal/registry/errs"
	"github.com/agentregistry-dev/mcpindex/internal/registry/jobs"
	"github.com/agentregistry-dev/mcpindex/internal/registry/models"
	"github.com/agentregistry-dev/mcpindex/internal/registry/service"
	"github.com/agentregistry-dev/mcpindex/pkg/types"
)

// RecordMetricsRequest carries scanned popularity signals for a server
type RecordMetricsRequest struct {
	ID   string `path:"id" doc:"Server id"`
	Body models.MetricsInput
}

// ReindexRequest starts a reindex job
type ReindexRequest struct {
	Body service.ReindexOptions `required:"false"`
}

// JobIDInput identifies an async job
type JobIDInput struct {
	JobID string `path:"job_id"`
}

// requireAdmin rejects callers before an async job is started on their behalf.
func (ec ErrorConfig) requireAdmin(ctx context.Context) error {
	s, ok := auth.AuthSessionFrom(ctx)
	if !ok {
		return ec.apiError(errs.Unauthenticated("authentication required"))
	}
	if !s.Admin {
		return ec.apiError(errs.Forbidden("admin privileges required"))
	}
	return nil
}

// RegisterAdminEndpoints registers admin endpoints
func RegisterAdminEndpoints(api huma.API, pathPrefix string, registry service.RegistryService, jobManager *jobs.Manager, ec ErrorConfig) {
	suffix := strings.ReplaceAll(pathPrefix, "/", "-")

	huma.Register(api, huma.Operation{
		OperationID: "record-server-metrics" + suffix,
		Method:      http.MethodPut,
		Path:        pathPrefix + "/admin/servers/{id}/metrics",
		Summary:     "Record scanned metrics",
		Description: "Stores stars, downloads, installs and verification from the scanner and re-scores the server",
		Tags:        []string{"admin"},
		Security:    BearerAuth,
	}, func(ctx context.Context, input *RecordMetricsRequest) (*types.Response[models.ServerResponse], error) {
		return ec.serverResponse(registry.RecordMetrics(ctx, input.ID, &input.Body))
	})

	huma.Register(api, huma.Operation{
		OperationID:   "reindex" + suffix,
		Method:        http.MethodPost,
		Path:          pathPrefix + "/admin/reindex",
		Summary:       "Reindex all servers (async)",
		Description:   "Re-scores every record and rebuilds its search document. Returns a job ID to track progress.",
		Tags:          []string{"admin"},
		DefaultStatus: http.StatusAccepted,
		Security:      BearerAuth,
	}, func(ctx context.Context, input *ReindexRequest) (*types.Response[types.JobResponse], error) {
		if err := ec.requireAdmin(ctx); err != nil {
			return nil, err
		}
		opts := input.Body
		job := jobManager.Start(ctx, "reindex", func(ctx context.Context, progress jobs.ProgressFunc) (map[string]any, error) {
			progress(10, "Reindexing servers...")
			res, err := registry.Reindex(ctx, opts, func(stats service.ReindexResult) {
				progress(50, fmt.Sprintf("Processed %d servers (%d failed)", stats.Processed, stats.Failures))
			})
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"processed": res.Processed,
				"rescored":  res.Rescored,
				"indexed":   res.Indexed,
				"pruned":    res.Pruned,
				"failures":  res.Failures,
				"failed":    res.Failed,
				"dry_run":   opts.DryRun,
			}, nil
		})
		return &types.Response[types.JobResponse]{
			Body: types.JobResponse{
				JobID:   job.ID,
				Message: "Reindex job started. Use the job ID to check status.",
			},
		}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-job-status" + suffix,
		Method:      http.MethodGet,
		Path:        pathPrefix + "/admin/jobs/{job_id}",
		Summary:     "Get job status",
		Description: "Get the status and progress of an async job",
		Tags:        []string{"admin"},
		Security:    BearerAuth,
	}, func(ctx context.Context, input *JobIDInput) (*types.Response[jobs.Job], error) {
		if err := ec.requireAdmin(ctx); err != nil {
			return nil, err
		}
		job, ok := jobManager.Get(input.JobID)
		if !ok {
			return nil, ec.apiError(errs.NotFound("job %s not found", input.JobID))
		}
		return &types.Response[jobs.Job]{Body: *job}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-jobs" + suffix,
		Method:      http.MethodGet,
		Path:        pathPrefix + "/admin/jobs",
		Summary:     "List all jobs",
		Description: "List async jobs, newest first",
		Tags:        []string{"admin"},
		Security:    BearerAuth,
	}, func(ctx context.Context, _ *struct{}) (*types.Response[[]jobs.Job], error) {
		if err := ec.requireAdmin(ctx); err != nil {
			return nil, err
		}
		list := jobManager.List()
		out := make([]jobs.Job, len(list))
		for i, j := range list {
			out[i] = *j
		}
		return &types.Response[[]jobs.Job]{Body: out}, nil
	})
}
