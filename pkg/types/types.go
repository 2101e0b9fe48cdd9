// Package types holds the wire types shared by the registry API and its clients.
package types

// Response is a generic wrapper for Huma responses
// Usage: Response[HealthBody] instead of HealthOutput
type Response[T any] struct {
	Body T
}

// VersionBody is the build metadata reported by a registry server.
type VersionBody struct {
	Version   string `json:"version" example:"1.0.0" doc:"Version of the API"`
	GitCommit string `json:"git_commit" example:"abc123" doc:"Git commit hash"`
	BuildTime string `json:"build_time" example:"2024-01-01T00:00:00Z" doc:"Build timestamp"`
}

// JobResponse acknowledges an accepted async job.
type JobResponse struct {
	JobID   string `json:"job_id"`
	Message string `json:"message"`
}
