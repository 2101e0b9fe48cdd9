package service

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/agentregistry-dev/mcpindex/internal/registry/database"
	"github.com/agentregistry-dev/mcpindex/internal/registry/errs"
	"github.com/agentregistry-dev/mcpindex/internal/registry/logging"
	"github.com/agentregistry-dev/mcpindex/internal/registry/models"
	"github.com/agentregistry-dev/mcpindex/internal/registry/search"
	"github.com/agentregistry-dev/mcpindex/internal/registry/validators"
	"github.com/agentregistry-dev/mcpindex/internal/utils"
	"github.com/agentregistry-dev/mcpindex/internal/version"
)

// Publish validates req, creates the record and indexes it
func (s *registryServiceImpl) Publish(ctx context.Context, req *models.PublishRequest) (*models.ServerResponse, error) {
	const op = "publish"
	sess, err := requireSession(ctx)
	if err != nil {
		return nil, err
	}
	if err := validators.ValidatePublishRequest(req); err != nil {
		return nil, err
	}

	var publisher *models.Publisher
	if req.PublisherID != "" {
		if !sess.Admin && sess.PublisherID != req.PublisherID {
			return nil, errs.Forbidden("not a member of publisher %s", req.PublisherID)
		}
		publisher, err = s.db.GetPublisher(ctx, req.PublisherID)
		if errors.Is(err, database.ErrNotFound) {
			return nil, errs.Validation("unknown publisher %s", req.PublisherID)
		}
		if err != nil {
			return nil, stageErr(StagePending, err)
		}
	}

	now := s.now().UTC()
	rec := newRecord(req, now)
	if publisher != nil && publisher.Verified {
		rec.Metadata.Verified = true
	}
	s.rescore(rec, now)

	if err := s.db.CreateServer(ctx, rec); err != nil {
		if errors.Is(err, database.ErrAlreadyExists) {
			err = &errs.Error{
				Category: errs.CategoryConflict,
				Stage:    StagePersisted,
				Message:  "server " + rec.Name + " or its source and external_id is already registered",
				Err:      err,
			}
		} else {
			err = stageErr(StagePersisted, err)
		}
		s.metrics.MutationCompleted(ctx, op, outcome(err))
		return nil, err
	}
	if err := s.commit(ctx, op, rec); err != nil {
		s.metrics.MutationCompleted(ctx, op, outcome(err))
		return nil, err
	}
	s.metrics.MutationCompleted(ctx, op, "ok")
	logging.Log(ctx, s.logger, zapcore.InfoLevel, "server published",
		zap.String("server_id", rec.ID), zap.String("name", rec.Name), zap.String("user_id", sess.UserID))
	return models.NewServerResponse(rec), nil
}

// newRecord builds an unclaimed record from a validated publish request.
func newRecord(req *models.PublishRequest, now time.Time) *models.ServerRecord {
	source := req.Source
	if source == "" {
		source = models.SourceCommunity
	}
	externalID := req.ExternalID
	if externalID == "" {
		externalID = req.Name
	}

	rec := &models.ServerRecord{
		ID:           uuid.New().String(),
		Name:         req.Name,
		Source:       source,
		ExternalID:   externalID,
		Description:  req.Description,
		Repository:   normalizeRepository(req.Repository),
		Capabilities: req.Capabilities,
		Command:      req.Command,
		Args:         req.Args,
		Env:          req.Env,
		URL:          req.URL,
		Metadata: models.Metadata{
			Tags:     search.NormalizeTags(req.Tags),
			Category: req.Category,
		},
		PublisherID: req.PublisherID,
		CreatedAt:   now,
		UpdatedAt:   now,
		Revision:    1,
	}

	latest := 0
	for i, in := range req.Versions {
		rec.Versions = append(rec.Versions, newVersion(in, now))
		if version.Compare(in.Version, req.Versions[latest].Version) > 0 {
			latest = i
		}
	}
	rec.Versions[latest].IsLatest = true
	return rec
}

// normalizeRepository fills the VCS kind and identifier of GitHub
// repositories and canonicalizes their URL.
func normalizeRepository(in *models.Repository) *models.Repository {
	if in == nil {
		return nil
	}
	repo := *in
	info, err := utils.ParseGitHubURL(repo.URL)
	if err != nil {
		return &repo
	}
	repo.URL = info.GetGitHubRepoURL()
	if repo.Source == "" {
		repo.Source = "github"
	}
	if repo.ID == "" {
		repo.ID = info.FullName()
	}
	return &repo
}

func newVersion(in models.VersionInput, now time.Time) models.Version {
	v := models.Version{
		Version:     in.Version,
		ReleaseDate: now,
		Changelog:   in.Changelog,
		Packages:    in.Packages,
	}
	if in.ReleaseDate != nil {
		v.ReleaseDate = in.ReleaseDate.UTC()
	}
	if v.Packages == nil {
		v.Packages = []models.Package{}
	}
	return v
}

// UpdateServer applies the non-nil fields of in
func (s *registryServiceImpl) UpdateServer(ctx context.Context, id string, in *models.UpdateServerInput) (*models.ServerResponse, error) {
	sess, err := requireSession(ctx)
	if err != nil {
		return nil, err
	}
	if err := validators.ValidateUpdate(in); err != nil {
		return nil, err
	}

	return s.update(ctx, "update", id, func(rec *models.ServerRecord) error {
		if !canManage(sess, rec) {
			return errs.Forbidden("only the owner of server %s may update it", id)
		}
		if in.ExpectedRevision != nil && *in.ExpectedRevision != rec.Revision {
			return database.ErrRevisionMismatch
		}
		if in.Description != nil {
			rec.Description = *in.Description
		}
		if in.Repository != nil {
			rec.Repository = normalizeRepository(in.Repository)
		}
		if in.Capabilities != nil {
			rec.Capabilities = *in.Capabilities
		}
		if in.Command != nil {
			rec.Command = *in.Command
		}
		if in.Args != nil {
			rec.Args = in.Args
		}
		if in.Env != nil {
			rec.Env = in.Env
		}
		if in.URL != nil {
			rec.URL = *in.URL
		}
		if in.Tags != nil {
			rec.Metadata.Tags = search.NormalizeTags(in.Tags)
		}
		if in.Category != nil {
			rec.Metadata.Category = *in.Category
		}
		rec.UpdatedAt = s.now().UTC()
		return nil
	})
}

// AddVersion appends a version; it becomes latest iff it is greater than the current latest
func (s *registryServiceImpl) AddVersion(ctx context.Context, id string, in *models.VersionInput) (*models.ServerResponse, error) {
	sess, err := requireSession(ctx)
	if err != nil {
		return nil, err
	}
	if in == nil {
		return nil, errs.Validation("version is required")
	}
	if err := validators.ValidateVersion(in.Version); err != nil {
		return nil, err
	}

	return s.update(ctx, "add_version", id, func(rec *models.ServerRecord) error {
		if !canManage(sess, rec) {
			return errs.Forbidden("only the owner of server %s may add versions", id)
		}
		for _, v := range rec.Versions {
			if version.Compare(v.Version, in.Version) == 0 {
				return &errs.Error{
					Category: errs.CategoryConflict,
					Message:  "version " + in.Version + " already exists",
					Err:      database.ErrInvalidVersion,
				}
			}
		}

		now := s.now().UTC()
		next := newVersion(*in, now)
		current := rec.LatestVersion()
		if current == nil || version.Compare(next.Version, current.Version) > 0 {
			for i := range rec.Versions {
				rec.Versions[i].IsLatest = false
			}
			next.IsLatest = true
		}
		rec.Versions = append(rec.Versions, next)
		rec.UpdatedAt = now
		return nil
	})
}

// ClaimServer records the caller as claimant of an unclaimed record
func (s *registryServiceImpl) ClaimServer(ctx context.Context, id string) (*models.ServerResponse, error) {
	sess, err := requireSession(ctx)
	if err != nil {
		return nil, err
	}
	return s.update(ctx, "claim", id, func(rec *models.ServerRecord) error {
		if rec.IsClaimed() {
			return errs.Conflict("server %s is already claimed", id)
		}
		now := s.now().UTC()
		rec.ClaimedBy = sess.UserID
		rec.ClaimedAt = &now
		rec.UpdatedAt = now
		return nil
	})
}

// UnclaimServer drops the caller's claim
func (s *registryServiceImpl) UnclaimServer(ctx context.Context, id string) (*models.ServerResponse, error) {
	sess, err := requireSession(ctx)
	if err != nil {
		return nil, err
	}
	return s.update(ctx, "unclaim", id, func(rec *models.ServerRecord) error {
		if rec.ClaimedBy != sess.UserID {
			return errs.Forbidden("server %s is not claimed by the caller", id)
		}
		rec.ClaimedBy = ""
		rec.ClaimedAt = nil
		rec.UpdatedAt = s.now().UTC()
		return nil
	})
}

// RecordMetrics stores externally scanned signals
func (s *registryServiceImpl) RecordMetrics(ctx context.Context, id string, in *models.MetricsInput) (*models.ServerResponse, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if err := validators.ValidateMetrics(in); err != nil {
		return nil, err
	}
	return s.update(ctx, "record_metrics", id, func(rec *models.ServerRecord) error {
		md := &rec.Metadata
		if in.GitHubStars != nil {
			md.GitHubStars = *in.GitHubStars
		}
		if in.DownloadCount != nil {
			md.DownloadCount = *in.DownloadCount
		}
		if in.InstallCount != nil {
			md.InstallCount = *in.InstallCount
		}
		if in.Verified != nil {
			md.Verified = *in.Verified
		}
		if in.LastUpdated != nil {
			t := in.LastUpdated.UTC()
			md.LastUpdated = &t
		}
		rec.UpdatedAt = s.now().UTC()
		return nil
	})
}

// RateServer folds rating into the running average
func (s *registryServiceImpl) RateServer(ctx context.Context, id string, rating int) (*models.ServerResponse, error) {
	if _, err := requireSession(ctx); err != nil {
		return nil, err
	}
	if err := validators.ValidateRating(rating); err != nil {
		return nil, err
	}
	return s.update(ctx, "rate", id, func(rec *models.ServerRecord) error {
		md := &rec.Metadata
		total := md.Rating*float64(md.RatingCount) + float64(rating)
		md.RatingCount++
		md.Rating = math.Round(total/float64(md.RatingCount)*100) / 100
		rec.UpdatedAt = s.now().UTC()
		return nil
	})
}

// DeleteServer removes the record, then its document, then its cached copy
func (s *registryServiceImpl) DeleteServer(ctx context.Context, id string) error {
	const op = "delete"
	sess, err := requireSession(ctx)
	if err != nil {
		return err
	}

	rec, err := s.db.GetServerByID(ctx, id)
	if err != nil {
		return stageErr(StagePending, err)
	}
	if !canManage(sess, rec) {
		return errs.Forbidden("only the owner of server %s may delete it", id)
	}

	if err := s.db.DeleteServer(ctx, id); err != nil {
		err = stageErr(StagePersisted, err)
		s.metrics.MutationCompleted(ctx, op, outcome(err))
		return err
	}

	var projectErr error
	if err := s.project(ctx, id, nil); err != nil {
		s.metrics.ProjectionFailed(ctx, op)
		logging.L(ctx, s.logger).Error("record deleted but document not removed",
			zap.String("server_id", id), zap.Error(err))
		projectErr = errs.Unavailable(StageProjected, err,
			"server %s was deleted but its search document could not be removed; it is hidden until reindex", id)
	}
	s.invalidate(ctx, id)
	s.metrics.MutationCompleted(ctx, op, outcome(projectErr))
	if projectErr != nil {
		return projectErr
	}
	logging.Log(ctx, s.logger, zapcore.InfoLevel, "server deleted",
		zap.String("server_id", id), zap.String("user_id", sess.UserID))
	return nil
}
