package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	servicerequestdomain "github.com/smallbiznis/agentdesk/internal/servicerequest/domain"
	"github.com/smallbiznis/agentdesk/pkg/db/option"
	"github.com/smallbiznis/agentdesk/pkg/db/pagination"
	"github.com/smallbiznis/agentdesk/pkg/repository"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() servicerequestdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, req *servicerequestdomain.ServiceRequest) error {
	return db.WithContext(ctx).Omit("Artifacts").Create(req).Error
}

func (r *repo) InsertArtifacts(ctx context.Context, db *gorm.DB, artifacts []servicerequestdomain.Artifact) error {
	if len(artifacts) == 0 {
		return nil
	}
	items := make([]*servicerequestdomain.Artifact, 0, len(artifacts))
	for i := range artifacts {
		items = append(items, &artifacts[i])
	}
	return repository.ProvideStore[servicerequestdomain.Artifact](db).BatchCreate(ctx, items)
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID, forUpdate bool) (*servicerequestdomain.ServiceRequest, error) {
	opts := []option.QueryOption{}
	if forUpdate {
		opts = append(opts, option.ForUpdate())
	}
	item, err := repository.ProvideStore[servicerequestdomain.ServiceRequest](db).FindOne(ctx,
		&servicerequestdomain.ServiceRequest{ID: id},
		opts...,
	)
	if err != nil || item == nil {
		return item, err
	}

	var artifacts []servicerequestdomain.Artifact
	if err := db.WithContext(ctx).
		Where("service_request_id = ?", id).
		Order("created_at asc, id asc").
		Find(&artifacts).Error; err != nil {
		return nil, err
	}
	item.Artifacts = artifacts
	return item, nil
}

func (r *repo) UpdateState(ctx context.Context, db *gorm.DB, req *servicerequestdomain.ServiceRequest, expectedVersion int64) (bool, error) {
	ok, err := repository.ProvideStore[servicerequestdomain.ServiceRequest](db).UpdateVersioned(ctx, req.ID, expectedVersion, map[string]any{
		"status":           req.Status,
		"status_message":   req.StatusMessage,
		"form_data":        req.FormData,
		"refunded":         req.Refunded,
		"refund_amount":    req.RefundAmount,
		"refund_deduction": req.RefundDeduction,
		"updated_at":       req.UpdatedAt,
	})
	if err != nil || !ok {
		return false, err
	}
	req.Version = expectedVersion + 1
	return true, nil
}

func (r *repo) UpsertArtifact(ctx context.Context, db *gorm.DB, artifact *servicerequestdomain.Artifact) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "service_request_id"}, {Name: "name"}},
		DoUpdates: clause.Assignments(map[string]any{
			"url":        artifact.URL,
			"role":       artifact.Role,
			"updated_at": artifact.UpdatedAt,
		}),
	}).Create(artifact).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter servicerequestdomain.ListFilter, page pagination.Pagination) ([]*servicerequestdomain.ServiceRequest, error) {
	return repository.ProvideStore[servicerequestdomain.ServiceRequest](db).Find(ctx,
		&servicerequestdomain.ServiceRequest{
			OwnerID: filter.OwnerID,
			Status:  filter.Status,
			Kind:    filter.Kind,
		},
		option.WithPreload("Artifacts"),
		option.WithSortBy(option.QuerySortBy{Allow: map[string]bool{"created_at": true}}),
		option.ApplyPagination(page),
	)
}
