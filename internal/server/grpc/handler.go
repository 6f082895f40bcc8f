package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/dmitrijs2005/preservaudit/internal/audit"
	"github.com/dmitrijs2005/preservaudit/internal/common"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

type auditObjectResponse struct {
	Audit   *audit.ObjectAudit `json:"audit"`
	Actions []audit.Action     `json:"actions"`
}

func (s *GRPCServer) AuditObject(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	name := strings.TrimSpace(req.GetFields()["name"].GetStringValue())
	if name == "" {
		return nil, status.Error(codes.InvalidArgument, "name is required")
	}

	oa, err := s.auditor.Inspect(ctx, name)
	if err != nil {
		s.logger.Warn(ctx, "audit failed", "object", name, "operator", operatorFromContext(ctx), "error", err)
		return nil, toStatus(err)
	}

	actions := audit.Plan(oa)
	if actions == nil {
		actions = []audit.Action{}
	}

	s.logger.Info(ctx, "object audited", "object", name, "operator", operatorFromContext(ctx), "health", oa.Summary.Health, "actions", len(actions))

	resp, err := toStruct(auditObjectResponse{Audit: oa, Actions: actions})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return resp, nil
}

func (s *GRPCServer) Ping(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, common.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, audit.ErrNoFiles):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, common.ErrSourceUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// toStruct converts v to a structpb.Struct through its JSON form.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}
