package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/dmehra2102/Ordinal/internal/domain"
	"github.com/dmehra2102/Ordinal/internal/ordering"
	"github.com/dmehra2102/Ordinal/pkg/auth"
	"github.com/mitchellh/mapstructure"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Coordinator is the ordering API the service drives.
type Coordinator interface {
	Create(ctx context.Context, parent domain.ParentID, payload domain.Payload) (*domain.Item, error)
	Get(ctx context.Context, parent domain.ParentID, id int64) (*domain.Item, error)
	List(ctx context.Context, parent domain.ParentID, includeHidden bool) ([]*domain.Item, error)
	Move(ctx context.Context, parent domain.ParentID, id int64, dir domain.Direction) (ordering.Result, error)
	SetPosition(ctx context.Context, parent domain.ParentID, id int64, position uint) (ordering.Result, error)
	Delete(ctx context.Context, parent domain.ParentID, id int64) (ordering.Result, error)
	SetHidden(ctx context.Context, parent domain.ParentID, id int64, hidden bool) (ordering.Result, error)
	UpdatePayload(ctx context.Context, parent domain.ParentID, id int64, payload domain.Payload) (*domain.Item, error)
	Verify(ctx context.Context, parent domain.ParentID) (ordering.Report, error)
}

// ItemOrderingService is the feature-module boundary: it authenticates and
// authorizes the caller and validates input before calling the coordinator.
type ItemOrderingService struct {
	coord  Coordinator
	logger *zap.Logger
	tracer trace.Tracer
	authz  *auth.Authorizer
}

var _ ItemOrderingServer = (*ItemOrderingService)(nil)

func NewItemOrderingService(coord Coordinator, logger *zap.Logger, authz *auth.Authorizer) *ItemOrderingService {
	return &ItemOrderingService{
		coord:  coord,
		logger: logger,
		tracer: otel.Tracer("item-ordering-service"),
		authz:  authz,
	}
}

type parentRef struct {
	Kind   string `mapstructure:"kind"`
	NodeID int64  `mapstructure:"node_id"`
}

type itemRef struct {
	parentRef `mapstructure:",squash"`
	ItemID    int64 `mapstructure:"item_id"`
}

type payloadFields struct {
	Title    string `mapstructure:"title"`
	Body     string `mapstructure:"body"`
	LinkType string `mapstructure:"link_type"`
	LinkID   int64  `mapstructure:"link_id"`
}

func (p payloadFields) toDomain() domain.Payload {
	return domain.Payload{Title: p.Title, Body: p.Body, LinkType: p.LinkType, LinkID: p.LinkID}
}

type createItemRequest struct {
	parentRef     `mapstructure:",squash"`
	payloadFields `mapstructure:",squash"`
}

type listItemsRequest struct {
	parentRef     `mapstructure:",squash"`
	IncludeHidden bool `mapstructure:"include_hidden"`
}

type moveItemRequest struct {
	itemRef   `mapstructure:",squash"`
	Direction string `mapstructure:"direction"`
}

type setPositionRequest struct {
	itemRef  `mapstructure:",squash"`
	Position uint `mapstructure:"position"`
}

type setHiddenRequest struct {
	itemRef `mapstructure:",squash"`
	Hidden  bool `mapstructure:"hidden"`
}

type updateItemRequest struct {
	itemRef       `mapstructure:",squash"`
	payloadFields `mapstructure:",squash"`
}

func (s *ItemOrderingService) CreateItem(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	ctx, span := s.tracer.Start(ctx, "CreateItem")
	defer span.End()

	userCtx, err := s.editor(ctx, span)
	if err != nil {
		return nil, err
	}

	var req createItemRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	parent, err := req.parent()
	if err != nil {
		return nil, mapDomainError(err)
	}

	item, err := s.coord.Create(ctx, parent, req.toDomain())
	if err != nil {
		return nil, s.fail("failed to create item", err, userCtx, parent)
	}

	s.logger.Info("item created",
		zap.Int64("item_id", item.ID),
		zap.Uint("position", item.Position),
		zap.Stringer("parent", parent),
		zap.String("user_id", userCtx.UserID),
	)

	return encode(map[string]any{"item": itemToMap(item)})
}

func (s *ItemOrderingService) GetItem(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	ctx, span := s.tracer.Start(ctx, "GetItem")
	defer span.End()

	userCtx, err := s.viewer(ctx, span)
	if err != nil {
		return nil, err
	}

	var req itemRef
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	parent, err := req.parent()
	if err != nil {
		return nil, mapDomainError(err)
	}

	item, err := s.coord.Get(ctx, parent, req.ItemID)
	if err != nil {
		return nil, s.fail("failed to get item", err, userCtx, parent)
	}
	if item.Hidden && !s.authz.CanViewHidden(userCtx) {
		return nil, status.Error(codes.NotFound, domain.ErrItemNotFound.Error())
	}

	return encode(map[string]any{"item": itemToMap(item)})
}

func (s *ItemOrderingService) ListItems(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	ctx, span := s.tracer.Start(ctx, "ListItems")
	defer span.End()

	userCtx, err := s.viewer(ctx, span)
	if err != nil {
		return nil, err
	}

	var req listItemsRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	parent, err := req.parent()
	if err != nil {
		return nil, mapDomainError(err)
	}

	// Hidden items are only listed for editors.
	includeHidden := req.IncludeHidden && s.authz.CanViewHidden(userCtx)

	items, err := s.coord.List(ctx, parent, includeHidden)
	if err != nil {
		return nil, s.fail("failed to list items", err, userCtx, parent)
	}

	span.SetAttributes(attribute.Int("returned_count", len(items)))
	return encode(map[string]any{"items": itemsToList(items)})
}

func (s *ItemOrderingService) MoveItem(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	ctx, span := s.tracer.Start(ctx, "MoveItem")
	defer span.End()

	userCtx, err := s.editor(ctx, span)
	if err != nil {
		return nil, err
	}

	var req moveItemRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	parent, err := req.parent()
	if err != nil {
		return nil, mapDomainError(err)
	}
	dir, err := domain.ParseDirection(req.Direction)
	if err != nil {
		return nil, mapDomainError(err)
	}

	res, err := s.coord.Move(ctx, parent, req.ItemID, dir)
	if err != nil {
		return nil, s.fail("failed to move item", err, userCtx, parent)
	}

	return encodeResult(res)
}

func (s *ItemOrderingService) SetItemPosition(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	ctx, span := s.tracer.Start(ctx, "SetItemPosition")
	defer span.End()

	userCtx, err := s.editor(ctx, span)
	if err != nil {
		return nil, err
	}

	var req setPositionRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	parent, err := req.parent()
	if err != nil {
		return nil, mapDomainError(err)
	}

	res, err := s.coord.SetPosition(ctx, parent, req.ItemID, req.Position)
	if err != nil {
		return nil, s.fail("failed to set item position", err, userCtx, parent)
	}

	return encodeResult(res)
}

func (s *ItemOrderingService) DeleteItem(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	ctx, span := s.tracer.Start(ctx, "DeleteItem")
	defer span.End()

	userCtx, err := s.editor(ctx, span)
	if err != nil {
		return nil, err
	}

	var req itemRef
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	parent, err := req.parent()
	if err != nil {
		return nil, mapDomainError(err)
	}

	res, err := s.coord.Delete(ctx, parent, req.ItemID)
	if err != nil {
		return nil, s.fail("failed to delete item", err, userCtx, parent)
	}

	s.logger.Info("item deleted",
		zap.Int64("item_id", req.ItemID),
		zap.Stringer("parent", parent),
		zap.String("user_id", userCtx.UserID),
	)

	return encodeResult(res)
}

func (s *ItemOrderingService) SetItemHidden(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	ctx, span := s.tracer.Start(ctx, "SetItemHidden")
	defer span.End()

	userCtx, err := s.editor(ctx, span)
	if err != nil {
		return nil, err
	}

	var req setHiddenRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	parent, err := req.parent()
	if err != nil {
		return nil, mapDomainError(err)
	}

	res, err := s.coord.SetHidden(ctx, parent, req.ItemID, req.Hidden)
	if err != nil {
		return nil, s.fail("failed to change item visibility", err, userCtx, parent)
	}

	return encodeResult(res)
}

func (s *ItemOrderingService) UpdateItem(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	ctx, span := s.tracer.Start(ctx, "UpdateItem")
	defer span.End()

	userCtx, err := s.editor(ctx, span)
	if err != nil {
		return nil, err
	}

	var req updateItemRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	parent, err := req.parent()
	if err != nil {
		return nil, mapDomainError(err)
	}

	item, err := s.coord.UpdatePayload(ctx, parent, req.ItemID, req.toDomain())
	if err != nil {
		return nil, s.fail("failed to update item", err, userCtx, parent)
	}

	return encode(map[string]any{"item": itemToMap(item)})
}

func (s *ItemOrderingService) VerifyList(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	ctx, span := s.tracer.Start(ctx, "VerifyList")
	defer span.End()

	userCtx, err := s.editor(ctx, span)
	if err != nil {
		return nil, err
	}

	var req parentRef
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	parent, err := req.parent()
	if err != nil {
		return nil, mapDomainError(err)
	}

	report, err := s.coord.Verify(ctx, parent)
	if err != nil {
		return nil, s.fail("failed to verify list", err, userCtx, parent)
	}
	if !report.OK() {
		s.logger.Error("position invariant violated",
			zap.Stringer("parent", parent),
			zap.Int("count", report.Count),
			zap.Uints("gaps", report.Gaps),
			zap.Uints("duplicates", report.Duplicates),
			zap.Uints("out_of_range", report.Out),
		)
	}

	return encode(map[string]any{
		"ok":           report.OK(),
		"count":        report.Count,
		"gaps":         uintsToList(report.Gaps),
		"duplicates":   uintsToList(report.Duplicates),
		"out_of_range": uintsToList(report.Out),
	})
}

func (s *ItemOrderingService) authenticate(ctx context.Context, span trace.Span) (*auth.UserContext, error) {
	userCtx, err := auth.UserContextFromContext(ctx)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, "authentication required")
	}
	span.SetAttributes(attribute.String("user.id", userCtx.UserID))
	return userCtx, nil
}

func (s *ItemOrderingService) viewer(ctx context.Context, span trace.Span) (*auth.UserContext, error) {
	userCtx, err := s.authenticate(ctx, span)
	if err != nil {
		return nil, err
	}
	if !s.authz.CanView(userCtx) {
		return nil, status.Error(codes.PermissionDenied, "insufficient permissions")
	}
	return userCtx, nil
}

func (s *ItemOrderingService) editor(ctx context.Context, span trace.Span) (*auth.UserContext, error) {
	userCtx, err := s.authenticate(ctx, span)
	if err != nil {
		return nil, err
	}
	if !s.authz.CanEdit(userCtx) {
		return nil, status.Error(codes.PermissionDenied, "insufficient permissions")
	}
	return userCtx, nil
}

// fail logs unexpected errors and converts err into a gRPC status.
func (s *ItemOrderingService) fail(msg string, err error, userCtx *auth.UserContext, parent domain.ParentID) error {
	st := mapDomainError(err)
	if status.Code(st) == codes.Internal || status.Code(st) == codes.Unavailable {
		s.logger.Error(msg,
			zap.Error(err),
			zap.Stringer("parent", parent),
			zap.String("user_id", userCtx.UserID),
		)
	}
	return st
}

func (r parentRef) parent() (domain.ParentID, error) {
	kind, err := domain.ParseListKind(r.Kind)
	if err != nil {
		return domain.ParentID{}, err
	}
	return domain.NewParentID(kind, r.NodeID)
}

func decode(in *structpb.Struct, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:  mapstructure.DecodeHookFuncKind(rejectFractions),
		ErrorUnused: true,
		Result:      out,
	})
	if err != nil {
		return status.Error(codes.Internal, "internal server error")
	}
	if err := dec.Decode(in.AsMap()); err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	return nil
}

// rejectFractions stops mapstructure from truncating Struct numbers, which
// always arrive as float64, into integer fields.
func rejectFractions(from, to reflect.Kind, data any) (any, error) {
	if from != reflect.Float64 {
		return data, nil
	}
	switch to {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if f := data.(float64); f != math.Trunc(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("expected an integer, got %v", f)
		}
	}
	return data, nil
}

func encode(m map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	return out, nil
}

func encodeResult(res ordering.Result) (*structpb.Struct, error) {
	return encode(map[string]any{
		"changed": res.Changed,
		"items":   itemsToList(res.Items),
	})
}

func itemToMap(item *domain.Item) map[string]any {
	return map[string]any{
		"id":         item.ID,
		"kind":       string(item.Parent.Kind),
		"node_id":    item.Parent.NodeID,
		"position":   int64(item.Position),
		"hidden":     item.Hidden,
		"title":      item.Payload.Title,
		"body":       item.Payload.Body,
		"link_type":  item.Payload.LinkType,
		"link_id":    item.Payload.LinkID,
		"created_at": item.CreatedAt.Format(time.RFC3339Nano),
		"updated_at": item.UpdatedAt.Format(time.RFC3339Nano),
	}
}

func itemsToList(items []*domain.Item) []any {
	out := make([]any, len(items))
	for i, item := range items {
		out[i] = itemToMap(item)
	}
	return out
}

func uintsToList(values []uint) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = int64(v)
	}
	return out
}

func mapDomainError(err error) error {
	switch {
	case errors.Is(err, domain.ErrItemNotFound):
		return status.Error(codes.NotFound, err.Error())
	case domain.IsValidationError(err):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrLockUnavailable):
		return status.Error(codes.Unavailable, "list is temporarily locked, please retry")
	case errors.Is(err, domain.ErrConstraintViolation):
		return status.Error(codes.Internal, "internal server error")
	case errors.Is(err, domain.ErrUnauthorized):
		return status.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, "internal server error")
	}
}
