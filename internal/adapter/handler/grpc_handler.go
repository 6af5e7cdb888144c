package handler

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/rl1809/pos-core/internal/core/domain"
	"github.com/rl1809/pos-core/internal/core/service"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "pos.v1.POSService"

// JSONCodec carries gRPC messages as JSON. Clients select it with
// grpc.CallContentSubtype(JSONCodec{}.Name()).
type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (JSONCodec) Name() string                       { return "json" }

func init() {
	encoding.RegisterCodec(JSONCodec{})
}

type ProductLookup struct {
	ProductID string `json:"product_id"`
}

// POSServer is the gRPC surface of the core.
type POSServer interface {
	CreateProduct(context.Context, *ProductRequest) (*ProductResponse, error)
	GetProduct(context.Context, *ProductLookup) (*ProductResponse, error)
	AdjustStock(context.Context, *StockRequest) (*TransactionResponse, error)
	CreateOrder(context.Context, *OrderRequest) (*OrderResponse, error)
	AddItem(context.Context, *ItemRequest) (*ItemResponse, error)
	RemoveItem(context.Context, *ItemRequest) (*OrderResponse, error)
	CompleteOrder(context.Context, *OrderRequest) (*OrderResponse, error)
	CancelOrder(context.Context, *OrderRequest) (*OrderResponse, error)
	GetOrder(context.Context, *OrderRequest) (*OrderResponse, error)
	RecordPayment(context.Context, *PaymentRequest) (*PaymentResponse, error)
	PaymentSummary(context.Context, *OrderRequest) (*SummaryResponse, error)
}

type GRPCHandler struct {
	core *service.Core
}

func NewGRPCHandler(core *service.Core) *GRPCHandler {
	return &GRPCHandler{core: core}
}

var _ POSServer = (*GRPCHandler)(nil)

// Register attaches h to s under ServiceName.
func (h *GRPCHandler) Register(s grpc.ServiceRegistrar) {
	s.RegisterService(&ServiceDesc, h)
}

func (h *GRPCHandler) CreateProduct(ctx context.Context, req *ProductRequest) (*ProductResponse, error) {
	p, err := h.core.Catalog.Create(ctx, service.NewProduct{
		Name:             req.Name,
		Category:         req.Category,
		Price:            req.Price,
		CostPrice:        req.CostPrice,
		InitialStock:     req.InitialStock,
		ReorderThreshold: req.ReorderThreshold,
	}, grpcActor(ctx, req.ActorID))
	if err != nil {
		return nil, toStatus(err)
	}
	resp := toProduct(p)
	return &resp, nil
}

func (h *GRPCHandler) GetProduct(ctx context.Context, req *ProductLookup) (*ProductResponse, error) {
	p, err := h.core.Catalog.Get(ctx, req.ProductID)
	if err != nil {
		return nil, toStatus(err)
	}
	resp := toProduct(p)
	return &resp, nil
}

func (h *GRPCHandler) AdjustStock(ctx context.Context, req *StockRequest) (*TransactionResponse, error) {
	id, err := h.core.Catalog.AdjustStock(ctx, req.ProductID, req.Delta, req.Reason, grpcActor(ctx, req.ActorID))
	if err != nil {
		return nil, toStatus(err)
	}
	return &TransactionResponse{TransactionID: id}, nil
}

func (h *GRPCHandler) CreateOrder(ctx context.Context, req *OrderRequest) (*OrderResponse, error) {
	o, err := h.core.Orders.Create(ctx, grpcActor(ctx, req.ActorID))
	if err != nil {
		return nil, toStatus(err)
	}
	resp := toOrder(o, nil)
	return &resp, nil
}

func (h *GRPCHandler) AddItem(ctx context.Context, req *ItemRequest) (*ItemResponse, error) {
	item, err := h.core.Orders.AddItem(ctx, req.OrderID, req.ProductID, req.Quantity, grpcActor(ctx, req.ActorID))
	if err != nil {
		return nil, toStatus(err)
	}
	resp := toItem(item)
	return &resp, nil
}

func (h *GRPCHandler) RemoveItem(ctx context.Context, req *ItemRequest) (*OrderResponse, error) {
	if err := h.core.Orders.RemoveItem(ctx, req.OrderID, req.ItemID, grpcActor(ctx, req.ActorID)); err != nil {
		return nil, toStatus(err)
	}
	return h.GetOrder(ctx, &OrderRequest{OrderID: req.OrderID})
}

func (h *GRPCHandler) CompleteOrder(ctx context.Context, req *OrderRequest) (*OrderResponse, error) {
	o, err := h.core.Orders.Complete(ctx, req.OrderID, grpcActor(ctx, req.ActorID))
	if err != nil {
		return nil, toStatus(err)
	}
	resp := toOrder(o, nil)
	return &resp, nil
}

func (h *GRPCHandler) CancelOrder(ctx context.Context, req *OrderRequest) (*OrderResponse, error) {
	o, err := h.core.Orders.Cancel(ctx, req.OrderID, grpcActor(ctx, req.ActorID))
	if err != nil {
		return nil, toStatus(err)
	}
	resp := toOrder(o, nil)
	return &resp, nil
}

func (h *GRPCHandler) GetOrder(ctx context.Context, req *OrderRequest) (*OrderResponse, error) {
	view, err := h.core.Orders.Get(ctx, req.OrderID)
	if err != nil {
		return nil, toStatus(err)
	}
	resp := toOrderView(view)
	return &resp, nil
}

func (h *GRPCHandler) RecordPayment(ctx context.Context, req *PaymentRequest) (*PaymentResponse, error) {
	p, err := h.core.Payments.RecordPayment(ctx, req.OrderID, req.Amount,
		domain.PaymentMethod(req.Method), req.Notes, grpcActor(ctx, req.ActorID))
	if err != nil {
		return nil, toStatus(err)
	}
	resp := toPayment(p)
	return &resp, nil
}

func (h *GRPCHandler) PaymentSummary(ctx context.Context, req *OrderRequest) (*SummaryResponse, error) {
	s, err := h.core.Payments.Summary(ctx, req.OrderID)
	if err != nil {
		return nil, toStatus(err)
	}
	resp := toSummary(s)
	return &resp, nil
}

// grpcActor prefers the x-actor-id metadata over the request body.
func grpcActor(ctx context.Context, fromBody string) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get("x-actor-id"); len(v) > 0 && v[0] != "" {
			return v[0]
		}
	}
	if fromBody != "" {
		return fromBody
	}
	return defaultActor
}

// LoggingInterceptor logs every unary call with its outcome and latency.
func LoggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("latency", time.Since(start)),
		}
		if err != nil {
			logger.Warn("gRPC call failed", append(fields, zap.Error(err))...)
		} else {
			logger.Debug("gRPC call", fields...)
		}
		return resp, err
	}
}

// unary builds a method descriptor that decodes Req, runs the interceptor
// chain and dispatches to call.
func unary[Req any, Resp any](name string, call func(POSServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(POSServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(POSServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*POSServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("CreateProduct", POSServer.CreateProduct),
		unary("GetProduct", POSServer.GetProduct),
		unary("AdjustStock", POSServer.AdjustStock),
		unary("CreateOrder", POSServer.CreateOrder),
		unary("AddItem", POSServer.AddItem),
		unary("RemoveItem", POSServer.RemoveItem),
		unary("CompleteOrder", POSServer.CompleteOrder),
		unary("CancelOrder", POSServer.CancelOrder),
		unary("GetOrder", POSServer.GetOrder),
		unary("RecordPayment", POSServer.RecordPayment),
		unary("PaymentSummary", POSServer.PaymentSummary),
	},
}
