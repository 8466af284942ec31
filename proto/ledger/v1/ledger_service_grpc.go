package ledgerv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Требует grpc-go v1.64 или новее.
const _ = grpc.SupportPackageIsVersion9

const (
	LedgerService_ApplyPayment_FullMethodName     = "/muzbazar.ledger.v1.LedgerService/ApplyPayment"
	LedgerService_DeletePayment_FullMethodName    = "/muzbazar.ledger.v1.LedgerService/DeletePayment"
	LedgerService_IncreaseDebt_FullMethodName     = "/muzbazar.ledger.v1.LedgerService/IncreaseDebt"
	LedgerService_SetOrderStatus_FullMethodName   = "/muzbazar.ledger.v1.LedgerService/SetOrderStatus"
	LedgerService_CreateOrder_FullMethodName      = "/muzbazar.ledger.v1.LedgerService/CreateOrder"
	LedgerService_GetOrder_FullMethodName         = "/muzbazar.ledger.v1.LedgerService/GetOrder"
	LedgerService_ListClientOrders_FullMethodName = "/muzbazar.ledger.v1.LedgerService/ListClientOrders"
	LedgerService_GetClientSummary_FullMethodName = "/muzbazar.ledger.v1.LedgerService/GetClientSummary"
	LedgerService_ResyncClientDebt_FullMethodName = "/muzbazar.ledger.v1.LedgerService/ResyncClientDebt"
	LedgerService_AuditOrder_FullMethodName       = "/muzbazar.ledger.v1.LedgerService/AuditOrder"
)

// LedgerServiceClient — клиентский API сервиса учёта заказов, платежей и долгов.
type LedgerServiceClient interface {
	ApplyPayment(ctx context.Context, in *ApplyPaymentRequest, opts ...grpc.CallOption) (*ApplyPaymentResponse, error)
	DeletePayment(ctx context.Context, in *DeletePaymentRequest, opts ...grpc.CallOption) (*DeletePaymentResponse, error)
	IncreaseDebt(ctx context.Context, in *IncreaseDebtRequest, opts ...grpc.CallOption) (*IncreaseDebtResponse, error)
	SetOrderStatus(ctx context.Context, in *SetOrderStatusRequest, opts ...grpc.CallOption) (*SetOrderStatusResponse, error)
	CreateOrder(ctx context.Context, in *CreateOrderRequest, opts ...grpc.CallOption) (*CreateOrderResponse, error)
	GetOrder(ctx context.Context, in *GetOrderRequest, opts ...grpc.CallOption) (*GetOrderResponse, error)
	ListClientOrders(ctx context.Context, in *ListClientOrdersRequest, opts ...grpc.CallOption) (*ListClientOrdersResponse, error)
	GetClientSummary(ctx context.Context, in *GetClientSummaryRequest, opts ...grpc.CallOption) (*GetClientSummaryResponse, error)
	ResyncClientDebt(ctx context.Context, in *ResyncClientDebtRequest, opts ...grpc.CallOption) (*ResyncClientDebtResponse, error)
	AuditOrder(ctx context.Context, in *AuditOrderRequest, opts ...grpc.CallOption) (*AuditOrderResponse, error)
}

type ledgerServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewLedgerServiceClient создаёт клиента. Все вызовы идут через JSON-кодек.
func NewLedgerServiceClient(cc grpc.ClientConnInterface) LedgerServiceClient {
	return &ledgerServiceClient{cc}
}

func (c *ledgerServiceClient) ApplyPayment(ctx context.Context, in *ApplyPaymentRequest, opts ...grpc.CallOption) (*ApplyPaymentResponse, error) {
	cOpts := append([]grpc.CallOption{CallOption()}, opts...)
	out := new(ApplyPaymentResponse)
	err := c.cc.Invoke(ctx, LedgerService_ApplyPayment_FullMethodName, in, out, cOpts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ledgerServiceClient) DeletePayment(ctx context.Context, in *DeletePaymentRequest, opts ...grpc.CallOption) (*DeletePaymentResponse, error) {
	cOpts := append([]grpc.CallOption{CallOption()}, opts...)
	out := new(DeletePaymentResponse)
	err := c.cc.Invoke(ctx, LedgerService_DeletePayment_FullMethodName, in, out, cOpts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ledgerServiceClient) IncreaseDebt(ctx context.Context, in *IncreaseDebtRequest, opts ...grpc.CallOption) (*IncreaseDebtResponse, error) {
	cOpts := append([]grpc.CallOption{CallOption()}, opts...)
	out := new(IncreaseDebtResponse)
	err := c.cc.Invoke(ctx, LedgerService_IncreaseDebt_FullMethodName, in, out, cOpts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ledgerServiceClient) SetOrderStatus(ctx context.Context, in *SetOrderStatusRequest, opts ...grpc.CallOption) (*SetOrderStatusResponse, error) {
	cOpts := append([]grpc.CallOption{CallOption()}, opts...)
	out := new(SetOrderStatusResponse)
	err := c.cc.Invoke(ctx, LedgerService_SetOrderStatus_FullMethodName, in, out, cOpts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ledgerServiceClient) CreateOrder(ctx context.Context, in *CreateOrderRequest, opts ...grpc.CallOption) (*CreateOrderResponse, error) {
	cOpts := append([]grpc.CallOption{CallOption()}, opts...)
	out := new(CreateOrderResponse)
	err := c.cc.Invoke(ctx, LedgerService_CreateOrder_FullMethodName, in, out, cOpts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ledgerServiceClient) GetOrder(ctx context.Context, in *GetOrderRequest, opts ...grpc.CallOption) (*GetOrderResponse, error) {
	cOpts := append([]grpc.CallOption{CallOption()}, opts...)
	out := new(GetOrderResponse)
	err := c.cc.Invoke(ctx, LedgerService_GetOrder_FullMethodName, in, out, cOpts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ledgerServiceClient) ListClientOrders(ctx context.Context, in *ListClientOrdersRequest, opts ...grpc.CallOption) (*ListClientOrdersResponse, error) {
	cOpts := append([]grpc.CallOption{CallOption()}, opts...)
	out := new(ListClientOrdersResponse)
	err := c.cc.Invoke(ctx, LedgerService_ListClientOrders_FullMethodName, in, out, cOpts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ledgerServiceClient) GetClientSummary(ctx context.Context, in *GetClientSummaryRequest, opts ...grpc.CallOption) (*GetClientSummaryResponse, error) {
	cOpts := append([]grpc.CallOption{CallOption()}, opts...)
	out := new(GetClientSummaryResponse)
	err := c.cc.Invoke(ctx, LedgerService_GetClientSummary_FullMethodName, in, out, cOpts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ledgerServiceClient) ResyncClientDebt(ctx context.Context, in *ResyncClientDebtRequest, opts ...grpc.CallOption) (*ResyncClientDebtResponse, error) {
	cOpts := append([]grpc.CallOption{CallOption()}, opts...)
	out := new(ResyncClientDebtResponse)
	err := c.cc.Invoke(ctx, LedgerService_ResyncClientDebt_FullMethodName, in, out, cOpts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ledgerServiceClient) AuditOrder(ctx context.Context, in *AuditOrderRequest, opts ...grpc.CallOption) (*AuditOrderResponse, error) {
	cOpts := append([]grpc.CallOption{CallOption()}, opts...)
	out := new(AuditOrderResponse)
	err := c.cc.Invoke(ctx, LedgerService_AuditOrder_FullMethodName, in, out, cOpts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// LedgerServiceServer — серверный API сервиса учёта.
// Реализации должны встраивать UnimplementedLedgerServiceServer.
type LedgerServiceServer interface {
	ApplyPayment(context.Context, *ApplyPaymentRequest) (*ApplyPaymentResponse, error)
	DeletePayment(context.Context, *DeletePaymentRequest) (*DeletePaymentResponse, error)
	IncreaseDebt(context.Context, *IncreaseDebtRequest) (*IncreaseDebtResponse, error)
	SetOrderStatus(context.Context, *SetOrderStatusRequest) (*SetOrderStatusResponse, error)
	CreateOrder(context.Context, *CreateOrderRequest) (*CreateOrderResponse, error)
	GetOrder(context.Context, *GetOrderRequest) (*GetOrderResponse, error)
	ListClientOrders(context.Context, *ListClientOrdersRequest) (*ListClientOrdersResponse, error)
	GetClientSummary(context.Context, *GetClientSummaryRequest) (*GetClientSummaryResponse, error)
	ResyncClientDebt(context.Context, *ResyncClientDebtRequest) (*ResyncClientDebtResponse, error)
	AuditOrder(context.Context, *AuditOrderRequest) (*AuditOrderResponse, error)
	mustEmbedUnimplementedLedgerServiceServer()
}

// UnimplementedLedgerServiceServer нужно встраивать по значению.
type UnimplementedLedgerServiceServer struct{}

func (UnimplementedLedgerServiceServer) ApplyPayment(context.Context, *ApplyPaymentRequest) (*ApplyPaymentResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method ApplyPayment not implemented")
}

func (UnimplementedLedgerServiceServer) DeletePayment(context.Context, *DeletePaymentRequest) (*DeletePaymentResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method DeletePayment not implemented")
}

func (UnimplementedLedgerServiceServer) IncreaseDebt(context.Context, *IncreaseDebtRequest) (*IncreaseDebtResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method IncreaseDebt not implemented")
}

func (UnimplementedLedgerServiceServer) SetOrderStatus(context.Context, *SetOrderStatusRequest) (*SetOrderStatusResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method SetOrderStatus not implemented")
}

func (UnimplementedLedgerServiceServer) CreateOrder(context.Context, *CreateOrderRequest) (*CreateOrderResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method CreateOrder not implemented")
}

func (UnimplementedLedgerServiceServer) GetOrder(context.Context, *GetOrderRequest) (*GetOrderResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method GetOrder not implemented")
}

func (UnimplementedLedgerServiceServer) ListClientOrders(context.Context, *ListClientOrdersRequest) (*ListClientOrdersResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method ListClientOrders not implemented")
}

func (UnimplementedLedgerServiceServer) GetClientSummary(context.Context, *GetClientSummaryRequest) (*GetClientSummaryResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method GetClientSummary not implemented")
}

func (UnimplementedLedgerServiceServer) ResyncClientDebt(context.Context, *ResyncClientDebtRequest) (*ResyncClientDebtResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method ResyncClientDebt not implemented")
}

func (UnimplementedLedgerServiceServer) AuditOrder(context.Context, *AuditOrderRequest) (*AuditOrderResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method AuditOrder not implemented")
}

func (UnimplementedLedgerServiceServer) mustEmbedUnimplementedLedgerServiceServer() {}

// RegisterLedgerServiceServer регистрирует реализацию на gRPC-сервере.
func RegisterLedgerServiceServer(s grpc.ServiceRegistrar, srv LedgerServiceServer) {
	s.RegisterService(&LedgerService_ServiceDesc, srv)
}

func _LedgerService_ApplyPayment_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ApplyPaymentRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LedgerServiceServer).ApplyPayment(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: LedgerService_ApplyPayment_FullMethodName,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(LedgerServiceServer).ApplyPayment(ctx, req.(*ApplyPaymentRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _LedgerService_DeletePayment_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(DeletePaymentRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LedgerServiceServer).DeletePayment(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: LedgerService_DeletePayment_FullMethodName,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(LedgerServiceServer).DeletePayment(ctx, req.(*DeletePaymentRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _LedgerService_IncreaseDebt_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(IncreaseDebtRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LedgerServiceServer).IncreaseDebt(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: LedgerService_IncreaseDebt_FullMethodName,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(LedgerServiceServer).IncreaseDebt(ctx, req.(*IncreaseDebtRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _LedgerService_SetOrderStatus_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(SetOrderStatusRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LedgerServiceServer).SetOrderStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: LedgerService_SetOrderStatus_FullMethodName,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(LedgerServiceServer).SetOrderStatus(ctx, req.(*SetOrderStatusRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _LedgerService_CreateOrder_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(CreateOrderRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LedgerServiceServer).CreateOrder(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: LedgerService_CreateOrder_FullMethodName,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(LedgerServiceServer).CreateOrder(ctx, req.(*CreateOrderRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _LedgerService_GetOrder_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(GetOrderRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LedgerServiceServer).GetOrder(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: LedgerService_GetOrder_FullMethodName,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(LedgerServiceServer).GetOrder(ctx, req.(*GetOrderRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _LedgerService_ListClientOrders_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ListClientOrdersRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LedgerServiceServer).ListClientOrders(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: LedgerService_ListClientOrders_FullMethodName,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(LedgerServiceServer).ListClientOrders(ctx, req.(*ListClientOrdersRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _LedgerService_GetClientSummary_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(GetClientSummaryRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LedgerServiceServer).GetClientSummary(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: LedgerService_GetClientSummary_FullMethodName,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(LedgerServiceServer).GetClientSummary(ctx, req.(*GetClientSummaryRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _LedgerService_ResyncClientDebt_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ResyncClientDebtRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LedgerServiceServer).ResyncClientDebt(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: LedgerService_ResyncClientDebt_FullMethodName,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(LedgerServiceServer).ResyncClientDebt(ctx, req.(*ResyncClientDebtRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _LedgerService_AuditOrder_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(AuditOrderRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LedgerServiceServer).AuditOrder(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: LedgerService_AuditOrder_FullMethodName,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(LedgerServiceServer).AuditOrder(ctx, req.(*AuditOrderRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// LedgerService_ServiceDesc — дескриптор сервиса для grpc.ServiceRegistrar.
var LedgerService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "muzbazar.ledger.v1.LedgerService",
	HandlerType: (*LedgerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "ApplyPayment",
			Handler:    _LedgerService_ApplyPayment_Handler,
		},
		{
			MethodName: "DeletePayment",
			Handler:    _LedgerService_DeletePayment_Handler,
		},
		{
			MethodName: "IncreaseDebt",
			Handler:    _LedgerService_IncreaseDebt_Handler,
		},
		{
			MethodName: "SetOrderStatus",
			Handler:    _LedgerService_SetOrderStatus_Handler,
		},
		{
			MethodName: "CreateOrder",
			Handler:    _LedgerService_CreateOrder_Handler,
		},
		{
			MethodName: "GetOrder",
			Handler:    _LedgerService_GetOrder_Handler,
		},
		{
			MethodName: "ListClientOrders",
			Handler:    _LedgerService_ListClientOrders_Handler,
		},
		{
			MethodName: "GetClientSummary",
			Handler:    _LedgerService_GetClientSummary_Handler,
		},
		{
			MethodName: "ResyncClientDebt",
			Handler:    _LedgerService_ResyncClientDebt_Handler,
		},
		{
			MethodName: "AuditOrder",
			Handler:    _LedgerService_AuditOrder_Handler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "proto/ledger/v1/ledger.proto",
}
