package app

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name. Requests and
// responses are google.protobuf.Struct documents with snake_case keys.
const ServiceName = "ordinal.v1.ItemOrdering"

type ItemOrderingServer interface {
	CreateItem(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetItem(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListItems(context.Context, *structpb.Struct) (*structpb.Struct, error)
	MoveItem(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetItemPosition(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteItem(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetItemHidden(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateItem(context.Context, *structpb.Struct) (*structpb.Struct, error)
	VerifyList(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(ItemOrderingServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(name string, call unaryMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ItemOrderingServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + ServiceName + "/" + name,
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(ItemOrderingServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var ItemOrderingServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ItemOrderingServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("CreateItem", ItemOrderingServer.CreateItem),
		unaryHandler("GetItem", ItemOrderingServer.GetItem),
		unaryHandler("ListItems", ItemOrderingServer.ListItems),
		unaryHandler("MoveItem", ItemOrderingServer.MoveItem),
		unaryHandler("SetItemPosition", ItemOrderingServer.SetItemPosition),
		unaryHandler("DeleteItem", ItemOrderingServer.DeleteItem),
		unaryHandler("SetItemHidden", ItemOrderingServer.SetItemHidden),
		unaryHandler("UpdateItem", ItemOrderingServer.UpdateItem),
		unaryHandler("VerifyList", ItemOrderingServer.VerifyList),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ordinal/v1/item_ordering.proto",
}

func RegisterItemOrderingServer(s grpc.ServiceRegistrar, srv ItemOrderingServer) {
	s.RegisterService(&ItemOrderingServiceDesc, srv)
}

// ItemOrderingClient calls the service over a client connection.
type ItemOrderingClient struct {
	cc grpc.ClientConnInterface
}

func NewItemOrderingClient(cc grpc.ClientConnInterface) *ItemOrderingClient {
	return &ItemOrderingClient{cc: cc}
}

// Invoke calls method with in and returns the response document.
func (c *ItemOrderingClient) Invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
