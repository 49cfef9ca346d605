package app_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/dmehra2102/Ordinal/internal/app"
	"github.com/dmehra2102/Ordinal/internal/infrastructure/lock"
	"github.com/dmehra2102/Ordinal/internal/infrastructure/memory"
	"github.com/dmehra2102/Ordinal/internal/interceptors"
	"github.com/dmehra2102/Ordinal/internal/ordering"
	"github.com/dmehra2102/Ordinal/pkg/auth"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

const secret = "service-test-secret"

func newClient(t *testing.T) *app.ItemOrderingClient {
	t.Helper()
	logger := zaptest.NewLogger(t)

	coord := ordering.New(memory.NewStore(), lock.NewMutexLocker(), logger)
	svc := app.NewItemOrderingService(coord, logger, auth.NewAuthorizer())

	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(
		interceptors.RecoveryInterceptor(logger),
		interceptors.LoggingInterceptor(logger),
		interceptors.MetricsInterceptor(),
		interceptors.AuthInterceptor(secret),
	))
	app.RegisterItemOrderingServer(srv, svc)

	lis := bufconn.Listen(1 << 20)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return app.NewItemOrderingClient(conn)
}

func as(t *testing.T, user string, roles ...string) context.Context {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": user,
		"roles":   roles,
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+token)
}

func invoke(t *testing.T, c *app.ItemOrderingClient, ctx context.Context, method string, req map[string]any) (map[string]any, error) {
	t.Helper()
	in, err := structpb.NewStruct(req)
	require.NoError(t, err)
	out, err := c.Invoke(ctx, method, in)
	if err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

func mustInvoke(t *testing.T, c *app.ItemOrderingClient, ctx context.Context, method string, req map[string]any) map[string]any {
	t.Helper()
	out, err := invoke(t, c, ctx, method, req)
	require.NoError(t, err)
	return out
}

func titles(t *testing.T, resp map[string]any) []string {
	t.Helper()
	items, _ := resp["items"].([]any)
	out := make([]string, len(items))
	for i, raw := range items {
		out[i] = raw.(map[string]any)["title"].(string)
	}
	return out
}

func itemID(resp map[string]any) float64 {
	return resp["item"].(map[string]any)["id"].(float64)
}

func TestService_Lifecycle(t *testing.T) {
	c := newClient(t)
	teacher := as(t, "t1", auth.RoleTeacher)
	parent := map[string]any{"kind": "faq", "node_id": 5}

	with := func(extra map[string]any) map[string]any {
		m := map[string]any{}
		for k, v := range parent {
			m[k] = v
		}
		for k, v := range extra {
			m[k] = v
		}
		return m
	}

	var ids []float64
	for _, q := range []string{"a", "b", "c"} {
		resp := mustInvoke(t, c, teacher, "CreateItem", with(map[string]any{"title": q, "body": "answer " + q}))
		ids = append(ids, itemID(resp))
		assert.Equal(t, float64(len(ids)), resp["item"].(map[string]any)["position"])
	}

	resp := mustInvoke(t, c, teacher, "MoveItem", with(map[string]any{"item_id": ids[2], "direction": "up"}))
	assert.Equal(t, true, resp["changed"])

	resp = mustInvoke(t, c, teacher, "MoveItem", with(map[string]any{"item_id": ids[0], "direction": "up"}))
	assert.Equal(t, false, resp["changed"])

	resp = mustInvoke(t, c, teacher, "ListItems", parent)
	assert.Equal(t, []string{"a", "c", "b"}, titles(t, resp))

	resp = mustInvoke(t, c, teacher, "SetItemPosition", with(map[string]any{"item_id": ids[1], "position": 1}))
	assert.Equal(t, true, resp["changed"])

	resp = mustInvoke(t, c, teacher, "UpdateItem", with(map[string]any{"item_id": ids[1], "title": "B", "body": "new"}))
	assert.Equal(t, "B", resp["item"].(map[string]any)["title"])

	resp = mustInvoke(t, c, teacher, "DeleteItem", with(map[string]any{"item_id": ids[0]}))
	assert.Len(t, resp["items"], 2, "deleted item and the shifted sibling")

	resp = mustInvoke(t, c, teacher, "ListItems", parent)
	assert.Equal(t, []string{"B", "c"}, titles(t, resp))

	resp = mustInvoke(t, c, teacher, "VerifyList", parent)
	assert.Equal(t, true, resp["ok"])
	assert.Equal(t, float64(2), resp["count"])

	resp = mustInvoke(t, c, teacher, "GetItem", with(map[string]any{"item_id": ids[2]}))
	assert.Equal(t, float64(2), resp["item"].(map[string]any)["position"])
}

func TestService_HiddenItems(t *testing.T) {
	c := newClient(t)
	teacher := as(t, "t1", auth.RoleTeacher)
	student := as(t, "s1", auth.RoleStudent)
	parent := map[string]any{"kind": "bibliography", "node_id": 3}

	first := mustInvoke(t, c, teacher, "CreateItem", map[string]any{"kind": "bibliography", "node_id": 3, "title": "Knuth"})
	mustInvoke(t, c, teacher, "CreateItem", map[string]any{"kind": "bibliography", "node_id": 3, "title": "Sedgewick"})
	mustInvoke(t, c, teacher, "SetItemHidden", map[string]any{"kind": "bibliography", "node_id": 3, "item_id": itemID(first), "hidden": true})

	withHidden := map[string]any{"kind": "bibliography", "node_id": 3, "include_hidden": true}
	assert.Equal(t, []string{"Knuth", "Sedgewick"}, titles(t, mustInvoke(t, c, teacher, "ListItems", withHidden)))
	assert.Equal(t, []string{"Sedgewick"}, titles(t, mustInvoke(t, c, student, "ListItems", withHidden)))
	assert.Equal(t, []string{"Sedgewick"}, titles(t, mustInvoke(t, c, teacher, "ListItems", parent)))

	_, err := invoke(t, c, student, "GetItem", map[string]any{"kind": "bibliography", "node_id": 3, "item_id": itemID(first)})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestService_Errors(t *testing.T) {
	c := newClient(t)
	teacher := as(t, "t1", auth.RoleTeacher)
	student := as(t, "s1", auth.RoleStudent)

	created := mustInvoke(t, c, teacher, "CreateItem", map[string]any{"kind": "link", "node_id": 1, "title": "home"})
	id := itemID(created)

	tests := []struct {
		name   string
		ctx    context.Context
		method string
		req    map[string]any
		want   codes.Code
	}{
		{"unauthenticated", context.Background(), "ListItems", map[string]any{"kind": "link", "node_id": 1}, codes.Unauthenticated},
		{"student cannot create", student, "CreateItem", map[string]any{"kind": "link", "node_id": 1, "title": "x"}, codes.PermissionDenied},
		{"no roles cannot list", as(t, "n1"), "ListItems", map[string]any{"kind": "link", "node_id": 1}, codes.PermissionDenied},
		{"unknown kind", teacher, "ListItems", map[string]any{"kind": "wiki", "node_id": 1}, codes.InvalidArgument},
		{"unknown field", teacher, "ListItems", map[string]any{"kind": "link", "node_id": 1, "color": "red"}, codes.InvalidArgument},
		{"empty title", teacher, "CreateItem", map[string]any{"kind": "link", "node_id": 1, "title": " "}, codes.InvalidArgument},
		{"bad direction", teacher, "MoveItem", map[string]any{"kind": "link", "node_id": 1, "item_id": id, "direction": "left"}, codes.InvalidArgument},
		{"position out of range", teacher, "SetItemPosition", map[string]any{"kind": "link", "node_id": 1, "item_id": id, "position": 9}, codes.InvalidArgument},
		{"foreign parent", teacher, "DeleteItem", map[string]any{"kind": "link", "node_id": 2, "item_id": id}, codes.NotFound},
		{"negative position", teacher, "SetItemPosition", map[string]any{"kind": "link", "node_id": 1, "item_id": id, "position": -1}, codes.InvalidArgument},
		{"fractional position", teacher, "SetItemPosition", map[string]any{"kind": "link", "node_id": 1, "item_id": id, "position": 1.5}, codes.InvalidArgument},
		{"fractional item id", teacher, "DeleteItem", map[string]any{"kind": "link", "node_id": 1, "item_id": id + 0.5}, codes.InvalidArgument},
		{"fractional node id", teacher, "ListItems", map[string]any{"kind": "link", "node_id": 1.25}, codes.InvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := invoke(t, c, tt.ctx, tt.method, tt.req)
			assert.Equal(t, tt.want, status.Code(err), "err: %v", err)
		})
	}

	resp := mustInvoke(t, c, student, "ListItems", map[string]any{"kind": "link", "node_id": 1})
	assert.Equal(t, []string{"home"}, titles(t, resp))
}
