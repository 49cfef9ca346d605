package interceptors

import (
	"context"
	"strings"

	"github.com/dmehra2102/Ordinal/pkg/auth"
	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

var publicMethods = map[string]bool{
	"/grpc.health.v1.Health/Check": true,
	"/grpc.health.v1.Health/Watch": true,
}

// AuthInterceptor verifies the bearer token and stores the caller identity in
// the request context. Reflection is public while it is registered.
func AuthInterceptor(jwtSecret string) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp any, err error) {
		if isPublic(info.FullMethod) {
			return handler(ctx, req)
		}

		userCtx, err := authenticate(ctx, jwtSecret)
		if err != nil {
			return nil, err
		}

		return handler(auth.ContextWithUserContext(ctx, userCtx), req)
	}
}

func isPublic(method string) bool {
	return publicMethods[method] || strings.HasPrefix(method, "/grpc.reflection.")
}

func authenticate(ctx context.Context, jwtSecret string) (*auth.UserContext, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing metadata")
	}

	authHeader := md.Get("authorization")
	if len(authHeader) == 0 {
		return nil, status.Error(codes.Unauthenticated, "missing authorization header")
	}

	tokenString := strings.TrimPrefix(authHeader[0], "Bearer ")
	if tokenString == authHeader[0] {
		return nil, status.Error(codes.Unauthenticated, "invalid authorization header format")
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, status.Error(codes.Unauthenticated, "invalid token signing method")
		}
		return []byte(jwtSecret), nil
	}, jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return nil, status.Error(codes.Unauthenticated, "invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "invalid token claims")
	}

	userID, _ := claims["user_id"].(string)
	if userID == "" {
		userID, _ = claims.GetSubject()
	}
	if userID == "" {
		return nil, status.Error(codes.Unauthenticated, "token has no subject")
	}

	return &auth.UserContext{
		UserID: userID,
		Roles:  extractRoles(claims["roles"]),
	}, nil
}

func extractRoles(rolesInterface any) []string {
	if rolesInterface == nil {
		return []string{}
	}

	rolesSlice, ok := rolesInterface.([]any)
	if !ok {
		return []string{}
	}

	roles := make([]string, 0, len(rolesSlice))
	for _, role := range rolesSlice {
		if roleStr, ok := role.(string); ok {
			roles = append(roles, roleStr)
		}
	}

	return roles
}
