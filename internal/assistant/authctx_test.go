package assistant

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func token(t *testing.T, key []byte, method jwt.SigningMethod, sub string, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(method, jwt.RegisteredClaims{
		Subject:   sub,
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString(key)
	require.NoError(t, err)
	return tok
}

func withBearer(tok string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer "+tok))
}

func TestUserIDFromCtx(t *testing.T) {
	_, ok := UserIDFromCtx(context.Background())
	require.False(t, ok)

	id, ok := UserIDFromCtx(WithUserID(context.Background(), "u-1"))
	require.True(t, ok)
	require.Equal(t, "u-1", id)

	_, ok = UserIDFromCtx(WithUserID(context.Background(), ""))
	require.False(t, ok)
}

func TestAuthUnary(t *testing.T) {
	key := []byte("secret")
	interceptor := AuthUnary(key)
	info := &grpc.UnaryServerInfo{FullMethod: GenerateMethod}
	handler := func(ctx context.Context, _ any) (any, error) {
		id, _ := UserIDFromCtx(ctx)
		return id, nil
	}
	hour := time.Now().Add(time.Hour)

	resp, err := interceptor(withBearer(token(t, key, jwt.SigningMethodHS256, "u-1", hour)), nil, info, handler)
	require.NoError(t, err)
	require.Equal(t, "u-1", resp)

	cases := map[string]context.Context{
		"no metadata": context.Background(),
		"wrong key":   withBearer(token(t, []byte("other"), jwt.SigningMethodHS256, "u-1", hour)),
		"wrong alg":   withBearer(token(t, key, jwt.SigningMethodHS512, "u-1", hour)),
		"expired":     withBearer(token(t, key, jwt.SigningMethodHS256, "u-1", time.Now().Add(-time.Hour))),
		"no subject":  withBearer(token(t, key, jwt.SigningMethodHS256, "", hour)),
		"garbage":     withBearer("not-a-jwt"),
	}
	for name, ctx := range cases {
		_, err := interceptor(ctx, nil, info, handler)
		require.Equal(t, codes.Unauthenticated, status.Code(err), name)
	}
}
