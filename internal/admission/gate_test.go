// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package admission

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tolstoyevsky/shirow/internal/telemetry"
	"github.com/tolstoyevsky/shirow/internal/token"
	"github.com/tolstoyevsky/shirow/internal/tokenstore"
)

var testKey = []byte("secret")

func mint(t *testing.T, userID int64) string {
	t.Helper()
	encoded, err := token.MintIdentity(token.Identity{UserID: userID, IP: "127.0.0.1"},
		testKey, token.DefaultAlgorithm, time.Hour)
	require.NoError(t, err)
	return encoded
}

func TestGate_Admit(t *testing.T) {
	valid := mint(t, 42)

	testCases := []struct {
		name           string
		opts           Options
		raw            string
		expectedStatus int
		expectedUserID int64
	}{
		{
			name:           "missing token",
			opts:           Options{Key: testKey},
			raw:            "",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "missing key",
			opts:           Options{},
			raw:            valid,
			expectedStatus: http.StatusInternalServerError,
		},
		{
			name:           "missing key takes priority over mock token",
			opts:           Options{AllowMockToken: true},
			raw:            token.MockToken,
			expectedStatus: http.StatusInternalServerError,
		},
		{
			name:           "mock token disabled",
			opts:           Options{Key: testKey},
			raw:            token.MockToken,
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "mock token enabled",
			opts:           Options{Key: testKey, AllowMockToken: true},
			raw:            token.MockToken,
			expectedStatus: http.StatusSwitchingProtocols,
			expectedUserID: token.MockUserID,
		},
		{
			name:           "garbage",
			opts:           Options{Key: testKey},
			raw:            "not-a-token",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "wrong key",
			opts:           Options{Key: []byte("other")},
			raw:            valid,
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "valid",
			opts:           Options{Key: testKey},
			raw:            valid,
			expectedStatus: http.StatusSwitchingProtocols,
			expectedUserID: 42,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			g, err := NewGate(tc.opts)
			require.NoError(t, err)

			d := g.Admit(context.Background(), tc.raw)
			assert.Equal(t, tc.expectedStatus, d.Status())
			if tc.expectedUserID == 0 {
				assert.False(t, d.Admitted())
				assert.Equal(t, StatePending, d.State())
				return
			}
			require.True(t, d.Admitted())
			assert.Equal(t, StateAdmitted, d.State())
			assert.Equal(t, tc.expectedUserID, d.Identity().UserID)
		})
	}
}

func TestGate_Admit_expired(t *testing.T) {
	encoded, err := token.Mint(&token.Claims{
		UserID: 1,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}, testKey, token.DefaultAlgorithm)
	require.NoError(t, err)

	g, err := NewGate(Options{Key: testKey})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, g.Admit(context.Background(), encoded).Status())
}

func TestNewGate_unsupportedAlgorithm(t *testing.T) {
	_, err := NewGate(Options{Key: testKey, Algorithm: "XS256"})
	var uae *token.UnsupportedAlgorithmErr
	require.True(t, errors.As(err, &uae))
}

func TestGate_Admit_store(t *testing.T) {
	ctx := context.Background()
	store := tokenstore.NewMemoryStore()
	g, err := NewGate(Options{Key: testKey, Store: store})
	require.NoError(t, err)

	live := mint(t, 7)

	// not stored yet
	assert.Equal(t, http.StatusUnauthorized, g.Admit(ctx, live).Status())

	require.NoError(t, store.Set(ctx, 7, live, 0))
	d := g.Admit(ctx, live)
	require.True(t, d.Admitted())
	assert.Equal(t, int64(7), d.Identity().UserID)

	// well-signed but superseded
	other, err := token.MintIdentity(token.Identity{UserID: 7, IP: "10.0.0.1"}, testKey, token.DefaultAlgorithm, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, g.Admit(ctx, other).Status())

	require.NoError(t, store.Revoke(ctx, 7))
	assert.Equal(t, http.StatusUnauthorized, g.Admit(ctx, live).Status())
}

type failingStore struct {
	tokenstore.Store
}

func (failingStore) Get(context.Context, int64) (string, error) {
	return "", errors.New("connection refused")
}

func TestGate_Admit_storeUnreachable(t *testing.T) {
	g, err := NewGate(Options{Key: testKey, Store: failingStore{}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, g.Admit(context.Background(), mint(t, 1)).Status())
}

func TestGate_Reject(t *testing.T) {
	g, err := NewGate(Options{Key: testKey})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	g.Reject(w, Reject(http.StatusUnauthorized))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, `Token realm="shirow"`, w.Header().Get("WWW-Authenticate"))

	w = httptest.NewRecorder()
	g.Reject(w, Reject(http.StatusInternalServerError))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Empty(t, w.Header().Get("WWW-Authenticate"))
}

func TestGate_metrics(t *testing.T) {
	m := telemetry.NewMetrics(nil)
	g, err := NewGate(Options{Key: testKey})
	require.NoError(t, err)
	g.SetMetrics(m)

	g.Admit(context.Background(), "")
	g.Admit(context.Background(), mint(t, 3))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.AdmissionsCounter().WithLabelValues("401")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.AdmissionsCounter().WithLabelValues("101")))
}
