package httpfeed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StrathCole/oracle-resolver/pkg/upstream"
)

func serve(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Latest(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		answer string
	}{
		{"string value", `{"value":"2500.12345678","timestamp":1700000000}`, "250012345678"},
		{"number value", `{"value":2500.5,"timestamp":1700000000}`, "250050000000"},
		{"excess digits truncated", `{"value":"1.123456789","timestamp":1700000000}`, "112345678"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := serve(t, http.StatusOK, tt.body)
			c := New(srv.URL, 8, time.Second)

			v, err := c.Latest(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.answer, v.Answer.String())
			assert.Equal(t, int64(1700000000), v.UpdatedAt.Unix())
		})
	}
}

func TestClient_LatestRound(t *testing.T) {
	srv := serve(t, http.StatusOK, `{"value":"1","timestamp":1700000000}`)
	round, err := New(srv.URL, 6, 0).LatestRound(context.Background())
	require.NoError(t, err)
	assert.True(t, round.Complete())
	assert.Equal(t, "1000000", round.Answer.String())
}

func TestClient_Errors(t *testing.T) {
	t.Run("status", func(t *testing.T) {
		srv := serve(t, http.StatusBadGateway, `{}`)
		_, err := New(srv.URL, 8, time.Second).Latest(context.Background())
		require.ErrorIs(t, err, ErrUnexpectedStatus)
	})

	t.Run("malformed", func(t *testing.T) {
		srv := serve(t, http.StatusOK, `{"value":"abc","timestamp":1}`)
		_, err := New(srv.URL, 8, time.Second).Latest(context.Background())
		require.ErrorIs(t, err, upstream.ErrMalformedResponse)
	})

	t.Run("missing value", func(t *testing.T) {
		srv := serve(t, http.StatusOK, `{"timestamp":1}`)
		_, err := New(srv.URL, 8, time.Second).Decimals(context.Background())
		require.ErrorIs(t, err, upstream.ErrMalformedResponse)
	})

	t.Run("zero timestamp", func(t *testing.T) {
		srv := serve(t, http.StatusOK, `{"value":"1"}`)
		v, err := New(srv.URL, 8, time.Second).Latest(context.Background())
		require.NoError(t, err)
		assert.True(t, v.UpdatedAt.IsZero())
	})
}
