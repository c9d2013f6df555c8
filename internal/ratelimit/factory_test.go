package ratelimit

import (
	"testing"

	"github.com/fluxbase-eu/advancedsearch/internal/config"
	"github.com/fluxbase-eu/advancedsearch/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStore(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.ScalingConfig
		withDB  bool
		want    interface{}
		wantErr string
	}{
		{name: "default is memory", cfg: config.ScalingConfig{}, want: &MemoryStore{}},
		{name: "local", cfg: config.ScalingConfig{Backend: "local"}, want: &MemoryStore{}},
		{name: "postgres", cfg: config.ScalingConfig{Backend: "postgres"}, withDB: true, want: &PostgresStore{}},
		{name: "postgres without db", cfg: config.ScalingConfig{Backend: "postgres"}, wantErr: "database is required"},
		{name: "redis without url", cfg: config.ScalingConfig{Backend: "redis"}, wantErr: "redis_url is required"},
		{name: "unknown backend", cfg: config.ScalingConfig{Backend: "etcd"}, wantErr: "unknown rate limit backend"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var store Store
			var err error
			if tt.withDB {
				store, err = NewStore(&tt.cfg, &testutil.MockExecutor{})
			} else {
				store, err = NewStore(&tt.cfg, nil)
			}

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			defer store.Close()
			assert.IsType(t, tt.want, store)
		})
	}
}
