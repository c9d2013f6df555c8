package pubsub

import (
	"testing"

	"github.com/fluxbase-eu/advancedsearch/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPubSub(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.ScalingConfig
		wantType interface{}
		errMsg   string
	}{
		{name: "empty backend", cfg: config.ScalingConfig{}, wantType: &LocalPubSub{}},
		{name: "local backend", cfg: config.ScalingConfig{Backend: "local"}, wantType: &LocalPubSub{}},
		{name: "postgres without pool", cfg: config.ScalingConfig{Backend: "postgres"}, errMsg: "database pool is required"},
		{name: "redis without url", cfg: config.ScalingConfig{Backend: "redis"}, errMsg: "redis_url is required"},
		{name: "redis with invalid url", cfg: config.ScalingConfig{Backend: "redis", RedisURL: "invalid://url"}, errMsg: "failed to connect to Redis"},
		{name: "unknown backend", cfg: config.ScalingConfig{Backend: "nats"}, errMsg: "valid options: local, postgres, redis"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ps, err := NewPubSub(&tt.cfg, nil)
			if tt.errMsg != "" {
				require.Error(t, err)
				assert.Nil(t, ps)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			require.NoError(t, err)
			defer ps.Close()
			assert.IsType(t, tt.wantType, ps)
		})
	}
}

func TestChannels(t *testing.T) {
	assert.Equal(t, "advsearch:vocabulary", VocabularyChannel)
	assert.Equal(t, []string{VocabularyChannel}, Channels())
}

func TestChannelNameSanitizing(t *testing.T) {
	tests := []struct {
		channel string
		pg      string
	}{
		{"advsearch:vocabulary", "advsearch__vocabulary"},
		{"plain", "plain"},
		{"a:b:c", "a__b__c"},
	}

	for _, tt := range tests {
		t.Run(tt.channel, func(t *testing.T) {
			assert.Equal(t, tt.pg, sanitizeChannelName(tt.channel))
			assert.Equal(t, tt.channel, unsanitizeChannelName(tt.pg))
		})
	}
}
