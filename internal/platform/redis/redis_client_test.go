package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want Config
	}{
		{
			name: "host and port",
			env:  map[string]string{"REDIS_HOST": "cache", "REDIS_PORT": "6380", "REDIS_PASSWORD": "secret", "REDIS_DB": "2"},
			want: Config{Addr: "cache:6380", Password: "secret", DB: 2},
		},
		{
			name: "default port",
			env:  map[string]string{"REDIS_HOST": "cache", "REDIS_PORT": "", "REDIS_PASSWORD": "", "REDIS_DB": ""},
			want: Config{Addr: "cache:6379"},
		},
		{
			name: "disabled",
			env:  map[string]string{"REDIS_HOST": "", "REDIS_PORT": "6379", "REDIS_PASSWORD": "", "REDIS_DB": "x"},
			want: Config{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg := LoadConfig()
			assert.Equal(t, tt.want, cfg)
			assert.Equal(t, tt.want.Addr != "", cfg.Enabled())
		})
	}
}
