package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
		check   func(*testing.T, *Config)
	}{
		{
			name: "defaults without config file",
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, "localhost", cfg.Database.Host)
				assert.Equal(t, 5432, cfg.Database.Port)
				assert.Equal(t, "timetable", cfg.Database.Name)
				assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
				assert.Equal(t, "timetable.events", cfg.RabbitMQ.Exchange)
				assert.Equal(t, "thumbnail.refresh", cfg.RabbitMQ.ThumbnailRoutingKey)
				assert.Equal(t, "cache.gc.completed", cfg.RabbitMQ.GCRoutingKey)
				assert.Equal(t, 5*time.Minute, cfg.Sync.Interval)
				assert.Equal(t, 24*time.Hour, cfg.Sync.ChannelMaxAge)
				assert.Equal(t, 24*time.Hour, cfg.Freshness.FreeChatDuration)
				assert.Equal(t, 10*time.Minute, cfg.Freshness.LiveDuration)
				assert.Equal(t, 30*time.Minute, cfg.Freshness.DefaultDuration)
				assert.Equal(t, 10*time.Minute, cfg.Freshness.SoonLimit)
				assert.Equal(t, 5*time.Minute, cfg.Freshness.MaxAgeDefault)
				assert.Equal(t, 72*time.Hour, cfg.Freshness.RecentlyBorder)
				assert.Equal(t, 12*time.Hour, cfg.Freshness.MaxAgeBroadcaster)
				assert.Equal(t, 10000, cfg.YouTube.QuotaDailyLimit)
				assert.Equal(t, 90, cfg.YouTube.QuotaThresholdPercent)
				assert.True(t, cfg.GC.Enabled)
			},
		},
		{
			name: "environment overrides nested keys",
			env: map[string]string{
				"APP_SERVER_PORT":        "9090",
				"APP_DATABASE_HOST":      "testdb",
				"APP_DATABASE_PORT":      "5433",
				"APP_SYNC_INTERVAL":      "90s",
				"APP_SYNC_ACCOUNTS":      "youtube:UCuAXFkgsw1L7xaCfnd5JJOw,twitch:42",
				"APP_YOUTUBE_APIKEY":     "yt-key",
				"APP_TWITCH_CLIENTID":    "client",
				"APP_TWITCH_ACCESSTOKEN": "token",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 9090, cfg.Server.Port)
				assert.Equal(t, "testdb", cfg.Database.Host)
				assert.Equal(t, 5433, cfg.Database.Port)
				assert.Equal(t, 90*time.Second, cfg.Sync.Interval)

				accounts, err := cfg.Sync.ParseAccounts()
				require.NoError(t, err)
				assert.Equal(t, []Account{{Platform: "youtube", ID: "UCuAXFkgsw1L7xaCfnd5JJOw"}, {Platform: "twitch", ID: "42"}}, accounts)
			},
		},
		{
			name:    "youtube account without api key",
			env:     map[string]string{"APP_SYNC_ACCOUNTS": "youtube:UCuAXFkgsw1L7xaCfnd5JJOw"},
			wantErr: "needs youtube.apikey",
		},
		{
			name:    "twitch account without credentials",
			env:     map[string]string{"APP_SYNC_ACCOUNTS": "twitch:42"},
			wantErr: "needs twitch.clientid",
		},
		{
			name:    "invalid quota threshold",
			env:     map[string]string{"APP_YOUTUBE_QUOTATHRESHOLDPERCENT": "0"},
			wantErr: "quota threshold",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, cfg)
			tt.check(t, cfg)
		})
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	viper.Reset()
	dir := t.TempDir()
	yaml := `
server:
  port: 7070
sync:
  interval: 1m
  accounts:
    - youtube:UCuAXFkgsw1L7xaCfnd5JJOw
youtube:
  apikey: from-file
heuristic:
  keywords:
    - "雑談"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, time.Minute, cfg.Sync.Interval)
	assert.Equal(t, "from-file", cfg.YouTube.APIKey)
	assert.Equal(t, []string{"雑談"}, cfg.Heuristic.Keywords)
}

func TestParseAccounts(t *testing.T) {
	tests := []struct {
		name    string
		in      []string
		want    []Account
		wantErr bool
	}{
		{name: "empty", in: nil, want: nil},
		{name: "list", in: []string{"youtube:UCuAXFkgsw1L7xaCfnd5JJOw", "Twitch:7"}, want: []Account{{"youtube", "UCuAXFkgsw1L7xaCfnd5JJOw"}, {"twitch", "7"}}},
		{name: "comma separated", in: []string{"youtube:UCuAXFkgsw1L7xaCfnd5JJOw, twitch:7"}, want: []Account{{"youtube", "UCuAXFkgsw1L7xaCfnd5JJOw"}, {"twitch", "7"}}},
		{name: "missing id", in: []string{"youtube:"}, wantErr: true},
		{name: "malformed channel id", in: []string{"youtube:mychannel"}, wantErr: true},
		{name: "non numeric twitch id", in: []string{"twitch:somebody"}, wantErr: true},
		{name: "unknown platform", in: []string{"vimeo:1"}, wantErr: true},
		{name: "no separator", in: []string{"UCuAXFkgsw1L7xaCfnd5JJOw"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SyncConfig{Accounts: tt.in}.ParseAccounts()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
