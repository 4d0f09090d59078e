package credential

import (
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/trackrelay/internal/model"
)

func newTestVault(t *testing.T, items ...keyring.Item) *Vault {
	t.Helper()
	return NewVault(keyring.NewArrayKeyring(items))
}

func TestVault_SetGetDelete(t *testing.T) {
	v := newTestVault(t)

	got, err := v.Get(KeyChatToken)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, v.Set(KeyChatToken, "123:abc"))
	got, err = v.Get(KeyChatToken)
	require.NoError(t, err)
	assert.Equal(t, "123:abc", got)

	require.NoError(t, v.Delete(KeyChatToken))
	got, err = v.Get(KeyChatToken)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestResolve(t *testing.T) {
	stored := []keyring.Item{
		{Key: KeyTrackerToken, Data: []byte("perm:stored")},
		{Key: KeyTrackerPassword, Data: []byte("hunter2")},
		{Key: KeyChatToken, Data: []byte("bot:stored")},
	}

	tests := []struct {
		name string
		in   model.AppConfig
		want model.AppConfig
	}{
		{
			name: "token from keyring",
			in:   model.AppConfig{},
			want: model.AppConfig{
				Tracker: model.TrackerConfig{Token: "perm:stored"},
				Chat:    model.ChatConfig{Token: "bot:stored"},
			},
		},
		{
			name: "password for login",
			in:   model.AppConfig{Tracker: model.TrackerConfig{Login: "bot"}},
			want: model.AppConfig{
				Tracker: model.TrackerConfig{Login: "bot", Password: "hunter2"},
				Chat:    model.ChatConfig{Token: "bot:stored"},
			},
		},
		{
			name: "config wins",
			in: model.AppConfig{
				Tracker: model.TrackerConfig{Token: "perm:env"},
				Chat:    model.ChatConfig{Token: "bot:env"},
			},
			want: model.AppConfig{
				Tracker: model.TrackerConfig{Token: "perm:env"},
				Chat:    model.ChatConfig{Token: "bot:env"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.in
			require.NoError(t, newTestVault(t, stored...).Resolve(&cfg))
			assert.Equal(t, tt.want, cfg)
		})
	}
}
