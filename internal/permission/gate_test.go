package permission

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeSettings struct {
	channels   []int64
	roles      []int64
	channelErr error
	roleErr    error
}

func (f fakeSettings) AllowedChannels(context.Context) ([]int64, error) {
	return f.channels, f.channelErr
}

func (f fakeSettings) ManagerRoles(context.Context) ([]int64, error) {
	return f.roles, f.roleErr
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGate_IsChannelAllowed(t *testing.T) {
	ctx := context.Background()

	testCases := []struct {
		name     string
		settings fakeSettings
		channel  int64
		want     bool
	}{
		{name: "empty allow-list allows all", settings: fakeSettings{}, channel: 1, want: true},
		{name: "listed channel", settings: fakeSettings{channels: []int64{1, 2}}, channel: 2, want: true},
		{name: "unlisted channel", settings: fakeSettings{channels: []int64{1, 2}}, channel: 3, want: false},
		{name: "read failure fails closed", settings: fakeSettings{channelErr: errors.New("db down")}, channel: 1, want: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			gate := NewGate(tc.settings, 0, testLogger())
			assert.Equal(t, tc.want, gate.IsChannelAllowed(ctx, tc.channel))
		})
	}
}

func TestGate_IsAdmin(t *testing.T) {
	ctx := context.Background()
	const superAdmin = int64(1000)

	testCases := []struct {
		name     string
		settings fakeSettings
		caller   Caller
		want     bool
	}{
		{name: "super admin", settings: fakeSettings{}, caller: Caller{UserID: superAdmin}, want: true},
		{name: "platform admin", settings: fakeSettings{}, caller: Caller{UserID: 2, IsPlatformAdmin: true}, want: true},
		{name: "manager role holder", settings: fakeSettings{roles: []int64{7}}, caller: Caller{UserID: 3, RoleIDs: []int64{5, 7}}, want: true},
		{name: "unrelated roles", settings: fakeSettings{roles: []int64{7}}, caller: Caller{UserID: 3, RoleIDs: []int64{5}}, want: false},
		{name: "no roles", settings: fakeSettings{roles: []int64{7}}, caller: Caller{UserID: 3}, want: false},
		{name: "role read failure", settings: fakeSettings{roleErr: errors.New("db down")}, caller: Caller{UserID: 3, RoleIDs: []int64{7}}, want: false},
		{name: "role read failure still allows super admin", settings: fakeSettings{roleErr: errors.New("db down")}, caller: Caller{UserID: superAdmin, RoleIDs: []int64{7}}, want: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			gate := NewGate(tc.settings, superAdmin, testLogger())
			assert.Equal(t, tc.want, gate.IsAdmin(ctx, tc.caller))
		})
	}
}

func TestGate_IsGuildManagerIgnoresManagerRoles(t *testing.T) {
	gate := NewGate(fakeSettings{roles: []int64{7}}, 1000, testLogger())

	assert.True(t, gate.IsGuildManager(Caller{UserID: 1000}))
	assert.True(t, gate.IsGuildManager(Caller{UserID: 1, IsPlatformAdmin: true}))
	assert.False(t, gate.IsGuildManager(Caller{UserID: 1, RoleIDs: []int64{7}}))
}

func TestGate_ZeroSuperAdminDisabled(t *testing.T) {
	gate := NewGate(fakeSettings{}, 0, testLogger())
	assert.False(t, gate.IsGuildManager(Caller{UserID: 0}))
}
