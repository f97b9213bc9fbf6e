package hap

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brutella/hap/accessory"
)

func TestNewServerStandaloneAccessory(t *testing.T) {
	a := accessory.New(accessory.Info{Name: "Lamp", Manufacturer: "Acme"}, accessory.CategoryLightbulb)

	s, err := NewServer(Config{StoragePath: t.TempDir(), Pin: "001-02-003"}, a)
	require.NoError(t, err)

	assert.False(t, s.container.IsBridge)
	require.Len(t, s.container.Accessories, 1)
	assert.Equal(t, "001-02-003", s.identity.Pincode)
}

func TestNewServerWithExtraAccessoriesIsBridge(t *testing.T) {
	primary := accessory.New(accessory.Info{Name: "Bridge", Manufacturer: "Acme"}, accessory.CategoryBridge)
	extra := accessory.New(accessory.Info{Name: "Lamp", Manufacturer: "Acme"}, accessory.CategoryLightbulb)

	s, err := NewServer(Config{StoragePath: t.TempDir()}, primary, extra)
	require.NoError(t, err)

	assert.True(t, s.container.IsBridge)
	require.Len(t, s.container.Accessories, 2)
}

func TestNewServerRequiresStoragePath(t *testing.T) {
	a := accessory.New(accessory.Info{Name: "Lamp", Manufacturer: "Acme"}, accessory.CategoryLightbulb)

	_, err := NewServer(Config{}, a)
	assert.Error(t, err)
}

func TestListenAndServeStopsOnContextCancel(t *testing.T) {
	a := accessory.New(accessory.Info{Name: "Lamp", Manufacturer: "Acme"}, accessory.CategoryLightbulb)
	s, err := NewServer(Config{StoragePath: t.TempDir(), Addr: "127.0.0.1:0"}, a)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.ListenAndServe(ctx) }()

	require.Eventually(t, func() bool {
		return s.listener != nil
	}, time.Second, 10*time.Millisecond)

	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("ListenAndServe did not return after context cancellation")
	}
}
