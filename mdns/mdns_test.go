package mdns

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brutella/hap/accessory"
	"github.com/brutella/hap/db"
)

func newTestAdvertiser(t *testing.T) *Advertiser {
	t.Helper()

	store, err := db.NewFileStore(t.TempDir(), "mdns-test")
	require.NoError(t, err)
	identity, err := db.LoadOrCreateIdentity(store)
	require.NoError(t, err)
	pairings, err := db.LoadPairings(store)
	require.NoError(t, err)
	configVer, err := db.LoadConfigVersion(store)
	require.NoError(t, err)

	container := accessory.NewContainer()
	a := accessory.New(accessory.Info{Name: "Lamp", Manufacturer: "Acme"}, accessory.CategoryLightbulb)
	container.AddAccessory(a)

	return New("Lamp", 9999, a.Category, identity, pairings, configVer, container)
}

func TestTxtRecordReflectsUnpairedState(t *testing.T) {
	a := newTestAdvertiser(t)

	txt := a.txtRecord()
	assert.Equal(t, "1", txt["c#"])
	assert.Equal(t, a.identity.DeviceID, txt["id"])

	sf := txt["sf"]
	assert.NotEqual(t, "0", sf, "unpaired accessory must set the not-paired status bit")
}

func TestCheckTopologyIsNoopWithoutStructuralChange(t *testing.T) {
	a := newTestAdvertiser(t)

	a.lastDigest = a.container.StructuralDigest()
	before := a.configVer.Value()

	require.NoError(t, a.CheckTopology())
	assert.Equal(t, before, a.configVer.Value(), "config version must not move when structure is unchanged")
}

func TestCheckTopologyBumpsConfigVersionOnStructuralChange(t *testing.T) {
	a := newTestAdvertiser(t)

	a.lastDigest = a.container.StructuralDigest()
	before := a.configVer.Value()

	extra := accessory.New(accessory.Info{Name: "Switch", Manufacturer: "Acme"}, accessory.CategorySwitch)
	a.container.AddAccessory(extra)

	require.NoError(t, a.CheckTopology())
	assert.Greater(t, a.configVer.Value(), before)
}
