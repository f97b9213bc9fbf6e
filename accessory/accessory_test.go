package accessory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brutella/hap/db"
	"github.com/brutella/hap/gen"
	"github.com/brutella/hap/service"
)

func TestNewAccessoryInformationLayout(t *testing.T) {
	a := New(Info{
		Name:             "Kitchen Light",
		Manufacturer:     "Acme",
		Model:            "A1",
		SerialNumber:     "1234",
		FirmwareRevision: "1.0",
	}, CategoryLightbulb)

	require.Len(t, a.Services, 1)
	info := a.Services[0]
	assert.Equal(t, uint64(1), info.IID)
	assert.Equal(t, TypeAccessoryInformation, info.Type)

	require.Len(t, info.Characteristics, 6)
	assert.Equal(t, uint64(2), info.Characteristics[0].IID)
	assert.Equal(t, TypeIdentify, info.Characteristics[0].Type)
	assert.Equal(t, uint64(3), info.Characteristics[1].IID)
	assert.Equal(t, TypeManufacturer, info.Characteristics[1].Type)
	assert.Equal(t, uint64(7), info.Characteristics[5].IID)
	assert.Equal(t, TypeFirmwareRevision, info.Characteristics[5].Type)
}

func TestContainerAssignsStableAids(t *testing.T) {
	container := NewContainer()
	a1 := New(Info{Name: "Bridge"}, CategoryBridge)
	a2 := New(Info{Name: "Light"}, CategoryLightbulb)

	container.AddAccessory(a1)
	container.AddAccessory(a2)

	assert.Equal(t, uint64(1), a1.Aid)
	assert.Equal(t, uint64(2), a2.Aid)
	assert.Same(t, a2, container.ByAid(2))
}

func TestAddServiceFromCatalogAssignsIIDs(t *testing.T) {
	catalog, err := gen.Load(fixtureCharacteristics, fixtureServices)
	require.NoError(t, err)
	builder := service.NewBuilder(catalog)

	a := New(Info{Name: "Light"}, CategoryLightbulb)
	lightbulb, err := builder.NewService("Lightbulb")
	require.NoError(t, err)
	a.AddService(lightbulb)

	assert.Equal(t, uint64(8), lightbulb.IID)
	require.Len(t, lightbulb.Characteristics, 1)
	assert.Equal(t, uint64(9), lightbulb.Characteristics[0].IID)
}

func TestAddServiceWithIIDManagerSurvivesReorder(t *testing.T) {
	dir := t.TempDir()
	store, err := db.NewFileStore(dir, "iid-manager-accessory-test")
	require.NoError(t, err)
	mgr, err := db.LoadIIDManager(store)
	require.NoError(t, err)

	catalog, err := gen.Load(fixtureCharacteristics, fixtureServices)
	require.NoError(t, err)
	builder := service.NewBuilder(catalog)

	container := NewContainer()
	a := New(Info{Name: "Light"}, CategoryLightbulb)
	container.AddAccessory(a)
	a.SetIIDManager(mgr)

	lightbulb, err := builder.NewService("Lightbulb")
	require.NoError(t, err)
	a.AddService(lightbulb)
	firstIID := lightbulb.IID

	// A second accessory built later, in a fresh process, still resolves
	// the same service to the same iid via the persisted manager even
	// though a different service is added before it this time.
	reloaded, err := db.LoadIIDManager(store)
	require.NoError(t, err)

	again := New(Info{Name: "Light"}, CategoryLightbulb)
	container2 := NewContainer()
	container2.Accessories = append(container2.Accessories, again)
	again.Aid = a.Aid
	again.SetIIDManager(reloaded)

	again.AddService(service.New("49"))

	lightbulb2, err := builder.NewService("Lightbulb")
	require.NoError(t, err)
	again.AddService(lightbulb2)

	assert.Equal(t, firstIID, lightbulb2.IID)
}

func TestAddServiceWithIIDManagerBeforeAidAssignedUsesCounter(t *testing.T) {
	dir := t.TempDir()
	store, err := db.NewFileStore(dir, "iid-manager-unassigned-test")
	require.NoError(t, err)
	mgr, err := db.LoadIIDManager(store)
	require.NoError(t, err)

	catalog, err := gen.Load(fixtureCharacteristics, fixtureServices)
	require.NoError(t, err)
	builder := service.NewBuilder(catalog)

	a := New(Info{Name: "Light"}, CategoryLightbulb)
	a.SetIIDManager(mgr) // attached before Aid is assigned: manager can't key on aid 0

	lightbulb, err := builder.NewService("Lightbulb")
	require.NoError(t, err)
	a.AddService(lightbulb)

	assert.Equal(t, uint64(8), lightbulb.IID)
}

func TestIdentifyCallbackFiresOnWriteTrue(t *testing.T) {
	a := New(Info{Name: "Light"}, CategoryLightbulb)

	fired := false
	a.OnIdentify(func() { fired = true })

	identify := a.CharacteristicByIID(2)
	_, err := identify.ClientUpdateValue(true, nil)
	require.NoError(t, err)
	assert.True(t, fired)
}

func TestSerializeProducesAidAndServices(t *testing.T) {
	container := NewContainer()
	a := New(Info{Name: "Light", Manufacturer: "Acme", Model: "A1", SerialNumber: "S1", FirmwareRevision: "1.0"}, CategoryLightbulb)
	container.AddAccessory(a)

	out := container.Serialize()
	accessories := out["accessories"].([]map[string]interface{})
	require.Len(t, accessories, 1)
	assert.Equal(t, uint64(1), accessories[0]["aid"])
	assert.Len(t, accessories[0]["services"], 1)
}

var fixtureCharacteristics = []byte(`{
  "On": {"uuid": "25", "format": "bool", "perms": ["pr", "pw", "ev"]}
}`)

var fixtureServices = []byte(`{
  "Lightbulb": {"uuid": "43", "required": ["On"], "optional": []}
}`)
