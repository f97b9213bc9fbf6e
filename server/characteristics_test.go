package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brutella/hap/accessory"
	"github.com/brutella/hap/characteristic"
	"github.com/brutella/hap/db"
	"github.com/brutella/hap/event"
	"github.com/brutella/hap/service"
)

func newTestServer(t *testing.T) (*Server, *accessory.Accessory) {
	t.Helper()

	container := accessory.NewContainer()
	a := accessory.New(accessory.Info{Name: "Lamp", Manufacturer: "Acme"}, accessory.CategoryLightbulb)

	on := characteristic.New("25", characteristic.FormatBool)
	on.Perms = []characteristic.Permission{characteristic.PermRead, characteristic.PermWrite, characteristic.PermEvents}
	on.SetValue(false)

	lightbulb := service.New("43")
	lightbulb.AddCharacteristic(on)
	a.AddService(lightbulb)
	container.AddAccessory(a)

	store, err := db.NewFileStore(t.TempDir(), "srv-test")
	require.NoError(t, err)
	identity, err := db.LoadOrCreateIdentity(store)
	require.NoError(t, err)
	pairings, err := db.LoadPairings(store)
	require.NoError(t, err)

	s := New(Config{
		Container:  container,
		Identity:   identity,
		Pairings:   pairings,
		Dispatcher: event.New(0),
	})
	return s, a
}

func TestGetCharacteristicsReturnsValue(t *testing.T) {
	s, a := newTestServer(t)
	iid := a.Services[1].Characteristics[0].IID

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/characteristics?id=1.%d", iid), nil)
	cs := &connState{}
	req = req.WithContext(context.WithValue(req.Context(), connStateKey, cs))
	rec := httptest.NewRecorder()

	s.getCharacteristics(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	chars := body["characteristics"].([]interface{})
	require.Len(t, chars, 1)
	entry := chars[0].(map[string]interface{})
	assert.Equal(t, false, entry["value"])
}

func TestPutCharacteristicsStoresValue(t *testing.T) {
	s, a := newTestServer(t)
	iid := a.Services[1].Characteristics[0].IID

	body, _ := json.Marshal(map[string]interface{}{
		"characteristics": []map[string]interface{}{
			{"aid": 1, "iid": iid, "value": true},
		},
	})

	req := httptest.NewRequest(http.MethodPut, "/characteristics", bytes.NewReader(body))
	cs := &connState{}
	req = req.WithContext(context.WithValue(req.Context(), connStateKey, cs))
	rec := httptest.NewRecorder()

	s.putCharacteristics(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	v, err := a.Services[1].Characteristics[0].Value()
	require.NoError(t, err)
	assert.Equal(t, true, v)
}

func TestGetCharacteristicsUnknownIDIsPartialFailure(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/characteristics?id=1.999", nil)
	cs := &connState{}
	req = req.WithContext(context.WithValue(req.Context(), connStateKey, cs))
	rec := httptest.NewRecorder()

	s.getCharacteristics(rec, req)

	assert.Equal(t, http.StatusMultiStatus, rec.Code)
}
