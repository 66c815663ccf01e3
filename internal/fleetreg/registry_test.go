package fleetreg

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTanksFile(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "tanks.json")
	data, err := json.Marshal(tanksFile{Trucks: []truckEntry{
		{TruckID: "T1", TankCapacityGal: 150, BaselineMPG: 6.2, RefuelFactor: 1.0, IsAllowed: true},
		{TruckID: "T2", TankCapacityGal: 100, BaselineMPG: 5.8, IsAllowed: false},
	}})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestLoad_KnownTruckResolvesFromRegistry(t *testing.T) {
	dir := t.TempDir()
	tanksPath := writeTanksFile(t, dir)

	reg, err := Load(tanksPath, filepath.Join(dir, "missing_calibration.json"), nil)
	require.NoError(t, err)

	truck, found := reg.Get("T1")
	assert.True(t, found)
	assert.Equal(t, 150.0, truck.TankCapacityGal)
	assert.True(t, truck.IsAllowed)
}

func TestLoad_UnknownTruckGetsNotAllowedDefault(t *testing.T) {
	dir := t.TempDir()
	tanksPath := writeTanksFile(t, dir)

	reg, err := Load(tanksPath, filepath.Join(dir, "missing_calibration.json"), nil)
	require.NoError(t, err)

	truck, found := reg.Get("ghost-truck")
	assert.False(t, found)
	assert.False(t, truck.IsAllowed)
}

func TestLoad_MissingTanksFileYieldsEmptyRegistry(t *testing.T) {
	dir := t.TempDir()

	reg, err := Load(filepath.Join(dir, "missing_tanks.json"), filepath.Join(dir, "missing_calibration.json"), nil)
	require.NoError(t, err)

	assert.Empty(t, reg.TruckIDs())
}

func TestCalibration_FallsBackToDefaultForUnlistedTruck(t *testing.T) {
	dir := t.TempDir()
	tanksPath := writeTanksFile(t, dir)

	reg, err := Load(tanksPath, filepath.Join(dir, "missing_calibration.json"), nil)
	require.NoError(t, err)

	cal := reg.Calibration("T1")
	assert.Equal(t, 15.0, cal.BaselineConsumptionLPH)
	assert.Equal(t, 0.35, cal.LoadFactor)
}
