package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tilescan/pkg/combine"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.GreaterOrEqual(t, cfg.Processing.NumCores, 1)
	assert.True(t, cfg.Processing.NeedsRotation)
	assert.Equal(t, 1, cfg.Processing.BestChannel)
	assert.Nil(t, cfg.Processing.ManualAngle)
	assert.Equal(t, "bilinear", cfg.Processing.Interpolation)
	assert.Equal(t, combine.ReferenceMiddle, cfg.Processing.ReferenceSlice)
	assert.Equal(t, "deflate", cfg.Output.Compression)
	assert.Equal(t, 1024, cfg.Output.PreviewSize)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigMissingFileGivesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Processing.BestChannel, cfg.Processing.BestChannel)
}

func TestLoadConfigOverridesOnlyGivenKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tilescan.yaml")
	yaml := `processing:
  bestChannel: 3
  needsRotation: false
  manualAngle: -12.5
output:
  compression: none
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Processing.BestChannel)
	assert.False(t, cfg.Processing.NeedsRotation)
	require.NotNil(t, cfg.Processing.ManualAngle)
	assert.Equal(t, -12.5, *cfg.Processing.ManualAngle)
	assert.Equal(t, "none", cfg.Output.Compression)
	// Untouched keys keep their defaults
	assert.Equal(t, "bilinear", cfg.Processing.Interpolation)
	assert.Equal(t, 1024, cfg.Output.PreviewSize)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"bad yaml":      "processing: [",
		"bad channel":   "processing:\n  bestChannel: 0\n",
		"bad reference": "processing:\n  referenceSlice: top\n",
		"bad method":    "processing:\n  interpolation: bicubic\n",
		"bad codec":     "output:\n  compression: jpeg\n",
		"bad cores":     "processing:\n  numCores: 0\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".yaml")
			require.NoError(t, os.WriteFile(path, []byte(content), 0644))
			_, err := LoadConfig(path)
			assert.Error(t, err)
		})
	}
}

func TestSaveAndLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tilescan.yaml")
	cfg := DefaultConfig()
	angle := 7.25
	cfg.Processing.ManualAngle = &angle
	cfg.Processing.ReferenceSlice = combine.ReferenceBrightest
	cfg.Output.WritePreview = true

	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestCreateDefaultConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tilescan.yaml")
	require.NoError(t, CreateDefaultConfigFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "needsRotation: true")
	assert.NotContains(t, string(data), "manualAngle")
}
