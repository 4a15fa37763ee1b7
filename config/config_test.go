package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"gargoton.petite-maison-orange.fr/eric/devicehost/config"
)

func TestDefaultConfig(t *testing.T) {
	cfg := config.Default()
	require.Equal(t, 1800, cfg.CacheControlMaxAge)
	require.Equal(t, 2, cfg.IndividualAdvertisementCount)
}

func TestLoadExplicitPathResolvesRelativeDescriptionPath(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "host.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("pathToDeviceDescription: xml/device.xml\ncacheControlMaxAge: 60\n"), 0o644))

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "xml/device.xml"), cfg.PathToDeviceDescription)
	require.Equal(t, 60, cfg.CacheControlMaxAge)
}

func TestLoadExplicitPathMissingIsAnError(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoadFallsBackToDefaultWhenNothingFound(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(wd)

	cfg, err := config.Load("")
	require.NoError(t, err)
	require.Equal(t, config.Default(), cfg)
}

func TestValidateClampsMaxAge(t *testing.T) {
	cfg := config.Config{CacheControlMaxAge: 5}
	require.NoError(t, cfg.Validate())
	require.Equal(t, int(config.MinMaxAge.Seconds()), cfg.CacheControlMaxAge)

	cfg = config.Config{CacheControlMaxAge: 999999}
	require.NoError(t, cfg.Validate())
	require.Equal(t, int(config.MaxMaxAge.Seconds()), cfg.CacheControlMaxAge)
}

func TestMaxAgeDuration(t *testing.T) {
	cfg := config.Config{CacheControlMaxAge: 120}
	require.Equal(t, int64(120), int64(cfg.MaxAge().Seconds()))
}
