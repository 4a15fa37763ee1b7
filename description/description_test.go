package description_test

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"

	"gargoton.petite-maison-orange.fr/eric/devicehost/description"
	"gargoton.petite-maison-orange.fr/eric/devicehost/internal/errs"
)

func TestFSProviderOpen(t *testing.T) {
	fsys := fstest.MapFS{
		"xml/device.xml": {Data: []byte("<root/>")},
	}
	p, err := description.NewFSProvider(fsys, "xml")
	require.NoError(t, err)

	data, err := p.Open("device.xml")
	require.NoError(t, err)
	require.Equal(t, "<root/>", string(data))
}

func TestFSProviderNotFound(t *testing.T) {
	fsys := fstest.MapFS{"xml/device.xml": {Data: []byte("<root/>")}}
	p, err := description.NewFSProvider(fsys, "xml")
	require.NoError(t, err)

	_, err = p.Open("missing.xml")
	require.Error(t, err)
	require.Equal(t, errs.NotFound, errs.KindOf(err))
}

func TestFSProviderEmptyFileIsInvalidFormat(t *testing.T) {
	fsys := fstest.MapFS{
		"xml/device.xml": {Data: []byte{}},
		"xml/icon.png":   {Data: []byte{}},
	}
	p, err := description.NewFSProvider(fsys, "xml")
	require.NoError(t, err)

	_, err = p.Open("device.xml")
	require.Error(t, err)
	require.Equal(t, errs.InvalidFormat, errs.KindOf(err))

	_, err = p.Open("icon.png")
	require.Error(t, err)
	require.Equal(t, errs.InvalidFormat, errs.KindOf(err))
}

func TestFSProviderNonUTF8XMLIsInvalidFormat(t *testing.T) {
	fsys := fstest.MapFS{
		"xml/device.xml": {Data: []byte{0xff, 0xfe, 0x00}},
	}
	p, err := description.NewFSProvider(fsys, "xml")
	require.NoError(t, err)

	_, err = p.Open("device.xml")
	require.Error(t, err)
	require.Equal(t, errs.InvalidFormat, errs.KindOf(err))
}

func TestFSProviderNonUTF8IconIsAccepted(t *testing.T) {
	fsys := fstest.MapFS{
		"xml/icon.png": {Data: []byte{0x89, 0x50, 0x4e, 0x47, 0xff, 0xfe}},
	}
	p, err := description.NewFSProvider(fsys, "xml")
	require.NoError(t, err)

	data, err := p.Open("icon.png")
	require.NoError(t, err)
	require.Equal(t, []byte{0x89, 0x50, 0x4e, 0x47, 0xff, 0xfe}, data)
}
