// Package description implements the Description Provider (spec.md §4.B):
// a small abstraction over "give me the bytes for this description
// document" that the Tree Builder consumes, so it does not have to know
// whether a description came from an embedded FS, a directory on disk, or
// something else entirely. The HTTP layer serves the bytes the builder
// collected and does not read from a Provider itself.
package description

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"
	"unicode/utf8"

	"gargoton.petite-maison-orange.fr/eric/devicehost/internal/errs"
)

// Provider resolves a description's logical name (e.g. "device.xml",
// "AVTransport1.xml", "icons/icon-120.png") to its bytes.
type Provider interface {
	// Open returns the contents of name. Callers own the returned bytes.
	Open(name string) ([]byte, error)
}

// FSProvider serves descriptions out of an fs.FS, rooted at root within
// that filesystem — mirroring the teacher's embed.FS + fs.Sub convention
// in upnp/server.go, generalized from "serve directly over HTTP" to
// "hand bytes to whoever asks."
type FSProvider struct {
	fsys fs.FS
	root string
}

// NewFSProvider returns a Provider rooted at root within fsys. root may be
// "." to serve fsys unrooted.
func NewFSProvider(fsys fs.FS, root string) (*FSProvider, error) {
	sub, err := fs.Sub(fsys, root)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidConfiguration, err, "description root %q", root)
	}
	return &FSProvider{fsys: sub, root: root}, nil
}

func (p *FSProvider) Open(name string) ([]byte, error) {
	clean := path.Clean("/" + name)[1:]
	f, err := p.fsys.Open(clean)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errs.New(errs.NotFound, "description %q not found", name)
		}
		return nil, errs.Wrap(errs.Communications, err, "opening description %q", name)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, errs.Wrap(errs.Communications, err, "reading description %q", name)
	}
	if len(data) == 0 {
		return nil, errs.New(errs.InvalidFormat, "description %q is empty", name)
	}
	if isTextDocument(name) && !utf8.Valid(data) {
		return nil, errs.New(errs.InvalidFormat, "description %q is not valid UTF-8", name)
	}
	return data, nil
}

// isTextDocument reports whether name names a document UPnP Device
// Architecture §2 treats as text (device/service description, SCPD) as
// opposed to an icon, which is arbitrary binary image data and exempt from
// the UTF-8 check.
func isTextDocument(name string) bool {
	return strings.EqualFold(path.Ext(name), ".xml")
}

// MustLoad is a convenience for tests and cmd/devicehost: it calls Open and
// panics on error, the way one-shot setup code that already trusts its own
// embedded assets is allowed to.
func MustLoad(p Provider, name string) []byte {
	data, err := p.Open(name)
	if err != nil {
		panic(fmt.Sprintf("description: MustLoad(%q): %v", name, err))
	}
	return data
}
