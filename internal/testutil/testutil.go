// Package testutil builds sub-files and container files for tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meigma/brres/clr0"
	"github.com/meigma/brres/internal/binfile"
	"github.com/meigma/brres/internal/frame"
	"github.com/meigma/brres/mdl0"
	"github.com/meigma/brres/tex0"
)

// Texture returns an 8x4 I8 texture whose pixels are all fill.
func Texture(tb testing.TB, name string, fill byte) *tex0.Texture {
	tb.Helper()

	data := make([]byte, 32)
	for i := range data {
		data[i] = fill
	}
	t, err := tex0.New(name, 8, 4, tex0.FormatI8, 1, data)
	require.NoError(tb, err)
	return t
}

// ColorAnim returns a two-frame looping animation of one material.
func ColorAnim(tb testing.TB, name, material string) *clr0.Animation {
	tb.Helper()

	a := clr0.New(name, 2, true)
	m := a.AddMaterial(material)
	require.NoError(tb, m.SetTrack(clr0.Track{
		Target: clr0.TargetColor0,
		Colors: []clr0.Color{{255, 0, 0, 255}, {0, 0, 255, 255}},
	}))
	return a
}

// Model returns a model with a two-bone skeleton and one vertex array.
func Model(tb testing.TB, name string) *mdl0.Model {
	tb.Helper()

	m := mdl0.New(name)
	root, err := m.AddBone(&mdl0.Bone{Name: name + "_root", Flags: mdl0.BoneVisible, Scale: [3]float32{1, 1, 1}}, -1)
	require.NoError(tb, err)
	_, err = m.AddBone(&mdl0.Bone{Name: name + "_child", Scale: [3]float32{1, 1, 1}}, root)
	require.NoError(tb, err)
	m.Vertices = []*mdl0.PointArray{{
		Name: name + "_verts", CompCount: 1, Format: mdl0.FormatS16, Stride: 6, Count: 2,
		Data: []byte{0, 1, 0, 2, 0, 3, 0, 4, 0, 5, 0, 6},
	}}
	return m
}

// FrameSubfile is a sub-file holding only a frame and an uninterpreted body.
// It stands in for sub-file types that have no typed codec.
type FrameSubfile struct {
	Tag     string
	Version uint32
	Name    string
	Body    []byte
	Refs    []string // name references written after the body
}

// Magic returns the sub-file tag.
func (s *FrameSubfile) Magic() string { return s.Tag }

// SubfileName returns the sub-file name.
func (s *FrameSubfile) SubfileName() string { return s.Name }

// Pack writes the frame with every section absent, followed by the body and
// one name reference per entry of Refs, relative to the sub-file start.
func (s *FrameSubfile) Pack(w *binfile.Writer) error {
	fw, err := frame.Pack(w, s.Tag, s.Version, s.Name)
	if err != nil {
		return err
	}
	for i := range fw.Sections() {
		if err := fw.SectionNull(i); err != nil {
			return err
		}
	}
	w.Raw(s.Body)
	for _, name := range s.Refs {
		w.StoreNameRef(name)
	}
	return fw.Close()
}

// WriteFile writes data to name under dir and returns the full path.
func WriteFile(tb testing.TB, dir, name string, data []byte) string {
	tb.Helper()

	path := filepath.Join(dir, name)
	require.NoError(tb, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(tb, os.WriteFile(path, data, 0o644))
	return path
}
