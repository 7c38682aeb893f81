// Package clr0 encodes and decodes CLR0 material color animations.
//
// An animation holds one entry per material. Each entry animates any of the
// eleven material color registers, either with a single constant color or
// with one color per frame.
package clr0

import (
	"errors"
	"fmt"
	"slices"

	"github.com/meigma/brres/internal/binfile"
	"github.com/meigma/brres/internal/frame"
)

var (
	// ErrTrackLength is returned when an animated track does not hold one
	// color per frame.
	ErrTrackLength = errors.New("brres: color track length does not match frame count")

	// ErrDuplicateTarget is returned when a material animates a register twice.
	ErrDuplicateTarget = errors.New("brres: duplicate color target")

	// ErrInvalidTarget is returned for a register index past the last target.
	ErrInvalidTarget = errors.New("brres: invalid color target")
)

// DefaultVersion is the CLR0 version written for new animations.
const DefaultVersion = 4

// Target is a material color register.
type Target uint8

const (
	TargetMaterial0 Target = iota
	TargetMaterial1
	TargetAmbient0
	TargetAmbient1
	TargetColor0
	TargetColor1
	TargetColor2
	TargetKonst0
	TargetKonst1
	TargetKonst2
	TargetKonst3

	// NumTargets is the number of animatable registers.
	NumTargets = 11
)

var targetNames = [NumTargets]string{
	"Material0", "Material1", "Ambient0", "Ambient1",
	"Color0", "Color1", "Color2",
	"Konst0", "Konst1", "Konst2", "Konst3",
}

// String returns the register name.
func (t Target) String() string {
	if int(t) < NumTargets {
		return targetNames[t]
	}
	return fmt.Sprintf("Target(%d)", uint8(t))
}

// Color is an RGBA color.
type Color [4]uint8

// Track animates one register of a material.
type Track struct {
	Target   Target
	Mask     Color // bits of the register left untouched by the animation
	Constant bool
	Colors   []Color // one color when Constant, otherwise one per frame
}

// Material is the set of tracks applied to one material.
type Material struct {
	Name   string
	Tracks []Track // ordered by target
}

// Track returns the track animating target, if any.
func (m *Material) Track(target Target) (*Track, bool) {
	for i := range m.Tracks {
		if m.Tracks[i].Target == target {
			return &m.Tracks[i], true
		}
	}
	return nil, false
}

// SetTrack adds or replaces the track for tr.Target, keeping target order.
func (m *Material) SetTrack(tr Track) error {
	if int(tr.Target) >= NumTargets {
		return fmt.Errorf("%w: %d", ErrInvalidTarget, tr.Target)
	}
	if cur, ok := m.Track(tr.Target); ok {
		*cur = tr
		return nil
	}
	m.Tracks = append(m.Tracks, tr)
	slices.SortFunc(m.Tracks, func(a, b Track) int { return int(a.Target) - int(b.Target) })
	return nil
}

// flags packs enable and constant bits, two per target.
func (m *Material) flags() (uint32, error) {
	var out uint32
	seen := 0
	for _, tr := range m.Tracks {
		if int(tr.Target) >= NumTargets {
			return 0, fmt.Errorf("%w: %d", ErrInvalidTarget, tr.Target)
		}
		bit := 1 << (2 * int(tr.Target))
		if seen&bit != 0 {
			return 0, fmt.Errorf("%w: %s", ErrDuplicateTarget, tr.Target)
		}
		seen |= bit
		out |= uint32(bit) //nolint:gosec // at most 22 bits
		if tr.Constant {
			out |= uint32(bit) << 1 //nolint:gosec // at most 22 bits
		}
	}
	return out, nil
}

// Animation is a decoded CLR0 sub-file.
type Animation struct {
	Name       string
	Version    uint32
	FrameCount uint16
	Loop       bool
	Materials  []*Material
}

// New creates an empty animation.
func New(name string, frames uint16, loop bool) *Animation {
	return &Animation{Name: name, Version: DefaultVersion, FrameCount: frames, Loop: loop}
}

// Magic returns the sub-file tag.
func (a *Animation) Magic() string { return frame.MagicCLR0 }

// SubfileName returns the animation name.
func (a *Animation) SubfileName() string { return a.Name }

// Material returns the entry for the named material.
func (a *Animation) Material(name string) (*Material, bool) {
	for _, m := range a.Materials {
		if m.Name == name {
			return m, true
		}
	}
	return nil, false
}

// AddMaterial returns the entry for name, creating it if needed.
func (a *Animation) AddMaterial(name string) *Material {
	if m, ok := a.Material(name); ok {
		return m
	}
	m := &Material{Name: name}
	a.Materials = append(a.Materials, m)
	return m
}

// RemoveMaterial drops the named entry and reports whether it existed.
func (a *Animation) RemoveMaterial(name string) bool {
	i := slices.IndexFunc(a.Materials, func(m *Material) bool { return m.Name == name })
	if i < 0 {
		return false
	}
	a.Materials = slices.Delete(a.Materials, i, i+1)
	return true
}

// Validate checks track lengths against the frame count.
func (a *Animation) Validate() error {
	for _, m := range a.Materials {
		if _, err := m.flags(); err != nil {
			return fmt.Errorf("material %q: %w", m.Name, err)
		}
		for _, tr := range m.Tracks {
			want := int(a.FrameCount)
			if tr.Constant {
				want = 1
			}
			if len(tr.Colors) != want {
				return fmt.Errorf("material %q %s: %w: have %d, want %d",
					m.Name, tr.Target, ErrTrackLength, len(tr.Colors), want)
			}
		}
	}
	return nil
}

// Pack writes the animation at the cursor.
func (a *Animation) Pack(w *binfile.Writer) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("animation %q: %w", a.Name, err)
	}
	fw, err := frame.Pack(w, frame.MagicCLR0, a.Version, a.Name)
	if err != nil {
		return err
	}
	var loop uint32
	if a.Loop {
		loop = 1
	}
	w.I32(0) // source path
	w.U16(a.FrameCount)
	w.U16(uint16(len(a.Materials))) //nolint:gosec // bounded by folder node ids
	w.U32(loop)

	if err := fw.Section(0); err != nil {
		return err
	}
	folder := binfile.NewFolder()
	for _, m := range a.Materials {
		if err := folder.Add(m.Name); err != nil {
			return fmt.Errorf("animation %q: %w", a.Name, err)
		}
	}
	if err := folder.Pack(w); err != nil {
		return err
	}
	for _, m := range a.Materials {
		if err := folder.CreateEntryRef(w, m.Name); err != nil {
			return err
		}
		if err := packMaterial(w, m); err != nil {
			return fmt.Errorf("material %q: %w", m.Name, err)
		}
	}
	for i := 1; i < fw.Sections(); i++ {
		if err := fw.SectionNull(i); err != nil {
			return err
		}
	}
	return fw.Close()
}

func packMaterial(w *binfile.Writer, m *Material) error {
	flags, err := m.flags()
	if err != nil {
		return err
	}
	b := w.Start()
	w.StoreNameRef(m.Name)
	w.U32(flags)

	type pendingList struct {
		mark   binfile.Mark
		colors []Color
	}
	var lists []pendingList
	for _, tr := range m.Tracks {
		w.Raw(tr.Mask[:])
		if tr.Constant {
			w.Raw(tr.Colors[0][:])
			continue
		}
		lists = append(lists, pendingList{mark: w.Mark(1)[0], colors: tr.Colors})
	}
	for _, l := range lists {
		if err := w.CreateRef(l.mark, binfile.RefField); err != nil {
			return err
		}
		for _, c := range l.colors {
			w.Raw(c[:])
		}
	}
	return w.End(b)
}

// Unpack decodes an animation at the cursor, leaving the cursor after it.
// A version 4 animation with user data fails with frame.ErrUnsupportedSection.
func Unpack(r *binfile.Reader) (*Animation, error) {
	fr, err := frame.Unpack(r, frame.MagicCLR0)
	if err != nil {
		return nil, err
	}
	if err := fr.RequireAbsent(1); err != nil {
		return nil, err
	}
	a := &Animation{Name: fr.Name, Version: fr.Version}
	var (
		source int32
		count  uint16
		loop   uint32
	)
	if err := r.Read(&source, &a.FrameCount, &count, &loop); err != nil {
		return nil, fmt.Errorf("animation %q header: %w", a.Name, err)
	}
	a.Loop = loop != 0

	pos, err := fr.Recall()
	if err != nil {
		return nil, err
	}
	if pos != 0 {
		folder, err := binfile.UnpackFolder(r)
		if err != nil {
			return nil, fmt.Errorf("animation %q: %w", a.Name, err)
		}
		if folder.Len() != int(count) {
			return nil, fmt.Errorf("animation %q: folder holds %d entries, header declares %d", a.Name, folder.Len(), count)
		}
		for _, name := range folder.Names() {
			off, _ := folder.Offset(name)
			if err := r.Seek(off); err != nil {
				return nil, err
			}
			m, err := unpackMaterial(r, a.FrameCount)
			if err != nil {
				return nil, fmt.Errorf("material %q: %w", name, err)
			}
			a.Materials = append(a.Materials, m)
		}
	}
	if err := fr.Close(); err != nil {
		return nil, err
	}
	return a, nil
}

func unpackMaterial(r *binfile.Reader, frames uint16) (*Material, error) {
	b := r.Start()
	name, err := r.ReadName()
	if err != nil {
		return nil, err
	}
	m := &Material{Name: name}
	flags, err := r.U32()
	if err != nil {
		return nil, err
	}
	for t := range Target(NumTargets) {
		if flags>>(2*t)&1 == 0 {
			continue
		}
		tr := Track{Target: t, Constant: flags>>(2*t+1)&1 == 1}
		if err := r.Read(&tr.Mask); err != nil {
			return nil, err
		}
		if tr.Constant {
			var c Color
			if err := r.Read(&c); err != nil {
				return nil, err
			}
			tr.Colors = []Color{c}
		} else {
			field := r.Offset()
			rel, err := r.I32()
			if err != nil {
				return nil, err
			}
			if err := r.Seek(field + int(rel)); err != nil {
				return nil, err
			}
			tr.Colors = make([]Color, frames)
			if err := r.Read(tr.Colors); err != nil {
				return nil, err
			}
			if err := r.Seek(field + 4); err != nil {
				return nil, err
			}
		}
		m.Tracks = append(m.Tracks, tr)
	}
	return m, r.End(b)
}
