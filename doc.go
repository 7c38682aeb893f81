// Package brres reads and writes BRRES resource containers, the big-endian
// archive format that bundles models, textures and animations.
//
// A container is a header, a root index of category folders, the sub-files
// the folders point at, and a shared pool of names. Every sub-file carries
// its own frame (tag, length, version, section offsets, name) and is decoded
// by a typed package:
//   - [github.com/meigma/brres/mdl0]: models (skeleton, geometry arrays, draw definitions)
//   - [github.com/meigma/brres/tex0]: textures
//   - [github.com/meigma/brres/clr0]: color animations
//
// Sub-files of other types, and typed sub-files using layouts these packages
// do not decode, are kept as [Opaque] entries for inspection.
//
// # Quick Start
//
// Open a container, edit it and save it in place:
//
//	b, err := brres.Open("course_model.brres")
//	if err != nil {
//	    return err
//	}
//	if err := b.RenameTexture("road", "road_wet"); err != nil {
//	    return err
//	}
//	if err := b.Save(); err != nil {
//	    return err
//	}
//
// Saving writes to a temporary file and renames it over the original, so
// readers never see a partial file. Containers opened from zstd-compressed
// files are saved compressed unless [SaveWithCompression] says otherwise.
//
// # Opaque sub-files
//
// Opaque sub-files reference the shared name pool of the file they came
// from. Pack writes them after the typed sub-files, followed by a copy of
// that pool, keeping the distance between them so their references still
// resolve. Names the pool lacks are appended after it. An [Opaque] built
// by hand, or whose Data was resized, fails with [ErrOpaqueSubfile].
// [PackWithDropOpaque] (or [SaveWithDropOpaque]) leaves every opaque
// sub-file out, and [UnpackWithStrict] fails at load time instead.
//
// # Sharing containers
//
// A [Brres] value is not safe for concurrent use. Tools that work on many
// containers at once, or look textures up across files, use
// [github.com/meigma/brres/registry].
package brres
