package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/alecthomas/kingpin/v2"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/opencontainers/go-digest"

	"github.com/meigma/brres"
	"github.com/meigma/brres/internal/batch"
	"github.com/meigma/brres/registry"
)

// errFailed is returned when at least one file of a command failed. The
// individual failures have already been printed.
var errFailed = errors.New("one or more files failed")

// cli holds the global flags and the state they produce.
type cli struct {
	configFile string
	flags      Config
	set        struct {
		logLevel, logFormat, workers, compression, strict, dropOpaque, maxFileSize bool
	}

	cfg    Config
	logger *slog.Logger
	stdout io.Writer
	stderr io.Writer
}

func newApp(stdout, stderr io.Writer) *kingpin.Application {
	c := &cli{stdout: stdout, stderr: stderr}

	app := kingpin.New("brrestool", "Inspect, verify and repack BRRES resource containers.")
	app.UsageWriter(stdout)
	app.ErrorWriter(stderr)
	app.Flag("config", "YAML config file.").Short('c').StringVar(&c.configFile)
	app.Flag("log-level", "Log level (debug, info, warn, error).").IsSetByUser(&c.set.logLevel).StringVar(&c.flags.LogLevel)
	app.Flag("log-format", "Log format (text, json).").IsSetByUser(&c.set.logFormat).StringVar(&c.flags.LogFormat)
	app.Flag("workers", "Files processed concurrently (0 uses GOMAXPROCS).").IsSetByUser(&c.set.workers).IntVar(&c.flags.Workers)
	app.Flag("compression", "Output compression (none, zstd). Unset keeps each file's compression.").IsSetByUser(&c.set.compression).StringVar(&c.flags.Compression)
	app.Flag("strict", "Fail on sub-files that cannot be decoded instead of keeping them opaque.").IsSetByUser(&c.set.strict).BoolVar(&c.flags.Strict)
	app.Flag("drop-opaque", "Leave opaque sub-files out when writing.").IsSetByUser(&c.set.dropOpaque).BoolVar(&c.flags.DropOpaque)
	app.Flag("max-file-size", "Largest container accepted, e.g. 64MiB.").IsSetByUser(&c.set.maxFileSize).StringVar(&c.flags.MaxFileSize)
	app.PreAction(c.setup)

	addInfoCommand(app, c)
	addVerifyCommand(app, c)
	addRepackCommand(app, c)
	return app
}

// setup loads the config file and applies flag overrides.
func (c *cli) setup(_ *kingpin.ParseContext) error {
	cfg, err := LoadConfig(c.configFile)
	if err != nil {
		return err
	}
	if c.set.logLevel {
		cfg.LogLevel = c.flags.LogLevel
	}
	if c.set.logFormat {
		cfg.LogFormat = c.flags.LogFormat
	}
	if c.set.workers {
		cfg.Workers = c.flags.Workers
	}
	if c.set.compression {
		cfg.Compression = c.flags.Compression
	}
	if c.set.strict {
		cfg.Strict = c.flags.Strict
	}
	if c.set.dropOpaque {
		cfg.DropOpaque = c.flags.DropOpaque
	}
	if c.set.maxFileSize {
		cfg.MaxFileSize = c.flags.MaxFileSize
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger, err := cfg.Logger(c.stderr)
	if err != nil {
		return err
	}
	c.cfg = cfg
	c.logger = logger
	return nil
}

func (c *cli) batchOptions() []batch.Option {
	return []batch.Option{batch.WithWorkers(c.cfg.Workers), batch.WithLogger(c.logger)}
}

// infoCommand prints the contents of each container.
type infoCommand struct {
	cli   *cli
	files *[]string
}

func addInfoCommand(app *kingpin.Application, c *cli) {
	cmd := &infoCommand{cli: c}
	info := app.Command("info", "Print the sub-files of each container.").Action(cmd.run)
	cmd.files = info.Arg("file", "Container files.").Required().ExistingFiles()
}

func (cmd *infoCommand) run(_ *kingpin.ParseContext) error {
	return cmd.cli.info(context.Background(), *cmd.files)
}

type containerInfo struct {
	size int64
	b    *brres.Brres
}

func (c *cli) info(ctx context.Context, files []string) error {
	opts, err := c.cfg.openOptions(c.logger)
	if err != nil {
		return err
	}
	results := batch.Collect(ctx, files, func(_ context.Context, path string) (containerInfo, error) {
		fi, err := os.Stat(path)
		if err != nil {
			return containerInfo{}, err
		}
		b, err := brres.Open(path, opts...)
		return containerInfo{size: fi.Size(), b: b}, err
	}, c.batchOptions()...)

	bold := color.New(color.Bold)
	warn := color.New(color.FgYellow)
	failed := false
	for i, res := range results {
		if res.Err != nil {
			failed = true
			color.New(color.FgRed).Fprintf(c.stdout, "%s: %v\n", files[i], res.Err)
			continue
		}
		b := res.Value.b
		bold.Fprintf(c.stdout, "Container: %s\n", files[i])
		fmt.Fprintf(c.stdout, "\tsize: %v, compression: %v, sub-files: %d\n",
			humanize.IBytes(uint64(res.Value.size)), //nolint:gosec // file sizes are non-negative
			b.Compression(),
			b.Len(),
		)
		fmt.Fprintf(c.stdout, "\tdigest: %s\n", b.Digest())
		names := namesByFolder(b)
		for _, folder := range b.Folders() {
			fmt.Fprintf(c.stdout, "\t%s: %s\n", folder, strings.Join(names[folder], ", "))
		}
		for _, o := range b.Opaque {
			warn.Fprintf(c.stdout, "\topaque: %s/%s (%s v%d, %v): %v\n",
				o.Folder, o.Name, o.Tag, o.Version, humanize.IBytes(uint64(len(o.Data))), o.Reason)
		}
	}
	if failed {
		return errFailed
	}
	return nil
}

func namesByFolder(b *brres.Brres) map[string][]string {
	out := make(map[string][]string)
	for _, s := range b.Subfiles() {
		folder, _ := brres.FolderFor(s.Magic())
		out[folder] = append(out[folder], s.SubfileName())
	}
	for _, o := range b.Opaque {
		out[o.Folder] = append(out[o.Folder], o.Name)
	}
	return out
}

// verifyCommand checks that each container decodes and repacks stably.
type verifyCommand struct {
	cli   *cli
	files *[]string
}

func addVerifyCommand(app *kingpin.Application, c *cli) {
	cmd := &verifyCommand{cli: c}
	verify := app.Command("verify", "Decode each container and check that repacking is stable.").Action(cmd.run)
	cmd.files = verify.Arg("file", "Container files.").Required().ExistingFiles()
}

func (cmd *verifyCommand) run(_ *kingpin.ParseContext) error {
	return cmd.cli.verify(context.Background(), *cmd.files)
}

type verifyResult struct {
	original digest.Digest
	repacked digest.Digest
	subfiles int
}

func (c *cli) verify(ctx context.Context, files []string) error {
	opts, err := c.cfg.openOptions(c.logger)
	if err != nil {
		return err
	}
	packOpts := []brres.PackOption{brres.PackWithDropOpaque(c.cfg.DropOpaque)}

	results := batch.Collect(ctx, files, func(_ context.Context, path string) (verifyResult, error) {
		b, err := brres.Open(path, opts...)
		if err != nil {
			return verifyResult{}, err
		}
		first, err := b.Pack(packOpts...)
		if err != nil {
			return verifyResult{}, fmt.Errorf("%s: pack: %w", path, err)
		}
		again, err := brres.Unpack(path, first, opts...)
		if err != nil {
			return verifyResult{}, fmt.Errorf("%s: decode repacked: %w", path, err)
		}
		second, err := again.Pack(packOpts...)
		if err != nil {
			return verifyResult{}, fmt.Errorf("%s: pack repacked: %w", path, err)
		}
		if !bytes.Equal(first, second) {
			return verifyResult{}, fmt.Errorf("%s: repacking is not stable", path)
		}
		return verifyResult{original: b.Digest(), repacked: digest.FromBytes(first), subfiles: b.Len()}, nil
	}, c.batchOptions()...)

	ok := color.New(color.FgGreen)
	bad := color.New(color.FgRed)
	failed := 0
	for i, res := range results {
		if res.Err != nil {
			failed++
			bad.Fprintf(c.stdout, "FAIL %s: %v\n", files[i], res.Err)
			continue
		}
		state := "stable"
		if res.Value.original == res.Value.repacked {
			state = "identical"
		}
		ok.Fprintf(c.stdout, "OK   %s", files[i])
		fmt.Fprintf(c.stdout, " (%d sub-files, %s)\n\toriginal: %s\n\trepacked: %s\n",
			res.Value.subfiles, state, res.Value.original, res.Value.repacked)
	}
	c.logger.Info("verified containers", "files", len(files), "failed", failed)
	if failed > 0 {
		return errFailed
	}
	return nil
}

// repackCommand rewrites each container, in place or into another directory.
type repackCommand struct {
	cli    *cli
	files  *[]string
	output *string
}

func addRepackCommand(app *kingpin.Application, c *cli) {
	cmd := &repackCommand{cli: c}
	repack := app.Command("repack", "Rewrite each container with the configured compression.").Action(cmd.run)
	cmd.output = repack.Flag("output", "Write into this directory instead of in place.").Short('o').ExistingDir()
	cmd.files = repack.Arg("file", "Container files.").Required().ExistingFiles()
}

func (cmd *repackCommand) run(_ *kingpin.ParseContext) error {
	return cmd.cli.repack(context.Background(), *cmd.files, *cmd.output)
}

func (c *cli) repack(ctx context.Context, files []string, outDir string) error {
	openOpts, err := c.cfg.openOptions(c.logger)
	if err != nil {
		return err
	}
	saveOpts, err := c.cfg.saveOptions()
	if err != nil {
		return err
	}

	if outDir != "" {
		err := batch.Run(ctx, files, func(_ context.Context, path string) error {
			b, err := brres.Open(path, openOpts...)
			if err != nil {
				return err
			}
			return b.SaveAs(filepath.Join(outDir, filepath.Base(path)), saveOpts...)
		}, c.batchOptions()...)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.stdout, "repacked %d of %d files into %s\n", len(files), len(files), outDir)
		return nil
	}

	r, err := registry.New(
		registry.WithCapacity(max(len(files), 1)),
		registry.WithLogger(c.logger),
		registry.WithOpenOptions(openOpts...),
		registry.WithSaveOptions(saveOpts...),
	)
	if err != nil {
		return err
	}
	err = batch.Run(ctx, files, func(_ context.Context, path string) error {
		b, err := r.Open(path)
		if err != nil {
			return err
		}
		b.MarkModified()
		return nil
	}, c.batchOptions()...)
	if err != nil {
		return err
	}
	written, err := r.Flush()
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "repacked %d of %d files\n", written, len(files))
	return r.CloseAll(false)
}
