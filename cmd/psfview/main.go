// Command psfview prints the entries of a PSF parameter container.
package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kong"

	"github.com/bsm/psf"
	"github.com/bsm/psf/internal/logging"
	"github.com/bsm/psf/internal/source"
)

const version = "1.0"

var errTooManyArguments = errors.New("too many arguments")

// CLI defines the command-line interface for psfview.
type CLI struct {
	Files []string `arg:"" optional:"" name:"sfofile" help:"SFO file to read, or - to read from standard input."`

	Strict      bool   `help:"Cross-check header and entry offsets."`
	Digest      bool   `help:"Log the BLAKE3 digest of the decoded container."`
	Compression string `default:"auto" enum:"auto,none,snappy,gzip,zstd,xz,lz4" help:"Input compression (auto, none, snappy, gzip, zstd, xz, lz4)."`
	MaxCount    int    `name:"max-count" default:"256" help:"Maximum number of entries accepted."`
	LogLevel    string `name:"log-level" default:"info" enum:"debug,info,warn,error" help:"Log level (debug, info, warn, error)."`
	LogFormat   string `name:"log-format" default:"text" enum:"text,json" help:"Log format (text, json)."`

	Version kong.VersionFlag `help:"Print version information."`
}

type exitCode int

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) (code int) {
	var cli CLI
	parser, err := kong.New(&cli,
		kong.Name("psfview"),
		kong.Description("SFOView "+version+" - print the entries of a PARAM.SFO container."),
		kong.Writers(stdout, stderr),
		kong.Exit(func(code int) { panic(exitCode(code)) }),
		kong.Vars{"version": "psfview " + version},
	)
	if err != nil {
		fmt.Fprintf(stderr, "psfview: error: %v\n", err)
		return 1
	}

	defer func() {
		if r := recover(); r != nil {
			c, ok := r.(exitCode)
			if !ok {
				panic(r)
			}
			code = int(c)
		}
	}()

	ctx, err := parser.Parse(args)
	parser.FatalIfErrorf(err)

	switch len(cli.Files) {
	case 0:
		if err := ctx.PrintUsage(false); err != nil {
			fmt.Fprintf(stderr, "psfview: error: %v\n", err)
			return 1
		}
		return 0
	case 1:
	default:
		parser.FatalIfErrorf(errTooManyArguments)
	}

	if err := view(&cli, stdin, stdout, stderr); err != nil {
		fmt.Fprintf(stderr, "psfview: error: %v\n", err)
		return 1
	}
	return 0
}

func view(cli *CLI, stdin io.Reader, stdout, stderr io.Writer) error {
	level, err := logging.ParseLevel(cli.LogLevel)
	if err != nil {
		return err
	}
	format, err := logging.ParseFormat(cli.LogFormat)
	if err != nil {
		return err
	}
	logger := logging.New(stderr, level, format)

	comp, err := source.ParseCompression(cli.Compression)
	if err != nil {
		return err
	}

	s, err := source.Open(cli.Files[0], stdin, comp)
	if err != nil {
		return err
	}
	defer s.Close()

	logger.Debug("opened input", "name", s.Name, "compression", s.Compression)

	dec := psf.NewDecoder(s, &psf.ReaderOptions{
		MaxCount: cli.MaxCount,
		Strict:   cli.Strict,
		Logger:   logger,
	})
	records, err := dec.Decode()
	if err != nil {
		return err
	}

	if cli.Digest {
		logger.Info("decoded container",
			"name", s.Name,
			"version", fmt.Sprintf("0x%08x", dec.Header().Version),
			"entries", len(records),
			"bytes", dec.Offset(),
			"blake3", hex.EncodeToString(dec.Sum()),
		)
	}

	return psf.WriteRecords(stdout, records)
}
