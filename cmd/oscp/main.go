// oscp copies objects between storage backends through buffered streams.
//
// Sources and the destination are scheme-qualified names ("s3://key",
// "http://host/path", "oci://registry/repo:tag", "mem://name") or plain
// filesystem paths. With several sources the destination is treated as a
// directory prefix and must end with a slash.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/zstd"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/osio-dev/osio"
	storehttp "github.com/osio-dev/osio/store/http"
	"github.com/osio-dev/osio/store/mem"
	storeoci "github.com/osio-dev/osio/store/oci"
	stores3 "github.com/osio-dev/osio/store/s3"
)

type config struct {
	bufferSize    int
	maxBufferSize int
	concurrency   int
	compress      bool
	decompress    bool
	plainHTTP     bool
	s3Bucket      string
	s3Endpoint    string
	verbose       bool
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "oscp: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var cfg config

	flags := pflag.NewFlagSet("oscp", pflag.ContinueOnError)
	flags.IntVar(&cfg.bufferSize, "buffer-size", osio.DefaultBufferSize, "initial stream buffer size in bytes")
	flags.IntVar(&cfg.maxBufferSize, "max-buffer-size", osio.DefaultMaxBufferSize, "buffer growth ceiling in bytes")
	flags.IntVarP(&cfg.concurrency, "concurrency", "j", 1, "number of copies to run at once")
	flags.BoolVar(&cfg.compress, "zstd", false, "compress with zstd while writing")
	flags.BoolVar(&cfg.decompress, "unzstd", false, "decompress zstd while reading")
	flags.BoolVar(&cfg.plainHTTP, "plain-http", false, "use HTTP for http:// and oci:// backends")
	flags.StringVar(&cfg.s3Bucket, "s3-bucket", os.Getenv("OSCP_S3_BUCKET"), "bucket backing s3:// names")
	flags.StringVar(&cfg.s3Endpoint, "s3-endpoint", os.Getenv("OSCP_S3_ENDPOINT"), "custom S3 endpoint (path-style addressing)")
	flags.BoolVarP(&cfg.verbose, "verbose", "v", false, "debug logging")
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: oscp [flags] SOURCE... DEST\n\n%s", flags.FlagUsages())
	}

	if err := flags.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	args := flags.Args()
	if len(args) < 2 {
		flags.Usage()
		return fmt.Errorf("need at least one source and a destination")
	}
	if cfg.compress && cfg.decompress {
		return fmt.Errorf("--zstd and --unzstd are mutually exclusive")
	}
	if cfg.concurrency < 1 {
		return fmt.Errorf("--concurrency must be at least 1")
	}

	level := slog.LevelInfo
	if cfg.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx := context.Background()
	sess, err := newSession(ctx, &cfg, logger)
	if err != nil {
		return err
	}

	sources, dest := args[:len(args)-1], args[len(args)-1]
	if len(sources) > 1 && !strings.HasSuffix(dest, "/") {
		return fmt.Errorf("destination %q must end with / when copying multiple sources", dest)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.concurrency)
	for _, src := range sources {
		target := dest
		if strings.HasSuffix(dest, "/") {
			target = dest + path.Base(src)
		}
		g.Go(func() error {
			if err := copyObject(ctx, sess, &cfg, logger, src, target); err != nil {
				return fmt.Errorf("copy %s: %w", src, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// newSession builds a session with every backend the flags enable. The
// filesystem remains the fallback for unqualified names.
func newSession(ctx context.Context, cfg *config, logger *slog.Logger) (*osio.Session, error) {
	opts := []osio.Option{
		osio.WithLogger(logger),
		osio.WithBufferSize(cfg.bufferSize),
		osio.WithMaxBufferSize(cfg.maxBufferSize),
		osio.WithMaxStreams(2 * cfg.concurrency),
		osio.WithStore("mem", mem.New()),
		osio.WithStore("http", storehttp.New(storehttp.WithPlainHTTP(true))),
		osio.WithStore("https", storehttp.New()),
		osio.WithStore("oci", storeoci.New(storeoci.WithPlainHTTP(cfg.plainHTTP))),
	}

	if cfg.s3Bucket != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
			if cfg.s3Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.s3Endpoint)
				o.UsePathStyle = true
			}
		})
		opts = append(opts, osio.WithStore("s3", stores3.New(client, cfg.s3Bucket)))
	}

	return osio.NewSession(opts...), nil
}

func copyObject(ctx context.Context, sess *osio.Session, cfg *config, logger *slog.Logger, src, dst string) error {
	in, err := sess.Open(ctx, src, "r")
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := sess.Open(ctx, dst, "w")
	if err != nil {
		return err
	}

	n, err := transfer(out, in, cfg)
	if err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	logger.Debug("copied", "src", src, "dst", dst, "bytes", n)
	return nil
}

// transfer moves all content from in to out, applying the configured zstd
// coding. The streams do the remote batching, so plain io.Copy suffices.
func transfer(out *osio.Stream, in *osio.Stream, cfg *config) (int64, error) {
	var r io.Reader = in
	if cfg.decompress {
		dec, err := zstd.NewReader(in)
		if err != nil {
			return 0, err
		}
		defer dec.Close()
		r = dec
	}

	if cfg.compress {
		enc, err := zstd.NewWriter(out)
		if err != nil {
			return 0, err
		}
		n, err := io.Copy(enc, r)
		if err != nil {
			_ = enc.Close()
			return n, err
		}
		return n, enc.Close()
	}

	return io.Copy(out, r)
}
