package main

import (
	"bufio"
	"context"
	"flag"
	"io"
	"log/slog"
	"net/mail"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/roofgenius/internal/mailinglist"
)

const (
	bloomCapacity = 5_000_000
	bloomFPR      = 0.0001
	progressEvery = 10_000
)

// subscriber is the mailing list call the importer makes per address.
type subscriber interface {
	Subscribe(ctx context.Context, email string) error
}

type stats struct {
	read, invalid, duplicate, subscribed, failed atomic.Uint64
}

func main() {
	var (
		apiKey      string
		formID      string
		baseURL     string
		concurrency int
		dryRun      bool
	)

	flag.StringVar(&apiKey, "api-key", "", "ConvertKit API key (or CONVERTKIT_API_KEY env)")
	flag.StringVar(&formID, "form-id", "64392d9bef", "ConvertKit form id")
	flag.StringVar(&baseURL, "base-url", "", "ConvertKit API base URL override")
	flag.IntVar(&concurrency, "concurrency", 8, "parallel subscribe requests")
	flag.BoolVar(&dryRun, "dry-run", false, "validate and dedupe without subscribing")
	flag.Parse()

	if apiKey == "" {
		apiKey = os.Getenv("CONVERTKIT_API_KEY")
	}
	if apiKey == "" && !dryRun {
		slog.Error("API key is required: set --api-key or CONVERTKIT_API_KEY")
		os.Exit(1)
	}
	if flag.NArg() == 0 {
		slog.Error("usage: subscriber-import [flags] FILE...  (plain or .gz, one address per line or CSV with address first)")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	var sub subscriber = mailinglist.NewClient(mailinglist.Config{
		APIKey:  apiKey,
		FormID:  formID,
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	})
	if dryRun {
		sub = nil
	}

	st, err := run(ctx, sub, concurrency, flag.Args())
	slog.Info("import finished",
		slog.Uint64("read", st.read.Load()),
		slog.Uint64("invalid", st.invalid.Load()),
		slog.Uint64("duplicate", st.duplicate.Load()),
		slog.Uint64("subscribed", st.subscribed.Load()),
		slog.Uint64("failed", st.failed.Load()),
	)
	if err != nil {
		slog.Error("subscriber import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// run streams every file, drops invalid and repeated addresses and
// subscribes the rest with at most concurrency requests in flight. A nil
// sub only counts. Provider rejections are counted, not fatal.
func run(ctx context.Context, sub subscriber, concurrency int, files []string) (*stats, error) {
	st := &stats{}
	seen := bloom.NewWithEstimates(bloomCapacity, bloomFPR)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(concurrency, 1))

	for _, path := range files {
		slog.Info("reading file", slog.String("path", path))

		err := streamFile(ctx, path, func(line string) {
			n := st.read.Add(1)
			if n%progressEvery == 0 {
				slog.Info("progress", slog.Uint64("read", n), slog.Uint64("subscribed", st.subscribed.Load()))
			}

			addr, ok := normalize(line)
			if !ok {
				st.invalid.Add(1)
				return
			}
			if seen.TestOrAddString(addr) {
				st.duplicate.Add(1)
				return
			}
			if sub == nil {
				return
			}

			g.Go(func() error {
				if err := sub.Subscribe(ctx, addr); err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					st.failed.Add(1)
					slog.Warn("subscribe failed", slog.String("email", addr), slog.String("error", err.Error()))
					return nil
				}
				st.subscribed.Add(1)
				return nil
			})
		})
		if err != nil {
			_ = g.Wait()
			return st, errors.Wrapf(err, "import %s", path)
		}
	}

	return st, g.Wait()
}

// normalize extracts the address from the first CSV column and lowercases it.
// Header rows and malformed addresses are rejected.
func normalize(line string) (string, bool) {
	field, _, _ := strings.Cut(line, ",")
	field = strings.Trim(strings.TrimSpace(field), `"`)
	if field == "" || strings.EqualFold(field, "email") {
		return "", false
	}
	a, err := mail.ParseAddress(field)
	if err != nil || a.Address != field {
		return "", false
	}
	return strings.ToLower(a.Address), true
}

// streamFile calls fn for each line of path, decompressing .gz files.
func streamFile(ctx context.Context, path string, fn func(line string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return errors.Wrapf(err, "create gzip reader for %s", path)
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(scanner.Text())
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}
