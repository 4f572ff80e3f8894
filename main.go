// Command chat-tap follows the live chat of a YouTube broadcast and appends
// each received page to a durable output log. It:
//   - Loads configuration and initializes structured logging.
//   - Builds the credential (static API key or refreshing OAuth token).
//   - Resolves the live chat id, or recovers it from existing output on resume.
//   - Streams chat pages, reconnecting forever after the first successful
//     connect, and appends every page to the configured sink.
//   - Exposes a minimal HTTP server with /healthz, /status, and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/onnwee/chat-tap/auth"
	"github.com/onnwee/chat-tap/config"
	"github.com/onnwee/chat-tap/outputlog"
	"github.com/onnwee/chat-tap/server"
	"github.com/onnwee/chat-tap/stream"
	"github.com/onnwee/chat-tap/telemetry"
	"github.com/onnwee/chat-tap/youtubeapi"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load(".env")

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))

	// Config errors must exit non-zero before any network activity.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()
	shutdown, err := telemetry.InitTracing("chat-tap", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()
	slog.Info("starting", slog.String("run_id", telemetry.RunID()), slog.String("level", lvl.String()))

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cred, err := buildCredential(cfg)
	if err != nil {
		slog.Error("credential setup failed", slog.Any("err", err))
		os.Exit(1)
	}
	slog.Info("credential ready", slog.String("mode", cred.Kind().String()))

	sink, err := openSink(ctx, cfg)
	if err != nil {
		slog.Error("output sink setup failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			slog.Error("failed to close output sink", slog.Any("err", err))
		}
	}()

	cur, err := startCursor(ctx, cfg, cred, sink)
	if err != nil {
		slog.Error("could not determine starting position", slog.Any("err", err))
		os.Exit(1)
	}

	client := &stream.Client{
		Transport:     &stream.HTTPTransport{BaseURL: cfg.StreamAddr, Cred: cred},
		Sink:          sink,
		ReconnectWait: cfg.ReconnectWait,
	}

	// HTTP server (health/status/metrics); disabled unless HTTP_ADDR is set.
	if cfg.HTTPAddr != "" {
		go func() {
			if err := server.Start(ctx, cfg.HTTPAddr, client.Status); err != nil {
				slog.Error("http server exited with error", slog.Any("err", err))
			}
		}()
	}

	if err := client.Run(ctx, cur); err != nil {
		slog.Error("stream terminated", slog.Any("err", err))
		stop()
		if cerr := sink.Close(); cerr != nil {
			slog.Error("failed to close output sink", slog.Any("err", cerr))
		}
		os.Exit(1)
	}
	slog.Info("shutting down")
}

// buildCredential picks the auth mode Validate already vetted.
func buildCredential(cfg *config.Config) (auth.Credential, error) {
	switch {
	case cfg.APIKey != "":
		return auth.StaticKey(cfg.APIKey), nil
	case cfg.APIKeyFile != "":
		key, err := auth.StaticKeyFromFile(cfg.APIKeyFile)
		if err != nil {
			return nil, err
		}
		return key, nil
	default:
		store := &auth.FileTokenStore{Path: cfg.OAuthTokenFile}
		cred, err := auth.NewOAuth(cfg.OAuthClientID, cfg.OAuthClientSecret, store)
		if err != nil {
			return nil, err
		}
		return cred, nil
	}
}

// openSink picks the output target. With neither file nor DSN configured the
// records go to stdout, which keeps logs on stderr out of the data.
func openSink(ctx context.Context, cfg *config.Config) (stream.Sink, error) {
	switch {
	case cfg.OutputFile != "":
		slog.Info("appending output", slog.String("file", cfg.OutputFile))
		s, err := outputlog.OpenJSONL(cfg.OutputFile)
		if err != nil {
			return nil, err
		}
		return s, nil
	case cfg.OutputDBDsn != "":
		slog.Info("appending output to postgres")
		s, err := outputlog.OpenPostgres(ctx, cfg.OutputDBDsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		slog.Info("no output target configured; writing records to stdout")
		return outputlog.NewWriter(os.Stdout), nil
	}
}

// startCursor returns the position to stream from. On resume the last sink
// record wins; a malformed or absent record falls back to a fresh chat id
// lookup when VIDEO_ID allows it.
func startCursor(ctx context.Context, cfg *config.Config, cred auth.Credential, sink stream.Sink) (*stream.Cursor, error) {
	if cfg.Resume {
		rec, err := sink.LastRecord(ctx)
		switch {
		case err != nil && errors.Is(err, stream.ErrMalformedRecord):
			slog.Warn("last output record unusable; falling back to fresh lookup", slog.Any("err", err))
		case err != nil:
			return nil, err
		case rec == nil:
			slog.Info("output is empty; starting fresh")
		default:
			cur, cerr := stream.CursorFromRecord(rec)
			if cerr != nil {
				slog.Warn("last output record unusable; falling back to fresh lookup", slog.Any("err", cerr))
				break
			}
			slog.Info("resuming from last record",
				slog.String("chat_id", cur.ChatID),
				slog.String("page_token", cur.PageToken))
			return cur, nil
		}
		if cfg.VideoID == "" {
			return nil, errors.New("cannot resume (no usable record) and VIDEO_ID is not set")
		}
	}

	rctx, span := telemetry.StartSpan(ctx, "chat-tap", "resolve_live_chat_id")
	defer span.End()
	resolver, err := youtubeapi.NewResolver(rctx, cred, cfg.RESTAddr)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	chatID, err := resolver.ResolveLiveChatID(rctx, cfg.VideoID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	slog.Info("resolved live chat id", slog.String("video_id", cfg.VideoID), slog.String("chat_id", chatID))
	return stream.NewCursor(chatID), nil
}
