package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/docannex/annosync/internal/annostore"
	"github.com/docannex/annosync/internal/annotator"
	"github.com/docannex/annosync/internal/codec"
	"github.com/docannex/annosync/internal/config"
	"github.com/docannex/annosync/internal/docstore"
	"github.com/docannex/annosync/internal/httpapi"
	"github.com/docannex/annosync/internal/linkmaint"
	"github.com/docannex/annosync/internal/notefmt"
)

func main() {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("configuration failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	docs, err := docstore.NewClient(docstore.Options{
		BaseURL:  cfg.DocstoreURL,
		APIToken: cfg.DocstoreToken,
		Logger:   logger.With().Str("component", "docstore").Logger(),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("document store client failed")
	}

	serializer, err := codec.ByName(cfg.Serializer)
	if err != nil {
		logger.Fatal().Err(err).Msg("unknown serializer")
	}
	source, err := notefmt.NewSource(cfg.NoteTemplate)
	if err != nil {
		logger.Fatal().Err(err).Msg("note template failed")
	}
	source.SetLogger(logger.With().Str("component", "notefmt").Logger())
	if cfg.NoteTemplate != "" {
		go func() {
			if err := source.Watch(ctx); err != nil && ctx.Err() == nil {
				logger.Warn().Err(err).Msg("template watch stopped")
			}
		}()
	}
	formatter := notefmt.New(serializer, source)

	store, err := annostore.OpenFromDSN(cfg.StoreDSN, annostore.Deps{
		Docs:      docs,
		Formatter: formatter,
		Logger:    logger.With().Str("component", "annostore").Logger(),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("annotation store failed")
	}
	defer store.Close()

	ann := annotator.New(store, docs, logger.With().Str("component", "annotator").Logger())

	server, err := httpapi.NewServer(ann, httpapi.Config{
		SessionSecret: cfg.SessionSecret,
		Logger:        logger.With().Str("component", "httpapi").Logger(),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("server setup failed")
	}

	maintainer := linkmaint.New(docs, linkmaint.Options{
		FieldName: cfg.CustomField,
		BaseURL:   cfg.BaseURL,
		Interval:  cfg.LinkInterval,
		Logger:    logger.With().Str("component", "linkmaint").Logger(),
	})
	if cfg.AutoLinks {
		server.SetDocumentAddedHook(func(ctx context.Context, docID int64) {
			go func() {
				refreshCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
				defer cancel()
				if _, err := maintainer.UpdateLinks(refreshCtx, nil); err != nil {
					logger.Warn().Err(err).Int64("doc", docID).Msg("link refresh failed")
				}
			}()
		})
		go func() {
			if err := maintainer.Loop(ctx); err != nil && ctx.Err() == nil {
				logger.Error().Err(err).Msg("link loop stopped")
			}
		}()
	}

	httpServer := &http.Server{Addr: cfg.Addr, Handler: server}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", cfg.Addr).Str("store", cfg.StoreDSN).Msg("annosync listening")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal().Err(err).Msg("server failed")
	}
}
