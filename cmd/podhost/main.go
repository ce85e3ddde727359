package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"podhost/internal/assets"
	"podhost/internal/config"
	"podhost/internal/downloads"
	"podhost/internal/feed"
	"podhost/internal/fields"
	"podhost/internal/sanitize"
	"podhost/internal/server"
	"podhost/internal/store"
)

var version = "dev"

type defaultSchema struct{}

func (defaultSchema) Definitions() []fields.Definition {
	return fields.DefaultDefinitions()
}

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	showVersion := flag.Bool("version", false, "print the version and exit")
	listFeeds := flag.Bool("list-feeds", false, "list configured feeds and exit")
	addFeed := flag.String("add-feed", "", "add a feed with the given label and exit")
	removeFeed := flag.String("remove-feed", "", "remove the feed with the given id and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("podhost", version)
		return
	}

	logger := log.New(os.Stdout, "podhost ", log.LstdFlags|log.Lmsgprefix)

	settings, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load configuration: %v", err)
	}

	st, err := store.NewStore(settings.StorePath())
	if err != nil {
		logger.Fatalf("open store: %v", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Printf("error closing store: %v", err)
		}
	}()

	if *listFeeds || *addFeed != "" || *removeFeed != "" {
		if err := runFeedCommand(st, *listFeeds, *addFeed, *removeFeed); err != nil {
			logger.Fatalf("%v", err)
		}
		return
	}

	baseURL, err := config.ParseBaseURL(settings.BaseURL)
	if err != nil {
		logger.Fatalf("parse base URL: %v", err)
	}

	resolver, err := assets.NewResolver(settings.MediaDir, baseURL)
	if err != nil {
		logger.Fatalf("initialise asset resolver: %v", err)
	}

	dlog, err := downloads.OpenLog(settings.DownloadLogPath())
	if err != nil {
		logger.Fatalf("open download log: %v", err)
	}
	defer func() {
		if err := dlog.Close(); err != nil {
			logger.Printf("error closing download log: %v", err)
		}
	}()

	var schema server.SchemaSource = defaultSchema{}
	if settings.SchemaFile != "" {
		schemaStore, err := fields.NewSchemaStore(settings.SchemaFile, settings.RefreshDebounce, logger)
		if err != nil {
			logger.Fatalf("initialise schema store: %v", err)
		}
		defer func() {
			if err := schemaStore.Close(); err != nil {
				logger.Printf("error closing schema store: %v", err)
			}
		}()
		schema = schemaStore
	}

	renderer := feed.NewRenderer(st, st, resolver, baseURL, logger)

	handler := server.New(server.Options{
		Store:        st,
		Renderer:     renderer,
		Schema:       schema,
		Assets:       resolver,
		Downloads:    dlog,
		BaseURL:      baseURL,
		AdminToken:   settings.AdminToken,
		CommentIntro: settings.CommentIntro,
		Logger:       logger,
	})

	httpServer := &http.Server{
		Addr:              settings.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("graceful shutdown error: %v", err)
		}
	}()

	logger.Printf("listening on %s (media directory: %s)", settings.ListenAddr, settings.MediaDir)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("http server error: %v", err)
	}
	logger.Println("shutdown complete")
}

func runFeedCommand(st *store.Store, list bool, add, remove string) error {
	switch {
	case add != "":
		id := sanitize.MachineName(add)
		if id == "" {
			return fmt.Errorf("label %q produces an empty feed id", add)
		}
		if err := st.AddFeed(id, add); err != nil {
			return fmt.Errorf("add feed: %w", err)
		}
		fmt.Println("added feed", id)
	case remove != "":
		if err := st.RemoveFeed(remove); err != nil {
			return fmt.Errorf("remove feed: %w", err)
		}
		fmt.Println("removed feed", remove)
	case list:
		feeds, err := st.Feeds()
		if err != nil {
			return fmt.Errorf("list feeds: %w", err)
		}
		if len(feeds) == 0 {
			fmt.Println("no feeds configured")
			return nil
		}
		for _, f := range feeds {
			fmt.Println(f)
		}
	}
	return nil
}
