package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"smartdoc/internal/config"
	"smartdoc/internal/db"
	"smartdoc/internal/embedding"
	"smartdoc/internal/helper"
	"smartdoc/internal/llmservice"
	"smartdoc/internal/parser"
	"smartdoc/internal/session"
	"smartdoc/internal/tui"
)

const configFilePath = "./configs/config.yaml"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Caller().Logger()

	configPath := flag.String("config", configFilePath, "Path to the YAML config file")
	filePath := flag.String("file", "", "Path to the document file")
	loadPath := flag.String("load", "", "Path to a saved vector index")
	savePath := flag.String("save", "", "Save the vector index to this path after indexing")
	query := flag.String("query", "", "Query to be answered")
	chat := flag.Bool("chat", false, "Start an interactive chat about the document")
	summarize := flag.Bool("summarize", false, "Also print a summary of every answer")
	dryRun := flag.Bool("dry-run", false, "Parse and chunk the document, print the chunks and exit")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading config")
	}
	setLogLevel(cfg.LogLevel)
	log.Debug().Interface("rag", cfg.RAG).Msg("Loaded config")

	ctx := context.Background()

	if *dryRun {
		if *filePath == "" {
			log.Fatal().Msg("Please provide a document file using the -file flag")
		}
		chunks, err := parser.LoadChunks(ctx, *filePath, cfg.RAG)
		if err != nil {
			log.Fatal().Err(err).Msg("Error parsing document")
		}
		helper.PrettyPrint(chunks)
		return
	}

	if *filePath != "" && *loadPath != "" {
		log.Fatal().Msg("Please provide either a document file using the -file flag or a saved index using the -load flag, but not both")
	}

	sess, cleanup := newSession(ctx, cfg)
	defer cleanup()

	switch {
	case *filePath != "":
		progress := newEmbedProgress()
		sess.SetProgress(progress.Report)
		n, err := sess.LoadDocument(ctx, *filePath)
		if err != nil {
			log.Fatal().Err(err).Msg("Error indexing document")
		}
		log.Info().Int("chunks", n).Str("file", *filePath).Msg("Indexed document")
		if *savePath != "" {
			if err := sess.SaveIndex(*savePath); err != nil {
				log.Fatal().Err(err).Msg("Error saving vector index")
			}
			log.Info().Str("path", *savePath).Msg("Saved vector index")
		}
	case *loadPath != "":
		if err := sess.LoadIndex(ctx, *loadPath); err != nil {
			log.Fatal().Err(err).Msg("Error loading vector index")
		}
	}

	if !sess.Ready() {
		log.Fatal().Msg("No document loaded: use -file, -load, or a populated pgvector index")
	}

	if *query != "" {
		answer(ctx, sess, *query, *summarize)
	}

	if *chat {
		// the chat owns the terminal
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
		if _, err := tea.NewProgram(tui.New(ctx, sess, *summarize), tea.WithAltScreen()).Run(); err != nil {
			log.Fatal().Err(err).Msg("Error running chat")
		}
	}
}

func setLogLevel(level string) {
	l, err := zerolog.ParseLevel(level)
	if err != nil || l == zerolog.NoLevel {
		l = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(l)
}

// newSession wires providers and the configured vector store into a session.
func newSession(ctx context.Context, cfg *config.Config) (*session.Session, func()) {
	embedder, err := embedding.NewEmbedder(ctx, &cfg.EmbedLLM, cfg.RAG.BatchSize)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing embedder")
	}
	llm, err := llmservice.NewLLM(ctx, &cfg.LLM)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing llm")
	}

	if cfg.RAG.VectorStore != "pgvector" {
		sess, err := session.New(cfg, embedder, llm, session.ChromemBackend())
		if err != nil {
			log.Fatal().Err(err).Msg("Error creating session")
		}
		return sess, func() {}
	}

	dbClient, err := db.ConnectDB(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Error connecting to database")
	}
	dbInstance := db.NewDB(dbClient, cfg.Database.Debug)
	if err := db.InitDB(ctx, dbInstance); err != nil {
		log.Fatal().Err(err).Msg("Error initializing database")
	}

	store := db.NewStore(dbInstance, cfg.Database.IndexName)
	sess, err := session.New(cfg, embedder, llm, session.PGBackend(store))
	if err != nil {
		log.Fatal().Err(err).Msg("Error creating session")
	}

	idx, err := store.Open(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Error opening pgvector index")
	}
	if idx.Len() > 0 {
		if err := sess.Attach(idx, cfg.Database.IndexName); err != nil {
			log.Fatal().Err(err).Msg("Error attaching pgvector index")
		}
	}
	return sess, func() { dbInstance.Close() }
}

func answer(ctx context.Context, sess *session.Session, query string, summarize bool) {
	rec, err := sess.Ask(ctx, query)
	if err != nil {
		log.Fatal().Err(err).Msg("Error querying")
	}

	log.Info().Msg("Query: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", query)

	log.Info().Msg("Source: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	for _, c := range rec.Sources {
		fmt.Printf("[chunk %d, page %d] %s\n\n", c.ChunkID, c.PageNumber, c.Content)
	}

	log.Info().Msg("Assistant: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", rec.Answer)

	if summarize {
		summary, err := sess.Summarize(ctx, rec.Answer)
		if err != nil {
			log.Fatal().Err(err).Msg("Error summarizing")
		}
		log.Info().Msg("Summary: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
		fmt.Printf("%s\n\n", summary)
	}
}
