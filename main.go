// main.go
//
// Process entrypoint: load config, open storage, wire collaborators, serve.

package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"wordroom/internal/config"
	"wordroom/internal/httpserver"
	"wordroom/internal/identity"
	"wordroom/internal/room"
	"wordroom/internal/store"
	"wordroom/internal/words"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	src, err := words.Load(cfg.WordsDir)
	if err != nil {
		log.Fatal().Err(err).Msg("load word lists")
	}
	log.Info().Interface("words", src.Stats()).Msg("word lists loaded")

	db, err := openDB(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()
	if err := migrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	st := store.New(db, log.Logger)
	idp := identity.NewGuest(cfg.JWTSecret, cfg.TokenTTL)
	rec := identity.NewRecorder(st, log.Logger)
	eng := room.NewEngine(st, src, rec, log.Logger)

	srv := httpserver.New(st, eng, idp, src, httpserver.Config{
		ClientOrigin: cfg.ClientOrigin,
		PollInterval: cfg.PollInterval,
	})

	log.Info().Str("port", cfg.Port).Msg("starting wordroom server")
	if err := srv.Start(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}
