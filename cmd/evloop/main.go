package main

import (
	"evloop"
	"flag"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var config *evloop.Config
var handlerName string

func init() {
	configFilePath := flag.String("c", "", "path to configuration file (toml or yaml).")
	flag.StringVar(&handlerName, "handler", "echo", "payload handler: echo or discard.")
	flag.Parse()
	if *configFilePath == "" {
		config = evloop.DefaultConfig()
	} else {
		var err error
		config, err = evloop.LoadConfig(*configFilePath)
		if err != nil {
			log.Fatal().Msgf("can't load config %s: %+v", *configFilePath, err)
		}
	}
	initLog(config)
}

func initLog(config *evloop.Config) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	level, err := zerolog.ParseLevel(config.Global.LogLevel)
	if err != nil {
		log.Warn().Msgf("unknown log level %q, using info", config.Global.LogLevel)
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func main() {
	var handler evloop.PayloadHandler = evloop.EchoHandler{}
	if handlerName == "discard" {
		handler = evloop.DiscardHandler{}
	}
	log.Info().Msg("starting evloop...")
	server, err := evloop.NewServer(config, handler)
	if err != nil {
		log.Fatal().Msgf("can't start server: %+v", err)
	}
	if err := server.Run(); err != nil {
		log.Error().Msgf("server stopped with error: %+v", err)
		os.Exit(1)
	}
	log.Info().Msg("evloop stopped")
}
