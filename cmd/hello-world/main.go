package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/pior/redis"
	"github.com/rs/zerolog"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:6379", "server address")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	if err := run(context.Background(), *addr, logger); err != nil {
		logger.Error().Err(err).Str("addr", *addr).Msg("hello-world failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, addr string, logger zerolog.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	conn, err := redis.Connect(ctx, addr, redis.WithLogger(logger))
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.Set(ctx, "hello", []byte("world"), 0); err != nil {
		return err
	}

	value, found, err := conn.Get(ctx, "hello")
	if err != nil {
		return err
	}
	logger.Debug().Bytes("value", value).Msg("GET hello")

	fmt.Printf("got value from the server; success=%t\n", found)
	return nil
}
