package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pior/redis"
	"github.com/rs/zerolog"
)

func main() {
	servers := flag.String("servers", "", "comma-separated server addresses (overrides the config file)")
	configPath := flag.String("config", "", "path to a TOML config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := zerolog.InfoLevel
	if *debug {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	cfg, err := loadConfig(*configPath, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	if *servers != "" {
		cfg.Servers = splitServers(*servers)
	}
	cfg.Client.Logger = logger

	client, err := redis.NewClient(redis.NewStaticServers(cfg.Servers...), cfg.Client)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create client")
	}
	defer client.Close()

	fmt.Println("Redis CLI Tool")
	fmt.Println("==============")
	fmt.Printf("Servers: %s\n", strings.Join(cfg.Servers, ", "))
	fmt.Println("Commands: get <key>, set <key> <value> [ttl], ping, publish <channel> <message>, stats, quit")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}

		command := strings.ToLower(parts[0])
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)

		switch command {
		case "get":
			if len(parts) != 2 {
				fmt.Println("Usage: get <key>")
				break
			}
			handleGet(ctx, client, parts[1])

		case "set":
			if len(parts) < 3 || len(parts) > 4 {
				fmt.Println("Usage: set <key> <value> [ttl_seconds]")
				break
			}
			var ttl time.Duration = redis.NoTTL
			if len(parts) == 4 {
				ttlSecs, err := strconv.Atoi(parts[3])
				if err != nil {
					fmt.Printf("Invalid TTL: %v\n", err)
					break
				}
				ttl = time.Duration(ttlSecs) * time.Second
			}
			handleSet(ctx, client, parts[1], parts[2], ttl)

		case "ping":
			handlePing(ctx, client)

		case "publish", "pub":
			if len(parts) < 3 {
				fmt.Println("Usage: publish <channel> <message>")
				break
			}
			handlePublish(ctx, client, parts[1], strings.Join(parts[2:], " "))

		case "stats":
			handleStats(client)

		case "help":
			fmt.Println("Commands:")
			fmt.Println("  get <key>                   - Get a value by key")
			fmt.Println("  set <key> <value> [ttl]     - Set a key-value pair with optional TTL")
			fmt.Println("  ping                        - Ping the server")
			fmt.Println("  publish <channel> <message> - Publish a message")
			fmt.Println("  stats                       - Show client and pool statistics")
			fmt.Println("  quit                        - Exit the CLI")

		case "quit", "exit":
			cancel()
			fmt.Println("Goodbye!")
			return

		default:
			fmt.Printf("Unknown command: %s. Type 'help' for available commands.\n", command)
		}
		cancel()
	}

	if err := scanner.Err(); err != nil {
		logger.Error().Err(err).Msg("error reading input")
	}
}

func handleGet(ctx context.Context, client *redis.Client, key string) {
	start := time.Now()
	item, err := client.Get(ctx, key)
	duration := time.Since(start)

	if err != nil {
		fmt.Printf("Error: %v (took %v)\n", err, duration)
		return
	}
	if !item.Found {
		fmt.Printf("Key not found (took %v)\n", duration)
		return
	}

	fmt.Printf("Value: %s (took %v)\n", item.Value, duration)
}

func handleSet(ctx context.Context, client *redis.Client, key, value string, ttl time.Duration) {
	start := time.Now()
	err := client.Set(ctx, redis.Item{Key: key, Value: []byte(value), TTL: ttl})
	duration := time.Since(start)

	if err != nil {
		fmt.Printf("Error: %v (took %v)\n", err, duration)
		return
	}

	fmt.Printf("Stored successfully (took %v)\n", duration)
}

func handlePing(ctx context.Context, client *redis.Client) {
	start := time.Now()
	err := client.Ping(ctx)
	duration := time.Since(start)

	if err != nil {
		fmt.Printf("Ping failed: %v (took %v)\n", err, duration)
		return
	}

	fmt.Printf("Ping successful (took %v)\n", duration)
}

func handlePublish(ctx context.Context, client *redis.Client, channel, message string) {
	start := time.Now()
	receivers, err := client.Publish(ctx, channel, []byte(message))
	duration := time.Since(start)

	if err != nil {
		fmt.Printf("Error: %v (took %v)\n", err, duration)
		return
	}

	fmt.Printf("Delivered to %d subscribers (took %v)\n", receivers, duration)
}

func handleStats(client *redis.Client) {
	stats := client.Stats()
	fmt.Println("Client Statistics:")
	fmt.Printf("  Gets: %d (hits: %d)\n", stats.Gets, stats.GetHits)
	fmt.Printf("  Sets: %d\n", stats.Sets)
	fmt.Printf("  Pings: %d\n", stats.Pings)
	fmt.Printf("  Publishes: %d\n", stats.Publishes)
	fmt.Printf("  Errors: %d\n", stats.Errors)

	for i, ps := range client.AllPoolStats() {
		fmt.Printf("Server %d (%s):\n", i+1, ps.Addr)
		fmt.Printf("  Total Connections: %d\n", ps.PoolStats.TotalConns)
		fmt.Printf("  Idle Connections: %d\n", ps.PoolStats.IdleConns)
		fmt.Printf("  Active Connections: %d\n", ps.PoolStats.ActiveConns)
		fmt.Printf("  Circuit Breaker: %s\n", ps.CircuitBreakerState)
	}
}
