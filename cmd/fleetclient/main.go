package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"fleetserver/client"
	"fleetserver/connection"
	"fleetserver/game"
	"fleetserver/protocol"
	"fleetserver/tui"
)

const dialTimeout = 10 * time.Second

func main() {
	_ = godotenv.Load()

	cmd := &cli.Command{
		Name:  "fleetclient",
		Usage: "play a fleet battle through a broker or directly against a peer",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Value:   "localhost:5555",
				Usage:   "broker address, or peer address in direct mode",
				Sources: cli.EnvVars("FLEET_ADDR"),
			},
			&cli.StringFlag{
				Name:    "ws",
				Usage:   "broker WebSocket URL, e.g. ws://localhost:8080/ws (instead of --addr)",
				Sources: cli.EnvVars("FLEET_WS"),
			},
			&cli.StringFlag{Name: "room", Usage: "room to create or join"},
			&cli.BoolFlag{Name: "host", Usage: "create the room (or listen, in direct mode)"},
			&cli.BoolFlag{Name: "list", Usage: "print the open rooms and exit"},
			&cli.StringFlag{Name: "mode", Value: "relayed", Usage: "relayed or direct"},
			&cli.BoolFlag{Name: "auto-place", Usage: "place the whole fleet at random on start"},
			&cli.StringFlag{Name: "seed", Usage: "random seed for auto placement"},
			&cli.StringFlag{
				Name:    "log-file",
				Usage:   "write logs to this file (the terminal belongs to the UI)",
				Sources: cli.EnvVars("FLEET_LOG_FILE"),
			},
		},
		Action: play,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(path string) (*zap.Logger, error) {
	if path == "" {
		return zap.NewNop(), nil
	}
	config := zap.NewProductionConfig()
	config.OutputPaths = []string{path}
	config.ErrorOutputPaths = []string{path}
	return config.Build()
}

func newRNG(seed string) (*rand.Rand, error) {
	if seed == "" {
		return rand.New(rand.NewSource(time.Now().UnixNano())), nil
	}
	n, err := strconv.ParseInt(seed, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}
	return rand.New(rand.NewSource(n)), nil
}

func play(ctx context.Context, cmd *cli.Command) error {
	logger, err := newLogger(cmd.String("log-file"))
	if err != nil {
		return err
	}
	defer logger.Sync()

	rng, err := newRNG(cmd.String("seed"))
	if err != nil {
		return err
	}

	mode := protocol.ParseMode(cmd.String("mode"))
	role := game.Client
	if cmd.Bool("host") {
		role = game.Host
	}

	var mgr *connection.Manager
	if mode == protocol.Direct {
		mgr, err = connectDirect(ctx, cmd, role, logger)
	} else {
		mgr, err = connectBroker(ctx, cmd, role, logger)
	}
	if err != nil || mgr == nil {
		return err
	}

	runner := client.NewRunner(game.NewSession(role, mode, logger), mgr, logger, rng)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go runner.Run(runCtx)

	if cmd.Bool("auto-place") {
		if err := runner.AutoPlace(); err != nil {
			return err
		}
	}

	title := fmt.Sprintf("Fleet - %s via %s (%s)", role, mgr.RemoteAddr(), mode)
	if room := cmd.String("room"); room != "" {
		title = fmt.Sprintf("Fleet - %s of %s (%s)", role, room, mode)
	}
	uiErr := tui.Run(runner, title)

	cancel()
	<-runner.Done()
	final := runner.State()
	switch {
	case final.Over && final.Won():
		fmt.Printf("You won. Score %d (accuracy %.2f%%)\n", final.Score.Total, final.Score.Accuracy)
	case final.Over:
		fmt.Printf("You lost. Score %d\n", final.Score.Total)
	}
	return uiErr
}

// connectBroker returns nil, nil when only the room list was requested.
func connectBroker(ctx context.Context, cmd *cli.Command, role game.Role, logger *zap.Logger) (*connection.Manager, error) {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	var mgr *connection.Manager
	if url := cmd.String("ws"); url != "" {
		conn, err := connection.DialWebSocket(dialCtx, url)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", url, err)
		}
		mgr = connection.NewManager(conn, protocol.Relayed, logger)
	} else {
		var err error
		mgr, err = connection.Dial(dialCtx, cmd.String("addr"), protocol.Relayed, logger)
		if err != nil {
			return nil, err
		}
	}

	if cmd.Bool("list") {
		defer mgr.Close()
		rooms, err := mgr.ListRooms()
		if err != nil {
			return nil, err
		}
		if len(rooms) == 0 {
			fmt.Println("No open rooms")
		} else {
			fmt.Println(strings.Join(rooms, "\n"))
		}
		return nil, nil
	}

	room := cmd.String("room")
	if room == "" {
		mgr.Close()
		return nil, errors.New("--room is required")
	}
	var err error
	if role == game.Host {
		err = mgr.CreateRoom(room)
	} else {
		err = mgr.JoinRoom(room)
	}
	if err != nil {
		mgr.Close()
		return nil, err
	}
	return mgr, nil
}

func connectDirect(ctx context.Context, cmd *cli.Command, role game.Role, logger *zap.Logger) (*connection.Manager, error) {
	addr := cmd.String("addr")
	if role == game.Client {
		dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
		defer cancel()
		return connection.Dial(dialCtx, addr, protocol.Direct, logger)
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	fmt.Printf("Waiting for an opponent on %s...\n", ln.Addr())
	return connection.AcceptDirect(ctx, ln, logger)
}
