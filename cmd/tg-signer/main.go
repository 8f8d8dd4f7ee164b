package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/QQHoney/tg-signer/internal/ai"
	"github.com/QQHoney/tg-signer/internal/api"
	"github.com/QQHoney/tg-signer/internal/config"
	"github.com/QQHoney/tg-signer/internal/monitor"
	"github.com/QQHoney/tg-signer/internal/peer"
	"github.com/QQHoney/tg-signer/internal/push"
	"github.com/QQHoney/tg-signer/internal/signer"
	"github.com/QQHoney/tg-signer/internal/storage"
	"github.com/QQHoney/tg-signer/internal/telegram"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "tg-signer",
		Short:         "Telegram auto sign-in and chat monitoring agent",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config.yml", "path to the YAML config file")

	root.AddCommand(signCmd(), monitorCmd(), tasksCmd(), sendCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app bundles everything a command needs after wiring.
type app struct {
	logger *zap.Logger
	cfg    *config.Config
	tasks  *config.TaskStore
	store  *storage.Storage
	client *telegram.Client
	ai     *ai.Client
}

func newApp() (*app, error) {
	_ = godotenv.Load()

	logger, err := zap.NewDevelopment()
	if err != nil {
		return nil, err
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Error("Failed to load config", zap.Error(err))
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid config", zap.Error(err))
		return nil, err
	}

	store, err := storage.NewStorage(cfg.Database.Path, logger)
	if err != nil {
		logger.Error("Failed to open storage", zap.Error(err))
		return nil, err
	}

	a := &app{
		logger: logger,
		cfg:    cfg,
		tasks:  config.NewTaskStore(cfg.Workdir),
		store:  store,
		client: telegram.NewClient(cfg, logger),
	}
	if cfg.OpenAI.APIKey != "" {
		a.ai = ai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Model)
	}
	return a, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Error("Error closing database", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// startAPI launches the status API in the background when enabled.
func (a *app) startAPI() {
	if !a.cfg.API.Enabled {
		return
	}
	server := api.NewServer(a.tasks, a.store, a.logger)
	go func() {
		if err := server.Start(a.cfg.API.Addr); err != nil {
			a.logger.Error("API server failed", zap.Error(err))
		}
	}()
}

func runContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func signCmd() *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "sign <task>",
		Short: "Run a sign-in task on its schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			task := args[0]
			cfg, upgraded, err := a.tasks.LoadSign(task)
			if err != nil {
				return err
			}
			if upgraded {
				a.logger.Info("Sign task config was in an old shape, rewriting", zap.String("task", task))
				if err := a.tasks.SaveSign(task, cfg); err != nil {
					return err
				}
			}

			a.startAPI()
			ctx, cancel := runContext()
			defer cancel()

			s := signer.New(task, cfg, a.client, a.ai, a.store, a.logger)
			return a.client.Run(ctx, func(ctx context.Context) error {
				if once {
					return s.SignOnce(ctx)
				}
				return s.Run(ctx)
			})
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "sign in immediately and exit instead of scheduling")
	return cmd
}

func monitorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "monitor <task>",
		Short: "Run a monitor task against incoming messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			task := args[0]
			cfg, _, err := a.tasks.LoadMonitor(task)
			if err != nil {
				return err
			}

			a.startAPI()
			ctx, cancel := runContext()
			defer cancel()

			session := monitor.New(task, cfg, a.client, a.ai, push.NewServerChan(a.logger), a.store, a.logger)
			session.Register()
			return a.client.Run(ctx, session.Run)
		},
	}
}

func tasksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tasks",
		Short: "List configured sign and monitor tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			tasks := config.NewTaskStore(cfg.Workdir)

			signs, err := tasks.ListSigns()
			if err != nil {
				return err
			}
			monitors, err := tasks.ListMonitors()
			if err != nil {
				return err
			}

			fmt.Println("sign tasks:")
			for _, name := range signs {
				fmt.Printf("  %s\n", name)
			}
			fmt.Println("monitor tasks:")
			for _, name := range monitors {
				fmt.Printf("  %s\n", name)
			}
			return nil
		},
	}
}

func sendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <chat> <text>",
		Short: "Send a one-off message to a chat (numeric id or @username)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			chatID := parseChatArg(args[0])
			text := args[1]

			ctx, cancel := runContext()
			defer cancel()

			return a.client.Run(ctx, func(ctx context.Context) error {
				p, err := a.client.ResolvePeer(ctx, chatID)
				if err != nil {
					return err
				}
				msgID, err := a.client.SendText(ctx, p, text)
				if err != nil {
					return err
				}
				a.logger.Info("Message sent", zap.String("chat", chatID.String()), zap.Int("message_id", msgID))
				return nil
			})
		},
	}
}

func parseChatArg(arg string) peer.ID {
	if n, err := strconv.ParseInt(arg, 10, 64); err == nil {
		return peer.Num(n)
	}
	return peer.Handle(arg)
}
