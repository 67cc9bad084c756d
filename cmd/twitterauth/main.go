package main

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dropDatabas3/twitterauth/internal/app"
	"github.com/dropDatabas3/twitterauth/internal/config"
	httpx "github.com/dropDatabas3/twitterauth/internal/http"
	"github.com/dropDatabas3/twitterauth/internal/observability/logger"
	"github.com/dropDatabas3/twitterauth/internal/strategy"
	"github.com/dropDatabas3/twitterauth/internal/strategy/twitter"
	"github.com/dropDatabas3/twitterauth/internal/util"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		cfgPath string
		envFile string
	)

	root := &cobra.Command{
		Use:           "twitterauth",
		Short:         "Login con Twitter (OAuth 1.0a) que emite tickets firmados",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// .env es opcional: el entorno real siempre gana
			if err := godotenv.Load(envFile); err != nil && envFile != ".env" {
				return fmt.Errorf("load %s: %w", envFile, err)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", os.Getenv("CONFIG_PATH"), "ruta al config.yaml (env CONFIG_PATH)")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "archivo .env a cargar")

	load := func() (*config.Config, error) { return config.Load(cfgPath) }

	root.AddCommand(
		newServeCmd(load),
		newConfigCmd(load),
		newEndpointsCmd(load),
	)
	root.Version = version
	return root
}

func newServeCmd(load func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Levanta el servidor HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			logger.Init(logger.Config{
				Env:         cfg.App.Env,
				Level:       cfg.Log.Level,
				ServiceName: cfg.App.Name,
				Version:     version,
			})
			defer func() { _ = logger.Sync() }()
			log := logger.L()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			c, err := app.Build(ctx, cfg, app.Options{})
			if err != nil {
				log.Error("build failed", logger.Err(err))
				return err
			}
			defer func() {
				if err := c.Close(); err != nil {
					log.Warn("close failed", logger.Err(err))
				}
			}()

			for _, name := range c.Auth.Strategies() {
				log.Info("strategy mounted",
					logger.Strategy(name),
					logger.Path(c.Auth.RequestPath(name)),
				)
			}
			return httpx.Serve(ctx, cfg.Server.Addr, c.Handler, cfg.Server.ShutdownTimeout)
		},
	}
}

func newConfigCmd(load func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Imprime la config efectiva (secretos enmascarados)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			masked := *cfg
			masked.Session.Secret = util.MaskSecret(cfg.Session.Secret)
			masked.Cache.Redis.Password = util.MaskSecret(cfg.Cache.Redis.Password)
			masked.Twitter.ClientSecret = util.MaskSecret(cfg.Twitter.ClientSecret)

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(&masked)
		},
	}
}

func newEndpointsCmd(load func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "endpoints",
		Short: "Imprime los endpoints de Twitter y las rutas locales",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			opts := cfg.Twitter
			co := opts.ClientOptions
			host := cfg.Server.PublicURL
			if host == "" {
				host = "http://localhost"
				if _, port, err := net.SplitHostPort(cfg.Server.Addr); err == nil && port != "" {
					host += ":" + port
				}
			}
			req, err := http.NewRequest(http.MethodGet, host, nil)
			if err != nil {
				return fmt.Errorf("public url: %w", err)
			}
			st := twitter.New(strategy.NewHTTPEnv(req, strategy.MapSession{}, host, false), opts, twitter.Deps{})
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "request_token  %s%s\n", co.Site, co.RequestTokenPath)
			fmt.Fprintf(out, "authorize      %s%s\n", co.Site, st.AuthorizeEndpoint())
			fmt.Fprintf(out, "access_token   %s%s\n", co.Site, co.AccessTokenPath)
			fmt.Fprintf(out, "profile        %s%s\n", co.Site, opts.ProfilePath)
			fmt.Fprintf(out, "request_phase  %s/%s\n", cfg.Auth.PathPrefix, opts.Name)
			fmt.Fprintf(out, "callback       %s\n", st.CallbackURL())
			fmt.Fprintf(out, "failure        %s\n", cfg.Auth.FailurePath)
			return nil
		},
	}
}
