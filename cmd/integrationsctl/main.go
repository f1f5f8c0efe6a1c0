package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/theexperiencecompany/gaia-sub002/internal/config"
	"github.com/theexperiencecompany/gaia-sub002/internal/connection"
	"github.com/theexperiencecompany/gaia-sub002/internal/integration"
	"github.com/theexperiencecompany/gaia-sub002/internal/logging"
	"github.com/theexperiencecompany/gaia-sub002/internal/reconcile"
	"github.com/theexperiencecompany/gaia-sub002/internal/search"
	"github.com/theexperiencecompany/gaia-sub002/internal/upstream"
)

const (
	keyToken  = "token"
	keyUserID = "user_id"
	keyOutput = "output"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := config.NewViper()
	cmd := &cobra.Command{
		Use:          "integrationsctl",
		Short:        "Browse and manage integrations against the product backend",
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.String("upstream", v.GetString(config.KeyUpstreamURL), "product backend base URL")
	flags.String("login-base", "", "OAuth login base URL (default <upstream>/oauth/login/integration)")
	flags.Duration("timeout", v.GetDuration(config.KeyUpstreamTimeout), "backend request timeout")
	flags.String("token", "", "access token forwarded to the backend")
	flags.String("user", "", "current user id, used for created_by_you and ownership")
	flags.Bool("strict-category", v.GetBool(config.KeyStrictCategory), "search only inside the selected category")
	flags.String("log-level", "warn", "log level (trace|debug|info|warn|error)")
	flags.StringP("output", "o", "table", "output format (table|json)")

	mustBindFlag(v, config.KeyUpstreamURL, config.EnvName(config.KeyUpstreamURL), flags.Lookup("upstream"))
	mustBindFlag(v, config.KeyLoginBaseURL, config.EnvName(config.KeyLoginBaseURL), flags.Lookup("login-base"))
	mustBindFlag(v, config.KeyUpstreamTimeout, config.EnvName(config.KeyUpstreamTimeout), flags.Lookup("timeout"))
	mustBindFlag(v, keyToken, "INTEGRATIONS_TOKEN", flags.Lookup("token"))
	mustBindFlag(v, keyUserID, "INTEGRATIONS_USER_ID", flags.Lookup("user"))
	mustBindFlag(v, config.KeyStrictCategory, config.EnvName(config.KeyStrictCategory), flags.Lookup("strict-category"))
	mustBindFlag(v, config.KeyLogLevel, config.EnvName(config.KeyLogLevel), flags.Lookup("log-level"))
	mustBindFlag(v, keyOutput, "INTEGRATIONS_OUTPUT", flags.Lookup("output"))

	cli := &cliContext{v: v}
	cmd.AddCommand(
		newListCommand(cli),
		newSearchCommand(cli),
		newCategoriesCommand(cli),
		newShowCommand(cli),
		newConnectCommand(cli),
		newConnectAllCommand(cli),
		newDisconnectCommand(cli),
		newCreateCommand(cli),
		newDeleteCommand(cli),
		newPublishCommand(cli, true),
		newPublishCommand(cli, false),
	)
	return cmd
}

func mustBindFlag(v *viper.Viper, key, env string, flag *pflag.Flag) {
	if flag == nil {
		panic(fmt.Sprintf("flag for key %s not found", key))
	}
	if err := v.BindPFlag(key, flag); err != nil {
		panic(err)
	}
	if env != "" {
		if err := v.BindEnv(key, env); err != nil {
			panic(err)
		}
	}
}

// cliContext resolves configuration lazily so flags are parsed first.
type cliContext struct {
	v *viper.Viper
}

func (c *cliContext) config() config.Config {
	return config.FromViper(c.v)
}

func (c *cliContext) userID() string {
	return c.v.GetString(keyUserID)
}

func (c *cliContext) jsonOutput() bool {
	return c.v.GetString(keyOutput) == "json"
}

func (c *cliContext) logger(cmd *cobra.Command) *logrus.Logger {
	return logging.NewWithOutput(cmd.ErrOrStderr(), c.v.GetString(config.KeyLogLevel), "text")
}

// session is everything a single command invocation needs.
type session struct {
	ctx    context.Context
	cfg    config.Config
	client *upstream.Client
	log    logrus.FieldLogger
	out    io.Writer
	json   bool
	userID string
}

func (c *cliContext) session(cmd *cobra.Command) *session {
	cfg := c.config()
	log := c.logger(cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if token := c.v.GetString(keyToken); token != "" {
		ctx = upstream.WithAccessToken(ctx, token)
	}
	return &session{
		ctx:    ctx,
		cfg:    cfg,
		client: upstream.New(cfg.UpstreamURL, cfg.UpstreamTimeout, log),
		log:    log,
		out:    cmd.OutOrStdout(),
		json:   c.jsonOutput(),
		userID: c.userID(),
	}
}

// load reconciles the three sources straight from the backend.
func (s *session) load() ([]integration.Reconciled, bool, error) {
	sources, err := reconcile.Load(s.ctx, s.client, s.log)
	if err != nil {
		return nil, sources.Degraded, err
	}
	return sources.Reconcile(), sources.Degraded, nil
}

func (s *session) searchService() *search.Service {
	return search.NewService(nil, search.Pipeline{StrictCategory: s.cfg.StrictCategory}, s.log)
}

// orchestrator prints redirect targets instead of opening them and writes
// notifications to stderr. JSON output sends the redirect line to stderr as well.
func (s *session) orchestrator(errOut io.Writer) *connection.Orchestrator {
	navOut := s.out
	if s.json {
		navOut = errOut
	}
	return connection.New(connection.Options{
		UserID:    s.userID,
		LoginBase: s.cfg.LoginBaseURL,
		API:       s.client,
		Resolver: connection.ResolverFunc(func(ctx context.Context) ([]integration.Reconciled, error) {
			list, _, err := s.load()
			return list, err
		}),
		Navigator: connection.NavigatorFunc(func(_ context.Context, url string) error {
			_, err := fmt.Fprintf(navOut, "open %s\n", url)
			return err
		}),
		Notifier: connection.NotifierFunc(func(_ context.Context, n connection.Notification) {
			fmt.Fprintf(errOut, "[%s] %s: %s\n", n.Level, n.Title, n.Message)
		}),
		Log: s.log,
	})
}
