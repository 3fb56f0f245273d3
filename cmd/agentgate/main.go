// agentgate serves the agent runtime contract: it resolves credentials,
// connects to the tool gateway for each invocation and runs the model
// with the discovered tools.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/agentgate/assistants"
	"github.com/effective-security/agentgate/config"
	"github.com/effective-security/agentgate/gateway"
	"github.com/effective-security/agentgate/handler"
	"github.com/effective-security/agentgate/identity"
	"github.com/effective-security/agentgate/jwtauth"
	"github.com/effective-security/agentgate/pkg/llms/bedrock"
	"github.com/effective-security/agentgate/server"
	"github.com/effective-security/agentgate/stats"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/agentgate", "main")

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type flags struct {
	configFile string
	addr       string
	workDir    string
	logLevel   string
	logJSON    bool
	envFile    string
}

func parseFlags(args []string) (*flags, error) {
	f := new(flags)
	fs := pflag.NewFlagSet("agentgate", pflag.ContinueOnError)
	fs.StringVar(&f.configFile, "config", "", "optional YAML or JSON configuration file")
	fs.StringVar(&f.addr, "addr", "", "listen address, overrides PORT")
	fs.StringVar(&f.workDir, "workdir", "", "directory with .cognito-*.json and .gateway-info.json")
	fs.StringVar(&f.logLevel, "log-level", "info", "log level: trace, debug, info, notice, warning, error")
	fs.BoolVar(&f.logJSON, "log-json", false, "log in JSON format")
	fs.StringVar(&f.envFile, "env-file", ".env", "dotenv file loaded when present")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return f, nil
}

func run(args []string) error {
	f, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if f.envFile != "" {
		if _, err := os.Stat(f.envFile); err == nil {
			if err := godotenv.Load(f.envFile); err != nil {
				return errors.WithMessagef(err, "unable to load %s", f.envFile)
			}
		}
	}

	if err := setupLogging(f.logLevel, f.logJSON); err != nil {
		return err
	}

	cfg, err := config.Load(f.configFile)
	if err != nil {
		return err
	}
	cfg.Addr = values.StringsCoalesce(f.addr, cfg.Addr)
	cfg.WorkDir = values.StringsCoalesce(f.workDir, cfg.WorkDir)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	srv, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	return srv.Serve(ctx)
}

// build wires the runtime components.
func build(ctx context.Context, cfg *config.Config) (*server.Server, error) {
	gatewayInfo := cfg.Path(config.GatewayInfoFile)
	endpoint, err := gateway.ResolveEndpoint(cfg.GatewayURL, cfg.Region, gatewayInfo)
	if err != nil {
		return nil, err
	}
	cfg.Region = values.StringsCoalesce(cfg.Region, endpoint.Region, config.DefaultRegion)

	server.LogStartupInfo(cfg)

	idCfg, err := identity.LoadConfig(cfg.Path(config.CognitoInfoFile))
	if err != nil {
		logger.KV(xlog.WARNING,
			"status", "identity_config_not_loaded",
			"err", err.Error(),
		)
	}

	var auth *jwtauth.Validator
	if cfg.LocalValidation {
		if idCfg == nil || idCfg.DiscoveryURL == "" || idCfg.ClientID == "" {
			return nil, errors.Newf("local validation requires discoveryUrl and clientId in %s", config.CognitoInfoFile)
		}
		auth, err = jwtauth.New(idCfg.DiscoveryURL, idCfg.AllowedClients(),
			jwtauth.WithFetchTimeout(config.DefaultDiscoveryTimeout))
		if err != nil {
			return nil, err
		}
	}

	agg := stats.New(cfg.ModelID, cfg.FlushEvery)

	resolver := identity.NewResolver(idCfg,
		identity.WithLocalValidation(cfg.LocalValidation),
		identity.WithRegion(cfg.Region),
		identity.WithTokenFile(cfg.Path(config.CognitoTokenFile)),
		identity.WithExchangeTimeout(cfg.ExchangeTimeout()),
		identity.WithRefreshRecorder(agg),
	)

	conn := gateway.New(
		gateway.NewEndpointResolver(cfg.GatewayURL, cfg.Region, gatewayInfo),
		gateway.WithSessionTimeout(cfg.SessionTimeout()),
	)

	model, err := bedrock.New(ctx,
		bedrock.WithModel(cfg.ModelID),
		bedrock.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, err
	}

	h := handler.New(model, resolver, conn, agg,
		handler.WithAssistantOptions(
			assistants.WithTemperature(cfg.GetTemperature()),
			assistants.WithTopP(cfg.GetTopP()),
			assistants.WithMaxTokens(cfg.MaxTokens),
		),
	)

	return server.New(cfg, h, auth), nil
}

func setupLogging(level string, asJSON bool) error {
	lvl, ok := logLevels[strings.ToLower(level)]
	if !ok {
		return errors.Newf("invalid log level: %s", level)
	}
	if asJSON {
		xlog.SetFormatter(xlog.NewJSONFormatter(os.Stderr))
	} else {
		xlog.SetFormatter(xlog.NewStringFormatter(os.Stderr))
	}
	xlog.SetGlobalLogLevel(lvl)
	return nil
}

var logLevels = map[string]xlog.LogLevel{
	"trace":   xlog.TRACE,
	"debug":   xlog.DEBUG,
	"info":    xlog.INFO,
	"notice":  xlog.NOTICE,
	"warning": xlog.WARNING,
	"error":   xlog.ERROR,
}
