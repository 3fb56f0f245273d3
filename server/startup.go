package server

import (
	"os"

	"github.com/effective-security/agentgate/config"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
)

// LogStartupInfo logs the effective configuration and which of the
// configuration files are present in the working directory.
func LogStartupInfo(cfg *config.Config) {
	logger.KV(xlog.NOTICE,
		"status", "starting",
		"region", values.StringsCoalesce(cfg.Region, config.DefaultRegion),
		"model", cfg.ModelID,
		"gateway_url_override", cfg.GatewayURL != "",
		"workdir", cfg.WorkDir,
	)

	for _, name := range []string{config.GatewayInfoFile, config.CognitoInfoFile, config.CognitoTokenFile} {
		logger.KV(xlog.INFO,
			"status", "config_file",
			"file", name,
			"found", fileExists(cfg.Path(name)),
		)
	}

	if cfg.LocalValidation {
		logger.KV(xlog.NOTICE, "status", "auth_mode", "mode", "local", "detail", "JWT validated in-process")
	} else {
		logger.KV(xlog.NOTICE, "status", "auth_mode", "mode", "aws", "detail", "JWT handled by AgentCore infrastructure")
	}
}

func fileExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}
