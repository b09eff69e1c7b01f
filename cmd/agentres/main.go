package main

import (
	"io"
	"os"
	"strings"

	"github.com/go-go-golems/agentres/cmd/agentres/cmds"
	"github.com/go-go-golems/agentres/pkg/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

var rootCmd = &cobra.Command{
	Use:   "agentres",
	Short: "agentres answers research questions with a team of LLM agents",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// reinitialize the logger because we can now parse --log-level and co
		// from the command line flag
		initLogger()
	},
}

func initLogger() {
	logLevel := viper.GetString("log-level")
	verbose := viper.GetBool("verbose")
	if verbose && logLevel != "trace" {
		logLevel = "debug"
	}

	err := InitLogger(&logConfig{
		Level:      logLevel,
		LogFile:    viper.GetString("log-file"),
		LogFormat:  viper.GetString("log-format"),
		WithCaller: viper.GetBool("with-caller"),
	})
	cobra.CheckErr(err)
}

type logConfig struct {
	WithCaller bool
	Level      string
	LogFormat  string
	LogFile    string
}

func initCommands(rootCmd *cobra.Command, configPath string) error {
	viper.SetEnvPrefix("agentres")

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("agentres")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.agentres")
		viper.AddConfigPath("/etc/agentres")

		xdgConfigPath, err := os.UserConfigDir()
		if err == nil {
			viper.AddConfigPath(xdgConfigPath + "/agentres")
		}
	}

	err := viper.ReadInConfig()
	// if the file does not exist, continue normally
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		// Config file not found; ignore error
	} else if err != nil {
		return err
	}
	envKeys := strings.NewReplacer("-", "_", ".", "_")
	viper.SetEnvKeyReplacer(envKeys)
	viper.AutomaticEnv()
	config.SetDefaults(viper.GetViper())
	// well-known provider variables are accepted next to the AGENTRES_ ones
	for key, env := range map[string]string{
		"llm.api-key":           "OPENAI_API_KEY",
		"search.tavily-api-key": "TAVILY_API_KEY",
		"search.google-api-key": "GOOGLE_API_KEY",
		"search.google-cse-id":  "GOOGLE_CSE_ID",
		"search.kagi-api-key":   "KAGI_API_KEY",
	} {
		if err := viper.BindEnv(key, "AGENTRES_"+strings.ToUpper(envKeys.Replace(key)), env); err != nil {
			return err
		}
	}

	err = viper.BindPFlags(rootCmd.PersistentFlags())
	if err != nil {
		return err
	}
	for flag, key := range map[string]string{
		"provider":  "llm.provider",
		"model":     "llm.model",
		"api-key":   "llm.api-key",
		"renderer":  "scrape.renderer",
		"knowledge": "knowledge.backend",
	} {
		if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			return err
		}
	}

	// this still won't pick up on --verbose to show debug logging when the commands
	// are parsed, but at least it will configure it based on the config file
	initLogger()

	log.Debug().
		Str("config", viper.ConfigFileUsed()).
		Msg("Loaded configuration")

	return nil
}

func InitLogger(config *logConfig) error {
	if config.WithCaller {
		log.Logger = log.With().Caller().Logger()
	}
	// default is json
	var logWriter io.Writer
	if config.LogFormat == "text" {
		logWriter = zerolog.ConsoleWriter{Out: os.Stderr}
	} else {
		logWriter = os.Stderr
	}

	if config.LogFile != "" {
		logWriter = io.MultiWriter(
			logWriter,
			zerolog.ConsoleWriter{
				NoColor: true,
				Out: &lumberjack.Logger{
					Filename:   config.LogFile,
					MaxSize:    10, // megabytes
					MaxBackups: 3,
					MaxAge:     28,    //days
					Compress:   false, // disabled by default
				},
			})
	}

	log.Logger = log.Output(logWriter)

	switch config.Level {
	case "trace":
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case "fatal":
		zerolog.SetGlobalLevel(zerolog.FatalLevel)
	}

	return nil
}

func main() {
	_ = rootCmd.Execute()
}

func init() {
	// logging flags
	rootCmd.PersistentFlags().Bool("with-caller", false, "Log caller")
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level (trace, debug, info, warn, error, fatal)")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format (json, text)")
	rootCmd.PersistentFlags().String("log-file", "", "Log file (default: stderr)")

	rootCmd.PersistentFlags().String("config", "", "Path to config file (default ~/.agentres/agentres.yaml)")
	rootCmd.PersistentFlags().Bool("verbose", false, "Verbose output")

	rootCmd.PersistentFlags().String("provider", config.ProviderOpenAI, "LLM provider (openai, ollama)")
	rootCmd.PersistentFlags().String("model", "gpt-4o", "LLM model")
	rootCmd.PersistentFlags().String("api-key", "", "LLM API key")
	rootCmd.PersistentFlags().Bool("no-swarm", false, "Only search the primary engine")
	rootCmd.PersistentFlags().String("renderer", config.RendererBrowser, "Page renderer (browser, http)")
	rootCmd.PersistentFlags().String("knowledge", config.BackendSQLite, "Knowledge backend (sqlite, weaviate, none)")

	// parse the flags one time just to catch --config
	configFile := ""
	for idx, arg := range os.Args {
		if arg == "--config" {
			if len(os.Args) > idx+1 {
				configFile = os.Args[idx+1]
			}
		}
	}

	err := initCommands(rootCmd, configFile)
	if err != nil {
		panic(err)
	}

	rootCmd.AddCommand(
		cmds.NewRunCommand(),
		cmds.NewChatCommand(),
		cmds.NewRunCodeCommand(),
		cmds.NewHistoryCommand(),
		cmds.NewConfigGroupCommand(),
	)
}
