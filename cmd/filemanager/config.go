package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/gobeaver/filemanager"
	_ "github.com/gobeaver/filemanager/driver/local"
	_ "github.com/gobeaver/filemanager/driver/s3"
)

func init() {
	setDefaults()
}

func setDefaults() {
	viper.SetDefault("env", "dev")
	viper.SetDefault("storage", filemanager.StorageLocal)
	viper.SetDefault("output", formatTable)
	viper.SetDefault("log.level", "")
}

var flagToViperKey = map[string]string{
	"log-level": "log.level",
}

// bindFlags binds the flags set on the command line to their viper keys.
func bindFlags(flags *pflag.FlagSet) {
	flags.VisitAll(func(f *pflag.Flag) {
		if !f.Changed {
			return
		}
		key := f.Name
		if mapped, ok := flagToViperKey[key]; ok {
			key = mapped
		}
		if err := viper.BindPFlag(key, f); err != nil {
			slog.Warn("failed to bind flag", "flag", f.Name, "err", err)
		}
	})
}

func readConfig(cmd *cobra.Command) {
	bindFlags(cmd.Flags())

	configFile, _ := cmd.Flags().GetString("config")
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("filemanager")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix("FILEMANAGER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			slog.Warn("error reading config file", "err", err)
		}
	}
}

// openManager builds the registry from the config file in use, or from the
// environment when there is none, and stores the manager of the selected
// storage in the command context.
func openManager(cmd *cobra.Command) error {
	opts := []filemanager.StorageOption{filemanager.WithLogger(slog.Default())}

	var registry *filemanager.Registry
	var err error
	if file := viper.ConfigFileUsed(); file != "" && viper.IsSet("storages") {
		registry, err = filemanager.NewRegistryFromFile(file, opts...)
	} else {
		registry, err = filemanager.NewFromEnv(opts...)
	}
	if err != nil {
		return fmt.Errorf("load storages: %w", err)
	}

	manager, err := filemanager.NewManagerFor(registry, viper.GetString("storage"),
		filemanager.WithEventSink(filemanager.SlogSink{Logger: slog.Default()}),
	)
	if err != nil {
		_ = registry.Close()
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(withManager(ctx, registry, manager))
	return nil
}

func closeRegistry(ctx context.Context) error {
	registry, ok := ctx.Value(registryKey{}).(*filemanager.Registry)
	if !ok || registry == nil {
		return nil
	}
	return registry.Close()
}
