package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Krishna8167/modelcache"
	"github.com/Krishna8167/modelcache/internal/config"
)

var (
	// Global flags
	configPath string
	verbose    bool
	assetRoot  string
	baseURL    string

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "modelcache",
	Short: "Load, inspect and hot-reload cached 3D models",
	Long: `modelcache loads OBJ and glTF models through a deduplicating cache.

Concurrent requests for one URL share a single fetch and decode, and every
caller receives its own clone backed by shared geometry.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Logging.Level = "debug"
		}
		if assetRoot != "" {
			cfg.Assets.Root = assetRoot
		}
		if baseURL != "" {
			cfg.Assets.BaseURL = baseURL
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		logger, err = cfg.NewLogger()
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "modelcache.yaml", "config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringVar(&assetRoot, "root", "", "asset directory (overrides assets.root)")
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "fetch assets over HTTP from this URL")

	rootCmd.AddCommand(inspectCmd, watchCmd, simulateCmd)
}

// newCache builds the cache and the fetcher behind it from cfg.
func newCache() (*modelcache.Cache, modelcache.Fetcher) {
	var fetcher modelcache.Fetcher
	if cfg.Assets.BaseURL != "" {
		fetcher = modelcache.HTTPFetcher{
			Client:  &http.Client{Timeout: cfg.GetTimeout()},
			BaseURL: cfg.Assets.BaseURL,
		}
	} else {
		fetcher = modelcache.FileFetcher{Root: cfg.Assets.Root}
	}
	return modelcache.New(modelcache.NewSourceLoader(fetcher), cfg.CacheOptions(logger)...), fetcher
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
