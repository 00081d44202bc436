// Package cmd implements the foodlens command line.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/MeKo-Tech/foodlens/internal/config"
	"github.com/MeKo-Tech/foodlens/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// cli holds state shared by all commands of one invocation.
type cli struct {
	v       *viper.Viper
	cfgFile string
	loader  *config.Loader
	cfg     *config.Config
	logger  *slog.Logger
}

// Execute runs the root command.
func Execute() error {
	root := NewRootCommand()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
		return err
	}
	return nil
}

// NewRootCommand builds the command tree on a fresh viper instance.
func NewRootCommand() *cobra.Command {
	c := &cli{v: viper.New()}

	root := &cobra.Command{
		Use:   "foodlens",
		Short: "Recognise food in photos and find restaurants serving it",
		Long: `foodlens classifies a food photo into one of five categories (pizza, sushi,
ramen, burger, empanada) with an on-device ONNX image classifier, and lists
nearby restaurants for the recognised category.

Examples:
  foodlens classify lunch.jpg
  foodlens classify --retry --format json dinner.png
  foodlens restaurants sushi --lat -34.58 --lng -58.43
  foodlens serve --port 8080`,
		Version:           version.String(),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
	}
	root.SetVersionTemplate("{{.Version}}\n")

	pf := root.PersistentFlags()
	pf.StringVar(&c.cfgFile, "config", "", "config file (default is search in ., $HOME, $XDG_CONFIG_HOME/foodlens, /etc/foodlens)")
	pf.BoolP("verbose", "v", false, "verbose output (equivalent to --log-level=debug)")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("models-dir", "", "directory containing the classifier model, labels and mapping table")
	pf.String("backend", config.BackendModel, "classifier backend (model, mock)")
	pf.String("model", "", "path to the ONNX classifier (default <models-dir>/food_classifier.onnx)")
	pf.String("labels", "", "path to the class label file (default <models-dir>/food_labels.txt)")
	pf.String("mapping", "", "path to a label mapping table (YAML)")
	pf.Float64("threshold", 0.6, "confidence threshold (0..1) for a confident result")
	pf.Bool("gpu", false, "use CUDA acceleration")

	c.bind(pf.Lookup("verbose"), "verbose")
	c.bind(pf.Lookup("log-level"), "log_level")
	c.bind(pf.Lookup("models-dir"), "models_dir")
	c.bind(pf.Lookup("backend"), "classifier.backend")
	c.bind(pf.Lookup("model"), "classifier.model_path")
	c.bind(pf.Lookup("labels"), "classifier.labels_path")
	c.bind(pf.Lookup("mapping"), "classifier.mapping_path")
	c.bind(pf.Lookup("threshold"), "classifier.confidence_threshold")
	c.bind(pf.Lookup("gpu"), "gpu.use_gpu")

	root.AddCommand(
		c.newClassifyCommand(),
		c.newServeCommand(),
		c.newCategoriesCommand(),
		c.newRestaurantsCommand(),
		c.newConfigCommand(),
		newVersionCommand(),
	)
	return root
}

// setup loads configuration and installs the JSON logger.
func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	c.loader = config.NewLoaderWithViper(c.v)
	cfg, err := c.loader.LoadWithFile(c.cfgFile)
	if err != nil {
		return err
	}
	c.cfg = cfg
	c.logger = slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(c.logger)
	c.logger.Debug("configuration loaded", "file", c.loader.GetConfigFileUsed(), "backend", cfg.Classifier.Backend)
	return nil
}

// bind ties a flag to a configuration key. Flags override file and
// environment values only when set on the command line.
func (c *cli) bind(flag *pflag.Flag, key string) {
	if err := c.v.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", flag.Name, err))
	}
}

// config returns the configuration loaded by setup.
func (c *cli) config() *config.Config {
	if c.cfg == nil {
		cfg := config.DefaultConfig()
		c.cfg = &cfg
	}
	return c.cfg
}

// log returns the logger installed by setup.
func (c *cli) log() *slog.Logger {
	if c.logger == nil {
		return slog.Default()
	}
	return c.logger
}
