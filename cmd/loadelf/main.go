// Command loadelf is a minimal user-space dynamic loader for 64-bit
// little-endian AMD64 ELF executables: it parses a program's ELF image,
// recursively resolves its shared-library dependencies, maps every
// object into this process, links them against a merged symbol table,
// and transfers control to the program's entry point.
package main

import (
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zboralski/loadelf/internal/config"
	"github.com/zboralski/loadelf/internal/logging"
)

var flags struct {
	ldLibraryPath string
	configPath    string
	sameProcess   bool
	verbose       bool
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "loadelf <path-to-executable>",
		Short: "Load and run a dynamically linked AMD64 ELF executable",
		Long: `loadelf is a minimal user-space dynamic loader. Given a path to a
dynamically linked AMD64 ELF executable, it parses the ELF image, recursively
locates its shared-library dependencies, maps each object's loadable segments
into this process's address space, zeroes uninitialized data, resolves and
applies relocations against a merged global symbol table, invokes each
object's initialization routines, and transfers control to the program's
entry point.`,
		Args:                  cobra.ExactArgs(1),
		DisableFlagsInUseLine: true,
		RunE:                  run,
	}

	rootCmd.Flags().StringVar(&flags.ldLibraryPath, "ld-library-path", "", "override $LD_LIBRARY_PATH")
	rootCmd.Flags().StringVar(&flags.configPath, "config", "", "path to a loadelf YAML config file")
	rootCmd.Flags().BoolVar(&flags.sameProcess, "same-process", false, "transfer control on the calling thread instead of a cloned child")
	rootCmd.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "raise the logger to debug level")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(-1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	runID := uuid.NewString()
	log, err := logging.Init(flags.verbose, runID)
	if err != nil {
		return err
	}
	defer log.Sync()

	cfg, err := config.Load(config.Resolve(flags.configPath))
	if err != nil {
		fatal(log, err)
	}
	if flags.sameProcess {
		cfg.SameProcess = true
	}

	ldLibraryPath := flags.ldLibraryPath
	if ldLibraryPath == "" {
		ldLibraryPath = os.Getenv("LD_LIBRARY_PATH")
	}

	path := args[0]
	log.Info("loading executable", zap.String("path", path), zap.String("run", runID))

	if err := loadAndExecute(log, path, ldLibraryPath, cfg); err != nil {
		fatal(log, err)
	}
	return nil
}

func fatal(log *zap.Logger, err error) {
	log.Error("fatal", zap.Error(err))
	os.Exit(-1)
}
