package cmd

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/kallang/kal/internal/compiler"
)

var dumpIR bool

var rootCmd = &cobra.Command{
	Use:   "kal [file]",
	Short: "Kal — a JIT-compiled expression language",
	Long: `Kal reads source from a file (or standard input when no file is
given), compiles each top-level item to native code and executes
top-level expressions immediately. Diagnostics and evaluation
results go to the error stream.`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		var src io.Reader = os.Stdin
		interactive := true
		if len(args) == 1 {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			src = f
			interactive = false
		}

		sess, err := compiler.NewSession(src, os.Stderr, compiler.Options{
			DumpIR:      dumpIR,
			Interactive: interactive,
		})
		if err != nil {
			return err
		}
		defer sess.Close()
		return sess.Run()
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.Flags().BoolVar(&dumpIR, "dump-ir", false, "echo the IR of each compiled item to stderr")
}
