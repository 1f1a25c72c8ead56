// Command achcop is a watchdog that runs a child process and restarts
// it on failure, tracking both pids in lockfiles.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rswindell/ach/internal/achcop"
	"github.com/rswindell/ach/internal/achutil"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		copPIDFile   string
		childPIDFile string
		stdoutFile   string
		stderrFile   string
		detach       bool
		verbosity    int
		shutdownSecs float64
	)

	cmd := &cobra.Command{
		Use:   "achcop [flags] -- child-name [child-args...]",
		Short: "Watchdog to run and restart ach child processes",
		Args: func(cmd *cobra.Command, args []string) error {
			if v, _ := cmd.Flags().GetBool("version"); v {
				return nil
			}
			return cobra.MinimumNArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			log := achutil.NewLogger("achcop", verbosity)

			cfg := achcop.Config{
				ChildPath:            args[0],
				ChildArgs:            args[1:],
				CopPIDFile:           copPIDFile,
				ChildPIDFile:         childPIDFile,
				StdoutFile:           stdoutFile,
				StderrFile:           stderrFile,
				Detach:               detach,
				ChildShutdownTimeout: time.Duration(shutdownSecs * float64(time.Second)),
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
			go func() {
				<-sigCh
				cancel()
			}()

			return achcop.Run(ctx, log, cfg)
		},
	}

	cmd.Flags().StringVarP(&copPIDFile, "cop-pidfile", "P", "", "file for pid of the achcop process")
	cmd.Flags().StringVarP(&childPIDFile, "child-pidfile", "p", "", "file for pid of the supervised child")
	cmd.Flags().StringVarP(&stdoutFile, "stdout", "o", "", "redirect stdout to this file")
	cmd.Flags().StringVarP(&stderrFile, "stderr", "e", "", "redirect stderr to this file")
	cmd.Flags().BoolVarP(&detach, "detach", "d", false, "detach and run in the background")
	cmd.Flags().CountVarP(&verbosity, "verbose", "v", "increase logging verbosity")
	cmd.Flags().Float64Var(&shutdownSecs, "child-shutdown-timeout", achcop.DefaultChildShutdownTimeout.Seconds(),
		"seconds to wait for the child to exit after SIGTERM before sending SIGKILL")
	cmd.Flags().Bool("version", false, "print version and exit")

	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		if v, _ := cmd.Flags().GetBool("version"); v {
			fmt.Println(achutil.Version)
			os.Exit(0)
		}
		return nil
	}

	return cmd
}
