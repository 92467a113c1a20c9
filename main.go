package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gitzhang10/alephdag/chdag"
	"github.com/gitzhang10/alephdag/config"
	"github.com/gitzhang10/alephdag/node"
	"github.com/gitzhang10/alephdag/simulation"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	root := &cobra.Command{
		Use:          "alephdag",
		Short:        "Runs a participant of the Aleph-style DAG consensus",
		SilenceUsage: true,
	}
	root.AddCommand(runCommand(), simulateCommand())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCommand() *cobra.Command {
	v := viper.New()
	c := &cobra.Command{
		Use:   "run",
		Short: "Runs a networked participant from its configuration file",
		RunE: func(c *cobra.Command, _ []string) error {
			return runFunc(c, v)
		},
	}
	flags := c.Flags()
	flags.String("config", "config", "name of the configuration file in the working directory, without extension")
	flags.Int("rounds", 0, "number of units to create, overrides the configuration file")
	flags.Int("log_level", 0, "hclog level, overrides the configuration file")
	flags.String("metrics_addr", "", "address of the prometheus endpoint, overrides the configuration file")
	_ = v.BindPFlag("rounds", flags.Lookup("rounds"))
	_ = v.BindPFlag("log_level", flags.Lookup("log_level"))
	_ = v.BindPFlag("metrics_addr", flags.Lookup("metrics_addr"))
	return c
}

func runFunc(c *cobra.Command, v *viper.Viper) error {
	configName, err := c.Flags().GetString("config")
	if err != nil {
		return err
	}
	conf, err := config.LoadConfig(v, "alephdag", configName)
	if err != nil {
		return err
	}

	n, err := node.NewNode(conf)
	if err != nil {
		return err
	}
	defer n.Close()
	if err := n.StartP2PListen(); err != nil {
		return err
	}
	// wait for each node to start
	time.Sleep(time.Second * 15)
	if err := n.EstablishP2PConns(); err != nil {
		return err
	}
	fmt.Println("node starts the AlephDAG!")
	return n.Run(c.Context())
}

func simulateCommand() *cobra.Command {
	conf := &simulation.Config{}
	var rejectByzantine bool
	var logLevel string
	c := &cobra.Command{
		Use:   "simulate",
		Short: "Runs a whole deployment in one process",
		RunE: func(c *cobra.Command, _ []string) error {
			if rejectByzantine {
				conf.Policy = chdag.RejectInvalid
			}
			conf.Logger = hclog.New(&hclog.LoggerOptions{
				Name:   "simulation",
				Output: hclog.DefaultOutput,
				Level:  hclog.LevelFromString(logLevel),
			})
			res, err := simulation.Run(c.Context(), conf)
			if err != nil {
				return err
			}
			for _, name := range res.Names {
				fmt.Printf("%s ordered %d units\n", name, len(res.Orders[name]))
			}
			return nil
		},
	}
	flags := c.Flags()
	flags.IntVar(&conf.Participants, "participants", 4, "number of participants")
	flags.IntVar(&conf.Faulty, "faulty", 0, "number of participants serving tampered units")
	flags.IntVar(&conf.Rounds, "rounds", 10, "number of units each participant creates")
	flags.IntVar(&conf.BatchSize, "batch_size", 250, "payload bytes per unit")
	flags.DurationVar(&conf.Latency, "latency", 0, "simulated latency of every peer request")
	flags.DurationVar(&conf.SyncInterval, "sync_interval", chdag.DefaultPollInterval, "background sync period")
	flags.Uint64Var(&conf.SyncLag, "sync_lag", chdag.DefaultSyncLag, "rounds a unit must age before it is validated")
	flags.BoolVar(&rejectByzantine, "reject_byzantine", false, "drop units that fail validation instead of merging them")
	flags.StringVar(&logLevel, "log_level", "info", "trace, debug, info, warn or error")
	return c
}
