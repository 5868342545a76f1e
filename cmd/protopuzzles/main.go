// Command protopuzzles runs one of the protohackers puzzle solvers.
package main

import (
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"protopuzzles/internal/chat"
	"protopuzzles/internal/config"
	"protopuzzles/internal/echo"
	"protopuzzles/internal/jobcentre"
	"protopuzzles/internal/kv"
	"protopuzzles/internal/lineapp"
	"protopuzzles/internal/logging"
	"protopuzzles/internal/lrcp"
	"protopuzzles/internal/mean"
	"protopuzzles/internal/mitm"
	"protopuzzles/internal/prime"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "protopuzzles",
		Short: "protohackers puzzle solvers, including the LRCP transport",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to protopuzzles.yaml")

	root.AddCommand(
		lrcpCommand(),
		echoCommand(),
		primeCommand(),
		meanCommand(),
		chatCommand(),
		kvCommand(),
		mitmCommand(),
		jobCentreCommand(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig binds flags, loads protopuzzles.yaml, and starts the
// /metrics endpoint and config file watch shared by every subcommand.
func loadConfig(flags *pflag.FlagSet) (*config.Loader, *config.Config, *lrcp.Metrics) {
	loader, cfg, err := config.NewLoader(flags, configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	loader.WatchAndReload(func(err error) {
		fmt.Fprintf(os.Stderr, "config: reload failed, keeping previous values: %s\n", err)
	})

	reg := prometheus.NewRegistry()
	metrics := lrcp.NewMetrics(reg)
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		addr := fmt.Sprintf(":%d", cfg.Ports.Metrics)
		if err := http.ListenAndServe(addr, mux); err != nil {
			fmt.Fprintf(os.Stderr, "metrics: %s\n", err)
		}
	}()

	return loader, cfg, metrics
}

func lrcpCommand() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "lrcp",
		Short: "Run the LRCP line-reversal server",
		RunE: func(cmd *cobra.Command, args []string) error {
			loader, cfg, metrics := loadConfig(cmd.Flags())
			if !cmd.Flags().Changed("port") {
				port = cfg.Ports.LRCP
			}
			log := logging.New(os.Stderr, cfg.LogLevel)

			laddr := &net.UDPAddr{IP: net.IPv4zero, Port: port}
			router, err := lrcp.Listen(laddr, loader.Timers(), metrics, log)
			if err != nil {
				return err
			}
			defer router.Close()

			logging.Banner("lrcp", router.LocalAddr().String(),
				fmt.Sprintf("retransmit=%s idle=%s", loader.Timers().Retransmit(), loader.Timers().Idle()))

			for {
				stream, err := router.Accept()
				if err != nil {
					return err
				}
				go lineapp.Serve(stream, log)
			}
		},
	}
	cmd.Flags().IntVar(&port, "port", 4321, "UDP port to listen on")
	return cmd
}

func echoCommand() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "echo",
		Short: "Run the TCP echo server",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg, _ := loadConfig(cmd.Flags())
			if !cmd.Flags().Changed("port") {
				port = cfg.Ports.Echo
			}
			log := logging.New(os.Stderr, cfg.LogLevel)
			l, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
			if err != nil {
				return err
			}
			logging.Banner("echo", l.Addr().String())
			return echo.Serve(l, log)
		},
	}
	cmd.Flags().IntVar(&port, "port", 3330, "TCP port to listen on")
	return cmd
}

func primeCommand() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "prime",
		Short: "Run the isPrime JSON-line server",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg, _ := loadConfig(cmd.Flags())
			if !cmd.Flags().Changed("port") {
				port = cfg.Ports.Prime
			}
			log := logging.New(os.Stderr, cfg.LogLevel)
			sieve, err := prime.NewSieve(prime.DefaultSieveBound)
			if err != nil {
				return err
			}
			l, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
			if err != nil {
				return err
			}
			logging.Banner("prime", l.Addr().String())
			return prime.Serve(l, sieve, log)
		},
	}
	cmd.Flags().IntVar(&port, "port", 3331, "TCP port to listen on")
	return cmd
}

func meanCommand() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "mean",
		Short: "Run the running-mean store",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg, _ := loadConfig(cmd.Flags())
			if !cmd.Flags().Changed("port") {
				port = cfg.Ports.Mean
			}
			log := logging.New(os.Stderr, cfg.LogLevel)
			l, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
			if err != nil {
				return err
			}
			logging.Banner("mean", l.Addr().String())
			return mean.Serve(l, log)
		},
	}
	cmd.Flags().IntVar(&port, "port", 3332, "TCP port to listen on")
	return cmd
}

func chatCommand() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Run the budget chat relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg, _ := loadConfig(cmd.Flags())
			if !cmd.Flags().Changed("port") {
				port = cfg.Ports.Chat
			}
			log := logging.New(os.Stderr, cfg.LogLevel)
			l, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
			if err != nil {
				return err
			}
			logging.Banner("chat", l.Addr().String())
			return chat.Serve(l, log)
		},
	}
	cmd.Flags().IntVar(&port, "port", 3333, "TCP port to listen on")
	return cmd
}

func kvCommand() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "kv",
		Short: "Run the UDP key/value store",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg, _ := loadConfig(cmd.Flags())
			if !cmd.Flags().Changed("port") {
				port = cfg.Ports.KV
			}
			log := logging.New(os.Stderr, cfg.LogLevel)
			conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: port})
			if err != nil {
				return err
			}
			logging.Banner("kv", conn.LocalAddr().String())
			return kv.Serve(conn, log)
		},
	}
	cmd.Flags().IntVar(&port, "port", 3334, "UDP port to listen on")
	return cmd
}

func mitmCommand() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "mitm",
		Short: "Run the chat man-in-the-middle proxy",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg, _ := loadConfig(cmd.Flags())
			if !cmd.Flags().Changed("port") {
				port = cfg.Ports.MITM
			}
			log := logging.New(os.Stderr, cfg.LogLevel)
			l, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
			if err != nil {
				return err
			}
			logging.Banner("mitm", l.Addr().String(), "upstream="+cfg.MITMUpstream)
			return mitm.Serve(l, cfg.MITMUpstream, log)
		},
	}
	cmd.Flags().IntVar(&port, "port", 3335, "TCP port to listen on")
	return cmd
}

func jobCentreCommand() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "jobcentre",
		Short: "Run the job queue server",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg, _ := loadConfig(cmd.Flags())
			if !cmd.Flags().Changed("port") {
				port = cfg.Ports.JobCentre
			}
			log := logging.New(os.Stderr, cfg.LogLevel)
			l, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
			if err != nil {
				return err
			}
			logging.Banner("jobcentre", l.Addr().String())
			return jobcentre.Serve(l, log)
		},
	}
	cmd.Flags().IntVar(&port, "port", 3339, "TCP port to listen on")
	return cmd
}
