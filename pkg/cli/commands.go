package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/marionette/marionette/pkg/discovery"
	"github.com/marionette/marionette/pkg/health"
	"github.com/marionette/marionette/pkg/metrics"
	"github.com/marionette/marionette/pkg/notifier"
	"github.com/marionette/marionette/pkg/process"
	"github.com/marionette/marionette/pkg/session"
	"github.com/marionette/marionette/pkg/types"
)

func newUpCmd() *cobra.Command {
	var notify bool
	var listenAddr string

	cmd := &cobra.Command{
		Use:   "up <manifest>...",
		Short: "Start the units declared in the given manifests",
		Long: `Read the manifests, resolve the dependency graph, and start every
unit in order. The process then waits for an interrupt and stops the
units in reverse start order.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUp(args, notify, listenAddr)
		},
	}

	cmd.Flags().BoolVar(&notify, "notify", false, "send desktop notifications for lifecycle outcomes")
	cmd.Flags().StringVar(&listenAddr, "listen", "", "serve /metrics, /live, and /ready on this address")
	return cmd
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <manifest>...",
		Short: "Validate manifest files",
		Long:  `Parse the manifests and check their structural invariants without starting anything.`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(args)
		},
	}
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <manifest>...",
		Short: "List the units declared in the given manifests",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(args)
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("🎭 Marionette v%s\n", version)
		},
	}
}

// Command implementations

func runUp(manifests []string, notify bool, listenAddr string) error {
	log := newLogger()
	ctx := context.Background()

	manager := process.NewManager(log)

	opts := session.Options{
		Logger:  log,
		Caller:  "cli",
		Process: manager,
	}
	if notify {
		n, err := notifier.NewNotifier(log, notifier.DefaultConfig())
		if err != nil {
			return err
		}
		defer n.Close()
		opts.Notifier = n
	}

	ses := session.NewSession(opts)
	ses.Registry().GlobalHandlers().Add(metrics.NewHandler(prometheus.DefaultRegisterer))
	if notify {
		ses.Registry().GlobalHandlers().Add(notifier.NewFailureHandler(opts.Notifier.(*notifier.Notifier)))
	}

	if listenAddr != "" {
		go serveEndpoints(listenAddr, ses)
	}

	discoverer := discovery.NewFileDiscoverer(log, manifests...)
	started, err := ses.Run(ctx, discoverer)
	if err != nil {
		printError(fmt.Sprintf("Startup failed: %v", err))
		if len(started) > 0 {
			printInfo(fmt.Sprintf("Stopping %d already-started unit(s)", len(started)))
			if stopErr := ses.Interrupt(); stopErr != nil {
				printError(fmt.Sprintf("Rollback incomplete: %v", stopErr))
			}
		}
		return err
	}

	printSuccess(fmt.Sprintf("%d unit(s) running. Press Ctrl+C to stop.", len(started)))
	manager.Wait()
	printSuccess("All units stopped")
	return nil
}

func runValidate(manifests []string) error {
	for _, path := range manifests {
		m, err := discovery.LoadManifest(path)
		if err != nil {
			printError(fmt.Sprintf("%s: %v", path, err))
			return err
		}
		printSuccess(fmt.Sprintf("%s: %d unit(s) OK", path, len(m.Units)))
	}
	return nil
}

func runList(manifests []string) error {
	log := newLogger()
	discoverer := discovery.NewFileDiscoverer(log, manifests...)
	candidates, err := discoverer.Discover(context.Background())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tREFERENCE\tPRIORITY\tLOADER\tDEPENDS ON\tCATEGORIES")
	for _, c := range candidates {
		loaderName := c.Loader
		if loaderName == "" {
			loaderName = types.DefaultLoader
		}
		deps := make([]string, 0, len(c.DependsOn))
		for _, d := range c.DependsOn {
			deps = append(deps, d.String())
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
			c.DisplayName(),
			c.Ref.String(),
			c.Priority,
			loaderName,
			strings.Join(deps, ","),
			strings.Join(c.Categories, ","),
		)
	}
	return w.Flush()
}

func serveEndpoints(addr string, ses *session.Session) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", health.NewAdapter(ses.Registry()).Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		printError(fmt.Sprintf("Endpoint server failed: %v", err))
	}
}
