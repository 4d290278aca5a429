package restful

import (
	"context"
	"io"
	"log"
	"os"
	"strings"

	"github.com/edgeflare/restful/pkg/httputil"
	"github.com/edgeflare/restful/pkg/rest"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "Print the route table of the configured resources",
	Run: func(cmd *cobra.Command, args []string) {
		if cfg == nil {
			log.Fatal("Configuration not loaded")
		}
		logger, err := newLogger(logLevel)
		if err != nil {
			log.Fatalf("Invalid log level: %v", err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		pool, cache, err := connect(ctx, cfg.REST, logger)
		if err != nil {
			log.Fatalf("Failed to connect: %v", err)
		}
		defer pool.Close()
		defer cache.Close()

		router := httputil.NewRouter()
		if cfg.REST.Prefix != "" {
			router = router.Group(cfg.REST.Prefix)
		}
		server, err := newServer(ctx, cfg, pool, cache, router, nil, logger)
		if err != nil {
			log.Fatalf("Failed to register resources: %v", err)
		}
		if err := printRoutes(os.Stdout, server.Routes()); err != nil {
			log.Fatal(err)
		}
	},
}

func printRoutes(w io.Writer, routes []rest.Route) error {
	rows := make([][]string, len(routes))
	for i, rt := range routes {
		rows[i] = []string{rt.Name, strings.Join(rt.Methods(), ","), rt.Path}
	}

	table := tablewriter.NewWriter(w)
	table.Header("Name", "Methods", "Path")
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}
