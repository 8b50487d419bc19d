package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type HostRow struct {
	ID        string `json:"id"`
	Hostname  string `json:"hostname"`
	State     string `json:"state"`
	LoadCount int    `json:"load_count"`
}

type HostListResponse struct {
	Hosts []HostRow `json:"hosts"`
}

var hostState string

var hostCmd = &cobra.Command{
	Use:   "host",
	Short: "Host fleet commands",
}

var hostListCmd = &cobra.Command{
	Use:   "list",
	Short: "List hosts and their load",
	Run: func(cmd *cobra.Command, args []string) {
		client := NewClient(apiURL)

		var resp HostListResponse
		if err := client.Get("/v1/hosts", &resp); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		printResult(resp.Hosts)
	},
}

var hostRegisterCmd = &cobra.Command{
	Use:   "register <host-id> <hostname>",
	Short: "Register a host or update its state",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewClient(apiURL)

		req := map[string]string{"hostname": args[1], "state": hostState}
		if err := client.Put("/v1/hosts/"+args[0], req, nil); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Host %s registered.\n", args[0])
	},
}

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Graded-file catalog commands",
}

var catalogSetCmd = &cobra.Command{
	Use:   "set <course-id> <question-id> <file>...",
	Short: "Set the graded files for a question",
	Args:  cobra.MinimumNArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewClient(apiURL)

		req := map[string]interface{}{"files": args[2:]}
		path := "/v1/courses/" + args[0] + "/questions/" + args[1] + "/graded-files"
		if err := client.Put(path, req, nil); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Catalog updated for %s/%s (%d files).\n", args[0], args[1], len(args)-2)
	},
}

func init() {
	hostRegisterCmd.Flags().StringVar(&hostState, "state", "ready", "Host state (ready, draining, unhealthy)")

	hostCmd.AddCommand(hostListCmd, hostRegisterCmd)
	catalogCmd.AddCommand(catalogSetCmd)
	rootCmd.AddCommand(hostCmd, catalogCmd)
}
