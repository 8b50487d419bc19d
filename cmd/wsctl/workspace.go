package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type WorkspaceRow struct {
	ID              string `json:"id"`
	CourseID        string `json:"course_id"`
	QuestionID      string `json:"question_id"`
	State           string `json:"state"`
	Message         string `json:"message"`
	Version         int64  `json:"version"`
	HomedirLocation string `json:"homedir_location"`
	AssignedHostID  string `json:"assigned_host_id"`
	CreatedAt       string `json:"created_at"`
}

type WorkspaceListResponse struct {
	Workspaces []WorkspaceRow `json:"workspaces"`
}

type AcceptedResponse struct {
	Status    string `json:"status"`
	StatusURL string `json:"status_href"`
}

var (
	createLocation string
	resetLocation  string
	gradedOut      string
)

var workspaceCmd = &cobra.Command{
	Use:     "workspace",
	Aliases: []string{"ws"},
	Short:   "Workspace management commands",
}

var wsCreateCmd = &cobra.Command{
	Use:   "create <course-id> <question-id>",
	Short: "Create a new workspace",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewClient(apiURL)

		var ws WorkspaceRow
		req := map[string]string{
			"course_id":        args[0],
			"question_id":      args[1],
			"homedir_location": createLocation,
		}
		if err := client.Post("/v1/workspaces", req, &ws); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Workspace %s created.\n", ws.ID)
		printResult(ws)
	},
}

var wsGetCmd = &cobra.Command{
	Use:   "get <workspace-id>",
	Short: "Get workspace details",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewClient(apiURL)

		var ws WorkspaceRow
		if err := client.Get("/v1/workspaces/"+args[0], &ws); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		printResult(ws)
	},
}

var wsListCmd = &cobra.Command{
	Use:   "list [course-id]",
	Short: "List workspaces",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewClient(apiURL)

		path := "/v1/workspaces"
		if len(args) > 0 {
			path += "?course_id=" + args[0]
		}
		var resp WorkspaceListResponse
		if err := client.Get(path, &resp); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		printResult(resp.Workspaces)
	},
}

var wsStartupCmd = &cobra.Command{
	Use:   "startup <workspace-id>",
	Short: "Start a workspace container",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewClient(apiURL)

		var resp AcceptedResponse
		if err := client.Post("/v1/workspaces/"+args[0]+"/startup", nil, &resp); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Startup accepted.\n")
		fmt.Printf("Watch progress: wsctl workspace get %s\n", args[0])
	},
}

var wsHeartbeatCmd = &cobra.Command{
	Use:   "heartbeat <workspace-id>",
	Short: "Record a liveness heartbeat for a workspace",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewClient(apiURL)

		if err := client.Post("/v1/workspaces/"+args[0]+"/heartbeat", nil, nil); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Heartbeat recorded.")
	},
}

var wsResetCmd = &cobra.Command{
	Use:   "reset <workspace-id>",
	Short: "Reset a workspace to a fresh generation",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewClient(apiURL)

		var req interface{}
		if resetLocation != "" {
			req = map[string]string{"homedir_location": resetLocation}
		}
		var ws WorkspaceRow
		if err := client.Post("/v1/workspaces/"+args[0]+"/reset", req, &ws); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Workspace %s reset to version %d.\n", ws.ID, ws.Version)
	},
}

var wsGradedCmd = &cobra.Command{
	Use:   "graded-files <workspace-id>",
	Short: "Download a workspace's graded-file archive",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewClient(apiURL)

		dst := gradedOut
		if dst == "" {
			dst = args[0] + "-graded.zip"
		}
		n, err := client.Download("/v1/workspaces/"+args[0]+"/graded-files", dst)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if n == 0 {
			fmt.Println("Nothing to collect: workspace has no initialized contents.")
			return
		}
		fmt.Printf("Wrote %s (%d bytes).\n", dst, n)
	},
}

func init() {
	wsCreateCmd.Flags().StringVar(&createLocation, "location", "object_store", "Homedir storage backend (object_store, networked_fs)")
	wsResetCmd.Flags().StringVar(&resetLocation, "location", "", "Switch the new generation's storage backend")
	wsGradedCmd.Flags().StringVar(&gradedOut, "out", "", "Output file (default <workspace-id>-graded.zip)")

	workspaceCmd.AddCommand(wsCreateCmd, wsGetCmd, wsListCmd, wsStartupCmd, wsHeartbeatCmd, wsResetCmd, wsGradedCmd)
	rootCmd.AddCommand(workspaceCmd)
}
