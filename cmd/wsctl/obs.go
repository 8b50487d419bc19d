package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var obsCmd = &cobra.Command{
	Use:   "obs",
	Short: "Observability commands (query VictoriaMetrics)",
}

var vmsingleURL string

type VMResponse struct {
	Status string `json:"status"`
	Data   struct {
		Result []struct {
			Metric map[string]string `json:"metric"`
			Value  []interface{}     `json:"value"`
		} `json:"result"`
	} `json:"data"`
}

var obsSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show system summary metrics",
	Run: func(cmd *cobra.Command, args []string) {
		queries := map[string]string{
			"Startup Success Rate": `sum(rate(workspaced_startup_duration_seconds_count{outcome="success"}[5m])) / sum(rate(workspaced_startup_duration_seconds_count[5m])) * 100`,
			"HTTP Request Rate":    `sum(rate(workspaced_http_requests_total[5m]))`,
			"Active Requests":      `workspaced_active_requests`,
			"Graded Fallback Rate": `rate(workspaced_graded_fallback_total[5m])`,
		}

		for name, query := range queries {
			val := queryVM(vmsingleURL, query)
			fmt.Printf("%s: %s\n", name, val)
		}
	},
}

var obsLatencyCmd = &cobra.Command{
	Use:   "latency",
	Short: "Show latency metrics",
	Run: func(cmd *cobra.Command, args []string) {
		queries := map[string]string{
			"HTTP P50": `histogram_quantile(0.5, sum(rate(workspaced_http_request_duration_seconds_bucket[5m])) by (le))`,
			"HTTP P95": `histogram_quantile(0.95, sum(rate(workspaced_http_request_duration_seconds_bucket[5m])) by (le))`,
			"HTTP P99": `histogram_quantile(0.99, sum(rate(workspaced_http_request_duration_seconds_bucket[5m])) by (le))`,
		}

		for name, query := range queries {
			val := queryVM(vmsingleURL, query)
			fmt.Printf("%s: %s\n", name, val)
		}
	},
}

var obsLaunchCmd = &cobra.Command{
	Use:   "launch",
	Short: "Show launch pipeline metrics",
	Run: func(cmd *cobra.Command, args []string) {
		queries := map[string]string{
			"Startup P95":         `histogram_quantile(0.95, sum(rate(workspaced_startup_duration_seconds_bucket[5m])) by (le))`,
			"Assign Attempts P95": `histogram_quantile(0.95, sum(rate(workspaced_host_assign_attempts_bucket[5m])) by (le))`,
			"No Capacity Rate":    `rate(workspaced_host_assign_total{outcome="none"}[5m])`,
			"Lock Wait P95":       `histogram_quantile(0.95, sum(rate(workspaced_lock_wait_seconds_bucket[5m])) by (le))`,
		}

		for name, query := range queries {
			val := queryVM(vmsingleURL, query)
			fmt.Printf("%s: %s\n", name, val)
		}
	},
}

func queryVM(baseURL, query string) string {
	url := baseURL + "/api/v1/query?query=" + query
	resp, err := http.Get(url)
	if err != nil {
		return "error: " + err.Error()
	}
	defer resp.Body.Close()

	var vmResp VMResponse
	if err := json.NewDecoder(resp.Body).Decode(&vmResp); err != nil {
		return "parse error"
	}

	if len(vmResp.Data.Result) == 0 {
		return "no data"
	}

	result := vmResp.Data.Result[0]
	if len(result.Value) >= 2 {
		return fmt.Sprintf("%v", result.Value[1])
	}
	return "no value"
}

func init() {
	obsCmd.PersistentFlags().StringVar(&vmsingleURL, "vm-url", "http://localhost:8428", "VictoriaMetrics URL")
	obsCmd.AddCommand(obsSummaryCmd, obsLatencyCmd, obsLaunchCmd)
	rootCmd.AddCommand(obsCmd)
}
