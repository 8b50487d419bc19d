package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
)

func printResult(v interface{}) {
	if output == "json" {
		json.NewEncoder(os.Stdout).Encode(v)
		return
	}
	printTable(v)
}

func printTable(v interface{}) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	switch data := v.(type) {
	case []WorkspaceRow:
		if len(data) == 0 {
			fmt.Println("No workspaces found.")
			return
		}
		fmt.Fprintln(w, "ID\tSTATE\tCOURSE\tQUESTION\tVERSION\tLOCATION\tHOST")
		for _, ws := range data {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
				ws.ID, ws.State, ws.CourseID, ws.QuestionID, ws.Version, ws.HomedirLocation, ws.AssignedHostID)
		}
	case WorkspaceRow:
		fmt.Fprintf(w, "ID:\t%s\n", data.ID)
		fmt.Fprintf(w, "Course:\t%s\n", data.CourseID)
		fmt.Fprintf(w, "Question:\t%s\n", data.QuestionID)
		fmt.Fprintf(w, "State:\t%s\n", data.State)
		fmt.Fprintf(w, "Message:\t%s\n", truncate(data.Message, 72))
		fmt.Fprintf(w, "Version:\t%d\n", data.Version)
		fmt.Fprintf(w, "Location:\t%s\n", data.HomedirLocation)
		if data.AssignedHostID != "" {
			fmt.Fprintf(w, "Host:\t%s\n", data.AssignedHostID)
		}
		fmt.Fprintf(w, "Created:\t%s\n", data.CreatedAt)
	case []HostRow:
		if len(data) == 0 {
			fmt.Println("No hosts found.")
			return
		}
		fmt.Fprintln(w, "ID\tHOSTNAME\tSTATE\tLOAD")
		for _, h := range data {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", h.ID, h.Hostname, h.State, h.LoadCount)
		}
	default:
		json.NewEncoder(os.Stdout).Encode(v)
	}
	w.Flush()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
