// ACP CLI - Command line client for the ACP agent directory
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/eldtechnologies/acp/clients/go/acp"
	"github.com/eldtechnologies/acp/internal/models"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	client := acp.NewClient(os.Getenv("ACP_URL"))
	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "health":
		resp, err := client.Health()
		exitOnError(err)
		printJSON(resp)

	case "keygen":
		exitOnError(client.GenerateKeypair())
		fmt.Printf("Identity: %s\n", client.Identity.PublicKeyB64())
		fmt.Printf("Saved to: %s\n", client.ConfigDir)

	case "register":
		need(args, 2, "acp register <wallet_address> <name> [description]")
		req := acp.RegisterRequest{WalletAddress: args[0], Name: args[1]}
		if len(args) > 2 {
			req.Description = strings.Join(args[2:], " ")
		}
		resp, err := client.Register(req)
		exitOnError(err)
		fmt.Printf("Registered: %s\n", resp.AgentHash)

	case "browse":
		resp, err := client.Browse(strings.Join(args, " "))
		exitOnError(err)
		for _, a := range resp.Agents {
			fmt.Printf("  %s  %s  %s\n", a.AgentHash, a.Name, a.WalletAddress)
		}
		fmt.Printf("%d agent(s)\n", resp.Total)

	case "me":
		agent, err := client.Me()
		exitOnError(err)
		printJSON(agent)

	case "job":
		need(args, 3, "acp job <agent_wallet> <offering> <escrow_hash> [key=value ...]")
		reqs := make(map[string]string)
		for _, kv := range args[3:] {
			k, v, ok := strings.Cut(kv, "=")
			if !ok {
				fmt.Fprintf(os.Stderr, "Invalid requirement %q (want key=value)\n", kv)
				os.Exit(1)
			}
			reqs[k] = v
		}
		resp, err := client.SubmitJob(models.JobCreationInput{
			AgentWalletAddress:  args[0],
			JobOfferingName:     args[1],
			EscrowHash:          args[2],
			ServiceRequirements: reqs,
		})
		exitOnError(err)
		fmt.Printf("Submitted: %s\n", resp.Address)

	case "jobs":
		resp, err := client.ListJobs()
		exitOnError(err)
		for _, j := range resp.Jobs {
			fmt.Printf("  %s  %s  %s\n", j.JobID, j.JobOfferingName, j.CurrentPhase)
		}

	case "get":
		need(args, 1, "acp get <agent_or_job_address>")
		if agent, err := client.GetAgent(args[0]); err == nil && agent != nil {
			printJSON(agent)
			return
		}
		job, err := client.GetJob(args[0])
		exitOnError(err)
		if job == nil {
			fmt.Fprintln(os.Stderr, "Not found")
			os.Exit(1)
		}
		printJSON(job)

	case "advance":
		need(args, 2, "acp advance <job_address> <phase> [deliverable]")
		t := models.Transition{Phase: args[1]}
		if len(args) > 2 {
			d := args[2]
			t.Deliverable = &d
		}
		resp, err := client.Advance(args[0], t)
		exitOnError(err)
		fmt.Printf("Recorded: %s\n", resp.EventAddress)

	case "history":
		need(args, 1, "acp history <job_address>")
		history, err := client.History(args[0])
		exitOnError(err)
		if history == nil {
			fmt.Fprintln(os.Stderr, "Not found")
			os.Exit(1)
		}
		for _, e := range history.Events {
			fmt.Printf("  %d  %s\n", e.RecordedAt, e.Phase)
		}
		fmt.Printf("Current phase: %s\n", history.CurrentPhase)

	case "balance":
		need(args, 1, "acp balance <wallet_address>")
		balance, err := client.Balance(args[0])
		exitOnError(err)
		if !balance.Available {
			fmt.Println("Settlement layer unavailable")
			return
		}
		fmt.Printf("%s ETH (%s wei)\n", balance.BalanceEth, balance.BalanceWei)

	case "help", "--help", "-h":
		usage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`ACP CLI - Agent directory and job ledger

Usage: acp <command> [options]

Commands:
  keygen                                   Generate and save a new identity
  register <wallet> <name> [description]   Publish an agent profile
  browse [query]                           Search the agent directory
  me                                       Show your current profile
  job <wallet> <offering> <escrow> [k=v]   Submit a job to an agent
  jobs                                     List your jobs
  get <address>                            Show an agent profile or job
  advance <job> <phase> [deliverable]      Record a phase transition
  history <job>                            Show a job's phase history
  balance <wallet>                         Show a wallet's settlement balance
  health                                   Check server health

Environment:
  ACP_URL      Server URL (default: http://localhost:8080)
  ACP_CONFIG   Config directory (default: ~/.acp)`)
}

func need(args []string, n int, usage string) {
	if len(args) < n {
		fmt.Fprintln(os.Stderr, "Usage:", usage)
		os.Exit(1)
	}
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func printJSON(v interface{}) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}
