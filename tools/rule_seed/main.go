// yarex/tools/rule_seed/main.go

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"rgehrsitz/yarex/pkg/logging"
	"rgehrsitz/yarex/pkg/rule"
	"rgehrsitz/yarex/pkg/store"
)

type ruleset struct {
	Rules []rule.Request `json:"rules"`
}

func main() {
	addr := flag.String("redis", "localhost:6379", "Redis address")
	input := flag.String("input", "generated_rules.json", "Ruleset written by rule_gen")
	interactive := flag.Bool("interactive", false, "Start a prompt after seeding")
	flag.Parse()

	ctx := context.Background()
	s, err := store.NewRedisStore(*addr, "", 0)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer s.Close()

	reqs, err := loadRuleset(*input)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	stored, err := seedRules(ctx, s, reqs)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Stored %d of %d rules\n", stored, len(reqs))

	if *interactive {
		startCLI(ctx, s, os.Stdin, os.Stdout)
	}
}

func loadRuleset(path string) ([]rule.Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading ruleset: %w", err)
	}
	var rs ruleset
	if err := json.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("error decoding ruleset: %w", err)
	}
	return rs.Rules, nil
}

// seedRules stores every request that builds into a rule. Invalid requests
// are logged and skipped; a store failure stops the run.
func seedRules(ctx context.Context, s store.Store, reqs []rule.Request) (int, error) {
	stored := 0
	for i := range reqs {
		r, err := rule.FromRequest(&reqs[i])
		if err != nil {
			logging.LogError(logging.Logger, err)
			continue
		}
		if err := s.SaveRule(ctx, store.NewRecord(r)); err != nil {
			return stored, err
		}
		stored++
	}
	return stored, nil
}

func startCLI(ctx context.Context, s store.Store, in io.Reader, out io.Writer) {
	reader := bufio.NewReader(in)

	for {
		fmt.Fprint(out, "Enter command (list, show <name>, delete <name> or exit): ")
		input, err := reader.ReadString('\n')
		input = strings.TrimSpace(input)

		if input == "exit" || (err != nil && input == "") {
			break
		}

		if err := processCommand(ctx, s, input, out); err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
		}
	}
}

func processCommand(ctx context.Context, s store.Store, input string, out io.Writer) error {
	parts := strings.Fields(input)
	switch {
	case len(parts) == 1 && parts[0] == "list":
		names, err := s.ListRules(ctx)
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Fprintln(out, name)
		}
		return nil
	case len(parts) == 2 && parts[0] == "show":
		rec, err := s.GetRule(ctx, parts[1])
		if err != nil {
			return err
		}
		fmt.Fprint(out, rec.Source)
		return nil
	case len(parts) == 2 && parts[0] == "delete":
		if err := s.DeleteRule(ctx, parts[1]); err != nil {
			return err
		}
		fmt.Fprintf(out, "Deleted %s\n", parts[1])
		return nil
	default:
		return fmt.Errorf("invalid command. Use 'list', 'show <name>' or 'delete <name>'")
	}
}
