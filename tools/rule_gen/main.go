// yarex/tools/rule_gen/main.go

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/brianvoe/gofakeit/v7"

	"rgehrsitz/yarex/pkg/rule"
)

type Ruleset struct {
	Rules []rule.Request `json:"rules"`
}

var textModifiers = []string{rule.ModNocase, rule.ModWide, rule.ModASCII, rule.ModFullword, rule.ModPrivate}

var regexBodies = []string{`[a-z]{4,8}\.exe`, `https?:\/\/[^\/]+\/gate\.php`, `\x4d\x5a.{2}\x00`, `cmd(\.exe)? \/c`}

func parseFlags(args []string) (int, string, uint64) {
	fs := flag.NewFlagSet("rule_gen", flag.ExitOnError)
	numRules := fs.Int("rules", 1000, "Number of rules to generate")
	outputFile := fs.String("output", "generated_rules.json", "Output file name")
	seed := fs.Uint64("seed", 0, "Generator seed, 0 for a random one")
	fs.Parse(args)
	return *numRules, *outputFile, *seed
}

func generateMeta(f *gofakeit.Faker) []rule.MetaRequest {
	meta := []rule.MetaRequest{
		{Identifier: "author", Value: f.Name()},
		{Identifier: "reference", Value: f.URL()},
	}
	if f.Bool() {
		meta = append(meta, rule.MetaRequest{Identifier: "score", Value: f.IntRange(0, 100), ValueType: "int"})
	}
	if f.Bool() {
		meta = append(meta, rule.MetaRequest{Identifier: "active", Value: f.Bool(), ValueType: "bool"})
	}
	return meta
}

func generateHex(f *gofakeit.Faker) string {
	n := f.IntRange(2, 8)
	bytes := make([]string, n)
	for i := range bytes {
		bytes[i] = fmt.Sprintf("%02X", f.IntRange(0, 255))
	}
	if n > 3 && f.Bool() {
		bytes[f.IntRange(1, n-2)] = "??"
	}
	return strings.Join(bytes, " ")
}

// generatePattern only pairs a type with modifiers the engine accepts for it.
func generatePattern(f *gofakeit.Faker, id string) rule.PatternRequest {
	switch f.IntRange(0, 4) {
	case 0:
		return rule.PatternRequest{Identifier: id, Value: generateHex(f), ValueType: "hex"}
	case 1:
		p := rule.PatternRequest{Identifier: id, Value: f.RandomString(regexBodies), ValueType: "regex"}
		if f.Bool() {
			p.Modifiers = []rule.Modifier{{Keyword: rule.ModNocase}}
		}
		return p
	case 2:
		return rule.PatternRequest{
			Identifier: id,
			Value:      f.Word(),
			Modifiers:  []rule.Modifier{{Keyword: rule.ModXor, Argument: fmt.Sprintf("0x01-0x%02x", f.IntRange(2, 255))}},
		}
	default:
		p := rule.PatternRequest{Identifier: id, Value: f.RandomString([]string{f.Email(), f.URL(), f.Word(), f.Sentence(3)})}
		for _, m := range textModifiers {
			if f.IntRange(0, 3) == 0 {
				p.Modifiers = append(p.Modifiers, rule.Modifier{Keyword: m})
			}
		}
		return p
	}
}

// generateCondition references every identifier in ids.
func generateCondition(f *gofakeit.Faker, ids []string) string {
	switch f.IntRange(0, 3) {
	case 0:
		return "any of them"
	case 1:
		return "all of ($s*)"
	default:
		terms := make([]string, len(ids))
		for i, id := range ids {
			if f.IntRange(0, 3) == 0 {
				terms[i] = fmt.Sprintf("#%s > %d", id, f.IntRange(1, 5))
			} else {
				terms[i] = rule.Sigil + id
			}
		}
		cond := terms[0]
		for _, term := range terms[1:] {
			cond += " " + f.RandomString([]string{"and", "or"}) + " " + term
		}
		if f.Bool() {
			cond = fmt.Sprintf("filesize < %dKB and (%s)", f.IntRange(16, 4096), cond)
		}
		return cond
	}
}

func generateRule(f *gofakeit.Faker, index int) rule.Request {
	n := f.IntRange(1, 6)
	ids := make([]string, n)
	patterns := make([]rule.PatternRequest, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("s%d", i)
		patterns[i] = generatePattern(f, ids[i])
	}

	var tags []string
	for i := f.IntRange(0, 2); i > 0; i-- {
		tags = append(tags, f.Word())
	}

	return rule.Request{
		Name:      fmt.Sprintf("rule_%d", index),
		Tags:      tags,
		Meta:      generateMeta(f),
		Strings:   patterns,
		Condition: generateCondition(f, ids),
	}
}

func generateRuleset(f *gofakeit.Faker, numRules int) Ruleset {
	ruleset := Ruleset{Rules: make([]rule.Request, numRules)}
	for i := range ruleset.Rules {
		ruleset.Rules[i] = generateRule(f, i+1)
	}
	return ruleset
}

func writeRulesetToFile(ruleset Ruleset, outputFile string) error {
	file, err := os.Create(outputFile)
	if err != nil {
		return fmt.Errorf("error creating file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(ruleset); err != nil {
		return fmt.Errorf("error encoding JSON: %w", err)
	}
	return nil
}

func main() {
	numRules, outputFile, seed := parseFlags(os.Args[1:])

	ruleset := generateRuleset(gofakeit.New(seed), numRules)
	if err := writeRulesetToFile(ruleset, outputFile); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Generated %d rule requests. Saved to %s\n", numRules, outputFile)
}
