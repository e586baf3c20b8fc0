// yarex/cmd/yarex/main.go

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"rgehrsitz/yarex/pkg/compiler"
	"rgehrsitz/yarex/pkg/engine"
	"rgehrsitz/yarex/pkg/lexer"
	"rgehrsitz/yarex/pkg/logging"
	"rgehrsitz/yarex/pkg/metrics"
	"rgehrsitz/yarex/pkg/parser"
	"rgehrsitz/yarex/pkg/rule"
	"rgehrsitz/yarex/pkg/store"
	"rgehrsitz/yarex/pkg/validator"
)

const usage = `usage: yarex [--config file] <command> [arguments]

commands:
  render <request>             print the rule built from a JSON or YAML request
  lint <request>               report problems the engine would reject
  compile [flags] <request>    compile a rule, locating any condition error
  scan <file>                  show the lexical spans of a rule file
  parse <file>                 print the request a rule file was built from
  load <name>                  rebuild a saved rule from its compiled artifact
  list                         list the rules in the record store`

// Config represents the application configuration
type Config struct {
	RulesDir       string
	SourceExt      string
	CompiledExt    string
	YaracPath      string
	YaraPath       string
	EngineTimeout  time.Duration
	ErrorOnWarning bool
	LogLevel       string
	LogDestination string
	RedisEnabled   bool
	RedisAddress   string
	RedisPassword  string
	RedisDB        int
	MetricsFile    string
}

// YarexDependencies represents the external dependencies of the application
type YarexDependencies struct {
	Compiler *compiler.Compiler
	Metrics  *metrics.Metrics
	// Store is nil unless redis.enabled is set.
	Store store.Store
}

// StoreFactory is an interface for creating a store
type StoreFactory interface {
	NewStore(addr, password string, db int) (store.Store, error)
}

// EngineFactory is an interface for creating an engine
type EngineFactory interface {
	NewEngine(yaracPath, yaraPath string) engine.Engine
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args, os.Stdout, &RealStoreFactory{}, &RealEngineFactory{}); err != nil {
		logging.LogError(logging.Logger, err)
		log.Fatal().Err(err).Msg("Command failed")
	}
}

func run(ctx context.Context, args []string, stdout io.Writer, storeFactory StoreFactory, engineFactory EngineFactory) error {
	config, rest, err := parseConfig(args)
	if err != nil {
		return fmt.Errorf("failed to parse configuration: %w", err)
	}
	if len(rest) == 0 {
		return errors.New(usage)
	}

	if err := logging.ConfigureLogger(config.LogLevel, config.LogDestination); err != nil {
		return fmt.Errorf("failed to configure logger: %w", err)
	}

	deps, err := setupDependencies(config, storeFactory, engineFactory)
	if err != nil {
		return fmt.Errorf("failed to setup dependencies: %w", err)
	}
	if deps.Store != nil {
		defer deps.Store.Close()
	}

	cmdErr := dispatch(ctx, deps, config, rest, stdout)

	if config.MetricsFile != "" {
		if err := deps.Metrics.WriteFile(config.MetricsFile); err != nil {
			log.Warn().Err(err).Str("path", config.MetricsFile).Msg("Failed to write metrics")
		}
	}
	return cmdErr
}

func parseConfig(args []string) (*Config, []string, error) {
	fs := flag.NewFlagSet("yarex", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configFile := fs.String("config", "", "Path to configuration file")
	if err := fs.Parse(args[1:]); err != nil {
		return nil, nil, err
	}

	v := viper.New()
	v.SetConfigType("json")
	v.SetDefault("rules.dir", "rules")
	v.SetDefault("rules.source_ext", compiler.DefaultSourceExt)
	v.SetDefault("rules.compiled_ext", compiler.DefaultCompiledExt)
	v.SetDefault("engine.yarac_path", "yarac")
	v.SetDefault("engine.yara_path", "yara")
	v.SetDefault("engine.timeout", compiler.DefaultTimeout.String())
	v.SetDefault("engine.error_on_warning", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.output", "console")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.database", 0)
	v.SetEnvPrefix("yarex")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if *configFile == "" {
		v.SetConfigName("yarex_config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.yarex")
		v.AddConfigPath("/etc/yarex")
	} else {
		v.SetConfigFile(*configFile)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || *configFile != "" {
			return nil, nil, logging.NewError(logging.ErrorTypeConfig, "error reading config file", err,
				map[string]interface{}{"path": *configFile})
		}
		log.Debug().Msg("No configuration file found, using defaults")
	}

	return &Config{
		RulesDir:       v.GetString("rules.dir"),
		SourceExt:      v.GetString("rules.source_ext"),
		CompiledExt:    v.GetString("rules.compiled_ext"),
		YaracPath:      v.GetString("engine.yarac_path"),
		YaraPath:       v.GetString("engine.yara_path"),
		EngineTimeout:  v.GetDuration("engine.timeout"),
		ErrorOnWarning: v.GetBool("engine.error_on_warning"),
		LogLevel:       v.GetString("logging.level"),
		LogDestination: v.GetString("logging.output"),
		RedisEnabled:   v.GetBool("redis.enabled"),
		RedisAddress:   v.GetString("redis.address"),
		RedisPassword:  v.GetString("redis.password"),
		RedisDB:        v.GetInt("redis.database"),
		MetricsFile:    v.GetString("metrics.file"),
	}, fs.Args(), nil
}

func setupDependencies(config *Config, storeFactory StoreFactory, engineFactory EngineFactory) (*YarexDependencies, error) {
	m := metrics.New()
	deps := &YarexDependencies{
		Metrics: m,
		Compiler: compiler.New(engineFactory.NewEngine(config.YaracPath, config.YaraPath), compiler.Options{
			RulesDir:    config.RulesDir,
			SourceExt:   config.SourceExt,
			CompiledExt: config.CompiledExt,
			Timeout:     config.EngineTimeout,
			Recorder:    m,
		}),
	}

	if config.RedisEnabled {
		s, err := storeFactory.NewStore(config.RedisAddress, config.RedisPassword, config.RedisDB)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize store: %w", err)
		}
		deps.Store = s
	}
	return deps, nil
}

func dispatch(ctx context.Context, deps *YarexDependencies, config *Config, args []string, stdout io.Writer) error {
	cmd, rest := args[0], args[1:]
	log.Debug().Str("command", cmd).Strs("args", rest).Msg("Running command")

	switch cmd {
	case "render":
		return renderCmd(rest, stdout)
	case "lint":
		return lintCmd(deps, rest, stdout)
	case "compile":
		return compileCmd(ctx, deps, config, rest, stdout)
	case "scan":
		return scanCmd(deps, rest, stdout)
	case "parse":
		return parseCmd(rest, stdout)
	case "load":
		return loadCmd(ctx, deps, rest, stdout)
	case "list":
		return listCmd(ctx, deps, stdout)
	default:
		return fmt.Errorf("unknown command %q\n%s", cmd, usage)
	}
}

func oneArg(cmd string, args []string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("%s expects exactly one argument, got %d", cmd, len(args))
	}
	return args[0], nil
}

// loadRequest reads a rule request, as YAML when the extension says so and
// as JSON otherwise, and builds the rule.
func loadRequest(path string) (*rule.Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read request: %w", err)
	}

	var req *rule.Request
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		req, err = rule.ParseYAML(data)
	default:
		req, err = rule.Parse(data)
	}
	if err != nil {
		return nil, err
	}
	return rule.FromRequest(req)
}

func renderCmd(args []string, stdout io.Writer) error {
	path, err := oneArg("render", args)
	if err != nil {
		return err
	}
	r, err := loadRequest(path)
	if err != nil {
		return err
	}
	_, err = io.WriteString(stdout, r.Render())
	return err
}

func lintCmd(deps *YarexDependencies, args []string, stdout io.Writer) error {
	path, err := oneArg("lint", args)
	if err != nil {
		return err
	}
	r, err := loadRequest(path)
	if err != nil {
		return err
	}

	err = validator.ValidateRule(r)
	var lintErr *validator.LintError
	if !errors.As(err, &lintErr) {
		fmt.Fprintf(stdout, "%s: ok\n", r.Name())
		return err
	}
	for _, issue := range lintErr.Issues {
		deps.Metrics.ObserveLintIssue(string(issue.Kind))
		fmt.Fprintf(stdout, "%s: %s\n", r.Name(), issue)
	}
	return err
}

func compileCmd(ctx context.Context, deps *YarexDependencies, config *Config, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("compile", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	save := fs.Bool("save", false, "Write source and compiled files under the rules directory")
	strict := fs.Bool("error-on-warning", config.ErrorOnWarning, "Treat engine warnings as errors")
	if err := fs.Parse(args); err != nil {
		return err
	}
	path, err := oneArg("compile", fs.Args())
	if err != nil {
		return err
	}
	r, err := loadRequest(path)
	if err != nil {
		return err
	}

	res, err := deps.Compiler.Compile(ctx, r, compiler.CompileOptions{ErrorOnWarning: *strict, Save: *save})
	if err != nil {
		var se *compiler.RuleSyntaxError
		if errors.As(err, &se) {
			fmt.Fprintf(stdout, "%s%s%s\n", rule.Indent, rule.Indent, r.Condition())
			fmt.Fprintf(stdout, "%s%s\n", strings.Repeat(" ", se.Column-1), strings.Repeat("^", se.ColumnRange-se.Column))
		}
		return err
	}

	for _, w := range res.Warnings {
		fmt.Fprintf(stdout, "warning: line %d: %s\n", w.Line, w.Message)
	}
	fmt.Fprintf(stdout, "%s: %s\n", r.Name(), res.State)
	if res.CompiledPath != "" {
		fmt.Fprintf(stdout, "source: %s\ncompiled: %s\n", res.SourcePath, res.CompiledPath)
	}

	if deps.Store != nil && *save {
		if err := deps.Store.SaveRule(ctx, store.NewRecord(r)); err != nil {
			return err
		}
		log.Info().Str("rule", r.Name()).Msg("Stored rule record")
	}
	return nil
}

func scanCmd(deps *YarexDependencies, args []string, stdout io.Writer) error {
	path, err := oneArg("scan", args)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read rule file: %w", err)
	}

	block, err := parser.RuleBody(string(data))
	if err != nil {
		return err
	}
	body, err := lexer.Scan(block.Body)
	deps.Metrics.ObserveScan(err)
	if err != nil {
		return err
	}
	// Offsets are relative to the file.
	for _, span := range body.Spans {
		fmt.Fprintf(stdout, "%d-%d %s %q\n", block.Offset+span.Start, block.Offset+span.End, span.Mode, body.Text(span))
	}
	_, err = io.WriteString(stdout, body.Shadow)
	return err
}

func parseCmd(args []string, stdout io.Writer) error {
	path, err := oneArg("parse", args)
	if err != nil {
		return err
	}
	req, err := parser.ParseFile(path)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(req)
}

// loadCmd takes the condition from the record store when one is
// configured and holds the rule, and from the source file otherwise.
func loadCmd(ctx context.Context, deps *YarexDependencies, args []string, stdout io.Writer) error {
	name, err := oneArg("load", args)
	if err != nil {
		return err
	}

	opts := compiler.LoadOptions{RecoverCondition: true}
	if deps.Store != nil {
		rec, err := deps.Store.GetRule(ctx, name)
		switch {
		case err == nil && rec.Request != nil:
			opts.Condition = rec.Request.Condition
		case errors.Is(err, store.ErrNotFound):
			log.Debug().Str("rule", name).Msg("No stored record, recovering condition from source")
		case err != nil:
			return err
		}
	}

	r, err := deps.Compiler.LoadRule(ctx, name, opts)
	if err != nil {
		return err
	}
	_, err = io.WriteString(stdout, r.Render())
	return err
}

func listCmd(ctx context.Context, deps *YarexDependencies, stdout io.Writer) error {
	if deps.Store == nil {
		return logging.NewError(logging.ErrorTypeConfig, "list needs redis.enabled", nil, nil)
	}
	names, err := deps.Store.ListRules(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Fprintln(stdout, name)
	}
	return nil
}

// RealStoreFactory implements StoreFactory
type RealStoreFactory struct{}

func (f *RealStoreFactory) NewStore(addr, password string, db int) (store.Store, error) {
	s, err := store.NewRedisStore(addr, password, db)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// RealEngineFactory implements EngineFactory
type RealEngineFactory struct{}

func (f *RealEngineFactory) NewEngine(yaracPath, yaraPath string) engine.Engine {
	return engine.NewCLI(yaracPath, yaraPath)
}
