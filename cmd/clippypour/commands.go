package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/mattn/go-isatty"

	"github.com/entrhq/clippypour/pkg/config"
	"github.com/entrhq/clippypour/pkg/fill"
	"github.com/entrhq/clippypour/pkg/history"
	"github.com/entrhq/clippypour/pkg/logging"
	"github.com/entrhq/clippypour/pkg/pour"
	"github.com/entrhq/clippypour/pkg/report"
	"github.com/entrhq/clippypour/pkg/server"
	"github.com/entrhq/clippypour/pkg/template"
	"github.com/entrhq/clippypour/pkg/ui/confirm"
)

var (
	stdout io.Writer = os.Stdout
	stdin  io.Reader = os.Stdin

	readClipboard = clipboard.ReadAll
)

// commonFlags are accepted by every command that loads configuration.
type commonFlags struct {
	ConfigFile string
	Driver     string
	Headed     bool
	Verbose    bool
	JSON       bool
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.ConfigFile, "config", os.Getenv("CLIPPYPOUR_CONFIG"), "Path to configuration file (YAML)")
	fs.StringVar(&c.Driver, "driver", "", "Browser driver: playwright, rod or static")
	fs.BoolVar(&c.Headed, "headed", false, "Show the browser window")
	fs.BoolVar(&c.Verbose, "verbose", false, "Log to stderr instead of the log file")
	fs.BoolVar(&c.JSON, "json", false, "Print JSON instead of a summary")
}

// load reads the configuration file and applies flag overrides. Flags win
// over the file, the file wins over the environment.
func (c *commonFlags) load() (*config.Config, error) {
	cfg, err := config.Load(c.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if c.Driver != "" {
		cfg.Browser.Driver = c.Driver
	}
	if c.Headed {
		cfg.Browser.Headless = false
	}
	if c.Verbose {
		cfg.Logging.Verbosity = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *commonFlags) logger(component string) *logging.Logger {
	if c.Verbose {
		return logging.NewWriterLogger(component, os.Stderr)
	}
	// NewLogger falls back to stderr and reports why.
	l, _ := logging.NewLogger(component)
	return l
}

func (c *commonFlags) print(v interface{}, summary string) error {
	if c.JSON {
		return report.HighlightJSON(stdout, v, colorOutput())
	}
	_, err := fmt.Fprintln(stdout, summary)
	return err
}

func colorOutput() bool {
	f, ok := stdout.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}

// withService starts the configured driver and a service over it.
func (c *commonFlags) withService(cfg *config.Config, fn func(*pour.Service) error) error {
	logger := c.logger("clippypour")

	driver, err := pour.NewDriver(cfg.Browser, logger)
	if err != nil {
		return fmt.Errorf("failed to start %s driver: %w", cfg.Browser.Driver, err)
	}
	defer func() {
		if err := driver.Shutdown(); err != nil {
			logger.Warnf("Driver shutdown: %v", err)
		}
	}()

	svc, err := pour.New(cfg, driver, logger, pour.LogEvents(logger.With("events")))
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Warnf("Service close: %v", err)
		}
	}()

	return fn(svc)
}

// urlArg returns the -url flag, or the first positional argument.
func urlArg(fs *flag.FlagSet, flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if fs.NArg() > 0 {
		return fs.Arg(0), nil
	}
	return "", errors.New("a form URL is required (-url)")
}

func runAnalyze(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	var common commonFlags
	common.register(fs)
	formURL := fs.String("url", "", "Page URL or HTML file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	target, err := urlArg(fs, *formURL)
	if err != nil {
		return err
	}
	cfg, err := common.load()
	if err != nil {
		return err
	}

	return common.withService(cfg, func(svc *pour.Service) error {
		forms, err := svc.Analyze(ctx, pour.AnalyzeRequest{FormURL: target})
		if err != nil {
			return err
		}
		return common.print(forms, report.Forms(forms))
	})
}

func runFill(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("fill", flag.ContinueOnError)
	var common commonFlags
	common.register(fs)
	formURL := fs.String("url", "", "Page URL or HTML file")
	data := fs.String("data", "", "Data string; '-' reads stdin, empty reads the clipboard")
	selectors := fs.String("selectors", "", "Comma separated field selectors, skipping analysis")
	mode := fs.String("mode", "", "Fill mode: strict or lenient")
	verify := fs.Bool("verify", true, "Read each value back after writing it")
	formIndex := fs.Int("form", 0, "Index of the form to fill when a page has several")
	tpl := fs.String("template", "", "Template to fill with, or name to save the template under")
	noTemplate := fs.Bool("no-template", false, "Ignore saved templates")
	confirmFlag := fs.Bool("confirm", false, "Confirm the mapping before filling when any pair is not high")
	profile := fs.String("profile", "", "Saved profile to use as the data string")
	submit := fs.Bool("submit", false, "Submit the form when every field was filled")
	if err := fs.Parse(args); err != nil {
		return err
	}

	target, err := urlArg(fs, *formURL)
	if err != nil {
		return err
	}
	cfg, err := common.load()
	if err != nil {
		return err
	}
	var input string
	if *profile == "" || *data != "" {
		input, err = readData(*data, stdin, readClipboard)
		if err != nil {
			return err
		}
	}

	req := pour.FillRequest{
		FormURL:    target,
		Data:       input,
		Profile:    *profile,
		Selectors:  splitSelectors(*selectors),
		Mode:       *mode,
		FormIndex:  *formIndex,
		Template:   *tpl,
		NoTemplate: *noTemplate,
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "verify":
			v := *verify
			req.Verify = &v
		case "submit":
			v := *submit
			req.Submit = &v
		}
	})
	if *confirmFlag || cfg.Fill.Confirm {
		req.Confirm = confirm.Prompt(os.Stdin, os.Stdout)
	}

	return common.withService(cfg, func(svc *pour.Service) error {
		res, err := svc.Fill(ctx, req)
		if err != nil {
			return err
		}
		if err := common.print(res, fillSummary(res)); err != nil {
			return err
		}
		if res.Status != fill.StatusDone {
			return errSessionNotDone
		}
		return nil
	})
}

func fillSummary(res pour.FillResult) string {
	out := report.Summary(res.Snapshot)
	if res.Template != "" {
		out += fmt.Sprintf("\nused template %q", res.Template)
	}
	if res.SavedTemplate != "" {
		out += fmt.Sprintf("\nsaved template %q", res.SavedTemplate)
	}
	if res.Profile != "" {
		out += fmt.Sprintf("\ndata from profile %q", res.Profile)
	}
	switch {
	case res.Submitted:
		out += "\nform submitted"
	case res.SubmitError != "":
		out += "\nsubmit failed: " + res.SubmitError
	}
	if res.ArtifactDir != "" {
		out += "\nartifacts in " + res.ArtifactDir
	}
	return out
}

// readData resolves the -data flag: the value itself, stdin for "-", or the
// clipboard when empty.
func readData(value string, in io.Reader, clip func() (string, error)) (string, error) {
	switch value {
	case "-":
		b, err := io.ReadAll(bufio.NewReader(in))
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return strings.TrimRight(string(b), "\r\n"), nil
	case "":
		s, err := clip()
		if err != nil {
			return "", fmt.Errorf("failed to read clipboard: %w", err)
		}
		if strings.TrimSpace(s) == "" {
			return "", errors.New("clipboard is empty; pass -data")
		}
		return s, nil
	default:
		return value, nil
	}
}

func splitSelectors(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	var common commonFlags
	common.register(fs)
	addr := fs.String("addr", "", "Listen address (default from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := common.load()
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	return common.withService(cfg, func(svc *pour.Service) error {
		srv := server.New(svc, logging.NewWriterLogger("server", os.Stderr))
		return srv.ListenAndServe(ctx, cfg.Server.Addr)
	})
}

func runTemplates(args []string) error {
	fs := flag.NewFlagSet("templates", flag.ContinueOnError)
	var common commonFlags
	common.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := common.load()
	if err != nil {
		return err
	}
	path, err := cfg.TemplatesPath()
	if err != nil {
		return err
	}
	store, err := template.NewStore(path)
	if err != nil {
		return err
	}

	sub, rest := subcommand(fs)
	switch sub {
	case "list":
		list := store.List()
		return common.print(list, templateList(list))
	case "show":
		if len(rest) == 0 {
			return errors.New("usage: clippypour templates show NAME")
		}
		t, err := store.Get(rest[0])
		if err != nil {
			return err
		}
		return report.HighlightJSON(stdout, t, colorOutput())
	case "delete":
		if len(rest) == 0 {
			return errors.New("usage: clippypour templates delete NAME")
		}
		if err := store.Delete(rest[0]); err != nil {
			return err
		}
		_, err := fmt.Fprintf(stdout, "deleted template %q\n", rest[0])
		return err
	default:
		return fmt.Errorf("unknown templates command %q (want list, show or delete)", sub)
	}
}

func templateList(list []template.Template) string {
	if len(list) == 0 {
		return "no templates saved"
	}
	var b strings.Builder
	for _, t := range list {
		fmt.Fprintf(&b, "%-24s %-3d fields  %s\n", t.Name, len(t.Selectors), t.URL)
	}
	return strings.TrimRight(b.String(), "\n")
}

func runProfiles(args []string) error {
	fs := flag.NewFlagSet("profiles", flag.ContinueOnError)
	var common commonFlags
	common.register(fs)
	data := fs.String("data", "", "Data for save; '-' reads stdin, empty reads the clipboard")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := common.load()
	if err != nil {
		return err
	}
	path, err := cfg.ProfilesPath()
	if err != nil {
		return err
	}
	store, err := template.NewProfileStore(path)
	if err != nil {
		return err
	}

	sub, rest := subcommand(fs)
	switch sub {
	case "list":
		list := store.List()
		return common.print(list, profileList(list))
	case "show":
		if len(rest) == 0 {
			return errors.New("usage: clippypour profiles show NAME")
		}
		p, err := store.Get(rest[0])
		if err != nil {
			return err
		}
		return report.HighlightJSON(stdout, p, colorOutput())
	case "save":
		if len(rest) == 0 {
			return errors.New("usage: clippypour profiles [-data DATA] save NAME [DATA]")
		}
		value := *data
		if len(rest) > 1 {
			value = strings.Join(rest[1:], " ")
		}
		input, err := readData(value, stdin, readClipboard)
		if err != nil {
			return err
		}
		p, err := store.Save(rest[0], input)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(stdout, "saved profile %q\n", p.Name)
		return err
	case "delete":
		if len(rest) == 0 {
			return errors.New("usage: clippypour profiles delete NAME")
		}
		if err := store.Delete(rest[0]); err != nil {
			return err
		}
		_, err := fmt.Fprintf(stdout, "deleted profile %q\n", rest[0])
		return err
	default:
		return fmt.Errorf("unknown profiles command %q (want list, show, save or delete)", sub)
	}
}

func profileList(list []template.Profile) string {
	if len(list) == 0 {
		return "no profiles saved"
	}
	var b strings.Builder
	for _, p := range list {
		fmt.Fprintf(&b, "%-24s %s  %s\n", p.Name, p.UpdatedAt.Format(time.DateTime), p.Title)
	}
	return strings.TrimRight(b.String(), "\n")
}

func runHistory(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	var common commonFlags
	common.register(fs)
	limit := fs.Int("limit", 20, "Number of sessions to list")
	olderThan := fs.Duration("older-than", 30*24*time.Hour, "Age of sessions removed by prune")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := common.load()
	if err != nil {
		return err
	}
	path, err := cfg.HistoryPath()
	if err != nil {
		return err
	}
	store, err := history.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	sub, rest := subcommand(fs)
	switch sub {
	case "list":
		entries, err := store.List(ctx, *limit)
		if err != nil {
			return err
		}
		return common.print(entries, historyList(entries))
	case "show":
		if len(rest) == 0 {
			return errors.New("usage: clippypour history show ID")
		}
		e, err := store.Get(ctx, rest[0])
		if err != nil {
			return err
		}
		return report.HighlightJSON(stdout, e, colorOutput())
	case "prune":
		n, err := store.Prune(ctx, time.Now().Add(-*olderThan))
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(stdout, "removed %d sessions\n", n)
		return err
	default:
		return fmt.Errorf("unknown history command %q (want list, show or prune)", sub)
	}
}

func historyList(entries []history.Entry) string {
	if len(entries) == 0 {
		return "no sessions recorded"
	}
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "%s  %-16s %d/%d  %s  %s\n",
			e.StartedAt.Format(time.DateTime), e.Status, e.Completed, e.Completed+e.Failed, e.ID, e.FormURL)
	}
	return strings.TrimRight(b.String(), "\n")
}

// subcommand splits positional arguments into an action (default list) and
// its operands.
func subcommand(fs *flag.FlagSet) (string, []string) {
	if fs.NArg() == 0 {
		return "list", nil
	}
	return fs.Arg(0), fs.Args()[1:]
}
