// Command qc is a command-line client for the exam backend.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"

	"go.uber.org/zap"

	"github.com/and161185/exam-client/internal/api"
	"github.com/and161185/exam-client/internal/config"
	"github.com/and161185/exam-client/internal/credstore"
	"github.com/and161185/exam-client/internal/errs"
	"github.com/and161185/exam-client/internal/guard"
	"github.com/and161185/exam-client/internal/notify"
	"github.com/and161185/exam-client/internal/resource"
	"github.com/and161185/exam-client/internal/session"
	"github.com/and161185/exam-client/internal/telemetry"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// app holds the wired client: one session, one resource cache, one guard.
type app struct {
	out io.Writer
	in  io.Reader

	creds   *credstore.FileStore
	gw      *api.Gateway
	session *session.Store
	res     *resource.Store
	guard   *guard.Guard
	metrics *telemetry.Metrics
	log     *zap.Logger
}

type streams struct {
	in       io.Reader
	out, err io.Writer
}

func newApp(cfg *config.Config, st streams, log *zap.Logger) *app {
	notifier := notify.NewWriter(st.err)
	metrics := telemetry.NewMetrics()
	creds := credstore.NewFileStore(cfg.ConfigDir)

	gw := api.NewGateway(cfg.BaseURL, creds,
		api.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
		api.WithObserver(api.Observers{api.LogObserver(log), metrics}),
	)
	sess := session.New(gw, creds, session.WithNotifier(notifier), session.WithLogger(log))
	res := resource.New(gw, resource.WithNotifier(notifier), resource.WithLogger(log))

	// every cache is dropped when the session ends
	wasIn := sess.IsLoggedIn()
	sess.Subscribe(func(s session.Snapshot) {
		if wasIn && s.State == session.Anonymous {
			res.Reset()
		}
		wasIn = s.LoggedIn
	})

	return &app{
		out:     st.out,
		in:      st.in,
		creds:   creds,
		gw:      gw,
		session: sess,
		res:     res,
		guard:   guard.New(guard.NewTable(guard.DefaultRoutes()), sess, notifier, log),
		metrics: metrics,
		log:     log,
	}
}

func (a *app) printJSON(v any) {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// enter navigates to path and fails unless the guard lets the user stay there.
func (a *app) enter(ctx context.Context, path string) error {
	loc, trail, err := a.guard.Navigate(ctx, path)
	if err != nil {
		return err
	}
	want := a.guard.Table().Resolve(path)
	if loc.Path == want.Path {
		return nil
	}
	switch trail[0].Reason {
	case guard.NeedsLogin:
		return errors.New("login required: run `qc login -u <username> -p <password>`")
	case guard.AlreadyLoggedIn:
		return fmt.Errorf("already logged in as %s: run `qc logout` first", a.session.User().Username)
	case guard.NotAdministrator:
		return errors.New(guard.PrivilegeMessage)
	}
	return fmt.Errorf("cannot open %s", path)
}

type command struct {
	usage string
	run   func(a *app, ctx context.Context, args []string) error
}

var commands = map[string]command{
	"register":        {"-u <username> -p <password> [-email <addr>]", (*app).cmdRegister},
	"login":           {"-u <username> -p <password>", (*app).cmdLogin},
	"logout":          {"", (*app).cmdLogout},
	"whoami":          {"", (*app).cmdWhoami},
	"open":            {"<path>                        (run the route guard)", (*app).cmdOpen},
	"banks":           {"", (*app).cmdBanks},
	"bank":            {"-id <bank>", (*app).cmdBank},
	"bank-create":     {"-name <name> [-desc <text>] [-file questions.json]", (*app).cmdBankCreate},
	"bank-rm":         {"-id <bank>", (*app).cmdBankRemove},
	"upload":          {"-bank <bank> -file <path> [-mode format|ai]", (*app).cmdUpload},
	"questions":       {"-bank <bank>", (*app).cmdQuestions},
	"question-add":    {"-bank <bank> -q <text> -opts 'a|b|c' -answer A[,C] [-explain <text>]", (*app).cmdQuestionAdd},
	"question-update": {"-bank <bank> -id <question> [-q <text>] [-opts 'a|b'] [-answer B] [-explain <text>]", (*app).cmdQuestionUpdate},
	"question-rm":     {"-bank <bank> -id <question>", (*app).cmdQuestionRemove},
	"wrong":           {"[-bank <bank>]", (*app).cmdWrong},
	"wrong-rm":        {"-id <record>", (*app).cmdWrongRemove},
	"wrong-clear":     {"", (*app).cmdWrongClear},
	"exam":            {"-bank <bank> [-wrong] [-n <count>]   (answers are read from stdin)", (*app).cmdExam},
	"stats":           {"", (*app).cmdStats},
	"admin":           {"users|banks|stats|settings|rm-user <id>|rm-bank <id>|promote <id>|set k=v...", (*app).cmdAdmin},
	"version":         {"", (*app).cmdVersion},
}

var order = []string{
	"version", "register", "login", "logout", "whoami", "open",
	"banks", "bank", "bank-create", "bank-rm", "upload",
	"questions", "question-add", "question-update", "question-rm",
	"wrong", "wrong-rm", "wrong-clear", "exam", "stats", "admin",
}

func usage(w io.Writer) {
	fmt.Fprintf(w, "qc CLI\nUsage:\n  qc [-base-url URL] [-config-dir DIR] [-env FILE] [-metrics-file FILE] [-v] <cmd> [args]\n\nCommands:\n")
	for _, name := range order {
		fmt.Fprintf(w, "  %-16s %s\n", name, commands[name].usage)
	}
}

// run dispatches one subcommand.
func (a *app) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	c, ok := commands[args[0]]
	if !ok {
		return errUsage
	}
	return c.run(a, ctx, args[1:])
}

var errUsage = errors.New("usage")

func newLogger(verbose bool) *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	l, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// main loads configuration, wires the client and dispatches subcommands.
func main() {
	// global flags
	baseURL := flag.String("base-url", "", "API base URL (overrides EXAM_API_BASE_URL)")
	configDir := flag.String("config-dir", "", "directory for the persisted credential")
	envFile := flag.String("env", ".env", "optional .env file")
	metricsFile := flag.String("metrics-file", "", "write API call metrics here on exit")
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Usage = func() { usage(os.Stderr) }
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fail(err)
	}
	if *baseURL != "" {
		cfg.BaseURL = config.ResolveBaseURL(cfg.Env, *baseURL)
	}
	if *configDir != "" {
		cfg.ConfigDir = *configDir
	}

	log := newLogger(*verbose || cfg.Verbose)
	defer func() { _ = log.Sync() }()

	a := newApp(cfg, streams{in: os.Stdin, out: os.Stdout, err: os.Stderr}, log)

	ctx := context.Background()
	if flag.Arg(0) != "exam" {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 2*cfg.HTTPTimeout)
		defer cancel()
	}

	err = a.run(ctx, flag.Args())
	if *metricsFile != "" {
		if werr := a.metrics.WriteFile(*metricsFile); werr != nil {
			log.Warn("write metrics", zap.Error(werr))
		}
	}
	if errors.Is(err, errUsage) {
		usage(os.Stderr)
		os.Exit(2)
	}
	if err != nil {
		fail(err)
	}
}

func fail(err error) {
	var re *errs.RequestError
	if errors.As(err, &re) {
		fmt.Fprintf(os.Stderr, "api error: status=%d msg=%s\n", re.Status, re.Message)
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, errs.Message(err))
	os.Exit(1)
}
