// File: cmd/open.go
package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/webgate/internal/browser"
	"github.com/xkilldash9x/webgate/internal/config"
	"github.com/xkilldash9x/webgate/internal/observability"
	"github.com/xkilldash9x/webgate/internal/observer"
	"github.com/xkilldash9x/webgate/internal/policy"
	"github.com/xkilldash9x/webgate/internal/webview"
)

// errQuit ends an open session on user request.
var errQuit = errors.New("quit")

const metricsShutdownTimeout = 5 * time.Second

type openOptions struct {
	htmlFile    string
	baseURL     string
	method      string
	headers     []string
	body        string
	username    string
	title       string
	record      string
	metricsAddr string
	policy      policyFlags
}

// sessionHost is the part of a browser session the command loop drives.
type sessionHost interface {
	GoBack(ctx context.Context) error
	GoForward(ctx context.Context) error
	Reload(ctx context.Context) error
	State() webview.State
}

func newOpenCmd() *cobra.Command {
	var opts openOptions

	openCmd := &cobra.Command{
		Use:   "open [url]",
		Short: "Open a URL, request or HTML document under the navigation policy",
		Long: `Open loads the target in a browser tab and reports navigation events.
While open, stdin accepts the commands: back, forward, reload, state, quit.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd.Context())
			if err != nil {
				return err
			}
			target, err := buildTarget(args, opts, os.ReadFile)
			if err != nil {
				return err
			}
			if err := opts.applyConfig(cmd, cfg); err != nil {
				return err
			}
			return runOpen(cmd.Context(), cfg, target, cmd.InOrStdin(), cmd.OutOrStdout(), observability.GetLogger())
		},
	}

	flags := openCmd.Flags()
	flags.StringVar(&opts.htmlFile, "html-file", "", "load the HTML document in this file instead of a URL")
	flags.StringVar(&opts.baseURL, "base-url", "", "base URL for relative references in --html-file")
	flags.StringVarP(&opts.method, "method", "X", "", "request method")
	flags.StringArrayVarP(&opts.headers, "header", "H", nil, `request header "Name: value" (repeatable)`)
	flags.StringVar(&opts.body, "body", "", "request body")
	flags.StringVar(&opts.username, "username", "", "username for HTTP authentication (secret from config or WEBGATE_POLICY_CREDENTIAL_SECRET)")
	flags.StringVar(&opts.title, "title", "", "fixed page title")
	flags.StringVar(&opts.record, "record", "", "append navigation events to this file as JSON lines")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	opts.policy.register(openCmd)
	return openCmd
}

// applyConfig layers flag values over the loaded config.
func (o *openOptions) applyConfig(cmd *cobra.Command, cfg *config.Config) error {
	if o.username != "" {
		cred := policy.Credential{Username: o.username}
		if cfg.Policy.Credential != nil {
			cred.Secret = cfg.Policy.Credential.Secret
		}
		if cred.Secret == "" {
			cred.Secret = os.Getenv("WEBGATE_POLICY_CREDENTIAL_SECRET")
		}
		cfg.Policy.Credential = &cred
	}
	if o.title != "" {
		cfg.Session.Title = o.title
	}
	if o.record != "" {
		cfg.Observer.RecordFile = o.record
	}
	if o.metricsAddr != "" {
		cfg.Observer.MetricsAddr = o.metricsAddr
	}
	if _, err := o.policy.resolve(cmd, &cfg.Policy); err != nil {
		return fmt.Errorf("invalid policy: %w", err)
	}
	return nil
}

// buildTarget picks the target variant from the arguments and flags.
func buildTarget(args []string, o openOptions, readFile func(string) ([]byte, error)) (webview.Target, error) {
	if o.htmlFile != "" {
		if len(args) > 0 {
			return nil, errors.New("a URL argument cannot be combined with --html-file")
		}
		html, err := readFile(o.htmlFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read HTML file: %w", err)
		}
		return webview.HTMLTarget{HTML: string(html), BaseURL: o.baseURL}, nil
	}

	if len(args) != 1 {
		return nil, errors.New("a URL argument or --html-file is required")
	}
	if o.baseURL != "" {
		return nil, errors.New("--base-url only applies to --html-file")
	}
	if o.method == "" && len(o.headers) == 0 && o.body == "" {
		return webview.URLTarget{URL: args[0]}, nil
	}

	header, err := parseHeaders(o.headers)
	if err != nil {
		return nil, err
	}
	t := webview.RequestTarget{URL: args[0], Method: strings.ToUpper(o.method), Header: header}
	if o.body != "" {
		t.Body = []byte(o.body)
	}
	return t, nil
}

func parseHeaders(lines []string) (http.Header, error) {
	if len(lines) == 0 {
		return nil, nil
	}
	h := make(http.Header, len(lines))
	for _, line := range lines {
		name, value, ok := strings.Cut(line, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("malformed header %q, want \"Name: value\"", line)
		}
		h.Add(name, strings.TrimSpace(value))
	}
	return h, nil
}

func runOpen(ctx context.Context, cfg *config.Config, target webview.Target, in io.Reader, out io.Writer, logger *zap.Logger) error {
	out = &lockedWriter{w: out}
	observers := []webview.Observer{observer.NewLogObserver(logger)}

	var recorder *observer.Recorder
	if path := cfg.Observer.RecordFile; path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open record file: %w", err)
		}
		defer f.Close()
		recorder = observer.NewRecorder(f)
		observers = append(observers, recorder.Observe)
	}

	var metricsServer *http.Server
	if addr := cfg.Observer.MetricsAddr; addr != "" {
		reg := prometheus.NewRegistry()
		observers = append(observers, observer.NewMetrics(reg).Observe)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsServer = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	}

	sess, err := browser.Open(ctx, cfg, target, logger, webview.WithObserver(observer.Fanout(observers...)))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			logger.Warn("Session did not close cleanly.", zap.Error(cerr))
		}
	}()

	states, unsubscribe := sess.Subscribe()
	defer unsubscribe()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return runCommands(gctx, in, out, sess) })
	g.Go(func() error { return watchStates(gctx, states, out) })
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case <-sess.Done():
			return errors.New("browser session ended")
		}
	})
	if metricsServer != nil {
		g.Go(func() error {
			logger.Info("Serving metrics.", zap.String("addr", metricsServer.Addr))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
			defer cancel()
			return metricsServer.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	if recorder != nil {
		if rerr := recorder.Err(); rerr != nil {
			logger.Error("Event recording failed.", zap.Error(rerr))
		}
	}
	if errors.Is(err, errQuit) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// runCommands reads host commands until quit, end of input or cancellation.
func runCommands(ctx context.Context, in io.Reader, out io.Writer, host sessionHost) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	go func() {
		// Blocks on stdin; exits at EOF.
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return errQuit
			}
			if err := runCommand(ctx, strings.TrimSpace(line), out, host); err != nil {
				return err
			}
		}
	}
}

func runCommand(ctx context.Context, line string, out io.Writer, host sessionHost) error {
	switch strings.ToLower(line) {
	case "":
		return nil
	case "back":
		return host.GoBack(ctx)
	case "forward":
		return host.GoForward(ctx)
	case "reload":
		return host.Reload(ctx)
	case "state":
		fmt.Fprintln(out, formatState(host.State()))
		return nil
	case "quit", "exit":
		return errQuit
	default:
		fmt.Fprintf(out, "unknown command %q (back, forward, reload, state, quit)\n", line)
		return nil
	}
}

// watchStates prints a line whenever the visible state changes.
func watchStates(ctx context.Context, states <-chan webview.State, out io.Writer) error {
	var last string
	for {
		select {
		case <-ctx.Done():
			return nil
		case st, ok := <-states:
			if !ok {
				return nil
			}
			line := formatState(st)
			if line != last {
				fmt.Fprintln(out, line)
				last = line
			}
		}
	}
}

func formatState(st webview.State) string {
	return fmt.Sprintf("title=%q loading=%t back=%t forward=%t", st.PageTitle, st.Loading, st.CanGoBack, st.CanGoForward)
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
