package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/samvad-hq/jsonapi-probe/internal/config"
	"github.com/samvad-hq/jsonapi-probe/internal/logger"
	"github.com/samvad-hq/jsonapi-probe/pkg/httpclient"
	"github.com/samvad-hq/jsonapi-probe/pkg/jsonapi"
	"github.com/spf13/pflag"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

type options struct {
	method           string
	url              string
	headers          []string
	query            map[string]string
	data             string
	timeout          time.Duration
	allowErrorStatus bool
	logLevel         string
}

// failure is printed when the call does not produce a result.
type failure struct {
	Kind    string          `json:"kind"`
	Error   string          `json:"error"`
	Details jsonapi.Details `json:"details"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(stderr, "jsonapi-call: %v\n", err)
		return exitUsage
	}

	sugared, err := logger.Init(&config.Config{
		AppName:   "jsonapi-call",
		LogLevel:  opts.logLevel,
		LogOutput: "stderr",
	})
	if err != nil {
		fmt.Fprintf(stderr, "jsonapi-call: init logger: %v\n", err)
		return exitFailure
	}
	defer logger.Close()

	req, err := buildRequest(opts)
	if err != nil {
		fmt.Fprintf(stderr, "jsonapi-call: %v\n", err)
		return exitUsage
	}

	client := jsonapi.NewClient(httpclient.NewRestyClient(0), jsonapi.WithLogger(logger.Wrap(sugared)))
	res, err := client.Call(ctx, req)
	if err != nil {
		details, _ := jsonapi.DetailsOf(err)
		writeJSON(stdout, failure{
			Kind:    string(jsonapi.KindOf(err)),
			Error:   err.Error(),
			Details: details,
		})
		return exitFailure
	}

	writeJSON(stdout, res.JSON)
	return exitOK
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := pflag.NewFlagSet("jsonapi-call", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVarP(&opts.method, "method", "X", "GET", "HTTP method")
	fs.StringVarP(&opts.url, "url", "u", "", "request URL (required)")
	fs.StringArrayVarP(&opts.headers, "header", "H", nil, `request header as "Name: value" (repeatable)`)
	fs.StringToStringVarP(&opts.query, "query", "q", nil, "query parameters as key=value (repeatable)")
	fs.StringVarP(&opts.data, "data", "d", "", "JSON request body")
	fs.DurationVarP(&opts.timeout, "timeout", "t", 5*time.Second, "call timeout (0 keeps the transport default)")
	fs.BoolVar(&opts.allowErrorStatus, "allow-error-status", false, "parse JSON bodies of non-2xx responses")
	fs.StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if opts.url == "" && fs.NArg() > 0 {
		opts.url = fs.Arg(0)
	}
	if strings.TrimSpace(opts.url) == "" {
		return options{}, errors.New("--url is required")
	}
	return opts, nil
}

func buildRequest(opts options) (jsonapi.Request, error) {
	req := jsonapi.Request{
		Method:           strings.ToUpper(strings.TrimSpace(opts.method)),
		URL:              strings.TrimSpace(opts.url),
		Query:            opts.query,
		Timeout:          opts.timeout,
		AllowErrorStatus: opts.allowErrorStatus,
	}

	if len(opts.headers) > 0 {
		req.Headers = make(map[string]string, len(opts.headers))
		for _, h := range opts.headers {
			name, value, ok := strings.Cut(h, ":")
			name = strings.TrimSpace(name)
			if !ok || name == "" {
				return jsonapi.Request{}, fmt.Errorf("invalid header %q (expected \"Name: value\")", h)
			}
			req.Headers[name] = strings.TrimSpace(value)
		}
	}

	if strings.TrimSpace(opts.data) != "" {
		var body any
		if err := json.Unmarshal([]byte(opts.data), &body); err != nil {
			return jsonapi.Request{}, fmt.Errorf("--data is not valid JSON: %w", err)
		}
		req.Body = body
	}
	return req, nil
}

func writeJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(w, "%v\n", v)
	}
}
