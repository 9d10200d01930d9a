package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/danmuck/portal/internal/config"
	"github.com/danmuck/portal/internal/lifecycle"
	"github.com/danmuck/portal/internal/logging"
	"github.com/danmuck/portal/internal/portalreq"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	logging.ConfigureRuntime()

	var err error
	switch os.Args[1] {
	case "status":
		err = cmdStatus(os.Args[2:])
	case "init":
		err = cmdInit(os.Args[2:])
	case "headers":
		err = cmdHeaders(os.Args[2:])
	case "fetch":
		err = cmdFetch(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "portalctl: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: portalctl <status|init|headers|fetch> [flags]")
}

func clientFlags(fs *flag.FlagSet) (configPath, service, session *string) {
	configPath = fs.String("config", "", "path to client config.toml")
	service = fs.String("service", "", "override the service name")
	session = fs.String("session", "", "override the session id")
	return
}

func loadClient(configPath, service, session string) (config.ClientConfig, error) {
	cfg, err := config.LoadClientConfig(configPath)
	if err != nil {
		return config.ClientConfig{}, err
	}
	if service != "" {
		cfg.Service = service
	}
	if session != "" {
		cfg.SessionID = session
	}
	if cfg.SessionID == "" {
		cfg.SessionID = lifecycle.SessionID()
	}
	return cfg, nil
}

func cmdStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath, service, session := clientFlags(fs)
	fs.Parse(args)

	cfg, err := loadClient(*configPath, *service, *session)
	if err != nil {
		return err
	}

	st, err := lifecycle.ReadState(cfg.SessionID, cfg.Service)
	if err != nil {
		return err
	}
	fmt.Printf("service:  %s\n", st.Service)
	fmt.Printf("session:  %s\n", st.SessionID)
	fmt.Printf("pid:      %d\n", st.PID)
	fmt.Printf("socket:   %s\n", st.SocketPath)
	fmt.Printf("started:  %s (%s ago)\n",
		st.StartedAt.Format(time.RFC3339), time.Since(st.StartedAt).Round(time.Second))
	return nil
}

func cmdInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	kind := fs.String("kind", "client", "config kind: daemon|client")
	output := fs.String("output", "config.toml", "output path for config template")
	force := fs.Bool("force", false, "overwrite existing config file")
	fs.Parse(args)

	if err := config.WriteTemplate(*output, *kind, *force); err != nil {
		return err
	}
	fmt.Printf("wrote %s config template to %s\n", *kind, *output)
	return nil
}

func dial(ctx context.Context, cfg config.ClientConfig, opts portalreq.ClientOptions) (*portalreq.Client, error) {
	opts.Logger = logging.New("portalctl")
	return portalreq.Dial(ctx, lifecycle.SocketPath(cfg.SessionID, cfg.Service), opts)
}

func callContext(cfg config.ClientConfig) (context.Context, context.CancelFunc) {
	if cfg.CallTimeoutMS <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(),
		time.Duration(cfg.CallTimeoutMS)*time.Millisecond)
}

func startRequest(ctx context.Context, client *portalreq.Client, method, url string) (int64, error) {
	outcome, err := client.StartRequest(ctx, &portalreq.StartRequest{
		Method: method,
		URL:    url,
	})
	if err != nil {
		return 0, err
	}
	switch o := outcome.(type) {
	case portalreq.Started:
		return o.ID, nil
	case portalreq.Refused:
		return 0, fmt.Errorf("request refused: %s", o.Reason)
	default:
		return 0, fmt.Errorf("unexpected outcome %T", outcome)
	}
}

func cmdHeaders(args []string) error {
	fs := flag.NewFlagSet("headers", flag.ExitOnError)
	configPath, service, session := clientFlags(fs)
	method := fs.String("method", "GET", "request method")
	url := fs.String("url", "", "request url")
	fs.Parse(args)

	if *url == "" {
		return fmt.Errorf("headers: -url is required")
	}
	cfg, err := loadClient(*configPath, *service, *session)
	if err != nil {
		return err
	}

	ctx, cancel := callContext(cfg)
	defer cancel()

	client, err := dial(ctx, cfg, portalreq.ClientOptions{})
	if err != nil {
		return err
	}
	defer client.Close()

	id, err := startRequest(ctx, client, *method, *url)
	if err != nil {
		return err
	}
	resp, err := client.GetHeaders(ctx, id)
	if err != nil {
		return err
	}
	fmt.Printf("status: %d\n", resp.Status)
	for _, h := range resp.Headers {
		fmt.Printf("%s: %s\n", h.Name, h.Value)
	}
	return nil
}

func cmdFetch(args []string) error {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	configPath, service, session := clientFlags(fs)
	method := fs.String("method", "GET", "request method")
	url := fs.String("url", "", "request url")
	output := fs.String("output", "", "file the body is written into")
	fs.Parse(args)

	if *url == "" || *output == "" {
		return fmt.Errorf("fetch: -url and -output are required")
	}
	cfg, err := loadClient(*configPath, *service, *session)
	if err != nil {
		return err
	}

	ctx, cancel := callContext(cfg)
	defer cancel()

	finished := make(chan *portalreq.RequestFinished, 1)
	client, err := dial(ctx, cfg, portalreq.ClientOptions{
		OnFinished: func(msg *portalreq.RequestFinished) {
			select {
			case finished <- msg:
			default:
			}
		},
	})
	if err != nil {
		return err
	}
	defer client.Close()

	id, err := startRequest(ctx, client, *method, *url)
	if err != nil {
		return err
	}

	out, err := os.OpenFile(*output, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	// The daemon writes through its own duplicate of the descriptor.
	defer out.Close()

	written, err := client.DeliverFile(ctx, id, out)
	if err != nil {
		return err
	}

	select {
	case msg := <-finished:
		if msg.Err != nil {
			return fmt.Errorf("request %d failed: %s (code %d)", id, msg.Err.Message, msg.Err.Code)
		}
		fmt.Printf("wrote %d bytes to %s\n", msg.TotalSize, *output)
	case <-ctx.Done():
		fmt.Printf("wrote %d bytes to %s (no completion notice)\n", written, *output)
	}
	return nil
}
