// Checkout drives the consultation page flow against a running API from the
// terminal: submit a form, pay through the returned checkout URL, then hand
// the return URL back to confirm and finalize.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"time"

	"github.com/arcano/arcano-consultas/config"
	"github.com/arcano/arcano-consultas/internal/apiclient"
	"github.com/arcano/arcano-consultas/internal/domain"
	"github.com/arcano/arcano-consultas/internal/flow"
	"github.com/arcano/arcano-consultas/internal/flow/storage"
	"github.com/arcano/arcano-consultas/internal/logger"
	"github.com/joho/godotenv"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "checkout", Console: true, Output: os.Stderr})

	_ = godotenv.Load()

	cmd := flag.String("cmd", "start", "checkout command: start|return|reset")
	kind := flag.String("kind", "", "consultation type for -cmd=start")
	input := flag.String("input", "-", "form JSON file for -cmd=start, - reads stdin")
	description := flag.String("description", "", "checkout item title")
	email := flag.String("email", "", "payer email")
	name := flag.String("name", "", "payer name")
	returnURL := flag.String("url", "", "return URL the gateway redirected to, for -cmd=return")
	flag.Parse()

	ctx := context.Background()
	cfg, err := config.LoadClient()
	if err != nil {
		logg.Error(ctx, "failed to load config", err)
		os.Exit(1)
	}
	logg = logger.New(logger.Options{
		ServiceName: "checkout",
		Level:       logger.ParseLevel(cfg.LogLevel),
		Console:     true,
		Output:      os.Stderr,
	})
	ctx = logg.WithFields(ctx, map[string]any{"cmd": *cmd, "api": cfg.BaseURL})

	file, err := storage.NewFile(cfg.SessionFile)
	if err != nil {
		logg.Error(ctx, "failed to open session file", err)
		os.Exit(1)
	}

	a := &app{
		backend:  apiclient.NewClient(cfg.BaseURL, cfg.Token, cfg.Timeout),
		sessions: flow.NewSessionStore(file),
		out:      os.Stdout,
		logg:     logg,
		interval: cfg.PollInterval,
		wait:     cfg.WaitTimeout,
	}

	switch *cmd {
	case "start":
		var form []byte
		form, err = readInput(*input)
		if err == nil {
			err = a.start(ctx, *kind, form, *description, flow.Payer{Email: *email, Name: *name})
		}
	case "return":
		err = a.finish(ctx, *returnURL)
	case "reset":
		err = a.reset(ctx)
	default:
		err = fmt.Errorf("unknown -cmd value: %s", *cmd)
	}
	if err != nil {
		logg.Error(ctx, "checkout failed", err)
		os.Exit(1)
	}
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

type app struct {
	backend  flow.Backend
	sessions *flow.SessionStore
	out      io.Writer
	logg     *logger.Logger
	interval time.Duration
	wait     time.Duration
}

// start submits the form. Paid kinds print the checkout URL and leave the
// session on disk for the return step; free kinds print the result.
func (a *app) start(ctx context.Context, kindName string, form []byte, description string, payer flow.Payer) error {
	kind, err := domain.ParseConsultationType(kindName)
	if err != nil {
		return err
	}
	if !json.Valid(form) {
		return domain.NewValidationError("form input is not valid JSON")
	}

	ctrl := flow.NewController(kind, a.backend, a.sessions)
	res, err := ctrl.Submit(ctx, json.RawMessage(form))
	if err != nil {
		return err
	}
	if ctrl.Stage() == flow.StageResponse {
		return a.print(res)
	}

	if description == "" {
		description = fmt.Sprintf("Consulta %s", kind)
	}
	checkoutURL, err := ctrl.Pay(ctx, description, payer)
	if err != nil {
		return err
	}
	a.logg.Info(a.logg.WithConsultation(ctx, string(kind), res.ID), "checkout created")
	_, err = fmt.Fprintln(a.out, checkoutURL)
	return err
}

// finish confirms the payment named by the return URL, then prints the page
// to open and the generated consultation.
func (a *app) finish(ctx context.Context, returnURL string) error {
	u, err := url.Parse(returnURL)
	if err != nil {
		return fmt.Errorf("parse return url: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, a.wait)
	defer cancel()

	cb := flow.NewCallback(a.backend, a.sessions, flow.CallbackOptions{Interval: a.interval, Logger: a.logg})
	outcome := cb.Run(ctx, u.Query())
	switch outcome.State {
	case flow.CallbackApproved:
		if _, err := fmt.Fprintln(a.out, outcome.Redirect); err != nil {
			return err
		}
		return a.print(outcome.Consultation)
	case flow.CallbackCancelled:
		return fmt.Errorf("payment not confirmed within %s: %w", a.wait, outcome.Err)
	default:
		if outcome.Err == nil {
			return errors.New("payment confirmation failed")
		}
		return outcome.Err
	}
}

func (a *app) reset(ctx context.Context) error {
	return a.sessions.Clear(ctx)
}

func (a *app) print(res *domain.Result) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
