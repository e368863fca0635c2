package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vango-dev/pagekeeper/internal/errors"
	"github.com/vango-dev/pagekeeper/pkg/identity"
	"github.com/vango-dev/pagekeeper/pkg/pages"
	"github.com/vango-dev/pagekeeper/pkg/route"
	"github.com/vango-dev/pagekeeper/pkg/routepath"
)

// replayStep is one line of a replay script.
type replayStep struct {
	Op       string         `json:"op"`
	FullPath string         `json:"fullPath,omitempty"`
	Name     string         `json:"name,omitempty"`
	Meta     map[string]any `json:"meta,omitempty"`
}

type replayOptions struct {
	Policy    string
	Home      string
	JSON      bool
	KeepGoing bool
}

func replayCmd() *cobra.Command {
	var opts replayOptions

	cmd := &cobra.Command{
		Use:   "replay <script.jsonl>",
		Short: "Drive a page registry from a navigation script",
		Long: `Replay a JSON-lines navigation script against a fresh page registry
and print every change batch and the final state.

Each line is one step:
  {"op":"navigate","fullPath":"/users","name":"Users","meta":{"title":"Users"}}
  {"op":"close","fullPath":"/users"}
  {"op":"close-current"}
  {"op":"close-others"}
  {"op":"close-all"}
  {"op":"refresh"}                       refresh the active page
  {"op":"refresh","fullPath":"/roles"}   refresh a given page
  {"op":"state"}                         print the state so far

Blank lines and lines starting with # are ignored. Use - to read stdin.

Examples:
  pagekeeper replay tabs.jsonl
  pagekeeper replay --policy exact --json tabs.jsonl`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return errors.New("X130").Wrap(err)
				}
				defer f.Close()
				in = f
			}
			return runReplay(cmd.Context(), in, cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.Policy, "policy", identity.PolicySanitized, "Cache key policy (sanitized or exact)")
	cmd.Flags().StringVar(&opts.Home, "home", "/", "Navigation target when the last page closes")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "Print batches and the final state as JSON lines")
	cmd.Flags().BoolVarP(&opts.KeepGoing, "keep-going", "k", false, "Report failed steps and continue")

	return cmd
}

// runReplay executes the script read from in and writes the trace to out.
func runReplay(ctx context.Context, in io.Reader, out io.Writer, opts replayOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	policy, err := identity.PolicyByName(opts.Policy)
	if err != nil {
		return errors.New("X131").WithDetail(err.Error())
	}

	p := &printer{w: out, json: opts.JSON}
	reg := pages.New(pages.Config{
		Home:      opts.Home,
		Policy:    policy,
		Observers: []pages.Observer{p},
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	scanner := bufio.NewScanner(in)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		var step replayStep
		dec := json.NewDecoder(strings.NewReader(text))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&step); err != nil {
			return scriptError(line, err)
		}

		if err := applyStep(ctx, reg, step, p); err != nil {
			if !opts.KeepGoing {
				return scriptError(line, err)
			}
			p.failure(line, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.New("X130").Wrap(err)
	}

	p.state("final", reg.Snapshot())
	return nil
}

func scriptError(line int, err error) error {
	return errors.New("X130").
		WithDetail(fmt.Sprintf("line %d: %v", line, err)).
		Wrap(err)
}

func applyStep(ctx context.Context, reg *pages.Registry, step replayStep, p *printer) error {
	switch step.Op {
	case "navigate":
		res, err := canonical(step.FullPath)
		if err != nil {
			return err
		}
		meta, rejected := route.MetaFromMap(step.Meta)
		if len(rejected) > 0 {
			return fmt.Errorf("invalid meta values for %s", strings.Join(rejected, ", "))
		}
		return reg.HandleNavigation(route.Target{
			FullPath: res.FullPath(),
			Path:     res.Path,
			Name:     step.Name,
			Meta:     meta,
		})

	case "close":
		res, err := canonical(step.FullPath)
		if err != nil {
			return err
		}
		cmd, err := reg.ClosePage(res.FullPath())
		if err != nil {
			return err
		}
		p.command(cmd)

	case "close-current":
		cmd, err := reg.CloseCurrent()
		if err != nil {
			return err
		}
		p.command(cmd)

	case "close-others":
		reg.CloseOthers()

	case "close-all":
		p.command(reg.CloseAll())

	case "refresh":
		if step.FullPath == "" {
			return reg.RefreshActive(ctx)
		}
		res, err := canonical(step.FullPath)
		if err != nil {
			return err
		}
		return reg.RefreshPage(ctx, res.FullPath())

	case "state":
		p.state("state", reg.Snapshot())

	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}
	return nil
}

func canonical(fullPath string) (routepath.Result, error) {
	res, err := routepath.Canonicalize(fullPath)
	if err != nil {
		return routepath.Result{}, fmt.Errorf("fullPath %q: %w", fullPath, err)
	}
	return res, nil
}

// printer renders replay output. It observes the registry directly.
type printer struct {
	w    io.Writer
	json bool
}

type printerLine struct {
	Kind     string       `json:"kind"`
	Batch    *pages.Batch `json:"batch,omitempty"`
	Navigate string       `json:"navigate,omitempty"`
	State    *pages.State `json:"state,omitempty"`
	Line     int          `json:"line,omitempty"`
	Error    string       `json:"error,omitempty"`
}

func (p *printer) emit(l printerLine) {
	data, _ := json.Marshal(l)
	fmt.Fprintln(p.w, string(data))
}

// Observe implements pages.Observer.
func (p *printer) Observe(b pages.Batch) {
	if p.json {
		p.emit(printerLine{Kind: "batch", Batch: &b})
		return
	}
	fmt.Fprintf(p.w, "#%d %s\n", b.Seq, b.Op)
	for _, e := range b.Events {
		fmt.Fprintf(p.w, "    %-8s %s", e.Type, e.FullPath)
		switch e.Type {
		case pages.EventCache, pages.EventUncache:
			fmt.Fprintf(p.w, " key=%s", e.CacheKey)
		case pages.EventRefresh:
			fmt.Fprintf(p.w, " mount=%s", e.Page.MountKey)
		}
		fmt.Fprintln(p.w)
	}
}

func (p *printer) command(cmd *pages.Command) {
	if cmd == nil {
		return
	}
	if p.json {
		p.emit(printerLine{Kind: "navigate", Navigate: cmd.FullPath})
		return
	}
	fmt.Fprintf(p.w, "    -> navigate %s\n", cmd.FullPath)
}

func (p *printer) state(kind string, st pages.State) {
	if p.json {
		p.emit(printerLine{Kind: kind, State: &st})
		return
	}
	fmt.Fprintln(p.w)
	printState(p.w, st)
}

func (p *printer) failure(line int, err error) {
	if p.json {
		p.emit(printerLine{Kind: "error", Line: line, Error: err.Error()})
		return
	}
	errors.Warn(p.w, fmt.Sprintf("line %d: %v", line, err))
}
