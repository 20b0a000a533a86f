// Package broadcastcmder provides the broadcast command, which negotiates a
// request with the network from the terminal.
package broadcastcmder

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/parley/cmd/parley/boot"
	"github.com/papercomputeco/parley/pkg/cliui"
	"github.com/papercomputeco/parley/pkg/network"
)

type broadcastCommander struct {
	from      string
	noStream  bool
	summarize bool
}

const broadcastLongDesc string = `Negotiate a request with the network.

Creates a request for the member given by --from and lets their proxy talk
to up to ten peers' proxies at once. Each conversation stops when it reaches
an outcome or runs out of rounds. Progress is printed live unless
--no-stream is set. Interrupting cancels the negotiations still running;
finished turns are kept.

The request text is taken from the arguments, or from stdin when none are
given.

Examples:
  parley broadcast --from alice "Can anyone lend me a projector this weekend?"
  parley broadcast --from alice --summarize "Looking for a venue for 30 people"
  echo "Need a ladder on Sunday" | parley broadcast --from alice`

const broadcastShortDesc string = "Negotiate a request with the network"

func NewBroadcastCmd() *cobra.Command {
	cmder := &broadcastCommander{}

	cmd := &cobra.Command{
		Use:   "broadcast [request text]",
		Short: broadcastShortDesc,
		Long:  broadcastLongDesc,
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := requestText(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			return cmder.run(cmd, content)
		},
	}

	cmd.Flags().StringVarP(&cmder.from, "from", "f", "", "ID of the member posting the request")
	cmd.Flags().BoolVar(&cmder.noStream, "no-stream", false, "Print only the final results")
	cmd.Flags().BoolVar(&cmder.summarize, "summarize", false, "Summarize the negotiations when they finish")
	_ = cmd.MarkFlagRequired("from")
	boot.AddEngineFlags(cmd)

	return cmd
}

// requestText joins args, falling back to the first line of piped stdin.
func requestText(args []string, stdin io.Reader) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	if f, ok := stdin.(*os.File); ok {
		fi, err := f.Stat()
		if err != nil {
			return "", fmt.Errorf("checking stdin: %w", err)
		}
		if fi.Mode()&os.ModeCharDevice != 0 {
			return "", errors.New("request text required as arguments or on stdin")
		}
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", errors.New("request text required as arguments or on stdin")
	}
	return text, nil
}

func (c *broadcastCommander) run(cmd *cobra.Command, content string) error {
	ctx, stop := signal.NotifyContext(boot.Context(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, _, err := boot.Open(ctx, cmd, boot.EngineFlags)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()

	req, err := a.CreateRequest(ctx, c.from, content)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\n  %s %s\n\n", cliui.KeyStyle.Render("Request"), cliui.DimStyle.Render(req.ID))

	if c.noStream {
		var results []network.BroadcastResult
		err = cliui.Step(out, "Negotiating with the network", func() error {
			var berr error
			results, berr = a.Coordinator.Broadcast(ctx, req.ID, req.Content, c.from)
			if berr != nil && results == nil {
				return berr
			}
			if berr != nil {
				fmt.Fprintf(out, "\n  %s %v\n", cliui.WarnStyle.Render("!"), berr)
			}
			return nil
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(out)
		cliui.PrintResults(out, results)
	} else {
		printer := cliui.NewStreamPrinter(out)
		defer printer.Close()
		if err := a.Coordinator.BroadcastWithStream(ctx, req.ID, req.Content, c.from, printer); err != nil {
			return err
		}
	}

	if !c.summarize {
		fmt.Fprintf(out, "\n  %s parley summary %s\n\n", cliui.DimStyle.Render("Next:"), req.ID)
		return nil
	}

	var text string
	err = cliui.Step(out, "Summarizing", func() error {
		var serr error
		text, serr = a.Summaries.Summarize(ctx, req.ID)
		return serr
	})
	if err != nil {
		return err
	}
	rendered, _ := cliui.RenderMarkdown(text)
	fmt.Fprintln(out, rendered)
	return nil
}
