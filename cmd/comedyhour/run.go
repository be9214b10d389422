package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/MrWong99/comedyhour/internal/app"
	"github.com/MrWong99/comedyhour/internal/config"
	"github.com/MrWong99/comedyhour/internal/reveal"
	"github.com/MrWong99/comedyhour/internal/termui"
	"github.com/MrWong99/comedyhour/internal/transcript"
)

type runOptions struct {
	continues int
	plain     bool
	stream    bool
}

func newRunCmd(root *rootOptions) *cobra.Command {
	o := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Play the show in the terminal",
		Long: `Play the show in the terminal: the opening exchange, then --continues
more rounds, then the farewell.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if o.continues < 0 {
				return fmt.Errorf("--continues must not be negative, got %d", o.continues)
			}
			return runShow(cmd.Context(), root.cfg, o)
		},
	}
	cmd.Flags().IntVarP(&o.continues, "continues", "n", 1, "rounds to play between the opening and the farewell")
	cmd.Flags().BoolVar(&o.plain, "plain", false, "print whole lines without colour or reveal")
	cmd.Flags().BoolVar(&o.stream, "stream", false, "print lines as the model generates them instead of revealing finished lines")
	return cmd
}

func runShow(ctx context.Context, cfg *config.Config, o *runOptions) error {
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	speakers := make([]termui.Speaker, 0, len(cfg.Agents))
	for _, ac := range cfg.Agents {
		speakers = append(speakers, termui.Speaker{ID: transcript.Identity(ac.Name), DisplayName: ac.DisplayName})
	}
	opts := []termui.Option{termui.WithRevealDelay(cfg.Presentation.RevealDelay)}
	if o.plain {
		opts = append(opts, termui.WithLive(false), termui.WithColour(false))
	}
	printer := termui.New(os.Stdout, speakers, opts...)

	var appOpts []app.Option
	if o.stream {
		appOpts = append(appOpts, app.WithLineFunc(printer.Stream))
	}
	application, err := app.New(cfg, reg, appOpts...)
	if err != nil {
		return err
	}
	sess, err := application.NewSession(ctx, "terminal")
	if err != nil {
		return err
	}

	show := &terminalShow{
		printer:  printer,
		assets:   application.Presentation().Assets,
		streamed: o.stream,
	}

	show.printer.Title(cfg.Presentation.Title)
	script := sess.Script()
	if err := show.play(ctx, script.Initiator, sess.Start); err != nil {
		return err
	}
	for range o.continues {
		if err := show.play(ctx, script.Continue.Speaker, sess.Continue); err != nil {
			return err
		}
	}
	return show.play(ctx, script.Farewell.Speaker, sess.End)
}

// terminalShow plays session actions through a termui.Printer with the same
// cues the web page shows. When streamed, lines were already printed while
// the action ran.
type terminalShow struct {
	printer  *termui.Printer
	assets   reveal.Assets
	streamed bool
}

func (t *terminalShow) play(ctx context.Context, cue transcript.Identity, act func(context.Context) ([]transcript.Message, error)) error {
	t.printer.Cue(t.assets.Cue(reveal.KindTyping, cue))
	msgs, err := act(ctx)
	if err != nil {
		t.printer.Error(err)
		return err
	}
	if !t.streamed {
		if err := t.printer.Messages(ctx, msgs); err != nil {
			return err
		}
	}
	if len(msgs) > 0 {
		t.printer.Cue(t.assets.Cue(reveal.KindLaughing, msgs[len(msgs)-1].Speaker))
	}
	return nil
}
