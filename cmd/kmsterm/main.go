package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kmsterm/kmsterm/config"
	"github.com/kmsterm/kmsterm/drm"
	"github.com/kmsterm/kmsterm/font"
	"github.com/kmsterm/kmsterm/grid"
	"github.com/kmsterm/kmsterm/parser"
	"github.com/kmsterm/kmsterm/render"
	"github.com/kmsterm/kmsterm/shell"
	"github.com/kmsterm/kmsterm/tty"
)

const readBufSize = 1024

var (
	flagConfig string
	flagShell  string
	flagTerm   string
	flagDRI    string
)

var rootCmd = &cobra.Command{
	Use:   "kmsterm",
	Short: "Framebuffer terminal emulator on a KMS/DRM dumb buffer",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(flagConfig)
		if err != nil {
			return err
		}
		if flagShell != "" {
			cfg.Shell = flagShell
		}
		if flagTerm != "" {
			cfg.Term = flagTerm
		}
		if flagDRI != "" {
			cfg.DRIDevice = flagDRI
		}
		if tty.BackgroundDrawRequested() {
			cfg.BackgroundDraw = true
		}
		return run(cfg)
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.Flags().StringVarP(&flagConfig, "config", "c", "", "config file path")
	rootCmd.Flags().StringVar(&flagShell, "shell", "", "shell to execute")
	rootCmd.Flags().StringVar(&flagTerm, "term", "", "TERM value for the child")
	rootCmd.Flags().StringVar(&flagDRI, "dri", "", "DRI device path")
}

func run(cfg *config.Config) error {
	dev, err := drm.Open(cfg.DRIDevice)
	if err != nil {
		return err
	}
	defer dev.Close()

	table := font.Default()
	cols := dev.Width() / table.CellWidth()
	lines := dev.Height() / table.CellHeight()

	g := grid.NewGrid(cols, lines, table)
	g.SetDefaultColors(cfg.DefaultFg, cfg.DefaultBg)

	term := parser.New(g)
	if cfg.Charset == "euc-jp" {
		term.SetEncoding(parser.EncodingEUCJP)
	}

	rend := render.New(dev, g)
	rend.SetCursorColors(cfg.ActiveCursorColor, cfg.PassiveCursorColor)

	console, err := tty.Init(int(os.Stdin.Fd()))
	if err != nil {
		return err
	}
	defer console.Close()

	sess, err := shell.Spawn(cfg.Shell, cfg.Term, uint16(cols), uint16(lines))
	if err != nil {
		return err
	}
	defer sess.Close()

	loop(console, dev, term, rend, sess, cfg.BackgroundDraw)
	return nil
}

// loop multiplexes child output, console input, and VT switch signals
// until the shell exits.
func loop(console *tty.Console, dev *drm.Device, term *parser.Terminal,
	rend *render.Renderer, sess *shell.Session, backgroundDraw bool) {

	sigs := make(chan os.Signal, 4)
	signal.Notify(sigs, syscall.SIGUSR1, syscall.SIGCHLD)
	defer signal.Stop(sigs)

	output := make(chan []byte, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			buf := make([]byte, readBufSize)
			n, err := sess.Read(buf)
			if n > 0 {
				output <- buf[:n]
			}
			if err != nil {
				return
			}
		}
	}()

	go func() {
		buf := make([]byte, readBufSize)
		for {
			n, err := os.Stdin.Read(buf)
			if n > 0 {
				if _, err := sess.Write(buf[:n]); err != nil {
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	visible := true
	rend.Refresh()

	for {
		select {
		case data := <-output:
			term.Parse(data)
			if reply := term.DrainReply(); len(reply) > 0 {
				if _, err := sess.Write(reply); err != nil {
					log.Printf("reply write: %v", err)
				}
			}
			// Coalesce drawing while more output is already queued.
			if len(output) > 0 && len(data) == readBufSize {
				continue
			}
			if visible || backgroundDraw {
				rend.Refresh()
			}

		case sig := <-sigs:
			switch sig {
			case syscall.SIGCHLD:
				if sess.HasExited() {
					return
				}
			case syscall.SIGUSR1:
				if visible {
					visible = false
					rend.SetVisible(false)
					console.Release()
				} else {
					visible = true
					rend.SetVisible(true)
					console.Acknowledge()
					if err := dev.Acquire(); err != nil {
						log.Printf("drm reacquire: %v", err)
					}
					term.Grid.MarkAllDirty()
					rend.Refresh()
				}
			}

		case <-done:
			return
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
