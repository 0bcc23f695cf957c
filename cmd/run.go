package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"

	"github.com/spaghettifunk/lumen/engine"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer"
)

// Run drives the engine with the selected backend.
func Run(ctx *cli.Context) error {
	settings, err := loadSettings(ctx)
	if err != nil {
		return err
	}
	setupLogging(ctx, settings)
	applyExtent(ctx, &settings)

	backend, err := engine.ParseBackend(ctx.String("backend"))
	if err != nil {
		return err
	}
	opts := engine.Options{
		Name:        "lumen",
		Backend:     backend,
		Settings:    settings,
		ConfigPath:  ctx.GlobalString("config"),
		Watch:       ctx.Bool("watch"),
		Frames:      uint64(ctx.Int("frames")),
		LimitFrames: backend == engine.BackendVulkan,
		ShaderDir:   ctx.String("shaders"),
		Validation:  ctx.Bool("validation"),
	}
	if p := ctx.String("pick"); p != "" {
		xy, err := parsePick(p)
		if err != nil {
			return err
		}
		opts.Pick = &xy
	}

	e, err := engine.New(opts)
	if err != nil {
		return err
	}
	if err := e.Initialize(); err != nil {
		return err
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	defer signal.Stop(sigCh)

	// start shutdown goroutine
	go func() {
		// capture sigterm and other system call here
		if _, ok := <-sigCh; ok {
			e.Stop()
		}
	}()

	runErr := e.Run()
	o := e.Orchestrator()
	stats, frame := o.Stats(), o.FrameStats()
	if err := e.Shutdown(); err != nil && runErr == nil {
		runErr = err
	}

	displayPassStats(stats, frame, e.SkippedFrames())
	if opts.Pick != nil {
		if pick, ok := o.LastPick(); ok {
			core.LogInfo("pick at %d,%d: object %d (frame %d)", pick.X, pick.Y, pick.ObjectID, pick.Frame)
		} else {
			core.LogWarn("pick at %d,%d did not resolve", opts.Pick[0], opts.Pick[1])
		}
	}
	return runErr
}

// parsePick reads a pixel given as "x,y".
func parsePick(value string) ([2]int32, error) {
	parts := strings.Split(value, ",")
	if len(parts) != 2 {
		return [2]int32{}, fmt.Errorf("pick %q: expected x,y", value)
	}
	var xy [2]int32
	for i, part := range parts {
		v, err := strconv.ParseInt(strings.TrimSpace(part), 10, 32)
		if err != nil {
			return [2]int32{}, fmt.Errorf("pick %q: %w", value, err)
		}
		xy[i] = int32(v)
	}
	return xy, nil
}

func displayPassStats(stats []renderer.PassStats, frame renderer.FrameStats, skipped uint64) {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"#", "Pass", "Kind", "Recorded", "Disabled", "Avg CPU time"})
	for _, stat := range stats {
		table.Append([]string{
			fmt.Sprintf("%d", stat.Index),
			stat.Name,
			stat.Kind.String(),
			fmt.Sprintf("%d", stat.Records),
			fmt.Sprintf("%d", stat.Disabled),
			stat.AverageCPUTime().String(),
		})
	}
	table.SetFooter([]string{"", "", "FRAMES", fmt.Sprintf("%d", frame.Frames), fmt.Sprintf("%d skipped", skipped), fmt.Sprintf("%.2f ms", frame.FrameTime)})
	table.Render()
	core.LogInfo("frame statistics (%.1f fps, %d barriers, %d fence waits)\n%s", frame.FPS, frame.Barriers, frame.FenceWaits, buf.String())
}
