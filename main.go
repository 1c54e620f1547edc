package main

import (
	"context"
	"embed"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"Sherpa/mcp"
	"Sherpa/pkg/logger"
	"Sherpa/pkg/tui"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/menu"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
	"github.com/wailsapp/wails/v2/pkg/options/mac"
)

//go:embed all:frontend/dist
var assets embed.FS

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	configPath := flag.String("config", defaultConfigPath(), "path to config.yaml")
	mcpMode := flag.Bool("mcp", false, "serve MCP over stdio instead of opening a window")
	headless := flag.Bool("headless", false, "run the monitor and HTTP server without a window")
	tuiMode := flag.Bool("tui", false, "show connected devices in the terminal")
	flag.Parse()

	app := NewApp(version, *configPath)

	var err error
	switch {
	case *mcpMode:
		err = runMCP(app)
	case *headless:
		err = runHeadless(app)
	case *tuiMode:
		err = runTUI(app)
	default:
		err = runWindow(app)
	}
	if err != nil {
		logger.LogError("main").Err(err).Msg("Exiting")
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "Sherpa", "config.yaml")
}

func runMCP(app *App) error {
	app.mcpMode = true
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.start(ctx); err != nil {
		return err
	}
	defer app.stop()

	return mcp.NewMCPServer(NewMCPBridge(app)).Start(ctx)
}

func runHeadless(app *App) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	app.stop()
	return nil
}

func runTUI(app *App) error {
	app.tuiMode = true
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.start(ctx); err != nil {
		return err
	}
	defer app.stop()

	return tui.Run(ctx, app.monitor)
}

func runWindow(app *App) error {
	app.uiMode = true

	var applicationMenu *menu.Menu
	if runtime.GOOS == "darwin" {
		applicationMenu = menu.NewMenu()
		applicationMenu.Append(menu.AppMenu())
		applicationMenu.Append(menu.WindowMenu())
	}

	return wails.Run(&options.App{
		Title:     "Sherpa",
		Width:     960,
		Height:    640,
		MinWidth:  640,
		MinHeight: 480,
		AssetServer: &assetserver.Options{
			Assets: assets,
		},
		Menu:             applicationMenu,
		BackgroundColour: &options.RGBA{R: 27, G: 38, B: 54, A: 1},
		OnStartup:        app.startup,
		OnShutdown:       app.shutdown,
		WindowStartState: options.Normal,
		Mac: &mac.Options{
			TitleBar: &mac.TitleBar{
				TitlebarAppearsTransparent: true,
				FullSizeContent:            true,
				HideToolbarSeparator:       true,
			},
			Appearance: mac.NSAppearanceNameDarkAqua,
			About: &mac.AboutInfo{
				Title:   "Sherpa",
				Message: "Connected Android and Apple device monitor",
			},
		},
		Bind: []interface{}{
			app,
		},
	})
}
